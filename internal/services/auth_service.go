package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telehealth/internal/config"
	"telehealth/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carried by access tokens issued by the main API.
type Claims struct {
	UserID string      `json:"user_id"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

type AuthService struct {
	users    UserStore
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
}

func NewAuthService(users UserStore, cfg config.JWTConfig) *AuthService {
	return &AuthService{
		users:    users,
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      cfg.TTL,
	}
}

// VerifyCredential validates token and resolves it to an identity. The role
// is taken from the user store, which stays authoritative over token claims.
func (s *AuthService) VerifyCredential(ctx context.Context, token string) (*models.Identity, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing credential", models.ErrUnauthenticated)
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: invalid token", models.ErrUnauthenticated)
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: token has no subject", models.ErrUnauthenticated)
	}

	user, err := s.users.FindUser(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown user", models.ErrUnauthenticated)
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, fmt.Errorf("%w: account is disabled", models.ErrUnauthenticated)
	}
	if !user.Role.Valid() {
		return nil, fmt.Errorf("%w: account has no valid role", models.ErrForbidden)
	}

	return &models.Identity{UserID: userID, Role: user.Role}, nil
}

// IssueToken signs a token for id. The main API issues production tokens;
// this serves local tooling and tests.
func (s *AuthService) IssueToken(id models.Identity) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: id.UserID,
		Role:   id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
