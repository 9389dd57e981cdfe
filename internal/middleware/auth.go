package middleware

import (
	"context"
	"net/http"
	"strings"

	"telehealth/internal/models"
	"telehealth/internal/utils"
	"telehealth/pkg/logger"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// CredentialVerifier resolves a bearer token to an identity.
type CredentialVerifier interface {
	VerifyCredential(ctx context.Context, token string) (*models.Identity, error)
}

// Auth requires a valid credential. Browsers cannot set headers on a
// websocket upgrade, so the token query parameter is accepted as well.
func Auth(verifier CredentialVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			utils.UnauthorizedResponse(c, "Missing credential")
			c.Abort()
			return
		}

		identity, err := verifier.VerifyCredential(c.Request.Context(), token)
		if err != nil {
			logger.LogSecurityEvent("credential_rejected", "", c.ClientIP(), map[string]interface{}{
				"path":  c.FullPath(),
				"error": err.Error(),
			})
			utils.DomainErrorResponse(c, err)
			c.Abort()
			return
		}

		c.Set(identityKey, *identity)
		c.Set("user_id", identity.UserID)
		c.Set("role", string(identity.Role))
		c.Next()
	}
}

// RequireRole admits only the listed roles. It must run after Auth.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := GetIdentity(c)
		if !ok {
			utils.UnauthorizedResponse(c, "")
			c.Abort()
			return
		}
		for _, r := range roles {
			if identity.Role == r {
				c.Next()
				return
			}
		}
		utils.ForbiddenResponse(c, "Insufficient role")
		c.Abort()
	}
}

// GetIdentity returns the caller set by Auth.
func GetIdentity(c *gin.Context) (models.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return models.Identity{}, false
	}
	identity, ok := v.(models.Identity)
	return identity, ok
}

// SetIdentity is used by tests to bypass token verification.
func SetIdentity(c *gin.Context, identity models.Identity) {
	c.Set(identityKey, identity)
	c.Set("user_id", identity.UserID)
	c.Set("role", string(identity.Role))
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return ""
		}
		return strings.TrimSpace(parts[1])
	}
	if c.Request.Method == http.MethodGet {
		return c.Query("token")
	}
	return ""
}
