package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"telehealth/internal/models"

	"go.mongodb.org/mongo-driver/mongo"
)

func TestTranslate(t *testing.T) {
	t.Parallel()

	dup := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key"}}}

	cases := []struct {
		name string
		err  error
		want error
	}{
		{"no documents", mongo.ErrNoDocuments, models.ErrNotFound},
		{"duplicate key", dup, models.ErrDuplicate},
		{"deadline", context.DeadlineExceeded, models.ErrUnavailable},
		{"server error", errors.New("connection reset"), models.ErrUnavailable},
	}
	for _, tc := range cases {
		got := translate(tc.err, "session")
		if !errors.Is(got, tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}

	if translate(nil, "session") != nil {
		t.Fatalf("nil must stay nil")
	}
	if got := translate(context.Canceled, "session"); !errors.Is(got, context.Canceled) || models.IsRetryable(got) {
		t.Fatalf("cancellation should pass through untouched, got %v", got)
	}
}

func TestObjectID(t *testing.T) {
	t.Parallel()

	if _, err := objectID("65a1b2c3d4e5f60718293a4b", "user"); err != nil {
		t.Fatalf("valid hex rejected: %v", err)
	}
	if _, err := objectID("patient-1", "user"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("malformed id should read as not found, got %v", err)
	}
}

func TestOpCtx(t *testing.T) {
	t.Parallel()

	ctx, cancel := opCtx(context.Background(), time.Minute)
	defer cancel()
	if _, ok := ctx.Deadline(); !ok {
		t.Fatalf("expected a deadline")
	}

	ctx, cancel = opCtx(context.Background(), 0)
	defer cancel()
	if _, ok := ctx.Deadline(); ok {
		t.Fatalf("zero timeout must not set a deadline")
	}
}
