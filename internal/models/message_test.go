package models

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDeriveConversationID_Symmetric(t *testing.T) {
	t.Parallel()

	ab, err := DeriveConversationID("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	ba, err := DeriveConversationID("bob", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if ab != ba || ab != "alice_bob" {
		t.Fatalf("expected alice_bob both ways, got %q and %q", ab, ba)
	}

	if other, err := OtherParty(ab, "alice"); err != nil || other != "bob" {
		t.Fatalf("alice: got %q %v", other, err)
	}
	if other, err := OtherParty(ab, "bob"); err != nil || other != "alice" {
		t.Fatalf("bob: got %q %v", other, err)
	}
}

func TestDeriveConversationID_RejectsSelfAndEmpty(t *testing.T) {
	t.Parallel()

	if _, err := DeriveConversationID("alice", "alice"); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected validation error for self conversation, got %v", err)
	}
	if _, err := DeriveConversationID("", "bob"); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected validation error for empty id, got %v", err)
	}
}

func TestOtherParty_IdsContainingSeparator(t *testing.T) {
	t.Parallel()

	id, err := DeriveConversationID("user_b", "user_a")
	if err != nil {
		t.Fatal(err)
	}
	if other, err := OtherParty(id, "user_a"); err != nil || other != "user_b" {
		t.Fatalf("user_a: got %q %v", other, err)
	}
	if other, err := OtherParty(id, "user_b"); err != nil || other != "user_a" {
		t.Fatalf("user_b: got %q %v", other, err)
	}
}

func TestOtherParty_RejectsOutsiders(t *testing.T) {
	t.Parallel()

	id, _ := DeriveConversationID("user_a", "user_b")
	for _, user := range []string{"", "user", "a", "b", "user_a_user", "user_c"} {
		if _, err := OtherParty(id, user); !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected %q to be rejected, got %v", user, err)
		}
	}
	// a bare prefix match is not membership unless the pair re-derives the key
	if _, err := OtherParty("b_a", "b"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("unsorted key must not match, got %v", err)
	}
}

func TestValidateBody_Limits(t *testing.T) {
	t.Parallel()

	if _, err := ValidateBody("   \n\t "); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected whitespace body to be rejected, got %v", err)
	}

	body, err := ValidateBody("  hi  ")
	if err != nil || body != "hi" {
		t.Fatalf("expected trimmed body, got %q %v", body, err)
	}

	// runes, not bytes
	exact := strings.Repeat("é", MaxMessageLength)
	if _, err := ValidateBody(exact); err != nil {
		t.Fatalf("expected %d runes to be accepted: %v", MaxMessageLength, err)
	}
	if _, err := ValidateBody(exact + "é"); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected over-long body to be rejected, got %v", err)
	}
}

func TestNewMessage_DerivesConversation(t *testing.T) {
	t.Parallel()

	m, err := NewMessage("bob", "alice", " hello ", MessageText, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if m.ConversationID != "alice_bob" || m.Body != "hello" || m.IsRead {
		t.Fatalf("unexpected message: %+v", m)
	}
	if _, err := NewMessage("bob", "alice", "x", MessageType("video"), time.Now()); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected unknown type to be rejected, got %v", err)
	}
}

func TestRedacted_HidesDeletedBody(t *testing.T) {
	t.Parallel()

	m := Message{Body: "secret", IsDeleted: true}
	if got := m.Redacted().Body; got != "" {
		t.Fatalf("expected empty body, got %q", got)
	}
	if m.Body != "secret" {
		t.Fatalf("Redacted must not mutate the receiver")
	}
}

func TestErrorCode_Wrapped(t *testing.T) {
	t.Parallel()

	err := errors.New("boom")
	if got := ErrorCode(err); got != "INTERNAL_ERROR" {
		t.Fatalf("got %s", got)
	}
	wrapped := errors.Join(errors.New("context"), ErrNotFound)
	if got := ErrorCode(wrapped); got != "NOT_FOUND" {
		t.Fatalf("got %s", got)
	}
	if !IsRetryable(ErrUnavailable) || IsRetryable(ErrForbidden) {
		t.Fatalf("unexpected retryability")
	}
}
