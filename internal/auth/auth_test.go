package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestPasswordsHashAndCheck(t *testing.T) {
	p := NewPasswords(bcrypt.MinCost)
	hash, err := p.Hash("hunter22")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "hunter22" {
		t.Fatalf("password stored in clear")
	}
	if err := p.Check(hash, "hunter22"); err != nil {
		t.Fatalf("check: %v", err)
	}
	if err := p.Check(hash, "hunter23"); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
}

func TestNewPasswordsClampsCost(t *testing.T) {
	if got := NewPasswords(99).cost; got != bcrypt.DefaultCost {
		t.Fatalf("got cost %d", got)
	}
}

func TestTokensRoundTrip(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	session, err := tokens.Issue("user-1", "ash")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if session.TokenType != "bearer" || session.UserID != "user-1" {
		t.Fatalf("unexpected session %+v", session)
	}
	claims, err := tokens.Verify(session.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.Username != "ash" || claims.ID == "" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestTokensRejectTamperedAndExpired(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	session, err := tokens.Issue("user-1", "ash")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other := NewTokens("other-secret", time.Hour)
	if _, err := other.Verify(session.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for wrong secret, got %v", err)
	}
	parts := strings.Split(session.AccessToken, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)
	if _, err := tokens.Verify(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for tampered signature, got %v", err)
	}

	tokens.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := tokens.Verify(session.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
}
