package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestJWTManager(t *testing.T) {
	m := NewJWTManager("test-secret-key-with-32-bytes!!!", time.Hour)

	t.Run("round trip", func(t *testing.T) {
		token, err := m.Generate("split-1", ScopeShare)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}

		claims, err := m.Validate(token, ScopeShare)
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if claims.Subject != "split-1" {
			t.Errorf("subject = %q, want split-1", claims.Subject)
		}
		if claims.Issuer != Issuer {
			t.Errorf("issuer = %q, want %q", claims.Issuer, Issuer)
		}
	})

	t.Run("wrong scope", func(t *testing.T) {
		token, err := m.Generate("split-1", ScopeShare)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if _, err := m.Validate(token, ScopeAPI); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("error = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewJWTManager("another-secret", time.Hour)
		token, err := other.Generate("cli", ScopeAPI)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if _, err := m.Validate(token, ScopeAPI); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("error = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		expired := NewJWTManager("test-secret-key-with-32-bytes!!!", -time.Minute)
		token, err := expired.Generate("cli", ScopeAPI)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if _, err := m.Validate(token, ScopeAPI); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("error = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("unsigned token", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Scope: ScopeAPI})
		s, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		if err != nil {
			t.Fatalf("SignedString failed: %v", err)
		}
		if _, err := m.Validate(s, ScopeAPI); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("error = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := m.Validate("not.a.token", ScopeAPI); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("error = %v, want ErrInvalidToken", err)
		}
	})
}
