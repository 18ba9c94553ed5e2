package authn

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const secret = "test-secret"

func TestValidateTokenRoundTrip(t *testing.T) {
	tok, err := NewToken(secret, "user-1", "owner@example.com", time.Hour)
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	claims, err := ValidateToken(secret, tok)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != "user-1" || claims.Email != "owner@example.com" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestValidateTokenRejections(t *testing.T) {
	expired, err := NewToken(secret, "user-1", "owner@example.com", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	wrongKey, err := NewToken("other-secret", "user-1", "owner@example.com", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	noEmail, err := NewToken(secret, "user-1", "", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		name  string
		token string
	}{
		{"garbage", "not.a.jwt"},
		{"expired", expired},
		{"wrong key", wrongKey},
		{"missing email", noEmail},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ValidateToken(secret, tc.token); err == nil {
				t.Fatal("expected rejection")
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	var seen *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CallerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := Middleware(secret)(next)

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("bad token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer nope")
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("valid token", func(t *testing.T) {
		tok, err := NewToken(secret, "user-1", "owner@example.com", time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if seen == nil || seen.UserID != "user-1" {
			t.Fatalf("claims in context = %+v", seen)
		}
	})
}
