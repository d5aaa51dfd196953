package auth

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewHandler("admin", string(hash), []byte("test-secret"), logger)
}

func login(t *testing.T, handler *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/panel/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.HandleLogin(rec, req)
	return rec
}

func TestHandleLogin(t *testing.T) {
	handler := newTestHandler(t)

	t.Run("valid credentials issue a token", func(t *testing.T) {
		rec := login(t, handler, `{"username":"admin","password":"hunter2"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var resp loginResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Token == "" {
			t.Fatal("expected a token")
		}
		if time.Until(resp.ExpiresAt) <= 0 {
			t.Error("token already expired")
		}

		claims := &jwt.RegisteredClaims{}
		_, err := jwt.ParseWithClaims(resp.Token, claims, func(t *jwt.Token) (any, error) {
			return []byte("test-secret"), nil
		})
		if err != nil {
			t.Fatalf("issued token does not parse: %v", err)
		}
		if claims.Subject != "admin" {
			t.Errorf("unexpected subject %q", claims.Subject)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := login(t, handler, `{"username":"admin","password":"wrong"}`)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("unknown username", func(t *testing.T) {
		rec := login(t, handler, `{"username":"root","password":"hunter2"}`)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := login(t, handler, `{`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestMiddleware(t *testing.T) {
	handler := newTestHandler(t)
	protected := handler.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	issuedToken := func(t *testing.T) string {
		t.Helper()
		rec := login(t, handler, `{"username":"admin","password":"hunter2"}`)
		var resp loginResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode login response: %v", err)
		}
		return resp.Token
	}

	t.Run("valid token passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/panel/orders", nil)
		req.Header.Set("Authorization", "Bearer "+issuedToken(t))
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Errorf("expected 204, got %d", rec.Code)
		}
	})

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/panel/orders", nil)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("token signed with another secret", func(t *testing.T) {
		claims := jwt.RegisteredClaims{
			Subject:   "admin",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}
		forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-secret"))
		if err != nil {
			t.Fatalf("failed to sign token: %v", err)
		}

		req := httptest.NewRequest(http.MethodGet, "/panel/orders", nil)
		req.Header.Set("Authorization", "Bearer "+forged)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		claims := jwt.RegisteredClaims{
			Subject:   "admin",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		}
		expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		if err != nil {
			t.Fatalf("failed to sign token: %v", err)
		}

		req := httptest.NewRequest(http.MethodGet, "/panel/orders", nil)
		req.Header.Set("Authorization", "Bearer "+expired)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})
}
