package runtime

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var secret = []byte("test-secret")

func serve(t *testing.T, token string, mw ...echo.MiddlewareFunc) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.GET("/", func(c echo.Context) error {
		sub, _ := SubjectFromContext(c.Request().Context())
		return c.String(http.StatusOK, sub)
	}, mw...)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddlewareAcceptsSignedToken(t *testing.T) {
	tok, err := SignJWT("admin", secret, time.Hour, ScopeRead)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	rec := serve(t, tok, EchoAuthMiddleware(secret))
	if rec.Code != http.StatusOK || rec.Body.String() != "admin" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
}

func TestAuthMiddlewareRejects(t *testing.T) {
	expired, _ := SignJWT("admin", secret, -time.Minute)
	wrongKey, _ := SignJWT("admin", []byte("other"), time.Hour)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "admin"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	for name, tok := range map[string]string{"missing": "", "expired": expired, "wrong key": wrongKey, "alg none": none} {
		if rec := serve(t, tok, EchoAuthMiddleware(secret)); rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, rec.Code)
		}
	}
}

func TestRequireScopes(t *testing.T) {
	readOnly, _ := SignJWT("viewer", secret, time.Hour, ScopeRead)
	if rec := serve(t, readOnly, EchoAuthMiddleware(secret), RequireScopes(ScopeWrite)); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	writer, _ := SignJWT("admin", secret, time.Hour, ScopeRead, ScopeWrite)
	if rec := serve(t, writer, EchoAuthMiddleware(secret), RequireScopes(ScopeWrite)); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
