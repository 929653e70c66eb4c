package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func validClaims() Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti-1",
			Subject:   "7",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Username: "capturista",
		Roles:    []string{RoleUser},
	}
}

func runMiddleware(t *testing.T, mw echo.MiddlewareFunc, header string) (error, context.Context) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen context.Context
	err := mw(func(c echo.Context) error {
		seen = c.Request().Context()
		return c.String(http.StatusOK, "ok")
	})(c)
	return err, seen
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with status %d", code)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	err, _ := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "")
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err, _ := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), tt.header)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	tok := createTestToken(t, validClaims(), testSigningKey)
	err, ctx := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+tok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := UserIDFromContext(ctx); got != "7" {
		t.Errorf("expected user id 7, got %q", got)
	}
	if got := UsernameFromContext(ctx); got != "capturista" {
		t.Errorf("expected username capturista, got %q", got)
	}
	roles := RolesFromContext(ctx)
	if len(roles) != 1 || roles[0] != RoleUser {
		t.Errorf("expected [user], got %v", roles)
	}
	jti, exp := TokenFromContext(ctx)
	if jti != "jti-1" || exp.IsZero() {
		t.Errorf("expected token id and expiry, got %q %v", jti, exp)
	}
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	tok := createTestToken(t, validClaims(), []byte("another-key"))
	err, _ := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+tok)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_Expired(t *testing.T) {
	claims := validClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	tok := createTestToken(t, claims, testSigningKey)
	err, _ := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+tok)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_WrongIssuer(t *testing.T) {
	claims := validClaims()
	claims.Issuer = "someone-else"
	tok := createTestToken(t, claims, testSigningKey)
	err, _ := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Issuer: "medicos"}), "Bearer "+tok)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_RevokedToken(t *testing.T) {
	store := NewMemoryRevocationStore()
	defer store.Close()
	_ = store.Revoke(context.Background(), "jti-1", "7", time.Now().Add(time.Hour))

	tok := createTestToken(t, validClaims(), testSigningKey)
	cfg := JWTConfig{SigningKey: testSigningKey, Revocations: store}
	err, _ := runMiddleware(t, JWTMiddleware(cfg), "Bearer "+tok)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestOptionalJWTMiddleware_Anonymous(t *testing.T) {
	err, ctx := runMiddleware(t, OptionalJWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if UserIDFromContext(ctx) != "" {
		t.Error("expected no identity for anonymous request")
	}
}

func TestOptionalJWTMiddleware_InvalidTokenIsAnonymous(t *testing.T) {
	err, ctx := runMiddleware(t, OptionalJWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer garbage")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if UserIDFromContext(ctx) != "" {
		t.Error("expected no identity for invalid token")
	}
}

func TestOptionalJWTMiddleware_ValidToken(t *testing.T) {
	tok := createTestToken(t, validClaims(), testSigningKey)
	err, ctx := runMiddleware(t, OptionalJWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+tok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if UsernameFromContext(ctx) != "capturista" {
		t.Errorf("expected identity to be attached, got %q", UsernameFromContext(ctx))
	}
}

func TestDevAuthMiddleware(t *testing.T) {
	err, ctx := runMiddleware(t, DevAuthMiddleware(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !IsAdmin(ctx) {
		t.Error("expected dev identity to be admin")
	}
}

func TestWithIdentity(t *testing.T) {
	ctx := WithIdentity(context.Background(), "3", "ana", RoleReadOnly)
	if UserIDFromContext(ctx) != "3" || UsernameFromContext(ctx) != "ana" {
		t.Errorf("unexpected identity: %q %q", UserIDFromContext(ctx), UsernameFromContext(ctx))
	}
	if HasRole(ctx, RoleUser) {
		t.Error("readonly must not satisfy user role")
	}
}
