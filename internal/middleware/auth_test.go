package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/coopfund/backoffice/internal/app/domain/user"
	"github.com/coopfund/backoffice/pkg/logger"
)

func newTokens(t *testing.T) *TokenService {
	t.Helper()
	tokens, err := NewTokenService("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	return tokens
}

func issue(t *testing.T, tokens *TokenService, role user.Role) string {
	t.Helper()
	token, _, err := tokens.Issue(user.User{ID: "u1", Email: "ana@coop.org", Role: role})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	return token
}

func TestNewTokenServiceRequiresSecret(t *testing.T) {
	if _, err := NewTokenService("  ", time.Hour); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	tokens := newTokens(t)
	token := issue(t, tokens, user.RoleStaff)

	claims, err := tokens.Parse(token)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if claims.UserID != "u1" || claims.Role != "staff" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestTokenRejections(t *testing.T) {
	tokens := newTokens(t)
	valid := issue(t, tokens, user.RoleAdmin)

	other, _ := NewTokenService("another-secret", time.Hour)
	foreign := issue(t, other, user.RoleAdmin)

	expiredService := newTokens(t)
	expiredService.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired := issue(t, expiredService, user.RoleAdmin)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", foreign},
		{"expired", expired},
		{"unsigned", none},
		{"garbage", "not-a-token"},
		{"tampered", valid[:len(valid)-2] + "xx"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tokens.Parse(tt.token); err == nil {
				t.Error("expected token to be rejected")
			}
		})
	}
}

func TestAuthMiddlewareHandler(t *testing.T) {
	tokens := newTokens(t)
	m := NewAuthMiddleware(tokens, logger.Discard(), []string{"/healthz", "/api/auth/login"})

	var seenUser string
	var seenRole user.Role
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUser = GetUserID(r.Context())
		seenRole = GetUserRole(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"skip path", "/healthz", "", http.StatusOK},
		{"missing header", "/api/cooperatives", "", http.StatusUnauthorized},
		{"bad scheme", "/api/cooperatives", "Basic abc", http.StatusUnauthorized},
		{"invalid token", "/api/cooperatives", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "/api/cooperatives", "Bearer " + issue(t, tokens, user.RoleViewer), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	if seenUser != "u1" || seenRole != user.RoleViewer {
		t.Errorf("context user = %q role = %q", seenUser, seenRole)
	}
}

func TestRequireRoleAndReadOnlyViewers(t *testing.T) {
	tokens := newTokens(t)
	auth := NewAuthMiddleware(tokens, logger.Discard(), nil)
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	adminOnly := auth.Handler(RequireRole(user.RoleAdmin)(ok))
	writes := auth.Handler(ReadOnlyViewers(ok))

	tests := []struct {
		name    string
		handler http.Handler
		method  string
		role    user.Role
		want    int
	}{
		{"admin allowed", adminOnly, http.MethodGet, user.RoleAdmin, http.StatusNoContent},
		{"staff forbidden", adminOnly, http.MethodGet, user.RoleStaff, http.StatusForbidden},
		{"viewer reads", writes, http.MethodGet, user.RoleViewer, http.StatusNoContent},
		{"viewer writes", writes, http.MethodPost, user.RoleViewer, http.StatusForbidden},
		{"staff writes", writes, http.MethodDelete, user.RoleStaff, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/x", nil)
			req.Header.Set("Authorization", "Bearer "+issue(t, tokens, tt.role))
			rec := httptest.NewRecorder()
			tt.handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRateLimiterPerRemoteHost(t *testing.T) {
	rl := NewRateLimiter(0.001, 2, false, logger.Discard())
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }))

	call := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if got := call("10.0.0.1:1000"); got != http.StatusOK {
		t.Fatalf("first call = %d", got)
	}
	if got := call("10.0.0.1:2000"); got != http.StatusOK {
		t.Fatalf("second call = %d", got)
	}
	if got := call("10.0.0.1:3000"); got != http.StatusTooManyRequests {
		t.Fatalf("third call = %d, want 429", got)
	}
	if got := call("10.0.0.2:1000"); got != http.StatusOK {
		t.Fatalf("other host = %d", got)
	}

	rl.now = func() time.Time { return time.Now().Add(time.Hour) }
	if removed := rl.Cleanup(time.Minute); removed != 2 {
		t.Errorf("Cleanup() removed %d, want 2", removed)
	}
}

func TestCORSMiddleware(t *testing.T) {
	m := NewCORSMiddleware([]string{"https://office.coop.org", "*.coopfund.ph"})
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }))

	tests := []struct {
		origin string
		allow  bool
	}{
		{"https://office.coop.org", true},
		{"https://app.coopfund.ph", true},
		{"https://evil-coopfund.ph", false},
		{"https://evil.org", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/programs", nil)
		req.Header.Set("Origin", tt.origin)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		got := rec.Header().Get("Access-Control-Allow-Origin") == tt.origin
		if got != tt.allow {
			t.Errorf("origin %s allowed = %v, want %v", tt.origin, got, tt.allow)
		}
	}

	req := httptest.NewRequest(http.MethodOptions, "/api/programs", nil)
	req.Header.Set("Origin", "https://office.coop.org")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", rec.Code)
	}
}

func TestTracingMiddlewareSetsTraceID(t *testing.T) {
	m := NewTracingMiddleware(logger.Discard())
	var seen string
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.TraceID(r.Context())
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Trace-ID", "trace-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if seen != "trace-123" || rec.Header().Get("X-Trace-ID") != "trace-123" {
		t.Errorf("trace id = %q header = %q", seen, rec.Header().Get("X-Trace-ID"))
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if id := rec.Header().Get("X-Trace-ID"); len(id) != 36 || strings.Count(id, "-") != 4 {
		t.Errorf("generated trace id = %q", id)
	}
}
