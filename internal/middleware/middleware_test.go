package middleware_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Nikonomics/PostAcutePulse-sub015/internal/middleware"
	"github.com/Nikonomics/PostAcutePulse-sub015/internal/utils"
)

// mockVerifier implements middleware.TokenVerifier without any database dependency.
type mockVerifier struct {
	data utils.TokenData
	err  error
}

func (m mockVerifier) VerifyToken(token string) (utils.TokenData, error) {
	return m.data, m.err
}

// callWithHeader wraps a simple 200-OK inner handler in the provided middleware,
// optionally setting the Authorization header, and returns the recorded response.
func callWithHeader(t *testing.T, mw func(http.Handler) http.Handler, header string) *httptest.ResponseRecorder {
	t.Helper()

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := mw(inner)
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// TestAuthMiddleware_MissingHeader verifies that a request with no Authorization
// header receives a 401 response.
func TestAuthMiddleware_MissingHeader(t *testing.T) {
	verifier := mockVerifier{}
	mw := middleware.AuthMiddleware(verifier)

	rec := callWithHeader(t, mw, "")

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

// TestAuthMiddleware_MalformedHeader verifies that a non-Bearer Authorization
// header receives a 401 response.
func TestAuthMiddleware_MalformedHeader(t *testing.T) {
	verifier := mockVerifier{
		data: utils.TokenData{UserID: "some-user", ExpiresAt: time.Now().Add(time.Hour)},
	}
	mw := middleware.AuthMiddleware(verifier)

	rec := callWithHeader(t, mw, "Basic dXNlcjpwYXNz")

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

// TestAuthMiddleware_ExpiredToken verifies that a well-formed token that decodes
// to an expired identity receives a 401 response containing "Token expired".
func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	verifier := mockVerifier{
		data: utils.TokenData{
			UserID:    "some-user",
			ExpiresAt: time.Now().Add(-1 * time.Hour), // 1 hour in the past
		},
		err: nil,
	}
	mw := middleware.AuthMiddleware(verifier)

	rec := callWithHeader(t, mw, "Bearer expired-token")

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Token expired") {
		t.Errorf("expected body to contain %q, got: %q", "Token expired", body)
	}
}

// TestAuthMiddleware_VerifierError verifies that a verifier error (bad signature,
// garbage token) results in a 401 response.
func TestAuthMiddleware_VerifierError(t *testing.T) {
	verifier := mockVerifier{
		data: utils.TokenData{},
		err:  errors.New("signature is invalid"),
	}
	mw := middleware.AuthMiddleware(verifier)

	rec := callWithHeader(t, mw, "Bearer garbage")

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

// TestAuthMiddleware_ValidToken verifies that a request with a valid, non-expired
// token receives a 200 response and that the userID is injected into the context.
func TestAuthMiddleware_ValidToken(t *testing.T) {
	const wantUserID = "test-user-123"

	verifier := mockVerifier{
		data: utils.TokenData{
			UserID:    wantUserID,
			ExpiresAt: time.Now().Add(1 * time.Hour), // 1 hour in the future
		},
		err: nil,
	}

	// inner handler reads and echoes the userID from context
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, ok := utils.GetUserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "userID not in context", http.StatusInternalServerError)
			return
		}
		if gotUserID != wantUserID {
			http.Error(w, "wrong userID in context: "+gotUserID, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	mw := middleware.AuthMiddleware(verifier)
	handler := mw(inner)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d; body: %s", rec.Code, rec.Body.String())
	}
}

// TestBearerToken covers header parsing edge cases directly.
func TestBearerToken(t *testing.T) {
	cases := []struct {
		name   string
		header string
		want   string
		ok     bool
	}{
		{"empty", "", "", false},
		{"no scheme", "sometoken", "", false},
		{"wrong scheme", "Token abc", "", false},
		{"bearer", "Bearer abc.def.ghi", "abc.def.ghi", true},
		{"lowercase scheme", "bearer abc", "abc", true},
		{"scheme only", "Bearer ", "", false},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		got, ok := middleware.BearerToken(req)
		if ok != tc.ok || got != tc.want {
			t.Errorf("%s: BearerToken(%q) = (%q, %v), want (%q, %v)", tc.name, tc.header, got, ok, tc.want, tc.ok)
		}
	}
}

// TestAdminMiddleware_MissingUserID verifies that AdminMiddleware returns 401
// when no userID is present in the request context (i.e. AuthMiddleware did not run
// or injected nothing). This test does not require a database connection.
func TestAdminMiddleware_MissingUserID(t *testing.T) {
	// Pass a zero-value mockVerifier — AdminMiddleware doesn't use the verifier
	// for the missing-userID path.
	mw := middleware.AdminMiddleware(mockVerifier{})

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := mw(inner)
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	// Deliberately no userID in context.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "missing user ID") {
		t.Errorf("expected body to contain %q, got: %q", "missing user ID", body)
	}
}
