package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap/zaptest"
)

// stubVerifier принимает единственную пару user/token
type stubVerifier struct {
	userID int64
	token  string
}

func (v *stubVerifier) VerifyToken(userID int64, token string) error {
	if userID == v.userID && token == v.token {
		return nil
	}
	return errors.New("invalid API token")
}

func authTestHandler(t *testing.T, gotUserID *int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserIDFromContext(r.Context())
		if !ok {
			t.Error("user id missing from context")
		}
		*gotUserID = userID
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthValidToken(t *testing.T) {
	verifier := &stubVerifier{userID: 7, token: "secret-token"}
	var gotUserID int64
	handler := Auth(verifier, zaptest.NewLogger(t))(authTestHandler(t, &gotUserID))

	r := httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil)
	r.Header.Set("X-User-ID", "7")
	r.Header.Set("Authorization", "Bearer secret-token")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if gotUserID != 7 {
		t.Errorf("expected user id 7 in context, got %d", gotUserID)
	}
}

func TestAuthRejects(t *testing.T) {
	verifier := &stubVerifier{userID: 7, token: "secret-token"}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not be called")
	})
	handler := Auth(verifier, zaptest.NewLogger(t))(next)

	tests := []struct {
		name   string
		userID string
		auth   string
	}{
		{"без заголовков", "", ""},
		{"нечисловой user id", "seven", "Bearer secret-token"},
		{"нулевой user id", "0", "Bearer secret-token"},
		{"без схемы Bearer", "7", "secret-token"},
		{"пустой токен", "7", "Bearer "},
		{"неверный токен", "7", "Bearer wrong-token"},
		{"чужой user id", "8", "Bearer secret-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil)
			if tt.userID != "" {
				r.Header.Set("X-User-ID", tt.userID)
			}
			if tt.auth != "" {
				r.Header.Set("Authorization", tt.auth)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, r)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected status 401, got %d", rec.Code)
			}
		})
	}
}

func TestUserIDFromContextMissing(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := UserIDFromContext(r.Context()); ok {
		t.Error("expected no user id in fresh context")
	}
}
