package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	sessions := NewSessions(time.Hour)
	valid := sessions.Issue()
	h := AuthMiddleware(sessions, okHandler())

	tests := []struct {
		name   string
		path   string
		cookie string
		want   int
	}{
		{"login page is public", "/login", "", http.StatusOK},
		{"metrics are public", "/metrics", "", http.StatusOK},
		{"static files are public", "/static/app.js", "", http.StatusOK},
		{"api without session", "/api/status", "", http.StatusUnauthorized},
		{"page without session", "/", "", http.StatusSeeOther},
		{"forged cookie", "/api/status", "true", http.StatusUnauthorized},
		{"valid session", "/api/status", valid, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookie, Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("%s: got %d, want %d", tt.path, rec.Code, tt.want)
			}
		})
	}
}

func TestSessions_ExpiryAndRevoke(t *testing.T) {
	s := NewSessions(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	token := s.Issue()
	if !s.Valid(token) {
		t.Fatal("Fresh token should be valid")
	}

	now = now.Add(2 * time.Minute)
	if s.Valid(token) {
		t.Error("Expired token should be rejected")
	}

	other := s.Issue()
	s.Revoke(other)
	if s.Valid(other) {
		t.Error("Revoked token should be rejected")
	}
}
