package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionCookie is the cookie carrying the session token.
const SessionCookie = "session"

// Sessions holds issued session tokens in memory; a restart logs everyone out.
type Sessions struct {
	ttl    time.Duration
	now    func() time.Time
	mu     sync.Mutex
	tokens map[string]time.Time // token -> expiry
}

func NewSessions(ttl time.Duration) *Sessions {
	return &Sessions{ttl: ttl, now: time.Now, tokens: make(map[string]time.Time)}
}

func (s *Sessions) TTL() time.Duration {
	return s.ttl
}

// Issue creates a new random token.
func (s *Sessions) Issue() string {
	token := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for t, exp := range s.tokens {
		if now.After(exp) {
			delete(s.tokens, t)
		}
	}
	s.tokens[token] = now.Add(s.ttl)
	return token
}

func (s *Sessions) Valid(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.tokens[token]
	return ok && s.now().Before(exp)
}

func (s *Sessions) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// publicPath reports paths served without a session.
func publicPath(path string) bool {
	return path == "/login" ||
		path == "/auth/login" ||
		path == "/metrics" ||
		strings.HasPrefix(path, "/static/")
}

// AuthMiddleware requires a valid session cookie. API and websocket requests
// without one get 401, page requests are redirected to the login page.
func AuthMiddleware(sessions *Sessions, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(SessionCookie)
		if err != nil || !sessions.Valid(cookie.Value) {
			if strings.HasPrefix(r.URL.Path, "/api/") ||
				r.Header.Get("X-Requested-With") == "XMLHttpRequest" ||
				r.Header.Get("Content-Type") == "application/json" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}
