package handler

import (
	"crypto/subtle"
	"net/http"

	"ignitiongate/internal/config"
	"ignitiongate/internal/logger"
	"ignitiongate/internal/middleware"
)

// LoginHandler handles POST /auth/login by validating the password and
// issuing a session cookie.
func LoginHandler(cfg *config.Config, sessions *middleware.Sessions, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		password := r.FormValue("password")
		if subtle.ConstantTimeCompare([]byte(password), []byte(cfg.Password)) != 1 {
			logger.Warning("Failed login from %s", r.RemoteAddr)
			http.Error(w, "Invalid password", http.StatusUnauthorized)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     middleware.SessionCookie,
			Value:    sessions.Issue(),
			Path:     "/",
			MaxAge:   int(sessions.TTL().Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
		})
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// LogoutHandler revokes the session and redirects to the login page.
func LogoutHandler(sessions *middleware.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(middleware.SessionCookie); err == nil {
			sessions.Revoke(cookie.Value)
		}

		http.SetCookie(w, &http.Cookie{
			Name:   middleware.SessionCookie,
			Value:  "",
			Path:   "/",
			MaxAge: -1,
		})
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	}
}
