package route

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"ignitiongate/internal/config"
	"ignitiongate/internal/handler"
	"ignitiongate/internal/logger"
	"ignitiongate/internal/metrics"
	"ignitiongate/internal/middleware"
	"ignitiongate/internal/service/websocket"
)

// dynamicHTMLHandler serves /path as /static/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if path == "/" {
		path = "/index"
	}

	filePath := filepath.Join("static", filepath.Clean(path)+".html")

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, filePath)
}

// SetupRoutes registers the control API, the video endpoints, log and auth
// endpoints, and wraps the mux with the authentication middleware.
func SetupRoutes(system handler.System, hub *websocket.Hub, sessions *middleware.Sessions,
	cfg *config.Config, log *logger.Logger, m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir("static"))))

	// Control API
	mux.HandleFunc("/api/start", handler.StartHandler(system, log))
	mux.HandleFunc("/api/stop", handler.StopHandler(system, log))
	mux.HandleFunc("/api/status", handler.StatusHandler(system))
	mux.HandleFunc("/api/toggle_override", handler.ToggleOverrideHandler(system, log))
	mux.HandleFunc("/api/logs", handler.LogsHandler(system))
	mux.HandleFunc("/api/audit", handler.AuditHandler(system, log))

	// Video
	mux.HandleFunc("/video_feed", handler.VideoFeedHandler(system, log))
	mux.HandleFunc("/camera_feed", handler.CameraFeedHandler(system))
	mux.HandleFunc("/api/view", handler.ViewWebsocketHandler(hub, log))

	// Log endpoints
	for _, name := range []struct{ path, file string }{
		{"/logs/info", logger.InfoFile},
		{"/logs/warning", logger.WarningFile},
		{"/logs/error", logger.ErrorFile},
	} {
		mux.HandleFunc(name.path, handler.ShowLogsHandler(log, name.file))
		mux.HandleFunc(name.path+"/clear", handler.ClearLogsHandler(log, name.file))
	}

	// Auth endpoints
	mux.HandleFunc("/auth/login", handler.LoginHandler(cfg, sessions, log))
	mux.HandleFunc("/auth/logout", handler.LogoutHandler(sessions))

	if cfg.MetricsEnabled {
		mux.Handle("/metrics", m.Handler())
	}

	// Automatic HTML handler mapping for example: /settings -> /static/settings.html
	mux.HandleFunc("/", dynamicHTMLHandler)

	return middleware.AuthMiddleware(sessions, mux)
}

// Shutdown stops the system first, so streaming handlers see it inactive and
// return, then drains the server within ctx.
func Shutdown(ctx context.Context, server *http.Server, system handler.System) error {
	stopErr := system.Stop()
	return errors.Join(stopErr, server.Shutdown(ctx))
}
