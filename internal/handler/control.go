package handler

import (
	"errors"
	"net/http"

	"ignitiongate/internal/logger"
	"ignitiongate/internal/model"
)

const (
	defaultLogCount   = 20
	defaultAuditLimit = 50
	maxAuditLimit     = 1000
)

type commandResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StartHandler handles POST /api/start.
func StartHandler(system System, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := system.Start(); err != nil {
			logger.Error("Start requested by %s failed: %v", r.RemoteAddr, err)
			code := http.StatusInternalServerError
			if errors.Is(err, model.ErrDeviceUnavailable) {
				code = http.StatusServiceUnavailable
			}
			writeJSON(w, code, commandResponse{Success: false, Error: err.Error()})
			return
		}

		logger.Info("System started by %s", r.RemoteAddr)
		writeJSON(w, http.StatusOK, commandResponse{Success: true, Message: "Ignition gate started"})
	}
}

// StopHandler handles POST /api/stop.
func StopHandler(system System, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := system.Stop(); err != nil {
			logger.Warning("Stop requested by %s did not complete cleanly: %v", r.RemoteAddr, err)
			writeJSON(w, http.StatusOK, commandResponse{Success: true, Message: "System stopped", Error: err.Error()})
			return
		}

		logger.Info("System stopped by %s", r.RemoteAddr)
		writeJSON(w, http.StatusOK, commandResponse{Success: true, Message: "System stopped"})
	}
}

// StatusHandler handles GET /api/status with the current snapshot.
func StatusHandler(system System) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, system.Status())
	}
}

// ToggleOverrideHandler handles POST /api/toggle_override.
func ToggleOverrideHandler(system System, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		override, message := system.ToggleOverride()
		logger.Warning("%s (requested by %s)", message, r.RemoteAddr)
		writeJSON(w, http.StatusOK, struct {
			Override bool   `json:"override"`
			Message  string `json:"message"`
		}{override, message})
	}
}

// LogsHandler handles GET /api/logs?count=N with the in-memory decision log.
func LogsHandler(system System) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logs := system.RecentLogs(atoiDefault(r.URL.Query().Get("count"), defaultLogCount))
		writeJSON(w, http.StatusOK, struct {
			Logs  []string `json:"logs"`
			Count int      `json:"count"`
		}{logs, len(logs)})
	}
}

// AuditHandler handles GET /api/audit?limit=N with durable audit records.
func AuditHandler(system System, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := min(atoiDefault(r.URL.Query().Get("limit"), defaultAuditLimit), maxAuditLimit)

		records, err := system.AuditTrail(limit)
		if err != nil {
			logger.Error("Failed to read audit trail: %v", err)
			writeJSON(w, http.StatusInternalServerError, commandResponse{Success: false, Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Records []model.AuditRecord `json:"records"`
			Count   int                 `json:"count"`
		}{records, len(records)})
	}
}
