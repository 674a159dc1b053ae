package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"ignitiongate/internal/model"
)

// System is the pipeline as the HTTP layer sees it; *service.Manager
// implements it.
type System interface {
	Start() error
	Stop() error
	Status() model.SystemStatus
	LatestEncodedFrame() ([]byte, error)
	ToggleOverride() (bool, string)
	RecentLogs(n int) []string
	AuditTrail(limit int) ([]model.AuditRecord, error)
}

// writeJSON sends v with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// atoiDefault parses a positive integer, returning def otherwise.
func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
