package route

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"ignitiongate/internal/config"
	"ignitiongate/internal/logger"
	"ignitiongate/internal/metrics"
	"ignitiongate/internal/middleware"
	"ignitiongate/internal/model"
	"ignitiongate/internal/service/websocket"
)

type idleSystem struct{}

func (idleSystem) Start() error                                { return nil }
func (idleSystem) Stop() error                                 { return nil }
func (idleSystem) Status() model.SystemStatus                  { return model.SystemStatus{Message: "idle"} }
func (idleSystem) LatestEncodedFrame() ([]byte, error)         { return nil, model.ErrNoFrame }
func (idleSystem) ToggleOverride() (bool, string)              { return true, "Safety override: ON" }
func (idleSystem) RecentLogs(n int) []string                   { return nil }
func (idleSystem) AuditTrail(int) ([]model.AuditRecord, error) { return nil, nil }

func newServer(t *testing.T, metricsEnabled bool) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.Password = "pw"
	cfg.MetricsEnabled = metricsEnabled

	var m *metrics.Metrics
	if metricsEnabled {
		m = metrics.New()
	}
	log := logger.Discard()
	srv := httptest.NewServer(SetupRoutes(idleSystem{}, websocket.NewHub(log), middleware.NewSessions(time.Hour), cfg, log, m))
	t.Cleanup(srv.Close)
	return srv
}

func noRedirectClient(jar http.CookieJar) *http.Client {
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func TestRoutes_RequireSession(t *testing.T) {
	srv := newServer(t, true)
	client := noRedirectClient(nil)

	tests := []struct {
		path     string
		wantCode int
	}{
		{"/api/status", http.StatusUnauthorized},
		{"/api/logs", http.StatusUnauthorized},
		{"/video_feed", http.StatusSeeOther},
		{"/", http.StatusSeeOther},
		{"/metrics", http.StatusOK},
	}
	for _, tt := range tests {
		resp, err := client.Get(srv.URL + tt.path)
		if err != nil {
			t.Fatalf("GET %s: %v", tt.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.wantCode {
			t.Errorf("GET %s = %d, want %d", tt.path, resp.StatusCode, tt.wantCode)
		}
	}
}

func TestRoutes_LoginThenAPI(t *testing.T) {
	srv := newServer(t, false)
	jar, _ := cookiejar.New(nil)
	client := noRedirectClient(jar)

	resp, err := client.PostForm(srv.URL+"/auth/login", url.Values{"password": {"pw"}})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("login = %d", resp.StatusCode)
	}

	resp, err = client.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d with session", resp.StatusCode)
	}

	resp2, err := client.Post(srv.URL+"/api/toggle_override", "text/plain", strings.NewReader(""))
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("toggle = %d", resp2.StatusCode)
	}

	resp3, err := client.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusNotFound {
		t.Errorf("metrics disabled = %d, want 404", resp3.StatusCode)
	}
}

// streamingSystem is active until stopped and always has a frame.
type streamingSystem struct {
	idleSystem
	active atomic.Bool
}

func (s *streamingSystem) Stop() error {
	s.active.Store(false)
	return nil
}

func (s *streamingSystem) Status() model.SystemStatus {
	return model.SystemStatus{Active: s.active.Load()}
}

func (s *streamingSystem) LatestEncodedFrame() ([]byte, error) {
	return []byte{0xFF, 0xD8, 0xFF, 0xD9}, nil
}

func TestShutdown_EndsOpenVideoStreams(t *testing.T) {
	sys := &streamingSystem{}
	sys.active.Store(true)

	cfg := config.Default()
	cfg.Password = "pw"
	cfg.MetricsEnabled = false
	log := logger.Discard()
	sessions := middleware.NewSessions(time.Hour)
	srv := httptest.NewServer(SetupRoutes(sys, websocket.NewHub(log), sessions, cfg, log, nil))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/video_feed", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: sessions.Issue()})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("video_feed: %v", err)
	}
	defer resp.Body.Close()
	if _, err := bufio.NewReader(resp.Body).ReadString('\n'); err != nil {
		t.Fatalf("No stream data: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	if err := Shutdown(ctx, srv.Config, sys); err != nil {
		t.Fatalf("Shutdown failed after %v: %v", time.Since(start), err)
	}
	if sys.active.Load() {
		t.Error("Shutdown should stop the system")
	}
}
