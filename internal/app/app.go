package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ignitiongate/internal/config"
	"ignitiongate/internal/logger"
	"ignitiongate/internal/metrics"
	"ignitiongate/internal/middleware"
	"ignitiongate/internal/model"
	"ignitiongate/internal/repository"
	"ignitiongate/internal/repository/csvfile"
	"ignitiongate/internal/repository/sqlite"
	"ignitiongate/internal/route"
	"ignitiongate/internal/service"
	"ignitiongate/internal/service/actuator"
	"ignitiongate/internal/service/ai"
	"ignitiongate/internal/service/ai/dnn"
	"ignitiongate/internal/service/camera"
	"ignitiongate/internal/service/camera/opencv"
	"ignitiongate/internal/service/control"
	"ignitiongate/internal/service/evidence"
	"ignitiongate/internal/service/status"
	"ignitiongate/internal/service/websocket"

	"golang.org/x/sync/errgroup"
)

const (
	sessionTTL      = 30 * 24 * time.Hour
	shutdownTimeout = 5 * time.Second
)

type App struct {
	config   *config.Config
	logger   *logger.Logger
	manager  *service.Manager
	hub      *websocket.Hub
	evidence *evidence.Buffer
	server   *http.Server
}

// NewApp builds every component from cfg. Nothing is started; the camera is
// opened only when the system is started through the API.
func NewApp(cfg *config.Config) (*App, error) {
	log, err := logger.NewLogger(cfg.LogDirectory)
	if err != nil {
		return nil, err
	}

	a, err := build(cfg, log)
	if err != nil {
		log.Error("Startup failed: %v", err)
		log.Close()
		return nil, err
	}
	return a, nil
}

func build(cfg *config.Config, log *logger.Logger) (*App, error) {
	audit, err := openAudit(cfg)
	if err != nil {
		return nil, err
	}

	unit, err := control.NewUnit(audit, cfg.IgnitionThreshold, log)
	if err != nil {
		audit.Close()
		return nil, err
	}

	detector := newDetector(cfg, log)

	act, err := newActuator(cfg, log)
	if err != nil {
		audit.Close()
		detector.Close()
		return nil, err
	}

	encoder := opencv.JPEGEncoder{Quality: cfg.JPEGQuality, Width: cfg.FrameWidth, Height: cfg.FrameHeight}
	opener := opencv.OpenDevice
	if cfg.CameraSource == config.CameraSourceUDP {
		opener = camera.OpenUDP
	}
	frames := camera.NewFrameSource(opener, encoder, camera.Options{
		Source:     cfg.CameraSource,
		PrimaryID:  cfg.CameraID,
		FallbackID: cfg.CameraFallbackID,
		Settings: camera.Settings{
			Width:       cfg.FrameWidth,
			Height:      cfg.FrameHeight,
			FPS:         cfg.CaptureFPS,
			ReadTimeout: cfg.CameraReadTimeout(),
		},
		RetryBackoff: cfg.CaptureRetryBackoff(),
		StopTimeout:  cfg.StopTimeout(),
	}, log)

	publisher := status.NewPublisher()
	hub := websocket.NewHub(log)

	var buffer *evidence.Buffer
	if cfg.EvidenceDirectory != "" {
		buffer = evidence.NewBuffer(cfg.EvidenceDirectory, cfg.EvidenceBufferLimit, log)
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
		m.RegisterStatus(publisher.Current)
	}

	manager, err := service.NewManager(service.Dependencies{
		Camera:   frames,
		Encoder:  encoder,
		Detector: detector,
		Control:  unit,
		Status:   publisher,
		Actuator: act,
		Audit:    audit,
		Hub:      hub,
		Evidence: buffer,
		Metrics:  m,
	}, service.Options{
		DecisionInterval: cfg.DecisionInterval(),
		StreamInterval:   cfg.StreamInterval(),
		StopTimeout:      cfg.StopTimeout(),
		MaxFrameAge:      cfg.MaxFrameAge(),
	}, log)
	if err != nil {
		audit.Close()
		detector.Close()
		act.Close()
		return nil, err
	}

	sessions := middleware.NewSessions(sessionTTL)
	router := route.SetupRoutes(manager, hub, sessions, cfg, log, m)

	return &App{
		config:   cfg,
		logger:   log,
		manager:  manager,
		hub:      hub,
		evidence: buffer,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func openAudit(cfg *config.Config) (repository.AuditRepository, error) {
	if cfg.AuditBackend == config.AuditBackendSQLite {
		return sqlite.Open(cfg.AuditPath)
	}
	return csvfile.New(cfg.AuditPath)
}

// newDetector loads the configured backend. A model that fails to load
// degrades to the fallback detector rather than aborting startup.
func newDetector(cfg *config.Config, log *logger.Logger) ai.Detector {
	if cfg.DetectorBackend == config.DetectorBackendSimulated {
		log.Info("Using simulated detector")
		return ai.NewSimulatedDetector()
	}

	d, err := dnn.NewDetector(cfg.ModelPath, cfg.ConfigPath, cfg.DetectionMinScore, log)
	if err != nil {
		if errors.Is(err, model.ErrModelLoad) {
			log.Warning("Falling back to simulated detection: %v", err)
		} else {
			log.Error("Detector setup failed, using fallback: %v", err)
		}
		return ai.NewFallbackDetector()
	}
	return d
}

func newActuator(cfg *config.Config, log *logger.Logger) (actuator.Actuator, error) {
	if cfg.MQTTBroker == "" {
		return actuator.NewLogActuator(log), nil
	}
	return actuator.NewMQTTActuator(actuator.MQTTOptions{
		Broker:   cfg.MQTTBroker,
		Topic:    cfg.MQTTTopic,
		ClientID: cfg.MQTTClientID,
	}, log)
}

// Run serves HTTP and the background tasks until ctx is cancelled, then
// shuts everything down and releases the camera, detector and audit store.
func (a *App) Run(ctx context.Context) error {
	fmt.Printf("🚗 Ignition Gate\n")
	fmt.Printf("📍 URL: http://localhost:%d\n", a.config.Port)
	fmt.Printf("📷 Camera: %s %d (fallback %d)\n", a.config.CameraSource, a.config.CameraID, a.config.CameraFallbackID)
	fmt.Printf("🤖 Detector: %s\n", a.config.DetectorBackend)
	fmt.Printf("📝 Audit: %s %s\n", a.config.AuditBackend, a.config.AuditPath)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.hub.Run(gctx) })
	if a.evidence != nil {
		interval := time.Duration(a.config.EvidenceFlushInterval) * time.Second
		g.Go(func() error { return a.evidence.Run(gctx, interval) })
	}
	g.Go(func() error {
		a.logger.Info("Listening on %s", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return route.Shutdown(shutdownCtx, a.server, a.manager)
	})

	err := g.Wait()
	if closeErr := a.manager.Close(); closeErr != nil {
		a.logger.Warning("Shutdown: %v", closeErr)
	}
	if a.evidence != nil {
		if _, flushErr := a.evidence.Flush(); flushErr != nil {
			a.logger.Error("Evidence flush on shutdown failed: %v", flushErr)
		}
	}
	a.logger.Info("Ignition gate stopped")
	a.logger.Close()
	return err
}
