package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"ignitiongate/internal/model"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	CameraSourceDevice = "device"
	CameraSourceUDP    = "udp"

	DetectorBackendDNN       = "dnn"
	DetectorBackendSimulated = "simulated"

	AuditBackendCSV    = "csv"
	AuditBackendSQLite = "sqlite"
)

type Config struct {
	Port         int    `yaml:"port"`
	Password     string `yaml:"password"`
	LogDirectory string `yaml:"log_dir"`

	CameraSource        string `yaml:"camera_source"`
	CameraID            int    `yaml:"camera_id"`
	CameraFallbackID    int    `yaml:"camera_fallback_id"`
	FrameWidth          int    `yaml:"frame_width"`
	FrameHeight         int    `yaml:"frame_height"`
	CaptureFPS          int    `yaml:"capture_fps"`
	CameraReadTimeoutMs int    `yaml:"camera_read_timeout_ms"`
	CaptureRetryMs      int    `yaml:"capture_retry_backoff_ms"`
	StopTimeoutMs       int    `yaml:"stop_timeout_ms"`
	DecisionIntervalMs  int    `yaml:"decision_interval_ms"`
	StreamIntervalMs    int    `yaml:"stream_interval_ms"`
	MaxFrameAgeMs       int    `yaml:"max_frame_age_ms"` // 0 disables the check
	JPEGQuality         int    `yaml:"jpeg_quality"`

	DetectorBackend   string  `yaml:"detector_backend"`
	ModelPath         string  `yaml:"model_path"`
	ConfigPath        string  `yaml:"config_path"`
	DetectionMinScore float64 `yaml:"detection_min_score"`
	IgnitionThreshold float64 `yaml:"ignition_threshold"`

	AuditBackend string `yaml:"audit_backend"`
	AuditPath    string `yaml:"audit_path"`

	EvidenceDirectory     string `yaml:"evidence_dir"`
	EvidenceBufferLimit   int    `yaml:"evidence_buffer_limit"`
	EvidenceFlushInterval int    `yaml:"evidence_flush_interval"` // seconds

	MQTTBroker   string `yaml:"mqtt_broker"`
	MQTTTopic    string `yaml:"mqtt_topic"`
	MQTTClientID string `yaml:"mqtt_client_id"`

	MetricsEnabled bool `yaml:"metrics_enabled"`
}

// Default returns the built-in settings used when nothing overrides them.
func Default() *Config {
	return &Config{
		Port:                  8080,
		Password:              "ignition",
		LogDirectory:          filepath.Join(".", "logs"),
		CameraSource:          CameraSourceDevice,
		CameraID:              0,
		CameraFallbackID:      1,
		FrameWidth:            640,
		FrameHeight:           480,
		CaptureFPS:            30,
		CameraReadTimeoutMs:   1000,
		CaptureRetryMs:        100,
		StopTimeoutMs:         2000,
		DecisionIntervalMs:    500, // twice per second
		StreamIntervalMs:      100,
		MaxFrameAgeMs:         2000,
		JPEGQuality:           85,
		DetectorBackend:       DetectorBackendDNN,
		ModelPath:             filepath.Join(".", "models", "frozen_inference_graph.pb"),
		ConfigPath:            filepath.Join(".", "models", "ssd_mobilenet_v1_coco_2017_11_17.pbtxt"),
		DetectionMinScore:     0.5,
		IgnitionThreshold:     0.5,
		AuditBackend:          AuditBackendCSV,
		AuditPath:             "detection_logs.csv",
		EvidenceDirectory:     "",
		EvidenceBufferLimit:   10,
		EvidenceFlushInterval: 30,
		MQTTTopic:             "vehicle/ignition",
		MQTTClientID:          "ignitiongate",
		MetricsEnabled:        true,
	}
}

// Load builds the configuration from defaults, an optional YAML file, an
// optional .env file and the process environment, in that order of
// precedence (later wins), and validates the result.
func Load(envFile, yamlFile string) (*Config, error) {
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	cfg := Default()

	if yamlFile == "" {
		yamlFile = os.Getenv("CONFIG_FILE")
	}
	if yamlFile != "" {
		if err := cfg.mergeYAML(yamlFile); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFile loads KEY=VALUE pairs without overriding variables that are
// already set. A missing default .env is not an error; a missing explicit one is.
func loadEnvFile(envFile string) error {
	if envFile == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to read .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("failed to read env file %s: %w", envFile, err)
	}
	return nil
}

func (c *Config) mergeYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return &model.ConfigurationError{Key: "CONFIG_FILE", Value: path, Reason: err.Error()}
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnvAsInt("PORT", c.Port)
	c.Password = getEnv("PASSWORD", c.Password)
	c.LogDirectory = getEnv("LOG_DIR", c.LogDirectory)

	c.CameraSource = getEnv("CAMERA_SOURCE", c.CameraSource)
	c.CameraID = getEnvAsInt("CAMERA_ID", c.CameraID)
	c.CameraFallbackID = getEnvAsInt("CAMERA_FALLBACK_ID", c.CameraFallbackID)
	c.FrameWidth = getEnvAsInt("FRAME_WIDTH", c.FrameWidth)
	c.FrameHeight = getEnvAsInt("FRAME_HEIGHT", c.FrameHeight)
	c.CaptureFPS = getEnvAsInt("CAPTURE_FPS", c.CaptureFPS)
	c.CameraReadTimeoutMs = getEnvAsInt("CAMERA_READ_TIMEOUT_MS", c.CameraReadTimeoutMs)
	c.CaptureRetryMs = getEnvAsInt("CAPTURE_RETRY_BACKOFF_MS", c.CaptureRetryMs)
	c.StopTimeoutMs = getEnvAsInt("STOP_TIMEOUT_MS", c.StopTimeoutMs)
	c.DecisionIntervalMs = getEnvAsInt("DECISION_INTERVAL_MS", c.DecisionIntervalMs)
	c.StreamIntervalMs = getEnvAsInt("STREAM_INTERVAL_MS", c.StreamIntervalMs)
	c.MaxFrameAgeMs = getEnvAsInt("MAX_FRAME_AGE_MS", c.MaxFrameAgeMs)
	c.JPEGQuality = getEnvAsInt("JPEG_QUALITY", c.JPEGQuality)

	c.DetectorBackend = getEnv("DETECTOR_BACKEND", c.DetectorBackend)
	c.ModelPath = getEnv("MODEL_PATH", c.ModelPath)
	c.ConfigPath = getEnv("CONFIG_PATH", c.ConfigPath)
	c.DetectionMinScore = getEnvAsFloat("DETECTION_MIN_SCORE", c.DetectionMinScore)
	c.IgnitionThreshold = getEnvAsFloat("IGNITION_THRESHOLD", c.IgnitionThreshold)

	c.AuditBackend = getEnv("AUDIT_BACKEND", c.AuditBackend)
	c.AuditPath = getEnv("AUDIT_PATH", c.AuditPath)

	c.EvidenceDirectory = getEnv("EVIDENCE_DIR", c.EvidenceDirectory)
	c.EvidenceBufferLimit = getEnvAsInt("EVIDENCE_BUFFER_LIMIT", c.EvidenceBufferLimit)
	c.EvidenceFlushInterval = getEnvAsInt("EVIDENCE_FLUSH_INTERVAL", c.EvidenceFlushInterval)

	c.MQTTBroker = getEnv("MQTT_BROKER", c.MQTTBroker)
	c.MQTTTopic = getEnv("MQTT_TOPIC", c.MQTTTopic)
	c.MQTTClientID = getEnv("MQTT_CLIENT_ID", c.MQTTClientID)

	c.MetricsEnabled = getEnvAsBool("METRICS_ENABLED", c.MetricsEnabled)
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	positive := []struct {
		key   string
		value int
	}{
		{"PORT", c.Port},
		{"FRAME_WIDTH", c.FrameWidth},
		{"FRAME_HEIGHT", c.FrameHeight},
		{"CAPTURE_FPS", c.CaptureFPS},
		{"CAMERA_READ_TIMEOUT_MS", c.CameraReadTimeoutMs},
		{"CAPTURE_RETRY_BACKOFF_MS", c.CaptureRetryMs},
		{"STOP_TIMEOUT_MS", c.StopTimeoutMs},
		{"DECISION_INTERVAL_MS", c.DecisionIntervalMs},
		{"STREAM_INTERVAL_MS", c.StreamIntervalMs},
		{"EVIDENCE_BUFFER_LIMIT", c.EvidenceBufferLimit},
		{"EVIDENCE_FLUSH_INTERVAL", c.EvidenceFlushInterval},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return &model.ConfigurationError{Key: p.key, Value: p.value, Reason: "must be positive"}
		}
	}

	if c.MaxFrameAgeMs < 0 {
		return &model.ConfigurationError{Key: "MAX_FRAME_AGE_MS", Value: c.MaxFrameAgeMs, Reason: "must not be negative"}
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return &model.ConfigurationError{Key: "JPEG_QUALITY", Value: c.JPEGQuality, Reason: "must be within 1..100"}
	}
	if c.IgnitionThreshold <= 0 || c.IgnitionThreshold >= 1 {
		return &model.ConfigurationError{Key: "IGNITION_THRESHOLD", Value: c.IgnitionThreshold, Reason: "must be within (0,1)"}
	}
	if c.DetectionMinScore <= 0 || c.DetectionMinScore >= 1 {
		return &model.ConfigurationError{Key: "DETECTION_MIN_SCORE", Value: c.DetectionMinScore, Reason: "must be within (0,1)"}
	}

	switch c.CameraSource {
	case CameraSourceDevice, CameraSourceUDP:
	default:
		return &model.ConfigurationError{Key: "CAMERA_SOURCE", Value: c.CameraSource, Reason: "expected device or udp"}
	}
	switch c.DetectorBackend {
	case DetectorBackendDNN:
		if c.ModelPath == "" || c.ConfigPath == "" {
			return &model.ConfigurationError{Key: "MODEL_PATH", Value: c.ModelPath, Reason: "dnn backend needs MODEL_PATH and CONFIG_PATH"}
		}
	case DetectorBackendSimulated:
	default:
		return &model.ConfigurationError{Key: "DETECTOR_BACKEND", Value: c.DetectorBackend, Reason: "expected dnn or simulated"}
	}
	switch c.AuditBackend {
	case AuditBackendCSV, AuditBackendSQLite:
	default:
		return &model.ConfigurationError{Key: "AUDIT_BACKEND", Value: c.AuditBackend, Reason: "expected csv or sqlite"}
	}
	if c.AuditPath == "" {
		return &model.ConfigurationError{Key: "AUDIT_PATH", Value: c.AuditPath, Reason: "must not be empty"}
	}
	if c.LogDirectory == "" {
		return &model.ConfigurationError{Key: "LOG_DIR", Value: c.LogDirectory, Reason: "must not be empty"}
	}
	if c.MQTTBroker != "" && c.MQTTTopic == "" {
		return &model.ConfigurationError{Key: "MQTT_TOPIC", Value: c.MQTTTopic, Reason: "required when MQTT_BROKER is set"}
	}
	return nil
}

func (c *Config) MaxFrameAge() time.Duration {
	return time.Duration(c.MaxFrameAgeMs) * time.Millisecond
}

func (c *Config) CameraReadTimeout() time.Duration {
	return time.Duration(c.CameraReadTimeoutMs) * time.Millisecond
}

func (c *Config) CaptureRetryBackoff() time.Duration {
	return time.Duration(c.CaptureRetryMs) * time.Millisecond
}

func (c *Config) StopTimeout() time.Duration {
	return time.Duration(c.StopTimeoutMs) * time.Millisecond
}

func (c *Config) DecisionInterval() time.Duration {
	return time.Duration(c.DecisionIntervalMs) * time.Millisecond
}

func (c *Config) StreamInterval() time.Duration {
	return time.Duration(c.StreamIntervalMs) * time.Millisecond
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
