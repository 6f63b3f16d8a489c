package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Adedunmol/face-kiosk/logger"
	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
)

// Config holds everything the kiosk reads from the environment.
type Config struct {
	ServiceURL string `default:"http://127.0.0.1:8000"`
	ListenAddr string `default:":8080"`

	CameraDevice string `default:"/dev/video0"`
	CameraFormat string `default:"v4l2"`
	CameraWidth  int    `default:"640"`
	CameraHeight int    `default:"480"`

	ModelDir      string  `default:"models"`
	MinConfidence float64 `default:"0.9"`

	ReadyPollInterval time.Duration `default:"500ms"`
	// ReadyTimeout bounds the camera readiness poll. Zero waits forever.
	ReadyTimeout   time.Duration `default:"0s"`
	RequestTimeout time.Duration `default:"30s"`

	LogLevel string `default:"info"`

	CloudinaryURL string
	ArchiveFolder string `default:"face-kiosk"`
}

// Load reads .env (if present), applies defaults and then environment overrides.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Warning("could not load .env file, assuming environment variables are set")
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from defaults and the given lookup function.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply config defaults: %w", err)
	}

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("SERVICE_URL", &cfg.ServiceURL)
	str("LISTEN_ADDR", &cfg.ListenAddr)
	str("CAMERA_DEVICE", &cfg.CameraDevice)
	str("CAMERA_FORMAT", &cfg.CameraFormat)
	str("MODEL_DIR", &cfg.ModelDir)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("CLOUDINARY_URL", &cfg.CloudinaryURL)
	str("ARCHIVE_FOLDER", &cfg.ArchiveFolder)

	for key, dst := range map[string]*int{
		"CAMERA_WIDTH":  &cfg.CameraWidth,
		"CAMERA_HEIGHT": &cfg.CameraHeight,
	} {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = n
		}
	}

	if v, ok := lookup("MIN_CONFIDENCE"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid MIN_CONFIDENCE: %w", err)
		}
		cfg.MinConfidence = f
	}

	for key, dst := range map[string]*time.Duration{
		"READY_POLL_INTERVAL": &cfg.ReadyPollInterval,
		"READY_TIMEOUT":       &cfg.ReadyTimeout,
		"REQUEST_TIMEOUT":     &cfg.RequestTimeout,
	} {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("invalid %s (use '500ms', '2s'): %w", key, err)
			}
			*dst = d
		}
	}

	return cfg, cfg.Validate()
}

// Validate rejects values the kiosk cannot run with.
func (c *Config) Validate() error {
	if c.ServiceURL == "" {
		return fmt.Errorf("SERVICE_URL must not be empty")
	}
	if c.MinConfidence <= 0 || c.MinConfidence > 1.0 {
		return fmt.Errorf("MIN_CONFIDENCE must be between 0.0 and 1.0, got %f", c.MinConfidence)
	}
	if c.ReadyPollInterval <= 0 {
		return fmt.Errorf("READY_POLL_INTERVAL must be positive, got %s", c.ReadyPollInterval)
	}
	if c.CameraWidth < 1 || c.CameraHeight < 1 {
		return fmt.Errorf("camera dimensions must be positive, got %dx%d", c.CameraWidth, c.CameraHeight)
	}
	return nil
}
