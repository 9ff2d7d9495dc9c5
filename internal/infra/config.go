package infra

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`
	Port        string `envconfig:"PORT" default:"8080"`
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	AutoMigrate bool   `envconfig:"AUTO_MIGRATE" default:"true"`

	StorageDriver  string `envconfig:"STORAGE_DRIVER" default:"filesystem"`
	StoragePath    string `envconfig:"STORAGE_PATH" default:"./storage"`
	StorageBaseURL string `envconfig:"STORAGE_BASE_URL"`
	MinioEndpoint  string `envconfig:"MINIO_ENDPOINT"`
	MinioBucket    string `envconfig:"MINIO_BUCKET" default:"trip-images"`
	MinioAccessKey string `envconfig:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `envconfig:"MINIO_SECRET_KEY"`
	MinioUseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"true"`

	ImageProvider    string `envconfig:"IMAGE_PROVIDER"`
	GeminiAPIKey     string `envconfig:"GEMINI_API_KEY"`
	GeminiImageModel string `envconfig:"GEMINI_IMAGE_MODEL" default:"imagen-3.0-generate-002"`
	ImageAspectRatio string `envconfig:"IMAGE_ASPECT_RATIO" default:"16:9"`

	QueueMaxAttempts int           `envconfig:"QUEUE_MAX_ATTEMPTS" default:"3"`
	QueueBaseBackoff time.Duration `envconfig:"QUEUE_BASE_BACKOFF" default:"30s"`
	QueueMaxBackoff  time.Duration `envconfig:"QUEUE_MAX_BACKOFF" default:"10m"`
	QueueStaleAfter  time.Duration `envconfig:"QUEUE_STALE_AFTER" default:"10m"`

	WorkerID              string        `envconfig:"WORKER_ID"`
	WorkerConcurrency     int           `envconfig:"WORKER_CONCURRENCY" default:"1"`
	WorkerPollInterval    time.Duration `envconfig:"WORKER_POLL_INTERVAL" default:"15s"`
	WorkerGenerateTimeout time.Duration `envconfig:"WORKER_GENERATE_TIMEOUT" default:"90s"`
	WorkerUploadTimeout   time.Duration `envconfig:"WORKER_UPLOAD_TIMEOUT" default:"30s"`
	WorkerMaxJobs         int           `envconfig:"WORKER_MAX_JOBS" default:"0"`

	HTTPReadTimeoutSeconds  int `envconfig:"HTTP_READ_TIMEOUT_SECONDS" default:"15"`
	HTTPWriteTimeoutSeconds int `envconfig:"HTTP_WRITE_TIMEOUT_SECONDS" default:"30"`
	HTTPIdleTimeoutSeconds  int `envconfig:"HTTP_IDLE_TIMEOUT_SECONDS" default:"60"`
	RateLimitPerMin         int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"60"`

	HTTPReadTimeout  time.Duration `ignored:"true"`
	HTTPWriteTimeout time.Duration `ignored:"true"`
	HTTPIdleTimeout  time.Duration `ignored:"true"`
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// envconfig treats an empty PORT as set.
	if strings.TrimSpace(cfg.Port) == "" {
		cfg.Port = "8080"
	}
	// Object storage derives its URL from the endpoint and bucket.
	if strings.TrimSpace(cfg.StorageBaseURL) == "" && cfg.StorageDriver != "minio" {
		cfg.StorageBaseURL = "http://localhost:" + cfg.Port + "/static"
	}
	cfg.StorageBaseURL = strings.TrimRight(cfg.StorageBaseURL, "/")
	if cfg.WorkerID == "" {
		cfg.WorkerID = defaultWorkerID()
	}

	cfg.HTTPReadTimeout = time.Second * time.Duration(cfg.HTTPReadTimeoutSeconds)
	cfg.HTTPWriteTimeout = time.Second * time.Duration(cfg.HTTPWriteTimeoutSeconds)
	cfg.HTTPIdleTimeout = time.Second * time.Duration(cfg.HTTPIdleTimeoutSeconds)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	switch c.StorageDriver {
	case "filesystem":
	case "minio":
		if c.MinioEndpoint == "" {
			return fmt.Errorf("MINIO_ENDPOINT is required when STORAGE_DRIVER=minio")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.StorageDriver)
	}
	switch strings.ToLower(strings.TrimSpace(c.ImageProvider)) {
	case "", "gemini", "synthetic":
	default:
		return fmt.Errorf("unsupported IMAGE_PROVIDER %q", c.ImageProvider)
	}
	if c.QueueMaxAttempts < 1 {
		return fmt.Errorf("QUEUE_MAX_ATTEMPTS must be at least 1")
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}
	// A live claim must never look stale.
	if c.QueueStaleAfter <= c.WorkerGenerateTimeout+c.WorkerUploadTimeout {
		return fmt.Errorf("QUEUE_STALE_AFTER (%s) must exceed generate + upload timeouts (%s)",
			c.QueueStaleAfter, c.WorkerGenerateTimeout+c.WorkerUploadTimeout)
	}
	return nil
}

func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
