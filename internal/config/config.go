// Package config provides configuration management for the cliplens server.
// Configuration is loaded from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// Default values
	DefaultPort     = 8788
	DefaultLogLevel = "info"
	DefaultDataDir  = ".cliplens"

	// Environment variable names
	EnvPort     = "CLIPLENS_PORT"
	EnvLogLevel = "CLIPLENS_LOG_LEVEL"
	EnvDataDir  = "CLIPLENS_DATA_DIR"

	// Extraction service environment variable names
	EnvExtractorURL     = "CLIPLENS_EXTRACTOR_URL"
	EnvExtractorTimeout = "CLIPLENS_EXTRACTOR_TIMEOUT_S"

	// Queue environment variable names
	EnvAMQPURL     = "CLIPLENS_AMQP_URL"
	EnvQueueName   = "CLIPLENS_QUEUE_NAME"
	EnvWorkers     = "CLIPLENS_WORKERS"
	EnvMaxAttempts = "CLIPLENS_MAX_ATTEMPTS"
	EnvRetryDelay  = "CLIPLENS_RETRY_DELAY_S"

	// Blob store environment variable names
	EnvS3Endpoint  = "CLIPLENS_S3_ENDPOINT"
	EnvS3Region    = "CLIPLENS_S3_REGION"
	EnvS3AccessKey = "CLIPLENS_S3_ACCESS_KEY"
	EnvS3SecretKey = "CLIPLENS_S3_SECRET_KEY"
	EnvVideoBucket = "CLIPLENS_VIDEO_BUCKET"
	EnvFrameBucket = "CLIPLENS_FRAME_BUCKET"

	// Database filename
	DBFilename = "cliplens.db"

	// Pipeline defaults
	DefaultExtractorTimeout = 60 // seconds
	DefaultQueueName        = "video_segment_queue"
	DefaultWorkers          = 4
	DefaultMaxAttempts      = 3
	DefaultRetryDelay       = 10 // seconds
	DefaultS3Region         = "auto"
	DefaultVideoBucket      = "videos"
	DefaultFrameBucket      = "frames"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	ExtractorURL() string
	ExtractorTimeout() time.Duration
	AMQPURL() string
	QueueName() string
	Workers() int
	MaxAttempts() int
	RetryDelay() time.Duration
	S3Endpoint() string
	S3Region() string
	S3AccessKey() string
	S3SecretKey() string
	VideoBucket() string
	FrameBucket() string
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port     int
	logLevel string
	dataDir  string

	extractorURL     string
	extractorTimeout time.Duration

	amqpURL     string
	queueName   string
	workers     int
	maxAttempts int
	retryDelay  time.Duration

	s3Endpoint  string
	s3Region    string
	s3AccessKey string
	s3SecretKey string
	videoBucket string
	frameBucket string
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:             DefaultPort,
		logLevel:         DefaultLogLevel,
		dataDir:          defaultDataDir(),
		extractorTimeout: DefaultExtractorTimeout * time.Second,
		queueName:        DefaultQueueName,
		workers:          DefaultWorkers,
		maxAttempts:      DefaultMaxAttempts,
		retryDelay:       DefaultRetryDelay * time.Second,
		s3Region:         DefaultS3Region,
		videoBucket:      DefaultVideoBucket,
		frameBucket:      DefaultFrameBucket,
	}

	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	cfg.extractorURL = os.Getenv(EnvExtractorURL)

	if ts := os.Getenv(EnvExtractorTimeout); ts != "" {
		seconds, err := strconv.Atoi(ts)
		if err != nil || seconds < 1 {
			return nil, fmt.Errorf("invalid %s: must be a positive number of seconds", EnvExtractorTimeout)
		}
		cfg.extractorTimeout = time.Duration(seconds) * time.Second
	}

	cfg.amqpURL = os.Getenv(EnvAMQPURL)

	if qn := os.Getenv(EnvQueueName); qn != "" {
		cfg.queueName = qn
	}

	if w := os.Getenv(EnvWorkers); w != "" {
		workers, err := strconv.Atoi(w)
		if err != nil || workers < 1 {
			return nil, fmt.Errorf("invalid %s: must be a positive integer", EnvWorkers)
		}
		cfg.workers = workers
	}

	if ma := os.Getenv(EnvMaxAttempts); ma != "" {
		attempts, err := strconv.Atoi(ma)
		if err != nil || attempts < 1 {
			return nil, fmt.Errorf("invalid %s: must be a positive integer", EnvMaxAttempts)
		}
		cfg.maxAttempts = attempts
	}

	if rd := os.Getenv(EnvRetryDelay); rd != "" {
		seconds, err := strconv.Atoi(rd)
		if err != nil || seconds < 0 {
			return nil, fmt.Errorf("invalid %s: must be a non-negative number of seconds", EnvRetryDelay)
		}
		cfg.retryDelay = time.Duration(seconds) * time.Second
	}

	cfg.s3Endpoint = os.Getenv(EnvS3Endpoint)
	if r := os.Getenv(EnvS3Region); r != "" {
		cfg.s3Region = r
	}
	cfg.s3AccessKey = os.Getenv(EnvS3AccessKey)
	cfg.s3SecretKey = os.Getenv(EnvS3SecretKey)
	if b := os.Getenv(EnvVideoBucket); b != "" {
		cfg.videoBucket = b
	}
	if b := os.Getenv(EnvFrameBucket); b != "" {
		cfg.frameBucket = b
	}

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// ExtractorURL returns the frame extraction service base URL
func (c *EnvConfig) ExtractorURL() string {
	return c.extractorURL
}

// ExtractorTimeout returns the per-call timeout for the extraction service
func (c *EnvConfig) ExtractorTimeout() time.Duration {
	return c.extractorTimeout
}

// AMQPURL returns the RabbitMQ connection URL. Empty means the in-memory
// queue is used instead of a broker.
func (c *EnvConfig) AMQPURL() string {
	return c.amqpURL
}

// QueueName returns the segment job queue name
func (c *EnvConfig) QueueName() string {
	return c.queueName
}

// Workers returns the number of concurrent segment job workers
func (c *EnvConfig) Workers() int {
	return c.workers
}

// MaxAttempts returns the delivery attempt budget per segment job
func (c *EnvConfig) MaxAttempts() int {
	return c.maxAttempts
}

// RetryDelay returns the redelivery delay after a failed attempt
func (c *EnvConfig) RetryDelay() time.Duration {
	return c.retryDelay
}

func (c *EnvConfig) S3Endpoint() string {
	return c.s3Endpoint
}

func (c *EnvConfig) S3Region() string {
	return c.s3Region
}

func (c *EnvConfig) S3AccessKey() string {
	return c.s3AccessKey
}

func (c *EnvConfig) S3SecretKey() string {
	return c.s3SecretKey
}

func (c *EnvConfig) VideoBucket() string {
	return c.videoBucket
}

func (c *EnvConfig) FrameBucket() string {
	return c.frameBucket
}

// BlobEnabled reports whether an S3-compatible blob store is configured.
func (c *EnvConfig) BlobEnabled() bool {
	return c.s3Endpoint != "" && c.s3AccessKey != "" && c.s3SecretKey != ""
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
