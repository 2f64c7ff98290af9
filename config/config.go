package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"propflow/models"
)

type Config struct {
	Propflow  PropflowConfig  `yaml:"propflow"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Processor ProcessorConfig `yaml:"processor"`
	Engine    EngineConfig    `yaml:"engine"`
	Server    ServerConfig    `yaml:"server"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Mirror    MirrorConfig    `yaml:"mirror"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
	Ops       OpsConfig       `yaml:"ops"`
}

type PropflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ChannelsConfig struct {
	RawBuffer       int           `yaml:"raw_buffer"`
	BatchBuffer     int           `yaml:"batch_buffer"`
	UpdateBuffer    int           `yaml:"update_buffer"`
	ReportBuffer    int           `yaml:"report_buffer"`
	MetricsInterval time.Duration `yaml:"metrics_interval"`
}

type IngestConfig struct {
	Interval       time.Duration        `yaml:"interval"`
	CycleTimeout   time.Duration        `yaml:"cycle_timeout"`
	Timeout        time.Duration        `yaml:"timeout"`
	Feeds          FeedsConfig          `yaml:"feeds"`
	Performance    PerformanceConfig    `yaml:"performance"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	Retry          RetryConfig          `yaml:"retry"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
}

// FeedsConfig locates the predictor's per-sport prediction feeds. Mode "file"
// reads predictions_<sport>.json files under Dir; mode "http" fetches
// <url>/predictions/<sport>.
type FeedsConfig struct {
	Mode   string   `yaml:"mode"`
	Dir    string   `yaml:"dir"`
	URL    string   `yaml:"url"`
	Sports []string `yaml:"sports"`
}

// PerformanceConfig locates the monitoring process's performance report. Path
// is a file path in file mode and a URL path in http mode.
type PerformanceConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Path     string        `yaml:"path"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type ProcessorConfig struct {
	MaxWorkers int `yaml:"max_workers"`
}

// EngineConfig bounds list queries at the HTTP boundary.
type EngineConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

type ServerConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type ArchiveConfig struct {
	Enabled      bool               `yaml:"enabled"`
	MaxWorkers   int                `yaml:"max_workers"`
	LocalDir     string             `yaml:"local_dir"`
	Buffer       BufferConfig       `yaml:"buffer"`
	Partitioning PartitioningConfig `yaml:"partitioning"`
	Parquet      ParquetConfig      `yaml:"parquet"`
}

type BufferConfig struct {
	MaxRows       int           `yaml:"max_rows"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// PartitioningConfig shapes the lake's time partition path. TimeFormat is a
// template over the {year}, {month}, {day} placeholders, not a Go time
// layout; a template without any placeholder would pin every file to one
// constant path and is rejected at load time.
type PartitioningConfig struct {
	TimeFormat string `yaml:"time_format"`
}

type ParquetConfig struct {
	Compression string `yaml:"compression"`
	PageSize    int    `yaml:"page_size"`
}

type MirrorConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Address      string        `yaml:"address"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	TTL          time.Duration `yaml:"ttl"`
	Stream       string        `yaml:"stream"`
	StreamMaxLen int64         `yaml:"stream_max_len"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type LoggingConfig struct {
	Level         string                 `yaml:"level"`
	Format        string                 `yaml:"format"`
	Output        string                 `yaml:"output"`
	MaxAge        int                    `yaml:"max_age"`
	Fields        map[string]interface{} `yaml:"fields"`
	DashboardName string                 `yaml:"dashboard_name"`
}

type OpsConfig struct {
	MetricsLimit   int             `yaml:"metrics_limit"`
	LogsLimit      int             `yaml:"logs_limit"`
	LogLevel       string          `yaml:"log_level"`
	ReportInterval time.Duration   `yaml:"report_interval"`
	Resources      ResourcesConfig `yaml:"resources"`
}

type ResourcesConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Limit    int           `yaml:"limit"`
	DiskPath string        `yaml:"disk_path"`
}

func LoadConfig(path string) (*Config, error) {
	path = ResolveConfigPath(path)

	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Engine: EngineConfig{
			DefaultLimit: 10,
			MaxLimit:     100,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}

	// Override redis settings from environment variables if available
	if config.Mirror.Enabled {
		if v := os.Getenv("REDIS_ADDR"); v != "" {
			config.Mirror.Address = strings.TrimSpace(v)
		}
		if v := os.Getenv("REDIS_PASSWORD"); v != "" {
			config.Mirror.Password = v
		}
	}

	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Propflow.Name == "" {
		return fmt.Errorf("propflow.name is required")
	}

	if cfg.Propflow.Version == "" {
		return fmt.Errorf("propflow.version is required")
	}

	if cfg.Channels.RawBuffer <= 0 {
		return fmt.Errorf("channels.raw_buffer must be greater than 0")
	}
	if cfg.Channels.BatchBuffer <= 0 {
		return fmt.Errorf("channels.batch_buffer must be greater than 0")
	}

	if cfg.Ingest.Interval <= 0 {
		return fmt.Errorf("ingest.interval must be greater than 0")
	}
	if cfg.Ingest.CycleTimeout <= 0 {
		return fmt.Errorf("ingest.cycle_timeout must be greater than 0")
	}

	switch cfg.Ingest.Feeds.Mode {
	case "file":
		if cfg.Ingest.Feeds.Dir == "" {
			return fmt.Errorf("ingest.feeds.dir is required in file mode")
		}
	case "http":
		if cfg.Ingest.Feeds.URL == "" {
			return fmt.Errorf("ingest.feeds.url is required in http mode")
		}
	default:
		return fmt.Errorf("ingest.feeds.mode must be 'file' or 'http', got '%s'", cfg.Ingest.Feeds.Mode)
	}

	if len(cfg.Ingest.Feeds.Sports) == 0 {
		return fmt.Errorf("ingest.feeds.sports must list at least one sport")
	}
	for _, sport := range cfg.Ingest.Feeds.Sports {
		if !models.IsKnownSport(sport) {
			return fmt.Errorf("ingest.feeds.sports contains unknown sport '%s'", sport)
		}
	}

	if cfg.Processor.MaxWorkers <= 0 {
		return fmt.Errorf("processor.max_workers must be greater than 0")
	}

	if cfg.Engine.DefaultLimit <= 0 {
		return fmt.Errorf("engine.default_limit must be greater than 0")
	}
	if cfg.Engine.MaxLimit < cfg.Engine.DefaultLimit {
		return fmt.Errorf("engine.max_limit must be at least engine.default_limit")
	}

	if cfg.Archive.Enabled {
		if cfg.Archive.Buffer.MaxRows <= 0 {
			return fmt.Errorf("archive.buffer.max_rows must be greater than 0")
		}
		if cfg.Archive.Buffer.FlushInterval <= 0 {
			return fmt.Errorf("archive.buffer.flush_interval must be greater than 0")
		}
		switch cfg.Archive.Parquet.Compression {
		case "", "snappy", "gzip", "none":
		default:
			return fmt.Errorf("archive.parquet.compression '%s' is not supported", cfg.Archive.Parquet.Compression)
		}
		if tf := cfg.Archive.Partitioning.TimeFormat; tf != "" &&
			!strings.Contains(tf, "{year}") && !strings.Contains(tf, "{month}") && !strings.Contains(tf, "{day}") {
			return fmt.Errorf("archive.partitioning.time_format '%s' contains no {year}/{month}/{day} placeholder", tf)
		}
		if !cfg.Storage.S3.Enabled && cfg.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir is required when archiving without S3")
		}
	}

	if cfg.Mirror.Enabled && cfg.Mirror.Address == "" {
		return fmt.Errorf("mirror.address is required when the mirror is enabled")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
