package config

import (
	"os"
	"strings"
	"testing"
)

// writeTempConfig creates a minimal configuration file required for LoadConfig
// and returns its path.
func writeTempConfig(t *testing.T) string {
	t.Helper()
	content := `propflow:
  name: "TestApp"
  version: "1.0"
channels:
  raw_buffer: 1
  batch_buffer: 1
  update_buffer: 1
  report_buffer: 1
ingest:
  interval: 1m
  cycle_timeout: 30s
  feeds:
    mode: file
    dir: /tmp/feeds
    sports: ["NBA", "NFL"]
processor:
  max_workers: 1
engine:
  default_limit: 10
  max_limit: 50
storage:
  s3:
    enabled: false
`
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	return f.Name()
}

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Propflow.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Propflow.Name)
	}
	if cfg.Ingest.Feeds.Mode != "file" {
		t.Errorf("unexpected feeds mode: %s", cfg.Ingest.Feeds.Mode)
	}
	if len(cfg.Ingest.Feeds.Sports) != 2 {
		t.Errorf("unexpected sports: %v", cfg.Ingest.Feeds.Sports)
	}
	if cfg.Engine.DefaultLimit != 10 || cfg.Engine.MaxLimit != 50 {
		t.Errorf("unexpected engine limits: %+v", cfg.Engine)
	}
}

func TestValidateConfigRejections(t *testing.T) {
	base := func(t *testing.T) *Config {
		t.Helper()
		path := writeTempConfig(t)
		defer os.Remove(path)
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		return cfg
	}

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "unknown sport",
			mutate:  func(c *Config) { c.Ingest.Feeds.Sports = []string{"Cricket"} },
			wantErr: "unknown sport",
		},
		{
			name:    "http mode without url",
			mutate:  func(c *Config) { c.Ingest.Feeds.Mode = "http"; c.Ingest.Feeds.URL = "" },
			wantErr: "ingest.feeds.url",
		},
		{
			name:    "max limit below default",
			mutate:  func(c *Config) { c.Engine.MaxLimit = 5 },
			wantErr: "engine.max_limit",
		},
		{
			name:    "archive without sink",
			mutate:  func(c *Config) { c.Archive.Enabled = true; c.Archive.Buffer.MaxRows = 100; c.Archive.Buffer.FlushInterval = 1 },
			wantErr: "archive.local_dir",
		},
		{
			name: "partition template without placeholders",
			mutate: func(c *Config) {
				c.Archive.Enabled = true
				c.Archive.Buffer.MaxRows = 100
				c.Archive.Buffer.FlushInterval = 1
				c.Archive.LocalDir = "/tmp/lake"
				// A Go time layout here would pin every file to one
				// constant path.
				c.Archive.Partitioning.TimeFormat = "year=2006/month=01/day=02"
			},
			wantErr: "archive.partitioning.time_format",
		},
		{
			name:    "mirror without address",
			mutate:  func(c *Config) { c.Mirror.Enabled = true; c.Mirror.Address = "" },
			wantErr: "mirror.address",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base(t)
			tc.mutate(cfg)
			err := validateConfig(cfg)
			if err == nil {
				t.Fatalf("expected validation error containing %q", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err.Error(), tc.wantErr)
			}
		})
	}
}

func TestIsValidS3Bucket(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"valid-bucket", true},
		{"Invalid", false},
		{"ab", false},
		{"my..bucket", false},
	}
	for _, c := range cases {
		if got := isValidS3Bucket(c.name); got != c.valid {
			t.Errorf("isValidS3Bucket(%q) = %v, want %v", c.name, got, c.valid)
		}
	}
}

func TestAppEnvironmentAliases(t *testing.T) {
	cases := map[string]string{
		"":        EnvironmentDevelopment,
		"prod":    EnvironmentProduction,
		"PROD":    EnvironmentProduction,
		"stag":    EnvironmentStaging,
		"staging": EnvironmentStaging,
		"custom":  "custom",
	}
	for value, want := range cases {
		t.Setenv("APP_ENV", value)
		if got := AppEnvironment(); got != want {
			t.Errorf("AppEnvironment() with APP_ENV=%q = %q, want %q", value, got, want)
		}
	}
}

func TestResolveConfigPathPrefersExplicitPath(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	if got := ResolveConfigPath("custom/other.yml"); got != "custom/other.yml" {
		t.Errorf("explicit path overridden: %s", got)
	}
}

func TestResolveConfigPathFallsBackWhenEnvFileMissing(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	// config/config.production.yml does not exist relative to the test cwd,
	// so the default path must come back unchanged.
	if got := ResolveConfigPath(DefaultConfigPath); got != DefaultConfigPath {
		t.Errorf("ResolveConfigPath = %s, want %s", got, DefaultConfigPath)
	}
}
