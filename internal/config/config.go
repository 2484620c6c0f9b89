// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	MaxUploadMB     int64         `yaml:"max_upload_mb"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	TrustProxy      bool          `yaml:"trust_proxy"` // take client identity from X-Forwarded-For / X-Real-IP
	CORSOrigins     []string      `yaml:"cors_origins"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type ScratchConfig struct {
	Root          string        `yaml:"root"`
	MaxAge        time.Duration `yaml:"max_age"`        // workspaces older than this are leaks
	SweepInterval time.Duration `yaml:"sweep_interval"` // 0 disables the sweeper
}

// QuotaLimits are per-window ceilings for each operation family.
type QuotaLimits struct {
	Document int `yaml:"document"`
	PDF      int `yaml:"pdf"`
	Image    int `yaml:"image"`
}

type QuotaConfig struct {
	Backend       string        `yaml:"backend"` // memory|redis
	Window        time.Duration `yaml:"window"`
	Capacity      int           `yaml:"capacity"` // max tracked keys (memory backend)
	SweepInterval time.Duration `yaml:"sweep_interval"`
	Limits        QuotaLimits   `yaml:"limits"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ToolsConfig struct {
	Soffice        string        `yaml:"soffice"`
	Ghostscript    string        `yaml:"ghostscript"`
	Pdftoppm       string        `yaml:"pdftoppm"`
	Qpdf           string        `yaml:"qpdf"`
	Timeout        time.Duration `yaml:"timeout"`
	Workers        int           `yaml:"workers"` // max concurrent external processes
	Queue          int           `yaml:"queue"`   // waiting invocations before rejecting
	MaxOutputBytes int           `yaml:"max_output_bytes"`
}

type ImageConfig struct {
	DefaultWidth  int `yaml:"default_width"`
	DefaultHeight int `yaml:"default_height"`
	MaxDimension  int `yaml:"max_dimension"`
	JPEGQuality   int `yaml:"jpeg_quality"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type StaticConfig struct {
	Dir string `yaml:"dir"` // holds policies/, sitemap.xml, robots.txt
}

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Scratch ScratchConfig `yaml:"scratch"`
	Quota   QuotaConfig   `yaml:"quota"`
	Redis   RedisConfig   `yaml:"redis"`
	Tools   ToolsConfig   `yaml:"tools"`
	Image   ImageConfig   `yaml:"image"`
	Metrics MetricsConfig `yaml:"metrics"`
	Static  StaticConfig  `yaml:"static"`

	Runtime RuntimeConfig `yaml:"-"`
}

// DefaultConfigPath is the -config flag default. A missing file at this
// path is not an error; built-in defaults apply.
const DefaultConfigPath = "config.yaml"

// LoadConfig reads the YAML file at path, applies env overrides and defaults,
// then validates the result.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && path == DefaultConfigPath:
		// run on defaults
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnv(&cfg)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SCRATCH_ROOT"); v != "" {
		cfg.Scratch.Root = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.MaxUploadMB <= 0 {
		c.Server.MaxUploadMB = 200
	}
	if c.Server.RequestTimeout <= 0 {
		c.Server.RequestTimeout = 5 * time.Minute
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	if c.Scratch.Root == "" {
		c.Scratch.Root = "/tmp/neunovapdf"
	}
	if c.Scratch.MaxAge <= 0 {
		c.Scratch.MaxAge = time.Hour
	}

	if c.Quota.Backend == "" {
		c.Quota.Backend = "memory"
	}
	c.Quota.Backend = strings.ToLower(c.Quota.Backend)
	if c.Quota.Window <= 0 {
		c.Quota.Window = 24 * time.Hour
	}
	if c.Quota.Capacity <= 0 {
		c.Quota.Capacity = 100_000
	}
	if c.Quota.SweepInterval <= 0 {
		c.Quota.SweepInterval = 5 * time.Minute
	}
	if c.Quota.Limits.Document == 0 {
		c.Quota.Limits.Document = 10
	}
	if c.Quota.Limits.PDF == 0 {
		c.Quota.Limits.PDF = 20
	}
	if c.Quota.Limits.Image == 0 {
		c.Quota.Limits.Image = 50
	}

	if c.Tools.Soffice == "" {
		c.Tools.Soffice = "soffice"
	}
	if c.Tools.Ghostscript == "" {
		c.Tools.Ghostscript = "gs"
	}
	if c.Tools.Pdftoppm == "" {
		c.Tools.Pdftoppm = "pdftoppm"
	}
	if c.Tools.Qpdf == "" {
		c.Tools.Qpdf = "qpdf"
	}
	if c.Tools.Timeout <= 0 {
		c.Tools.Timeout = 2 * time.Minute
	}
	if c.Tools.Workers <= 0 {
		c.Tools.Workers = 4
	}
	if c.Tools.Queue <= 0 {
		c.Tools.Queue = c.Tools.Workers * 4
	}
	if c.Tools.MaxOutputBytes <= 0 {
		c.Tools.MaxOutputBytes = 64 << 10
	}

	if c.Image.DefaultWidth <= 0 {
		c.Image.DefaultWidth = 800
	}
	if c.Image.DefaultHeight <= 0 {
		c.Image.DefaultHeight = 600
	}
	if c.Image.MaxDimension <= 0 {
		c.Image.MaxDimension = 8000
	}
	if c.Image.JPEGQuality <= 0 {
		c.Image.JPEGQuality = 85
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Quota.Limits.Document < 0 || c.Quota.Limits.PDF < 0 || c.Quota.Limits.Image < 0 {
		return errors.New("quota.limits must be positive")
	}
	switch c.Quota.Backend {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("redis.url is required when quota.backend=redis")
		}
	default:
		return fmt.Errorf("unknown quota.backend %q", c.Quota.Backend)
	}
	if c.Image.JPEGQuality > 100 {
		return fmt.Errorf("image.jpeg_quality must be 1..100, got %d", c.Image.JPEGQuality)
	}
	return nil
}

// MaxUploadBytes is the request body ceiling shared by every upload route.
func (c *Config) MaxUploadBytes() int64 {
	return c.Server.MaxUploadMB << 20
}
