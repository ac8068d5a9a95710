package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cuemby/rolesweep/pkg/log"
	"github.com/cuemby/rolesweep/pkg/types"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config is the rolesweep runtime configuration
type Config struct {
	DataDir     string        `yaml:"data_dir" env:"ROLESWEEP_DATA_DIR"`
	CommunityID string        `yaml:"community_id" env:"ROLESWEEP_COMMUNITY_ID"`
	CallTimeout time.Duration `yaml:"call_timeout" env:"ROLESWEEP_CALL_TIMEOUT"`
	Concurrency int           `yaml:"concurrency" env:"ROLESWEEP_CONCURRENCY"`
	MetricsAddr string        `yaml:"metrics_addr" env:"ROLESWEEP_METRICS_ADDR"`

	// CascadeTimeout bounds the delegation cascade of one expired premium member.
	CascadeTimeout time.Duration `yaml:"cascade_timeout" env:"ROLESWEEP_CASCADE_TIMEOUT"`

	Platform  PlatformConfig   `yaml:"platform" envPrefix:"ROLESWEEP_PLATFORM_"`
	Log       LogConfig        `yaml:"log" envPrefix:"ROLESWEEP_LOG_"`
	Notify    NotifyConfig     `yaml:"notify" envPrefix:"ROLESWEEP_NOTIFY_"`
	Schedules []ScheduleConfig `yaml:"schedules"`
}

// PlatformConfig locates and authenticates against the community platform API
type PlatformConfig struct {
	BaseURL           string  `yaml:"base_url" env:"BASE_URL"`
	Token             string  `yaml:"token" env:"TOKEN"`
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	Burst             int     `yaml:"burst" env:"BURST"`
}

type LogConfig struct {
	Level log.Level `yaml:"level" env:"LEVEL"`
	JSON  bool      `yaml:"json" env:"JSON"`
}

type NotifyConfig struct {
	// FallbackChannelID receives a mention when a direct message cannot be delivered.
	FallbackChannelID string `yaml:"fallback_channel_id" env:"FALLBACK_CHANNEL_ID"`
}

// ScheduleConfig is one cron-triggered reconciliation pass
type ScheduleConfig struct {
	Name    string   `yaml:"name"`
	Cron    string   `yaml:"cron"`
	Class   string   `yaml:"class,omitempty"`
	RoleIDs []string `yaml:"role_ids,omitempty"`
}

// Filter returns the grant filter the schedule runs with
func (s ScheduleConfig) Filter() types.Filter {
	return types.Filter{Class: types.GrantClass(s.Class), RoleIDs: s.RoleIDs}
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		DataDir:        "/var/lib/rolesweep",
		CallTimeout:    10 * time.Second,
		CascadeTimeout: 2 * time.Minute,
		Concurrency:    4,
		MetricsAddr:    ":9090",
		Platform: PlatformConfig{
			RequestsPerSecond: 5,
			Burst:             5,
		},
		Log: LogConfig{Level: log.InfoLevel},
		Schedules: []ScheduleConfig{
			{Name: "all", Cron: "*/5 * * * *"},
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// ROLESWEEP_* environment overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid setting at once
func (c Config) Validate() error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if c.CommunityID == "" {
		errs = append(errs, errors.New("community_id is required"))
	}
	if c.Platform.BaseURL == "" {
		errs = append(errs, errors.New("platform.base_url is required"))
	} else if u, err := url.Parse(c.Platform.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("platform.base_url %q is not an absolute URL", c.Platform.BaseURL))
	}
	if c.Platform.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("platform.requests_per_second must be positive"))
	}
	if c.Platform.Burst < 1 {
		errs = append(errs, errors.New("platform.burst must be at least 1"))
	}
	if c.CallTimeout <= 0 {
		errs = append(errs, errors.New("call_timeout must be positive"))
	}
	if c.CascadeTimeout < c.CallTimeout {
		errs = append(errs, errors.New("cascade_timeout must be at least call_timeout"))
	}
	if c.Concurrency < 1 {
		errs = append(errs, errors.New("concurrency must be at least 1"))
	}
	switch c.Log.Level {
	case log.DebugLevel, log.InfoLevel, log.WarnLevel, log.ErrorLevel:
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}

	seen := make(map[string]bool)
	for i, s := range c.Schedules {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("schedules[%d]: name is required", i))
		} else if seen[s.Name] {
			errs = append(errs, fmt.Errorf("schedules[%d]: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = true

		if _, err := cron.ParseStandard(s.Cron); err != nil {
			errs = append(errs, fmt.Errorf("schedules[%d]: cron %q: %w", i, s.Cron, err))
		}
		switch types.GrantClass(s.Class) {
		case "", types.GrantClassPremium, types.GrantClassMute, types.GrantClassOther:
		default:
			errs = append(errs, fmt.Errorf("schedules[%d]: unknown class %q", i, s.Class))
		}
	}

	for i := range c.Schedules {
		for j := i + 1; j < len(c.Schedules); j++ {
			a, b := c.Schedules[i], c.Schedules[j]
			if a.Filter().Overlaps(b.Filter()) {
				errs = append(errs, fmt.Errorf("schedules %q and %q select overlapping grants", a.Name, b.Name))
			}
		}
	}

	return errors.Join(errs...)
}
