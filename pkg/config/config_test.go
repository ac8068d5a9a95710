package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/rolesweep/pkg/log"
	"github.com/cuemby/rolesweep/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
data_dir: /tmp/rolesweep
community_id: "1234"
call_timeout: 3s
concurrency: 8
platform:
  base_url: https://chat.example.com/api
  token: file-token
  requests_per_second: 2.5
  burst: 3
log:
  level: debug
  json: true
notify:
  fallback_channel_id: "999"
schedules:
  - name: premium
    cron: "*/2 * * * *"
    class: premium
  - name: event-mutes
    cron: "@hourly"
    class: mute
    role_ids: ["r1", "r2"]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rolesweep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/rolesweep", cfg.DataDir)
	assert.Equal(t, "1234", cfg.CommunityID)
	assert.Equal(t, 3*time.Second, cfg.CallTimeout)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, "https://chat.example.com/api", cfg.Platform.BaseURL)
	assert.Equal(t, 2.5, cfg.Platform.RequestsPerSecond)
	assert.Equal(t, log.DebugLevel, cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, "999", cfg.Notify.FallbackChannelID)
	// not set in the file
	assert.Equal(t, ":9090", cfg.MetricsAddr)

	require.Len(t, cfg.Schedules, 2)
	assert.Equal(t, types.Filter{Class: types.GrantClassPremium}, cfg.Schedules[0].Filter())
	assert.Equal(t, types.Filter{Class: types.GrantClassMute, RoleIDs: []string{"r1", "r2"}}, cfg.Schedules[1].Filter())

	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ROLESWEEP_PLATFORM_TOKEN", "env-token")
	t.Setenv("ROLESWEEP_CONCURRENCY", "2")
	t.Setenv("ROLESWEEP_LOG_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Platform.Token)
	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, log.WarnLevel, cfg.Log.Level)
	assert.Equal(t, "1234", cfg.CommunityID)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(writeConfig(t, "data_dir: /x\nbogus: 1\n"))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.CommunityID = "c1"
		cfg.Platform.BaseURL = "https://chat.example.com"
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing community", func(c *Config) { c.CommunityID = "" }, "community_id"},
		{"relative base url", func(c *Config) { c.Platform.BaseURL = "/api" }, "platform.base_url"},
		{"zero rate", func(c *Config) { c.Platform.RequestsPerSecond = 0 }, "requests_per_second"},
		{"zero burst", func(c *Config) { c.Platform.Burst = 0 }, "platform.burst"},
		{"zero timeout", func(c *Config) { c.CallTimeout = 0 }, "call_timeout"},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, "concurrency"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad cron", func(c *Config) { c.Schedules[0].Cron = "every day" }, "cron"},
		{"bad class", func(c *Config) { c.Schedules[0].Class = "vip" }, "unknown class"},
		{"duplicate schedule", func(c *Config) {
			c.Schedules = append(c.Schedules, c.Schedules[0])
		}, "duplicate name"},
		{"short cascade timeout", func(c *Config) { c.CascadeTimeout = time.Second }, "cascade_timeout"},
		{"unfiltered next to class", func(c *Config) {
			c.Schedules = append(c.Schedules, ScheduleConfig{Name: "premium", Cron: "@hourly", Class: "premium"})
		}, `schedules "all" and "premium" select overlapping grants`},
		{"same class twice", func(c *Config) {
			c.Schedules = []ScheduleConfig{
				{Name: "a", Cron: "@hourly", Class: "mute"},
				{Name: "b", Cron: "@daily", Class: "mute"},
			}
		}, "overlapping"},
		{"shared role id", func(c *Config) {
			c.Schedules = []ScheduleConfig{
				{Name: "a", Cron: "@hourly", Class: "premium", RoleIDs: []string{"r1", "r2"}},
				{Name: "b", Cron: "@daily", RoleIDs: []string{"r2"}},
			}
		}, "overlapping"},
	}

	disjoint := valid()
	disjoint.Schedules = []ScheduleConfig{
		{Name: "premium", Cron: "@hourly", Class: "premium"},
		{Name: "mutes", Cron: "@hourly", Class: "mute"},
		{Name: "event-a", Cron: "@daily", Class: "other", RoleIDs: []string{"r1"}},
		{Name: "event-b", Cron: "@daily", Class: "other", RoleIDs: []string{"r2"}},
	}
	assert.NoError(t, disjoint.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
