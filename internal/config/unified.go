package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// UnifiedConfig is the single configuration file format for
// playbooks.jsonc: the runtime tunables a host process wires into
// Program, Runtime and Janitor at startup (spec §5's concurrency/resource
// model leaves these values to the host; this gives them one file).
type UnifiedConfig struct {
	Limits       LimitsSection       `json:"limits"`
	RateLimit    RateLimitSection    `json:"rate_limit"`
	Retry        RetrySection        `json:"retry"`
	Housekeeping HousekeepingSection `json:"housekeeping"`
}

// LimitsSection mirrors spec §5's fixed resource limits, made overridable.
type LimitsSection struct {
	MaxRecursionDepth    int `json:"max_recursion_depth"`
	MaxCallStackDepth    int `json:"max_call_stack_depth"`
	AgentYieldTimeoutSec int `json:"agent_yield_timeout_sec"`
	ArtifactThreshold    int `json:"artifact_threshold"`
}

// RateLimitSection configures internal/ratelimit's per-klass limiter.
type RateLimitSection struct {
	RequestsPerSecond float64 `json:"requests_per_second"`
	Burst             int     `json:"burst"`
}

// RetrySection configures agentruntime.RetryPolicy.
type RetrySection struct {
	MaxAttempts   int     `json:"max_attempts"`
	BaseDelayMS   int     `json:"base_delay_ms"`
	Multiplier    float64 `json:"multiplier"`
	MaxDelayMS    int     `json:"max_delay_ms"`
}

// HousekeepingSection configures the housekeeping.Janitor.
type HousekeepingSection struct {
	IntervalSec         int    `json:"interval_sec"`
	CronExpr            string `json:"cron_expr"`
	ChannelIdleSec      int    `json:"channel_idle_sec"`
	MeetingRetentionSec int    `json:"meeting_retention_sec"`
}

// FindConfigPath returns the path to playbooks.jsonc using precedence:
// 1. configDir + /playbooks.jsonc (if configDir specified)
// 2. ./config/playbooks.jsonc (project-local)
// 3. ~/.playbooks/config/playbooks.jsonc (user global)
func FindConfigPath(configDir string) (string, error) {
	var candidates []string

	if configDir != "" {
		candidates = append(candidates, filepath.Join(configDir, "playbooks.jsonc"))
	}
	candidates = append(candidates, filepath.Join("config", "playbooks.jsonc"))
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".playbooks", "config", "playbooks.jsonc"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			abs, err := filepath.Abs(path)
			if err != nil {
				return path, nil
			}
			return abs, nil
		}
	}
	return "", fmt.Errorf("config: no playbooks.jsonc found in %v", candidates)
}

// LoadUnifiedConfig reads and parses a JSONC config file at path.
func LoadUnifiedConfig(path string) (*UnifiedConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	stripped := StripJSONComments(data)

	cfg := DefaultUnifiedConfig()
	if err := json.Unmarshal(stripped, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// DefaultUnifiedConfig returns the runtime's built-in defaults, used both
// as a fallback when no file is found and as the base that a found file's
// fields overlay (json.Unmarshal only overwrites fields present in the
// file).
func DefaultUnifiedConfig() UnifiedConfig {
	return UnifiedConfig{
		Limits: LimitsSection{
			MaxRecursionDepth:    50,
			MaxCallStackDepth:    100,
			AgentYieldTimeoutSec: 5,
			ArtifactThreshold:    0,
		},
		RateLimit: RateLimitSection{
			RequestsPerSecond: 5,
			Burst:             10,
		},
		Retry: RetrySection{
			MaxAttempts: 3,
			BaseDelayMS: 200,
			Multiplier:  2,
			MaxDelayMS:  5000,
		},
		Housekeeping: HousekeepingSection{
			IntervalSec:         300,
			ChannelIdleSec:      3600,
			MeetingRetentionSec: 600,
		},
	}
}

// AgentYieldTimeout returns the configured yield timeout as a Duration.
func (c *UnifiedConfig) AgentYieldTimeout() time.Duration {
	return time.Duration(c.Limits.AgentYieldTimeoutSec) * time.Second
}

// RetryBaseDelay returns the configured base retry delay as a Duration.
func (c *RetrySection) RetryBaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMS) * time.Millisecond
}

// RetryMaxDelay returns the configured max retry delay as a Duration.
func (c *RetrySection) RetryMaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMS) * time.Millisecond
}

// Interval returns the configured sweep interval as a Duration.
func (c *HousekeepingSection) Interval() time.Duration {
	return time.Duration(c.IntervalSec) * time.Second
}

// ChannelIdleFor returns the configured idle-channel threshold.
func (c *HousekeepingSection) ChannelIdleFor() time.Duration {
	return time.Duration(c.ChannelIdleSec) * time.Second
}

// MeetingRetention returns the configured ended-meeting retention window.
func (c *HousekeepingSection) MeetingRetention() time.Duration {
	return time.Duration(c.MeetingRetentionSec) * time.Second
}
