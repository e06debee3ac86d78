// Package config loads playbooks.jsonc: the runtime's tunable limits,
// rate-limit, retry, and housekeeping settings. Grounded on the teacher's
// internal/config (a JSONC loader for oubliette.jsonc with search-path
// precedence), generalized from server/container/credential settings to
// the in-process runtime tunables this module actually has.
package config

import "fmt"

// LoadedConfig is the fully-resolved runtime configuration a host process
// wires into program.New, agentruntime.RetryPolicy, ratelimit.New and
// housekeeping.Options.
type LoadedConfig struct {
	Limits       LimitsSection
	RateLimit    RateLimitSection
	Retry        RetrySection
	Housekeeping HousekeepingSection
	ConfigDir    string
}

// LoadAll loads configuration from playbooks.jsonc if found under
// configDir (or the standard search path), or returns the built-in
// defaults if no file exists — unlike the teacher's LoadAll, a missing
// config file is not an error here, since every section already has a
// usable default.
func LoadAll(configDir string) (*LoadedConfig, error) {
	path, err := FindConfigPath(configDir)
	if err != nil {
		defaults := DefaultUnifiedConfig()
		return toLoaded(&defaults, configDir), nil
	}

	unified, err := LoadUnifiedConfig(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return toLoaded(unified, configDir), nil
}

func toLoaded(u *UnifiedConfig, configDir string) *LoadedConfig {
	return &LoadedConfig{
		Limits:       u.Limits,
		RateLimit:    u.RateLimit,
		Retry:        u.Retry,
		Housekeeping: u.Housekeeping,
		ConfigDir:    configDir,
	}
}
