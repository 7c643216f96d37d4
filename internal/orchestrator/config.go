package orchestrator

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Angleito/Seiron-sub010/internal/ratelimit"
	"github.com/Angleito/Seiron-sub010/internal/registry"
	"github.com/Angleito/Seiron-sub010/internal/router"
)

// LoadBalancingStrategy selects how the orchestrator biases agent
// selection on top of the registry's own weighted score.
type LoadBalancingStrategy string

const (
	LoadBalancingRoundRobin       LoadBalancingStrategy = "round_robin"
	LoadBalancingLeastConnections LoadBalancingStrategy = "least_connections"
	LoadBalancingCapabilityBased  LoadBalancingStrategy = "capability_based"
)

// MessageRetryPolicy configures the router's retry behavior as surfaced
// through the orchestrator's top-level config.
type MessageRetryPolicy struct {
	MaxRetries        int      `yaml:"max_retries"`
	BackoffMultiplier float64  `yaml:"backoff_multiplier"`
	MaxBackoffMs      int      `yaml:"max_backoff_ms"`
	RetryableErrors   []string `yaml:"retryable_errors"`
}

// AdapterFamilyConfig toggles and configures one adapter family.
type AdapterFamilyConfig struct {
	Enabled bool                   `yaml:"enabled"`
	Config  map[string]interface{} `yaml:"config"`
}

// AdaptersConfig toggles each of the three adapter families.
type AdaptersConfig struct {
	ActionKit AdapterFamilyConfig `yaml:"action_kit"`
	Analytics AdapterFamilyConfig `yaml:"analytics"`
	Realtime  AdapterFamilyConfig `yaml:"realtime"`
}

// Config is the orchestrator's top-level initialisation record
// (the Orchestrator configuration record), plus the nested
// Registry and Router configuration records it wires at Start.
type Config struct {
	MaxConcurrentTasks         int                   `yaml:"max_concurrent_tasks"`
	TaskTimeoutMs              int                   `yaml:"task_timeout_ms"`
	AgentHealthCheckIntervalMs int                   `yaml:"agent_health_check_interval_ms"`
	LoadBalancing              LoadBalancingStrategy `yaml:"load_balancing"`
	MessageRetryPolicy         MessageRetryPolicy    `yaml:"message_retry_policy"`
	Adapters                   AdaptersConfig        `yaml:"adapters"`

	Registry registry.Config `yaml:"registry"`
	Router   router.Config   `yaml:"router"`

	// SessionRateLimit bounds how many intents a single session (or, for
	// intents carrying a wallet address, a single wallet) may submit to
	// ProcessIntent per second, independent of the router's adapter-side
	// concurrency gates.
	SessionRateLimit ratelimit.Config `yaml:"session_rate_limit"`
}

// DefaultConfig returns sane defaults for every field.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentTasks:         10,
		TaskTimeoutMs:              30000,
		AgentHealthCheckIntervalMs: 30000,
		LoadBalancing:              LoadBalancingCapabilityBased,
		MessageRetryPolicy: MessageRetryPolicy{
			MaxRetries:        3,
			BackoffMultiplier: 2.0,
			MaxBackoffMs:      10000,
			RetryableErrors:   []string{"timeout", "network_error", "temporary_unavailable"},
		},
		Adapters: AdaptersConfig{
			ActionKit: AdapterFamilyConfig{Enabled: true},
			Analytics: AdapterFamilyConfig{Enabled: true},
			Realtime:  AdapterFamilyConfig{Enabled: true},
		},
		Registry:         registry.DefaultConfig(),
		Router:           router.DefaultConfig(),
		SessionRateLimit: ratelimit.DefaultConfig(),
	}
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return ParseConfigYAML(data)
}

// ParseConfigYAML parses configuration from YAML bytes, applying
// defaults for any zero-valued field.
func ParseConfigYAML(data []byte) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	applyDefaults(&config)
	return &config, nil
}

func applyDefaults(config *Config) {
	defaults := DefaultConfig()
	if config.MaxConcurrentTasks <= 0 {
		config.MaxConcurrentTasks = defaults.MaxConcurrentTasks
	}
	if config.TaskTimeoutMs <= 0 {
		config.TaskTimeoutMs = defaults.TaskTimeoutMs
	}
	if config.AgentHealthCheckIntervalMs <= 0 {
		config.AgentHealthCheckIntervalMs = defaults.AgentHealthCheckIntervalMs
	}
	if config.LoadBalancing == "" {
		config.LoadBalancing = defaults.LoadBalancing
	}
	if config.MessageRetryPolicy.BackoffMultiplier <= 0 {
		config.MessageRetryPolicy.BackoffMultiplier = defaults.MessageRetryPolicy.BackoffMultiplier
	}
	if len(config.MessageRetryPolicy.RetryableErrors) == 0 {
		config.MessageRetryPolicy.RetryableErrors = defaults.MessageRetryPolicy.RetryableErrors
	}
	if config.Registry.HealthCheckIntervalMs <= 0 {
		config.Registry.HealthCheckIntervalMs = defaults.Registry.HealthCheckIntervalMs
	}
	if config.Registry.MaxConsecutiveFailures <= 0 {
		config.Registry.MaxConsecutiveFailures = defaults.Registry.MaxConsecutiveFailures
	}
	if config.Router.MaxConcurrentMessages <= 0 {
		config.Router.MaxConcurrentMessages = defaults.Router.MaxConcurrentMessages
	}
	if config.Router.AdapterRouting.MaxConcurrentAdapterCalls <= 0 {
		config.Router.AdapterRouting.MaxConcurrentAdapterCalls = defaults.Router.AdapterRouting.MaxConcurrentAdapterCalls
	}
	if config.SessionRateLimit.RequestsPerSecond <= 0 {
		config.SessionRateLimit.RequestsPerSecond = defaults.SessionRateLimit.RequestsPerSecond
	}
	if config.SessionRateLimit.BurstSize <= 0 {
		config.SessionRateLimit.BurstSize = defaults.SessionRateLimit.BurstSize
	}
}

// SaveConfig writes config back out as YAML.
func SaveConfig(config *Config, path string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// ValidateConfig reports every structural problem found in config,
// accumulating all of them rather than failing fast on the first issue.
func ValidateConfig(config *Config) []error {
	var errs []error
	if config == nil {
		return []error{fmt.Errorf("config is nil")}
	}
	if config.MaxConcurrentTasks <= 0 {
		errs = append(errs, fmt.Errorf("max_concurrent_tasks must be positive"))
	}
	if config.TaskTimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("task_timeout_ms must be positive"))
	}
	switch config.LoadBalancing {
	case LoadBalancingRoundRobin, LoadBalancingLeastConnections, LoadBalancingCapabilityBased:
	default:
		errs = append(errs, fmt.Errorf("unknown load_balancing strategy: %s", config.LoadBalancing))
	}
	if config.MessageRetryPolicy.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("message_retry_policy.max_retries cannot be negative"))
	}
	if config.Router.MaxConcurrentMessages <= 0 {
		errs = append(errs, fmt.Errorf("router.max_concurrent_messages must be positive"))
	}
	if config.Router.AdapterRouting.MaxConcurrentAdapterCalls <= 0 {
		errs = append(errs, fmt.Errorf("router.adapter_routing.max_concurrent_adapter_calls must be positive"))
	}
	if config.SessionRateLimit.Enabled && config.SessionRateLimit.RequestsPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("session_rate_limit.requests_per_second must be positive when enabled"))
	}
	return errs
}
