package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/goccy/go-yaml"
)

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Loader reads and parses the main gateway config file.
type Loader struct{}

// NewLoader constructs a Loader.
func NewLoader() *Loader { return &Loader{} }

// Load reads path, expands ${VAR} references against the environment, and
// unmarshals onto Default(). A read or parse failure is a fatal
// configuration error per spec §6.
func (l *Loader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return l.Parse(data)
}

// Parse expands and unmarshals raw YAML bytes.
func (l *Loader) Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// LoadRoutes reads and parses the local routes.yaml file.
func (l *Loader) LoadRoutes(path string) (*RouteFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routes file: %w", err)
	}
	expanded := expandEnvVars(string(data))
	var rf RouteFile
	if err := yaml.Unmarshal([]byte(expanded), &rf); err != nil {
		return nil, fmt.Errorf("parse routes yaml: %w", err)
	}
	return &rf, nil
}

func expandEnvVars(input string) string {
	return envPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return match
	})
}

func validate(cfg *Config) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Port)
	}
	switch cfg.LoadBalanceStrategy {
	case "round_robin", "random", "least_conn":
	default:
		return fmt.Errorf("invalid load_balance_strategy: %q", cfg.LoadBalanceStrategy)
	}
	if cfg.RateLimitIPMapCapacity <= 0 {
		return fmt.Errorf("rate_limit_ip_map_capacity must be positive")
	}
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		return fmt.Errorf("circuit_breaker_failure_threshold must be positive")
	}
	return nil
}
