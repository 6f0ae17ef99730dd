// Package config defines the gateway's configuration surface (spec §6) and
// the local routes.yaml schema, and loads both via goccy/go-yaml with
// ${VAR_NAME} environment expansion.
package config

import "time"

// Config mirrors spec §6's "Configuration surface" field for field.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	RegistryEnabled      bool          `yaml:"registry_enabled"`
	RegistryURL          string        `yaml:"registry_url"`
	RegistryPollInterval time.Duration `yaml:"registry_poll_interval"`
	RegistryBootTimeout  time.Duration `yaml:"registry_boot_timeout"`

	ProxyTimeout    time.Duration `yaml:"proxy_timeout"`
	ProxyMaxRetries int           `yaml:"proxy_max_retries"`

	LoadBalanceStrategy string `yaml:"load_balance_strategy"` // round_robin | random | least_conn

	RateLimitEnabled        bool    `yaml:"rate_limit_enabled"`
	RateLimitGlobalQPS      float64 `yaml:"rate_limit_global_qps"`
	RateLimitPerRouteQPS    float64 `yaml:"rate_limit_per_route_qps"`
	RateLimitPerIPQPS       float64 `yaml:"rate_limit_per_ip_qps"`
	RateLimitIPMapCapacity  int     `yaml:"rate_limit_ip_map_capacity"`

	CircuitBreakerEnabled          bool          `yaml:"circuit_breaker_enabled"`
	CircuitBreakerFailureThreshold int           `yaml:"circuit_breaker_failure_threshold"`
	CircuitBreakerTimeout          time.Duration `yaml:"circuit_breaker_timeout"`

	LocalRoutesFile         string `yaml:"local_routes_file"`
	LocalRoutesPriorityBoost int32 `yaml:"local_routes_priority_boost"`
	FallbackToLocal          bool   `yaml:"fallback_to_local"`

	AuthPluginEnabled bool `yaml:"auth_plugin_enabled"`
	AuthDegradeAllow  bool `yaml:"auth_degrade_allow"`

	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig configures internal/logging.New.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Output     string `yaml:"output"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Default returns a Config populated with the gateway's documented
// defaults, matching spec §4.5/§4.6/§3's stated defaults (burst/capacity
// 10000, priority boost 1000, etc).
func Default() *Config {
	return &Config{
		Host:                    "0.0.0.0",
		Port:                    8080,
		RegistryEnabled:         true,
		RegistryPollInterval:    15 * time.Second,
		RegistryBootTimeout:     3 * time.Second,
		ProxyTimeout:            10 * time.Second,
		ProxyMaxRetries:         2,
		LoadBalanceStrategy:     "round_robin",
		RateLimitEnabled:        true,
		RateLimitGlobalQPS:      1000,
		RateLimitPerRouteQPS:    200,
		RateLimitPerIPQPS:       20,
		RateLimitIPMapCapacity:  10000,
		CircuitBreakerEnabled:   true,
		CircuitBreakerFailureThreshold: 5,
		CircuitBreakerTimeout:   30 * time.Second,
		LocalRoutesFile:         "routes.yaml",
		LocalRoutesPriorityBoost: 1000,
		FallbackToLocal:         true,
		AuthPluginEnabled:       true,
		AuthDegradeAllow:        false,
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
		},
	}
}

// RouteFile is the routes.yaml document shape, per spec §6.
type RouteFile struct {
	Routes            []RouteEntry     `yaml:"routes"`
	DefaultAuthConfig *AuthEntryConfig `yaml:"default_auth_config"`
}

// RouteEntry is one entry of routes.yaml, also the shape returned by the
// registry's GET /api/v1/gateway/routes (plus route_id/source there).
type RouteEntry struct {
	RouteID         string           `yaml:"route_id"`
	PathPattern     string           `yaml:"path_pattern"`
	Methods         any              `yaml:"methods"` // "*" or []string
	TargetURL       string           `yaml:"target_url"`
	TargetServiceID string           `yaml:"target_service_id"`
	StripPrefix     bool             `yaml:"strip_prefix"`
	StripPath       string           `yaml:"strip_path"`
	Priority        int32            `yaml:"priority"`
	AuthConfig      *AuthEntryConfig `yaml:"auth_config"`
}

// AuthEntryConfig is the wire shape of a route's auth_config block.
type AuthEntryConfig struct {
	RequireAuth   bool     `yaml:"require_auth"`
	AuthServiceID string   `yaml:"auth_service_id"`
	PublicPaths   []string `yaml:"public_paths"`
	LoginRedirect string   `yaml:"login_redirect"`
}

// InstanceEntry is one element of the registry's
// GET /api/v1/services/{id}/instances response.
type InstanceEntry struct {
	InstanceID string `json:"instance_id"`
	BaseURL    string `json:"base_url"`
	Healthy    bool   `json:"healthy"`
}
