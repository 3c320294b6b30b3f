package config

import (
	"errors"
	"fmt"
	"math"
	"net/netip"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Loader reads configuration from file and environment and can watch the file
// for changes. Each Loader owns its own viper instance.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader. An empty configPath searches the default locations.
func NewLoader(configPath string) *Loader {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/llm-guardrails/")
	v.AddConfigPath("$HOME/.llm-guardrails/")

	// Environment variable overrides
	v.SetEnvPrefix("GUARDRAILS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Use specific config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	setDefaults(v, GetDefaults())

	return &Loader{v: v}
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

// Load reads, decodes and validates the configuration
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return l.decode()
}

// ConfigFile returns the file in use, empty when running on defaults
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) decode() (*Config, error) {
	config := GetDefaults()
	if err := l.v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults registers every key so environment overrides apply even when
// the file omits them
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.max_body_bytes", d.Server.MaxBodyBytes)
	v.SetDefault("server.trusted_proxies", d.Server.TrustedProxies)

	v.SetDefault("guardrails.injection_threshold", d.Guardrails.InjectionThreshold)
	v.SetDefault("guardrails.pii_enabled", d.Guardrails.PIIEnabled)
	v.SetDefault("guardrails.injection_enabled", d.Guardrails.InjectionEnabled)
	v.SetDefault("guardrails.bias_enabled", d.Guardrails.BiasEnabled)
	v.SetDefault("guardrails.output_validation_enabled", d.Guardrails.OutputValidationEnabled)
	v.SetDefault("guardrails.max_output_length", d.Guardrails.MaxOutputLength)
	v.SetDefault("guardrails.pii_detectors", d.Guardrails.PIIDetectors)
	v.SetDefault("guardrails.required_keywords", d.Guardrails.RequiredKeywords)
	v.SetDefault("guardrails.blocked_keywords", d.Guardrails.BlockedKeywords)
	v.SetDefault("guardrails.json_schema", d.Guardrails.JSONSchema)
	v.SetDefault("guardrails.reference_balance", d.Guardrails.ReferenceBalance)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file.enabled", d.Logging.File.Enabled)
	v.SetDefault("logging.file.path", d.Logging.File.Path)

	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	v.SetDefault("rate_limit.requests_per_minute", d.RateLimit.RequestsPerMinute)
	v.SetDefault("rate_limit.burst", d.RateLimit.Burst)
	v.SetDefault("rate_limit.idle_ttl", d.RateLimit.IdleTTL)
	v.SetDefault("rate_limit.cleanup_interval", d.RateLimit.CleanupInterval)

	v.SetDefault("stats.enabled", d.Stats.Enabled)
	v.SetDefault("stats.redis_url", d.Stats.RedisURL)
	v.SetDefault("stats.key_prefix", d.Stats.KeyPrefix)
	v.SetDefault("stats.max_connections", d.Stats.MaxConnections)
	v.SetDefault("stats.min_idle_conns", d.Stats.MinIdleConns)
	v.SetDefault("stats.timeout", d.Stats.Timeout)

	v.SetDefault("rule_store.enabled", d.RuleStore.Enabled)
	v.SetDefault("rule_store.database_url", d.RuleStore.DatabaseURL)
	v.SetDefault("rule_store.max_open_conns", d.RuleStore.MaxOpenConns)
	v.SetDefault("rule_store.max_idle_conns", d.RuleStore.MaxIdleConns)
	v.SetDefault("rule_store.conn_max_lifetime", d.RuleStore.ConnMaxLifetime)
	v.SetDefault("rule_store.timeout", d.RuleStore.Timeout)

	v.SetDefault("websocket.enabled", d.WebSocket.Enabled)
	v.SetDefault("websocket.path", d.WebSocket.Path)
	v.SetDefault("websocket.max_connections", d.WebSocket.MaxConnections)
	v.SetDefault("websocket.read_buffer_size", d.WebSocket.ReadBufferSize)
	v.SetDefault("websocket.write_buffer_size", d.WebSocket.WriteBufferSize)
	v.SetDefault("websocket.ping_interval", d.WebSocket.PingInterval)
	v.SetDefault("websocket.pong_timeout", d.WebSocket.PongTimeout)
	v.SetDefault("websocket.write_timeout", d.WebSocket.WriteTimeout)
	v.SetDefault("websocket.max_message_size", d.WebSocket.MaxMessageSize)
	v.SetDefault("websocket.allowed_origins", d.WebSocket.AllowedOrigins)
	v.SetDefault("websocket.username", d.WebSocket.Username)
	v.SetDefault("websocket.password", d.WebSocket.Password)
	v.SetDefault("websocket.events.broadcast_guards", d.WebSocket.Events.BroadcastGuards)
	v.SetDefault("websocket.events.broadcast_system", d.WebSocket.Events.BroadcastSystem)
	v.SetDefault("websocket.events.broadcast_connections", d.WebSocket.Events.BroadcastConnections)
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	for _, proxy := range config.Server.TrustedProxies {
		if _, err := netip.ParsePrefix(proxy); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(proxy); err != nil {
			return fmt.Errorf("invalid trusted proxy: %q (must be an IP address or CIDR)", proxy)
		}
	}

	g := config.Guardrails
	if g.InjectionThreshold < 0 || g.InjectionThreshold > 1 || math.IsNaN(g.InjectionThreshold) {
		return fmt.Errorf("invalid injection threshold: %v (must be within [0,1])", g.InjectionThreshold)
	}
	if g.MaxOutputLength <= 0 {
		return fmt.Errorf("invalid max output length: %d (must be positive)", g.MaxOutputLength)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if config.RateLimit.Enabled && config.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("invalid requests per minute: %d (must be positive when rate limiting is enabled)", config.RateLimit.RequestsPerMinute)
	}

	if config.Stats.Enabled && config.Stats.RedisURL == "" {
		return fmt.Errorf("stats enabled but redis_url is empty")
	}

	if config.RuleStore.Enabled && config.RuleStore.DatabaseURL == "" {
		return fmt.Errorf("rule store enabled but database_url is empty")
	}

	return nil
}

// Watch starts watching the configuration file for changes. Valid changes are
// passed to callback; decode or validation failures go to onError and the
// previous configuration stays in effect.
func (l *Loader) Watch(callback func(*Config), onError func(error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		newConfig, err := l.decode()
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("ignoring config change in %s: %w", e.Name, err))
			}
			return
		}

		callback(newConfig)
	})
	l.v.WatchConfig()
}
