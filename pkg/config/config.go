package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// Preset is one video tier in the quality section.
type Preset struct {
	Width     int `yaml:"width"`
	Height    int `yaml:"height"`
	FrameRate int `yaml:"frame_rate"`
}

// SimulatedSession is a scripted session started by the server.
type SimulatedSession struct {
	ID       string `yaml:"id"`
	Scenario string `yaml:"scenario"`
	Adaptive bool   `yaml:"adaptive"`
}

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Quality struct {
		AdaptiveInterval       time.Duration     `yaml:"adaptive_interval"`
		DiagnosticInterval     time.Duration     `yaml:"diagnostic_interval"`
		CooldownPeriod         time.Duration     `yaml:"cooldown_period"`
		AudioFallbackEnabled   bool              `yaml:"audio_fallback_enabled"`
		AudioFallbackThreshold int               `yaml:"audio_fallback_threshold"`
		BandwidthFactor        float64           `yaml:"bandwidth_factor"`
		Presets                map[string]Preset `yaml:"presets"`
	} `yaml:"quality"`

	Monitoring struct {
		PrometheusEnabled bool   `yaml:"prometheus_enabled"`
		MetricsPath       string `yaml:"metrics_path"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Storage struct {
		// Backend is one of memory, redis or postgres.
		Backend string `yaml:"backend"`
		// CacheTTL enables an in-process read cache for remote backends.
		CacheTTL  time.Duration `yaml:"cache_ttl"`
		CacheSize int           `yaml:"cache_size"`
	} `yaml:"storage"`

	// Archive periodically snapshots stored reports to disk.
	Archive struct {
		Enabled   bool          `yaml:"enabled"`
		Directory string        `yaml:"directory"`
		Interval  time.Duration `yaml:"interval"`
		Retention time.Duration `yaml:"retention"`
	} `yaml:"archive"`

	Redis struct {
		Enabled      bool          `yaml:"enabled"`
		Address      string        `yaml:"address"`
		Password     string        `yaml:"password"`
		DB           int           `yaml:"db"`
		PoolSize     int           `yaml:"pool_size"`
		KeyPrefix    string        `yaml:"key_prefix"`
		ReportTTL    time.Duration `yaml:"report_ttl"`
		EventChannel string        `yaml:"event_channel"`
	} `yaml:"redis"`

	Postgres struct {
		DSN             string        `yaml:"dsn"`
		MaxConnections  int           `yaml:"max_connections"`
		MaxIdleConns    int           `yaml:"max_idle_conns"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
		ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	} `yaml:"postgres"`

	Auth struct {
		Enabled        bool          `yaml:"enabled"`
		JWTSecret      string        `yaml:"jwt_secret"`
		Issuer         string        `yaml:"issuer"`
		TokenTTL       time.Duration `yaml:"token_ttl"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"auth"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"`
		} `yaml:"http"`

		WebSocket struct {
			ConnectionsPerMinute int `yaml:"connections_per_minute"`
			MaxConcurrent        int `yaml:"max_concurrent_connections"`
		} `yaml:"websocket"`
	} `yaml:"rate_limiting"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Simulation struct {
		ScenarioFile string             `yaml:"scenario_file"`
		Sessions     []SimulatedSession `yaml:"sessions"`
	} `yaml:"simulation"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Quality
	if c.Quality.AdaptiveInterval <= 0 {
		return fmt.Errorf("quality.adaptive_interval must be > 0")
	}
	if c.Quality.DiagnosticInterval <= 0 {
		return fmt.Errorf("quality.diagnostic_interval must be > 0")
	}
	if c.Quality.CooldownPeriod < 0 {
		return fmt.Errorf("quality.cooldown_period must be >= 0")
	}
	if c.Quality.AudioFallbackThreshold < 0 || c.Quality.AudioFallbackThreshold > 100 {
		return fmt.Errorf("quality.audio_fallback_threshold must be within [0,100]")
	}
	if c.Quality.BandwidthFactor <= 0 {
		return fmt.Errorf("quality.bandwidth_factor must be > 0")
	}
	for name, p := range c.Quality.Presets {
		if p.Width <= 0 || p.Height <= 0 || p.FrameRate <= 0 {
			return fmt.Errorf("quality.presets.%s must have positive width, height and frame_rate", name)
		}
	}

	// Monitoring
	if c.Monitoring.PrometheusEnabled && c.Monitoring.MetricsPath == "" {
		return fmt.Errorf("monitoring.metrics_path must not be empty when prometheus_enabled=true")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Storage
	switch c.Storage.Backend {
	case "memory":
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("storage.backend=redis requires redis.enabled=true")
		}
	case "postgres":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn must not be empty when storage.backend=postgres")
		}
		if c.Postgres.MaxConnections <= 0 {
			return fmt.Errorf("postgres.max_connections must be > 0")
		}
	default:
		return fmt.Errorf("storage.backend must be one of memory, redis, postgres (got %q)", c.Storage.Backend)
	}
	if c.Storage.CacheTTL < 0 {
		return fmt.Errorf("storage.cache_ttl must not be negative")
	}

	// Archive
	if c.Archive.Enabled {
		if c.Archive.Directory == "" {
			return fmt.Errorf("archive.directory must not be empty when archive.enabled=true")
		}
		if c.Archive.Interval <= 0 {
			return fmt.Errorf("archive.interval must be > 0")
		}
		if c.Archive.Retention < 0 {
			return fmt.Errorf("archive.retention must not be negative")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
		if c.Redis.EventChannel == "" {
			return fmt.Errorf("redis.event_channel must not be empty when redis.enabled=true")
		}
	}

	// Auth
	if c.Auth.Enabled && c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be > 0")
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty when auth.enabled=true")
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.ConnectionsPerMinute <= 0 {
			return fmt.Errorf("rate_limiting.websocket.connections_per_minute must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.websocket.max_concurrent_connections must be >= 0 when rate limiting is enabled")
		}
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0,1]")
		}
	}

	// Simulation
	seen := make(map[string]bool, len(c.Simulation.Sessions))
	for _, s := range c.Simulation.Sessions {
		if s.ID == "" || s.Scenario == "" {
			return fmt.Errorf("simulation.sessions entries need id and scenario")
		}
		if seen[s.ID] {
			return fmt.Errorf("simulation.sessions id %q is duplicated", s.ID)
		}
		seen[s.ID] = true
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 15 * time.Second

	cfg.Quality.AdaptiveInterval = time.Second
	cfg.Quality.DiagnosticInterval = 2 * time.Second
	cfg.Quality.CooldownPeriod = 10 * time.Second
	cfg.Quality.AudioFallbackEnabled = true
	cfg.Quality.AudioFallbackThreshold = 25
	cfg.Quality.BandwidthFactor = 0.1

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.MetricsPath = "/metrics"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Storage.Backend = "memory"
	cfg.Storage.CacheTTL = 30 * time.Second
	cfg.Storage.CacheSize = 1024

	cfg.Archive.Enabled = false
	cfg.Archive.Directory = "./archive"
	cfg.Archive.Interval = time.Hour
	cfg.Archive.Retention = 7 * 24 * time.Hour

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10
	cfg.Redis.KeyPrefix = "telemed:"
	cfg.Redis.ReportTTL = 7 * 24 * time.Hour
	cfg.Redis.EventChannel = "telemed:quality"

	cfg.Postgres.MaxConnections = 10
	cfg.Postgres.MaxIdleConns = 2
	cfg.Postgres.ConnMaxLifetime = 5 * time.Minute
	cfg.Postgres.ConnectTimeout = 30 * time.Second

	cfg.Auth.Enabled = false
	cfg.Auth.Issuer = "telemed"
	cfg.Auth.TokenTTL = time.Hour
	cfg.Auth.AllowedOrigins = []string{"*"}

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.ConnectionsPerMinute = 60
	cfg.RateLimiting.WebSocket.MaxConcurrent = 0

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("TELEMED_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if level := os.Getenv("TELEMED_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("TELEMED_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if backend := os.Getenv("TELEMED_STORAGE_BACKEND"); backend != "" {
		c.Storage.Backend = backend
	}
	if addr := os.Getenv("TELEMED_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
		c.Redis.Enabled = true
	}
	if dsn := os.Getenv("TELEMED_POSTGRES_DSN"); dsn != "" {
		c.Postgres.DSN = dsn
	}
	if v := os.Getenv("TELEMED_AUDIO_FALLBACK"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Quality.AudioFallbackEnabled = enabled
		}
	}
}
