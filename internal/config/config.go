package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/claude/repcam/internal/engine"
	"github.com/claude/repcam/internal/pose"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Engine    EngineConfig    `yaml:"engine"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Detector  DetectorConfig  `yaml:"detector"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

// EngineConfig tunes per-frame processing.
type EngineConfig struct {
	SmoothingWindow      int           `yaml:"smoothing_window"`
	SmoothingAlpha       float64       `yaml:"smoothing_alpha"`
	ConfidenceFloor      float64       `yaml:"confidence_floor"`
	FullBodyMinKeypoints int           `yaml:"full_body_min_keypoints"`
	FullBodyConfidence   float64       `yaml:"full_body_confidence"`
	MaxHints             int           `yaml:"max_hints"`
	HintCooldown         time.Duration `yaml:"hint_cooldown"`
}

// SessionsConfig bounds the in-memory session store.
type SessionsConfig struct {
	MaxSessions   int           `yaml:"max_sessions"`
	IdleTTL       time.Duration `yaml:"idle_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	Shards        int           `yaml:"shards"`
}

type DetectorConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type ArchiveConfig struct {
	Driver         string         `yaml:"driver"`
	SQLitePath     string         `yaml:"sqlite_path"`
	MigrationsPath string         `yaml:"migrations_path"`
	Database       DatabaseConfig `yaml:"database"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// Default returns the configuration used for any key the file leaves out.
func Default() *Config {
	ec := engine.DefaultConfig()
	return &Config{
		Server: ServerConfig{Host: "127.0.0.1", Port: 8080},
		Tailscale: TailscaleConfig{
			Hostname: "repcam",
			StateDir: "tsnet-state",
		},
		Engine: EngineConfig{
			SmoothingWindow:      ec.SmoothingWindow,
			SmoothingAlpha:       ec.SmoothingAlpha,
			ConfidenceFloor:      ec.ConfidenceFloor,
			FullBodyMinKeypoints: ec.FullBodyMinKeypoints,
			FullBodyConfidence:   ec.FullBodyConfidence,
			MaxHints:             ec.MaxHints,
			HintCooldown:         ec.HintCooldown,
		},
		Sessions: SessionsConfig{
			IdleTTL:       ec.IdleTTL,
			SweepInterval: time.Minute,
			Shards:        ec.Shards,
		},
		Detector: DetectorConfig{Timeout: 10 * time.Second},
		Archive: ArchiveConfig{
			Driver:         "none",
			SQLitePath:     "data/archive.db",
			MigrationsPath: "migrations",
			Database:       DatabaseConfig{Port: 5432, SSLMode: "disable"},
		},
		Metrics: MetricsConfig{Enabled: true, Namespace: "repcam"},
	}
}

// EngineOptions converts the engine and session sections into engine.Config.
func (c *Config) EngineOptions() engine.Config {
	return engine.Config{
		SmoothingWindow:      c.Engine.SmoothingWindow,
		SmoothingAlpha:       c.Engine.SmoothingAlpha,
		ConfidenceFloor:      c.Engine.ConfidenceFloor,
		FullBodyMinKeypoints: c.Engine.FullBodyMinKeypoints,
		FullBodyConfidence:   c.Engine.FullBodyConfidence,
		MaxHints:             c.Engine.MaxHints,
		HintCooldown:         c.Engine.HintCooldown,
		MaxSessions:          c.Sessions.MaxSessions,
		IdleTTL:              c.Sessions.IdleTTL,
		Shards:               c.Sessions.Shards,
	}
}

// Load reads config from a YAML file over the defaults, then applies
// environment variable overrides. Env vars use the prefix REPCAM_:
//
//	REPCAM_SERVER_HOST, REPCAM_SERVER_PORT, REPCAM_AUTH_API_KEY,
//	REPCAM_TAILSCALE_ENABLED, REPCAM_TAILSCALE_HOSTNAME,
//	REPCAM_DETECTOR_URL, REPCAM_SESSIONS_MAX, REPCAM_SESSIONS_IDLE_TTL,
//	REPCAM_ARCHIVE_DRIVER, REPCAM_ARCHIVE_SQLITE_PATH,
//	REPCAM_DB_HOST, REPCAM_DB_PORT, REPCAM_DB_NAME,
//	REPCAM_DB_USER, REPCAM_DB_PASSWORD, REPCAM_DB_SSLMODE
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("environment override: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	str := map[string]*string{
		"REPCAM_SERVER_HOST":         &cfg.Server.Host,
		"REPCAM_AUTH_API_KEY":        &cfg.Auth.APIKey,
		"REPCAM_TAILSCALE_HOSTNAME":  &cfg.Tailscale.Hostname,
		"REPCAM_DETECTOR_URL":        &cfg.Detector.URL,
		"REPCAM_ARCHIVE_DRIVER":      &cfg.Archive.Driver,
		"REPCAM_ARCHIVE_SQLITE_PATH": &cfg.Archive.SQLitePath,
		"REPCAM_DB_HOST":             &cfg.Archive.Database.Host,
		"REPCAM_DB_NAME":             &cfg.Archive.Database.Name,
		"REPCAM_DB_USER":             &cfg.Archive.Database.User,
		"REPCAM_DB_PASSWORD":         &cfg.Archive.Database.Password,
		"REPCAM_DB_SSLMODE":          &cfg.Archive.Database.SSLMode,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"REPCAM_SERVER_PORT":  &cfg.Server.Port,
		"REPCAM_DB_PORT":      &cfg.Archive.Database.Port,
		"REPCAM_SESSIONS_MAX": &cfg.Sessions.MaxSessions,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	if v := os.Getenv("REPCAM_TAILSCALE_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("REPCAM_TAILSCALE_ENABLED: %w", err)
		}
		cfg.Tailscale.Enabled = b
	}
	if v := os.Getenv("REPCAM_SESSIONS_IDLE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("REPCAM_SESSIONS_IDLE_TTL: %w", err)
		}
		cfg.Sessions.IdleTTL = d
	}
	return nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}
	if err := c.Engine.validate(); err != nil {
		return err
	}
	if err := c.Sessions.validate(); err != nil {
		return err
	}
	if c.Detector.Timeout < 0 {
		return fmt.Errorf("detector.timeout must not be negative")
	}
	return c.Archive.validate()
}

func (e EngineConfig) validate() error {
	switch {
	case e.SmoothingWindow < 1:
		return fmt.Errorf("engine.smoothing_window must be at least 1")
	case e.SmoothingAlpha <= 0 || e.SmoothingAlpha > 1:
		return fmt.Errorf("engine.smoothing_alpha must be within (0,1]")
	case e.ConfidenceFloor < 0 || e.ConfidenceFloor > 1:
		return fmt.Errorf("engine.confidence_floor must be within [0,1]")
	case e.FullBodyMinKeypoints < 1 || e.FullBodyMinKeypoints > len(pose.AllKeypoints):
		return fmt.Errorf("engine.full_body_min_keypoints must be within [1,%d]", len(pose.AllKeypoints))
	case e.FullBodyConfidence < 0 || e.FullBodyConfidence > 1:
		return fmt.Errorf("engine.full_body_confidence must be within [0,1]")
	case e.MaxHints < 0:
		return fmt.Errorf("engine.max_hints must not be negative")
	case e.HintCooldown < 0:
		return fmt.Errorf("engine.hint_cooldown must not be negative")
	}
	return nil
}

func (s SessionsConfig) validate() error {
	switch {
	case s.MaxSessions < 0:
		return fmt.Errorf("sessions.max_sessions must not be negative")
	case s.IdleTTL < 0:
		return fmt.Errorf("sessions.idle_ttl must not be negative")
	case s.IdleTTL > 0 && s.SweepInterval <= 0:
		return fmt.Errorf("sessions.sweep_interval is required when idle_ttl is set")
	case s.Shards < 1:
		return fmt.Errorf("sessions.shards must be at least 1")
	}
	return nil
}

func (a ArchiveConfig) validate() error {
	switch a.Driver {
	case "", "none":
	case "sqlite":
		if a.SQLitePath == "" {
			return fmt.Errorf("archive.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if a.Database.Host == "" {
			return fmt.Errorf("archive.database.host is required")
		}
		if a.Database.Port == 0 {
			return fmt.Errorf("archive.database.port is required")
		}
		if a.Database.Name == "" {
			return fmt.Errorf("archive.database.name is required")
		}
		if a.Database.User == "" {
			return fmt.Errorf("archive.database.user is required")
		}
	default:
		return fmt.Errorf("archive.driver %q must be none, sqlite or postgres", a.Driver)
	}
	return nil
}
