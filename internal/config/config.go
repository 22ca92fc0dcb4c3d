package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Bounds  BoundsConfig  `yaml:"bounds" mapstructure:"bounds"`
	Risk    RiskConfig    `yaml:"risk" mapstructure:"risk"`
	Hazard  HazardConfig  `yaml:"hazard" mapstructure:"hazard"`
	Planner PlannerConfig `yaml:"planner" mapstructure:"planner"`
	Cluster ClusterConfig `yaml:"cluster" mapstructure:"cluster"`
	Alerts  AlertsConfig  `yaml:"alerts" mapstructure:"alerts"`
	Vision  VisionConfig  `yaml:"vision" mapstructure:"vision"`
	Zones   ZonesConfig   `yaml:"zones" mapstructure:"zones"`
	Graph   GraphConfig   `yaml:"graph" mapstructure:"graph"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the issue persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// BoundsConfig is the service bounding box. Reports outside it are rejected
// before they enter the engine.
type BoundsConfig struct {
	MinLat float64 `yaml:"min_lat" mapstructure:"min_lat"`
	MaxLat float64 `yaml:"max_lat" mapstructure:"max_lat"`
	MinLng float64 `yaml:"min_lng" mapstructure:"min_lng"`
	MaxLng float64 `yaml:"max_lng" mapstructure:"max_lng"`
}

// RiskConfig configures the risk scorer.
type RiskConfig struct {
	WeightsFile      string  `yaml:"weights_file" mapstructure:"weights_file"` // optional YAML category-weight overrides
	DensityRadiusM   float64 `yaml:"density_radius_m" mapstructure:"density_radius_m"`
	DecayHalfLifeHrs float64 `yaml:"decay_half_life_hours" mapstructure:"decay_half_life_hours"`
	DecayFloor       float64 `yaml:"decay_floor" mapstructure:"decay_floor"`
	FallbackSeverity float64 `yaml:"fallback_severity" mapstructure:"fallback_severity"`
}

// HazardConfig configures hazard projection and expiry.
type HazardConfig struct {
	BlockingLevel string        `yaml:"blocking_level" mapstructure:"blocking_level"` // minimum level that produces a hazard
	ExpiryDays    int           `yaml:"expiry_days" mapstructure:"expiry_days"`
	SweepInterval time.Duration `yaml:"sweep_interval" mapstructure:"sweep_interval"`
}

// PlannerConfig configures route search limits and hazard treatment.
type PlannerConfig struct {
	MaxSnapM      float64       `yaml:"max_snap_m" mapstructure:"max_snap_m"`
	HazardBufferM float64       `yaml:"hazard_buffer_m" mapstructure:"hazard_buffer_m"`
	BlockAtLevel  string        `yaml:"block_at_level" mapstructure:"block_at_level"` // avoided levels at/above this hard-block
	MaxNodes      int           `yaml:"max_nodes" mapstructure:"max_nodes"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RatePerSecond float64       `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	RateBurst     int           `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// ClusterConfig configures the aggregate cache.
type ClusterConfig struct {
	CacheEntries int           `yaml:"cache_entries" mapstructure:"cache_entries"`
	CacheTTL     time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// AlertsConfig configures region degradation alerts.
type AlertsConfig struct {
	VelocityWindowDays int     `yaml:"velocity_window_days" mapstructure:"velocity_window_days"`
	MinRecentIssues    int     `yaml:"min_recent_issues" mapstructure:"min_recent_issues"`
	MinAvgScore        float64 `yaml:"min_avg_score" mapstructure:"min_avg_score"`
}

// VisionConfig configures the optional image-analysis collaborator.
type VisionConfig struct {
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"` // empty disables the collaborator
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// ZonesConfig points at the neighborhood shapefile.
type ZonesConfig struct {
	ShapefilePath string `yaml:"shapefile_path" mapstructure:"shapefile_path"`
	NameField     string `yaml:"name_field" mapstructure:"name_field"`
}

// GraphConfig points at the road network snapshot.
type GraphConfig struct {
	NodesPath string `yaml:"nodes_path" mapstructure:"nodes_path"`
	EdgesPath string `yaml:"edges_path" mapstructure:"edges_path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("HAZARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "hazard.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)

	// Service bounds default to the NYC box used by the original deployment.
	v.SetDefault("bounds.min_lat", 40.477399)
	v.SetDefault("bounds.max_lat", 40.917577)
	v.SetDefault("bounds.min_lng", -74.259090)
	v.SetDefault("bounds.max_lng", -73.700272)

	v.SetDefault("risk.density_radius_m", 150.0)
	v.SetDefault("risk.decay_half_life_hours", 336.0) // 14 days
	v.SetDefault("risk.decay_floor", 0.25)
	v.SetDefault("risk.fallback_severity", 0.35)

	v.SetDefault("hazard.blocking_level", "high")
	v.SetDefault("hazard.expiry_days", 30)
	v.SetDefault("hazard.sweep_interval", "5m")

	v.SetDefault("planner.max_snap_m", 500.0)
	v.SetDefault("planner.hazard_buffer_m", 75.0)
	v.SetDefault("planner.block_at_level", "critical")
	v.SetDefault("planner.max_nodes", 200000)
	v.SetDefault("planner.timeout", "5s")
	v.SetDefault("planner.rate_per_second", 10.0)
	v.SetDefault("planner.rate_burst", 20)

	v.SetDefault("cluster.cache_entries", 2048)
	v.SetDefault("cluster.cache_ttl", "10m")

	v.SetDefault("alerts.velocity_window_days", 7)
	v.SetDefault("alerts.min_recent_issues", 5)
	v.SetDefault("alerts.min_avg_score", 0.55)

	v.SetDefault("vision.timeout", "10s")
	v.SetDefault("vision.max_attempts", 3)

	v.SetDefault("zones.name_field", "NAME")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields a command requires. Mode "engine" covers the
// shared engine checks; "serve" adds the HTTP listener checks.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "engine", "serve":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	case "sqlite", "":
		if c.Store.SQLitePath == "" {
			errs = append(errs, "store.sqlite_path is required for the sqlite driver")
		}
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}

	if c.Bounds.MinLat >= c.Bounds.MaxLat || c.Bounds.MinLng >= c.Bounds.MaxLng {
		errs = append(errs, "bounds min must be below max")
	}
	if c.Cluster.CacheEntries <= 0 {
		errs = append(errs, "cluster.cache_entries must be > 0")
	}
	if c.Planner.RatePerSecond < 0 {
		errs = append(errs, "planner.rate_per_second must be >= 0")
	}

	if mode == "serve" && c.Server.Port <= 0 {
		errs = append(errs, "server.port must be > 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
