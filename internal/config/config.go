package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/landsift/mindthegap/internal/gap"
	"github.com/landsift/mindthegap/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Input  InputConfig  `yaml:"input" mapstructure:"input"`
	Detect DetectConfig `yaml:"detect" mapstructure:"detect"`
	Tune   TuneConfig   `yaml:"tune" mapstructure:"tune"`
	Tiles  TilesConfig  `yaml:"tiles" mapstructure:"tiles"`
	Retry  RetryConfig  `yaml:"retry" mapstructure:"retry"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the spatial data store.
type StoreConfig struct {
	// Driver selects the backend: postgres or file.
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`

	// Dataset is the footprint dataset schema (footprints, microsoft,
	// google, osm).
	Dataset string `yaml:"dataset" mapstructure:"dataset"`

	// BoundaryBuffer widens fetched boundaries, in projection units.
	BoundaryBuffer float64 `yaml:"boundary_buffer" mapstructure:"boundary_buffer"`

	// CheckpointPath is the SQLite checkpoint file used when no Postgres
	// checkpoint is available.
	CheckpointPath string `yaml:"checkpoint_path" mapstructure:"checkpoint_path"`
}

// InputConfig configures file-based detection inputs.
type InputConfig struct {
	FootprintPath string `yaml:"footprint_path" mapstructure:"footprint_path"`
	BoundaryPath  string `yaml:"boundary_path" mapstructure:"boundary_path"`
}

// DetectConfig configures the base detection parameters.
type DetectConfig struct {
	CellSize           float64 `yaml:"cell_size" mapstructure:"cell_size"`
	OccupancyThreshold int     `yaml:"occupancy_threshold" mapstructure:"occupancy_threshold"`
	Connectivity       int     `yaml:"connectivity" mapstructure:"connectivity"`
	MinArea            float64 `yaml:"min_area" mapstructure:"min_area"`
	MinRectangularity  float64 `yaml:"min_rectangularity" mapstructure:"min_rectangularity"`
	ChainageInterval   float64 `yaml:"chainage_interval" mapstructure:"chainage_interval"`
}

// TuneConfig configures auto-tuning. The slice fields bound the search space;
// dimensions left empty keep the tuner's defaults.
type TuneConfig struct {
	Auto        bool `yaml:"auto" mapstructure:"auto"`
	Concurrency int  `yaml:"concurrency" mapstructure:"concurrency"`

	CellSizes           []float64 `yaml:"cell_sizes" mapstructure:"cell_sizes"`
	MinRectangularities []float64 `yaml:"min_rectangularities" mapstructure:"min_rectangularities"`
}

// TilesConfig configures tiled runs.
type TilesConfig struct {
	Size          float64 `yaml:"size" mapstructure:"size"`
	Concurrency   int     `yaml:"concurrency" mapstructure:"concurrency"`
	ExcludeFailed bool    `yaml:"exclude_failed" mapstructure:"exclude_failed"`
}

// RetryConfig configures data-store retries.
type RetryConfig struct {
	MaxAttempts       int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS  int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMS      int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier" mapstructure:"backoff_multiplier"`
}

// ServerConfig configures the status server.
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
	v.SetEnvPrefix("MTG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.dataset", "footprints")
	v.SetDefault("store.boundary_buffer", 0.0)
	v.SetDefault("store.checkpoint_path", "mindthegap.db")
	v.SetDefault("detect.cell_size", 0.02)
	v.SetDefault("detect.occupancy_threshold", 0)
	v.SetDefault("detect.connectivity", 4)
	v.SetDefault("detect.min_area", 0.0)
	v.SetDefault("detect.min_rectangularity", 0.5)
	v.SetDefault("detect.chainage_interval", 0.01)
	v.SetDefault("tune.auto", true)
	v.SetDefault("tune.concurrency", 4)
	v.SetDefault("tiles.size", 1.0)
	v.SetDefault("tiles.concurrency", 1)
	v.SetDefault("tiles.exclude_failed", false)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.backoff_multiplier", 2.0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// GapConfig converts the detect section to detection parameters.
func (c DetectConfig) GapConfig() gap.TuneConfig {
	return gap.TuneConfig{
		CellSize:           c.CellSize,
		OccupancyThreshold: c.OccupancyThreshold,
		Connectivity:       gap.Connectivity(c.Connectivity),
		MinArea:            c.MinArea,
		MinRectangularity:  c.MinRectangularity,
		ChainageInterval:   c.ChainageInterval,
	}
}

// SearchSpace converts the tune section's bounds to a tuner search space.
// An empty result leaves the tuner on its default space.
func (c TuneConfig) SearchSpace() gap.SearchSpace {
	return gap.SearchSpace{
		CellSizes:           c.CellSizes,
		MinRectangularities: c.MinRectangularities,
	}
}

// RetryConfig converts the retry section to runtime retry settings.
func (c RetryConfig) RetryConfig() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    c.MaxAttempts,
		InitialBackoff: time.Duration(c.InitialBackoffMS) * time.Millisecond,
		MaxBackoff:     time.Duration(c.MaxBackoffMS) * time.Millisecond,
		Multiplier:     c.BackoffMultiplier,
	}
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
