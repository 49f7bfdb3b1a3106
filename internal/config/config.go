package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Allocator AllocatorConfig `yaml:"allocator"`
	Cadence   CadenceConfig   `yaml:"cadence"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Workers   WorkersConfig   `yaml:"workers"`
	TopUp     TopUpConfig     `yaml:"topup"`
	LogLevel  string          `yaml:"log_level"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds Redis connection settings for rate limiting,
// resource readiness, and distributed locks.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AllocatorConfig tunes batch allocation.
type AllocatorConfig struct {
	MaxBatchSize    int `yaml:"max_batch_size"`
	OverfetchFactor int `yaml:"overfetch_factor"`
}

// CadenceConfig holds the outreach timing rules enforced by the
// pre-send checks.
type CadenceConfig struct {
	MinTouchGapHours int            `yaml:"min_touch_gap_hours"`
	CooldownDays     map[string]int `yaml:"cooldown_days"` // channel -> days
}

// ScoringConfig holds the sub-score weight vector. Weights default to 1
// so a zero-value config scores with the platform baseline.
type ScoringConfig struct {
	CompletenessWeight float64 `yaml:"completeness_weight"`
	AuthorityWeight    float64 `yaml:"authority_weight"`
	CompanyFitWeight   float64 `yaml:"company_fit_weight"`
	TimingWeight       float64 `yaml:"timing_weight"`
	RiskWeight         float64 `yaml:"risk_weight"`
}

// WorkersConfig holds background sweep settings
type WorkersConfig struct {
	RescoreIntervalHours  int `yaml:"rescore_interval_hours"`
	RescoreStaleAfterDays int `yaml:"rescore_stale_after_days"`
	RescoreBatchSize      int `yaml:"rescore_batch_size"`
	RescoreConcurrency    int `yaml:"rescore_concurrency"`
	WarmupSweepMinutes    int `yaml:"warmup_sweep_minutes"`
}

// TopUpConfig declares standing assignment counts the allocation sweep
// keeps filled per tenant. An empty target map disables the sweep.
type TopUpConfig struct {
	SweepMinutes int                    `yaml:"sweep_minutes"`
	Targets      map[string]TopUpTarget `yaml:"targets"` // tenant id -> target
}

// TopUpTarget is one tenant's standing count and match criteria.
type TopUpTarget struct {
	StandingCount int      `yaml:"standing_count"`
	Industries    []string `yaml:"industries"`
	Countries     []string `yaml:"countries"`
}

// MinTouchGap returns the cadence gap as a duration.
func (c CadenceConfig) MinTouchGap() time.Duration {
	return time.Duration(c.MinTouchGapHours) * time.Hour
}

// Load reads configuration from a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Allocator.MaxBatchSize == 0 {
		cfg.Allocator.MaxBatchSize = 500
	}
	if cfg.Allocator.OverfetchFactor == 0 {
		cfg.Allocator.OverfetchFactor = 4
	}
	if cfg.Cadence.MinTouchGapHours == 0 {
		cfg.Cadence.MinTouchGapHours = 72
	}
	if cfg.Cadence.CooldownDays == nil {
		cfg.Cadence.CooldownDays = map[string]int{
			"email":    5,
			"sms":      7,
			"linkedin": 7,
			"voice":    10,
			"mail":     21,
		}
	}
	if cfg.Scoring.CompletenessWeight == 0 {
		cfg.Scoring.CompletenessWeight = 1
	}
	if cfg.Scoring.AuthorityWeight == 0 {
		cfg.Scoring.AuthorityWeight = 1
	}
	if cfg.Scoring.CompanyFitWeight == 0 {
		cfg.Scoring.CompanyFitWeight = 1
	}
	if cfg.Scoring.TimingWeight == 0 {
		cfg.Scoring.TimingWeight = 1
	}
	if cfg.Scoring.RiskWeight == 0 {
		cfg.Scoring.RiskWeight = 1
	}
	if cfg.Workers.RescoreIntervalHours == 0 {
		cfg.Workers.RescoreIntervalHours = 6
	}
	if cfg.Workers.RescoreStaleAfterDays == 0 {
		cfg.Workers.RescoreStaleAfterDays = 7
	}
	if cfg.Workers.RescoreBatchSize == 0 {
		cfg.Workers.RescoreBatchSize = 200
	}
	if cfg.Workers.RescoreConcurrency == 0 {
		cfg.Workers.RescoreConcurrency = 4
	}
	if cfg.Workers.WarmupSweepMinutes == 0 {
		cfg.Workers.WarmupSweepMinutes = 60
	}
	if cfg.TopUp.SweepMinutes == 0 {
		cfg.TopUp.SweepMinutes = 30
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// LoadFromEnv loads config from a YAML file (if present) and overlays
// environment variables. A .env file in the working directory is read
// first so local development matches deployed behavior.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg *Config
	if _, err := os.Stat(path); err == nil {
		cfg, err = Load(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = &Config{}
		applyDefaults(cfg)
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg, nil
}
