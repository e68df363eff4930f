package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App      App      `mapstructure:"app"`
	Database Database `mapstructure:"database"`
	LLM      LLM      `mapstructure:"llm"`
	Feed     Feed     `mapstructure:"feed"`
	Pipeline Pipeline `mapstructure:"pipeline"`
	Dedup    Dedup    `mapstructure:"dedup"`
	Notify   Notify   `mapstructure:"notify"`
	Logging  Logging  `mapstructure:"logging"`
}

// App holds general application configuration
type App struct {
	Debug bool   `mapstructure:"debug"`
	City  string `mapstructure:"city"` // Default city stamped on auto-created incidents
}

// Database holds the relational store configuration
type Database struct {
	URL     string `mapstructure:"url"`
	Timeout string `mapstructure:"timeout"`
}

// LLM holds language-model configuration
type LLM struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Timeout     string  `mapstructure:"timeout"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int32   `mapstructure:"max_tokens"`
}

// Feed holds aggregator feed configuration
type Feed struct {
	BaseURL   string `mapstructure:"base_url"`
	Query     string `mapstructure:"query"` // Base search query
	UserAgent string `mapstructure:"user_agent"`
	Timeout   string `mapstructure:"timeout"`
}

// Pipeline holds worker and scheduling configuration
type Pipeline struct {
	Workers         int    `mapstructure:"workers"`
	IntervalMinutes int    `mapstructure:"interval_minutes"` // Consumed by the external scheduler
	MinYear         int    `mapstructure:"min_year"`         // Oldest acceptable publication year
	ResolverPace    string `mapstructure:"resolver_pace"`    // Minimum delay between decoder calls
}

// Dedup holds entity-resolution thresholds and weights
type Dedup struct {
	Threshold      float64 `mapstructure:"threshold"`
	VictimWeight   float64 `mapstructure:"victim_weight"`
	LocationWeight float64 `mapstructure:"location_weight"`
	SummaryWeight  float64 `mapstructure:"summary_weight"`
	WindowDays     int     `mapstructure:"window_days"` // Blocking window radius in days
}

// Notify holds failure-notification configuration
type Notify struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Username   string `mapstructure:"username"`
	Timeout    string `mapstructure:"timeout"`
}

// Logging holds logging configuration
type Logging struct {
	Level string `mapstructure:"level"`
	Dir   string `mapstructure:"dir"`
}

var globalConfig *Config

// Load loads the configuration from .env, an optional config file,
// environment variables, and defaults, in ascending precedence of
// flags > env > file > defaults.
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".vigia")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.city", "Maceió")

	viper.SetDefault("database.timeout", "5s")

	viper.SetDefault("llm.model", "gemini-2.5-flash")
	viper.SetDefault("llm.timeout", "30s")
	viper.SetDefault("llm.temperature", 0.1)
	viper.SetDefault("llm.max_tokens", 1024)

	viper.SetDefault("feed.base_url", "https://news.google.com")
	viper.SetDefault("feed.query", "homicídio Maceió")
	viper.SetDefault("feed.user_agent", "Mozilla/5.0 (compatible; vigia/1.0)")
	viper.SetDefault("feed.timeout", "30s")

	viper.SetDefault("pipeline.workers", 10)
	viper.SetDefault("pipeline.interval_minutes", 30)
	viper.SetDefault("pipeline.min_year", 2000)
	viper.SetDefault("pipeline.resolver_pace", "1s")

	viper.SetDefault("dedup.threshold", 0.60)
	viper.SetDefault("dedup.victim_weight", 0.5)
	viper.SetDefault("dedup.location_weight", 0.3)
	viper.SetDefault("dedup.summary_weight", 0.2)
	viper.SetDefault("dedup.window_days", 1)

	viper.SetDefault("notify.username", "vigia")
	viper.SetDefault("notify.timeout", "10s")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.dir", "logs")
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	bindEnvKeys("llm.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
	})

	bindEnvKeys("database.url", []string{
		"DATABASE_URL",
		"VIGIA_DATABASE_URL",
	})

	bindEnvKeys("pipeline.workers", []string{
		"PIPELINE_WORKERS",
	})

	bindEnvKeys("pipeline.interval_minutes", []string{
		"PIPELINE_INTERVAL_MINUTES",
	})

	bindEnvKeys("logging.level", []string{
		"LOG_LEVEL",
	})

	bindEnvKeys("notify.webhook_url", []string{
		"VIGIA_WEBHOOK_URL",
		"WEBHOOK_URL",
	})

	bindEnvKeys("app.debug", []string{
		"DEBUG",
		"VIGIA_DEBUG",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// validateConfig ensures the configuration is internally consistent.
// The LLM API key is deliberately not required here: its absence is a
// degraded mode handled by the extractor, not a startup failure.
func validateConfig(config *Config) error {
	var errs []string

	if config.Pipeline.Workers < 1 {
		errs = append(errs, fmt.Sprintf("pipeline.workers must be at least 1, got %d", config.Pipeline.Workers))
	}
	if config.Pipeline.IntervalMinutes < 1 {
		errs = append(errs, fmt.Sprintf("pipeline.interval_minutes must be at least 1, got %d", config.Pipeline.IntervalMinutes))
	}
	if config.Pipeline.MinYear < 1 {
		errs = append(errs, fmt.Sprintf("pipeline.min_year must be positive, got %d", config.Pipeline.MinYear))
	}
	if config.Dedup.Threshold < 0 || config.Dedup.Threshold > 1 {
		errs = append(errs, fmt.Sprintf("dedup.threshold must be in [0,1], got %v", config.Dedup.Threshold))
	}
	weightSum := config.Dedup.VictimWeight + config.Dedup.LocationWeight + config.Dedup.SummaryWeight
	if math.Abs(weightSum-1.0) > 0.001 {
		errs = append(errs, fmt.Sprintf("dedup weights must sum to 1.0, got %v", weightSum))
	}
	if config.Dedup.WindowDays < 0 {
		errs = append(errs, fmt.Sprintf("dedup.window_days must be non-negative, got %d", config.Dedup.WindowDays))
	}

	durations := map[string]string{
		"database.timeout":       config.Database.Timeout,
		"llm.timeout":            config.LLM.Timeout,
		"feed.timeout":           config.Feed.Timeout,
		"pipeline.resolver_pace": config.Pipeline.ResolverPace,
		"notify.timeout":         config.Notify.Timeout,
	}
	for key, duration := range durations {
		if duration != "" {
			if _, err := time.ParseDuration(duration); err != nil {
				errs = append(errs, fmt.Sprintf("invalid duration for %s: %s", key, duration))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// Convenience getters for commonly used configuration values
func GetApp() App           { return Get().App }
func GetDatabase() Database { return Get().Database }
func GetLLM() LLM           { return Get().LLM }
func GetFeed() Feed         { return Get().Feed }
func GetPipeline() Pipeline { return Get().Pipeline }
func GetDedup() Dedup       { return Get().Dedup }
func GetNotify() Notify     { return Get().Notify }

// GetDatabaseURL returns the connection string for the relational store.
func GetDatabaseURL() string { return Get().Database.URL }

// GetLLMAPIKey returns the language-model API key, which may be empty.
func GetLLMAPIKey() string { return Get().LLM.APIKey }

// ResolverPace returns the parsed pacing interval, floored at one second.
func (p Pipeline) ResolverPaceDuration() time.Duration {
	d, err := time.ParseDuration(p.ResolverPace)
	if err != nil || d < time.Second {
		return time.Second
	}
	return d
}

// TimeoutDuration returns the parsed model-call timeout, defaulting to 60s.
func (l LLM) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(l.Timeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// TimeoutDuration returns the parsed feed timeout, defaulting to 30s.
func (f Feed) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(f.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// TimeoutDuration returns the parsed notifier timeout, defaulting to 10s.
func (n Notify) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(n.Timeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// Reset clears the global configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viper.Reset()
}
