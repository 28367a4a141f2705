package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/formkeeper/formkeeper/internal/types"
)

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*EngineConfig, error) {
	v := viper.New()

	// Set defaults matching DefaultEngineConfig
	v.SetDefault("engine.form_id", "default")
	v.SetDefault("engine.history_limit", types.DefaultHistoryLimit)
	v.SetDefault("engine.queue_size", types.MaxQueueDepth)
	v.SetDefault("engine.job_timeout", "5s")
	v.SetDefault("engine.cascade_depth", 0)
	v.SetDefault("engine.strict", false)
	v.SetDefault("engine.database_url", "")
	v.SetDefault("engine.watch_debounce", "250ms")

	// Bind environment variables with FK_ prefix
	v.SetEnvPrefix("FK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Database credentials belong in the environment, not config files
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	cfg := &EngineConfig{
		FormID:        v.GetString("engine.form_id"),
		HistoryLimit:  v.GetInt("engine.history_limit"),
		QueueSize:     v.GetInt("engine.queue_size"),
		JobTimeout:    v.GetDuration("engine.job_timeout"),
		CascadeDepth:  v.GetInt("engine.cascade_depth"),
		Strict:        v.GetBool("engine.strict"),
		DatabaseURL:   v.GetString("engine.database_url"),
		WatchDebounce: v.GetDuration("engine.watch_debounce"),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks positive limits and bounded depths.
func validateConfig(cfg *EngineConfig) error {
	if cfg.FormID == "" {
		return fmt.Errorf("form_id must not be empty")
	}
	if cfg.HistoryLimit <= 0 {
		return fmt.Errorf("history_limit must be positive, got %d", cfg.HistoryLimit)
	}
	if cfg.QueueSize <= 0 || cfg.QueueSize > types.MaxQueueDepth {
		return fmt.Errorf("queue_size must be between 1 and %d, got %d", types.MaxQueueDepth, cfg.QueueSize)
	}
	if cfg.JobTimeout < 0 {
		return fmt.Errorf("job_timeout must not be negative, got %v", cfg.JobTimeout)
	}
	if cfg.CascadeDepth < 0 || cfg.CascadeDepth > types.MaxCascadeDepth {
		return fmt.Errorf("cascade_depth must be between 0 and %d, got %d", types.MaxCascadeDepth, cfg.CascadeDepth)
	}
	if cfg.WatchDebounce < 0 {
		return fmt.Errorf("watch_debounce must not be negative, got %v", cfg.WatchDebounce)
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only credentials (12-factor principle).
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.IsSet("database_password") || v.IsSet("engine.database_password") {
		return fmt.Errorf("database credentials not allowed in config files (embed them in FK_ENGINE_DATABASE_URL)")
	}
	return nil
}
