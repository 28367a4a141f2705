// Package config provides configuration management for FormKeeper.
package config

import (
	"time"

	"github.com/formkeeper/formkeeper/internal/types"
)

// EngineConfig holds runtime configuration for a form engine instance.
type EngineConfig struct {
	FormID        string
	HistoryLimit  int
	QueueSize     int
	JobTimeout    time.Duration
	CascadeDepth  int
	Strict        bool
	DatabaseURL   string
	WatchDebounce time.Duration
}

// DefaultEngineConfig returns configuration with default values.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		FormID:        "default",
		HistoryLimit:  types.DefaultHistoryLimit,
		QueueSize:     types.MaxQueueDepth,
		JobTimeout:    5 * time.Second,
		CascadeDepth:  0,
		Strict:        false,
		DatabaseURL:   "",
		WatchDebounce: 250 * time.Millisecond,
	}
}
