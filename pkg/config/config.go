// Package config holds the gateway's process-level configuration, loaded
// from environment variables, and the on-disk layout of a project's .ta/
// control directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// GatewayConfig holds the gateway's process configuration.
type GatewayConfig struct {
	LogLevel        string
	RedisAddr       string
	RateLimitMode   string // "local" or "redis"
	OTELEndpoint    string
	ManifestTTLMins int
}

// Load reads process configuration from environment variables, applying
// the same defaults a locally-run gateway would need with nothing set.
func Load() *GatewayConfig {
	logLevel := os.Getenv("TA_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	redisAddr := os.Getenv("TA_REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	rateLimitMode := os.Getenv("TA_RATE_LIMIT_MODE")
	if rateLimitMode == "" {
		rateLimitMode = "local"
	}

	otelEndpoint := os.Getenv("TA_OTEL_ENDPOINT")

	return &GatewayConfig{
		LogLevel:        logLevel,
		RedisAddr:       redisAddr,
		RateLimitMode:   rateLimitMode,
		OTELEndpoint:    otelEndpoint,
		ManifestTTLMins: 60,
	}
}

// ProjectLayout is the set of paths under a project's .ta/ control
// directory that every component reads from or writes to.
type ProjectLayout struct {
	Root                   string
	ControlDir             string
	StagingDir             string
	StoreDir               string
	GoalsDir               string
	DraftsDir              string
	ReviewSessionsDir      string
	InteractiveSessionsDir string
	AuditLogPath           string
	EventsLogPath          string
}

// ForProject builds (and creates on disk) the standard .ta/ layout rooted
// at projectRoot.
func ForProject(projectRoot string) (*ProjectLayout, error) {
	control := filepath.Join(projectRoot, ".ta")
	layout := &ProjectLayout{
		Root:                   projectRoot,
		ControlDir:             control,
		StagingDir:             filepath.Join(control, "staging"),
		StoreDir:               filepath.Join(control, "store"),
		GoalsDir:               filepath.Join(control, "goals"),
		DraftsDir:              filepath.Join(control, "drafts"),
		ReviewSessionsDir:      filepath.Join(control, "review_sessions"),
		InteractiveSessionsDir: filepath.Join(control, "interactive_sessions"),
		AuditLogPath:           filepath.Join(control, "audit.jsonl"),
		EventsLogPath:          filepath.Join(control, "events.jsonl"),
	}

	dirs := []string{
		layout.StagingDir,
		layout.StoreDir,
		layout.GoalsDir,
		layout.DraftsDir,
		layout.ReviewSessionsDir,
		layout.InteractiveSessionsDir,
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("config: create %s: %w", d, err)
		}
	}
	return layout, nil
}
