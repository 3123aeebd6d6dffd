package config

import (
	"errors"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/utat-ss/hermes/internal/auth"
)

// Server holds the HTTP server settings read from HERMES_* variables.
type Server struct {
	Addr      string
	LogLevel  slog.Level
	// LogOutput is "stdout", "stderr" or a file path rotated in place.
	LogOutput string
	Auth      auth.Config

	Workers int
	// CatalogPath is an element file loaded at startup; empty starts
	// without a catalog.
	CatalogPath string

	// TrustProxy reads client addresses from X-Forwarded-For and X-Real-IP.
	TrustProxy bool

	// RateLimit is the sustained compute requests per second allowed per
	// client; zero disables limiting.
	RateLimit float64
	RateBurst int

	// MaxEphemerisPoints caps the states one ephemeris request may return.
	MaxEphemerisPoints int
	// NodeStep spaces the interpolation nodes of numerical scans.
	NodeStep time.Duration
	// RequestTimeout bounds one compute request.
	RequestTimeout time.Duration
}

// DefaultServer returns the settings used when no variable is set.
func DefaultServer() Server {
	return Server{
		Addr:               ":8080",
		LogLevel:           slog.LevelInfo,
		LogOutput:          "stdout",
		Workers:            runtime.NumCPU(),
		RateLimit:          5,
		RateBurst:          10,
		MaxEphemerisPoints: 100000,
		NodeStep:           time.Minute,
		RequestTimeout:     60 * time.Second,
	}
}

// ServerFromEnv reads the server settings from the process environment.
// Malformed values are logged and replaced by defaults; only an unusable
// auth setup is an error.
func ServerFromEnv(logger *slog.Logger) (Server, error) {
	return serverFromLookup(os.Getenv, logger)
}

func serverFromLookup(getenv func(string) string, logger *slog.Logger) (Server, error) {
	cfg := DefaultServer()

	if v := getenv("HERMES_HTTP_ADDR"); v != "" {
		cfg.Addr = v
	}

	if v := getenv("HERMES_LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			logger.Warn("invalid HERMES_LOG_LEVEL value, using default", "value", v, "default", "info")
			cfg.LogLevel = slog.LevelInfo
		}
	}

	if v := strings.TrimSpace(getenv("HERMES_LOG_OUTPUT")); v != "" {
		cfg.LogOutput = v
	}

	if v := getenv("HERMES_AUTH_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, errors.New("HERMES_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Auth.Enabled = enabled
	}
	if cfg.Auth.Enabled {
		cfg.Auth.Token = getenv("HERMES_AUTH_TOKEN")
		if cfg.Auth.Token == "" {
			return cfg, errors.New("HERMES_AUTH_TOKEN is required when auth is enabled")
		}
	}

	if v := getenv("HERMES_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid HERMES_WORKERS value, using default", "value", v, "default", cfg.Workers)
		} else {
			cfg.Workers = n
		}
	}

	cfg.CatalogPath = strings.TrimSpace(getenv("HERMES_CATALOG_PATH"))

	if v := getenv("HERMES_TRUST_PROXY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid HERMES_TRUST_PROXY value, using default", "value", v, "default", false)
		} else {
			cfg.TrustProxy = b
		}
	}

	if v := getenv("HERMES_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			logger.Warn("invalid HERMES_RATE_LIMIT value, using default", "value", v, "default", cfg.RateLimit)
		} else {
			cfg.RateLimit = f
		}
	}

	if v := getenv("HERMES_RATE_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid HERMES_RATE_BURST value, using default", "value", v, "default", cfg.RateBurst)
		} else {
			cfg.RateBurst = n
		}
	}

	if v := getenv("HERMES_MAX_EPHEMERIS_POINTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid HERMES_MAX_EPHEMERIS_POINTS value, using default", "value", v, "default", cfg.MaxEphemerisPoints)
		} else {
			cfg.MaxEphemerisPoints = n
		}
	}

	if v := getenv("HERMES_NODE_STEP"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid HERMES_NODE_STEP value, using default", "value", v, "default", 60)
		} else {
			cfg.NodeStep = time.Duration(n) * time.Second
		}
	}

	if v := getenv("HERMES_REQUEST_TIMEOUT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid HERMES_REQUEST_TIMEOUT value, using default", "value", v, "default", 60)
		} else {
			cfg.RequestTimeout = time.Duration(n) * time.Second
		}
	}

	logger.Info("server config",
		"addr", cfg.Addr,
		"log_level", cfg.LogLevel.String(),
		"log_output", cfg.LogOutput,
		"auth_enabled", cfg.Auth.Enabled,
		"workers", cfg.Workers,
		"catalog_path", cfg.CatalogPath,
		"trust_proxy", cfg.TrustProxy,
		"rate_limit", cfg.RateLimit,
		"rate_burst", cfg.RateBurst,
		"max_ephemeris_points", cfg.MaxEphemerisPoints,
		"node_step_seconds", cfg.NodeStep.Seconds(),
	)

	return cfg, nil
}
