package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

const (
	defaultListenAddr = ":8080"
	defaultDBPath     = "nexus.db"

	envListenAddr = "NEXUS_LISTEN_ADDR"
	envDBPath     = "NEXUS_DB_PATH"
	envLogLevel   = "NEXUS_LOG_LEVEL"

	envBreakerCooldown = "NEXUS_BREAKER_COOLDOWN"
	envHTTPTimeout     = "NEXUS_BACKEND_TIMEOUT"
	envLocalTimeout    = "NEXUS_LOCAL_TIMEOUT"
	envPaizaTimeout    = "NEXUS_PAIZA_TIMEOUT"

	envPistonURL      = "NEXUS_PISTON_URL"
	envPistonMirror   = "NEXUS_PISTON_MIRROR_URL"
	envJudge0URL      = "NEXUS_JUDGE0_URL"
	envWandboxURL     = "NEXUS_WANDBOX_URL"
	envPaizaURL       = "NEXUS_PAIZA_URL"
	envPaizaAPIKey    = "NEXUS_PAIZA_API_KEY"
	envOneCompilerURL = "NEXUS_ONECOMPILER_URL"
	envLocalExec      = "NEXUS_LOCAL_EXEC"
)

// Defaults for the hosted execution providers. Each can be overridden to
// point at a self-hosted or mirror deployment.
const (
	defaultPistonURL      = "https://emkc.org/api/v2/piston/execute"
	defaultJudge0URL      = "https://ce.judge0.com/submissions?base64_encoded=false&wait=true"
	defaultWandboxURL     = "https://wandbox.org/api/compile.json"
	defaultPaizaURL       = "http://api.paiza.io"
	defaultOneCompilerURL = "https://onecompiler.com/api/code/exec"

	defaultBreakerCooldown = 60 * time.Second
	defaultHTTPTimeout     = 15 * time.Second
	defaultLocalTimeout    = 10 * time.Second
	// Paiza's two-phase create/poll protocol needs more headroom than a
	// single round trip.
	defaultPaizaTimeout = 30 * time.Second
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level

	BreakerCooldown time.Duration
	HTTPTimeout     time.Duration
	LocalTimeout    time.Duration
	PaizaTimeout    time.Duration

	PistonURL       string
	PistonMirrorURL string
	Judge0URL       string
	WandboxURL      string
	PaizaURL        string
	PaizaAPIKey     string
	OneCompilerURL  string

	// LocalExec enables the local os/exec backend. Off by default: running
	// submitted code on the host only makes sense inside a sandboxed
	// deployment.
	LocalExec bool
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	cfg := Config{
		ListenAddr:      defaultListenAddr,
		DBPath:          defaultDBPath,
		LogLevel:        slog.LevelInfo,
		BreakerCooldown: defaultBreakerCooldown,
		HTTPTimeout:     defaultHTTPTimeout,
		LocalTimeout:    defaultLocalTimeout,
		PaizaTimeout:    defaultPaizaTimeout,
		PistonURL:       defaultPistonURL,
		Judge0URL:       defaultJudge0URL,
		WandboxURL:      defaultWandboxURL,
		PaizaURL:        defaultPaizaURL,
		OneCompilerURL:  defaultOneCompilerURL,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}

	cfg.BreakerCooldown = durationEnv(envBreakerCooldown, cfg.BreakerCooldown)
	cfg.HTTPTimeout = durationEnv(envHTTPTimeout, cfg.HTTPTimeout)
	cfg.LocalTimeout = durationEnv(envLocalTimeout, cfg.LocalTimeout)
	cfg.PaizaTimeout = durationEnv(envPaizaTimeout, cfg.PaizaTimeout)

	if v := os.Getenv(envPistonURL); v != "" {
		cfg.PistonURL = v
	}
	cfg.PistonMirrorURL = os.Getenv(envPistonMirror)
	if v := os.Getenv(envJudge0URL); v != "" {
		cfg.Judge0URL = v
	}
	if v := os.Getenv(envWandboxURL); v != "" {
		cfg.WandboxURL = v
	}
	if v := os.Getenv(envPaizaURL); v != "" {
		cfg.PaizaURL = v
	}
	cfg.PaizaAPIKey = os.Getenv(envPaizaAPIKey)
	if v := os.Getenv(envOneCompilerURL); v != "" {
		cfg.OneCompilerURL = v
	}
	cfg.LocalExec = boolEnv(envLocalExec)

	return cfg
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func boolEnv(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
