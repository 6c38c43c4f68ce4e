package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr string

	// Remote model.
	GeminiAPIKey    string
	Model           string
	MaxOutputTokens int
	RemoteTimeout   time.Duration

	// Turn handling.
	MaxUploadBytes     int64
	MinAudioBytes      int
	QuotaBackoff       time.Duration
	FallbackPolicyFile string

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Session event WebSocket (/api/gemini/events).
	EventsPingInterval time.Duration
	EventsWriteTimeout time.Duration

	// In-memory limits (per session).
	LimitRPS                   float64
	LimitBurst                 int
	LimitMaxConcurrentRequests int
	LimitMaxConcurrentStreams  int

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	HandlerTimeout      time.Duration
	ShutdownGracePeriod time.Duration

	LogLevel slog.Level
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                       envOr("VOICE_ADDR", ":3001"),
		GeminiAPIKey:               envOr("GEMINI_API_KEY", ""),
		Model:                      envOr("GEMINI_MODEL", "gemini-1.5-flash"),
		MaxOutputTokens:            envIntOr("VOICE_MAX_OUTPUT_TOKENS", 1000),
		RemoteTimeout:              envDurationOr("VOICE_REMOTE_TIMEOUT", 30*time.Second),
		MaxUploadBytes:             envInt64Or("VOICE_MAX_UPLOAD_BYTES", 50<<20), // 50 MiB
		MinAudioBytes:              envIntOr("VOICE_MIN_AUDIO_BYTES", 1000),
		QuotaBackoff:               envDurationOr("VOICE_QUOTA_BACKOFF", 60*time.Second),
		FallbackPolicyFile:         envOr("VOICE_FALLBACK_POLICY_FILE", ""),
		CORSAllowedOrigins:         make(map[string]struct{}),
		EventsPingInterval:         envDurationOr("VOICE_EVENTS_PING_INTERVAL", 20*time.Second),
		EventsWriteTimeout:         envDurationOr("VOICE_EVENTS_WRITE_TIMEOUT", 5*time.Second),
		LimitRPS:                   envFloat64Or("VOICE_RATE_LIMIT_RPS", 1.0),
		LimitBurst:                 envIntOr("VOICE_RATE_LIMIT_BURST", 5),
		LimitMaxConcurrentRequests: envIntOr("VOICE_MAX_CONCURRENT_REQUESTS", 4),
		LimitMaxConcurrentStreams:  envIntOr("VOICE_MAX_EVENT_STREAMS", 2),
		ReadHeaderTimeout:          envDurationOr("VOICE_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:                envDurationOr("VOICE_READ_TIMEOUT", 60*time.Second),
		HandlerTimeout:             envDurationOr("VOICE_HANDLER_TIMEOUT", 4*time.Minute),
		ShutdownGracePeriod:        envDurationOr("VOICE_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	origins := os.Getenv("VOICE_CORS_ORIGINS")
	if strings.TrimSpace(origins) == "" {
		origins = "http://localhost:3000"
	}
	for _, origin := range splitCSV(origins) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	level, err := parseLevel(envOr("VOICE_LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}
	cfg.LogLevel = level

	if cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("GEMINI_API_KEY must be set")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return Config{}, fmt.Errorf("GEMINI_MODEL must not be empty")
	}
	if cfg.MaxOutputTokens <= 0 {
		return Config{}, fmt.Errorf("VOICE_MAX_OUTPUT_TOKENS must be > 0")
	}
	if cfg.RemoteTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICE_REMOTE_TIMEOUT must be > 0")
	}
	if cfg.MaxUploadBytes <= 0 {
		return Config{}, fmt.Errorf("VOICE_MAX_UPLOAD_BYTES must be > 0")
	}
	if cfg.MinAudioBytes < 0 {
		return Config{}, fmt.Errorf("VOICE_MIN_AUDIO_BYTES must be >= 0")
	}
	if int64(cfg.MinAudioBytes) > cfg.MaxUploadBytes {
		return Config{}, fmt.Errorf("VOICE_MIN_AUDIO_BYTES must be <= VOICE_MAX_UPLOAD_BYTES")
	}
	if cfg.QuotaBackoff <= 0 {
		return Config{}, fmt.Errorf("VOICE_QUOTA_BACKOFF must be > 0")
	}
	if cfg.FallbackPolicyFile != "" {
		if _, err := os.Stat(cfg.FallbackPolicyFile); err != nil {
			return Config{}, fmt.Errorf("VOICE_FALLBACK_POLICY_FILE: %w", err)
		}
	}
	if cfg.EventsPingInterval <= 0 {
		return Config{}, fmt.Errorf("VOICE_EVENTS_PING_INTERVAL must be > 0")
	}
	if cfg.EventsWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICE_EVENTS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICE_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICE_READ_TIMEOUT must be > 0")
	}
	if cfg.HandlerTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICE_HANDLER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("VOICE_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	if cfg.LimitRPS < 0 {
		return Config{}, fmt.Errorf("VOICE_RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.LimitBurst < 0 {
		return Config{}, fmt.Errorf("VOICE_RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.LimitMaxConcurrentRequests < 0 {
		return Config{}, fmt.Errorf("VOICE_MAX_CONCURRENT_REQUESTS must be >= 0")
	}
	if cfg.LimitMaxConcurrentStreams < 0 {
		return Config{}, fmt.Errorf("VOICE_MAX_EVENT_STREAMS must be >= 0")
	}

	return cfg, nil
}

func parseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return 0, fmt.Errorf("VOICE_LOG_LEVEL must be one of debug|info|warn|error")
	}
	return level, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
