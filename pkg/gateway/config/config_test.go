package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var gatewayEnvKeys = []string{
	"VOICE_ADDR",
	"GEMINI_API_KEY",
	"GEMINI_MODEL",
	"VOICE_MAX_OUTPUT_TOKENS",
	"VOICE_REMOTE_TIMEOUT",
	"VOICE_MAX_UPLOAD_BYTES",
	"VOICE_MIN_AUDIO_BYTES",
	"VOICE_QUOTA_BACKOFF",
	"VOICE_FALLBACK_POLICY_FILE",
	"VOICE_CORS_ORIGINS",
	"VOICE_EVENTS_PING_INTERVAL",
	"VOICE_EVENTS_WRITE_TIMEOUT",
	"VOICE_RATE_LIMIT_RPS",
	"VOICE_RATE_LIMIT_BURST",
	"VOICE_MAX_CONCURRENT_REQUESTS",
	"VOICE_MAX_EVENT_STREAMS",
	"VOICE_READ_HEADER_TIMEOUT",
	"VOICE_READ_TIMEOUT",
	"VOICE_HANDLER_TIMEOUT",
	"VOICE_SHUTDOWN_GRACE_PERIOD",
	"VOICE_LOG_LEVEL",
}

func clearGatewayEnv(t *testing.T) {
	t.Helper()
	for _, key := range gatewayEnvKeys {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv error: %v", err)
	}
	if cfg.Addr != ":3001" {
		t.Fatalf("Addr=%q", cfg.Addr)
	}
	if cfg.Model != "gemini-1.5-flash" || cfg.MaxOutputTokens != 1000 {
		t.Fatalf("model=%q max_tokens=%d", cfg.Model, cfg.MaxOutputTokens)
	}
	if cfg.MaxUploadBytes != 50<<20 || cfg.MinAudioBytes != 1000 {
		t.Fatalf("upload=%d min_audio=%d", cfg.MaxUploadBytes, cfg.MinAudioBytes)
	}
	if cfg.RemoteTimeout != 30*time.Second || cfg.QuotaBackoff != 60*time.Second {
		t.Fatalf("remote_timeout=%v backoff=%v", cfg.RemoteTimeout, cfg.QuotaBackoff)
	}
	if _, ok := cfg.CORSAllowedOrigins["http://localhost:3000"]; !ok || len(cfg.CORSAllowedOrigins) != 1 {
		t.Fatalf("cors=%v", cfg.CORSAllowedOrigins)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("log level=%v", cfg.LogLevel)
	}
}

func TestLoadFromEnv_RequiresAPIKey(t *testing.T) {
	clearGatewayEnv(t)

	_, err := LoadFromEnv()
	if err == nil || !strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Fatalf("err=%v", err)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("VOICE_ADDR", "127.0.0.1:9000")
	t.Setenv("VOICE_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("VOICE_REMOTE_TIMEOUT", "5s")
	t.Setenv("VOICE_LOG_LEVEL", "debug")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv error: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9000" || cfg.RemoteTimeout != 5*time.Second {
		t.Fatalf("cfg=%+v", cfg)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("cors=%v", cfg.CORSAllowedOrigins)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("log level=%v", cfg.LogLevel)
	}
}

func TestLoadFromEnv_Validation(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"VOICE_MAX_OUTPUT_TOKENS", "0", "VOICE_MAX_OUTPUT_TOKENS"},
		{"VOICE_REMOTE_TIMEOUT", "-1s", "VOICE_REMOTE_TIMEOUT"},
		{"VOICE_MAX_UPLOAD_BYTES", "-5", "VOICE_MAX_UPLOAD_BYTES"},
		{"VOICE_MIN_AUDIO_BYTES", "-1", "VOICE_MIN_AUDIO_BYTES"},
		{"VOICE_QUOTA_BACKOFF", "-1s", "VOICE_QUOTA_BACKOFF"},
		{"VOICE_RATE_LIMIT_RPS", "-1", "VOICE_RATE_LIMIT_RPS"},
		{"VOICE_LOG_LEVEL", "loud", "VOICE_LOG_LEVEL"},
		{"VOICE_FALLBACK_POLICY_FILE", "/does/not/exist.yaml", "VOICE_FALLBACK_POLICY_FILE"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearGatewayEnv(t)
			t.Setenv("GEMINI_API_KEY", "test-key")
			t.Setenv(tt.key, tt.value)

			_, err := LoadFromEnv()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err=%v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestLoadFromEnv_PolicyFileExists(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("GEMINI_API_KEY", "test-key")
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("candidates: [audio/wav]\n"), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	t.Setenv("VOICE_FALLBACK_POLICY_FILE", path)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv error: %v", err)
	}
	if cfg.FallbackPolicyFile != path {
		t.Fatalf("policy file=%q", cfg.FallbackPolicyFile)
	}
}
