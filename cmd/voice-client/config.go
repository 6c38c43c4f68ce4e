package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	vai "github.com/vango-go/vai-voice/sdk"
)

const (
	defaultTurnTimeout = 2 * time.Minute
	defaultLogLevel    = "warn"
)

type clientConfig struct {
	BaseURL     string
	SessionID   string
	TurnTimeout time.Duration
	SpeechRate  float64
	Voice       string
	NoSpeech    bool
	NoMic       bool
	LogLevel    slog.Level
}

func parseClientConfig(args []string, getenv func(string) string) (clientConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := clientConfig{}
	var level string
	fs := flag.NewFlagSet("voice-client", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.BaseURL, "gateway", envOr(getenv, "VOICE_GATEWAY_URL", vai.DefaultBaseURL), "voice gateway base URL (or VOICE_GATEWAY_URL)")
	fs.StringVar(&cfg.SessionID, "session", strings.TrimSpace(getenv("VOICE_SESSION_ID")), "conversation session id; random when empty (or VOICE_SESSION_ID)")
	fs.DurationVar(&cfg.TurnTimeout, "timeout", defaultTurnTimeout, "per-turn timeout (e.g. 90s)")
	fs.Float64Var(&cfg.SpeechRate, "rate", envFloat(getenv, "VOICE_SPEECH_RATE", 0.95), "speech rate relative to normal (or VOICE_SPEECH_RATE)")
	fs.StringVar(&cfg.Voice, "voice", strings.TrimSpace(getenv("VOICE_VOICE")), "synthesizer voice id; chosen automatically when empty (or VOICE_VOICE)")
	fs.BoolVar(&cfg.NoSpeech, "mute", false, "start with spoken replies off")
	fs.BoolVar(&cfg.NoMic, "no-mic", false, "disable microphone capture")
	fs.StringVar(&level, "log-level", envOr(getenv, "VOICE_LOG_LEVEL", defaultLogLevel), "debug, info, warn or error (or VOICE_LOG_LEVEL)")

	if err := fs.Parse(args); err != nil {
		return clientConfig{}, err
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return clientConfig{}, fmt.Errorf("invalid log level %q", level)
	}
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)

	if err := validateClientConfig(cfg); err != nil {
		return clientConfig{}, err
	}
	return cfg, nil
}

func validateClientConfig(cfg clientConfig) error {
	if cfg.BaseURL == "" {
		return errors.New("gateway must not be empty")
	}
	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil || strings.TrimSpace(baseURL.Scheme) == "" || strings.TrimSpace(baseURL.Host) == "" {
		return errors.New("gateway must be a valid absolute URL")
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return fmt.Errorf("gateway scheme %q must be http or https", baseURL.Scheme)
	}
	if baseURL.User != nil {
		return errors.New("gateway must not include credentials")
	}
	if cfg.TurnTimeout <= 0 {
		return errors.New("timeout must be > 0")
	}
	if cfg.SpeechRate <= 0 || cfg.SpeechRate > 4 {
		return errors.New("rate must be in (0, 4]")
	}
	return nil
}

func envOr(getenv func(string) string, key, fallback string) string {
	if v := strings.TrimSpace(getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envFloat(getenv func(string) string, key string, fallback float64) float64 {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
