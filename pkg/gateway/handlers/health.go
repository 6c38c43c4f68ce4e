package handlers

import (
	"net/http"

	"github.com/vango-go/vai-voice/pkg/gateway/config"
	"github.com/vango-go/vai-voice/pkg/gateway/lifecycle"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// ReadyHandler reports whether the gateway is configured to serve turns and
// is not draining.
type ReadyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK            bool     `json:"ok"`
		Model         string   `json:"model"`
		Draining      bool     `json:"draining"`
		LimitsEnabled bool     `json:"limits_enabled"`
		PolicyFile    bool     `json:"policy_file"`
		Issues        []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)
	if h.Config.GeminiAPIKey == "" {
		issues = append(issues, "gemini api key is not configured")
	}
	if h.Config.Model == "" {
		issues = append(issues, "model is not configured")
	}
	if h.Config.MaxUploadBytes <= 0 {
		issues = append(issues, "max_upload_bytes must be > 0")
	}
	if h.Config.RemoteTimeout <= 0 {
		issues = append(issues, "remote timeout must be > 0")
	}
	if h.Config.ReadHeaderTimeout <= 0 || h.Config.ReadTimeout <= 0 || h.Config.HandlerTimeout <= 0 {
		issues = append(issues, "timeouts must be > 0")
	}

	draining := h.Lifecycle.IsDraining()
	if draining {
		issues = append(issues, "gateway is draining")
	}

	limitsEnabled := (h.Config.LimitRPS > 0 && h.Config.LimitBurst > 0) ||
		h.Config.LimitMaxConcurrentRequests > 0 ||
		h.Config.LimitMaxConcurrentStreams > 0

	ok := len(issues) == 0
	status := http.StatusOK
	if draining {
		status = http.StatusServiceUnavailable
	} else if !ok {
		status = http.StatusInternalServerError
	}

	writeJSON(w, status, readyResp{
		OK:            ok,
		Model:         h.Config.Model,
		Draining:      draining,
		LimitsEnabled: limitsEnabled,
		PolicyFile:    h.Config.FallbackPolicyFile != "",
		Issues:        issues,
	})
}

// CORSTestHandler answers the browser CORS probe.
type CORSTestHandler struct{}

func (h CORSTestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "CORS working!"})
}
