// Package gemini adapts the Google Gen AI SDK to the core model interfaces.
package gemini

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/vango-go/vai-voice/pkg/core"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "gemini-1.5-flash"

	// DefaultMaxOutputTokens bounds dialogue replies when unset.
	DefaultMaxOutputTokens = 1000

	probePrompt = "Hello"
)

// Provider implements core.Provider for the Gemini API.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	mu     sync.Mutex
	client *genai.Client
}

// New creates a new Gemini provider. The SDK client is created on first use.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "gemini"
}

// Model returns a handle for the named model.
func (p *Provider) Model(name string) core.Model {
	if strings.TrimSpace(name) == "" {
		name = DefaultModel
	}
	return &Model{provider: p, name: name}
}

func (p *Provider) sdk(ctx context.Context) (*genai.Client, error) {
	if p.apiKey == "" {
		return nil, core.NewAuthError(core.AuthMessage)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}

	cfg := &genai.ClientConfig{
		APIKey:     p.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: p.httpClient,
	}
	if p.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: p.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, mapError(err)
	}
	p.client = client
	return client, nil
}

// Model is one Gemini model.
type Model struct {
	provider *Provider
	name     string
}

// Name returns the model identifier.
func (m *Model) Name() string {
	return m.name
}

// Probe sends a one-word prompt so credential and quota problems surface
// before a dialogue is opened.
func (m *Model) Probe(ctx context.Context) error {
	client, err := m.provider.sdk(ctx)
	if err != nil {
		return err
	}
	if _, err := client.Models.GenerateContent(ctx, m.name, genai.Text(probePrompt), nil); err != nil {
		return mapError(err)
	}
	return nil
}

// OpenDialogue creates a chat with empty history.
func (m *Model) OpenDialogue(ctx context.Context, cfg core.DialogueConfig) (core.Dialogue, error) {
	client, err := m.provider.sdk(ctx)
	if err != nil {
		return nil, err
	}
	maxTokens := cfg.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxOutputTokens
	}
	chat, err := client.Chats.Create(ctx, m.name, &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
	}, nil)
	if err != nil {
		return nil, mapError(err)
	}
	return &dialogue{chat: chat}, nil
}

type chatSender interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type dialogue struct {
	chat chatSender
}

func (d *dialogue) Send(ctx context.Context, parts ...core.Part) (string, error) {
	resp, err := d.chat.SendMessage(ctx, toGenAIParts(parts)...)
	if err != nil {
		return "", mapError(err)
	}
	if resp == nil {
		return "", nil
	}
	return resp.Text(), nil
}

func toGenAIParts(parts []core.Part) []genai.Part {
	out := make([]genai.Part, 0, len(parts))
	for _, part := range parts {
		if part.Audio != nil {
			out = append(out, genai.Part{InlineData: &genai.Blob{
				Data:     part.Audio.Data,
				MIMEType: part.Audio.MIMEType,
			}})
			continue
		}
		if part.Text != "" {
			out = append(out, genai.Part{Text: part.Text})
		}
	}
	return out
}
