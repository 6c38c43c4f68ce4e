// Package gemini adapts the Google Gen AI SDK to the core model interfaces.
package gemini

import "net/http"

// Option configures the Provider.
type Option func(*Provider)

// WithBaseURL overrides the Gemini API endpoint.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = url
	}
}

// WithHTTPClient sets the HTTP client for API requests.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = client
	}
}
