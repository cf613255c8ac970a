// Package search provides a pluggable web search backend for the
// web_search tool. Providers register by name with a Manager, which
// routes queries to the configured primary.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Result is a single search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Options are optional query parameters.
type Options struct {
	// Count caps the number of results. Zero means the provider
	// default.
	Count int `json:"count,omitempty"`

	// Language is an ISO 639-1 code ("en", "de").
	Language string `json:"language,omitempty"`
}

// Provider is a search backend.
type Provider interface {
	// Name identifies the provider ("searxng", "brave").
	Name() string

	// Endpoint is the URL queries are sent to, used by the
	// permission gate.
	Endpoint() string

	// Search runs a query.
	Search(ctx context.Context, query string, opts Options) ([]Result, error)
}

// Manager routes searches to registered providers.
type Manager struct {
	providers map[string]Provider
	primary   string
}

// NewManager creates a Manager whose default backend is primary.
func NewManager(primary string) *Manager {
	return &Manager{
		providers: make(map[string]Provider),
		primary:   primary,
	}
}

// Register adds a provider.
func (m *Manager) Register(p Provider) {
	m.providers[p.Name()] = p
}

// Search runs a query against the primary provider.
func (m *Manager) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	return m.SearchWith(ctx, m.primary, query, opts)
}

// SearchWith runs a query against a specific provider.
func (m *Manager) SearchWith(ctx context.Context, provider, query string, opts Options) ([]Result, error) {
	p, ok := m.providers[provider]
	if !ok {
		return nil, fmt.Errorf("search provider %q not configured", provider)
	}
	return p.Search(ctx, query, opts)
}

// PrimaryEndpoint returns the primary provider's query URL, or "".
func (m *Manager) PrimaryEndpoint() string {
	if p, ok := m.providers[m.primary]; ok {
		return p.Endpoint()
	}
	return ""
}

// Providers returns the registered provider names, sorted.
func (m *Manager) Providers() []string {
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Configured reports whether any provider is registered.
func (m *Manager) Configured() bool {
	return len(m.providers) > 0
}

// FormatResults renders results as a numbered plain-text list.
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return "No results found."
	}

	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%d. %s\n   %s", i+1, r.Title, r.URL)
		if r.Snippet != "" {
			b.WriteString("\n   ")
			b.WriteString(r.Snippet)
		}
	}
	return b.String()
}
