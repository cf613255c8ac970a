package search

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeProvider struct {
	name    string
	results []Result
	err     error
	gotOpts Options
}

func (f *fakeProvider) Name() string     { return f.name }
func (f *fakeProvider) Endpoint() string { return "https://" + f.name + ".example/search" }

func (f *fakeProvider) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	f.gotOpts = opts
	return f.results, f.err
}

func TestManagerRoutesToPrimary(t *testing.T) {
	primary := &fakeProvider{name: "a", results: []Result{{Title: "hit"}}}
	other := &fakeProvider{name: "b"}

	m := NewManager("a")
	m.Register(primary)
	m.Register(other)

	results, err := m.Search(context.Background(), "q", Options{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Title != "hit" {
		t.Errorf("results = %v", results)
	}
}

func TestManagerSearchWith(t *testing.T) {
	m := NewManager("a")
	m.Register(&fakeProvider{name: "a"})
	m.Register(&fakeProvider{name: "b", results: []Result{{Title: "from b"}}})

	results, err := m.SearchWith(context.Background(), "b", "q", Options{})
	if err != nil {
		t.Fatalf("SearchWith failed: %v", err)
	}
	if len(results) != 1 || results[0].Title != "from b" {
		t.Errorf("results = %v", results)
	}

	if _, err := m.SearchWith(context.Background(), "missing", "q", Options{}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestManagerUnconfigured(t *testing.T) {
	m := NewManager("searxng")
	if m.Configured() {
		t.Error("empty manager reports configured")
	}
	if _, err := m.Search(context.Background(), "q", Options{}); err == nil {
		t.Error("expected error with no providers")
	}
	if m.PrimaryEndpoint() != "" {
		t.Errorf("endpoint = %q", m.PrimaryEndpoint())
	}
}

func TestSearXNGSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if q := r.URL.Query().Get("q"); q != "golang" {
			t.Errorf("q = %q", q)
		}
		if f := r.URL.Query().Get("format"); f != "json" {
			t.Errorf("format = %q", f)
		}
		fmt.Fprint(w, `{"results":[
			{"title":"Go","url":"https://go.dev","content":"The Go programming language"},
			{"title":"Tour","url":"https://go.dev/tour","content":"A tour of Go"},
			{"title":"Blog","url":"https://go.dev/blog","content":"The Go blog"}
		]}`)
	}))
	defer srv.Close()

	s := NewSearXNG(srv.URL)
	results, err := s.Search(context.Background(), "golang", Options{Count: 2})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Title != "Go" || results[0].URL != "https://go.dev" {
		t.Errorf("results[0] = %+v", results[0])
	}
	if results[0].Snippet != "The Go programming language" {
		t.Errorf("snippet = %q", results[0].Snippet)
	}
}

func TestSearXNGError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewSearXNG(srv.URL)
	_, err := s.Search(context.Background(), "q", Options{})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("expected HTTP 429 error, got %v", err)
	}
}

func TestFormatResults(t *testing.T) {
	out := FormatResults([]Result{
		{Title: "One", URL: "https://one.example", Snippet: "first"},
		{Title: "Two", URL: "https://two.example"},
	})
	if !strings.Contains(out, "1. One") || !strings.Contains(out, "2. Two") {
		t.Errorf("out = %q", out)
	}
	if !strings.Contains(out, "first") {
		t.Errorf("missing snippet: %q", out)
	}

	if FormatResults(nil) != "No results found." {
		t.Error("empty results should say so")
	}
}
