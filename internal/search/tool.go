package search

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmnelson/ollie/internal/tools"
)

// RegisterTool adds the web_search tool backed by mgr.
func RegisterTool(registry *tools.Registry, mgr *Manager) error {
	return registry.Register(&tools.Tool{
		Name:        "web_search",
		Description: "Search the web and return a list of results with titles, URLs and snippets.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query.",
				},
				"count": map[string]any{
					"type":        "integer",
					"description": "Maximum number of results (1-10). Default: 5.",
				},
				"language": map[string]any{
					"type":        "string",
					"description": "ISO 639-1 language code for results (e.g. 'en', 'de').",
				},
				"provider": map[string]any{
					"type":        "string",
					"description": "Provider to use. Omit for the default.",
				},
			},
			"required": []string{"query"},
		},
		Kind: "fetch",
		Target: func(args map[string]any) string {
			return mgr.PrimaryEndpoint()
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			query, _ := args["query"].(string)
			if query == "" {
				return "", fmt.Errorf("web_search: query is required")
			}

			opts := Options{}
			if count, ok := args["count"].(float64); ok && count > 0 {
				opts.Count = int(count)
			}
			if lang, ok := args["language"].(string); ok {
				opts.Language = lang
			}

			var results []Result
			var err error
			if provider, ok := args["provider"].(string); ok && provider != "" {
				results, err = mgr.SearchWith(ctx, provider, query, opts)
			} else {
				results, err = mgr.Search(ctx, query, opts)
			}
			if err != nil {
				return "", err
			}

			out, err := json.Marshal(results)
			if err != nil {
				return FormatResults(results), nil
			}
			return string(out), nil
		},
	})
}
