package fetch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmnelson/ollie/internal/tools"
)

// RegisterTool adds the web_fetch tool backed by f.
func RegisterTool(registry *tools.Registry, f *Fetcher) error {
	return registry.Register(&tools.Tool{
		Name:        "web_fetch",
		Description: "Fetch a web page and return its readable text content.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "URL to fetch. Defaults to https when no scheme is given.",
				},
				"max_chars": map[string]any{
					"type":        "integer",
					"description": "Maximum characters of extracted text to return. Default: 50000.",
				},
			},
			"required": []string{"url"},
		},
		Kind: "fetch",
		Target: func(args map[string]any) string {
			url, _ := args["url"].(string)
			return url
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			url, _ := args["url"].(string)
			maxChars := 0
			if mc, ok := args["max_chars"].(float64); ok {
				maxChars = int(mc)
			}

			result, err := f.Fetch(ctx, url, maxChars)
			if err != nil {
				return "", err
			}
			out, err := json.Marshal(result)
			if err != nil {
				return fmt.Sprintf("Title: %s\n\n%s", result.Title, result.Content), nil
			}
			return string(out), nil
		},
	})
}
