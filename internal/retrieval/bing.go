// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retrieval

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"context"

	"github.com/pdiddy/roundtable/internal/httputil"
	"github.com/pdiddy/roundtable/pkg/types"
)

// bingAPIBase is the Bing Web Search endpoint. Declared as a var so
// tests can substitute an httptest server.
var bingAPIBase = "https://api.bing.microsoft.com/v7.0/search"

// BingBackend queries the Bing Web Search v7 API.
type BingBackend struct {
	Client *http.Client
	APIKey string
}

// Name returns the backend identifier.
func (b *BingBackend) Name() string { return "bing" }

// Search queries Bing and converts web page hits into Information
// records (one snippet per hit).
func (b *BingBackend) Search(ctx context.Context, query string, cfg types.RetrievalConfig) ([]types.Information, error) {
	if query == "" {
		return nil, fmt.Errorf("empty Bing query")
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}

	params := url.Values{
		"q":     {query},
		"count": {fmt.Sprintf("%d", maxResults)},
	}
	reqURL := bingAPIBase + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", b.APIKey)
	if cfg.UserAgent != "" {
		req.Header.Set("User-Agent", cfg.UserAgent)
	}

	client := b.Client
	if client == nil {
		client = &http.Client{Timeout: timeoutOrDefault(cfg)}
	}

	resp, err := httputil.DoWithRetry(ctx, client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("Bing API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Bing API returned HTTP %d", resp.StatusCode)
	}

	var br bingResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return nil, fmt.Errorf("parsing Bing response: %w", err)
	}

	var results []types.Information
	for _, page := range br.WebPages.Value {
		if page.URL == "" || page.Snippet == "" {
			continue
		}
		results = append(results, types.Information{
			URL:      page.URL,
			Title:    page.Name,
			Snippets: []string{page.Snippet},
		})
	}
	return results, nil
}

func timeoutOrDefault(cfg types.RetrievalConfig) time.Duration {
	if cfg.Timeout > 0 {
		return cfg.Timeout
	}
	return 15 * time.Second
}

// Bing Web Search API JSON structures.
type bingResponse struct {
	WebPages bingWebPages `json:"webPages"`
}

type bingWebPages struct {
	Value []bingPage `json:"value"`
}

type bingPage struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}
