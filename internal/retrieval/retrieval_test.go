// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/roundtable/pkg/types"
)

// stubBackend returns canned results keyed by query.
type stubBackend struct {
	name    string
	results map[string][]types.Information
	err     error
}

func (s *stubBackend) Name() string { return s.name }

func (s *stubBackend) Search(_ context.Context, query string, _ types.RetrievalConfig) ([]types.Information, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.results[query], nil
}

func info(url, snippet string) types.Information {
	return types.Information{URL: url, Title: "t:" + url, Snippets: []string{snippet}}
}

func TestRetrieveDeduplicatesAcrossQueries(t *testing.T) {
	b := &stubBackend{
		name: "stub",
		results: map[string][]types.Information{
			"q1": {info("https://a.example", "s1"), info("https://b.example", "s2")},
			"q2": {info("https://a.example", "s3")},
		},
	}
	c := &Combined{Backends: []Backend{b}}

	out, err := c.Retrieve(context.Background(), []string{"q1", "q2"}, nil)
	require.NoError(t, err)
	require.Len(t, out, 2)

	byURL := make(map[string]types.Information)
	for _, i := range out {
		byURL[i.URL] = i
	}
	assert.ElementsMatch(t, []string{"s1", "s3"}, byURL["https://a.example"].Snippets)
	assert.Equal(t, []string{"s2"}, byURL["https://b.example"].Snippets)
}

func TestRetrieveTagsQueryIntent(t *testing.T) {
	b := &stubBackend{
		name: "stub",
		results: map[string][]types.Information{
			"solar power": {info("https://a.example", "s1")},
		},
	}
	c := &Combined{Backends: []Backend{b}}

	out, err := c.Retrieve(context.Background(), []string{"solar power"}, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "solar power", out[0].Meta.Query)
}

func TestRetrieveExcludesURLs(t *testing.T) {
	b := &stubBackend{
		name: "stub",
		results: map[string][]types.Information{
			"q": {info("https://keep.example", "s1"), info("https://skip.example", "s2")},
		},
	}
	c := &Combined{Backends: []Backend{b}}

	out, err := c.Retrieve(context.Background(), []string{"q"}, []string{"https://skip.example"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "https://keep.example", out[0].URL)
}

func TestRetrievePartialBackendFailure(t *testing.T) {
	good := &stubBackend{
		name: "good",
		results: map[string][]types.Information{
			"q": {info("https://a.example", "s1")},
		},
	}
	bad := &stubBackend{name: "bad", err: fmt.Errorf("boom")}
	c := &Combined{Backends: []Backend{good, bad}}

	out, err := c.Retrieve(context.Background(), []string{"q"}, nil)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestRetrieveTotalFailure(t *testing.T) {
	bad := &stubBackend{name: "bad", err: fmt.Errorf("boom")}
	c := &Combined{Backends: []Backend{bad}}

	_, err := c.Retrieve(context.Background(), []string{"q"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestNewCombinedRequiresBackend(t *testing.T) {
	_, err := NewCombined(types.RetrievalConfig{})
	require.Error(t, err)
}

func TestBingBackendSearch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("Ocp-Apim-Subscription-Key"))
		assert.Equal(t, "solar balconies", r.URL.Query().Get("q"))

		json.NewEncoder(w).Encode(bingResponse{
			WebPages: bingWebPages{Value: []bingPage{
				{Name: "Page A", URL: "https://a.example", Snippet: "snippet a"},
				{Name: "No snippet", URL: "https://b.example"},
			}},
		})
	}))
	defer ts.Close()

	old := bingAPIBase
	bingAPIBase = ts.URL
	defer func() { bingAPIBase = old }()

	b := &BingBackend{APIKey: "secret", Client: ts.Client()}
	out, err := b.Search(context.Background(), "solar balconies", types.RetrievalConfig{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Page A", out[0].Title)
	assert.Equal(t, []string{"snippet a"}, out[0].Snippets)
}

func TestTavilyBackendSearch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tvly", r.Header.Get("Authorization"))

		var req tavilyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "battery storage", req.Query)

		json.NewEncoder(w).Encode(tavilyResponse{
			Results: []tavilyResult{
				{Title: "Result A", URL: "https://a.example", Content: "content a"},
			},
		})
	}))
	defer ts.Close()

	old := tavilyAPIBase
	tavilyAPIBase = ts.URL
	defer func() { tavilyAPIBase = old }()

	b := &TavilyBackend{APIKey: "tvly", Client: ts.Client()}
	out, err := b.Search(context.Background(), "battery storage", types.RetrievalConfig{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Result A", out[0].Title)
}

func TestBingBackendHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	old := bingAPIBase
	bingAPIBase = ts.URL
	defer func() { bingAPIBase = old }()

	b := &BingBackend{APIKey: "bad", Client: ts.Client()}
	_, err := b.Search(context.Background(), "q", types.RetrievalConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 401")
}
