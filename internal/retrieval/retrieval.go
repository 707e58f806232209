// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package retrieval queries web search providers and returns unified,
// URL-deduplicated Information records. Result ranking, retry policy,
// and rate limiting live here, behind the Retriever contract the
// discourse engine consumes.
package retrieval

import (
	"context"
	"fmt"
	"sync"

	"github.com/pdiddy/roundtable/pkg/types"
)

// Retriever is the retrieval capability consumed by agents: run each
// query and return deduplicated results, skipping excluded URLs.
type Retriever interface {
	Retrieve(ctx context.Context, queries []string, excludeURLs []string) ([]types.Information, error)
}

// Backend searches a single provider. Each backend (Bing, Tavily)
// implements this interface.
type Backend interface {
	Name() string
	Search(ctx context.Context, query string, cfg types.RetrievalConfig) ([]types.Information, error)
}

// Combined fans queries out to all configured backends and merges the
// results. Backend failures are collected, not fatal: a query that
// yields nothing is a valid (if weak) outcome.
type Combined struct {
	Backends []Backend
	Config   types.RetrievalConfig
}

// NewCombined builds a Combined retriever from config. Backends without
// credentials are left out.
func NewCombined(cfg types.RetrievalConfig) (*Combined, error) {
	var backends []Backend
	if cfg.EnableBing && cfg.BingAPIKey != "" {
		backends = append(backends, &BingBackend{APIKey: cfg.BingAPIKey})
	}
	if cfg.EnableTavily && cfg.TavilyAPIKey != "" {
		backends = append(backends, &TavilyBackend{APIKey: cfg.TavilyAPIKey})
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("no retrieval backends configured: enable bing or tavily and provide an API key")
	}
	return &Combined{Backends: backends, Config: cfg}, nil
}

// Retrieve runs every query against every backend concurrently,
// deduplicates by URL (merging snippet sets), and drops excluded URLs.
// Each returned record's Meta.Query is the query that found it.
func (c *Combined) Retrieve(ctx context.Context, queries []string, excludeURLs []string) ([]types.Information, error) {
	excluded := make(map[string]bool, len(excludeURLs))
	for _, u := range excludeURLs {
		excluded[u] = true
	}

	type searchResult struct {
		infos []types.Information
		err   error
		name  string
		query string
	}

	ch := make(chan searchResult, len(queries)*len(c.Backends))
	var wg sync.WaitGroup

	for _, query := range queries {
		for _, b := range c.Backends {
			wg.Add(1)
			go func(b Backend, query string) {
				defer wg.Done()
				infos, err := b.Search(ctx, query, c.Config)
				for i := range infos {
					infos[i].Meta.Query = query
				}
				ch <- searchResult{infos: infos, err: err, name: b.Name(), query: query}
			}(b, query)
		}
	}

	go func() {
		wg.Wait()
		close(ch)
	}()

	var all []types.Information
	var firstErr error
	succeeded := false
	for sr := range ch {
		if sr.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s %q: %w", sr.name, sr.query, sr.err)
			}
			continue
		}
		succeeded = true
		all = append(all, sr.infos...)
	}

	// All backends failing for all queries is an error; partial failure is not.
	if !succeeded && firstErr != nil {
		return nil, firstErr
	}

	var kept []types.Information
	for _, info := range all {
		if !excluded[info.URL] {
			kept = append(kept, info)
		}
	}

	return Deduplicate(kept), nil
}

// Deduplicate merges records that share a URL, unioning their snippet
// sets and keeping the first record's metadata.
func Deduplicate(infos []types.Information) []types.Information {
	seen := make(map[string]int) // URL → index in deduped
	var deduped []types.Information

	for _, info := range infos {
		if idx, ok := seen[info.URL]; ok {
			deduped[idx].MergeSnippets(info)
			continue
		}
		seen[info.URL] = len(deduped)
		deduped = append(deduped, info)
	}
	return deduped
}
