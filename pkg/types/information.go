// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the roundtable
// discourse engine: retrieved facts, conversation turns, and the
// configuration blocks consumed by each component.
package types

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
)

// Intent records why a piece of information was retrieved: the
// discussion question being answered and the concrete search query
// issued for it.
type Intent struct {
	// Question is the discussion question or claim that motivated the retrieval.
	Question string `json:"question" yaml:"question"`

	// Query is the search query sent to the retrieval backend.
	Query string `json:"query" yaml:"query"`
}

// String renders the intent as a single line for embedding and prompts.
func (i Intent) String() string {
	switch {
	case i.Question == "":
		return i.Query
	case i.Query == "":
		return i.Question
	default:
		return i.Question + " " + i.Query
	}
}

// Information is an immutable fact record retrieved from a provider.
// Identity is defined over (URL, sorted snippets): two records with the
// same URL are the same source, and their snippet sets are merged when
// both are registered.
type Information struct {
	// URL is the canonical identity key of the source.
	URL string `json:"url" yaml:"url"`

	// Title is the source title as returned by the provider.
	Title string `json:"title" yaml:"title"`

	// Description is the provider's summary of the source.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Snippets are the text fragments retrieved from the source.
	Snippets []string `json:"snippets" yaml:"snippets"`

	// Meta is the retrieval intent that produced this record.
	Meta Intent `json:"meta" yaml:"meta"`
}

// DedupKey returns a stable key over (URL, sorted snippets). Records
// sharing a key are exact duplicates; records sharing only the URL are
// merge candidates.
func (info Information) DedupKey() string {
	snippets := append([]string(nil), info.Snippets...)
	sort.Strings(snippets)
	h := sha256.New()
	h.Write([]byte(info.URL))
	for _, s := range snippets {
		h.Write([]byte{0})
		h.Write([]byte(s))
	}
	return fmt.Sprintf("%x", h.Sum(nil))[:16]
}

// MergeSnippets unions src's snippets into info, preserving first-seen
// order and dropping duplicates.
func (info *Information) MergeSnippets(src Information) {
	seen := make(map[string]bool, len(info.Snippets))
	for _, s := range info.Snippets {
		seen[s] = true
	}
	for _, s := range src.Snippets {
		if !seen[s] {
			info.Snippets = append(info.Snippets, s)
			seen[s] = true
		}
	}
	if info.Title == "" {
		info.Title = src.Title
	}
	if info.Description == "" {
		info.Description = src.Description
	}
}

// SnippetText joins all snippets into one block for prompting.
func (info Information) SnippetText() string {
	return strings.Join(info.Snippets, "\n")
}
