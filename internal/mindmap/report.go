// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mindmap

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/roundtable/internal/llm"
	"github.com/pdiddy/roundtable/pkg/types"
)

// Reporter linearizes a knowledge base into a markdown report with a
// compacted, densely numbered reference list.
type Reporter struct {
	gen     llm.Generator
	workers int
	logger  *zap.Logger
}

// NewReporter builds a Reporter. Default: 4 synthesis workers.
func NewReporter(gen llm.Generator, cfg types.DiscourseConfig, logger *zap.Logger) *Reporter {
	workers := cfg.SynthesisWorkers
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{gen: gen, workers: workers, logger: logger}
}

// WriteReport regenerates stale node summaries, compacts the citation
// numbering, and writes the markdown report to w.
func (r *Reporter) WriteReport(ctx context.Context, kb *KnowledgeBase, w io.Writer) error {
	kb.trimEmptyLeaves()
	if err := r.synthesize(ctx, kb); err != nil {
		return err
	}
	kb.ReorderCitations()
	return r.render(kb, w)
}

// synthesize regenerates summaries for every dirty node, deepest level
// first so a parent's prompt sees fresh child summaries. Nodes at the
// same depth have no summary dependency on each other, so each level
// fans out across a bounded worker pool.
func (r *Reporter) synthesize(ctx context.Context, kb *KnowledgeBase) error {
	for _, level := range kb.dirtyNodesByDepth() {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.workers)
		for _, id := range level {
			id := id
			g.Go(func() error {
				kb.mu.RLock()
				prompt := kb.renderSummaryPrompt(id)
				kb.mu.RUnlock()

				text, err := r.gen.Generate(gctx, prompt)
				if err != nil {
					return fmt.Errorf("synthesizing node summary: %w", err)
				}

				kb.mu.Lock()
				if n, ok := kb.nodes[id]; ok {
					n.synthesizeOutput = strings.TrimSpace(text)
					n.needRegenerate = false
				}
				kb.mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// dirtyNodesByDepth groups the IDs of nodes needing regeneration by
// tree depth, deepest group first. Empty leaves are skipped.
func (kb *KnowledgeBase) dirtyNodesByDepth() [][]NodeID {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	byDepth := make(map[int][]NodeID)
	maxDepth := 0
	kb.walkDFS(kb.root, 0, func(id NodeID, depth int) {
		n := kb.nodes[id]
		if !n.needRegenerate {
			return
		}
		if len(n.content) == 0 && len(n.children) == 0 {
			return
		}
		byDepth[depth] = append(byDepth[depth], id)
		if depth > maxDepth {
			maxDepth = depth
		}
	})

	var levels [][]NodeID
	for d := maxDepth; d >= 0; d-- {
		if ids := byDepth[d]; len(ids) > 0 {
			levels = append(levels, ids)
		}
	}
	return levels
}

// citationMarkerRe matches inline citation markers like [3].
var citationMarkerRe = regexp.MustCompile(`\[(\d+)\]`)

// ReorderCitations renumbers citations densely from 1 in document
// order of first appearance, rewrites the markers inside every cached
// summary, and drops registry entries no node references. Markers
// naming an unknown index are removed. Returns the old-to-new mapping.
func (kb *KnowledgeBase) ReorderCitations() map[int]int {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	remap := make(map[int]int)
	next := 1
	kb.walkDFS(kb.root, 0, func(id NodeID, _ int) {
		for _, idx := range kb.nodes[id].sortedContent() {
			if _, seen := remap[idx]; !seen {
				remap[idx] = next
				next++
			}
		}
	})

	for _, n := range kb.nodes {
		content := make(map[int]struct{}, len(n.content))
		for idx := range n.content {
			content[remap[idx]] = struct{}{}
		}
		n.content = content
		n.synthesizeOutput = rewriteMarkers(n.synthesizeOutput, remap)
	}

	infos := make(map[int]types.Information, len(remap))
	for old, renumbered := range remap {
		info, _ := kb.registry.get(old)
		infos[renumbered] = info
	}
	kb.registry.replace(infos)

	return remap
}

// rewriteMarkers renumbers every [n] marker in text through remap.
// Markers with no mapping (hallucinated or dropped indices) disappear.
func rewriteMarkers(text string, remap map[int]int) string {
	return citationMarkerRe.ReplaceAllStringFunc(text, func(m string) string {
		old, err := strconv.Atoi(m[1 : len(m)-1])
		if err != nil {
			return m
		}
		renumbered, ok := remap[old]
		if !ok {
			return ""
		}
		return "[" + strconv.Itoa(renumbered) + "]"
	})
}

// render emits the markdown document: one heading per node at its tree
// depth, each followed by the node's summary, then a references section.
func (r *Reporter) render(kb *KnowledgeBase, w io.Writer) error {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	var b strings.Builder
	kb.walkDFS(kb.root, 0, func(id NodeID, depth int) {
		n := kb.nodes[id]
		fmt.Fprintf(&b, "%s %s\n\n", strings.Repeat("#", depth+1), n.name)
		if n.synthesizeOutput != "" {
			b.WriteString(n.synthesizeOutput)
			b.WriteString("\n\n")
		}
	})

	if kb.registry.size() > 0 {
		b.WriteString("## References\n\n")
		for _, idx := range kb.registry.indices() {
			info, _ := kb.registry.get(idx)
			title := info.Title
			if title == "" {
				title = info.URL
			}
			fmt.Fprintf(&b, "[%d] %s. %s\n", idx, title, info.URL)
		}
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
