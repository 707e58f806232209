// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mindmap

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/pdiddy/roundtable/internal/embed"
	"github.com/pdiddy/roundtable/internal/llm"
	"github.com/pdiddy/roundtable/pkg/types"
)

// KnowledgeBase owns the topic tree and the citation registry for one
// discussion session. All exported methods are safe for concurrent use.
type KnowledgeBase struct {
	mu       sync.RWMutex
	topic    string
	nodes    map[NodeID]*node
	nextID   NodeID
	root     NodeID
	registry *registry
}

// New creates an empty knowledge base whose root node carries the topic.
func New(topic string) *KnowledgeBase {
	kb := &KnowledgeBase{
		topic:    topic,
		nodes:    make(map[NodeID]*node),
		registry: newRegistry(),
	}
	kb.root = kb.addNode(invalidNode, topic)
	return kb
}

// Topic returns the discussion topic.
func (kb *KnowledgeBase) Topic() string {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.topic
}

// addNode appends a child under parent. Callers must hold the write
// lock (or be constructing the knowledge base).
func (kb *KnowledgeBase) addNode(parent NodeID, name string) NodeID {
	id := kb.nextID
	kb.nextID++
	kb.nodes[id] = &node{
		id:             id,
		name:           name,
		parent:         parent,
		content:        make(map[int]struct{}),
		needRegenerate: true,
	}
	if parent != invalidNode {
		kb.nodes[parent].children = append(kb.nodes[parent].children, id)
	}
	return id
}

// resolvePath walks a root-relative name sequence. With create set,
// missing segments are created in order; otherwise a missing segment
// yields ErrPathNotFound. Callers must hold the write lock when create
// is set, the read lock otherwise.
func (kb *KnowledgeBase) resolvePath(path []string, create bool) (NodeID, error) {
	cur := kb.root
	for _, name := range path {
		next := kb.childNamed(cur, name)
		if next == invalidNode {
			if !create {
				return invalidNode, fmt.Errorf("%w: %q under %q", ErrPathNotFound, name, kb.nodes[cur].name)
			}
			next = kb.addNode(cur, name)
		}
		cur = next
	}
	return cur, nil
}

// FindPath reports whether the root-relative path resolves to a node.
func (kb *KnowledgeBase) FindPath(path []string) bool {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	_, err := kb.resolvePath(path, false)
	return err == nil
}

// EnsurePath creates any missing segments of the root-relative path.
func (kb *KnowledgeBase) EnsurePath(path []string) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.resolvePath(path, true)
}

// ChildNames returns the ordered child names of the node at path.
func (kb *KnowledgeBase) ChildNames(path []string) ([]string, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	id, err := kb.resolvePath(path, false)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(kb.nodes[id].children))
	for _, cid := range kb.nodes[id].children {
		names = append(names, kb.nodes[cid].name)
	}
	return names, nil
}

// NodeName returns the display name of the node at path: the last
// segment, or the topic for the root.
func (kb *KnowledgeBase) NodeName(path []string) string {
	if len(path) == 0 {
		return kb.Topic()
	}
	return path[len(path)-1]
}

// InsertInformation registers info (merging by URL if already known)
// and attaches its citation index to the node at path. With
// createMissing set, missing path segments are created in order;
// otherwise an unresolved path yields ErrPathNotFound.
//
// A fact that is already attached to some node keeps its original
// placement: registration merges the snippet sets but the citation
// index is not copied into a second node.
func (kb *KnowledgeBase) InsertInformation(path []string, info types.Information, createMissing bool) (int, error) {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	id, err := kb.resolvePath(path, createMissing)
	if err != nil {
		return 0, err
	}

	idx, merged := kb.registry.register(info)
	if merged && kb.holderOf(idx) != invalidNode {
		return idx, nil
	}

	kb.nodes[id].content[idx] = struct{}{}
	kb.markDirtyUp(id)
	return idx, nil
}

// AttachCitation adds an existing citation index to the node at path.
// Used by the expansion pass, which moves (never copies) citations.
func (kb *KnowledgeBase) AttachCitation(path []string, index int) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, ok := kb.registry.get(index); !ok {
		return fmt.Errorf("citation index %d is not registered", index)
	}
	id, err := kb.resolvePath(path, false)
	if err != nil {
		return err
	}
	kb.nodes[id].content[index] = struct{}{}
	kb.markDirtyUp(id)
	return nil
}

// DetachAll removes every citation index from the node at path and
// returns them in ascending order. The registry keeps the facts; only
// the node attachment is dropped.
func (kb *KnowledgeBase) DetachAll(path []string) ([]int, error) {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	id, err := kb.resolvePath(path, false)
	if err != nil {
		return nil, err
	}
	indices := kb.nodes[id].sortedContent()
	kb.nodes[id].content = make(map[int]struct{})
	kb.markDirtyUp(id)
	return indices, nil
}

// holderOf returns the node holding the citation index, or invalidNode.
// Callers must hold the lock.
func (kb *KnowledgeBase) holderOf(index int) NodeID {
	for id, n := range kb.nodes {
		if _, ok := n.content[index]; ok {
			return id
		}
	}
	return invalidNode
}

// markDirtyUp invalidates the summary cache of a node and all its
// ancestors. Callers must hold the write lock.
func (kb *KnowledgeBase) markDirtyUp(id NodeID) {
	for id != invalidNode {
		kb.nodes[id].needRegenerate = true
		id = kb.nodes[id].parent
	}
}

// NodeContent returns the sorted citation indices held by the node at path.
func (kb *KnowledgeBase) NodeContent(path []string) ([]int, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	id, err := kb.resolvePath(path, false)
	if err != nil {
		return nil, err
	}
	return kb.nodes[id].sortedContent(), nil
}

// Citation returns the Information registered under index.
func (kb *KnowledgeBase) Citation(index int) (types.Information, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.registry.get(index)
}

// CitationCount returns the number of registered facts.
func (kb *KnowledgeBase) CitationCount() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.registry.size()
}

// AllPaths returns every node's root-relative path in document order,
// root first.
func (kb *KnowledgeBase) AllPaths() [][]string {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	var paths [][]string
	kb.walkDFS(kb.root, 0, func(id NodeID, _ int) {
		paths = append(paths, kb.pathOf(id))
	})
	return paths
}

// PathEmbedding pairs a node path with its embedding vector.
type PathEmbedding struct {
	Path     []string
	Rendered string
	Vector   []float32
}

// StructureEmbedding produces a parallel array of (path, vector) for
// every node. The result reflects the tree shape at call time and must
// be recomputed after any node-creating operation.
func (kb *KnowledgeBase) StructureEmbedding(ctx context.Context, embedder embed.Embedder) ([]PathEmbedding, error) {
	paths := kb.AllPaths()

	rendered := make([]string, len(paths))
	for i, p := range paths {
		rendered[i] = kb.RenderPath(p)
	}

	vectors, err := embedder.EmbedBatch(ctx, rendered)
	if err != nil {
		return nil, fmt.Errorf("embedding %d node paths: %w", len(paths), err)
	}

	out := make([]PathEmbedding, len(paths))
	for i := range paths {
		out[i] = PathEmbedding{Path: paths[i], Rendered: rendered[i], Vector: vectors[i]}
	}
	return out, nil
}

// StructureOutline renders the tree as an indented outline for prompts.
func (kb *KnowledgeBase) StructureOutline() string {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	var b strings.Builder
	kb.walkDFS(kb.root, 0, func(id NodeID, depth int) {
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString("- ")
		b.WriteString(kb.nodes[id].name)
		b.WriteString("\n")
	})
	return b.String()
}

// summaryPromptTmpl asks the model for a node summary from its cited
// snippets and its children's summaries.
var summaryPromptTmpl = template.Must(template.New("summary").Parse(`Summarize the collected information for the section "{{.Name}}" of a discussion on "{{.Topic}}".

Write one concise paragraph. Keep every citation marker (e.g. [3]) exactly as it appears next to the fact it supports. Do not invent citations.

{{if .ChildSummaries}}Subsection summaries:
{{range .ChildSummaries}}- {{.}}
{{end}}
{{end}}Cited information:
{{.Snippets}}
`))

// Reorganize recomputes per-node summaries for every node whose cache
// was invalidated, children before parents so a parent's summary can
// draw on its children's. Nodes with no content and no children are
// pruned first (the root is never pruned).
func (kb *KnowledgeBase) Reorganize(ctx context.Context, gen llm.Generator) error {
	kb.trimEmptyLeaves()

	// Prompts are rendered one node at a time so a parent's prompt sees
	// the summaries its children just regenerated.
	for _, id := range kb.dirtyNodesPostOrder() {
		kb.mu.RLock()
		prompt := kb.renderSummaryPrompt(id)
		kb.mu.RUnlock()

		text, err := gen.Generate(ctx, prompt)
		if err != nil {
			return fmt.Errorf("summarizing node: %w", err)
		}
		kb.mu.Lock()
		if n, ok := kb.nodes[id]; ok {
			n.synthesizeOutput = strings.TrimSpace(text)
			n.needRegenerate = false
		}
		kb.mu.Unlock()
	}
	return nil
}

// dirtyNodesPostOrder returns the IDs of nodes needing regeneration in
// post-order, children before parents.
func (kb *KnowledgeBase) dirtyNodesPostOrder() []NodeID {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	var order []NodeID
	var visit func(id NodeID)
	visit = func(id NodeID) {
		n := kb.nodes[id]
		for _, cid := range n.children {
			visit(cid)
		}
		if !n.needRegenerate {
			return
		}
		if len(n.content) == 0 && len(n.children) == 0 {
			return
		}
		order = append(order, id)
	}
	visit(kb.root)

	return order
}

// renderSummaryPrompt builds the summary prompt for a node. Callers
// must hold the lock.
func (kb *KnowledgeBase) renderSummaryPrompt(id NodeID) string {
	n := kb.nodes[id]

	var childSummaries []string
	for _, cid := range n.children {
		if s := kb.nodes[cid].synthesizeOutput; s != "" {
			childSummaries = append(childSummaries, s)
		}
	}

	var snippets strings.Builder
	for _, idx := range n.sortedContent() {
		info, _ := kb.registry.get(idx)
		fmt.Fprintf(&snippets, "[%d] %s\n", idx, info.SnippetText())
	}

	var buf bytes.Buffer
	summaryPromptTmpl.Execute(&buf, struct {
		Name, Topic    string
		ChildSummaries []string
		Snippets       string
	}{
		Name:           n.name,
		Topic:          kb.topic,
		ChildSummaries: childSummaries,
		Snippets:       snippets.String(),
	})
	return buf.String()
}

// trimEmptyLeaves removes leaf nodes with no content, repeating until
// stable so emptied branches collapse. The root always survives.
func (kb *KnowledgeBase) trimEmptyLeaves() {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	for {
		var doomed []NodeID
		for id, n := range kb.nodes {
			if id == kb.root {
				continue
			}
			if len(n.children) == 0 && len(n.content) == 0 {
				doomed = append(doomed, id)
			}
		}
		if len(doomed) == 0 {
			return
		}
		for _, id := range doomed {
			parent := kb.nodes[id].parent
			siblings := kb.nodes[parent].children
			for i, cid := range siblings {
				if cid == id {
					kb.nodes[parent].children = append(siblings[:i], siblings[i+1:]...)
					break
				}
			}
			delete(kb.nodes, id)
		}
	}
}
