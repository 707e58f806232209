// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package mindmap implements the hierarchical, citation-tracked
// knowledge base built up during a discussion: a tree of topic nodes
// holding citation indices, a registry of deduplicated facts, the
// placement algorithm that files new facts into the tree, the
// expansion pass that splits overloaded nodes, and report generation.
package mindmap

import (
	"sort"
	"strings"
)

// NodeID addresses a node in the knowledge base arena. Nodes are
// stored by ID and reference each other by ID only, so paths and
// children are index lookups rather than live pointers.
type NodeID int

// invalidNode marks the root's parent.
const invalidNode NodeID = -1

// node is one topic in the knowledge tree. The content set holds
// citation indices into the registry; a given index lives in at most
// one node's content set at any time.
type node struct {
	id       NodeID
	name     string
	parent   NodeID
	children []NodeID // ordered

	content map[int]struct{}

	// synthesizeOutput caches the generated summary paragraph for this
	// node; needRegenerate is set whenever the content set changes.
	synthesizeOutput string
	needRegenerate   bool
}

// sortedContent returns the node's citation indices in ascending order.
func (n *node) sortedContent() []int {
	out := make([]int, 0, len(n.content))
	for idx := range n.content {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// childNamed returns the child with the given name, or invalidNode.
func (kb *KnowledgeBase) childNamed(id NodeID, name string) NodeID {
	for _, cid := range kb.nodes[id].children {
		if kb.nodes[cid].name == name {
			return cid
		}
	}
	return invalidNode
}

// pathOf returns the root-to-node name sequence, excluding the root
// itself. The root's path is empty.
func (kb *KnowledgeBase) pathOf(id NodeID) []string {
	var parts []string
	for id != kb.root {
		n := kb.nodes[id]
		parts = append(parts, n.name)
		id = n.parent
	}
	// Reverse into root-first order.
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return parts
}

// RenderPath formats a node path for prompts and embeddings, with the
// topic as the leading segment.
func (kb *KnowledgeBase) RenderPath(path []string) string {
	kb.mu.RLock()
	topic := kb.topic
	kb.mu.RUnlock()
	if len(path) == 0 {
		return topic
	}
	return topic + " -> " + strings.Join(path, " -> ")
}

// walkDFS visits nodes depth-first in document order, children in
// their stored order. The callback receives the node ID and its depth
// (root = 0). Callers must hold the lock.
func (kb *KnowledgeBase) walkDFS(id NodeID, depth int, visit func(id NodeID, depth int)) {
	visit(id, depth)
	for _, cid := range kb.nodes[id].children {
		kb.walkDFS(cid, depth+1, visit)
	}
}
