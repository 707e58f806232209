// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mindmap

import (
	"fmt"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/roundtable/pkg/types"
)

// NodeDocument is the serialized form of one tree node.
type NodeDocument struct {
	Name string `json:"name" yaml:"name"`

	// Content lists the node's citation indices in ascending order.
	Content []int `json:"content" yaml:"content"`

	// Synthesize carries the cached summary paragraph, if any.
	Synthesize string `json:"synthesize,omitempty" yaml:"synthesize,omitempty"`

	// NeedRegenerate records whether the cached summary is stale.
	NeedRegenerate bool `json:"need_regenerate" yaml:"need_regenerate"`

	Children []NodeDocument `json:"children,omitempty" yaml:"children,omitempty"`
}

// Document is the durable form of a knowledge base. It is a plain
// structured document: Deserialize(Serialize(kb)) reconstructs the
// topic, tree shape, node content sets, and citation registry.
type Document struct {
	Topic    string                    `json:"topic" yaml:"topic"`
	Root     NodeDocument              `json:"root" yaml:"root"`
	Registry map[int]types.Information `json:"registry" yaml:"registry"`
}

// ToDocument snapshots the knowledge base as a Document.
func (kb *KnowledgeBase) ToDocument() *Document {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	reg := make(map[int]types.Information, kb.registry.size())
	for _, idx := range kb.registry.indices() {
		info, _ := kb.registry.get(idx)
		reg[idx] = info
	}

	return &Document{
		Topic:    kb.topic,
		Root:     kb.nodeDocument(kb.root),
		Registry: reg,
	}
}

// nodeDocument serializes the subtree rooted at id. Callers must hold
// the lock.
func (kb *KnowledgeBase) nodeDocument(id NodeID) NodeDocument {
	n := kb.nodes[id]
	doc := NodeDocument{
		Name:           n.name,
		Content:        n.sortedContent(),
		Synthesize:     n.synthesizeOutput,
		NeedRegenerate: n.needRegenerate,
	}
	for _, cid := range n.children {
		doc.Children = append(doc.Children, kb.nodeDocument(cid))
	}
	return doc
}

// FromDocument reconstructs a knowledge base from its durable form.
func FromDocument(doc *Document) (*KnowledgeBase, error) {
	if doc.Topic == "" {
		return nil, fmt.Errorf("knowledge base document has no topic")
	}

	kb := New(doc.Topic)

	maxIdx := 0
	for idx, info := range doc.Registry {
		kb.registry.infos[idx] = info
		kb.registry.urlToIndex[info.URL] = idx
		if idx > maxIdx {
			maxIdx = idx
		}
	}
	kb.registry.nextIndex = maxIdx + 1

	if err := kb.restoreNode(kb.root, doc.Root); err != nil {
		return nil, err
	}
	return kb, nil
}

// restoreNode fills id from doc and recursively restores children.
func (kb *KnowledgeBase) restoreNode(id NodeID, doc NodeDocument) error {
	n := kb.nodes[id]
	n.synthesizeOutput = doc.Synthesize
	n.needRegenerate = doc.NeedRegenerate
	for _, idx := range doc.Content {
		if _, ok := kb.registry.get(idx); !ok {
			return fmt.Errorf("node %q references unregistered citation index %d", doc.Name, idx)
		}
		n.content[idx] = struct{}{}
	}
	for _, childDoc := range doc.Children {
		cid := kb.addNode(id, childDoc.Name)
		if err := kb.restoreNode(cid, childDoc); err != nil {
			return err
		}
	}
	return nil
}

// MarshalYAML serializes the knowledge base document to YAML bytes.
func MarshalYAML(kb *KnowledgeBase) ([]byte, error) {
	data, err := yaml.Marshal(kb.ToDocument())
	if err != nil {
		return nil, fmt.Errorf("marshaling knowledge base: %w", err)
	}
	return data, nil
}

// UnmarshalYAML reconstructs a knowledge base from YAML bytes.
func UnmarshalYAML(data []byte) (*KnowledgeBase, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing knowledge base document: %w", err)
	}
	return FromDocument(&doc)
}
