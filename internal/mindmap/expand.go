// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mindmap

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/pdiddy/roundtable/internal/llm"
	"github.com/pdiddy/roundtable/pkg/types"
)

// Expander splits overloaded nodes into subsections and redistributes
// their citations among the new children.
type Expander struct {
	gen       llm.StructuredGenerator
	inserter  *Inserter
	threshold int
	logger    *zap.Logger
}

// NewExpander builds an Expander. Default threshold: 10 citations.
func NewExpander(gen llm.StructuredGenerator, inserter *Inserter, cfg types.DiscourseConfig, logger *zap.Logger) *Expander {
	threshold := cfg.NodeExpandThreshold
	if threshold <= 0 {
		threshold = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Expander{
		gen:       gen,
		inserter:  inserter,
		threshold: threshold,
		logger:    logger,
	}
}

// subsectionResponse is the structured output for subsection naming.
type subsectionResponse struct {
	Subsections []string `json:"subsections"`
}

var subsectionSchema = llm.GenerateSchema[subsectionResponse]()

// subsectionPromptTmpl asks the model to propose subsection names from
// the questions the node's citations were gathered to answer.
var subsectionPromptTmpl = template.Must(template.New("subsections").Parse(`The outline section "{{.Name}}" of a discussion on "{{.Topic}}" has grown too large and should be split into subsections.

The information collected under it was gathered to answer:
{{range .Intents}}- {{.}}
{{end}}
Propose 2 to 5 short subsection names that partition this material. Names must be concise noun phrases, mutually distinct, and different from "{{.Name}}".
`))

// ExpandAll scans the tree for nodes whose content-set size has
// reached the threshold, splits each into subsections, and repeats the
// scan until no node qualifies, so cascading growth is handled. A node
// is expanded at most once per pass; a node the model cannot propose
// at least 2 subsection names for is left as-is (it already serves as
// good organization).
func (e *Expander) ExpandAll(ctx context.Context, kb *KnowledgeBase) error {
	attempted := make(map[string]bool) // rendered path → tried this pass

	for {
		target, found := e.nextOverloaded(kb, attempted)
		if !found {
			return nil
		}
		attempted[kb.RenderPath(target)] = true

		if err := e.expandNode(ctx, kb, target); err != nil {
			return err
		}
	}
}

// nextOverloaded finds a node at or over the threshold that has not
// been attempted this pass, in document order.
func (e *Expander) nextOverloaded(kb *KnowledgeBase, attempted map[string]bool) ([]string, bool) {
	for _, path := range kb.AllPaths() {
		if attempted[kb.RenderPath(path)] {
			continue
		}
		content, err := kb.NodeContent(path)
		if err != nil {
			continue
		}
		if len(content) >= e.threshold {
			return path, true
		}
	}
	return nil, false
}

// expandNode splits one node: name subsections from the cited intents,
// create them, clear the node's own content, and re-place every
// citation among the children with node creation disallowed.
func (e *Expander) expandNode(ctx context.Context, kb *KnowledgeBase, path []string) error {
	content, err := kb.NodeContent(path)
	if err != nil {
		return err
	}

	intents := citedIntents(kb, content)
	names, err := e.proposeSubsections(ctx, kb, path, intents)
	if err != nil {
		return err
	}
	if len(names) < 2 {
		e.logger.Debug("expansion abandoned, too few subsection names",
			zap.String("node", kb.RenderPath(path)), zap.Int("names", len(names)))
		return nil
	}

	for _, name := range names {
		kb.EnsurePath(append(append([]string(nil), path...), name))
	}

	// Citations move, never copy: detach everything before re-placing.
	moved, err := kb.DetachAll(path)
	if err != nil {
		return err
	}

	// One placement decision per distinct intent; citations sharing an
	// intent share the decision.
	groups := groupByIntent(kb, moved)
	placements, err := e.inserter.PlaceAll(ctx, kb, groups.intents, PlaceOptions{AllowCreate: false, Root: path})
	if err != nil {
		return err
	}

	for i, placement := range placements {
		for _, idx := range groups.indices[i] {
			if err := kb.AttachCitation(placement.Path, idx); err != nil {
				return fmt.Errorf("redistributing citation %d: %w", idx, err)
			}
		}
	}

	e.logger.Info("expanded node",
		zap.String("node", kb.RenderPath(path)),
		zap.Strings("subsections", names),
		zap.Int("citations", len(moved)))
	return nil
}

// proposeSubsections asks the model for subsection names and filters
// out empties, duplicates, and the node's own name.
func (e *Expander) proposeSubsections(ctx context.Context, kb *KnowledgeBase, path []string, intents []string) ([]string, error) {
	var buf bytes.Buffer
	subsectionPromptTmpl.Execute(&buf, struct {
		Name    string
		Topic   string
		Intents []string
	}{
		Name:    kb.NodeName(path),
		Topic:   kb.Topic(),
		Intents: intents,
	})

	var resp subsectionResponse
	if err := e.gen.GenerateJSON(ctx, "subsections", buf.String(), subsectionSchema, &resp); err != nil {
		return nil, fmt.Errorf("naming subsections for %q: %w", kb.NodeName(path), err)
	}

	own := kb.NodeName(path)
	seen := make(map[string]bool)
	var names []string
	for _, name := range resp.Subsections {
		name = strings.TrimSpace(name)
		if name == "" || name == own || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names, nil
}

// citedIntents collects the distinct retrieval intents behind a set of
// citation indices, in index order.
func citedIntents(kb *KnowledgeBase, indices []int) []string {
	seen := make(map[string]bool)
	var intents []string
	for _, idx := range indices {
		info, ok := kb.Citation(idx)
		if !ok {
			continue
		}
		s := info.Meta.String()
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		intents = append(intents, s)
	}
	return intents
}

// intentGroups pairs each distinct intent with the citation indices
// that share it.
type intentGroups struct {
	intents []types.Intent
	indices [][]int
}

// groupByIntent buckets citation indices by their retrieval intent.
func groupByIntent(kb *KnowledgeBase, indices []int) intentGroups {
	keyToPos := make(map[string]int)
	var groups intentGroups
	for _, idx := range indices {
		info, ok := kb.Citation(idx)
		if !ok {
			continue
		}
		key := info.Meta.String()
		pos, seen := keyToPos[key]
		if !seen {
			pos = len(groups.intents)
			keyToPos[key] = pos
			groups.intents = append(groups.intents, info.Meta)
			groups.indices = append(groups.indices, nil)
		}
		groups.indices[pos] = append(groups.indices[pos], idx)
	}
	return groups
}
