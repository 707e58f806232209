// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mindmap

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/roundtable/internal/embed"
	"github.com/pdiddy/roundtable/internal/llm"
	"github.com/pdiddy/roundtable/pkg/types"
)

// maxNavigationDepth bounds the layer-by-layer walk so a looping model
// cannot descend forever.
const maxNavigationDepth = 10

// Inserter decides where newly discovered facts belong in the tree.
// Placement is a two-stage heuristic: an embedding-ranked candidate
// shortlist resolved by the language model, falling back to a
// layer-by-layer navigation from the root.
type Inserter struct {
	gen        llm.Generator
	embedder   embed.Embedder // nil skips the candidate stage
	candidates int
	workers    int
	logger     *zap.Logger
}

// NewInserter builds an Inserter. embedder may be nil, in which case
// the embedding-candidate stage is skipped. Defaults: 8 candidates,
// 4 workers.
func NewInserter(gen llm.Generator, embedder embed.Embedder, cfg types.DiscourseConfig, logger *zap.Logger) *Inserter {
	candidates := cfg.PlacementCandidates
	if candidates <= 0 {
		candidates = 8
	}
	workers := cfg.PlacementWorkers
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inserter{
		gen:        gen,
		embedder:   embedder,
		candidates: candidates,
		workers:    workers,
		logger:     logger,
	}
}

// Placement is the outcome of resolving one intent.
type Placement struct {
	// Path is the chosen root-relative node path.
	Path []string

	// Created reports whether the placement materialized a new node.
	Created bool

	// AttemptedCreate reports that the model asked to create a node
	// while creation was disallowed; placement fell back to the
	// current node.
	AttemptedCreate bool
}

// PlaceOptions controls a placement batch.
type PlaceOptions struct {
	// AllowCreate permits the navigation stage to materialize new nodes.
	AllowCreate bool

	// Root restricts navigation to the subtree at this root-relative
	// path. Empty means the tree root.
	Root []string
}

// PlaceAll resolves a placement for every intent. When node creation
// is disallowed the tree shape is read-only during resolution, so
// intents fan out across a bounded worker pool. When creation is
// allowed intents are resolved sequentially, re-snapshotting the
// embedding index before each one, because an earlier intent's new
// node can change correct placement for a later intent.
func (ins *Inserter) PlaceAll(ctx context.Context, kb *KnowledgeBase, intents []types.Intent, opts PlaceOptions) ([]Placement, error) {
	placements := make([]Placement, len(intents))

	if opts.AllowCreate {
		for i, intent := range intents {
			p, err := ins.place(ctx, kb, intent, opts, nil)
			if err != nil {
				return nil, err
			}
			placements[i] = p
		}
		return placements, nil
	}

	// Shape is frozen: one snapshot serves the whole batch. Subtree
	// placement skips the shortlist, so no snapshot is needed for it.
	var snapshot []PathEmbedding
	if len(opts.Root) == 0 {
		var err error
		snapshot, err = ins.snapshot(ctx, kb)
		if err != nil {
			return nil, err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ins.workers)
	for i, intent := range intents {
		i, intent := i, intent
		g.Go(func() error {
			p, err := ins.place(gctx, kb, intent, opts, snapshot)
			if err != nil {
				return err
			}
			placements[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return placements, nil
}

// snapshot computes the structure embedding, or nil when no embedder
// is configured.
func (ins *Inserter) snapshot(ctx context.Context, kb *KnowledgeBase) ([]PathEmbedding, error) {
	if ins.embedder == nil {
		return nil, nil
	}
	snap, err := kb.StructureEmbedding(ctx, ins.embedder)
	if err != nil {
		return nil, fmt.Errorf("snapshotting structure embedding: %w", err)
	}
	return snap, nil
}

// place resolves a single intent. snapshot may be nil, forcing a fresh
// one (sequential mode) or skipping the candidate stage entirely when
// no embedder is configured.
func (ins *Inserter) place(ctx context.Context, kb *KnowledgeBase, intent types.Intent, opts PlaceOptions, snapshot []PathEmbedding) (Placement, error) {
	if snapshot == nil && len(opts.Root) == 0 {
		var err error
		snapshot, err = ins.snapshot(ctx, kb)
		if err != nil {
			return Placement{}, err
		}
	}

	// Subtree-rooted placement (expansion redistribution) must stay
	// inside the subtree, so the whole-tree shortlist does not apply.
	if len(snapshot) > 0 && len(opts.Root) == 0 {
		path, ok, err := ins.candidateStage(ctx, kb, intent, snapshot)
		if err != nil {
			return Placement{}, err
		}
		if ok {
			return Placement{Path: path}, nil
		}
	}

	return ins.navigate(ctx, kb, intent, opts)
}

// candidatePromptTmpl asks the model to pick one section from the
// embedding-ranked shortlist, or decline.
var candidatePromptTmpl = template.Must(template.New("candidate").Parse(`You are organizing collected information into an outline.

Information to place answers: {{.Intent}}

Candidate sections:
{{range .Candidates}}- {{.}}
{{end}}
Respond with the single best candidate section, copied exactly, or the word "None" if no candidate is a reasonable home for this information.
`))

// candidateStage ranks node paths by cosine similarity to the intent,
// shows the model the top candidates, and accepts its pick if it names
// one. ok is false when the model declines or answers off-list.
func (ins *Inserter) candidateStage(ctx context.Context, kb *KnowledgeBase, intent types.Intent, snapshot []PathEmbedding) (path []string, ok bool, err error) {
	intentVec, err := ins.embedder.Embed(ctx, intent.String())
	if err != nil {
		return nil, false, fmt.Errorf("embedding intent: %w", err)
	}

	type scored struct {
		pe    PathEmbedding
		score float64
	}
	ranked := make([]scored, 0, len(snapshot))
	for _, pe := range snapshot {
		sim, err := embed.CosineSimilarity(intentVec, pe.Vector)
		if err != nil {
			return nil, false, err
		}
		ranked = append(ranked, scored{pe: pe, score: sim})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > ins.candidates {
		ranked = ranked[:ins.candidates]
	}

	rendered := make([]string, len(ranked))
	byRendered := make(map[string][]string, len(ranked))
	for i, s := range ranked {
		rendered[i] = s.pe.Rendered
		byRendered[s.pe.Rendered] = s.pe.Path
	}

	var buf bytes.Buffer
	candidatePromptTmpl.Execute(&buf, struct {
		Intent     string
		Candidates []string
	}{Intent: intent.String(), Candidates: rendered})

	answer, err := ins.gen.Generate(ctx, buf.String())
	if err != nil {
		return nil, false, fmt.Errorf("candidate selection: %w", err)
	}

	answer = strings.TrimSpace(answer)
	if strings.EqualFold(answer, "none") || answer == "" {
		return nil, false, nil
	}
	if p, found := byRendered[answer]; found {
		return p, true, nil
	}
	// Tolerate the model answering with one candidate embedded in prose.
	for _, r := range rendered {
		if strings.Contains(answer, r) {
			return byRendered[r], true, nil
		}
	}

	ins.logger.Debug("candidate stage declined", zap.String("answer", answer))
	return nil, false, nil
}

// navigatePromptTmpl drives one step of the layer-by-layer walk.
var navigatePromptTmpl = template.Must(template.New("navigate").Parse(`You are filing information into an outline, one level at a time.

Information to place answers: {{.Intent}}

Current section: {{.Current}}
{{if .Children}}Subsections:
{{range .Children}}- {{.}}
{{end}}{{else}}This section has no subsections.
{{end}}
Reply with exactly one line, in one of these forms:
insert
step: <subsection name>
create: <new subsection name>
`))

// navigate walks the tree from opts.Root, asking the model at each
// level to insert here, step into a child, or create a new child.
//
// step into a missing child is a fatal precondition violation. create
// is honored only when opts.AllowCreate is set; otherwise the attempt
// is recorded and placement falls back to the current node.
func (ins *Inserter) navigate(ctx context.Context, kb *KnowledgeBase, intent types.Intent, opts PlaceOptions) (Placement, error) {
	current := append([]string(nil), opts.Root...)

	for depth := 0; depth < maxNavigationDepth; depth++ {
		children, err := kb.ChildNames(current)
		if err != nil {
			return Placement{}, err
		}

		var buf bytes.Buffer
		navigatePromptTmpl.Execute(&buf, struct {
			Intent   string
			Current  string
			Children []string
		}{
			Intent:   intent.String(),
			Current:  kb.RenderPath(current),
			Children: children,
		})

		answer, err := ins.gen.Generate(ctx, buf.String())
		if err != nil {
			return Placement{}, fmt.Errorf("navigation step: %w", err)
		}

		decision, name, err := parseDecision(answer)
		if err != nil {
			return Placement{}, err
		}

		switch decision {
		case decisionInsert:
			return Placement{Path: current}, nil

		case decisionStep:
			found := false
			for _, c := range children {
				if c == name {
					found = true
					break
				}
			}
			if !found {
				return Placement{}, fmt.Errorf("%w: %q under %q", ErrUnknownChild, name, kb.RenderPath(current))
			}
			current = append(current, name)

		case decisionCreate:
			if !opts.AllowCreate {
				ins.logger.Debug("node creation disallowed, placing at current node",
					zap.String("wanted", name), zap.String("at", kb.RenderPath(current)))
				return Placement{Path: current, AttemptedCreate: true}, nil
			}
			current = append(current, name)
			kb.EnsurePath(current)
			return Placement{Path: current, Created: true}, nil
		}
	}

	// Depth guard tripped: file at the deepest node reached.
	return Placement{Path: current}, nil
}

type decision int

const (
	decisionInsert decision = iota
	decisionStep
	decisionCreate
)

// parseDecision parses a navigation answer. Recognized forms are
// "insert", "step: <name>", and "create: <name>" (case-insensitive,
// first line wins). Anything else is ErrBadDecision.
func parseDecision(answer string) (decision, string, error) {
	line := strings.TrimSpace(answer)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	lower := strings.ToLower(line)

	switch {
	case strings.HasPrefix(lower, "insert"):
		return decisionInsert, "", nil
	case strings.HasPrefix(lower, "step"):
		return decisionStep, decisionArg(line), nil
	case strings.HasPrefix(lower, "create"):
		return decisionCreate, decisionArg(line), nil
	}
	return 0, "", fmt.Errorf("%w: %q", ErrBadDecision, line)
}

// decisionArg extracts the name after the first colon.
func decisionArg(line string) string {
	if i := strings.IndexByte(line, ':'); i >= 0 {
		return strings.TrimSpace(line[i+1:])
	}
	return ""
}
