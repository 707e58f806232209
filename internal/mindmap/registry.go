// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mindmap

import (
	"sort"

	"github.com/pdiddy/roundtable/pkg/types"
)

// registry assigns permanent integer citation indices to accepted
// Information records and deduplicates them by URL. An index is never
// reused or renumbered except during the explicit compaction pass run
// at report time.
type registry struct {
	infos      map[int]types.Information
	urlToIndex map[string]int
	nextIndex  int
}

func newRegistry() *registry {
	return &registry{
		infos:      make(map[int]types.Information),
		urlToIndex: make(map[string]int),
		nextIndex:  1,
	}
}

// register records info and returns its citation index. A record whose
// URL is already known is merged into the existing entry (snippet
// union) and keeps the existing index; merged reports whether that
// happened.
func (r *registry) register(info types.Information) (index int, merged bool) {
	if idx, ok := r.urlToIndex[info.URL]; ok {
		existing := r.infos[idx]
		existing.MergeSnippets(info)
		r.infos[idx] = existing
		return idx, true
	}

	idx := r.nextIndex
	r.nextIndex++
	r.infos[idx] = info
	r.urlToIndex[info.URL] = idx
	return idx, false
}

// get returns the Information registered under index.
func (r *registry) get(index int) (types.Information, bool) {
	info, ok := r.infos[index]
	return info, ok
}

// indices returns all registered citation indices in ascending order.
func (r *registry) indices() []int {
	out := make([]int, 0, len(r.infos))
	for idx := range r.infos {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// size returns the number of registered entries.
func (r *registry) size() int { return len(r.infos) }

// replace swaps the registry contents for a compacted mapping. Used
// only by the report-time reorder pass.
func (r *registry) replace(infos map[int]types.Information) {
	r.infos = infos
	r.urlToIndex = make(map[string]int, len(infos))
	maxIdx := 0
	for idx, info := range infos {
		r.urlToIndex[info.URL] = idx
		if idx > maxIdx {
			maxIdx = idx
		}
	}
	r.nextIndex = maxIdx + 1
}
