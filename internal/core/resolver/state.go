package resolver

import (
	"context"
	"slices"

	"github.com/mohammed-shakir/geo-resolver/internal/core/model"
)

// ProcessedState holds the relation ids a discovery session already emitted.
// One state belongs to exactly one session.
type ProcessedState interface {
	// Processed returns the ids sorted ascending without duplicates.
	Processed(ctx context.Context) (model.EntityIDs, error)
	// Merge adds ids; merging an id twice has no effect.
	Merge(ctx context.Context, ids model.EntityIDs) error
	// Close discards the state.
	Close(ctx context.Context) error
}

// MemoryState keeps processed ids in a sorted slice.
type MemoryState struct {
	ids model.EntityIDs
}

func NewMemoryState() *MemoryState { return &MemoryState{} }

func (m *MemoryState) Processed(context.Context) (model.EntityIDs, error) {
	return slices.Clone(m.ids), nil
}

func (m *MemoryState) Merge(_ context.Context, ids model.EntityIDs) error {
	m.ids = Union(m.ids, ids)
	return nil
}

func (m *MemoryState) Close(context.Context) error {
	m.ids = nil
	return nil
}

// SortedSet returns a sorted, de-duplicated copy of ids.
func SortedSet(ids model.EntityIDs) model.EntityIDs {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

// Difference returns ids of a not in b. Both are normalized to sorted sets
// first, so the result is sorted.
func Difference(a, b model.EntityIDs) model.EntityIDs {
	a, b = SortedSet(a), SortedSet(b)
	out := make(model.EntityIDs, 0, len(a))
	i, j := 0, 0
	for i < len(a) {
		switch {
		case j >= len(b) || a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			j++
		default:
			i++
			j++
		}
	}
	return out
}

// Union returns the sorted set of ids in a or b.
func Union(a, b model.EntityIDs) model.EntityIDs {
	out := make(model.EntityIDs, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return SortedSet(out)
}
