package ward

import (
	"errors"
	"sort"
)

// ErrNoAnchors is returned when a pipeline is started against an empty
// anchor registry. Position and location analysis are meaningless
// without at least one surveyed anchor.
var ErrNoAnchors = errors.New("ward: anchor registry is empty")

// UnknownAnchor is the sentinel for anchor IDs absent from the
// registry. Signals attributed to it count toward raw totals and the
// unresolved counter but never toward any location.
var UnknownAnchor = Anchor{ID: "", Building: "", Level: ""}

type locationKey struct {
	Building string
	Level    string
}

// AnchorRegistry is an immutable lookup table of surveyed anchors.
// It is safe for concurrent readers once constructed.
type AnchorRegistry struct {
	byID       map[string]Anchor
	byLocation map[locationKey][]Anchor
}

// NewAnchorRegistry builds a registry from a bulk anchor load. An
// empty load is a configuration error: it returns ErrNoAnchors.
// Duplicate anchor IDs keep the last definition.
func NewAnchorRegistry(anchors []Anchor) (*AnchorRegistry, error) {
	if len(anchors) == 0 {
		return nil, ErrNoAnchors
	}
	r := &AnchorRegistry{
		byID:       make(map[string]Anchor, len(anchors)),
		byLocation: make(map[locationKey][]Anchor),
	}
	for _, a := range anchors {
		r.byID[a.ID] = a
	}
	for _, a := range r.byID {
		k := locationKey{a.Building, a.Level}
		r.byLocation[k] = append(r.byLocation[k], a)
	}
	for k := range r.byLocation {
		sort.Slice(r.byLocation[k], func(i, j int) bool {
			return r.byLocation[k][i].ID < r.byLocation[k][j].ID
		})
	}
	return r, nil
}

// Lookup resolves an anchor ID. Unknown IDs return UnknownAnchor and
// false.
func (r *AnchorRegistry) Lookup(id string) (Anchor, bool) {
	a, ok := r.byID[id]
	if !ok {
		return UnknownAnchor, false
	}
	return a, true
}

// AllFor returns the anchors assigned to (building, level), sorted by
// ID. The result is shared; callers must not mutate it.
func (r *AnchorRegistry) AllFor(building, level string) []Anchor {
	return r.byLocation[locationKey{building, level}]
}

// Len reports the number of distinct anchors.
func (r *AnchorRegistry) Len() int {
	return len(r.byID)
}

// Locations returns every distinct (building, level) pair in the
// registry, sorted by building then level.
func (r *AnchorRegistry) Locations() []Anchor {
	out := make([]Anchor, 0, len(r.byLocation))
	for k, as := range r.byLocation {
		out = append(out, Anchor{Building: k.Building, Level: k.Level, Ambiguous: as[0].Ambiguous})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Building != out[j].Building {
			return out[i].Building < out[j].Building
		}
		return out[i].Level < out[j].Level
	})
	return out
}
