package item

import (
	"fmt"
	"sort"
)

// Registry is the immutable item catalogue. Construct with NewRegistry or
// LoadFile; lookups need no locking.
type Registry struct {
	items  map[string]Item
	byKind map[Kind][]string // sorted ids per kind
}

// NewRegistry validates the catalogue and indexes it. Requirement graphs must
// reference known ids; cycles are rejected so the tech tree stays a DAG.
func NewRegistry(items []Item) (*Registry, error) {
	r := &Registry{
		items:  make(map[string]Item, len(items)),
		byKind: make(map[Kind][]string),
	}
	for _, it := range items {
		if it.ID == "" {
			return nil, fmt.Errorf("item with empty id")
		}
		if _, dup := r.items[it.ID]; dup {
			return nil, fmt.Errorf("duplicate item id %q", it.ID)
		}
		r.items[it.ID] = it
		r.byKind[it.Kind] = append(r.byKind[it.Kind], it.ID)
	}
	for _, ids := range r.byKind {
		sort.Strings(ids)
	}
	for _, it := range r.items {
		for _, req := range it.Requires {
			if _, ok := r.items[req]; !ok {
				return nil, fmt.Errorf("item %q requires unknown item %q", it.ID, req)
			}
		}
	}
	if err := r.checkAcyclic(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) checkAcyclic() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(r.items))
	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case gray:
			return fmt.Errorf("requirement cycle through item %q", id)
		case black:
			return nil
		}
		color[id] = gray
		for _, req := range r.items[id].Requires {
			if err := visit(req); err != nil {
				return err
			}
		}
		color[id] = black
		return nil
	}
	for id := range r.items {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the item for id.
func (r *Registry) Get(id string) (Item, bool) {
	it, ok := r.items[id]
	return it, ok
}

// ByKind returns the items of the given kind, sorted by id.
func (r *Registry) ByKind(k Kind) []Item {
	ids := r.byKind[k]
	out := make([]Item, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.items[id])
	}
	return out
}

// Len reports the catalogue size.
func (r *Registry) Len() int { return len(r.items) }

// RequirementsMet reports whether every prerequisite of id is in completed.
// Unknown ids never have their requirements met.
func (r *Registry) RequirementsMet(id string, completed map[string]bool) bool {
	it, ok := r.items[id]
	if !ok {
		return false
	}
	for _, req := range it.Requires {
		if !completed[req] {
			return false
		}
	}
	return true
}

// AvailableCritters returns every critter whose requirements are satisfied by
// the completed set, sorted by id.
func (r *Registry) AvailableCritters(completed map[string]bool) []Item {
	var out []Item
	for _, id := range r.byKind[KindCritter] {
		if r.RequirementsMet(id, completed) {
			out = append(out, r.items[id])
		}
	}
	return out
}
