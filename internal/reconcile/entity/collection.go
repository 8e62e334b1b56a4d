package entity

import (
	"errors"
	"fmt"
	"sort"
)

// ErrDuplicate is returned when an identity is added twice to a collection.
var ErrDuplicate = errors.New("duplicate identity")

// Collection maps identities to entities. It is built once per run, finalized,
// and read-only afterwards.
type Collection struct {
	items map[Ref]Entity
}

// NewCollection creates an empty collection
func NewCollection() *Collection {
	return &Collection{items: make(map[Ref]Entity)}
}

// Add inserts an entity, rejecting an identity already present.
func (c *Collection) Add(e Entity) error {
	ref := e.Ref()
	if ref.Name == "" {
		return fmt.Errorf("%s has no name", ref.Kind)
	}
	if _, exists := c.items[ref]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, ref)
	}
	c.items[ref] = e
	return nil
}

// Get returns the entity with the given identity
func (c *Collection) Get(ref Ref) (Entity, bool) {
	e, ok := c.items[ref]
	return e, ok
}

// Has reports whether the identity is present
func (c *Collection) Has(ref Ref) bool {
	_, ok := c.items[ref]
	return ok
}

// Len returns the number of entities
func (c *Collection) Len() int {
	return len(c.items)
}

// Refs returns every identity in lexical order.
func (c *Collection) Refs() []Ref {
	refs := make([]Ref, 0, len(c.items))
	for ref := range c.items {
		refs = append(refs, ref)
	}
	SortRefs(refs)
	return refs
}

// Workflows returns the workflows of the collection ordered by name.
func (c *Collection) Workflows() []*Workflow {
	var out []*Workflow
	for _, ref := range c.Refs() {
		if wf, ok := c.items[ref].(*Workflow); ok {
			out = append(out, wf)
		}
	}
	return out
}

// Finalize resolves sub-workflow links against the collection and computes
// every workflow content hash. Two workflows declaring the same id are
// rejected with ErrDuplicate.
func (c *Collection) Finalize(mode HashMode) error {
	names := make(map[string]string)
	for _, wf := range c.Workflows() {
		if wf.LocalID == "" {
			continue
		}
		if other, ok := names[wf.LocalID]; ok {
			return fmt.Errorf("%w: workflow id %q declared by %q and %q", ErrDuplicate, wf.LocalID, other, wf.Name)
		}
		names[wf.LocalID] = wf.Name
	}

	for _, wf := range c.Workflows() {
		for i, link := range wf.SubWorkflows {
			name, ok := names[link.TargetID]
			wf.SubWorkflows[i].Resolved = ok
			if ok {
				wf.SubWorkflows[i].Target = WorkflowRef(name)
			}
		}

		hash, err := wf.ContentHash(mode, names)
		if err != nil {
			return fmt.Errorf("workflow %q: %w", wf.Name, err)
		}
		wf.Hash = hash
	}
	return nil
}

// SortRefs sorts identities lexically in place.
func SortRefs(refs []Ref) {
	sort.Slice(refs, func(i, j int) bool { return refs[i].Less(refs[j]) })
}

// NormalizeTags returns the sorted, de-duplicated, non-empty tag names.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}
