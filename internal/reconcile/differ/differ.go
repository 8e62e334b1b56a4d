// Package differ computes the set-theoretic delta between desired and current
// entity collections.
package differ

import (
	"sort"

	"github.com/enthus-appdev/n8nctl/internal/reconcile/entity"
	"github.com/enthus-appdev/n8nctl/internal/reconcile/op"
)

// Options tunes the delta computation
type Options struct {
	// PreserveUntracked reports current-only entities instead of deleting them.
	PreserveUntracked bool
}

// Delta is the outcome of a diff. Operations are sorted by kind, then identity;
// the final order is decided by the plan package.
type Delta struct {
	Operations []op.Operation
	// Preserved lists current-only identities kept because of PreserveUntracked.
	Preserved []entity.Ref
}

// Empty reports whether the delta contains no operation.
func (d *Delta) Empty() bool {
	return len(d.Operations) == 0
}

// Diff compares desired and current state.
func Diff(desired, current *entity.Collection, opts Options) *Delta {
	delta := &Delta{}

	for _, ref := range desired.Refs() {
		want, _ := desired.Get(ref)
		have, exists := current.Get(ref)
		if !exists {
			delta.add(op.Operation{Kind: op.Create, Ref: ref, Desired: want})
			if wf, ok := want.(*entity.Workflow); ok && wf.Active {
				delta.add(op.Operation{Kind: op.Activate, Ref: ref, Desired: want})
			}
			continue
		}

		if contentChanged(want, have) {
			delta.add(op.Operation{Kind: op.Update, Ref: ref, Desired: want, Current: have})
		}
		if kind, ok := activeChange(want, have); ok {
			delta.add(op.Operation{Kind: kind, Ref: ref, Desired: want, Current: have})
		}
	}

	for _, ref := range current.Refs() {
		if desired.Has(ref) {
			continue
		}
		if opts.PreserveUntracked {
			delta.Preserved = append(delta.Preserved, ref)
			continue
		}
		have, _ := current.Get(ref)
		delta.add(op.Operation{Kind: op.Delete, Ref: ref, Current: have})
	}

	sort.SliceStable(delta.Operations, func(i, j int) bool {
		a, b := delta.Operations[i], delta.Operations[j]
		if a.Kind.Rank() != b.Kind.Rank() {
			return a.Kind.Rank() < b.Kind.Rank()
		}
		return a.Ref.Less(b.Ref)
	})

	return delta
}

func (d *Delta) add(o op.Operation) {
	d.Operations = append(d.Operations, o)
}

// contentChanged compares everything but the active flag.
func contentChanged(want, have entity.Entity) bool {
	switch w := want.(type) {
	case *entity.Workflow:
		h, ok := have.(*entity.Workflow)
		return !ok || w.Hash != h.Hash
	case *entity.Credential:
		h, ok := have.(*entity.Credential)
		return !ok || w.Type != h.Type
	}
	// Tags carry no content beyond their identity.
	return false
}

func activeChange(want, have entity.Entity) (op.Kind, bool) {
	w, ok := want.(*entity.Workflow)
	if !ok {
		return "", false
	}
	h, ok := have.(*entity.Workflow)
	if !ok || w.Active == h.Active {
		return "", false
	}
	if w.Active {
		return op.Activate, true
	}
	return op.Deactivate, true
}
