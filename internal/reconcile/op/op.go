// Package op defines the remote mutations produced by the differ and consumed
// by the apply executor.
package op

import (
	"fmt"

	"github.com/enthus-appdev/n8nctl/internal/reconcile/entity"
)

// Kind is the type of a remote mutation
type Kind string

const (
	Create     Kind = "create"
	Update     Kind = "update"
	Activate   Kind = "activate"
	Deactivate Kind = "deactivate"
	Delete     Kind = "delete"
)

// Rank orders kinds within a single identity: content changes before activation
// changes, deletes last.
func (k Kind) Rank() int {
	switch k {
	case Create:
		return 0
	case Update:
		return 1
	case Activate, Deactivate:
		return 2
	case Delete:
		return 3
	}
	return 4
}

// Operation is a single remote mutation against one entity. Operations are
// never mutated once planned; outcomes are recorded in the report.
type Operation struct {
	Kind Kind       `json:"kind"`
	Ref  entity.Ref `json:"ref"`

	// Desired is nil for Delete, Current is nil for Create.
	Desired entity.Entity `json:"-"`
	Current entity.Entity `json:"-"`

	// DependsOn lists the identities whose operations must be applied first.
	DependsOn []entity.Ref `json:"dependsOn,omitempty"`
}

// String renders the operation as "create workflow/name".
func (o Operation) String() string {
	return fmt.Sprintf("%s %s", o.Kind, o.Ref)
}

// Less orders operations by identity, then by kind rank.
func (o Operation) Less(other Operation) bool {
	if o.Ref != other.Ref {
		return o.Ref.Less(other.Ref)
	}
	return o.Kind.Rank() < other.Kind.Rank()
}

// Idempotent reports whether repeating the operation after an unknown outcome
// is safe. Tags are created with a client-supplied unique name; workflows and
// credentials get server-assigned ids, so their creation is not idempotent.
func (o Operation) Idempotent() bool {
	switch o.Kind {
	case Delete, Activate, Deactivate:
		return true
	case Create:
		return o.Ref.Kind == entity.KindTag
	}
	return false
}

// RemoteID returns the remote id of the current entity, if any.
func (o Operation) RemoteID() string {
	if o.Current == nil {
		return ""
	}
	return o.Current.RemoteID()
}
