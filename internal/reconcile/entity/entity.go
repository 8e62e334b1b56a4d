// Package entity holds the typed model the reconciliation engine works on:
// workflows, tags and credential references, their identities and the
// collections they are grouped in.
package entity

import (
	"encoding/json"
	"fmt"

	"github.com/opencontainers/go-digest"
)

// Kind discriminates the entity types managed by the engine
type Kind string

const (
	KindTag        Kind = "tag"
	KindCredential Kind = "credential"
	KindWorkflow   Kind = "workflow"
)

// Kinds lists every kind, referenced kinds before the kinds referencing them.
var Kinds = []Kind{KindTag, KindCredential, KindWorkflow}

// ParseKind converts a definition-file kind string into a Kind
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindTag, KindCredential, KindWorkflow:
		return Kind(s), nil
	case "":
		return KindWorkflow, nil
	}
	return "", fmt.Errorf("unknown kind %q", s)
}

// Ref is the stable identity of an entity within a reconciliation run
type Ref struct {
	Kind Kind   `json:"kind"`
	Name string `json:"name"`
}

// String returns the lexical key of the reference, e.g. "tag/prod".
func (r Ref) String() string {
	return string(r.Kind) + "/" + r.Name
}

// Less orders references lexically by their key.
func (r Ref) Less(other Ref) bool {
	return r.String() < other.String()
}

// TagRef returns the identity of the tag with the given name
func TagRef(name string) Ref { return Ref{Kind: KindTag, Name: name} }

// CredentialRef returns the identity of the credential with the given name
func CredentialRef(name string) Ref { return Ref{Kind: KindCredential, Name: name} }

// WorkflowRef returns the identity of the workflow with the given name
func WorkflowRef(name string) Ref { return Ref{Kind: KindWorkflow, Name: name} }

// Entity is implemented by every managed type.
type Entity interface {
	// Ref returns the entity identity.
	Ref() Ref
	// RemoteID returns the id assigned by the remote instance, empty when unknown.
	RemoteID() string
}

// Resolver maps identities to the remote ids known at apply time.
type Resolver interface {
	RemoteID(ref Ref) (string, bool)
}

// Tag is a workflow label. Its name is its whole content.
type Tag struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`

	// Implicit is set when the tag was not declared but referenced by a workflow.
	Implicit bool `json:"-"`
}

func (t *Tag) Ref() Ref         { return TagRef(t.Name) }
func (t *Tag) RemoteID() string { return t.ID }

// Credential is a reference to a remote credential. Secret material is never
// part of it.
type Credential struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	Type string `json:"type"`

	// Implicit is set when the credential was not declared but referenced by a workflow.
	Implicit bool `json:"-"`
}

func (c *Credential) Ref() Ref         { return CredentialRef(c.Name) }
func (c *Credential) RemoteID() string { return c.ID }

// IsImplicit reports whether e was added for a reference rather than declared.
func IsImplicit(e Entity) bool {
	switch v := e.(type) {
	case *Tag:
		return v.Implicit
	case *Credential:
		return v.Implicit
	}
	return false
}

// Link is a reference from an Execute Workflow node to another workflow.
type Link struct {
	// TargetID is the workflow id as written in the node parameters.
	TargetID string `json:"targetId"`
	// Target is the referenced workflow, set when TargetID resolves within the collection.
	Target   Ref  `json:"target"`
	Resolved bool `json:"resolved"`
}

// Workflow is an n8n workflow definition. Nodes, connections and settings are
// opaque blobs compared by content hash.
type Workflow struct {
	// ID is the remote id, LocalID the id declared by the definition (equal for remote state).
	ID      string `json:"id,omitempty"`
	LocalID string `json:"-"`

	Name        string          `json:"name"`
	Active      bool            `json:"active"`
	Nodes       json.RawMessage `json:"nodes"`
	Connections json.RawMessage `json:"connections,omitempty"`
	Settings    json.RawMessage `json:"settings,omitempty"`

	// Tags holds the sorted, unique names of the tags on the workflow.
	Tags []string `json:"tags,omitempty"`

	// Derived by Analyze and Collection.Finalize.
	Credentials  []Credential  `json:"-"`
	SubWorkflows []Link        `json:"-"`
	Hash         digest.Digest `json:"-"`
}

func (w *Workflow) Ref() Ref         { return WorkflowRef(w.Name) }
func (w *Workflow) RemoteID() string { return w.ID }

// References returns the identities of every tag and credential the workflow uses.
func (w *Workflow) References() []Ref {
	refs := make([]Ref, 0, len(w.Tags)+len(w.Credentials))
	for _, name := range w.Tags {
		refs = append(refs, TagRef(name))
	}
	for _, cred := range w.Credentials {
		refs = append(refs, cred.Ref())
	}
	return refs
}

// Analyze derives credential references and sub-workflow links from the nodes.
func (w *Workflow) Analyze() error {
	nodes, err := parseNodes(w.Nodes)
	if err != nil {
		return err
	}

	w.Credentials = extractCredentials(nodes)
	w.SubWorkflows = w.SubWorkflows[:0]
	for _, id := range extractSubWorkflowIDs(nodes) {
		w.SubWorkflows = append(w.SubWorkflows, Link{TargetID: id})
	}
	return nil
}

// Page is one page of a paginated remote listing.
type Page struct {
	Items      []Entity
	NextCursor string
}

// Clone returns a copy of the workflow that shares no mutable state with it.
func (w *Workflow) Clone() *Workflow {
	c := *w
	c.Nodes = append(json.RawMessage(nil), w.Nodes...)
	c.Connections = append(json.RawMessage(nil), w.Connections...)
	c.Settings = append(json.RawMessage(nil), w.Settings...)
	c.Tags = append([]string(nil), w.Tags...)
	c.Credentials = append([]Credential(nil), w.Credentials...)
	c.SubWorkflows = append([]Link(nil), w.SubWorkflows...)
	return &c
}
