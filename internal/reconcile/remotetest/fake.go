// Package remotetest provides an in-memory remote instance and entity builders
// for exercising the reconciliation engine without a live n8n.
package remotetest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/enthus-appdev/n8nctl/internal/reconcile/entity"
)

// Error is a remote failure with an explicit classification.
type Error struct {
	Msg       string
	Transient bool
	Missing   bool
}

func (e *Error) Error() string   { return e.Msg }
func (e *Error) Temporary() bool { return e.Transient }
func (e *Error) NotFound() bool  { return e.Missing }

// Transient returns a retryable failure, like a 503 or a timeout.
func Transient(msg string) error { return &Error{Msg: msg, Transient: true} }

// Rejected returns a permanent failure, like a 400.
func Rejected(msg string) error { return &Error{Msg: msg} }

// NotFound returns a 404-class failure.
func NotFound(msg string) error { return &Error{Msg: msg, Missing: true} }

type failure struct {
	err error
	// applied makes the call take effect before err is returned (lost response).
	applied bool
}

// Fake is an in-memory remote. It implements the full remote capability set
// used by the loader and the apply executor. It is safe for concurrent use.
type Fake struct {
	// PageSize bounds List pages; zero means 2 so pagination is always exercised.
	PageSize int
	// Delay is slept inside every mutating call.
	Delay time.Duration
	// OnCall, when set, is invoked at the start of every mutating call.
	OnCall func(call string)

	mu          sync.Mutex
	nextID      int
	tags        map[string]*entity.Tag
	credentials map[string]*entity.Credential
	workflows   map[string]*entity.Workflow
	failures    map[string][]failure
	listErr     error
	calls       []string
	inflight    int
	maxInflight int
}

// NewFake creates an empty remote
func NewFake() *Fake {
	return &Fake{
		tags:        make(map[string]*entity.Tag),
		credentials: make(map[string]*entity.Credential),
		workflows:   make(map[string]*entity.Workflow),
		failures:    make(map[string][]failure),
	}
}

// Seed stores entities as if they already existed remotely and returns their ids.
func (f *Fake) Seed(entities ...entity.Entity) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		id := f.newID()
		switch v := e.(type) {
		case *entity.Tag:
			f.tags[id] = &entity.Tag{ID: id, Name: v.Name}
		case *entity.Credential:
			f.credentials[id] = &entity.Credential{ID: id, Name: v.Name, Type: v.Type}
		case *entity.Workflow:
			wf := v.Clone()
			wf.ID, wf.LocalID = id, id
			f.workflows[id] = wf
		}
		ids = append(ids, id)
	}
	return ids
}

// FailNext queues errors for the next calls matching "<verb> <kind>/<name>",
// e.g. "update workflow/A". Verbs are create, update, delete, activate and deactivate.
func (f *Fake) FailNext(call string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, err := range errs {
		f.failures[call] = append(f.failures[call], failure{err: err})
	}
}

// LoseResponse makes the next matching call take effect and then fail.
func (f *Fake) LoseResponse(call string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[call] = append(f.failures[call], failure{err: err, applied: true})
}

// FailList makes every List call fail with err.
func (f *Fake) FailList(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

// Calls returns the mutating calls received, in arrival order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// MaxInflight returns the highest number of concurrent mutating calls observed.
func (f *Fake) MaxInflight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInflight
}

// Workflow returns a copy of the stored workflow with the given name.
func (f *Fake) Workflow(name string) (*entity.Workflow, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, wf := range f.workflows {
		if wf.Name == name {
			return wf.Clone(), true
		}
	}
	return nil, false
}

// Snapshot returns the stored state as a finalized collection, the way the
// remote loader would see it.
func (f *Fake) Snapshot() *entity.Collection {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := entity.NewCollection()
	for _, t := range f.tags {
		tag := *t
		mustAdd(c, &tag)
	}
	for _, cr := range f.credentials {
		cred := *cr
		mustAdd(c, &cred)
	}
	for _, wf := range f.workflows {
		w := wf.Clone()
		if err := w.Analyze(); err != nil {
			panic(err)
		}
		mustAdd(c, w)
	}
	if err := c.Finalize(entity.HashStructural); err != nil {
		panic(err)
	}
	return c
}

func mustAdd(c *entity.Collection, e entity.Entity) {
	if err := c.Add(e); err != nil {
		panic(err)
	}
}

// List returns one page of entities of the given kind, ordered by id.
func (f *Fake) List(ctx context.Context, kind entity.Kind, cursor string) (*entity.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.listErr != nil {
		return nil, f.listErr
	}

	var all []entity.Entity
	switch kind {
	case entity.KindTag:
		for _, t := range f.tags {
			c := *t
			all = append(all, &c)
		}
	case entity.KindCredential:
		for _, cr := range f.credentials {
			c := *cr
			all = append(all, &c)
		}
	case entity.KindWorkflow:
		for _, wf := range f.workflows {
			c := wf.Clone()
			c.Credentials, c.SubWorkflows, c.Hash = nil, nil, ""
			all = append(all, c)
		}
	default:
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
	sort.Slice(all, func(i, j int) bool { return idLess(all[i].RemoteID(), all[j].RemoteID()) })

	start := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, Rejected("invalid cursor")
		}
		start = n
	}
	size := f.PageSize
	if size <= 0 {
		size = 2
	}
	end := start + size
	page := &entity.Page{}
	if end < len(all) {
		page.NextCursor = strconv.Itoa(end)
	} else {
		end = len(all)
	}
	if start < end {
		page.Items = all[start:end]
	}
	return page, nil
}

// Create stores a new entity and returns its id.
func (f *Fake) Create(ctx context.Context, e entity.Entity, ids entity.Resolver) (string, error) {
	var id string
	err := f.mutate(ctx, "create "+e.Ref().String(), func() error {
		switch v := e.(type) {
		case *entity.Tag:
			// Tag names are unique: creating an existing tag resolves to it.
			for _, t := range f.tags {
				if t.Name == v.Name {
					id = t.ID
					return nil
				}
			}
			id = f.newID()
			f.tags[id] = &entity.Tag{ID: id, Name: v.Name}
		case *entity.Credential:
			id = f.newID()
			f.credentials[id] = &entity.Credential{ID: id, Name: v.Name, Type: v.Type}
		case *entity.Workflow:
			wf, err := f.bind(v, ids)
			if err != nil {
				return err
			}
			id = f.newID()
			wf.ID, wf.LocalID = id, id
			// Like n8n, the active flag is ignored on create.
			wf.Active = false
			f.workflows[id] = wf
		default:
			return Rejected(fmt.Sprintf("unsupported entity %T", e))
		}
		return nil
	})
	return id, err
}

// Update replaces the content of an existing entity, keeping its active flag.
func (f *Fake) Update(ctx context.Context, remoteID string, e entity.Entity, ids entity.Resolver) error {
	return f.mutate(ctx, "update "+e.Ref().String(), func() error {
		switch v := e.(type) {
		case *entity.Credential:
			if _, ok := f.credentials[remoteID]; !ok {
				return NotFound("credential not found")
			}
			f.credentials[remoteID] = &entity.Credential{ID: remoteID, Name: v.Name, Type: v.Type}
		case *entity.Workflow:
			existing, ok := f.workflows[remoteID]
			if !ok {
				return NotFound("workflow not found")
			}
			wf, err := f.bind(v, ids)
			if err != nil {
				return err
			}
			wf.ID, wf.LocalID, wf.Active = remoteID, remoteID, existing.Active
			f.workflows[remoteID] = wf
		default:
			return Rejected(fmt.Sprintf("unsupported entity %T", e))
		}
		return nil
	})
}

// Delete removes an entity.
func (f *Fake) Delete(ctx context.Context, ref entity.Ref, remoteID string) error {
	return f.mutate(ctx, "delete "+ref.String(), func() error {
		var found bool
		switch ref.Kind {
		case entity.KindTag:
			_, found = f.tags[remoteID]
			delete(f.tags, remoteID)
		case entity.KindCredential:
			_, found = f.credentials[remoteID]
			delete(f.credentials, remoteID)
		case entity.KindWorkflow:
			_, found = f.workflows[remoteID]
			delete(f.workflows, remoteID)
		}
		if !found {
			return NotFound(ref.String() + " not found")
		}
		return nil
	})
}

// SetActive toggles the active flag of a workflow.
func (f *Fake) SetActive(ctx context.Context, ref entity.Ref, remoteID string, active bool) error {
	verb := "activate "
	if !active {
		verb = "deactivate "
	}
	return f.mutate(ctx, verb+ref.String(), func() error {
		wf, ok := f.workflows[remoteID]
		if !ok {
			return NotFound("workflow not found")
		}
		wf.Active = active
		return nil
	})
}

// mutate runs apply under the lock, honouring queued failures, the delay and
// the in-flight accounting.
func (f *Fake) mutate(ctx context.Context, call string, apply func() error) error {
	if f.OnCall != nil {
		f.OnCall(call)
	}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if queued := f.failures[call]; len(queued) > 0 {
		next := queued[0]
		f.failures[call] = queued[1:]
		if next.applied {
			if err := apply(); err != nil {
				return err
			}
		}
		return next.err
	}
	return apply()
}

// bind stores the workflow the way n8n would see it after id rewriting.
func (f *Fake) bind(v *entity.Workflow, ids entity.Resolver) (*entity.Workflow, error) {
	for _, tag := range v.Tags {
		id, ok := ids.RemoteID(entity.TagRef(tag))
		if _, exists := f.tags[id]; !ok || !exists {
			return nil, Rejected(fmt.Sprintf("tag %q does not exist", tag))
		}
	}

	nodes, err := v.Bind(ids)
	if err != nil {
		return nil, Rejected(err.Error())
	}

	wf := v.Clone()
	wf.Nodes = nodes
	wf.Credentials, wf.SubWorkflows, wf.Hash = nil, nil, ""
	return wf, nil
}

func (f *Fake) newID() string {
	f.nextID++
	return strconv.Itoa(f.nextID)
}

func idLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
