// Package plan orders reconciliation operations into a dependency-respecting,
// deterministic total order and keeps the dependency graph for the scheduler.
package plan

import (
	"container/heap"
	"fmt"
	"sort"
	"strings"

	"github.com/enthus-appdev/n8nctl/internal/reconcile/differ"
	"github.com/enthus-appdev/n8nctl/internal/reconcile/entity"
	"github.com/enthus-appdev/n8nctl/internal/reconcile/op"
)

// CyclicDependencyError is returned when the operations admit no valid order.
type CyclicDependencyError struct {
	// Operations lists the operations left unordered, in lexical order.
	Operations []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("circular dependency between operations: %s", strings.Join(e.Operations, ", "))
}

// Plan is an ordered list of operations plus the dependency graph between them,
// stored as index adjacency lists into Operations.
type Plan struct {
	Operations []op.Operation
	// Deps[i] holds the positions that must be applied before Operations[i].
	Deps [][]int
	// Dependents[i] holds the positions waiting on Operations[i].
	Dependents [][]int
	// Preserved lists current-only identities kept by the preserve-untracked policy.
	Preserved []entity.Ref
}

// Len returns the number of operations
func (p *Plan) Len() int {
	return len(p.Operations)
}

// Empty reports whether the plan has no operation
func (p *Plan) Empty() bool {
	return len(p.Operations) == 0
}

// Order builds the dependency graph of the delta and sorts it topologically.
// Among operations with no ordering constraint, identity lexical order wins.
func Order(delta *differ.Delta, desired, current *entity.Collection) (*Plan, error) {
	g := newGraph(delta.Operations)
	g.link(desired, current)

	order, err := g.sort()
	if err != nil {
		return nil, err
	}

	position := make([]int, len(order))
	for pos, idx := range order {
		position[idx] = pos
	}

	p := &Plan{
		Operations: make([]op.Operation, len(order)),
		Deps:       make([][]int, len(order)),
		Dependents: make([][]int, len(order)),
		Preserved:  append([]entity.Ref(nil), delta.Preserved...),
	}
	for pos, idx := range order {
		o := g.ops[idx]
		var deps []entity.Ref
		seen := make(map[entity.Ref]bool)
		for _, dep := range g.deps[idx] {
			p.Deps[pos] = append(p.Deps[pos], position[dep])
			p.Dependents[position[dep]] = append(p.Dependents[position[dep]], pos)
			if ref := g.ops[dep].Ref; !seen[ref] {
				seen[ref] = true
				deps = append(deps, ref)
			}
		}
		sort.Ints(p.Deps[pos])
		entity.SortRefs(deps)
		o.DependsOn = deps
		p.Operations[pos] = o
	}
	for i := range p.Dependents {
		sort.Ints(p.Dependents[i])
	}

	return p, nil
}

// graph is the arena of operations with adjacency lists keyed by index.
type graph struct {
	ops   []op.Operation
	byRef map[entity.Ref][]int
	deps  [][]int
	out   [][]int
	edges map[[2]int]bool
}

func newGraph(ops []op.Operation) *graph {
	g := &graph{
		ops:   ops,
		byRef: make(map[entity.Ref][]int),
		deps:  make([][]int, len(ops)),
		out:   make([][]int, len(ops)),
		edges: make(map[[2]int]bool),
	}
	for i, o := range ops {
		g.byRef[o.Ref] = append(g.byRef[o.Ref], i)
	}
	return g
}

// addEdge records that from must be applied before to.
func (g *graph) addEdge(from, to int) {
	if from == to || g.edges[[2]int{from, to}] {
		return
	}
	g.edges[[2]int{from, to}] = true
	g.deps[to] = append(g.deps[to], from)
	g.out[from] = append(g.out[from], to)
}

// edgesFrom links every operation on ref whose kind is in kinds before to.
func (g *graph) edgesFrom(ref entity.Ref, to int, kinds ...op.Kind) {
	for _, from := range g.byRef[ref] {
		for _, k := range kinds {
			if g.ops[from].Kind == k {
				g.addEdge(from, to)
			}
		}
	}
}

func (g *graph) link(desired, current *entity.Collection) {
	for i, o := range g.ops {
		// Content changes on an identity precede its activation changes.
		for _, j := range g.byRef[o.Ref] {
			if g.ops[j].Kind.Rank() < o.Kind.Rank() {
				g.addEdge(j, i)
			}
		}

		switch o.Kind {
		case op.Create, op.Update:
			wf, ok := o.Desired.(*entity.Workflow)
			if !ok {
				continue
			}
			for _, ref := range wf.References() {
				g.edgesFrom(ref, i, op.Create, op.Update)
			}
			// A called workflow that already exists keeps its remote id, so
			// only its creation has to come first.
			for _, link := range wf.SubWorkflows {
				if link.Resolved {
					g.edgesFrom(link.Target, i, op.Create)
				}
			}

		case op.Delete:
			g.linkDelete(i, o.Ref, current)
		}
	}
}

// linkDelete orders the deletion of a tag or credential after every change
// that stops a current workflow from referencing it. n8n does not check
// sub-workflow references, so workflow deletions stay unordered.
func (g *graph) linkDelete(i int, ref entity.Ref, current *entity.Collection) {
	if ref.Kind == entity.KindWorkflow {
		return
	}
	for _, wf := range current.Workflows() {
		if wf.Ref() == ref {
			continue
		}
		if referencesEntity(wf, ref) {
			g.edgesFrom(wf.Ref(), i, op.Delete, op.Update)
		}
	}
}

func referencesEntity(wf *entity.Workflow, ref entity.Ref) bool {
	for _, r := range wf.References() {
		if r == ref {
			return true
		}
	}
	return false
}

// sort runs Kahn's algorithm with a min-heap on (identity, kind rank).
func (g *graph) sort() ([]int, error) {
	inDegree := make([]int, len(g.ops))
	ready := &readyHeap{ops: g.ops}
	for i := range g.ops {
		inDegree[i] = len(g.deps[i])
		if inDegree[i] == 0 {
			ready.items = append(ready.items, i)
		}
	}
	heap.Init(ready)

	order := make([]int, 0, len(g.ops))
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		order = append(order, i)
		for _, next := range g.out[i] {
			inDegree[next]--
			if inDegree[next] == 0 {
				heap.Push(ready, next)
			}
		}
	}

	if len(order) < len(g.ops) {
		var stuck []string
		for i, d := range inDegree {
			if d > 0 {
				stuck = append(stuck, g.ops[i].String())
			}
		}
		sort.Strings(stuck)
		return nil, &CyclicDependencyError{Operations: stuck}
	}
	return order, nil
}

type readyHeap struct {
	ops   []op.Operation
	items []int
}

func (h *readyHeap) Len() int           { return len(h.items) }
func (h *readyHeap) Less(i, j int) bool { return h.ops[h.items[i]].Less(h.ops[h.items[j]]) }
func (h *readyHeap) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *readyHeap) Push(x any)         { h.items = append(h.items, x.(int)) }
func (h *readyHeap) Pop() any {
	old := h.items
	n := len(old)
	x := old[n-1]
	h.items = old[:n-1]
	return x
}
