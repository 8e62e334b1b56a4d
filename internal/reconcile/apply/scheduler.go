package apply

import (
	"container/heap"
	"sync/atomic"

	"github.com/enthus-appdev/n8nctl/internal/reconcile/plan"
)

// scheduler tracks, per plan position, how many dependencies are still
// unsettled and whether one of them was not applied. Counters are settled
// concurrently by workers; the ready queue belongs to the dispatcher.
type scheduler struct {
	plan      *plan.Plan
	pending   []atomic.Int32
	unapplied []atomic.Bool
	ready     positionHeap
}

func newScheduler(p *plan.Plan) *scheduler {
	s := &scheduler{
		plan:      p,
		pending:   make([]atomic.Int32, p.Len()),
		unapplied: make([]atomic.Bool, p.Len()),
	}
	for i, deps := range p.Deps {
		s.pending[i].Store(int32(len(deps)))
		if len(deps) == 0 {
			s.ready = append(s.ready, i)
		}
	}
	heap.Init(&s.ready)
	return s
}

// settle marks position i as finished and returns the dependents that became ready.
func (s *scheduler) settle(i int, applied bool) []int {
	var ready []int
	for _, d := range s.plan.Dependents[i] {
		if !applied {
			s.unapplied[d].Store(true)
		}
		if s.pending[d].Add(-1) == 0 {
			ready = append(ready, d)
		}
	}
	return ready
}

func (s *scheduler) blocked(i int) bool {
	return s.unapplied[i].Load()
}

func (s *scheduler) push(positions ...int) {
	for _, i := range positions {
		heap.Push(&s.ready, i)
	}
}

func (s *scheduler) pop() int {
	return heap.Pop(&s.ready).(int)
}

// positionHeap pops the earliest plan position first, so dispatch follows
// the plan order whenever dependencies allow.
type positionHeap []int

func (h positionHeap) Len() int           { return len(h) }
func (h positionHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h positionHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *positionHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *positionHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
