package engine

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
)

// task is what the engine holds for one live wheel
type task struct {
	startTimer clockwork.Timer
	stopLoop   context.CancelFunc
}

// registry tracks timers and loops by wheel id. A wheel has at most one of each.
type registry struct {
	mu    sync.Mutex
	tasks map[int64]*task
}

func newRegistry() *registry {
	return &registry{tasks: make(map[int64]*task)}
}

func (r *registry) get(wheelID int64) *task {
	t, ok := r.tasks[wheelID]
	if !ok {
		t = &task{}
		r.tasks[wheelID] = t
	}
	return t
}

// armTimer stores the auto-start timer, stopping any timer it replaces
func (r *registry) armTimer(wheelID int64, timer clockwork.Timer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.get(wheelID)
	if t.startTimer != nil {
		t.startTimer.Stop()
	}
	t.startTimer = timer
}

// stopTimer disarms the auto-start timer but keeps the slot
func (r *registry) stopTimer(wheelID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.tasks[wheelID]; ok && t.startTimer != nil {
		t.startTimer.Stop()
		t.startTimer = nil
	}
}

// startLoop records the loop's cancel func. Returns false when a loop already runs.
func (r *registry) startLoop(wheelID int64, cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.get(wheelID)
	if t.stopLoop != nil {
		return false
	}
	t.stopLoop = cancel
	return true
}

// release stops everything held for the wheel and frees the slot. Idempotent.
func (r *registry) release(wheelID int64) {
	r.mu.Lock()
	t, ok := r.tasks[wheelID]
	delete(r.tasks, wheelID)
	r.mu.Unlock()

	if !ok {
		return
	}
	if t.startTimer != nil {
		t.startTimer.Stop()
	}
	if t.stopLoop != nil {
		t.stopLoop()
	}
}

func (r *registry) releaseAll() {
	r.mu.Lock()
	ids := make([]int64, 0, len(r.tasks))
	for id := range r.tasks {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.release(id)
	}
}

func (r *registry) has(wheelID int64) (timer bool, loop bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[wheelID]
	if !ok {
		return false, false
	}
	return t.startTimer != nil, t.stopLoop != nil
}

func (r *registry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}
