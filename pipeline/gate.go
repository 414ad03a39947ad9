package pipeline

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// Gate allows one in-flight run per artifact path. A second run on the same
// path is rejected rather than queued.
type Gate struct {
	mu   sync.Mutex
	sems map[string]*semaphore.Weighted
}

func NewGate() *Gate {
	return &Gate{sems: make(map[string]*semaphore.Weighted)}
}

// TryAcquire returns a release func and true when path was free.
func (g *Gate) TryAcquire(path string) (func(), bool) {
	g.mu.Lock()
	sem, ok := g.sems[path]
	if !ok {
		sem = semaphore.NewWeighted(1)
		g.sems[path] = sem
	}
	g.mu.Unlock()

	if !sem.TryAcquire(1) {
		return nil, false
	}
	var once sync.Once
	return func() { once.Do(func() { sem.Release(1) }) }, true
}
