package pipeline

import "sync"

// Debug holds the most recent Run. It is created once per process and shared
// by every Controller; only Controller.Run writes to it.
type Debug struct {
	mu  sync.RWMutex
	run *Run
}

func NewDebug() *Debug {
	return &Debug{}
}

func (d *Debug) record(run Run) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.run = &run
}

// Latest returns a copy of the last recorded run.
func (d *Debug) Latest() (Run, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.run == nil {
		return Run{}, false
	}
	return *d.run, true
}
