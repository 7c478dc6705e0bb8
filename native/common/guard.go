package common

import (
	"errors"
	"strings"
	"sync"
)

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// PauseSet is an in-memory PauseView toggled by operators.
type PauseSet struct {
	mu     sync.RWMutex
	paused map[string]bool
}

// NewPauseSet returns a PauseSet with the listed modules paused.
func NewPauseSet(modules ...string) *PauseSet {
	ps := &PauseSet{paused: make(map[string]bool)}
	for _, m := range modules {
		ps.Set(m, true)
	}
	return ps
}

// Set pauses or resumes a module.
func (ps *PauseSet) Set(module string, paused bool) {
	key := strings.ToLower(strings.TrimSpace(module))
	if key == "" {
		return
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if paused {
		ps.paused[key] = true
		return
	}
	delete(ps.paused, key)
}

// IsPaused implements PauseView.
func (ps *PauseSet) IsPaused(module string) bool {
	if ps == nil {
		return false
	}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.paused[strings.ToLower(strings.TrimSpace(module))]
}
