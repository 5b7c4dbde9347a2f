package orchestrator

import (
	"sync"

	"codesquad/internal/persona"
)

// Status is the lifecycle state of one specialist.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusWorking  Status = "working"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// StatusBoard tracks the state of every squad specialist for one session,
// keyed by specialist persona. All specialists reset to idle when that
// session starts a squad turn.
type StatusBoard struct {
	mu       sync.RWMutex
	statuses map[persona.Mode]Status
	onChange func(map[persona.Mode]Status)
}

// NewStatusBoard creates a board with every specialist idle. onChange,
// if non-nil, observes each state transition with a full snapshot.
func NewStatusBoard(onChange func(map[persona.Mode]Status)) *StatusBoard {
	b := &StatusBoard{
		statuses: make(map[persona.Mode]Status, len(persona.Specialists)),
		onChange: onChange,
	}
	for _, s := range persona.Specialists {
		b.statuses[s.Mode] = StatusIdle
	}
	return b
}

// Reset returns every specialist to idle.
func (b *StatusBoard) Reset() {
	b.mu.Lock()
	for _, s := range persona.Specialists {
		b.statuses[s.Mode] = StatusIdle
	}
	snapshot := b.snapshotLocked()
	b.mu.Unlock()
	b.notify(snapshot)
}

// Set records a specialist transition.
func (b *StatusBoard) Set(mode persona.Mode, status Status) {
	b.mu.Lock()
	b.statuses[mode] = status
	snapshot := b.snapshotLocked()
	b.mu.Unlock()
	b.notify(snapshot)
}

// Snapshot returns a copy of the current statuses.
func (b *StatusBoard) Snapshot() map[persona.Mode]Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshotLocked()
}

func (b *StatusBoard) snapshotLocked() map[persona.Mode]Status {
	out := make(map[persona.Mode]Status, len(b.statuses))
	for k, v := range b.statuses {
		out[k] = v
	}
	return out
}

func (b *StatusBoard) notify(snapshot map[persona.Mode]Status) {
	if b.onChange != nil {
		b.onChange(snapshot)
	}
}
