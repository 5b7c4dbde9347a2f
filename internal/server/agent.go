package server

import (
	"sync"
	"time"
)

// AgentState is the reported state of one named background agent.
type AgentState struct {
	Name      string     `json:"name"`
	Running   bool       `json:"running"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	StoppedAt *time.Time `json:"stoppedAt,omitempty"`
	Starts    int        `json:"starts"`
}

// AgentRegistry tracks named background agents exposed over the agent
// endpoints. It is owned by whoever builds the router and injected in.
type AgentRegistry struct {
	mu     sync.Mutex
	agents map[string]*AgentState
}

// NewAgentRegistry creates an empty registry.
func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{agents: make(map[string]*AgentState)}
}

// Start marks an agent running, creating it on first use.
func (r *AgentRegistry) Start(name string) AgentState {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[name]
	if !ok {
		a = &AgentState{Name: name}
		r.agents[name] = a
	}
	now := time.Now()
	a.Running = true
	a.StartedAt = &now
	a.StoppedAt = nil
	a.Starts++
	return *a
}

// Stop marks an agent stopped. Unknown names are a no-op.
func (r *AgentRegistry) Stop(name string) (AgentState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[name]
	if !ok {
		return AgentState{}, false
	}
	now := time.Now()
	a.Running = false
	a.StoppedAt = &now
	return *a, true
}

// Reset clears the registry.
func (r *AgentRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents = make(map[string]*AgentState)
}

// Status returns a snapshot of every agent.
func (r *AgentRegistry) Status() map[string]AgentState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]AgentState, len(r.agents))
	for name, a := range r.agents {
		out[name] = *a
	}
	return out
}
