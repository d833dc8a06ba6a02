package manager

import "sync"

// Registry is the process-wide ManagerRegistry (§ 4.1): tracks the live
// Manager for each conversationId, grounded on the teacher's
// pkg/session.Manager map+RWMutex collection pattern (a plain sync.Map
// cannot express GetOrCreate's atomic build-once-under-lock semantics
// without constructing a throwaway Manager on every racing caller). It is
// the only process-wide mutable state the HTTP/API layer touches directly.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]*Manager
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Manager)}
}

// Get returns the live Manager for conversationID, if any.
func (r *Registry) Get(conversationID string) (*Manager, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[conversationID]
	return m, ok
}

// GetOrCreate returns the existing Manager for conversationID, or builds
// one with build and registers it if absent. build is only invoked while
// holding the write lock, so two concurrent callers never construct two
// Managers for the same conversation.
func (r *Registry) GetOrCreate(conversationID string, build func() *Manager) (mgr *Manager, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.byID[conversationID]; ok {
		return m, false
	}
	m := build()
	r.byID[conversationID] = m
	return m, true
}

// Remove deletes conversationID from the registry — called as a Manager's
// onStopped callback once it finishes tearing its subtree down.
func (r *Registry) Remove(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, conversationID)
}

// Len reports the number of live conversations, for the
// morgana_active_conversations gauge.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
