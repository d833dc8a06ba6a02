// Package toolctx implements ContextProvider: the per-agent key/value store
// split into private and shared maps described in SPEC_FULL.md § 4.8. A
// provider is only ever touched from its owning Agent's single
// message-handling goroutine (the actor Mailbox serializes that), so no
// internal locking is required — mirroring the spec's explicit invariant.
package toolctx

// BroadcastFunc is invoked whenever a write lands in the shared map, so the
// owning Agent can forward it to the Router as a BroadcastContextUpdate.
type BroadcastFunc func(updates map[string]string)

// Provider is one Agent's private/shared key-value store.
type Provider struct {
	private map[string]string
	shared  map[string]string

	// sharedEligible is the declared set of variable names whose writes go
	// to shared (and trigger broadcast) instead of private.
	sharedEligible map[string]bool

	onBroadcast BroadcastFunc
}

// New creates a Provider. sharedEligible names the variables that, when
// Set, are written to the shared map and broadcast via onBroadcast; every
// other name is written to the private map. onBroadcast may be nil (no-op),
// used in tests that don't care about broadcast delivery.
func New(sharedEligible []string, onBroadcast BroadcastFunc) *Provider {
	elig := make(map[string]bool, len(sharedEligible))
	for _, n := range sharedEligible {
		elig[n] = true
	}
	if onBroadcast == nil {
		onBroadcast = func(map[string]string) {}
	}
	return &Provider{
		private:        make(map[string]string),
		shared:         make(map[string]string),
		sharedEligible: elig,
		onBroadcast:    onBroadcast,
	}
}

// Get returns the value for key and whether it was present, checking shared
// first then private — a key never lives in both per the invariant in § 4.8.
func (p *Provider) Get(key string) (string, bool) {
	if v, ok := p.shared[key]; ok {
		return v, true
	}
	v, ok := p.private[key]
	return v, ok
}

// Set writes key=value. Shared-eligible keys go to the shared map and
// trigger a broadcast callback; everything else goes to private.
func (p *Provider) Set(key, value string) {
	if p.sharedEligible[key] {
		p.shared[key] = value
		p.onBroadcast(map[string]string{key: value})
		return
	}
	p.private[key] = value
}

// Drop removes key from whichever map holds it. It does not trigger a
// broadcast — removal is a purely local operation.
func (p *Provider) Drop(key string) {
	delete(p.shared, key)
	delete(p.private, key)
}

// MergeShared applies an inbound broadcast with first-write-wins semantics:
// a key already present in this provider's shared map is never overwritten.
func (p *Provider) MergeShared(updates map[string]string) {
	for k, v := range updates {
		if _, exists := p.shared[k]; exists {
			continue
		}
		p.shared[k] = v
	}
}

// SetRaw writes value to key without consulting sharedEligible or
// broadcasting — used internally by the quick-replies sink (§ 4.7), which is
// explicitly never shared across agents.
func (p *Provider) SetRaw(key, value string) {
	p.private[key] = value
}

// DropRaw removes key from the private map only.
func (p *Provider) DropRaw(key string) {
	delete(p.private, key)
}
