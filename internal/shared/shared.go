// Package shared implements the cross-adapter SharedData (§5): one
// RWMutex-guarded store per surface holding the session and settings stores
// and API rate-limit timestamps; in-flight cancel tokens live in the separate
// Registry. Callers must keep critical sections short — no I/O
// while the mutex is held. Acquisition order is strictly SharedData, then no
// other lock; CancelToken has its own internal synchronization and may be
// touched outside SharedData.
package shared

import (
	"sync"
	"time"

	"github.com/itismyfield/cokacdir/internal/agentproc"
	"github.com/itismyfield/cokacdir/internal/sessions"
	"github.com/itismyfield/cokacdir/internal/settings"
)

// Data is the per-surface shared state that the adapter event loop, bridge
// readers, and presenter pollers all touch.
type Data struct {
	mu sync.RWMutex

	sessions     *sessions.Store
	settingsFile *settings.Store
	apiTimestamp map[string]time.Time
}

// New wires a Data instance around the already-open session and settings
// stores, which have their own internal locking.
func New(sessionStore *sessions.Store, settingsStore *settings.Store) *Data {
	return &Data{
		sessions:     sessionStore,
		settingsFile: settingsStore,
		apiTimestamp: make(map[string]time.Time),
	}
}

// Sessions returns the conversation session store. Callers still go through
// the store's own locking for individual session mutation; this accessor
// only protects the field read itself.
func (d *Data) Sessions() *sessions.Store {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sessions
}

// Settings returns the settings document store.
func (d *Data) Settings() *settings.Store {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.settingsFile
}

// RecordAPICall stamps the current time for key (typically a surface+route
// pair) so surface-level rate limiting can consult it later.
func (d *Data) RecordAPICall(key string, at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.apiTimestamp[key] = at
}

// LastAPICall reports the last recorded call time for key, if any.
func (d *Data) LastAPICall(key string) (time.Time, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.apiTimestamp[key]
	return t, ok
}

// InFlight holds the cancel token for a conversation currently being
// serviced, alongside the key identifying it. The registry below does not
// use it; it maps each key to the token pointer directly. CancelToken is a
// pointer with its own atomics, so copying InFlight is safe.
type InFlight struct {
	Key   sessions.Key
	Token *agentproc.CancelToken
}

// Registry tracks the in-flight request per conversation key, mirroring
// the "presenter poller" task-per-in-flight-request model. It is a separate
// lock from Data's because cancel-token lookups happen on the hot path of
// every inbound message and must never block on a session or settings
// critical section.
type Registry struct {
	mu      sync.RWMutex
	inFlate map[sessions.Key]*agentproc.CancelToken
}

// NewRegistry returns an empty in-flight registry.
func NewRegistry() *Registry {
	return &Registry{inFlate: make(map[sessions.Key]*agentproc.CancelToken)}
}

// Start records token as the in-flight request for key. Returns false
// without recording if a request is already in flight for that key, so
// callers can reply "already running" rather than starting a second one.
func (r *Registry) Start(key sessions.Key, token *agentproc.CancelToken) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.inFlate[key]; exists {
		return false
	}
	r.inFlate[key] = token
	return true
}

// Finish removes the in-flight entry for key once the request completes.
func (r *Registry) Finish(key sessions.Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlate, key)
}

// Lookup returns the cancel token in flight for key, if any.
func (r *Registry) Lookup(key sessions.Key) (*agentproc.CancelToken, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	token, ok := r.inFlate[key]
	return token, ok
}

// Stop cancels the in-flight request for key. Idempotent: reports false if
// nothing is in flight, or if the token was already cancelled, so the
// caller can reply "already stopping".
func (r *Registry) Stop(key sessions.Key) bool {
	r.mu.RLock()
	token, ok := r.inFlate[key]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if token.Cancelled() {
		return false
	}
	token.Cancel()
	return true
}
