// Package presence tracks which identities currently hold a live connection.
package presence

import "sync"

// Registry is a bijection between connection ids and public keys. Both
// directions are updated under one lock, so readers never observe a half
// applied register or unregister.
type Registry struct {
	mu     sync.RWMutex
	byKey  map[string]string // publicKey -> connectionID
	byConn map[string]string // connectionID -> publicKey
}

func NewRegistry() *Registry {
	return &Registry{
		byKey:  make(map[string]string),
		byConn: make(map[string]string),
	}
}

// Register binds connID to publicKey. A previous connection of the same
// identity and a previous identity of the same connection are both evicted.
// It returns the superseded connection id, if any.
func (r *Registry) Register(connID, publicKey string) (superseded string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if oldConn, ok := r.byKey[publicKey]; ok && oldConn != connID {
		delete(r.byConn, oldConn)
		superseded = oldConn
	}
	if oldKey, ok := r.byConn[connID]; ok && oldKey != publicKey {
		delete(r.byKey, oldKey)
	}

	r.byKey[publicKey] = connID
	r.byConn[connID] = publicKey
	return superseded
}

// Unregister drops connID in both directions and returns the identity it was
// bound to. Unknown ids are ignored.
func (r *Registry) Unregister(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	publicKey, ok := r.byConn[connID]
	if !ok {
		return "", false
	}
	delete(r.byConn, connID)
	if r.byKey[publicKey] == connID {
		delete(r.byKey, publicKey)
	}
	return publicKey, true
}

func (r *Registry) LookupConnection(publicKey string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connID, ok := r.byKey[publicKey]
	return connID, ok
}

func (r *Registry) LookupIdentity(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	publicKey, ok := r.byConn[connID]
	return publicKey, ok
}

func (r *Registry) IsOnline(publicKey string) bool {
	_, ok := r.LookupConnection(publicKey)
	return ok
}

func (r *Registry) ListOnline() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byKey))
	for k := range r.byKey {
		out = append(out, k)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}
