package server

import "sync"

// Registry is the authoritative set of active peers. The set and its count are
// guarded by one mutex and always change together, so Count never disagrees
// with the set a concurrent broadcast iterates.
type Registry struct {
	mu    sync.Mutex
	peers map[*Peer]struct{}
	count int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{peers: make(map[*Peer]struct{})}
}

// Register adds p to the active set. Registering a peer twice is a no-op.
func (r *Registry) Register(p *Peer) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[p]; ok {
		return
	}
	r.peers[p] = struct{}{}
	r.count++
}

// Deregister removes p and reports whether it was present.
func (r *Registry) Deregister(p *Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[p]; !ok {
		return false
	}
	delete(r.peers, p)
	r.count--
	return true
}

// Count returns the number of registered peers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Contains reports whether p is registered.
func (r *Registry) Contains(p *Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.peers[p]
	return ok
}

// ForEachExcept calls fn for every registered peer other than excluded while
// holding the registry lock. fn must not block and must not call back into r.
func (r *Registry) ForEachExcept(excluded *Peer, fn func(*Peer)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for p := range r.peers {
		if p == excluded {
			continue
		}
		fn(p)
	}
}

// Snapshot returns a copy of the registered peers.
func (r *Registry) Snapshot() []*Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	peers := make([]*Peer, 0, len(r.peers))
	for p := range r.peers {
		peers = append(peers, p)
	}
	return peers
}
