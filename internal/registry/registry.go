// Package registry tracks the set of currently known peers and the
// per-peer jitter buffer and quality monitor that the receive pipeline
// maintains for each of them.
package registry

import (
	"sync"
	"sync/atomic"

	"github.com/Delta-Zero-Games/llas/internal/jitter"
	"github.com/Delta-Zero-Games/llas/internal/netutil"
	"github.com/Delta-Zero-Games/llas/internal/quality"
)

// Default jitter buffer bounds applied to every newly registered peer.
const (
	DefaultMinDelayMs = 20
	DefaultMaxDelayMs = 50
)

// Peer bundles the two pieces of state the receive pipeline owns for a
// single remote party, plus the last quality snapshot it published.
type Peer struct {
	Addr    netutil.PeerAddr
	Jitter  *jitter.Buffer
	Quality *quality.Monitor

	// stats holds the most recent quality.Stats computed by the receive
	// pipeline after a call to Quality.Update. Quality itself is only safe
	// to touch from that one goroutine, so readers elsewhere (the metrics
	// collector) must go through PublishStats/Stats instead of calling
	// Quality.Stats directly.
	stats atomic.Pointer[quality.Stats]
}

// PublishStats records s as the peer's latest quality snapshot. Only the
// receive pipeline goroutine that owns this peer's Quality monitor should
// call this.
func (p *Peer) PublishStats(s quality.Stats) {
	p.stats.Store(&s)
}

// Stats returns the most recently published quality snapshot for this
// peer, or the zero value if none has been published yet. Safe to call
// from any goroutine.
func (p *Peer) Stats() quality.Stats {
	if s := p.stats.Load(); s != nil {
		return *s
	}
	return quality.Stats{}
}

// Registry is the shared map of known peers. The receive pipeline is the
// sole mutator and reader of each Peer's Jitter/Quality state; the send
// pipeline and the metrics collector only ever read a Snapshot, so the
// mutex here only ever guards the map structure itself, not per-peer
// buffers, keeping the hot path lock-free.
type Registry struct {
	mu    sync.RWMutex
	peers map[netutil.PeerAddr]*Peer
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{peers: make(map[netutil.PeerAddr]*Peer)}
}

// Add registers addr if it is not already known, using the default jitter
// bounds and nowMs as the quality monitor's arrival-timing baseline. It is
// a no-op if addr is already registered — re-registering an existing peer
// leaves its accumulated state untouched.
func (r *Registry) Add(addr netutil.PeerAddr, nowMs float64) *Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.peers[addr]; ok {
		return p
	}
	p := &Peer{
		Addr:    addr,
		Jitter:  jitter.New(DefaultMinDelayMs, DefaultMaxDelayMs),
		Quality: quality.New(nowMs),
	}
	r.peers[addr] = p
	return p
}

// Remove discards a peer's state, reporting whether addr was registered.
func (r *Registry) Remove(addr netutil.PeerAddr) (found bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, found = r.peers[addr]
	delete(r.peers, addr)
	return found
}

// Get returns the peer registered at addr, if any.
func (r *Registry) Get(addr netutil.PeerAddr) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[addr]
	return p, ok
}

// Snapshot returns the current set of peers as a plain slice, safe to range
// over without holding any lock. This is what the send pipeline fans out to
// and what the metrics collector walks on each Prometheus scrape.
func (r *Registry) Snapshot() []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	return out
}

// Len reports the number of currently registered peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
