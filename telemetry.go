package llas

import (
	"github.com/Delta-Zero-Games/llas/internal/registry"
)

// registryAdapter narrows *registry.Registry to the snapshotter interface
// the metrics Collector depends on, so the collector package boundary
// never has to import internal/registry directly.
type registryAdapter struct {
	reg *registry.Registry
}

// Snapshot reads each peer's last-published quality snapshot rather than
// calling Quality.Stats directly — Quality is exclusively owned by the
// receive pipeline goroutine and is not safe to read concurrently with its
// own Update calls, so Collect (run by Prometheus on its own goroutine)
// only ever sees the cached copy the receive loop hands off.
func (a registryAdapter) Snapshot() []snapshotPeer {
	peers := a.reg.Snapshot()
	out := make([]snapshotPeer, len(peers))
	for i, p := range peers {
		out[i] = snapshotPeer{Addr: p.Addr, Stats: p.Stats()}
	}
	return out
}

// Collector returns a Prometheus collector over this session's live peer
// registry, suitable for registering with a prometheus.Registry.
func (s *Session) Collector() *Collector {
	return NewCollector(registryAdapter{reg: s.registry})
}
