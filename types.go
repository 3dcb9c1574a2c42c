package llas

import (
	"github.com/Delta-Zero-Games/llas/internal/netutil"
	"github.com/Delta-Zero-Games/llas/internal/quality"
)

// PeerAddr identifies a peer on the relayed socket. It is re-exported from
// internal/netutil so callers never need to import that package directly.
type PeerAddr = netutil.PeerAddr

// DecodedFrame is one payload released by a peer's jitter buffer, ready for
// the audio pipeline to decode and play out.
type DecodedFrame struct {
	Peer            PeerAddr
	Sequence        uint32
	SendTimestampMs uint64
	Payload         []byte
}

// StatsEvent carries one peer's refreshed quality snapshot, published on
// every received packet for that peer.
type StatsEvent struct {
	Peer  PeerAddr
	Stats quality.Stats
}
