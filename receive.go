package llas

import (
	"context"
	"log"

	"github.com/Delta-Zero-Games/llas/internal/netutil"
	"github.com/Delta-Zero-Games/llas/internal/wire"
)

// receiveLoop is the receive pipeline: it owns every peer's jitter buffer
// and quality monitor for the session's lifetime. No other goroutine ever
// touches that per-peer state, so none of it needs a lock.
func (s *Session) receiveLoop(ctx context.Context) {
	defer s.wg.Done()

	buf := make([]byte, recvBufferSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			log.Printf("[receive] read failed: %v", err)
			continue
		}

		addr, ok := netutil.FromUDPAddr(from)
		if !ok {
			continue
		}

		sequence, sendTimestampMs, payload, ok := wire.ParsePacket(buf[:n])
		if !ok {
			log.Printf("[receive] dropping short datagram from %s (%d bytes)", addr, n)
			continue
		}
		payloadCopy := append([]byte(nil), payload...)

		s.handlePeerPacket(addr, sequence, sendTimestampMs, payloadCopy)
	}
}

// handlePeerPacket updates one peer's quality monitor and jitter buffer for
// a single arrival, then drains whatever the jitter buffer is now willing
// to release. Datagrams from peers that were never registered are silently
// dropped.
func (s *Session) handlePeerPacket(addr netutil.PeerAddr, sequence uint32, sendTimestampMs uint64, payload []byte) {
	peer, ok := s.registry.Get(addr)
	if !ok {
		return
	}

	peer.Quality.Update(sequence, nowMs())
	stats := peer.Quality.Stats()
	peer.PublishStats(stats)
	s.stats.Publish(StatsEvent{Peer: addr, Stats: stats})

	// The jitter buffer holds the whole packet so each released frame keeps
	// its own send timestamp rather than the one of the arrival that
	// triggered the release.
	peer.Jitter.Add(sequence, wire.BuildPacket(sequence, sendTimestampMs, payload))
	for {
		released, ok := peer.Jitter.Pop()
		if !ok {
			break
		}
		_, releasedTimestampMs, releasedPayload, _ := wire.ParsePacket(released)
		s.frames.Publish(DecodedFrame{
			Peer:            addr,
			Sequence:        peer.Jitter.LastReleasedSequence(),
			SendTimestampMs: releasedTimestampMs,
			Payload:         releasedPayload,
		})
	}
}
