package llas

import (
	"context"
	"log"

	"github.com/Delta-Zero-Games/llas/internal/wire"
)

// sendLoop is the send pipeline: it drains queued outbound frames and, for
// each one, writes a single wire-encoded packet to every peer currently in
// the registry. Sequence numbers are global to the session, not per-peer —
// all peers see the same sequence for a given frame. It never touches
// jitter buffers or quality monitors — those belong exclusively to the
// receive pipeline.
func (s *Session) sendLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-s.sendCh:
			sequence := s.seq.Add(1)
			pkt := wire.BuildPacket(sequence, uint64(nowMs()), payload)

			for _, peer := range s.registry.Snapshot() {
				if _, err := s.conn.WriteToUDP(pkt, peer.Addr.UDPAddr()); err != nil {
					select {
					case <-ctx.Done():
						return
					default:
					}
					log.Printf("[send] write to %s failed: %v", peer.Addr, err)
				}
			}
		}
	}
}
