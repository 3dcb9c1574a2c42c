package llas

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Delta-Zero-Games/llas/internal/broadcast"
	"github.com/Delta-Zero-Games/llas/internal/registry"
	"github.com/Delta-Zero-Games/llas/internal/turnclient"
)

// sendQueueDepth bounds the outbound frame queue. SendFrame never blocks:
// once the queue is full, the frame is dropped and SendFrame reports it.
const sendQueueDepth = 32

// recvBufferSize is large enough for any legal packet (12-byte header plus
// the largest Opus frame) with headroom for non-voice TURN traffic.
const recvBufferSize = 2048

// Session owns one TURN-relayed UDP socket, the peer registry filled by
// RegisterPeer, and the telemetry buses fed by the receive pipeline.
type Session struct {
	conn        *net.UDPConn
	relayedAddr *net.UDPAddr

	registry *registry.Registry
	frames   *broadcast.Bus[DecodedFrame]
	stats    *broadcast.Bus[StatsEvent]

	sendCh  chan []byte
	seq     atomic.Uint32
	closed  atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Open performs the TURN Allocate handshake and, on success, starts the
// send and receive pipeline goroutines.
func Open(ctx context.Context, cfg TurnConfig) (*Session, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("llas: opening relay socket: %w", err)
	}

	serverAddr, err := net.ResolveUDPAddr("udp4", cfg.ServerAddr)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("llas: resolving TURN server address: %w", err)
	}

	relayed, err := turnclient.Allocate(ctx, conn, serverAddr, turnclient.Config{
		Username:   cfg.Username,
		Credential: cfg.Credential,
		Realm:      cfg.Realm,
	})
	if err != nil {
		conn.Close()
		return nil, err
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		conn:        conn,
		relayedAddr: relayed,
		registry:    registry.New(),
		frames:      broadcast.New[DecodedFrame](),
		stats:       broadcast.New[StatsEvent](),
		sendCh:      make(chan []byte, sendQueueDepth),
		cancel:      cancel,
	}

	s.wg.Add(2)
	go s.receiveLoop(sessCtx)
	go s.sendLoop(sessCtx)

	log.Printf("[session] relayed address allocated: %s", relayed)
	return s, nil
}

// LocalRelayedAddr returns the transport address the TURN server allocated
// for this session; peers send to this address.
func (s *Session) LocalRelayedAddr() *net.UDPAddr {
	return s.relayedAddr
}

// RegisterPeer adds addr to the peer registry ahead of any traffic from it.
// A peer must be registered before the receive pipeline will accept its
// packets or the send pipeline will include it in a frame's fan-out.
func (s *Session) RegisterPeer(addr PeerAddr) {
	s.registry.Add(addr, nowMs())
}

// DeregisterPeer discards a peer's jitter buffer and quality history. It
// returns ErrUnknownPeer if addr was not currently registered.
func (s *Session) DeregisterPeer(addr PeerAddr) error {
	if !s.registry.Remove(addr) {
		return ErrUnknownPeer
	}
	return nil
}

// SendFrame queues payload for delivery to every peer currently in the
// registry. It never blocks: if the outbound queue is full the frame is
// dropped and an error is returned.
func (s *Session) SendFrame(payload []byte) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	select {
	case s.sendCh <- payload:
		return nil
	default:
		return fmt.Errorf("llas: send queue full, dropping frame")
	}
}

// SubscribeFrames returns a channel of decoded frames released by any
// peer's jitter buffer, plus a token for UnsubscribeFrames.
func (s *Session) SubscribeFrames() (<-chan DecodedFrame, int) {
	return s.frames.Subscribe()
}

// UnsubscribeFrames detaches a frame subscription created by SubscribeFrames.
func (s *Session) UnsubscribeFrames(id int) {
	s.frames.Unsubscribe(id)
}

// SubscribeStats returns a channel of per-peer quality snapshots, plus a
// token for UnsubscribeStats.
func (s *Session) SubscribeStats() (<-chan StatsEvent, int) {
	return s.stats.Subscribe()
}

// UnsubscribeStats detaches a stats subscription created by SubscribeStats.
func (s *Session) UnsubscribeStats(id int) {
	s.stats.Unsubscribe(id)
}

// Close stops the send and receive pipelines and releases the socket. It
// is safe to call more than once.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()
	err := s.conn.Close()
	s.wg.Wait()
	return err
}

func nowMs() float64 {
	return float64(time.Now().UnixMilli())
}
