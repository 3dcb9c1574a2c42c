package llas

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Delta-Zero-Games/llas/internal/netutil"
	"github.com/Delta-Zero-Games/llas/internal/wire"
)

// turnStub answers every Allocate request it receives with a success
// response whose relayed address is the stub's own listening address,
// until closed.
type turnStub struct {
	conn *net.UDPConn
	addr *net.UDPAddr
}

func startTurnStub(t *testing.T) *turnStub {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	s := &turnStub{conn: conn, addr: conn.LocalAddr().(*net.UDPAddr)}

	go func() {
		buf := make([]byte, 1500)
		for {
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			txID := buf[8:20]

			const magicCookie = 0x2112A442
			const msgTypeAllocateSuccess = 0x0103
			const attrXorRelayedAddr = 0x0016

			cookieBytes := make([]byte, 4)
			binary.BigEndian.PutUint32(cookieBytes, magicCookie)
			value := make([]byte, 8)
			value[1] = 0x01
			binary.BigEndian.PutUint16(value[2:4], uint16(s.addr.Port)^uint16(magicCookie>>16))
			ip4 := s.addr.IP.To4()
			for i := 0; i < 4; i++ {
				value[4+i] = ip4[i] ^ cookieBytes[i]
			}

			attrHeader := make([]byte, 4)
			binary.BigEndian.PutUint16(attrHeader[0:2], attrXorRelayedAddr)
			binary.BigEndian.PutUint16(attrHeader[2:4], uint16(len(value)))
			attrs := append(attrHeader, value...)

			header := make([]byte, 20)
			binary.BigEndian.PutUint16(header[0:2], msgTypeAllocateSuccess)
			binary.BigEndian.PutUint16(header[2:4], uint16(len(attrs)))
			binary.BigEndian.PutUint32(header[4:8], magicCookie)
			copy(header[8:20], txID)

			resp := append(header, attrs...)
			_ = n
			conn.WriteToUDP(resp, from)
		}
	}()

	return s
}

func (s *turnStub) close() { s.conn.Close() }

func openTestSession(t *testing.T, stub *turnStub) *Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sess, err := Open(ctx, TurnConfig{
		ServerAddr: stub.addr.String(),
		Username:   "u",
		Credential: "c",
		Realm:      "r",
	})
	require.NoError(t, err)
	return sess
}

func TestOpenAllocatesRelayedAddress(t *testing.T) {
	stub := startTurnStub(t)
	defer stub.close()

	sess := openTestSession(t, stub)
	defer sess.Close()

	assert.NotNil(t, sess.LocalRelayedAddr())
}

func TestReceivedPacketsProduceFramesAndStats(t *testing.T) {
	stub := startTurnStub(t)
	defer stub.close()

	sess := openTestSession(t, stub)
	defer sess.Close()

	peerConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer peerConn.Close()

	peerAddr, ok := netutil.FromUDPAddr(peerConn.LocalAddr().(*net.UDPAddr))
	require.True(t, ok)
	sess.RegisterPeer(peerAddr)

	frames, frameID := sess.SubscribeFrames()
	defer sess.UnsubscribeFrames(frameID)
	stats, statID := sess.SubscribeStats()
	defer sess.UnsubscribeStats(statID)

	sessAddr := sess.conn.LocalAddr().(*net.UDPAddr)
	for _, seq := range []uint32{1, 2, 3} {
		pkt := wire.BuildPacket(seq, 0, []byte{byte(seq)})
		_, err := peerConn.WriteToUDP(pkt, sessAddr)
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case f := <-frames:
		assert.NotEmpty(t, f.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("expected at least one decoded frame")
	}

	select {
	case ev := <-stats:
		assert.GreaterOrEqual(t, ev.Stats.PacketsReceived, uint64(1))
	case <-time.After(2 * time.Second):
		t.Fatal("expected at least one stats event")
	}
}

func TestSendFrameDeliversToPeer(t *testing.T) {
	stub := startTurnStub(t)
	defer stub.close()

	sess := openTestSession(t, stub)
	defer sess.Close()

	peerConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer peerConn.Close()

	peerAddr, ok := netutil.FromUDPAddr(peerConn.LocalAddr().(*net.UDPAddr))
	require.True(t, ok)
	sess.RegisterPeer(peerAddr)

	require.NoError(t, sess.SendFrame([]byte("hello")))

	peerConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1500)
	n, _, err := peerConn.ReadFromUDP(buf)
	require.NoError(t, err)

	_, _, payload, ok := wire.ParsePacket(buf[:n])
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), payload)
}

func TestSendFrameAfterCloseReturnsError(t *testing.T) {
	stub := startTurnStub(t)
	defer stub.close()

	sess := openTestSession(t, stub)
	require.NoError(t, sess.Close())

	err := sess.SendFrame([]byte("x"))
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestCloseIsIdempotent(t *testing.T) {
	stub := startTurnStub(t)
	defer stub.close()

	sess := openTestSession(t, stub)
	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())
}

func TestDeregisterUnknownPeerReturnsErrUnknownPeer(t *testing.T) {
	stub := startTurnStub(t)
	defer stub.close()

	sess := openTestSession(t, stub)
	defer sess.Close()

	err := sess.DeregisterPeer(PeerAddr{IP: [4]byte{127, 0, 0, 1}, Port: 1})
	assert.ErrorIs(t, err, ErrUnknownPeer)
}

func TestDeregisterRegisteredPeerSucceeds(t *testing.T) {
	stub := startTurnStub(t)
	defer stub.close()

	sess := openTestSession(t, stub)
	defer sess.Close()

	peerAddr := PeerAddr{IP: [4]byte{127, 0, 0, 1}, Port: 2}
	sess.RegisterPeer(peerAddr)
	assert.NoError(t, sess.DeregisterPeer(peerAddr))
}
