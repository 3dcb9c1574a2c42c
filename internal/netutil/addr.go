// Package netutil provides the comparable peer-address type shared by the
// registry and the send/receive pipelines.
package netutil

import (
	"fmt"
	"net"
)

// PeerAddr identifies a peer by IPv4 address and port. Unlike net.UDPAddr
// (which embeds a net.IP byte slice) PeerAddr is comparable, so it can be
// used directly as a map key in the Peer Registry.
type PeerAddr struct {
	IP   [4]byte
	Port uint16
}

// String renders the address in dotted-quad:port form.
func (a PeerAddr) String() string {
	return fmt.Sprintf("%d.%d.%d.%d:%d", a.IP[0], a.IP[1], a.IP[2], a.IP[3], a.Port)
}

// UDPAddr converts back to a *net.UDPAddr suitable for WriteToUDP.
func (a PeerAddr) UDPAddr() *net.UDPAddr {
	ip := make(net.IP, 4)
	copy(ip, a.IP[:])
	return &net.UDPAddr{IP: ip, Port: int(a.Port)}
}

// FromUDPAddr converts a *net.UDPAddr to a PeerAddr. ok is false if addr is
// nil or does not carry a 4-byte (IPv4) address — IPv6 relayed addresses are
// out of scope per spec.
func FromUDPAddr(addr *net.UDPAddr) (pa PeerAddr, ok bool) {
	if addr == nil {
		return PeerAddr{}, false
	}
	ip4 := addr.IP.To4()
	if ip4 == nil {
		return PeerAddr{}, false
	}
	copy(pa.IP[:], ip4)
	pa.Port = uint16(addr.Port)
	return pa, true
}
