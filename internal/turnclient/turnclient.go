// Package turnclient performs the TURN Allocate handshake (RFC 5766) needed
// to obtain a relayed transport address before any peer traffic can flow.
// It speaks just enough of the protocol for that one exchange — it is not a
// general STUN/TURN client.
package turnclient

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"
)

// Message types (RFC 5766 §10).
const (
	msgTypeAllocateRequest       uint16 = 0x0003
	msgTypeAllocateSuccess       uint16 = 0x0103
	msgTypeAllocateErrorResponse uint16 = 0x0113
)

// Attribute types (RFC 5389 / RFC 5766).
const (
	attrUsername           uint16 = 0x0006
	attrMessageIntegrity   uint16 = 0x0008
	attrErrorCode          uint16 = 0x0009
	attrRealm              uint16 = 0x0014
	attrXorRelayedAddr     uint16 = 0x0016
	attrRequestedTransport uint16 = 0x0019
	attrXorMappedAddress   uint16 = 0x0020
)

// magicCookie is the fixed STUN magic cookie (RFC 5389 §6).
const magicCookie uint32 = 0x2112A442

// headerSize is the fixed STUN message header length.
const headerSize = 20

// transportUDP is the protocol value for REQUESTED-TRANSPORT: UDP (17),
// left-shifted into the attribute's high byte per RFC 5766 §14.7.
const transportUDP = 17

// ErrAllocationFailed is the sentinel wrapped by every AllocationError, so
// callers can test for it with errors.Is regardless of the numeric code.
var ErrAllocationFailed = errors.New("turn: allocation failed")

// AllocationError reports a TURN server's ERROR-CODE response to an
// Allocate request. Code is class*100+number, e.g. 401 for Unauthorized.
type AllocationError struct {
	Code   int
	Reason string
}

func (e *AllocationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("turn: allocation failed: %d %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("turn: allocation failed: %d", e.Code)
}

func (e *AllocationError) Unwrap() error { return ErrAllocationFailed }

// Config carries the long-term credentials used to authenticate the
// Allocate request.
type Config struct {
	Username   string
	Credential string
	Realm      string
}

// Allocate performs one Allocate request/response exchange against
// serverAddr over conn and returns the relayed transport address the server
// assigned. conn must be unconnected (created with net.ListenUDP) so the
// same socket remains usable for arbitrary peer traffic afterward.
func Allocate(ctx context.Context, conn *net.UDPConn, serverAddr *net.UDPAddr, cfg Config) (*net.UDPAddr, error) {
	var transactionID [12]byte
	if _, err := rand.Read(transactionID[:]); err != nil {
		return nil, fmt.Errorf("turn: generating transaction id: %w", err)
	}

	req := buildAllocateRequest(transactionID, cfg)
	if _, err := conn.WriteToUDP(req, serverAddr); err != nil {
		return nil, fmt.Errorf("turn: sending allocate request: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}
	defer conn.SetReadDeadline(time.Time{})

	buf := make([]byte, 1500)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			return nil, fmt.Errorf("turn: reading allocate response: %w", err)
		}
		resp := buf[:n]

		msgType, gotTxID, body, ok := parseHeader(resp)
		if !ok {
			continue
		}
		if gotTxID != transactionID {
			// Stray or stale response; keep waiting for ours.
			continue
		}

		switch {
		case msgType == msgTypeAllocateSuccess:
			return parseRelayedAddress(body)
		case msgType&0x0110 == 0x0110:
			return nil, parseErrorCode(body)
		default:
			return nil, &AllocationError{Reason: fmt.Sprintf("unexpected message type 0x%04x", msgType)}
		}
	}
}

func buildAllocateRequest(transactionID [12]byte, cfg Config) []byte {
	var attrs []byte
	attrs = appendAttr(attrs, attrRequestedTransport, []byte{transportUDP, 0, 0, 0})
	attrs = appendAttr(attrs, attrUsername, []byte(cfg.Username))
	attrs = appendAttr(attrs, attrRealm, []byte(cfg.Realm))

	header := make([]byte, headerSize)
	binary.BigEndian.PutUint16(header[0:2], msgTypeAllocateRequest)
	binary.BigEndian.PutUint16(header[2:4], uint16(len(attrs)+24))
	binary.BigEndian.PutUint32(header[4:8], magicCookie)
	copy(header[8:20], transactionID[:])

	key := hmacKey(cfg.Username, cfg.Realm, cfg.Credential)
	mac := hmac.New(sha1.New, key)
	mac.Write(header)
	mac.Write(attrs)
	integrity := mac.Sum(nil)

	msg := append(header, attrs...)
	msg = appendAttr(msg, attrMessageIntegrity, integrity)
	return msg
}

// hmacKey derives the MESSAGE-INTEGRITY key. The TURN server this talks to
// authenticates against the unhashed username:realm:credential triple
// rather than the RFC 5389 long-term-credential MD5 digest.
func hmacKey(username, realm, credential string) []byte {
	return []byte(username + ":" + realm + ":" + credential)
}

func appendAttr(msg []byte, attrType uint16, value []byte) []byte {
	header := make([]byte, 4)
	binary.BigEndian.PutUint16(header[0:2], attrType)
	binary.BigEndian.PutUint16(header[2:4], uint16(len(value)))
	msg = append(msg, header...)
	msg = append(msg, value...)
	return append(msg, make([]byte, padLen(len(value)))...)
}

// padLen returns the number of zero bytes needed to round n up to a
// multiple of 4, as STUN attribute values require.
func padLen(n int) int {
	rem := n % 4
	if rem == 0 {
		return 0
	}
	return 4 - rem
}

// parseHeader splits a STUN message into its type, transaction ID, and
// attribute body. ok is false for anything shorter than a full header or
// carrying the wrong magic cookie.
func parseHeader(data []byte) (msgType uint16, transactionID [12]byte, body []byte, ok bool) {
	if len(data) < headerSize {
		return 0, transactionID, nil, false
	}
	if binary.BigEndian.Uint32(data[4:8]) != magicCookie {
		return 0, transactionID, nil, false
	}
	msgType = binary.BigEndian.Uint16(data[0:2])
	copy(transactionID[:], data[8:20])
	return msgType, transactionID, data[20:], true
}

// walkAttributes walks the TLV attribute list, calling fn for each one. fn
// returning false stops iteration early.
func walkAttributes(body []byte, fn func(attrType uint16, value []byte) bool) {
	for len(body) >= 4 {
		attrType := binary.BigEndian.Uint16(body[0:2])
		length := int(binary.BigEndian.Uint16(body[2:4]))
		body = body[4:]
		if length > len(body) {
			return
		}
		value := body[:length]
		if !fn(attrType, value) {
			return
		}
		skip := length + padLen(length)
		if skip > len(body) {
			return
		}
		body = body[skip:]
	}
}

func parseRelayedAddress(body []byte) (*net.UDPAddr, error) {
	var addr *net.UDPAddr
	var parseErr error
	walkAttributes(body, func(attrType uint16, value []byte) bool {
		switch attrType {
		case attrXorRelayedAddr, attrXorMappedAddress:
			addr, parseErr = parseXorAddress(value)
			return false
		}
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	if addr == nil {
		return nil, errors.New("turn: success response carried no relayed address")
	}
	return addr, nil
}

// parseXorAddress decodes an XOR-MAPPED-ADDRESS / XOR-RELAYED-ADDRESS
// attribute value. Only the IPv4 family is supported.
func parseXorAddress(value []byte) (*net.UDPAddr, error) {
	if len(value) < 8 {
		return nil, errors.New("turn: truncated address attribute")
	}
	family := value[1]
	if family != 0x01 {
		return nil, fmt.Errorf("turn: unsupported address family 0x%02x", family)
	}
	xport := binary.BigEndian.Uint16(value[2:4])
	port := xport ^ uint16(magicCookie>>16)

	var ip [4]byte
	cookieBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(cookieBytes, magicCookie)
	for i := 0; i < 4; i++ {
		ip[i] = value[4+i] ^ cookieBytes[i]
	}

	return &net.UDPAddr{IP: net.IP(ip[:]), Port: int(port)}, nil
}

func parseErrorCode(body []byte) error {
	var code int
	var reason string
	walkAttributes(body, func(attrType uint16, value []byte) bool {
		if attrType != attrErrorCode || len(value) < 4 {
			return true
		}
		class := int(value[2] & 0x07)
		number := int(value[3])
		code = class*100 + number
		if len(value) > 4 {
			reason = string(value[4:])
		}
		return false
	})
	if code == 0 {
		return &AllocationError{Code: 0, Reason: "missing ERROR-CODE attribute"}
	}
	return &AllocationError{Code: code, Reason: reason}
}
