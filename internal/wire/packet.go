// Package wire encodes and parses the fixed audio-packet header used on the
// TURN-relayed socket: a 12-byte big-endian header (sequence + send
// timestamp) followed by an opaque Opus frame.
package wire

import "encoding/binary"

// HeaderSize is the fixed header length in bytes.
const HeaderSize = 12

// MaxOpusFrameBytes is the largest legal Opus frame (RFC 6716).
const MaxOpusFrameBytes = 1275

// EncodeHeader writes sequence and sendTimestampMs into a fresh 12-byte
// header.
func EncodeHeader(sequence uint32, sendTimestampMs uint64) []byte {
	h := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(h[0:4], sequence)
	binary.BigEndian.PutUint64(h[4:12], sendTimestampMs)
	return h
}

// DecodeHeader reads sequence and sendTimestampMs from a 12-byte header.
// The caller must ensure len(h) >= HeaderSize.
func DecodeHeader(h []byte) (sequence uint32, sendTimestampMs uint64) {
	sequence = binary.BigEndian.Uint32(h[0:4])
	sendTimestampMs = binary.BigEndian.Uint64(h[4:12])
	return sequence, sendTimestampMs
}

// BuildPacket assembles a full datagram: header followed by payload.
func BuildPacket(sequence uint32, sendTimestampMs uint64, payload []byte) []byte {
	pkt := make([]byte, HeaderSize+len(payload))
	copy(pkt[0:HeaderSize], EncodeHeader(sequence, sendTimestampMs))
	copy(pkt[HeaderSize:], payload)
	return pkt
}

// ParsePacket splits a datagram into its header fields and payload. ok is
// false if data is shorter than HeaderSize — the minimum legal packet — in
// which case the datagram must be dropped without touching any state.
// The returned payload aliases data; copy it before retaining across the
// caller's read-buffer reuse.
func ParsePacket(data []byte) (sequence uint32, sendTimestampMs uint64, payload []byte, ok bool) {
	if len(data) < HeaderSize {
		return 0, 0, nil, false
	}
	sequence, sendTimestampMs = DecodeHeader(data[:HeaderSize])
	return sequence, sendTimestampMs, data[HeaderSize:], true
}
