// Package jitter implements a per-peer adaptive jitter buffer for voice
// datagrams: an ordered holding tank that reorders out-of-order packets and
// grows or shrinks its target depth from observed reordering/loss evidence.
//
// A Buffer is exclusively owned by the receive pipeline goroutine — it is
// not safe for concurrent use. This mirrors the re-architecture in the
// design notes: per-peer state never crosses the receive task's boundary
// under a lock.
package jitter

import "sort"

// frameMs is the audio duration each buffered packet is assumed to
// represent (the sender's frame cadence).
const frameMs = 10

// packet holds one buffered payload, kept sorted by sequence ascending.
type packet struct {
	sequence uint32
	payload  []byte
}

// Buffer is a per-peer ordered, bounded packet holding tank with an
// adaptive target depth expressed in milliseconds.
type Buffer struct {
	packets []packet

	minDelayMs, maxDelayMs, currentDelayMs uint32
	lastReleasedSequence                   uint32
}

// New creates a Buffer with the given min/max delay bounds (milliseconds).
// current_delay starts at min_delay. Values are not otherwise validated;
// a caller passing max < min gets a buffer whose first growth clamps
// current_delay down to max, where it then stays (the 1ms shrink step only
// fires while current_delay is above min).
func New(minDelayMs, maxDelayMs uint32) *Buffer {
	return &Buffer{
		minDelayMs:    minDelayMs,
		maxDelayMs:    maxDelayMs,
		currentDelayMs: minDelayMs,
	}
}

// Add inserts a packet at the position that keeps the buffer sorted by
// sequence ascending, then runs the delay adaptation. Duplicate sequences
// are tolerated (inserted as given, not deduplicated) — see spec edge cases.
func (b *Buffer) Add(sequence uint32, payload []byte) {
	pos := sort.Search(len(b.packets), func(i int) bool {
		return b.packets[i].sequence > sequence
	})
	b.packets = append(b.packets, packet{})
	copy(b.packets[pos+1:], b.packets[pos:])
	b.packets[pos] = packet{sequence: sequence, payload: payload}

	b.adaptDelay(sequence)
}

// adaptDelay grows current_delay on reordering/loss evidence (a gap ahead
// of last_released_sequence) and shrinks it by 1ms per in-order arrival,
// clamped to [min_delay, max_delay].
func (b *Buffer) adaptDelay(sequence uint32) {
	if sequence <= b.lastReleasedSequence {
		return
	}
	gap := sequence - b.lastReleasedSequence - 1
	if gap > 0 {
		b.currentDelayMs += gap
		if b.currentDelayMs > b.maxDelayMs {
			b.currentDelayMs = b.maxDelayMs
		}
		return
	}
	if b.currentDelayMs > b.minDelayMs {
		b.currentDelayMs--
	}
}

// Pop releases the lowest-sequence payload once buffered_packets*10ms has
// reached current_delay; otherwise it returns ok=false without mutating
// state. On release, last_released_sequence advances to the popped
// sequence (even if that is a decrease — late packets may still be popped
// out of order; see spec edge cases).
func (b *Buffer) Pop() (payload []byte, ok bool) {
	if uint32(len(b.packets))*frameMs < b.currentDelayMs {
		return nil, false
	}
	if len(b.packets) == 0 {
		return nil, false
	}
	p := b.packets[0]
	b.packets = b.packets[1:]
	b.lastReleasedSequence = p.sequence
	return p.payload, true
}

// CurrentDelayMs returns the current adaptive target depth, in milliseconds.
func (b *Buffer) CurrentDelayMs() uint32 { return b.currentDelayMs }

// LastReleasedSequence returns the sequence number most recently returned
// by Pop (0 if nothing has been released yet).
func (b *Buffer) LastReleasedSequence() uint32 { return b.lastReleasedSequence }

// Len returns the number of packets currently buffered.
func (b *Buffer) Len() int { return len(b.packets) }
