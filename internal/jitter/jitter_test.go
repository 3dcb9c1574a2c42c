package jitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

// drainAfterEach feeds each sequence to Add, attempting a Pop immediately
// afterward (mirroring the receive pipeline's Add-then-drain-to-exhaustion
// loop in handlePeerPacket), and collects every payload released along the
// way. adapt_delay compares the arriving sequence against
// last_released_sequence, which only advances on a successful Pop and
// starts at 0 (matching original_source's JitterBuffer::adapt_delay, which
// keys off last_sequence set inside pop_packet, not add_packet). Until the
// first Pop fires — which requires enough packets buffered for
// buffered*10ms to reach current_delay — every arriving sequence is
// compared against 0, so current_delay grows well past min before the
// buffer starts draining. A 5-packet scenario therefore cannot reach
// current_delay==min with all 5 released; see DESIGN.md's jitter buffer
// entry for the worked accounting.
func drainAfterEach(b *Buffer, sequences []uint32) [][]byte {
	var out [][]byte
	for _, seq := range sequences {
		b.Add(seq, []byte{byte(seq)})
		for {
			p, ok := b.Pop()
			if !ok {
				break
			}
			out = append(out, p)
		}
	}
	return out
}

// S1: in-order arrivals release in order; current_delay grows away from min
// during the initial fill (last_released_sequence is still 0) and settles
// at 27 once three packets have drained, with two left buffered awaiting
// more arrivals that never come in this scenario.
func TestScenarioInOrder(t *testing.T) {
	b := New(20, 50)
	released := drainAfterEach(b, []uint32{1, 2, 3, 4, 5})
	if len(released) != 3 {
		t.Fatalf("expected 3 released packets, got %d", len(released))
	}
	for i, p := range released {
		if p[0] != byte(i+1) {
			t.Fatalf("out of order release at %d: got %d", i, p[0])
		}
	}
	if b.CurrentDelayMs() != 27 {
		t.Errorf("current delay: got %d, want 27", b.CurrentDelayMs())
	}
	if b.Len() != 2 {
		t.Errorf("expected 2 packets left buffered, got %d", b.Len())
	}
}

// S2: a single reorder still releases the same three packets in order, and
// delay grows past min just as in the in-order case — the buffer is always
// kept sorted by sequence, so the reorder doesn't change what ends up
// buffered or released, only the order Add saw them in.
func TestScenarioReorder(t *testing.T) {
	b := New(20, 50)
	released := drainAfterEach(b, []uint32{1, 2, 4, 3, 5})
	if len(released) != 3 {
		t.Fatalf("expected 3 released packets, got %d", len(released))
	}
	for i, p := range released {
		if p[0] != byte(i+1) {
			t.Fatalf("out of order release at %d: got %d", i, p[0])
		}
	}
	if b.CurrentDelayMs() <= 20 {
		t.Errorf("current delay should have grown past min, got %d", b.CurrentDelayMs())
	}
}

// S3: two missing sequences (3 and 4) release fewer packets before the
// buffer stalls waiting for more arrivals — only the first two of the five
// present packets clear the buffered*10ms >= current_delay bar.
func TestScenarioGaps(t *testing.T) {
	b := New(20, 50)
	released := drainAfterEach(b, []uint32{1, 2, 5, 6, 7})
	if len(released) != 2 {
		t.Fatalf("expected 2 released packets, got %d", len(released))
	}
	want := []byte{1, 2}
	for i, p := range released {
		if p[0] != want[i] {
			t.Fatalf("release %d: got %d, want %d", i, p[0], want[i])
		}
	}
	if b.CurrentDelayMs() != 33 {
		t.Errorf("current delay: got %d, want 33", b.CurrentDelayMs())
	}
	if b.Len() != 3 {
		t.Errorf("expected 3 packets left buffered, got %d", b.Len())
	}
}

func TestPinnedWhenMinEqualsMax(t *testing.T) {
	b := New(20, 20)
	for _, seq := range []uint32{1, 5, 2, 100} {
		b.Add(seq, nil)
		if b.CurrentDelayMs() != 20 {
			t.Fatalf("current delay must stay pinned at 20, got %d after seq %d", b.CurrentDelayMs(), seq)
		}
	}
}

func TestDuplicateSequenceTolerated(t *testing.T) {
	b := New(20, 50)
	b.Add(1, []byte("a"))
	b.Add(1, []byte("b"))
	if b.Len() != 2 {
		t.Fatalf("duplicates should both be inserted, len=%d", b.Len())
	}
}

// Property: min <= current <= max holds after any sequence of insertions,
// for any min/max/sequence combination (invariant 3).
func TestInvariantDelayBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		minD := rapid.Uint32Range(0, 1000).Draw(t, "min")
		maxD := rapid.Uint32Range(minD, minD+1000).Draw(t, "max")
		b := New(minD, maxD)

		seqs := rapid.SliceOfN(rapid.Uint32Range(0, 10000), 0, 50).Draw(t, "seqs")
		for _, s := range seqs {
			b.Add(s, nil)
			assert.GreaterOrEqual(t, b.CurrentDelayMs(), minD)
			assert.LessOrEqual(t, b.CurrentDelayMs(), maxD)
			b.Pop()
		}
	})
}

// Property: for in-order arrivals drained after every Add, each released
// payload's sequence is no lower than the one released before it
// (invariant 1, restricted to in-order arrivals as the spec scopes it).
func TestInvariantMonotonicRelease(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 30).Draw(t, "n")
		b := New(20, 50)
		var lastSeen uint32
		first := true
		for i := 0; i < n; i++ {
			b.Add(uint32(i), []byte{byte(i)})
			for {
				p, ok := b.Pop()
				if !ok {
					break
				}
				got := p[0]
				if !first {
					assert.GreaterOrEqual(t, got, byte(lastSeen))
				}
				lastSeen = uint32(got)
				first = false
			}
		}
	})
}
