package protocol

import (
	"bytes"
	"testing"
)

func TestDemuxSingleExpectation(t *testing.T) {
	d := NewDemux()

	var got []byte
	d.Expect(4, func(b []byte) { got = b })

	d.Feed([]byte{1, 2})
	if got != nil {
		t.Fatal("handler invoked before enough bytes arrived")
	}

	d.Feed([]byte{3, 4})
	if !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Errorf("handler received % x, want 01 02 03 04", got)
	}
}

func TestDemuxChunkingIndependence(t *testing.T) {
	// The same byte sequence delivered under different chunkings must
	// produce identical dispatches, in registration order, each with
	// exactly its requested byte count.
	payload := make([]byte, 30)
	for i := range payload {
		payload[i] = byte(i)
	}

	chunkings := [][]int{
		{30},
		{1, 1, 1, 27},
		{10, 10, 10},
		{29, 1},
		{3, 7, 5, 15},
	}

	for _, chunks := range chunkings {
		d := NewDemux()

		var calls [][]byte
		for _, n := range []int{5, 10, 15} {
			n := n
			d.Expect(n, func(b []byte) {
				if len(b) != n {
					t.Errorf("handler got %d bytes, want %d", len(b), n)
				}
				calls = append(calls, b)
			})
		}

		off := 0
		for _, size := range chunks {
			d.Feed(payload[off : off+size])
			off += size
		}

		if len(calls) != 3 {
			t.Fatalf("chunking %v: %d handlers invoked, want 3", chunks, len(calls))
		}
		joined := bytes.Join(calls, nil)
		if !bytes.Equal(joined, payload) {
			t.Errorf("chunking %v: reassembled % x, want % x", chunks, joined, payload)
		}
	}
}

func TestDemuxOneFeedSatisfiesMultiple(t *testing.T) {
	d := NewDemux()

	var order []int
	d.Expect(2, func([]byte) { order = append(order, 1) })
	d.Expect(3, func([]byte) { order = append(order, 2) })
	d.Expect(1, func([]byte) { order = append(order, 3) })

	d.Feed(make([]byte, 6))

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("dispatch order = %v, want [1 2 3]", order)
	}
	if d.Pending() != 0 {
		t.Errorf("pending = %d, want 0", d.Pending())
	}
	if d.Buffered() != 0 {
		t.Errorf("buffered = %d, want 0", d.Buffered())
	}
}

func TestDemuxExpectAfterBytesArrived(t *testing.T) {
	d := NewDemux()

	d.Feed([]byte{0xAA, 0xBB})

	var got []byte
	d.Expect(2, func(b []byte) { got = b })

	if !bytes.Equal(got, []byte{0xAA, 0xBB}) {
		t.Errorf("handler received % x, want aa bb", got)
	}
}

func TestDemuxHeadBlocksTail(t *testing.T) {
	d := NewDemux()

	headRan := false
	tailRan := false
	d.Expect(10, func([]byte) { headRan = true })
	d.Expect(1, func([]byte) { tailRan = true })

	// Enough for the tail, not for the head: nothing may fire.
	d.Feed(make([]byte, 5))
	if headRan || tailRan {
		t.Fatal("dispatch happened before head expectation was satisfiable")
	}

	d.Feed(make([]byte, 6))
	if !headRan || !tailRan {
		t.Errorf("headRan = %v, tailRan = %v, want both true", headRan, tailRan)
	}
}

func TestDemuxHandlerMayExpect(t *testing.T) {
	d := NewDemux()

	var second []byte
	d.Expect(2, func([]byte) {
		d.Expect(2, func(b []byte) { second = b })
	})

	d.Feed([]byte{1, 2, 3, 4})

	if !bytes.Equal(second, []byte{3, 4}) {
		t.Errorf("chained handler received % x, want 03 04", second)
	}
}

func TestDemuxReset(t *testing.T) {
	d := NewDemux()

	invoked := false
	d.Expect(4, func([]byte) { invoked = true })
	d.Feed([]byte{1, 2})

	d.Reset()

	if d.Pending() != 0 || d.Buffered() != 0 {
		t.Errorf("after reset: pending=%d buffered=%d, want 0 0", d.Pending(), d.Buffered())
	}

	// Bytes after reset must not revive the dropped expectation.
	d.Feed([]byte{3, 4, 5, 6})
	if invoked {
		t.Error("dropped handler was invoked after reset")
	}
}
