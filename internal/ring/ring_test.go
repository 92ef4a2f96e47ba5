package ring

import (
	"math/rand/v2"
	"testing"

	"github.com/modelingevolution/zerobuffer-go/internal/wire"
)

func TestPlanWrite_NoWrapWhenFits(t *testing.T) {
	tests := []struct {
		name       string
		writePos   uint64
		size       uint64
		payloadLen uint64
	}{
		{"fits with room to spare", 0, 1000, 100},
		{"fits exactly to end of ring", 0, wire.FrameHeaderSize + 100, 100},
		{"fits from a nonzero offset", 500, 1000, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := PlanWrite(tt.writePos, tt.size, tt.payloadLen)
			if cmd.NeedsWrap {
				t.Fatalf("expected no wrap, got wrap with %d wasted bytes", cmd.WrapWastedBytes)
			}
			if cmd.FrameOffset != tt.writePos {
				t.Errorf("FrameOffset = %d, want %d", cmd.FrameOffset, tt.writePos)
			}
			wantTotal := wire.FrameHeaderSize + tt.payloadLen
			if cmd.RequiredFree != wantTotal {
				t.Errorf("RequiredFree = %d, want %d", cmd.RequiredFree, wantTotal)
			}
			wantNext := tt.writePos + wantTotal
			if wantNext == tt.size {
				wantNext = 0
			}
			if cmd.NextWritePos != wantNext {
				t.Errorf("NextWritePos = %d, want %d", cmd.NextWritePos, wantNext)
			}
		})
	}
}

func TestPlanWrite_WrapsWhenFrameWouldStraddleEnd(t *testing.T) {
	// Ring of 1000 bytes, write position near the end, frame too big to
	// fit in what remains: must wrap.
	size := uint64(1000)
	writePos := uint64(950)
	payloadLen := uint64(100) // total 116 > remaining 50

	cmd := PlanWrite(writePos, size, payloadLen)
	if !cmd.NeedsWrap {
		t.Fatal("expected wrap")
	}
	if cmd.WrapWastedBytes != size-writePos {
		t.Errorf("WrapWastedBytes = %d, want %d", cmd.WrapWastedBytes, size-writePos)
	}
	if cmd.FrameOffset != 0 {
		t.Errorf("FrameOffset = %d, want 0", cmd.FrameOffset)
	}
	wantRequired := (size - writePos) + wire.FrameHeaderSize + payloadLen
	if cmd.RequiredFree != wantRequired {
		t.Errorf("RequiredFree = %d, want %d", cmd.RequiredFree, wantRequired)
	}
	if cmd.NextWritePos != wire.FrameHeaderSize+payloadLen {
		t.Errorf("NextWritePos = %d, want %d", cmd.NextWritePos, wire.FrameHeaderSize+payloadLen)
	}
}

func TestPlanWrite_ZeroWasteWrap(t *testing.T) {
	// A write that exactly fills the remainder to end-of-ring needs no wrap
	// marker (remaining == total exactly), but the cursor must come back to
	// 0 rather than sit at size: payload_write_pos is only ever valid in
	// [0, size).
	size := uint64(1000)
	writePos := uint64(900)
	payloadLen := size - writePos - wire.FrameHeaderSize

	cmd := PlanWrite(writePos, size, payloadLen)
	if cmd.NeedsWrap {
		t.Fatalf("exact-fit write should not need a wrap marker, got wasted=%d", cmd.WrapWastedBytes)
	}
	if cmd.NextWritePos != 0 {
		t.Errorf("NextWritePos = %d, want 0 (normalized from end of ring)", cmd.NextWritePos)
	}
}

func TestPlanRead_WrapMarkerCreditsWastedTail(t *testing.T) {
	size := uint64(1000)
	readPos := uint64(950)

	step := PlanRead(readPos, size, wire.WrapMarker)
	if !step.IsWrap {
		t.Fatal("expected IsWrap")
	}
	if step.WastedBytes != size-readPos {
		t.Errorf("WastedBytes = %d, want %d", step.WastedBytes, size-readPos)
	}
	if step.NextReadPos != 0 {
		t.Errorf("NextReadPos = %d, want 0", step.NextReadPos)
	}
	if step.ReleaseBytes != 0 {
		t.Errorf("ReleaseBytes = %d, want 0 (credited immediately via WastedBytes, not on release)", step.ReleaseBytes)
	}
}

func TestPlanRead_OrdinaryFrame(t *testing.T) {
	readPos := uint64(100)
	size := uint64(1000)
	hdr := wire.FrameHeader{PayloadSize: 64, SequenceNumber: 7}

	step := PlanRead(readPos, size, hdr)
	if step.IsWrap {
		t.Fatal("did not expect wrap")
	}
	if step.PayloadOffset != readPos+wire.FrameHeaderSize {
		t.Errorf("PayloadOffset = %d, want %d", step.PayloadOffset, readPos+wire.FrameHeaderSize)
	}
	wantNext := readPos + wire.FrameHeaderSize + hdr.PayloadSize
	if step.NextReadPos != wantNext {
		t.Errorf("NextReadPos = %d, want %d", step.NextReadPos, wantNext)
	}
	if step.ReleaseBytes != wire.FrameHeaderSize+hdr.PayloadSize {
		t.Errorf("ReleaseBytes = %d, want %d", step.ReleaseBytes, wire.FrameHeaderSize+hdr.PayloadSize)
	}
}

func TestFitsEmpty(t *testing.T) {
	tests := []struct {
		size, payloadLen uint64
		want             bool
	}{
		{1000, 100, true},
		{116, 100, true},  // exactly header+payload
		{115, 100, false}, // one byte short
		{16, 0, true},
	}
	for _, tt := range tests {
		if got := FitsEmpty(tt.size, tt.payloadLen); got != tt.want {
			t.Errorf("FitsEmpty(%d, %d) = %v, want %v", tt.size, tt.payloadLen, got, tt.want)
		}
	}
}

// TestWrapAccountingConservesBytes is a property test: across many random
// frame sizes and ring sizes, simulate a full writer/reader walk around a
// real byte buffer (writing real frame headers, just like Writer/Reader do)
// and assert that at every step, free_bytes as tracked purely from
// PlanWrite/PlanRead deltas never exceeds the ring size, and a full drain
// always returns it to exactly the ring size.
func TestWrapAccountingConservesBytes(t *testing.T) {
	rng := rand.New(rand.NewPCG(12345, 67890))

	for trial := 0; trial < 200; trial++ {
		size := uint64(256 + rng.IntN(4096))
		buf := make([]byte, size)
		var writePos, readPos uint64
		free := size
		var pendingTotals []uint64 // FIFO of header+payload byte counts awaiting release

		for step := 0; step < 500; step++ {
			doWrite := rng.IntN(2) == 0 || len(pendingTotals) == 0

			if doWrite {
				payloadLen := uint64(rng.IntN(200))
				cmd := PlanWrite(writePos, size, payloadLen)
				if cmd.RequiredFree > free {
					continue // would block for space in the real system; skip
				}
				if cmd.NeedsWrap {
					wire.WrapMarker.Encode(buf[writePos:])
					free -= cmd.WrapWastedBytes
				}
				hdr := wire.FrameHeader{PayloadSize: payloadLen, SequenceNumber: uint64(step) + 1}
				hdr.Encode(buf[cmd.FrameOffset:])
				free -= wire.FrameHeaderSize + payloadLen
				writePos = cmd.NextWritePos
				pendingTotals = append(pendingTotals, wire.FrameHeaderSize+payloadLen)
			} else {
				hdr := wire.DecodeFrameHeader(buf[readPos:])
				rs := PlanRead(readPos, size, hdr)
				if rs.IsWrap {
					free += rs.WastedBytes
					readPos = rs.NextReadPos
					continue // loop again to read the real frame at offset 0
				}
				readPos = rs.NextReadPos
				free += rs.ReleaseBytes
				pendingTotals = pendingTotals[1:]
			}

			if free > size {
				t.Fatalf("trial %d step %d: free_bytes %d exceeds ring size %d", trial, step, free, size)
			}
		}

		// Drain everything left and assert full reclaim (invariant 5).
		for len(pendingTotals) > 0 {
			hdr := wire.DecodeFrameHeader(buf[readPos:])
			rs := PlanRead(readPos, size, hdr)
			if rs.IsWrap {
				free += rs.WastedBytes
				readPos = rs.NextReadPos
				continue
			}
			readPos = rs.NextReadPos
			free += rs.ReleaseBytes
			pendingTotals = pendingTotals[1:]
		}
		if free != size {
			t.Fatalf("trial %d: after full drain free_bytes = %d, want %d", trial, free, size)
		}
	}
}
