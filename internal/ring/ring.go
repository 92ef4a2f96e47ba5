// Package ring implements the pure space/wrap accounting for the
// zerobuffer payload ring: given the current write/read cursors and a
// requested frame size, where does the next frame go, does it need a wrap
// marker first, and how many bytes does traversing a wrap marker return to
// the pool.
//
// None of this touches shared memory or semaphores; it is deliberately
// side-effect free so the non-trivial wrap arithmetic (the one place a
// reimplementation is most likely to get subtly wrong) has a single
// implementation and a single, exhaustively table-driven test suite.
// Reader and Writer call into it and then apply the resulting deltas to
// the live OIEB.
package ring

import "github.com/modelingevolution/zerobuffer-go/internal/wire"

// WriteCommand describes what a writer must do to lay down a frame of
// payloadLen bytes at the current write position.
type WriteCommand struct {
	// NeedsWrap is true when a zero-payload wrap marker must be written at
	// the current write position before the real frame, because the frame
	// would otherwise straddle the end of the ring.
	NeedsWrap bool
	// WrapWastedBytes is the number of bytes from the wrap marker to the end
	// of the ring, consumed (and later credited back) when NeedsWrap is
	// true. Zero when NeedsWrap is false.
	WrapWastedBytes uint64
	// FrameOffset is the ring offset the real frame header is written at:
	// either the current write position (no wrap) or 0 (after a wrap).
	FrameOffset uint64
	// RequiredFree is the total number of ring bytes that must be free
	// before this write can proceed (wrap cost, if any, plus the frame).
	RequiredFree uint64
	// NextWritePos is payload_write_pos after the frame (not the wrap
	// marker) has been written. Always in [0, size): a frame that lands
	// exactly on size wraps this to 0 rather than leaving the cursor
	// sitting one-past-the-end.
	NextWritePos uint64
}

// PlanWrite computes the write-side layout decision for a frame carrying
// payloadLen bytes of payload, given the current write position and ring
// size. It does not consult free-space; callers check RequiredFree against
// payload_free_bytes themselves (so they can decide to wait rather than
// fail).
func PlanWrite(writePos, size, payloadLen uint64) WriteCommand {
	total := wire.FrameHeaderSize + payloadLen
	remaining := size - writePos

	if remaining >= total {
		next := writePos + total
		if next == size {
			// Exact fill to end-of-ring: a zero-waste wrap. Normalize the
			// cursor to 0 rather than letting it sit at size, which would
			// violate 0 <= pos < size and make the next PlanWrite/PlanRead
			// treat it as "one byte past the mapped region".
			next = 0
		}
		return WriteCommand{
			FrameOffset:  writePos,
			RequiredFree: total,
			NextWritePos: next,
		}
	}

	// Frame would straddle the end: emit a wrap marker consuming the rest
	// of the ring, then place the frame at offset 0.
	return WriteCommand{
		NeedsWrap:       true,
		WrapWastedBytes: remaining,
		FrameOffset:     0,
		RequiredFree:    remaining + total,
		NextWritePos:    total,
	}
}

// ReadStep describes what a reader must do after loading the header at the
// current read position.
type ReadStep struct {
	// IsWrap is true when the header at readPos was a wrap marker: the
	// reader must credit WastedBytes back to payload_free_bytes, set
	// payload_read_pos to 0, and re-read the header from there.
	IsWrap bool
	// WastedBytes is the number of bytes from the wrap marker to the end of
	// the ring, to be credited to payload_free_bytes. Zero when !IsWrap.
	WastedBytes uint64
	// PayloadOffset is the ring offset of the frame's payload bytes
	// (readPos + FrameHeaderSize), valid when !IsWrap.
	PayloadOffset uint64
	// NextReadPos is payload_read_pos after this header/frame is fully
	// consumed: 0 after a wrap, or readPos + header + payload otherwise —
	// normalized to 0 if that sum lands exactly on size, mirroring
	// PlanWrite's NextWritePos normalization.
	NextReadPos uint64
	// ReleaseBytes is the number of bytes release_frame must credit back to
	// payload_free_bytes for this frame (header + payload). Zero when IsWrap
	// (the wrap's bytes are credited immediately, not on release).
	ReleaseBytes uint64
}

// PlanRead computes the read-side step given the header found at readPos
// and the ring size. hdr must already have been loaded from
// seg[readPos:readPos+FrameHeaderSize].
func PlanRead(readPos, size uint64, hdr wire.FrameHeader) ReadStep {
	if hdr.IsWrapMarker() {
		wasted := size - readPos
		return ReadStep{
			IsWrap:      true,
			WastedBytes: wasted,
			NextReadPos: 0,
		}
	}

	total := wire.FrameHeaderSize + hdr.PayloadSize
	next := readPos + total
	if next == size {
		next = 0
	}
	return ReadStep{
		PayloadOffset: readPos + wire.FrameHeaderSize,
		NextReadPos:   next,
		ReleaseBytes:  total,
	}
}

// FitsEmpty reports whether a frame carrying payloadLen bytes could ever fit
// into a completely empty ring of the given size (spec: FrameTooLarge if
// not). A frame must fit without needing a wrap in the worst case, i.e. the
// header+payload must be no larger than the ring itself.
func FitsEmpty(size, payloadLen uint64) bool {
	return wire.FrameHeaderSize+payloadLen <= size
}
