package wire

import "encoding/binary"

// FrameHeaderSize is the fixed size, in bytes, of a frame header.
const FrameHeaderSize = 16

// FrameHeader is the 16-byte header that precedes every frame's payload in
// the ring.
type FrameHeader struct {
	PayloadSize     uint64
	SequenceNumber  uint64
}

// IsWrapMarker reports whether this header is a wrap marker: an all-zero
// header (zero payload, sequence 0) telling the reader to jump
// payload_read_pos back to 0 and re-read the header found there. Real frames
// carry a sequence number of at least 1, so a zero-length frame is not
// mistaken for a marker.
func (h FrameHeader) IsWrapMarker() bool {
	return h.PayloadSize == 0 && h.SequenceNumber == 0
}

// Encode writes h into buf[:FrameHeaderSize].
func (h FrameHeader) Encode(buf []byte) {
	_ = buf[FrameHeaderSize-1]
	binary.LittleEndian.PutUint64(buf[0:], h.PayloadSize)
	binary.LittleEndian.PutUint64(buf[8:], h.SequenceNumber)
}

// DecodeFrameHeader reads a FrameHeader out of buf[:FrameHeaderSize].
func DecodeFrameHeader(buf []byte) FrameHeader {
	_ = buf[FrameHeaderSize-1]
	return FrameHeader{
		PayloadSize:    binary.LittleEndian.Uint64(buf[0:]),
		SequenceNumber: binary.LittleEndian.Uint64(buf[8:]),
	}
}

// WrapMarker is the header written at payload_write_pos when a frame would
// otherwise have to be split across the end of the ring.
var WrapMarker = FrameHeader{PayloadSize: 0, SequenceNumber: 0}
