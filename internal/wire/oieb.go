// Package wire implements the byte-exact, cross-language wire formats that
// sit at the front of every zerobuffer shared-memory segment: the 128-byte
// OIEB control block and the 16-byte frame header.
//
// Nothing here depends on how the bytes got mapped into the process (that is
// internal/platform's job); wire only knows how to read and write fixed byte
// offsets in a []byte, little-endian, so the same segment can be produced and
// consumed by readers and writers built from different toolchains.
package wire

import (
	"encoding/binary"
	"sync/atomic"
	"unsafe"
)

// OiebSize is the fixed size, in bytes, of the Operation Info Exchange Block.
const OiebSize = 128

// Version is the control-block schema version written by this implementation.
// Peers require an equal Major.
type Version struct {
	Major    uint8
	Minor    uint8
	Patch    uint8
	Reserved uint8
}

// CurrentVersion is stamped into every OIEB created by this implementation.
var CurrentVersion = Version{Major: 1, Minor: 0, Patch: 0}

// Encode packs v into its 4-byte wire form (major, minor, patch, reserved).
func (v Version) Encode() uint32 {
	return uint32(v.Major) | uint32(v.Minor)<<8 | uint32(v.Patch)<<16 | uint32(v.Reserved)<<24
}

// DecodeVersion unpacks the 4-byte wire form produced by Version.Encode.
func DecodeVersion(raw uint32) Version {
	return Version{
		Major:    uint8(raw),
		Minor:    uint8(raw >> 8),
		Patch:    uint8(raw >> 16),
		Reserved: uint8(raw >> 24),
	}
}

// Field byte offsets within the 128-byte OIEB. Declared once here so
// Encode/Decode and the atomic accessor on PayloadFreeBytes never drift
// from each other.
const (
	offOiebSize              = 0
	offVersion                = 4
	offMetadataSize           = 8
	offMetadataFreeBytes      = 16
	offMetadataWrittenBytes   = 24
	offPayloadSize            = 32
	offPayloadFreeBytes       = 40
	offPayloadWritePos        = 48
	offPayloadReadPos         = 56
	offPayloadWrittenCount    = 64
	offPayloadReadCount       = 72
	offWriterPid              = 80
	offReaderPid              = 88
	offReserved               = 96
	reservedBytes             = 32
)

// Oieb is the in-process mirror of the 128-byte Operation Info Exchange
// Block. It is read from and written to shared memory through Decode/Encode
// rather than being laid directly over the mapped bytes as a Go struct,
// since Go makes no cross-compiler guarantee about struct layout the way a
// POD C struct does; offsets above are the single source of truth for the
// wire position of each field.
type Oieb struct {
	OiebSize              uint32
	Version               Version
	MetadataSize          uint64
	MetadataFreeBytes     uint64
	MetadataWrittenBytes  uint64
	PayloadSize           uint64
	PayloadFreeBytes      uint64
	PayloadWritePos       uint64
	PayloadReadPos        uint64
	PayloadWrittenCount   uint64
	PayloadReadCount      uint64
	WriterPid             uint64
	ReaderPid             uint64
}

// Init fills o with the zero/initial state for a freshly created channel.
func (o *Oieb) Init(metadataSize, payloadSize uint64, readerPid uint64) {
	*o = Oieb{
		OiebSize:          OiebSize,
		Version:           CurrentVersion,
		MetadataSize:      metadataSize,
		MetadataFreeBytes: metadataSize,
		PayloadSize:       payloadSize,
		PayloadFreeBytes:  payloadSize,
		ReaderPid:         readerPid,
	}
}

// Encode writes o into buf[:OiebSize] in the documented little-endian
// layout. buf must be at least OiebSize bytes.
func (o *Oieb) Encode(buf []byte) {
	_ = buf[OiebSize-1]
	binary.LittleEndian.PutUint32(buf[offOiebSize:], o.OiebSize)
	binary.LittleEndian.PutUint32(buf[offVersion:], o.Version.Encode())
	binary.LittleEndian.PutUint64(buf[offMetadataSize:], o.MetadataSize)
	binary.LittleEndian.PutUint64(buf[offMetadataFreeBytes:], o.MetadataFreeBytes)
	binary.LittleEndian.PutUint64(buf[offMetadataWrittenBytes:], o.MetadataWrittenBytes)
	binary.LittleEndian.PutUint64(buf[offPayloadSize:], o.PayloadSize)
	binary.LittleEndian.PutUint64(buf[offPayloadFreeBytes:], o.PayloadFreeBytes)
	binary.LittleEndian.PutUint64(buf[offPayloadWritePos:], o.PayloadWritePos)
	binary.LittleEndian.PutUint64(buf[offPayloadReadPos:], o.PayloadReadPos)
	binary.LittleEndian.PutUint64(buf[offPayloadWrittenCount:], o.PayloadWrittenCount)
	binary.LittleEndian.PutUint64(buf[offPayloadReadCount:], o.PayloadReadCount)
	binary.LittleEndian.PutUint64(buf[offWriterPid:], o.WriterPid)
	binary.LittleEndian.PutUint64(buf[offReaderPid:], o.ReaderPid)
	clear(buf[offReserved : offReserved+reservedBytes])
}

// Decode reads an Oieb out of buf[:OiebSize].
func Decode(buf []byte) Oieb {
	_ = buf[OiebSize-1]
	var o Oieb
	o.OiebSize = binary.LittleEndian.Uint32(buf[offOiebSize:])
	o.Version = DecodeVersion(binary.LittleEndian.Uint32(buf[offVersion:]))
	o.MetadataSize = binary.LittleEndian.Uint64(buf[offMetadataSize:])
	o.MetadataFreeBytes = binary.LittleEndian.Uint64(buf[offMetadataFreeBytes:])
	o.MetadataWrittenBytes = binary.LittleEndian.Uint64(buf[offMetadataWrittenBytes:])
	o.PayloadSize = binary.LittleEndian.Uint64(buf[offPayloadSize:])
	o.PayloadFreeBytes = binary.LittleEndian.Uint64(buf[offPayloadFreeBytes:])
	o.PayloadWritePos = binary.LittleEndian.Uint64(buf[offPayloadWritePos:])
	o.PayloadReadPos = binary.LittleEndian.Uint64(buf[offPayloadReadPos:])
	o.PayloadWrittenCount = binary.LittleEndian.Uint64(buf[offPayloadWrittenCount:])
	o.PayloadReadCount = binary.LittleEndian.Uint64(buf[offPayloadReadCount:])
	o.WriterPid = binary.LittleEndian.Uint64(buf[offWriterPid:])
	o.ReaderPid = binary.LittleEndian.Uint64(buf[offReaderPid:])
	return o
}

// --- Live accessors over a mapped segment ---
//
// The functions below operate directly on the mapped bytes of a live
// segment, for the handful of fields that are read or mutated without a
// full Decode/Encode round-trip: the fields owned exclusively by one side
// (plain little-endian load/store is enough, since there is only ever one
// writer), and PayloadFreeBytes, which both sides mutate and so must be
// updated with an atomic fetch-add/sub rather than computed-and-stored.

// LoadPayloadFreeBytes atomically reads payload_free_bytes from a mapped segment.
func LoadPayloadFreeBytes(seg []byte) int64 {
	p := (*int64)(unsafe.Pointer(&seg[offPayloadFreeBytes]))
	return atomic.LoadInt64(p)
}

// AddPayloadFreeBytes atomically adds delta (positive or negative) to
// payload_free_bytes in a mapped segment and returns the new value.
func AddPayloadFreeBytes(seg []byte, delta int64) int64 {
	p := (*int64)(unsafe.Pointer(&seg[offPayloadFreeBytes]))
	return atomic.AddInt64(p, delta)
}

// StoreUint64 writes a little-endian uint64 field at the given byte offset.
func StoreUint64(seg []byte, offset int, v uint64) {
	binary.LittleEndian.PutUint64(seg[offset:], v)
}

// LoadUint64 reads a little-endian uint64 field at the given byte offset.
func LoadUint64(seg []byte, offset int) uint64 {
	return binary.LittleEndian.Uint64(seg[offset:])
}

// Exported offsets for single-writer fields, used by Reader/Writer to avoid
// a full Decode/Encode cycle on the hot path.
const (
	OffWriterPid           = offWriterPid
	OffReaderPid           = offReaderPid
	OffPayloadWritePos     = offPayloadWritePos
	OffPayloadReadPos      = offPayloadReadPos
	OffPayloadWrittenCount = offPayloadWrittenCount
	OffPayloadReadCount    = offPayloadReadCount
	OffMetadataWrittenBytes = offMetadataWrittenBytes
	OffMetadataFreeBytes    = offMetadataFreeBytes
	OffPayloadFreeBytes     = offPayloadFreeBytes
)
