package zerobuffer

// Frame is a move-only, read-only borrow of one payload slot in the ring.
// It must not outlive the Reader that produced it. Release returns the
// underlying ring bytes to the writer and is safe to call more than once or
// on the zero Frame; only the first call has any effect.
type Frame struct {
	data    []byte
	seq     uint64
	release func()
}

// Sequence returns the frame's sequence number, the same value the writer
// assigned with write_frame/commit_frame.
func (f *Frame) Sequence() uint64 {
	if f == nil {
		return 0
	}
	return f.seq
}

// Len returns the payload length in bytes.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.data)
}

// Bytes returns the frame's payload. The slice is only valid until Release;
// readers that need the data afterward must copy it first.
func (f *Frame) Bytes() []byte {
	if f == nil {
		return nil
	}
	return f.data
}

// Valid reports whether this Frame was actually populated by read_frame, as
// opposed to the zero Frame returned on a read timeout.
func (f *Frame) Valid() bool {
	return f != nil && f.release != nil
}

// Release returns the frame's ring bytes to the writer, posting
// space-available. Idempotent: a second call, or a call on an invalid
// frame, is a no-op.
func (f *Frame) Release() {
	if f == nil || f.release == nil {
		return
	}
	release := f.release
	f.release = nil
	f.data = nil
	release()
}
