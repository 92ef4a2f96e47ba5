package zerobuffer

import (
	"fmt"
	"time"

	"github.com/modelingevolution/zerobuffer-go/internal/platform"
	"github.com/modelingevolution/zerobuffer-go/internal/ring"
	"github.com/modelingevolution/zerobuffer-go/internal/wire"
)

// pendingAcquire tracks the state of an outstanding acquire_buffer call;
// only one may be outstanding per Writer at a time.
type pendingAcquire struct {
	seq          uint64
	nextWritePos uint64
	totalBytes   uint64
}

// Writer attaches to a channel created by a Reader, publishes metadata
// once, and writes frames under backpressure from the reader. Not safe for
// concurrent use from more than one goroutine.
type Writer struct {
	name string
	opts Options

	seg  platform.Segment
	semW platform.Semaphore
	semR platform.Semaphore

	metaOff uint64
	dataOff uint64
	cfg     BufferConfig

	nextSeq uint64
	pending *pendingAcquire

	framesWritten uint64
	bytesWritten  uint64

	closed bool
}

// OpenWriter attaches to an existing channel named name. It fails with
// AlreadyInUse if a live writer is already attached, and with
// VersionMismatch if the segment's OIEB was produced by an incompatible
// major version.
func OpenWriter(name string, opts ...Option) (*Writer, error) {
	o := resolveOptions(opts)

	lock, err := platform.AcquireLock(name)
	if err != nil {
		return nil, classifyLockErr(err)
	}
	defer lock.Release()

	size, exists, err := platform.SegmentExists(name)
	if err != nil {
		return nil, wrapped(KindResourceInit, ErrResourceInit, err.Error())
	}
	if !exists {
		return nil, wrapped(KindResourceInit, ErrResourceInit, fmt.Sprintf("channel %s does not exist", name))
	}

	seg, err := platform.AttachSegment(name, int(size))
	if err != nil {
		return nil, wrapped(KindResourceInit, ErrResourceInit, fmt.Sprintf("attach segment %s: %v", name, err))
	}

	oieb := wire.Decode(seg.Bytes())
	if oieb.Version.Major != wire.CurrentVersion.Major {
		seg.Close(false)
		return nil, wrapped(KindVersionMismatch, ErrVersionMismatch,
			fmt.Sprintf("channel %s: peer major version %d, this build is %d", name, oieb.Version.Major, wire.CurrentVersion.Major))
	}
	if oieb.WriterPid != 0 && platform.ProcessAlive(int(oieb.WriterPid)) {
		seg.Close(false)
		return nil, wrapped(KindAlreadyInUse, ErrAlreadyInUse, name)
	}

	wire.StoreUint64(seg.Bytes(), wire.OffWriterPid, uint64(platform.CurrentPid()))

	semW, err := platform.AttachSemaphore(name + "#w")
	if err != nil {
		seg.Close(false)
		return nil, wrapped(KindResourceInit, ErrResourceInit, fmt.Sprintf("attach sem-w for %s: %v", name, err))
	}
	semR, err := platform.AttachSemaphore(name + "#r")
	if err != nil {
		semW.Close()
		seg.Close(false)
		return nil, wrapped(KindResourceInit, ErrResourceInit, fmt.Sprintf("attach sem-r for %s: %v", name, err))
	}

	w := &Writer{
		name:    name,
		opts:    o,
		seg:     seg,
		semW:    semW,
		semR:    semR,
		metaOff: wire.OiebSize,
		dataOff: wire.OiebSize + oieb.MetadataSize,
		cfg:     BufferConfig{MetadataSize: oieb.MetadataSize, PayloadSize: oieb.PayloadSize},
	}
	o.Logger.Infow("zerobuffer: writer opened", "name", name)
	return w, nil
}

// SetMetadata publishes the channel's write-once metadata block (spec
// §4.3 "set_metadata"). It may only be called once per channel lifetime,
// before any frame is written.
func (w *Writer) SetMetadata(data []byte) error {
	seg := w.seg.Bytes()
	if wire.LoadUint64(seg, wire.OffMetadataWrittenBytes) > 0 {
		return wrapped(KindMetadataAlreadySet, ErrMetadataAlreadySet, w.name)
	}
	if uint64(len(data)) > w.cfg.MetadataSize {
		return wrapped(KindMetadataTooLarge, ErrMetadataTooLarge,
			fmt.Sprintf("metadata %d bytes exceeds slab of %d", len(data), w.cfg.MetadataSize))
	}
	copy(seg[w.metaOff:], data)
	wire.StoreUint64(seg, wire.OffMetadataFreeBytes, w.cfg.MetadataSize-uint64(len(data)))
	wire.StoreUint64(seg, wire.OffMetadataWrittenBytes, uint64(len(data)))
	return nil
}

// WriteFrame copies data into the ring as one frame, blocking under the
// configured write timeout if the ring lacks space. It is equivalent to
// AcquireBuffer followed immediately by CommitFrame.
func (w *Writer) WriteFrame(data []byte) (uint64, error) {
	buf, err := w.AcquireBuffer(uint64(len(data)))
	if err != nil {
		return 0, err
	}
	copy(buf, data)
	return w.CommitFrame()
}

// AcquireBuffer reserves space for a frame of n payload bytes and returns a
// mutable slice the caller may fill directly — the zero-copy write path.
// The caller must call CommitFrame before acquiring again; at most one
// buffer may be outstanding at a time.
func (w *Writer) AcquireBuffer(n uint64) ([]byte, error) {
	if w.pending != nil {
		return nil, ErrFrameAlreadyAcquired
	}
	if !ring.FitsEmpty(w.cfg.PayloadSize, n) {
		return nil, wrapped(KindFrameTooLarge, ErrFrameTooLarge,
			fmt.Sprintf("frame of %d bytes cannot ever fit in a %d-byte ring", n, w.cfg.PayloadSize))
	}

	seg := w.seg.Bytes()
	deadline := time.Now().Add(w.opts.WriteTimeout)
	forever := w.opts.WriteTimeout < 0
	tick := w.opts.PeerDeathPoll
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}

	for {
		writePos := wire.LoadUint64(seg, wire.OffPayloadWritePos)
		cmd := ring.PlanWrite(writePos, w.cfg.PayloadSize, n)
		free := wire.LoadPayloadFreeBytes(seg)

		if uint64(free) >= cmd.RequiredFree {
			if cmd.NeedsWrap {
				wire.WrapMarker.Encode(seg[w.dataOff+writePos:])
				wire.AddPayloadFreeBytes(seg, -int64(cmd.WrapWastedBytes))
				writePos = 0
				wire.StoreUint64(seg, wire.OffPayloadWritePos, 0)
			}

			w.nextSeq++
			hdr := wire.FrameHeader{PayloadSize: n, SequenceNumber: w.nextSeq}
			hdr.Encode(seg[w.dataOff+cmd.FrameOffset:])

			w.pending = &pendingAcquire{
				seq:          w.nextSeq,
				nextWritePos: cmd.NextWritePos,
				totalBytes:   wire.FrameHeaderSize + n,
			}
			payloadStart := w.dataOff + cmd.FrameOffset + wire.FrameHeaderSize
			return seg[payloadStart : payloadStart+n], nil
		}

		waitFor := tick
		if !forever {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil, wrapped(KindBufferFull, ErrBufferFull, w.name)
			}
			if remaining < waitFor {
				waitFor = remaining
			}
		}

		err := w.semR.Wait(waitFor)
		if err == nil {
			continue
		}
		if err != platform.ErrTimeout {
			return nil, wrapped(KindResourceInit, ErrResourceInit, err.Error())
		}
		if !forever && !time.Now().Before(deadline) {
			return nil, wrapped(KindBufferFull, ErrBufferFull, w.name)
		}

		readerPid := wire.LoadUint64(seg, wire.OffReaderPid)
		if readerPid != 0 && !platform.ProcessAlive(int(readerPid)) {
			return nil, wrapped(KindReaderDead, ErrReaderDead, w.name)
		}
	}
}

// CommitFrame finalizes a prior AcquireBuffer: advances the write cursor,
// debits payload_free_bytes, bumps payload_written_count, and posts sem-w.
func (w *Writer) CommitFrame() (uint64, error) {
	if w.pending == nil {
		return 0, ErrNoBufferAcquired
	}
	p := w.pending
	w.pending = nil

	seg := w.seg.Bytes()
	wire.StoreUint64(seg, wire.OffPayloadWritePos, p.nextWritePos)
	wire.AddPayloadFreeBytes(seg, -int64(p.totalBytes))
	wire.StoreUint64(seg, wire.OffPayloadWrittenCount, wire.LoadUint64(seg, wire.OffPayloadWrittenCount)+1)

	w.framesWritten++
	w.bytesWritten += p.totalBytes - wire.FrameHeaderSize

	if err := w.semW.Post(); err != nil {
		return 0, wrapped(KindResourceInit, ErrResourceInit, err.Error())
	}
	return p.seq, nil
}

// IsReaderConnected polls the OIEB until reader_pid is set and the process
// is alive, or until timeout elapses.
func (w *Writer) IsReaderConnected(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		pid := wire.LoadUint64(w.seg.Bytes(), wire.OffReaderPid)
		if pid != 0 && platform.ProcessAlive(int(pid)) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// SetNextSequence forces the sequence number the next WriteFrame or
// AcquireBuffer/CommitFrame pair will assign. Used by the duplex server to
// mirror a request's sequence number onto its response; it must not be
// called while a buffer is outstanding or concurrently with other writers
// of this ring.
func (w *Writer) SetNextSequence(seq uint64) {
	w.nextSeq = seq - 1
}

// FramesWritten returns the number of frames committed so far.
func (w *Writer) FramesWritten() uint64 { return w.framesWritten }

// BytesWritten returns the total payload bytes committed so far.
func (w *Writer) BytesWritten() uint64 { return w.bytesWritten }

// Close tears down the writer's side of the channel: clears writer_pid,
// posts sem-w once to unblock a reader waiting on an empty ring, and
// destroys the segment and semaphores if the reader has already
// disconnected.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	seg := w.seg.Bytes()
	wire.StoreUint64(seg, wire.OffWriterPid, 0)
	w.semW.Post()

	readerPid := wire.LoadUint64(seg, wire.OffReaderPid)
	destroy := readerPid == 0
	if err := w.seg.Close(destroy); err != nil {
		return err
	}
	if destroy {
		w.semW.Destroy()
		w.semR.Destroy()
	} else {
		w.semW.Close()
		w.semR.Close()
	}
	w.opts.Logger.Infow("zerobuffer: writer closed", "name", w.name, "destroyed_resources", destroy)
	return nil
}
