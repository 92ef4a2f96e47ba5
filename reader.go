package zerobuffer

import (
	"fmt"
	"time"

	"github.com/modelingevolution/zerobuffer-go/internal/platform"
	"github.com/modelingevolution/zerobuffer-go/internal/ring"
	"github.com/modelingevolution/zerobuffer-go/internal/wire"
)

// Reader owns a channel's shared segment: it creates the segment, accepts
// exactly one writer attach, and hands out Frame views over committed
// payload bytes. Reader is not safe for concurrent use from more than one
// goroutine; the wire protocol itself is strictly single-reader.
type Reader struct {
	name string
	opts Options

	seg  platform.Segment
	semW platform.Semaphore // data-available, posted by writer
	semR platform.Semaphore // space-available, posted by reader

	metaOff uint64
	dataOff uint64
	cfg     BufferConfig

	framesRead uint64
	bytesRead  uint64

	closed bool
}

// OpenReader creates a new channel named name with the given buffer sizes
// and returns a Reader that owns it. It is an error if a live reader or
// writer already owns name; a segment left behind by a dead pair of
// processes is detected and cleaned up instead of failing.
func OpenReader(name string, cfg BufferConfig, opts ...Option) (*Reader, error) {
	o := resolveOptions(opts)

	seg, semW, semR, err := createChannel(name, cfg, o.Logger)
	if err != nil {
		return nil, err
	}
	wire.StoreUint64(seg.Bytes(), wire.OffReaderPid, uint64(platform.CurrentPid()))

	r := &Reader{
		name:    name,
		opts:    o,
		seg:     seg,
		semW:    semW,
		semR:    semR,
		metaOff: wire.OiebSize,
		dataOff: wire.OiebSize + cfg.MetadataSize,
		cfg:     cfg,
	}
	o.Logger.Infow("zerobuffer: reader opened", "name", name, "metadata_size", cfg.MetadataSize, "payload_size", cfg.PayloadSize)
	return r, nil
}

// CreateChannel creates a channel's segment, semaphores, and OIEB without
// attaching to it as either reader or writer, and unmaps it again
// immediately. It exists for the duplex server, which must create the
// response ring up front but attaches to it as a Writer, not a Reader —
// OpenWriter and AttachReader both expect the channel to already exist.
func CreateChannel(name string, cfg BufferConfig, opts ...Option) error {
	o := resolveOptions(opts)
	seg, semW, semR, err := createChannel(name, cfg, o.Logger)
	if err != nil {
		return err
	}
	semW.Close()
	semR.Close()
	return seg.Close(false)
}

// createChannel does the shared work of OpenReader and CreateChannel:
// acquire the name's lock, reclaim a stale segment if one is found, create
// the segment and both semaphores, and initialize the OIEB with
// reader_pid and writer_pid both zero. Callers set whichever PID applies.
func createChannel(name string, cfg BufferConfig, log interface {
	Infow(string, ...interface{})
}) (platform.Segment, platform.Semaphore, platform.Semaphore, error) {
	lock, err := platform.AcquireLock(name)
	if err != nil {
		return nil, nil, nil, classifyLockErr(err)
	}
	defer lock.Release()

	if err := reclaimStaleSegment(name, log); err != nil {
		return nil, nil, nil, err
	}

	total := wire.OiebSize + int(cfg.MetadataSize) + int(cfg.PayloadSize)
	seg, err := platform.CreateSegment(name, total)
	if err != nil {
		if err == platform.ErrAlreadyExists {
			return nil, nil, nil, wrapped(KindAlreadyInUse, ErrAlreadyInUse, name)
		}
		return nil, nil, nil, wrapped(KindResourceInit, ErrResourceInit, fmt.Sprintf("create segment %s: %v", name, err))
	}

	semW, err := platform.CreateSemaphore(name+"#w", 0)
	if err != nil {
		seg.Close(true)
		return nil, nil, nil, wrapped(KindResourceInit, ErrResourceInit, fmt.Sprintf("create sem-w for %s: %v", name, err))
	}
	semR, err := platform.CreateSemaphore(name+"#r", 0)
	if err != nil {
		semW.Destroy()
		seg.Close(true)
		return nil, nil, nil, wrapped(KindResourceInit, ErrResourceInit, fmt.Sprintf("create sem-r for %s: %v", name, err))
	}

	var oieb wire.Oieb
	oieb.Init(cfg.MetadataSize, cfg.PayloadSize, 0)
	oieb.Encode(seg.Bytes())

	return seg, semW, semR, nil
}

// AttachReader attaches as the reader of an already-created channel, rather
// than creating one. Most callers want OpenReader; this exists for the
// duplex response ring, where the server creates the underlying channel
// but the client is the one that reads from it — the server owns the
// writer side of the response ring.
func AttachReader(name string, opts ...Option) (*Reader, error) {
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
	if oieb.ReaderPid != 0 && platform.ProcessAlive(int(oieb.ReaderPid)) {
		seg.Close(false)
		return nil, wrapped(KindAlreadyInUse, ErrAlreadyInUse, name)
	}

	wire.StoreUint64(seg.Bytes(), wire.OffReaderPid, uint64(platform.CurrentPid()))

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

	r := &Reader{
		name:    name,
		opts:    o,
		seg:     seg,
		semW:    semW,
		semR:    semR,
		metaOff: wire.OiebSize,
		dataOff: wire.OiebSize + oieb.MetadataSize,
		cfg:     BufferConfig{MetadataSize: oieb.MetadataSize, PayloadSize: oieb.PayloadSize},
	}
	o.Logger.Infow("zerobuffer: reader attached", "name", name)
	return r, nil
}

// reclaimStaleSegment destroys an existing segment+semaphores for name if
// both PIDs recorded in its OIEB are either zero or reference dead
// processes. If the segment is owned by a live reader or writer, it
// returns AlreadyInUse.
func reclaimStaleSegment(name string, log interface{ Infow(string, ...interface{}) }) error {
	size, exists, err := platform.SegmentExists(name)
	if err != nil {
		return wrapped(KindResourceInit, ErrResourceInit, err.Error())
	}
	if !exists {
		return nil
	}

	seg, err := platform.AttachSegment(name, int(size))
	if err != nil {
		return wrapped(KindResourceInit, ErrResourceInit, fmt.Sprintf("attach existing segment %s: %v", name, err))
	}
	defer seg.Close(false)

	oieb := wire.Decode(seg.Bytes())
	readerLive := oieb.ReaderPid != 0 && platform.ProcessAlive(int(oieb.ReaderPid))
	writerLive := oieb.WriterPid != 0 && platform.ProcessAlive(int(oieb.WriterPid))
	if readerLive || writerLive {
		return wrapped(KindAlreadyInUse, ErrAlreadyInUse, name)
	}

	log.Infow("zerobuffer: reclaiming stale channel", "name", name)
	if err := seg.Close(true); err != nil {
		return wrapped(KindResourceInit, ErrResourceInit, err.Error())
	}
	if sem, err := platform.AttachSemaphore(name + "#w"); err == nil {
		sem.Destroy()
	}
	if sem, err := platform.AttachSemaphore(name + "#r"); err == nil {
		sem.Destroy()
	}
	return nil
}

func classifyLockErr(err error) error {
	if err == platform.ErrLocked {
		return wrapped(KindAlreadyInUse, ErrAlreadyInUse, "channel name is locked by another process")
	}
	return wrapped(KindResourceInit, ErrResourceInit, err.Error())
}

// GetMetadata returns a read-only view over the metadata slab, valid until
// Close. Zero length if the writer has not set metadata yet.
func (r *Reader) GetMetadata() []byte {
	n := wire.LoadUint64(r.seg.Bytes(), wire.OffMetadataWrittenBytes)
	if n == 0 {
		return nil
	}
	return r.seg.Bytes()[r.metaOff : r.metaOff+n]
}

// IsWriterConnected polls the OIEB until writer_pid is set and the process
// is alive, or until timeout elapses.
func (r *Reader) IsWriterConnected(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		pid := wire.LoadUint64(r.seg.Bytes(), wire.OffWriterPid)
		if pid != 0 && platform.ProcessAlive(int(pid)) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ReadFrame blocks until a frame is available or timeout elapses. On
// timeout it returns an invalid Frame (Frame.Valid reports false) and a
// nil error, so callers can poll in a loop. A dead writer with no unread
// frames left is reported as ErrWriterDead.
func (r *Reader) ReadFrame(timeout time.Duration) (*Frame, error) {
	deadline := time.Now().Add(timeout)
	forever := timeout < 0
	tick := r.opts.PeerDeathPoll
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}

	for {
		waitFor := tick
		if !forever {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return &Frame{}, nil
			}
			if remaining < waitFor {
				waitFor = remaining
			}
		}

		err := r.semW.Wait(waitFor)
		if err == nil {
			seg := r.seg.Bytes()
			written := wire.LoadUint64(seg, wire.OffPayloadWrittenCount)
			read := wire.LoadUint64(seg, wire.OffPayloadReadCount)
			if written == read {
				// Spurious wakeup: the writer's teardown posts sem-w once
				// more to unblock a reader waiting on an empty ring, with
				// no new frame behind it. Loop back and keep waiting rather
				// than decoding whatever zeroed bytes sit at read_pos.
				continue
			}
			return r.consumeFrame()
		}
		if err != platform.ErrTimeout {
			return nil, wrapped(KindResourceInit, ErrResourceInit, err.Error())
		}

		if !forever && !time.Now().Before(deadline) {
			return &Frame{}, nil
		}

		writerPid := wire.LoadUint64(r.seg.Bytes(), wire.OffWriterPid)
		if writerPid != 0 && !platform.ProcessAlive(int(writerPid)) {
			written := wire.LoadUint64(r.seg.Bytes(), wire.OffPayloadWrittenCount)
			read := wire.LoadUint64(r.seg.Bytes(), wire.OffPayloadReadCount)
			if written == read {
				return nil, wrapped(KindWriterDead, ErrWriterDead, r.name)
			}
		}
	}
}

// consumeFrame decodes the header at the current read position, skipping a
// wrap marker if present, and returns a Frame view over the payload bytes.
func (r *Reader) consumeFrame() (*Frame, error) {
	seg := r.seg.Bytes()
	readPos := wire.LoadUint64(seg, wire.OffPayloadReadPos)

	for {
		if readPos >= r.cfg.PayloadSize {
			return nil, wrapped(KindInvalidFrame, ErrInvalidFrame, "read position past end of ring")
		}
		hdr := wire.DecodeFrameHeader(seg[r.dataOff+readPos:])
		step := ring.PlanRead(readPos, r.cfg.PayloadSize, hdr)

		if step.IsWrap {
			wire.AddPayloadFreeBytes(seg, int64(step.WastedBytes))
			wire.StoreUint64(seg, wire.OffPayloadReadPos, step.NextReadPos)
			readPos = step.NextReadPos
			continue
		}

		if step.PayloadOffset+hdr.PayloadSize > r.cfg.PayloadSize {
			return nil, wrapped(KindInvalidFrame, ErrInvalidFrame, "frame payload extends past ring end without wrap marker")
		}

		payload := seg[r.dataOff+step.PayloadOffset : r.dataOff+step.PayloadOffset+hdr.PayloadSize]
		frame := &Frame{data: payload, seq: hdr.SequenceNumber}
		frame.release = func() {
			wire.StoreUint64(seg, wire.OffPayloadReadPos, step.NextReadPos)
			wire.AddPayloadFreeBytes(seg, int64(step.ReleaseBytes))
			wire.StoreUint64(seg, wire.OffPayloadReadCount, wire.LoadUint64(seg, wire.OffPayloadReadCount)+1)
			r.framesRead++
			r.bytesRead += hdr.PayloadSize
			r.semR.Post()
		}
		return frame, nil
	}
}

// FramesRead returns the number of frames released so far.
func (r *Reader) FramesRead() uint64 { return r.framesRead }

// BytesRead returns the total payload bytes released so far.
func (r *Reader) BytesRead() uint64 { return r.bytesRead }

// Close tears down the reader's side of the channel and clears reader_pid.
// If the writer has already disconnected (writer_pid == 0), the segment and
// semaphores are destroyed; otherwise they are left in place and the
// writer's own Close destroys them. Unlike the writer, the reader does not
// post a semaphore here: posting sem-r would hand a writer blocked in
// AcquireBuffer a phantom unit of free space that was never actually
// reclaimed. Because reader_pid is now zero, that writer's liveness probe
// does not report ReaderDead; it waits until its write timeout.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	seg := r.seg.Bytes()
	wire.StoreUint64(seg, wire.OffReaderPid, 0)

	writerPid := wire.LoadUint64(seg, wire.OffWriterPid)
	destroy := writerPid == 0
	if err := r.seg.Close(destroy); err != nil {
		return err
	}
	if destroy {
		r.semW.Destroy()
		r.semR.Destroy()
	} else {
		r.semW.Close()
		r.semR.Close()
	}
	r.opts.Logger.Infow("zerobuffer: reader closed", "name", r.name, "destroyed_resources", destroy)
	return nil
}
