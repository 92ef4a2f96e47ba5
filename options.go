package zerobuffer

import (
	"time"

	"go.uber.org/zap"
)

// BufferConfig sizes a channel's two shared-memory regions. PayloadSize
// must be large enough to hold the single biggest frame a writer intends
// to send plus its 16-byte header; MetadataSize is a one-shot block the
// writer sets once, before the first frame.
type BufferConfig struct {
	MetadataSize uint64
	PayloadSize  uint64
}

// Options configures a Reader or Writer's runtime behavior. Not every
// field applies to both sides: WriteTimeout only matters to a Writer;
// PeerDeathPoll applies to both. ReadTimeout is stored but not consulted
// by either side.
type Options struct {
	Logger *zap.SugaredLogger

	// WriteTimeout bounds how long write_frame blocks for free space before
	// returning ErrBufferFull. Defaults to 5s. Zero means return immediately
	// if the ring cannot fit the frame; negative means block forever.
	WriteTimeout time.Duration

	// ReadTimeout records a read timeout (default -1). Reader.ReadFrame does
	// not read this field; it takes its timeout as an argument on each call.
	ReadTimeout time.Duration

	// PeerDeathPoll is how often Reader checks the writer's PID (and vice
	// versa) while otherwise blocked waiting on a semaphore.
	PeerDeathPoll time.Duration
}

var defaultOptions = Options{
	Logger:        zap.NewNop().Sugar(),
	WriteTimeout:  5 * time.Second,
	ReadTimeout:   -1,
	PeerDeathPoll: 100 * time.Millisecond,
}

// Option mutates Options; see With* constructors below.
type Option func(*Options)

// WithLogger injects a structured logger. Defaults to a no-op logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithWriteTimeout bounds how long write_frame waits for free space.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *Options) { o.WriteTimeout = d }
}

// WithReadTimeout sets Options.ReadTimeout. Reader.ReadFrame does not use
// it; the timeout passed to ReadFrame governs each read.
func WithReadTimeout(d time.Duration) Option {
	return func(o *Options) { o.ReadTimeout = d }
}

// WithPeerDeathPoll sets the polling interval used to detect a dead peer
// process while otherwise blocked.
func WithPeerDeathPoll(d time.Duration) Option {
	return func(o *Options) { o.PeerDeathPoll = d }
}

func resolveOptions(opts []Option) Options {
	o := defaultOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
