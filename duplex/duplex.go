// Package duplex builds a request/response channel out of two zerobuffer
// rings sharing a name: "<name>#request" and "<name>#response" (spec
// §4.5). An immutable Server owns the request ring's reader and the
// response ring's writer; a Client owns the mirror image.
package duplex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/modelingevolution/zerobuffer-go"
)

// pollInterval is how often the server's serve loop re-checks ctx.Done()
// between blocking reads on the request ring.
const pollInterval = 50 * time.Millisecond

// Mode selects how a Server dispatches handler invocations.
type Mode int

const (
	// ModeSinglethread runs one handler invocation at a time, in request
	// arrival order. This is the only mode implemented by this core.
	ModeSinglethread Mode = iota
	// ModeThreadPool would dispatch concurrent handler invocations across a
	// worker pool. Not implemented; requesting it fails fast with
	// zerobuffer.ErrUnsupportedMode rather than silently falling back to
	// single-threaded dispatch.
	ModeThreadPool
)

// Handler processes one request frame and produces a response by writing
// into resp (via WriteFrame or the zero-copy Acquire/Commit pair). The
// server preserves sequence_number from request to response automatically
// by setting the next sequence on resp before each call; handlers need not
// set it themselves.
type Handler func(request *zerobuffer.Frame, resp *zerobuffer.Writer) error

// Server is the immutable request/response endpoint: it owns the request
// ring's reader and the response ring's writer.
type Server struct {
	name string
	log  *zap.SugaredLogger

	reqReader  *zerobuffer.Reader
	respWriter *zerobuffer.Writer

	cancel context.CancelFunc
	group  *errgroup.Group
}

// CreateImmutableServer creates the pair of rings backing a duplex channel
// named name and returns a Server ready to Start.
func CreateImmutableServer(name string, cfg zerobuffer.BufferConfig, opts ...zerobuffer.Option) (*Server, error) {
	reqReader, err := zerobuffer.OpenReader(name+"#request", cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("duplex: create request ring: %w", err)
	}

	// The server only ever writes the response ring, but the ring's segment
	// still has to be created by someone before a Writer can attach to it;
	// CreateChannel does that without taking on either role itself.
	if err := zerobuffer.CreateChannel(name+"#response", cfg, opts...); err != nil {
		reqReader.Close()
		return nil, fmt.Errorf("duplex: create response ring: %w", err)
	}

	respWriter, err := zerobuffer.OpenWriter(name+"#response", opts...)
	if err != nil {
		reqReader.Close()
		return nil, fmt.Errorf("duplex: attach response writer: %w", err)
	}

	var zo zerobuffer.Options
	for _, opt := range opts {
		opt(&zo)
	}
	log := zo.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Server{
		name:       name,
		log:        log,
		reqReader:  reqReader,
		respWriter: respWriter,
	}, nil
}

// Start runs handler against each incoming request, one at a time
// (ModeSinglethread), in a background goroutine until ctx is cancelled or
// Stop is called. Only ModeSinglethread is implemented; any other mode
// fails fast.
func (s *Server) Start(ctx context.Context, handler Handler, mode ...Mode) error {
	m := ModeSinglethread
	if len(mode) > 0 {
		m = mode[0]
	}
	if m != ModeSinglethread {
		return zerobuffer.ErrUnsupportedMode
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	group, gctx := errgroup.WithContext(ctx)
	s.group = group

	group.Go(func() error {
		return s.serveLoop(gctx, handler)
	})
	return nil
}

func (s *Server) serveLoop(ctx context.Context, handler Handler) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		req, err := s.reqReader.ReadFrame(pollInterval)
		if err != nil {
			if isDeadPeer(err) {
				return err
			}
			s.log.Errorw("duplex: read request failed", "name", s.name, "error", err)
			continue
		}
		if !req.Valid() {
			continue
		}

		// The response ring's sequence is independent of the request ring's;
		// force it to mirror the request so a client can correlate the two.
		s.respWriter.SetNextSequence(req.Sequence())
		if err := handler(req, s.respWriter); err != nil {
			s.log.Errorw("duplex: handler failed", "name", s.name, "sequence", req.Sequence(), "error", err)
		}
		req.Release()
	}
}

func isDeadPeer(err error) bool {
	var zerr *zerobuffer.Error
	if !errors.As(err, &zerr) {
		return false
	}
	return zerr.Kind() == zerobuffer.KindWriterDead || zerr.Kind() == zerobuffer.KindReaderDead
}

// Stop cancels the serve loop and waits for it to exit, then tears down
// both rings.
func (s *Server) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.group != nil {
		_ = s.group.Wait()
	}
	s.reqReader.Close()
	return s.respWriter.Close()
}
