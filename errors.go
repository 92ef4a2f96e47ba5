package zerobuffer

import "errors"

// Kind classifies a zerobuffer error the way a caller is expected to branch
// on it, independent of the wrapped sentinel's message text.
type Kind int

const (
	// KindUnknown is the zero value; never returned by this package.
	KindUnknown Kind = iota
	KindAlreadyInUse
	KindVersionMismatch
	KindMetadataAlreadySet
	KindMetadataTooLarge
	KindFrameTooLarge
	KindBufferFull
	KindReaderDead
	KindWriterDead
	KindInvalidFrame
	KindResourceInit
)

func (k Kind) String() string {
	switch k {
	case KindAlreadyInUse:
		return "AlreadyInUse"
	case KindVersionMismatch:
		return "VersionMismatch"
	case KindMetadataAlreadySet:
		return "MetadataAlreadySet"
	case KindMetadataTooLarge:
		return "MetadataTooLarge"
	case KindFrameTooLarge:
		return "FrameTooLarge"
	case KindBufferFull:
		return "BufferFull"
	case KindReaderDead:
		return "ReaderDead"
	case KindWriterDead:
		return "WriterDead"
	case KindInvalidFrame:
		return "InvalidFrame"
	case KindResourceInit:
		return "ResourceInit"
	default:
		return "Unknown"
	}
}

// Error wraps a sentinel error with the Kind it represents, so callers can
// both errors.Is a specific sentinel and branch on Kind() for the coarser
// taxonomy.
type Error struct {
	kind  Kind
	cause error
}

func newError(kind Kind, cause error) *Error {
	return &Error{kind: kind, cause: cause}
}

func (e *Error) Error() string { return e.cause.Error() }
func (e *Error) Unwrap() error { return e.cause }
func (e *Error) Kind() Kind    { return e.kind }

// Sentinel errors, one per error Kind. Use errors.Is to test for these; use
// an *Error's Kind() when you need the coarser classification (e.g.
// logging) without matching every sentinel by hand.
var (
	ErrAlreadyInUse         = errors.New("zerobuffer: already in use")
	ErrVersionMismatch      = errors.New("zerobuffer: incompatible version")
	ErrMetadataAlreadySet   = errors.New("zerobuffer: metadata already set")
	ErrMetadataTooLarge     = errors.New("zerobuffer: metadata too large")
	ErrFrameTooLarge        = errors.New("zerobuffer: frame too large for ring")
	ErrBufferFull           = errors.New("zerobuffer: buffer full")
	ErrReaderDead           = errors.New("zerobuffer: reader process is dead")
	ErrWriterDead           = errors.New("zerobuffer: writer process is dead")
	ErrInvalidFrame         = errors.New("zerobuffer: invalid frame")
	ErrResourceInit         = errors.New("zerobuffer: failed to initialize OS resource")
	ErrUnsupportedMode      = errors.New("zerobuffer: unsupported processing mode")
	ErrFrameAlreadyAcquired = errors.New("zerobuffer: a zero-copy buffer is already acquired")
	ErrNoBufferAcquired     = errors.New("zerobuffer: commit called with no buffer acquired")
)

func wrapped(kind Kind, sentinel error, context string) *Error {
	if context == "" {
		return newError(kind, sentinel)
	}
	return newError(kind, &contextualError{context: context, sentinel: sentinel})
}

// contextualError pairs a sentinel with a human-readable context string
// while still unwrapping to the sentinel for errors.Is.
type contextualError struct {
	context  string
	sentinel error
}

func (e *contextualError) Error() string { return e.context + ": " + e.sentinel.Error() }
func (e *contextualError) Unwrap() error { return e.sentinel }
