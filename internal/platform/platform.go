// Package platform implements the OS-level primitives zerobuffer channels
// are built from: named shared-memory segments, named counting semaphores,
// an exclusive lock file per channel name, and best-effort OS process
// liveness checks.
//
// The real implementation (platform_linux.go) is Linux-only, built on
// golang.org/x/sys/unix: a shared segment is a regular file under
// /dev/shm/<namespace> opened and mmap'd MAP_SHARED; a named semaphore is a
// second, smaller mmap'd file holding an atomic int64 counter, posted and
// waited with a short poll loop (golang.org/x/sys/unix exposes no System V
// semaphore calls, and a counting semaphore needs the same cross-process
// visibility a shared segment already gives us); the lock file is an
// flock(2) advisory lock. Every other GOOS gets platform_unsupported.go,
// which fails every constructor with ErrUnsupportedPlatform rather than
// silently degrading — the corpus this port is built from only ever
// grounds shared-memory/semaphore code on Linux syscalls, and there is
// nothing in it to build a Windows backend on without introducing a
// fabricated dependency.
package platform

import (
	"errors"
	"time"
)

// Namespace is the directory zerobuffer shared segments and lock files live
// under, keyed as "<namespace>/<name>".
const (
	SegmentNamespace = "/dev/shm/zerobuffer"
	LockNamespace    = "/tmp/zerobuffer"
)

var (
	// ErrUnsupportedPlatform is returned by every constructor on a GOOS this
	// package has no backend for.
	ErrUnsupportedPlatform = errors.New("platform: unsupported operating system")

	// ErrAlreadyExists is returned by CreateSegment and CreateSemaphore when
	// a resource of the same name already exists, whether live or stale.
	ErrAlreadyExists = errors.New("platform: segment already exists")

	// ErrNotFound is returned by AttachSegment/AttachSemaphore when the
	// named resource does not exist.
	ErrNotFound = errors.New("platform: resource not found")

	// ErrLocked is returned by AcquireLock when the lock is already held,
	// by another process or by another handle in this one.
	ErrLocked = errors.New("platform: name is locked by another process")
)

// Segment is a shared-memory mapping backing one zerobuffer channel.
type Segment interface {
	// Bytes returns the mapped region. Valid until Close.
	Bytes() []byte
	// Close unmaps the segment. If destroy is true, the backing resource is
	// also removed from the namespace.
	Close(destroy bool) error
}

// Semaphore is a named counting semaphore.
type Semaphore interface {
	// Post increments the semaphore, waking one waiter if any.
	Post() error
	// Wait blocks until the semaphore can be decremented or timeout
	// elapses, returning ErrTimeout in the latter case. A negative timeout
	// waits forever.
	Wait(timeout time.Duration) error
	// Destroy removes the named semaphore from the namespace.
	Destroy() error
	// Close releases this process's handle without removing the semaphore.
	Close() error
}

// ErrTimeout is returned by Semaphore.Wait when the deadline elapses before
// the semaphore could be decremented.
var ErrTimeout = errors.New("platform: wait timed out")

// Lock is an advisory, exclusive lock over a channel name.
type Lock interface {
	// Release releases the lock and closes its file. The lock file itself is
	// left in place.
	Release() error
}
