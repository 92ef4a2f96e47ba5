//go:build linux

package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// segment is the Linux Segment backed by a /dev/shm file and an mmap.
type segment struct {
	path string
	fd   int
	data []byte
}

func segmentPath(name string) string {
	return filepath.Join(SegmentNamespace, name)
}

// CreateSegment creates a new shared-memory segment of the given size,
// zero-filled, and maps it read/write. It fails with ErrAlreadyExists if a
// segment of that name already exists, stale or not; removing a stale one is
// left to the caller.
func CreateSegment(name string, size int) (Segment, error) {
	if err := os.MkdirAll(SegmentNamespace, 0o755); err != nil {
		return nil, fmt.Errorf("platform: mkdir segment namespace: %w", err)
	}

	path := segmentPath(name)
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_EXCL|unix.O_RDWR, 0o600)
	if err != nil {
		if err == unix.EEXIST {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("platform: create segment %s: %w", name, err)
	}

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		unix.Unlink(path)
		return nil, fmt.Errorf("platform: ftruncate segment %s to %d bytes: %w", name, size, err)
	}

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		unix.Unlink(path)
		return nil, fmt.Errorf("platform: mmap segment %s: %w", name, err)
	}
	clear(data)

	return &segment{path: path, fd: fd, data: data}, nil
}

// AttachSegment opens and maps an existing shared-memory segment.
func AttachSegment(name string, size int) (Segment, error) {
	path := segmentPath(name)
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		if err == unix.ENOENT {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("platform: open segment %s: %w", name, err)
	}

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("platform: mmap segment %s: %w", name, err)
	}

	return &segment{path: path, fd: fd, data: data}, nil
}

// RemoveSegment unlinks a segment's backing file without mapping it.
func RemoveSegment(name string) error {
	if err := unix.Unlink(segmentPath(name)); err != nil && err != unix.ENOENT {
		return fmt.Errorf("platform: unlink segment %s: %w", name, err)
	}
	return nil
}

// SegmentExists reports whether a segment named name currently exists, and
// if so its size in bytes. Used by open_reader's stale-resource check,
// which must read an existing segment's OIEB before deciding whether to
// recreate it.
func SegmentExists(name string) (size int64, ok bool, err error) {
	st, err := os.Stat(segmentPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("platform: stat segment %s: %w", name, err)
	}
	return st.Size(), true, nil
}

func (s *segment) Bytes() []byte { return s.data }

func (s *segment) Close(destroy bool) error {
	if s.data != nil {
		if err := unix.Munmap(s.data); err != nil {
			return fmt.Errorf("platform: munmap: %w", err)
		}
		s.data = nil
	}
	if s.fd != 0 {
		unix.Close(s.fd)
		s.fd = 0
	}
	if destroy {
		if err := unix.Unlink(s.path); err != nil && err != unix.ENOENT {
			return fmt.Errorf("platform: unlink %s: %w", s.path, err)
		}
	}
	return nil
}

// --- Named semaphores ---
//
// A named semaphore is an 8-byte int64 counter in its own small mmap'd
// segment under the same namespace as channel segments, keyed by name the
// same way (a plain file, not a SysV IPC object — golang.org/x/sys/unix does
// not wrap semget/semop/semctl on Linux, only generates their syscall
// numbers, so building on them would mean hand-rolling the raw syscall ABI;
// a counter in shared memory gets the same cross-process semantics through
// the primitive this package already has: Mmap + atomic). Post increments
// the counter with a single atomic add. Wait decrements it with a
// compare-and-swap loop, polling on a short sleep when the counter is
// non-positive — there is no cross-process futex/condvar available without
// cgo, so a bounded poll is the portable way to get a bounded wake latency.

const semaphoreSize = 8

type fileSemaphore struct {
	path string
	fd   int
	data []byte
}

func semaphorePath(name string) string {
	return filepath.Join(SegmentNamespace, name+".sem")
}

func semCounter(data []byte) *int64 {
	return (*int64)(unsafe.Pointer(&data[0]))
}

// CreateSemaphore creates a new named semaphore initialized to initial.
// Fails if a semaphore with this name already exists.
func CreateSemaphore(name string, initial uint32) (Semaphore, error) {
	if err := os.MkdirAll(SegmentNamespace, 0o755); err != nil {
		return nil, fmt.Errorf("platform: mkdir segment namespace: %w", err)
	}

	path := semaphorePath(name)
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_EXCL|unix.O_RDWR, 0o600)
	if err != nil {
		if err == unix.EEXIST {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("platform: create semaphore %s: %w", name, err)
	}
	if err := unix.Ftruncate(fd, semaphoreSize); err != nil {
		unix.Close(fd)
		unix.Unlink(path)
		return nil, fmt.Errorf("platform: ftruncate semaphore %s: %w", name, err)
	}
	data, err := unix.Mmap(fd, 0, semaphoreSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		unix.Unlink(path)
		return nil, fmt.Errorf("platform: mmap semaphore %s: %w", name, err)
	}

	atomic.StoreInt64(semCounter(data), int64(initial))
	return &fileSemaphore{path: path, fd: fd, data: data}, nil
}

// AttachSemaphore opens an existing named semaphore.
func AttachSemaphore(name string) (Semaphore, error) {
	path := semaphorePath(name)
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		if err == unix.ENOENT {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("platform: open semaphore %s: %w", name, err)
	}
	data, err := unix.Mmap(fd, 0, semaphoreSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("platform: mmap semaphore %s: %w", name, err)
	}
	return &fileSemaphore{path: path, fd: fd, data: data}, nil
}

func (s *fileSemaphore) Post() error {
	atomic.AddInt64(semCounter(s.data), 1)
	return nil
}

// Wait decrements the semaphore, blocking up to timeout (a negative timeout
// waits forever).
func (s *fileSemaphore) Wait(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	forever := timeout < 0
	counter := semCounter(s.data)

	const pollInterval = 1 * time.Millisecond
	for {
		for {
			cur := atomic.LoadInt64(counter)
			if cur <= 0 {
				break
			}
			if atomic.CompareAndSwapInt64(counter, cur, cur-1) {
				return nil
			}
		}
		if !forever && time.Now().After(deadline) {
			return ErrTimeout
		}
		time.Sleep(pollInterval)
	}
}

func (s *fileSemaphore) Destroy() error {
	if s.data != nil {
		unix.Munmap(s.data)
		s.data = nil
	}
	if s.fd != 0 {
		unix.Close(s.fd)
		s.fd = 0
	}
	if err := unix.Unlink(s.path); err != nil && err != unix.ENOENT {
		return fmt.Errorf("platform: unlink semaphore %s: %w", s.path, err)
	}
	return nil
}

func (s *fileSemaphore) Close() error {
	if s.data != nil {
		if err := unix.Munmap(s.data); err != nil {
			return fmt.Errorf("platform: munmap semaphore: %w", err)
		}
		s.data = nil
	}
	if s.fd != 0 {
		unix.Close(s.fd)
		s.fd = 0
	}
	return nil
}

// --- Lock file, backed by flock(2) ---

type lockFile struct {
	path string
	fd   int
}

// AcquireLock takes an exclusive, non-blocking advisory lock on
// <tmp>/<name>.lock, creating it if necessary.
func AcquireLock(name string) (Lock, error) {
	if err := os.MkdirAll(LockNamespace, 0o755); err != nil {
		return nil, fmt.Errorf("platform: mkdir lock namespace: %w", err)
	}

	path := filepath.Join(LockNamespace, name+".lock")
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("platform: open lock file %s: %w", path, err)
	}

	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		unix.Close(fd)
		if err == unix.EWOULDBLOCK {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("platform: flock %s: %w", path, err)
	}

	return &lockFile{path: path, fd: fd}, nil
}

func (l *lockFile) Release() error {
	if l.fd == 0 {
		return nil
	}
	unix.Flock(l.fd, unix.LOCK_UN)
	err := unix.Close(l.fd)
	l.fd = 0
	if err != nil {
		return fmt.Errorf("platform: close lock file %s: %w", l.path, err)
	}
	return nil
}

// ProcessAlive performs a best-effort liveness probe on pid using the
// signal-0 convention: kill(pid, 0) succeeds iff the process exists and is
// visible to this process.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil
}

// CurrentPid returns the calling process's OS PID.
func CurrentPid() int {
	return unix.Getpid()
}
