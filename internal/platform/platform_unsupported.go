//go:build !linux

package platform

// This Go port grounds its shared-memory and semaphore primitives on
// golang.org/x/sys/unix syscalls exercised elsewhere in the source corpus
// (mmap, flock, kill); none of that corpus touches
// golang.org/x/sys/windows, so there is nothing to build a native Windows
// backend on here without inventing an ungrounded dependency. Every
// constructor on non-Linux platforms fails fast with
// ErrUnsupportedPlatform instead of silently behaving differently.

func CreateSegment(name string, size int) (Segment, error) {
	return nil, ErrUnsupportedPlatform
}

func AttachSegment(name string, size int) (Segment, error) {
	return nil, ErrUnsupportedPlatform
}

func RemoveSegment(name string) error {
	return ErrUnsupportedPlatform
}

func SegmentExists(name string) (size int64, ok bool, err error) {
	return 0, false, ErrUnsupportedPlatform
}

func CreateSemaphore(name string, initial uint32) (Semaphore, error) {
	return nil, ErrUnsupportedPlatform
}

func AttachSemaphore(name string) (Semaphore, error) {
	return nil, ErrUnsupportedPlatform
}

func AcquireLock(name string) (Lock, error) {
	return nil, ErrUnsupportedPlatform
}

func ProcessAlive(pid int) bool {
	return false
}

func CurrentPid() int {
	return 0
}
