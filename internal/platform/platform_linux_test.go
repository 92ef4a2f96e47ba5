//go:build linux

package platform

import (
	"fmt"
	"testing"
	"time"
)

func uniqueName(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("plattest_%s_%d", t.Name(), time.Now().UnixNano())
}

func TestSegmentCreateAttachClose(t *testing.T) {
	name := uniqueName(t)
	seg, err := CreateSegment(name, 4096)
	if err != nil {
		t.Fatalf("CreateSegment: %v", err)
	}

	if _, err := CreateSegment(name, 4096); err != ErrAlreadyExists {
		t.Fatalf("second CreateSegment err = %v, want ErrAlreadyExists", err)
	}

	b := seg.Bytes()
	if len(b) != 4096 {
		t.Fatalf("len(Bytes()) = %d, want 4096", len(b))
	}
	b[0] = 0xAB

	seg2, err := AttachSegment(name, 4096)
	if err != nil {
		t.Fatalf("AttachSegment: %v", err)
	}
	if seg2.Bytes()[0] != 0xAB {
		t.Fatal("attached segment does not see bytes written by creator")
	}

	if err := seg2.Close(false); err != nil {
		t.Fatalf("Close(false): %v", err)
	}
	if err := seg.Close(true); err != nil {
		t.Fatalf("Close(true): %v", err)
	}

	if _, _, err := SegmentExists(name); err != nil {
		t.Fatalf("SegmentExists after destroy: %v", err)
	}
}

func TestSegmentExists(t *testing.T) {
	name := uniqueName(t)
	if _, ok, err := SegmentExists(name); err != nil || ok {
		t.Fatalf("SegmentExists before create: ok=%v err=%v", ok, err)
	}

	seg, err := CreateSegment(name, 1024)
	if err != nil {
		t.Fatalf("CreateSegment: %v", err)
	}
	defer seg.Close(true)

	size, ok, err := SegmentExists(name)
	if err != nil || !ok {
		t.Fatalf("SegmentExists after create: ok=%v err=%v", ok, err)
	}
	if size != 1024 {
		t.Fatalf("size = %d, want 1024", size)
	}
}

func TestSemaphorePostWait(t *testing.T) {
	name := uniqueName(t)
	sem, err := CreateSemaphore(name, 0)
	if err != nil {
		t.Fatalf("CreateSemaphore: %v", err)
	}
	defer sem.Destroy()

	if err := sem.Wait(50 * time.Millisecond); err != ErrTimeout {
		t.Fatalf("Wait on empty semaphore err = %v, want ErrTimeout", err)
	}

	if err := sem.Post(); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if err := sem.Wait(50 * time.Millisecond); err != nil {
		t.Fatalf("Wait after Post: %v", err)
	}
}

func TestSemaphoreAttach(t *testing.T) {
	name := uniqueName(t)
	sem, err := CreateSemaphore(name, 2)
	if err != nil {
		t.Fatalf("CreateSemaphore: %v", err)
	}
	defer sem.Destroy()

	attached, err := AttachSemaphore(name)
	if err != nil {
		t.Fatalf("AttachSemaphore: %v", err)
	}
	defer attached.Close()

	if err := attached.Wait(50 * time.Millisecond); err != nil {
		t.Fatalf("Wait via attached handle: %v", err)
	}
}

func TestLockExclusive(t *testing.T) {
	name := uniqueName(t)
	lock, err := AcquireLock(name)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}

	if _, err := AcquireLock(name); err != ErrLocked {
		t.Fatalf("second AcquireLock err = %v, want ErrLocked", err)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	lock2, err := AcquireLock(name)
	if err != nil {
		t.Fatalf("AcquireLock after release: %v", err)
	}
	lock2.Release()
}

func TestProcessAliveCurrentProcess(t *testing.T) {
	if !ProcessAlive(CurrentPid()) {
		t.Fatal("current process should be reported alive")
	}
	if ProcessAlive(0) {
		t.Fatal("pid 0 should never be reported alive")
	}
}
