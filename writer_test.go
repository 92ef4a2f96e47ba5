package zerobuffer

import (
	"testing"
	"time"
)

func TestFrameTooLarge(t *testing.T) {
	name := uniqueName(t)
	r, err := OpenReader(name, BufferConfig{MetadataSize: 64, PayloadSize: 256})
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()

	w, err := OpenWriter(name)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	defer w.Close()

	_, err = w.WriteFrame(make([]byte, 1000))
	if kindOf(err) != KindFrameTooLarge {
		t.Fatalf("err = %v, want KindFrameTooLarge", err)
	}
}

func TestMetadataOnlyOnce(t *testing.T) {
	name := uniqueName(t)
	r, err := OpenReader(name, BufferConfig{MetadataSize: 64, PayloadSize: 1024})
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()

	w, err := OpenWriter(name)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	defer w.Close()

	if err := w.SetMetadata([]byte("hello")); err != nil {
		t.Fatalf("first SetMetadata: %v", err)
	}
	err = w.SetMetadata([]byte("world"))
	if kindOf(err) != KindMetadataAlreadySet {
		t.Fatalf("err = %v, want KindMetadataAlreadySet", err)
	}
}

func TestMetadataTooLarge(t *testing.T) {
	name := uniqueName(t)
	r, err := OpenReader(name, BufferConfig{MetadataSize: 8, PayloadSize: 1024})
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()

	w, err := OpenWriter(name)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	defer w.Close()

	err = w.SetMetadata(make([]byte, 100))
	if kindOf(err) != KindMetadataTooLarge {
		t.Fatalf("err = %v, want KindMetadataTooLarge", err)
	}
}

func TestDoubleAcquireFails(t *testing.T) {
	name := uniqueName(t)
	r, err := OpenReader(name, BufferConfig{MetadataSize: 64, PayloadSize: 4096})
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()

	w, err := OpenWriter(name)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	defer w.Close()

	if _, err := w.AcquireBuffer(16); err != nil {
		t.Fatalf("first AcquireBuffer: %v", err)
	}
	if _, err := w.AcquireBuffer(16); err != ErrFrameAlreadyAcquired {
		t.Fatalf("second AcquireBuffer err = %v, want ErrFrameAlreadyAcquired", err)
	}
	if _, err := w.CommitFrame(); err != nil {
		t.Fatalf("CommitFrame: %v", err)
	}
	if _, err := w.CommitFrame(); err != ErrNoBufferAcquired {
		t.Fatalf("double CommitFrame err = %v, want ErrNoBufferAcquired", err)
	}
}

func TestSecondWriterRejectedWhileFirstLive(t *testing.T) {
	name := uniqueName(t)
	r, err := OpenReader(name, BufferConfig{MetadataSize: 64, PayloadSize: 1024})
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()

	w1, err := OpenWriter(name)
	if err != nil {
		t.Fatalf("first OpenWriter: %v", err)
	}
	defer w1.Close()

	_, err = OpenWriter(name)
	if kindOf(err) != KindAlreadyInUse {
		t.Fatalf("second OpenWriter err = %v, want KindAlreadyInUse", err)
	}
}

func TestIsReaderConnected(t *testing.T) {
	name := uniqueName(t)
	r, err := OpenReader(name, BufferConfig{MetadataSize: 64, PayloadSize: 1024})
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()

	w, err := OpenWriter(name)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	defer w.Close()

	if !w.IsReaderConnected(time.Second) {
		t.Fatal("expected reader to be connected")
	}
}
