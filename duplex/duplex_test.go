package duplex

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/modelingevolution/zerobuffer-go"
)

func uniqueName(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("zbduptest_%s_%d", t.Name(), time.Now().UnixNano())
}

// TestDuplexEcho sends ten requests of varying size and checks each is
// echoed back with its sequence number preserved.
func TestDuplexEcho(t *testing.T) {
	name := uniqueName(t)
	cfg := zerobuffer.BufferConfig{MetadataSize: 4096, PayloadSize: 1 << 20}

	server, err := CreateImmutableServer(name, cfg)
	if err != nil {
		t.Fatalf("CreateImmutableServer: %v", err)
	}
	defer server.Stop()

	echo := func(req *zerobuffer.Frame, resp *zerobuffer.Writer) error {
		_, err := resp.WriteFrame(req.Bytes())
		return err
	}
	if err := server.Start(context.Background(), echo); err != nil {
		t.Fatalf("Start: %v", err)
	}

	client, err := CreateClient(name)
	if err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	defer client.Close()

	sizes := []int{1, 1024, 65536, 1024, 1, 65536, 1024, 1, 1, 65536}
	sent := make([][]byte, len(sizes))
	seqs := make([]uint64, len(sizes))

	for i, size := range sizes {
		data := make([]byte, size)
		for j := range data {
			data[j] = byte((i + j) % 256)
		}
		sent[i] = data
		seq, err := client.SendRequest(data)
		if err != nil {
			t.Fatalf("SendRequest %d: %v", i, err)
		}
		seqs[i] = seq
	}

	for i := range sizes {
		resp, err := client.Read(2 * time.Second)
		if err != nil {
			t.Fatalf("Read %d: %v", i, err)
		}
		if !resp.Valid() {
			t.Fatalf("response %d timed out", i)
		}

		var want []byte
		for j, s := range seqs {
			if s == resp.Sequence() {
				want = sent[j]
				break
			}
		}
		if want == nil {
			t.Fatalf("response sequence %d does not match any sent request", resp.Sequence())
		}
		if len(resp.Bytes()) != len(want) {
			t.Fatalf("response %d length = %d, want %d", i, len(resp.Bytes()), len(want))
		}
		for j := range want {
			if resp.Bytes()[j] != want[j] {
				t.Fatalf("response %d byte %d mismatch", i, j)
			}
		}
		resp.Release()
	}
}

func TestUnsupportedModeFailsFast(t *testing.T) {
	name := uniqueName(t)
	cfg := zerobuffer.BufferConfig{MetadataSize: 1024, PayloadSize: 4096}

	server, err := CreateImmutableServer(name, cfg)
	if err != nil {
		t.Fatalf("CreateImmutableServer: %v", err)
	}
	defer server.Stop()

	err = server.Start(context.Background(), func(*zerobuffer.Frame, *zerobuffer.Writer) error { return nil }, ModeThreadPool)
	if err != zerobuffer.ErrUnsupportedMode {
		t.Fatalf("err = %v, want ErrUnsupportedMode", err)
	}
}
