package duplex

import (
	"fmt"
	"time"

	"github.com/modelingevolution/zerobuffer-go"
)

// Client is the mirror image of Server: it owns the request ring's writer
// and the response ring's reader.
type Client struct {
	name string

	reqWriter  *zerobuffer.Writer
	respReader *zerobuffer.Reader
}

// CreateClient attaches to the pair of rings backing the duplex channel
// named name, both of which must already exist (created by
// CreateImmutableServer).
func CreateClient(name string, opts ...zerobuffer.Option) (*Client, error) {
	reqWriter, err := zerobuffer.OpenWriter(name+"#request", opts...)
	if err != nil {
		return nil, fmt.Errorf("duplex: attach request writer: %w", err)
	}
	respReader, err := zerobuffer.AttachReader(name+"#response", opts...)
	if err != nil {
		reqWriter.Close()
		return nil, fmt.Errorf("duplex: attach response reader: %w", err)
	}

	return &Client{name: name, reqWriter: reqWriter, respReader: respReader}, nil
}

// AcquireRequest reserves space for a zero-copy request of n bytes on the
// request ring, mirroring Writer.AcquireBuffer.
func (c *Client) AcquireRequest(n uint64) ([]byte, error) {
	return c.reqWriter.AcquireBuffer(n)
}

// Commit finalizes a prior AcquireRequest and returns its sequence number.
func (c *Client) Commit() (uint64, error) {
	return c.reqWriter.CommitFrame()
}

// SendRequest writes data as one full request frame and returns its
// sequence number.
func (c *Client) SendRequest(data []byte) (uint64, error) {
	return c.reqWriter.WriteFrame(data)
}

// Read blocks for the next response frame, mirroring Reader.ReadFrame.
// Correlate it with a prior request by comparing Frame.Sequence().
func (c *Client) Read(timeout time.Duration) (*zerobuffer.Frame, error) {
	return c.respReader.ReadFrame(timeout)
}

// Close releases both rings this client holds.
func (c *Client) Close() error {
	if err := c.reqWriter.Close(); err != nil {
		return err
	}
	return c.respReader.Close()
}
