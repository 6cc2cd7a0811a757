// Package serial adapts a real serial device -- including a platform's
// /dev/rfcommN node bound to an already-established RFCOMM channel -- to
// the transport.RFCOMM interface, hiding OS differences behind
// github.com/pkg/term. RFCOMM channel establishment itself is out of
// scope here; this package only carries bytes once a device node exists.
package serial

import (
	"io"
	"sync"

	"github.com/pkg/term"

	"github.com/zb3/gofp/transport"
)

// Channel is a single RFCOMM-over-serial-device connection.
type Channel struct {
	cid     transport.RFCOMMCID
	dev     *term.Term
	handler transport.RFCOMMHandler

	mu      sync.Mutex
	closed  bool
}

// Open opens devicePath (e.g. "/dev/rfcomm0") at baud and returns a
// Channel that delivers to handler, ready to have ReadLoop started.
func Open(devicePath string, baud int, cid transport.RFCOMMCID, handler transport.RFCOMMHandler) (*Channel, error) {
	dev, err := term.Open(devicePath, term.Speed(baud), term.RawMode)
	if err != nil {
		return nil, err
	}
	return &Channel{cid: cid, dev: dev, handler: handler}, nil
}

// Send implements transport.RFCOMM.
func (c *Channel) Send(cid transport.RFCOMMCID, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || cid != c.cid {
		return io.ErrClosedPipe
	}
	_, err := c.dev.Write(data)
	return err
}

// CanSend implements transport.RFCOMM. A serial device has no explicit
// per-channel credit scheme, so any open channel can always accept more
// bytes; genuine RFCOMM credit flow control is the transport's job
// upstream of this adapter.
func (c *Channel) CanSend(cid transport.RFCOMMCID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && cid == c.cid
}

// ReadLoop blocks reading bytes from the device and delivers them to the
// handler's Data callback until the device is closed or a read error
// occurs, at which point it calls Closed. Run it in its own goroutine.
func (c *Channel) ReadLoop() {
	buf := make([]byte, 256)
	for {
		n, err := c.dev.Read(buf)
		if n > 0 {
			c.handler.Data(c.cid, append([]byte(nil), buf[:n]...))
		}
		if err != nil {
			c.mu.Lock()
			c.closed = true
			c.mu.Unlock()
			c.handler.Closed(c.cid)
			return
		}
	}
}

// Close closes the underlying device.
func (c *Channel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.dev.Close()
}
