package p2p

import (
	"bufio"
	"errors"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/WendelHime/peernet/internal/decoder"
)

// Conn owns the TCP socket to exactly one peer: a buffered read side shared
// with the handshake and a buffered write side guarded by a mutex.
type Conn struct {
	peerID  string
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration

	writeMu sync.Mutex
	writer  *bufio.Writer

	// unix nanos of the last inbound frame (or establishment)
	lastActivity atomic.Int64

	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps an already handshaken socket. reader must be the reader used
// for the handshake so bytes it buffered are not lost.
func NewConn(peerID string, conn net.Conn, reader *bufio.Reader, timeout time.Duration) *Conn {
	if reader == nil {
		reader = bufio.NewReader(conn)
	}
	c := &Conn{
		peerID:  peerID,
		conn:    conn,
		reader:  reader,
		timeout: timeout,
		writer:  bufio.NewWriter(conn),
	}
	c.Touch(time.Now())
	return c
}

func (c *Conn) PeerID() string {
	return c.peerID
}

func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// WriteFrame sends one length-prefixed frame and flushes it.
func (c *Conn) WriteFrame(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return err
		}
	}
	if err := decoder.WriteFrame(c.writer, payload); err != nil {
		return err
	}
	return c.writer.Flush()
}

// Poll waits up to wait for inbound bytes. It returns false with a nil error
// when nothing arrived in the window.
func (c *Conn) Poll(wait time.Duration) (bool, error) {
	if c.reader.Buffered() > 0 {
		return true, nil
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
		return false, err
	}
	if _, err := c.reader.Peek(1); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ReadFrame reads one whole frame. The rest of a frame must arrive within the
// connection timeout once its first byte has been seen.
func (c *Conn) ReadFrame() ([]byte, error) {
	var deadline time.Time
	if c.timeout > 0 {
		deadline = time.Now().Add(c.timeout)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	return decoder.ReadFrame(c.reader)
}

func (c *Conn) Touch(t time.Time) {
	c.lastActivity.Store(t.UnixNano())
}

func (c *Conn) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// IsStale reports whether no inbound activity happened within threshold of now.
func (c *Conn) IsStale(now time.Time, threshold time.Duration) bool {
	return now.Sub(c.LastActivity()) > threshold
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
