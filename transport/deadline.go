package transport

import (
	"net"
	"time"
)

// DeadlineConn applies a fresh I/O deadline before every Read and Write,
// so a stalled peer fails the current call instead of blocking forever.
// The expiry surfaces as os.ErrDeadlineExceeded.
type DeadlineConn struct {
	net.Conn
	timeout time.Duration
}

// NewDeadlineConn wraps conn. A timeout of zero returns conn unchanged.
func NewDeadlineConn(conn net.Conn, timeout time.Duration) net.Conn {
	if timeout <= 0 {
		return conn
	}
	return &DeadlineConn{Conn: conn, timeout: timeout}
}

// Timeout returns the per-call deadline.
func (c *DeadlineConn) Timeout() time.Duration {
	return c.timeout
}

func (c *DeadlineConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}

func (c *DeadlineConn) Write(p []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(p)
}
