package riotls

import (
	"io"
	"net"
	"time"

	"github.com/brickingsoft/rxp/async"
)

// AdaptToNetConn bridges a Connection to the blocking net.Conn surface.
// A Read resolving with zero received bytes is the peer's close_notify and
// maps to io.EOF.
func AdaptToNetConn(conn Connection) net.Conn {
	return &netConn{conn}
}

type netConn struct {
	inner Connection
}

func (conn *netConn) Read(b []byte) (n int, err error) {
	if len(b) == 0 {
		return
	}
	af := async.AwaitableFuture(conn.inner.Read())
	inbound, rErr := af.Await()
	if rErr != nil {
		err = rErr
		return
	}
	if inbound.Received() == 0 {
		// close_notify may arrive while earlier completions still hold
		// unconsumed plaintext; drain those before reporting end of data
		if r := inbound.Reader(); r != nil && r.Length() > 0 {
			n, err = r.Read(b)
			return
		}
		err = io.EOF
		return
	}
	n, err = inbound.Reader().Read(b)
	return
}

func (conn *netConn) Write(b []byte) (n int, err error) {
	for n < len(b) {
		af := async.AwaitableFuture(conn.inner.Write(b[n:]))
		wrote, wErr := af.Await()
		n += wrote
		if wErr != nil {
			err = wErr
			return
		}
	}
	return
}

func (conn *netConn) Close() error {
	af := async.AwaitableFuture(conn.inner.Close())
	_, err := af.Await()
	return err
}

func (conn *netConn) LocalAddr() net.Addr {
	return conn.inner.LocalAddr()
}

func (conn *netConn) RemoteAddr() net.Addr {
	return conn.inner.RemoteAddr()
}

func (conn *netConn) SetDeadline(t time.Time) error {
	conn.inner.SetReadTimeout(time.Until(t))
	conn.inner.SetWriteTimeout(time.Until(t))
	return nil
}

func (conn *netConn) SetReadDeadline(t time.Time) error {
	conn.inner.SetReadTimeout(time.Until(t))
	return nil
}

func (conn *netConn) SetWriteDeadline(t time.Time) error {
	conn.inner.SetWriteTimeout(time.Until(t))
	return nil
}
