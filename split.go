package riotls

import (
	"github.com/brickingsoft/rio/transport"
	"github.com/brickingsoft/rxp/async"
)

// Split separates a connection into a read half and a write half that can
// be driven from two tasks. The split is safe because the connection
// already owns one pending slot per direction; the halves only narrow the
// surface.
func Split(conn Connection) (r *ReadHalf, w *WriteHalf) {
	r = &ReadHalf{inner: conn}
	w = &WriteHalf{inner: conn}
	return
}

type ReadHalf struct {
	inner Connection
}

func (half *ReadHalf) Read() (future async.Future[transport.Inbound]) {
	future = half.inner.Read()
	return
}

type WriteHalf struct {
	inner Connection
}

func (half *WriteHalf) Write(b []byte) (future async.Future[int]) {
	future = half.inner.Write(b)
	return
}

func (half *WriteHalf) Flush() (future async.Future[async.Void]) {
	future = half.inner.Flush()
	return
}

func (half *WriteHalf) CloseWrite() (future async.Future[async.Void]) {
	future = half.inner.CloseWrite()
	return
}
