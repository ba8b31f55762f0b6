package riotls_test

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brickingsoft/rio/transport"
	"github.com/brickingsoft/rxp/async"
)

// memConn is a scripted in-memory transport.Connection. Each direction is a
// channel of chunks; a Read completion hands the adapter one chunk, a Write
// completion reports the submitted length. interceptWrite lets tests mangle
// ciphertext in transit.
type memConn struct {
	ctx     context.Context
	fd      int
	in      <-chan []byte
	out     chan<- []byte
	closer  sync.Once
	inbound transport.InboundBuffer

	reads  atomic.Int64
	writes atomic.Int64

	interceptWrite func(p []byte) []byte
}

// memPipe builds two connected memory transports.
func memPipe(ctx context.Context) (a *memConn, b *memConn) {
	ab := make(chan []byte, 64)
	ba := make(chan []byte, 64)
	a = &memConn{ctx: ctx, fd: 3, in: ba, out: ab, inbound: transport.NewInboundBuffer()}
	b = &memConn{ctx: ctx, fd: 4, in: ab, out: ba, inbound: transport.NewInboundBuffer()}
	return
}

func (c *memConn) Context() (ctx context.Context) {
	ctx = c.ctx
	return
}

func (c *memConn) ConfigContext(config func(ctx context.Context) context.Context) {
	c.ctx = config(c.ctx)
	return
}

func (c *memConn) Fd() int {
	return c.fd
}

func (c *memConn) LocalAddr() (addr net.Addr) {
	addr = memAddr("local")
	return
}

func (c *memConn) RemoteAddr() (addr net.Addr) {
	addr = memAddr("remote")
	return
}

func (c *memConn) SetReadTimeout(d time.Duration)  {}
func (c *memConn) SetWriteTimeout(d time.Duration) {}

func (c *memConn) SetReadBuffer(n int) (err error)  { return }
func (c *memConn) SetWriteBuffer(n int) (err error) { return }
func (c *memConn) SetInboundBuffer(n int)           {}

func (c *memConn) Read() (future async.Future[transport.Inbound]) {
	c.reads.Add(1)
	promise, promiseErr := async.Make[transport.Inbound](c.ctx, async.WithWait())
	if promiseErr != nil {
		future = async.FailedImmediately[transport.Inbound](c.ctx, promiseErr)
		return
	}
	future = promise.Future()
	go func() {
		data, ok := <-c.in
		if !ok {
			// transport level close, no bytes
			promise.Succeed(transport.NewInbound(c.inbound, 0))
			return
		}
		_, _ = c.inbound.Write(data)
		promise.Succeed(transport.NewInbound(c.inbound, len(data)))
		return
	}()
	return
}

func (c *memConn) Write(b []byte) (future async.Future[int]) {
	c.writes.Add(1)
	promise, promiseErr := async.Make[int](c.ctx, async.WithWait())
	if promiseErr != nil {
		future = async.FailedImmediately[int](c.ctx, promiseErr)
		return
	}
	future = promise.Future()
	p := b
	if c.interceptWrite != nil {
		p = c.interceptWrite(p)
	}
	data := make([]byte, len(p))
	copy(data, p)
	go func() {
		c.out <- data
		promise.Succeed(len(b))
		return
	}()
	return
}

func (c *memConn) Close() (future async.Future[async.Void]) {
	c.closer.Do(func() {
		close(c.out)
	})
	future = async.SucceedImmediately[async.Void](c.ctx, async.Void{})
	return
}

type memAddr string

func (addr memAddr) Network() string { return "mem" }
func (addr memAddr) String() string  { return string(addr) }
