package riotls

import (
	"context"
	"io"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/rio/transport"
	"github.com/brickingsoft/rxp/async"
)

// Read resolves with decrypted application bytes, completing the handshake
// first when necessary. Received() == 0 on the resolved Inbound means the
// peer sent close_notify; a transport level close without it fails with
// ErrUnexpectedEOF, because TLS cannot tell truncation from close
// otherwise.
func (conn *connection) Read() (future async.Future[transport.Inbound]) {
	ctx := conn.Context()
	if err := conn.failure(); err != nil {
		future = async.FailedImmediately[transport.Inbound](ctx, err)
		return
	}
	if !conn.reading.CompareAndSwap(false, true) {
		future = async.FailedImmediately[transport.Inbound](ctx, errors.From(ErrBusy))
		return
	}
	promise, promiseErr := async.Make[transport.Inbound](ctx, async.WithWait())
	if promiseErr != nil {
		conn.reading.Store(false)
		future = async.FailedImmediately[transport.Inbound](ctx, promiseErr)
		return
	}
	future = promise.Future()
	conn.Handshake().OnComplete(func(ctx context.Context, _ async.Void, cause error) {
		if cause != nil {
			conn.reading.Store(false)
			promise.Fail(cause)
			return
		}
		conn.readStep(promise)
		return
	})
	return
}

// readStep tries buffered plaintext first; a prior completion may already
// have decrypted more than the caller consumed. Only when the engine is
// empty does it submit a ciphertext read, feed the completion and retry, so
// arbitrarily small transport reads never surface as spurious empty
// results.
func (conn *connection) readStep(promise async.Promise[transport.Inbound]) {
	p, allocErr := conn.inbound.Allocate(maxPlaintext)
	if allocErr != nil {
		conn.reading.Store(false)
		promise.Fail(newError(errMetaOpRead, allocErr))
		return
	}
	n, err := conn.engine.ReadPlaintext(p)
	_ = conn.inbound.AllocatedWrote(n)
	if err == nil {
		if n == 0 {
			// orderly close from the peer
			conn.stateMu.Lock()
			switch conn.status {
			case ClosingLocal:
				conn.status = Closed
			case Established:
				conn.status = ClosingPeer
			default:
			}
			conn.stateMu.Unlock()
		}
		conn.reading.Store(false)
		promise.Succeed(transport.NewInbound(conn.inbound, n))
		return
	}
	if !IsNoPlaintext(err) {
		conn.reading.Store(false)
		promise.Fail(conn.fail(newError(errMetaOpRead, err)))
		return
	}
	conn.Connection.Read().OnComplete(func(ctx context.Context, in transport.Inbound, cause error) {
		if cause != nil {
			if errors.Is(cause, io.EOF) {
				cause = errors.From(ErrUnexpectedEOF)
			}
			conn.reading.Store(false)
			promise.Fail(conn.fail(newError(errMetaOpRead, cause)))
			return
		}
		received := in.Received()
		if received == 0 {
			conn.reading.Store(false)
			promise.Fail(conn.fail(newError(errMetaOpRead, errors.From(ErrUnexpectedEOF))))
			return
		}
		if feedErr := conn.feed(in.Reader(), received); feedErr != nil {
			conn.reading.Store(false)
			promise.Fail(conn.fail(feedErr))
			return
		}
		conn.readStep(promise)
		return
	})
	return
}
