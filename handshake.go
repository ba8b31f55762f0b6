package riotls

import (
	"context"
	"io"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/rio/transport"
	"github.com/brickingsoft/rxp/async"
)

func (conn *connection) Handshake() (future async.Future[async.Void]) {
	ctx := conn.Context()
	if conn.handshakeComplete.Load() {
		if err := conn.failure(); err != nil {
			future = async.FailedImmediately[async.Void](ctx, err)
		} else {
			future = async.SucceedImmediately[async.Void](ctx, async.Void{})
		}
		return
	}
	future = conn.handshakeBarrier.Do(ctx, conn.handshakeBarrierKey, func(promise async.Promise[async.Void]) {
		if conn.handshakeComplete.Load() {
			if err := conn.failure(); err != nil {
				promise.Fail(err)
			} else {
				promise.Succeed(async.Void{})
			}
			return
		}
		conn.transition(Fresh, Handshaking)
		conn.handshakeStep(promise)
	}, async.WithWait())
	return
}

// handshakeStep runs one transition of the handshake loop and re-arms
// itself from the completion callbacks until the engine leaves the
// handshaking state. Writes are flushed before reads are issued: the peer
// may be blocked waiting for this side's flight, so sending first avoids a
// mutual wait.
func (conn *connection) handshakeStep(promise async.Promise[async.Void]) {
	if err := conn.failure(); err != nil {
		conn.handshakeComplete.Store(true)
		promise.Fail(err)
		return
	}
	if !conn.engine.IsHandshaking() {
		// residual flight, e.g. the final Finished or server tickets
		conn.pushCiphertext(func(pushErr error) {
			conn.handshakeComplete.Store(true)
			if pushErr != nil {
				promise.Fail(conn.fail(newError(errMetaOpHandshake, pushErr)))
				return
			}
			conn.transition(Handshaking, Established)
			promise.Succeed(async.Void{})
			return
		})
		return
	}
	if conn.engine.WantsWrite() {
		conn.pushCiphertext(func(pushErr error) {
			if pushErr != nil {
				conn.handshakeComplete.Store(true)
				promise.Fail(conn.fail(newError(errMetaOpHandshake, pushErr)))
				return
			}
			conn.handshakeStep(promise)
			return
		})
		return
	}
	if conn.engine.WantsRead() {
		conn.handshakeRead(promise)
		return
	}
	conn.handshakeComplete.Store(true)
	promise.Fail(conn.fail(newError(errMetaOpHandshake, errors.From(ErrStalled))))
	return
}

func (conn *connection) handshakeRead(promise async.Promise[async.Void]) {
	conn.Connection.Read().OnComplete(func(ctx context.Context, in transport.Inbound, cause error) {
		if cause != nil {
			if errors.Is(cause, io.EOF) {
				cause = errors.From(ErrUnexpectedEOF)
			}
			conn.handshakeComplete.Store(true)
			promise.Fail(conn.fail(newError(errMetaOpHandshake, cause)))
			return
		}
		n := in.Received()
		if n == 0 {
			// peer vanished mid handshake
			conn.handshakeComplete.Store(true)
			promise.Fail(conn.fail(newError(errMetaOpHandshake, errors.From(ErrUnexpectedEOF))))
			return
		}
		if feedErr := conn.feed(in.Reader(), n); feedErr != nil {
			conn.handshakeComplete.Store(true)
			promise.Fail(conn.fail(feedErr))
			return
		}
		conn.handshakeStep(promise)
		return
	})
	return
}
