package riotls

import (
	"context"
	"time"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/rxp/async"
)

var errEarlyCloseWrite = errors.Define("close write called before handshake complete")

func (conn *connection) CloseWrite() (future async.Future[async.Void]) {
	ctx := conn.Context()
	if !conn.handshakeComplete.Load() {
		future = async.FailedImmediately[async.Void](ctx, errors.From(errEarlyCloseWrite))
		return
	}
	if err := conn.failure(); err != nil {
		future = async.FailedImmediately[async.Void](ctx, err)
		return
	}
	conn.stateMu.Lock()
	if conn.closeNotifySent {
		alreadyErr := conn.closeNotifyErr
		conn.stateMu.Unlock()
		if alreadyErr != nil {
			future = async.FailedImmediately[async.Void](ctx, alreadyErr)
		} else {
			future = async.SucceedImmediately[async.Void](ctx, async.Void{})
		}
		return
	}
	conn.stateMu.Unlock()

	if !conn.writing.CompareAndSwap(false, true) {
		future = async.FailedImmediately[async.Void](ctx, errors.From(ErrBusy))
		return
	}
	// latch only after winning the write slot, so a refused call leaves
	// the session writable and the alert still unsent
	conn.stateMu.Lock()
	if conn.closeNotifySent {
		alreadyErr := conn.closeNotifyErr
		conn.stateMu.Unlock()
		conn.writing.Store(false)
		if alreadyErr != nil {
			future = async.FailedImmediately[async.Void](ctx, alreadyErr)
		} else {
			future = async.SucceedImmediately[async.Void](ctx, async.Void{})
		}
		return
	}
	conn.closeNotifySent = true
	if conn.status == Established {
		conn.status = ClosingLocal
	}
	conn.stateMu.Unlock()
	promise, promiseErr := async.Make[async.Void](ctx, async.WithWait())
	if promiseErr != nil {
		conn.writing.Store(false)
		future = async.FailedImmediately[async.Void](ctx, promiseErr)
		return
	}
	future = promise.Future()

	if alertErr := conn.engine.CloseNotify(); alertErr != nil {
		conn.writing.Store(false)
		wrapped := newError(errMetaOpCloseWrite, alertErr)
		conn.stateMu.Lock()
		conn.closeNotifyErr = wrapped
		conn.stateMu.Unlock()
		promise.Fail(conn.fail(wrapped))
		return
	}
	conn.pushCiphertext(func(pushErr error) {
		conn.writing.Store(false)
		if pushErr != nil {
			wrapped := newError(errMetaOpCloseWrite, pushErr)
			conn.stateMu.Lock()
			conn.closeNotifyErr = wrapped
			conn.stateMu.Unlock()
			promise.Fail(conn.fail(wrapped))
			return
		}
		// peer already closed means both directions are done
		conn.transition(ClosingPeer, Closed)
		promise.Succeed(async.Void{})
		return
	})
	return
}

// Close sends close_notify on a best effort basis under a bounded write
// timeout, then closes the transport. A failed alert is not propagated: the
// peer detects the disconnect at the transport level anyway.
func (conn *connection) Close() (future async.Future[async.Void]) {
	ctx := conn.Context()
	sendAlert := conn.handshakeComplete.Load() && conn.failure() == nil
	if sendAlert {
		conn.stateMu.Lock()
		sendAlert = !conn.closeNotifySent
		conn.stateMu.Unlock()
	}
	if !sendAlert {
		conn.markClosed()
		future = conn.Connection.Close()
		return
	}
	promise, promiseErr := async.Make[async.Void](ctx, async.WithWait())
	if promiseErr != nil {
		conn.markClosed()
		future = conn.Connection.Close()
		return
	}
	future = promise.Future()
	// Set a write timeout to prevent possibly blocking forever.
	conn.SetWriteTimeout(5 * time.Second)
	conn.CloseWrite().OnComplete(func(ctx context.Context, _ async.Void, cause error) {
		conn.SetWriteTimeout(0)
		conn.markClosed()
		conn.Connection.Close().OnComplete(func(ctx context.Context, _ async.Void, closeErr error) {
			if closeErr != nil {
				promise.Fail(closeErr)
				return
			}
			promise.Succeed(async.Void{})
			return
		})
		return
	})
	return
}

func (conn *connection) markClosed() {
	conn.stateMu.Lock()
	if conn.status != Failed {
		conn.status = Closed
	}
	conn.stateMu.Unlock()
	conn.releaseEngine()
	// hand the pooled staging buffer back
	conn.inbound.Close()
	return
}
