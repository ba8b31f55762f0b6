package riotls

import (
	"context"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/rxp/async"
)

// Write encrypts b and submits the produced ciphertext before resolving, so
// encrypted data never sits in the engine's queue past the call. The
// resolved count may be smaller than len(b); the caller resubmits the
// untouched remainder.
func (conn *connection) Write(b []byte) (future async.Future[int]) {
	ctx := conn.Context()
	if len(b) == 0 {
		future = async.FailedImmediately[int](ctx, errors.From(ErrEmptyBytes))
		return
	}
	if err := conn.writeFailure(); err != nil {
		future = async.FailedImmediately[int](ctx, err)
		return
	}
	if !conn.writing.CompareAndSwap(false, true) {
		future = async.FailedImmediately[int](ctx, errors.From(ErrBusy))
		return
	}
	promise, promiseErr := async.Make[int](ctx, async.WithWait())
	if promiseErr != nil {
		conn.writing.Store(false)
		future = async.FailedImmediately[int](ctx, promiseErr)
		return
	}
	future = promise.Future()
	conn.Handshake().OnComplete(func(ctx context.Context, _ async.Void, cause error) {
		if cause != nil {
			conn.writing.Store(false)
			promise.Fail(cause)
			return
		}
		conn.writeStep(promise, b)
		return
	})
	return
}

func (conn *connection) writeStep(promise async.Promise[int], b []byte) {
	n, err := conn.engine.WritePlaintext(b)
	if err != nil {
		conn.writing.Store(false)
		promise.Fail(conn.fail(newError(errMetaOpWrite, err)))
		return
	}
	conn.pushCiphertext(func(pushErr error) {
		conn.writing.Store(false)
		if pushErr != nil {
			promise.Fail(conn.fail(newError(errMetaOpWrite, pushErr)))
			return
		}
		promise.Succeed(n)
		return
	})
	return
}

// writeFailure extends failure with the half closed case: once
// close_notify went out, no more application data may follow it.
func (conn *connection) writeFailure() (err error) {
	if err = conn.failure(); err != nil {
		return
	}
	conn.stateMu.Lock()
	if conn.closeNotifySent || conn.status == ClosingLocal {
		err = errors.From(ErrClosed)
	}
	conn.stateMu.Unlock()
	return
}

// Flush drains the engine's outbound queue and the staging buffer,
// submitting writes until both are empty. Multiple completion round trips
// are taken when a single staging pass cannot hold everything.
func (conn *connection) Flush() (future async.Future[async.Void]) {
	ctx := conn.Context()
	if err := conn.failure(); err != nil {
		future = async.FailedImmediately[async.Void](ctx, err)
		return
	}
	if !conn.handshakeComplete.Load() {
		// nothing a caller could have queued yet
		future = async.SucceedImmediately[async.Void](ctx, async.Void{})
		return
	}
	if !conn.writing.CompareAndSwap(false, true) {
		future = async.FailedImmediately[async.Void](ctx, errors.From(ErrBusy))
		return
	}
	promise, promiseErr := async.Make[async.Void](ctx, async.WithWait())
	if promiseErr != nil {
		conn.writing.Store(false)
		future = async.FailedImmediately[async.Void](ctx, promiseErr)
		return
	}
	future = promise.Future()
	conn.pushCiphertext(func(pushErr error) {
		conn.writing.Store(false)
		if pushErr != nil {
			promise.Fail(conn.fail(newError(errMetaOpFlush, pushErr)))
			return
		}
		promise.Succeed(async.Void{})
		return
	})
	return
}
