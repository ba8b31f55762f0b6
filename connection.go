package riotls

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/rio/transport"
	"github.com/brickingsoft/rxp/async"
)

// Status is the lifecycle state of a Connection.
type Status int

const (
	Fresh Status = iota
	Handshaking
	Established
	ClosingLocal
	ClosingPeer
	Closed
	Failed
)

func (status Status) String() string {
	switch status {
	case Fresh:
		return "fresh"
	case Handshaking:
		return "handshaking"
	case Established:
		return "established"
	case ClosingLocal:
		return "closing_local"
	case ClosingPeer:
		return "closing_peer"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return "unknown(" + strconv.Itoa(int(status)) + ")"
	}
}

// Connection is a TLS session over a completion based transport.
//
// Read futures resolve with decrypted plaintext and Write encrypts before
// submitting. Both transparently complete the handshake first. A succeeded
// Read whose Inbound has Received() == 0 is the peer's orderly close; an
// abrupt transport close before close_notify fails with ErrUnexpectedEOF.
type Connection interface {
	transport.Connection
	// Handshake drives the TLS handshake until the session is established.
	// Concurrent and repeated calls observe the single run.
	Handshake() (future async.Future[async.Void])
	// Flush submits queued outbound ciphertext until none remains, across
	// as many completion round trips as it takes.
	Flush() (future async.Future[async.Void])
	// CloseWrite sends close_notify and half closes the session. The
	// transport stays open for reads until the peer closes too.
	CloseWrite() (future async.Future[async.Void])
	// Status reports the connection lifecycle state.
	Status() (status Status)
}

// New builds a Connection over ts driven by the given engine. Use it to
// inject a custom Engine; NewConnectionBuilder covers crypto/tls sessions.
func New(ts transport.Connection, engine Engine) Connection {
	conn := &connection{
		Connection:          ts,
		engine:              engine,
		handshakeBarrier:    async.NewBarrier[async.Void](),
		handshakeBarrierKey: strconv.Itoa(ts.Fd()),
		outbound:            newOwnedBuffer(maxCiphertext),
		inbound:             transport.NewInboundBuffer(),
	}
	return conn
}

type connection struct {
	transport.Connection

	engine Engine

	handshakeComplete   atomic.Bool
	handshakeBarrier    async.Barrier[async.Void]
	handshakeBarrierKey string

	stateMu sync.Mutex
	status  Status
	cause   error

	reading atomic.Bool
	writing atomic.Bool

	outbound *ownedBuffer           // ciphertext staged for transport writes
	inbound  transport.InboundBuffer // plaintext staged for callers

	closeNotifySent bool
	closeNotifyErr  error
}

func (conn *connection) Status() (status Status) {
	conn.stateMu.Lock()
	status = conn.status
	conn.stateMu.Unlock()
	return
}

// fail latches the first terminal cause. Every later operation replays it
// without touching the transport. The latched error is returned so callers
// always surface the recorded cause, not a latecomer.
func (conn *connection) fail(cause error) (err error) {
	conn.stateMu.Lock()
	if conn.status == Failed {
		err = conn.cause
		conn.stateMu.Unlock()
		return
	}
	conn.status = Failed
	conn.cause = cause
	conn.stateMu.Unlock()
	conn.releaseEngine()
	err = cause
	return
}

func (conn *connection) releaseEngine() {
	if releaser, ok := conn.engine.(EngineReleaser); ok {
		releaser.Release()
	}
	return
}

// failure reports the error, if any, that makes operations illegal.
func (conn *connection) failure() (err error) {
	conn.stateMu.Lock()
	switch conn.status {
	case Failed:
		err = conn.cause
	case Closed:
		err = errors.From(ErrClosed)
	default:
	}
	conn.stateMu.Unlock()
	return
}

func (conn *connection) transition(from Status, to Status) {
	conn.stateMu.Lock()
	if conn.status == from {
		conn.status = to
	}
	conn.stateMu.Unlock()
	return
}

// pushCiphertext drains the engine's outbound queue through the staging
// buffer and submits it, calling done once neither the engine nor the
// staging buffer holds ciphertext. Short transport writes resubmit the
// remainder; the staged bytes stay owned by the transport between lend and
// collect.
func (conn *connection) pushCiphertext(done func(err error)) {
	if p := conn.outbound.writable(); len(p) > 0 {
		n := conn.engine.DrainCiphertext(p)
		conn.outbound.wrote(n)
	}
	if conn.outbound.pending() == 0 {
		done(nil)
		return
	}
	p, lendErr := conn.outbound.lend()
	if lendErr != nil {
		done(lendErr)
		return
	}
	conn.Connection.Write(p).OnComplete(func(ctx context.Context, wrote int, cause error) {
		conn.outbound.collect(wrote)
		if cause != nil {
			done(cause)
			return
		}
		conn.pushCiphertext(done)
		return
	})
	return
}

// feed hands a read completion's bytes to the engine in order.
func (conn *connection) feed(r transport.InboundReader, n int) (err error) {
	for n > 0 {
		p := r.Peek(n)
		if len(p) == 0 {
			break
		}
		fed, feedErr := conn.engine.FeedCiphertext(p)
		if fed > 0 {
			r.Discard(fed)
			n -= fed
		}
		if feedErr != nil {
			err = feedErr
			return
		}
		if fed == 0 {
			err = newError(errMetaOpEngine, errors.From(ErrStalled))
			return
		}
	}
	return
}
