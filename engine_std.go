package riotls

import (
	"crypto/tls"
	"io"
	"net"
	"sync"
	"time"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/rio/pkg/bytebuffers"
)

// stdEngine adapts crypto/tls to the Engine contract. crypto/tls insists on
// owning a net.Conn, so the engine gives it a memory conn wired to the
// inbound and outbound staging buffers and runs the record machinery on a
// private goroutine. The goroutine parks inside the memory conn whenever it
// needs ciphertext; FeedCiphertext wakes it and waits until it parks again,
// which keeps the four operations synchronous as observed by the caller.
type stdEngine struct {
	mu   sync.Mutex
	cond *sync.Cond

	conn *tls.Conn

	inbound  bytebuffers.Buffer // ciphertext from the peer, pending consumption
	outbound bytebuffers.Buffer // ciphertext produced for the peer
	plain    bytebuffers.Buffer // decrypted application data

	parked        bool // record goroutine is waiting for ciphertext
	handshakeDone bool
	finished      bool  // record goroutine exited
	eof           bool  // peer sent close_notify
	fault         error // sticky protocol fault
	closed        bool
}

// NewClientEngine builds a crypto/tls client engine. Certificate policy,
// cipher suites and the server name all come resolved in config.
func NewClientEngine(config *tls.Config) Engine {
	return newStdEngine(true, config)
}

// NewServerEngine builds a crypto/tls server engine.
func NewServerEngine(config *tls.Config) Engine {
	return newStdEngine(false, config)
}

func newStdEngine(client bool, config *tls.Config) *stdEngine {
	eng := &stdEngine{
		inbound:  bytebuffers.NewBuffer(),
		outbound: bytebuffers.NewBuffer(),
		plain:    bytebuffers.NewBuffer(),
	}
	eng.cond = sync.NewCond(&eng.mu)
	ec := &engineConn{eng: eng}
	if client {
		eng.conn = tls.Client(ec, config)
	} else {
		eng.conn = tls.Server(ec, config)
	}
	go eng.run()
	// wait for the first flight or the first park before handing the
	// engine out, so the predicates start out meaningful
	eng.mu.Lock()
	for !eng.settledLocked() {
		eng.cond.Wait()
	}
	eng.mu.Unlock()
	return eng
}

// run drives the handshake and then pumps decrypted records until the
// session ends. All progress is reported through the condition variable.
func (eng *stdEngine) run() {
	hsErr := eng.conn.Handshake()
	eng.mu.Lock()
	eng.handshakeDone = true
	if hsErr != nil {
		eng.fault = hsErr
		eng.finished = true
		eng.cond.Broadcast()
		eng.mu.Unlock()
		return
	}
	eng.cond.Broadcast()
	eng.mu.Unlock()

	b := make([]byte, maxPlaintext)
	for {
		n, err := eng.conn.Read(b)
		eng.mu.Lock()
		if n > 0 {
			_, _ = eng.plain.Write(b[:n])
		}
		if err != nil {
			if err == io.EOF {
				eng.eof = true
			} else {
				eng.fault = err
			}
			eng.finished = true
			eng.cond.Broadcast()
			eng.mu.Unlock()
			return
		}
		eng.cond.Broadcast()
		eng.mu.Unlock()
	}
}

// settledLocked reports that the record goroutine cannot advance without
// more ciphertext: it is parked on an empty inbound buffer, or it exited.
func (eng *stdEngine) settledLocked() bool {
	if eng.finished {
		return true
	}
	return eng.parked && eng.inbound.Len() == 0
}

func (eng *stdEngine) FeedCiphertext(p []byte) (n int, err error) {
	eng.mu.Lock()
	if eng.fault != nil {
		err = newError(errMetaOpEngine, eng.fault)
		eng.mu.Unlock()
		return
	}
	n, _ = eng.inbound.Write(p)
	eng.cond.Broadcast()
	for !eng.settledLocked() {
		eng.cond.Wait()
	}
	if eng.fault != nil {
		err = newError(errMetaOpEngine, eng.fault)
	}
	eng.mu.Unlock()
	return
}

func (eng *stdEngine) DrainCiphertext(p []byte) (n int) {
	eng.mu.Lock()
	n, _ = eng.outbound.Read(p)
	eng.mu.Unlock()
	return
}

func (eng *stdEngine) ReadPlaintext(p []byte) (n int, err error) {
	eng.mu.Lock()
	if eng.plain.Len() > 0 {
		n, _ = eng.plain.Read(p)
		eng.mu.Unlock()
		return
	}
	if eng.eof {
		eng.mu.Unlock()
		return
	}
	if eng.fault != nil {
		err = newError(errMetaOpEngine, eng.fault)
		eng.mu.Unlock()
		return
	}
	err = errors.From(ErrNoPlaintext)
	eng.mu.Unlock()
	return
}

func (eng *stdEngine) WritePlaintext(p []byte) (n int, err error) {
	eng.mu.Lock()
	if eng.fault != nil {
		err = newError(errMetaOpEngine, eng.fault)
		eng.mu.Unlock()
		return
	}
	if !eng.handshakeDone {
		err = newError(errMetaOpEngine, errors.From(ErrStalled))
		eng.mu.Unlock()
		return
	}
	eng.mu.Unlock()
	// conn.Write reaches engineConn.Write, which takes the lock itself;
	// it may run concurrently with the record goroutine's conn.Read.
	n, wErr := eng.conn.Write(p)
	if wErr != nil {
		err = newError(errMetaOpEngine, wErr)
	}
	return
}

func (eng *stdEngine) CloseNotify() (err error) {
	if closeErr := eng.conn.CloseWrite(); closeErr != nil {
		err = newError(errMetaOpEngine, closeErr)
	}
	return
}

// Release closes the memory conn so a record goroutine parked waiting for
// ciphertext unwinds. Without it an abruptly closed connection would keep
// the goroutine and the staging buffers alive forever.
func (eng *stdEngine) Release() {
	eng.mu.Lock()
	eng.closed = true
	eng.cond.Broadcast()
	eng.mu.Unlock()
	return
}

func (eng *stdEngine) WantsRead() bool {
	eng.mu.Lock()
	ok := !eng.finished && eng.parked
	eng.mu.Unlock()
	return ok
}

func (eng *stdEngine) WantsWrite() bool {
	eng.mu.Lock()
	ok := eng.outbound.Len() > 0
	eng.mu.Unlock()
	return ok
}

func (eng *stdEngine) IsHandshaking() bool {
	eng.mu.Lock()
	ok := !eng.handshakeDone
	eng.mu.Unlock()
	return ok
}

func (eng *stdEngine) PlaintextAvailable() bool {
	eng.mu.Lock()
	ok := eng.plain.Len() > 0 || eng.eof
	eng.mu.Unlock()
	return ok
}

// engineConn is the memory net.Conn crypto/tls runs over. Reads pull from
// the inbound staging buffer, parking until FeedCiphertext supplies more;
// writes append to the outbound staging buffer and never block.
type engineConn struct {
	eng *stdEngine
}

func (c *engineConn) Read(b []byte) (n int, err error) {
	eng := c.eng
	eng.mu.Lock()
	for eng.inbound.Len() == 0 && !eng.closed {
		eng.parked = true
		eng.cond.Broadcast()
		eng.cond.Wait()
	}
	eng.parked = false
	if eng.inbound.Len() == 0 {
		eng.mu.Unlock()
		err = io.EOF
		return
	}
	n, _ = eng.inbound.Read(b)
	eng.mu.Unlock()
	return
}

func (c *engineConn) Write(b []byte) (n int, err error) {
	eng := c.eng
	eng.mu.Lock()
	if eng.closed {
		eng.mu.Unlock()
		err = io.ErrClosedPipe
		return
	}
	n, _ = eng.outbound.Write(b)
	eng.cond.Broadcast()
	eng.mu.Unlock()
	return
}

func (c *engineConn) Close() error {
	eng := c.eng
	eng.mu.Lock()
	eng.closed = true
	eng.cond.Broadcast()
	eng.mu.Unlock()
	return nil
}

func (c *engineConn) LocalAddr() net.Addr  { return engineAddr{} }
func (c *engineConn) RemoteAddr() net.Addr { return engineAddr{} }

func (c *engineConn) SetDeadline(t time.Time) error      { return nil }
func (c *engineConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *engineConn) SetWriteDeadline(t time.Time) error { return nil }

type engineAddr struct{}

func (engineAddr) Network() string { return "mem" }
func (engineAddr) String() string  { return "engine" }
