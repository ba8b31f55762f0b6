package riotls

import (
	"github.com/brickingsoft/errors"
)

const (
	maxPlaintext    = 16384        // maximum plaintext payload length
	maxCiphertext   = 16384 + 2048 // maximum ciphertext payload length
	recordHeaderLen = 5            // record header length
)

// ownedBuffer is a fixed capacity staging region whose exclusive ownership
// moves between the connection and the transport. While a submission is in
// flight the transport owns the lent window and the connection keeps its
// hands off until the completion calls collect. At most one lend may be
// outstanding.
type ownedBuffer struct {
	storage []byte
	filled  int
	cursor  int
	lent    bool
}

func newOwnedBuffer(capacity int) *ownedBuffer {
	return &ownedBuffer{
		storage: make([]byte, capacity),
	}
}

// writable returns the unfilled tail for staging more bytes, or nil while
// the buffer is lent out.
func (buf *ownedBuffer) writable() (p []byte) {
	if buf.lent {
		return
	}
	p = buf.storage[buf.filled:]
	return
}

func (buf *ownedBuffer) wrote(n int) {
	buf.filled += n
	return
}

// pending is the number of staged bytes not yet handed to the transport.
func (buf *ownedBuffer) pending() (n int) {
	n = buf.filled - buf.cursor
	return
}

// lend transfers the pending window to the transport.
func (buf *ownedBuffer) lend() (p []byte, err error) {
	if buf.lent {
		err = errors.From(ErrBufferLent)
		return
	}
	buf.lent = true
	p = buf.storage[buf.cursor:buf.filled]
	return
}

// collect returns ownership after a completion that wrote n bytes. Once the
// staged bytes are fully drained the buffer rewinds instead of compacting.
func (buf *ownedBuffer) collect(n int) {
	buf.lent = false
	if n > 0 {
		buf.cursor += n
	}
	if buf.cursor >= buf.filled {
		buf.cursor = 0
		buf.filled = 0
	}
	return
}
