package riotls

import (
	"github.com/brickingsoft/errors"
)

var (
	ErrClosed        = errors.Define("use of closed connection")
	ErrBusy          = errors.Define("operation already in flight")
	ErrEmptyBytes    = errors.Define("empty bytes")
	ErrUnexpectedEOF = errors.Define("transport closed without close_notify")
	ErrNoPlaintext   = errors.Define("no plaintext available")
	ErrStalled       = errors.Define("engine made no progress")
	ErrBufferLent    = errors.Define("buffer is owned by the transport")
)

func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}

func IsUnexpectedEOF(err error) bool {
	return errors.Is(err, ErrUnexpectedEOF)
}

func IsNoPlaintext(err error) bool {
	return errors.Is(err, ErrNoPlaintext)
}

const (
	errMetaPkgKey = "pkg"
	errMetaPkgVal = "riotls"
)

const (
	errMetaOpKey        = "op"
	errMetaOpHandshake  = "handshake"
	errMetaOpRead       = "read"
	errMetaOpWrite      = "write"
	errMetaOpFlush      = "flush"
	errMetaOpCloseWrite = "close_write"
	errMetaOpEngine     = "engine"
)

func newError(op string, cause error) error {
	return errors.New(
		op+" failed",
		errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		errors.WithMeta(errMetaOpKey, op),
		errors.WithWrap(cause),
	)
}
