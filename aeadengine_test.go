package riotls_test

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"sync"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/riotls"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// aeadEngine is a scripted riotls.Engine with a real seal: the handshake is
// a plain exchange of 32 byte randoms, record keys come from HKDF over a
// shared secret and every record is chacha20poly1305 sealed. A flipped bit
// in transit fails authentication exactly like a real record layer, which
// is what the corruption tests need. A zero length record is the close
// signal.
type aeadEngine struct {
	mu sync.Mutex

	client bool
	ready  bool
	eof    bool
	fault  error

	localRand []byte
	peerRand  []byte

	seal    cipher.AEAD
	open    cipher.AEAD
	sendSeq uint64
	recvSeq uint64

	wire  bytes.Buffer // received bytes pending record parse
	out   bytes.Buffer // bytes queued for the peer
	plain bytes.Buffer // opened application data

	writeCap int // clamp for short write tests, 0 means none
}

var aeadEngineSecret = []byte("riotls-aead-engine-shared-secret")

var errBadRecord = errors.Define("record authentication failed")

func newAEADEngine(client bool) *aeadEngine {
	eng := &aeadEngine{
		client:    client,
		localRand: make([]byte, 32),
	}
	_, _ = rand.Read(eng.localRand)
	if client {
		// client speaks first
		eng.out.Write(eng.localRand)
	}
	return eng
}

func (eng *aeadEngine) derive() error {
	var salt []byte
	if eng.client {
		salt = append(append([]byte{}, eng.localRand...), eng.peerRand...)
	} else {
		salt = append(append([]byte{}, eng.peerRand...), eng.localRand...)
	}
	c2s := make([]byte, chacha20poly1305.KeySize)
	s2c := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, aeadEngineSecret, salt, []byte("c2s")), c2s); err != nil {
		return err
	}
	if _, err := io.ReadFull(hkdf.New(sha256.New, aeadEngineSecret, salt, []byte("s2c")), s2c); err != nil {
		return err
	}
	sealKey, openKey := c2s, s2c
	if !eng.client {
		sealKey, openKey = s2c, c2s
	}
	var err error
	if eng.seal, err = chacha20poly1305.New(sealKey); err != nil {
		return err
	}
	if eng.open, err = chacha20poly1305.New(openKey); err != nil {
		return err
	}
	return nil
}

func (eng *aeadEngine) FeedCiphertext(p []byte) (n int, err error) {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	if eng.fault != nil {
		err = eng.fault
		return
	}
	n = len(p)
	eng.wire.Write(p)
	if !eng.ready {
		if eng.wire.Len() < 32 {
			return
		}
		eng.peerRand = make([]byte, 32)
		_, _ = eng.wire.Read(eng.peerRand)
		if deriveErr := eng.derive(); deriveErr != nil {
			eng.fault = deriveErr
			err = deriveErr
			return
		}
		if !eng.client {
			// answer with the server random
			eng.out.Write(eng.localRand)
		}
		eng.ready = true
	}
	err = eng.parseRecords()
	return
}

func (eng *aeadEngine) parseRecords() (err error) {
	for {
		header := eng.wire.Bytes()
		if len(header) < 2 {
			return
		}
		size := int(binary.BigEndian.Uint16(header))
		if len(header) < 2+size {
			return
		}
		record := make([]byte, 2+size)
		_, _ = eng.wire.Read(record)
		nonce := make([]byte, chacha20poly1305.NonceSize)
		binary.LittleEndian.PutUint64(nonce[4:], eng.recvSeq)
		eng.recvSeq++
		opened, openErr := eng.open.Open(nil, nonce, record[2:], nil)
		if openErr != nil {
			eng.fault = errors.From(errBadRecord)
			err = eng.fault
			return
		}
		if len(opened) == 0 {
			eng.eof = true
			return
		}
		eng.plain.Write(opened)
	}
}

func (eng *aeadEngine) DrainCiphertext(p []byte) (n int) {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	if eng.out.Len() == 0 {
		return
	}
	n, _ = eng.out.Read(p)
	return
}

func (eng *aeadEngine) ReadPlaintext(p []byte) (n int, err error) {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	if eng.plain.Len() > 0 {
		n, _ = eng.plain.Read(p)
		return
	}
	if eng.eof {
		return
	}
	if eng.fault != nil {
		err = eng.fault
		return
	}
	err = errors.From(riotls.ErrNoPlaintext)
	return
}

func (eng *aeadEngine) WritePlaintext(p []byte) (n int, err error) {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	if eng.fault != nil {
		err = eng.fault
		return
	}
	if !eng.ready {
		err = errors.From(riotls.ErrStalled)
		return
	}
	n = len(p)
	if eng.writeCap > 0 && n > eng.writeCap {
		n = eng.writeCap
	}
	eng.sealRecord(p[:n])
	return
}

func (eng *aeadEngine) CloseNotify() (err error) {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	if eng.fault != nil {
		err = eng.fault
		return
	}
	eng.sealRecord(nil)
	return
}

func (eng *aeadEngine) sealRecord(p []byte) {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.LittleEndian.PutUint64(nonce[4:], eng.sendSeq)
	eng.sendSeq++
	sealed := eng.seal.Seal(nil, nonce, p, nil)
	header := make([]byte, 2)
	binary.BigEndian.PutUint16(header, uint16(len(sealed)))
	eng.out.Write(header)
	eng.out.Write(sealed)
	return
}

func (eng *aeadEngine) WantsRead() bool {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	return !eng.ready || eng.fault == nil && !eng.eof && eng.plain.Len() == 0
}

func (eng *aeadEngine) WantsWrite() bool {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	return eng.out.Len() > 0
}

func (eng *aeadEngine) IsHandshaking() bool {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	return !eng.ready
}

func (eng *aeadEngine) PlaintextAvailable() bool {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	return eng.plain.Len() > 0 || eng.eof
}
