package riotls

// Engine is the TLS record layer state machine a connection drives.
//
// An engine performs no I/O of its own. Ciphertext received from the peer
// is handed in through FeedCiphertext and ciphertext produced by the engine
// is taken out through DrainCiphertext; plaintext moves through
// ReadPlaintext and WritePlaintext. The four predicates report what the
// engine needs next and are the only way its internal progress is
// observable. The connection serializes calls per direction, so
// implementations need not be safe for two concurrent readers or two
// concurrent writers.
type Engine interface {
	// FeedCiphertext appends ciphertext received from the peer and returns
	// how much of it was consumed. Newly decrypted plaintext or newly
	// produced ciphertext, such as a handshake response or an alert,
	// becomes observable through the predicates. A returned error is a
	// protocol fault and is terminal for the session.
	FeedCiphertext(p []byte) (n int, err error)
	// DrainCiphertext copies pending outbound ciphertext into p, removing
	// the copied bytes from the engine's queue.
	DrainCiphertext(p []byte) (n int)
	// ReadPlaintext copies decrypted application bytes into p. It returns
	// (0, nil) only when the peer sent close_notify. When no plaintext is
	// buffered and the peer has not closed, it fails with ErrNoPlaintext
	// and the caller performs ciphertext I/O before retrying.
	ReadPlaintext(p []byte) (n int, err error)
	// WritePlaintext accepts application bytes for encryption. It may
	// accept fewer bytes than offered; the remainder stays untouched in p
	// and is resubmitted by the caller.
	WritePlaintext(p []byte) (n int, err error)
	// CloseNotify queues the close_notify alert. The caller drains and
	// submits it afterwards.
	CloseNotify() (err error)

	// WantsRead reports that the engine needs more ciphertext from the peer.
	WantsRead() bool
	// WantsWrite reports that the engine has ciphertext queued to send.
	WantsWrite() bool
	// IsHandshaking reports that the session is not established yet.
	IsHandshaking() bool
	// PlaintextAvailable reports that ReadPlaintext would yield bytes.
	PlaintextAvailable() bool
}

// EngineReleaser is implemented by engines that hold resources beyond
// plain session state, such as a background record pump. The connection
// releases the engine when the session fails or closes; Release must
// tolerate repeated calls.
type EngineReleaser interface {
	Release()
}
