// Package riotls runs TLS sessions over rio's completion based transport.
//
// rio hands buffer ownership to the kernel for the duration of every read
// and write and returns it with the completion. riotls keeps that model
// intact: the record layer engine stays a pure state machine, ciphertext
// moves through explicitly owned staging buffers, and every operation is a
// future that resolves when the underlying completions arrive.
//
//	ts, _ := ... // a transport.Connection
//	conn := riotls.Client(ts, config)
//	conn.Handshake().OnComplete(func(ctx context.Context, _ async.Void, cause error) {
//		...
//	})
package riotls

import (
	"crypto/tls"

	"github.com/brickingsoft/rio/transport"
)

type ConnectionBuilder interface {
	Client(ts transport.Connection) Connection
	Server(ts transport.Connection) Connection
}

// NewConnectionBuilder builds connections backed by crypto/tls. The config
// carries all policy: certificates, roots, cipher suites, server name.
func NewConnectionBuilder(config *tls.Config) ConnectionBuilder {
	return &defaultConnectionBuilder{
		config: config,
	}
}

type defaultConnectionBuilder struct {
	config *tls.Config
}

func (builder *defaultConnectionBuilder) Client(ts transport.Connection) Connection {
	return New(ts, NewClientEngine(builder.config))
}

func (builder *defaultConnectionBuilder) Server(ts transport.Connection) Connection {
	return New(ts, NewServerEngine(builder.config))
}

// Client wraps ts as the client side of a TLS session.
func Client(ts transport.Connection, config *tls.Config) Connection {
	return New(ts, NewClientEngine(config))
}

// Server wraps ts as the server side of a TLS session.
func Server(ts transport.Connection, config *tls.Config) Connection {
	return New(ts, NewServerEngine(config))
}
