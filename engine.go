package fedtls

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/apex/log"
)

// TLSConn is the connection an Engine produces. [tls.Conn] implements it.
type TLSConn interface {
	net.Conn
	HandshakeContext(ctx context.Context) error
	ConnectionState() tls.ConnectionState
}

var _ TLSConn = (*tls.Conn)(nil)

// Engine performs the TLS protocol for a Session. Sessions only need an engine
// that accepts a transport conn and a config, so tests can drive them over
// net.Pipe or a recorder.
type Engine interface {
	Client(conn net.Conn, config *tls.Config) TLSConn
}

// StdlibEngine is the crypto/tls engine.
type StdlibEngine struct{}

// Client implements Engine.
func (StdlibEngine) Client(conn net.Conn, config *tls.Config) TLSConn {
	return tls.Client(conn, config)
}

// Option configures BuildContext, BuildClientContext,
// NewClientConnectionCreator and NewClientCreatorFactory.
type Option func(*options)

type options struct {
	logger    log.Interface
	curveName string
	engine    Engine
}

// WithLogger sets the logger. The default is [log.Log].
func WithLogger(logger log.Interface) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithCurveName selects the ECDH curve by name instead of DefaultCurveName.
func WithCurveName(name string) Option {
	return func(o *options) {
		o.curveName = name
	}
}

// WithEngine replaces the crypto/tls engine used by sessions.
func WithEngine(e Engine) Option {
	return func(o *options) {
		o.engine = e
	}
}

func newOptions(opts []Option) options {
	o := options{
		logger:    log.Log,
		curveName: DefaultCurveName,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
