package fedtls

import (
	"errors"
	"fmt"
	"net"

	"github.com/apex/log"

	"github.com/c2FmZQ/fedtls/internal/idnax"
)

// ClientConnectionCreator creates outbound sessions to one host. The host
// name is sent with SNI so the peer can select a virtual host, but the
// peer's certificate is never verified: trust in federation peers is
// established above this layer.
type ClientConnectionCreator struct {
	hostname      string
	hostnameBytes []byte
	ctx           *Context
	engine        Engine
	logger        log.Interface
	infoCallback  InfoCallback

	// sendServerName is (*Session).SetServerName outside of tests.
	sendServerName func(s *Session, name []byte) error
}

// NewClientConnectionCreator returns a creator for hostname. The host name is
// IDNA encoded here, and an error wrapping ErrHostnameEncoding is returned if
// that fails. IP literals are kept as is; crypto/tls never sends them with
// SNI.
func NewClientConnectionCreator(hostname string, ctx *Context, opts ...Option) (*ClientConnectionCreator, error) {
	if ctx == nil {
		return nil, errors.New("nil tls context")
	}
	o := newOptions(opts)
	ascii := hostname
	var err error
	if net.ParseIP(hostname) == nil {
		ascii, err = idnax.ToASCII(hostname)
	}
	if err == nil && ascii == "" {
		err = errors.New("empty host name")
	}
	if err != nil {
		metricHostnameEncodingErrors.Inc()
		return nil, fmt.Errorf("%w: %q: %w", ErrHostnameEncoding, hostname, err)
	}
	c := &ClientConnectionCreator{
		hostname:       hostname,
		hostnameBytes:  []byte(ascii),
		ctx:            ctx,
		engine:         ctx.engine,
		logger:         o.logger,
		sendServerName: (*Session).SetServerName,
	}
	if o.engine != nil {
		c.engine = o.engine
	}
	c.infoCallback = c.serverNameInfoCallback
	return c, nil
}

// Hostname returns the host name as given to NewClientConnectionCreator.
func (c *ClientConnectionCreator) Hostname() string {
	return c.hostname
}

// ServerName returns the encoded host name sent with SNI.
func (c *ClientConnectionCreator) ServerName() string {
	return string(c.hostnameBytes)
}

// ClientConnectionForTLS returns a new session over conn. Nothing is read or
// written until the session's handshake runs.
func (c *ClientConnectionCreator) ClientConnectionForTLS(conn net.Conn) *Session {
	s := newSession(conn, c.ctx.ClientConfig(), c.engine, c.logger.WithField("host", c.ServerName()))
	s.SetInfoCallback(c.infoCallback)
	s.state.Store(int32(StateAwaitingHandshakeStart))
	metricSessionsCreated.Inc()
	return s
}

// serverNameInfoCallback sets SNI at handshake start and nothing else. The
// peer's certificate is never looked at.
func (c *ClientConnectionCreator) serverNameInfoCallback(s *Session, where Phase) error {
	if where&PhaseHandshakeStart != 0 {
		return c.sendServerName(s, c.hostnameBytes)
	}
	return nil
}

// ClientCreatorFactory hands out a ClientConnectionCreator per outbound
// connection attempt. All creators share one client context that skips
// identity verification.
type ClientCreatorFactory struct {
	ctx  *Context
	opts []Option
}

// NewClientCreatorFactory builds the shared client context. cfg is not used
// yet; per-host policy will come from it.
func NewClientCreatorFactory(cfg Config, opts ...Option) (*ClientCreatorFactory, error) {
	ctx, err := BuildClientContext(opts...)
	if err != nil {
		return nil, err
	}
	return &ClientCreatorFactory{
		ctx:  ctx,
		opts: opts,
	}, nil
}

// Creator returns a new creator for host. The only possible error is a host
// name that cannot be encoded.
func (f *ClientCreatorFactory) Creator(host string) (*ClientConnectionCreator, error) {
	return NewClientConnectionCreator(host, f.ctx, f.opts...)
}

// Context returns the client context shared by the creators.
func (f *ClientCreatorFactory) Context() *Context {
	return f.ctx
}
