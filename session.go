package fedtls

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apex/log"
)

var _ net.Conn = (*Session)(nil)

// SessionState is the lifecycle of an outbound session.
//
//	StateCreated -> StateAwaitingHandshakeStart -> StateSNISent -> StateEstablished
//	                                                            \-> StateFailed
//
// StateSNISent is skipped when the server name could not be set. The terminal
// states are decided by the engine.
type SessionState int32

const (
	StateCreated SessionState = iota
	StateAwaitingHandshakeStart
	StateSNISent
	StateEstablished
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateAwaitingHandshakeStart:
		return "awaiting handshake start"
	case StateSNISent:
		return "sni sent"
	case StateEstablished:
		return "established"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("SessionState(%d)", int32(s))
	}
}

// Phase is the point of the handshake an InfoCallback is invoked at.
type Phase int

const (
	PhaseHandshakeStart Phase = 1 << iota
	PhaseHandshakeDone
)

func (p Phase) String() string {
	switch p {
	case PhaseHandshakeStart:
		return "handshake start"
	case PhaseHandshakeDone:
		return "handshake done"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// InfoCallback is invoked synchronously, on the goroutine driving the
// handshake, when the session reaches a Phase.
type InfoCallback func(s *Session, where Phase) error

// Session is one outbound TLS connection. It is created by
// [ClientConnectionCreator.ClientConnectionForTLS] and driven by the network
// layer: the handshake runs on the first call to HandshakeContext, Read or
// Write. The transport conn is owned by the caller.
type Session struct {
	conn     net.Conn
	config   *tls.Config
	engine   Engine
	logger   log.Interface
	callback InfoCallback
	state    atomic.Int32

	once sync.Once
	err  error

	mu         sync.Mutex
	tlsConn    TLSConn
	closed     bool
	serverName string
}

func newSession(conn net.Conn, config *tls.Config, engine Engine, logger log.Interface) *Session {
	s := &Session{
		conn:   conn,
		config: config,
		engine: engine,
		logger: logger,
	}
	s.state.Store(int32(StateCreated))
	return s
}

// SetInfoCallback registers cb. Errors returned by cb, and panics inside it,
// are logged and never reach the caller driving the handshake.
func (s *Session) SetInfoCallback(cb InfoCallback) {
	s.callback = tolerateErrors(s.logger, cb)
}

// SetServerName sets the server_name extension sent in the ClientHello. It
// only succeeds once, before the engine has started the handshake.
func (s *Session) SetServerName(name []byte) error {
	if len(name) == 0 {
		return fmt.Errorf("%w: empty server name", ErrIllegalParameter)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tlsConn != nil || s.closed {
		return fmt.Errorf("server name cannot be set after the handshake started")
	}
	if !s.state.CompareAndSwap(int32(StateAwaitingHandshakeStart), int32(StateSNISent)) {
		return fmt.Errorf("server name cannot be set in state %q", s.State())
	}
	s.serverName = string(name)
	s.config.ServerName = s.serverName
	metricSNISent.Inc()
	return nil
}

// ServerName returns the server name sent, or will be sent, in the
// ClientHello.
func (s *Session) ServerName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverName
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// HandshakeContext runs the handshake if it hasn't already run. The
// handshake start callback fires first, exactly once. Concurrent callers wait
// for the first one and get its result.
func (s *Session) HandshakeContext(ctx context.Context) error {
	s.once.Do(func() {
		if s.isClosed() {
			s.fail(net.ErrClosed)
			return
		}
		if s.callback != nil {
			s.callback(s, PhaseHandshakeStart)
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			s.fail(net.ErrClosed)
			return
		}
		s.tlsConn = s.engine.Client(s.conn, s.config)
		sni := s.serverName
		s.mu.Unlock()

		s.logger.Debugf("tls {sni=%s next=%+v}...", sni, s.config.NextProtos)
		start := time.Now()
		err := s.tlsConn.HandshakeContext(ctx)
		elapsed := time.Since(start)
		if err != nil {
			s.logger.Debugf("tls {sni=%s next=%+v}... %s in %s", sni, s.config.NextProtos, err, elapsed)
			s.fail(err)
			return
		}
		state := s.tlsConn.ConnectionState()
		s.logger.Debugf("tls {sni=%s next=%+v}... ok in %s {next=%s cipher=%s v=%s}",
			sni, s.config.NextProtos, elapsed, state.NegotiatedProtocol,
			TLSCipherSuiteString(state.CipherSuite), TLSVersionString(state.Version))
		s.state.Store(int32(StateEstablished))

		if s.callback != nil {
			s.callback(s, PhaseHandshakeDone)
		}
	})
	return s.err
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) fail(err error) {
	s.err = err
	s.state.Store(int32(StateFailed))
}

// ConnectionState returns the engine's connection state. It is the zero
// value until the handshake has run.
func (s *Session) ConnectionState() tls.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tlsConn == nil {
		return tls.ConnectionState{}
	}
	return s.tlsConn.ConnectionState()
}

// NetConn returns the transport conn.
func (s *Session) NetConn() net.Conn {
	return s.conn
}

func (s *Session) Read(b []byte) (int, error) {
	if err := s.HandshakeContext(context.Background()); err != nil {
		return 0, err
	}
	return s.tlsConn.Read(b)
}

func (s *Session) Write(b []byte) (int, error) {
	if err := s.HandshakeContext(context.Background()); err != nil {
		return 0, err
	}
	return s.tlsConn.Write(b)
}

// Close closes the TLS connection, or the transport conn when the handshake
// hasn't started.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.tlsConn != nil {
		return s.tlsConn.Close()
	}
	return s.conn.Close()
}

func (s *Session) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

func (s *Session) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

func (s *Session) SetDeadline(t time.Time) error {
	return s.conn.SetDeadline(t)
}

func (s *Session) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

func (s *Session) SetWriteDeadline(t time.Time) error {
	return s.conn.SetWriteDeadline(t)
}

// ErrCallbackPanic is logged when an InfoCallback panics.
var ErrCallbackPanic = errors.New("panic in tls info callback")

// tolerateErrors wraps cb so that nothing it does can abort the handshake or
// crash the goroutine driving it.
func tolerateErrors(logger log.Interface, cb InfoCallback) InfoCallback {
	return func(s *Session, where Phase) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", ErrCallbackPanic, r)
			}
			if err != nil {
				metricCallbackErrors.Inc()
				logger.WithError(err).WithField("where", where.String()).Error("error during tls info callback")
			}
			err = nil
		}()
		return cb(s, where)
	}
}
