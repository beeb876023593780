package fedtls

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// DefaultPort is the federation port used when an address has no port.
const DefaultPort = "8448"

// Dialer connects to federation peers: it opens a TCP connection, gets a
// creator for the host from Factory and drives the session's handshake.
type Dialer struct {
	// Factory must be set. It provides the creator for each attempt.
	Factory *ClientCreatorFactory
	// Timeout is the amount of time to wait for the connection and the
	// handshake. The default value is 30s.
	Timeout time.Duration
	// NetDialer is used to open the transport connection. If nil, a zero
	// [net.Dialer] is used.
	NetDialer *net.Dialer
}

// Dial connects to addr, which is "host" or "host:port", and returns a session
// whose handshake has completed.
func (d *Dialer) Dial(ctx context.Context, network, addr string) (*Session, error) {
	if d.Factory == nil {
		return nil, errors.New("dialer has no factory")
	}
	host, port := splitHostPort(addr)
	creator, err := d.Factory.Creator(host)
	if err != nil {
		return nil, err
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	netDialer := d.NetDialer
	if netDialer == nil {
		netDialer = &net.Dialer{}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	conn, err := netDialer.DialContext(ctx, network, net.JoinHostPort(host, port))
	if err != nil {
		return nil, err
	}
	session := creator.ClientConnectionForTLS(conn)
	if err := session.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return session, nil
}

// splitHostPort splits addr, using DefaultPort when addr has no port.
func splitHostPort(addr string) (host, port string) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return strings.Trim(addr, "[]"), DefaultPort
	}
	return host, port
}
