package fedtls

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptrace"
	"time"

	"github.com/apex/log"
	"github.com/hashicorp/go-retryablehttp"
)

var _ http.RoundTripper = (*Transport)(nil)

// NewTransport returns a Transport that dials peers with f.
func NewTransport(f *ClientCreatorFactory) *Transport {
	t := &Transport{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return nil, errors.New("attempting to dial a plaintext tcp connection")
			},
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
		Dialer: &Dialer{Factory: f},
	}
	t.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return t.Dialer.Dial(ctx, network, addr)
	}
	return t
}

// Transport is a [http.RoundTripper] for federation requests. Every
// connection is a Session from Dialer; plaintext connections are refused.
// [http.Response.TLS] is filled in from the Session, since [http.Transport]
// only does that for a [crypto/tls.Conn].
type Transport struct {
	*http.Transport
	Dialer *Dialer
}

// RoundTrip implements [http.RoundTripper].
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	var session *Session
	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			if s, ok := info.Conn.(*Session); ok {
				session = s
			}
		},
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))
	resp, err := t.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.TLS == nil && session != nil {
		state := session.ConnectionState()
		resp.TLS = &state
	}
	return resp, nil
}

// NewRetryableClient wraps t in a [retryablehttp.Client] that logs with
// logger.
func NewRetryableClient(t *Transport, logger log.Interface) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.HTTPClient.Transport = t
	client.Logger = leveledLogger{logger: logger}
	return client
}

var _ retryablehttp.LeveledLogger = leveledLogger{}

// leveledLogger adapts a [log.Interface] to retryablehttp.
type leveledLogger struct {
	logger log.Interface
}

func (l leveledLogger) entry(keysAndValues []any) *log.Entry {
	fields := log.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return l.logger.WithFields(fields)
}

func (l leveledLogger) Error(msg string, keysAndValues ...any) {
	l.entry(keysAndValues).Error(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...any) {
	l.entry(keysAndValues).Info(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...any) {
	l.entry(keysAndValues).Debug(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...any) {
	l.entry(keysAndValues).Warn(msg)
}
