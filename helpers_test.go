package fedtls

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/memory"

	"github.com/c2FmZQ/fedtls/testutil"
)

func newTestLogger() (*log.Logger, *memory.Handler) {
	h := memory.New()
	return &log.Logger{Handler: h, Level: log.DebugLevel}, h
}

// logEntries returns the messages logged at level.
func logEntries(h *memory.Handler, level log.Level) []*log.Entry {
	var out []*log.Entry
	for _, e := range h.Entries {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

func newTestContext(t *testing.T, opts ...Option) (*Context, testutil.Files) {
	t.Helper()
	files := testutil.NewFiles(t, "example.org", "matrix.example.org")
	ctx, err := BuildContext(Config{
		CertificateChainPath: files.ChainPath,
		DHParamsPath:         files.DHParamsPath,
		Key:                  TLSEnabled{PrivateKeyPath: files.KeyPath},
	}, opts...)
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	return ctx, files
}

// tcpPipe returns both ends of a loopback TCP connection. Unlike net.Pipe,
// writes are buffered, so a TLS 1.3 server can send its whole first flight.
func tcpPipe(t *testing.T) (client, server net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	defer ln.Close()
	ch := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			t.Logf("Accept: %v", err)
		}
		ch <- conn
	}()
	client, err = net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("net.Dial: %v", err)
	}
	server = <-ch
	if server == nil {
		t.Fatal("no server conn")
	}
	return client, server
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("os.ReadFile: %v", err)
	}
	return b
}

// peekResult is what the server side of a pipe saw.
type peekResult struct {
	hello *ClientHello
	err   error
}

// serveOnce terminates TLS on conn with config after recording the
// ClientHello. A nil config only records the ClientHello and closes conn.
func serveOnce(conn net.Conn, config *tls.Config) <-chan peekResult {
	ch := make(chan peekResult, 1)
	go func() {
		defer conn.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		hello, replay, err := PeekClientHello(ctx, conn)
		ch <- peekResult{hello: hello, err: err}
		if err != nil || config == nil {
			return
		}
		server := tls.Server(replay, config)
		if err := server.HandshakeContext(ctx); err != nil {
			return
		}
		io.Copy(server, server)
	}()
	return ch
}

// recordingEngine remembers the server name each conn was created with.
type recordingEngine struct {
	mu    sync.Mutex
	names []string
}

func (e *recordingEngine) Client(conn net.Conn, config *tls.Config) TLSConn {
	e.mu.Lock()
	e.names = append(e.names, config.ServerName)
	e.mu.Unlock()
	return tls.Client(conn, config)
}

func (e *recordingEngine) serverNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.names...)
}

func newFakeConn(in []byte) *fakeConn {
	return &fakeConn{
		Reader: bytes.NewBuffer(in),
		Writer: bytes.NewBuffer(nil),
	}
}

type fakeConn struct {
	io.Reader
	io.Writer
	closed bool
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func (*fakeConn) SetReadDeadline(t time.Time) error {
	return nil
}

func (*fakeConn) SetWriteDeadline(t time.Time) error {
	return nil
}

func (*fakeConn) SetDeadline(t time.Time) error {
	return nil
}

func (*fakeConn) LocalAddr() net.Addr {
	return &net.TCPAddr{}
}

func (*fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{}
}
