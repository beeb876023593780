package fedtls

import (
	"context"
	"io"
	"net"
	"strconv"
	"testing"
	"time"
)

func TestDial(t *testing.T) {
	serverCtx, _ := newTestContext(t)
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	defer ln.Close()
	port := strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)

	hellos := make(chan *ClientHello, 1)
	go func() {
		for {
			serverConn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				r := <-serveOnce(serverConn, serverCtx.ServerConfig())
				hellos <- r.hello
			}()
		}
	}()

	logger, _ := newTestLogger()
	f := newTestFactory(t, WithLogger(logger))
	dialer := &Dialer{Factory: f, Timeout: 10 * time.Second}
	conn, err := dialer.Dial(context.Background(), "tcp4", net.JoinHostPort("localhost", port))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if got, want := conn.State(), StateEstablished; got != want {
		t.Errorf("State() = %v, want %v", got, want)
	}
	if hello := <-hellos; hello == nil || hello.ServerName != "localhost" {
		t.Errorf("ClientHello = %v, want SNI localhost", hello)
	}
	if _, err := conn.Write([]byte("Hello!\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	buf := make([]byte, 7)
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got, want := string(buf), "Hello!\n"; got != want {
		t.Errorf("Read = %q, want %q", got, want)
	}
}

func TestDialErrors(t *testing.T) {
	if _, err := (&Dialer{}).Dial(context.Background(), "tcp", "example.org:8448"); err == nil {
		t.Error("Dial without factory succeeded")
	}
	dialer := &Dialer{Factory: newTestFactory(t)}
	if _, err := dialer.Dial(context.Background(), "tcp", "exa mple.org:8448"); err == nil {
		t.Error("Dial with an invalid host name succeeded")
	}

	// Nothing is listening.
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	if _, err := dialer.Dial(context.Background(), "tcp4", addr); err == nil {
		t.Error("Dial to a closed port succeeded")
	}
}

func TestSplitHostPort(t *testing.T) {
	for _, tc := range []struct {
		addr, host, port string
	}{
		{"example.org", "example.org", "8448"},
		{"example.org:443", "example.org", "443"},
		{"[::1]:8449", "::1", "8449"},
		{"[::1]", "::1", "8448"},
		{"bücher.example", "bücher.example", "8448"},
	} {
		host, port := splitHostPort(tc.addr)
		if host != tc.host || port != tc.port {
			t.Errorf("splitHostPort(%q) = %q, %q, want %q, %q", tc.addr, host, port, tc.host, tc.port)
		}
	}
}
