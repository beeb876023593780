package fedtls

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/apex/log"
)

func TestTransport(t *testing.T) {
	serverCtx, _ := newTestContext(t)
	inner, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	ln, err := serverCtx.NewListener(inner)
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	defer ln.Close()
	port := strconv.Itoa(inner.Addr().(*net.TCPAddr).Port)

	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			defer req.Body.Close()
			if req.TLS == nil {
				http.Error(w, "not TLS", http.StatusBadRequest)
				return
			}
			fmt.Fprintf(w, "%s %s: ServerName:%s\n", req.Method, req.RequestURI, req.TLS.ServerName)
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go server.Serve(ln)
	defer server.Close()

	logger, h := newTestLogger()
	f := newTestFactory(t, WithLogger(logger))
	transport := NewTransport(f)
	client := NewRetryableClient(transport, logger)
	client.RetryMax = 0

	for _, tc := range []struct {
		host string
		want string
	}{
		{"localhost", "GET /_matrix/key/v2/server: ServerName:localhost\n"},
		{"127.0.0.1", "GET /_matrix/key/v2/server: ServerName:\n"},
	} {
		url := "https://" + net.JoinHostPort(tc.host, port) + "/_matrix/key/v2/server"
		resp, err := client.Get(url)
		if err != nil {
			t.Fatalf("Get(%q): %v", url, err)
		}
		if resp.TLS == nil || !resp.TLS.HandshakeComplete {
			t.Errorf("Get(%q) TLS = %v, want a completed handshake", url, resp.TLS)
		} else {
			if got, want := len(resp.TLS.PeerCertificates), 1; got != want {
				t.Errorf("len(PeerCertificates) = %d, want %d", got, want)
			}
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("Body: %v", err)
		}
		if got := string(body); got != tc.want {
			t.Errorf("Get(%q) = %q, want %q", url, got, tc.want)
		}
	}

	var found bool
	for _, e := range logEntries(h, log.DebugLevel) {
		if e.Message == "performing request" && e.Fields["method"] == "GET" {
			found = true
		}
	}
	if !found {
		t.Error("retryablehttp request not logged")
	}
}

func TestTransportRefusesPlaintext(t *testing.T) {
	logger, h := newTestLogger()
	transport := NewTransport(newTestFactory(t))
	client := NewRetryableClient(transport, logger)
	client.RetryMax = 0

	_, err := client.Get("http://127.0.0.1:1/")
	if err == nil || !strings.Contains(err.Error(), "plaintext") {
		t.Fatalf("Get() = %v, want plaintext error", err)
	}
	if errs := logEntries(h, log.ErrorLevel); len(errs) == 0 || errs[0].Message != "request failed" {
		t.Errorf("request failure not logged: %v", errs)
	}
}
