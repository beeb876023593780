package fedtls

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/crypto/cryptobyte"
)

// clientHelloRecord returns the first record written by a crypto/tls client.
func clientHelloRecord(t *testing.T, config *tls.Config) []byte {
	t.Helper()
	conn := newFakeConn(nil)
	tls.Client(conn, config).Handshake()
	b := conn.Writer.(*bytes.Buffer).Bytes()
	if len(b) < 5 {
		t.Fatalf("client wrote %d bytes", len(b))
	}
	n := 5 + (int(b[3])<<8 | int(b[4]))
	if len(b) < n {
		t.Fatalf("client wrote %d bytes, want %d", len(b), n)
	}
	return b[:n]
}

func TestPeekClientHello(t *testing.T) {
	record := clientHelloRecord(t, &tls.Config{
		ServerName:         "matrix.example.org",
		NextProtos:         []string{"h2", "http/1.1"},
		InsecureSkipVerify: true,
	})
	in := append(bytes.Clone(record), "trailing data"...)
	hello, conn, err := PeekClientHello(context.Background(), newFakeConn(in))
	if err != nil {
		t.Fatalf("PeekClientHello: %v", err)
	}
	if got, want := hello.ServerName, "matrix.example.org"; got != want {
		t.Errorf("ServerName = %q, want %q", got, want)
	}
	if diff := cmp.Diff([]string{"h2", "http/1.1"}, hello.ALPNProtos); diff != "" {
		t.Errorf("ALPNProtos mismatch (-want +got):\n%s", diff)
	}
	if hello.SupportedVersions[0] != tls.VersionTLS13 {
		t.Errorf("SupportedVersions = %x", hello.SupportedVersions)
	}
	if got, want := hello.LegacyVersion, uint16(tls.VersionTLS12); got != want {
		t.Errorf("LegacyVersion = %x, want %x", got, want)
	}
	if hello.String() == "" {
		t.Error("String() is empty")
	}

	replayed, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(replayed, in) {
		t.Error("replayed conn does not return the original bytes")
	}
}

func TestPeekClientHelloErrors(t *testing.T) {
	record := clientHelloRecord(t, &tls.Config{ServerName: "example.org"})

	notHandshake := bytes.Clone(record)
	notHandshake[0] = 23

	notClientHello := bytes.Clone(record)
	notClientHello[5] = 2

	tooLong := bytes.Clone(record)
	tooLong[3], tooLong[4] = 0x40, 0x01

	for _, tc := range []struct {
		name  string
		in    []byte
		err   error
		alert []byte
	}{
		{"empty", nil, io.EOF, nil},
		{"truncated", record[:len(record)-1], io.EOF, nil},
		{"application data", notHandshake, ErrUnexpectedMessage, []byte{0x15, 3, 3, 0, 2, 2, 0x0a}},
		{"server hello", notClientHello, ErrUnexpectedMessage, []byte{0x15, 3, 3, 0, 2, 2, 0x0a}},
		{"record too long", tooLong, ErrDecodeError, []byte{0x15, 3, 3, 0, 2, 2, 0x32}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			conn := newFakeConn(tc.in)
			_, _, err := PeekClientHello(context.Background(), conn)
			if !errors.Is(err, tc.err) {
				t.Fatalf("PeekClientHello() = %v, want %v", err, tc.err)
			}
			if got := conn.Writer.(*bytes.Buffer).Bytes(); !bytes.Equal(got, tc.alert) {
				t.Errorf("alert = %x, want %x", got, tc.alert)
			}
			if got, want := conn.closed, tc.alert != nil; got != want {
				t.Errorf("closed = %v, want %v", got, want)
			}
		})
	}
}

func handshakeMessage(extensions func(b *cryptobyte.Builder)) []byte {
	b := cryptobyte.NewBuilder(nil)
	b.AddUint8(1) // client_hello
	b.AddUint24LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddUint16(0x0303)
		b.AddBytes(make([]byte, 32))
		b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {})
		b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddUint16(tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256)
		})
		b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddUint8(0)
		})
		if extensions != nil {
			b.AddUint16LengthPrefixed(extensions)
		}
	})
	return b.BytesOrPanic()
}

func addServerName(b *cryptobyte.Builder, nameType uint8, name string) {
	b.AddUint16(0)
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddUint8(nameType)
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddBytes([]byte(name))
			})
		})
	})
}

func TestParseClientHello(t *testing.T) {
	hello, err := ParseClientHello(handshakeMessage(nil))
	if err != nil {
		t.Fatalf("ParseClientHello: %v", err)
	}
	want := &ClientHello{
		LegacyVersion: 0x0303,
		CipherSuites:  []uint16{tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256},
	}
	if diff := cmp.Diff(want, hello); diff != "" {
		t.Errorf("ParseClientHello() mismatch (-want +got):\n%s", diff)
	}

	hello, err = ParseClientHello(handshakeMessage(func(b *cryptobyte.Builder) {
		addServerName(b, 0, "xn--bcher-kva.example")
		b.AddUint16(0xff01) // renegotiation_info
		b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddUint8(0)
		})
	}))
	if err != nil {
		t.Fatalf("ParseClientHello: %v", err)
	}
	if got, want := hello.ServerName, "xn--bcher-kva.example"; got != want {
		t.Errorf("ServerName = %q, want %q", got, want)
	}
	if diff := cmp.Diff([]uint16{0, 0xff01}, hello.Extensions); diff != "" {
		t.Errorf("Extensions mismatch (-want +got):\n%s", diff)
	}

	for _, tc := range []struct {
		name string
		in   []byte
		err  error
	}{
		{"empty", nil, ErrDecodeError},
		{"server hello", append([]byte{2}, handshakeMessage(nil)[1:]...), ErrUnexpectedMessage},
		{"truncated", handshakeMessage(nil)[:20], ErrDecodeError},
		{
			"duplicate extension",
			handshakeMessage(func(b *cryptobyte.Builder) {
				addServerName(b, 0, "a.example.org")
				addServerName(b, 0, "b.example.org")
			}),
			ErrIllegalParameter,
		},
		{
			"bad name type",
			handshakeMessage(func(b *cryptobyte.Builder) {
				addServerName(b, 1, "a.example.org")
			}),
			ErrIllegalParameter,
		},
	} {
		if _, err := ParseClientHello(tc.in); !errors.Is(err, tc.err) {
			t.Errorf("%s: ParseClientHello() = %v, want %v", tc.name, err, tc.err)
		}
	}
}
