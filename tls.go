package fedtls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
)

var (
	ErrCertificateChain = errors.New("certificate chain")
	ErrPrivateKey       = errors.New("private key")
	ErrDHParams         = errors.New("dh parameters")
	ErrUnknownCurve     = errors.New("unknown elliptic curve")
	ErrNoCipherMatch    = errors.New("no cipher match")
	ErrHostnameEncoding = errors.New("hostname encoding")
	ErrTLSDisabled      = errors.New("tls disabled")

	ErrInvalidFormat     = errors.New("invalid format")
	ErrUnexpectedMessage = errors.New("unexpected message")
	ErrIllegalParameter  = errors.New("illegal parameter")
	ErrDecodeError       = errors.New("decode error")

	tlsVersionStrings = map[uint16]string{
		tls.VersionTLS10: "TLSv1",
		tls.VersionTLS11: "TLSv1.1",
		tls.VersionTLS12: "TLSv1.2",
		tls.VersionTLS13: "TLSv1.3",
		0:                "",
	}

	extensionNames = map[uint16]string{
		0:  "server_name",
		10: "supported_groups",
		13: "signature_algorithms",
		16: "application_layer_protocol_negotiation",
		43: "supported_versions",
		51: "key_share",
	}
)

// TLSVersionString returns the OpenSSL style name of a protocol version, or
// TLS_VERSION_UNKNOWN_ddd when the value is not known.
func TLSVersionString(v uint16) string {
	if s, ok := tlsVersionStrings[v]; ok {
		return s
	}
	return fmt.Sprintf("TLS_VERSION_UNKNOWN_%d", v)
}

// TLSCipherSuiteString returns the OpenSSL name of a cipher suite when it is
// part of the suite table, the Go name otherwise.
func TLSCipherSuiteString(id uint16) string {
	if id == 0 {
		return ""
	}
	for _, s := range cipherTable {
		if s.id == id {
			return s.name
		}
	}
	return tls.CipherSuiteName(id)
}

func extensionName(t uint16) string {
	if v, ok := extensionNames[t]; ok {
		return v
	}
	return "unknown"
}

func readRecord(conn net.Conn) ([]byte, error) {
	record := make([]byte, 16389)
	n, err := io.ReadFull(conn, record[:5])
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	if err != nil {
		return record[:n], err
	}
	length := uint32(record[3])<<8 | uint32(record[4])
	if length > 16384 {
		return record[:n], fmt.Errorf("%w: record length %d > 16384", ErrDecodeError, length)
	}
	nn, err := io.ReadFull(conn, record[n:n+int(length)])
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return record[:n+nn], err
}

func convertErrorsToAlerts(conn net.Conn, err error) {
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
	case errors.Is(err, ErrInvalidFormat):
		sendAlert(conn, 0x2 /* fatal */, 0x2F /* Illegal parameter */)
	case errors.Is(err, ErrUnexpectedMessage):
		sendAlert(conn, 0x2 /* fatal */, 0x0a /* Unexpected message */)
	case errors.Is(err, ErrIllegalParameter):
		sendAlert(conn, 0x2 /* fatal */, 0x2F /* Illegal parameter */)
	case errors.Is(err, ErrDecodeError):
		sendAlert(conn, 0x2 /* fatal */, 0x32 /* Decode error */)
	default:
		sendAlert(conn, 0x2 /* fatal */, 0x28 /* Handshake failure */)
	}
}

func sendAlert(w io.WriteCloser, level, description uint8) {
	// https://en.wikipedia.org/wiki/Transport_Layer_Security
	w.Write([]byte{
		0x15,       // alert
		0x03, 0x03, // version TLS 1.2
		0x00, 0x02, // length
		level, description,
	})
	if level == 0x2 {
		w.Close()
	}
}
