package fedtls

import (
	"context"
	"fmt"
	"net"
	"slices"
	"strings"
	"time"

	"golang.org/x/crypto/cryptobyte"
)

// ClientHello holds the fields of a ClientHello message (RFC 8446 Section
// 4.1.2) that an inbound server uses to pick a virtual host.
type ClientHello struct {
	LegacyVersion     uint16
	CipherSuites      []uint16
	ServerName        string
	ALPNProtos        []string
	SupportedVersions []uint16
	Extensions        []uint16
}

func (c ClientHello) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "LegacyVersion: 0x%04x\n", c.LegacyVersion)
	fmt.Fprintf(&b, "CipherSuites:\n")
	for _, cs := range c.CipherSuites {
		fmt.Fprintf(&b, "  %s(0x%04x)\n", TLSCipherSuiteString(cs), cs)
	}
	fmt.Fprintf(&b, "ServerName: %s\n", c.ServerName)
	fmt.Fprintf(&b, "ALPNProtos: %q\n", c.ALPNProtos)
	fmt.Fprintf(&b, "Extensions:\n")
	for _, ext := range c.Extensions {
		fmt.Fprintf(&b, "  %s(%d)\n", extensionName(ext), ext)
	}
	return b.String()
}

// PeekClientHello reads the first TLS record from conn and parses the
// ClientHello in it. The returned conn replays that record, so it can be
// handed to [tls.Server] as is.
//
// The ctx is used while reading the ClientHello only.
func PeekClientHello(ctx context.Context, conn net.Conn) (hello *ClientHello, outConn net.Conn, err error) {
	defer func() {
		convertErrorsToAlerts(conn, err)
	}()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-done:
		case <-ctx.Done():
			conn.SetDeadline(time.Now())
		}
	}()
	record, err := readRecord(conn)
	if err != nil {
		return nil, nil, err
	}
	if record[0] != 22 { // TLS Handshake
		return nil, nil, fmt.Errorf("%w: content type %d != 22", ErrUnexpectedMessage, record[0])
	}
	if hello, err = ParseClientHello(record[5:]); err != nil {
		return nil, nil, err
	}
	return hello, &replayConn{Conn: conn, buf: record}, nil
}

type replayConn struct {
	net.Conn
	buf []byte
}

func (c *replayConn) Read(b []byte) (int, error) {
	if len(c.buf) > 0 {
		n := copy(b, c.buf)
		c.buf = c.buf[n:]
		return n, nil
	}
	return c.Conn.Read(b)
}

// ParseClientHello parses a handshake message that must be a ClientHello.
func ParseClientHello(buf []byte) (*ClientHello, error) {
	hello := new(ClientHello)

	// https://datatracker.ietf.org/doc/html/rfc8446#section-4
	//
	// struct {
	//    HandshakeType msg_type;    /* handshake type */
	//    uint24 length;             /* remaining bytes in message */
	//      select (Handshake.msg_type) {
	//          case client_hello:          ClientHello;
	//          ...
	//      };
	// } Handshake;
	s := cryptobyte.String(buf)
	var msgType uint8
	if !s.ReadUint8(&msgType) { // msg_type(1)
		return nil, ErrDecodeError
	}
	if msgType != 0x01 { // ClientHello
		return nil, fmt.Errorf("%w: msg_type 0x%x != 0x01", ErrUnexpectedMessage, msgType)
	}
	var ss cryptobyte.String
	if !s.ReadUint24LengthPrefixed(&ss) {
		return nil, ErrDecodeError
	}
	s = ss

	// https://datatracker.ietf.org/doc/html/rfc8446#section-4.1.2
	//
	//   struct {
	//     ProtocolVersion legacy_version = 0x0303;    /* TLS v1.2 */
	//     Random random;
	//     opaque legacy_session_id<0..32>;
	//     CipherSuite cipher_suites<2..2^16-2>;
	//     opaque legacy_compression_methods<1..2^8-1>;
	//     Extension extensions<8..2^16-1>;
	//   } ClientHello;
	var random []byte
	if !s.ReadUint16(&hello.LegacyVersion) || !s.ReadBytes(&random, 32) {
		return nil, ErrDecodeError
	}
	var v cryptobyte.String
	if !s.ReadUint8LengthPrefixed(&v) { // legacy_session_id
		return nil, ErrDecodeError
	}
	if !s.ReadUint16LengthPrefixed(&v) { // cipher_suites
		return nil, ErrDecodeError
	}
	for !v.Empty() {
		var cs uint16
		if !v.ReadUint16(&cs) {
			return nil, fmt.Errorf("%w: cipher suite", ErrDecodeError)
		}
		hello.CipherSuites = append(hello.CipherSuites, cs)
	}
	if !s.ReadUint8LengthPrefixed(&v) { // legacy_compression_methods
		return nil, ErrDecodeError
	}
	if s.Empty() {
		// Extensions are optional before TLS 1.3.
		return hello, nil
	}
	var extensions cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&extensions) {
		return nil, ErrDecodeError
	}

	// https://datatracker.ietf.org/doc/html/rfc8446#section-4.2
	//
	// struct {
	//     ExtensionType extension_type;
	//     opaque extension_data<0..2^16-1>;
	// } Extension;
	for !extensions.Empty() {
		var extType uint16
		var data cryptobyte.String
		if !extensions.ReadUint16(&extType) || !extensions.ReadUint16LengthPrefixed(&data) {
			return nil, ErrDecodeError
		}
		if slices.Contains(hello.Extensions, extType) {
			return nil, fmt.Errorf("%w: duplicate extension %d", ErrIllegalParameter, extType)
		}
		hello.Extensions = append(hello.Extensions, extType)
		if err := hello.parseExtension(extType, data); err != nil {
			return nil, err
		}
	}
	return hello, nil
}

func (c *ClientHello) parseExtension(extType uint16, data cryptobyte.String) error {
	switch extType {
	case 0:
		// https://datatracker.ietf.org/doc/html/rfc6066#section-3
		// Server Name Indication
		//
		// struct {
		//   NameType name_type;
		//   select (name_type) {
		//       case host_name: HostName;
		//   } name;
		// } ServerName;
		//
		// opaque HostName<1..2^16-1>;
		//
		// struct {
		//   ServerName server_name_list<1..2^16-1>
		// } ServerNameList;
		var serverNameList cryptobyte.String
		if !data.ReadUint16LengthPrefixed(&serverNameList) {
			return fmt.Errorf("%w: serverNameList", ErrDecodeError)
		}
		for !serverNameList.Empty() {
			var nameType uint8
			var hostName cryptobyte.String
			if !serverNameList.ReadUint8(&nameType) {
				return fmt.Errorf("%w: name type", ErrDecodeError)
			}
			if nameType != 0 { // host name
				return fmt.Errorf("%w: invalid nametype 0x%x", ErrIllegalParameter, nameType)
			}
			if !serverNameList.ReadUint16LengthPrefixed(&hostName) || c.ServerName != "" {
				return fmt.Errorf("%w: host name", ErrDecodeError)
			}
			c.ServerName = string(hostName)
		}

	case 16:
		// https://datatracker.ietf.org/doc/html/rfc7301#section-3
		// Application-Layer Protocol Negotiation
		//
		//  opaque ProtocolName<1..2^8-1>;
		//
		//  struct {
		//      ProtocolName protocol_name_list<2..2^16-1>
		//  } ProtocolNameList;
		var protocolNameList cryptobyte.String
		if !data.ReadUint16LengthPrefixed(&protocolNameList) {
			return fmt.Errorf("%w: protocol name list", ErrDecodeError)
		}
		for !protocolNameList.Empty() {
			var protocolName cryptobyte.String
			if !protocolNameList.ReadUint8LengthPrefixed(&protocolName) {
				return fmt.Errorf("%w: protocol name", ErrDecodeError)
			}
			c.ALPNProtos = append(c.ALPNProtos, string(protocolName))
		}

	case 43:
		// struct {
		//   select (Handshake.msg_type) {
		//     case client_hello:
		//       ProtocolVersion versions<2..254>;
		//   };
		// } SupportedVersions;
		var versions cryptobyte.String
		if !data.ReadUint8LengthPrefixed(&versions) {
			return fmt.Errorf("%w: supported versions", ErrDecodeError)
		}
		for !versions.Empty() {
			var v uint16
			if !versions.ReadUint16(&v) {
				return fmt.Errorf("%w: version", ErrDecodeError)
			}
			c.SupportedVersions = append(c.SupportedVersions, v)
		}
	}
	return nil
}
