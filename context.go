package fedtls

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"slices"

	"github.com/apex/log"
)

// ProtocolOptions are the protocol restrictions of a Context, named after the
// OpenSSL flags they stand for.
type ProtocolOptions uint32

const (
	OpNoSSLv2 ProtocolOptions = 1 << iota
	OpNoSSLv3
)

// Context is a TLS context: protocol restrictions, cipher policy, ECDH curve
// and key material. It is immutable once built and safe to share between all
// connections of the process.
type Context struct {
	protocolOptions ProtocolOptions
	minVersion      uint16
	cipherList      string
	cipherSuites    []uint16
	curve           tls.CurveID
	hasCurve        bool
	cert            tls.Certificate
	hasKey          bool
	dh              *DHParams
	config          *tls.Config
	engine          Engine
}

// BuildContext builds the server context from cfg. A certificate chain, DH
// parameters or (when TLS is enabled) a private key that cannot be loaded is
// a fatal error. Failing to select the ECDH curve is logged and the context is
// built without it.
func BuildContext(cfg Config, opts ...Option) (*Context, error) {
	o := newOptions(opts)
	c := newContext(o)

	chainPEM, chain, err := loadCertificateChain(cfg.CertificateChainPath)
	if err != nil {
		return nil, err
	}
	if k, ok := cfg.Key.(TLSEnabled); ok {
		keyPEM, err := k.load()
		if err != nil {
			return nil, err
		}
		if c.cert, err = tls.X509KeyPair(chainPEM, keyPEM); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPrivateKey, err)
		}
		c.hasKey = true
	} else {
		c.cert = chain
	}
	if c.dh, err = LoadDHParams(cfg.DHParamsPath); err != nil {
		return nil, err
	}
	if err := c.setCipherList(CipherList); err != nil {
		return nil, err
	}
	if c.hasKey {
		c.config.Certificates = []tls.Certificate{c.cert}
	}

	metricContextsBuilt.WithLabelValues("server").Inc()
	o.logger.WithFields(log.Fields{
		"ciphers": len(c.cipherSuites),
		"curve":   c.curveName(),
		"dh":      c.dh.BitLen(),
		"tls":     c.hasKey,
	}).Debug("tls server context ready")
	return c, nil
}

// BuildClientContext builds a context for outbound connections. It has the
// same protocol, curve and cipher policy as the server context, no key
// material, and never verifies the identity of the peer.
func BuildClientContext(opts ...Option) (*Context, error) {
	o := newOptions(opts)
	c := newContext(o)
	if err := c.setCipherList(CipherList); err != nil {
		return nil, err
	}
	metricContextsBuilt.WithLabelValues("client").Inc()
	o.logger.WithFields(log.Fields{
		"ciphers": len(c.cipherSuites),
		"curve":   c.curveName(),
	}).Debug("tls client context ready")
	return c, nil
}

func newContext(o options) *Context {
	c := &Context{
		protocolOptions: OpNoSSLv2 | OpNoSSLv3,
		minVersion:      tls.VersionTLS10,
		engine:          o.engine,
	}
	if c.engine == nil {
		c.engine = StdlibEngine{}
	}
	c.config = &tls.Config{
		MinVersion: c.minVersion,
	}

	id, err := LookupCurve(o.curveName)
	if err != nil {
		metricCurveSelectionFailures.Inc()
		o.logger.WithError(err).WithField("curve", o.curveName).Error("failed to enable elliptic curve for TLS")
		return c
	}
	c.curve, c.hasCurve = id, true
	c.config.CurvePreferences = []tls.CurveID{id}
	return c
}

func (c *Context) setCipherList(str string) error {
	suites, err := ParseCipherList(str)
	if err != nil {
		return err
	}
	c.cipherList = str
	c.cipherSuites = suites
	c.config.CipherSuites = slices.Clone(suites)
	return nil
}

func (c *Context) curveName() string {
	if !c.hasCurve {
		return "none"
	}
	return c.curve.String()
}

// ProtocolOptions returns the protocol restrictions. OpNoSSLv2 and OpNoSSLv3
// are always set.
func (c *Context) ProtocolOptions() ProtocolOptions {
	return c.protocolOptions
}

// MinVersion returns the oldest protocol version the context accepts.
func (c *Context) MinVersion() uint16 {
	return c.minVersion
}

// CipherList returns the cipher policy string exactly as it was applied.
func (c *Context) CipherList() string {
	return c.cipherList
}

// CipherSuites returns the TLS 1.0-1.2 suites selected by CipherList.
func (c *Context) CipherSuites() []uint16 {
	return slices.Clone(c.cipherSuites)
}

// Curve returns the ECDH curve. ok is false when curve selection failed.
func (c *Context) Curve() (id tls.CurveID, ok bool) {
	return c.curve, c.hasCurve
}

// Certificate returns the loaded certificate chain, with its private key
// when TLS is enabled.
func (c *Context) Certificate() tls.Certificate {
	cert := c.cert
	cert.Certificate = slices.Clone(cert.Certificate)
	return cert
}

// HasPrivateKey reports whether a private key was loaded.
func (c *Context) HasPrivateKey() bool {
	return c.hasKey
}

// DHParams returns a copy of the loaded DH parameters, or nil for a client
// context.
func (c *Context) DHParams() *DHParams {
	if c.dh == nil {
		return nil
	}
	return &DHParams{
		P:                  new(big.Int).Set(c.dh.P),
		G:                  new(big.Int).Set(c.dh.G),
		PrivateValueLength: c.dh.PrivateValueLength,
	}
}

// ServerConfig returns a new [tls.Config] for terminating inbound
// connections.
func (c *Context) ServerConfig() *tls.Config {
	return c.config.Clone()
}

// ClientConfig returns a new [tls.Config] for outbound connections. It never
// verifies the peer's certificate chain or host name and carries no server
// name; sessions set the server name at handshake start.
func (c *Context) ClientConfig() *tls.Config {
	config := c.config.Clone()
	config.InsecureSkipVerify = true
	config.ServerName = ""
	return config
}

// NewListener returns a listener that terminates TLS on the connections
// accepted by inner.
func (c *Context) NewListener(inner net.Listener) (net.Listener, error) {
	if !c.hasKey {
		return nil, ErrTLSDisabled
	}
	return tls.NewListener(inner, c.ServerConfig()), nil
}

func loadCertificateChain(path string) ([]byte, tls.Certificate, error) {
	var cert tls.Certificate
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, cert, fmt.Errorf("%w: %w", ErrCertificateChain, err)
	}
	rest := b
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		if _, err := x509.ParseCertificate(block.Bytes); err != nil {
			return nil, cert, fmt.Errorf("%w: %w", ErrCertificateChain, err)
		}
		cert.Certificate = append(cert.Certificate, block.Bytes)
	}
	if len(cert.Certificate) == 0 {
		return nil, cert, fmt.Errorf("%w: no certificate in %s", ErrCertificateChain, path)
	}
	if cert.Leaf, err = x509.ParseCertificate(cert.Certificate[0]); err != nil {
		return nil, cert, fmt.Errorf("%w: %w", ErrCertificateChain, err)
	}
	return b, cert, nil
}
