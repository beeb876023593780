// Package testutil writes the certificate, key and DH parameter files a TLS
// context is built from.
package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// modp2048 is the 2048-bit MODP group prime from RFC 3526 Section 3.
const modp2048 = `
	FFFFFFFF FFFFFFFF C90FDAA2 2168C234 C4C6628B 80DC1CD1
	29024E08 8A67CC74 020BBEA6 3B139B22 514A0879 8E3404DD
	EF9519B3 CD3A431B 302B0A6D F25F1437 4FE1356D 6D51C245
	E485B576 625E7EC6 F44C42E9 A637ED6B 0BFF5CB6 F406B7ED
	EE386BFB 5A899FA5 AE9F2411 7C4B1FE6 49286651 ECE45B3D
	C2007CB8 A163BF05 98DA4836 1C55D39A 69163FA8 FD24CF5F
	83655D23 DCA3AD96 1C62F356 208552BB 9ED52907 7096966D
	670C354E 4ABC9804 F1746C08 CA18217C 32905E46 2E36CE3B
	E39E772C 180E8603 9B2783A2 EC07A28F B5C55DF0 6F4C52C9
	DE2BCBF6 95581718 3995497C EA956AE5 15D22618 98FA0510
	15728E5A 8AACAA68 FFFFFFFF FFFFFFFF`

// NewCert returns a self-signed certificate for names, valid for ten years.
func NewCert(names ...string) (tls.Certificate, error) {
	now := time.Now()
	return NewCertWithValidity(now, now.Add(3650*24*time.Hour), names...)
}

// NewCertWithValidity is like NewCert with an explicit validity period.
func NewCertWithValidity(notBefore, notAfter time.Time, names ...string) (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("ecdsa.GenerateKey: %w", err)
	}
	templ := &x509.Certificate{
		SerialNumber:          big.NewInt(notBefore.UnixNano()),
		Issuer:                pkix.Name{CommonName: names[0]},
		Subject:               pkix.Name{CommonName: names[0]},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              names,
	}
	b, err := x509.CreateCertificate(rand.Reader, templ, templ, key.Public(), key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("x509.CreateCertificate: %w", err)
	}
	cert, err := x509.ParseCertificate(b)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("x509.ParseCertificate: %w", err)
	}
	return tls.Certificate{
		Certificate: [][]byte{b},
		PrivateKey:  key,
		Leaf:        cert,
	}, nil
}

// DHParamsDER returns PKCS #3 parameters with the RFC 3526 2048-bit prime and
// generator 2.
func DHParamsDER() []byte {
	p, ok := new(big.Int).SetString(strings.Join(strings.Fields(modp2048), ""), 16)
	if !ok {
		panic("invalid modp2048 prime")
	}
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1BigInt(p)
		b.AddASN1BigInt(big.NewInt(2))
	})
	return b.BytesOrPanic()
}

// Files are the paths of the PEM files written by WriteFiles.
type Files struct {
	Dir          string
	ChainPath    string
	KeyPath      string
	DHParamsPath string
	Cert         tls.Certificate
}

// WriteFiles writes cert, its private key and DH parameters in a new
// temporary directory.
func WriteFiles(t *testing.T, cert tls.Certificate) Files {
	t.Helper()
	dir := t.TempDir()
	f := Files{
		Dir:          dir,
		ChainPath:    filepath.Join(dir, "tls.crt"),
		KeyPath:      filepath.Join(dir, "tls.key"),
		DHParamsPath: filepath.Join(dir, "tls.dh"),
		Cert:         cert,
	}
	var chain []byte
	for _, der := range cert.Certificate {
		chain = append(chain, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})...)
	}
	key, err := x509.MarshalPKCS8PrivateKey(cert.PrivateKey)
	if err != nil {
		t.Fatalf("x509.MarshalPKCS8PrivateKey: %v", err)
	}
	WriteFile(t, f.ChainPath, chain)
	WriteFile(t, f.KeyPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: key}))
	WriteFile(t, f.DHParamsPath, pem.EncodeToMemory(&pem.Block{Type: "DH PARAMETERS", Bytes: DHParamsDER()}))
	return f
}

// NewFiles is NewCert followed by WriteFiles.
func NewFiles(t *testing.T, names ...string) Files {
	t.Helper()
	cert, err := NewCert(names...)
	if err != nil {
		t.Fatalf("NewCert: %v", err)
	}
	return WriteFiles(t, cert)
}

// WriteFile writes b to path or fails the test.
func WriteFile(t *testing.T, path string, b []byte) {
	t.Helper()
	if err := os.WriteFile(path, b, 0o600); err != nil {
		t.Fatalf("os.WriteFile: %v", err)
	}
}
