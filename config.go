package fedtls

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the static TLS configuration of the process. It is supplied once
// at startup and never mutated.
type Config struct {
	// CertificateChainPath is a PEM file with the leaf certificate first,
	// followed by intermediates.
	CertificateChainPath string
	// DHParamsPath is a PEM file with PKCS #3 DH parameters.
	DHParamsPath string
	// Key is either TLSEnabled or TLSDisabled. A nil Key is treated as
	// TLSDisabled.
	Key KeyMaterial
}

// KeyMaterial is the private key half of Config.
type KeyMaterial interface {
	keyMaterial()
}

// TLSEnabled carries the private key matching the certificate chain. Either
// PrivateKeyPath or PrivateKeyPEM must be set.
type TLSEnabled struct {
	PrivateKeyPath string
	PrivateKeyPEM  []byte
}

// TLSDisabled means TLS is administratively disabled: the context is still
// built, without a private key, and never terminates real traffic.
type TLSDisabled struct{}

func (TLSEnabled) keyMaterial()  {}
func (TLSDisabled) keyMaterial() {}

// TLSDisabled reports whether TLS is administratively disabled.
func (c Config) TLSDisabled() bool {
	_, enabled := c.Key.(TLSEnabled)
	return !enabled
}

func (k TLSEnabled) load() ([]byte, error) {
	if len(k.PrivateKeyPEM) > 0 {
		return k.PrivateKeyPEM, nil
	}
	if k.PrivateKeyPath == "" {
		return nil, fmt.Errorf("%w: missing while tls is enabled", ErrPrivateKey)
	}
	b, err := os.ReadFile(k.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPrivateKey, err)
	}
	return b, nil
}

type fileConfig struct {
	CertificatePath string `yaml:"tls_certificate_path"`
	PrivateKeyPath  string `yaml:"tls_private_key_path"`
	DHParamsPath    string `yaml:"tls_dh_params_path"`
	NoTLS           bool   `yaml:"no_tls"`
}

// LoadConfigFile reads a YAML configuration file:
//
//	tls_certificate_path: /etc/fedtls/example.org.tls.crt
//	tls_private_key_path: /etc/fedtls/example.org.tls.key
//	tls_dh_params_path: /etc/fedtls/example.org.tls.dh
//	no_tls: false
func LoadConfigFile(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return ParseConfig(b)
}

// ParseConfig is like LoadConfigFile with the file content already read.
func ParseConfig(b []byte) (Config, error) {
	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	cfg := Config{
		CertificateChainPath: fc.CertificatePath,
		DHParamsPath:         fc.DHParamsPath,
		Key:                  TLSDisabled{},
	}
	if !fc.NoTLS {
		cfg.Key = TLSEnabled{PrivateKeyPath: fc.PrivateKeyPath}
	}
	return cfg, nil
}
