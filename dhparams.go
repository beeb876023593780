package fedtls

import (
	"encoding/pem"
	"fmt"
	"math/big"
	"os"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// minDHPrimeBits is the smallest prime accepted. Smaller groups are
// rejected at startup.
const minDHPrimeBits = 1024

// DHParams are finite field Diffie-Hellman parameters as specified in
// PKCS #3.
//
//	DHParameter ::= SEQUENCE {
//	  prime INTEGER, -- p
//	  base INTEGER, -- g
//	  privateValueLength INTEGER OPTIONAL }
type DHParams struct {
	P                  *big.Int
	G                  *big.Int
	PrivateValueLength int
}

// BitLen returns the size of the prime.
func (p *DHParams) BitLen() int {
	return p.P.BitLen()
}

// LoadDHParams reads the first DH PARAMETERS block of a PEM file.
func LoadDHParams(path string) (*DHParams, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDHParams, err)
	}
	for {
		var block *pem.Block
		block, b = pem.Decode(b)
		if block == nil {
			return nil, fmt.Errorf("%w: no DH PARAMETERS block in %s", ErrDHParams, path)
		}
		if block.Type == "DH PARAMETERS" {
			return ParseDHParams(block.Bytes)
		}
	}
}

// ParseDHParams decodes DER encoded PKCS #3 parameters.
func ParseDHParams(der []byte) (*DHParams, error) {
	params := &DHParams{
		P: new(big.Int),
		G: new(big.Int),
	}
	input := cryptobyte.String(der)
	var s cryptobyte.String
	if !input.ReadASN1(&s, asn1.SEQUENCE) || !input.Empty() {
		return nil, fmt.Errorf("%w: %w: DHParameter", ErrDHParams, ErrDecodeError)
	}
	if !s.ReadASN1Integer(params.P) {
		return nil, fmt.Errorf("%w: %w: prime", ErrDHParams, ErrDecodeError)
	}
	if !s.ReadASN1Integer(params.G) {
		return nil, fmt.Errorf("%w: %w: base", ErrDHParams, ErrDecodeError)
	}
	if !s.Empty() && !s.ReadASN1Integer(&params.PrivateValueLength) {
		return nil, fmt.Errorf("%w: %w: privateValueLength", ErrDHParams, ErrDecodeError)
	}
	if !s.Empty() {
		return nil, fmt.Errorf("%w: %w: trailing data", ErrDHParams, ErrDecodeError)
	}

	if n := params.P.BitLen(); n < minDHPrimeBits {
		return nil, fmt.Errorf("%w: prime too small (%d bits < %d)", ErrDHParams, n, minDHPrimeBits)
	}
	if params.P.Bit(0) == 0 {
		return nil, fmt.Errorf("%w: prime is even", ErrDHParams)
	}
	pMinusOne := new(big.Int).Sub(params.P, big.NewInt(1))
	if params.G.Cmp(big.NewInt(1)) <= 0 || params.G.Cmp(pMinusOne) >= 0 {
		return nil, fmt.Errorf("%w: %w: generator out of range", ErrDHParams, ErrIllegalParameter)
	}
	if params.PrivateValueLength < 0 || params.PrivateValueLength > params.P.BitLen() {
		return nil, fmt.Errorf("%w: %w: privateValueLength %d", ErrDHParams, ErrIllegalParameter, params.PrivateValueLength)
	}
	return params, nil
}
