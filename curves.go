package fedtls

import (
	"crypto/tls"
	"fmt"
)

// DefaultCurveName is the curve used for ephemeral ECDH unless WithCurveName
// says otherwise.
const DefaultCurveName = "prime256v1"

var namedCurves = map[string]tls.CurveID{
	"prime256v1": tls.CurveP256,
	"secp256r1":  tls.CurveP256,
	"P-256":      tls.CurveP256,
	"secp384r1":  tls.CurveP384,
	"P-384":      tls.CurveP384,
	"secp521r1":  tls.CurveP521,
	"P-521":      tls.CurveP521,
	"X25519":     tls.X25519,
}

// LookupCurve returns the curve the engine knows by name, using OpenSSL or
// NIST names.
func LookupCurve(name string) (tls.CurveID, error) {
	if id, ok := namedCurves[name]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCurve, name)
}
