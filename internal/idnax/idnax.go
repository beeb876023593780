// Package idnax encodes internationalized domain names for the TLS
// server_name extension.
package idnax

import "golang.org/x/net/idna"

// ToASCII converts a domain name to its ASCII compatible encoding using the
// lookup profile, which is what a client must put on the wire.
func ToASCII(domain string) (string, error) {
	return idna.Lookup.ToASCII(domain)
}
