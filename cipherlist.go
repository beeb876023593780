package fedtls

import (
	"crypto/tls"
	"fmt"
	"slices"
	"strings"
)

// CipherList is the cipher policy applied to every context. It excludes
// anonymous DH and ECDH and keeps high strength suites with ephemeral key
// exchange. Peers depend on the exact string, so it must not be rewritten.
const CipherList = "!ADH:HIGH+kEDH:!AECDH:HIGH+kEECDH"

// cipherSpec describes a TLS 1.0-1.2 cipher suite implemented by crypto/tls
// with the attributes OpenSSL cipher strings select on.
type cipherSpec struct {
	name     string
	id       uint16
	kx       string
	au       string
	enc      string
	bits     int
	mac      string
	strength string
	tls12    bool
}

// cipherTable is in preference order. OpenSSL appends matches in its own
// default order; this is ours.
//
// crypto/tls implements no finite field DHE and no anonymous suites, so kEDH,
// ADH and AECDH select nothing here.
var cipherTable = []cipherSpec{
	{"ECDHE-ECDSA-AES128-GCM-SHA256", tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256, "kEECDH", "aECDSA", "AESGCM", 128, "AEAD", "HIGH", true},
	{"ECDHE-RSA-AES128-GCM-SHA256", tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256, "kEECDH", "aRSA", "AESGCM", 128, "AEAD", "HIGH", true},
	{"ECDHE-ECDSA-AES256-GCM-SHA384", tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384, "kEECDH", "aECDSA", "AESGCM", 256, "AEAD", "HIGH", true},
	{"ECDHE-RSA-AES256-GCM-SHA384", tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384, "kEECDH", "aRSA", "AESGCM", 256, "AEAD", "HIGH", true},
	{"ECDHE-ECDSA-CHACHA20-POLY1305", tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256, "kEECDH", "aECDSA", "CHACHA20", 256, "AEAD", "HIGH", true},
	{"ECDHE-RSA-CHACHA20-POLY1305", tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256, "kEECDH", "aRSA", "CHACHA20", 256, "AEAD", "HIGH", true},
	{"ECDHE-ECDSA-AES128-SHA256", tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256, "kEECDH", "aECDSA", "AES", 128, "SHA256", "HIGH", true},
	{"ECDHE-RSA-AES128-SHA256", tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA256, "kEECDH", "aRSA", "AES", 128, "SHA256", "HIGH", true},
	{"ECDHE-ECDSA-AES128-SHA", tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA, "kEECDH", "aECDSA", "AES", 128, "SHA1", "HIGH", false},
	{"ECDHE-RSA-AES128-SHA", tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA, "kEECDH", "aRSA", "AES", 128, "SHA1", "HIGH", false},
	{"ECDHE-ECDSA-AES256-SHA", tls.TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA, "kEECDH", "aECDSA", "AES", 256, "SHA1", "HIGH", false},
	{"ECDHE-RSA-AES256-SHA", tls.TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA, "kEECDH", "aRSA", "AES", 256, "SHA1", "HIGH", false},
	{"AES128-GCM-SHA256", tls.TLS_RSA_WITH_AES_128_GCM_SHA256, "kRSA", "aRSA", "AESGCM", 128, "AEAD", "HIGH", true},
	{"AES256-GCM-SHA384", tls.TLS_RSA_WITH_AES_256_GCM_SHA384, "kRSA", "aRSA", "AESGCM", 256, "AEAD", "HIGH", true},
	{"AES128-SHA256", tls.TLS_RSA_WITH_AES_128_CBC_SHA256, "kRSA", "aRSA", "AES", 128, "SHA256", "HIGH", true},
	{"AES128-SHA", tls.TLS_RSA_WITH_AES_128_CBC_SHA, "kRSA", "aRSA", "AES", 128, "SHA1", "HIGH", false},
	{"AES256-SHA", tls.TLS_RSA_WITH_AES_256_CBC_SHA, "kRSA", "aRSA", "AES", 256, "SHA1", "HIGH", false},
	{"ECDHE-RSA-DES-CBC3-SHA", tls.TLS_ECDHE_RSA_WITH_3DES_EDE_CBC_SHA, "kEECDH", "aRSA", "3DES", 112, "SHA1", "MEDIUM", false},
	{"DES-CBC3-SHA", tls.TLS_RSA_WITH_3DES_EDE_CBC_SHA, "kRSA", "aRSA", "3DES", 112, "SHA1", "MEDIUM", false},
	{"ECDHE-ECDSA-RC4-SHA", tls.TLS_ECDHE_ECDSA_WITH_RC4_128_SHA, "kEECDH", "aECDSA", "RC4", 128, "SHA1", "LOW", false},
	{"ECDHE-RSA-RC4-SHA", tls.TLS_ECDHE_RSA_WITH_RC4_128_SHA, "kEECDH", "aRSA", "RC4", 128, "SHA1", "LOW", false},
	{"RC4-SHA", tls.TLS_RSA_WITH_RC4_128_SHA, "kRSA", "aRSA", "RC4", 128, "SHA1", "LOW", false},
}

// matches reports whether s belongs to the OpenSSL cipher alias a. Unknown
// aliases match nothing, as in OpenSSL.
func (s cipherSpec) matches(a string) bool {
	switch a {
	case "ALL":
		return true
	case "HIGH", "MEDIUM", "LOW":
		return s.strength == a
	case "kRSA", "RSA":
		return s.kx == "kRSA"
	case "kEECDH", "kECDHE", "EECDH", "ECDHE":
		return s.kx == "kEECDH" && s.au != "aNULL"
	case "kEDH", "kDHE", "EDH", "DHE":
		return s.kx == "kEDH" && s.au != "aNULL"
	case "aRSA", "aECDSA", "aNULL":
		return s.au == a
	case "ECDSA":
		return s.au == "aECDSA"
	case "ADH":
		return s.kx == "kEDH" && s.au == "aNULL"
	case "AECDH":
		return s.kx == "kEECDH" && s.au == "aNULL"
	case "AESGCM", "CHACHA20", "3DES", "RC4":
		return s.enc == a
	case "AES":
		return s.enc == "AES" || s.enc == "AESGCM"
	case "AES128":
		return (s.enc == "AES" || s.enc == "AESGCM") && s.bits == 128
	case "AES256":
		return (s.enc == "AES" || s.enc == "AESGCM") && s.bits == 256
	case "SHA1", "SHA":
		return s.mac == "SHA1"
	case "SHA256", "SHA384":
		return strings.HasSuffix(s.name, "-"+a)
	case "AEAD":
		return s.mac == "AEAD"
	case "TLSv1.2":
		return s.tls12
	case "TLSv1", "TLSv1.0", "SSLv3":
		return !s.tls12
	}
	return s.name == a
}

// ParseCipherList evaluates an OpenSSL cipher string against the suites
// crypto/tls implements and returns their IDs in the resulting order.
//
// Supported syntax: elements separated by ':', ',' or ' '; a leading '!'
// removes matches permanently, '-' removes them, '+' moves them to the end;
// selectors joined with '+' must all match; "@STRENGTH" sorts by key size.
// TLS 1.3 suites are not affected, matching OpenSSL's set_cipher_list.
func ParseCipherList(str string) ([]uint16, error) {
	var active []int
	killed := make(map[int]bool)

	for _, elem := range strings.FieldsFunc(str, func(r rune) bool {
		return r == ':' || r == ',' || r == ' '
	}) {
		if elem == "@STRENGTH" {
			slices.SortStableFunc(active, func(a, b int) int {
				return cipherTable[b].bits - cipherTable[a].bits
			})
			continue
		}
		if strings.HasPrefix(elem, "@") {
			return nil, fmt.Errorf("%w: unsupported command %q", ErrInvalidFormat, elem)
		}
		op := elem[0]
		switch op {
		case '!', '-', '+':
			elem = elem[1:]
		default:
			op = 0
		}
		if elem == "" {
			return nil, fmt.Errorf("%w: empty cipher element", ErrInvalidFormat)
		}
		selectors := strings.Split(elem, "+")
		var matched []int
		for i, s := range cipherTable {
			ok := true
			for _, sel := range selectors {
				if !s.matches(sel) {
					ok = false
					break
				}
			}
			if ok {
				matched = append(matched, i)
			}
		}

		switch op {
		case '!':
			for _, i := range matched {
				killed[i] = true
			}
			active = slices.DeleteFunc(active, func(i int) bool { return killed[i] })
		case '-':
			active = slices.DeleteFunc(active, func(i int) bool { return slices.Contains(matched, i) })
		case '+':
			var moved []int
			active = slices.DeleteFunc(active, func(i int) bool {
				if slices.Contains(matched, i) {
					moved = append(moved, i)
					return true
				}
				return false
			})
			active = append(active, moved...)
		default:
			for _, i := range matched {
				if !killed[i] && !slices.Contains(active, i) {
					active = append(active, i)
				}
			}
		}
	}
	if len(active) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoCipherMatch, str)
	}
	ids := make([]uint16, 0, len(active))
	for _, i := range active {
		ids = append(ids, cipherTable[i].id)
	}
	return ids, nil
}
