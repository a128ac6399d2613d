package der

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ObjectIdentifier is the dotted-component form of an OID.
type ObjectIdentifier []uint

func (oid ObjectIdentifier) Equal(other ObjectIdentifier) bool {
	if len(oid) != len(other) {
		return false
	}
	for i := range oid {
		if oid[i] != other[i] {
			return false
		}
	}
	return true
}

func (oid ObjectIdentifier) String() string {
	parts := make([]string, len(oid))
	for i, v := range oid {
		parts[i] = strconv.FormatUint(uint64(v), 10)
	}
	return strings.Join(parts, ".")
}

// ParseDotted parses the textual form "1.2.840.113549.1.7.1".
func ParseDotted(s string) (ObjectIdentifier, error) {
	parts := strings.Split(s, ".")
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOID, s)
	}
	oid := make(ObjectIdentifier, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseUint(part, 10, strconv.IntSize)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidOID, s)
		}
		oid[i] = uint(v)
	}
	if oid[0] > 2 || (oid[0] < 2 && oid[1] > 39) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOID, s)
	}
	return oid, nil
}

// ParseOID decodes the content octets of an OBJECT IDENTIFIER. Every
// subidentifier is a base-128 number whose high bit marks continuation; the
// first one packs the two leading arcs as X*40+Y.
func ParseOID(b []byte) (ObjectIdentifier, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidOID)
	}

	var subs []uint
	pos := 0
	for pos < len(b) {
		v, n, err := readBase128(b[pos:])
		if err != nil {
			return nil, err
		}
		subs = append(subs, v)
		pos += n
	}

	first := subs[0]
	oid := make(ObjectIdentifier, 0, len(subs)+1)
	switch {
	case first < 40:
		oid = append(oid, 0, first)
	case first < 80:
		oid = append(oid, 1, first-40)
	default:
		oid = append(oid, 2, first-80)
	}
	return append(oid, subs[1:]...), nil
}

func readBase128(b []byte) (uint, int, error) {
	if b[0] == 0x80 {
		return 0, 0, fmt.Errorf("%w: non-minimal subidentifier", ErrInvalidOID)
	}
	var v uint
	for i := 0; i < len(b); i++ {
		if v > math.MaxUint>>7 {
			return 0, 0, fmt.Errorf("%w: subidentifier overflow", ErrInvalidOID)
		}
		v = v<<7 | uint(b[i]&0x7F)
		if b[i]&0x80 == 0 {
			return v, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: truncated subidentifier", ErrInvalidOID)
}

// KnownOID is a registered identifier with a symbolic name.
type KnownOID struct {
	Name string
	OID  ObjectIdentifier
}

var (
	OIDData                   = ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1}
	OIDSignedData             = ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}
	OIDEnvelopedData          = ObjectIdentifier{1, 2, 840, 113549, 1, 7, 3}
	OIDSignedAndEnvelopedData = ObjectIdentifier{1, 2, 840, 113549, 1, 7, 4}
	OIDDigestedData           = ObjectIdentifier{1, 2, 840, 113549, 1, 7, 5}
	OIDEncryptedData          = ObjectIdentifier{1, 2, 840, 113549, 1, 7, 6}
	OIDSHA1                   = ObjectIdentifier{1, 3, 14, 3, 2, 26}
	OIDSHA256                 = ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
	OIDRSAEncryption          = ObjectIdentifier{1, 2, 840, 113549, 1, 1, 1}
	OIDSHA1WithRSA            = ObjectIdentifier{1, 2, 840, 113549, 1, 1, 5}
	OIDSHA256WithRSA          = ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11}
)

// Registry is the set of identifiers this package knows by name.
var Registry = []KnownOID{
	{Name: "data", OID: OIDData},
	{Name: "signedData", OID: OIDSignedData},
	{Name: "envelopedData", OID: OIDEnvelopedData},
	{Name: "signedAndEnvelopedData", OID: OIDSignedAndEnvelopedData},
	{Name: "digestedData", OID: OIDDigestedData},
	{Name: "encryptedData", OID: OIDEncryptedData},
	{Name: "sha1", OID: OIDSHA1},
	{Name: "sha256", OID: OIDSHA256},
	{Name: "rsaEncryption", OID: OIDRSAEncryption},
	{Name: "sha1WithRSAEncryption", OID: OIDSHA1WithRSA},
	{Name: "sha256WithRSAEncryption", OID: OIDSHA256WithRSA},
}

// Match returns the registry entry equal to oid.
func Match(oid ObjectIdentifier, registry []KnownOID) (KnownOID, bool) {
	for _, k := range registry {
		if k.OID.Equal(oid) {
			return k, true
		}
	}
	return KnownOID{}, false
}
