package der

import (
	"fmt"
	"unicode/utf8"
)

// ParseInt decodes two's-complement INTEGER content of at most eight bytes.
func ParseInt(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, fmt.Errorf("%w: empty", ErrInvalidInteger)
	}
	if len(b) > 8 {
		return 0, fmt.Errorf("%w: %d bytes", ErrInvalidInteger, len(b))
	}
	var v int64
	for _, octet := range b {
		v = v<<8 | int64(octet)
	}
	// Sign-extend.
	shift := uint(64 - 8*len(b))
	return v << shift >> shift, nil
}

// Int decodes c as a universal INTEGER.
func (c *Container) Int() (int64, error) {
	if !c.Is(ClassUniversal, TagInteger) || c.Constructed {
		return 0, fmt.Errorf("%w: unexpected element %s", ErrInvalidInteger, c)
	}
	return ParseInt(c.Content)
}

// Text decodes c as one of the universal character string types used in
// receipts.
func (c *Container) Text() (string, error) {
	if c.Class != ClassUniversal || c.Constructed {
		return "", fmt.Errorf("der: unexpected string element %s", c)
	}
	switch c.Tag {
	case TagUTF8String:
		if !utf8.Valid(c.Content) {
			return "", fmt.Errorf("der: invalid UTF-8 string")
		}
		return string(c.Content), nil
	case TagIA5String, TagPrintableString:
		for _, b := range c.Content {
			if b > 0x7F {
				return "", fmt.Errorf("der: non-ASCII byte in string")
			}
		}
		return string(c.Content), nil
	default:
		return "", fmt.Errorf("der: unexpected string tag %d", c.Tag)
	}
}

// OID decodes c as a universal OBJECT IDENTIFIER.
func (c *Container) OID() (ObjectIdentifier, error) {
	if !c.IsOID() {
		return nil, fmt.Errorf("%w: unexpected element %s", ErrInvalidOID, c)
	}
	return ParseOID(c.Content)
}
