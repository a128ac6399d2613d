package der

import "fmt"

// Class is the two-bit tag class of an encoded element.
type Class uint8

const (
	ClassUniversal       Class = 0
	ClassApplication     Class = 1
	ClassContextSpecific Class = 2
	ClassPrivate         Class = 3
)

func (c Class) String() string {
	switch c {
	case ClassUniversal:
		return "universal"
	case ClassApplication:
		return "application"
	case ClassContextSpecific:
		return "context"
	case ClassPrivate:
		return "private"
	default:
		return fmt.Sprintf("class(%d)", uint8(c))
	}
}

// Universal tag numbers used by receipts and PKCS#7 envelopes.
const (
	TagInteger         = 0x02
	TagBitString       = 0x03
	TagOctetString     = 0x04
	TagNull            = 0x05
	TagOID             = 0x06
	TagUTF8String      = 0x0C
	TagSequence        = 0x10
	TagSet             = 0x11
	TagPrintableString = 0x13
	TagIA5String       = 0x16
	TagUTCTime         = 0x17
	TagGeneralizedTime = 0x18
)

// Container is one decoded tag-length-value element. Primitive elements keep
// their content opaque; constructed elements also carry their decoded children.
type Container struct {
	Class       Class
	Constructed bool
	Tag         int
	Content     []byte
	Children    []*Container

	// Offset is the position of the first tag byte in the decoded input and
	// HeaderLen the number of tag and length bytes.
	Offset     int
	HeaderLen  int
	Indefinite bool
}

// EncodedLen is the number of input bytes the container was parsed from.
func (c *Container) EncodedLen() int {
	n := c.HeaderLen + len(c.Content)
	if c.Indefinite {
		n += 2
	}
	return n
}

// Is reports whether the container has the given class and tag number.
func (c *Container) Is(class Class, tag int) bool {
	return c != nil && c.Class == class && c.Tag == tag
}

// IsOID reports whether the container is a universal OBJECT IDENTIFIER.
func (c *Container) IsOID() bool {
	return c.Is(ClassUniversal, TagOID) && !c.Constructed
}

func (c *Container) String() string {
	kind := "primitive"
	if c.Constructed {
		kind = "constructed"
	}
	return fmt.Sprintf("[%s %d %s len=%d children=%d]", c.Class, c.Tag, kind, len(c.Content), len(c.Children))
}
