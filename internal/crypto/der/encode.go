package der

import "fmt"

// Marshal encodes a single definite-length element.
func Marshal(class Class, constructed bool, tag int, content []byte) []byte {
	id := byte(class) << 6
	if constructed {
		id |= 0x20
	}
	var head []byte
	if tag < longFormTag {
		head = []byte{id | byte(tag)}
	} else {
		head = append([]byte{id | longFormTag}, encodeBase128(uint(tag))...)
	}
	head = append(head, encodeLength(len(content))...)

	out := make([]byte, 0, len(head)+len(content))
	out = append(out, head...)
	return append(out, content...)
}

func encodeLength(length int) []byte {
	if length < 0x80 {
		return []byte{byte(length)}
	}
	var tmp [8]byte
	i := len(tmp)
	for v := length; v > 0; v >>= 8 {
		i--
		tmp[i] = byte(v)
	}
	n := len(tmp) - i
	out := make([]byte, 1+n)
	out[0] = byte(0x80 | n)
	copy(out[1:], tmp[i:])
	return out
}

func encodeBase128(v uint) []byte {
	if v == 0 {
		return []byte{0}
	}
	var tmp [10]byte
	i := len(tmp)
	for last := true; v > 0; last = false {
		i--
		tmp[i] = byte(v & 0x7F)
		if !last {
			tmp[i] |= 0x80
		}
		v >>= 7
	}
	return append([]byte(nil), tmp[i:]...)
}

func join(parts [][]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func MarshalSequence(children ...[]byte) []byte {
	return Marshal(ClassUniversal, true, TagSequence, join(children))
}

func MarshalSet(children ...[]byte) []byte {
	return Marshal(ClassUniversal, true, TagSet, join(children))
}

// MarshalExplicit wraps inner in a constructed context-specific tag.
func MarshalExplicit(tag int, inner []byte) []byte {
	return Marshal(ClassContextSpecific, true, tag, inner)
}

func MarshalOctetString(b []byte) []byte {
	return Marshal(ClassUniversal, false, TagOctetString, b)
}

func MarshalUTF8String(s string) []byte {
	return Marshal(ClassUniversal, false, TagUTF8String, []byte(s))
}

func MarshalIA5String(s string) []byte {
	return Marshal(ClassUniversal, false, TagIA5String, []byte(s))
}

// MarshalInt encodes v as a minimal two's-complement INTEGER.
func MarshalInt(v int64) []byte {
	var content []byte
	for i := 7; i >= 0; i-- {
		content = append(content, byte(v>>(uint(i)*8)))
	}
	for len(content) > 1 &&
		((content[0] == 0x00 && content[1]&0x80 == 0) ||
			(content[0] == 0xFF && content[1]&0x80 != 0)) {
		content = content[1:]
	}
	return Marshal(ClassUniversal, false, TagInteger, content)
}

func MarshalOID(oid ObjectIdentifier) ([]byte, error) {
	if len(oid) < 2 || oid[0] > 2 || (oid[0] < 2 && oid[1] > 39) {
		return nil, fmt.Errorf("%w: cannot encode %s", ErrInvalidOID, oid)
	}
	content := encodeBase128(oid[0]*40 + oid[1])
	for _, v := range oid[2:] {
		content = append(content, encodeBase128(v)...)
	}
	return Marshal(ClassUniversal, false, TagOID, content), nil
}
