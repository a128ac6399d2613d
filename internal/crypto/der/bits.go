package der

// Bits returns the inclusive bit range from..to of b, right-justified.
// Bits are numbered as in X.690: 1 is the least significant bit and 8 the most
// significant one.
func Bits(b byte, from, to int) (byte, error) {
	if from < 1 || to > 8 || from > to {
		return 0, &BitRangeError{From: from, To: to}
	}
	width := uint(to - from + 1)
	mask := byte((1 << width) - 1)
	return (b >> uint(from-1)) & mask, nil
}

// Identifier octet layout.
const (
	classFrom, classTo             = 7, 8
	constructedFrom, constructedTo = 6, 6
	numberFrom, numberTo           = 1, 5

	longFormTag = 0x1F
)

// splitIdentifier breaks the first identifier octet into class, constructed
// flag and low tag number.
func splitIdentifier(b byte) (Class, bool, int) {
	class, _ := Bits(b, classFrom, classTo)
	constructed, _ := Bits(b, constructedFrom, constructedTo)
	number, _ := Bits(b, numberFrom, numberTo)
	return Class(class), constructed == 1, int(number)
}

// splitLength reports whether the first length octet uses the long form and
// the value of its low seven bits.
func splitLength(b byte) (bool, int) {
	long, _ := Bits(b, 8, 8)
	value, _ := Bits(b, 1, 7)
	return long == 1, int(value)
}
