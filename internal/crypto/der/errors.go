package der

import (
	"errors"
	"fmt"
)

var (
	ErrTruncated           = errors.New("der: truncated input")
	ErrLengthOverflow      = errors.New("der: declared length exceeds limits")
	ErrReservedLength      = errors.New("der: reserved length form")
	ErrIndefinitePrimitive = errors.New("der: primitive element with indefinite length")
	ErrMissingEOC          = errors.New("der: missing end-of-contents marker")
	ErrTagOverflow         = errors.New("der: tag number too large")
	ErrTrailingData        = errors.New("der: trailing data after element")
	ErrMaxDepth            = errors.New("der: maximum nesting depth exceeded")
	ErrMaxSize             = errors.New("der: input exceeds maximum size")
	ErrTooManyElements     = errors.New("der: too many elements")
	ErrInvalidOID          = errors.New("der: invalid object identifier")
	ErrInvalidInteger      = errors.New("der: invalid integer")
	ErrInvalidBitRange     = errors.New("der: invalid bit range")
)

// BitRangeError reports a bit range outside 1..8 or with from > to.
type BitRangeError struct {
	From int
	To   int
}

func (e *BitRangeError) Error() string {
	return fmt.Sprintf("der: invalid bit range %d..%d", e.From, e.To)
}

func (e *BitRangeError) Is(target error) bool {
	return target == ErrInvalidBitRange
}

// SyntaxError locates a decoding failure in the input.
type SyntaxError struct {
	Offset int
	Err    error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%v at offset %d", e.Err, e.Offset)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}
