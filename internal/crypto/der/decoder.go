package der

import "math"

// Default ceilings. The encoding itself bounds neither nesting nor element
// count, so every decode runs under explicit limits.
const (
	DefaultMaxDepth    = 32
	DefaultMaxSize     = 4 << 20
	DefaultMaxElements = 1 << 18
)

// Decoder decodes BER/DER tag-length-value trees under fixed limits.
// A Decoder is immutable and safe for concurrent use.
type Decoder struct {
	maxDepth    int
	maxSize     int
	maxElements int
}

type Option func(*Decoder)

// WithMaxDepth bounds the nesting depth; the outermost element has depth 1.
func WithMaxDepth(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.maxDepth = n
		}
	}
}

// WithMaxSize bounds the input length in bytes.
func WithMaxSize(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.maxSize = n
		}
	}
}

// WithMaxElements bounds the number of containers produced by one call.
func WithMaxElements(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.maxElements = n
		}
	}
}

func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{
		maxDepth:    DefaultMaxDepth,
		maxSize:     DefaultMaxSize,
		maxElements: DefaultMaxElements,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var defaultDecoder = NewDecoder()

// Decode decodes exactly one element spanning all of b with default limits.
func Decode(b []byte) (*Container, error) {
	return defaultDecoder.Decode(b)
}

// DecodeAll decodes a concatenation of elements with default limits.
func DecodeAll(b []byte) ([]*Container, error) {
	return defaultDecoder.DecodeAll(b)
}

// Decode decodes exactly one element spanning all of b. Container content
// slices alias b.
func (d *Decoder) Decode(b []byte) (*Container, error) {
	p, err := d.newParser(b)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, &SyntaxError{Offset: 0, Err: ErrTruncated}
	}
	c, err := p.parseElement(1)
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.b) {
		return nil, &SyntaxError{Offset: p.pos, Err: ErrTrailingData}
	}
	return c, nil
}

// DecodeAll decodes consecutive elements until b is exhausted. An empty input
// yields no elements.
func (d *Decoder) DecodeAll(b []byte) ([]*Container, error) {
	p, err := d.newParser(b)
	if err != nil {
		return nil, err
	}
	var out []*Container
	for p.remaining() > 0 {
		c, err := p.parseElement(1)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (d *Decoder) newParser(b []byte) (*parser, error) {
	if len(b) > d.maxSize {
		return nil, &SyntaxError{Offset: 0, Err: ErrMaxSize}
	}
	return &parser{
		b:           b,
		maxDepth:    d.maxDepth,
		maxElements: d.maxElements,
		elements:    new(int),
	}, nil
}

type parser struct {
	b    []byte
	pos  int
	base int

	maxDepth    int
	maxElements int
	elements    *int
}

func (p *parser) remaining() int {
	return len(p.b) - p.pos
}

func (p *parser) fail(at int, err error) error {
	return &SyntaxError{Offset: p.base + at, Err: err}
}

func (p *parser) parseElement(depth int) (*Container, error) {
	start := p.pos
	if depth > p.maxDepth {
		return nil, p.fail(start, ErrMaxDepth)
	}
	*p.elements++
	if *p.elements > p.maxElements {
		return nil, p.fail(start, ErrTooManyElements)
	}

	class, constructed, tag, err := p.readTag()
	if err != nil {
		return nil, err
	}
	length, indefinite, err := p.readLength()
	if err != nil {
		return nil, err
	}

	c := &Container{
		Class:       class,
		Constructed: constructed,
		Tag:         tag,
		Offset:      p.base + start,
		HeaderLen:   p.pos - start,
		Indefinite:  indefinite,
	}

	if indefinite {
		if !constructed {
			return nil, p.fail(start, ErrIndefinitePrimitive)
		}
		contentStart := p.pos
		for {
			if p.remaining() < 2 {
				return nil, p.fail(p.pos, ErrMissingEOC)
			}
			if p.b[p.pos] == 0x00 && p.b[p.pos+1] == 0x00 {
				c.Content = p.b[contentStart:p.pos]
				p.pos += 2
				return c, nil
			}
			child, err := p.parseElement(depth + 1)
			if err != nil {
				return nil, err
			}
			c.Children = append(c.Children, child)
		}
	}

	if p.remaining() < length {
		return nil, p.fail(p.pos, ErrTruncated)
	}
	contentStart := p.pos
	c.Content = p.b[contentStart : contentStart+length]
	p.pos += length

	if constructed {
		sub := &parser{
			b:           c.Content,
			base:        p.base + contentStart,
			maxDepth:    p.maxDepth,
			maxElements: p.maxElements,
			elements:    p.elements,
		}
		for sub.remaining() > 0 {
			child, err := sub.parseElement(depth + 1)
			if err != nil {
				return nil, err
			}
			c.Children = append(c.Children, child)
		}
	}
	return c, nil
}

func (p *parser) readTag() (Class, bool, int, error) {
	if p.remaining() < 1 {
		return 0, false, 0, p.fail(p.pos, ErrTruncated)
	}
	first := p.b[p.pos]
	p.pos++

	class, constructed, number := splitIdentifier(first)
	if number != longFormTag {
		return class, constructed, number, nil
	}

	// Long-form tag number.
	number = 0
	for {
		if p.remaining() < 1 {
			return 0, false, 0, p.fail(p.pos, ErrTruncated)
		}
		b := p.b[p.pos]
		p.pos++
		if number > math.MaxInt32>>7 {
			return 0, false, 0, p.fail(p.pos-1, ErrTagOverflow)
		}
		number = number<<7 | int(b&0x7F)
		if b&0x80 == 0 {
			break
		}
	}
	return class, constructed, number, nil
}

func (p *parser) readLength() (int, bool, error) {
	if p.remaining() < 1 {
		return 0, false, p.fail(p.pos, ErrTruncated)
	}
	first := p.b[p.pos]
	p.pos++

	long, value := splitLength(first)
	if !long {
		return value, false, nil
	}
	switch {
	case value == 0:
		return 0, true, nil
	case value == 0x7F:
		return 0, false, p.fail(p.pos-1, ErrReservedLength)
	case value > 4:
		return 0, false, p.fail(p.pos-1, ErrLengthOverflow)
	}
	if p.remaining() < value {
		return 0, false, p.fail(p.pos, ErrTruncated)
	}

	length := 0
	for i := 0; i < value; i++ {
		length = length<<8 | int(p.b[p.pos])
		p.pos++
	}
	if length < 0 || length > p.remaining() {
		return 0, false, p.fail(p.pos, ErrTruncated)
	}
	return length, false, nil
}
