package receipt

import (
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/vocdoni/gofirma/receiptsync/internal/crypto/der"
)

var ErrDataObjectIdentifierMissing = errors.New("receipt: pkcs7 data object identifier not found")

// Parser decodes raw receipt bytes into a Receipt.
type Parser struct {
	decoder *der.Decoder
	builder *Builder

	verify bool
	roots  *x509.CertPool
}

type ParserOption func(*Parser)

// WithDecoder overrides the decoder limits.
func WithDecoder(d *der.Decoder) ParserOption {
	return func(p *Parser) {
		if d != nil {
			p.decoder = d
		}
	}
}

// WithSignatureVerification makes Parse check the PKCS#7 signature before
// decoding the payload. A nil pool only checks the signer's signature.
func WithSignatureVerification(roots *x509.CertPool) ParserOption {
	return func(p *Parser) {
		p.verify = true
		p.roots = roots
	}
}

func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{decoder: der.NewDecoder()}
	for _, opt := range opts {
		opt(p)
	}
	p.builder = NewBuilder(p.decoder)
	return p
}

var defaultParser = NewParser()

// Parse decodes raw with the default limits and no signature check.
func Parse(raw []byte) (*Receipt, error) {
	return defaultParser.Parse(raw)
}

func (p *Parser) Parse(raw []byte) (*Receipt, error) {
	root, err := p.decoder.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReceiptParsing, err)
	}
	if p.verify {
		if err := VerifySignature(raw, p.roots); err != nil {
			return nil, err
		}
	}
	payload := Locate(root, der.OIDData)
	if payload == nil {
		return nil, ErrDataObjectIdentifierMissing
	}
	return p.builder.Build(payload)
}
