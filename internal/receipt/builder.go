package receipt

import (
	"errors"
	"fmt"

	"github.com/golang/glog"

	"github.com/vocdoni/gofirma/receiptsync/internal/crypto/der"
)

var (
	ErrReceiptParsing       = errors.New("receipt: malformed receipt payload")
	ErrInAppPurchaseParsing = errors.New("receipt: malformed in-app purchase")
)

// Builder turns the payload container that follows the data OID into a
// Receipt.
type Builder struct {
	decoder *der.Decoder
}

func NewBuilder(decoder *der.Decoder) *Builder {
	if decoder == nil {
		decoder = der.NewDecoder()
	}
	return &Builder{decoder: decoder}
}

// Build decodes the attribute SET carried by payload. Unknown attribute types
// are ignored and malformed purchases are dropped, but a receipt without a
// bundle identifier or creation date is rejected.
func (b *Builder) Build(payload *der.Container) (*Receipt, error) {
	set, err := b.unwrap(payload)
	if err != nil {
		return nil, err
	}

	r := &Receipt{Purchases: []InAppPurchase{}}
	for _, attr := range readAttributes(set) {
		switch attr.Type {
		case attrBundleID:
			if s, err := b.stringValue(attr.Value); err == nil {
				r.BundleID = s
			} else {
				glog.Warningf("receipt: bundle id attribute: %v", err)
			}
		case attrAppVersion:
			if s, err := b.stringValue(attr.Value); err == nil {
				r.AppVersion = s
			}
		case attrOriginalAppVersion:
			if s, err := b.stringValue(attr.Value); err == nil {
				r.OriginalAppVersion = s
			}
		case attrOpaqueValue:
			r.OpaqueValue = append([]byte(nil), attr.Value...)
		case attrSHA1Hash:
			r.SHA1Hash = append([]byte(nil), attr.Value...)
		case attrCreationDate:
			if t, err := b.dateValue(attr.Value); err == nil && t != nil {
				r.CreationDate = *t
			} else if err != nil {
				glog.Warningf("receipt: creation date attribute: %v", err)
			}
		case attrExpirationDate:
			if t, err := b.dateValue(attr.Value); err == nil {
				r.ExpirationDate = t
			}
		case attrInAppPurchase:
			p, err := b.buildPurchase(attr.Value)
			if err != nil {
				glog.Warningf("receipt: dropping in-app purchase: %v", err)
				continue
			}
			r.Purchases = append(r.Purchases, *p)
		}
	}

	if r.BundleID == "" {
		return nil, fmt.Errorf("%w: missing bundle id", ErrReceiptParsing)
	}
	if r.CreationDate.IsZero() {
		return nil, fmt.Errorf("%w: missing creation date", ErrReceiptParsing)
	}
	return r, nil
}

// unwrap peels the [0] EXPLICIT and OCTET STRING layers around the attribute
// SET. Constructed OCTET STRINGs are reassembled from their segments.
func (b *Builder) unwrap(c *der.Container) (*der.Container, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: no payload", ErrReceiptParsing)
	}
	if c.Is(der.ClassContextSpecific, 0) && c.Constructed {
		if len(c.Children) != 1 {
			return nil, fmt.Errorf("%w: explicit wrapper has %d children", ErrReceiptParsing, len(c.Children))
		}
		c = c.Children[0]
	}
	if c.Is(der.ClassUniversal, der.TagSet) && c.Constructed {
		return c, nil
	}
	if !c.Is(der.ClassUniversal, der.TagOctetString) {
		return nil, fmt.Errorf("%w: unexpected payload %s", ErrReceiptParsing, c)
	}

	content, err := octets(c)
	if err != nil {
		return nil, err
	}
	set, err := b.decoder.Decode(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReceiptParsing, err)
	}
	if !set.Is(der.ClassUniversal, der.TagSet) || !set.Constructed {
		return nil, fmt.Errorf("%w: payload is not an attribute set", ErrReceiptParsing)
	}
	return set, nil
}

func octets(c *der.Container) ([]byte, error) {
	if !c.Constructed {
		return c.Content, nil
	}
	var out []byte
	for _, seg := range c.Children {
		if !seg.Is(der.ClassUniversal, der.TagOctetString) {
			return nil, fmt.Errorf("%w: unexpected octet string segment %s", ErrReceiptParsing, seg)
		}
		part, err := octets(seg)
		if err != nil {
			return nil, err
		}
		out = append(out, part...)
	}
	return out, nil
}

func (b *Builder) buildPurchase(value []byte) (*InAppPurchase, error) {
	set, err := b.single(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInAppPurchaseParsing, err)
	}
	if !set.Is(der.ClassUniversal, der.TagSet) || !set.Constructed {
		return nil, fmt.Errorf("%w: not an attribute set", ErrInAppPurchaseParsing)
	}

	p := &InAppPurchase{}
	for _, attr := range readAttributes(set) {
		switch attr.Type {
		case attrQuantity:
			if v, err := b.intValue(attr.Value); err == nil {
				p.Quantity = int(v)
			}
		case attrProductID:
			if s, err := b.stringValue(attr.Value); err == nil {
				p.ProductID = s
			}
		case attrTransactionID:
			if s, err := b.stringValue(attr.Value); err == nil {
				p.TransactionID = s
			}
		case attrOriginalTransactionID:
			if s, err := b.stringValue(attr.Value); err == nil {
				p.OriginalTransactionID = s
			}
		case attrPurchaseDate:
			if t, err := b.dateValue(attr.Value); err == nil && t != nil {
				p.PurchaseDate = *t
			}
		case attrOriginalPurchaseDate:
			if t, err := b.dateValue(attr.Value); err == nil && t != nil {
				p.OriginalPurchaseDate = *t
			}
		case attrProductType:
			if v, err := b.intValue(attr.Value); err == nil {
				pt := ProductType(v)
				p.ProductType = &pt
			}
		case attrExpiresDate:
			if t, err := b.dateValue(attr.Value); err == nil {
				p.ExpiresDate = t
			}
		case attrCancellationDate:
			if t, err := b.dateValue(attr.Value); err == nil {
				p.CancellationDate = t
			}
		case attrWebOrderLineItemID:
			if v, err := b.intValue(attr.Value); err == nil {
				p.WebOrderLineItemID = v
			}
		case attrTrialPeriod:
			if v, err := b.intValue(attr.Value); err == nil {
				flag := v != 0
				p.IsInTrialPeriod = &flag
			}
		case attrIntroOfferPeriod:
			if v, err := b.intValue(attr.Value); err == nil {
				flag := v != 0
				p.IsInIntroOfferPeriod = &flag
			}
		case attrPromotionalOfferID:
			if s, err := b.stringValue(attr.Value); err == nil {
				p.PromotionalOfferID = &s
			}
		}
	}

	if p.ProductID == "" {
		return nil, fmt.Errorf("%w: missing product id", ErrInAppPurchaseParsing)
	}
	if p.TransactionID == "" {
		return nil, fmt.Errorf("%w: missing transaction id for %s", ErrInAppPurchaseParsing, p.ProductID)
	}
	return p, nil
}
