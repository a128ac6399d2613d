package receipt

import (
	"fmt"
	"time"

	"github.com/vocdoni/gofirma/receiptsync/internal/crypto/der"
)

// Receipt attribute types.
const (
	attrBundleID           = 2
	attrAppVersion         = 3
	attrOpaqueValue        = 4
	attrSHA1Hash           = 5
	attrCreationDate       = 12
	attrInAppPurchase      = 17
	attrOriginalAppVersion = 19
	attrExpirationDate     = 21
)

// In-app purchase attribute types.
const (
	attrQuantity              = 1701
	attrProductID             = 1702
	attrTransactionID         = 1703
	attrPurchaseDate          = 1704
	attrOriginalTransactionID = 1705
	attrOriginalPurchaseDate  = 1706
	attrProductType           = 1707
	attrExpiresDate           = 1708
	attrWebOrderLineItemID    = 1711
	attrCancellationDate      = 1712
	attrTrialPeriod           = 1713
	attrIntroOfferPeriod      = 1719
	attrPromotionalOfferID    = 1721
)

// attribute is one {type, version, value} entry of an attribute SET.
type attribute struct {
	Type    int
	Version int
	Value   []byte
}

// readAttributes extracts the entries of an attribute SET. Entries that do not
// have the {INTEGER, INTEGER, OCTET STRING} shape are skipped.
func readAttributes(set *der.Container) []attribute {
	var out []attribute
	for _, entry := range set.Children {
		if !entry.Is(der.ClassUniversal, der.TagSequence) || len(entry.Children) < 3 {
			continue
		}
		typ, err := entry.Children[0].Int()
		if err != nil {
			continue
		}
		version, err := entry.Children[1].Int()
		if err != nil {
			continue
		}
		value := entry.Children[2]
		if !value.Is(der.ClassUniversal, der.TagOctetString) || value.Constructed {
			continue
		}
		out = append(out, attribute{Type: int(typ), Version: int(version), Value: value.Content})
	}
	return out
}

func (b *Builder) single(value []byte) (*der.Container, error) {
	items, err := b.decoder.DecodeAll(value)
	if err != nil {
		return nil, err
	}
	if len(items) != 1 {
		return nil, fmt.Errorf("expected one element, got %d", len(items))
	}
	return items[0], nil
}

func (b *Builder) stringValue(value []byte) (string, error) {
	c, err := b.single(value)
	if err != nil {
		return "", err
	}
	return c.Text()
}

func (b *Builder) intValue(value []byte) (int64, error) {
	c, err := b.single(value)
	if err != nil {
		return 0, err
	}
	return c.Int()
}

// dateValue decodes an RFC 3339 date string. An empty string is an absent
// date and yields nil.
func (b *Builder) dateValue(value []byte) (*time.Time, error) {
	s, err := b.stringValue(value)
	if err != nil {
		return nil, err
	}
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}
