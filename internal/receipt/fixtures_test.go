package receipt

import (
	"github.com/vocdoni/gofirma/receiptsync/internal/crypto/der"
)

func attr(typ int, value []byte) []byte {
	return der.MarshalSequence(der.MarshalInt(int64(typ)), der.MarshalInt(1), der.MarshalOctetString(value))
}

func utf8Attr(typ int, s string) []byte { return attr(typ, der.MarshalUTF8String(s)) }

func ia5Attr(typ int, s string) []byte { return attr(typ, der.MarshalIA5String(s)) }

func intAttr(typ int, v int64) []byte { return attr(typ, der.MarshalInt(v)) }

func purchaseAttr(attrs ...[]byte) []byte {
	return attr(attrInAppPurchase, der.MarshalSet(attrs...))
}

// envelope wraps an attribute SET the way a signed receipt carries it, minus
// the signature material.
func envelope(payload []byte) []byte {
	signed, _ := der.MarshalOID(der.OIDSignedData)
	data, _ := der.MarshalOID(der.OIDData)
	sha256, _ := der.MarshalOID(der.OIDSHA256)
	return der.MarshalSequence(
		signed,
		der.MarshalExplicit(0, der.MarshalSequence(
			der.MarshalInt(1),
			der.MarshalSet(der.MarshalSequence(sha256, []byte{0x05, 0x00})),
			der.MarshalSequence(data, der.MarshalExplicit(0, der.MarshalOctetString(payload))),
		)),
	)
}

func samplePayload() []byte {
	return der.MarshalSet(
		utf8Attr(attrBundleID, "com.example.app"),
		utf8Attr(attrAppVersion, "1.4"),
		utf8Attr(attrOriginalAppVersion, "1.0"),
		attr(attrOpaqueValue, []byte{0xDE, 0xAD}),
		attr(attrSHA1Hash, []byte{0x01, 0x02, 0x03}),
		ia5Attr(attrCreationDate, "2024-03-01T10:00:00Z"),
		ia5Attr(attrExpirationDate, ""),
		intAttr(9999, 42),
		purchaseAttr(
			intAttr(attrQuantity, 1),
			utf8Attr(attrProductID, "pro_monthly"),
			utf8Attr(attrTransactionID, "1000000001"),
			utf8Attr(attrOriginalTransactionID, "1000000000"),
			ia5Attr(attrPurchaseDate, "2024-02-01T10:00:00Z"),
			ia5Attr(attrOriginalPurchaseDate, "2024-01-01T10:00:00Z"),
			ia5Attr(attrExpiresDate, "2024-03-01T10:00:00Z"),
			ia5Attr(attrCancellationDate, ""),
			intAttr(attrProductType, 3),
			intAttr(attrWebOrderLineItemID, 77),
			intAttr(attrTrialPeriod, 0),
			intAttr(attrIntroOfferPeriod, 1),
			utf8Attr(attrPromotionalOfferID, "winback"),
		),
		purchaseAttr(
			utf8Attr(attrProductID, "coins_100"),
			utf8Attr(attrTransactionID, "1000000002"),
			ia5Attr(attrPurchaseDate, "2024-02-15T08:30:00Z"),
		),
	)
}
