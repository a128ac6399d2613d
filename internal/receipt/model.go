package receipt

import "time"

// Receipt is the typed view of a decoded purchase receipt. It is built once per
// successful parse and never mutated afterwards.
type Receipt struct {
	BundleID           string          `json:"bundleId"`
	AppVersion         string          `json:"appVersion,omitempty"`
	OriginalAppVersion string          `json:"originalAppVersion,omitempty"`
	OpaqueValue        []byte          `json:"opaqueValue,omitempty"`
	SHA1Hash           []byte          `json:"sha1Hash,omitempty"`
	CreationDate       time.Time       `json:"creationDate"`
	ExpirationDate     *time.Time      `json:"expirationDate,omitempty"`
	Purchases          []InAppPurchase `json:"purchases"`
}

// ProductType mirrors the store's product kind attribute.
type ProductType int

const (
	ProductTypeUnknown                   ProductType = -1
	ProductTypeNonConsumable             ProductType = 0
	ProductTypeConsumable                ProductType = 1
	ProductTypeNonRenewingSubscription   ProductType = 2
	ProductTypeAutoRenewableSubscription ProductType = 3
)

func (t ProductType) String() string {
	switch t {
	case ProductTypeNonConsumable:
		return "non-consumable"
	case ProductTypeConsumable:
		return "consumable"
	case ProductTypeNonRenewingSubscription:
		return "non-renewing-subscription"
	case ProductTypeAutoRenewableSubscription:
		return "auto-renewable-subscription"
	default:
		return "unknown"
	}
}

type InAppPurchase struct {
	Quantity              int          `json:"quantity"`
	ProductID             string       `json:"productId"`
	TransactionID         string       `json:"transactionId"`
	OriginalTransactionID string       `json:"originalTransactionId,omitempty"`
	ProductType           *ProductType `json:"productType,omitempty"`
	PurchaseDate          time.Time    `json:"purchaseDate"`
	OriginalPurchaseDate  time.Time    `json:"originalPurchaseDate"`
	ExpiresDate           *time.Time   `json:"expiresDate,omitempty"`
	CancellationDate      *time.Time   `json:"cancellationDate,omitempty"`
	IsInTrialPeriod       *bool        `json:"isInTrialPeriod,omitempty"`
	IsInIntroOfferPeriod  *bool        `json:"isInIntroOfferPeriod,omitempty"`
	WebOrderLineItemID    int64        `json:"webOrderLineItemId,omitempty"`
	PromotionalOfferID    *string      `json:"promotionalOfferId,omitempty"`
}

// IsActiveAt reports whether a subscription purchase grants access at t.
// Purchases without an expiry never lapse unless cancelled.
func (p InAppPurchase) IsActiveAt(t time.Time) bool {
	if p.CancellationDate != nil && !p.CancellationDate.After(t) {
		return false
	}
	if p.ExpiresDate == nil {
		return true
	}
	return p.ExpiresDate.After(t)
}
