package model

import (
	"encoding/json"
	"time"
)

// Envelope is the outer shape of every backend response.
type Envelope struct {
	Code int             `json:"_code"`
	Data json.RawMessage `json:"_data,omitempty"`
}

// StoreLists groups per-store entries.
type StoreLists[T any] struct {
	AppleAppStore []T `json:"apple_app_store"`
	GooglePlay    []T `json:"google_play"`
	Stripe        []T `json:"stripe"`
	PayPal        []T `json:"paypal"`
}

// All returns the entries of every store in a single slice.
func (l StoreLists[T]) All() []T {
	out := make([]T, 0, len(l.AppleAppStore)+len(l.GooglePlay)+len(l.Stripe)+len(l.PayPal))
	out = append(out, l.AppleAppStore...)
	out = append(out, l.GooglePlay...)
	out = append(out, l.Stripe...)
	return append(out, l.PayPal...)
}

type SubscriptionStatus int

const (
	StatusRefund SubscriptionStatus = -1
	StatusTrial  SubscriptionStatus = 0
	StatusPaid   SubscriptionStatus = 1
)

func (s SubscriptionStatus) String() string {
	switch s {
	case StatusRefund:
		return "refund"
	case StatusTrial:
		return "trial"
	case StatusPaid:
		return "paid"
	default:
		return "unknown"
	}
}

type Subscription struct {
	ProductID  string             `json:"product_id"`
	Valid      bool               `json:"valid"`
	Expiration string             `json:"expiration"`
	Status     SubscriptionStatus `json:"status"`
	Renewing   bool               `json:"renewing"`
}

type NonConsumable struct {
	ProductID string `json:"product_id"`
	Valid     bool   `json:"valid"`
}

// ReceiptData is the `_data` member of a receipt validation response.
type ReceiptData struct {
	UserID          *string                      `json:"user_id"`
	InternalUserID  *string                      `json:"internal_user_id"`
	ExternalUserID  *string                      `json:"external_user_id"`
	Subscriptions   *StoreLists[Subscription]    `json:"subscriptions"`
	NonConsumables  *StoreLists[NonConsumable]   `json:"non_consumables"`
	UsedProducts    *StoreLists[json.RawMessage] `json:"used_products"`
	UserSince       *string                      `json:"user_since"`
	AccessValidTill *string                      `json:"access_valid_till"`
}

// PaymentData is the entitlement part of a validation result.
type PaymentData struct {
	Subscriptions  StoreLists[Subscription]  `json:"subscriptions"`
	NonConsumables StoreLists[NonConsumable] `json:"non_consumables"`
}

// ValidationResult is the authoritative outcome of a receipt validation. It is
// persisted as a whole and replaced wholesale on every successful validation.
type ValidationResult struct {
	UserID          *string                     `json:"user_id,omitempty"`
	InternalUserID  *string                     `json:"internal_user_id,omitempty"`
	ExternalUserID  *string                     `json:"external_user_id,omitempty"`
	PaymentData     PaymentData                 `json:"payment_data"`
	UsedProducts    StoreLists[json.RawMessage] `json:"used_products"`
	UserSince       *string                     `json:"user_since,omitempty"`
	AccessValidTill *string                     `json:"access_valid_till,omitempty"`
}

// ActiveProducts lists the product ids of valid subscriptions and
// non-consumables across all stores.
func (r *ValidationResult) ActiveProducts() []string {
	var out []string
	for _, s := range r.PaymentData.Subscriptions.All() {
		if s.Valid {
			out = append(out, s.ProductID)
		}
	}
	for _, nc := range r.PaymentData.NonConsumables.All() {
		if nc.Valid {
			out = append(out, nc.ProductID)
		}
	}
	return out
}

// HasAccessAt reports whether access_valid_till is in the future relative to
// t. Results without a parseable date report false.
func (r *ValidationResult) HasAccessAt(t time.Time) bool {
	if r.AccessValidTill == nil {
		return false
	}
	till, err := time.Parse(time.RFC3339, *r.AccessValidTill)
	if err != nil {
		return false
	}
	return till.After(t)
}
