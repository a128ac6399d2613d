package model

import (
	"encoding/json"
)

// Price is the current store price of one product at purchase time.
type Price struct {
	ProductID string      `json:"product_id" validate:"required"`
	Price     json.Number `json:"price" validate:"required,numeric"`
	Currency  string      `json:"currency" validate:"required,len=3"`
}

// UserIDs carries the optional caller-assigned identifiers sent alongside the
// anonymous id.
type UserIDs struct {
	ExternalUserID string
	InternalUserID string
}

type RegisterInstallRequest struct {
	APIKey                     string `json:"api_key" validate:"required"`
	AnonymousID                string `json:"anonymous_id" validate:"required,startswith=anon_id_"`
	Currency                   string `json:"currency,omitempty"`
	StoreCountry               string `json:"store_country,omitempty"`
	Locale                     string `json:"locale,omitempty"`
	Platform                   string `json:"platform" validate:"required"`
	PlatformInstanceIdentifier string `json:"platform_instance_identifier" validate:"required"`
}

// Query returns the request as query items. Empty optional fields are left
// out.
func (r *RegisterInstallRequest) Query() map[string]string {
	q := map[string]string{
		"api_key":                      r.APIKey,
		"anonymous_id":                 r.AnonymousID,
		"platform":                     r.Platform,
		"platform_instance_identifier": r.PlatformInstanceIdentifier,
	}
	if r.Currency != "" {
		q["currency"] = r.Currency
	}
	if r.StoreCountry != "" {
		q["store_country"] = r.StoreCountry
	}
	if r.Locale != "" {
		q["locale"] = r.Locale
	}
	return q
}

type AdServicesTokenRequest struct {
	APIKey      string `json:"api_key" validate:"required"`
	AnonymousID string `json:"anonymous_id" validate:"required,startswith=anon_id_"`
	Token       string `json:"token" validate:"required"`
}

type ReceiptRequest struct {
	APIKey         string  `json:"api_key" validate:"required"`
	AnonymousID    string  `json:"anonymous_id" validate:"required,startswith=anon_id_"`
	Receipt        string  `json:"receipt" validate:"required,base64"`
	ExternalUserID string  `json:"external_user_id,omitempty"`
	InternalUserID string  `json:"internal_user_id,omitempty"`
	Prices         []Price `json:"prices,omitempty" validate:"omitempty,dive"`
}

type SetRequest struct {
	APIKey         string         `json:"api_key" validate:"required"`
	AnonymousID    string         `json:"anonymous_id" validate:"required,startswith=anon_id_"`
	Parameters     map[string]any `json:"parameters"`
	ExternalUserID string         `json:"external_user_id,omitempty"`
	InternalUserID string         `json:"internal_user_id,omitempty"`
}
