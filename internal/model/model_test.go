package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const anonID = "anon_id_abcdefghijklmnopqrstuvwxyzabcdefghijklmnopqrstuvwxyzabcdefghijkl"

func TestReceiptRequestValidate(t *testing.T) {
	req := ReceiptRequest{
		APIKey:      "key",
		AnonymousID: anonID,
		Receipt:     "MAA=",
		Prices:      []Price{{ProductID: "pro", Price: "4.99", Currency: "EUR"}},
	}
	require.NoError(t, req.Validate())

	bad := req
	bad.Receipt = "not base64!"
	assert.Error(t, bad.Validate())

	bad = req
	bad.AnonymousID = "someone"
	assert.Error(t, bad.Validate())

	bad = req
	bad.Prices = []Price{{ProductID: "pro", Price: "free", Currency: "EUR"}}
	assert.Error(t, bad.Validate())

	bad = req
	bad.Prices = nil
	assert.NoError(t, bad.Validate())
}

func TestPriceValidate(t *testing.T) {
	tests := []struct {
		price Price
		ok    bool
	}{
		{price: Price{ProductID: "pro", Price: "4.99", Currency: "USD"}, ok: true},
		{price: Price{ProductID: "pro", Price: "4.99"}},
		{price: Price{ProductID: "pro", Price: "4.99", Currency: "EURO"}},
		{price: Price{ProductID: "pro", Price: "free", Currency: "USD"}},
		{price: Price{Price: "4.99", Currency: "USD"}},
	}
	for _, tt := range tests {
		err := tt.price.Validate()
		if tt.ok {
			assert.NoError(t, err)
		} else {
			assert.Error(t, err)
		}
	}
}

func TestReceiptRequestJSON(t *testing.T) {
	req := ReceiptRequest{APIKey: "key", AnonymousID: anonID, Receipt: "MAA="}
	raw, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"api_key":"key","anonymous_id":"`+anonID+`","receipt":"MAA="}`, string(raw))

	req.ExternalUserID = "ext"
	req.Prices = []Price{{ProductID: "pro", Price: "4.99", Currency: "EUR"}}
	raw, err = json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"api_key":"key","anonymous_id":"`+anonID+`","receipt":"MAA=","external_user_id":"ext",
		"prices":[{"product_id":"pro","price":4.99,"currency":"EUR"}]}`, string(raw))
}

func TestRegisterInstallQuery(t *testing.T) {
	req := RegisterInstallRequest{
		APIKey:                     "key",
		AnonymousID:                anonID,
		Locale:                     "en_US",
		Platform:                   "ios",
		PlatformInstanceIdentifier: "8d0f0a52-8f7c-4c5e-9d0c-3d4c9f1e2a11",
	}
	require.NoError(t, req.Validate())
	assert.Equal(t, map[string]string{
		"api_key":                      "key",
		"anonymous_id":                 anonID,
		"locale":                       "en_US",
		"platform":                     "ios",
		"platform_instance_identifier": "8d0f0a52-8f7c-4c5e-9d0c-3d4c9f1e2a11",
	}, req.Query())
}

func TestSetRequestValidate(t *testing.T) {
	req := SetRequest{APIKey: "key", AnonymousID: anonID}
	assert.Error(t, req.Validate())

	req.ExternalUserID = "user-1"
	assert.NoError(t, req.Validate())

	req = SetRequest{APIKey: "key", AnonymousID: anonID, Parameters: map[string]any{"plan": "pro"}}
	assert.NoError(t, req.Validate())
}

func TestAdServicesTokenRequestValidate(t *testing.T) {
	req := AdServicesTokenRequest{APIKey: "key", AnonymousID: anonID}
	assert.Error(t, req.Validate())
	req.Token = "tok"
	assert.NoError(t, req.Validate())
}

func TestValidationResultHelpers(t *testing.T) {
	till := "2030-01-01T00:00:00Z"
	r := ValidationResult{
		PaymentData: PaymentData{
			Subscriptions: StoreLists[Subscription]{
				AppleAppStore: []Subscription{{ProductID: "pro", Valid: true, Status: StatusPaid}},
				Stripe:        []Subscription{{ProductID: "old", Valid: false, Status: StatusRefund}},
			},
			NonConsumables: StoreLists[NonConsumable]{
				GooglePlay: []NonConsumable{{ProductID: "lifetime", Valid: true}},
			},
		},
		AccessValidTill: &till,
	}
	assert.Equal(t, []string{"pro", "lifetime"}, r.ActiveProducts())
	assert.True(t, r.HasAccessAt(time.Date(2029, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, r.HasAccessAt(time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, (&ValidationResult{}).HasAccessAt(time.Now()))
	assert.Equal(t, "refund", StatusRefund.String())
}
