package validation

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/golang/glog"

	"github.com/vocdoni/gofirma/receiptsync/internal/model"
	"github.com/vocdoni/gofirma/receiptsync/internal/net"
	"github.com/vocdoni/gofirma/receiptsync/internal/storekit"
)

// BuildRequest assembles the receipt validation request. Empty ids and an
// empty price list are omitted from the payload.
func BuildRequest(apiKey, anonymousID string, receipt []byte, prices []model.Price, ids model.UserIDs) *model.ReceiptRequest {
	req := &model.ReceiptRequest{
		APIKey:         apiKey,
		AnonymousID:    anonymousID,
		Receipt:        storekit.EncodeBase64(receipt),
		ExternalUserID: ids.ExternalUserID,
		InternalUserID: ids.InternalUserID,
	}
	if len(prices) > 0 {
		req.Prices = prices
	}
	return req
}

// MapResponse maps a raw validation response into a ValidationResult. Any
// structural mismatch, including a `_code` outside 200..299, yields nil.
func MapResponse(raw []byte) *model.ValidationResult {
	if len(raw) == 0 {
		return nil
	}
	var env model.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		glog.Warningf("validation: response is not an envelope: %v", err)
		return nil
	}
	if env.Code < 200 || env.Code > 299 {
		glog.Warningf("validation: backend answered with code %d", env.Code)
		return nil
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || data[0] != '{' {
		glog.Warningf("validation: response has no data object")
		return nil
	}
	var rd model.ReceiptData
	if err := json.Unmarshal(data, &rd); err != nil {
		glog.Warningf("validation: unexpected data shape: %v", err)
		return nil
	}
	if rd.Subscriptions == nil || rd.NonConsumables == nil {
		glog.Warningf("validation: response lacks payment data")
		return nil
	}

	res := &model.ValidationResult{
		UserID:          rd.UserID,
		InternalUserID:  rd.InternalUserID,
		ExternalUserID:  rd.ExternalUserID,
		UserSince:       rd.UserSince,
		AccessValidTill: rd.AccessValidTill,
		PaymentData: model.PaymentData{
			Subscriptions:  *rd.Subscriptions,
			NonConsumables: *rd.NonConsumables,
		},
	}
	if rd.UsedProducts != nil {
		res.UsedProducts = *rd.UsedProducts
	}
	return res
}

// Dispatcher submits validation requests under the receipt_ios operation key.
type Dispatcher struct {
	api         *net.API
	apiKey      string
	anonymousID func(ctx context.Context) (string, error)
}

// NewDispatcher creates a Dispatcher. anonymousID is consulted on every call
// so the id is generated lazily by the store that owns it.
func NewDispatcher(api *net.API, apiKey string, anonymousID func(ctx context.Context) (string, error)) *Dispatcher {
	return &Dispatcher{api: api, apiKey: apiKey, anonymousID: anonymousID}
}

// Validate submits receipt and calls completion with the mapped result, or
// nil when the request could not be built, the backend could not be reached,
// or the response did not match. It never blocks on the network.
func (d *Dispatcher) Validate(ctx context.Context, receipt []byte, prices []model.Price, ids model.UserIDs, completion func(*model.ValidationResult)) *net.Operation {
	done := func(r *model.ValidationResult) {
		if completion != nil {
			completion(r)
		}
	}

	anon, err := d.anonymousID(ctx)
	if err != nil {
		glog.Errorf("validation: anonymous id unavailable: %v", err)
		done(nil)
		return nil
	}
	req := BuildRequest(d.apiKey, anon, receipt, prices, ids)
	op, err := d.api.ValidateReceipt(ctx, req, func(raw []byte) {
		done(MapResponse(raw))
	})
	if err != nil {
		glog.Errorf("validation: %v", err)
		done(nil)
		return nil
	}
	return op
}

// ValidateSync is Validate waiting for its result.
func (d *Dispatcher) ValidateSync(ctx context.Context, receipt []byte, prices []model.Price, ids model.UserIDs) *model.ValidationResult {
	ch := make(chan *model.ValidationResult, 1)
	d.Validate(ctx, receipt, prices, ids, func(r *model.ValidationResult) { ch <- r })
	return <-ch
}
