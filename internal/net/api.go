package net

import (
	"context"
	"net/http"

	"github.com/vocdoni/gofirma/receiptsync/internal/model"
)

// Operation keys, one per endpoint.
const (
	OpRegisterInstall = "register_install"
	OpAdServicesToken = "adservices_token"
	OpReceipt         = "receipt_ios"
	OpSet             = "set"
)

const pathPrefix = "/sdk/"

// API submits the backend endpoints through a Retrier. Invalid requests are
// rejected before anything is sent and their completion is never called.
type API struct {
	retrier *Retrier
}

func NewAPI(r *Retrier) *API {
	return &API{retrier: r}
}

func (a *API) Retrier() *Retrier { return a.retrier }

func (a *API) RegisterInstall(ctx context.Context, req *model.RegisterInstallRequest, completion func([]byte)) (*Operation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return a.retrier.Submit(ctx, OpRegisterInstall, &Request{
		Method: http.MethodGet,
		Path:   pathPrefix + OpRegisterInstall,
		Query:  req.Query(),
	}, completion), nil
}

func (a *API) SubmitAdServicesToken(ctx context.Context, req *model.AdServicesTokenRequest, completion func([]byte)) (*Operation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return a.post(ctx, OpAdServicesToken, req, completion), nil
}

func (a *API) ValidateReceipt(ctx context.Context, req *model.ReceiptRequest, completion func([]byte)) (*Operation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return a.post(ctx, OpReceipt, req, completion), nil
}

func (a *API) Set(ctx context.Context, req *model.SetRequest, completion func([]byte)) (*Operation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return a.post(ctx, OpSet, req, completion), nil
}

func (a *API) post(ctx context.Context, key string, body any, completion func([]byte)) *Operation {
	return a.retrier.Submit(ctx, key, &Request{
		Method: http.MethodPost,
		Path:   pathPrefix + key,
		Body:   body,
	}, completion)
}
