package app

import (
	"context"

	"github.com/golang/glog"
	"github.com/thoas/go-funk"

	"github.com/vocdoni/gofirma/receiptsync/internal/model"
	"github.com/vocdoni/gofirma/receiptsync/internal/net"
	"github.com/vocdoni/gofirma/receiptsync/internal/storekit"
)

type receiptValidator interface {
	Validate(ctx context.Context, prices []model.Price, completion func(*model.ValidationResult)) *net.Operation
}

// PurchaseHandler receives completed transactions from the queue observer,
// prices them and runs one validation per batch.
type PurchaseHandler struct {
	service receiptValidator
	catalog storekit.Catalog

	// OnResult, when set, receives the outcome of every batch validation.
	OnResult func(*model.ValidationResult)
}

func NewPurchaseHandler(service receiptValidator, catalog storekit.Catalog) *PurchaseHandler {
	return &PurchaseHandler{service: service, catalog: catalog}
}

func (h *PurchaseHandler) TransactionsCompleted(ctx context.Context, pending []storekit.PendingTransaction) {
	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ProductID)
	}
	h.service.Validate(ctx, h.prices(ctx, funk.UniqString(ids)), h.OnResult)
}

func (h *PurchaseHandler) prices(ctx context.Context, ids []string) []model.Price {
	if h.catalog == nil || len(ids) == 0 {
		return nil
	}
	products, err := h.catalog.Products(ctx, ids)
	if err != nil {
		glog.Warningf("app: product lookup failed, validating without prices: %v", err)
		return nil
	}
	known := make(map[string]bool, len(products))
	prices := make([]model.Price, 0, len(products))
	for _, p := range products {
		known[p.ID] = true
		price := model.Price{ProductID: p.ID, Price: p.Price, Currency: p.Currency}
		if err := price.Validate(); err != nil {
			glog.Warningf("app: skipping price: %v", err)
			continue
		}
		prices = append(prices, price)
	}
	for _, id := range ids {
		if !known[id] {
			glog.Warningf("app: no product metadata for %s", id)
		}
	}
	return prices
}
