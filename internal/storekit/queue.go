package storekit

import (
	"context"

	"github.com/golang/glog"
)

type TransactionState int

const (
	StatePurchasing TransactionState = iota
	StatePurchased
	StateFailed
	StateRestored
	StateDeferred
)

func (s TransactionState) String() string {
	switch s {
	case StatePurchasing:
		return "purchasing"
	case StatePurchased:
		return "purchased"
	case StateFailed:
		return "failed"
	case StateRestored:
		return "restored"
	case StateDeferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// Transaction is one purchase queue event as delivered by the platform. Ref is
// the platform's own handle and is passed through untouched.
type Transaction struct {
	ProductID     string
	TransactionID string
	State         TransactionState
	Ref           any
}

// PendingTransaction is a completed or restored transaction awaiting
// validation.
type PendingTransaction struct {
	ProductID string
	Ref       any
}

type Delegate interface {
	TransactionsCompleted(ctx context.Context, pending []PendingTransaction)
}

// Observer filters purchase queue batches down to purchased and restored
// transactions. It never finishes transactions; that is left to the platform
// layer.
type Observer struct {
	Delegate Delegate
}

func NewObserver(d Delegate) *Observer {
	return &Observer{Delegate: d}
}

// UpdatedTransactions handles one batch of queue events. Empty filtered
// batches are not forwarded.
func (o *Observer) UpdatedTransactions(ctx context.Context, batch []Transaction) {
	pending := Filter(batch)
	glog.V(2).Infof("storekit: %d of %d transactions completed", len(pending), len(batch))
	if len(pending) == 0 || o.Delegate == nil {
		return
	}
	o.Delegate.TransactionsCompleted(ctx, pending)
}

// Filter keeps purchased and restored transactions in batch order.
func Filter(batch []Transaction) []PendingTransaction {
	var out []PendingTransaction
	for _, tx := range batch {
		switch tx.State {
		case StatePurchased, StateRestored:
			out = append(out, PendingTransaction{ProductID: tx.ProductID, Ref: tx.Ref})
		}
	}
	return out
}
