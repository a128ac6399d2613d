package app

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/golang/glog"

	"github.com/vocdoni/gofirma/receiptsync/internal/model"
	"github.com/vocdoni/gofirma/receiptsync/internal/net"
	"github.com/vocdoni/gofirma/receiptsync/internal/notify"
	"github.com/vocdoni/gofirma/receiptsync/internal/receipt"
	"github.com/vocdoni/gofirma/receiptsync/internal/storage"
	"github.com/vocdoni/gofirma/receiptsync/internal/validation"
)

const platform = "ios"

var ErrBundleMismatch = errors.New("app: receipt belongs to another bundle")

// ReceiptSource provides the raw receipt and a way to ask for a new one.
// Load refreshes a missing receipt once and reports whether it did.
type ReceiptSource interface {
	Load(ctx context.Context) ([]byte, bool, error)
	Fetch() ([]byte, error)
	Refresh(ctx context.Context) error
}

// Install describes the device environment sent on install registration.
type Install struct {
	Currency     string
	StoreCountry string
	Locale       string
}

// Service runs the validation flow and the auxiliary backend calls against
// the identifiers kept in the store.
type Service struct {
	apiKey     string
	bundleID   string
	source     ReceiptSource
	parser     *receipt.Parser
	store      *storage.Store
	api        *net.API
	dispatcher *validation.Dispatcher
	listeners  notify.Listener
}

// Validate loads and checks the local receipt, submits it with prices and
// calls completion with the backend result. A nil result leaves the stored
// state untouched. The returned operation is nil when nothing was submitted.
func (s *Service) Validate(ctx context.Context, prices []model.Price, completion func(*model.ValidationResult)) *net.Operation {
	done := func(r *model.ValidationResult) {
		if completion != nil {
			completion(r)
		}
	}

	raw, parsed, err := s.loadReceipt(ctx)
	if err != nil {
		glog.Errorf("app: receipt unavailable: %v", err)
		done(nil)
		return nil
	}
	if parsed != nil {
		if s.bundleID != "" && parsed.BundleID != s.bundleID {
			glog.Errorf("app: %v: %q", ErrBundleMismatch, parsed.BundleID)
			done(nil)
			return nil
		}
		glog.V(1).Infof("app: submitting receipt with %d purchases", len(parsed.Purchases))
	}

	return s.dispatcher.Validate(ctx, raw, prices, s.store.UserIDs(ctx), func(r *model.ValidationResult) {
		if r != nil {
			s.apply(ctx, r)
		}
		done(r)
	})
}

// ValidateSync is Validate waiting for the result.
func (s *Service) ValidateSync(ctx context.Context, prices []model.Price) *model.ValidationResult {
	ch := make(chan *model.ValidationResult, 1)
	s.Validate(ctx, prices, func(r *model.ValidationResult) { ch <- r })
	return <-ch
}

// loadReceipt returns the receipt bytes and, when they decode, the parsed
// receipt. At most one refresh is requested: either because the receipt is
// missing or because it does not decode. A receipt that still fails to decode
// is returned without a parsed form.
func (s *Service) loadReceipt(ctx context.Context) ([]byte, *receipt.Receipt, error) {
	raw, refreshed, err := s.source.Load(ctx)
	if err != nil {
		return nil, nil, err
	}

	parsed, perr := s.parser.Parse(raw)
	if perr == nil {
		return raw, parsed, nil
	}
	if errors.Is(perr, receipt.ErrSignature) {
		return nil, nil, perr
	}
	glog.Warningf("app: local receipt does not decode: %v", perr)
	if refreshed {
		return raw, nil, nil
	}
	if err := s.source.Refresh(ctx); err != nil {
		glog.Warningf("app: refresh after decode failure: %v", err)
		return raw, nil, nil
	}
	fresh, err := s.source.Fetch()
	if err != nil {
		glog.Warningf("app: refreshed receipt unavailable: %v", err)
		return raw, nil, nil
	}
	parsed, perr = s.parser.Parse(fresh)
	if perr != nil {
		if errors.Is(perr, receipt.ErrSignature) {
			return nil, nil, perr
		}
		glog.Warningf("app: refreshed receipt does not decode either: %v", perr)
		return fresh, nil, nil
	}
	return fresh, parsed, nil
}

func (s *Service) apply(ctx context.Context, r *model.ValidationResult) {
	if err := s.store.SaveValidationResult(ctx, r); err != nil {
		glog.Errorf("app: failed to persist validation result: %v", err)
	}
	if r.UserID != nil {
		if err := s.store.SetUserID(ctx, *r.UserID); err != nil {
			glog.Errorf("app: failed to persist user id: %v", err)
		}
	}
	if s.listeners != nil {
		s.listeners.ValidationUpdated(ctx, r)
	}
}

// Entitlements returns the last persisted validation result.
func (s *Service) Entitlements(ctx context.Context) (*model.ValidationResult, bool) {
	return s.store.ValidationResult(ctx)
}

// RegisterInstall reports the install with the stored identifiers.
func (s *Service) RegisterInstall(ctx context.Context, in Install, completion func(ok bool)) (*net.Operation, error) {
	anon, err := s.store.AnonymousID(ctx)
	if err != nil {
		return nil, err
	}
	pid, err := s.store.PlatformInstanceID(ctx)
	if err != nil {
		return nil, err
	}
	return s.api.RegisterInstall(ctx, &model.RegisterInstallRequest{
		APIKey:                     s.apiKey,
		AnonymousID:                anon,
		Currency:                   in.Currency,
		StoreCountry:               in.StoreCountry,
		Locale:                     in.Locale,
		Platform:                   platform,
		PlatformInstanceIdentifier: pid,
	}, acknowledged(completion))
}

// SetUserID stores the caller ids and sends them to the backend.
func (s *Service) SetUserID(ctx context.Context, ids model.UserIDs, completion func(ok bool)) (*net.Operation, error) {
	if err := s.store.SetExternalUserID(ctx, ids.ExternalUserID); err != nil {
		return nil, err
	}
	if err := s.store.SetInternalUserID(ctx, ids.InternalUserID); err != nil {
		return nil, err
	}
	return s.set(ctx, map[string]any{}, ids, completion)
}

// SetProperties sends arbitrary user properties along with the stored ids.
func (s *Service) SetProperties(ctx context.Context, params map[string]any, completion func(ok bool)) (*net.Operation, error) {
	return s.set(ctx, params, s.store.UserIDs(ctx), completion)
}

// SetPushToken stores token and reports it as the push_token property.
func (s *Service) SetPushToken(ctx context.Context, token string, completion func(ok bool)) (*net.Operation, error) {
	if err := s.store.SetPushToken(ctx, token); err != nil {
		return nil, err
	}
	return s.SetProperties(ctx, map[string]any{"push_token": token}, completion)
}

func (s *Service) set(ctx context.Context, params map[string]any, ids model.UserIDs, completion func(ok bool)) (*net.Operation, error) {
	anon, err := s.store.AnonymousID(ctx)
	if err != nil {
		return nil, err
	}
	return s.api.Set(ctx, &model.SetRequest{
		APIKey:         s.apiKey,
		AnonymousID:    anon,
		Parameters:     params,
		ExternalUserID: ids.ExternalUserID,
		InternalUserID: ids.InternalUserID,
	}, acknowledged(completion))
}

// SubmitAdServicesToken forwards an ad attribution token.
func (s *Service) SubmitAdServicesToken(ctx context.Context, token string, completion func(ok bool)) (*net.Operation, error) {
	anon, err := s.store.AnonymousID(ctx)
	if err != nil {
		return nil, err
	}
	return s.api.SubmitAdServicesToken(ctx, &model.AdServicesTokenRequest{
		APIKey:      s.apiKey,
		AnonymousID: anon,
		Token:       token,
	}, acknowledged(completion))
}

// acknowledged reports whether body is an envelope with a 2xx code.
func acknowledged(completion func(bool)) func([]byte) {
	return func(body []byte) {
		var env model.Envelope
		ok := body != nil && json.Unmarshal(body, &env) == nil && env.Code >= 200 && env.Code <= 299
		if completion != nil {
			completion(ok)
		}
	}
}
