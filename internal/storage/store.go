package storage

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/vocdoni/gofirma/receiptsync/internal/model"
)

const (
	AnonymousIDPrefix = "anon_id_"
	anonymousIDLen    = 64
)

const (
	keyAnonymousID        = "anonymous_id"
	keyPlatformInstanceID = "platform_instance_id"
	keyUserID             = "user_id"
	keyExternalUserID     = "external_user_id"
	keyInternalUserID     = "internal_user_id"
	keyPushToken          = "push_token"

	keyResultUserID          = "validation.user_id"
	keyResultInternalUserID  = "validation.internal_user_id"
	keyResultExternalUserID  = "validation.external_user_id"
	keyResultPaymentData     = "validation.payment_data"
	keyResultUsedProducts    = "validation.used_products"
	keyResultUserSince       = "validation.user_since"
	keyResultAccessValidTill = "validation.access_valid_till"

	counterPrefix = "counter."
)

// Store exposes typed accessors over a KV backend. Reads never fail: a
// missing or unreadable value is reported as absent. Composite
// read-modify-write sequences are serialized by the store mutex.
type Store struct {
	kv KV
	mu sync.Mutex

	// rand is the entropy source for anonymous ids.
	rand io.Reader
}

func NewStore(kv KV) *Store {
	return &Store{kv: kv, rand: rand.Reader}
}

func (s *Store) Close() error {
	return s.kv.Close()
}

func (s *Store) getString(ctx context.Context, key string) (string, bool) {
	v, err := s.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			glog.Warningf("storage: read %s: %v", key, err)
		}
		return "", false
	}
	return string(v), true
}

// setString stores value under key, or deletes key when value is empty.
func (s *Store) setString(ctx context.Context, key, value string) error {
	if value == "" {
		return s.kv.Delete(ctx, key)
	}
	return s.kv.Set(ctx, key, []byte(value))
}

func (s *Store) setOptional(ctx context.Context, key string, value *string) error {
	if value == nil {
		return s.kv.Delete(ctx, key)
	}
	return s.kv.Set(ctx, key, []byte(*value))
}

func (s *Store) getOptional(ctx context.Context, key string) *string {
	v, ok := s.getString(ctx, key)
	if !ok {
		return nil
	}
	return &v
}

// AnonymousID returns the install's anonymous id, generating and persisting
// it on first use. The id is "anon_id_" followed by 64 random lowercase
// letters and never changes afterwards.
func (s *Store) AnonymousID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.getString(ctx, keyAnonymousID); ok && id != "" {
		return id, nil
	}
	id, err := newAnonymousID(s.rand)
	if err != nil {
		return "", fmt.Errorf("failed to generate anonymous id: %w", err)
	}
	if err := s.kv.Set(ctx, keyAnonymousID, []byte(id)); err != nil {
		return "", fmt.Errorf("failed to store anonymous id: %w", err)
	}
	glog.V(1).Infof("storage: generated anonymous id")
	return id, nil
}

func newAnonymousID(r io.Reader) (string, error) {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	// Bytes at or above limit are rejected so every letter is equally likely.
	const limit = 256 - 256%len(letters)

	out := make([]byte, 0, len(AnonymousIDPrefix)+anonymousIDLen)
	out = append(out, AnonymousIDPrefix...)
	buf := make([]byte, anonymousIDLen)
	for len(out) < cap(out) {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, letters[int(b)%len(letters)])
			if len(out) == cap(out) {
				break
			}
		}
	}
	return string(out), nil
}

// PlatformInstanceID returns a random UUID generated once per install.
func (s *Store) PlatformInstanceID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.getString(ctx, keyPlatformInstanceID); ok && id != "" {
		return id, nil
	}
	id := uuid.NewString()
	if err := s.kv.Set(ctx, keyPlatformInstanceID, []byte(id)); err != nil {
		return "", fmt.Errorf("failed to store platform instance id: %w", err)
	}
	return id, nil
}

func (s *Store) UserID(ctx context.Context) (string, bool) {
	return s.getString(ctx, keyUserID)
}

func (s *Store) SetUserID(ctx context.Context, id string) error {
	return s.setString(ctx, keyUserID, id)
}

func (s *Store) ExternalUserID(ctx context.Context) (string, bool) {
	return s.getString(ctx, keyExternalUserID)
}

func (s *Store) SetExternalUserID(ctx context.Context, id string) error {
	return s.setString(ctx, keyExternalUserID, id)
}

func (s *Store) InternalUserID(ctx context.Context) (string, bool) {
	return s.getString(ctx, keyInternalUserID)
}

func (s *Store) SetInternalUserID(ctx context.Context, id string) error {
	return s.setString(ctx, keyInternalUserID, id)
}

// UserIDs returns the caller-assigned ids sent with every request.
func (s *Store) UserIDs(ctx context.Context) model.UserIDs {
	ext, _ := s.ExternalUserID(ctx)
	internal, _ := s.InternalUserID(ctx)
	return model.UserIDs{ExternalUserID: ext, InternalUserID: internal}
}

func (s *Store) PushToken(ctx context.Context) (string, bool) {
	return s.getString(ctx, keyPushToken)
}

func (s *Store) SetPushToken(ctx context.Context, token string) error {
	return s.setString(ctx, keyPushToken, token)
}

// SaveValidationResult replaces the stored validation result. Optional fields
// absent from r are deleted so no value of an earlier result survives.
func (s *Store) SaveValidationResult(ctx context.Context, r *model.ValidationResult) error {
	if r == nil {
		return errors.New("storage: nil validation result")
	}
	payment, err := Canonical(r.PaymentData)
	if err != nil {
		return err
	}
	used, err := Canonical(r.UsedProducts)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	writes := []struct {
		key   string
		value *string
	}{
		{keyResultUserID, r.UserID},
		{keyResultInternalUserID, r.InternalUserID},
		{keyResultExternalUserID, r.ExternalUserID},
		{keyResultUserSince, r.UserSince},
		{keyResultAccessValidTill, r.AccessValidTill},
	}
	for _, w := range writes {
		if err := s.setOptional(ctx, w.key, w.value); err != nil {
			return fmt.Errorf("failed to store %s: %w", w.key, err)
		}
	}
	if err := s.kv.Set(ctx, keyResultUsedProducts, used); err != nil {
		return fmt.Errorf("failed to store used products: %w", err)
	}
	// Payment data goes last: its presence marks a complete result.
	if err := s.kv.Set(ctx, keyResultPaymentData, payment); err != nil {
		return fmt.Errorf("failed to store payment data: %w", err)
	}
	return nil
}

// ValidationResult returns the last stored result, if any.
func (s *Store) ValidationResult(ctx context.Context) (*model.ValidationResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payment, err := s.kv.Get(ctx, keyResultPaymentData)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			glog.Warningf("storage: read payment data: %v", err)
		}
		return nil, false
	}
	r := &model.ValidationResult{}
	if err := json.Unmarshal(payment, &r.PaymentData); err != nil {
		glog.Warningf("storage: stored payment data is corrupt: %v", err)
		return nil, false
	}
	if used, err := s.kv.Get(ctx, keyResultUsedProducts); err == nil {
		if err := json.Unmarshal(used, &r.UsedProducts); err != nil {
			glog.Warningf("storage: stored used products are corrupt: %v", err)
		}
	}
	r.UserID = s.getOptional(ctx, keyResultUserID)
	r.InternalUserID = s.getOptional(ctx, keyResultInternalUserID)
	r.ExternalUserID = s.getOptional(ctx, keyResultExternalUserID)
	r.UserSince = s.getOptional(ctx, keyResultUserSince)
	r.AccessValidTill = s.getOptional(ctx, keyResultAccessValidTill)
	return r, true
}

// Increment adds one to the named counter and returns the new value.
func (s *Store) Increment(ctx context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := counterPrefix + name
	var n int64
	if v, ok := s.getString(ctx, key); ok {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("counter %s holds %q: %w", name, v, err)
		}
		n = parsed
	}
	n++
	if err := s.kv.Set(ctx, key, []byte(strconv.FormatInt(n, 10))); err != nil {
		return 0, err
	}
	return n, nil
}

// Counter returns the current value of the named counter.
func (s *Store) Counter(ctx context.Context, name string) int64 {
	v, ok := s.getString(ctx, counterPrefix+name)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(v, 10, 64)
	return n
}
