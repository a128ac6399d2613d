package app

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vocdoni/gofirma/receiptsync/internal/config"
	"github.com/vocdoni/gofirma/receiptsync/internal/crypto/der"
	"github.com/vocdoni/gofirma/receiptsync/internal/model"
	"github.com/vocdoni/gofirma/receiptsync/internal/notify"
	"github.com/vocdoni/gofirma/receiptsync/internal/storage"
	"github.com/vocdoni/gofirma/receiptsync/internal/storekit"
)

const validationOK = `{"_code":200,"_data":{
	"user_id":"u-42",
	"subscriptions":{"apple_app_store":[{"product_id":"pro_monthly","valid":true,"expiration":"2030-01-01T00:00:00Z","status":1,"renewing":true}],"google_play":[],"stripe":[],"paypal":[]},
	"non_consumables":{"apple_app_store":[],"google_play":[],"stripe":[],"paypal":[]},
	"used_products":{"apple_app_store":[],"google_play":[],"stripe":[],"paypal":[]},
	"access_valid_till":"2030-01-01T00:00:00Z"}}`

func receiptBytes(bundleID string) []byte {
	attr := func(typ int, value []byte) []byte {
		return der.MarshalSequence(der.MarshalInt(int64(typ)), der.MarshalInt(1), der.MarshalOctetString(value))
	}
	payload := der.MarshalSet(
		attr(2, der.MarshalUTF8String(bundleID)),
		attr(12, der.MarshalIA5String("2024-03-01T10:00:00Z")),
	)
	data, _ := der.MarshalOID(der.OIDData)
	signed, _ := der.MarshalOID(der.OIDSignedData)
	return der.MarshalSequence(
		signed,
		der.MarshalExplicit(0, der.MarshalSequence(
			der.MarshalInt(1),
			der.MarshalSequence(data, der.MarshalExplicit(0, der.MarshalOctetString(payload))),
		)),
	)
}

type backend struct {
	mu       sync.Mutex
	hits     map[string]int
	bodies   map[string][]byte
	queries  map[string]string
	response func(path string) string
}

func newBackend() *backend {
	return &backend{
		hits:    map[string]int{},
		bodies:  map[string][]byte{},
		queries: map[string]string{},
		response: func(path string) string {
			if path == "/sdk/receipt_ios" {
				return validationOK
			}
			return `{"_code":200}`
		},
	}
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	b.mu.Lock()
	b.hits[r.URL.Path]++
	b.bodies[r.URL.Path] = body
	b.queries[r.URL.Path] = r.URL.RawQuery
	resp := b.response(r.URL.Path)
	b.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, resp)
}

func (b *backend) count(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[path]
}

func (b *backend) body(path string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bodies[path]
}

func testConfig(t *testing.T, baseURL string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.BaseURL = baseURL
	cfg.APIKey = "key"
	cfg.DataDir = t.TempDir()
	cfg.Store = config.StoreMemory
	cfg.ReceiptPath = filepath.Join(cfg.DataDir, "receipt.bin")
	cfg.Timeout = 5 * time.Second
	return cfg
}

func newTestApp(t *testing.T, cfg config.Config, opts ...Option) *App {
	t.Helper()
	a, err := NewApp(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestValidatePersistsAndNotifies(t *testing.T) {
	be := newBackend()
	srv := httptest.NewServer(be)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.BundleID = "com.example.app"
	raw := receiptBytes("com.example.app")
	require.NoError(t, os.WriteFile(cfg.ReceiptPath, raw, 0600))

	var notified atomic.Int32
	a := newTestApp(t, cfg, WithListener(notify.ListenerFunc(func(ctx context.Context, r *model.ValidationResult) {
		notified.Add(1)
	})))
	ctx := context.Background()

	prices := []model.Price{{ProductID: "pro_monthly", Price: "4.99", Currency: "USD"}}
	res := a.Service.ValidateSync(ctx, prices)
	require.NotNil(t, res)
	assert.Equal(t, "u-42", *res.UserID)
	assert.Equal(t, int32(1), notified.Load())

	stored, ok := a.Service.Entitlements(ctx)
	require.True(t, ok)
	assert.Equal(t, []string{"pro_monthly"}, stored.ActiveProducts())
	uid, ok := a.Store.UserID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "u-42", uid)

	var sent model.ReceiptRequest
	require.NoError(t, json.Unmarshal(be.body("/sdk/receipt_ios"), &sent))
	assert.Equal(t, "key", sent.APIKey)
	assert.True(t, strings.HasPrefix(sent.AnonymousID, storage.AnonymousIDPrefix))
	assert.Equal(t, base64.StdEncoding.EncodeToString(raw), sent.Receipt)
	assert.Equal(t, prices, sent.Prices)

	entries, err := a.Journal.ReadAll()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "receipt_ios", entries[0].Operation)
}

func TestValidateNilResultLeavesStateUnchanged(t *testing.T) {
	be := newBackend()
	be.response = func(string) string { return `{"_code":500}` }
	srv := httptest.NewServer(be)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	require.NoError(t, os.WriteFile(cfg.ReceiptPath, receiptBytes("com.example.app"), 0600))
	a := newTestApp(t, cfg)
	ctx := context.Background()

	assert.Nil(t, a.Service.ValidateSync(ctx, nil))
	assert.Equal(t, 3, be.count("/sdk/receipt_ios"))
	_, ok := a.Service.Entitlements(ctx)
	assert.False(t, ok)
}

func TestValidateBundleMismatch(t *testing.T) {
	be := newBackend()
	srv := httptest.NewServer(be)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.BundleID = "com.example.other"
	require.NoError(t, os.WriteFile(cfg.ReceiptPath, receiptBytes("com.example.app"), 0600))
	a := newTestApp(t, cfg)

	assert.Nil(t, a.Service.ValidateSync(context.Background(), nil))
	assert.Zero(t, be.count("/sdk/receipt_ios"))
}

func TestValidateMissingReceiptRefreshesOnce(t *testing.T) {
	be := newBackend()
	srv := httptest.NewServer(be)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	var refreshes atomic.Int32
	a := newTestApp(t, cfg, WithRefresher(storekit.RefresherFunc(func(ctx context.Context) error {
		refreshes.Add(1)
		return os.WriteFile(cfg.ReceiptPath, receiptBytes("com.example.app"), 0600)
	})))

	assert.NotNil(t, a.Service.ValidateSync(context.Background(), nil))
	assert.Equal(t, int32(1), refreshes.Load())
	assert.Equal(t, 1, be.count("/sdk/receipt_ios"))
}

func TestValidateRefreshedReceiptThatDoesNotDecodeIsNotRefreshedAgain(t *testing.T) {
	be := newBackend()
	srv := httptest.NewServer(be)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	garbage := []byte("still not a receipt")
	var refreshes atomic.Int32
	a := newTestApp(t, cfg, WithRefresher(storekit.RefresherFunc(func(ctx context.Context) error {
		refreshes.Add(1)
		return os.WriteFile(cfg.ReceiptPath, garbage, 0600)
	})))

	assert.NotNil(t, a.Service.ValidateSync(context.Background(), nil))
	assert.Equal(t, int32(1), refreshes.Load())

	var sent model.ReceiptRequest
	require.NoError(t, json.Unmarshal(be.body("/sdk/receipt_ios"), &sent))
	assert.Equal(t, base64.StdEncoding.EncodeToString(garbage), sent.Receipt)
}

func TestValidateMissingReceiptWithoutRefresher(t *testing.T) {
	be := newBackend()
	srv := httptest.NewServer(be)
	defer srv.Close()

	a := newTestApp(t, testConfig(t, srv.URL))
	assert.Nil(t, a.Service.ValidateSync(context.Background(), nil))
	assert.Zero(t, be.count("/sdk/receipt_ios"))
}

func TestValidateUndecodableReceiptIsSubmitted(t *testing.T) {
	be := newBackend()
	srv := httptest.NewServer(be)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.BundleID = "com.example.app"
	garbage := []byte("not a receipt")
	require.NoError(t, os.WriteFile(cfg.ReceiptPath, garbage, 0600))
	var refreshes atomic.Int32
	a := newTestApp(t, cfg, WithRefresher(storekit.RefresherFunc(func(ctx context.Context) error {
		refreshes.Add(1)
		return nil
	})))

	assert.NotNil(t, a.Service.ValidateSync(context.Background(), nil))
	assert.Equal(t, int32(1), refreshes.Load())

	var sent model.ReceiptRequest
	require.NoError(t, json.Unmarshal(be.body("/sdk/receipt_ios"), &sent))
	assert.Equal(t, base64.StdEncoding.EncodeToString(garbage), sent.Receipt)
}

func TestPurchaseBatchValidatesOnceWithPrices(t *testing.T) {
	be := newBackend()
	srv := httptest.NewServer(be)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.CatalogPath = filepath.Join(cfg.DataDir, "catalog.json")
	require.NoError(t, os.WriteFile(cfg.CatalogPath, []byte(`[{"product_id":"pro_monthly","price":"4.99","currency":"USD"}]`), 0600))
	require.NoError(t, os.WriteFile(cfg.ReceiptPath, receiptBytes("com.example.app"), 0600))
	a := newTestApp(t, cfg)

	results := make(chan *model.ValidationResult, 1)
	a.Purchases.OnResult = func(r *model.ValidationResult) { results <- r }

	a.Observer.UpdatedTransactions(context.Background(), []storekit.Transaction{
		{ProductID: "pro_monthly", TransactionID: "1", State: storekit.StatePurchased},
		{ProductID: "pro_monthly", TransactionID: "2", State: storekit.StateRestored},
		{ProductID: "unknown", TransactionID: "3", State: storekit.StatePurchased},
		{ProductID: "coins", TransactionID: "4", State: storekit.StateFailed},
	})

	select {
	case r := <-results:
		assert.NotNil(t, r)
	case <-time.After(5 * time.Second):
		t.Fatal("no validation result")
	}
	assert.Equal(t, 1, be.count("/sdk/receipt_ios"))

	var sent model.ReceiptRequest
	require.NoError(t, json.Unmarshal(be.body("/sdk/receipt_ios"), &sent))
	assert.Equal(t, []model.Price{{ProductID: "pro_monthly", Price: "4.99", Currency: "USD"}}, sent.Prices)
}

func TestPurchaseBatchSkipsIncompletePrices(t *testing.T) {
	be := newBackend()
	srv := httptest.NewServer(be)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.CatalogPath = filepath.Join(cfg.DataDir, "catalog.json")
	require.NoError(t, os.WriteFile(cfg.CatalogPath, []byte(`[
		{"product_id":"pro_monthly","price":"4.99","currency":"USD"},
		{"product_id":"lifetime","price":"19.99"},
		{"product_id":"coins","price":"0.99","currency":"EURO"}]`), 0600))
	require.NoError(t, os.WriteFile(cfg.ReceiptPath, receiptBytes("com.example.app"), 0600))
	a := newTestApp(t, cfg)

	results := make(chan *model.ValidationResult, 1)
	a.Purchases.OnResult = func(r *model.ValidationResult) { results <- r }

	a.Observer.UpdatedTransactions(context.Background(), []storekit.Transaction{
		{ProductID: "pro_monthly", TransactionID: "1", State: storekit.StatePurchased},
		{ProductID: "lifetime", TransactionID: "2", State: storekit.StatePurchased},
		{ProductID: "coins", TransactionID: "3", State: storekit.StatePurchased},
	})

	select {
	case r := <-results:
		assert.NotNil(t, r)
	case <-time.After(5 * time.Second):
		t.Fatal("no validation result")
	}
	assert.Equal(t, 1, be.count("/sdk/receipt_ios"))

	var sent model.ReceiptRequest
	require.NoError(t, json.Unmarshal(be.body("/sdk/receipt_ios"), &sent))
	assert.Equal(t, []model.Price{{ProductID: "pro_monthly", Price: "4.99", Currency: "USD"}}, sent.Prices)
}

func TestAuxiliaryCalls(t *testing.T) {
	be := newBackend()
	srv := httptest.NewServer(be)
	defer srv.Close()

	a := newTestApp(t, testConfig(t, srv.URL))
	ctx := context.Background()

	wait := func(op interface{ Done() <-chan struct{} }, err error) {
		t.Helper()
		require.NoError(t, err)
		<-op.Done()
	}

	var ok atomic.Bool
	op, err := a.Service.RegisterInstall(ctx, Install{Locale: "en_US"}, func(b bool) { ok.Store(b) })
	wait(op, err)
	assert.True(t, ok.Load())
	be.mu.Lock()
	q := be.queries["/sdk/register_install"]
	be.mu.Unlock()
	assert.Contains(t, q, "platform=ios")
	assert.Contains(t, q, "locale=en_US")
	assert.Contains(t, q, "anonymous_id=anon_id_")

	op, err = a.Service.SetUserID(ctx, model.UserIDs{ExternalUserID: "ext-1"}, nil)
	wait(op, err)
	ext, _ := a.Store.ExternalUserID(ctx)
	assert.Equal(t, "ext-1", ext)

	op, err = a.Service.SetProperties(ctx, map[string]any{"plan": "gold"}, nil)
	wait(op, err)
	var set model.SetRequest
	require.NoError(t, json.Unmarshal(be.body("/sdk/set"), &set))
	assert.Equal(t, "gold", set.Parameters["plan"])
	assert.Equal(t, "ext-1", set.ExternalUserID)

	op, err = a.Service.SetPushToken(ctx, "push-1", nil)
	wait(op, err)
	tok, _ := a.Store.PushToken(ctx)
	assert.Equal(t, "push-1", tok)

	op, err = a.Service.SubmitAdServicesToken(ctx, "ad-token", nil)
	wait(op, err)
	assert.Equal(t, 1, be.count("/sdk/adservices_token"))

	_, err = a.Service.SubmitAdServicesToken(ctx, "", nil)
	assert.Error(t, err)
}

func TestNewAppWithBoltAndSealing(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Store = config.StoreBolt
	cfg.VaultPassphrase = "secret"

	a, err := NewApp(cfg)
	require.NoError(t, err)
	ctx := context.Background()
	id, err := a.Store.AnonymousID(ctx)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	_, err = os.Stat(filepath.Join(cfg.DataDir, storage.BoltFileName))
	require.NoError(t, err)

	b, err := NewApp(cfg)
	require.NoError(t, err)
	defer b.Close()
	again, err := b.Store.AnonymousID(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, again)
}
