package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vocdoni/gofirma/receiptsync/internal/crypto/der"
	"github.com/vocdoni/gofirma/receiptsync/internal/model"
)

func init() {
	color.NoColor = true
	timeNow = func() time.Time { return time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC) }
}

func writeReceipt(t *testing.T) string {
	t.Helper()
	attr := func(typ int, value []byte) []byte {
		return der.MarshalSequence(der.MarshalInt(int64(typ)), der.MarshalInt(1), der.MarshalOctetString(value))
	}
	payload := der.MarshalSet(
		attr(2, der.MarshalUTF8String("com.example.app")),
		attr(3, der.MarshalUTF8String("2.1")),
		attr(12, der.MarshalIA5String("2024-03-01T10:00:00Z")),
		attr(17, der.MarshalSet(
			attr(1702, der.MarshalUTF8String("pro_monthly")),
			attr(1703, der.MarshalUTF8String("1000000001")),
			attr(1704, der.MarshalIA5String("2024-02-01T10:00:00Z")),
			attr(1708, der.MarshalIA5String("2024-04-01T10:00:00Z")),
		)),
	)
	data, _ := der.MarshalOID(der.OIDData)
	raw := der.MarshalSequence(data, der.MarshalExplicit(0, der.MarshalOctetString(payload)))
	path := filepath.Join(t.TempDir(), "receipt.bin")
	require.NoError(t, os.WriteFile(path, raw, 0600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestDecodeText(t *testing.T) {
	out, err := run(t, "decode", writeReceipt(t))
	require.NoError(t, err)
	assert.Contains(t, out, "com.example.app")
	assert.Contains(t, out, "Purchases (1)")
	assert.Contains(t, out, "pro_monthly")
	assert.Contains(t, out, " active")
	assert.Contains(t, out, "expires=2024-04-01T10:00:00Z")
}

func TestDecodeJSON(t *testing.T) {
	out, err := run(t, "decode", "--json", writeReceipt(t))
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "com.example.app", got["bundleId"])
	assert.Len(t, got["purchases"], 1)
}

func TestDecodeVerifyRejectsUnsigned(t *testing.T) {
	_, err := run(t, "decode", "--verify", writeReceipt(t))
	assert.Error(t, err)
}

func TestDecodeMissingFile(t *testing.T) {
	_, err := run(t, "decode", filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestParsePrices(t *testing.T) {
	got, err := parsePrices([]string{"pro:4.99:usd"})
	require.NoError(t, err)
	assert.Equal(t, []model.Price{{ProductID: "pro", Price: "4.99", Currency: "USD"}}, got)

	_, err = parsePrices([]string{"pro:4.99"})
	assert.Error(t, err)
}

func setupBackend(t *testing.T, handler http.HandlerFunc) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	dir := t.TempDir()
	t.Setenv("RECEIPTSYNC_BASE_URL", srv.URL)
	t.Setenv("RECEIPTSYNC_API_KEY", "key")
	t.Setenv("RECEIPTSYNC_DATA_DIR", dir)
	t.Setenv("RECEIPTSYNC_STORE", "memory")
	t.Setenv("RECEIPTSYNC_RECEIPT_PATH", filepath.Join(dir, "receipt.bin"))
	t.Setenv("RECEIPTSYNC_NATS_URL", "")
	t.Setenv("RECEIPTSYNC_BUNDLE_ID", "")
	t.Setenv("RECEIPTSYNC_VAULT_PASSPHRASE", "")
}

func TestValidateCommand(t *testing.T) {
	var sent model.ReceiptRequest
	setupBackend(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &sent)
		_, _ = io.WriteString(w, `{"_code":200,"_data":{"user_id":"u-1",
			"subscriptions":{"apple_app_store":[{"product_id":"pro_monthly","valid":true,"expiration":"2024-04-01T10:00:00Z","status":1,"renewing":true}]},
			"non_consumables":{},"access_valid_till":"2024-04-01T10:00:00Z"}}`)
	})

	out, err := run(t, "validate", "--env-file", filepath.Join(t.TempDir(), "none.env"), "--price", "pro_monthly:4.99:USD", writeReceipt(t))
	require.NoError(t, err)
	assert.Contains(t, out, "u-1")
	assert.Contains(t, out, "Access granted")
	assert.Contains(t, out, "Subscriptions (1)")
	assert.Equal(t, "key", sent.APIKey)
	require.Len(t, sent.Prices, 1)
}

func TestValidateCommandWithoutResult(t *testing.T) {
	setupBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"_code":404}`)
	})
	env := filepath.Join(t.TempDir(), "none.env")
	out, err := run(t, "validate", "--env-file", env, writeReceipt(t))
	assert.ErrorIs(t, err, errNoResult)
	assert.Contains(t, out, "No validation result")

	out, err = run(t, "validate", "--json", "--env-file", env, writeReceipt(t))
	assert.ErrorIs(t, err, errNoResult)
	assert.Equal(t, "null\n", out)
}

func TestAccountCommands(t *testing.T) {
	paths := make(chan string, 8)
	setupBackend(t, func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		_, _ = io.WriteString(w, `{"_code":200}`)
	})
	env := filepath.Join(t.TempDir(), "none.env")

	out, err := run(t, "register", "--env-file", env, "--locale", "en_US")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ register install")
	assert.Equal(t, "/sdk/register_install", <-paths)

	_, err = run(t, "set", "--env-file", env, "--user-id", "ext-1", "--param", "plan=gold")
	require.NoError(t, err)
	assert.Equal(t, "/sdk/set", <-paths)
	assert.Equal(t, "/sdk/set", <-paths)

	_, err = run(t, "adtoken", "--env-file", env, "tok")
	require.NoError(t, err)
	assert.Equal(t, "/sdk/adservices_token", <-paths)

	_, err = run(t, "set", "--env-file", env)
	assert.Error(t, err)
}
