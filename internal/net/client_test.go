package net

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vocdoni/gofirma/receiptsync/internal/model"
)

func TestClientGetSendsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/sdk/register_install", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "ios", r.URL.Query().Get("platform"))
		_, _ = w.Write([]byte(`{"_code":200}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL})
	resp, err := c.Do(context.Background(), &Request{
		Method: http.MethodGet,
		Path:   "/sdk/register_install",
		Query:  map[string]string{"api_key": "key", "platform": "ios"},
	})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.JSONEq(t, `{"_code":200}`, string(resp.Body))
}

func TestClientPostSendsJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.URL.RawQuery)
		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.JSONEq(t, `{"api_key":"key","anonymous_id":"anon_id_x","token":"tok"}`, string(raw))
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"_code":400}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL})
	resp, err := c.Do(context.Background(), &Request{
		Method: http.MethodPost,
		Path:   "/sdk/adservices_token",
		Body:   &model.AdServicesTokenRequest{APIKey: "key", AnonymousID: "anon_id_x", Token: "tok"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.True(t, IsTerminal(resp.Body))
}

func TestClientTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	resp, err := NewClient(ClientConfig{BaseURL: url, Timeout: time.Second}).Do(context.Background(), &Request{
		Method: http.MethodPost,
		Path:   "/sdk/set",
	})
	assert.Error(t, err)
	assert.Nil(t, resp)
}

func TestClientCapsConcurrency(t *testing.T) {
	var current, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		current.Add(-1)
		_, _ = w.Write([]byte(`{"_code":200}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL})
	var wg sync.WaitGroup
	for i := 0; i < 9; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Do(context.Background(), &Request{Method: http.MethodPost, Path: "/sdk/set"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(DefaultConcurrency))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestClientSlotWaitHonoursContext(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
		_, _ = w.Write([]byte(`{"_code":200}`))
	}))
	defer srv.Close()
	defer close(block)

	c := NewClient(ClientConfig{BaseURL: srv.URL, Concurrency: 1})
	go func() {
		_, _ = c.Do(context.Background(), &Request{Method: http.MethodPost, Path: "/sdk/set"})
	}()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Do(ctx, &Request{Method: http.MethodPost, Path: "/sdk/set"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAPIEndpoints(t *testing.T) {
	type call struct {
		method, path string
		body         map[string]any
	}
	var mu sync.Mutex
	var calls []call
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := call{method: r.Method, path: r.URL.Path}
		if r.Method != http.MethodGet {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&c.body))
		}
		mu.Lock()
		calls = append(calls, c)
		mu.Unlock()
		_, _ = w.Write([]byte(`{"_code":200}`))
	}))
	defer srv.Close()

	api := NewAPI(NewRetrier(NewClient(ClientConfig{BaseURL: srv.URL})))
	ctx := context.Background()
	anon := "anon_id_" + "abcdefghijklmnopqrstuvwxyzabcdefghijklmnopqrstuvwxyzabcdefghijkl"

	wait := func(op *Operation, err error) {
		t.Helper()
		require.NoError(t, err)
		<-op.Done()
	}
	wait(api.RegisterInstall(ctx, &model.RegisterInstallRequest{
		APIKey: "key", AnonymousID: anon, Platform: "ios", PlatformInstanceIdentifier: "id",
	}, nil))
	wait(api.SubmitAdServicesToken(ctx, &model.AdServicesTokenRequest{APIKey: "key", AnonymousID: anon, Token: "tok"}, nil))
	wait(api.ValidateReceipt(ctx, &model.ReceiptRequest{APIKey: "key", AnonymousID: anon, Receipt: "MAA="}, nil))
	wait(api.Set(ctx, &model.SetRequest{APIKey: "key", AnonymousID: anon, ExternalUserID: "u1"}, nil))

	require.Len(t, calls, 4)
	assert.Equal(t, call{method: http.MethodGet, path: "/sdk/register_install"}, calls[0])
	assert.Equal(t, "/sdk/adservices_token", calls[1].path)
	assert.Equal(t, "tok", calls[1].body["token"])
	assert.Equal(t, "/sdk/receipt_ios", calls[2].path)
	assert.Equal(t, "MAA=", calls[2].body["receipt"])
	assert.Equal(t, "/sdk/set", calls[3].path)
	assert.Equal(t, "u1", calls[3].body["external_user_id"])

	_, err := api.ValidateReceipt(ctx, &model.ReceiptRequest{APIKey: "key"}, func([]byte) {
		t.Error("completion called for invalid request")
	})
	assert.Error(t, err)
}
