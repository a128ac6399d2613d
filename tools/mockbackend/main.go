package main

import (
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"html/template"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/vocdoni/gofirma/receiptsync/internal/model"
	"github.com/vocdoni/gofirma/receiptsync/internal/receipt"
)

// AccountState is what the backend remembers about one anonymous id.
type AccountState struct {
	UserID         string
	ExternalUserID string
	InternalUserID string
	Installs       int
	Validations    int
	Properties     map[string]any
	AdTokens       []string
	UserSince      time.Time
	Result         *model.ReceiptData
}

type server struct {
	apiKey   string
	failures atomic.Int64

	mu       sync.Mutex
	accounts map[string]*AccountState

	now func() time.Time
}

func newServer(apiKey string, failFirst int) *server {
	s := &server{
		apiKey:   apiKey,
		accounts: make(map[string]*AccountState),
		now:      time.Now,
	}
	s.failures.Store(int64(failFirst))
	return s
}

func main() {
	port := flag.Int("port", 8080, "Port to listen on")
	apiKey := flag.String("api-key", "", "Reject requests carrying another api_key (empty accepts any)")
	failFirst := flag.Int("fail-first", 0, "Answer the first N requests with 500")
	flag.Parse()
	defer glog.Flush()

	s := newServer(*apiKey, *failFirst)
	addr := fmt.Sprintf("0.0.0.0:%d", *port)
	glog.Infof("mock backend listening on %s", addr)
	if err := http.ListenAndServe(addr, s.routes()); err != nil {
		glog.Fatalf("server failed: %v", err)
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleDashboard)
	mux.HandleFunc("/sdk/register_install", s.guard(http.MethodGet, s.handleRegisterInstall))
	mux.HandleFunc("/sdk/adservices_token", s.guard(http.MethodPost, s.handleAdToken))
	mux.HandleFunc("/sdk/receipt_ios", s.guard(http.MethodPost, s.handleReceipt))
	mux.HandleFunc("/sdk/set", s.guard(http.MethodPost, s.handleSet))
	return mux
}

func writeEnvelope(w http.ResponseWriter, status, code int, data any) {
	env := map[string]any{"_code": code}
	if data != nil {
		env["_data"] = data
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

// guard applies fault injection and the method check.
func (s *server) guard(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.failures.Add(-1) >= 0 {
			glog.Infof("injecting failure for %s", r.URL.Path)
			writeEnvelope(w, http.StatusInternalServerError, http.StatusInternalServerError, nil)
			return
		}
		if r.Method != method {
			writeEnvelope(w, http.StatusMethodNotAllowed, http.StatusMethodNotAllowed, nil)
			return
		}
		next(w, r)
	}
}

func (s *server) authorized(w http.ResponseWriter, apiKey, anonID string) bool {
	if s.apiKey != "" && apiKey != s.apiKey {
		writeEnvelope(w, http.StatusUnauthorized, http.StatusUnauthorized, nil)
		return false
	}
	if !strings.HasPrefix(anonID, "anon_id_") {
		writeEnvelope(w, http.StatusBadRequest, http.StatusBadRequest, nil)
		return false
	}
	return true
}

// account returns the state for anonID, creating it. Callers hold s.mu.
func (s *server) account(anonID string) *AccountState {
	a, ok := s.accounts[anonID]
	if !ok {
		a = &AccountState{
			UserID:     uuid.New().String(),
			Properties: map[string]any{},
			UserSince:  s.now().UTC(),
		}
		s.accounts[anonID] = a
	}
	return a
}

func (s *server) handleRegisterInstall(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !s.authorized(w, q.Get("api_key"), q.Get("anonymous_id")) {
		return
	}
	if q.Get("platform") == "" || q.Get("platform_instance_identifier") == "" {
		writeEnvelope(w, http.StatusBadRequest, http.StatusBadRequest, nil)
		return
	}
	s.mu.Lock()
	s.account(q.Get("anonymous_id")).Installs++
	s.mu.Unlock()
	writeEnvelope(w, http.StatusOK, http.StatusOK, nil)
}

func (s *server) handleAdToken(w http.ResponseWriter, r *http.Request) {
	var req model.AdServicesTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeEnvelope(w, http.StatusBadRequest, http.StatusBadRequest, nil)
		return
	}
	if !s.authorized(w, req.APIKey, req.AnonymousID) {
		return
	}
	s.mu.Lock()
	a := s.account(req.AnonymousID)
	a.AdTokens = append(a.AdTokens, req.Token)
	s.mu.Unlock()
	writeEnvelope(w, http.StatusOK, http.StatusOK, nil)
}

func (s *server) handleSet(w http.ResponseWriter, r *http.Request) {
	var req model.SetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, http.StatusBadRequest, nil)
		return
	}
	if !s.authorized(w, req.APIKey, req.AnonymousID) {
		return
	}
	s.mu.Lock()
	a := s.account(req.AnonymousID)
	for k, v := range req.Parameters {
		a.Properties[k] = v
	}
	if req.ExternalUserID != "" {
		a.ExternalUserID = req.ExternalUserID
	}
	if req.InternalUserID != "" {
		a.InternalUserID = req.InternalUserID
	}
	s.mu.Unlock()
	writeEnvelope(w, http.StatusOK, http.StatusOK, nil)
}

func (s *server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	var req model.ReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, http.StatusBadRequest, nil)
		return
	}
	if !s.authorized(w, req.APIKey, req.AnonymousID) {
		return
	}
	raw, err := base64.StdEncoding.DecodeString(req.Receipt)
	if err != nil {
		writeEnvelope(w, http.StatusBadRequest, http.StatusBadRequest, nil)
		return
	}
	rec, err := receipt.Parse(raw)
	if err != nil {
		glog.Warningf("receipt from %s rejected: %v", req.AnonymousID, err)
		writeEnvelope(w, http.StatusUnprocessableEntity, http.StatusUnprocessableEntity, nil)
		return
	}

	s.mu.Lock()
	a := s.account(req.AnonymousID)
	if req.ExternalUserID != "" {
		a.ExternalUserID = req.ExternalUserID
	}
	if req.InternalUserID != "" {
		a.InternalUserID = req.InternalUserID
	}
	a.Validations++
	data := s.entitlements(a, rec)
	a.Result = data
	s.mu.Unlock()

	writeEnvelope(w, http.StatusOK, http.StatusOK, data)
}

// entitlements turns the purchases of rec into the response data. Purchases
// with an expiry are subscriptions, the rest non-consumables.
func (s *server) entitlements(a *AccountState, rec *receipt.Receipt) *model.ReceiptData {
	now := s.now()
	subs := model.StoreLists[model.Subscription]{AppleAppStore: []model.Subscription{}}
	ncs := model.StoreLists[model.NonConsumable]{AppleAppStore: []model.NonConsumable{}}
	used := model.StoreLists[json.RawMessage]{AppleAppStore: []json.RawMessage{}}

	var till time.Time
	for _, p := range rec.Purchases {
		active := p.IsActiveAt(now)
		switch {
		case p.ExpiresDate != nil:
			status := model.StatusPaid
			if p.IsInTrialPeriod != nil && *p.IsInTrialPeriod {
				status = model.StatusTrial
			}
			if p.CancellationDate != nil {
				status = model.StatusRefund
			}
			subs.AppleAppStore = append(subs.AppleAppStore, model.Subscription{
				ProductID:  p.ProductID,
				Valid:      active,
				Expiration: p.ExpiresDate.UTC().Format(time.RFC3339),
				Status:     status,
				Renewing:   active && p.CancellationDate == nil,
			})
			if active && p.ExpiresDate.After(till) {
				till = *p.ExpiresDate
			}
		case p.ProductType != nil && *p.ProductType == receipt.ProductTypeConsumable:
			entry, _ := json.Marshal(map[string]any{"product_id": p.ProductID, "quantity": p.Quantity})
			used.AppleAppStore = append(used.AppleAppStore, entry)
		default:
			ncs.AppleAppStore = append(ncs.AppleAppStore, model.NonConsumable{ProductID: p.ProductID, Valid: active})
		}
	}

	uid := a.UserID
	since := a.UserSince.Format(time.RFC3339)
	data := &model.ReceiptData{
		UserID:         &uid,
		Subscriptions:  &subs,
		NonConsumables: &ncs,
		UsedProducts:   &used,
		UserSince:      &since,
	}
	if a.ExternalUserID != "" {
		ext := a.ExternalUserID
		data.ExternalUserID = &ext
	}
	if a.InternalUserID != "" {
		in := a.InternalUserID
		data.InternalUserID = &in
	}
	if !till.IsZero() {
		t := till.UTC().Format(time.RFC3339)
		data.AccessValidTill = &t
	}
	return data
}

var dashboard = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>receiptsync mock backend</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; background: #f8f9fb; padding: 40px; color: #1a1c1e; }
        table { border-collapse: collapse; width: 100%; background: white; }
        th, td { border: 1px solid #e0e4e8; padding: 8px 12px; text-align: left; font-size: 0.9rem; }
        th { background: #f1f3f9; }
    </style>
</head>
<body>
    <h1>receiptsync mock backend</h1>
    <p>Pending injected failures: {{.Failures}}</p>
    <table>
        <tr><th>Anonymous id</th><th>User id</th><th>External</th><th>Installs</th><th>Validations</th><th>Access till</th></tr>
        {{range .Accounts}}
        <tr><td>{{.AnonID}}</td><td>{{.UserID}}</td><td>{{.ExternalUserID}}</td><td>{{.Installs}}</td><td>{{.Validations}}</td><td>{{.AccessTill}}</td></tr>
        {{end}}
    </table>
</body>
</html>`))

type dashboardRow struct {
	AnonID         string
	UserID         string
	ExternalUserID string
	Installs       int
	Validations    int
	AccessTill     string
}

func (s *server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.mu.Lock()
	rows := make([]dashboardRow, 0, len(s.accounts))
	for id, a := range s.accounts {
		row := dashboardRow{
			AnonID:         id,
			UserID:         a.UserID,
			ExternalUserID: a.ExternalUserID,
			Installs:       a.Installs,
			Validations:    a.Validations,
		}
		if a.Result != nil && a.Result.AccessValidTill != nil {
			row.AccessTill = *a.Result.AccessValidTill
		}
		rows = append(rows, row)
	}
	s.mu.Unlock()
	sort.Slice(rows, func(i, j int) bool { return rows[i].AnonID < rows[j].AnonID })

	failures := s.failures.Load()
	if failures < 0 {
		failures = 0
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboard.Execute(w, struct {
		Failures int64
		Accounts []dashboardRow
	}{failures, rows}); err != nil {
		glog.Errorf("dashboard: %v", err)
	}
}
