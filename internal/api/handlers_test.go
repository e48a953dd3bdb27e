package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/kiberone/kiberbot/internal/crm"
	"github.com/kiberone/kiberbot/internal/db"
	"github.com/kiberone/kiberbot/internal/models"
)

const testToken = "service-token"

type fakeCRM struct {
	customers map[int64]*crm.Customer
	txs       []crm.Transaction
	groups    []string
	linked    map[int64]int64
	balances  map[int64]crm.Balance
	// balanceCalls counts GetBalance lookups.
	balanceCalls int
}

func (f *fakeCRM) FindCustomerByExternalID(ctx context.Context, id int64) *crm.Customer {
	return f.customers[id]
}

func (f *fakeCRM) GetBalance(ctx context.Context, customerID int64) crm.Balance {
	f.balanceCalls++
	return f.balances[customerID]
}

func (f *fakeCRM) GetTransactions(ctx context.Context, customerID int64, limit int) []crm.Transaction {
	if len(f.txs) > limit {
		return f.txs[:limit]
	}
	return f.txs
}

func (f *fakeCRM) GetGroups(ctx context.Context, customerID int64) []string {
	return f.groups
}

func (f *fakeCRM) FindCustomerByPhone(ctx context.Context, phone string) *crm.Customer {
	if phone == "+79001234567" {
		return f.customers[42]
	}
	return nil
}

func (f *fakeCRM) SearchCustomers(ctx context.Context, query string) []map[string]any {
	return []map[string]any{{"id": float64(3), "name": query}}
}

func (f *fakeCRM) UpdateExternalIDField(ctx context.Context, customerID, externalID int64, fieldKey string) bool {
	if customerID != 3 {
		return false
	}
	f.linked[customerID] = externalID
	return true
}

type fakeStore struct {
	mu        sync.Mutex
	rules     map[string]string
	messages  []db.DirectorMessage
	delivered map[uuid.UUID]bool
	saveErr   error
}

func (s *fakeStore) GetRules(ctx context.Context, kind string) (*db.Rules, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.rules[kind]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &db.Rules{Kind: kind, Text: text}, nil
}

func (s *fakeStore) SetRules(ctx context.Context, kind, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[kind] = text
	return nil
}

func (s *fakeStore) SaveDirectorMessage(ctx context.Context, telegramID int64, userName, message string) (*db.DirectorMessage, error) {
	if s.saveErr != nil {
		return nil, s.saveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m := db.DirectorMessage{ID: uuid.New(), TelegramID: telegramID, UserName: userName, Message: message}
	s.messages = append(s.messages, m)
	return &m, nil
}

func (s *fakeStore) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered[id] = true
	return nil
}

func (s *fakeStore) ListDirectorMessages(ctx context.Context, limit int) ([]db.DirectorMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) > limit {
		return s.messages[:limit], nil
	}
	return s.messages, nil
}

type fakeNotifier struct {
	ok    bool
	err   error
	calls int
}

func (n *fakeNotifier) Notify(ctx context.Context, telegramID int64, userName, message string) (bool, error) {
	n.calls++
	return n.ok, n.err
}

type fixture struct {
	api      *API
	crm      *fakeCRM
	store    *fakeStore
	notifier *fakeNotifier
}

func newFixture() *fixture {
	return newFixtureWithSecret("secret")
}

func newFixtureWithSecret(secret string) *fixture {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &fixture{
		crm: &fakeCRM{
			customers: map[int64]*crm.Customer{
				42: {ID: 7, Name: "Анна Иванова", Groups: []string{"Python 1", "Scratch"}},
				43: {ID: 8, Name: "Иван Петров"},
			},
			txs: []crm.Transaction{
				{Type: crm.TransactionIncome, Amount: decimal.NewFromInt(500), Currency: crm.DefaultCurrency, Date: "2024-03-01"},
				{Type: crm.TransactionExpense, Amount: decimal.NewFromInt(250), Currency: crm.DefaultCurrency, Date: "2024-02-01"},
			},
			groups: []string{"Roblox"},
			linked: map[int64]int64{},
			balances: map[int64]crm.Balance{
				7: {Balance: decimal.NewFromInt(1500), PaidLessons: 4, BonusPoints: 12},
			},
		},
		store:    &fakeStore{rules: map[string]string{}, delivered: map[uuid.UUID]bool{}},
		notifier: &fakeNotifier{ok: true},
	}
	f.api = New(Options{
		ServiceToken: testToken,
		JWTSecret:    secret,
		TokenTTL:     time.Minute,
	}, f.crm, f.store, f.notifier, logger)
	return f
}

func (f *fixture) do(t *testing.T, method, target, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.api.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
}

func TestPublicEndpoints(t *testing.T) {
	f := newFixture()

	for _, path := range []string{"/", "/health"} {
		w := f.do(t, "GET", path, "", "")
		if w.Code != http.StatusOK {
			t.Errorf("GET %s status = %d", path, w.Code)
		}
	}

	var health map[string]string
	decode(t, f.do(t, "GET", "/health", "", ""), &health)
	if health["status"] != "healthy" {
		t.Errorf("health = %v", health)
	}
	if _, err := time.Parse(time.RFC3339, health["timestamp"]); err != nil {
		t.Errorf("timestamp %q: %v", health["timestamp"], err)
	}
}

func TestAuthMiddleware(t *testing.T) {
	f := newFixture()

	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
	}).SignedString([]byte("secret"))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "not bearer", header: "Token " + testToken, want: http.StatusUnauthorized},
		{name: "wrong token", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "expired jwt", header: "Bearer " + expired, want: http.StatusUnauthorized},
		{name: "service token", header: "Bearer " + testToken, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/admin/rules/bot", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			f.api.Handler().ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestIssuedTokenAuthenticates(t *testing.T) {
	f := newFixture()

	w := f.do(t, "POST", "/auth/token", `{"subject":"admin-panel","scope":"admin"}`, testToken)
	if w.Code != http.StatusOK {
		t.Fatalf("POST /auth/token status = %d", w.Code)
	}
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	decode(t, w, &resp)

	if w := f.do(t, "GET", "/admin/rules/school", "", resp.AccessToken); w.Code != http.StatusOK {
		t.Errorf("GET with issued token status = %d", w.Code)
	}
	if w := f.do(t, "POST", "/auth/token", "", resp.AccessToken); w.Code != http.StatusForbidden {
		t.Errorf("token issue with a JWT status = %d, want 403", w.Code)
	}
}

func issue(t *testing.T, f *fixture, body string) string {
	t.Helper()
	w := f.do(t, "POST", "/auth/token", body, testToken)
	if w.Code != http.StatusOK {
		t.Fatalf("POST /auth/token %s status = %d", body, w.Code)
	}
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	decode(t, w, &resp)
	return resp.AccessToken
}

func TestJWTScope(t *testing.T) {
	f := newFixture()
	client := issue(t, f, `{"subject":"portal"}`)
	admin := issue(t, f, `{"subject":"admin-panel","scope":"admin"}`)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		token  string
		want   int
	}{
		{name: "client reads profile", method: "GET", target: "/users/profile?telegram_id=42", token: client, want: http.StatusOK},
		{name: "client writes to director", method: "POST", target: "/messages/director", body: `{"telegram_id":42,"message":"Добрый день"}`, token: client, want: http.StatusOK},
		{name: "client lists director messages", method: "GET", target: "/messages/director", token: client, want: http.StatusForbidden},
		{name: "client reads rules", method: "GET", target: "/admin/rules/bot", token: client, want: http.StatusForbidden},
		{name: "client writes rules", method: "PUT", target: "/admin/rules/bot", body: `{"text":"x"}`, token: client, want: http.StatusForbidden},
		{name: "client links customer", method: "POST", target: "/admin/customers/3/link", body: `{"telegram_id":999}`, token: client, want: http.StatusForbidden},
		{name: "admin lists director messages", method: "GET", target: "/messages/director", token: admin, want: http.StatusOK},
		{name: "admin reads rules", method: "GET", target: "/admin/rules/bot", token: admin, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := f.do(t, tt.method, tt.target, tt.body, tt.token); w.Code != tt.want {
				t.Errorf("%s %s status = %d, want %d", tt.method, tt.target, w.Code, tt.want)
			}
		})
	}
	if len(f.crm.linked) != 0 {
		t.Errorf("client token linked customers: %v", f.crm.linked)
	}

	if w := f.do(t, "POST", "/auth/token", `{"scope":"root"}`, testToken); w.Code != http.StatusBadRequest {
		t.Errorf("unknown scope status = %d, want 400", w.Code)
	}
}

func TestNoSecretDisablesJWT(t *testing.T) {
	f := newFixtureWithSecret("")

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Scope: ScopeAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "attacker",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("dev-only-change-me"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if w := f.do(t, "GET", "/messages/director", "", forged); w.Code != http.StatusUnauthorized {
		t.Errorf("list with foreign JWT status = %d, want 401", w.Code)
	}
	if w := f.do(t, "POST", "/admin/customers/3/link", `{"telegram_id":999}`, forged); w.Code != http.StatusUnauthorized {
		t.Errorf("link with foreign JWT status = %d, want 401", w.Code)
	}
	if len(f.crm.linked) != 0 {
		t.Errorf("linked = %v, want none", f.crm.linked)
	}

	if w := f.do(t, "POST", "/auth/token", "", testToken); w.Code != http.StatusServiceUnavailable {
		t.Errorf("token issue without secret status = %d, want 503", w.Code)
	}
	if w := f.do(t, "GET", "/messages/director", "", testToken); w.Code != http.StatusOK {
		t.Errorf("service token status = %d", w.Code)
	}
}

func TestProfile(t *testing.T) {
	f := newFixture()

	tests := []struct {
		name   string
		query  string
		want   int
		group  string
		person string
	}{
		{name: "linked with groups", query: "telegram_id=42", want: http.StatusOK, group: "Python 1", person: "Анна Иванова"},
		{name: "groups looked up", query: "telegram_id=43", want: http.StatusOK, group: "Roblox", person: "Иван Петров"},
		{name: "unknown", query: "telegram_id=99", want: http.StatusNotFound},
		{name: "bad id", query: "telegram_id=abc", want: http.StatusBadRequest},
		{name: "missing id", query: "", want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, "GET", "/users/profile?"+tt.query, "", testToken)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want != http.StatusOK {
				return
			}
			var p models.UserProfile
			decode(t, w, &p)
			if p.FullName != tt.person || p.GroupName != tt.group {
				t.Errorf("profile = %+v", p)
			}
		})
	}
}

func TestBalanceAndHistory(t *testing.T) {
	f := newFixture()

	var b models.BalanceResponse
	decode(t, f.do(t, "GET", "/finance/balance?telegram_id=42", "", testToken), &b)
	if b.FocusGroup != "Python 1" || !b.MoneyBalance.Equal(decimal.NewFromInt(1500)) || b.PaidLessons != 4 || b.CyberonBalance != 12 {
		t.Errorf("balance = %+v", b)
	}
	if f.crm.balanceCalls != 1 {
		t.Errorf("GetBalance calls = %d, want 1 for a record without balance", f.crm.balanceCalls)
	}

	var h models.FinanceHistory
	decode(t, f.do(t, "GET", "/finance/history?telegram_id=42", "", testToken), &h)
	if len(h.Transactions) != 2 || h.Transactions[0].Type != crm.TransactionIncome || !h.Transactions[1].Amount.Equal(decimal.NewFromInt(250)) {
		t.Errorf("history = %+v", h)
	}

	if w := f.do(t, "GET", "/finance/history?telegram_id=99", "", testToken); w.Code != http.StatusNotFound {
		t.Errorf("history for unknown user status = %d", w.Code)
	}
}

func TestBalanceFromListingRecord(t *testing.T) {
	f := newFixture()

	var c crm.Customer
	if err := json.Unmarshal([]byte(`{"id":9,"name":"Мария","balance":{"balance":"200.5","paid_lesson_count":3,"bonus_balance":5}}`), &c); err != nil {
		t.Fatal(err)
	}
	f.crm.customers[44] = &c

	var b models.BalanceResponse
	decode(t, f.do(t, "GET", "/finance/balance?telegram_id=44", "", testToken), &b)
	if !b.MoneyBalance.Equal(decimal.RequireFromString("200.5")) || b.PaidLessons != 3 || b.CyberonBalance != 5 {
		t.Errorf("balance = %+v", b)
	}
	if f.crm.balanceCalls != 0 {
		t.Errorf("GetBalance calls = %d, want 0", f.crm.balanceCalls)
	}
}

func TestRules(t *testing.T) {
	f := newFixture()

	var r models.Rules
	decode(t, f.do(t, "GET", "/admin/rules/bot", "", testToken), &r)
	if r.Text != "" {
		t.Errorf("unset rules = %q, want empty", r.Text)
	}

	if w := f.do(t, "PUT", "/admin/rules/bot", `{"text":"  Не спамить  "}`, testToken); w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d", w.Code)
	}
	decode(t, f.do(t, "GET", "/admin/rules/bot", "", testToken), &r)
	if r.Text != "Не спамить" {
		t.Errorf("rules = %q", r.Text)
	}

	if w := f.do(t, "GET", "/admin/rules/other", "", testToken); w.Code != http.StatusNotFound {
		t.Errorf("unknown kind status = %d", w.Code)
	}
	if w := f.do(t, "PUT", "/admin/rules/school", `not json`, testToken); w.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d", w.Code)
	}
}

func TestDirectorMessage(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		saveErr   error
		notify    bool
		want      int
		success   bool
		delivered bool
	}{
		{name: "stored and delivered", body: `{"telegram_id":42,"message":"Спасибо за занятия"}`, notify: true, want: http.StatusOK, success: true, delivered: true},
		{name: "stored only", body: `{"telegram_id":42,"message":"Спасибо за занятия"}`, want: http.StatusOK, success: true},
		{name: "delivered only", body: `{"telegram_id":42,"message":"Спасибо за занятия"}`, saveErr: errors.New("db down"), notify: true, want: http.StatusOK, success: true},
		{name: "neither", body: `{"telegram_id":42,"message":"Спасибо за занятия"}`, saveErr: errors.New("db down"), want: http.StatusOK},
		{name: "too short", body: `{"telegram_id":42,"message":"  ок  "}`, want: http.StatusUnprocessableEntity},
		{name: "no telegram id", body: `{"message":"Спасибо за занятия"}`, want: http.StatusBadRequest},
		{name: "bad json", body: `{`, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.store.saveErr = tt.saveErr
			f.notifier.ok = tt.notify

			w := f.do(t, "POST", "/messages/director", tt.body, testToken)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
			if tt.want != http.StatusOK {
				if f.notifier.calls != 0 {
					t.Error("invalid message was forwarded")
				}
				return
			}
			var resp models.SuccessResponse
			decode(t, w, &resp)
			if resp.Success != tt.success {
				t.Errorf("success = %v, want %v", resp.Success, tt.success)
			}
			if got := len(f.store.delivered) == 1; got != tt.delivered {
				t.Errorf("marked delivered = %v, want %v", got, tt.delivered)
			}
		})
	}
}

func TestCustomerAdmin(t *testing.T) {
	f := newFixture()

	var items []map[string]any
	decode(t, f.do(t, "GET", "/admin/customers/search?q=%D0%90%D0%BD%D0%BD%D0%B0", "", testToken), &items)
	if len(items) != 1 || items[0]["name"] != "Анна" {
		t.Errorf("search = %v", items)
	}
	if w := f.do(t, "GET", "/admin/customers/search", "", testToken); w.Code != http.StatusBadRequest {
		t.Errorf("empty search status = %d", w.Code)
	}

	var resp models.SuccessResponse
	decode(t, f.do(t, "POST", "/admin/customers/3/link", `{"telegram_id":42}`, testToken), &resp)
	if !resp.Success || f.crm.linked[3] != 42 {
		t.Errorf("link = %v, linked = %v", resp.Success, f.crm.linked)
	}

	decode(t, f.do(t, "POST", "/admin/customers/4/link", `{"telegram_id":42}`, testToken), &resp)
	if resp.Success {
		t.Error("link of unknown customer succeeded")
	}
	if w := f.do(t, "POST", "/admin/customers/3/link", `{}`, testToken); w.Code != http.StatusBadRequest {
		t.Errorf("link without telegram_id status = %d", w.Code)
	}
}

func TestCustomerByPhone(t *testing.T) {
	f := newFixture()

	var c struct {
		ID      int64       `json:"id"`
		Name    string      `json:"name"`
		Balance crm.Balance `json:"balance"`
	}
	decode(t, f.do(t, "GET", "/admin/customers/by-phone?phone=%2B79001234567", "", testToken), &c)
	if c.ID != 7 || c.Name != "Анна Иванова" {
		t.Errorf("customer = %+v", c)
	}
	if !c.Balance.Balance.Equal(decimal.NewFromInt(1500)) || c.Balance.PaidLessons != 4 {
		t.Errorf("customer balance = %+v", c.Balance)
	}
	if w := f.do(t, "GET", "/admin/customers/by-phone?phone=1", "", testToken); w.Code != http.StatusNotFound {
		t.Errorf("unknown phone status = %d", w.Code)
	}
}

func TestListDirectorMessages(t *testing.T) {
	f := newFixture()

	var list []db.DirectorMessage
	decode(t, f.do(t, "GET", "/messages/director", "", testToken), &list)
	if len(list) != 0 {
		t.Errorf("empty store listed %d messages", len(list))
	}

	f.do(t, "POST", "/messages/director", `{"telegram_id":42,"message":"Спасибо за занятия"}`, testToken)
	f.do(t, "POST", "/messages/director", `{"telegram_id":43,"message":"Когда каникулы?"}`, testToken)

	decode(t, f.do(t, "GET", "/messages/director?limit=1", "", testToken), &list)
	if len(list) != 1 || list[0].TelegramID != 42 {
		t.Errorf("limited list = %+v", list)
	}
	if w := f.do(t, "GET", "/messages/director?limit=0", "", testToken); w.Code != http.StatusBadRequest {
		t.Errorf("limit=0 status = %d", w.Code)
	}
}
