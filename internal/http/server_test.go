package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"billstack/internal/core"
	"billstack/internal/docstore"
	"billstack/internal/lock"
	"billstack/internal/metrics"
	"billstack/internal/services"
)

var today = time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	clock := core.FixedClock{T: today}
	repo := services.NewRepository(docstore.NewMemory(), lock.NewKeyedMutex(), "u1", nil)
	engine := services.NewEngine(repo, services.EngineConfig{Clock: clock, Metrics: opts.Metrics})
	opts.Clock = clock
	srv := NewServer(":0", engine, opts)
	t.Cleanup(func() { srv.limiter.Stop() })
	return srv
}

func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatal(err)
		}
	}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func mustStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, Options{})

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(t, srv, http.MethodGet, path, nil)
		mustStatus(t, rr, http.StatusOK)
		if rr.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s: missing request id", path)
		}
		if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Errorf("%s: missing security headers", path)
		}
	}
}

func TestAccounts(t *testing.T) {
	srv := newTestServer(t, Options{})

	rr := do(t, srv, http.MethodGet, "/accounts", nil)
	mustStatus(t, rr, http.StatusOK)
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("empty list = %q, want []", rr.Body.String())
	}

	rr = do(t, srv, http.MethodPost, "/accounts", map[string]any{"name": "Main", "balance": 10000})
	mustStatus(t, rr, http.StatusCreated)
	main := decode[core.Account](t, rr)
	if main.ID == "" || main.Type != core.Bank {
		t.Fatalf("created account = %+v", main)
	}

	rr = do(t, srv, http.MethodPost, "/accounts", map[string]any{"name": "Wallet", "type": "wallet", "balance": 500})
	mustStatus(t, rr, http.StatusCreated)
	wallet := decode[core.Account](t, rr)

	rr = do(t, srv, http.MethodPost, "/accounts/"+wallet.ID+"/default", nil)
	mustStatus(t, rr, http.StatusNoContent)

	rr = do(t, srv, http.MethodGet, "/accounts/"+wallet.ID, nil)
	mustStatus(t, rr, http.StatusOK)
	if got := decode[core.Account](t, rr); !got.IsDefault {
		t.Fatalf("wallet not default: %+v", got)
	}

	rr = do(t, srv, http.MethodGet, "/accounts/total", nil)
	mustStatus(t, rr, http.StatusOK)
	if got := decode[totalBody](t, rr); got.Total.Cents != 10500 {
		t.Fatalf("total = %d, want 10500", got.Total.Cents)
	}

	rr = do(t, srv, http.MethodPut, "/accounts/"+main.ID, map[string]any{"name": "Checking", "type": "bank", "balance": 10000})
	mustStatus(t, rr, http.StatusOK)
	if got := decode[core.Account](t, rr); got.Name != "Checking" || got.ID != main.ID {
		t.Fatalf("updated account = %+v", got)
	}

	mustStatus(t, do(t, srv, http.MethodGet, "/accounts/missing", nil), http.StatusNotFound)
	mustStatus(t, do(t, srv, http.MethodPost, "/accounts", map[string]any{"name": "", "type": "bank"}), http.StatusUnprocessableEntity)
	mustStatus(t, do(t, srv, http.MethodPost, "/accounts", "{not json"), http.StatusBadRequest)
	mustStatus(t, do(t, srv, http.MethodPost, "/accounts", map[string]any{"name": "X", "colour": "red"}), http.StatusBadRequest)
}

func TestTransactions(t *testing.T) {
	srv := newTestServer(t, Options{})
	acc := decode[core.Account](t, do(t, srv, http.MethodPost, "/accounts", map[string]any{"name": "Main", "balance": 1000}))

	rr := do(t, srv, http.MethodPost, "/transactions", map[string]any{
		"type": "expense", "amount": 250, "category": "Food", "accountId": acc.ID, "date": today,
	})
	mustStatus(t, rr, http.StatusCreated)
	txn := decode[core.Transaction](t, rr)

	rr = do(t, srv, http.MethodGet, "/accounts/"+acc.ID, nil)
	if got := decode[core.Account](t, rr); got.Balance.Cents != 750 {
		t.Fatalf("balance after expense = %d, want 750", got.Balance.Cents)
	}

	rr = do(t, srv, http.MethodPatch, "/transactions/"+txn.ID, map[string]any{"amount": 100})
	mustStatus(t, rr, http.StatusOK)
	rr = do(t, srv, http.MethodGet, "/accounts/"+acc.ID, nil)
	if got := decode[core.Account](t, rr); got.Balance.Cents != 900 {
		t.Fatalf("balance after edit = %d, want 900", got.Balance.Cents)
	}

	rr = do(t, srv, http.MethodGet, "/transactions?year=2024&month=2", nil)
	mustStatus(t, rr, http.StatusOK)
	if got := decode[[]core.Transaction](t, rr); len(got) != 1 {
		t.Fatalf("march transactions = %d, want 1", len(got))
	}
	rr = do(t, srv, http.MethodGet, "/transactions?year=2024&month=3", nil)
	if got := decode[[]core.Transaction](t, rr); len(got) != 0 {
		t.Fatalf("april transactions = %d, want 0", len(got))
	}

	mustStatus(t, do(t, srv, http.MethodDelete, "/transactions/"+txn.ID, nil), http.StatusNoContent)
	mustStatus(t, do(t, srv, http.MethodGet, "/transactions/"+txn.ID, nil), http.StatusNotFound)
	rr = do(t, srv, http.MethodGet, "/accounts/"+acc.ID, nil)
	if got := decode[core.Account](t, rr); got.Balance.Cents != 1000 {
		t.Fatalf("balance after delete = %d, want 1000", got.Balance.Cents)
	}
}

func TestBillPaymentLifecycle(t *testing.T) {
	srv := newTestServer(t, Options{})
	acc := decode[core.Account](t, do(t, srv, http.MethodPost, "/accounts", map[string]any{"name": "Main", "balance": 10000}))

	rr := do(t, srv, http.MethodPost, "/bills", map[string]any{
		"name": "Rent", "category": "Housing", "amount": 2500, "dueDate": 5,
		"frequency": "monthly", "accountId": acc.ID,
	})
	mustStatus(t, rr, http.StatusCreated)
	bill := decode[core.Bill](t, rr)

	rr = do(t, srv, http.MethodGet, "/bills/pending", nil)
	mustStatus(t, rr, http.StatusOK)
	pending := decode[[]billView](t, rr)
	if len(pending) != 1 || pending[0].DisplayStatus != core.StatusOverdue || pending[0].MonthAmount.Cents != 2500 {
		t.Fatalf("pending = %+v", pending)
	}

	rr = do(t, srv, http.MethodPost, "/bills/"+bill.ID+"/pay", nil)
	mustStatus(t, rr, http.StatusCreated)
	receipt := decode[core.PaymentReceipt](t, rr)
	if receipt.Year != 2024 || receipt.Month != 2 || receipt.AccountID != acc.ID || receipt.Amount.Cents != 2500 {
		t.Fatalf("receipt = %+v", receipt)
	}

	rr = do(t, srv, http.MethodPost, "/bills/"+bill.ID+"/pay", nil)
	mustStatus(t, rr, http.StatusConflict)
	if got := decode[errorBody](t, rr); got.Code != "duplicate_payment" {
		t.Fatalf("duplicate code = %q", got.Code)
	}

	rr = do(t, srv, http.MethodDelete, "/transactions/"+receipt.TransactionID, nil)
	mustStatus(t, rr, http.StatusConflict)
	if got := decode[errorBody](t, rr); got.Code != "bill_payment" {
		t.Fatalf("delete payment transaction code = %q", got.Code)
	}
	mustStatus(t, do(t, srv, http.MethodPatch, "/transactions/"+receipt.TransactionID, map[string]any{"amount": 100}), http.StatusConflict)

	rr = do(t, srv, http.MethodPost, "/reconcile/orphans/"+receipt.TransactionID+"/repair", nil)
	mustStatus(t, rr, http.StatusOK)
	if got := decode[repairBody](t, rr); got.Action != "none" {
		t.Fatalf("repair of a healthy payment = %q, want none", got.Action)
	}

	rr = do(t, srv, http.MethodGet, "/bills/"+bill.ID+"/check", nil)
	mustStatus(t, rr, http.StatusOK)
	if got := decode[[]core.Violation](t, rr); len(got) != 0 {
		t.Fatalf("violations after pay = %+v", got)
	}

	rr = do(t, srv, http.MethodPost, "/bills/"+bill.ID+"/undo", receipt.Undo())
	mustStatus(t, rr, http.StatusNoContent)

	rr = do(t, srv, http.MethodGet, "/accounts/"+acc.ID, nil)
	if got := decode[core.Account](t, rr); got.Balance.Cents != 10000 {
		t.Fatalf("balance after undo = %d, want 10000", got.Balance.Cents)
	}
	rr = do(t, srv, http.MethodGet, "/transactions?billId="+bill.ID, nil)
	if got := decode[[]core.Transaction](t, rr); len(got) != 0 {
		t.Fatalf("bill transactions after undo = %d, want 0", len(got))
	}
}

func TestPayBill_NoAccount(t *testing.T) {
	srv := newTestServer(t, Options{})
	bill := decode[core.Bill](t, do(t, srv, http.MethodPost, "/bills", map[string]any{
		"name": "Gym", "category": "Health", "amount": 3000, "dueDate": 20, "frequency": "monthly",
	}))

	rr := do(t, srv, http.MethodPost, "/bills/"+bill.ID+"/pay", map[string]any{})
	mustStatus(t, rr, http.StatusConflict)
	if got := decode[errorBody](t, rr); got.Code != "no_account" {
		t.Fatalf("code = %q, want no_account", got.Code)
	}

	mustStatus(t, do(t, srv, http.MethodPost, "/bills/"+bill.ID+"/pay", map[string]any{"accountId": "ghost"}), http.StatusNotFound)
	mustStatus(t, do(t, srv, http.MethodPost, "/bills/missing/pay", nil), http.StatusNotFound)
}

func TestMonthlyAmounts(t *testing.T) {
	srv := newTestServer(t, Options{})
	bill := decode[core.Bill](t, do(t, srv, http.MethodPost, "/bills", map[string]any{
		"name": "Power", "category": "Utilities", "amount": 4000, "dueDate": 15, "frequency": "monthly",
	}))
	path := "/bills/" + bill.ID + "/amounts/2024/3"

	rr := do(t, srv, http.MethodGet, path, nil)
	mustStatus(t, rr, http.StatusOK)
	if got := decode[amountBody](t, rr); got.Amount.Cents != 4000 {
		t.Fatalf("nominal amount = %d", got.Amount.Cents)
	}

	mustStatus(t, do(t, srv, http.MethodPut, path, map[string]any{"amount": 5200}), http.StatusNoContent)
	rr = do(t, srv, http.MethodGet, path, nil)
	if got := decode[amountBody](t, rr); got.Amount.Cents != 5200 {
		t.Fatalf("override amount = %d, want 5200", got.Amount.Cents)
	}

	mustStatus(t, do(t, srv, http.MethodDelete, path, nil), http.StatusNoContent)
	rr = do(t, srv, http.MethodGet, path, nil)
	if got := decode[amountBody](t, rr); got.Amount.Cents != 4000 {
		t.Fatalf("amount after clear = %d, want 4000", got.Amount.Cents)
	}

	mustStatus(t, do(t, srv, http.MethodGet, "/bills/"+bill.ID+"/amounts/2024/12", nil), http.StatusUnprocessableEntity)
	mustStatus(t, do(t, srv, http.MethodGet, "/bills/"+bill.ID+"/amounts/2024/march", nil), http.StatusBadRequest)
	mustStatus(t, do(t, srv, http.MethodPut, path, map[string]any{"amount": "lots"}), http.StatusUnprocessableEntity)
}

func TestBillCRUD(t *testing.T) {
	srv := newTestServer(t, Options{})
	bill := decode[core.Bill](t, do(t, srv, http.MethodPost, "/bills", map[string]any{
		"name": "Phone", "category": "Utilities", "amount": 1500, "dueDate": 28, "frequency": "monthly",
	}))

	rr := do(t, srv, http.MethodPut, "/bills/"+bill.ID, map[string]any{
		"name": "Phone", "category": "Utilities", "amount": 1800, "dueDate": 28, "frequency": "monthly",
	})
	mustStatus(t, rr, http.StatusOK)
	if got := decode[core.Bill](t, rr); got.Amount.Cents != 1800 || got.ID != bill.ID {
		t.Fatalf("updated bill = %+v", got)
	}

	rr = do(t, srv, http.MethodGet, "/bills?year=2024&month=2", nil)
	mustStatus(t, rr, http.StatusOK)
	if got := decode[[]billView](t, rr); len(got) != 1 || got[0].DisplayStatus != core.StatusPending {
		t.Fatalf("bills = %+v", got)
	}

	mustStatus(t, do(t, srv, http.MethodPost, "/bills", map[string]any{
		"name": "Bad", "category": "X", "amount": 100, "dueDate": 40, "frequency": "monthly",
	}), http.StatusUnprocessableEntity)

	mustStatus(t, do(t, srv, http.MethodDelete, "/bills/"+bill.ID, nil), http.StatusNoContent)
	mustStatus(t, do(t, srv, http.MethodGet, "/bills/"+bill.ID, nil), http.StatusNotFound)
	mustStatus(t, do(t, srv, http.MethodGet, "/bills/pending?month=12", nil), http.StatusUnprocessableEntity)
}

func TestReconcileAndReports(t *testing.T) {
	srv := newTestServer(t, Options{})
	acc := decode[core.Account](t, do(t, srv, http.MethodPost, "/accounts", map[string]any{"name": "Main", "balance": 10000}))
	bill := decode[core.Bill](t, do(t, srv, http.MethodPost, "/bills", map[string]any{
		"name": "Rent", "category": "Housing", "amount": 2500, "dueDate": 5, "frequency": "monthly", "accountId": acc.ID,
	}))
	mustStatus(t, do(t, srv, http.MethodPost, "/bills/"+bill.ID+"/pay", nil), http.StatusCreated)

	rr := do(t, srv, http.MethodGet, "/reconcile/orphans", nil)
	mustStatus(t, rr, http.StatusOK)
	if got := decode[[]core.Transaction](t, rr); len(got) != 0 {
		t.Fatalf("orphans = %+v", got)
	}

	rr = do(t, srv, http.MethodGet, "/reconcile/audit", nil)
	mustStatus(t, rr, http.StatusOK)
	if got := decode[[]core.BalanceDrift](t, rr); len(got) != 0 {
		t.Fatalf("drifts = %+v", got)
	}

	mustStatus(t, do(t, srv, http.MethodPost, "/reconcile/orphans/missing/repair", nil), http.StatusNotFound)

	rr = do(t, srv, http.MethodGet, "/reports/overview?year=2024&month=2", nil)
	mustStatus(t, rr, http.StatusOK)
	if got := decode[core.MonthOverview](t, rr); got.TotalExpense.Cents != 2500 {
		t.Fatalf("overview = %+v", got)
	}

	rr = do(t, srv, http.MethodGet, "/reports/statement?year=2024&month=2", nil)
	mustStatus(t, rr, http.StatusOK)
	if rr.Header().Get("Content-Type") != xlsxContentType {
		t.Fatalf("content type = %q", rr.Header().Get("Content-Type"))
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), "statement-2024-03.xlsx") {
		t.Fatalf("disposition = %q", rr.Header().Get("Content-Disposition"))
	}
	if !bytes.HasPrefix(rr.Body.Bytes(), []byte("PK")) {
		t.Fatal("statement is not a zip container")
	}
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, Options{RateLimitPerMinute: 2})

	for i := 0; i < 2; i++ {
		mustStatus(t, do(t, srv, http.MethodPost, "/accounts", map[string]any{"name": "A"}), http.StatusCreated)
	}
	rr := do(t, srv, http.MethodPost, "/accounts", map[string]any{"name": "A"})
	mustStatus(t, rr, http.StatusTooManyRequests)
	if rr.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if got := decode[errorBody](t, rr); got.Code != "rate_limited" {
		t.Errorf("code = %q", got.Code)
	}

	// Reads are not limited.
	mustStatus(t, do(t, srv, http.MethodGet, "/accounts", nil), http.StatusOK)
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	srv := newTestServer(t, Options{Metrics: m})
	decode[core.Bill](t, do(t, srv, http.MethodPost, "/bills", map[string]any{
		"name": "Gym", "category": "Health", "amount": 3000, "dueDate": 20, "frequency": "monthly",
	}))
	bills := decode[[]billView](t, do(t, srv, http.MethodGet, "/bills", nil))
	do(t, srv, http.MethodPost, "/bills/"+bills[0].ID+"/pay", nil)

	rr := do(t, srv, http.MethodGet, "/metrics", nil)
	mustStatus(t, rr, http.StatusOK)
	if !strings.Contains(rr.Body.String(), `billstack_bill_payments_total{outcome="no_account"} 1`) {
		t.Fatalf("metrics missing payment outcome:\n%s", rr.Body.String())
	}

	if got := newTestServer(t, Options{}); do(t, got, http.MethodGet, "/metrics", nil).Code != http.StatusNotFound {
		t.Fatal("metrics served without a registry")
	}
}

func TestSuspiciousRequestRejected(t *testing.T) {
	srv := newTestServer(t, Options{})
	rr := do(t, srv, http.MethodGet, "/bills?q=<script>alert(1)</script>", nil)
	mustStatus(t, rr, http.StatusBadRequest)
	if srv.Stats().TotalRequests == 0 {
		t.Fatal("trace middleware did not count the request")
	}
}
