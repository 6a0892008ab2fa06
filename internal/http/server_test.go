package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"spending/internal/aggregate"
	"spending/internal/core"
	"spending/internal/middleware/ratelimit"
	"spending/internal/services"
	"spending/internal/sheets/memory"
)

// Tuesday 5 March 2024, 10:00.
var fixedNow = time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

type brokenLedger struct{}

func (brokenLedger) ReadAll(context.Context) ([]core.Transaction, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func (brokenLedger) Append(context.Context, core.Transaction) (string, error) {
	return "", errors.New("dial tcp: connection refused")
}

type ledger interface {
	ReadAll(context.Context) ([]core.Transaction, error)
	Append(context.Context, core.Transaction) (string, error)
}

func seedRows() []core.Transaction {
	return []core.Transaction{
		{Date: "3/5/2024", Seq: 1, Time: "8:00", Item: "Bread", Category: "Foodstuff", Quantity: 1,
			Amount: decimal.NewNullDecimal(decimal.NewFromInt(1500)), WeekKey: "4-Mar", MonthKey: "March 2024"},
		{Date: "2/27/2024", Seq: 1, Time: "9:00", Item: "Airtime top-up", Category: "Airtime", Quantity: 1,
			Amount: decimal.NewNullDecimal(decimal.NewFromInt(500)), WeekKey: "26-Feb", MonthKey: "February 2024"},
	}
}

func newTestServer(t *testing.T, store ledger, mutate func(*Options)) *Server {
	t.Helper()
	now := func() time.Time { return fixedNow }
	agg := aggregate.New(store, time.Minute, nil).WithClock(now)
	svc := services.NewLedgerService(agg, store, core.DefaultBudgets(), services.Options{Now: now})

	opts := Options{Addr: ":0", Ledger: svc, Now: now, RequestTimeout: time.Second}
	if mutate != nil {
		mutate(&opts)
	}
	srv, err := NewServer(opts)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { srv.limiter.Stop() })
	return srv
}

func do(srv *Server, method, target string, form url.Values, htmx bool) *httptest.ResponseRecorder {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if htmx {
		req.Header.Set("HX-Request", "true")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func validForm() url.Values {
	return url.Values{
		"date":     {"2024-03-05"},
		"time":     {"10:15"},
		"item":     {"Rice"},
		"category": {"foodstuff"},
		"quantity": {"2"},
		"amount":   {"2500.50"},
	}
}

func TestIndexRendersDashboard(t *testing.T) {
	srv := newTestServer(t, memory.New(seedRows()...), nil)

	rr := do(srv, http.MethodGet, "/", nil, false)
	if rr.Code != http.StatusOK {
		t.Fatalf("index status=%d body=%s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	for _, want := range []string{
		"Record a purchase",
		"₦1,500.00",
		`value="2024-03-05"`,
		"Usually bought on Tuesday",
		`<option value="Bet" selected>`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("index body missing %q", want)
		}
	}
	if rr.Header().Get("Content-Security-Policy") == "" || rr.Header().Get("X-Request-ID") == "" {
		t.Errorf("middleware headers missing: %v", rr.Header())
	}

	if rr := do(srv, http.MethodGet, "/nope", nil, false); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown path status=%d", rr.Code)
	}
}

func TestDashboardStoreUnavailable(t *testing.T) {
	srv := newTestServer(t, brokenLedger{}, nil)

	for _, path := range []string{"/", "/ui/dashboard", "/ui/last-bought?category=Food"} {
		rr := do(srv, http.MethodGet, path, nil, false)
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s status=%d, want 503", path, rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "error blocking") {
			t.Fatalf("%s missing blocking panel: %s", path, rr.Body.String())
		}
	}
}

func TestSubmitHTMXSuccess(t *testing.T) {
	store := memory.New(seedRows()...)
	srv := newTestServer(t, store, nil)

	rr := do(srv, http.MethodPost, "/transactions", validForm(), true)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	trigger := rr.Header().Get("HX-Trigger")
	for _, part := range []string{`"transaction:created"`, `"seq":2`, `"form:reset"`} {
		if !strings.Contains(trigger, part) {
			t.Errorf("HX-Trigger missing %s: %s", part, trigger)
		}
	}
	if !strings.Contains(rr.Body.String(), "Recorded #2 for 3/5/2024: Rice (Foodstuff) ₦2,500.50") {
		t.Errorf("unexpected body: %s", rr.Body.String())
	}

	rows, _ := store.ReadAll(context.Background())
	got := rows[len(rows)-1]
	if got.Item != "Rice" || got.Category != "Foodstuff" || got.Quantity != 2 || got.WeekKey != "4-Mar" {
		t.Fatalf("unexpected appended row: %+v", got)
	}

	// The dashboard reflects the write immediately.
	rr = do(srv, http.MethodGet, "/ui/dashboard", nil, true)
	if !strings.Contains(rr.Body.String(), "₦4,000.50") {
		t.Errorf("dashboard not refreshed after submit: %s", rr.Body.String())
	}
}

func TestSubmitPlainFormRedirects(t *testing.T) {
	srv := newTestServer(t, memory.New(), nil)
	rr := do(srv, http.MethodPost, "/transactions", validForm(), false)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/" {
		t.Fatalf("status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(url.Values)
		want   string
	}{
		{"bad time", func(v url.Values) { v.Set("time", "10h15") }, "Time must be"},
		{"no category", func(v url.Values) { v.Set("category", "Select Category") }, "select a valid category"},
		{"unknown category", func(v url.Values) { v.Set("category", "Yachts") }, "not in the budget table"},
		{"empty item", func(v url.Values) { v.Set("item", "   ") }, "Item name is required"},
		{"zero quantity", func(v url.Values) { v.Set("quantity", "0") }, "Quantity must be"},
		{"bad amount", func(v url.Values) { v.Set("amount", "lots") }, "Amount must be"},
		{"bad date", func(v url.Values) { v.Set("date", "someday") }, "valid calendar date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			srv := newTestServer(t, store, nil)
			form := validForm()
			tt.mutate(form)

			rr := do(srv, http.MethodPost, "/transactions", form, true)
			if rr.Code != http.StatusUnprocessableEntity {
				t.Fatalf("status=%d, want 422", rr.Code)
			}
			if !strings.Contains(rr.Body.String(), tt.want) || !strings.Contains(rr.Body.String(), `class="warning"`) {
				t.Fatalf("body %q missing %q", rr.Body.String(), tt.want)
			}
			if rows, _ := store.ReadAll(context.Background()); len(rows) != 0 {
				t.Fatalf("rejected submission was written: %+v", rows)
			}
		})
	}
}

func TestSubmitValidationRetainsForm(t *testing.T) {
	srv := newTestServer(t, memory.New(), nil)
	form := validForm()
	form.Set("item", "")
	form.Set("amount", "999")

	rr := do(srv, http.MethodPost, "/transactions", form, false)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{`value="999"`, `value="10:15"`, "Item name is required", `<option value="Foodstuff" selected>`} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestSubmitStoreUnavailable(t *testing.T) {
	srv := newTestServer(t, brokenLedger{}, nil)

	rr := do(srv, http.MethodPost, "/transactions", validForm(), true)
	if rr.Code != http.StatusServiceUnavailable || !strings.Contains(rr.Body.String(), "cannot be reached") {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = do(srv, http.MethodPost, "/transactions", validForm(), false)
	if rr.Code != http.StatusServiceUnavailable || !strings.Contains(rr.Body.String(), `value="Rice"`) {
		t.Fatalf("plain post should keep the form: status=%d", rr.Code)
	}
}

func TestSubmitMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, memory.New(), nil)
	rr := do(srv, http.MethodGet, "/transactions", nil, false)
	if rr.Code != http.StatusMethodNotAllowed || rr.Header().Get("Allow") != "POST" {
		t.Fatalf("status=%d allow=%q", rr.Code, rr.Header().Get("Allow"))
	}
}

func TestCategoryOptions(t *testing.T) {
	srv := newTestServer(t, memory.New(seedRows()...), nil)

	rr := do(srv, http.MethodGet, "/ui/category?item=bread", nil, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `<option value="Foodstuff" selected>`) {
		t.Fatalf("predicted category not selected: %s", rr.Body.String())
	}

	rr = do(srv, http.MethodGet, "/ui/category?item=caviar", nil, true)
	if !strings.Contains(rr.Body.String(), `<option value="Select Category" selected>`) {
		t.Fatalf("unknown item should keep the placeholder: %s", rr.Body.String())
	}
}

func TestLastBought(t *testing.T) {
	srv := newTestServer(t, memory.New(seedRows()...), nil)

	rr := do(srv, http.MethodGet, "/ui/last-bought?category=airtime", nil, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "Airtime top-up") || !strings.Contains(body, "2/27/2024") {
		t.Fatalf("unexpected last bought table: %s", body)
	}
	if !strings.Contains(body, `<option value="Airtime" selected>`) {
		t.Fatalf("category not canonicalised: %s", body)
	}
}

func TestHealthAndReady(t *testing.T) {
	ready := errors.New("sheet unreachable")
	srv := newTestServer(t, memory.New(), func(o *Options) {
		o.Ready = func(context.Context) error { return ready }
	})

	if rr := do(srv, http.MethodGet, "/healthz", nil, false); rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"suspicious_requests":0`) {
		t.Fatalf("healthz status=%d body=%s", rr.Code, rr.Body.String())
	}
	rr := do(srv, http.MethodGet, "/readyz", nil, false)
	if rr.Code != http.StatusServiceUnavailable || !strings.Contains(rr.Body.String(), "sheet unreachable") {
		t.Fatalf("readyz status=%d body=%s", rr.Code, rr.Body.String())
	}

	ready = nil
	if rr := do(srv, http.MethodGet, "/readyz", nil, false); rr.Code != http.StatusOK {
		t.Fatalf("readyz status=%d after recovery", rr.Code)
	}
}

func TestSubmitRateLimited(t *testing.T) {
	srv := newTestServer(t, memory.New(), func(o *Options) {
		o.RateLimit = ratelimit.Config{RequestsPerWindow: 1, Window: time.Minute, Methods: []string{http.MethodPost}}
	})

	if rr := do(srv, http.MethodPost, "/transactions", validForm(), true); rr.Code != http.StatusOK {
		t.Fatalf("first submit status=%d", rr.Code)
	}
	rr := do(srv, http.MethodPost, "/transactions", validForm(), true)
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") == "" {
		t.Fatalf("second submit status=%d", rr.Code)
	}
	if rr := do(srv, http.MethodGet, "/ui/dashboard", nil, true); rr.Code != http.StatusOK {
		t.Fatalf("reads are not limited, got %d", rr.Code)
	}
}

func TestStaticAssets(t *testing.T) {
	srv := newTestServer(t, memory.New(), nil)
	rr := do(srv, http.MethodGet, "/static/style.css", nil, false)
	if rr.Code != http.StatusOK || rr.Header().Get("Cache-Control") == "" {
		t.Fatalf("static status=%d cache=%q", rr.Code, rr.Header().Get("Cache-Control"))
	}
}

func TestNewServerRequiresLedger(t *testing.T) {
	if _, err := NewServer(Options{}); err == nil {
		t.Fatal("expected error without ledger service")
	}
}
