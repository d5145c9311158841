package testing

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/aristath/fundalloc/internal/domain"
)

// FakeBackend is an httptest stand-in for the external allocation service.
// It records every request body posted to /allocate.
type FakeBackend struct {
	Server *httptest.Server

	mu       sync.Mutex
	requests []domain.WireRequest
	status   int
	body     string
}

// NewFakeBackend starts a backend that answers 200 with SumByPortfolio of the request.
// The server is closed when the test ends.
func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()

	fb := &FakeBackend{}
	fb.Server = httptest.NewServer(http.HandlerFunc(fb.serve))
	t.Cleanup(fb.Server.Close)
	return fb
}

// URL returns the backend base URL.
func (fb *FakeBackend) URL() string {
	return fb.Server.URL
}

// Respond makes the backend answer every request with a fixed status and body.
func (fb *FakeBackend) Respond(status int, body string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.status = status
	fb.body = body
}

// Requests returns the decoded request bodies received so far.
func (fb *FakeBackend) Requests() []domain.WireRequest {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	out := make([]domain.WireRequest, len(fb.requests))
	copy(out, fb.requests)
	return out
}

func (fb *FakeBackend) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/allocate" {
		http.NotFound(w, r)
		return
	}

	raw, _ := io.ReadAll(r.Body)
	var req domain.WireRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	fb.mu.Lock()
	fb.requests = append(fb.requests, req)
	status, body := fb.status, fb.body
	fb.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
		return
	}

	_ = json.NewEncoder(w).Encode(SumByPortfolio(req))
}

// SumByPortfolio splits every deposit across the request's portfolios in
// proportion to their plan amounts, rounded to cents.
func SumByPortfolio(req domain.WireRequest) domain.AllocationResult {
	weights := map[string]decimal.Decimal{}
	total := decimal.Zero
	for _, p := range req.DepositPlans {
		for _, a := range p.Allocations {
			weights[a.PortfolioName] = weights[a.PortfolioName].Add(a.Amount)
			total = total.Add(a.Amount)
		}
	}

	res := domain.AllocationResult{FundAllocation: map[string]decimal.Decimal{}}
	if total.IsZero() {
		return res
	}
	for _, dep := range req.Deposits {
		ledger := map[string]decimal.Decimal{}
		for name, w := range weights {
			share := dep.Mul(w).Div(total).Round(2)
			ledger[name] = share
			res.FundAllocation[name] = res.FundAllocation[name].Add(share)
		}
		res.FundLedgers = append(res.FundLedgers, ledger)
	}
	return res
}
