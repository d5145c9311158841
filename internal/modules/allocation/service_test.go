package allocation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/fundalloc/internal/clients/allocator"
	"github.com/aristath/fundalloc/internal/domain"
	"github.com/aristath/fundalloc/internal/events"
	testutil "github.com/aristath/fundalloc/internal/testing"
)

type serviceFixture struct {
	service *Service
	backend *testutil.FakeBackend
	repo    *Repository
	bus     *events.Bus
}

func setupService(t *testing.T) *serviceFixture {
	backend := testutil.NewFakeBackend(t)
	repo := setupRepo(t)
	bus := events.NewBus(zerolog.Nop())
	t.Cleanup(bus.Close)

	client := allocator.NewClient(backend.URL(), time.Second, zerolog.Nop())
	return &serviceFixture{
		service: NewService(client, repo, bus, zerolog.Nop()),
		backend: backend,
		repo:    repo,
		bus:     bus,
	}
}

func nextEvent(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(time.Second):
		t.Fatal("no event published")
		return events.Event{}
	}
}

func TestAllocate_ForwardsOnlyEnabledPlansInWireForm(t *testing.T) {
	f := setupService(t)
	req := testutil.NewRequestFixture()

	outcome, err := f.service.Allocate(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, outcome.RunID)

	sent := f.backend.Requests()
	require.Len(t, sent, 1)
	require.Len(t, sent[0].DepositPlans, 1)
	assert.Equal(t, "MONTHLY", sent[0].DepositPlans[0].Type)
	assert.True(t, sent[0].DepositPlans[0].IsEnabled)
	assert.Len(t, sent[0].Deposits, 2)

	// 600 split 30:10
	assert.Equal(t, "450", outcome.Result.FundAllocation["Growth"].String())
	assert.Equal(t, "150", outcome.Result.FundAllocation["Bonds"].String())
	assert.Contains(t, string(outcome.Raw), "fundLedgers")
}

func TestAllocate_DoesNotMutateCaller(t *testing.T) {
	f := setupService(t)
	req := testutil.NewRequestFixture()
	before := req.Clone()

	_, err := f.service.Allocate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, before, req)
	assert.Len(t, req.DepositPlans, 2)
	assert.Equal(t, domain.PlanOneTime, req.DepositPlans[0].Type)
}

func TestAllocate_RelaysBackendBodyVerbatim(t *testing.T) {
	f := setupService(t)
	body := `{"fundAllocation":{"Growth":1},"note":"from backend"}`
	f.backend.Respond(http.StatusOK, body)

	outcome, err := f.service.Allocate(context.Background(), testutil.NewRequestFixture())
	require.NoError(t, err)
	assert.Equal(t, body, string(outcome.Raw))
}

func TestAllocate_RecordsSuccessfulRun(t *testing.T) {
	f := setupService(t)

	outcome, err := f.service.AllocateFor(context.Background(), "w1", testutil.NewRequestFixture())
	require.NoError(t, err)

	run, err := f.repo.Get(outcome.RunID)
	require.NoError(t, err)
	assert.Equal(t, RunSucceeded, run.Status)
	assert.Equal(t, "w1", run.WorkspaceID)
	assert.Equal(t, 1, run.PlanCount)
	assert.Equal(t, 2, run.DepositCount)
	assert.Equal(t, "600", run.TotalDeposits.String())
	assert.Equal(t, http.StatusOK, run.UpstreamStatus)

	var sent domain.WireRequest
	require.NoError(t, json.Unmarshal(run.Request, &sent))
	require.Len(t, sent.DepositPlans, 1)
	assert.Equal(t, "MONTHLY", sent.DepositPlans[0].Type)
}

func TestAllocate_PublishesCompletedEvent(t *testing.T) {
	f := setupService(t)
	ch, cancel := f.bus.Subscribe(events.AllocationCompleted)
	defer cancel()

	outcome, err := f.service.Allocate(context.Background(), testutil.NewRequestFixture())
	require.NoError(t, err)

	evt := nextEvent(t, ch)
	data, ok := evt.Data.(*events.AllocationCompletedData)
	require.True(t, ok)
	assert.Equal(t, outcome.RunID, data.RunID)
	assert.Equal(t, "600", data.TotalDeposits)
	assert.Equal(t, "450", data.FundAllocation["Growth"])
}

func TestAllocate_BackendFailure(t *testing.T) {
	f := setupService(t)
	f.backend.Respond(http.StatusBadGateway, `upstream down`)
	ch, cancel := f.bus.Subscribe(events.AllocationFailed)
	defer cancel()

	_, err := f.service.Allocate(context.Background(), testutil.NewRequestFixture())
	require.Error(t, err)

	var upstream *allocator.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusBadGateway, upstream.StatusCode)

	evt := nextEvent(t, ch)
	data := evt.Data.(*events.AllocationFailedData)
	assert.Equal(t, http.StatusBadGateway, data.UpstreamStatus)

	run, err := f.repo.Get(data.RunID)
	require.NoError(t, err)
	assert.Equal(t, RunFailed, run.Status)
	assert.Contains(t, run.Error, "status 502")
	assert.Nil(t, run.Response)
}

func TestAllocate_ValidationErrorsAreNotForwarded(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *domain.AllocationRequest)
	}{
		{"no plans", func(r *domain.AllocationRequest) { r.DepositPlans = nil }},
		{"no enabled plan", func(r *domain.AllocationRequest) {
			for i := range r.DepositPlans {
				r.DepositPlans[i].IsEnabled = false
			}
		}},
		{"no deposits", func(r *domain.AllocationRequest) { r.Deposits = nil }},
		{"zero deposit", func(r *domain.AllocationRequest) { r.Deposits[0] = decimal.Zero }},
		{"amount below one", func(r *domain.AllocationRequest) {
			r.DepositPlans[1].Allocations[0].Amount = decimal.RequireFromString("0.5")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupService(t)
			req := testutil.NewRequestFixture()
			tt.mutate(&req)

			_, err := f.service.Allocate(context.Background(), req)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Empty(t, f.backend.Requests())

			count, err := f.repo.Count()
			require.NoError(t, err)
			assert.Zero(t, count)
		})
	}
}

type failingStore struct{}

func (failingStore) Insert(*Run) error { return errors.New("disk full") }

func TestAllocate_HistoryFailureDoesNotFailAllocation(t *testing.T) {
	backend := testutil.NewFakeBackend(t)
	client := allocator.NewClient(backend.URL(), time.Second, zerolog.Nop())
	service := NewService(client, failingStore{}, nil, zerolog.Nop())

	outcome, err := service.Allocate(context.Background(), testutil.NewRequestFixture())
	require.NoError(t, err)
	assert.NotEmpty(t, outcome.Raw)
}
