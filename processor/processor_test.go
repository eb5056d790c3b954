package processor

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/agentpay/clients"
	"github.com/vitwit/agentpay/types"
)

func payment(id string) types.PaymentRequest {
	return types.PaymentRequest{
		ID:         id,
		ProviderID: "provider-1",
		Chain:      types.ChainPolygon,
		Amount:     decimal.NewFromInt(100),
		Recipient:  "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
	}
}

func TestSubmitAssignsIDAndPendingStatus(t *testing.T) {
	p := New(clients.NewFixedBackend(true), nil)

	id, err := p.Submit(payment(""))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	status, ok := p.Status(id)
	require.True(t, ok)
	assert.Equal(t, types.StatusPending, status)
}

func TestSubmitDuplicateAcrossPendingAndArchive(t *testing.T) {
	p := New(clients.NewFixedBackend(true), nil)

	_, err := p.Submit(payment("pmt-1"))
	require.NoError(t, err)

	_, err = p.Submit(payment("pmt-1"))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrDuplicateID))

	// Complete it; the id stays taken from the archive.
	_, err = p.Process(context.Background(), "pmt-1")
	require.NoError(t, err)

	_, err = p.Submit(payment("pmt-1"))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrDuplicateID))
}

func TestProcessUnknownPayment(t *testing.T) {
	p := New(clients.NewFixedBackend(true), nil)

	_, err := p.Process(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrNotFound))
}

func TestProcessSuccessArchives(t *testing.T) {
	p := New(clients.NewFixedBackend(true), nil)

	id, err := p.Submit(payment("pmt-1"))
	require.NoError(t, err)

	status, err := p.Process(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, status)

	got, ok := p.Status(id)
	require.True(t, ok)
	assert.Equal(t, types.StatusCompleted, got)
	assert.Empty(t, p.ListPending())

	// A completed payment cannot be processed again.
	_, err = p.Process(context.Background(), id)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrNotFound))
}

func TestRetryBoundExactlyFourAttempts(t *testing.T) {
	backend := clients.NewFixedBackend(false)
	p := New(backend, nil)

	id, err := p.Submit(payment("pmt-1"))
	require.NoError(t, err)

	// Attempts 1-3 fail recoverably: status reverts to pending, no error.
	for attempt := 1; attempt <= 3; attempt++ {
		status, err := p.Process(context.Background(), id)
		require.NoError(t, err, "attempt %d must be recoverable", attempt)
		assert.Equal(t, types.StatusPending, status)

		got, ok := p.Status(id)
		require.True(t, ok)
		assert.Equal(t, types.StatusPending, got)
	}

	// Attempt 4 exhausts the retry budget and goes terminal.
	status, err := p.Process(context.Background(), id)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrRetryExhausted))
	assert.Equal(t, types.StatusFailed, status)
	assert.Equal(t, 4, backend.Calls())

	got, ok := p.Status(id)
	require.True(t, ok)
	assert.Equal(t, types.StatusFailed, got)
	assert.Empty(t, p.ListPending())
}

func TestRecoveryAfterFailures(t *testing.T) {
	backend := clients.NewFixedBackend(true).Script(false, false)
	p := New(backend, nil)

	id, err := p.Submit(payment("pmt-1"))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		status, err := p.Process(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, types.StatusPending, status)
	}

	status, err := p.Process(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, status)
}

func TestProcessYieldsExactlyOneOutcome(t *testing.T) {
	// From pending, one Process call lands in exactly one of the three
	// documented outcomes.
	outcomes := map[types.PaymentStatus]bool{
		types.StatusCompleted: true,
		types.StatusPending:   true,
		types.StatusFailed:    true,
	}

	for _, scripted := range []bool{true, false} {
		p := New(clients.NewFixedBackend(scripted), nil)
		id, err := p.Submit(payment(""))
		require.NoError(t, err)

		status, _ := p.Process(context.Background(), id)
		assert.True(t, outcomes[status], "unexpected status %s", status)
	}
}

func TestCancelPending(t *testing.T) {
	p := New(clients.NewFixedBackend(true), nil)

	id, err := p.Submit(payment("pmt-1"))
	require.NoError(t, err)

	require.NoError(t, p.Cancel(id))

	status, ok := p.Status(id)
	require.True(t, ok)
	assert.Equal(t, types.StatusCancelled, status)
	assert.Empty(t, p.ListPending())
}

func TestCancelUnknown(t *testing.T) {
	p := New(clients.NewFixedBackend(true), nil)

	err := p.Cancel("ghost")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrNotFound))
}

func TestCancelWhileProcessing(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	backend := clients.BackendFunc(func(ctx context.Context, _ *types.PaymentRequest) (bool, error) {
		close(started)
		<-release
		return true, nil
	})

	p := New(backend, nil)
	id, err := p.Submit(payment("pmt-1"))
	require.NoError(t, err)

	processDone := make(chan error, 1)
	go func() {
		_, err := p.Process(context.Background(), id)
		processDone <- err
	}()

	<-started
	err = p.Cancel(id)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrInvalidState))

	close(release)
	require.NoError(t, <-processDone)

	status, ok := p.Status(id)
	require.True(t, ok)
	assert.Equal(t, types.StatusCompleted, status)
}

func TestConcurrentProcessSameIDSerialized(t *testing.T) {
	var inflight, maxInflight int
	gate := make(chan struct{}, 1)
	backend := clients.BackendFunc(func(ctx context.Context, _ *types.PaymentRequest) (bool, error) {
		gate <- struct{}{}
		inflight++
		if inflight > maxInflight {
			maxInflight = inflight
		}
		<-gate

		time.Sleep(5 * time.Millisecond)

		gate <- struct{}{}
		inflight--
		<-gate
		return false, nil
	})

	p := New(backend, nil)
	id, err := p.Submit(payment("pmt-1"))
	require.NoError(t, err)

	done := make(chan struct{})
	for i := 0; i < 3; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			p.Process(context.Background(), id) //nolint:errcheck
		}()
	}
	for i := 0; i < 3; i++ {
		<-done
	}

	assert.Equal(t, 1, maxInflight, "same-id attempts must never overlap")
}

func TestListPendingOrderedSnapshots(t *testing.T) {
	p := New(clients.NewFixedBackend(true), nil)

	for _, id := range []string{"pmt-3", "pmt-1", "pmt-2"} {
		_, err := p.Submit(payment(id))
		require.NoError(t, err)
	}

	pending := p.ListPending()
	require.Len(t, pending, 3)
	for i, want := range []string{"pmt-1", "pmt-2", "pmt-3"} {
		assert.Equal(t, want, pending[i].ID)
	}
}

func TestStatusLooksUpBothSets(t *testing.T) {
	p := New(clients.NewFixedBackend(true), nil)

	id, err := p.Submit(payment("pmt-1"))
	require.NoError(t, err)

	status, ok := p.Status(id)
	require.True(t, ok)
	assert.Equal(t, types.StatusPending, status)

	_, err = p.Process(context.Background(), id)
	require.NoError(t, err)

	status, ok = p.Status(id)
	require.True(t, ok)
	assert.Equal(t, types.StatusCompleted, status)

	_, ok = p.Status("ghost")
	assert.False(t, ok)
}

func TestSubmitStampsCreationTime(t *testing.T) {
	p := New(clients.NewFixedBackend(true), nil)

	stamp := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	p.SetClock(func() time.Time { return stamp })

	id, err := p.Submit(payment("pmt-1"))
	require.NoError(t, err)

	got, ok := p.Get(id)
	require.True(t, ok)
	assert.Equal(t, stamp, got.CreatedAt)
}
