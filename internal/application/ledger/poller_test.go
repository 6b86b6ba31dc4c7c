package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/firmproof/firmproof/internal/domain/ledger"
)

type memPending struct {
	entries map[string]domain.PendingLog
}

func newMemPending() *memPending {
	return &memPending{entries: make(map[string]domain.PendingLog)}
}

func (m *memPending) Park(ctx context.Context, p domain.PendingLog) error {
	m.entries[p.TxHash] = p
	return nil
}

func (m *memPending) List(ctx context.Context) ([]domain.PendingLog, error) {
	out := make([]domain.PendingLog, 0, len(m.entries))
	for _, p := range m.entries {
		out = append(out, p)
	}
	return out, nil
}

func (m *memPending) Remove(ctx context.Context, txHash string) error {
	delete(m.entries, txHash)
	return nil
}

type recordedReceipt struct {
	tenant, analysisID string
	rcpt               domain.Receipt
}

type fakeReconciler struct {
	receipts []recordedReceipt
	failed   []string // analysis IDs
}

func (r *fakeReconciler) ReconcileReceipt(ctx context.Context, tenant, analysisID string, rcpt domain.Receipt, at time.Time) error {
	r.receipts = append(r.receipts, recordedReceipt{tenant, analysisID, rcpt})
	return nil
}

func (r *fakeReconciler) MarkLedgerFailed(ctx context.Context, tenant, analysisID string) error {
	r.failed = append(r.failed, analysisID)
	return nil
}

type receiptContract struct {
	fakeContract
	receipts map[string]*domain.Receipt
}

func (c *receiptContract) ReceiptByHash(ctx context.Context, txHash string) (*domain.Receipt, error) {
	return c.receipts[txHash], nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestPollerReconcilesLateReceipt(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	pending := newMemPending()
	require.NoError(t, pending.Park(context.Background(), domain.PendingLog{
		TenantID:    "acme",
		AnalysisID:  "abc-123",
		TxHash:      "0xaaa",
		IsUpdate:    true,
		SubmittedAt: now.Add(-5 * time.Minute),
	}))

	contract := &receiptContract{
		receipts: map[string]*domain.Receipt{
			"0xaaa": {TxHash: "0xaaa", BlockNumber: 42},
		},
	}
	records := &fakeReconciler{}
	p := &Poller{
		Pending:   pending,
		Contracts: &fakeResolver{client: contract, ok: true},
		Records:   records,
		Clock:     fixedClock{now: now},
	}
	p.sweep(context.Background())

	require.Len(t, records.receipts, 1)
	assert.Equal(t, "acme", records.receipts[0].tenant)
	assert.Equal(t, "abc-123", records.receipts[0].analysisID)
	assert.Equal(t, uint64(42), records.receipts[0].rcpt.BlockNumber)
	// the update flag survives the round trip through the store
	assert.True(t, records.receipts[0].rcpt.Updated)

	// entry removed once reconciled
	left, _ := pending.List(context.Background())
	assert.Empty(t, left)
}

func TestPollerKeepsUnconfirmedFreshEntries(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	pending := newMemPending()
	_ = pending.Park(context.Background(), domain.PendingLog{
		TenantID:    "acme",
		AnalysisID:  "abc-123",
		TxHash:      "0xbbb",
		SubmittedAt: now.Add(-5 * time.Minute),
	})

	contract := &receiptContract{receipts: map[string]*domain.Receipt{}}
	records := &fakeReconciler{}
	p := &Poller{
		Pending:   pending,
		Contracts: &fakeResolver{client: contract, ok: true},
		Records:   records,
		Clock:     fixedClock{now: now},
	}
	p.sweep(context.Background())

	assert.Empty(t, records.receipts)
	assert.Empty(t, records.failed)
	left, _ := pending.List(context.Background())
	assert.Len(t, left, 1)
}

func TestPollerDropsStaleEntries(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	pending := newMemPending()
	_ = pending.Park(context.Background(), domain.PendingLog{
		TenantID:    "acme",
		AnalysisID:  "abc-123",
		TxHash:      "0xccc",
		SubmittedAt: now.Add(-2 * time.Hour),
	})

	contract := &receiptContract{receipts: map[string]*domain.Receipt{}}
	records := &fakeReconciler{}
	p := &Poller{
		Pending:   pending,
		Contracts: &fakeResolver{client: contract, ok: true},
		Records:   records,
		Clock:     fixedClock{now: now},
		MaxAge:    time.Hour,
	}
	p.sweep(context.Background())

	assert.Equal(t, []string{"abc-123"}, records.failed)
	left, _ := pending.List(context.Background())
	assert.Empty(t, left)
}

func TestPollerSkipsSweepWithoutContract(t *testing.T) {
	pending := newMemPending()
	_ = pending.Park(context.Background(), domain.PendingLog{
		TenantID: "acme", AnalysisID: "abc-123", TxHash: "0xddd",
	})

	records := &fakeReconciler{}
	p := &Poller{
		Pending:   pending,
		Contracts: &fakeResolver{ok: false},
		Records:   records,
		Clock:     fixedClock{now: time.Now()},
	}
	p.sweep(context.Background())

	assert.Empty(t, records.receipts)
	assert.Empty(t, records.failed)
	left, _ := pending.List(context.Background())
	assert.Len(t, left, 1)
}
