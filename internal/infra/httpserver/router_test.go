package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firmproof/firmproof/internal/application"
	appanalyses "github.com/firmproof/firmproof/internal/application/analyses"
	appledger "github.com/firmproof/firmproof/internal/application/ledger"
	appsettings "github.com/firmproof/firmproof/internal/application/settings"
	domain "github.com/firmproof/firmproof/internal/domain/analyses"
	domledger "github.com/firmproof/firmproof/internal/domain/ledger"
)

//
// in-memory ports
//

type memRepo struct {
	analyses map[domain.AnalysisID]*domain.Analysis
}

func (m *memRepo) Save(ctx context.Context, a *domain.Analysis) error {
	cp := *a
	m.analyses[a.ID] = &cp
	return nil
}

func (m *memRepo) Get(ctx context.Context, tenant string, id domain.AnalysisID) (*domain.Analysis, error) {
	a, ok := m.analyses[id]
	if !ok || a.TenantID != tenant {
		return nil, fmt.Errorf("analysis %s not found", id)
	}
	cp := *a
	return &cp, nil
}

func (m *memRepo) Latest(ctx context.Context, tenant string, limit int) ([]*domain.Analysis, error) {
	return nil, nil
}

func (m *memRepo) Summary(ctx context.Context, tenant string, sinceDays int) (int, int, int, int, error) {
	return 0, 0, 0, 0, nil
}

func (m *memRepo) UpdateStatus(ctx context.Context, tenant string, id domain.AnalysisID, status domain.Status) error {
	m.analyses[id].Status = status
	return nil
}

func (m *memRepo) UpdateResult(ctx context.Context, tenant string, id domain.AnalysisID, counts domain.FunctionCounts, durationMS int64) error {
	m.analyses[id].Counts = counts
	m.analyses[id].Status = domain.StatusComplete
	return nil
}

func (m *memRepo) UpdateLedgerFields(ctx context.Context, tenant string, id domain.AnalysisID, f domain.LedgerFields) error {
	m.analyses[id].Ledger = f
	return nil
}

type memSettings struct{ addr string }

func (m *memSettings) ContractAddress(ctx context.Context) (string, error) { return m.addr, nil }
func (m *memSettings) SetContractAddress(ctx context.Context, a string) error {
	m.addr = a
	return nil
}
func (m *memSettings) ClearContractAddress(ctx context.Context) error {
	m.addr = ""
	return nil
}

type memPending struct{ parked []domledger.PendingLog }

func (m *memPending) Park(ctx context.Context, p domledger.PendingLog) error {
	m.parked = append(m.parked, p)
	return nil
}
func (m *memPending) List(ctx context.Context) ([]domledger.PendingLog, error) {
	return m.parked, nil
}
func (m *memPending) Remove(ctx context.Context, txHash string) error { return nil }

type stubWallet struct{ account string }

func (w *stubWallet) ConnectedAccount(ctx context.Context) (string, error) { return w.account, nil }
func (w *stubWallet) ActiveChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(11155111), nil
}
func (w *stubWallet) Approve(ctx context.Context, intent domledger.WriteIntent) error { return nil }

type stubTx struct {
	hash  string
	rcpt  *domledger.Receipt
	err   error
	block bool
}

func (t *stubTx) Hash() string { return t.hash }
func (t *stubTx) Wait(ctx context.Context) (*domledger.Receipt, error) {
	if t.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return t.rcpt, t.err
}

type stubContract struct {
	exists bool
	tx     *stubTx
	txErr  error
}

func (c *stubContract) AnalysisExists(ctx context.Context, id string) (bool, error) {
	return c.exists, nil
}
func (c *stubContract) LogAnalysis(ctx context.Context, id, filename string, cryptoCount, totalCount int) (domledger.PendingTx, error) {
	return c.tx, c.txErr
}
func (c *stubContract) UpdateAnalysis(ctx context.Context, id string, cryptoCount, totalCount int) (domledger.PendingTx, error) {
	return c.tx, c.txErr
}
func (c *stubContract) ReceiptByHash(ctx context.Context, txHash string) (*domledger.Receipt, error) {
	return nil, nil
}

type stubResolver struct {
	client domledger.ContractClient
	ok     bool
}

func (r *stubResolver) Resolve(ctx context.Context) (domledger.ContractClient, bool, error) {
	return r.client, r.ok, nil
}

//
// fixtures
//

func completeAnalysis(id string) *domain.Analysis {
	return &domain.Analysis{
		ID:       domain.AnalysisID(id),
		TenantID: "acme",
		Filename: "fw.bin",
		Status:   domain.StatusComplete,
		Counts:   domain.FunctionCounts{Crypto: 5, Total: 100},
		Ledger:   domain.LedgerFields{State: domain.LedgerUnlogged},
	}
}

func testHandler(repo *memRepo, contract *stubContract, pending *memPending) http.Handler {
	svc := &appanalyses.Service{
		Repo:  repo,
		Clock: application.SystemClock{},
	}
	return NewRouter(Deps{
		Analyses: svc,
		Coord: &appledger.Coordinator{
			Wallet:         &stubWallet{account: "0x1111111111111111111111111111111111111111"},
			Contracts:      &stubResolver{client: contract, ok: true},
			ConfirmTimeout: 50 * time.Millisecond,
		},
		Settings: &appsettings.Service{Store: &memSettings{}},
		Wallet:   &stubWallet{account: "0x1111111111111111111111111111111111111111"},
		Pending:  pending,
		Clock:    application.SystemClock{},
	})
}

func TestLedgerLogConfirmsAndPersists(t *testing.T) {
	repo := &memRepo{analyses: map[domain.AnalysisID]*domain.Analysis{
		"abc-123": completeAnalysis("abc-123"),
	}}
	contract := &stubContract{
		tx: &stubTx{hash: "0xaaa", rcpt: &domledger.Receipt{TxHash: "0xaaa", BlockNumber: 42}},
	}
	h := testHandler(repo, contract, &memPending{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/acme/analyses/abc-123/ledger", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status      string `json:"status"`
		ExplorerURL string `json:"explorer_url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "confirmed", body.Status)
	assert.Equal(t, "https://sepolia.etherscan.io/tx/0xaaa", body.ExplorerURL)

	// the outcome was reconciled into the record store
	a := repo.analyses["abc-123"]
	assert.Equal(t, domain.LedgerConfirmed, a.Ledger.State)
	assert.Equal(t, "0xaaa", a.Ledger.TxHash)
	assert.Equal(t, uint64(42), a.Ledger.BlockNumber)
}

func TestLedgerLogTimeoutParksSubmission(t *testing.T) {
	repo := &memRepo{analyses: map[domain.AnalysisID]*domain.Analysis{
		"abc-123": completeAnalysis("abc-123"),
	}}
	contract := &stubContract{tx: &stubTx{hash: "0xbbb", block: true}}
	pending := &memPending{}
	h := testHandler(repo, contract, pending)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/acme/analyses/abc-123/ledger", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var body struct {
		Status string `json:"status"`
		Kind   string `json:"kind"`
		TxHash string `json:"tx_hash"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "pending", body.Status)
	assert.Equal(t, "confirmation_timeout", body.Kind)
	assert.Equal(t, "0xbbb", body.TxHash)

	assert.Equal(t, domain.LedgerPending, repo.analyses["abc-123"].Ledger.State)
	require.Len(t, pending.parked, 1)
	assert.Equal(t, "0xbbb", pending.parked[0].TxHash)
	assert.Equal(t, "abc-123", pending.parked[0].AnalysisID)
}

func TestLedgerLogRejectionLeavesRecordUntouched(t *testing.T) {
	repo := &memRepo{analyses: map[domain.AnalysisID]*domain.Analysis{
		"abc-123": completeAnalysis("abc-123"),
	}}
	contract := &stubContract{txErr: domledger.ErrRejected}
	pending := &memPending{}
	h := testHandler(repo, contract, pending)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/acme/analyses/abc-123/ledger", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	var body struct {
		Kind string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "user_rejected", body.Kind)

	// a declined prompt is a cancellation, not a failure
	assert.Equal(t, domain.LedgerUnlogged, repo.analyses["abc-123"].Ledger.State)
	assert.Empty(t, pending.parked)
}

func TestLedgerLogRequiresCompleteAnalysis(t *testing.T) {
	a := completeAnalysis("abc-123")
	a.Status = domain.StatusAnalyzing
	repo := &memRepo{analyses: map[domain.AnalysisID]*domain.Analysis{"abc-123": a}}
	h := testHandler(repo, &stubContract{}, &memPending{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/acme/analyses/abc-123/ledger", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, domain.LedgerUnlogged, repo.analyses["abc-123"].Ledger.State)
}

func TestContractSettingsRoundTrip(t *testing.T) {
	h := testHandler(&memRepo{analyses: map[domain.AnalysisID]*domain.Analysis{}}, &stubContract{}, &memPending{})

	// nothing configured
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/contract", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Configured bool   `json:"configured"`
		Address    string `json:"address"`
		Source     string `json:"source"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.False(t, got.Configured)

	// set override
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("PUT", "/v1/contract",
		bytes.NewBufferString(`{"address":"0x2222222222222222222222222222222222222222"}`)))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/contract", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Configured)
	assert.Equal(t, "0x2222222222222222222222222222222222222222", got.Address)
	assert.Equal(t, "user", got.Source)

	// invalid address rejected
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("PUT", "/v1/contract",
		bytes.NewBufferString(`{"address":"0xAbC1"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// clear
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("DELETE", "/v1/contract", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/contract", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.False(t, got.Configured)
}

func TestWalletStatus(t *testing.T) {
	h := testHandler(&memRepo{analyses: map[domain.AnalysisID]*domain.Analysis{}}, &stubContract{}, &memPending{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/wallet", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Connected   bool   `json:"connected"`
		Account     string `json:"account"`
		ChainID     uint64 `json:"chain_id"`
		ChainName   string `json:"chain_name"`
		ExplorerURL string `json:"explorer_url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Connected)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", got.Account)
	assert.Equal(t, uint64(11155111), got.ChainID)
	assert.Equal(t, "Sepolia Testnet", got.ChainName)
	assert.Equal(t,
		"https://sepolia.etherscan.io/address/0x1111111111111111111111111111111111111111",
		got.ExplorerURL)
}

func TestKindStatusMapping(t *testing.T) {
	// a rejection or a still-pending submission must not surface as a 5xx
	assert.Less(t, kindStatus(domledger.KindUserRejected), 500)
	assert.Less(t, kindStatus(domledger.KindConfirmationTimeout), 500)

	assert.Equal(t, http.StatusPreconditionFailed, kindStatus(domledger.KindNotConnected))
	assert.Equal(t, http.StatusPreconditionFailed, kindStatus(domledger.KindNotConfigured))
	assert.Equal(t, http.StatusBadRequest, kindStatus(domledger.KindInvalidInput))
	assert.Equal(t, http.StatusPaymentRequired, kindStatus(domledger.KindInsufficientFunds))
	assert.Equal(t, http.StatusConflict, kindStatus(domledger.KindDuplicateCreate))
	assert.Equal(t, http.StatusAccepted, kindStatus(domledger.KindConfirmationTimeout))
	assert.Equal(t, http.StatusBadGateway, kindStatus(domledger.KindNetwork))
	assert.Equal(t, http.StatusInternalServerError, kindStatus(domledger.KindUnknown))

	// every kind renders its own message
	kinds := []domledger.Kind{
		domledger.KindNotConnected, domledger.KindNotConfigured,
		domledger.KindInvalidInput, domledger.KindUserRejected,
		domledger.KindInsufficientFunds, domledger.KindDuplicateCreate,
		domledger.KindConfirmationTimeout, domledger.KindNetwork,
		domledger.KindUnknown,
	}
	seen := map[string]bool{}
	for _, k := range kinds {
		msg := kindMessage(k)
		assert.NotEmpty(t, msg)
		assert.False(t, seen[msg], "duplicate message for %s", k)
		seen[msg] = true
	}
}
