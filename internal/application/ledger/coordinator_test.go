package ledger

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/firmproof/firmproof/internal/domain/ledger"
)

type fakeWallet struct {
	account    string
	accountErr error
	approveErr error
	approvals  []domain.WriteIntent
}

func (w *fakeWallet) ConnectedAccount(ctx context.Context) (string, error) {
	return w.account, w.accountErr
}

func (w *fakeWallet) ActiveChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(11155111), nil
}

func (w *fakeWallet) Approve(ctx context.Context, intent domain.WriteIntent) error {
	w.approvals = append(w.approvals, intent)
	return w.approveErr
}

type fakeTx struct {
	hash    string
	rcpt    *domain.Receipt
	waitErr error
	// blockOnCtx makes Wait hang until the context expires
	blockOnCtx bool
}

func (t *fakeTx) Hash() string { return t.hash }

func (t *fakeTx) Wait(ctx context.Context) (*domain.Receipt, error) {
	if t.blockOnCtx {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if t.waitErr != nil {
		return nil, t.waitErr
	}
	return t.rcpt, nil
}

type fakeContract struct {
	exists    bool
	existsErr error

	logTx     *fakeTx
	logErr    error
	updateTx  *fakeTx
	updateErr error

	existsCalls int
	logCalls    []string // analysis IDs
	updateCalls []string
}

func (c *fakeContract) AnalysisExists(ctx context.Context, id string) (bool, error) {
	c.existsCalls++
	return c.exists, c.existsErr
}

func (c *fakeContract) LogAnalysis(ctx context.Context, id, filename string, cryptoCount, totalCount int) (domain.PendingTx, error) {
	c.logCalls = append(c.logCalls, id)
	if c.logErr != nil {
		return nil, c.logErr
	}
	return c.logTx, nil
}

func (c *fakeContract) UpdateAnalysis(ctx context.Context, id string, cryptoCount, totalCount int) (domain.PendingTx, error) {
	c.updateCalls = append(c.updateCalls, id)
	if c.updateErr != nil {
		return nil, c.updateErr
	}
	return c.updateTx, nil
}

func (c *fakeContract) ReceiptByHash(ctx context.Context, txHash string) (*domain.Receipt, error) {
	return nil, nil
}

type fakeResolver struct {
	client domain.ContractClient
	ok     bool
	err    error
}

func (r *fakeResolver) Resolve(ctx context.Context) (domain.ContractClient, bool, error) {
	return r.client, r.ok, r.err
}

func connectedCoordinator(contract *fakeContract) (*Coordinator, *fakeWallet) {
	w := &fakeWallet{account: "0x1111111111111111111111111111111111111111"}
	return &Coordinator{
		Wallet:    w,
		Contracts: &fakeResolver{client: contract, ok: true},
	}, w
}

func TestLogAnalysisCreatesWhenAbsent(t *testing.T) {
	contract := &fakeContract{
		exists: false,
		logTx: &fakeTx{
			hash: "0xaaa",
			rcpt: &domain.Receipt{TxHash: "0xaaa", BlockNumber: 100, GasUsed: 21000},
		},
	}
	coord, wallet := connectedCoordinator(contract)

	rcpt, err := coord.LogAnalysis(context.Background(), LogCommand{
		AnalysisID:  "abc-123",
		Filename:    "fw.bin",
		CryptoCount: 5,
		TotalCount:  100,
	})
	require.NoError(t, err)

	assert.Equal(t, "0xaaa", rcpt.TxHash)
	assert.Equal(t, uint64(100), rcpt.BlockNumber)
	assert.False(t, rcpt.Updated)

	assert.Equal(t, []string{"abc-123"}, contract.logCalls)
	assert.Empty(t, contract.updateCalls)

	// the approval carried the create intent
	require.Len(t, wallet.approvals, 1)
	assert.False(t, wallet.approvals[0].IsUpdate)
	assert.Equal(t, 5, wallet.approvals[0].CryptoCount)
}

func TestLogAnalysisUpdatesWhenPresent(t *testing.T) {
	contract := &fakeContract{
		exists: true,
		updateTx: &fakeTx{
			hash: "0xbbb",
			rcpt: &domain.Receipt{TxHash: "0xbbb", BlockNumber: 200},
		},
	}
	coord, wallet := connectedCoordinator(contract)

	rcpt, err := coord.LogAnalysis(context.Background(), LogCommand{
		AnalysisID:  "abc-123",
		Filename:    "fw.bin",
		CryptoCount: 7,
		TotalCount:  100,
	})
	require.NoError(t, err)

	assert.True(t, rcpt.Updated)
	assert.Empty(t, contract.logCalls)
	assert.Equal(t, []string{"abc-123"}, contract.updateCalls)
	require.Len(t, wallet.approvals, 1)
	assert.True(t, wallet.approvals[0].IsUpdate)
}

func TestLogAnalysisGuardOrder(t *testing.T) {
	contract := &fakeContract{}

	// disconnected wallet fails before anything touches the chain
	coord := &Coordinator{
		Wallet:    &fakeWallet{account: ""},
		Contracts: &fakeResolver{client: contract, ok: true},
	}
	_, err := coord.LogAnalysis(context.Background(), LogCommand{AnalysisID: "abc", TotalCount: 1})
	assert.Equal(t, domain.KindNotConnected, domain.KindOf(err))
	assert.Zero(t, contract.existsCalls)

	// connected but no contract configured
	coord = &Coordinator{
		Wallet:    &fakeWallet{account: "0x1111111111111111111111111111111111111111"},
		Contracts: &fakeResolver{ok: false},
	}
	_, err = coord.LogAnalysis(context.Background(), LogCommand{AnalysisID: "abc", TotalCount: 1})
	assert.Equal(t, domain.KindNotConfigured, domain.KindOf(err))
	assert.Zero(t, contract.existsCalls)
}

func TestLogAnalysisInvalidInput(t *testing.T) {
	cases := []LogCommand{
		{AnalysisID: "", Filename: "fw.bin", CryptoCount: 1, TotalCount: 2},
		{AnalysisID: "abc", CryptoCount: -1, TotalCount: 2},
		{AnalysisID: "abc", CryptoCount: 3, TotalCount: 2},
		{AnalysisID: "abc", CryptoCount: 0, TotalCount: -1},
	}
	for _, cmd := range cases {
		contract := &fakeContract{}
		coord, wallet := connectedCoordinator(contract)
		_, err := coord.LogAnalysis(context.Background(), cmd)
		assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
		assert.Zero(t, contract.existsCalls)
		assert.Empty(t, wallet.approvals)
	}
}

func TestLogAnalysisUserRejected(t *testing.T) {
	contract := &fakeContract{exists: false}
	coord, wallet := connectedCoordinator(contract)
	wallet.approveErr = domain.ErrRejected

	_, err := coord.LogAnalysis(context.Background(), LogCommand{
		AnalysisID: "abc-123", Filename: "fw.bin", CryptoCount: 1, TotalCount: 2,
	})
	assert.Equal(t, domain.KindUserRejected, domain.KindOf(err))

	// nothing was broadcast
	assert.Empty(t, contract.logCalls)
	assert.Empty(t, contract.updateCalls)
}

func TestLogAnalysisConfirmationTimeoutCarriesHash(t *testing.T) {
	contract := &fakeContract{
		exists: false,
		logTx:  &fakeTx{hash: "0xccc", blockOnCtx: true},
	}
	coord, _ := connectedCoordinator(contract)
	coord.ConfirmTimeout = 20 * time.Millisecond

	_, err := coord.LogAnalysis(context.Background(), LogCommand{
		AnalysisID: "abc-123", Filename: "fw.bin", CryptoCount: 1, TotalCount: 2,
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindConfirmationTimeout, domain.KindOf(err))

	var le *domain.Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "0xccc", le.TxHash)
}

func TestLogAnalysisDuplicateCreateFromRevert(t *testing.T) {
	// the existence check raced another writer: the contract is the final
	// arbiter and the revert classifies as a duplicate
	contract := &fakeContract{
		exists: false,
		logErr: errors.New("execution reverted: Analysis already exists"),
	}
	coord, _ := connectedCoordinator(contract)

	_, err := coord.LogAnalysis(context.Background(), LogCommand{
		AnalysisID: "abc-123", Filename: "fw.bin", CryptoCount: 1, TotalCount: 2,
	})
	assert.Equal(t, domain.KindDuplicateCreate, domain.KindOf(err))
}

func TestLogAnalysisUpdatePathClassifiesLikeCreate(t *testing.T) {
	contract := &fakeContract{
		exists:    true,
		updateErr: errors.New("insufficient funds for gas * price + value"),
	}
	coord, _ := connectedCoordinator(contract)

	_, err := coord.LogAnalysis(context.Background(), LogCommand{
		AnalysisID: "abc-123", Filename: "fw.bin", CryptoCount: 1, TotalCount: 2,
	})
	assert.Equal(t, domain.KindInsufficientFunds, domain.KindOf(err))
}

func TestLogAnalysisRevertedAfterInclusion(t *testing.T) {
	contract := &fakeContract{
		exists: false,
		logTx:  &fakeTx{hash: "0xddd", waitErr: errors.New("transaction 0xddd reverted")},
	}
	coord, _ := connectedCoordinator(contract)

	_, err := coord.LogAnalysis(context.Background(), LogCommand{
		AnalysisID: "abc-123", Filename: "fw.bin", CryptoCount: 1, TotalCount: 2,
	})
	require.Error(t, err)
	// a revert without a duplicate marker is not mislabeled as a timeout
	assert.NotEqual(t, domain.KindConfirmationTimeout, domain.KindOf(err))
}
