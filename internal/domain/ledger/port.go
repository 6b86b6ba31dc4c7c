package ledger

import (
	"context"
	"math/big"
)

// PendingTx is a broadcast transaction that has not yet been included.
// Wait blocks until inclusion or ctx cancellation; cancelling does not (and
// cannot) recall the broadcast transaction.
type PendingTx interface {
	Hash() string
	Wait(ctx context.Context) (*Receipt, error)
}

// ContractClient port wraps the deployed analysis-logger contract.
type ContractClient interface {
	// AnalysisExists is a read-only call: no transaction, no gas, no
	// confirmation wait.
	AnalysisExists(ctx context.Context, id string) (bool, error)
	// LogAnalysis broadcasts a create and returns immediately after
	// submission.
	LogAnalysis(ctx context.Context, id, filename string, cryptoCount, totalCount int) (PendingTx, error)
	// UpdateAnalysis broadcasts a counts-only update, same shape.
	UpdateAnalysis(ctx context.Context, id string, cryptoCount, totalCount int) (PendingTx, error)
	// ReceiptByHash polls for the receipt of an earlier submission; returns
	// (nil, nil) while the transaction is still unconfirmed.
	ReceiptByHash(ctx context.Context, txHash string) (*Receipt, error)
}

// Wallet capability port. Implementations must resolve the current account
// and chain on every call: both can change between calls via external
// wallet events.
type Wallet interface {
	ConnectedAccount(ctx context.Context) (string, error)
	ActiveChainID(ctx context.Context) (*big.Int, error)
	// Approve gates a state-changing submission the way a browser wallet
	// prompt would; a denial surfaces as ErrRejected.
	Approve(ctx context.Context, intent WriteIntent) error
}

// PendingStore port for parked submissions awaiting a late receipt.
type PendingStore interface {
	Park(ctx context.Context, p PendingLog) error
	List(ctx context.Context) ([]PendingLog, error)
	Remove(ctx context.Context, txHash string) error
}
