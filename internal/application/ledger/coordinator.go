package ledger

import (
	"context"
	"time"

	domain "github.com/firmproof/firmproof/internal/domain/ledger"
)

const defaultConfirmTimeout = 2 * time.Minute

// ContractResolver yields the client bound to the currently configured
// contract address. ok is false when no address is configured, which
// disables ledger writes.
type ContractResolver interface {
	Resolve(ctx context.Context) (client domain.ContractClient, ok bool, err error)
}

// Coordinator ensures exactly one logical on-chain record exists per
// analysis identity: create when absent, update when present. It submits the
// transaction, waits for inclusion, and returns a normalized receipt. It
// never persists anything itself; the caller reconciles the receipt into the
// off-chain store.
//
// Callers must keep at most one in-flight LogAnalysis call per analysis ID
// per process. Cross-process races are resolved by the contract itself: a
// second create for the same identity reverts and surfaces as
// DuplicateCreate.
type Coordinator struct {
	Wallet    domain.Wallet
	Contracts ContractResolver

	// ConfirmTimeout bounds only the inclusion wait, not the read-only
	// existence check. Zero means defaultConfirmTimeout.
	ConfirmTimeout time.Duration
}

// Command for one ledger write attempt.
type LogCommand struct {
	AnalysisID  string
	Filename    string
	CryptoCount int
	TotalCount  int
}

// LogAnalysis runs the full write: guards, existence check, create/update
// submission, confirmation wait. Every expected failure comes back as a
// *domain.Error; the create and update paths classify identically.
func (c *Coordinator) LogAnalysis(ctx context.Context, cmd LogCommand) (domain.Receipt, error) {
	// Guards, in order, short-circuiting. Account and chain are re-resolved
	// on every call; wallet state can change between calls.
	account, err := c.Wallet.ConnectedAccount(ctx)
	if err != nil || account == "" {
		return domain.Receipt{}, domain.E(domain.KindNotConnected, err)
	}

	client, ok, err := c.Contracts.Resolve(ctx)
	if err != nil {
		return domain.Receipt{}, domain.Classify(err)
	}
	if !ok {
		return domain.Receipt{}, domain.E(domain.KindNotConfigured, nil)
	}

	counts := cmd.CryptoCount >= 0 && cmd.TotalCount >= 0 && cmd.CryptoCount <= cmd.TotalCount
	if cmd.AnalysisID == "" || !counts {
		return domain.Receipt{}, domain.E(domain.KindInvalidInput, nil)
	}

	// The existence check only chooses the call; the contract remains the
	// final arbiter of duplicates.
	exists, err := client.AnalysisExists(ctx, cmd.AnalysisID)
	if err != nil {
		return domain.Receipt{}, domain.Classify(err)
	}

	intent := domain.WriteIntent{
		AnalysisID:  cmd.AnalysisID,
		Filename:    cmd.Filename,
		CryptoCount: cmd.CryptoCount,
		TotalCount:  cmd.TotalCount,
		IsUpdate:    exists,
	}

	// May suspend for user interaction; a decline is a cancellation
	// (UserRejected), not a transient failure.
	if err := c.Wallet.Approve(ctx, intent); err != nil {
		return domain.Receipt{}, domain.Classify(err)
	}

	var tx domain.PendingTx
	if exists {
		tx, err = client.UpdateAnalysis(ctx, cmd.AnalysisID, cmd.CryptoCount, cmd.TotalCount)
	} else {
		tx, err = client.LogAnalysis(ctx, cmd.AnalysisID, cmd.Filename, cmd.CryptoCount, cmd.TotalCount)
	}
	if err != nil {
		return domain.Receipt{}, domain.Classify(err)
	}

	wctx, cancel := context.WithTimeout(ctx, c.confirmTimeout())
	defer cancel()

	rcpt, err := tx.Wait(wctx)
	if err != nil {
		if wctx.Err() != nil {
			// The transaction is broadcast and may still land; hand the hash
			// back so the caller can poll instead of assuming failure.
			return domain.Receipt{}, domain.Timeout(tx.Hash(), err)
		}
		return domain.Receipt{}, domain.Classify(err)
	}

	out := *rcpt
	out.Updated = exists
	return out, nil
}

func (c *Coordinator) confirmTimeout() time.Duration {
	if c.ConfirmTimeout > 0 {
		return c.ConfirmTimeout
	}
	return defaultConfirmTimeout
}
