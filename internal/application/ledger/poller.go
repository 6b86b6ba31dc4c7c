package ledger

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/firmproof/firmproof/internal/application"
	domain "github.com/firmproof/firmproof/internal/domain/ledger"
)

// Reconciler persists a late receipt into the off-chain record store. The
// analyses service implements this.
type Reconciler interface {
	ReconcileReceipt(ctx context.Context, tenant, analysisID string, rcpt domain.Receipt, at time.Time) error
	MarkLedgerFailed(ctx context.Context, tenant, analysisID string) error
}

// Poller follows up on submissions that timed out waiting for confirmation.
// The transaction may still land, so parked entries are re-checked against
// the chain until a receipt appears or the entry goes stale.
type Poller struct {
	Pending   domain.PendingStore
	Contracts ContractResolver
	Records   Reconciler
	Clock     application.Clock

	// Interval between sweeps; zero means 30s.
	Interval time.Duration
	// MaxAge after which a still-unconfirmed entry is dropped and the
	// mirror marked failed (transient; a retry re-enters pending).
	MaxAge time.Duration
}

const (
	defaultPollInterval = 30 * time.Second
	defaultPendingAge   = time.Hour
)

// Run sweeps until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	l := log.WithFields(log.Fields{"func": "Poller.Run"})
	interval := p.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	l.Info("pending-transaction poller started")
	for {
		select {
		case <-ctx.Done():
			l.Info("pending-transaction poller stopped")
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *Poller) sweep(ctx context.Context) {
	l := log.WithFields(log.Fields{"func": "Poller.sweep"})
	entries, err := p.Pending.List(ctx)
	if err != nil {
		l.WithError(err).Error("listing pending submissions")
		return
	}
	if len(entries) == 0 {
		return
	}
	client, ok, err := p.Contracts.Resolve(ctx)
	if err != nil || !ok {
		l.WithError(err).Warn("no contract client available, skipping sweep")
		return
	}
	maxAge := p.MaxAge
	if maxAge <= 0 {
		maxAge = defaultPendingAge
	}
	now := p.Clock.Now()
	for _, e := range entries {
		el := l.WithFields(log.Fields{"analysis": e.AnalysisID, "tx": e.TxHash})
		rcpt, err := client.ReceiptByHash(ctx, e.TxHash)
		if err != nil {
			el.WithError(err).Warn("receipt poll failed")
			continue
		}
		if rcpt != nil {
			rcpt.Updated = e.IsUpdate
			if err := p.Records.ReconcileReceipt(ctx, e.TenantID, e.AnalysisID, *rcpt, now); err != nil {
				el.WithError(err).Error("reconciling late receipt")
				continue
			}
			if err := p.Pending.Remove(ctx, e.TxHash); err != nil {
				el.WithError(err).Error("removing reconciled entry")
			}
			el.WithField("block", rcpt.BlockNumber).Info("late confirmation reconciled")
			continue
		}
		if now.Sub(e.SubmittedAt) > maxAge {
			if err := p.Records.MarkLedgerFailed(ctx, e.TenantID, e.AnalysisID); err != nil {
				el.WithError(err).Error("marking stale submission failed")
				continue
			}
			if err := p.Pending.Remove(ctx, e.TxHash); err != nil {
				el.WithError(err).Error("removing stale entry")
			}
			el.Warn("pending submission went stale")
		}
	}
}
