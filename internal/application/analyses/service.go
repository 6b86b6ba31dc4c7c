package analyses

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/firmproof/firmproof/internal/application"
	domai "github.com/firmproof/firmproof/internal/domain/ai"
	domain "github.com/firmproof/firmproof/internal/domain/analyses"
	domledger "github.com/firmproof/firmproof/internal/domain/ledger"
)

// Service implements the analysis use-cases: upload, the placeholder
// pipeline, reads for the dashboard, and reconciliation of ledger receipts
// into the record store. Safe for concurrent use.
type Service struct {
	Repo      domain.Repository
	Functions domain.FunctionRepository
	Binaries  domain.BinaryStore
	AI        domai.Client // optional; advisory only
	Clock     application.Clock
}

// Command to register an uploaded firmware image
type UploadCommand struct {
	TenantID  string
	Filename  string
	FileSize  int64
	LocalPath string
	ISA       domain.ISA
}

// StartAnalysis stores the binary, creates the pending record, and returns
// it. The pipeline itself runs separately (see RunPipelineUntilDone).
func (s *Service) StartAnalysis(ctx context.Context, cmd UploadCommand) (*domain.Analysis, error) {
	if cmd.Filename == "" {
		return nil, fmt.Errorf("filename is required")
	}
	now := s.Clock.Now()
	id := uuid.New().String()

	key := fmt.Sprintf("%s/%d_%s", cmd.TenantID, now.UnixMilli(), cmd.Filename)
	url, err := s.Binaries.UploadAndCleanup(ctx, cmd.LocalPath, key)
	if err != nil {
		return nil, fmt.Errorf("storing firmware binary: %w", err)
	}

	isa := cmd.ISA
	if isa == "" {
		isa = domain.ISAUnknown
	}
	a := &domain.Analysis{
		ID:         domain.AnalysisID(id),
		TenantID:   cmd.TenantID,
		Filename:   cmd.Filename,
		FileSize:   cmd.FileSize,
		ISA:        isa,
		UploadedAt: now,
		Status:     domain.StatusPending,
		BinaryURL:  url,
		Ledger:     domain.LedgerFields{State: domain.LedgerUnlogged},
	}
	if err := s.Repo.Save(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// RunPipelineUntilDone runs the pipeline with context.Background() so a
// request-scoped cancellation cannot kill a background analysis.
func (s *Service) RunPipelineUntilDone(tenant string, id domain.AnalysisID) error {
	return s.RunPipeline(context.Background(), tenant, id)
}

// RunPipeline executes the placeholder analysis: mock function extraction,
// an advisory AI pass, classification, protocol-flow inference, then the
// final stats update. There is no real lifting or disassembly behind this.
func (s *Service) RunPipeline(ctx context.Context, tenant string, id domain.AnalysisID) error {
	l := log.WithFields(log.Fields{"func": "RunPipeline", "tenant": tenant, "analysis": id})
	started := s.Clock.Now()

	if err := s.Repo.UpdateStatus(ctx, tenant, id, domain.StatusAnalyzing); err != nil {
		return err
	}

	fns := generateFunctions(id)
	s.advisoryClassify(ctx, fns)
	classifyFunctions(fns)

	if err := s.Functions.SaveFunctions(ctx, fns); err != nil {
		_ = s.Repo.UpdateStatus(ctx, tenant, id, domain.StatusFailed)
		return err
	}

	steps := inferProtocolFlow(id, fns)
	if len(steps) > 0 {
		s.advisoryInferProtocol(ctx, fns)
		if err := s.Functions.SaveSteps(ctx, steps); err != nil {
			_ = s.Repo.UpdateStatus(ctx, tenant, id, domain.StatusFailed)
			return err
		}
	}

	counts := domain.FunctionCounts{Total: len(fns)}
	for _, f := range fns {
		if f.IsCrypto {
			counts.Crypto++
		}
	}
	if !counts.Valid() {
		_ = s.Repo.UpdateStatus(ctx, tenant, id, domain.StatusFailed)
		return fmt.Errorf("invalid function counts: crypto=%d total=%d", counts.Crypto, counts.Total)
	}

	duration := s.Clock.Now().Sub(started).Milliseconds()
	if err := s.Repo.UpdateResult(ctx, tenant, id, counts, duration); err != nil {
		return err
	}
	l.WithFields(log.Fields{"crypto": counts.Crypto, "total": counts.Total}).Info("analysis complete")
	return nil
}

// Get one analysis by id
func (s *Service) Get(ctx context.Context, tenant string, id domain.AnalysisID) (*domain.Analysis, error) {
	return s.Repo.Get(ctx, tenant, id)
}

// Latest N analyses
func (s *Service) Latest(ctx context.Context, tenant string, limit int) ([]*domain.Analysis, error) {
	return s.Repo.Latest(ctx, tenant, limit)
}

// FunctionsFor returns the detected functions of an analysis
func (s *Service) FunctionsFor(ctx context.Context, id domain.AnalysisID) ([]*domain.DetectedFunction, error) {
	return s.Functions.FunctionsByAnalysis(ctx, id)
}

// StepsFor returns the inferred protocol flow of an analysis
func (s *Service) StepsFor(ctx context.Context, id domain.AnalysisID) ([]*domain.ProtocolStep, error) {
	return s.Functions.StepsByAnalysis(ctx, id)
}

// Summary recap of the last N days
func (s *Service) Summary(ctx context.Context, tenant string, sinceDays int) (map[string]any, error) {
	total, complete, cryptoFns, totalFns, err := s.Repo.Summary(ctx, tenant, sinceDays)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"total_analyses":   total,
		"complete":         complete,
		"crypto_functions": cryptoFns,
		"total_functions":  totalFns,
	}, nil
}

//
// ==== LEDGER MIRROR ====
//
// The coordinator never persists; these methods are the caller side of the
// reconciliation. Confirmed fields are write-once in the repository.

// ReconcileReceipt fixes the confirmed ledger fields after a successful
// write (or a late confirmation found by the poller).
func (s *Service) ReconcileReceipt(ctx context.Context, tenant, analysisID string, rcpt domledger.Receipt, at time.Time) error {
	return s.Repo.UpdateLedgerFields(ctx, tenant, domain.AnalysisID(analysisID), domain.LedgerFields{
		State:       domain.LedgerConfirmed,
		TxHash:      rcpt.TxHash,
		BlockNumber: rcpt.BlockNumber,
		LoggedAt:    &at,
	})
}

// MarkLedgerPending records a broadcast whose confirmation is outstanding.
func (s *Service) MarkLedgerPending(ctx context.Context, tenant, analysisID, txHash string) error {
	return s.Repo.UpdateLedgerFields(ctx, tenant, domain.AnalysisID(analysisID), domain.LedgerFields{
		State:  domain.LedgerPending,
		TxHash: txHash,
	})
}

// MarkLedgerFailed flags a failed write. The state is transient: a retry
// re-enters pending.
func (s *Service) MarkLedgerFailed(ctx context.Context, tenant, analysisID string) error {
	return s.Repo.UpdateLedgerFields(ctx, tenant, domain.AnalysisID(analysisID), domain.LedgerFields{
		State: domain.LedgerFailed,
	})
}

func (s *Service) advisoryClassify(ctx context.Context, fns []*domain.DetectedFunction) {
	if s.AI == nil {
		return
	}
	l := log.WithFields(log.Fields{"func": "advisoryClassify"})
	out, err := s.AI.ClassifyFunctions(ctx, functionSample(fns))
	if err != nil {
		// advisory only, never fatal
		l.WithError(err).Warn("ai classification skipped")
		return
	}
	l.WithField("result_len", len(out)).Debug("ai classification result")
}

func (s *Service) advisoryInferProtocol(ctx context.Context, fns []*domain.DetectedFunction) {
	if s.AI == nil {
		return
	}
	l := log.WithFields(log.Fields{"func": "advisoryInferProtocol"})
	out, err := s.AI.InferProtocol(ctx, cryptoSample(fns))
	if err != nil {
		l.WithError(err).Warn("ai protocol inference skipped")
		return
	}
	l.WithField("result_len", len(out)).Debug("ai protocol inference result")
}
