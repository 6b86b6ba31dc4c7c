package analyses

import (
	"context"
	"errors"
)

// ErrLedgerImmutable is returned by UpdateLedgerFields when a write would
// overwrite a confirmed mirror with anything other than a newer confirmed
// update event.
var ErrLedgerImmutable = errors.New("confirmed ledger fields are immutable")

// Repository port (persistence for analyses)
type Repository interface {
	Save(ctx context.Context, a *Analysis) error
	Get(ctx context.Context, tenant string, id AnalysisID) (*Analysis, error)
	Latest(ctx context.Context, tenant string, limit int) ([]*Analysis, error)
	Summary(ctx context.Context, tenant string, sinceDays int) (total, complete, cryptoFns, totalFns int, err error)
	UpdateStatus(ctx context.Context, tenant string, id AnalysisID, status Status) error
	UpdateResult(ctx context.Context, tenant string, id AnalysisID, counts FunctionCounts, durationMS int64) error

	// UpdateLedgerFields persists the mirror of an on-chain write. Confirmed
	// fields are write-once except for a newer confirmed update event.
	UpdateLedgerFields(ctx context.Context, tenant string, id AnalysisID, f LedgerFields) error
}

// FunctionRepository port (detected functions + protocol steps)
type FunctionRepository interface {
	SaveFunctions(ctx context.Context, fns []*DetectedFunction) error
	FunctionsByAnalysis(ctx context.Context, id AnalysisID) ([]*DetectedFunction, error)
	SaveSteps(ctx context.Context, steps []*ProtocolStep) error
	StepsByAnalysis(ctx context.Context, id AnalysisID) ([]*ProtocolStep, error)
}

// BinaryStore port (firmware object storage)
type BinaryStore interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
	UploadAndCleanup(ctx context.Context, localPath, key string) (string, error)
}
