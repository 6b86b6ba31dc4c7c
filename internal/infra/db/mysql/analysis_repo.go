package mysql

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/firmproof/firmproof/internal/domain/analyses"
)

type AnalysisRepository struct {
	db *sql.DB
}

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// Save insert/update Analysis record. Ledger fields are not part of the
// upsert; they only move through UpdateLedgerFields.
func (r *AnalysisRepository) Save(ctx context.Context, a *domain.Analysis) error {
	const q = `
INSERT INTO firmware_analyses
(id, tenant_id, filename, file_size, isa, uploaded_at, status,
 crypto_functions, total_functions, binary_url, duration_ms, ledger_state)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 status=VALUES(status),
 crypto_functions=VALUES(crypto_functions), total_functions=VALUES(total_functions),
 binary_url=VALUES(binary_url), duration_ms=VALUES(duration_ms);
`
	tenant := stringOrDash(a.TenantID)
	status := stringOrDash(string(a.Status))
	uploaded := a.UploadedAt
	if uploaded.IsZero() {
		uploaded = time.Now()
	}
	ledgerState := a.Ledger.State
	if ledgerState == "" {
		ledgerState = domain.LedgerUnlogged
	}

	_, err := r.db.ExecContext(ctx, q,
		a.ID, tenant, a.Filename, a.FileSize, a.ISA, uploaded, status,
		a.Counts.Crypto, a.Counts.Total, a.BinaryURL, a.DurationMS, ledgerState,
	)
	return err
}

// Get by ID + Tenant
func (r *AnalysisRepository) Get(ctx context.Context, tenant string, id domain.AnalysisID) (*domain.Analysis, error) {
	const q = `
SELECT id, tenant_id, filename, file_size, isa, uploaded_at, status,
       crypto_functions, total_functions, binary_url, duration_ms,
       ledger_state, tx_hash, block_number, logged_at
FROM firmware_analyses
WHERE tenant_id=? AND id=? LIMIT 1;
`
	return scanAnalysis(r.db.QueryRowContext(ctx, q, tenant, id))
}

// Latest analyses per tenant
func (r *AnalysisRepository) Latest(ctx context.Context, tenant string, limit int) ([]*domain.Analysis, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, tenant_id, filename, file_size, isa, uploaded_at, status,
       crypto_functions, total_functions, binary_url, duration_ms,
       ledger_state, tx_hash, block_number, logged_at
FROM firmware_analyses
WHERE tenant_id=? ORDER BY uploaded_at DESC LIMIT ?;
`
	rows, err := r.db.QueryContext(ctx, q, tenant, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Analysis
	for rows.Next() {
		a, err := scanAnalysisRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Summary counts analyses since N days
func (r *AnalysisRepository) Summary(ctx context.Context, tenant string, sinceDays int) (int, int, int, int, error) {
	if sinceDays <= 0 {
		sinceDays = 7
	}
	cut := time.Now().AddDate(0, 0, -sinceDays)

	const q = `
SELECT COUNT(*) AS total_analyses,
       COALESCE(SUM(status = 'complete'),0)   AS complete,
       COALESCE(SUM(crypto_functions),0)      AS crypto_fns,
       COALESCE(SUM(total_functions),0)       AS total_fns
FROM firmware_analyses
WHERE tenant_id=? AND uploaded_at >= ?;
`
	var t, c, cf, tf int
	if err := r.db.QueryRowContext(ctx, q, tenant, cut).Scan(&t, &c, &cf, &tf); err != nil {
		return 0, 0, 0, 0, err
	}
	return t, c, cf, tf, nil
}

// UpdateStatus moves the pipeline status of one analysis
func (r *AnalysisRepository) UpdateStatus(ctx context.Context, tenant string, id domain.AnalysisID, status domain.Status) error {
	const q = `UPDATE firmware_analyses SET status=? WHERE tenant_id=? AND id=?;`
	_, err := r.db.ExecContext(ctx, q, status, tenant, id)
	return err
}

// UpdateResult stores the final pipeline stats
func (r *AnalysisRepository) UpdateResult(ctx context.Context, tenant string, id domain.AnalysisID, counts domain.FunctionCounts, durationMS int64) error {
	const q = `
UPDATE firmware_analyses
SET status=?, crypto_functions=?, total_functions=?, duration_ms=?
WHERE tenant_id=? AND id=?;
`
	_, err := r.db.ExecContext(ctx, q, domain.StatusComplete, counts.Crypto, counts.Total, durationMS, tenant, id)
	return err
}

// UpdateLedgerFields persists the on-chain mirror. A confirmed mirror is
// write-once: the guarded UPDATE only lets a newer confirmed update event
// through, everything else trips ErrLedgerImmutable.
func (r *AnalysisRepository) UpdateLedgerFields(ctx context.Context, tenant string, id domain.AnalysisID, f domain.LedgerFields) error {
	const q = `
UPDATE firmware_analyses
SET ledger_state=?, tx_hash=?, block_number=?, logged_at=?
WHERE tenant_id=? AND id=?
  AND (ledger_state <> 'confirmed'
       OR (? = 'confirmed' AND ? >= COALESCE(block_number, 0)));
`
	res, err := r.db.ExecContext(ctx, q,
		f.State, nullString(f.TxHash), nullUint(f.BlockNumber), nullTime(f.LoggedAt),
		tenant, id,
		f.State, f.BlockNumber,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.Get(ctx, tenant, id); err != nil {
			return err
		}
		return domain.ErrLedgerImmutable
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row *sql.Row) (*domain.Analysis, error) {
	return scanAnalysisRow(row)
}

func scanAnalysisRow(row rowScanner) (*domain.Analysis, error) {
	var a domain.Analysis
	var crypto, total int
	var txHash sql.NullString
	var blockNumber sql.NullInt64
	var loggedAt sql.NullTime
	if err := row.Scan(
		&a.ID, &a.TenantID, &a.Filename, &a.FileSize, &a.ISA, &a.UploadedAt, &a.Status,
		&crypto, &total, &a.BinaryURL, &a.DurationMS,
		&a.Ledger.State, &txHash, &blockNumber, &loggedAt,
	); err != nil {
		return nil, err
	}
	a.Counts = domain.FunctionCounts{Crypto: crypto, Total: total}
	if txHash.Valid {
		a.Ledger.TxHash = txHash.String
	}
	if blockNumber.Valid {
		a.Ledger.BlockNumber = uint64(blockNumber.Int64)
	}
	if loggedAt.Valid {
		t := loggedAt.Time
		a.Ledger.LoggedAt = &t
	}
	return &a, nil
}
