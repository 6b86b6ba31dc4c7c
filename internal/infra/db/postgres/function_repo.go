package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	domain "github.com/firmproof/firmproof/internal/domain/analyses"
)

type FunctionRepository struct{ db *sql.DB }

func NewFunctionRepository(db *sql.DB) *FunctionRepository { return &FunctionRepository{db: db} }

// SaveFunctions inserts the detected functions of one pipeline run
func (r *FunctionRepository) SaveFunctions(ctx context.Context, fns []*domain.DetectedFunction) error {
	const q = `
INSERT INTO detected_functions
(analysis_id, address, function_name, classification, confidence, is_crypto,
 instruction_count, basic_blocks, cfg_complexity, similar_library, similarity_score)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11);`
	for _, f := range fns {
		if _, err := r.db.ExecContext(ctx, q,
			f.AnalysisID, f.Address, f.Name, f.Classification, f.Confidence, f.IsCrypto,
			f.InstructionCount, f.BasicBlocks, f.CFGComplexity,
			nullString(f.SimilarLibrary), f.SimilarityScore,
		); err != nil {
			return err
		}
	}
	return nil
}

// FunctionsByAnalysis returns the functions ordered by address
func (r *FunctionRepository) FunctionsByAnalysis(ctx context.Context, id domain.AnalysisID) ([]*domain.DetectedFunction, error) {
	const q = `
SELECT analysis_id, address, function_name, classification, confidence, is_crypto,
       instruction_count, basic_blocks, cfg_complexity, similar_library, similarity_score
FROM detected_functions
WHERE analysis_id=$1
ORDER BY address;`
	rows, err := r.db.QueryContext(ctx, q, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.DetectedFunction
	for rows.Next() {
		var f domain.DetectedFunction
		var lib sql.NullString
		var score sql.NullFloat64
		if err := rows.Scan(
			&f.AnalysisID, &f.Address, &f.Name, &f.Classification, &f.Confidence, &f.IsCrypto,
			&f.InstructionCount, &f.BasicBlocks, &f.CFGComplexity, &lib, &score,
		); err != nil {
			return nil, err
		}
		if lib.Valid {
			f.SimilarLibrary = lib.String
		}
		if score.Valid {
			f.SimilarityScore = score.Float64
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

// SaveSteps inserts the inferred protocol flow. functions is a text[]
// column, pq.Array handles the conversion.
func (r *FunctionRepository) SaveSteps(ctx context.Context, steps []*domain.ProtocolStep) error {
	const q = `
INSERT INTO protocol_flows
(analysis_id, step_number, step_name, description, functions, confidence)
VALUES ($1,$2,$3,$4,$5,$6);`
	for _, s := range steps {
		if _, err := r.db.ExecContext(ctx, q,
			s.AnalysisID, s.StepNumber, s.StepName, s.Description, pq.Array(s.Functions), s.Confidence,
		); err != nil {
			return err
		}
	}
	return nil
}

// StepsByAnalysis returns the flow ordered by step number
func (r *FunctionRepository) StepsByAnalysis(ctx context.Context, id domain.AnalysisID) ([]*domain.ProtocolStep, error) {
	const q = `
SELECT analysis_id, step_number, step_name, description, functions, confidence
FROM protocol_flows
WHERE analysis_id=$1
ORDER BY step_number;`
	rows, err := r.db.QueryContext(ctx, q, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.ProtocolStep
	for rows.Next() {
		var s domain.ProtocolStep
		if err := rows.Scan(
			&s.AnalysisID, &s.StepNumber, &s.StepName, &s.Description, pq.Array(&s.Functions), &s.Confidence,
		); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}
