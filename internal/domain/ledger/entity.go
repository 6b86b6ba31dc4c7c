package ledger

import "time"

// Receipt is the normalized outcome of a confirmed ledger write.
type Receipt struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	GasUsed     uint64 `json:"gas_used"`
	// Updated is true when the write refined an existing record instead of
	// creating one.
	Updated bool `json:"updated"`
}

// WriteIntent is rebuilt on every attempt from the current record and a
// fresh existence check; it is never persisted. An update intent carries
// only the counts: identity and filename are fixed by the first write.
type WriteIntent struct {
	AnalysisID  string
	Filename    string
	CryptoCount int
	TotalCount  int
	IsUpdate    bool
}

// PendingLog is a submission whose confirmation was not observed within the
// caller's deadline. The transaction may still land; callers park these and
// poll for the receipt later.
type PendingLog struct {
	TenantID    string    `json:"tenant_id"`
	AnalysisID  string    `json:"analysis_id"`
	TxHash      string    `json:"tx_hash"`
	IsUpdate    bool      `json:"is_update"`
	SubmittedAt time.Time `json:"submitted_at"`
}
