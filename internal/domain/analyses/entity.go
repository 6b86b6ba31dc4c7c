package analyses

import (
	"time"
)

// ID type for Analysis
type AnalysisID string

// ISA enum
type ISA string

const (
	ISAARM     ISA = "arm"
	ISAARM64   ISA = "arm64"
	ISAX86     ISA = "x86"
	ISAX8664   ISA = "x86_64"
	ISAMIPS    ISA = "mips"
	ISARISCV   ISA = "riscv"
	ISAAVR     ISA = "avr"
	ISAUnknown ISA = "unknown"
)

// Status enum for the analysis pipeline
type Status string

const (
	StatusPending   Status = "pending"
	StatusAnalyzing Status = "analyzing"
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
)

// LedgerState enum for the on-chain mirror
type LedgerState string

const (
	LedgerUnlogged  LedgerState = "unlogged"
	LedgerPending   LedgerState = "pending"
	LedgerConfirmed LedgerState = "confirmed"
	LedgerFailed    LedgerState = "failed"
)

// FunctionCounts value object
type FunctionCounts struct {
	Crypto int `json:"crypto"`
	Total  int `json:"total"`
}

// Valid reports whether the counts can be written on-chain.
func (c FunctionCounts) Valid() bool {
	return c.Crypto >= 0 && c.Total >= 0 && c.Crypto <= c.Total
}

// LedgerFields mirrors the on-chain record into the off-chain store.
// TxHash/BlockNumber/LoggedAt are fixed at confirmation; on-chain data is
// immutable, so a confirmed mirror is only ever replaced by a newer
// confirmed update event.
type LedgerFields struct {
	State       LedgerState `json:"state"`
	TxHash      string      `json:"tx_hash,omitempty"`
	BlockNumber uint64      `json:"block_number,omitempty"`
	LoggedAt    *time.Time  `json:"logged_at,omitempty"`
}

// Aggregate Root: Analysis
type Analysis struct {
	ID         AnalysisID     `json:"id"`
	TenantID   string         `json:"tenant_id"`
	Filename   string         `json:"filename"`
	FileSize   int64          `json:"file_size"`
	ISA        ISA            `json:"isa"`
	UploadedAt time.Time      `json:"uploaded_at"`
	Status     Status         `json:"status"`
	Counts     FunctionCounts `json:"counts"`
	BinaryURL  string         `json:"binary_url,omitempty"`
	DurationMS int64          `json:"duration_ms"`
	Ledger     LedgerFields   `json:"ledger"`
}
