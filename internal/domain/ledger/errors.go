package ledger

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind is the stable failure taxonomy for ledger writes. Callers render one
// specific message per kind, so new failure modes must be mapped here rather
// than leaked as raw errors.
type Kind string

const (
	KindNotConnected        Kind = "not_connected"
	KindNotConfigured       Kind = "not_configured"
	KindInvalidInput        Kind = "invalid_input"
	KindUserRejected        Kind = "user_rejected"
	KindInsufficientFunds   Kind = "insufficient_funds"
	KindDuplicateCreate     Kind = "duplicate_create"
	KindConfirmationTimeout Kind = "confirmation_timeout"
	KindNetwork             Kind = "network_error"
	KindUnknown             Kind = "unknown"
)

// ErrRejected is returned by a Wallet when the approval step declines the
// submission. It is a cancellation, not a failure.
var ErrRejected = errors.New("signer rejected the transaction")

// Error is the tagged result for every expected ledger failure. TxHash is
// set when the transaction was already broadcast (ConfirmationTimeout), so
// the caller can poll for a late receipt instead of assuming loss.
type Error struct {
	Kind   Kind
	TxHash string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("ledger: %s: %v", e.Kind, e.cause)
	}
	return fmt.Sprintf("ledger: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.cause }

// E builds a tagged error for a known kind.
func E(kind Kind, cause error) *Error {
	return &Error{Kind: kind, cause: cause}
}

// Timeout builds a ConfirmationTimeout carrying the broadcast hash.
func Timeout(txHash string, cause error) *Error {
	return &Error{Kind: KindConfirmationTimeout, TxHash: txHash, cause: cause}
}

// KindOf extracts the taxonomy kind, KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindUnknown
}

// Retryable reports whether the caller may retry with backoff. Retrying is
// never done inside the coordinator: a state-changing call retried blindly
// risks double submission.
func Retryable(kind Kind) bool {
	switch kind {
	case KindNetwork, KindConfirmationTimeout:
		return true
	case KindUserRejected:
		// "try again" on user action, no backoff; not retried automatically
		return false
	default:
		return false
	}
}

// Substrings reported by nodes and signers for each condition. Chain RPC
// errors are plain strings on the wire, so matching text is the only option.
var (
	rejectedMarkers = []string{
		"user rejected",
		"user denied",
		"action_rejected",
		"request rejected",
	}
	fundsMarkers = []string{
		"insufficient funds",
		"insufficient balance",
	}
	duplicateMarkers = []string{
		"analysis already exists",
		"already exists",
		"duplicate",
	}
	networkMarkers = []string{
		"connection refused",
		"connection reset",
		"no such host",
		"i/o timeout",
		"network is unreachable",
		"tls handshake",
		"eof",
		"502",
		"503",
	}
)

// Classify maps a raw submit/confirm error onto the taxonomy. Already-tagged
// errors pass through unchanged so the create and update paths classify
// identically.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var le *Error
	if errors.As(err, &le) {
		return le
	}
	if errors.Is(err, ErrRejected) {
		return E(KindUserRejected, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return E(KindNetwork, err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return E(KindNetwork, err)
	}

	msg := strings.ToLower(err.Error())
	for _, m := range rejectedMarkers {
		if strings.Contains(msg, m) {
			return E(KindUserRejected, err)
		}
	}
	for _, m := range fundsMarkers {
		if strings.Contains(msg, m) {
			return E(KindInsufficientFunds, err)
		}
	}
	for _, m := range duplicateMarkers {
		if strings.Contains(msg, m) {
			return E(KindDuplicateCreate, err)
		}
	}
	for _, m := range networkMarkers {
		if strings.Contains(msg, m) {
			return E(KindNetwork, err)
		}
	}
	return E(KindUnknown, err)
}
