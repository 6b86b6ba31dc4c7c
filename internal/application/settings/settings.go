package settings

import (
	"context"
	"fmt"

	"github.com/firmproof/firmproof/internal/chains"
)

// Store port for the user-set contract address override.
type Store interface {
	ContractAddress(ctx context.Context) (string, error)
	SetContractAddress(ctx context.Context, addr string) error
	ClearContractAddress(ctx context.Context) error
}

// Service resolves the ledger contract address with the documented
// precedence: a user-set value overrides the build-time default; absence of
// both disables ledger writes.
type Service struct {
	Store Store
	// Default comes from the config file and may be empty.
	Default string
}

// Sources reported by Resolve.
const (
	SourceUser    = "user"
	SourceDefault = "default"
	SourceNone    = ""
)

// Resolve returns the effective contract address and where it came from.
// ok is false when nothing is configured.
func (s *Service) Resolve(ctx context.Context) (addr, source string, ok bool, err error) {
	user, err := s.Store.ContractAddress(ctx)
	if err != nil {
		return "", SourceNone, false, err
	}
	if user != "" {
		return user, SourceUser, true, nil
	}
	if s.Default != "" {
		return s.Default, SourceDefault, true, nil
	}
	return "", SourceNone, false, nil
}

// Set validates and persists the user override.
func (s *Service) Set(ctx context.Context, addr string) error {
	if !chains.IsValidAddress(addr) {
		return fmt.Errorf("invalid contract address: %q", addr)
	}
	return s.Store.SetContractAddress(ctx, addr)
}

// Clear removes the user override, falling back to the default.
func (s *Service) Clear(ctx context.Context) error {
	return s.Store.ClearContractAddress(ctx)
}
