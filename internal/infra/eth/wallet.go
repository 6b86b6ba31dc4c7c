package eth

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	domain "github.com/firmproof/firmproof/internal/domain/ledger"
)

// ApproveFunc gates state-changing submissions the way a browser wallet
// prompt would. Returning domain.ErrRejected declines the transaction.
type ApproveFunc func(ctx context.Context, intent domain.WriteIntent) error

// KeyedWallet is the server-side wallet capability: a local signing key
// plus a pluggable approval hook. Account and chain are resolved per call,
// never cached.
type KeyedWallet struct {
	key     *ecdsa.PrivateKey
	rpc     *ethclient.Client
	approve ApproveFunc
}

// NewKeyedWallet parses the hex private key. An empty key yields a
// disconnected wallet (ConnectedAccount returns "").
func NewKeyedWallet(privateKeyHex string, rpc *ethclient.Client, approve ApproveFunc) (*KeyedWallet, error) {
	w := &KeyedWallet{rpc: rpc, approve: approve}
	if privateKeyHex == "" {
		return w, nil
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parsing wallet key: %w", err)
	}
	w.key = key
	return w, nil
}

// ConnectedAccount returns the signer address, "" when no key is loaded.
func (w *KeyedWallet) ConnectedAccount(ctx context.Context) (string, error) {
	if w.key == nil {
		return "", nil
	}
	return crypto.PubkeyToAddress(w.key.PublicKey).Hex(), nil
}

// ActiveChainID asks the node on every call; the endpoint can be repointed
// between calls.
func (w *KeyedWallet) ActiveChainID(ctx context.Context) (*big.Int, error) {
	return w.rpc.ChainID(ctx)
}

// Approve runs the hook; absence of a hook auto-approves.
func (w *KeyedWallet) Approve(ctx context.Context, intent domain.WriteIntent) error {
	if w.approve == nil {
		return nil
	}
	return w.approve(ctx, intent)
}

// Balance of the connected account in wei.
func (w *KeyedWallet) Balance(ctx context.Context) (*big.Int, error) {
	if w.key == nil {
		return big.NewInt(0), nil
	}
	return w.rpc.BalanceAt(ctx, crypto.PubkeyToAddress(w.key.PublicKey), nil)
}

func (w *KeyedWallet) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if w.key == nil {
		return nil, fmt.Errorf("no signing key loaded")
	}
	chainID, err := w.rpc.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	opts, err := bind.NewKeyedTransactorWithChainID(w.key, chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	return opts, nil
}
