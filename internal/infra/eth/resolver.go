package eth

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/firmproof/firmproof/internal/application/settings"
	domain "github.com/firmproof/firmproof/internal/domain/ledger"
)

// Resolver binds the contract client to whatever address the settings
// service currently resolves. The binding is rebuilt when the address
// changes (a user override can appear or disappear at runtime).
type Resolver struct {
	Settings *settings.Service
	RPC      *ethclient.Client
	Wallet   *KeyedWallet

	mu     sync.Mutex
	addr   string
	client *ContractClient
}

func (r *Resolver) Resolve(ctx context.Context) (domain.ContractClient, bool, error) {
	addr, _, ok, err := r.Settings.Resolve(ctx)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil || r.addr != addr {
		client, err := NewContractClient(r.RPC, common.HexToAddress(addr), r.Wallet)
		if err != nil {
			return nil, false, err
		}
		r.addr = addr
		r.client = client
	}
	return r.client, true, nil
}
