package eth

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	domain "github.com/firmproof/firmproof/internal/domain/ledger"
)

// ABI of the deployed FirmwareAnalysisLogger contract.
const loggerABI = `[
  {"type":"function","name":"analysisExists","stateMutability":"view",
   "inputs":[{"name":"analysisId","type":"string"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"logAnalysis","stateMutability":"nonpayable",
   "inputs":[{"name":"analysisId","type":"string"},{"name":"filename","type":"string"},
             {"name":"cryptoFunctions","type":"uint256"},{"name":"totalFunctions","type":"uint256"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"updateAnalysis","stateMutability":"nonpayable",
   "inputs":[{"name":"analysisId","type":"string"},
             {"name":"cryptoFunctions","type":"uint256"},{"name":"totalFunctions","type":"uint256"}],
   "outputs":[]},
  {"type":"event","name":"AnalysisLogged","anonymous":false,
   "inputs":[{"name":"user","type":"address","indexed":true},
             {"name":"analysisId","type":"string","indexed":false},
             {"name":"filename","type":"string","indexed":false},
             {"name":"timestamp","type":"uint256","indexed":false}]}
]`

// Dial connects to the chain RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	return ethclient.DialContext(ctx, rpcURL)
}

// ContractClient is the go-ethereum adapter for the analysis-logger
// contract port.
type ContractClient struct {
	rpc      *ethclient.Client
	bound    *bind.BoundContract
	address  common.Address
	wallet   *KeyedWallet
}

// NewContractClient binds the logger ABI at the given address. The wallet
// signs the state-changing calls.
func NewContractClient(rpc *ethclient.Client, address common.Address, wallet *KeyedWallet) (*ContractClient, error) {
	parsed, err := abi.JSON(strings.NewReader(loggerABI))
	if err != nil {
		return nil, fmt.Errorf("parsing logger abi: %w", err)
	}
	return &ContractClient{
		rpc:     rpc,
		bound:   bind.NewBoundContract(address, parsed, rpc, rpc, rpc),
		address: address,
		wallet:  wallet,
	}, nil
}

// Address of the bound contract.
func (c *ContractClient) Address() string { return c.address.Hex() }

// AnalysisExists is a read-only call, no gas and no confirmation wait.
func (c *ContractClient) AnalysisExists(ctx context.Context, id string) (bool, error) {
	var out []interface{}
	if err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, "analysisExists", id); err != nil {
		return false, fmt.Errorf("analysisExists call: %w", err)
	}
	if len(out) == 0 {
		return false, errors.New("analysisExists: empty return")
	}
	exists, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("analysisExists: unexpected return type %T", out[0])
	}
	return exists, nil
}

// LogAnalysis broadcasts a create and returns right after submission.
func (c *ContractClient) LogAnalysis(ctx context.Context, id, filename string, cryptoCount, totalCount int) (domain.PendingTx, error) {
	opts, err := c.wallet.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := c.bound.Transact(opts, "logAnalysis", id, filename,
		big.NewInt(int64(cryptoCount)), big.NewInt(int64(totalCount)))
	if err != nil {
		return nil, err
	}
	return &pendingTx{tx: tx, backend: c.rpc}, nil
}

// UpdateAnalysis broadcasts a counts-only update, same shape.
func (c *ContractClient) UpdateAnalysis(ctx context.Context, id string, cryptoCount, totalCount int) (domain.PendingTx, error) {
	opts, err := c.wallet.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := c.bound.Transact(opts, "updateAnalysis", id,
		big.NewInt(int64(cryptoCount)), big.NewInt(int64(totalCount)))
	if err != nil {
		return nil, err
	}
	return &pendingTx{tx: tx, backend: c.rpc}, nil
}

// ReceiptByHash polls for the receipt of an earlier submission; (nil, nil)
// while still unconfirmed.
func (c *ContractClient) ReceiptByHash(ctx context.Context, txHash string) (*domain.Receipt, error) {
	rcpt, err := c.rpc.TransactionReceipt(ctx, common.HexToHash(txHash))
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return receiptFrom(rcpt)
}

type pendingTx struct {
	tx      *types.Transaction
	backend *ethclient.Client
}

func (p *pendingTx) Hash() string { return p.tx.Hash().Hex() }

func (p *pendingTx) Wait(ctx context.Context) (*domain.Receipt, error) {
	rcpt, err := bind.WaitMined(ctx, p.backend, p.tx)
	if err != nil {
		return nil, err
	}
	return receiptFrom(rcpt)
}

func receiptFrom(rcpt *types.Receipt) (*domain.Receipt, error) {
	if rcpt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("transaction %s reverted", rcpt.TxHash.Hex())
	}
	return &domain.Receipt{
		TxHash:      rcpt.TxHash.Hex(),
		BlockNumber: rcpt.BlockNumber.Uint64(),
		GasUsed:     rcpt.GasUsed,
	}, nil
}
