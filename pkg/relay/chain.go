package relay

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/bryanEnzee/skillance-relay/pkg/client"
)

// ChainClient is the node surface the relay depends on.
type ChainClient interface {
	bind.ContractCaller

	ChainID(ctx context.Context) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
	TransactionByHash(ctx context.Context, txHash common.Hash) (tx *gethtypes.Transaction, isPending bool, err error)
	GetTransactionReceipt(ctx context.Context, txHash common.Hash) (rc *client.Receipt, recoverable bool, err error)
	WaitForReceiptAndGet(ctx context.Context, txHash common.Hash) (*client.Receipt, error)
}

var _ ChainClient = (*client.ETHClient)(nil)
