package txpool

import (
	"context"
	"math/big"
	"slices"

	"github.com/bryanEnzee/skillance-relay/pkg/client"
	"github.com/ethereum/go-ethereum/common"
)

type ContentFromClient interface {
	ContentFrom(ctx context.Context, address common.Address) (map[string]map[string]*client.RPCTransaction, error)
}

// PendingTransactions returns pending txs sent from `address` sorted by nonce.
func PendingTransactions(ctx context.Context, cl ContentFromClient, address common.Address) ([]*client.RPCTransaction, error) {
	txs, err := cl.ContentFrom(ctx, address)
	if err != nil {
		return nil, err
	}

	pendingTxMap, found := txs["pending"]
	if !found {
		return nil, nil
	}

	var pendingTxs []*client.RPCTransaction
	for _, pendingTx := range pendingTxMap {
		pendingTxs = append(pendingTxs, pendingTx)
	}

	slices.SortFunc(pendingTxs, func(a, b *client.RPCTransaction) int {
		if a.Nonce < b.Nonce {
			return -1
		} else if a.Nonce > b.Nonce {
			return 1
		} else {
			return 0
		}
	})

	return pendingTxs, nil
}

func inclByPercent(n *big.Int, percent uint64) {
	n.Mul(n, big.NewInt(int64(100+percent)))
	n.Div(n, big.NewInt(100))
}

func bumped(v interface{ ToInt() *big.Int }, isNil bool, priceBump uint64) *big.Int {
	if isNil {
		return new(big.Int)
	}
	n := new(big.Int).Set(v.ToInt())
	inclByPercent(n, priceBump)
	return n
}

// MinimumRequiredFee is the lowest fee a replacement of a pending tx must pay.
type MinimumRequiredFee struct {
	GasPrice  *big.Int
	GasFeeCap *big.Int
	GasTipCap *big.Int
}

// GetMinimumRequiredFee returns the minimum fee required to replace the pending tx with `nonce`.
// A nil tx means there is nothing to replace and every fee is zero.
func GetMinimumRequiredFee(ctx context.Context, cl ContentFromClient, address common.Address, nonce uint64, priceBump uint64) (*client.RPCTransaction, *MinimumRequiredFee, error) {
	zero := &MinimumRequiredFee{GasPrice: common.Big0, GasFeeCap: common.Big0, GasTipCap: common.Big0}
	pendingTxs, err := PendingTransactions(ctx, cl, address)
	if err != nil {
		return nil, nil, err
	} else if len(pendingTxs) == 0 {
		return nil, zero, nil
	}

	var targetTx *client.RPCTransaction
	for _, pendingTx := range pendingTxs {
		if uint64(pendingTx.Nonce) == nonce {
			targetTx = pendingTx
			break
		}
	}
	if targetTx == nil {
		return nil, zero, nil
	}

	return targetTx, &MinimumRequiredFee{
		GasPrice:  bumped(targetTx.GasPrice, targetTx.GasPrice == nil, priceBump),
		GasFeeCap: bumped(targetTx.GasFeeCap, targetTx.GasFeeCap == nil, priceBump),
		GasTipCap: bumped(targetTx.GasTipCap, targetTx.GasTipCap == nil, priceBump),
	}, nil
}
