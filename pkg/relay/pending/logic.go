package pending

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bryanEnzee/skillance-relay/pkg/client"
	"github.com/bryanEnzee/skillance-relay/pkg/client/txpool"
	"github.com/bryanEnzee/skillance-relay/pkg/log"
)

var ErrNoPendingTx = errors.New("no pending transaction was found")

// Client is the node surface needed to inspect and replace relay transactions.
type Client interface {
	txpool.ContentFromClient

	ChainID(ctx context.Context) (*big.Int, error)
	TransactionByHash(ctx context.Context, txHash common.Hash) (tx *types.Transaction, isPending bool, err error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	WaitForReceiptAndGet(ctx context.Context, txHash common.Hash) (*client.Receipt, error)
}

// Signer signs on behalf of the relay account.
type Signer interface {
	Address() common.Address
	Sign(chainID *big.Int, address common.Address, tx *types.Transaction) (*types.Transaction, error)
}

type ReplaceConfig struct {
	// PriceBump is the fee increase in percent over the stuck tx.
	PriceBump       uint64
	CheckInterval   time.Duration
	PendingDuration time.Duration
	// MaxGasPrice caps gasPrice and maxFeePerGas of the replacement. Zero means no cap.
	MaxGasPrice *big.Int
}

// ReplacementRecorder learns which tx took over a stuck tx's nonce, so messages
// waiting on the stuck hash can follow it.
type ReplacementRecorder interface {
	RecordReplacement(ctx context.Context, replaced, replacement common.Hash) error
}

type Logic struct {
	client   Client
	signer   Signer
	config   ReplaceConfig
	recorder ReplacementRecorder
	logger   *log.RelayLogger
	revert   func(rc *client.Receipt) string
	nowFunc  func() time.Time
}

func NewLogic(cl Client, signer Signer, config ReplaceConfig, logger *log.RelayLogger) *Logic {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Logic{
		client:  cl,
		signer:  signer,
		config:  config,
		logger:  logger.WithModule("pending"),
		revert:  receiptRevertReason,
		nowFunc: time.Now,
	}
}

// SetRecorder makes every sent replacement known to r.
func (m *Logic) SetRecorder(r ReplacementRecorder) {
	m.recorder = r
}

// ShowPendingTx returns the lowest-nonce pending transaction of the relay account.
func (m *Logic) ShowPendingTx(ctx context.Context) (*client.RPCTransaction, error) {
	txs, err := txpool.PendingTransactions(ctx, m.client, m.signer.Address())
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	if len(txs) == 0 {
		return nil, ErrNoPendingTx
	}
	return txs[0], nil
}

// ReplacePendingTx waits until txHash has been pending for PendingDuration and then
// resends it with the same nonce and a bumped fee. The returned tx is nil when txHash left
// the txpool on its own.
func (m *Logic) ReplacePendingTx(ctx context.Context, txHash common.Hash) (*types.Transaction, error) {
	timer := time.NewTimer(m.config.CheckInterval)
	defer timer.Stop()

	start := m.nowFunc()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			tx, isPending, err := m.client.TransactionByHash(ctx, txHash)
			if err != nil {
				return nil, err
			}
			if !isPending {
				m.logger.Info("tx is not pending", "tx_hash", txHash)
				return nil, nil
			}
			if m.nowFunc().Sub(start) >= m.config.PendingDuration {
				m.logger.Info("try to replace pending transaction", "tx_hash", txHash)
				return m.replacePendingTx(ctx, tx)
			}
			m.logger.Info("tx is still pending", "tx_hash", txHash)
			timer.Reset(m.config.CheckInterval)
		}
	}
}

func (m *Logic) replacePendingTx(ctx context.Context, tx *types.Transaction) (*types.Transaction, error) {
	from := m.signer.Address()
	target, fee, err := txpool.GetMinimumRequiredFee(ctx, m.client, from, tx.Nonce(), m.config.PriceBump)
	if err != nil {
		return nil, err
	}
	if target == nil {
		m.logger.Info("tx left the txpool before replacement", "tx_hash", tx.Hash(), "nonce", tx.Nonce())
		return nil, nil
	}

	txData, err := copyTxData(tx, fee, m.config.MaxGasPrice)
	if err != nil {
		return nil, err
	}
	chainID, err := m.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	newTx, err := m.signer.Sign(chainID, from, types.NewTx(txData))
	if err != nil {
		return nil, err
	}
	if err = m.client.SendTransaction(ctx, newTx); err != nil {
		return nil, fmt.Errorf("failed to send replacement tx: %w", err)
	}
	if m.recorder != nil {
		if err := m.recorder.RecordReplacement(ctx, tx.Hash(), newTx.Hash()); err != nil {
			m.logger.Error("failed to record replacement", err, "tx_hash", newTx.Hash(), "replaced", tx.Hash())
		}
	}

	receipt, err := m.client.WaitForReceiptAndGet(ctx, newTx.Hash())
	if err != nil {
		return newTx, fmt.Errorf("replace tx error: txHash=%s, err=%w", newTx.Hash(), err)
	} else if receipt.Status == types.ReceiptStatusFailed {
		return newTx, fmt.Errorf("replace tx failed: txHash=%s, revertReason=%s", newTx.Hash(), m.revert(receipt))
	}
	m.logger.Info("replace tx success", "tx_hash", newTx.Hash(), "replaced", tx.Hash())
	return newTx, nil
}

// copyTxData keeps everything of src but the fee fields, which are raised to fee.
func copyTxData(src *types.Transaction, fee *txpool.MinimumRequiredFee, maxGasPrice *big.Int) (types.TxData, error) {
	overCap := func(v *big.Int) bool {
		return maxGasPrice != nil && maxGasPrice.Sign() > 0 && v.Cmp(maxGasPrice) > 0
	}

	switch src.Type() {
	case types.LegacyTxType:
		gasPrice := maxBig(fee.GasPrice, src.GasPrice())
		if overCap(gasPrice) {
			return nil, fmt.Errorf("gasPrice > max : LegacyTx value=%v,max=%v", gasPrice, maxGasPrice)
		}
		return &types.LegacyTx{
			Nonce:    src.Nonce(),
			GasPrice: gasPrice,
			Gas:      src.Gas(),
			To:       src.To(),
			Value:    src.Value(),
			Data:     src.Data(),
		}, nil
	case types.AccessListTxType:
		gasPrice := maxBig(fee.GasPrice, src.GasPrice())
		if overCap(gasPrice) {
			return nil, fmt.Errorf("gasPrice > max : AccessListTx value=%v,max=%v", gasPrice, maxGasPrice)
		}
		return &types.AccessListTx{
			ChainID:    src.ChainId(),
			Nonce:      src.Nonce(),
			GasPrice:   gasPrice,
			Gas:        src.Gas(),
			To:         src.To(),
			Value:      src.Value(),
			Data:       src.Data(),
			AccessList: src.AccessList(),
		}, nil
	case types.DynamicFeeTxType:
		gasTipCap := maxBig(fee.GasTipCap, src.GasTipCap())
		gasFeeCap := maxBig(fee.GasFeeCap, src.GasFeeCap())
		if overCap(gasFeeCap) {
			return nil, fmt.Errorf("gasFeeCap > max : DynamicFeeTx value=%v,max=%v", gasFeeCap, maxGasPrice)
		}
		if gasTipCap.Cmp(gasFeeCap) > 0 {
			gasTipCap = gasFeeCap
		}
		return &types.DynamicFeeTx{
			ChainID:    src.ChainId(),
			Nonce:      src.Nonce(),
			GasTipCap:  gasTipCap,
			GasFeeCap:  gasFeeCap,
			Gas:        src.Gas(),
			To:         src.To(),
			Value:      src.Value(),
			Data:       src.Data(),
			AccessList: src.AccessList(),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported tx type for replacement: %d", src.Type())
	}
}

func maxBig(x, y *big.Int) *big.Int {
	if y != nil && (x == nil || y.Cmp(x) > 0) {
		return new(big.Int).Set(y)
	}
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}

func receiptRevertReason(rc *client.Receipt) string {
	if !rc.HasRevertReason() {
		return ""
	}
	reason, err := rc.GetRevertReason()
	if err != nil {
		return fmt.Sprintf("unparsable: %v", err)
	}
	return reason
}
