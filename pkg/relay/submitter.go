package relay

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/bryanEnzee/skillance-relay/pkg/client"
	"github.com/bryanEnzee/skillance-relay/pkg/log"
)

type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "success"
	OutcomeFailed  OutcomeKind = "failed"
	OutcomeTimeout OutcomeKind = "timeout"
)

// SubmitOutcome is the terminal state of a broadcast transaction.
type SubmitOutcome struct {
	Kind         OutcomeKind
	TxHash       common.Hash
	GasUsed      uint64
	BlockNumber  uint64
	Receipt      *client.Receipt
	RevertReason string
	Elapsed      time.Duration
}

// DebugTracer recovers revert reasons from nodes that leave them out of receipts.
type DebugTracer interface {
	DebugTraceTransaction(ctx context.Context, txHash common.Hash) (to string, revertReason string, err error)
}

type Submitter struct {
	client     ChainClient
	account    *RelayAccount
	classifier *RevertClassifier
	metrics    *Metrics
	tracer     DebugTracer
	logger     *log.RelayLogger
}

func NewSubmitter(client ChainClient, account *RelayAccount, classifier *RevertClassifier, metrics *Metrics, logger *log.RelayLogger) *Submitter {
	return &Submitter{
		client:     client,
		account:    account,
		classifier: classifier,
		metrics:    metrics,
		logger:     logger,
	}
}

// Submit signs and broadcasts plan, then waits for its receipt. An error means the
// transaction was never accepted by the node (signing or broadcast failed).
func (s *Submitter) Submit(ctx context.Context, plan *TransactionPlan) (*SubmitOutcome, error) {
	tx, err := s.account.Sign(plan.ChainID, plan.From, plan.Tx())
	if err != nil {
		return nil, err
	}

	logger := &log.RelayLogger{Logger: s.logger.With(logAttrTxHash, tx.Hash().Hex(), logAttrNonce, plan.Nonce)}
	if rawTxData, err := tx.MarshalBinary(); err != nil {
		logger.Error("failed to encode tx", err)
	} else {
		logger = &log.RelayLogger{Logger: logger.With(logAttrRawTxData, hex.EncodeToString(rawTxData))}
	}

	if err := s.client.SendTransaction(ctx, tx); err != nil {
		logger.Error("failed to send tx", err)
		return nil, fmt.Errorf("failed to send tx: %w", err)
	}
	started := time.Now()

	outcome := &SubmitOutcome{TxHash: tx.Hash()}
	receipt, err := s.client.WaitForReceiptAndGet(ctx, tx.Hash())
	outcome.Elapsed = time.Since(started)
	if err != nil {
		// the tx may still be mined later
		if !errors.Is(err, client.ErrReceiptTimeout) {
			logger.Error("receipt polling aborted", err)
		} else {
			logger.Warn("receipt not available in time", logAttrElapsed, outcome.Elapsed)
		}
		outcome.Kind = OutcomeTimeout
		return outcome, nil
	}

	outcome.Receipt = receipt
	outcome.GasUsed = receipt.GasUsed
	if receipt.BlockNumber != nil {
		outcome.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if s.metrics != nil {
		s.metrics.ConfirmationSeconds.Observe(outcome.Elapsed.Seconds())
		s.metrics.GasUsedTotal.Add(float64(receipt.GasUsed))
	}
	logger = &log.RelayLogger{Logger: logger.With(
		logAttrBlockHash, receipt.BlockHash,
		logAttrBlockNumber, outcome.BlockNumber,
		logAttrTxIndex, receipt.TransactionIndex,
		logAttrGasUsed, receipt.GasUsed,
	)}

	if receipt.Status == gethtypes.ReceiptStatusFailed {
		outcome.Kind = OutcomeFailed
		if receipt.HasRevertReason() {
			if reason, err := s.classifier.ParseRevertData(receipt.RevertReason); err != nil {
				logger.Error("failed to get revert reason", err, logAttrRawErrorData, hex.EncodeToString(receipt.RevertReason))
			} else {
				outcome.RevertReason = reason
			}
		}
		if outcome.RevertReason == "" && s.tracer != nil {
			if _, reason, err := s.tracer.DebugTraceTransaction(ctx, tx.Hash()); err != nil {
				logger.Warn("failed to trace reverted tx", "error", err)
			} else {
				outcome.RevertReason = reason
			}
		}
		logger.Error("tx execution reverted", errors.New("tx execution reverted"), logAttrRevertReason, outcome.RevertReason)
		return outcome, nil
	}

	outcome.Kind = OutcomeSuccess
	logger.Info("successfully sent tx")
	return outcome, nil
}
