package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/bryanEnzee/skillance-relay/pkg/client"
	"github.com/bryanEnzee/skillance-relay/pkg/journal"
)

type TxStatus string

const (
	TxConfirmed TxStatus = "confirmed"
	TxFailed    TxStatus = "failed"
	TxPending   TxStatus = "pending"
	TxUnknown   TxStatus = "unknown"
)

type TxStatusReport struct {
	TxHash       string           `json:"txHash"`
	Status       TxStatus         `json:"status"`
	BlockNumber  uint64           `json:"blockNumber,omitempty"`
	GasUsed      uint64           `json:"gasUsed,omitempty"`
	RevertReason string           `json:"revertReason,omitempty"`
	Journal      *journal.Outcome `json:"journal,omitempty"`

	receipt *client.Receipt
}

// Reconciler answers what became of a previously returned transaction hash,
// typically one reported as TIMEOUT.
type Reconciler struct {
	client     ChainClient
	classifier *RevertClassifier
	journal    journal.Journal
}

func NewReconciler(client ChainClient, classifier *RevertClassifier, j journal.Journal) *Reconciler {
	if j == nil {
		j = journal.Nop{}
	}
	return &Reconciler{client: client, classifier: classifier, journal: j}
}

func (r *Reconciler) Status(ctx context.Context, txHash common.Hash) (*TxStatusReport, error) {
	report := &TxStatusReport{TxHash: txHash.Hex()}

	rc, _, err := r.client.GetTransactionReceipt(ctx, txHash)
	switch {
	case err == nil:
		report.receipt = rc
		report.GasUsed = rc.GasUsed
		if rc.BlockNumber != nil {
			report.BlockNumber = rc.BlockNumber.Uint64()
		}
		if rc.Succeeded() {
			report.Status = TxConfirmed
		} else {
			report.Status = TxFailed
			if rc.HasRevertReason() {
				report.RevertReason, _ = r.classifier.ParseRevertData(rc.RevertReason)
			}
		}
	case errors.Is(err, ethereum.NotFound):
		_, _, err := r.client.TransactionByHash(ctx, txHash)
		if errors.Is(err, ethereum.NotFound) {
			report.Status = TxUnknown
		} else if err != nil {
			return nil, fmt.Errorf("failed to get transaction: %w", err)
		} else {
			// known to the node but without a receipt yet
			report.Status = TxPending
		}
	default:
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}

	if o, err := r.journal.FindByTxHash(ctx, txHash.Hex()); err == nil {
		report.Journal = o
	}
	return report, nil
}
