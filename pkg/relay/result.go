package relay

import (
	"fmt"
	"strings"

	"github.com/bryanEnzee/skillance-relay/pkg/client"
	"github.com/bryanEnzee/skillance-relay/pkg/journal"
)

type BatchStatus string

const (
	StatusSuccess        BatchStatus = "success"
	StatusPartialSuccess BatchStatus = "partial_success"
	StatusFailed         BatchStatus = "failed"
)

const (
	prefixFailed  = "FAILED:"
	prefixTimeout = "TIMEOUT:"
	prefixError   = "ERROR:"
)

// Stage is the last state a message reached.
type Stage string

const (
	StageLedger     Stage = "ledger"
	StageValidating Stage = "validating"
	StagePlanning   Stage = "planning"
	StageSubmitting Stage = "submitting"
	StageSubmitted  Stage = "submitted"
)

// MessageDebug is the diagnostic record of one message.
type MessageDebug struct {
	Index        int               `json:"index"`
	RoomID       string            `json:"roomId"`
	Stage        Stage             `json:"stage"`
	Outcome      string            `json:"outcome"`
	Reason       string            `json:"reason,omitempty"`
	Validation   *ValidationResult `json:"validation,omitempty"`
	Plan         *TransactionPlan  `json:"plan,omitempty"`
	TxHash       string            `json:"txHash,omitempty"`
	GasUsed      uint64            `json:"gasUsed,omitempty"`
	BlockNumber  uint64            `json:"blockNumber,omitempty"`
	RevertReason string            `json:"revertReason,omitempty"`
	Receipt      *client.Receipt   `json:"receipt,omitempty"`
	Deduplicated bool              `json:"deduplicated,omitempty"`
	ElapsedMs    int64             `json:"elapsedMs,omitempty"`
}

type BatchResult struct {
	BatchID       string          `json:"batchId"`
	Status        BatchStatus     `json:"status"`
	Txs           []string        `json:"txs"`
	Errors        []string        `json:"errors"`
	TotalMessages int             `json:"totalMessages"`
	SuccessfulTxs int             `json:"successfulTxs"`
	FailedTxs     int             `json:"failedTxs"`
	DebugInfo     []*MessageDebug `json:"debugInfo"`

	succeeded []bool
}

func newBatchResult(batchID string, n int) *BatchResult {
	return &BatchResult{
		BatchID:   batchID,
		Txs:       make([]string, 0, n),
		Errors:    []string{},
		DebugInfo: make([]*MessageDebug, 0, n),
		succeeded: make([]bool, 0, n),
	}
}

func (b *BatchResult) addSuccess(d *MessageDebug) {
	d.Outcome = journal.OutcomeSuccess
	b.Txs = append(b.Txs, d.TxHash)
	b.succeeded = append(b.succeeded, true)
	b.DebugInfo = append(b.DebugInfo, d)
}

func (b *BatchResult) addFailure(d *MessageDebug, outcome, entry, reason string) {
	d.Outcome = outcome
	d.Reason = reason
	b.Txs = append(b.Txs, entry)
	// errors are numbered from 1 like the messages a user sees
	b.Errors = append(b.Errors, fmt.Sprintf("Message %d: %s", d.Index+1, reason))
	b.succeeded = append(b.succeeded, false)
	b.DebugInfo = append(b.DebugInfo, d)
}

func (b *BatchResult) addRejected(d *MessageDebug, reason string) {
	b.addFailure(d, journal.OutcomeRejected, prefixError+reason, reason)
}

func (b *BatchResult) addError(d *MessageDebug, err error) {
	b.addFailure(d, journal.OutcomeError, prefixError+err.Error(), err.Error())
}

func (b *BatchResult) addReverted(d *MessageDebug) {
	reason := "transaction reverted on chain"
	if d.RevertReason != "" {
		reason += ": " + d.RevertReason
	}
	b.addFailure(d, journal.OutcomeFailed, prefixFailed+d.TxHash, reason)
}

func (b *BatchResult) addTimeout(d *MessageDebug) {
	b.addFailure(d, journal.OutcomeTimeout, prefixTimeout+d.TxHash, "confirmation timed out, tx "+d.TxHash+" may still be mined")
}

func (b *BatchResult) finalize() {
	b.TotalMessages = len(b.Txs)
	b.SuccessfulTxs = 0
	for _, ok := range b.succeeded {
		if ok {
			b.SuccessfulTxs++
		}
	}
	b.FailedTxs = b.TotalMessages - b.SuccessfulTxs
	switch {
	case b.SuccessfulTxs == 0:
		b.Status = StatusFailed
	case b.FailedTxs == 0:
		b.Status = StatusSuccess
	default:
		b.Status = StatusPartialSuccess
	}
}

// PendingIndices lists the messages that were not confirmed and must stay buffered.
func (b *BatchResult) PendingIndices() []int {
	var indices []int
	for i, ok := range b.succeeded {
		if !ok {
			indices = append(indices, i)
		}
	}
	return indices
}

// AnySucceeded reports whether at least one message was confirmed.
func (b *BatchResult) AnySucceeded() bool {
	return b.SuccessfulTxs > 0
}

// ParseEntry splits a txs entry into its tag and value. Plain hashes have an empty tag.
func ParseEntry(entry string) (tag string, value string) {
	for _, p := range []string{prefixFailed, prefixTimeout, prefixError} {
		if strings.HasPrefix(entry, p) {
			return strings.TrimSuffix(p, ":"), entry[len(p):]
		}
	}
	return "", entry
}
