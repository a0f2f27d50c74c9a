package relay

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bryanEnzee/skillance-relay/pkg/contract/chatroom"
	"github.com/bryanEnzee/skillance-relay/pkg/events"
	"github.com/bryanEnzee/skillance-relay/pkg/journal"
	"github.com/bryanEnzee/skillance-relay/pkg/log"
	"github.com/bryanEnzee/skillance-relay/pkg/store"
)

var (
	ErrRelayBusy  = errors.New("another relay batch is in progress")
	ErrEmptyBatch = errors.New("messages must be a non-empty array")
	// ErrBatchTooLarge keeps one invocation from holding the relay lock indefinitely.
	ErrBatchTooLarge = errors.New("too many messages in one batch")
)

// Message is one buffered chat message to be written on chain.
type Message struct {
	RoomID               *big.Int
	Content              string
	FromPrivilegedSender bool
	// ClientTimestamp identifies the message for deduplication. Empty disables it.
	ClientTimestamp string
}

// Relayer is the batch orchestrator. Messages are processed strictly one at a time.
type Relayer struct {
	client     ChainClient
	account    *RelayAccount
	codec      *chatroom.Codec
	validator  *Validator
	planner    *Planner
	submitter  *Submitter
	reconciler *Reconciler

	locker    store.Locker
	ledger    store.Ledger
	journal   journal.Journal
	publisher events.Publisher
	metrics   *Metrics
	logger    *log.RelayLogger

	interMessageDelay time.Duration
	maxBatchSize      int
	sleep             func(ctx context.Context, d time.Duration)
	tracer            trace.Tracer
	newBatchID        func() string
}

type Option func(*Relayer)

func WithLocker(l store.Locker) Option {
	return func(r *Relayer) { r.locker = l }
}

func WithLedger(l store.Ledger) Option {
	return func(r *Relayer) { r.ledger = l }
}

func WithJournal(j journal.Journal) Option {
	return func(r *Relayer) { r.journal = j }
}

func WithPublisher(p events.Publisher) Option {
	return func(r *Relayer) { r.publisher = p }
}

func WithMetrics(m *Metrics) Option {
	return func(r *Relayer) { r.metrics = m }
}

func WithLogger(l *log.RelayLogger) Option {
	return func(r *Relayer) { r.logger = l }
}

func NewRelayer(config Config, cl ChainClient, account *RelayAccount, opts ...Option) (*Relayer, error) {
	if account == nil {
		return nil, ErrMissingSigningKey
	}
	if config.ContractAddress == "" {
		return nil, ErrMissingContractAddress
	}

	codec, err := chatroom.NewCodec()
	if err != nil {
		return nil, err
	}
	classifier, err := NewRevertClassifier(codec.Errors())
	if err != nil {
		return nil, err
	}

	r := &Relayer{
		client:            cl,
		account:           account,
		codec:             codec,
		locker:            store.NewLocalLocker(),
		ledger:            store.NewMemoryLedger(config.IdempotencyTTL),
		journal:           journal.Nop{},
		publisher:         events.Nop{},
		logger:            log.GetLogger().WithModule("relay"),
		interMessageDelay: config.InterMessageDelay,
		maxBatchSize:      config.MaxBatchSize,
		sleep:             sleepContext,
		tracer:            tracer,
		newBatchID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	account.SetLogger(r.logger)

	contract := config.ContractAddr()
	caller := chatroom.NewCaller(contract, account.Address(), cl, codec)
	r.validator = NewValidator(caller, r.logger)
	r.planner = NewPlanner(cl, account.Address(), contract, PlannerConfig{
		EstimateEnabled: config.GasEstimateEnabled,
		EstimateRate:    config.GasEstimateRate,
		MaxGasPrice:     config.GetMaxGasPrice(),
		ExpectedChainID: config.ChainID,
	}, classifier, r.logger)
	r.submitter = NewSubmitter(cl, account, classifier, r.metrics, r.logger)
	if dt, ok := cl.(DebugTracer); ok && config.DebugTraceEnabled {
		r.submitter.tracer = dt
	}
	r.reconciler = NewReconciler(cl, classifier, r.journal)
	return r, nil
}

func (r *Relayer) Address() common.Address {
	return r.account.Address()
}

func (r *Relayer) Reconciler() *Reconciler {
	return r.reconciler
}

// Relay processes msgs in order and always returns one entry per message.
// Errors are returned only when no message was processed.
func (r *Relayer) Relay(ctx context.Context, msgs []Message) (*BatchResult, error) {
	if len(msgs) == 0 {
		return nil, ErrEmptyBatch
	}
	if err := CheckBatchSize(len(msgs), r.maxBatchSize); err != nil {
		return nil, err
	}

	unlock, err := r.locker.TryLock(ctx)
	if errors.Is(err, store.ErrLocked) {
		return nil, fmt.Errorf("%w: %v", ErrRelayBusy, err)
	} else if err != nil {
		return nil, err
	}
	defer unlock()

	batchID := r.newBatchID()
	result := newBatchResult(batchID, len(msgs))
	ctx, span := r.tracer.Start(ctx, "Relayer.Relay", trace.WithAttributes(
		attribute.String(logAttrBatchID, batchID),
		attribute.Int(logAttrMsgCount, len(msgs)),
	))
	defer span.End()
	logger := &log.RelayLogger{Logger: r.logger.With(logAttrBatchID, batchID, logAttrMsgCount, len(msgs))}
	logger.Info("relay batch started")

	for i, msg := range msgs {
		msgLogger := &log.RelayLogger{Logger: logger.With(logAttrMsgIndex, i, logAttrRoomID, roomIDString(msg.RoomID))}
		msgCtx, msgSpan := r.tracer.Start(ctx, "Relayer.relayMessage", trace.WithAttributes(
			attribute.Int(logAttrMsgIndex, i),
			attribute.String(logAttrRoomID, roomIDString(msg.RoomID)),
		))
		r.relayMessage(msgCtx, msgLogger, result, i, msg)
		r.record(msgCtx, msgLogger, batchID, result.DebugInfo[i])
		msgSpan.SetAttributes(attribute.String("outcome", result.DebugInfo[i].Outcome))
		if d := result.DebugInfo[i]; d.Outcome != journal.OutcomeSuccess {
			msgSpan.SetStatus(codes.Error, d.Reason)
		}
		msgSpan.End()

		if i < len(msgs)-1 && r.interMessageDelay > 0 {
			r.sleep(ctx, r.interMessageDelay)
		}
	}

	result.finalize()
	span.SetAttributes(attribute.String(logAttrStatus, string(result.Status)))
	if r.metrics != nil {
		r.metrics.BatchesTotal.WithLabelValues(string(result.Status)).Inc()
	}
	logger.Info("relay batch finished",
		logAttrStatus, result.Status,
		"successful_txs", result.SuccessfulTxs,
		"failed_txs", result.FailedTxs,
	)
	return result, nil
}

func (r *Relayer) relayMessage(ctx context.Context, logger *log.RelayLogger, result *BatchResult, index int, msg Message) {
	d := &MessageDebug{Index: index, RoomID: roomIDString(msg.RoomID)}

	key := store.IdempotencyKey(msg.RoomID, msg.Content, msg.ClientTimestamp)
	if key != "" {
		d.Stage = StageLedger
		if r.reconcile(ctx, logger, result, d, key) {
			return
		}
	}

	d.Stage = StageValidating
	sender := r.account.Address()
	vr := r.validator.Validate(ctx, msg.RoomID, sender, msg.Content, msg.FromPrivilegedSender)
	d.Validation = &vr
	if !vr.OK {
		logger.Info("message rejected by validation", logAttrReason, vr.Reason)
		result.addRejected(d, vr.Reason)
		return
	}

	d.Stage = StagePlanning
	callData, err := r.codec.PackSendMessage(msg.RoomID, msg.Content, msg.FromPrivilegedSender)
	if err != nil {
		logger.Error("failed to encode message", err)
		result.addError(d, err)
		return
	}
	plan, err := r.planner.Plan(ctx, msg.RoomID, sender, callData)
	if err != nil {
		var revertErr *RevertError
		if errors.As(err, &revertErr) {
			result.addRejected(d, revertErr.Reason)
			return
		}
		logger.Error("failed to plan tx", err)
		result.addError(d, err)
		return
	}
	d.Plan = plan

	d.Stage = StageSubmitting
	outcome, err := r.submitter.Submit(ctx, plan)
	if err != nil {
		result.addError(d, err)
		return
	}

	d.Stage = StageSubmitted
	d.TxHash = outcome.TxHash.Hex()
	d.GasUsed = outcome.GasUsed
	d.BlockNumber = outcome.BlockNumber
	d.RevertReason = outcome.RevertReason
	d.Receipt = outcome.Receipt
	d.ElapsedMs = outcome.Elapsed.Milliseconds()
	if key != "" {
		if err := r.ledger.Record(ctx, key, outcome.TxHash); err != nil {
			logger.Error("failed to record tx in ledger", err, logAttrTxHash, d.TxHash)
		}
	}

	switch outcome.Kind {
	case OutcomeSuccess:
		result.addSuccess(d)
	case OutcomeFailed:
		result.addReverted(d)
	default:
		result.addTimeout(d)
	}
}

// maxReplacementHops bounds how many recorded replacements are followed for one message.
const maxReplacementHops = 8

// reconcile resolves a message that was submitted before. It returns true when the
// message must not be submitted again.
func (r *Relayer) reconcile(ctx context.Context, logger *log.RelayLogger, result *BatchResult, d *MessageDebug, key string) bool {
	txHash, found, err := r.ledger.Lookup(ctx, key)
	if err != nil {
		logger.Error("failed to look up ledger", err)
		return false
	} else if !found {
		return false
	}

	report, latest, err := r.latestStatus(ctx, txHash)
	logger = &log.RelayLogger{Logger: logger.With(logAttrTxHash, latest.Hex())}
	if latest != txHash {
		logger.Info("following replacement tx", "replaced", txHash.Hex())
		if err := r.ledger.Record(ctx, key, latest); err != nil {
			logger.Error("failed to record tx in ledger", err)
		}
	}
	if err != nil {
		// status unknown; resubmitting could land the message twice
		logger.Warn("failed to check previous tx", "error", err)
		d.TxHash = latest.Hex()
		d.Deduplicated = true
		result.addTimeout(d)
		return true
	}

	switch report.Status {
	case TxConfirmed:
		logger.Info("message was already relayed")
		d.TxHash = latest.Hex()
		d.Deduplicated = true
		d.GasUsed = report.GasUsed
		d.BlockNumber = report.BlockNumber
		d.Receipt = report.receipt
		result.addSuccess(d)
		return true
	case TxPending:
		logger.Warn("previous tx is still pending")
		d.TxHash = latest.Hex()
		d.Deduplicated = true
		result.addTimeout(d)
		return true
	case TxFailed:
		logger.Info("previous tx reverted, resubmitting")
		return false
	default:
		logger.Warn("previous tx is unknown to the node, resubmitting")
		return false
	}
}

// latestStatus reports on txHash, or on the tx that replaced it when txHash itself
// is no longer known to the node.
func (r *Relayer) latestStatus(ctx context.Context, txHash common.Hash) (*TxStatusReport, common.Hash, error) {
	for hop := 0; ; hop++ {
		report, err := r.reconciler.Status(ctx, txHash)
		if err != nil || report.Status != TxUnknown || hop == maxReplacementHops {
			return report, txHash, err
		}
		next, ok, err := r.ledger.Replacement(ctx, txHash)
		if err != nil {
			return nil, txHash, err
		} else if !ok {
			return report, txHash, nil
		}
		txHash = next
	}
}

func (r *Relayer) record(ctx context.Context, logger *log.RelayLogger, batchID string, d *MessageDebug) {
	if r.metrics != nil {
		r.metrics.MessagesTotal.WithLabelValues(d.Outcome).Inc()
	}

	o := &journal.Outcome{
		BatchID: batchID,
		Index:   d.Index,
		RoomID:  d.RoomID,
		Status:  d.Outcome,
		TxHash:  d.TxHash,
		Reason:  d.Reason,
		GasUsed: d.GasUsed,
	}
	if d.Plan != nil {
		nonce := d.Plan.Nonce
		o.Nonce = &nonce
		o.GasLimit = d.Plan.GasLimit
	}
	if err := r.journal.Record(ctx, o); err != nil {
		logger.Error("failed to journal outcome", err)
	}

	if d.Outcome != journal.OutcomeSuccess || d.Deduplicated {
		return
	}
	if err := r.publisher.PublishRelayed(ctx, &events.MessageRelayed{
		BatchID:     batchID,
		Index:       d.Index,
		RoomID:      d.RoomID,
		TxHash:      d.TxHash,
		BlockNumber: d.BlockNumber,
		GasUsed:     d.GasUsed,
		ConfirmedAt: time.Now().UTC(),
	}); err != nil {
		logger.Error("failed to publish relayed event", err)
	}
}

// CheckBatchSize rejects batches over max. A non-positive max disables the check.
func CheckBatchSize(n, max int) error {
	if max > 0 && n > max {
		return fmt.Errorf("%w: %d messages, at most %d allowed", ErrBatchTooLarge, n, max)
	}
	return nil
}

func roomIDString(roomID *big.Int) string {
	if roomID == nil {
		return ""
	}
	return roomID.String()
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
