package relay

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/bryanEnzee/skillance-relay/pkg/contract/chatroom"
	"github.com/bryanEnzee/skillance-relay/pkg/journal"
	"github.com/bryanEnzee/skillance-relay/pkg/log"
	"github.com/bryanEnzee/skillance-relay/pkg/store"
)

func TestRelayPartialSuccess(t *testing.T) {
	chain := newFakeChain()
	chain.addRoom(1, true, true)
	chain.addRoom(2, false, true)
	chain.addRoom(3, true, true)
	r := newTestRelayer(t, chain, testConfig())

	result, err := r.Relay(context.Background(), []Message{msg(1, "hi"), msg(2, "hello"), msg(3, "hey")})
	require.NoError(t, err)

	require.Equal(t, StatusPartialSuccess, result.Status)
	require.Equal(t, 3, result.TotalMessages)
	require.Equal(t, 2, result.SuccessfulTxs)
	require.Equal(t, 1, result.FailedTxs)
	require.Len(t, result.Txs, 3)
	require.Equal(t, []string{"Message 2: room is not active"}, result.Errors)
	require.Equal(t, "ERROR:room is not active", result.Txs[1])
	require.Equal(t, []int{1}, result.PendingIndices())
	require.NotEmpty(t, result.BatchID)

	for _, i := range []int{0, 2} {
		tag, hash := ParseEntry(result.Txs[i])
		require.Empty(t, tag)
		require.Len(t, common.FromHex(hash), 32)
	}
	require.Equal(t, 2, chain.count("eth_sendRawTransaction"))

	// diagnostics are kept for every message
	require.Len(t, result.DebugInfo, 3)
	require.NotNil(t, result.DebugInfo[1].Validation)
	require.False(t, result.DebugInfo[1].Validation.Room.IsActive)
	require.Equal(t, "102", result.DebugInfo[1].Validation.Room.BookingID)
	require.Equal(t, StageValidating, result.DebugInfo[1].Stage)
	require.NotNil(t, result.DebugInfo[0].Plan)
	require.Equal(t, uint64(30000), result.DebugInfo[0].GasUsed)
}

func TestRelayEmptyBatch(t *testing.T) {
	chain := newFakeChain()
	r := newTestRelayer(t, chain, testConfig())

	result, err := r.Relay(context.Background(), nil)
	require.ErrorIs(t, err, ErrEmptyBatch)
	require.Nil(t, result)
	require.Empty(t, chain.calls)
}

func TestRelayValidationRejectsWithoutSending(t *testing.T) {
	chain := newFakeChain()
	chain.addRoom(1, true, true)
	chain.addRoom(2, false, true)
	chain.addRoom(3, true, false)
	r := newTestRelayer(t, chain, testConfig())

	result, err := r.Relay(context.Background(), []Message{
		msg(0, "zero"),
		msg(-4, "negative"),
		msg(42, "missing"),
		msg(2, "inactive"),
		msg(3, "unauthorized"),
		msg(1, "   "),
	})
	require.NoError(t, err)
	require.Equal(t, StatusFailed, result.Status)
	require.Len(t, result.Txs, 6)
	require.Equal(t, []string{
		"Message 1: invalid room id",
		"Message 2: invalid room id",
		"Message 3: room not found or unreadable",
		"Message 4: room is not active",
		"Message 5: sender not authorized for this room",
		"Message 6: empty content",
	}, result.Errors)
	for _, entry := range result.Txs {
		tag, _ := ParseEntry(entry)
		require.Equal(t, "ERROR", tag)
	}
	require.Zero(t, chain.count("eth_sendRawTransaction"))
	require.Zero(t, chain.count("eth_estimateGas"))
	require.Zero(t, chain.count("eth_getTransactionCount"))
}

func TestRelayInactiveRoomSkipsEstimation(t *testing.T) {
	chain := newFakeChain()
	chain.addRoom(7, false, true)
	r := newTestRelayer(t, chain, testConfig())

	result, err := r.Relay(context.Background(), []Message{msg(7, "a"), msg(7, "b")})
	require.NoError(t, err)
	for i := range result.Txs {
		require.Equal(t, "ERROR:"+ReasonRoomNotActive, result.Txs[i])
	}
	require.Zero(t, chain.count("eth_estimateGas"))
	// inactive rooms short-circuit before the authorization query
	require.Zero(t, chain.count(chatroom.MethodIsAuthorizedSender))
}

func TestRelayPrivilegedSenderSkipsAuthorization(t *testing.T) {
	chain := newFakeChain()
	chain.addRoom(1, true, false)
	r := newTestRelayer(t, chain, testConfig())

	m := msg(1, "from mentor")
	m.FromPrivilegedSender = true
	result, err := r.Relay(context.Background(), []Message{m})
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, result.Status)
	require.Zero(t, chain.count(chatroom.MethodIsAuthorizedSender))
	require.True(t, result.DebugInfo[0].Validation.AuthorizationSkipped)
	require.Nil(t, result.DebugInfo[0].Validation.Authorized)

	// the flag reaches the contract call
	args, err := chain.codec.ABI().Methods[chatroom.MethodSendMessage].Inputs.Unpack(chain.sent[0].Data()[4:])
	require.NoError(t, err)
	require.Equal(t, true, args[2])
}

func TestRelayNonceMonotonicity(t *testing.T) {
	chain := newFakeChain()
	chain.addRoom(1, true, true)
	r := newTestRelayer(t, chain, testConfig())

	result, err := r.Relay(context.Background(), []Message{msg(1, "a"), msg(1, "b"), msg(1, "c"), msg(1, "d")})
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, result.Status)

	nonces := chain.sentNonces()
	require.Equal(t, []uint64{5, 6, 7, 8}, nonces)
	for i, d := range result.DebugInfo {
		require.Equal(t, nonces[i], d.Plan.Nonce)
	}
	// the nonce is read from chain for every message
	require.Equal(t, 4, chain.count("eth_getTransactionCount"))
	// the chain id is read once
	require.Equal(t, 1, chain.count("eth_chainId"))
}

func TestRelayInterMessageDelay(t *testing.T) {
	chain := newFakeChain()
	chain.addRoom(1, true, true)
	r := newTestRelayer(t, chain, testConfig())

	_, err := r.Relay(context.Background(), []Message{msg(1, "a"), msg(99, "b"), msg(1, "c")})
	require.NoError(t, err)
	// no delay after the last message
	require.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, r.delays)

	r.delays = nil
	_, err = r.Relay(context.Background(), []Message{msg(1, "single")})
	require.NoError(t, err)
	require.Empty(t, r.delays)
}

func TestRelayGasLimit(t *testing.T) {
	chain := newFakeChain()
	for id := int64(1); id <= 4; id++ {
		chain.addRoom(id, true, true)
	}
	chain.estimate = func(roomID int64) (uint64, error) {
		switch roomID {
		case 1:
			return 50001, nil
		case 2:
			return 0, errTransport
		case 3:
			return 0, &rpcDataError{code: -32000, msg: "header not found"}
		}
		return 21000, nil
	}
	r := newTestRelayer(t, chain, testConfig())

	result, err := r.Relay(context.Background(), []Message{msg(1, "a"), msg(2, "b"), msg(3, "c"), msg(4, "d")})
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, result.Status)
	// ceil(50001 * 1.2) = 60002 and ceil(21000 * 1.2) = 25200
	require.Equal(t, []uint64{60002, FallbackGasLimit, FallbackGasLimit, 25200}, chain.sentGasLimits())
	require.Equal(t, GasSourceEstimate, result.DebugInfo[0].Plan.GasSource)
	require.Equal(t, uint64(50001), result.DebugInfo[0].Plan.EstimatedGas)
	require.Equal(t, GasSourceFallback, result.DebugInfo[1].Plan.GasSource)

	for _, tx := range chain.sent {
		require.NotZero(t, tx.Gas())
		require.Equal(t, uint8(0), tx.Type())
		require.Zero(t, tx.Value().Sign())
		require.Equal(t, testContract, *tx.To())
		require.Equal(t, int64(1337), tx.ChainId().Int64())
	}
}

func TestRelayGasEstimationDisabled(t *testing.T) {
	chain := newFakeChain()
	chain.addRoom(1, true, true)
	config := testConfig()
	config.GasEstimateEnabled = false
	r := newTestRelayer(t, chain, config)

	result, err := r.Relay(context.Background(), []Message{msg(1, "a")})
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, result.Status)
	require.Equal(t, []uint64{DefaultGasLimit}, chain.sentGasLimits())
	require.Zero(t, chain.count("eth_estimateGas"))
}

func TestRelayMaxGasPrice(t *testing.T) {
	chain := newFakeChain()
	chain.addRoom(1, true, true)
	chain.gasPrice = big.NewInt(90_000_000_000)
	config := testConfig()
	config.MaxGasPrice = "50gwei"
	r := newTestRelayer(t, chain, config)

	_, err := r.Relay(context.Background(), []Message{msg(1, "a")})
	require.NoError(t, err)
	require.Equal(t, int64(50_000_000_000), chain.sent[0].GasPrice().Int64())
}

func TestRelayEstimationRevertIsHardStop(t *testing.T) {
	chain := newFakeChain()
	for id := int64(1); id <= 3; id++ {
		chain.addRoom(id, true, true)
	}
	notActive := chain.codec.ABI().Errors[chatroom.ErrorRoomNotActive]
	data := append(append([]byte{}, notActive.ID[:4]...), common.LeftPadBytes(big.NewInt(1).Bytes(), 32)...)
	chain.estimate = func(roomID int64) (uint64, error) {
		switch roomID {
		case 1:
			return 0, &rpcDataError{code: 3, msg: "execution reverted", data: hexutil.Encode(data)}
		case 2:
			return 0, &rpcDataError{code: -32000, msg: "execution reverted: caller not authorized"}
		}
		return 0, &rpcDataError{code: -32000, msg: "execution reverted"}
	}
	r := newTestRelayer(t, chain, testConfig())

	result, err := r.Relay(context.Background(), []Message{msg(1, "a"), msg(2, "b"), msg(3, "c")})
	require.NoError(t, err)
	require.Equal(t, StatusFailed, result.Status)
	require.Equal(t, []string{
		"Message 1: room is not active",
		"Message 2: sender not authorized for this room",
		"Message 3: transaction would revert",
	}, result.Errors)
	require.Zero(t, chain.count("eth_sendRawTransaction"))
	for _, d := range result.DebugInfo {
		require.Equal(t, journal.OutcomeRejected, d.Outcome)
		require.Equal(t, StagePlanning, d.Stage)
	}
}

func TestRelayOnChainFailureAndTimeout(t *testing.T) {
	chain := newFakeChain()
	chain.addRoom(1, true, true)
	chain.addRoom(2, true, true)
	chain.onChain[1] = OutcomeFailed
	chain.onChain[2] = OutcomeTimeout
	r := newTestRelayer(t, chain, testConfig())

	result, err := r.Relay(context.Background(), []Message{msg(1, "a"), msg(2, "b")})
	require.NoError(t, err)
	require.Equal(t, StatusFailed, result.Status)
	require.Equal(t, "FAILED:"+chain.sent[0].Hash().Hex(), result.Txs[0])
	require.Equal(t, "TIMEOUT:"+chain.sent[1].Hash().Hex(), result.Txs[1])
	require.Equal(t, []int{0, 1}, result.PendingIndices())
	require.NotNil(t, result.DebugInfo[0].Receipt)
	require.Equal(t, uint64(30000), result.DebugInfo[0].GasUsed)
	require.True(t, strings.HasPrefix(result.Errors[1], "Message 2: confirmation timed out"))
}

func TestRelaySubmissionError(t *testing.T) {
	chain := newFakeChain()
	chain.addRoom(1, true, true)
	chain.sendErr = &rpcDataError{code: -32000, msg: "insufficient funds for gas * price + value"}
	r := newTestRelayer(t, chain, testConfig())

	result, err := r.Relay(context.Background(), []Message{msg(1, "a"), msg(1, "b")})
	require.NoError(t, err)
	require.Len(t, result.Txs, 2)
	for _, entry := range result.Txs {
		tag, value := ParseEntry(entry)
		require.Equal(t, "ERROR", tag)
		require.Contains(t, value, "insufficient funds")
	}
	require.Equal(t, 2, chain.count("eth_sendRawTransaction"))
}

func TestRelayTimeoutIsNotResubmitted(t *testing.T) {
	chain := newFakeChain()
	chain.addRoom(1, true, true)
	chain.onChain[1] = OutcomeTimeout
	r := newTestRelayer(t, chain, testConfig())

	m := msg(1, "hello")
	m.ClientTimestamp = "1700000000123"
	ctx := context.Background()

	first, err := r.Relay(ctx, []Message{m})
	require.NoError(t, err)
	require.Equal(t, 1, chain.count("eth_sendRawTransaction"))
	txHash := chain.sent[0].Hash()
	require.Equal(t, "TIMEOUT:"+txHash.Hex(), first.Txs[0])

	// still unconfirmed: reported again, never resubmitted
	second, err := r.Relay(ctx, []Message{m})
	require.NoError(t, err)
	require.Equal(t, "TIMEOUT:"+txHash.Hex(), second.Txs[0])
	require.True(t, second.DebugInfo[0].Deduplicated)
	require.Equal(t, 1, chain.count("eth_sendRawTransaction"))

	// the original tx lands later
	chain.mine(txHash, 1)
	third, err := r.Relay(ctx, []Message{m})
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, third.Status)
	require.Equal(t, txHash.Hex(), third.Txs[0])
	require.Equal(t, 1, chain.count("eth_sendRawTransaction"))

	status, err := r.Reconciler().Status(ctx, txHash)
	require.NoError(t, err)
	require.Equal(t, TxConfirmed, status.Status)
}

func TestRelayDroppedTimeoutIsResubmitted(t *testing.T) {
	chain := newFakeChain()
	chain.addRoom(1, true, true)
	chain.onChain[1] = OutcomeTimeout
	r := newTestRelayer(t, chain, testConfig())

	m := msg(1, "hello")
	m.ClientTimestamp = "1700000000123"
	ctx := context.Background()

	first, err := r.Relay(ctx, []Message{m})
	require.NoError(t, err)
	dropped := chain.sent[0].Hash()
	require.Equal(t, "TIMEOUT:"+dropped.Hex(), first.Txs[0])

	// the node forgets the tx; the message must go out again
	chain.drop(dropped)
	status, err := r.Reconciler().Status(ctx, dropped)
	require.NoError(t, err)
	require.Equal(t, TxUnknown, status.Status)

	delete(chain.onChain, 1)
	chain.gasPrice = new(big.Int).Mul(chain.gasPrice, big.NewInt(2))
	second, err := r.Relay(ctx, []Message{m})
	require.NoError(t, err)
	require.Equal(t, 2, chain.count("eth_sendRawTransaction"))
	require.Equal(t, StatusSuccess, second.Status)
	require.False(t, second.DebugInfo[0].Deduplicated)
	require.NotEqual(t, dropped.Hex(), second.Txs[0])

	// the new hash is what the ledger remembers now
	third, err := r.Relay(ctx, []Message{m})
	require.NoError(t, err)
	require.Equal(t, second.Txs[0], third.Txs[0])
	require.True(t, third.DebugInfo[0].Deduplicated)
	require.Equal(t, 2, chain.count("eth_sendRawTransaction"))
}

func TestRelayFollowsReplacedTx(t *testing.T) {
	chain := newFakeChain()
	chain.addRoom(1, true, true)
	chain.onChain[1] = OutcomeTimeout
	r := newTestRelayer(t, chain, testConfig())

	m := msg(1, "hello")
	m.ClientTimestamp = "1700000000123"
	ctx := context.Background()

	_, err := r.Relay(ctx, []Message{m})
	require.NoError(t, err)
	stuck := chain.sent[0].Hash()

	replacement := chain.replace(stuck)
	require.NoError(t, r.ledger.RecordReplacement(ctx, stuck, replacement))

	result, err := r.Relay(ctx, []Message{m})
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, result.Status)
	require.Equal(t, replacement.Hex(), result.Txs[0])
	require.True(t, result.DebugInfo[0].Deduplicated)
	require.Equal(t, 1, chain.count("eth_sendRawTransaction"))

	key := store.IdempotencyKey(m.RoomID, m.Content, m.ClientTimestamp)
	recorded, ok, err := r.ledger.Lookup(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, replacement, recorded)
}

func TestRelayBatchTooLarge(t *testing.T) {
	chain := newFakeChain()
	chain.addRoom(1, true, true)
	config := testConfig()
	config.MaxBatchSize = 2
	r := newTestRelayer(t, chain, config)

	_, err := r.Relay(context.Background(), []Message{msg(1, "a"), msg(1, "b"), msg(1, "c")})
	require.ErrorIs(t, err, ErrBatchTooLarge)
	require.Zero(t, chain.count("eth_getTransactionCount"))

	require.NoError(t, CheckBatchSize(3, 0))
	require.NoError(t, CheckBatchSize(2, 2))
}

func TestRelayRevertedIsResubmitted(t *testing.T) {
	chain := newFakeChain()
	chain.addRoom(1, true, true)
	chain.onChain[1] = OutcomeFailed
	r := newTestRelayer(t, chain, testConfig())

	m := msg(1, "hello")
	m.ClientTimestamp = "1700000000123"
	ctx := context.Background()

	first, err := r.Relay(ctx, []Message{m})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(first.Txs[0], "FAILED:"))

	delete(chain.onChain, 1)
	chain.gasPrice = new(big.Int).Mul(chain.gasPrice, big.NewInt(2))
	second, err := r.Relay(ctx, []Message{m})
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, second.Status)
	require.Equal(t, 2, chain.count("eth_sendRawTransaction"))
	require.Equal(t, chain.sent[1].Hash().Hex(), second.Txs[0])
}

func TestRelayWithoutClientTimestampIsNotDeduplicated(t *testing.T) {
	chain := newFakeChain()
	chain.addRoom(1, true, true)
	r := newTestRelayer(t, chain, testConfig())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := r.Relay(ctx, []Message{msg(1, "same")})
		require.NoError(t, err)
		require.Equal(t, StatusSuccess, result.Status)
	}
	require.Equal(t, 2, chain.count("eth_sendRawTransaction"))
}

func TestRelayBusy(t *testing.T) {
	chain := newFakeChain()
	chain.addRoom(1, true, true)
	locker := store.NewLocalLocker()
	r := newTestRelayer(t, chain, testConfig(), WithLocker(locker))

	unlock, err := locker.TryLock(context.Background())
	require.NoError(t, err)

	_, err = r.Relay(context.Background(), []Message{msg(1, "a")})
	require.ErrorIs(t, err, ErrRelayBusy)
	require.Zero(t, chain.count("eth_getTransactionCount"))

	unlock()
	_, err = r.Relay(context.Background(), []Message{msg(1, "a")})
	require.NoError(t, err)
}

type recordingJournal struct {
	outcomes []*journal.Outcome
}

func (j *recordingJournal) Record(ctx context.Context, o *journal.Outcome) error {
	j.outcomes = append(j.outcomes, o)
	return nil
}

func (j *recordingJournal) FindByTxHash(ctx context.Context, txHash string) (*journal.Outcome, error) {
	for _, o := range j.outcomes {
		if o.TxHash == txHash {
			return o, nil
		}
	}
	return nil, nil
}

func TestRelayJournalAndMetrics(t *testing.T) {
	chain := newFakeChain()
	chain.addRoom(1, true, true)
	chain.addRoom(2, false, true)
	j := &recordingJournal{}
	metrics := NewMetrics(prometheus.NewRegistry())
	r := newTestRelayer(t, chain, testConfig(), WithJournal(j), WithMetrics(metrics))

	result, err := r.Relay(context.Background(), []Message{msg(1, "a"), msg(2, "b")})
	require.NoError(t, err)

	require.Len(t, j.outcomes, 2)
	require.Equal(t, journal.OutcomeSuccess, j.outcomes[0].Status)
	require.Equal(t, uint64(5), *j.outcomes[0].Nonce)
	require.Equal(t, result.BatchID, j.outcomes[0].BatchID)
	require.Equal(t, journal.OutcomeRejected, j.outcomes[1].Status)
	require.Equal(t, ReasonRoomNotActive, j.outcomes[1].Reason)
	require.Nil(t, j.outcomes[1].Nonce)

	require.Equal(t, float64(1), testutil.ToFloat64(metrics.MessagesTotal.WithLabelValues(journal.OutcomeSuccess)))
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.MessagesTotal.WithLabelValues(journal.OutcomeRejected)))
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.BatchesTotal.WithLabelValues(string(StatusPartialSuccess))))
	require.Equal(t, float64(30000), testutil.ToFloat64(metrics.GasUsedTotal))

	status, err := r.Reconciler().Status(context.Background(), common.HexToHash(result.Txs[0]))
	require.NoError(t, err)
	require.NotNil(t, status.Journal)
	require.Equal(t, result.BatchID, status.Journal.BatchID)
}

func TestNewRelayerConfigErrors(t *testing.T) {
	chain := newFakeChain()
	_, err := NewRelayer(testConfig(), chain, nil)
	require.ErrorIs(t, err, ErrMissingSigningKey)
	require.True(t, IsConfigError(err))

	config := testConfig()
	config.ContractAddress = ""
	_, err = NewRelayer(config, chain, newTestAccount(t))
	require.ErrorIs(t, err, ErrMissingContractAddress)
}

type tracingChain struct {
	*fakeChain
	traced []common.Hash
}

func (c *tracingChain) DebugTraceTransaction(ctx context.Context, txHash common.Hash) (string, string, error) {
	c.traced = append(c.traced, txHash)
	return testContract.Hex(), "room is full", nil
}

func TestRelayDebugTraceRecoversRevertReason(t *testing.T) {
	chain := newFakeChain()
	chain.addRoom(1, true, true)
	chain.onChain[1] = OutcomeFailed
	tc := &tracingChain{fakeChain: chain}

	config := testConfig()
	r, err := NewRelayer(config, tc, newTestAccount(t), WithLogger(log.NewDiscardLogger()))
	require.NoError(t, err)
	result, err := r.Relay(context.Background(), []Message{msg(1, "a")})
	require.NoError(t, err)
	require.Empty(t, tc.traced)
	require.Equal(t, "Message 1: transaction reverted on chain", result.Errors[0])

	config.DebugTraceEnabled = true
	r, err = NewRelayer(config, tc, newTestAccount(t), WithLogger(log.NewDiscardLogger()))
	require.NoError(t, err)
	result, err = r.Relay(context.Background(), []Message{msg(1, "b")})
	require.NoError(t, err)
	require.Len(t, tc.traced, 1)
	require.Equal(t, "room is full", result.DebugInfo[0].RevertReason)
	require.True(t, strings.HasSuffix(result.Errors[0], ": room is full"))
}

func TestRelayTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	chain := newFakeChain()
	chain.addRoom(1, true, true)
	chain.addRoom(2, false, true)
	r := newTestRelayer(t, chain, testConfig(), WithTracerProvider(tp))

	_, err := r.Relay(context.Background(), []Message{msg(1, "a"), msg(2, "b")})
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 3)
	require.Equal(t, "Relayer.relayMessage", spans[0].Name())
	require.Equal(t, codes.Unset, spans[0].Status().Code)
	require.Equal(t, codes.Error, spans[1].Status().Code)
	require.Equal(t, "room is not active", spans[1].Status().Description)
	require.Equal(t, "Relayer.Relay", spans[2].Name())
	require.Equal(t, spans[2].SpanContext().SpanID(), spans[0].Parent().SpanID())
}
