package relay

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/bryanEnzee/skillance-relay/pkg/client"
	"github.com/bryanEnzee/skillance-relay/pkg/contract/chatroom"
	"github.com/bryanEnzee/skillance-relay/pkg/log"
)

var testContract = common.HexToAddress("0x00000000000000000000000000000000c0ffee00")

// rpcDataError mimics a JSON-RPC error with revert data.
type rpcDataError struct {
	code int
	msg  string
	data interface{}
}

func (e *rpcDataError) Error() string          { return e.msg }
func (e *rpcDataError) ErrorCode() int         { return e.code }
func (e *rpcDataError) ErrorData() interface{} { return e.data }

type fakeChain struct {
	mu    sync.Mutex
	codec *chatroom.Codec

	chainID    *big.Int
	baseNonce  uint64
	gasPrice   *big.Int
	rooms      map[int64]chatroom.ChatRoom
	authorized map[int64]bool

	// estimate overrides the default estimate for a room.
	estimate func(roomID int64) (uint64, error)
	sendErr  error
	// onChain decides what happens to a mined tx of a room; missing means success.
	onChain map[int64]OutcomeKind

	sent     []*gethtypes.Transaction
	receipts map[common.Hash]*client.Receipt
	calls    map[string]int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		codec:      chatroom.MustNewCodec(),
		chainID:    big.NewInt(1337),
		baseNonce:  5,
		gasPrice:   big.NewInt(1_000_000_000),
		rooms:      map[int64]chatroom.ChatRoom{},
		authorized: map[int64]bool{},
		onChain:    map[int64]OutcomeKind{},
		receipts:   map[common.Hash]*client.Receipt{},
		calls:      map[string]int{},
	}
}

func (f *fakeChain) addRoom(id int64, active bool, authorized bool) {
	f.rooms[id] = chatroom.ChatRoom{
		Id:        big.NewInt(id),
		BookingId: big.NewInt(100 + id),
		User:      common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		MentorId:  big.NewInt(9),
		IsActive:  active,
		CreatedAt: big.NewInt(1700000000),
	}
	f.authorized[id] = authorized
}

func (f *fakeChain) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeChain) inc(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
}

func (f *fakeChain) sentNonces() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var nonces []uint64
	for _, tx := range f.sent {
		nonces = append(nonces, tx.Nonce())
	}
	return nonces
}

func (f *fakeChain) sentGasLimits() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var limits []uint64
	for _, tx := range f.sent {
		limits = append(limits, tx.Gas())
	}
	return limits
}

// mine stores a successful receipt for txHash.
func (f *fakeChain) mine(txHash common.Hash, status uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts[txHash] = &client.Receipt{Receipt: gethtypes.Receipt{
		TxHash:      txHash,
		Status:      status,
		GasUsed:     30000,
		BlockNumber: big.NewInt(int64(10 + len(f.receipts))),
	}}
}

// drop evicts an unmined tx from the node, as a txpool does with underpriced txs.
func (f *fakeChain) drop(txHash common.Hash) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, tx := range f.sent {
		if tx.Hash() == txHash {
			f.sent = append(f.sent[:i], f.sent[i+1:]...)
			return
		}
	}
}

// replace swaps an unmined tx for a same-nonce tx paying more, and mines it.
func (f *fakeChain) replace(txHash common.Hash) common.Hash {
	f.mu.Lock()
	var replacement *gethtypes.Transaction
	for i, tx := range f.sent {
		if tx.Hash() == txHash {
			replacement = gethtypes.NewTx(&gethtypes.LegacyTx{
				Nonce:    tx.Nonce(),
				GasPrice: new(big.Int).Mul(tx.GasPrice(), big.NewInt(2)),
				Gas:      tx.Gas(),
				To:       tx.To(),
				Value:    tx.Value(),
				Data:     tx.Data(),
			})
			f.sent[i] = replacement
		}
	}
	f.mu.Unlock()
	f.mine(replacement.Hash(), gethtypes.ReceiptStatusSuccessful)
	return replacement.Hash()
}

func (f *fakeChain) roomOf(data []byte) int64 {
	if len(data) < 4 {
		return 0
	}
	contractABI := f.codec.ABI()
	method, err := contractABI.MethodById(data[:4])
	if err != nil {
		return 0
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil || len(args) == 0 {
		return 0
	}
	roomID, _ := args[0].(*big.Int)
	if roomID == nil {
		return 0
	}
	return roomID.Int64()
}

func (f *fakeChain) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	f.inc("eth_getCode")
	return []byte{0x60}, nil
}

func (f *fakeChain) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	abi := f.codec.ABI()
	method, err := abi.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	f.inc(method.Name)
	args, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case chatroom.MethodGetChatRoom:
		room, ok := f.rooms[args[0].(*big.Int).Int64()]
		if !ok {
			return nil, &rpcDataError{code: 3, msg: "execution reverted"}
		}
		return method.Outputs.Pack(room)
	case chatroom.MethodIsAuthorizedSender:
		return method.Outputs.Pack(f.authorized[args[0].(*big.Int).Int64()])
	}
	return nil, fmt.Errorf("unsupported method %s", method.Name)
}

func (f *fakeChain) ChainID(ctx context.Context) (*big.Int, error) {
	f.inc("eth_chainId")
	return new(big.Int).Set(f.chainID), nil
}

func (f *fakeChain) NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
	f.inc("eth_getTransactionCount")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.baseNonce + uint64(len(f.sent)), nil
}

func (f *fakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	f.inc("eth_gasPrice")
	return new(big.Int).Set(f.gasPrice), nil
}

func (f *fakeChain) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	f.inc("eth_estimateGas")
	if f.estimate != nil {
		return f.estimate(f.roomOf(msg.Data))
	}
	return 50000, nil
}

func (f *fakeChain) SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error {
	f.inc("eth_sendRawTransaction")
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	f.sent = append(f.sent, tx)
	kind, ok := f.onChain[f.roomOf(tx.Data())]
	f.mu.Unlock()

	switch {
	case !ok || kind == OutcomeSuccess:
		f.mine(tx.Hash(), gethtypes.ReceiptStatusSuccessful)
	case kind == OutcomeFailed:
		f.mine(tx.Hash(), gethtypes.ReceiptStatusFailed)
	}
	return nil
}

func (f *fakeChain) TransactionByHash(ctx context.Context, txHash common.Hash) (*gethtypes.Transaction, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.sent {
		if tx.Hash() == txHash {
			_, mined := f.receipts[txHash]
			return tx, !mined, nil
		}
	}
	return nil, false, ethereum.NotFound
}

func (f *fakeChain) GetTransactionReceipt(ctx context.Context, txHash common.Hash) (*client.Receipt, bool, error) {
	f.inc("eth_getTransactionReceipt")
	f.mu.Lock()
	defer f.mu.Unlock()
	rc, ok := f.receipts[txHash]
	if !ok {
		return nil, true, ethereum.NotFound
	}
	return rc, false, nil
}

func (f *fakeChain) WaitForReceiptAndGet(ctx context.Context, txHash common.Hash) (*client.Receipt, error) {
	rc, _, err := f.GetTransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("%w: txHash=%s", client.ErrReceiptTimeout, txHash.Hex())
	}
	return rc, nil
}

func newTestAccount(t *testing.T) *RelayAccount {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	account, err := NewRelayAccount(Secret(hex.EncodeToString(crypto.FromECDSA(key))))
	require.NoError(t, err)
	return account
}

func testConfig() Config {
	c := DefaultConfig()
	c.RPCURL = "http://localhost:8545"
	c.ContractAddress = testContract.Hex()
	return c
}

type testRelayer struct {
	*Relayer
	chain  *fakeChain
	delays []time.Duration
}

func newTestRelayer(t *testing.T, chain *fakeChain, config Config, opts ...Option) *testRelayer {
	t.Helper()
	opts = append([]Option{WithLogger(log.NewDiscardLogger())}, opts...)
	r, err := NewRelayer(config, chain, newTestAccount(t), opts...)
	require.NoError(t, err)
	tr := &testRelayer{Relayer: r, chain: chain}
	r.sleep = func(ctx context.Context, d time.Duration) { tr.delays = append(tr.delays, d) }
	return tr
}

func msg(roomID int64, content string) Message {
	return Message{RoomID: big.NewInt(roomID), Content: content}
}

var errTransport = errors.New("connection reset by peer")
