package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/avast/retry-go"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	DefaultPollInterval = 1 * time.Second
	DefaultPollAttempts = 60
)

// ErrReceiptTimeout is returned when no receipt shows up within the polling budget.
// The transaction may still be mined later.
var ErrReceiptTimeout = errors.New("receipt not available within polling budget")

type ETHClient struct {
	*ethclient.Client
	rpcClient *rpc.Client
	option    option
}

type Option func(*option)

type option struct {
	retryOpts []retry.Option
}

func DefaultOption() *option {
	return &option{
		retryOpts: pollingOptions(DefaultPollInterval, DefaultPollAttempts),
	}
}

func pollingOptions(interval time.Duration, attempts uint) []retry.Option {
	return []retry.Option{
		retry.Delay(interval),
		retry.DelayType(retry.FixedDelay),
		retry.Attempts(attempts),
		retry.LastErrorOnly(true),
	}
}

func WithRetryOption(rops ...retry.Option) Option {
	return func(opt *option) {
		opt.retryOpts = rops
	}
}

// WithPolling sets the receipt polling interval and the maximum number of attempts.
func WithPolling(interval time.Duration, attempts uint) Option {
	return func(opt *option) {
		opt.retryOpts = pollingOptions(interval, attempts)
	}
}

func NewETHClient(endpoint string, opts ...Option) (*ETHClient, error) {
	rpcClient, err := rpc.DialHTTP(endpoint)
	if err != nil {
		return nil, err
	}
	return NewETHClientWith(rpcClient, opts...), nil
}

func NewETHClientWith(rpcClient *rpc.Client, opts ...Option) *ETHClient {
	opt := DefaultOption()
	for _, o := range opts {
		o(opt)
	}
	return &ETHClient{
		rpcClient: rpcClient,
		Client:    ethclient.NewClient(rpcClient),
		option:    *opt,
	}
}

// Call issues a single JSON-RPC request and decodes its result into `result`.
func (cl *ETHClient) Call(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	return cl.rpcClient.CallContext(ctx, result, method, params...)
}

func (cl *ETHClient) GetTransactionReceipt(ctx context.Context, txHash common.Hash) (rc *Receipt, recoverable bool, err error) {
	var r *Receipt
	if err := cl.rpcClient.CallContext(ctx, &r, "eth_getTransactionReceipt", txHash); err != nil {
		return nil, true, err
	}
	if r == nil {
		return nil, true, ethereum.NotFound
	}
	return r, false, nil
}

// WaitForReceiptAndGet polls until a receipt is available. Fetch errors are treated as
// "not yet available"; exhausting the attempts yields ErrReceiptTimeout.
func (cl *ETHClient) WaitForReceiptAndGet(ctx context.Context, txHash common.Hash) (*Receipt, error) {
	var receipt *Receipt
	opts := append([]retry.Option{retry.Context(ctx)}, cl.option.retryOpts...)
	err := retry.Do(
		func() error {
			rc, recoverable, err := cl.GetTransactionReceipt(ctx, txHash)
			if err != nil {
				if recoverable {
					return err
				} else {
					return retry.Unrecoverable(err)
				}
			}
			receipt = rc
			return nil
		},
		opts...,
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: txHash=%s, lastErr=%v", ErrReceiptTimeout, txHash.Hex(), err)
	}
	return receipt, nil
}

func (cl *ETHClient) DebugTraceTransaction(ctx context.Context, txHash common.Hash) (string, string, error) {
	var result *Result
	if err := cl.rpcClient.CallContext(ctx, &result, "debug_traceTransaction", txHash, map[string]string{"tracer": "callTracer"}); err != nil {
		return "", "", err
	}
	to, revertReason, err := searchToAndReason(result)
	if err != nil {
		return "", "", err
	}
	return to, revertReason, nil
}

// ContentFrom returns the txpool content (pending and queued) of a single sender.
func (cl *ETHClient) ContentFrom(ctx context.Context, address common.Address) (map[string]map[string]*RPCTransaction, error) {
	var content map[string]map[string]*RPCTransaction
	if err := cl.rpcClient.CallContext(ctx, &content, "txpool_contentFrom", address); err != nil {
		return nil, err
	}
	return content, nil
}

type RPCTransaction struct {
	BlockHash        *common.Hash    `json:"blockHash"`
	BlockNumber      *hexutil.Big    `json:"blockNumber"`
	From             common.Address  `json:"from"`
	Gas              hexutil.Uint64  `json:"gas"`
	GasPrice         *hexutil.Big    `json:"gasPrice"`
	GasFeeCap        *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	GasTipCap        *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
	Hash             common.Hash     `json:"hash"`
	Input            hexutil.Bytes   `json:"input"`
	Nonce            hexutil.Uint64  `json:"nonce"`
	To               *common.Address `json:"to"`
	TransactionIndex *hexutil.Uint64 `json:"transactionIndex"`
	Value            *hexutil.Big    `json:"value"`
	Type             hexutil.Uint64  `json:"type"`
	ChainID          *hexutil.Big    `json:"chainId,omitempty"`
}

type Receipt struct {
	gethtypes.Receipt
	RevertReason []byte `json:"revertReason,omitempty"`
}

func (rc *Receipt) UnmarshalJSON(input []byte) error {
	if err := json.Unmarshal(input, &rc.Receipt); err != nil {
		return err
	}
	var extra struct {
		RevertReason hexutil.Bytes `json:"revertReason"`
	}
	if err := json.Unmarshal(input, &extra); err != nil {
		return err
	}
	rc.RevertReason = extra.RevertReason
	return nil
}

func (rc Receipt) Succeeded() bool {
	return rc.Status == gethtypes.ReceiptStatusSuccessful
}

func (rc Receipt) HasRevertReason() bool {
	return len(rc.RevertReason) > 0
}

func (rc Receipt) GetRevertReason() (string, error) {
	return parseRevertReason(rc.RevertReason)
}

// A format of revertReason is:
// 4byte: Function selector for Error(string)
// 32byte: Data offset
// 32byte: String length
// Remains: String Data
func parseRevertReason(bz []byte) (string, error) {
	if l := len(bz); l == 0 {
		return "", nil
	} else if l < 68 {
		return "", fmt.Errorf("invalid length")
	}

	size := &big.Int{}
	size.SetBytes(bz[36:68])
	if !size.IsInt64() || 68+size.Int64() > int64(len(bz)) {
		return "", fmt.Errorf("invalid string length: %v", size)
	}
	return string(bz[68 : 68+size.Int64()]), nil
}

type Result struct {
	Type         *string  `json:"type"`
	From         *string  `json:"from"`
	To           *string  `json:"to"`
	Value        *string  `json:"value"`
	Gas          *string  `json:"gas"`
	GasUsed      *string  `json:"gasUsed"`
	Input        *string  `json:"input"`
	Output       *string  `json:"output"`
	Error        *string  `json:"error"`
	RevertReason *string  `json:"revertReason"`
	Calls        []Result `json:"calls"`
}

func searchToAndReason(result *Result) (string, string, error) {
	if result == nil {
		return "", "", fmt.Errorf("empty trace result")
	}
	if result.RevertReason != nil {
		to := ""
		if result.To != nil {
			to = *result.To
		}
		return to, *result.RevertReason, nil
	}
	for _, call := range result.Calls {
		to, reason, err := searchToAndReason(&call)
		if err == nil {
			return to, reason, nil
		}
	}
	return "", "", fmt.Errorf("revert reason not found")
}

// RPCError is the provider side of a failed JSON-RPC call.
type RPCError struct {
	Code    int
	Message string
	Data    interface{}
}

// RPCErrorOf extracts the provider's code, message and data from err. Non-2xx HTTP responses
// are reported with the HTTP status as code.
func RPCErrorOf(err error) (*RPCError, bool) {
	if err == nil {
		return nil, false
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return &RPCError{Code: httpErr.StatusCode, Message: httpErr.Status}, true
	}
	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		return nil, false
	}
	e := &RPCError{Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		e.Data = dataErr.ErrorData()
	}
	return e, true
}

// FormatEther renders a wei amount in ether. Amounts are kept in base units everywhere else.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	f := new(big.Float).SetInt(wei)
	f.Quo(f, new(big.Float).SetInt64(params.Ether))
	return f.Text('f', 18)
}
