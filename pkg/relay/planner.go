package relay

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/bryanEnzee/skillance-relay/pkg/log"
	"github.com/bryanEnzee/skillance-relay/pkg/utils"
)

// GasSource tells where a plan's gas limit came from.
type GasSource string

const (
	GasSourceEstimate GasSource = "estimate"
	GasSourceFallback GasSource = "fallback"
	GasSourceDefault  GasSource = "default"
)

// TransactionPlan is everything needed to sign one legacy transaction.
type TransactionPlan struct {
	From         common.Address `json:"from"`
	To           common.Address `json:"to"`
	Data         []byte         `json:"-"`
	Nonce        uint64         `json:"nonce"`
	GasPrice     *big.Int       `json:"gasPrice"`
	GasLimit     uint64         `json:"gasLimit"`
	GasSource    GasSource      `json:"gasSource"`
	EstimatedGas uint64         `json:"estimatedGas,omitempty"`
	ChainID      *big.Int       `json:"chainId"`
	Value        *big.Int       `json:"value"`
}

// Tx builds the unsigned legacy transaction.
func (p *TransactionPlan) Tx() *gethtypes.Transaction {
	to := p.To
	return gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    p.Nonce,
		GasPrice: new(big.Int).Set(p.GasPrice),
		Gas:      p.GasLimit,
		To:       &to,
		Value:    new(big.Int).Set(p.Value),
		Data:     p.Data,
	})
}

type PlannerConfig struct {
	EstimateEnabled bool
	EstimateRate    Fraction
	// MaxGasPrice caps the oracle's price when positive.
	MaxGasPrice *big.Int
	// ExpectedChainID is checked against the node when non-zero.
	ExpectedChainID uint64
}

// Planner chooses nonce, gas price and gas limit. The nonce is re-read from the
// chain for every plan and never cached.
type Planner struct {
	client     ChainClient
	from       common.Address
	to         common.Address
	config     PlannerConfig
	classifier *RevertClassifier
	logger     *log.RelayLogger

	chainIDMu sync.Mutex
	chainID   *big.Int
}

func NewPlanner(client ChainClient, from, to common.Address, config PlannerConfig, classifier *RevertClassifier, logger *log.RelayLogger) *Planner {
	if config.EstimateRate.Denominator == 0 {
		config.EstimateRate = DefaultGasEstimateRate
	}
	return &Planner{
		client:     client,
		from:       from,
		to:         to,
		config:     config,
		classifier: classifier,
		logger:     logger,
	}
}

// ChainID returns the node's chain id, read once.
func (p *Planner) ChainID(ctx context.Context) (*big.Int, error) {
	p.chainIDMu.Lock()
	defer p.chainIDMu.Unlock()
	if p.chainID != nil {
		return new(big.Int).Set(p.chainID), nil
	}
	chainID, err := p.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	if p.config.ExpectedChainID != 0 && chainID.Cmp(new(big.Int).SetUint64(p.config.ExpectedChainID)) != 0 {
		return nil, fmt.Errorf("unexpected chain id: expected=%d, actual=%v", p.config.ExpectedChainID, chainID)
	}
	p.chainID = chainID
	return new(big.Int).Set(chainID), nil
}

// Plan returns a *RevertError when simulation shows the call would revert.
func (p *Planner) Plan(ctx context.Context, roomID *big.Int, sender common.Address, callData []byte) (*TransactionPlan, error) {
	logger := &log.RelayLogger{Logger: p.logger.With(logAttrRoomID, roomID.String())}

	nonce, err := p.client.NonceAt(ctx, sender, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := p.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest gas price: %w", err)
	}
	if l := p.config.MaxGasPrice; l != nil && l.Sign() > 0 && gasPrice.Cmp(l) > 0 {
		logger.Warn("suggested gas price exceeds the limit", logAttrGasPrice, utils.FormatGwei(gasPrice), "max_gas_price", utils.FormatGwei(l))
		gasPrice = new(big.Int).Set(l)
	}

	plan := &TransactionPlan{
		From:     sender,
		To:       p.to,
		Data:     callData,
		Nonce:    nonce,
		GasPrice: gasPrice,
		Value:    new(big.Int),
	}

	if !p.config.EstimateEnabled {
		plan.GasLimit = DefaultGasLimit
		plan.GasSource = GasSourceDefault
	} else {
		to := p.to
		estimatedGas, err := p.client.EstimateGas(ctx, ethereum.CallMsg{
			From:  sender,
			To:    &to,
			Data:  callData,
			Value: new(big.Int),
		})
		if err != nil {
			if revertErr, ok := p.classifier.Classify(err); ok {
				logger.Error("gas estimation reverted", err,
					logAttrReason, revertErr.Reason,
					logAttrRawErrorData, common.Bytes2Hex(revertErr.Data),
				)
				return nil, revertErr
			}
			logger.Warn("gas estimation failed, using fallback gas limit", "error", err, logAttrGasLimit, FallbackGasLimit)
			plan.GasLimit = FallbackGasLimit
			plan.GasSource = GasSourceFallback
		} else {
			plan.EstimatedGas = estimatedGas
			plan.GasLimit = p.config.EstimateRate.MulCeil(estimatedGas)
			plan.GasSource = GasSourceEstimate
		}
	}
	if plan.GasLimit == 0 {
		plan.GasLimit = FallbackGasLimit
		plan.GasSource = GasSourceFallback
	}

	chainID, err := p.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	plan.ChainID = chainID

	logger.Debug("planned tx",
		logAttrNonce, plan.Nonce,
		logAttrGasPrice, utils.FormatGwei(plan.GasPrice),
		logAttrGasLimit, plan.GasLimit,
		logAttrEstimatedGas, plan.EstimatedGas,
	)
	return plan, nil
}
