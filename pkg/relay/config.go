package relay

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"

	"github.com/bryanEnzee/skillance-relay/pkg/utils"
)

const (
	// DefaultGasLimit is used when gas estimation is disabled.
	DefaultGasLimit uint64 = 150000
	// FallbackGasLimit is used when estimation fails for a reason other than a revert.
	FallbackGasLimit uint64 = 200000

	DefaultInterMessageDelay = 2 * time.Second
	DefaultServerAddr        = ":8080"
	DefaultIdempotencyTTL    = 7 * 24 * time.Hour
	DefaultMaxBatchSize      = 50

	// DefaultReplacePriceBump matches the txpool's default replacement threshold.
	DefaultReplacePriceBump uint64 = 10
)

var (
	ErrMissingSigningKey      = errors.New("relay signing key is not configured")
	ErrMissingContractAddress = errors.New("chat contract address is not configured")

	// DefaultGasEstimateRate adds a 20% margin on top of the estimate.
	DefaultGasEstimateRate = Fraction{Numerator: 12, Denominator: 10}
)

// Secret is a string that never renders its value in logs or fmt output.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[redacted]"
}

func (s Secret) LogValue() slog.Value {
	return slog.StringValue(s.String())
}

type Fraction struct {
	Numerator   uint64
	Denominator uint64
}

func (f Fraction) Validate() error {
	if f.Denominator == 0 {
		return errors.New("zero is invalid fraction denominator")
	}
	if f.Numerator < f.Denominator {
		return fmt.Errorf("fraction %d/%d would shrink the value", f.Numerator, f.Denominator)
	}
	return nil
}

// MulCeil returns ceil(n * f).
func (f Fraction) MulCeil(n uint64) uint64 {
	v := new(big.Int).SetUint64(n)
	v.Mul(v, new(big.Int).SetUint64(f.Numerator))
	q, r := new(big.Int).QuoRem(v, new(big.Int).SetUint64(f.Denominator), new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, common.Big1)
	}
	if !q.IsUint64() {
		return ^uint64(0)
	}
	return q.Uint64()
}

type Config struct {
	Environment string

	RPCURL          string
	PrivateKey      Secret
	ContractAddress string
	// ChainID is the expected chain id; zero disables the check.
	ChainID uint64

	GasEstimateEnabled bool
	GasEstimateRate    Fraction
	// MaxGasPrice caps the suggested gas price, e.g. "50gwei". Empty means no cap.
	MaxGasPrice string

	ReceiptPollInterval time.Duration
	ReceiptPollAttempts uint
	InterMessageDelay   time.Duration
	// MaxBatchSize bounds the messages of one invocation.
	MaxBatchSize int
	// DebugTraceEnabled recovers revert reasons with debug_traceTransaction when receipts lack them.
	DebugTraceEnabled bool

	// ReplacePriceBump is the fee increase in percent a replacement pays over a stuck tx.
	ReplacePriceBump       uint64
	ReplaceCheckInterval   time.Duration
	ReplacePendingDuration time.Duration

	ServerAddr string
	LogLevel   string
	LogFormat  string

	RedisAddr      string
	IdempotencyTTL time.Duration
	DatabaseDSN    string
	NATSURL        string
	AuthSecret     Secret
}

func DefaultConfig() Config {
	return Config{
		Environment:            "development",
		GasEstimateEnabled:     true,
		GasEstimateRate:        DefaultGasEstimateRate,
		ReceiptPollInterval:    time.Second,
		ReceiptPollAttempts:    60,
		InterMessageDelay:      DefaultInterMessageDelay,
		MaxBatchSize:           DefaultMaxBatchSize,
		ReplacePriceBump:       DefaultReplacePriceBump,
		ReplaceCheckInterval:   5 * time.Second,
		ReplacePendingDuration: time.Minute,
		ServerAddr:             DefaultServerAddr,
		LogLevel:               "info",
		LogFormat:              "terminal",
		IdempotencyTTL:         DefaultIdempotencyTTL,
	}
}

// LoadConfig reads the configuration from the environment. Missing .env files are ignored.
func LoadConfig(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	if len(envFiles) == 0 {
		_ = godotenv.Load()
	}

	c := DefaultConfig()
	env := &envReader{}
	c.Environment = env.getString("ENVIRONMENT", c.Environment)
	c.RPCURL = env.getString("RPC_URL", c.RPCURL)
	c.PrivateKey = Secret(env.getString("RELAY_PRIVATE_KEY", ""))
	c.ContractAddress = env.getString("CHAT_CONTRACT_ADDRESS", c.ContractAddress)
	c.ChainID = env.getUint("CHAIN_ID", c.ChainID)
	c.GasEstimateEnabled = env.getBool("GAS_ESTIMATE_ENABLED", c.GasEstimateEnabled)
	c.MaxGasPrice = env.getString("MAX_GAS_PRICE", c.MaxGasPrice)
	c.ReceiptPollInterval = env.getDuration("RECEIPT_POLL_INTERVAL", c.ReceiptPollInterval)
	c.ReceiptPollAttempts = uint(env.getUint("RECEIPT_POLL_ATTEMPTS", uint64(c.ReceiptPollAttempts)))
	c.InterMessageDelay = env.getDuration("INTER_MESSAGE_DELAY", c.InterMessageDelay)
	c.MaxBatchSize = int(env.getUint("MAX_BATCH_SIZE", uint64(c.MaxBatchSize)))
	c.DebugTraceEnabled = env.getBool("DEBUG_TRACE_ENABLED", c.DebugTraceEnabled)
	c.ReplacePriceBump = env.getUint("REPLACE_PRICE_BUMP", c.ReplacePriceBump)
	c.ReplaceCheckInterval = env.getDuration("REPLACE_CHECK_INTERVAL", c.ReplaceCheckInterval)
	c.ReplacePendingDuration = env.getDuration("REPLACE_PENDING_DURATION", c.ReplacePendingDuration)
	c.ServerAddr = env.getString("SERVER_ADDR", c.ServerAddr)
	c.LogLevel = env.getString("LOG_LEVEL", c.LogLevel)
	c.LogFormat = env.getString("LOG_FORMAT", c.LogFormat)
	c.RedisAddr = env.getString("REDIS_ADDR", c.RedisAddr)
	c.IdempotencyTTL = env.getDuration("IDEMPOTENCY_TTL", c.IdempotencyTTL)
	c.DatabaseDSN = env.getString("DATABASE_DSN", c.DatabaseDSN)
	c.NATSURL = env.getString("NATS_URL", c.NATSURL)
	c.AuthSecret = Secret(env.getString("RELAY_AUTH_SECRET", ""))
	if err := errors.Join(env.errs...); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports malformed settings. Absent relay credentials are reported by Ready instead.
func (c Config) Validate() error {
	isEmpty := func(s string) bool {
		return strings.TrimSpace(s) == ""
	}

	var errs []error
	if isEmpty(c.RPCURL) {
		errs = append(errs, fmt.Errorf("config attribute \"RPC_URL\" is empty"))
	}
	if !isEmpty(string(c.PrivateKey)) {
		if _, err := crypto.HexToECDSA(strings.TrimPrefix(string(c.PrivateKey), "0x")); err != nil {
			// the key material must not leak into the message
			errs = append(errs, fmt.Errorf("config attribute \"RELAY_PRIVATE_KEY\" is not a valid secp256k1 key"))
		}
	}
	if !isEmpty(c.ContractAddress) && !common.IsHexAddress(c.ContractAddress) {
		errs = append(errs, fmt.Errorf("config attribute \"CHAT_CONTRACT_ADDRESS\" is invalid: %s", c.ContractAddress))
	}
	if err := c.GasEstimateRate.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config attribute \"gas_estimate_rate\" is invalid: %v", err))
	}
	if c.MaxGasPrice != "" {
		if _, err := utils.ParseEtherAmount(c.MaxGasPrice); err != nil {
			errs = append(errs, fmt.Errorf("config attribute \"MAX_GAS_PRICE\" is invalid: %v", err))
		}
	}
	if c.ReceiptPollInterval <= 0 {
		errs = append(errs, fmt.Errorf("config attribute \"RECEIPT_POLL_INTERVAL\" must be positive"))
	}
	if c.ReceiptPollAttempts == 0 {
		errs = append(errs, fmt.Errorf("config attribute \"RECEIPT_POLL_ATTEMPTS\" is zero"))
	}
	if c.InterMessageDelay < 0 {
		errs = append(errs, fmt.Errorf("config attribute \"INTER_MESSAGE_DELAY\" is negative"))
	}
	if c.MaxBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("config attribute \"MAX_BATCH_SIZE\" must be positive"))
	}
	if c.ReplacePriceBump == 0 {
		errs = append(errs, fmt.Errorf("config attribute \"REPLACE_PRICE_BUMP\" is zero"))
	}
	if c.ReplaceCheckInterval <= 0 {
		errs = append(errs, fmt.Errorf("config attribute \"REPLACE_CHECK_INTERVAL\" must be positive"))
	}
	return errors.Join(errs...)
}

// Ready reports the configuration errors that make every batch fail.
func (c Config) Ready() error {
	var errs []error
	if strings.TrimSpace(string(c.PrivateKey)) == "" {
		errs = append(errs, ErrMissingSigningKey)
	}
	if strings.TrimSpace(c.ContractAddress) == "" {
		errs = append(errs, ErrMissingContractAddress)
	}
	return errors.Join(errs...)
}

// IsConfigError reports whether err stems from missing relay credentials.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrMissingSigningKey) || errors.Is(err, ErrMissingContractAddress)
}

func (c Config) GetMaxGasPrice() *big.Int {
	if c.MaxGasPrice == "" {
		return new(big.Int)
	} else if limit, err := utils.ParseEtherAmount(c.MaxGasPrice); err != nil {
		panic(err)
	} else {
		return limit
	}
}

func (c Config) ContractAddr() common.Address {
	return common.HexToAddress(c.ContractAddress)
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

type envReader struct {
	errs []error
}

func (r *envReader) getString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (r *envReader) getBool(key string, def bool) bool {
	s := r.getString(key, "")
	if s == "" {
		return def
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("env %s: %v", key, err))
		return def
	}
	return v
}

func (r *envReader) getUint(key string, def uint64) uint64 {
	s := r.getString(key, "")
	if s == "" {
		return def
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("env %s: %v", key, err))
		return def
	}
	return v
}

func (r *envReader) getDuration(key string, def time.Duration) time.Duration {
	s := r.getString(key, "")
	if s == "" {
		return def
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("env %s: %v", key, err))
		return def
	}
	return v
}
