package relay

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/bryanEnzee/skillance-relay/pkg/log"
)

// RelayAccount owns the relay's signing key. The key never leaves this type.
type RelayAccount struct {
	mu      sync.RWMutex
	key     *ecdsa.PrivateKey
	address common.Address
	logger  *log.RelayLogger
}

func NewRelayAccount(privateKey Secret) (*RelayAccount, error) {
	hexKey := strings.TrimPrefix(strings.TrimSpace(string(privateKey)), "0x")
	if hexKey == "" {
		return nil, ErrMissingSigningKey
	}
	key, err := gethcrypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid relay signing key")
	}
	return &RelayAccount{
		key:     key,
		address: gethcrypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

func (a *RelayAccount) SetLogger(logger *log.RelayLogger) {
	a.logger = logger
}

func (a *RelayAccount) Address() common.Address {
	return a.address
}

// String never includes key material.
func (a *RelayAccount) String() string {
	return fmt.Sprintf("RelayAccount(%s)", a.address.Hex())
}

// Sign signs tx for chainID with the relay key. Its shape matches bind.SignerFn once
// bound to a chain id.
func (a *RelayAccount) Sign(chainID *big.Int, address common.Address, tx *gethtypes.Transaction) (*gethtypes.Transaction, error) {
	if address != a.address {
		return nil, fmt.Errorf("unauthorized address: authorized=%v, given=%v", a.address, address)
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.key == nil {
		return nil, fmt.Errorf("relay account is closed")
	}

	signer := gethtypes.LatestSignerForChainID(chainID)
	if a.logger != nil {
		a.logger.Debug("try to sign", logAttrAddress, address, logAttrTxHash, signer.Hash(tx).Hex())
	}
	signed, err := gethtypes.SignTx(tx, signer, a.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign tx: %v", err)
	}
	return signed, nil
}

// Close drops the key. Later Sign calls fail.
func (a *RelayAccount) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.key != nil {
		a.key.D.SetInt64(0)
		a.key = nil
	}
}
