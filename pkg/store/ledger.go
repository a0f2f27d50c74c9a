package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
)

const (
	// LedgerPrefix is the Redis key prefix for idempotency records.
	LedgerPrefix = "chatrelay:tx:"
	// ReplacementPrefix maps a replaced tx hash to the hash that replaced it.
	ReplacementPrefix = "chatrelay:replaced:"

	DefaultLedgerTTL = 7 * 24 * time.Hour
)

// Ledger remembers which transaction was submitted for a logical message.
type Ledger interface {
	Lookup(ctx context.Context, key string) (common.Hash, bool, error)
	Record(ctx context.Context, key string, txHash common.Hash) error
	// RecordReplacement notes that replacement was sent with the nonce of replaced.
	RecordReplacement(ctx context.Context, replaced, replacement common.Hash) error
	Replacement(ctx context.Context, replaced common.Hash) (common.Hash, bool, error)
}

// IdempotencyKey derives the ledger key of a message: sha256(roomId | sha256(content) | clientTimestamp).
// An empty clientTimestamp yields "" and the message is not deduplicated.
func IdempotencyKey(roomID *big.Int, content string, clientTimestamp string) string {
	if clientTimestamp == "" || roomID == nil {
		return ""
	}
	contentHash := sha256.Sum256([]byte(content))
	h := sha256.New()
	h.Write([]byte(roomID.String()))
	h.Write([]byte{'|'})
	h.Write([]byte(hex.EncodeToString(contentHash[:])))
	h.Write([]byte{'|'})
	h.Write([]byte(clientTimestamp))
	return hex.EncodeToString(h.Sum(nil))
}

type RedisLedger struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLedger(client *redis.Client, ttl time.Duration) *RedisLedger {
	if ttl <= 0 {
		ttl = DefaultLedgerTTL
	}
	return &RedisLedger{client: client, ttl: ttl}
}

func (l *RedisLedger) Lookup(ctx context.Context, key string) (common.Hash, bool, error) {
	v, err := l.client.Get(ctx, LedgerPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return common.Hash{}, false, nil
	}
	if err != nil {
		return common.Hash{}, false, fmt.Errorf("failed to look up ledger: %w", err)
	}
	return common.HexToHash(v), true, nil
}

func (l *RedisLedger) Record(ctx context.Context, key string, txHash common.Hash) error {
	if err := l.client.Set(ctx, LedgerPrefix+key, txHash.Hex(), l.ttl).Err(); err != nil {
		return fmt.Errorf("failed to record ledger: %w", err)
	}
	return nil
}

func (l *RedisLedger) RecordReplacement(ctx context.Context, replaced, replacement common.Hash) error {
	if err := l.client.Set(ctx, ReplacementPrefix+replaced.Hex(), replacement.Hex(), l.ttl).Err(); err != nil {
		return fmt.Errorf("failed to record replacement: %w", err)
	}
	return nil
}

func (l *RedisLedger) Replacement(ctx context.Context, replaced common.Hash) (common.Hash, bool, error) {
	v, err := l.client.Get(ctx, ReplacementPrefix+replaced.Hex()).Result()
	if errors.Is(err, redis.Nil) {
		return common.Hash{}, false, nil
	}
	if err != nil {
		return common.Hash{}, false, fmt.Errorf("failed to look up replacement: %w", err)
	}
	return common.HexToHash(v), true, nil
}

type memoryEntry struct {
	txHash    common.Hash
	expiresAt time.Time
}

// MemoryLedger is process-local and forgets everything on restart.
type MemoryLedger struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryLedger(ttl time.Duration) *MemoryLedger {
	if ttl <= 0 {
		ttl = DefaultLedgerTTL
	}
	return &MemoryLedger{ttl: ttl, entries: map[string]memoryEntry{}, now: time.Now}
}

func (l *MemoryLedger) Lookup(ctx context.Context, key string) (common.Hash, bool, error) {
	return l.get(key)
}

func (l *MemoryLedger) Record(ctx context.Context, key string, txHash common.Hash) error {
	l.set(key, txHash)
	return nil
}

func (l *MemoryLedger) RecordReplacement(ctx context.Context, replaced, replacement common.Hash) error {
	l.set(ReplacementPrefix+replaced.Hex(), replacement)
	return nil
}

func (l *MemoryLedger) Replacement(ctx context.Context, replaced common.Hash) (common.Hash, bool, error) {
	return l.get(ReplacementPrefix + replaced.Hex())
}

func (l *MemoryLedger) get(key string) (common.Hash, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		return common.Hash{}, false, nil
	}
	if l.now().After(e.expiresAt) {
		delete(l.entries, key)
		return common.Hash{}, false, nil
	}
	return e.txHash, true, nil
}

func (l *MemoryLedger) set(key string, txHash common.Hash) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[key] = memoryEntry{txHash: txHash, expiresAt: l.now().Add(l.ttl)}
}
