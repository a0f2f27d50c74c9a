package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/bryanEnzee/skillance-relay/pkg/client"
	"github.com/bryanEnzee/skillance-relay/pkg/contract/chatroom"
	"github.com/bryanEnzee/skillance-relay/pkg/events"
	"github.com/bryanEnzee/skillance-relay/pkg/journal"
	"github.com/bryanEnzee/skillance-relay/pkg/log"
	"github.com/bryanEnzee/skillance-relay/pkg/relay"
	"github.com/bryanEnzee/skillance-relay/pkg/store"
)

// app holds the wired relay components of one process.
type app struct {
	config   relay.Config
	logger   *log.RelayLogger
	client   *client.ETHClient
	account  *relay.RelayAccount
	relayer  *relay.Relayer
	ledger   store.Ledger
	registry *prometheus.Registry
	// notReady is set when the relay credentials are missing.
	notReady error

	closers []func()
}

// newApp connects to the node and the optional backing services. With requireReady
// unset, missing relay credentials leave the app running without a relayer.
func newApp(ctx context.Context, c *Context, requireReady bool) (_ *app, err error) {
	a := &app{
		config:   c.Config,
		logger:   c.Logger,
		registry: prometheus.NewRegistry(),
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a.client, err = client.NewETHClient(a.config.RPCURL, client.WithPolling(a.config.ReceiptPollInterval, a.config.ReceiptPollAttempts))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", a.config.RPCURL, err)
	}
	a.closers = append(a.closers, a.client.Close)

	if err := a.config.Ready(); err != nil {
		if requireReady {
			return nil, err
		}
		a.logger.Warn("relay is not configured, relay requests will fail", "error", err)
		a.notReady = err
		return a, nil
	}

	a.account, err = relay.NewRelayAccount(a.config.PrivateKey)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.account.Close)
	if balance, err := a.client.BalanceAt(ctx, a.account.Address(), nil); err != nil {
		a.logger.Warn("failed to get relay account balance", "address", a.account.Address(), "error", err)
	} else {
		a.logger.Info("relay account loaded", "address", a.account.Address(), "balance_ether", client.FormatEther(balance))
	}

	caller := chatroom.NewCaller(a.config.ContractAddr(), a.account.Address(), a.client, chatroom.MustNewCodec())
	if hasCode, err := caller.HasCode(ctx); err != nil {
		return nil, fmt.Errorf("failed to check chat contract: %w", err)
	} else if !hasCode {
		return nil, fmt.Errorf("no contract deployed at %s", a.config.ContractAddress)
	}

	opts := []relay.Option{
		relay.WithLogger(a.logger.WithModule("relay")),
		relay.WithMetrics(relay.NewMetrics(a.registry)),
	}

	if a.config.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: a.config.RedisAddr})
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.ledger = store.NewRedisLedger(rdb, a.config.IdempotencyTTL)
		opts = append(opts,
			relay.WithLocker(store.NewRedisLocker(rdb, store.LockKey, store.DefaultLockTTL)),
			relay.WithLedger(a.ledger),
		)
		a.logger.Info("redis connection established", "addr", a.config.RedisAddr)
	}

	if a.config.DatabaseDSN != "" {
		pool, err := pgxpool.New(ctx, a.config.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		j := journal.NewPostgresJournal(pool)
		if err := j.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		opts = append(opts, relay.WithJournal(j))
		a.logger.Info("database connection established")
	}

	if a.config.NATSURL != "" {
		pub, err := events.NewNATSPublisher(events.DefaultNATSConfig(a.config.NATSURL))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pub.Close)
		opts = append(opts, relay.WithPublisher(pub))
	}

	a.relayer, err = relay.NewRelayer(a.config, a.client, a.account, opts...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Close releases connections in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
