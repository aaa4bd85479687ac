package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/cloudx-io/openmarket/config"
	"github.com/cloudx-io/openmarket/engine"
	"github.com/cloudx-io/openmarket/events"
	"github.com/cloudx-io/openmarket/lock"
	"github.com/cloudx-io/openmarket/receipt"
	"github.com/cloudx-io/openmarket/store"
	"github.com/cloudx-io/openmarket/store/postgres"
)

// market is an engine wired to the configured backends.
type market struct {
	engine  *engine.Engine
	redis   redis.UniversalClient
	closers []func() error
}

func (m *market) Close() error {
	var errs []error
	for i := len(m.closers) - 1; i >= 0; i-- {
		errs = append(errs, m.closers[i]())
	}
	return errors.Join(errs...)
}

func newMarket(ctx context.Context, cfg *config.Config, logger zerolog.Logger, metrics *engine.Metrics) (_ *market, err error) {
	m := &market{}
	defer func() {
		if err != nil {
			m.Close()
		}
	}()

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		m.closers = append(m.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		m.redis = rdb
		logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")
	}

	s, err := openStore(ctx, cfg, m, logger)
	if err != nil {
		return nil, err
	}

	var fanout events.Fanout
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		m.closers = append(m.closers, func() error { nc.Close(); return nil })
		js, err := events.NewJetStream(ctx, nc)
		if err != nil {
			return nil, err
		}
		fanout = append(fanout, js)
		logger.Info().Str("url", cfg.NATSURL).Str("stream", events.StreamName).Msg("publishing to JetStream")
	}
	if m.redis != nil {
		fanout = append(fanout, events.NewRedis(m.redis))
	}

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithMetrics(metrics),
		engine.WithFees(cfg.Fees()),
		engine.WithOfferWindow(cfg.OfferWindow),
		engine.WithDefaultIncrement(cfg.DefaultIncrement),
		engine.WithMinOfferPercent(cfg.MinOfferPercent),
	}
	if len(fanout) > 0 {
		opts = append(opts, engine.WithPublisher(fanout))
	}
	if cfg.ReceiptKeyFile != "" {
		signer, err := receipt.LoadSigner(cfg.ReceiptKeyFile)
		if err != nil {
			return nil, err
		}
		pem, err := signer.PublicKeyPEM()
		if err != nil {
			return nil, fmt.Errorf("failed to encode receipt public key: %w", err)
		}
		logger.Info().Str("public_key", pem).Msg("signing settlement receipts")
		opts = append(opts, engine.WithSealer(signer))
	}

	m.engine = engine.New(s, opts...)
	return m, nil
}

func openStore(ctx context.Context, cfg *config.Config, m *market, logger zerolog.Logger) (store.Store, error) {
	if cfg.Store == config.StorePostgres {
		pg, err := postgres.Open(ctx, cfg.PostgresDSN, cfg.LockTimeout)
		if err != nil {
			return nil, err
		}
		m.closers = append(m.closers, pg.Close)
		if err := pg.InitSchema(ctx); err != nil {
			return nil, err
		}
		return pg, nil
	}

	var locker lock.Locker = lock.NewLocal(cfg.LockTimeout)
	if cfg.Lock == config.LockRedis {
		if m.redis == nil {
			return nil, errors.New("lock=redis requires redis_addr")
		}
		locker = lock.NewRedis(m.redis, cfg.LockTimeout, lock.WithLogger(logger))
	}
	return store.NewMemory(locker), nil
}
