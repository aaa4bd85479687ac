// Package sweeper periodically closes ended auctions and expires stale
// offers.
package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/cloudx-io/openmarket/engine"
)

// Engine is the part of engine.Engine the sweeper drives.
type Engine interface {
	CloseExpiredAuctions(ctx context.Context) (*engine.CloseReport, error)
	ExpireOffers(ctx context.Context) (int, error)
}

// Result summarizes one pass.
type Result struct {
	Sold          int `json:"sold"`
	Expired       int `json:"expired"`
	Skipped       int `json:"skipped"`
	OffersExpired int `json:"offers_expired"`
}

type Sweeper struct {
	engine   Engine
	interval time.Duration
	logger   zerolog.Logger
}

func New(e Engine, interval time.Duration, logger zerolog.Logger) *Sweeper {
	return &Sweeper{engine: e, interval: interval, logger: logger}
}

// RunOnce performs a single pass. Both sweeps run even if the first fails.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	report, closeErr := s.engine.CloseExpiredAuctions(ctx)
	if report != nil {
		res.Sold = len(report.Sold)
		res.Expired = len(report.Expired)
		res.Skipped = report.Skipped
	}
	n, offerErr := s.engine.ExpireOffers(ctx)
	res.OffersExpired = n
	return res, errors.Join(closeErr, offerErr)
}

// Run sweeps every interval until ctx is done. Failed passes are logged and
// retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sweeper stopped")
			return nil
		case <-ticker.C:
			res, err := s.RunOnce(ctx)
			if err != nil && ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("sweep failed")
			}
			if res.Sold+res.Expired+res.OffersExpired > 0 {
				s.logger.Info().
					Int("sold", res.Sold).
					Int("expired", res.Expired).
					Int("offers_expired", res.OffersExpired).
					Msg("sweep complete")
			}
		}
	}
}
