package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Digester interface {
	OverdueDigest(ctx context.Context) (int, error)
}

// Digest sends the overdue report on start and then every interval.
type Digest struct {
	digester Digester
	interval time.Duration
	log      *zap.Logger
}

const defaultInterval = 24 * time.Hour

// NewDigest falls back to a daily report when interval is not positive.
func NewDigest(digester Digester, interval time.Duration, log *zap.Logger) *Digest {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Digest{
		digester: digester,
		interval: interval,
		log:      log.Named("digest"),
	}
}

// Run blocks until ctx is done.
func (d *Digest) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.check(ctx)
	for {
		select {
		case <-ticker.C:
			d.check(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

func (d *Digest) check(ctx context.Context) {
	n, err := d.digester.OverdueDigest(ctx)
	if err != nil {
		d.log.Error("OverdueDigest", zap.Error(err))
		return
	}
	d.log.Info("overdue digest sent", zap.Int("borrowings", n))
}
