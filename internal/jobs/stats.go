package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/curtistech/unlock-server/internal/metrics"
	"github.com/curtistech/unlock-server/internal/model"
)

type StatsSource interface {
	Stats(ctx context.Context) (*model.RedemptionStats, error)
}

// StatsJob periodically publishes ledger counts to the codes gauge.
type StatsJob struct {
	source   StatsSource
	interval time.Duration
	done     chan struct{}
	stopped  chan struct{}
}

func NewStatsJob(source StatsSource, interval time.Duration) *StatsJob {
	return &StatsJob{
		source:   source,
		interval: interval,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

func (j *StatsJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("stats job started")
}

// Stop blocks until the running refresh, if any, has returned.
func (j *StatsJob) Stop() {
	close(j.done)
	<-j.stopped
	log.Info().Msg("stats job stopped")
}

func (j *StatsJob) run() {
	defer close(j.stopped)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.refresh()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.refresh()
		}
	}
}

func (j *StatsJob) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stats, err := j.source.Stats(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to refresh ledger stats")
		return
	}

	metrics.SetCodes(stats.Unused, stats.Used)
	log.Debug().
		Int("total", stats.Total).
		Int("unused", stats.Unused).
		Int("used", stats.Used).
		Msg("ledger stats refreshed")
}
