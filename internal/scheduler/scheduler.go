package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/dskilton/weather-archive/internal/store"
	"github.com/dskilton/weather-archive/internal/weather"
)

// Scheduler periodically re-backfills a trailing window of weather entries
// for every stored city. The archive API lags real time, so the window ends
// at yesterday. Cities are refreshed sequentially; the store's idempotent
// insert makes repeated runs harmless.
type Scheduler struct {
	scheduler  *gocron.Scheduler
	service    *weather.Service
	interval   time.Duration
	windowDays int
	logger     *zap.Logger
}

// New creates a new Scheduler. A non-positive interval disables it.
func New(service *weather.Service, interval time.Duration, windowDays int, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		scheduler:  gocron.NewScheduler(time.UTC),
		service:    service,
		interval:   interval,
		windowDays: windowDays,
		logger:     logger,
	}
}

// Start schedules the refresh job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		s.logger.Info("refresh scheduler disabled")
		return nil
	}
	if s.windowDays <= 0 {
		s.windowDays = 7
	}

	_, err := s.scheduler.Every(s.interval).Do(s.refresh)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info("refresh scheduler started",
		zap.Duration("interval", s.interval),
		zap.Int("windowDays", s.windowDays))
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Scheduler) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cities, err := s.service.ListCities(ctx)
	if err != nil {
		s.logger.Error("refresh: list cities failed", zap.Error(err))
		return
	}
	if len(cities) == 0 {
		return
	}

	end := time.Now().UTC().AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -(s.windowDays - 1))
	startDay := start.Format(store.DateLayout)
	endDay := end.Format(store.DateLayout)

	refreshed := 0
	for _, city := range cities {
		if err := s.service.Backfill(ctx, city.Name, startDay, endDay); err != nil {
			s.logger.Warn("refresh: backfill failed",
				zap.String("city", city.Name),
				zap.Error(err))
			continue
		}
		refreshed++
	}

	s.logger.Info("refresh job completed",
		zap.Int("cities", len(cities)),
		zap.Int("refreshed", refreshed),
		zap.String("start", startDay),
		zap.String("end", endDay))
}
