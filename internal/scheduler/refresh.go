package scheduler

import (
	"context"
	"fmt"

	"github.com/trafficdeck/trafficdeck/internal/domain"
	"github.com/trafficdeck/trafficdeck/internal/logger"
	"github.com/trafficdeck/trafficdeck/internal/metrics"
	"github.com/trafficdeck/trafficdeck/internal/registry"
)

// SnapshotFetcher is the fallback read collaborator.
type SnapshotFetcher interface {
	FetchServices(ctx context.Context) ([]domain.ServiceRecord, error)
}

// Refresher pulls a full snapshot over HTTP when the operator asks for one.
//
// It is deliberately trigger-driven, not periodic: the realtime channel is
// the normal source of truth, and a failed fetch is surfaced once without
// scheduling a retry.
type Refresher struct {
	fetcher  SnapshotFetcher
	registry *registry.Registry
	logger   logger.Logger
	trigger  chan struct{}
	stopCh   chan struct{}
}

// NewRefresher creates a refresher fed by the manual trigger channel.
func NewRefresher(
	fetcher SnapshotFetcher,
	reg *registry.Registry,
	log logger.Logger,
	trigger chan struct{},
) *Refresher {
	return &Refresher{
		fetcher:  fetcher,
		registry: reg,
		logger:   log,
		trigger:  trigger,
		stopCh:   make(chan struct{}),
	}
}

// Start performs one best-effort snapshot fetch, so the table has data
// before the first channel frame, then serves manual triggers until Stop
// or context cancellation.
func (rf *Refresher) Start(ctx context.Context) {
	if err := rf.Refresh(ctx); err != nil {
		rf.logger.Warn("initial snapshot fetch failed, waiting for the realtime channel",
			logger.Error(err))
	}

	go func() {
		for {
			select {
			case <-rf.trigger:
				rf.logger.Info("manual refresh triggered")
				if err := rf.Refresh(ctx); err != nil {
					rf.logger.Error("manual refresh failed", logger.Error(err))
				}
			case <-rf.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the refresher.
func (rf *Refresher) Stop() {
	close(rf.stopCh)
}

// Refresh fetches a full snapshot and replaces the registry contents.
func (rf *Refresher) Refresh(ctx context.Context) error {
	records, err := rf.fetcher.FetchServices(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch services: %w", err)
	}

	rf.registry.ApplyFull(records)
	metrics.ObserveApply(rf.registry.Count())

	rf.logger.Info("registry refreshed from snapshot fetch",
		logger.Int("services", len(records)))
	return nil
}
