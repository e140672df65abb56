// Package aggregate sequences the external analytics calls after a
// feed update: every area, then every county, then the country-wide
// run, each polled to completion before the next phase.
package aggregate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/landreg/housesync/internal/analytics"
	"github.com/landreg/housesync/internal/store"
	"github.com/landreg/housesync/internal/telemetry"
)

// Orchestrator drives the aggregation workflow. All state transitions
// are persisted in the settings table before the next phase begins.
type Orchestrator struct {
	store     store.Store
	client    *analytics.Client
	logger    *zap.Logger
	telemetry *telemetry.Telemetry
	now       func() time.Time
}

func NewOrchestrator(st store.Store, client *analytics.Client, logger *zap.Logger, tel *telemetry.Telemetry) *Orchestrator {
	return &Orchestrator{
		store:     st,
		client:    client,
		logger:    logger.Named("aggregate"),
		telemetry: tel,
		now:       time.Now,
	}
}

// Run evaluates the control settings and, when an aggregation is due,
// drives it to completion. A run that is not due is a no-op; a run
// already flagged in progress is skipped rather than duplicated.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.ensureDefaults(ctx); err != nil {
		return err
	}

	snap, err := takeSnapshot(ctx, o.store)
	if err != nil {
		return err
	}

	state := Evaluate(snap)
	switch state {
	case StateWaiting:
		o.logger.Info("control settings incomplete, holding off")
		return nil
	case StateAggregating:
		o.logger.Warn("aggregation already flagged in progress, skipping")
		return nil
	case StateIdle:
		o.logger.Debug("no update since last aggregation")
		return nil
	}

	o.logger.Info("aggregation due",
		zap.Float64("last_updated", snap.LastUpdated),
		zap.Float64("last_aggregated", snap.LastAggregated),
	)

	if err := o.store.SetSetting(ctx, store.KeyAggregatingCounties, "true"); err != nil {
		return err
	}

	if err := o.aggregateAll(ctx); err != nil {
		// Clear the flag so the next run can retry instead of being
		// locked out by a half-finished aggregation.
		if clearErr := o.store.SetSetting(ctx, store.KeyAggregatingCounties, "false"); clearErr != nil {
			o.logger.Error("failed to clear aggregation flag", zap.Error(clearErr))
		}
		return err
	}

	now := strconv.FormatInt(o.now().Unix(), 10)
	if err := o.store.SetSetting(ctx, store.KeyLastAggregated, now); err != nil {
		return err
	}
	if err := o.store.SetSetting(ctx, store.KeyAggregatingCounties, "false"); err != nil {
		return err
	}

	o.logger.Info("aggregation complete", zap.String("last_aggregated", now))
	return nil
}

func (o *Orchestrator) aggregateAll(ctx context.Context) error {
	phases := []struct {
		scope    string
		areaType string
	}{
		{scope: "area", areaType: "area"},
		{scope: "county", areaType: "county"},
	}

	for _, phase := range phases {
		values, err := o.store.AreaValues(ctx, phase.areaType)
		if err != nil {
			return err
		}
		o.logger.Info("aggregation phase starting",
			zap.String("scope", phase.scope), zap.Int("targets", len(values)))

		for _, value := range values {
			if err := o.aggregateOne(ctx, phase.scope, value); err != nil {
				return err
			}
		}
	}

	// Country-wide wrap-up once every finer granularity is done.
	return o.aggregateOne(ctx, "COUNTRY", "ALL")
}

// aggregateOne triggers one aggregation and polls it to completion.
// The source design awaited only the final target; polling each one
// keeps per-target completion ordering intact.
func (o *Orchestrator) aggregateOne(ctx context.Context, scope, id string) error {
	pollURL, err := o.client.Analyse(ctx, scope, id)
	if err != nil {
		return fmt.Errorf("trigger %s/%s: %w", scope, id, err)
	}
	if o.telemetry != nil {
		o.telemetry.AggregationTargets.Add(ctx, 1)
	}
	if err := o.client.AwaitCompletion(ctx, pollURL); err != nil {
		return fmt.Errorf("await %s/%s: %w", scope, id, err)
	}
	return nil
}

// ensureDefaults creates the aggregation control settings on first
// run. update_hash and last_updated stay absent until the first ingest
// commits them.
func (o *Orchestrator) ensureDefaults(ctx context.Context) error {
	defaults := map[string]string{
		store.KeyLastAggregated:      "0",
		store.KeyAggregatingCounties: "false",
	}
	for name, value := range defaults {
		if _, ok, err := o.store.Setting(ctx, name); err != nil {
			return err
		} else if !ok {
			if err := o.store.SetSetting(ctx, name, value); err != nil {
				return err
			}
		}
	}
	return nil
}
