package ingest

import (
	"context"
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/landreg/housesync/internal/feed"
	"github.com/landreg/housesync/internal/telemetry"
)

// DefaultBatchSize is the in-flight row threshold of the drain
// barrier.
const DefaultBatchSize = 1000

// Sink receives one reconciled record at a time. The store-backed sink
// applies mutations; the queue-backed sink publishes the record
// instead.
type Sink interface {
	ApplyRecord(ctx context.Context, rec feed.Record) error
}

// Engine fans row applications out to the sink with a hard
// backpressure barrier: rows are admitted in feed order, and once the
// batch threshold of work is in flight the engine waits for all of it
// before admitting more.
type Engine struct {
	sink      Sink
	batchSize int
	logger    *zap.Logger
	telemetry *telemetry.Telemetry
}

func NewEngine(sink Sink, batchSize int, logger *zap.Logger, tel *telemetry.Telemetry) *Engine {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Engine{
		sink:      sink,
		batchSize: batchSize,
		logger:    logger.Named("ingest"),
		telemetry: tel,
	}
}

// Run streams the feed body through the sink and returns the per-run
// report. Row failures are isolated: a bad row fails that row, not the
// run. Only reader-level or context failures abort.
func (e *Engine) Run(ctx context.Context, body io.Reader) (*Report, error) {
	report := NewReport()
	rows := feed.NewRowReader(body)

	var wg sync.WaitGroup
	inFlight := 0
	batches := 0
	seen := make(map[string]struct{})

	drain := func() {
		wg.Wait()
		inFlight = 0
		batches++
		seen = make(map[string]struct{})
		e.logger.Debug("batch drained", zap.Int("batch", batches))
	}

	for {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return report, err
		}

		rec, err := rows.Next()
		if err == io.EOF {
			break
		}
		if errors.Is(err, feed.ErrMalformedRecord) {
			report.RecordSkipped(rec.TUI, err)
			e.countFailure(ctx)
			continue
		}
		if err != nil {
			wg.Wait()
			return report, err
		}

		// Two rows for the same tui must not race each other: drain
		// the batch so the later row observes the earlier one.
		if _, dup := seen[rec.TUI]; dup {
			drain()
		}
		seen[rec.TUI] = struct{}{}

		wg.Add(1)
		inFlight++
		go func(rec feed.Record) {
			defer wg.Done()
			if err := e.sink.ApplyRecord(ctx, rec); err != nil {
				e.logger.Warn("row failed", zap.String("tui", rec.TUI), zap.Error(err))
				report.RecordFailed(rec.TUI, err)
				e.countFailure(ctx)
				return
			}
			report.RecordApplied()
			if e.telemetry != nil {
				e.telemetry.RowsApplied.Add(ctx, 1)
			}
		}(rec)

		if inFlight >= e.batchSize {
			drain()
		}
	}

	// Final drain of the partial batch.
	wg.Wait()

	e.logger.Info("feed applied",
		zap.Int64("applied", report.Applied()),
		zap.Int64("skipped", report.Skipped()),
		zap.Int64("failed", report.Failed()),
		zap.Int("batches", batches),
	)
	return report, nil
}

func (e *Engine) countFailure(ctx context.Context) {
	if e.telemetry != nil {
		e.telemetry.RowsFailed.Add(ctx, 1)
	}
}
