// Package interrupt drains interrupt records: execute, timestamp, persist.
package interrupt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"mqtt-dispatcher/internal/command"
	"mqtt-dispatcher/internal/logger"
	"mqtt-dispatcher/internal/metrics"
	"mqtt-dispatcher/internal/payload"
	"mqtt-dispatcher/internal/queue"
	"mqtt-dispatcher/internal/stats"
	"mqtt-dispatcher/internal/store"
)

// TimestampColumn is stamped on every row before the record is persisted
const TimestampColumn = "history_timestamp"

// DefaultTable receives drained interrupt records
const DefaultTable = "history"

// drainTimeout bounds the execute and write of one popped record
const drainTimeout = 30 * time.Second

// Processor owns the LIFO interrupt queue and serializes drains
type Processor struct {
	queue    *queue.Ordered[*payload.RowSet]
	executor command.Executor
	store    store.Writer
	table    string
	now      func() time.Time

	logger  *logger.Logger
	metrics *metrics.Metrics
	stats   *stats.StatsCollector

	// drainMu keeps at most one drain in flight
	drainMu sync.Mutex
	wake    chan struct{}
}

// Config holds processor settings
type Config struct {
	Table string
}

// NewProcessor creates a processor writing to cfg.Table
func NewProcessor(cfg Config, exec command.Executor, w store.Writer, log *logger.Logger, m *metrics.Metrics, st *stats.StatsCollector) *Processor {
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if st == nil {
		st = stats.NewStatsCollector()
	}
	return &Processor{
		queue:    queue.New[*payload.RowSet](queue.LIFO),
		executor: exec,
		store:    w,
		table:    cfg.Table,
		now:      time.Now,
		logger:   log,
		metrics:  m,
		stats:    st,
		wake:     make(chan struct{}, 1),
	}
}

// Enqueue pushes a record on top of the interrupt stack
func (p *Processor) Enqueue(rows *payload.RowSet) {
	p.queue.Add(rows)
	p.reportDepth()
}

// Pending returns the number of records waiting to be drained
func (p *Processor) Pending() int {
	return p.queue.Len()
}

// Notify wakes the consumer started by Run; it never blocks
func (p *Processor) Notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Drain pops the most recent record, executes it, stamps one shared
// timestamp on all of its rows and inserts them into the history table.
// A failed write is not retried and the record is not re-queued. Once a
// record is popped it is carried through even if ctx is cancelled; ctx only
// contributes its values.
func (p *Processor) Drain(ctx context.Context) error {
	p.drainMu.Lock()
	defer p.drainMu.Unlock()

	rows, err := p.queue.Get()
	if err != nil {
		return err
	}
	p.reportDepth()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		p.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.ObserveDrainDuration(time.Since(start).Seconds())
		})
	}()

	result, err := p.executor.Execute(ctx, command.Input{Rows: rows})
	if err != nil {
		// execution is observational; the record is still written to history
		p.stats.IncErrors()
		p.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncCommandsTotal("interrupt", "error")
		})
		p.logger.Error("interrupt execution failed",
			"error", err,
			"rows", rows.Len())
	} else {
		p.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncCommandsTotal("interrupt", "success")
		})
		p.logger.Info("interrupt executed",
			"id", result.ID,
			"status", result.Status,
			"output", result.Output)
	}

	rows.SetColumn(TimestampColumn, p.now())

	if err := p.store.Write(ctx, store.ModeInsert, p.table, rows); err != nil {
		p.stats.IncErrors()
		p.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncInterruptsTotal("persist_error")
		})
		if !errors.Is(err, store.ErrPersistence) {
			err = fmt.Errorf("%w: %v", store.ErrPersistence, err)
		}
		return fmt.Errorf("failed to record interrupt in %s: %w", p.table, err)
	}

	p.stats.IncInterrupts()
	p.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncInterruptsTotal("persisted")
	})
	p.logger.Debug("interrupt recorded",
		"table", p.table,
		"rows", rows.Len())

	return nil
}

// DrainAll drains until the queue is empty. Persistence errors are logged
// and do not stop the loop.
func (p *Processor) DrainAll(ctx context.Context) {
	for ctx.Err() == nil {
		err := p.Drain(ctx)
		if errors.Is(err, queue.ErrEmptyQueue) {
			return
		}
		if err != nil {
			p.logger.Error("failed to drain interrupt", "error", err)
		}
	}
}

// Run is the dedicated consumer: every wake-up drains the stack until empty.
// It returns when ctx is cancelled.
func (p *Processor) Run(ctx context.Context) {
	p.logger.Debug("interrupt consumer started", "table", p.table)
	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("interrupt consumer stopped", "pending", p.Pending())
			return
		case <-p.wake:
			p.DrainAll(ctx)
		}
	}
}

func (p *Processor) reportDepth() {
	p.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetQueueDepth("interrupts", float64(p.queue.Len()))
	})
}

// safeMetricsUpdate safely updates metrics if they are enabled
func (p *Processor) safeMetricsUpdate(fn func(*metrics.Metrics)) {
	if p.metrics != nil {
		fn(p.metrics)
	}
}
