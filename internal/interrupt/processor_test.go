package interrupt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mqtt-dispatcher/internal/command"
	"mqtt-dispatcher/internal/logger"
	"mqtt-dispatcher/internal/metrics"
	"mqtt-dispatcher/internal/payload"
	"mqtt-dispatcher/internal/queue"
	"mqtt-dispatcher/internal/stats"
	"mqtt-dispatcher/internal/store"
)

type write struct {
	mode  store.Mode
	table string
	rows  *payload.RowSet
}

type memoryWriter struct {
	mu     sync.Mutex
	writes []write
	err    error
	active int
	maxAct int
}

func (w *memoryWriter) Write(ctx context.Context, mode store.Mode, table string, rows *payload.RowSet) error {
	w.mu.Lock()
	w.active++
	if w.active > w.maxAct {
		w.maxAct = w.active
	}
	w.mu.Unlock()

	time.Sleep(time.Millisecond)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.active--
	if w.err != nil {
		return w.err
	}
	w.writes = append(w.writes, write{mode: mode, table: table, rows: rows})
	return nil
}

func (w *memoryWriter) snapshot() []write {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]write, len(w.writes))
	copy(out, w.writes)
	return out
}

type recordingExecutor struct {
	mu     sync.Mutex
	inputs []command.Input
	err    error
}

func (e *recordingExecutor) Execute(ctx context.Context, in command.Input) (command.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inputs = append(e.inputs, in)
	if e.err != nil {
		return command.Result{}, e.err
	}
	return command.Result{ID: fmt.Sprintf("exec-%d", len(e.inputs)), Status: "ok"}, nil
}

func setupTestProcessor(t *testing.T) (*Processor, *recordingExecutor, *memoryWriter, *metrics.Metrics) {
	t.Helper()
	m, err := metrics.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	exec := &recordingExecutor{}
	w := &memoryWriter{}
	p := NewProcessor(Config{}, exec, w, logger.NewNop(), m, stats.NewStatsCollector())
	return p, exec, w, m
}

func mustRowSet(t *testing.T, raw string) *payload.RowSet {
	t.Helper()
	rs, err := payload.DecodeRowSet(raw)
	require.NoError(t, err)
	return rs
}

func TestDrainEmpty(t *testing.T) {
	p, exec, w, _ := setupTestProcessor(t)

	err := p.Drain(context.Background())
	assert.ErrorIs(t, err, queue.ErrEmptyQueue)
	assert.Empty(t, exec.inputs)
	assert.Empty(t, w.snapshot())
}

func TestDrainSharedTimestamp(t *testing.T) {
	p, exec, w, _ := setupTestProcessor(t)
	stamp := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	p.now = func() time.Time { return stamp }

	p.Enqueue(mustRowSet(t, `{'pin': [1, 2], 'state': ['on', 'off']}`))
	assert.Equal(t, 1, p.Pending())

	require.NoError(t, p.Drain(context.Background()))
	assert.Equal(t, 0, p.Pending())

	require.Len(t, exec.inputs, 1)
	assert.Equal(t, "interrupt", exec.inputs[0].Kind())
	assert.Empty(t, exec.inputs[0].Raw)

	writes := w.snapshot()
	require.Len(t, writes, 1)
	assert.Equal(t, store.ModeInsert, writes[0].mode)
	assert.Equal(t, DefaultTable, writes[0].table)

	rs := writes[0].rows
	require.Equal(t, 2, rs.Len())
	assert.Equal(t, []string{"pin", "state", TimestampColumn}, rs.Columns)
	for _, row := range rs.Rows {
		assert.Equal(t, stamp, row[TimestampColumn])
	}
	assert.Equal(t, int64(1), rs.Rows[0]["pin"])
	assert.Equal(t, "off", rs.Rows[1]["state"])

	assert.Equal(t, uint64(1), atomic.LoadUint64(&p.stats.InterruptsDrained))
}

func TestDrainLIFO(t *testing.T) {
	p, _, w, _ := setupTestProcessor(t)

	p.Enqueue(mustRowSet(t, `[{"id": "first"}]`))
	p.Enqueue(mustRowSet(t, `[{"id": "second"}]`))

	require.NoError(t, p.Drain(context.Background()))
	require.NoError(t, p.Drain(context.Background()))
	assert.ErrorIs(t, p.Drain(context.Background()), queue.ErrEmptyQueue)

	writes := w.snapshot()
	require.Len(t, writes, 2)
	assert.Equal(t, "second", writes[0].rows.Rows[0]["id"])
	assert.Equal(t, "first", writes[1].rows.Rows[0]["id"])
}

func TestDrainExecutorErrorStillPersists(t *testing.T) {
	p, exec, w, _ := setupTestProcessor(t)
	exec.err = errors.New("actuator offline")

	p.Enqueue(mustRowSet(t, `[{"pin": 4}]`))
	require.NoError(t, p.Drain(context.Background()))

	assert.Len(t, w.snapshot(), 1)
	assert.Equal(t, uint64(1), atomic.LoadUint64(&p.stats.Errors))
	assert.Equal(t, uint64(1), atomic.LoadUint64(&p.stats.InterruptsDrained))
}

func TestDrainPersistenceFailureNotRequeued(t *testing.T) {
	p, _, w, _ := setupTestProcessor(t)
	w.err = fmt.Errorf("%w: disk full", store.ErrPersistence)

	p.Enqueue(mustRowSet(t, `[{"pin": 4}]`))
	err := p.Drain(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrPersistence)
	assert.Equal(t, 0, p.Pending())
	assert.Equal(t, uint64(0), atomic.LoadUint64(&p.stats.InterruptsDrained))

	// a writer that does not use the sentinel is still reported as a persistence error
	w.err = errors.New("boom")
	p.Enqueue(mustRowSet(t, `[{"pin": 5}]`))
	assert.ErrorIs(t, p.Drain(context.Background()), store.ErrPersistence)
}

func TestDrainAllContinuesAfterFailure(t *testing.T) {
	p, _, w, _ := setupTestProcessor(t)
	w.err = errors.New("locked")

	p.Enqueue(mustRowSet(t, `[{"pin": 1}]`))
	p.Enqueue(mustRowSet(t, `[{"pin": 2}]`))
	p.DrainAll(context.Background())

	assert.Equal(t, 0, p.Pending())
}

func TestRunDrainsOnNotify(t *testing.T) {
	p, _, w, _ := setupTestProcessor(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	for i := 0; i < 5; i++ {
		p.Enqueue(mustRowSet(t, fmt.Sprintf(`[{"seq": %d}]`, i)))
		p.Notify()
	}

	assert.Eventually(t, func() bool {
		return len(w.snapshot()) == 5
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, p.Pending())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestConcurrentDrainsSerialized(t *testing.T) {
	p, _, w, _ := setupTestProcessor(t)
	for i := 0; i < 20; i++ {
		p.Enqueue(mustRowSet(t, fmt.Sprintf(`[{"seq": %d}]`, i)))
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.DrainAll(context.Background())
		}()
	}
	wg.Wait()

	assert.Len(t, w.snapshot(), 20)
	assert.Equal(t, 1, w.maxAct, "writes must never overlap")
}

func TestNotifyNeverBlocks(t *testing.T) {
	p, _, _, _ := setupTestProcessor(t)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			p.Notify()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked without a consumer")
	}
}

// ctxWriter takes delay to write and gives up when its context ends
type ctxWriter struct {
	delay   time.Duration
	started chan struct{}
	once    sync.Once
	written atomic.Int32
	aborted atomic.Int32
}

func (w *ctxWriter) Write(ctx context.Context, mode store.Mode, table string, rows *payload.RowSet) error {
	w.once.Do(func() { close(w.started) })
	select {
	case <-time.After(w.delay):
		w.written.Add(1)
		return nil
	case <-ctx.Done():
		w.aborted.Add(1)
		return ctx.Err()
	}
}

func TestDrainSurvivesConsumerCancel(t *testing.T) {
	w := &ctxWriter{delay: 50 * time.Millisecond, started: make(chan struct{})}
	p := NewProcessor(Config{}, &recordingExecutor{}, w, logger.NewNop(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	p.Enqueue(mustRowSet(t, `[{"pin": 1}]`))
	p.Notify()

	select {
	case <-w.started:
	case <-time.After(time.Second):
		t.Fatal("drain never reached the writer")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Equal(t, int32(1), w.written.Load(), "popped record must still be written")
	assert.Equal(t, int32(0), w.aborted.Load())
	assert.Equal(t, uint64(1), atomic.LoadUint64(&p.stats.InterruptsDrained))
}

func TestDrainWithCancelledContext(t *testing.T) {
	w := &ctxWriter{delay: time.Millisecond, started: make(chan struct{})}
	p := NewProcessor(Config{}, &recordingExecutor{}, w, logger.NewNop(), nil, nil)
	p.Enqueue(mustRowSet(t, `[{"pin": 1}]`))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Drain(ctx))
	assert.Equal(t, int32(1), w.written.Load())
}
