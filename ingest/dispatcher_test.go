package ingest

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"gamestore/api/models"
)

type fakeSessions struct {
	mu     sync.Mutex
	events []models.Event
	err    error
	panic  bool
}

func (f *fakeSessions) ApplyEvent(_ context.Context, e *models.Event) error {
	if f.panic {
		panic("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, *e)
	return f.err
}

func (f *fakeSessions) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type fakeRecent struct {
	mu    sync.Mutex
	views [][2]int64
}

func (f *fakeRecent) RecordView(_ context.Context, userID, gameID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.views = append(f.views, [2]int64{userID, gameID})
	return nil
}

type fakeRecorder struct {
	name string
	mu   sync.Mutex
	ids  []string
	err  error
}

func (f *fakeRecorder) Name() string { return f.name }

func (f *fakeRecorder) RecordEvent(_ context.Context, e *models.IngestedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, e.RequestID)
	return f.err
}

func (f *fakeRecorder) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...)
}

func viewEvent(gameID int64) models.Event {
	ts, _ := models.ParseNaiveTime("2024-01-01T10:00:00")
	return models.Event{
		UserID:    123,
		GameID:    &gameID,
		EventType: models.ViewEventType,
		SessionID: "s1",
		Timestamp: ts,
	}
}

func newTestDispatcher(t *testing.T, p Params) *Dispatcher {
	t.Helper()
	p.Logger = log.NewStdLogger(io.Discard)
	d, err := NewDispatcher(p)
	require.NoError(t, err)
	return d
}

func stop(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))
}

func TestNewDispatcherRequiresSessions(t *testing.T) {
	_, err := NewDispatcher(Params{Logger: log.NewStdLogger(io.Discard)})
	require.Error(t, err)
}

func TestDispatcherPersistsToEverySink(t *testing.T) {
	sessions := &fakeSessions{}
	recent := &fakeRecent{}
	pg := &fakeRecorder{name: "postgres"}
	ch := &fakeRecorder{name: "clickhouse"}
	d := newTestDispatcher(t, Params{
		Sessions:    sessions,
		RecentItems: recent,
		Recorders:   []EventRecorder{pg, ch},
		Options:     Options{Workers: 2, QueueSize: 8},
	})
	d.Start()

	id, err := d.Submit(context.Background(), viewEvent(42))
	require.NoError(t, err)
	require.NotEmpty(t, id)
	stop(t, d)

	require.Equal(t, 1, sessions.count())
	assert.Equal(t, [][2]int64{{123, 42}}, recent.views)
	assert.Equal(t, []string{id}, pg.recorded())
	assert.Equal(t, []string{id}, ch.recorded())
}

func TestDispatcherSkipsRecentItemsForNonViews(t *testing.T) {
	recent := &fakeRecent{}
	d := newTestDispatcher(t, Params{Sessions: &fakeSessions{}, RecentItems: recent})
	d.Start()

	click := viewEvent(42)
	click.EventType = "CLICK"
	noGame := viewEvent(0)
	noGame.GameID = nil
	for _, e := range []models.Event{click, noGame} {
		_, err := d.Submit(context.Background(), e)
		require.NoError(t, err)
	}
	stop(t, d)

	assert.Empty(t, recent.views)
}

func TestDispatcherStepFailureDoesNotSkipOthers(t *testing.T) {
	sessions := &fakeSessions{err: errors.New("redis down")}
	pg := &fakeRecorder{name: "postgres", err: errors.New("insert failed")}
	ch := &fakeRecorder{name: "clickhouse"}
	d := newTestDispatcher(t, Params{Sessions: sessions, Recorders: []EventRecorder{pg, ch}})
	d.Start()

	id, err := d.Submit(context.Background(), viewEvent(1))
	require.NoError(t, err)
	stop(t, d)

	assert.Equal(t, []string{id}, pg.recorded())
	assert.Equal(t, []string{id}, ch.recorded())
}

func TestDispatcherRecoversFromPanickingStep(t *testing.T) {
	ch := &fakeRecorder{name: "clickhouse"}
	d := newTestDispatcher(t, Params{Sessions: &fakeSessions{panic: true}, Recorders: []EventRecorder{ch}})
	d.Start()

	for i := 0; i < 3; i++ {
		_, err := d.Submit(context.Background(), viewEvent(int64(i+1)))
		require.NoError(t, err)
	}
	stop(t, d)

	assert.Len(t, ch.recorded(), 3)
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")

	ch := &fakeRecorder{name: "clickhouse"}
	d := newTestDispatcher(t, Params{
		Sessions:  &fakeSessions{},
		Recorders: []EventRecorder{ch},
		Options:   Options{Workers: 1, QueueSize: 1},
		Meter:     meter,
	})

	// Workers are not running yet, so the second submit finds the queue full.
	first, err := d.Submit(context.Background(), viewEvent(1))
	require.NoError(t, err)
	second, err := d.Submit(context.Background(), viewEvent(2))
	require.NoError(t, err)
	require.NotEmpty(t, second)
	require.NotEqual(t, first, second)

	d.Start()
	stop(t, d)

	assert.Equal(t, []string{first}, ch.recorded())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	assert.Equal(t, int64(1), sumCounter(t, rm, "ingest_accepted_total"))
	assert.Equal(t, int64(1), sumCounter(t, rm, "ingest_dropped_total"))
}

func TestDispatcherRejectsAfterStop(t *testing.T) {
	sessions := &fakeSessions{}
	d := newTestDispatcher(t, Params{Sessions: sessions, Options: Options{Workers: 1, QueueSize: 16}})
	d.Start()

	for i := 0; i < 10; i++ {
		_, err := d.Submit(context.Background(), viewEvent(int64(i+1)))
		require.NoError(t, err)
	}
	stop(t, d)
	assert.Equal(t, 10, sessions.count())

	_, err := d.Submit(context.Background(), viewEvent(99))
	require.ErrorIs(t, err, ErrDispatcherClosed)
	require.NoError(t, d.Stop(context.Background()))
}

func TestDispatcherCountsFailuresByStage(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")

	d := newTestDispatcher(t, Params{
		Sessions:  &fakeSessions{},
		Recorders: []EventRecorder{&fakeRecorder{name: "postgres", err: errors.New("nope")}},
		Meter:     meter,
	})
	d.Start()
	_, err := d.Submit(context.Background(), viewEvent(1))
	require.NoError(t, err)
	stop(t, d)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	assert.Equal(t, int64(1), sumCounter(t, rm, "ingest_task_failures_total"))
}

func sumCounter(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}
