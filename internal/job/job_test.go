package job

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/brmarket-history/internal/calendar"
	"github.com/rickgao/brmarket-history/internal/dataset"
	"github.com/rickgao/brmarket-history/internal/metrics"
	"github.com/rickgao/brmarket-history/internal/mirror"
	"github.com/rickgao/brmarket-history/internal/store"
	"github.com/rickgao/brmarket-history/internal/tradedate"
)

type fakeLedger struct {
	mu   sync.Mutex
	runs []mirror.Run
}

func (l *fakeLedger) Record(_ context.Context, r mirror.Run) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runs = append(l.runs, r)
	return nil
}

func (l *fakeLedger) byDataset() map[string]mirror.Run {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]mirror.Run, len(l.runs))
	for _, r := range l.runs {
		out[r.Dataset] = r
	}
	return out
}

type recorder struct {
	calls   atomic.Int32
	mu      sync.Mutex
	targets []time.Time
}

func (r *recorder) fetcher(err error) dataset.Fetcher {
	return dataset.FetcherFunc(func(_ context.Context, req dataset.Request) (dataframe.DataFrame, error) {
		r.calls.Add(1)
		r.mu.Lock()
		r.targets = append(r.targets, req.Target)
		r.mu.Unlock()
		if err != nil {
			return dataframe.DataFrame{}, err
		}
		return dataframe.New(
			series.New([]string{req.Target.Format(time.DateOnly)}, series.String, "date"),
			series.New([]string{"X"}, series.String, "key"),
			series.New([]float64{1.5}, series.Float, "value"),
		), nil
	})
}

func dsConfig(dir, name, onError string) dataset.Config {
	return dataset.Config{
		Name:        name,
		Path:        filepath.Join(dir, name+".parquet"),
		Keys:        []string{"date", "key"},
		Required:    []string{"date", "key", "value"},
		DateColumns: []string{"date"},
		OnError:     onError,
	}
}

// newRunner returns a Runner whose clock reads 2025-08-13 21:00 in São Paulo.
func newRunner(t *testing.T, datasets []Dataset, m *metrics.Metrics, ledger Ledger) *Runner {
	t.Helper()
	resolver, err := tradedate.NewResolver(tradedate.MarketTimezone, tradedate.CutoffHour)
	require.NoError(t, err)
	st, err := store.New(store.Options{})
	require.NoError(t, err)

	r := NewRunner(resolver, calendar.NewBrazil(), dataset.NewUpdater(st, nil, nil), datasets, m, ledger,
		Options{Concurrency: 2, Timeout: time.Minute}, nil)
	r.now = func() time.Time {
		return time.Date(2025, 8, 13, 21, 0, 0, 0, resolver.Location())
	}
	return r
}

func TestRun_AllDatasets(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	ledger := &fakeLedger{}
	m := metrics.New()

	r := newRunner(t, []Dataset{
		{Config: dsConfig(dir, "tpf", dataset.OnErrorFail), Fetcher: rec.fetcher(nil)},
		{Config: dsConfig(dir, "di1", dataset.OnErrorFail), Fetcher: rec.fetcher(nil)},
	}, m, ledger)

	report, err := r.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, calendar.Date(2025, 8, 13), report.Resolution.Target)
	require.Len(t, report.Results, 2)
	assert.Equal(t, "di1", report.Results[0].Dataset)
	assert.Equal(t, "tpf", report.Results[1].Dataset)
	assert.Empty(t, report.Failed)

	for _, name := range []string{"di1", "tpf"} {
		_, err := os.Stat(filepath.Join(dir, name+".parquet"))
		assert.NoError(t, err, name)
	}

	runs := ledger.byDataset()
	require.Len(t, runs, 2)
	assert.Equal(t, mirror.StatusOK, runs["di1"].Status)
	assert.Equal(t, report.RunID, runs["di1"].ID)
	assert.Equal(t, 1, runs["tpf"].Fetched)

	if got := testutil.ToFloat64(m.Runs.WithLabelValues(metrics.RunOK)); got != 1 {
		t.Errorf("runs ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Rows.WithLabelValues("di1")); got != 1 {
		t.Errorf("di1 rows = %v, want 1", got)
	}
}

func TestRun_FailurePolicy(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	ledger := &fakeLedger{}
	m := metrics.New()
	boom := errors.New("provider down")

	r := newRunner(t, []Dataset{
		{Config: dsConfig(dir, "di1", dataset.OnErrorFail), Fetcher: rec.fetcher(boom)},
		{Config: dsConfig(dir, "bcb_secondary", dataset.OnErrorLog), Fetcher: rec.fetcher(boom)},
		{Config: dsConfig(dir, "tpf", dataset.OnErrorFail), Fetcher: rec.fetcher(nil)},
	}, m, ledger)

	report, err := r.Run(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "di1")
	assert.NotContains(t, err.Error(), "bcb_secondary")

	assert.Equal(t, []string{"bcb_secondary", "di1"}, report.Failed)
	assert.Equal(t, int32(3), rec.calls.Load())

	// The sibling still completes.
	_, statErr := os.Stat(filepath.Join(dir, "tpf.parquet"))
	assert.NoError(t, statErr)
	_, statErr = os.Stat(filepath.Join(dir, "di1.parquet"))
	assert.True(t, os.IsNotExist(statErr))

	runs := ledger.byDataset()
	assert.Equal(t, mirror.StatusFailed, runs["di1"].Status)
	assert.Contains(t, runs["di1"].Error, "provider down")
	assert.Equal(t, mirror.StatusFailed, runs["bcb_secondary"].Status)
	assert.Equal(t, mirror.StatusOK, runs["tpf"].Status)

	if got := testutil.ToFloat64(m.Runs.WithLabelValues(metrics.RunFailed)); got != 1 {
		t.Errorf("runs failed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Errors.WithLabelValues("di1")); got != 1 {
		t.Errorf("di1 errors = %v, want 1", got)
	}
}

func TestRun_LogPolicyOnlyFailures(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}

	r := newRunner(t, []Dataset{
		{Config: dsConfig(dir, "bcb_secondary", dataset.OnErrorLog), Fetcher: rec.fetcher(errors.New("timeout"))},
	}, nil, nil)

	report, err := r.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"bcb_secondary"}, report.Failed)
}

func TestRun_DateOverride(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}

	r := newRunner(t, []Dataset{
		{Config: dsConfig(dir, "di1", dataset.OnErrorFail), Fetcher: rec.fetcher(nil)},
	}, nil, nil)

	date := time.Date(2025, 8, 1, 15, 30, 0, 0, time.UTC)
	report, err := r.Run(context.Background(), RunOptions{Date: date})
	require.NoError(t, err)

	assert.Equal(t, calendar.Date(2025, 8, 1), report.Resolution.Target)
	require.Len(t, rec.targets, 1)
	assert.Equal(t, calendar.Date(2025, 8, 1), rec.targets[0])
}

func TestRun_SkipsSpecialHoliday(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	ledger := &fakeLedger{}
	m := metrics.New()

	r := newRunner(t, []Dataset{
		{Config: dsConfig(dir, "di1", dataset.OnErrorFail), Fetcher: rec.fetcher(nil)},
	}, m, ledger)

	report, err := r.Run(context.Background(), RunOptions{Date: calendar.Date(2025, 12, 31)})
	require.NoError(t, err)

	assert.True(t, report.Resolution.Skip)
	assert.NotEmpty(t, report.Resolution.Reason)
	assert.Empty(t, report.Results)
	assert.Equal(t, int32(0), rec.calls.Load())
	assert.Empty(t, ledger.byDataset())

	if got := testutil.ToFloat64(m.Runs.WithLabelValues(metrics.RunSkipped)); got != 1 {
		t.Errorf("runs skipped = %v, want 1", got)
	}
}

func TestRun_Only(t *testing.T) {
	dir := t.TempDir()
	di1, tpf := &recorder{}, &recorder{}

	r := newRunner(t, []Dataset{
		{Config: dsConfig(dir, "di1", dataset.OnErrorFail), Fetcher: di1.fetcher(nil)},
		{Config: dsConfig(dir, "tpf", dataset.OnErrorFail), Fetcher: tpf.fetcher(nil)},
	}, nil, nil)

	report, err := r.Run(context.Background(), RunOptions{Only: []string{"tpf"}})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, "tpf", report.Results[0].Dataset)
	assert.Equal(t, int32(0), di1.calls.Load())
	assert.Equal(t, int32(1), tpf.calls.Load())
}

func TestRun_UnknownDataset(t *testing.T) {
	r := newRunner(t, []Dataset{
		{Config: dsConfig(t.TempDir(), "di1", dataset.OnErrorFail), Fetcher: (&recorder{}).fetcher(nil)},
	}, nil, nil)

	_, err := r.Run(context.Background(), RunOptions{Only: []string{"ntnb"}})
	assert.ErrorIs(t, err, ErrUnknownDataset)
}

func TestRun_EmptyFetchFails(t *testing.T) {
	dir := t.TempDir()
	empty := dataset.FetcherFunc(func(context.Context, dataset.Request) (dataframe.DataFrame, error) {
		return dataframe.DataFrame{}, nil
	})

	r := newRunner(t, []Dataset{
		{Config: dsConfig(dir, "di1", dataset.OnErrorFail), Fetcher: empty},
	}, nil, nil)

	_, err := r.Run(context.Background(), RunOptions{})
	assert.ErrorIs(t, err, dataset.ErrNoData)
}

func TestRun_BeforeCutoff(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	r := newRunner(t, []Dataset{
		{Config: dsConfig(dir, "di1", dataset.OnErrorFail), Fetcher: rec.fetcher(nil)},
	}, nil, nil)
	r.now = func() time.Time {
		return time.Date(2025, 8, 13, 9, 0, 0, 0, r.resolver.Location())
	}

	report, err := r.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, calendar.Date(2025, 8, 12), report.Resolution.Target)
}
