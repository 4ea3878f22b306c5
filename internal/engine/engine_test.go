package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dennisdiepolder/cdrboard/backend/internal/cache"
	"github.com/dennisdiepolder/cdrboard/backend/internal/logsource"
	"github.com/dennisdiepolder/cdrboard/backend/internal/report"
	"github.com/dennisdiepolder/cdrboard/backend/internal/types"
	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(&bytes.Buffer{})
}

const sampleLog = `1700000000|call-1|support|NONE|ENTERQUEUE
1700000060|call-1|support|PJSIP/102|CONNECT|60
1700000270|call-1|support|PJSIP/102|COMPLETEAGENT|60|210
1700000300|call-2|support|NONE|ENTERQUEUE
1700000330|call-2|support|NONE|ABANDON|1|1|30
`

// stubSource serves an in-memory log, optionally delaying reads or failing.
type stubSource struct {
	mu      sync.Mutex
	data    string
	openErr error
	readErr error
	delay   time.Duration
	opens   int
}

func (s *stubSource) Open() (io.ReadCloser, error) {
	s.mu.Lock()
	s.opens++
	s.mu.Unlock()

	if s.openErr != nil {
		return nil, s.openErr
	}
	return io.NopCloser(&stubReader{
		inner:   strings.NewReader(s.data),
		readErr: s.readErr,
		delay:   s.delay,
	}), nil
}

func (s *stubSource) openCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

type stubReader struct {
	inner   *strings.Reader
	readErr error
	delay   time.Duration
	slept   bool
}

func (r *stubReader) Read(p []byte) (int, error) {
	if r.delay > 0 && !r.slept {
		r.slept = true
		time.Sleep(r.delay)
	}
	if r.readErr != nil {
		return 0, r.readErr
	}
	return r.inner.Read(p)
}

func newTestEngine(source logsource.Source) *Engine {
	return New(source, cache.NewBundleCache(8), Options{ComputeTimeout: 5 * time.Second}, testLogger())
}

func TestQueryMissThenCacheHit(t *testing.T) {
	source := &stubSource{data: sampleLog}
	eng := newTestEngine(source)
	scope := types.QueryScope{AgentFilter: types.AgentAll}

	first, err := eng.Query(context.Background(), scope)
	if err != nil {
		t.Fatalf("first Query returned error: %v", err)
	}
	if eng.ScanCount() != 1 {
		t.Fatalf("scan count = %d, want 1", eng.ScanCount())
	}

	second, err := eng.Query(context.Background(), scope)
	if err != nil {
		t.Fatalf("second Query returned error: %v", err)
	}
	if eng.ScanCount() != 1 {
		t.Errorf("scan count = %d after cached query, want 1", eng.ScanCount())
	}
	if first.BuildID != second.BuildID {
		t.Error("cached query must return the installed bundle")
	}
	if first.TotalRecords != 5 {
		t.Errorf("total_records = %d, want 5", first.TotalRecords)
	}
}

func TestQuerySingleFlight(t *testing.T) {
	source := &stubSource{data: sampleLog, delay: 100 * time.Millisecond}
	eng := newTestEngine(source)
	scope := types.QueryScope{AgentFilter: types.AgentAll}

	var wg sync.WaitGroup
	bundles := make([]*types.AggregateBundle, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			bundle, err := eng.Query(context.Background(), scope)
			if err != nil {
				t.Errorf("concurrent Query returned error: %v", err)
				return
			}
			bundles[n] = bundle
		}(i)
	}
	wg.Wait()

	if got := source.openCount(); got != 1 {
		t.Errorf("log opened %d times for concurrent same-scope queries, want 1", got)
	}
	for i := 1; i < len(bundles); i++ {
		if bundles[i] == nil || bundles[0] == nil || bundles[i].BuildID != bundles[0].BuildID {
			t.Fatal("all concurrent callers must observe the same bundle")
		}
	}
}

func TestQueryInvalidScopeCostsNoScan(t *testing.T) {
	source := &stubSource{data: sampleLog}
	eng := newTestEngine(source)

	_, err := eng.Query(context.Background(), types.QueryScope{StartDate: "01-03-2024"})
	if !errors.Is(err, report.ErrInvalidScope) {
		t.Fatalf("error = %v, want ErrInvalidScope", err)
	}
	if got := source.openCount(); got != 0 {
		t.Errorf("log opened %d times for a malformed scope, want 0", got)
	}
	if eng.ScanCount() != 0 {
		t.Errorf("scan count = %d, want 0", eng.ScanCount())
	}
}

func TestQueryUnreadableLog(t *testing.T) {
	source := &stubSource{openErr: errors.New("no such file")}
	eng := newTestEngine(source)

	_, err := eng.Query(context.Background(), types.QueryScope{})
	if !errors.Is(err, ErrLogUnavailable) {
		t.Errorf("error = %v, want ErrLogUnavailable", err)
	}
}

func TestQueryScanBudgetExceeded(t *testing.T) {
	source := &stubSource{readErr: logsource.ErrScanBudget}
	eng := newTestEngine(source)

	_, err := eng.Query(context.Background(), types.QueryScope{})
	if !errors.Is(err, ErrScanBudgetExceeded) {
		t.Errorf("error = %v, want ErrScanBudgetExceeded", err)
	}
}

func TestQueryComputeTimeout(t *testing.T) {
	source := &stubSource{data: sampleLog, delay: 500 * time.Millisecond}
	eng := New(source, cache.NewBundleCache(8), Options{ComputeTimeout: 20 * time.Millisecond}, testLogger())

	_, err := eng.Query(context.Background(), types.QueryScope{})
	if !errors.Is(err, ErrScanBudgetExceeded) {
		t.Errorf("error = %v, want ErrScanBudgetExceeded on timeout", err)
	}
}

func TestRefreshRecomputesUnconditionally(t *testing.T) {
	source := &stubSource{data: sampleLog}
	eng := newTestEngine(source)

	if _, _, err := eng.Refresh(context.Background()); err != nil {
		t.Fatalf("first Refresh returned error: %v", err)
	}
	_, sessions, err := eng.Refresh(context.Background())
	if err != nil {
		t.Fatalf("second Refresh returned error: %v", err)
	}

	if eng.ScanCount() != 2 {
		t.Errorf("scan count = %d, want 2 (refresh never serves from cache)", eng.ScanCount())
	}
	if len(sessions) != 2 {
		t.Errorf("sessions = %d, want 2", len(sessions))
	}
	if eng.CachedScopes() != 1 {
		t.Errorf("cached scopes = %d, want 1", eng.CachedScopes())
	}
}

func TestRecomputationIsDeterministic(t *testing.T) {
	source := &stubSource{data: sampleLog}
	eng := newTestEngine(source)

	first, _, err := eng.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	second, _, err := eng.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}

	// Identical input must yield identical aggregates; only the build
	// identity and timestamp differ between runs.
	a, b := *first, *second
	a.BuildID, b.BuildID = "", ""
	a.GeneratedAt, b.GeneratedAt = time.Time{}, time.Time{}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("recomputation not deterministic:\n%+v\nvs\n%+v", a, b)
	}
}
