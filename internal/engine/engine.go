package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dennisdiepolder/cdrboard/backend/internal/cache"
	"github.com/dennisdiepolder/cdrboard/backend/internal/logsource"
	"github.com/dennisdiepolder/cdrboard/backend/internal/metrics"
	"github.com/dennisdiepolder/cdrboard/backend/internal/parser"
	"github.com/dennisdiepolder/cdrboard/backend/internal/report"
	"github.com/dennisdiepolder/cdrboard/backend/internal/session"
	"github.com/dennisdiepolder/cdrboard/backend/internal/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Retryable failures surfaced to callers. They are distinct so callers can
// apply different backoff policies: an unreadable log usually clears on its
// own, a blown scan budget will not until the window shrinks.
var (
	ErrLogUnavailable     = errors.New("call event log unavailable")
	ErrScanBudgetExceeded = errors.New("recomputation exceeded its work budget")
)

// Engine is the public entry point of the aggregation pipeline. A query
// resolves to a cache lookup, or on a miss to one synchronous recomputation
// shared by all concurrent callers of the same scope.
type Engine struct {
	source     logsource.Source
	cache      *cache.BundleCache
	parser     *parser.Parser
	rebuilder  *session.Reconstructor
	builder    *report.Builder
	timeout    time.Duration
	windowDays int
	group      singleflight.Group
	logger     zerolog.Logger
	scans      atomic.Int64
}

// Options configures an Engine.
type Options struct {
	ComputeTimeout time.Duration // wall-clock bound per recomputation
	WindowDays     int           // rolling window of the default scope, 0 = unbounded
}

// New creates an Engine reading from source and caching into c.
func New(source logsource.Source, c *cache.BundleCache, opts Options, logger zerolog.Logger) *Engine {
	if opts.ComputeTimeout <= 0 {
		opts.ComputeTimeout = 30 * time.Second
	}
	return &Engine{
		source:     source,
		cache:      c,
		parser:     parser.New(logger),
		rebuilder:  session.New(logger),
		builder:    report.New(logger),
		timeout:    opts.ComputeTimeout,
		windowDays: opts.WindowDays,
		logger:     logger.With().Str("component", "engine").Logger(),
	}
}

// DefaultScope is the scope the refresh scheduler keeps warm: all agents over
// the rolling window.
func (e *Engine) DefaultScope() types.QueryScope {
	scope := types.QueryScope{AgentFilter: types.AgentAll}
	if e.windowDays > 0 {
		today := time.Now()
		scope.EndDate = today.Format(types.DateLayout)
		scope.StartDate = today.AddDate(0, 0, -e.windowDays).Format(types.DateLayout)
	}
	return scope.Normalized()
}

// Query returns the bundle for scope, serving from cache when possible. On a
// miss the full pipeline runs once regardless of how many callers are
// waiting, and every waiter observes the same bundle.
func (e *Engine) Query(ctx context.Context, scope types.QueryScope) (*types.AggregateBundle, error) {
	m := metrics.Get()
	scope = scope.Normalized()

	if bundle, ok := e.cache.Get(scope); ok {
		m.RecordCacheHit()
		return bundle, nil
	}
	m.RecordCacheMiss()

	bundle, _, err := e.recompute(ctx, scope, false)
	return bundle, err
}

// Refresh recomputes the default scope unconditionally and installs the new
// bundle. The scheduler and the manual trigger both land here; there is no
// second recomputation path. The closed sessions of the window are returned
// for archiving.
func (e *Engine) Refresh(ctx context.Context) (*types.AggregateBundle, []types.CallSession, error) {
	return e.recompute(ctx, e.DefaultScope(), true)
}

// ScanCount reports how many times the full pipeline has run.
func (e *Engine) ScanCount() int64 {
	return e.scans.Load()
}

// CachedScopes reports the number of scopes currently cached.
func (e *Engine) CachedScopes() int {
	return e.cache.Len()
}

// recompute runs parse -> reconstruct -> build for scope under the
// single-flight group, bounded by the compute timeout, and installs the
// result. With force false a bundle published by a just-finished flight is
// reused instead of scanning again.
func (e *Engine) recompute(ctx context.Context, scope types.QueryScope, force bool) (*types.AggregateBundle, []types.CallSession, error) {
	// A malformed scope must never cost a scan.
	if err := e.builder.ValidateScope(scope); err != nil {
		return nil, nil, err
	}

	type result struct {
		bundle   *types.AggregateBundle
		sessions []types.CallSession
	}

	v, err, shared := e.group.Do(scope.Key(), func() (interface{}, error) {
		if !force {
			if bundle, ok := e.cache.Get(scope); ok {
				return result{bundle: bundle}, nil
			}
		}

		bundle, sessions, err := e.runPipeline(ctx, scope)
		if err != nil {
			return nil, err
		}
		e.cache.Put(scope, bundle)
		return result{bundle: bundle, sessions: sessions}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	if shared {
		e.logger.Debug().Str("scope", scope.Key()).Msg("recomputation shared with in-flight caller")
	}

	res := v.(result)
	return res.bundle, res.sessions, nil
}

// runPipeline performs one bounded scan-and-aggregate pass.
func (e *Engine) runPipeline(ctx context.Context, scope types.QueryScope) (*types.AggregateBundle, []types.CallSession, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	m := metrics.Get()
	start := time.Now()
	e.scans.Add(1)

	type pipelineResult struct {
		bundle   *types.AggregateBundle
		sessions []types.CallSession
		stats    types.ScanStats
		err      error
	}

	done := make(chan pipelineResult, 1)
	go func() {
		var res pipelineResult

		rc, err := e.source.Open()
		if err != nil {
			res.err = fmt.Errorf("%w: %v", ErrLogUnavailable, err)
			done <- res
			return
		}
		defer rc.Close()

		events, err := e.parser.Parse(ctx, rc, &res.stats)
		if err != nil {
			switch {
			case errors.Is(err, logsource.ErrScanBudget),
				errors.Is(err, context.DeadlineExceeded),
				errors.Is(err, context.Canceled):
				res.err = fmt.Errorf("%w: %v", ErrScanBudgetExceeded, err)
			default:
				res.err = fmt.Errorf("%w: %v", ErrLogUnavailable, err)
			}
			done <- res
			return
		}

		res.sessions = e.rebuilder.Rebuild(events, &res.stats)
		res.bundle, res.err = e.builder.Build(res.sessions, scope, time.Now())
		done <- res
	}()

	select {
	case <-ctx.Done():
		m.RecordScanError()
		return nil, nil, fmt.Errorf("%w: %v", ErrScanBudgetExceeded, ctx.Err())
	case res := <-done:
		if res.err != nil {
			m.RecordScanError()
			return nil, nil, res.err
		}

		m.RecordScan(res.stats, time.Since(start))
		e.logger.Info().
			Str("scope", scope.Key()).
			Int("events", res.stats.EventsParsed).
			Int("skipped", res.stats.SkippedLines).
			Int("sessions", len(res.sessions)).
			Dur("took", time.Since(start)).
			Msg("aggregation pipeline completed")

		return res.bundle, res.sessions, nil
	}
}
