package refresh

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dennisdiepolder/cdrboard/backend/internal/metrics"
	"github.com/dennisdiepolder/cdrboard/backend/internal/storage"
	"github.com/dennisdiepolder/cdrboard/backend/internal/types"
	"github.com/rs/zerolog"
)

// Aggregator recomputes the default-scope bundle. Implemented by
// engine.Engine; the refresher never carries its own recomputation logic.
type Aggregator interface {
	Refresh(ctx context.Context) (*types.AggregateBundle, []types.CallSession, error)
	DefaultScope() types.QueryScope
}

// Notifier pushes refresh notices to connected dashboards.
type Notifier interface {
	Broadcast(message []byte)
	ClientCount() int
}

// Refresher keeps the default-scope bundle warm on a fixed interval. The
// manual trigger and the timer share one code path: Run.
type Refresher struct {
	engine   Aggregator
	store    storage.Store
	hub      Notifier
	interval time.Duration
	logger   zerolog.Logger
}

// NewRefresher creates a Refresher.
func NewRefresher(engine Aggregator, store storage.Store, hub Notifier, interval time.Duration, logger zerolog.Logger) *Refresher {
	return &Refresher{
		engine:   engine,
		store:    store,
		hub:      hub,
		interval: interval,
		logger:   logger.With().Str("component", "refresher").Logger(),
	}
}

// Start pre-warms the cache once, then refreshes on every tick until the
// context is cancelled.
func (r *Refresher) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.interval).Msg("refresher started")

	if _, err := r.Run(ctx); err != nil {
		r.logger.Error().Err(err).Msg("initial cache pre-warm failed")
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("refresher stopped")
			return

		case <-ticker.C:
			if _, err := r.Run(ctx); err != nil {
				r.logger.Error().Err(err).Msg("scheduled refresh failed")
			}
		}
	}
}

// Run performs one recomputation of the default scope, archives the answered
// sessions of the window, and notifies dashboards. Both the scheduler tick
// and the manual /refresh endpoint invoke this.
func (r *Refresher) Run(ctx context.Context) (*types.AggregateBundle, error) {
	m := metrics.Get()
	start := time.Now()

	bundle, sessions, err := r.engine.Refresh(ctx)
	if err != nil {
		m.RecordRefreshError()
		return nil, err
	}
	m.RecordRefreshCycle()

	if err := r.store.SaveCalls(archivable(sessions)); err != nil {
		// The archive is best-effort; a storage outage must not fail the
		// refresh that queries depend on.
		r.logger.Warn().Err(err).Msg("failed to archive call sessions")
	}

	r.notify(bundle)

	r.logger.Info().
		Str("build_id", bundle.BuildID).
		Int("total_records", bundle.TotalRecords).
		Int("agents", len(bundle.Agents)).
		Dur("took", time.Since(start)).
		Msg("default scope refreshed")

	return bundle, nil
}

func (r *Refresher) notify(bundle *types.AggregateBundle) {
	scope := r.engine.DefaultScope()
	notice := types.RefreshNotice{
		Type:         "report_refreshed",
		BuildID:      bundle.BuildID,
		GeneratedAt:  bundle.GeneratedAt,
		TotalRecords: bundle.TotalRecords,
		AgentCount:   len(bundle.Agents),
		StartDate:    scope.StartDate,
		EndDate:      scope.EndDate,
	}

	data, err := json.Marshal(notice)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to marshal refresh notice")
		return
	}

	r.hub.Broadcast(data)
	r.logger.Debug().
		Int("clients", r.hub.ClientCount()).
		Msg("refresh notice broadcasted")
}

// archivable flattens the answered sessions into archive records.
func archivable(sessions []types.CallSession) []types.ArchivedCall {
	calls := make([]types.ArchivedCall, 0, len(sessions))
	for i := range sessions {
		s := &sessions[i]
		if !s.Answered() || s.ConnectTime == nil {
			continue
		}
		calls = append(calls, types.ArchivedCall{
			DateKey:     s.EnterTime.Format(types.DateLayout),
			CallID:      s.CallID,
			QueueName:   s.QueueName,
			AgentID:     s.AgentID,
			EnterTime:   s.EnterTime.Format(time.RFC3339),
			ConnectTime: s.ConnectTime.Format(time.RFC3339),
			EndTime:     s.EndTime.Format(time.RFC3339),
			WaitTime:    s.ConnectTime.Sub(s.EnterTime).Seconds(),
			TalkTime:    s.DurationSeconds(),
			Outcome:     string(s.Outcome),
		})
	}
	return calls
}
