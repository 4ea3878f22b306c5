package report

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/dennisdiepolder/cdrboard/backend/internal/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrInvalidScope marks scopes whose date bounds cannot be parsed.
var ErrInvalidScope = errors.New("invalid query scope")

// Builder folds closed call sessions into the three aggregate views of a
// bundle: heatmap matrix, per-agent summary and hourly volume histogram.
type Builder struct {
	logger zerolog.Logger
}

// New creates a Builder.
func New(logger zerolog.Logger) *Builder {
	return &Builder{logger: logger.With().Str("component", "builder").Logger()}
}

// ValidateScope checks the scope's date bounds without building anything, so
// callers can reject a bad scope before paying for a log scan.
func (b *Builder) ValidateScope(scope types.QueryScope) error {
	_, _, err := scopeWindow(scope.Normalized())
	return err
}

// Build aggregates the sessions matching scope into an immutable bundle.
// Filtering happens before aggregation so summary totals reflect exactly the
// sessions in scope. Minute values accumulate unrounded and are rounded to
// one decimal only when the output rows are emitted.
//
// The hourly volume view is always queue-wide: it honors the date range but
// deliberately ignores the agent filter.
func (b *Builder) Build(sessions []types.CallSession, scope types.QueryScope, now time.Time) (*types.AggregateBundle, error) {
	scope = scope.Normalized()

	start, end, err := scopeWindow(scope)
	if err != nil {
		return nil, err
	}

	inDates := filterByDate(sessions, start, end)

	inScope := inDates
	if scope.AgentFilter != types.AgentAll {
		inScope = filterByAgent(inDates, scope.AgentFilter)
	}

	// heatmap[agent][date][hour] = connected seconds
	heat := make(map[string]map[string]map[int]float64)
	stats := make(map[string]*types.AgentSummary)
	hourly := make(map[int]int)
	dates := make(map[string]bool)
	agents := make(map[string]bool)
	totalRecords := 0

	for i := range inDates {
		s := &inDates[i]
		totalRecords += s.EventCount
		hourly[s.EnterTime.Hour()]++
		dates[s.EnterTime.Format(types.DateLayout)] = true
	}

	for i := range inScope {
		s := &inScope[i]

		// Sessions without a resolved agent stay queue-level: they are
		// visible in hourly volume and total_records only.
		if s.AgentID == "" {
			continue
		}
		// UNKNOWN outcomes have no outcome column; keeping them out of the
		// summary preserves total_calls == sum of the outcome counts.
		if s.Outcome == types.OutcomeUnknown {
			continue
		}

		agents[s.AgentID] = true

		sum, ok := stats[s.AgentID]
		if !ok {
			sum = &types.AgentSummary{Agent: s.AgentID}
			stats[s.AgentID] = sum
		}
		sum.TotalCalls++
		switch s.Outcome {
		case types.OutcomeAnswered:
			sum.Answered++
			sum.TotalDurationSec += s.DurationSeconds()
		case types.OutcomeAbandoned:
			sum.Abandoned++
		case types.OutcomeNoAnswer:
			sum.NoAnswer++
		case types.OutcomeBusy:
			sum.Busy++
		case types.OutcomeFailed:
			sum.Failed++
		}

		if s.Answered() && s.ConnectTime != nil {
			splitAcrossHours(heat, s)
		}
	}

	bundle := &types.AggregateBundle{
		BuildID:      uuid.New().String(),
		Agents:       sortedKeys(agents),
		Dates:        sortedKeys(dates),
		Heatmap:      emitHeatmap(heat, sortedKeys(agents), sortedKeys(dates)),
		AgentSummary: emitSummaries(stats),
		HourlyVolume: emitHourly(hourly),
		TotalRecords: totalRecords,
		GeneratedAt:  now,
	}

	b.logger.Debug().
		Str("scope", scope.Key()).
		Int("sessions_in_scope", len(inScope)).
		Int("agents", len(bundle.Agents)).
		Int("total_records", totalRecords).
		Msg("bundle built")

	return bundle, nil
}

// splitAcrossHours attributes a session's connected time to every
// (date, hour) bucket it overlaps, proportional to the overlap, so the
// per-bucket seconds of one session always sum to its total duration.
func splitAcrossHours(heat map[string]map[string]map[int]float64, s *types.CallSession) {
	cur := *s.ConnectTime
	end := s.EndTime

	for cur.Before(end) {
		// Hour boundaries follow the session's wall clock. Truncate aligns to
		// absolute hours and misplaces boundaries in zones with fractional
		// UTC offsets.
		bucketEnd := time.Date(cur.Year(), cur.Month(), cur.Day(), cur.Hour()+1, 0, 0, 0, cur.Location())
		if bucketEnd.After(end) {
			bucketEnd = end
		}

		date := cur.Format(types.DateLayout)
		hour := cur.Hour()

		byDate, ok := heat[s.AgentID]
		if !ok {
			byDate = make(map[string]map[int]float64)
			heat[s.AgentID] = byDate
		}
		byHour, ok := byDate[date]
		if !ok {
			byHour = make(map[int]float64)
			byDate[date] = byHour
		}
		byHour[hour] += bucketEnd.Sub(cur).Seconds()

		cur = bucketEnd
	}
}

func emitHeatmap(heat map[string]map[string]map[int]float64, agents, dates []string) []types.HeatmapRow {
	rows := make([]types.HeatmapRow, 0, len(agents)*len(dates))

	for _, agent := range agents {
		for _, date := range dates {
			hours := make(map[string]float64, 24)
			total := 0.0
			for h := 0; h < 24; h++ {
				seconds := heat[agent][date][h]
				hours[strconv.Itoa(h)] = round1(seconds / 60.0)
				total += seconds / 60.0
			}
			rows = append(rows, types.HeatmapRow{
				Agent:        agent,
				Date:         date,
				Hours:        hours,
				TotalMinutes: round1(total),
			})
		}
	}
	return rows
}

func emitSummaries(stats map[string]*types.AgentSummary) []types.AgentSummary {
	out := make([]types.AgentSummary, 0, len(stats))
	for _, sum := range stats {
		s := *sum
		s.TotalDurationSec = round1(s.TotalDurationSec)
		s.TotalDurationMin = round1(s.TotalDurationSec / 60.0)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Agent < out[j].Agent })
	return out
}

func emitHourly(hourly map[int]int) []types.HourlyVolume {
	out := make([]types.HourlyVolume, 0, 24)
	for h := 0; h < 24; h++ {
		out = append(out, types.HourlyVolume{Hour: h, Calls: hourly[h]})
	}
	return out
}

// scopeWindow parses the inclusive local calendar date range of a scope.
// Zero times mean unbounded.
func scopeWindow(scope types.QueryScope) (start, end time.Time, err error) {
	if scope.StartDate != "" {
		start, err = time.ParseInLocation(types.DateLayout, scope.StartDate, time.Local)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: bad start date %q", ErrInvalidScope, scope.StartDate)
		}
	}
	if scope.EndDate != "" {
		end, err = time.ParseInLocation(types.DateLayout, scope.EndDate, time.Local)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: bad end date %q", ErrInvalidScope, scope.EndDate)
		}
		// Inclusive end day.
		end = end.AddDate(0, 0, 1)
	}
	return start, end, nil
}

func filterByDate(sessions []types.CallSession, start, end time.Time) []types.CallSession {
	if start.IsZero() && end.IsZero() {
		return sessions
	}
	out := make([]types.CallSession, 0, len(sessions))
	for _, s := range sessions {
		if !start.IsZero() && s.EnterTime.Before(start) {
			continue
		}
		if !end.IsZero() && !s.EnterTime.Before(end) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func filterByAgent(sessions []types.CallSession, agent string) []types.CallSession {
	out := make([]types.CallSession, 0, len(sessions))
	for _, s := range sessions {
		if s.AgentID == agent {
			out = append(out, s)
		}
	}
	return out
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
