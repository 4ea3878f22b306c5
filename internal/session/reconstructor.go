package session

import (
	"sort"

	"github.com/dennisdiepolder/cdrboard/backend/internal/types"
	"github.com/rs/zerolog"
)

// outcomes is the fixed decision table mapping the terminal event kind onto
// the session outcome.
var outcomes = map[types.EventKind]types.Outcome{
	types.KindCompleteAgent:  types.OutcomeAnswered,
	types.KindCompleteCaller: types.OutcomeAnswered,
	types.KindAbandon:        types.OutcomeAbandoned,
	types.KindRingNoAnswer:   types.OutcomeNoAnswer,
	types.KindExitTimeout:    types.OutcomeNoAnswer,
	types.KindBusy:           types.OutcomeBusy,
	types.KindFailed:         types.OutcomeFailed,
}

// Reconstructor pairs the events sharing a call id into CallSessions.
type Reconstructor struct {
	logger zerolog.Logger
}

// New creates a Reconstructor.
func New(logger zerolog.Logger) *Reconstructor {
	return &Reconstructor{logger: logger.With().Str("component", "reconstructor").Logger()}
}

// Rebuild streams the events in timestamp order and returns the closed
// sessions. Sessions still open at the end of the scan are flushed with
// OutcomeUnknown. Orphaned and duplicate events are counted in stats and
// never abort the rebuild.
func (r *Reconstructor) Rebuild(events []types.CallEvent, stats *types.ScanStats) []types.CallSession {
	ordered := make([]types.CallEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	open := make(map[string]*types.CallSession)
	closed := make([]types.CallSession, 0, len(ordered)/3)
	closedIDs := make(map[string]bool)
	openOrder := make([]string, 0, 64) // deterministic flush order

	for _, ev := range ordered {
		switch {
		case ev.Kind == types.KindEnter:
			if _, exists := open[ev.CallID]; exists {
				// Retransmitted ENTER for a call already in the queue.
				stats.DuplicateEvents++
				continue
			}
			open[ev.CallID] = &types.CallSession{
				CallID:     ev.CallID,
				QueueName:  ev.QueueName,
				EnterTime:  ev.Timestamp,
				EndTime:    ev.Timestamp,
				EventCount: 1,
			}
			openOrder = append(openOrder, ev.CallID)

		case ev.Kind == types.KindConnect:
			s, exists := open[ev.CallID]
			if !exists {
				stats.OrphanedEvents++
				continue
			}
			t := ev.Timestamp
			s.ConnectTime = &t
			s.EndTime = ev.Timestamp
			s.HoldTime = ev.HoldTime
			s.EventCount++
			if s.AgentID == "" {
				s.AgentID = ev.AgentID
			}

		case ev.Kind.IsTerminal():
			s, exists := open[ev.CallID]
			if !exists {
				// First terminal event observed wins; retransmissions for an
				// already-closed call are duplicates, the rest are orphans.
				if closedIDs[ev.CallID] {
					stats.DuplicateEvents++
				} else {
					stats.OrphanedEvents++
				}
				continue
			}
			s.EndTime = ev.Timestamp
			s.Outcome = outcomes[ev.Kind]
			s.EventCount++
			if s.AgentID == "" {
				s.AgentID = ev.AgentID
			}
			closed = append(closed, *s)
			closedIDs[ev.CallID] = true
			delete(open, ev.CallID)

		default:
			// Unknown kinds are quarantined: counted against the session if
			// one is open, otherwise orphaned.
			if s, exists := open[ev.CallID]; exists {
				s.EventCount++
			} else {
				stats.OrphanedEvents++
			}
		}
	}

	// Flush sessions that never saw a terminal event.
	for _, id := range openOrder {
		s, exists := open[id]
		if !exists {
			continue
		}
		s.Outcome = types.OutcomeUnknown
		closed = append(closed, *s)
		stats.OpenFlushed++
	}

	r.logger.Debug().
		Int("events", len(ordered)).
		Int("sessions", len(closed)).
		Int("orphaned", stats.OrphanedEvents).
		Int("duplicates", stats.DuplicateEvents).
		Msg("sessions reconstructed")

	return closed
}
