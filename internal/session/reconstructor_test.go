package session

import (
	"bytes"
	"testing"
	"time"

	"github.com/dennisdiepolder/cdrboard/backend/internal/types"
	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(&bytes.Buffer{})
}

func at(sec int64) time.Time {
	return time.Unix(1700000000+sec, 0)
}

func ev(sec int64, callID string, kind types.EventKind, agent string) types.CallEvent {
	return types.CallEvent{
		Timestamp: at(sec),
		CallID:    callID,
		QueueName: "support",
		AgentID:   agent,
		Kind:      kind,
	}
}

func TestRebuildOutcomes(t *testing.T) {
	tests := []struct {
		terminal types.EventKind
		want     types.Outcome
	}{
		{types.KindCompleteAgent, types.OutcomeAnswered},
		{types.KindCompleteCaller, types.OutcomeAnswered},
		{types.KindAbandon, types.OutcomeAbandoned},
		{types.KindRingNoAnswer, types.OutcomeNoAnswer},
		{types.KindExitTimeout, types.OutcomeNoAnswer},
		{types.KindBusy, types.OutcomeBusy},
		{types.KindFailed, types.OutcomeFailed},
	}

	r := New(testLogger())
	for _, tt := range tests {
		t.Run(string(tt.terminal), func(t *testing.T) {
			var stats types.ScanStats
			sessions := r.Rebuild([]types.CallEvent{
				ev(0, "c1", types.KindEnter, ""),
				ev(30, "c1", tt.terminal, "102"),
			}, &stats)

			if len(sessions) != 1 {
				t.Fatalf("expected 1 session, got %d", len(sessions))
			}
			if sessions[0].Outcome != tt.want {
				t.Errorf("outcome = %s, want %s", sessions[0].Outcome, tt.want)
			}
		})
	}
}

func TestRebuildAnsweredSession(t *testing.T) {
	r := New(testLogger())
	var stats types.ScanStats

	connect := ev(120, "c1", types.KindConnect, "102")
	connect.HoldTime = 120

	sessions := r.Rebuild([]types.CallEvent{
		ev(0, "c1", types.KindEnter, ""),
		connect,
		ev(330, "c1", types.KindCompleteAgent, "102"),
	}, &stats)

	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}

	s := sessions[0]
	if s.Outcome != types.OutcomeAnswered {
		t.Errorf("outcome = %s, want ANSWERED", s.Outcome)
	}
	if s.AgentID != "102" {
		t.Errorf("agent = %q, want 102", s.AgentID)
	}
	if s.ConnectTime == nil || !s.ConnectTime.Equal(at(120)) {
		t.Errorf("connect time = %v, want %v", s.ConnectTime, at(120))
	}
	if got := s.DurationSeconds(); got != 210 {
		t.Errorf("duration = %v seconds, want 210", got)
	}
	if s.HoldTime != 120 {
		t.Errorf("hold time = %d, want 120", s.HoldTime)
	}
	if s.EventCount != 3 {
		t.Errorf("event count = %d, want 3", s.EventCount)
	}
}

func TestRebuildSortsEvents(t *testing.T) {
	r := New(testLogger())
	var stats types.ScanStats

	// Terminal arrives before ENTER in file order; the rebuild must sort by
	// timestamp first.
	sessions := r.Rebuild([]types.CallEvent{
		ev(60, "c1", types.KindAbandon, ""),
		ev(0, "c1", types.KindEnter, ""),
	}, &stats)

	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if sessions[0].Outcome != types.OutcomeAbandoned {
		t.Errorf("outcome = %s, want ABANDONED", sessions[0].Outcome)
	}
	if stats.OrphanedEvents != 0 {
		t.Errorf("orphaned = %d, want 0", stats.OrphanedEvents)
	}
}

func TestRebuildOrphansAndDuplicates(t *testing.T) {
	r := New(testLogger())
	var stats types.ScanStats

	sessions := r.Rebuild([]types.CallEvent{
		ev(0, "c1", types.KindEnter, ""),
		ev(1, "c1", types.KindEnter, ""), // duplicate ENTER
		ev(10, "c2", types.KindConnect, "102"), // CONNECT without ENTER
		ev(30, "c1", types.KindCompleteCaller, "102"),
		ev(40, "c1", types.KindCompleteCaller, "102"), // terminal after close
		ev(50, "c3", types.KindAbandon, ""), // terminal for unseen call
	}, &stats)

	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if stats.DuplicateEvents != 2 {
		t.Errorf("duplicates = %d, want 2", stats.DuplicateEvents)
	}
	if stats.OrphanedEvents != 2 {
		t.Errorf("orphaned = %d, want 2", stats.OrphanedEvents)
	}
}

func TestRebuildFirstTerminalWins(t *testing.T) {
	r := New(testLogger())
	var stats types.ScanStats

	sessions := r.Rebuild([]types.CallEvent{
		ev(0, "c1", types.KindEnter, ""),
		ev(30, "c1", types.KindAbandon, ""),
		ev(60, "c1", types.KindCompleteAgent, "102"),
	}, &stats)

	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if sessions[0].Outcome != types.OutcomeAbandoned {
		t.Errorf("outcome = %s, want ABANDONED (first terminal wins)", sessions[0].Outcome)
	}
	if stats.DuplicateEvents != 1 {
		t.Errorf("duplicates = %d, want 1", stats.DuplicateEvents)
	}
}

func TestRebuildFlushesOpenSessions(t *testing.T) {
	r := New(testLogger())
	var stats types.ScanStats

	sessions := r.Rebuild([]types.CallEvent{
		ev(0, "c1", types.KindEnter, ""),
		ev(10, "c2", types.KindEnter, ""),
		ev(120, "c1", types.KindConnect, "102"),
	}, &stats)

	if len(sessions) != 2 {
		t.Fatalf("expected 2 flushed sessions, got %d", len(sessions))
	}
	for _, s := range sessions {
		if s.Outcome != types.OutcomeUnknown {
			t.Errorf("session %s outcome = %s, want UNKNOWN", s.CallID, s.Outcome)
		}
	}
	if stats.OpenFlushed != 2 {
		t.Errorf("open flushed = %d, want 2", stats.OpenFlushed)
	}
	// Flush order follows queue entry order.
	if sessions[0].CallID != "c1" || sessions[1].CallID != "c2" {
		t.Errorf("flush order = %s, %s; want c1, c2", sessions[0].CallID, sessions[1].CallID)
	}
}

func TestRebuildUnknownKindCountsAgainstOpenSession(t *testing.T) {
	r := New(testLogger())
	var stats types.ScanStats

	unknown := ev(15, "c1", types.KindUnknown, "")

	sessions := r.Rebuild([]types.CallEvent{
		ev(0, "c1", types.KindEnter, ""),
		unknown,
		ev(30, "c1", types.KindAbandon, ""),
		ev(40, "c9", types.KindUnknown, ""),
	}, &stats)

	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if sessions[0].EventCount != 3 {
		t.Errorf("event count = %d, want 3", sessions[0].EventCount)
	}
	if stats.OrphanedEvents != 1 {
		t.Errorf("orphaned = %d, want 1", stats.OrphanedEvents)
	}
}

func TestRebuildUnansweredHasZeroDuration(t *testing.T) {
	r := New(testLogger())
	var stats types.ScanStats

	sessions := r.Rebuild([]types.CallEvent{
		ev(0, "c1", types.KindEnter, ""),
		ev(45, "c1", types.KindAbandon, ""),
	}, &stats)

	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if got := sessions[0].DurationSeconds(); got != 0 {
		t.Errorf("duration = %v, want 0 for session without CONNECT", got)
	}
}
