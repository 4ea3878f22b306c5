package types

import "time"

// Outcome classifies how a reconstructed call session ended.
type Outcome string

const (
	OutcomeAnswered  Outcome = "ANSWERED"
	OutcomeAbandoned Outcome = "ABANDONED"
	OutcomeNoAnswer  Outcome = "NO_ANSWER"
	OutcomeBusy      Outcome = "BUSY"
	OutcomeFailed    Outcome = "FAILED"
	OutcomeUnknown   Outcome = "UNKNOWN"
)

// CallSession is the reconstructed life of one call, from queue entry to its
// terminal outcome. Sessions still open when the scan ends carry
// OutcomeUnknown and a zero duration.
type CallSession struct {
	CallID      string     `json:"callId"`
	QueueName   string     `json:"queueName"`
	AgentID     string     `json:"agentId,omitempty"` // empty if never resolved
	EnterTime   time.Time  `json:"enterTime"`
	ConnectTime *time.Time `json:"connectTime,omitempty"`
	EndTime     time.Time  `json:"endTime"`
	Outcome     Outcome    `json:"outcome"`
	HoldTime    int        `json:"holdTime,omitempty"` // seconds, as reported by the log
	EventCount  int        `json:"eventCount"`
}

// DurationSeconds is the connected talk time: EndTime minus ConnectTime for
// sessions that reached an agent, zero otherwise.
func (s *CallSession) DurationSeconds() float64 {
	if s.ConnectTime == nil {
		return 0
	}
	d := s.EndTime.Sub(*s.ConnectTime).Seconds()
	if d < 0 {
		return 0
	}
	return d
}

// Answered reports whether the session ended with a completed conversation.
func (s *CallSession) Answered() bool {
	return s.Outcome == OutcomeAnswered
}
