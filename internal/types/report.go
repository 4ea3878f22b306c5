package types

import (
	"strings"
	"time"
)

// DateLayout is the calendar-date format used by scopes and report axes.
const DateLayout = "2006-01-02"

// AgentAll is the agent filter value matching every agent.
const AgentAll = "ALL"

// QueryScope narrows an aggregation request. StartDate and EndDate are
// inclusive local calendar dates in DateLayout, empty meaning unbounded.
type QueryScope struct {
	AgentFilter string `json:"agentFilter"`
	StartDate   string `json:"startDate,omitempty"`
	EndDate     string `json:"endDate,omitempty"`
}

// Normalized returns a copy with the agent filter canonicalized so that
// equivalent scopes share one cache entry.
func (s QueryScope) Normalized() QueryScope {
	agent := strings.TrimSpace(s.AgentFilter)
	if agent == "" || strings.EqualFold(agent, AgentAll) {
		agent = AgentAll
	}
	return QueryScope{
		AgentFilter: agent,
		StartDate:   strings.TrimSpace(s.StartDate),
		EndDate:     strings.TrimSpace(s.EndDate),
	}
}

// Key is the cache key for the normalized scope.
func (s QueryScope) Key() string {
	n := s.Normalized()
	return "agent=" + n.AgentFilter + "|start=" + n.StartDate + "|end=" + n.EndDate
}

// HeatmapRow is one (agent, date) row of the heatmap matrix. Hours maps the
// hour-of-day ("0".."23") to connected minutes attributed to that bucket.
type HeatmapRow struct {
	Agent        string             `json:"agent"`
	Date         string             `json:"date"`
	Hours        map[string]float64 `json:"hours"`
	TotalMinutes float64            `json:"total_minutes"`
}

// AgentSummary is the per-agent outcome breakdown.
type AgentSummary struct {
	Agent            string  `json:"agent"`
	TotalCalls       int     `json:"total_calls"`
	TotalDurationSec float64 `json:"total_duration_sec"`
	TotalDurationMin float64 `json:"total_duration_min"`
	Answered         int     `json:"answered"`
	Abandoned        int     `json:"abandoned"`
	NoAnswer         int     `json:"no_answer"`
	Busy             int     `json:"busy"`
	Failed           int     `json:"failed"`
}

// HourlyVolume is the queue-wide call count for one hour of day, collapsed
// across all dates in scope.
type HourlyVolume struct {
	Hour  int `json:"hour"`
	Calls int `json:"calls"`
}

// AggregateBundle is the full set of aggregate views produced for one scope.
// A bundle is immutable once built; replacing a cache entry installs a new
// bundle, never mutates a published one.
type AggregateBundle struct {
	BuildID      string         `json:"build_id"`
	Agents       []string       `json:"agents"`
	Dates        []string       `json:"dates"`
	Heatmap      []HeatmapRow   `json:"heatmap"`
	AgentSummary []AgentSummary `json:"agent_summary"`
	HourlyVolume []HourlyVolume `json:"hourly_volume"`
	TotalRecords int            `json:"total_records"`
	GeneratedAt  time.Time      `json:"generated_at"`
}

// ScanStats counts the recoverable anomalies of one full log scan.
type ScanStats struct {
	LinesRead       int `json:"lines_read"`
	EventsParsed    int `json:"events_parsed"`
	SkippedLines    int `json:"skipped_lines"`
	OrphanedEvents  int `json:"orphaned_events"`
	DuplicateEvents int `json:"duplicate_events"`
	OpenFlushed     int `json:"open_flushed"`
}

// RefreshNotice is broadcast to websocket clients after a successful
// recomputation of the default scope.
type RefreshNotice struct {
	Type         string    `json:"type"` // always "report_refreshed"
	BuildID      string    `json:"buildId"`
	GeneratedAt  time.Time `json:"generatedAt"`
	TotalRecords int       `json:"totalRecords"`
	AgentCount   int       `json:"agentCount"`
	StartDate    string    `json:"startDate,omitempty"`
	EndDate      string    `json:"endDate,omitempty"`
}

// ArchivedCall is a closed, answered session flattened for DynamoDB
// persistence and the per-agent call drill-down.
type ArchivedCall struct {
	DateKey     string  `json:"dateKey" dynamodbav:"DateKey"` // YYYY-MM-DD (partition key)
	CallID      string  `json:"callId" dynamodbav:"CallID"`   // sort key
	QueueName   string  `json:"queueName" dynamodbav:"QueueName"`
	AgentID     string  `json:"agentId" dynamodbav:"AgentID"`
	EnterTime   string  `json:"enterTime" dynamodbav:"EnterTime"`     // RFC3339
	ConnectTime string  `json:"connectTime" dynamodbav:"ConnectTime"` // RFC3339
	EndTime     string  `json:"endTime" dynamodbav:"EndTime"`         // RFC3339
	WaitTime    float64 `json:"waitTime" dynamodbav:"WaitTime"`       // seconds
	TalkTime    float64 `json:"talkTime" dynamodbav:"TalkTime"`       // seconds
	Outcome     string  `json:"outcome" dynamodbav:"Outcome"`
}
