package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/dennisdiepolder/cdrboard/backend/internal/types"
	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(&bytes.Buffer{})
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantOK  bool
		want    types.CallEvent
	}{
		{
			name:   "enterqueue",
			line:   "1700000000|call-1|support|NONE|ENTERQUEUE||1234567890|1",
			wantOK: true,
			want: types.CallEvent{
				Timestamp: time.Unix(1700000000, 0),
				CallID:    "call-1",
				QueueName: "support",
				AgentID:   "",
				Kind:      types.KindEnter,
			},
		},
		{
			name:   "connect with hold time",
			line:   "1700000060|call-1|support|PJSIP/102|CONNECT|60|1700000000",
			wantOK: true,
			want: types.CallEvent{
				Timestamp: time.Unix(1700000060, 0),
				CallID:    "call-1",
				QueueName: "support",
				AgentID:   "102",
				Kind:      types.KindConnect,
				HoldTime:  60,
			},
		},
		{
			name:   "completeagent with hold and talk time",
			line:   "1700000270|call-1|support|PJSIP/102|COMPLETEAGENT|60|210|1",
			wantOK: true,
			want: types.CallEvent{
				Timestamp: time.Unix(1700000270, 0),
				CallID:    "call-1",
				QueueName: "support",
				AgentID:   "102",
				Kind:      types.KindCompleteAgent,
				HoldTime:  60,
				TalkTime:  210,
			},
		},
		{
			name:   "fractional epoch truncated",
			line:   "1700000000.123456|call-2|support|NONE|ABANDON|1|1|10",
			wantOK: true,
			want: types.CallEvent{
				Timestamp: time.Unix(1700000000, 0),
				CallID:    "call-2",
				QueueName: "support",
				Kind:      types.KindAbandon,
			},
		},
		{
			name:   "wall clock timestamp",
			line:   "2024-03-01 10:00:00|call-3|sales|SIP/205|RINGNOANSWER|15000",
			wantOK: true,
			want: types.CallEvent{
				Timestamp: time.Date(2024, 3, 1, 10, 0, 0, 0, time.Local),
				CallID:    "call-3",
				QueueName: "sales",
				AgentID:   "205",
				Kind:      types.KindRingNoAnswer,
			},
		},
		{
			name:   "unlisted event becomes unknown",
			line:   "1700000000|call-4|support|NONE|TRANSFER|200",
			wantOK: true,
			want: types.CallEvent{
				Timestamp: time.Unix(1700000000, 0),
				CallID:    "call-4",
				QueueName: "support",
				Kind:      types.KindUnknown,
			},
		},
		{
			name:   "too few fields",
			line:   "1700000000|call-5|support",
			wantOK: false,
		},
		{
			name:   "empty call id",
			line:   "1700000000||support|NONE|ENTERQUEUE",
			wantOK: false,
		},
		{
			name:   "garbage timestamp",
			line:   "not-a-time|call-6|support|NONE|ENTERQUEUE",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseLine(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("parseLine(%q) ok = %v, want %v", tt.line, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseLine(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestExtFromAgent(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"PJSIP/102", "102"},
		{"SIP/205", "205"},
		{"Local/300@agents", "300"},
		{"NONE", ""},
		{"none", ""},
		{"", ""},
		{"operator", "operator"},
	}

	for _, tt := range tests {
		if got := extFromAgent(tt.raw); got != tt.want {
			t.Errorf("extFromAgent(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestParseCountsAnomalies(t *testing.T) {
	input := strings.Join([]string{
		"1700000000|call-1|support|NONE|ENTERQUEUE",
		"",
		"this is not a log line",
		"1700000060|call-1|support|PJSIP/102|CONNECT|60",
		"1700000270|call-1|support|PJSIP/102|COMPLETEAGENT|60|210",
	}, "\n")

	p := New(testLogger())
	var stats types.ScanStats

	events, err := p.Parse(context.Background(), strings.NewReader(input), &stats)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if len(events) != 3 {
		t.Errorf("expected 3 events, got %d", len(events))
	}
	if stats.LinesRead != 5 {
		t.Errorf("expected 5 lines read, got %d", stats.LinesRead)
	}
	if stats.EventsParsed != 3 {
		t.Errorf("expected 3 events parsed, got %d", stats.EventsParsed)
	}
	if stats.SkippedLines != 1 {
		t.Errorf("expected 1 skipped line, got %d", stats.SkippedLines)
	}
}

func TestParseIsRestartable(t *testing.T) {
	input := strings.Join([]string{
		"1700000000|call-1|support|NONE|ENTERQUEUE",
		"1700000060|call-1|support|PJSIP/102|CONNECT|60",
		"1700000270|call-1|support|PJSIP/102|COMPLETEAGENT|60|210",
		"1700000300|call-2|support|NONE|ENTERQUEUE",
		"1700000330|call-2|support|NONE|ABANDON|1|1|30",
	}, "\n")

	p := New(testLogger())

	var stats1, stats2 types.ScanStats
	first, err := p.Parse(context.Background(), strings.NewReader(input), &stats1)
	if err != nil {
		t.Fatalf("first Parse returned error: %v", err)
	}
	second, err := p.Parse(context.Background(), strings.NewReader(input), &stats2)
	if err != nil {
		t.Fatalf("second Parse returned error: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("re-parsing identical input produced different events")
	}
	if stats1 != stats2 {
		t.Errorf("re-parsing identical input produced different stats: %+v vs %+v", stats1, stats2)
	}
}

func TestParseStopsOnCancelledContext(t *testing.T) {
	var input strings.Builder
	for i := 0; i < 5000; i++ {
		fmt.Fprintf(&input, "%d|call-%d|support|NONE|ENTERQUEUE\n", 1700000000+i, i)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(testLogger())
	var stats types.ScanStats

	_, err := p.Parse(ctx, strings.NewReader(input.String()), &stats)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if stats.LinesRead >= 5000 {
		t.Errorf("scan read all %d lines despite cancellation", stats.LinesRead)
	}
}
