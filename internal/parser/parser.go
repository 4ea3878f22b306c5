package parser

import (
	"bufio"
	"context"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dennisdiepolder/cdrboard/backend/internal/types"
	"github.com/rs/zerolog"
)

// queue_log lines are pipe-separated:
//
//	epoch|callid|queuename|agent|event|data1|data2|data3|data4|data5
//
// The epoch may carry a fractional part (truncated to seconds). Some
// installations write wall-clock timestamps instead; both are accepted.
const minFields = 5

const wallClockLayout = "2006-01-02 15:04:05"

var digitsRe = regexp.MustCompile(`\d+`)

// rawKinds maps the raw queue_log event vocabulary onto the closed EventKind
// set. Unlisted names become KindUnknown.
var rawKinds = map[string]types.EventKind{
	"ENTERQUEUE":      types.KindEnter,
	"CONNECT":         types.KindConnect,
	"COMPLETEAGENT":   types.KindCompleteAgent,
	"COMPLETECALLER":  types.KindCompleteCaller,
	"ABANDON":         types.KindAbandon,
	"RINGNOANSWER":    types.KindRingNoAnswer,
	"EXITWITHTIMEOUT": types.KindExitTimeout,
	"BUSY":            types.KindBusy,
	"FAILED":          types.KindFailed,
}

// Parser converts raw queue_log content into typed CallEvents. Parsing is
// pure and restartable: re-scanning identical input yields identical output.
type Parser struct {
	logger zerolog.Logger
}

// New creates a Parser.
func New(logger zerolog.Logger) *Parser {
	return &Parser{logger: logger.With().Str("component", "parser").Logger()}
}

// ctxCheckInterval is how many lines pass between context checks during a
// scan.
const ctxCheckInterval = 1024

// Parse scans the full log and returns the events in file order. Lines that
// do not match the field grammar are counted in stats.SkippedLines and never
// abort the scan. A cancelled context aborts the scan between lines.
func (p *Parser) Parse(ctx context.Context, r io.Reader, stats *types.ScanStats) ([]types.CallEvent, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	events := make([]types.CallEvent, 0, 4096)
	for scanner.Scan() {
		stats.LinesRead++

		if stats.LinesRead%ctxCheckInterval == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		ev, ok := parseLine(line)
		if !ok {
			stats.SkippedLines++
			p.logger.Debug().Int("line", stats.LinesRead).Msg("skipped malformed line")
			continue
		}

		stats.EventsParsed++
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// parseLine parses a single queue_log row. It returns false for rows that do
// not satisfy the field grammar (log rotation artifacts, truncated writes).
func parseLine(line string) (types.CallEvent, bool) {
	fields := strings.Split(line, "|")
	if len(fields) < minFields {
		return types.CallEvent{}, false
	}

	ts, ok := parseTimestamp(fields[0])
	if !ok {
		return types.CallEvent{}, false
	}

	callID := strings.TrimSpace(fields[1])
	if callID == "" {
		return types.CallEvent{}, false
	}

	ev := types.CallEvent{
		Timestamp: ts,
		CallID:    callID,
		QueueName: strings.TrimSpace(fields[2]),
		AgentID:   extFromAgent(fields[3]),
		Kind:      kindOf(fields[4]),
	}

	// Outcome-specific payload: CONNECT reports the hold time in data1,
	// COMPLETE* report hold in data1 and talk in data2.
	switch ev.Kind {
	case types.KindConnect:
		ev.HoldTime = intField(fields, 5)
	case types.KindCompleteAgent, types.KindCompleteCaller:
		ev.HoldTime = intField(fields, 5)
		ev.TalkTime = intField(fields, 6)
	}

	return ev, true
}

func parseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	// Epoch seconds, fractional part tolerated.
	if !strings.Contains(raw, "-") {
		sec, _, _ := strings.Cut(raw, ".")
		n, err := strconv.ParseInt(sec, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(n, 0), true
	}

	if len(raw) >= len(wallClockLayout) {
		if t, err := time.ParseInLocation(wallClockLayout, raw[:len(wallClockLayout)], time.Local); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

// extFromAgent reduces an agent channel like "PJSIP/102" to the extension
// digits. "NONE" and empty agents yield "".
func extFromAgent(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "NONE") {
		return ""
	}
	if digits := digitsRe.FindString(raw); digits != "" {
		return digits
	}
	return raw
}

func kindOf(raw string) types.EventKind {
	if kind, ok := rawKinds[strings.ToUpper(strings.TrimSpace(raw))]; ok {
		return kind
	}
	return types.KindUnknown
}

func intField(fields []string, i int) int {
	if i >= len(fields) {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(fields[i]))
	if err != nil {
		return 0
	}
	return n
}
