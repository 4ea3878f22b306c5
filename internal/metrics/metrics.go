package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dennisdiepolder/cdrboard/backend/internal/types"
)

// Metrics holds all application metrics
type Metrics struct {
	mu sync.RWMutex

	// Scan pipeline metrics
	ScansTotal           int64
	ScanErrorsTotal      int64
	LinesReadTotal       int64
	EventsParsedTotal    int64
	LinesSkippedTotal    int64
	OrphanedEventsTotal  int64
	DuplicateEventsTotal int64
	SessionsFlushedTotal int64
	lastScanDuration     time.Duration
	lastScanStats        types.ScanStats

	// Cache metrics
	CacheHitsTotal   int64
	CacheMissesTotal int64

	// Refresh metrics
	RefreshCyclesTotal int64
	RefreshErrorsTotal int64

	// WebSocket metrics
	WebSocketConnectionsTotal    int64
	WebSocketDisconnectionsTotal int64
	activeConnections            int64

	// HTTP metrics
	httpRequestsTotal    map[string]map[int]int64 // endpoint -> status -> count
	httpRequestDurations map[string][]float64     // endpoint -> durations

	// Timing
	startTime time.Time
}

// Global metrics instance
var instance *Metrics
var once sync.Once

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			httpRequestsTotal:    make(map[string]map[int]int64),
			httpRequestDurations: make(map[string][]float64),
			startTime:            time.Now(),
		}
	})
	return instance
}

// RecordScan records one full log scan and its per-scan counters
func (m *Metrics) RecordScan(stats types.ScanStats, duration time.Duration) {
	m.mu.Lock()
	m.ScansTotal++
	m.LinesReadTotal += int64(stats.LinesRead)
	m.EventsParsedTotal += int64(stats.EventsParsed)
	m.LinesSkippedTotal += int64(stats.SkippedLines)
	m.OrphanedEventsTotal += int64(stats.OrphanedEvents)
	m.DuplicateEventsTotal += int64(stats.DuplicateEvents)
	m.SessionsFlushedTotal += int64(stats.OpenFlushed)
	m.lastScanDuration = duration
	m.lastScanStats = stats
	m.mu.Unlock()
}

// RecordScanError increments the scan error counter
func (m *Metrics) RecordScanError() {
	m.mu.Lock()
	m.ScanErrorsTotal++
	m.mu.Unlock()
}

// RecordCacheHit increments the cache hit counter
func (m *Metrics) RecordCacheHit() {
	m.mu.Lock()
	m.CacheHitsTotal++
	m.mu.Unlock()
}

// RecordCacheMiss increments the cache miss counter
func (m *Metrics) RecordCacheMiss() {
	m.mu.Lock()
	m.CacheMissesTotal++
	m.mu.Unlock()
}

// RecordRefreshCycle increments the refresh cycle counter
func (m *Metrics) RecordRefreshCycle() {
	m.mu.Lock()
	m.RefreshCyclesTotal++
	m.mu.Unlock()
}

// RecordRefreshError increments the refresh error counter
func (m *Metrics) RecordRefreshError() {
	m.mu.Lock()
	m.RefreshErrorsTotal++
	m.mu.Unlock()
}

// RecordWebSocketConnect increments connection counters
func (m *Metrics) RecordWebSocketConnect() {
	m.mu.Lock()
	m.WebSocketConnectionsTotal++
	m.activeConnections++
	m.mu.Unlock()
}

// RecordWebSocketDisconnect increments disconnection counter
func (m *Metrics) RecordWebSocketDisconnect() {
	m.mu.Lock()
	m.WebSocketDisconnectionsTotal++
	m.activeConnections--
	m.mu.Unlock()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(endpoint string, statusCode int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.httpRequestsTotal[endpoint] == nil {
		m.httpRequestsTotal[endpoint] = make(map[int]int64)
	}
	m.httpRequestsTotal[endpoint][statusCode]++

	// Keep last 100 durations for percentile calculation
	if len(m.httpRequestDurations[endpoint]) >= 100 {
		m.httpRequestDurations[endpoint] = m.httpRequestDurations[endpoint][1:]
	}
	m.httpRequestDurations[endpoint] = append(m.httpRequestDurations[endpoint], duration.Seconds())
}

// LastScan returns the stats and duration of the most recent scan
func (m *Metrics) LastScan() (types.ScanStats, time.Duration) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastScanStats, m.lastScanDuration
}

// GetActiveConnections returns current WebSocket connections
func (m *Metrics) GetActiveConnections() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeConnections
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		// Helper to write metric
		write := func(name string, value interface{}, labels ...string) {
			labelStr := ""
			if len(labels) > 0 {
				labelStr = "{"
				for i := 0; i < len(labels); i += 2 {
					if i > 0 {
						labelStr += ","
					}
					labelStr += labels[i] + "=\"" + labels[i+1] + "\""
				}
				labelStr += "}"
			}

			switch v := value.(type) {
			case int:
				w.Write([]byte(name + labelStr + " " + strconv.Itoa(v) + "\n"))
			case int64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatInt(v, 10) + "\n"))
			case float64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatFloat(v, 'f', 6, 64) + "\n"))
			}
		}

		// System metrics
		write("cdrboard_uptime_seconds", time.Since(m.startTime).Seconds())

		// Scan pipeline metrics
		write("cdrboard_scans_total", m.ScansTotal)
		write("cdrboard_scan_errors_total", m.ScanErrorsTotal)
		write("cdrboard_lines_read_total", m.LinesReadTotal)
		write("cdrboard_events_parsed_total", m.EventsParsedTotal)
		write("cdrboard_lines_skipped_total", m.LinesSkippedTotal)
		write("cdrboard_orphaned_events_total", m.OrphanedEventsTotal)
		write("cdrboard_duplicate_events_total", m.DuplicateEventsTotal)
		write("cdrboard_sessions_flushed_open_total", m.SessionsFlushedTotal)
		write("cdrboard_last_scan_duration_seconds", m.lastScanDuration.Seconds())

		// Cache metrics
		write("cdrboard_cache_hits_total", m.CacheHitsTotal)
		write("cdrboard_cache_misses_total", m.CacheMissesTotal)

		// Refresh metrics
		write("cdrboard_refresh_cycles_total", m.RefreshCyclesTotal)
		write("cdrboard_refresh_errors_total", m.RefreshErrorsTotal)

		// WebSocket metrics
		write("cdrboard_websocket_connections_total", m.WebSocketConnectionsTotal)
		write("cdrboard_websocket_disconnections_total", m.WebSocketDisconnectionsTotal)
		write("cdrboard_websocket_active_connections", m.activeConnections)

		// HTTP metrics
		for endpoint, statusCodes := range m.httpRequestsTotal {
			for status, count := range statusCodes {
				write("cdrboard_http_requests_total", count, "endpoint", endpoint, "status", strconv.Itoa(status))
			}
		}
	}
}
