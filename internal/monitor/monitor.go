// Package monitor implements spec.md §4.10: a background sampling loop
// over the engine's traffic/memory/connections endpoints, bounded
// ring-buffer history, threshold-based health classification, and an
// event log. Grounded almost directly on
// _examples/original_source/src/monitor.rs's Monitor (thresholds,
// health classification, and the 1000-entry event cap all match
// exactly); Event IDs and an optional SQLite overflow store are
// supplemented per SPEC_FULL.md §4.C.
package monitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/DINGDANGMAOUP/mihomo-rs/internal/mherr"
	"github.com/DINGDANGMAOUP/mihomo-rs/internal/mihomo"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	_ "github.com/glebarez/go-sqlite"
)

// EventType enumerates the kinds of events the monitor records.
type EventType string

const (
	EventSystemStart       EventType = "SystemStart"
	EventSystemStop        EventType = "SystemStop"
	EventConfigChange      EventType = "ConfigChange"
	EventProxySwitch       EventType = "ProxySwitch"
	EventConnectionAnomaly EventType = "ConnectionAnomaly"
	EventMemoryAlert       EventType = "MemoryAlert"
	EventTrafficAlert      EventType = "TrafficAlert"
	EventHealthCheckFailed EventType = "HealthCheckFailed"
	EventPerformanceAlert  EventType = "PerformanceAlert"
)

// EventLevel is ordered Debug < Info < Warning < Error < Critical, so
// "at least this severe" filters (GetEventsByLevel) can use a plain
// integer comparison, matching original_source's derived Ord on
// EventLevel.
type EventLevel int

const (
	LevelDebug EventLevel = iota
	LevelInfo
	LevelWarning
	LevelError
	LevelCritical
)

func (l EventLevel) String() string {
	switch l {
	case LevelDebug:
		return "Debug"
	case LevelInfo:
		return "Info"
	case LevelWarning:
		return "Warning"
	case LevelError:
		return "Error"
	case LevelCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// Event is a single recorded monitor occurrence.
type Event struct {
	ID        string
	Timestamp time.Time
	Type      EventType
	Level     EventLevel
	Message   string
	Data      json.RawMessage
}

// TrafficSnapshot is one sampled point of /traffic.
type TrafficSnapshot struct {
	Timestamp time.Time
	Up        uint64
	Down      uint64
}

// MemorySnapshot is one sampled point of /memory.
type MemorySnapshot struct {
	Timestamp      time.Time
	InUse          uint64
	OSLimit        uint64
	UsagePercent   float64
}

// ConnectionSnapshot is one sampled point of /connections.
type ConnectionSnapshot struct {
	Timestamp           time.Time
	ActiveConnections   int
	ConnectionsByProxy  map[string]int
	ConnectionsByProto  map[string]int
}

// History holds the ring-buffer of recent snapshots and events, pruned
// to Config.HistoryRetention on every sampling tick.
type History struct {
	Traffic     []TrafficSnapshot
	Memory      []MemorySnapshot
	Connections []ConnectionSnapshot
	Events      []Event
}

// HealthStatus classifies overall system health (spec.md §4.10).
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthWarning   HealthStatus = "warning"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthUnknown   HealthStatus = "unknown"
)

// SystemStatus is the getSystemStatus snapshot.
type SystemStatus struct {
	Version            mihomo.Version
	Traffic            mihomo.Traffic
	Memory             mihomo.Memory
	ActiveConnections  int
	Health             HealthStatus
}

// PerformanceStats summarizes recent event activity over a window
// (spec.md §4.10 getPerformanceStats).
type PerformanceStats struct {
	TotalEvents float64
	SuccessRate float64
	ErrorRate   float64
}

// Config mirrors original_source's MonitorConfig exactly, including its
// default thresholds.
type Config struct {
	Interval                time.Duration
	HistoryRetention        time.Duration
	EnableConnectionMonitor bool
	EnableTrafficMonitor    bool
	EnableMemoryMonitor     bool
	ConnectionThreshold     *int
	MemoryThreshold         *uint64
	TrafficThreshold        *uint64
	// DBPath, if non-empty, enables the supplementary SQLite overflow
	// store for events evicted from the in-memory 1000-entry cap
	// (SPEC_FULL.md §4.C).
	DBPath string
}

func intPtr(v int) *int          { return &v }
func u64Ptr(v uint64) *uint64    { return &v }

// DefaultConfig matches original_source/src/monitor.rs's
// impl Default for MonitorConfig.
func DefaultConfig() Config {
	return Config{
		Interval:                10 * time.Second,
		HistoryRetention:        time.Hour,
		EnableConnectionMonitor: true,
		EnableTrafficMonitor:    true,
		EnableMemoryMonitor:     true,
		ConnectionThreshold:     intPtr(1000),
		MemoryThreshold:         u64Ptr(1024 * 1024 * 1024),
		TrafficThreshold:        u64Ptr(100 * 1024 * 1024),
	}
}

// Monitor samples the engine's telemetry endpoints on an interval and
// maintains bounded history plus an event log (spec.md §4.10).
type Monitor struct {
	client *mihomo.Client
	cfg    Config

	mu        sync.Mutex
	history   History
	isRunning bool
	cancel    context.CancelFunc

	db *sql.DB
}

// New builds a Monitor with DefaultConfig.
func New(client *mihomo.Client) *Monitor {
	return &Monitor{client: client, cfg: DefaultConfig()}
}

// WithConfig builds a Monitor with a custom Config, opening the
// optional SQLite overflow store if cfg.DBPath is set.
func WithConfig(client *mihomo.Client, cfg Config) (*Monitor, error) {
	m := &Monitor{client: client, cfg: cfg}
	if cfg.DBPath != "" {
		db, err := sql.Open("sqlite", cfg.DBPath)
		if err != nil {
			return nil, mherr.System("monitor.WithConfig", "opening overflow store", err)
		}
		if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			timestamp TEXT,
			type TEXT,
			level INTEGER,
			message TEXT,
			data TEXT
		)`); err != nil {
			db.Close()
			return nil, mherr.System("monitor.WithConfig", "creating overflow schema", err)
		}
		m.db = db
	}
	return m, nil
}

// Close releases the overflow store, if one is open.
func (m *Monitor) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// Start launches the sampling loop in a background goroutine. Returns
// an error if already running (spec.md §4.10).
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return mherr.Internal("monitor.Start", "monitor is already running")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.isRunning = true
	m.cancel = cancel
	m.mu.Unlock()

	m.addEvent(EventSystemStart, LevelInfo, "Monitor started", nil)
	go m.loop(loopCtx)
	return nil
}

// Stop halts the sampling loop.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = false
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.addEvent(EventSystemStop, LevelInfo, "Monitor stopped", nil)
}

func (m *Monitor) loop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.collectMetrics(ctx); err != nil {
				m.addEvent(EventHealthCheckFailed, LevelError, fmt.Sprintf("metrics collection failed: %v", err), nil)
			}
			m.cleanupHistory()
		}
	}
}

func (m *Monitor) collectMetrics(ctx context.Context) error {
	now := time.Now()

	if m.cfg.EnableTrafficMonitor {
		if seq, err := m.client.TrafficStream(ctx); err == nil {
			if item, ok := seq.Pull(); ok && item.Err == nil {
				var tr mihomo.Traffic
				if json.Unmarshal(item.Data, &tr) == nil {
					m.recordTraffic(now, tr)
				}
			}
			seq.Close()
		}
	}

	if m.cfg.EnableMemoryMonitor {
		if seq, err := m.client.MemoryStream(ctx); err == nil {
			if item, ok := seq.Pull(); ok && item.Err == nil {
				var mem mihomo.Memory
				if json.Unmarshal(item.Data, &mem) == nil {
					m.recordMemory(now, mem)
				}
			}
			seq.Close()
		}
	}

	if m.cfg.EnableConnectionMonitor {
		resp, err := m.client.Connections(ctx)
		if err == nil {
			m.recordConnections(now, resp)
		}
	}

	return nil
}

func (m *Monitor) recordTraffic(now time.Time, tr mihomo.Traffic) {
	m.mu.Lock()
	m.history.Traffic = append(m.history.Traffic, TrafficSnapshot{Timestamp: now, Up: tr.Up, Down: tr.Down})
	m.mu.Unlock()

	if m.cfg.TrafficThreshold != nil && (tr.Up > *m.cfg.TrafficThreshold || tr.Down > *m.cfg.TrafficThreshold) {
		m.addEvent(EventTrafficAlert, LevelWarning,
			fmt.Sprintf("high traffic detected: up=%s, down=%s", humanize.Bytes(tr.Up), humanize.Bytes(tr.Down)), nil)
	}
}

func (m *Monitor) recordMemory(now time.Time, mem mihomo.Memory) {
	pct := 0.0
	if mem.OSLimit > 0 {
		pct = float64(mem.InUse) / float64(mem.OSLimit) * 100.0
	}
	m.mu.Lock()
	m.history.Memory = append(m.history.Memory, MemorySnapshot{Timestamp: now, InUse: mem.InUse, OSLimit: mem.OSLimit, UsagePercent: pct})
	m.mu.Unlock()

	if m.cfg.MemoryThreshold != nil && mem.InUse > *m.cfg.MemoryThreshold {
		m.addEvent(EventMemoryAlert, LevelWarning,
			fmt.Sprintf("high memory usage: %s (%.1f%%)", humanize.Bytes(mem.InUse), pct), nil)
	}
}

func (m *Monitor) recordConnections(now time.Time, resp mihomo.ConnectionsResponse) {
	byProxy := map[string]int{}
	byProto := map[string]int{}
	for _, c := range resp.Connections {
		if len(c.Chains) > 0 {
			byProxy[c.Chains[0]]++
		}
		byProto[c.Metadata.Network]++
	}
	m.mu.Lock()
	m.history.Connections = append(m.history.Connections, ConnectionSnapshot{
		Timestamp:          now,
		ActiveConnections:  len(resp.Connections),
		ConnectionsByProxy: byProxy,
		ConnectionsByProto: byProto,
	})
	m.mu.Unlock()

	if m.cfg.ConnectionThreshold != nil && len(resp.Connections) > *m.cfg.ConnectionThreshold {
		m.addEvent(EventConnectionAnomaly, LevelWarning,
			fmt.Sprintf("high connection count: %d", len(resp.Connections)), nil)
	}
}

// GetSystemStatus fetches a fresh snapshot of version/traffic/memory/
// connections and classifies health (spec.md §4.10 getSystemStatus).
func (m *Monitor) GetSystemStatus(ctx context.Context) (SystemStatus, error) {
	v, err := m.client.Version(ctx)
	if err != nil {
		return SystemStatus{}, err
	}

	var traffic mihomo.Traffic
	if seq, err := m.client.TrafficStream(ctx); err == nil {
		if item, ok := seq.Pull(); ok && item.Err == nil {
			json.Unmarshal(item.Data, &traffic)
		}
		seq.Close()
	}

	var mem mihomo.Memory
	if seq, err := m.client.MemoryStream(ctx); err == nil {
		if item, ok := seq.Pull(); ok && item.Err == nil {
			json.Unmarshal(item.Data, &mem)
		}
		seq.Close()
	}

	conns, err := m.client.Connections(ctx)
	if err != nil {
		return SystemStatus{}, err
	}

	health := m.calculateHealth(traffic, mem, len(conns.Connections))

	return SystemStatus{
		Version:           v,
		Traffic:           traffic,
		Memory:            mem,
		ActiveConnections: len(conns.Connections),
		Health:            health,
	}, nil
}

// calculateHealth implements spec.md §4.10's exact thresholds: Warning
// at 1x a threshold, Unhealthy at 2x, for memory and connections;
// traffic only ever contributes a Warning (original_source never
// escalates traffic to an error-level condition).
func (m *Monitor) calculateHealth(traffic mihomo.Traffic, mem mihomo.Memory, connCount int) HealthStatus {
	warnings, errors := 0, 0

	if m.cfg.MemoryThreshold != nil && mem.InUse > *m.cfg.MemoryThreshold {
		if mem.InUse > *m.cfg.MemoryThreshold*2 {
			errors++
		} else {
			warnings++
		}
	}

	if m.cfg.ConnectionThreshold != nil && connCount > *m.cfg.ConnectionThreshold {
		if connCount > *m.cfg.ConnectionThreshold*2 {
			errors++
		} else {
			warnings++
		}
	}

	if m.cfg.TrafficThreshold != nil && (traffic.Up > *m.cfg.TrafficThreshold || traffic.Down > *m.cfg.TrafficThreshold) {
		warnings++
	}

	switch {
	case errors > 0:
		return HealthUnhealthy
	case warnings > 0:
		return HealthWarning
	default:
		return HealthHealthy
	}
}

// GetPerformanceStats summarizes event activity within the last window
// (spec.md §4.10 getPerformanceStats): success/error rate derived from
// how many recent events are Error level or more severe.
func (m *Monitor) GetPerformanceStats(window time.Duration) PerformanceStats {
	cutoff := time.Now().Add(-window)
	m.mu.Lock()
	defer m.mu.Unlock()

	var total, errorCount float64
	for _, e := range m.history.Events {
		if e.Timestamp.Before(cutoff) {
			continue
		}
		total++
		if e.Level >= LevelError {
			errorCount++
		}
	}

	if total == 0 {
		return PerformanceStats{TotalEvents: 0, SuccessRate: 100, ErrorRate: 0}
	}
	return PerformanceStats{
		TotalEvents: total,
		SuccessRate: (total - errorCount) / total * 100,
		ErrorRate:   errorCount / total * 100,
	}
}

// addEvent records an event, capping the in-memory log at 1000 entries
// (spec.md §4.10) and, if an overflow store is configured, persisting
// evicted events there instead of discarding them (SPEC_FULL.md §4.C).
func (m *Monitor) addEvent(typ EventType, level EventLevel, message string, data json.RawMessage) {
	event := Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Type:      typ,
		Level:     level,
		Message:   message,
		Data:      data,
	}

	m.mu.Lock()
	m.history.Events = append(m.history.Events, event)
	var evicted *Event
	if len(m.history.Events) > 1000 {
		evicted = &m.history.Events[0]
		m.history.Events = m.history.Events[1:]
	}
	m.mu.Unlock()

	if evicted != nil && m.db != nil {
		m.persistEvent(*evicted)
	}
}

func (m *Monitor) persistEvent(e Event) {
	_, _ = m.db.Exec(`INSERT OR REPLACE INTO events (id, timestamp, type, level, message, data) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.Format(time.RFC3339Nano), string(e.Type), int(e.Level), e.Message, string(e.Data))
}

// cleanupHistory prunes every history slice to entries newer than
// HistoryRetention (spec.md §4.10 cleanup_history).
func (m *Monitor) cleanupHistory() {
	cutoff := time.Now().Add(-m.cfg.HistoryRetention)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.history.Traffic = filterTraffic(m.history.Traffic, cutoff)
	m.history.Memory = filterMemory(m.history.Memory, cutoff)
	m.history.Connections = filterConnections(m.history.Connections, cutoff)
	m.history.Events = filterEvents(m.history.Events, cutoff)
}

func filterTraffic(in []TrafficSnapshot, cutoff time.Time) []TrafficSnapshot {
	out := in[:0]
	for _, s := range in {
		if s.Timestamp.After(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

func filterMemory(in []MemorySnapshot, cutoff time.Time) []MemorySnapshot {
	out := in[:0]
	for _, s := range in {
		if s.Timestamp.After(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

func filterConnections(in []ConnectionSnapshot, cutoff time.Time) []ConnectionSnapshot {
	out := in[:0]
	for _, s := range in {
		if s.Timestamp.After(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

func filterEvents(in []Event, cutoff time.Time) []Event {
	out := in[:0]
	for _, e := range in {
		if e.Timestamp.After(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// GetHistory returns a copy of the current in-memory history.
func (m *Monitor) GetHistory() History {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := History{
		Traffic:     append([]TrafficSnapshot(nil), m.history.Traffic...),
		Memory:      append([]MemorySnapshot(nil), m.history.Memory...),
		Connections: append([]ConnectionSnapshot(nil), m.history.Connections...),
		Events:      append([]Event(nil), m.history.Events...),
	}
	return h
}

// GetRecentEvents returns the count most recent events, newest first.
func (m *Monitor) GetRecentEvents(count int) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.history.Events)
	if count > n {
		count = n
	}
	out := make([]Event, count)
	for i := 0; i < count; i++ {
		out[i] = m.history.Events[n-1-i]
	}
	return out
}

// GetEventsByLevel returns every event at or above the given severity.
func (m *Monitor) GetEventsByLevel(level EventLevel) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.history.Events {
		if e.Level >= level {
			out = append(out, e)
		}
	}
	return out
}
