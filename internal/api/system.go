package api

import (
	"net/http"
	"runtime"
	"time"
)

// serviceName identifies the daemon on the info surface.
const serviceName = "benchrig"

// SystemInfo describes the running daemon: identity, uptime, the driver
// catalog, and how many instruments are configured versus running.
type SystemInfo struct {
	Service       string           `json:"service"`
	Version       string           `json:"version"`
	StartedAt     string           `json:"started_at"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Drivers       []string         `json:"drivers,omitempty"`
	Instruments   InstrumentCounts `json:"instruments"`
	MQTTConnected bool             `json:"mqtt_connected"`
}

// InstrumentCounts summarises the instrument inventory.
type InstrumentCounts struct {
	Total   int `json:"total"`
	Running int `json:"running"`
}

// SystemStats is the complete system statistics response.
type SystemStats struct {
	Timestamp     string                     `json:"timestamp"`
	Version       string                     `json:"version"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Runtime       RuntimeStats               `json:"runtime"`
	WebSocket     WSStats                    `json:"websocket"`
	Bridge        *BridgeStats               `json:"bridge,omitempty"`
	Instruments   map[string]InstrumentStats `json:"instruments"`
	Database      *DatabaseStats             `json:"database,omitempty"`
}

// RuntimeStats contains Go runtime statistics.
type RuntimeStats struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSStats contains WebSocket hub statistics.
type WSStats struct {
	ConnectedClients int `json:"connected_clients"`
}

// BridgeStats contains MQTT bridge counters.
type BridgeStats struct {
	Commands        uint64 `json:"commands"`
	Failures        uint64 `json:"failures"`
	StatesPublished uint64 `json:"states_published"`
	Dropped         uint64 `json:"dropped"`
}

// BridgeStatsProvider exposes bridge counters to the stats surface
// without coupling this package to the bridge implementation.
type BridgeStatsProvider interface {
	BridgeStats() BridgeStats
}

// InstrumentStats contains per-instrument operation counters.
type InstrumentStats struct {
	Submitted     uint64 `json:"submitted"`
	Completed     uint64 `json:"completed"`
	Failed        uint64 `json:"failed"`
	Cancelled     uint64 `json:"cancelled"`
	Rejected      uint64 `json:"rejected"`
	EventsDropped uint64 `json:"events_dropped"`
	QueueDepth    int    `json:"queue_depth"`
}

// DatabaseStats contains database connection pool statistics.
type DatabaseStats struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleSystemInfo returns daemon identity and instrument inventory.
func (s *Server) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	info := SystemInfo{
		Service:       serviceName,
		Version:       s.version,
		StartedAt:     s.startTime.UTC().Format(time.RFC3339),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Instruments: InstrumentCounts{
			Running: len(s.registry.List()),
		},
	}

	if s.catalog != nil {
		info.Drivers = s.catalog.Drivers()
	}
	if s.mqtt != nil {
		info.MQTTConnected = s.mqtt.IsConnected()
	}

	// Total comes from the repository so disabled records are counted too.
	records, err := s.repo.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list instrument records", "error", err)
	} else {
		info.Instruments.Total = len(records)
	}

	writeJSON(w, http.StatusOK, info)
}

// handleSystemStats returns comprehensive system statistics.
func (s *Server) handleSystemStats(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := SystemStats{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeStats{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Instruments: make(map[string]InstrumentStats),
	}

	if s.hub != nil {
		stats.WebSocket = WSStats{
			ConnectedClients: s.hub.ClientCount(),
		}
	}

	// Bridge counters (if the MQTT bridge is running)
	if s.bridge != nil {
		bs := s.bridge.BridgeStats()
		stats.Bridge = &bs
	}

	// Per-instrument adapter counters
	for _, entry := range s.registry.List() {
		as := entry.Adapter.Stats()
		stats.Instruments[entry.Record.Name] = InstrumentStats{
			Submitted:     as.Submitted,
			Completed:     as.Completed,
			Failed:        as.Failed,
			Cancelled:     as.Cancelled,
			Rejected:      as.Rejected,
			EventsDropped: as.EventsDropped,
			QueueDepth:    as.QueueDepth,
		}
	}

	// Connection pool counters from database/sql
	if s.db != nil {
		dbStats := s.db.Stats()
		stats.Database = &DatabaseStats{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, stats)
}
