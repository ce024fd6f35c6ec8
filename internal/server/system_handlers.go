package server

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/dstav/lodestar/internal/database"
)

// SystemHandlers serves process and host statistics
type SystemHandlers struct {
	startTime time.Time
	databases []*database.DB
	log       zerolog.Logger
}

// NewSystemHandlers creates the system handlers
func NewSystemHandlers(log zerolog.Logger, databases ...*database.DB) *SystemHandlers {
	h := &SystemHandlers{
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handlers").Logger(),
	}
	for _, db := range databases {
		if db != nil {
			h.databases = append(h.databases, db)
		}
	}
	return h
}

// HandleSystemStats reports CPU, memory, goroutines and database file sizes
func (h *SystemHandlers) HandleSystemStats(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.hostStats()

	dbSizes := make(map[string]int64)
	for _, db := range h.databases {
		if info, err := os.Stat(db.Path()); err == nil {
			dbSizes[db.Name()] = info.Size()
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		"cpu_percent":    cpuPercent,
		"memory_percent": memPercent,
		"goroutines":     runtime.NumGoroutine(),
		"db_sizes_bytes": dbSizes,
	})
}

// hostStats returns CPU and memory utilization, zero when unavailable
func (h *SystemHandlers) hostStats() (float64, float64) {
	var cpuPercent, memPercent float64

	if percents, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(percents) > 0 {
		cpuPercent = percents[0]
	} else if err != nil {
		h.log.Debug().Err(err).Msg("CPU stats unavailable")
	}

	if stat, err := mem.VirtualMemory(); err == nil {
		memPercent = stat.UsedPercent
	} else {
		h.log.Debug().Err(err).Msg("Memory stats unavailable")
	}

	return cpuPercent, memPercent
}
