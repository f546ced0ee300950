package memory

import "runtime"

// Stats is a snapshot of process memory, reported by /health
type Stats struct {
	AllocMB    uint64 `json:"alloc_mb"`
	SysMB      uint64 `json:"sys_mb"`
	NumGC      uint32 `json:"num_gc"`
	Goroutines int    `json:"goroutines"`
}

// ReadStats samples the runtime. It briefly stops the world, so keep it off hot paths.
func ReadStats() Stats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return Stats{
		AllocMB:    m.Alloc / (1 << 20),
		SysMB:      m.Sys / (1 << 20),
		NumGC:      m.NumGC,
		Goroutines: runtime.NumGoroutine(),
	}
}
