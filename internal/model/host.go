package model

import "time"

// HostStats is a snapshot of host load taken when a run starts
type HostStats struct {
	CPUUsage    float64   `json:"cpu_usage"`
	MemoryUsage float64   `json:"memory_usage"`
	LoadAverage float64   `json:"load_average"`
	CollectedAt time.Time `json:"collected_at"`
}
