package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/t77yq/cronthat/internal/model"
)

// Sampler takes a snapshot of host load
type Sampler interface {
	Sample(ctx context.Context) (*model.HostStats, error)
}

// HostSampler reads CPU, memory and load figures through gopsutil
type HostSampler struct {
	logger   *zap.Logger
	interval time.Duration
	now      func() time.Time
}

// NewHostSampler creates a new host sampler. With a zero interval CPU usage
// is measured since the previous sample instead of blocking for a window.
func NewHostSampler(logger *zap.Logger, interval time.Duration) *HostSampler {
	return &HostSampler{
		logger:   logger.Named("host-sampler"),
		interval: interval,
		now:      time.Now,
	}
}

// Sample collects one snapshot. Load average is unavailable on some
// platforms and is left at zero there.
func (s *HostSampler) Sample(ctx context.Context) (*model.HostStats, error) {
	cpuPercent, err := cpu.PercentWithContext(ctx, s.interval, false)
	if err != nil {
		return nil, fmt.Errorf("failed to get CPU usage: %w", err)
	}
	if len(cpuPercent) == 0 {
		return nil, fmt.Errorf("failed to get CPU usage: no data")
	}

	memInfo, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get memory usage: %w", err)
	}

	stats := &model.HostStats{
		CPUUsage:    cpuPercent[0],
		MemoryUsage: memInfo.UsedPercent,
		CollectedAt: s.now(),
	}

	if avg, err := load.AvgWithContext(ctx); err == nil {
		stats.LoadAverage = avg.Load1
	} else {
		s.logger.Debug("Load average unavailable", zap.Error(err))
	}

	s.logger.Debug("Host sampled",
		zap.Float64("cpu_usage", stats.CPUUsage),
		zap.Float64("memory_usage", stats.MemoryUsage),
		zap.Float64("load_average", stats.LoadAverage))

	return stats, nil
}
