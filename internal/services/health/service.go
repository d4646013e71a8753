package health

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/sensors"

	"capture-worker-go/internal/models"
)

const bytesPerMB = 1024 * 1024

// StatusChecker reports the accelerator status
type StatusChecker interface {
	Status(ctx context.Context) string
}

// Reporter samples host and accelerator health. Readings that fail are left
// empty; a sample is always returned.
type Reporter struct {
	diskPath    string
	accelerator StatusChecker
	logger      zerolog.Logger
	now         func() time.Time

	temperatures func(ctx context.Context) ([]sensors.TemperatureStat, error)
	memory       func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	cpuPercent   func(ctx context.Context) ([]float64, error)
	disk         *Disk
}

// NewReporter creates a reporter measuring free space on diskPath.
// accelerator may be nil.
func NewReporter(diskPath string, accelerator StatusChecker, logger zerolog.Logger) *Reporter {
	return &Reporter{
		diskPath:     diskPath,
		accelerator:  accelerator,
		logger:       logger,
		now:          time.Now,
		temperatures: sensors.TemperaturesWithContext,
		memory:       mem.VirtualMemoryWithContext,
		cpuPercent: func(ctx context.Context) ([]float64, error) {
			return cpu.PercentWithContext(ctx, 0, false)
		},
		disk: NewDisk(),
	}
}

// Sample reads all health values
func (r *Reporter) Sample(ctx context.Context) models.HealthSample {
	s := models.HealthSample{
		Timestamp:         r.now(),
		Temperatures:      map[string]float64{},
		AcceleratorStatus: StatusDisabled,
	}

	temps, err := r.temperatures(ctx)
	// partial readings come back together with a warnings error
	if err != nil && len(temps) == 0 {
		r.logger.Debug().Err(err).Msg("Failed to read temperatures")
	}
	for _, t := range temps {
		s.Temperatures[t.SensorKey] = t.Temperature
	}
	s.CPUTemp = cpuTemperature(temps)

	if vm, err := r.memory(ctx); err != nil {
		r.logger.Debug().Err(err).Msg("Failed to read memory")
	} else {
		s.MemAvailableMB = float64(vm.Available) / bytesPerMB
	}

	if pct, err := r.cpuPercent(ctx); err != nil {
		r.logger.Debug().Err(err).Msg("Failed to read CPU usage")
	} else if len(pct) > 0 {
		s.CPUUsedPercent = pct[0]
	}

	if free, err := r.disk.FreeMB(r.diskPath); err != nil {
		r.logger.Debug().Err(err).Msg("Failed to read free disk space")
	} else {
		s.DiskFreeMB = free
	}

	if r.accelerator != nil {
		s.AcceleratorStatus = r.accelerator.Status(ctx)
	}
	return s
}

// cpuTemperature picks the hottest CPU package sensor, or the hottest
// sensor overall when none is labelled as CPU
func cpuTemperature(temps []sensors.TemperatureStat) float64 {
	var hottest, hottestCPU float64
	var foundCPU bool
	for _, t := range temps {
		hottest = max(hottest, t.Temperature)
		key := strings.ToLower(t.SensorKey)
		if strings.Contains(key, "cpu") || strings.Contains(key, "coretemp") || strings.Contains(key, "package") {
			hottestCPU = max(hottestCPU, t.Temperature)
			foundCPU = true
		}
	}
	if foundCPU {
		return hottestCPU
	}
	return hottest
}

// Disk reads free disk space
type Disk struct {
	usage func(ctx context.Context, path string) (*disk.UsageStat, error)
}

// NewDisk creates a disk free space reader backed by the host file system
func NewDisk() *Disk {
	return &Disk{usage: disk.UsageWithContext}
}

// FreeMB returns the free space of the file system holding path
func (d *Disk) FreeMB(path string) (float64, error) {
	u, err := d.usage(context.Background(), path)
	if err != nil {
		return 0, err
	}
	return float64(u.Free) / bytesPerMB, nil
}
