package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/sensors"
)

type fixedStatus string

func (s fixedStatus) Status(context.Context) string { return string(s) }

func newTestReporter() *Reporter {
	r := NewReporter("/data", fixedStatus("SERVING"), zerolog.Nop())
	r.now = func() time.Time { return time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC) }
	r.temperatures = func(context.Context) ([]sensors.TemperatureStat, error) {
		return []sensors.TemperatureStat{
			{SensorKey: "acpitz", Temperature: 70},
			{SensorKey: "coretemp_package_id_0", Temperature: 55},
		}, nil
	}
	r.memory = func(context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Available: 512 * bytesPerMB}, nil
	}
	r.cpuPercent = func(context.Context) ([]float64, error) { return []float64{12.5}, nil }
	r.disk = &Disk{usage: func(context.Context, string) (*disk.UsageStat, error) {
		return &disk.UsageStat{Free: 2048 * bytesPerMB}, nil
	}}
	return r
}

func TestSample(t *testing.T) {
	s := newTestReporter().Sample(context.Background())

	if s.CPUTemp != 55 {
		t.Errorf("cpu temp = %v, want 55", s.CPUTemp)
	}
	if len(s.Temperatures) != 2 {
		t.Errorf("temperatures = %v", s.Temperatures)
	}
	if s.MemAvailableMB != 512 || s.CPUUsedPercent != 12.5 || s.DiskFreeMB != 2048 {
		t.Errorf("unexpected sample %+v", s)
	}
	if s.AcceleratorStatus != "SERVING" {
		t.Errorf("accelerator status = %q", s.AcceleratorStatus)
	}
}

func TestSampleSurvivesFailures(t *testing.T) {
	r := newTestReporter()
	r.accelerator = nil
	r.memory = func(context.Context) (*mem.VirtualMemoryStat, error) { return nil, errors.New("no /proc") }
	r.temperatures = func(context.Context) ([]sensors.TemperatureStat, error) { return nil, errors.New("no sensors") }

	s := r.Sample(context.Background())
	if s.MemAvailableMB != 0 || s.CPUTemp != 0 {
		t.Errorf("failed readings should stay empty: %+v", s)
	}
	if s.DiskFreeMB != 2048 {
		t.Errorf("disk reading lost: %v", s.DiskFreeMB)
	}
	if s.AcceleratorStatus != StatusDisabled {
		t.Errorf("accelerator status = %q, want disabled", s.AcceleratorStatus)
	}
}

func TestCPUTemperatureFallsBackToHottest(t *testing.T) {
	got := cpuTemperature([]sensors.TemperatureStat{
		{SensorKey: "acpitz", Temperature: 41},
		{SensorKey: "nvme", Temperature: 48},
	})
	if got != 48 {
		t.Errorf("cpuTemperature = %v, want 48", got)
	}
}

func TestAcceleratorDisabled(t *testing.T) {
	a := NewAccelerator("", "")
	if got := a.Status(context.Background()); got != StatusDisabled {
		t.Errorf("status = %q, want disabled", got)
	}
	if a.IsHealthy() {
		t.Error("disabled accelerator reported healthy")
	}
}
