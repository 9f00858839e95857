package sim

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kmem/internal/config"
)

// smallConfig describes a machine with 56 usable frames. A single process
// maps up to 96 pages and rarely unmaps, so its working set alone outgrows
// memory and reclaim runs however the processes are scheduled.
func smallConfig() config.Config {
	cfg := config.Default()
	cfg.Memory = config.MemoryConfig{
		PhysFrames:   64,
		KernelFrames: 8,
		BootFrames:   8,
		KernBase:     0x80000000,
	}
	cfg.Swap = config.SwapConfig{Device: config.DeviceMem, Blocks: 512}
	cfg.Workload = config.WorkloadConfig{
		Processes:       4,
		PagesPerProcess: 96,
		Operations:      500,
		TouchRatio:      0.6,
		UnmapRatio:      0.05,
		Seed:            7,
	}
	return cfg
}

func newMachine(t *testing.T, cfg config.Config) *Machine {
	t.Helper()

	m, err := NewMachine(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, m.Close()) })
	return m
}

func TestNewMachine(t *testing.T) {
	cfg := config.Default()
	m := newMachine(t, cfg)

	require.NotEmpty(t, m.ID.String())
	require.Equal(t, uintptr(cfg.Memory.KernBase), m.Layout.KernBase)
	require.Equal(t, m.Layout.KernBase+16*4096, m.Layout.KernelEnd)
	require.Equal(t, uintptr(256*4096), m.Layout.PhysTop)

	st := m.Alloc.Stats()
	require.Equal(t, uint32(256), st.TotalFrames)
	require.Equal(t, uint32(256-16), st.FreeFrames)
	require.Equal(t, uint32(256-16-32), st.RingFrames, "frames seeded by the first boot phase stay out of the ring")
	require.Equal(t, uint32(1024), m.Swap.TotalBlocks())
}

func TestNewMachineSwapDevices(t *testing.T) {
	for _, device := range []string{config.DeviceNone, config.DeviceFile, config.DeviceBolt} {
		t.Run(device, func(t *testing.T) {
			cfg := smallConfig()
			cfg.Swap = config.SwapConfig{
				Device: device,
				Path:   filepath.Join(t.TempDir(), "swap"),
				Blocks: 64,
			}

			m := newMachine(t, cfg)
			if device == config.DeviceNone {
				require.Zero(t, m.Swap.TotalBlocks())
				return
			}
			require.Equal(t, uint32(64), m.Swap.TotalBlocks())
		})
	}
}

func TestNewMachineErrors(t *testing.T) {
	cfg := config.Default()
	cfg.Memory.KernelFrames = 0
	_, err := NewMachine(cfg, zap.NewNop())
	require.Error(t, err)

	cfg = config.Default()
	cfg.Swap = config.SwapConfig{Device: config.DeviceFile, Path: filepath.Join(t.TempDir(), "missing", "swap"), Blocks: 8}
	_, err = NewMachine(cfg, zap.NewNop())
	require.Error(t, err)
}

func TestRun(t *testing.T) {
	cfg := smallConfig()
	m := newMachine(t, cfg)

	report, err := m.Run(context.Background(), cfg.Workload)
	require.NoError(t, err)

	require.Equal(t, m.ID.String(), report.RunID)
	require.Equal(t, uint64(cfg.Workload.Processes*cfg.Workload.Operations), report.Operations)
	require.Equal(t, report.Operations, report.Maps+report.Touches+report.Unmaps+report.Idle+report.OutOfMemory,
		"every operation is accounted for")
	require.NotZero(t, report.Allocator.Evictions, "the working set exceeds physical memory")

	// Teardown hands every frame and swap block back.
	require.Equal(t, report.Allocator.TotalFrames-cfg.Memory.KernelFrames, report.Allocator.FreeFrames)
	require.Zero(t, report.SwapBlocksInUse)
	require.Equal(t, m.Swap.TotalBlocks(), m.Swap.FreeBlocks())
}

func TestRunRateLimited(t *testing.T) {
	cfg := smallConfig()
	cfg.Workload.Processes = 2
	cfg.Workload.Operations = 20
	cfg.Workload.Rate = 1000
	cfg.Workload.Burst = 1
	m := newMachine(t, cfg)

	report, err := m.Run(context.Background(), cfg.Workload)
	require.NoError(t, err)
	require.Equal(t, uint64(40), report.Operations)
	require.GreaterOrEqual(t, report.Elapsed, 30*time.Millisecond)
}

func TestRunCancelled(t *testing.T) {
	cfg := smallConfig()
	m := newMachine(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := m.Run(ctx, cfg.Workload)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, report.Operations)
	require.Equal(t, report.Allocator.TotalFrames-cfg.Memory.KernelFrames, report.Allocator.FreeFrames)
}
