// Package sim boots a simulated machine around the kernel memory manager and
// drives it with concurrent user processes.
package sim

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kmem/internal/config"
	"kmem/kernel/mem"
	"kmem/kernel/mem/pmm"
	"kmem/kernel/mem/pmm/allocator"
	"kmem/kernel/mem/vmm"
	"kmem/kernel/swap"
)

// Machine is a booted simulated machine.
type Machine struct {
	ID     uuid.UUID
	Mem    mem.PhysMem
	Layout mem.Layout
	Walker *vmm.Walker
	Swap   *swap.Manager
	Alloc  *allocator.ClockAllocator

	dev swap.Device
	log *zap.Logger
}

// NewMachine allocates physical memory, opens the swap device and runs the
// two allocator boot phases described by cfg.
func NewMachine(cfg config.Config, log *zap.Logger) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dev, err := openSwapDevice(cfg.Swap)
	if err != nil {
		return nil, err
	}

	memCfg := cfg.Memory
	m := &Machine{
		ID:  uuid.New(),
		Mem: mem.NewPhysMem(mem.Size(memCfg.PhysFrames) * mem.PageSize),
		Layout: mem.Layout{
			KernBase:  uintptr(memCfg.KernBase),
			KernelEnd: uintptr(memCfg.KernBase) + pmm.Frame(memCfg.KernelFrames).Address(),
			PhysTop:   pmm.Frame(memCfg.PhysFrames).Address(),
		},
		Swap: swap.NewManager(dev),
		dev:  dev,
	}
	m.log = log.With(zap.String("run_id", m.ID.String()))

	m.Walker = &vmm.Walker{Mem: m.Mem}
	m.Alloc = allocator.New(allocator.Config{
		Mem:    m.Mem,
		Layout: m.Layout,
		Walker: m.Walker,
		Swap:   m.Swap,
	})
	m.Walker.AllocFrame = m.Alloc.PageTableFrame

	bootEnd := m.Layout.KernelEnd + pmm.Frame(memCfg.BootFrames).Address()
	if kerr := m.Alloc.InitPhaseOne(m.Layout.KernelEnd, bootEnd); kerr != nil {
		m.closeDevice()
		return nil, fmt.Errorf("boot phase one: %w", kerr)
	}

	if kerr := m.Alloc.InitPhaseTwo(bootEnd, m.Layout.P2V(m.Layout.PhysTop)); kerr != nil {
		m.closeDevice()
		return nil, fmt.Errorf("boot phase two: %w", kerr)
	}

	st := m.Alloc.Stats()
	m.log.Info("machine booted",
		zap.Stringer("memory", m.Mem.Size()),
		zap.Uint32("frames", st.TotalFrames),
		zap.Uint32("free_frames", st.FreeFrames),
		zap.String("swap_device", cfg.Swap.Device),
		zap.Uint32("swap_blocks", m.Swap.TotalBlocks()),
	)

	return m, nil
}

// KernelVirt returns the kernel virtual address of frame.
func (m *Machine) KernelVirt(frame pmm.Frame) uintptr {
	return m.Layout.P2V(frame.Address())
}

// Close releases the swap device.
func (m *Machine) Close() error {
	if err := m.closeDevice(); err != nil {
		return fmt.Errorf("failed to close swap device: %w", err)
	}
	return nil
}

func (m *Machine) closeDevice() error {
	if m.dev == nil {
		return nil
	}

	dev := m.dev
	m.dev = nil
	return dev.Close()
}

func openSwapDevice(cfg config.SwapConfig) (swap.Device, error) {
	switch cfg.Device {
	case config.DeviceMem:
		return swap.NewMemDevice(cfg.Blocks), nil
	case config.DeviceFile:
		dev, err := swap.OpenFileDevice(cfg.Path, cfg.Blocks)
		if err != nil {
			return nil, fmt.Errorf("failed to open swap file: %w", err)
		}
		return dev, nil
	case config.DeviceBolt:
		dev, err := swap.OpenBoltDevice(cfg.Path, cfg.Blocks)
		if err != nil {
			return nil, fmt.Errorf("failed to open swap database: %w", err)
		}
		return dev, nil
	default:
		return nil, nil
	}
}
