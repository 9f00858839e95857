// Package config loads the simulator configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"kmem/internal/logger"
)

// Swap device kinds.
const (
	DeviceNone = "none"
	DeviceMem  = "mem"
	DeviceFile = "file"
	DeviceBolt = "bolt"
)

// Console sinks for kernel output.
const (
	ConsoleLog     = "log"
	ConsoleStderr  = "stderr"
	ConsoleDiscard = "discard"
)

// MaxPagesPerProcess bounds the user address space of a simulated process.
const MaxPagesPerProcess = 1 << 18

// Config is the top level simulator configuration.
type Config struct {
	Memory   MemoryConfig   `yaml:"memory"`
	Swap     SwapConfig     `yaml:"swap"`
	Workload WorkloadConfig `yaml:"workload"`
	Log      logger.Config  `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`

	// Console selects where kernel console output goes: "log" forwards
	// it to the logger, "stderr" prints it with a prefix and "discard"
	// drops it.
	Console string `yaml:"console"`
}

// MemoryConfig describes the simulated machine. Frames [0, KernelFrames)
// hold the kernel image, the next BootFrames frames are handed to the
// allocator during the first boot phase and the remaining frames up to
// PhysFrames during the second.
type MemoryConfig struct {
	PhysFrames   uint32 `yaml:"phys_frames"`
	KernelFrames uint32 `yaml:"kernel_frames"`
	BootFrames   uint32 `yaml:"boot_frames"`
	KernBase     uint64 `yaml:"kern_base"`
}

// SwapConfig selects the swap device.
type SwapConfig struct {
	Device string `yaml:"device"`
	Path   string `yaml:"path"`
	Blocks uint32 `yaml:"blocks"`
}

// WorkloadConfig describes the simulated processes.
type WorkloadConfig struct {
	Processes       int     `yaml:"processes"`
	PagesPerProcess int     `yaml:"pages_per_process"`
	Operations      int     `yaml:"operations"`
	TouchRatio      float64 `yaml:"touch_ratio"`
	UnmapRatio      float64 `yaml:"unmap_ratio"`
	Rate            float64 `yaml:"rate"`
	Burst           int     `yaml:"burst"`
	Seed            int64   `yaml:"seed"`
}

// MetricsConfig controls the prometheus endpoint. An empty Listen address
// disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns a configuration for a 1 MiB machine with an in-memory swap
// device.
func Default() Config {
	return Config{
		Memory: MemoryConfig{
			PhysFrames:   256,
			KernelFrames: 16,
			BootFrames:   32,
			KernBase:     0x80000000,
		},
		Swap: SwapConfig{
			Device: DeviceMem,
			Blocks: 1024,
		},
		Workload: WorkloadConfig{
			Processes:       4,
			PagesPerProcess: 96,
			Operations:      2000,
			TouchRatio:      0.6,
			UnmapRatio:      0.1,
			Burst:           1,
			Seed:            1,
		},
		Log: logger.Config{
			Level:      "info",
			Format:     "console",
			OutputFile: "stderr",
		},
		Console: ConsoleLog,
	}
}

// Load reads the YAML file at path on top of Default and validates the
// result.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to open config %s: %w", path, err)
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode reads a YAML document from r on top of Default and validates the
// result. Unknown keys are rejected.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to decode: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the simulator cannot run
// with.
func (c Config) Validate() error {
	m := c.Memory
	switch {
	case m.KernelFrames == 0:
		return errors.New("memory.kernel_frames must be at least 1")
	case uint64(m.KernelFrames)+uint64(m.BootFrames) >= uint64(m.PhysFrames):
		return fmt.Errorf("memory.phys_frames (%d) must exceed kernel_frames + boot_frames (%d)",
			m.PhysFrames, m.KernelFrames+m.BootFrames)
	case m.KernBase&0xfff != 0:
		return fmt.Errorf("memory.kern_base 0x%x is not page aligned", m.KernBase)
	}

	switch c.Swap.Device {
	case DeviceNone:
	case DeviceMem, DeviceFile, DeviceBolt:
		if c.Swap.Blocks == 0 {
			return fmt.Errorf("swap.blocks must be positive for device %q", c.Swap.Device)
		}
		if c.Swap.Device != DeviceMem && c.Swap.Path == "" {
			return fmt.Errorf("swap.path is required for device %q", c.Swap.Device)
		}
	default:
		return fmt.Errorf("unknown swap.device %q", c.Swap.Device)
	}

	w := c.Workload
	switch {
	case w.Processes < 1:
		return errors.New("workload.processes must be at least 1")
	case w.PagesPerProcess < 1 || w.PagesPerProcess > MaxPagesPerProcess:
		return fmt.Errorf("workload.pages_per_process must be in [1, %d]", MaxPagesPerProcess)
	case w.Operations < 0:
		return errors.New("workload.operations must not be negative")
	case w.TouchRatio < 0 || w.UnmapRatio < 0 || w.TouchRatio+w.UnmapRatio > 1:
		return errors.New("workload.touch_ratio and unmap_ratio must be non-negative and sum to at most 1")
	case w.Rate < 0:
		return errors.New("workload.rate must not be negative")
	case w.Rate > 0 && w.Burst < 1:
		return errors.New("workload.burst must be at least 1 when rate is set")
	}

	// Every process needs a page directory and at least one page table.
	if need := uint64(w.Processes) * 2; need >= uint64(m.PhysFrames-m.KernelFrames) {
		return fmt.Errorf("%d processes need %d page table frames but only %d frames are available",
			w.Processes, need, m.PhysFrames-m.KernelFrames)
	}

	switch c.Console {
	case ConsoleLog, ConsoleStderr, ConsoleDiscard:
	default:
		return fmt.Errorf("unknown console %q", c.Console)
	}

	return nil
}
