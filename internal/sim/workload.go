package sim

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"kmem/internal/config"
	"kmem/kernel/mem"
	"kmem/kernel/mem/pmm"
	"kmem/kernel/mem/pmm/allocator"
	"kmem/kernel/mem/vmm"
)

// UserBase is the first virtual address used by simulated processes.
const UserBase = uintptr(0x00400000)

// Report summarizes a workload run.
type Report struct {
	RunID     string
	Processes int
	Elapsed   time.Duration

	Operations  uint64
	Maps        uint64
	Touches     uint64
	Unmaps      uint64
	Idle        uint64
	OutOfMemory uint64

	// Faults counts touches of pages that had been swapped out.
	Faults uint64

	Allocator       allocator.Stats
	SwapBlocksInUse uint32
}

type counters struct {
	operations  uint64
	maps        uint64
	touches     uint64
	unmaps      uint64
	idle        uint64
	outOfMemory uint64
	faults      uint64
}

// process is a simulated user process with its own address space.
type process struct {
	m      *Machine
	pid    int
	pgdir  pmm.Frame
	rng    *rand.Rand
	mapped []bool

	counters
}

// Run starts w.Processes concurrent processes that each perform
// w.Operations random map, touch and unmap operations, paced by a shared
// rate limiter. Every process unmaps its pages and releases its page tables
// before Run returns, also when the run is cut short.
func (m *Machine) Run(ctx context.Context, w config.WorkloadConfig) (Report, error) {
	limit := rate.Inf
	if w.Rate > 0 {
		limit = rate.Limit(w.Rate)
	}
	burst := w.Burst
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(limit, burst)

	procs := make([]*process, w.Processes)
	for pid := range procs {
		pgdir, err := m.Walker.NewPageDirectory()
		if err != nil {
			for _, p := range procs[:pid] {
				_ = p.teardown()
			}
			return Report{}, fmt.Errorf("process %d: failed to create page directory: %w", pid, err)
		}

		procs[pid] = &process{
			m:      m,
			pid:    pid,
			pgdir:  pgdir,
			rng:    rand.New(rand.NewSource(w.Seed + int64(pid))),
			mapped: make([]bool, w.PagesPerProcess),
		}
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range procs {
		p := p
		g.Go(func() error {
			runErr := p.run(gctx, limiter, w)
			if err := p.teardown(); err != nil && runErr == nil {
				runErr = err
			}

			m.log.Debug("process exited",
				zap.Int("pid", p.pid),
				zap.Uint64("operations", p.operations),
				zap.Uint64("faults", p.faults),
				zap.Error(runErr),
			)
			return runErr
		})
	}
	err := g.Wait()

	report := Report{
		RunID:     m.ID.String(),
		Processes: w.Processes,
		Elapsed:   time.Since(start),
		Allocator: m.Alloc.Stats(),
	}
	report.SwapBlocksInUse = m.Swap.TotalBlocks() - m.Swap.FreeBlocks()
	for _, p := range procs {
		report.Operations += p.operations
		report.Maps += p.maps
		report.Touches += p.touches
		report.Unmaps += p.unmaps
		report.Idle += p.idle
		report.OutOfMemory += p.outOfMemory
		report.Faults += p.faults
	}

	m.log.Info("workload finished",
		zap.Int("processes", report.Processes),
		zap.Uint64("operations", report.Operations),
		zap.Uint64("evictions", report.Allocator.Evictions),
		zap.Uint64("faults", report.Faults),
		zap.Uint64("out_of_memory", report.OutOfMemory),
		zap.Duration("elapsed", report.Elapsed),
	)

	if err != nil {
		return report, fmt.Errorf("workload aborted: %w", err)
	}
	return report, nil
}

func (p *process) run(ctx context.Context, limiter *rate.Limiter, w config.WorkloadConfig) error {
	for op := 0; op < w.Operations; op++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		if err := p.step(w); err != nil {
			return err
		}
		p.operations++
	}

	return nil
}

func (p *process) userAddr(page int) uintptr {
	return UserBase + uintptr(page)*uintptr(mem.PageSize)
}

func (p *process) step(w config.WorkloadConfig) error {
	page := p.rng.Intn(len(p.mapped))
	uva := p.userAddr(page)

	if !p.mapped[page] {
		_, err := p.m.Alloc.MapUserPage(p.pgdir, uva, vmm.FlagRW)
		switch {
		case err == allocator.ErrOutOfMemory:
			p.outOfMemory++
			return nil
		case err != nil:
			return fmt.Errorf("process %d: map 0x%x: %w", p.pid, uva, err)
		}

		p.mapped[page] = true
		p.maps++
		return nil
	}

	switch r := p.rng.Float64(); {
	case r < w.TouchRatio:
		err := p.m.Walker.Touch(p.pgdir, uva)
		switch {
		case err == vmm.ErrInvalidMapping:
			// No fault handler brings the page back in.
			p.faults++
		case err != nil:
			return fmt.Errorf("process %d: touch 0x%x: %w", p.pid, uva, err)
		}
		p.touches++
	case r < w.TouchRatio+w.UnmapRatio:
		if err := p.unmap(page); err != nil {
			return err
		}
		p.unmaps++
	default:
		p.idle++
	}

	return nil
}

func (p *process) unmap(page int) error {
	uva := p.userAddr(page)

	block, swapped, err := p.m.Alloc.UnmapUserPage(p.pgdir, uva)
	if err != nil {
		return fmt.Errorf("process %d: unmap 0x%x: %w", p.pid, uva, err)
	}

	if swapped {
		p.m.Swap.FreeBlock(block)
	}

	p.mapped[page] = false
	return nil
}

// teardown unmaps every page and returns the address space to the
// allocator.
func (p *process) teardown() error {
	for page, mapped := range p.mapped {
		if !mapped {
			continue
		}

		if err := p.unmap(page); err != nil {
			return err
		}
	}

	if err := p.m.Walker.ReleasePageDirectory(p.pgdir, func(f pmm.Frame) {
		p.m.Alloc.FreeFrame(p.m.KernelVirt(f))
	}); err != nil {
		return fmt.Errorf("process %d: release page directory: %w", p.pid, err)
	}

	return nil
}
