// Command kmemsim boots a simulated machine with the clock frame allocator
// and runs a concurrent paging workload against it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapio"

	"kmem/internal/config"
	"kmem/internal/logger"
	"kmem/internal/sim"
	"kmem/kernel/kfmt"
	"kmem/kernel/mem/pmm/allocator"
)

const metricsStopTimeout = 5 * time.Second

var (
	configPath  = flag.String("config", "", "Path to the YAML configuration file (defaults are used when empty)")
	processes   = flag.Int("processes", 0, "Override workload.processes")
	operations  = flag.Int("operations", -1, "Override workload.operations")
	swapDevice  = flag.String("swap", "", "Override swap.device (none, mem, file, bolt)")
	swapPath    = flag.String("swap_path", "", "Override swap.path")
	metricsAddr = flag.String("metrics", "", "Override metrics.listen, e.g. 127.0.0.1:9100")
	hold        = flag.Duration("hold", 0, "Keep serving metrics for this long after the workload finishes")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("kmemsim: %v", err)
	}

	zlogger, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("kmemsim: failed to initialize logger: %v", err)
	}

	code := exitStatus(run(cfg, zlogger), zlogger)
	_ = zlogger.Sync()
	if code != 0 {
		os.Exit(code)
	}
}

// exitStatus logs a failed run through zlogger and maps it to the process
// exit code.
func exitStatus(err error, zlogger *zap.Logger) int {
	if err == nil {
		return 0
	}

	zlogger.Error("Simulation failed", zap.Error(err))
	return 1
}

func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return cfg, err
		}
	}

	if *processes > 0 {
		cfg.Workload.Processes = *processes
	}
	if *operations >= 0 {
		cfg.Workload.Operations = *operations
	}
	if *swapDevice != "" {
		cfg.Swap.Device = *swapDevice
	}
	if *swapPath != "" {
		cfg.Swap.Path = *swapPath
	}
	if *metricsAddr != "" {
		cfg.Metrics.Listen = *metricsAddr
	}

	return cfg, cfg.Validate()
}

func run(cfg config.Config, zlogger *zap.Logger) error {
	detach := attachConsole(cfg.Console, zlogger)
	defer detach()

	m, err := sim.NewMachine(cfg, zlogger)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			zlogger.Warn("Failed to shut down machine", zap.Error(err))
		}
	}()

	stopMetrics := serveMetrics(cfg.Metrics.Listen, m, zlogger)
	defer stopMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := m.Run(ctx, cfg.Workload)
	printReport(os.Stdout, report)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if *hold > 0 && cfg.Metrics.Listen != "" {
		zlogger.Info("Holding metrics endpoint open", zap.Duration("hold", *hold))
		select {
		case <-time.After(*hold):
		case <-ctx.Done():
		}
	}

	return nil
}

// attachConsole routes kernel console output according to mode. The returned
// function detaches the sink and flushes buffered output.
func attachConsole(mode string, zlogger *zap.Logger) func() {
	switch mode {
	case config.ConsoleStderr:
		kfmt.SetOutputSink(&kfmt.PrefixWriter{Sink: os.Stderr, Prefix: []byte("[kernel] ")})
		return func() { kfmt.SetOutputSink(nil) }
	case config.ConsoleDiscard:
		kfmt.SetOutputSink(io.Discard)
		return func() { kfmt.SetOutputSink(nil) }
	default:
		w := &zapio.Writer{Log: zlogger.Named("kernel"), Level: zap.InfoLevel}
		kfmt.SetOutputSink(w)
		return func() {
			kfmt.SetOutputSink(nil)
			_ = w.Close()
		}
	}
}

// serveMetrics exposes the allocator counters on addr. An empty addr
// disables the endpoint. The returned function stops the server.
func serveMetrics(addr string, m *sim.Machine, zlogger *zap.Logger) func() {
	if addr == "" {
		return func() {}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		allocator.NewCollector(m.Alloc),
		collectors.NewGoCollector(),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		zlogger.Info("Serving metrics", zap.String("addr", addr), zap.String("run_id", m.ID.String()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlogger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsStopTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			zlogger.Warn("Failed to stop metrics server", zap.Error(err))
		}
	}
}

func printReport(w io.Writer, r sim.Report) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "run\t%s\n", r.RunID)
	fmt.Fprintf(tw, "processes\t%d\n", r.Processes)
	fmt.Fprintf(tw, "elapsed\t%s\n", r.Elapsed)
	fmt.Fprintf(tw, "operations\t%d\n", r.Operations)
	fmt.Fprintf(tw, "  maps\t%d\n", r.Maps)
	fmt.Fprintf(tw, "  touches\t%d (%d on swapped pages)\n", r.Touches, r.Faults)
	fmt.Fprintf(tw, "  unmaps\t%d\n", r.Unmaps)
	fmt.Fprintf(tw, "  idle\t%d\n", r.Idle)
	fmt.Fprintf(tw, "  out of memory\t%d\n", r.OutOfMemory)
	fmt.Fprintf(tw, "frames\t%d total, %d free, %d in ring\n", r.Allocator.TotalFrames, r.Allocator.FreeFrames, r.Allocator.RingFrames)
	fmt.Fprintf(tw, "reclaim\t%d runs, %d evictions, %d failed allocations\n", r.Allocator.ReclaimRuns, r.Allocator.Evictions, r.Allocator.AllocFailures)
	fmt.Fprintf(tw, "swap blocks in use\t%d\n", r.SwapBlocksInUse)
	_ = tw.Flush()
}
