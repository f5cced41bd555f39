package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/vmsim/mem/vm"
	"github.com/sarchlab/vmsim/mem/vm/vmm"
	"github.com/sarchlab/vmsim/simulation"
	"github.com/sarchlab/vmsim/vmsim/workload"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a multi-process workload on the virtual memory manager.",
	Long: "`run` starts processes that read and write their address " +
		"spaces concurrently and verifies every byte they read back. " +
		"Faults, evictions, and teardowns are recorded to a sqlite " +
		"database.",
	Args: cobra.NoArgs,
	RunE: run,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addRunFlags(runCmd.Flags())
}

func addRunFlags(f *pflag.FlagSet) {
	defaults := workload.DefaultConfig()

	f.Int("frames", 16, "Number of physical frames.")
	f.Int("page-bits", 10, "Log2 of the page size in bytes.")
	f.Int("tlb-size", 4, "Number of TLB slots.")
	f.Int64("seed", defaults.Seed, "Seed of the TLB and the workload.")
	f.String("swap", "memory", "Swap store, one of memory, sqlite, file.")
	f.String("swap-path", "", "Location of the sqlite or file swap store.")

	f.Int("processes", defaults.NumProcesses, "Number of processes.")
	f.Uint64("pages", defaults.Pages, "Virtual pages per process.")
	f.Uint64("text-pages", defaults.TextPages,
		"Read-only text pages per process.")
	f.Uint64("data-pages", defaults.DataPages,
		"Initialized data pages per process.")
	f.Int("accesses", defaults.AccessesPerProcess,
		"Reads and writes per process.")
	f.Float64("write-ratio", defaults.WriteRatio,
		"Fraction of accesses that write.")
	f.Int("protection-probes", 0,
		"Number of processes that end by writing their text.")

	f.String("output", "", "Name of the recording database.")
	f.Bool("monitor", false, "Serve the monitoring web page.")
	f.Int("monitor-port", 0, "Port of the monitoring server.")
	f.Bool("open", false, "Open the monitoring page in a browser.")
	f.Bool("trace", false, "Print every fault and eviction to stderr.")
	f.String("trace-tlb", "", "Write TLB events as CSV to this file.")
}

type runOptions struct {
	frames   int
	pageBits int
	tlbSize  int
	swapKind string
	swapPath string
	workload workload.Config
	output   string
	monitor  bool
	port     int
	open     bool
	traceOn  bool
	tlbTrace string
}

func readOptions(f *pflag.FlagSet) (runOptions, error) {

	var (
		o    runOptions
		errs []error
	)

	get := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	o.frames, err = f.GetInt("frames")
	get(err)
	o.pageBits, err = f.GetInt("page-bits")
	get(err)
	o.tlbSize, err = f.GetInt("tlb-size")
	get(err)
	o.swapKind, err = f.GetString("swap")
	get(err)
	o.swapPath, err = f.GetString("swap-path")
	get(err)
	o.workload.Seed, err = f.GetInt64("seed")
	get(err)
	o.workload.NumProcesses, err = f.GetInt("processes")
	get(err)
	o.workload.Pages, err = f.GetUint64("pages")
	get(err)
	o.workload.TextPages, err = f.GetUint64("text-pages")
	get(err)
	o.workload.DataPages, err = f.GetUint64("data-pages")
	get(err)
	o.workload.AccessesPerProcess, err = f.GetInt("accesses")
	get(err)
	o.workload.WriteRatio, err = f.GetFloat64("write-ratio")
	get(err)
	o.workload.ProtectionProbes, err = f.GetInt("protection-probes")
	get(err)
	o.output, err = f.GetString("output")
	get(err)
	o.monitor, err = f.GetBool("monitor")
	get(err)
	o.port, err = f.GetInt("monitor-port")
	get(err)
	o.open, err = f.GetBool("open")
	get(err)
	o.traceOn, err = f.GetBool("trace")
	get(err)
	o.tlbTrace, err = f.GetString("trace-tlb")
	get(err)

	if len(errs) > 0 {
		return o, errs[0]
	}

	if o.frames <= 0 || o.tlbSize <= 0 {
		return o, errors.New("frames and tlb-size must be positive")
	}

	if o.pageBits < 4 || o.pageBits > 16 {
		return o, fmt.Errorf("page-bits %d is not in [4, 16]", o.pageBits)
	}

	if !o.monitor && (o.open || o.port != 0) {
		return o, errors.New("--open and --monitor-port require --monitor")
	}

	return o, o.workload.Validate()
}

func run(cmd *cobra.Command, _ []string) error {
	o, err := readOptions(cmd.Flags())
	if err != nil {
		return err
	}

	store, err := openSwap(o.swapKind, o.swapPath, 1<<o.pageBits)
	if err != nil {
		return err
	}

	manager := vmm.MakeBuilder().
		WithNumFrames(o.frames).
		WithLog2PageSize(uint64(o.pageBits)).
		WithTLBSize(o.tlbSize).
		WithSeed(o.workload.Seed).
		WithSwap(store).
		WithTerminationHandler(func(pid vm.PID, err error) {
			slog.Warn("process terminated", "pid", pid, "err", err)
		}).
		Build("VMM")
	atexit.Register(func() {
		if err := manager.Close(); err != nil {
			slog.Error("closing swap store", "err", err)
		}
	})

	tlbTrace, err := openTLBTrace(o.tlbTrace)
	if err != nil {
		return err
	}

	s := buildSimulation(o, tlbTrace)
	atexit.Register(s.Terminate)

	s.RegisterManager(manager)
	s.Note("frames", strconv.Itoa(o.frames))
	s.Note("page_size", strconv.Itoa(1<<o.pageBits))
	s.Note("tlb_size", strconv.Itoa(o.tlbSize))
	s.Note("swap", o.swapKind)
	s.Note("processes", strconv.Itoa(o.workload.NumProcesses))
	s.Note("accesses", strconv.Itoa(o.workload.AccessesPerProcess))

	if o.open {
		if err := browser.OpenURL(s.MonitorURL()); err != nil {
			slog.Warn("cannot open browser", "err", err)
		}
	}

	slog.Info("workload started",
		"id", s.ID(),
		"recording", s.OutputPath()+".sqlite3",
		"processes", o.workload.NumProcesses,
		"frames", o.frames,
		"page_size", 1<<o.pageBits)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	result, err := runWorkload(ctx, s, manager, o.workload)
	if err != nil {
		return err
	}

	logResult(result, manager)

	if err := manager.CheckInvariants(); err != nil {
		return err
	}

	if result.Mismatches > 0 {
		return fmt.Errorf("%d reads returned unexpected data",
			result.Mismatches)
	}

	return nil
}

// openTLBTrace creates the TLB trace file. The returned writer is flushed and
// closed at exit. It is nil when path is empty.
func openTLBTrace(path string) (io.Writer, error) {
	if path == "" {
		return nil, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating TLB trace: %w", err)
	}

	w := bufio.NewWriter(f)
	atexit.Register(func() {
		if err := errors.Join(w.Flush(), f.Close()); err != nil {
			slog.Error("closing TLB trace", "err", err)
		}
	})

	return w, nil
}

func buildSimulation(o runOptions, tlbTrace io.Writer) *simulation.Simulation {
	b := simulation.MakeBuilder().WithOutputFileName(o.output)

	if o.traceOn {
		b = b.WithLogTracer(log.New(os.Stderr, "", 0))
	}

	if tlbTrace != nil {
		b = b.WithTLBTracer(tlbTrace)
	}

	if !o.monitor {
		b = b.WithoutMonitoring()
	} else if o.port != 0 {
		b = b.WithMonitorPort(o.port)
	}

	return b.Build()
}

func runWorkload(
	ctx context.Context,
	s *simulation.Simulation,
	manager *vmm.Comp,
	cfg workload.Config,
) (workload.Result, error) {
	monitor := s.GetMonitor()
	if monitor == nil {
		return workload.Run(ctx, manager, cfg, nil)
	}

	total := uint64(cfg.NumProcesses) * uint64(cfg.AccessesPerProcess)
	bar := monitor.CreateProgressBar("Accesses", total)
	defer monitor.CompleteProgressBar(bar)

	return workload.Run(ctx, manager, cfg, func() {
		bar.IncrementFinished(1)
	})
}

func logResult(result workload.Result, manager *vmm.Comp) {
	stats := manager.Stats()

	slog.Info("workload finished",
		"accesses", result.Accesses,
		"bytes", result.Bytes,
		"mismatches", result.Mismatches,
		"terminated", len(result.Terminated))

	for _, pid := range result.TerminatedPIDs() {
		slog.Debug("terminated process",
			"pid", pid, "err", result.Terminated[pid])
	}

	slog.Info("manager statistics",
		"faults", stats.Faults,
		"tlb_hits", stats.TLBHits,
		"tlb_misses", stats.TLBMisses,
		"section_loads", stats.SectionLoads,
		"zero_fills", stats.ZeroFills,
		"swap_ins", stats.SwapIns,
		"swap_outs", stats.SwapOuts,
		"evictions", stats.Evictions,
		"protection_faults", stats.ProtectionFaults,
		"fatal_faults", stats.FatalFaults)
}
