package simulation

import (
	"io"
	"log"

	"github.com/rs/xid"

	"github.com/sarchlab/vmsim/datarecording"
	"github.com/sarchlab/vmsim/monitoring"
)

// Builder can be used to build a simulation.
type Builder struct {
	monitorOn      bool
	monitorPort    int
	outputFileName string
	traceLogger    *log.Logger
	tlbTrace       io.Writer
}

// MakeBuilder creates a new builder. Monitoring is on by default.
func MakeBuilder() Builder {
	return Builder{
		monitorOn: true,
	}
}

// WithoutMonitoring sets the simulation to not use monitoring.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOn = false
	return b
}

// WithOutputFileName sets the name of the recording, without the .sqlite3
// suffix. By default the name is derived from the simulation ID.
func (b Builder) WithOutputFileName(filename string) Builder {
	b.outputFileName = filename
	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithLogTracer makes every registered manager print its faults and
// evictions to logger.
func (b Builder) WithLogTracer(logger *log.Logger) Builder {
	b.traceLogger = logger
	return b
}

// WithTLBTracer makes the TLB of every registered manager write one CSV line
// per hit, miss, install, eviction, and invalidation to w.
func (b Builder) WithTLBTracer(w io.Writer) Builder {
	b.tlbTrace = w
	return b
}

func (b Builder) parametersMustBeValid() {
	if !b.monitorOn && b.monitorPort != 0 {
		panic("monitor port cannot be set when monitoring is disabled")
	}
}

// Build builds the simulation. The execution record starts immediately.
func (b Builder) Build() *Simulation {
	b.parametersMustBeValid()

	s := &Simulation{
		id:            xid.New().String(),
		traceLogger:   b.traceLogger,
		tlbTrace:      b.tlbTrace,
		compNameIndex: make(map[string]int),
	}

	s.outputPath = b.outputFileName
	if s.outputPath == "" {
		s.outputPath = "vmsim_" + s.id
	}

	s.dataRecorder = datarecording.New(s.outputPath)
	s.execRecorder = datarecording.NewExecRecorder(s.dataRecorder)
	s.execRecorder.Start()

	if b.monitorOn {
		s.monitor = monitoring.NewMonitor()
		if b.monitorPort > 0 {
			s.monitor.WithPortNumber(b.monitorPort)
		}

		s.monitorURL = s.monitor.StartServer()
	}

	return s
}
