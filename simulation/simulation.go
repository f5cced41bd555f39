// Package simulation wires a virtual memory manager to the services around
// it: data recording, tracing, and monitoring.
package simulation

import (
	"io"
	"log"

	"github.com/sarchlab/vmsim/datarecording"
	"github.com/sarchlab/vmsim/mem/trace"
	"github.com/sarchlab/vmsim/mem/vm"
	"github.com/sarchlab/vmsim/mem/vm/vmm"
	"github.com/sarchlab/vmsim/monitoring"
	"github.com/sarchlab/vmsim/sim"
)

// A Simulation provides the service requires to define a simulation.
type Simulation struct {
	id          string
	outputPath  string
	traceLogger *log.Logger
	tlbTrace    io.Writer

	dataRecorder datarecording.DataRecorder
	execRecorder *datarecording.ExecRecorder
	monitor      *monitoring.Monitor
	monitorURL   string

	components    []sim.Hookable
	compNameIndex map[string]int
	terminated    bool
}

// ID returns the unique ID of the simulation.
func (s *Simulation) ID() string {
	return s.id
}

// OutputPath returns the name of the recording, without the .sqlite3
// suffix.
func (s *Simulation) OutputPath() string {
	return s.outputPath
}

// GetDataRecorder returns the data recorder used in the simulation.
func (s *Simulation) GetDataRecorder() datarecording.DataRecorder {
	return s.dataRecorder
}

// GetMonitor returns the monitor used in the simulation. It is nil when
// monitoring is disabled.
func (s *Simulation) GetMonitor() *monitoring.Monitor {
	return s.monitor
}

// MonitorURL returns the address of the monitoring server, or an empty
// string when monitoring is disabled.
func (s *Simulation) MonitorURL() string {
	return s.monitorURL
}

// Note adds a property to the execution record.
func (s *Simulation) Note(property, value string) {
	s.execRecorder.Note(property, value)
}

// RegisterManager registers a virtual memory manager. Its faults,
// evictions, and teardowns are recorded, and the monitor can inspect it.
func (s *Simulation) RegisterManager(m *vmm.Comp) {
	s.RegisterComponent(m)
	s.RegisterComponent(m.TLB())

	m.AcceptHook(trace.NewDBTracer(s.dataRecorder))
	if s.traceLogger != nil {
		m.AcceptHook(trace.NewTracer(s.traceLogger))
	}

	if s.tlbTrace != nil {
		m.TLB().AcceptHook(vm.NewTLBTracer(s.tlbTrace))
	}

	if s.monitor != nil {
		s.monitor.RegisterManager(m)
		s.monitor.RegisterComponent(m.TLB())
	}
}

// RegisterComponent registers a component with the simulation.
func (s *Simulation) RegisterComponent(c sim.Hookable) {
	compName := c.Name()
	if _, found := s.compNameIndex[compName]; found {
		panic("component " + compName + " already registered")
	}

	s.components = append(s.components, c)
	s.compNameIndex[compName] = len(s.components) - 1
}

// GetComponentByName returns the component with the given name.
func (s *Simulation) GetComponentByName(name string) sim.Hookable {
	index, found := s.compNameIndex[name]
	if !found {
		return nil
	}

	return s.components[index]
}

// Components returns all registered components.
func (s *Simulation) Components() []sim.Hookable {
	return s.components
}

// Terminate finishes the execution record and closes the data recorder.
func (s *Simulation) Terminate() {
	if s.terminated {
		return
	}

	s.terminated = true
	s.execRecorder.End()

	err := s.dataRecorder.Close()
	if err != nil {
		panic(err)
	}
}
