// Package trace provides hooks that trace what the virtual memory manager
// does.
package trace

import (
	"log"
	"sync"

	"github.com/sarchlab/vmsim/datarecording"
	"github.com/sarchlab/vmsim/mem/vm"
	"github.com/sarchlab/vmsim/mem/vm/vmm"
	"github.com/sarchlab/vmsim/sim"
)

// faultEntry represents a resolved fault in the database
type faultEntry struct {
	Seq      uint64
	Manager  string
	PID      uint32
	VPN      uint64
	Resident bool
	Evicted  bool
	Frame    int
	Outcome  string
	Error    string
}

// evictionEntry represents a page eviction in the database
type evictionEntry struct {
	Seq       uint64
	Manager   string
	PID       uint32
	VPN       uint64
	Frame     int
	Content   string
	Dirty     bool
	Persisted bool
}

// teardownEntry represents an address space release in the database
type teardownEntry struct {
	Seq     uint64
	Manager string
	PID     uint32
	Frames  int
}

const (
	faultTable    = "page_faults"
	evictionTable = "evictions"
	teardownTable = "teardowns"
)

// A tracer is a hook that prints the actions of a manager to a logger.
type tracer struct {
	sim.LogHookBase
}

// NewTracer creates a hook that logs one line per fault state, eviction,
// swap transfer, protection fault, and teardown.
func NewTracer(logger *log.Logger) sim.Hook {
	return &tracer{LogHookBase: sim.NewLogHookBase(logger)}
}

func (t *tracer) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case vmm.HookPosFault:
		d := ctx.Detail.(vmm.FaultDetail)
		if d.Err != nil {
			t.Printf("fault, %s, %s, %s, %d, %v",
				ctx.Domain.Name(), ctx.Item, d.State, d.Frame, d.Err)
			return
		}

		t.Printf("fault, %s, %s, %s, %d",
			ctx.Domain.Name(), ctx.Item, d.State, d.Frame)
	case vmm.HookPosEvict:
		d := ctx.Detail.(vmm.EvictDetail)
		t.Printf("evict, %s, %s, %d, %s, dirty=%t, persisted=%t",
			ctx.Domain.Name(), ctx.Item, d.Frame, d.Content,
			d.Dirty, d.Persisted)
	case vmm.HookPosSwapOut, vmm.HookPosSwapIn:
		t.Printf("%s, %s, %s, %d",
			ctx.Pos.Name, ctx.Domain.Name(), ctx.Item, ctx.Detail)
	case vmm.HookPosProtectionFault:
		t.Printf("protection, %s, %s", ctx.Domain.Name(), ctx.Item)
	case vmm.HookPosTeardown:
		t.Printf("teardown, %s, %d, %d",
			ctx.Domain.Name(), ctx.Item, ctx.Detail)
	}
}

// A dbTracer is a hook that records the actions of a manager into a
// database using the data recorder. A fault is recorded once, when it is
// published or fails.
type dbTracer struct {
	lock         sync.Mutex
	seq          uint64
	dataRecorder datarecording.DataRecorder
	pending      map[vm.PageID]*faultEntry
}

// NewDBTracer creates a database-based tracer.
func NewDBTracer(dataRecorder datarecording.DataRecorder) sim.Hook {
	t := &dbTracer{
		dataRecorder: dataRecorder,
		pending:      make(map[vm.PageID]*faultEntry),
	}

	t.dataRecorder.CreateTable(faultTable, faultEntry{})
	t.dataRecorder.CreateTable(evictionTable, evictionEntry{})
	t.dataRecorder.CreateTable(teardownTable, teardownEntry{})

	return t
}

func (t *dbTracer) Func(ctx sim.HookCtx) {
	t.lock.Lock()
	defer t.lock.Unlock()

	switch ctx.Pos {
	case vmm.HookPosFault:
		t.fault(ctx)
	case vmm.HookPosProtectionFault:
		id := ctx.Item.(vm.PageID)
		entry := t.pendingEntry(ctx, id)
		entry.Outcome = "ProtectionFault"
		t.complete(id, entry)
	case vmm.HookPosEvict:
		id := ctx.Item.(vm.PageID)
		d := ctx.Detail.(vmm.EvictDetail)

		t.seq++
		t.dataRecorder.InsertData(evictionTable, evictionEntry{
			Seq:       t.seq,
			Manager:   ctx.Domain.Name(),
			PID:       uint32(id.PID),
			VPN:       id.VPN,
			Frame:     d.Frame,
			Content:   d.Content,
			Dirty:     d.Dirty,
			Persisted: d.Persisted,
		})
	case vmm.HookPosTeardown:
		t.seq++
		t.dataRecorder.InsertData(teardownTable, teardownEntry{
			Seq:     t.seq,
			Manager: ctx.Domain.Name(),
			PID:     uint32(ctx.Item.(vm.PID)),
			Frames:  ctx.Detail.(int),
		})
	}
}

func (t *dbTracer) fault(ctx sim.HookCtx) {
	id := ctx.Item.(vm.PageID)
	d := ctx.Detail.(vmm.FaultDetail)

	entry := t.pendingEntry(ctx, id)

	switch d.State {
	case vmm.FaultResident:
		entry.Resident = true
	case vmm.FaultEvicting:
		entry.Evicted = true
	case vmm.FaultPublished, vmm.FaultFatal:
		entry.Frame = d.Frame
		entry.Outcome = d.State.String()
		if d.Err != nil {
			entry.Error = d.Err.Error()
		}

		t.complete(id, entry)
	default:
		if d.Frame >= 0 {
			entry.Frame = d.Frame
		}
	}
}

func (t *dbTracer) pendingEntry(ctx sim.HookCtx, id vm.PageID) *faultEntry {
	entry, found := t.pending[id]
	if !found {
		entry = &faultEntry{
			Manager: ctx.Domain.Name(),
			PID:     uint32(id.PID),
			VPN:     id.VPN,
			Frame:   -1,
		}
		t.pending[id] = entry
	}

	return entry
}

func (t *dbTracer) complete(id vm.PageID, entry *faultEntry) {
	t.seq++
	entry.Seq = t.seq

	t.dataRecorder.InsertData(faultTable, *entry)
	delete(t.pending, id)
}
