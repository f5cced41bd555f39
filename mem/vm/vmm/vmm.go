// Package vmm provides the virtual memory manager, which resolves the page
// faults of all the processes sharing one machine.
package vmm

import (
	"fmt"
	"sync"

	"github.com/sarchlab/vmsim/mem/vm"
	"github.com/sarchlab/vmsim/mem/vm/coremap"
	"github.com/sarchlab/vmsim/mem/vm/loader"
	"github.com/sarchlab/vmsim/mem/vm/replacement"
	"github.com/sarchlab/vmsim/mem/vm/swap"
	"github.com/sarchlab/vmsim/mem/vm/tlb"
	"github.com/sarchlab/vmsim/memory"
	"github.com/sarchlab/vmsim/sim"
)

// Hook positions at which the manager invokes its hooks.
var (
	// HookPosFault is invoked on every state a fault goes through. The item
	// is the PageID and the detail is a FaultDetail.
	HookPosFault = &sim.HookPos{Name: "Fault"}

	// HookPosEvict is invoked when a page leaves its frame. The item is the
	// PageID and the detail is an EvictDetail.
	HookPosEvict = &sim.HookPos{Name: "Evict"}

	// HookPosSwapOut is invoked when a page is persisted to the backing
	// store. The item is the PageID and the detail is the frame.
	HookPosSwapOut = &sim.HookPos{Name: "SwapOut"}

	// HookPosSwapIn is invoked when a page is restored from the backing
	// store. The item is the PageID and the detail is the frame.
	HookPosSwapIn = &sim.HookPos{Name: "SwapIn"}

	// HookPosTeardown is invoked when an address space is released. The
	// item is the PID and the detail is the number of frames freed.
	HookPosTeardown = &sim.HookPos{Name: "Teardown"}

	// HookPosProtectionFault is invoked on writes to read-only pages. The
	// item is the PageID.
	HookPosProtectionFault = &sim.HookPos{Name: "ProtectionFault"}
)

// FaultDetail describes a state reached by a fault.
type FaultDetail struct {
	State FaultState
	Frame int
	Err   error
}

// EvictDetail describes a page eviction.
type EvictDetail struct {
	Frame     int
	Dirty     bool
	Content   string
	Persisted bool
}

type addressSpace struct {
	sections loader.SectionSource

	// swapped tracks the pages that have a slot in the backing store.
	swapped map[uint64]struct{}
}

type termination struct {
	pid vm.PID
	err error
}

// Comp is the virtual memory manager. Fault resolution, eviction, and
// teardown all run under one lock. The TLB has its own lock, so a TLB hit in
// Translate does not wait for faults of other processes.
//
// Hooks are invoked while the manager lock is held. They must not call back
// into the manager.
type Comp struct {
	*sim.HookableBase

	name         string
	log2PageSize uint64

	mu      sync.Mutex
	memory  *memory.Storage
	coreMap *coremap.CoreMap
	clock   *replacement.Clock
	tlb     *tlb.Comp
	loader  *loader.Loader
	store   swap.Store
	spaces  map[vm.PID]*addressSpace

	onTermination TerminationHandler
	stats         counters
}

// Name returns the name of the manager.
func (c *Comp) Name() string {
	return c.name
}

// PageSize returns the number of bytes in a page.
func (c *Comp) PageSize() uint64 {
	return 1 << c.log2PageSize
}

// NumFrames returns the number of physical frames.
func (c *Comp) NumFrames() int {
	return c.coreMap.NumFrames()
}

// TLB returns the TLB synchronized by the manager, so that hooks can be
// attached to it.
func (c *Comp) TLB() *tlb.Comp {
	return c.tlb
}

// Memory returns the physical memory.
func (c *Comp) Memory() memory.Controller {
	return c.memory
}

// RegisterProcess creates the address space of a process. The sections are
// consulted for pages that are neither resident nor swapped; a nil source
// means every page is zero-filled.
func (c *Comp) RegisterProcess(pid vm.PID, sections loader.SectionSource) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, found := c.spaces[pid]; found {
		return fmt.Errorf("process %d is already registered", pid)
	}

	c.spaces[pid] = &addressSpace{
		sections: sections,
		swapped:  make(map[uint64]struct{}),
	}

	return nil
}

// IsRegistered tells if the process currently has an address space.
func (c *Comp) IsRegistered(pid vm.PID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, found := c.spaces[pid]

	return found
}

// Processes returns the number of address spaces.
func (c *Comp) Processes() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.spaces)
}

// Close releases the backing store.
func (c *Comp) Close() error {
	return c.store.Close()
}

func (c *Comp) split(vaddr uint64) (vpn, offset uint64) {
	return vaddr >> c.log2PageSize, vaddr & (c.PageSize() - 1)
}

func (c *Comp) invoke(pos *sim.HookPos, item, detail interface{}) {
	if c.NumHooks() == 0 {
		return
	}

	c.InvokeHook(sim.HookCtx{
		Domain: c,
		Pos:    pos,
		Item:   item,
		Detail: detail,
	})
}

func (c *Comp) notify(terminated []termination) {
	for _, t := range terminated {
		c.stats.terminations.Add(1)

		if c.onTermination != nil {
			c.onTermination(t.pid, t.err)
		}
	}
}
