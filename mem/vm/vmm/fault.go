package vmm

import (
	"fmt"
	"log"

	"github.com/sarchlab/vmsim/mem/vm"
	"github.com/sarchlab/vmsim/mem/vm/replacement"
)

// FaultState is a step of fault resolution.
type FaultState int

// A fault either finds the page resident, or goes through the miss path:
// Miss, Evicting when no frame is free, Loading, Bound, and Published. Fatal
// can be reached from Evicting and Loading.
const (
	FaultResident FaultState = iota
	FaultMiss
	FaultEvicting
	FaultLoading
	FaultBound
	FaultPublished
	FaultFatal
)

var faultStateNames = [...]string{
	"Resident",
	"Miss",
	"Evicting",
	"Loading",
	"Bound",
	"Published",
	"Fatal",
}

func (s FaultState) String() string {
	if s < 0 || int(s) >= len(faultStateNames) {
		return fmt.Sprintf("FaultState(%d)", int(s))
	}

	return faultStateNames[s]
}

// HandleFault resolves a fault on the page that holds vaddr. On return, the
// page is resident and its translation is in the TLB.
//
// Errors that wrap a *vm.FaultError are fatal to the process: the caller
// must release its address space. vm.ErrProcessTerminated means the manager
// has already done so.
func (c *Comp) HandleFault(
	pid vm.PID,
	vaddr uint64,
	write bool,
) (vm.TranslationEntry, error) {
	vpn, _ := c.split(vaddr)

	c.mu.Lock()
	entry, terminated, err := c.faultLocked(pid, vpn, write)
	c.mu.Unlock()

	c.notify(terminated)

	return entry, err
}

// Translate converts a virtual address to a physical address, as the MMU
// would. A TLB hit does not take the manager lock. A miss is resolved by
// HandleFault.
//
// The returned address is a snapshot. A fault of any process may evict the
// page and hand its frame to another page, so the address is only valid while
// no fault can run. Use ReadVirtualMemory and WriteVirtualMemory to access
// the page content.
func (c *Comp) Translate(pid vm.PID, vaddr uint64, write bool) (uint64, error) {
	vpn, offset := c.split(vaddr)

	entry, hit, err := c.tlb.Lookup(pid, vpn, write)
	if hit {
		if err != nil {
			return 0, c.protectionFault(vm.PageID{PID: pid, VPN: vpn})
		}

		c.stats.tlbHits.Add(1)

		return c.memory.FrameAddress(entry.Frame) + offset, nil
	}

	c.stats.tlbMisses.Add(1)

	entry, err = c.HandleFault(pid, vaddr, write)
	if err != nil {
		return 0, err
	}

	return c.memory.FrameAddress(entry.Frame) + offset, nil
}

func (c *Comp) translateLocked(
	pid vm.PID,
	vpn uint64,
	write bool,
) (vm.TranslationEntry, []termination, error) {
	entry, hit, err := c.tlb.Lookup(pid, vpn, write)
	if hit {
		if err != nil {
			return entry, nil, c.protectionFault(vm.PageID{PID: pid, VPN: vpn})
		}

		c.stats.tlbHits.Add(1)

		return entry, nil, nil
	}

	c.stats.tlbMisses.Add(1)

	return c.faultLocked(pid, vpn, write)
}

func (c *Comp) faultLocked(
	pid vm.PID,
	vpn uint64,
	write bool,
) (vm.TranslationEntry, []termination, error) {
	space, found := c.spaces[pid]
	if !found {
		return vm.TranslationEntry{}, nil,
			fmt.Errorf("%w: pid %d", vm.ErrUnknownProcess, pid)
	}

	id := vm.PageID{PID: pid, VPN: vpn}
	c.stats.faults.Add(1)

	if frame, resident := c.coreMap.Lookup(id); resident {
		entry, err := c.resolveResident(id, frame, write)
		return entry, nil, err
	}

	return c.resolveMiss(id, space, write)
}

func (c *Comp) resolveResident(
	id vm.PageID,
	frame int,
	write bool,
) (vm.TranslationEntry, error) {
	c.transition(id, FaultResident, frame, nil)

	entry, _ := c.coreMap.Entry(id)
	if write && entry.ReadOnly {
		return entry, c.protectionFault(id)
	}

	c.coreMap.MarkAccess(frame, write)
	entry, _ = c.coreMap.Entry(id)
	c.publish(id, entry)

	return entry, nil
}

func (c *Comp) resolveMiss(
	id vm.PageID,
	space *addressSpace,
	write bool,
) (vm.TranslationEntry, []termination, error) {
	c.transition(id, FaultMiss, -1, nil)

	frame, terminated, err := c.obtainFrame(id)
	if err != nil {
		return vm.TranslationEntry{}, terminated, err
	}

	if _, alive := c.spaces[id.PID]; !alive {
		c.clock.Release(frame)
		return vm.TranslationEntry{}, terminated,
			c.fatal(id, frame, vm.ErrProcessTerminated)
	}

	c.transition(id, FaultLoading, frame, nil)

	entry, content, err := c.loader.Load(id, frame, space.sections)
	if err != nil {
		c.clock.Release(frame)
		return entry, terminated, c.fatal(id, frame, err)
	}

	c.countLoad(id, frame, content, space)

	entry.Used = true
	entry.Dirty = write && !entry.ReadOnly
	c.coreMap.Bind(id, frame, entry, content)
	c.clock.Admit(frame)
	c.transition(id, FaultBound, frame, nil)

	if write && entry.ReadOnly {
		return entry, terminated, c.protectionFault(id)
	}

	c.publish(id, entry)

	return entry, terminated, nil
}

// obtainFrame returns a frame that is neither free nor resident. Processes
// whose pages could not be persisted during eviction are torn down before
// it returns.
func (c *Comp) obtainFrame(id vm.PageID) (int, []termination, error) {
	if c.clock.NumFree() == 0 {
		c.transition(id, FaultEvicting, -1, nil)
		c.tlb.WriteBackAll()
	}

	var terminated []termination

	frame, err := c.clock.Acquire(replacement.EvictorFunc(func(victim int) {
		if t, failed := c.evict(victim); failed {
			terminated = append(terminated, t)
		}
	}))
	if err != nil {
		log.Printf("%s: no frame for page %s: %v", c.name, id, err)
		return 0, nil, c.fatal(id, -1, err)
	}

	for _, t := range terminated {
		c.teardownLocked(t.pid)
	}

	return frame, terminated, nil
}

// evict removes the page in the frame, persisting it when memory holds the
// only up-to-date copy. It reports the owner for termination if the page
// could not be persisted.
func (c *Comp) evict(frame int) (termination, bool) {
	owner := c.coreMap.Record(frame).Owner
	c.tlb.Invalidate(owner.PID, owner.VPN)

	record := c.coreMap.Record(frame)
	detail := EvictDetail{
		Frame:   frame,
		Dirty:   record.Entry.Dirty,
		Content: vm.ContentKind(record.Content),
	}

	var persistErr error
	if vm.NeedsWriteBack(record.Entry, record.Content) {
		persistErr = c.persist(owner, frame, record.Entry.ReadOnly)
		detail.Persisted = persistErr == nil
	}

	c.coreMap.Unbind(frame)
	c.stats.evictions.Add(1)
	c.invoke(HookPosEvict, owner, detail)

	if persistErr != nil {
		return termination{
			pid: owner.PID,
			err: &vm.FaultError{PID: owner.PID, VPN: owner.VPN, Err: persistErr},
		}, true
	}

	return termination{}, false
}

func (c *Comp) persist(id vm.PageID, frame int, readOnly bool) error {
	data, err := c.memory.ReadFrame(frame)
	if err != nil {
		return fmt.Errorf("reading frame %d: %w", frame, err)
	}

	if err := c.loader.Persist(id, data, readOnly); err != nil {
		return fmt.Errorf("persisting page %s: %w", id, err)
	}

	if space, found := c.spaces[id.PID]; found {
		space.swapped[id.VPN] = struct{}{}
	}

	c.stats.swapOuts.Add(1)
	c.invoke(HookPosSwapOut, id, frame)

	return nil
}

func (c *Comp) countLoad(
	id vm.PageID,
	frame int,
	content vm.FrameContent,
	space *addressSpace,
) {
	switch content.(type) {
	case vm.Swapped:
		delete(space.swapped, id.VPN)
		c.stats.swapIns.Add(1)
		c.invoke(HookPosSwapIn, id, frame)
	case vm.CodeData:
		c.stats.sectionLoads.Add(1)
	case vm.Stack:
		c.stats.zeroFills.Add(1)
	}
}

func (c *Comp) publish(id vm.PageID, entry vm.TranslationEntry) {
	c.tlb.Install(id.PID, entry)
	c.transition(id, FaultPublished, entry.Frame, nil)
}

func (c *Comp) protectionFault(id vm.PageID) error {
	err := &vm.FaultError{
		PID: id.PID,
		VPN: id.VPN,
		Err: vm.ErrProtectionViolation,
	}

	c.stats.protectionFaults.Add(1)
	c.invoke(HookPosProtectionFault, id, nil)

	return err
}

func (c *Comp) fatal(id vm.PageID, frame int, cause error) error {
	err := &vm.FaultError{PID: id.PID, VPN: id.VPN, Err: cause}

	c.stats.fatalFaults.Add(1)
	c.transition(id, FaultFatal, frame, err)

	return err
}

func (c *Comp) transition(id vm.PageID, state FaultState, frame int, err error) {
	c.invoke(HookPosFault, id, FaultDetail{
		State: state,
		Frame: frame,
		Err:   err,
	})
}
