package vmm

import (
	"fmt"
	"sync/atomic"

	"github.com/sarchlab/vmsim/mem/vm"
)

type counters struct {
	faults           atomic.Uint64
	tlbHits          atomic.Uint64
	tlbMisses        atomic.Uint64
	sectionLoads     atomic.Uint64
	zeroFills        atomic.Uint64
	swapIns          atomic.Uint64
	swapOuts         atomic.Uint64
	evictions        atomic.Uint64
	protectionFaults atomic.Uint64
	fatalFaults      atomic.Uint64
	terminations     atomic.Uint64
}

// Stats counts what the manager has done since it was built.
type Stats struct {
	Faults           uint64
	TLBHits          uint64
	TLBMisses        uint64
	SectionLoads     uint64
	ZeroFills        uint64
	SwapIns          uint64
	SwapOuts         uint64
	Evictions        uint64
	ProtectionFaults uint64
	FatalFaults      uint64
	Terminations     uint64
}

// Stats returns a snapshot of the counters.
func (c *Comp) Stats() Stats {
	return Stats{
		Faults:           c.stats.faults.Load(),
		TLBHits:          c.stats.tlbHits.Load(),
		TLBMisses:        c.stats.tlbMisses.Load(),
		SectionLoads:     c.stats.sectionLoads.Load(),
		ZeroFills:        c.stats.zeroFills.Load(),
		SwapIns:          c.stats.swapIns.Load(),
		SwapOuts:         c.stats.swapOuts.Load(),
		Evictions:        c.stats.evictions.Load(),
		ProtectionFaults: c.stats.protectionFaults.Load(),
		FatalFaults:      c.stats.fatalFaults.Load(),
		Terminations:     c.stats.terminations.Load(),
	}
}

// FrameStatus describes one physical frame.
type FrameStatus struct {
	Frame    int
	Occupied bool
	Owner    vm.PageID
	Entry    vm.TranslationEntry
	Content  string
}

// TLBEntry is a valid hardware TLB slot.
type TLBEntry struct {
	PID   vm.PID
	Entry vm.TranslationEntry
}

// Frames returns the status of every frame, by frame number.
func (c *Comp) Frames() []FrameStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	records := c.coreMap.Records()
	frames := make([]FrameStatus, len(records))

	for i, r := range records {
		frames[i] = FrameStatus{
			Frame:    i,
			Occupied: r.Occupied(),
			Owner:    r.Owner,
			Entry:    r.Entry,
			Content:  vm.ContentKind(r.Content),
		}
	}

	return frames
}

// FreeFrames returns the free frames, in the order they will be used.
func (c *Comp) FreeFrames() []int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.clock.FreeFrames()
}

// ResidentFrames returns the resident frames, in clock order.
func (c *Comp) ResidentFrames() []int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.clock.ResidentFrames()
}

// TLBEntries returns the valid TLB slots.
func (c *Comp) TLBEntries() []TLBEntry {
	slots := c.tlb.Entries()
	entries := make([]TLBEntry, len(slots))

	for i, s := range slots {
		entries[i] = TLBEntry{PID: s.PID, Entry: s.Entry}
	}

	return entries
}

// CheckInvariants verifies that the free list and the resident queue
// partition the frames, that the resident queue holds exactly the occupied
// frames, that the core map and the inverted page table agree, and that
// every TLB entry translates a resident page to its frame.
func (c *Comp) CheckInvariants() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.clock.CheckPartition(); err != nil {
		return err
	}

	if err := c.coreMap.CheckInvariants(); err != nil {
		return err
	}

	for _, frame := range c.clock.ResidentFrames() {
		if !c.coreMap.Record(frame).Occupied() {
			return fmt.Errorf("resident frame %d holds no page", frame)
		}
	}

	for _, frame := range c.clock.FreeFrames() {
		if c.coreMap.Record(frame).Occupied() {
			return fmt.Errorf("free frame %d holds page %s",
				frame, c.coreMap.Record(frame).Owner)
		}
	}

	for _, s := range c.tlb.Entries() {
		id := vm.PageID{PID: s.PID, VPN: s.Entry.VPN}

		frame, found := c.coreMap.Lookup(id)
		if !found || frame != s.Entry.Frame {
			return fmt.Errorf("tlb translates page %s to frame %d, "+
				"which does not hold it", id, s.Entry.Frame)
		}
	}

	return nil
}
