// Package tlb mirrors the hardware translation cache against the core map.
// The TLB is only ever a cache: the core map stays authoritative.
package tlb

import (
	"log"
	"sync"

	"github.com/sarchlab/vmsim/mem/vm"
	"github.com/sarchlab/vmsim/mem/vm/tlb/internal"
	"github.com/sarchlab/vmsim/sim"
)

// Hook positions at which the TLB invokes its hooks. The hook item is the
// PageID involved.
var (
	HookPosHit        = &sim.HookPos{Name: "TLBHit"}
	HookPosMiss       = &sim.HookPos{Name: "TLBMiss"}
	HookPosInstall    = &sim.HookPos{Name: "TLBInstall"}
	HookPosEvict      = &sim.HookPos{Name: "TLBEvict"}
	HookPosInvalidate = &sim.HookPos{Name: "TLBInvalidate"}
)

// A WriteBackSink receives the used and dirty bits collected by the TLB.
type WriteBackSink interface {
	WriteBack(id vm.PageID, frame int, used, dirty bool)
}

// Comp is the TLB synchronizer. All operations are serialized by its own
// lock, independent of the fault handling critical section.
type Comp struct {
	*sim.HookableBase

	name    string
	lock    sync.Mutex
	slots   internal.Slots
	sink    WriteBackSink
	chooser SlotChooser
}

type hookEvent struct {
	pos *sim.HookPos
	id  vm.PageID
}

// Name returns the name of the TLB.
func (c *Comp) Name() string {
	return c.name
}

// NumSlots returns the number of hardware slots.
func (c *Comp) NumSlots() int {
	return c.slots.Len()
}

// Lookup searches for a valid translation of the page. A read-only hit on a
// write access is a protection fault, reported with hit set and
// vm.ErrProtectionViolation. Otherwise a hit marks the entry used, and dirty
// for writes.
func (c *Comp) Lookup(
	pid vm.PID,
	vpn uint64,
	write bool,
) (entry vm.TranslationEntry, hit bool, err error) {
	id := vm.PageID{PID: pid, VPN: vpn}

	c.lock.Lock()
	index := c.find(pid, vpn)
	if index < 0 {
		c.lock.Unlock()
		c.invoke(hookEvent{HookPosMiss, id})

		return vm.TranslationEntry{}, false, nil
	}

	slot := c.slots.Read(index)
	if write && slot.Entry.ReadOnly {
		c.lock.Unlock()
		return slot.Entry, true, vm.ErrProtectionViolation
	}

	slot.Entry.Used = true
	slot.Entry.Dirty = slot.Entry.Dirty || write
	c.slots.Write(index, slot)
	c.lock.Unlock()

	c.invoke(hookEvent{HookPosHit, id})

	return slot.Entry, true, nil
}

// Install writes a translation into the TLB. A slot already translating the
// same page is reused. Otherwise the first invalid slot is used, and when
// there is none the chooser picks a slot to evict. The bits of a replaced
// translation are written back before it is overwritten.
func (c *Comp) Install(pid vm.PID, entry vm.TranslationEntry) {
	if !entry.Valid {
		log.Panicf("installing invalid translation of vpn %d", entry.VPN)
	}

	events := []hookEvent{{HookPosInstall, vm.PageID{PID: pid, VPN: entry.VPN}}}

	c.lock.Lock()
	index := c.find(pid, entry.VPN)
	if index < 0 {
		index = c.findInvalid()
	}

	if index < 0 {
		index = c.chooser.ChooseSlot(c.slots.Len())
		events = append(events,
			hookEvent{HookPosEvict, c.slots.Read(index).PageID()})
	}

	c.writeBack(index)
	c.slots.Write(index, internal.Slot{PID: pid, Entry: entry})
	c.lock.Unlock()

	c.invoke(events...)
}

// Invalidate drops the translation of a page, after writing its bits back.
// It reports whether a translation was found.
func (c *Comp) Invalidate(pid vm.PID, vpn uint64) bool {
	c.lock.Lock()
	index := c.find(pid, vpn)
	if index < 0 {
		c.lock.Unlock()
		return false
	}

	c.writeBack(index)
	c.slots.Invalidate(index)
	c.lock.Unlock()

	c.invoke(hookEvent{HookPosInvalidate, vm.PageID{PID: pid, VPN: vpn}})

	return true
}

// InvalidateProcess drops every translation of a process. It returns the
// number of slots invalidated.
func (c *Comp) InvalidateProcess(pid vm.PID) int {
	return c.invalidateIf(func(s internal.Slot) bool {
		return s.PID == pid
	})
}

// InvalidateAll drops every translation.
func (c *Comp) InvalidateAll() int {
	return c.invalidateIf(func(internal.Slot) bool { return true })
}

func (c *Comp) invalidateIf(match func(internal.Slot) bool) int {
	var events []hookEvent

	c.lock.Lock()
	for i := 0; i < c.slots.Len(); i++ {
		slot := c.slots.Read(i)
		if !slot.Entry.Valid || !match(slot) {
			continue
		}

		c.writeBack(i)
		c.slots.Invalidate(i)
		events = append(events, hookEvent{HookPosInvalidate, slot.PageID()})
	}
	c.lock.Unlock()

	c.invoke(events...)

	return len(events)
}

// WriteBackAll copies the used and dirty bits of every valid slot into the
// core map. The used bits are cleared in the TLB afterwards, since the core
// map now owns that reference.
func (c *Comp) WriteBackAll() {
	c.lock.Lock()
	defer c.lock.Unlock()

	for i := 0; i < c.slots.Len(); i++ {
		if !c.slots.Read(i).Entry.Valid {
			continue
		}

		c.writeBack(i)
	}
}

// Entries returns a copy of the valid slots, in slot order.
func (c *Comp) Entries() []internal.Slot {
	c.lock.Lock()
	defer c.lock.Unlock()

	var slots []internal.Slot
	for i := 0; i < c.slots.Len(); i++ {
		slot := c.slots.Read(i)
		if slot.Entry.Valid {
			slots = append(slots, slot)
		}
	}

	return slots
}

func (c *Comp) writeBack(index int) {
	slot := c.slots.Read(index)
	if !slot.Entry.Valid {
		return
	}

	if c.sink != nil {
		c.sink.WriteBack(slot.PageID(), slot.Entry.Frame,
			slot.Entry.Used, slot.Entry.Dirty)
	}

	slot.Entry.Used = false
	c.slots.Write(index, slot)
}

func (c *Comp) find(pid vm.PID, vpn uint64) int {
	for i := 0; i < c.slots.Len(); i++ {
		if c.slots.Read(i).Matches(pid, vpn) {
			return i
		}
	}

	return -1
}

func (c *Comp) findInvalid() int {
	for i := 0; i < c.slots.Len(); i++ {
		if !c.slots.Read(i).Entry.Valid {
			return i
		}
	}

	return -1
}

func (c *Comp) invoke(events ...hookEvent) {
	if c.NumHooks() == 0 {
		return
	}

	for _, e := range events {
		c.InvokeHook(sim.HookCtx{
			Domain: c,
			Pos:    e.pos,
			Item:   e.id,
		})
	}
}
