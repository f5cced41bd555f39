// Package internal provides the simulated hardware slot array of the TLB.
package internal

import (
	"log"

	"github.com/sarchlab/vmsim/mem/vm"
)

// A Slot is one hardware TLB entry. The PID tags the address space the
// translation belongs to.
type Slot struct {
	PID   vm.PID
	Entry vm.TranslationEntry
}

// PageID returns the page the slot translates.
func (s Slot) PageID() vm.PageID {
	return vm.PageID{PID: s.PID, VPN: s.Entry.VPN}
}

// Matches tells if the slot holds a valid translation of the page.
func (s Slot) Matches(pid vm.PID, vpn uint64) bool {
	return s.Entry.Valid && s.PID == pid && s.Entry.VPN == vpn
}

// Slots is a fixed-size array of hardware TLB entries that can be read,
// written, and invalidated by index.
type Slots interface {
	Len() int
	Read(index int) Slot
	Write(index int, slot Slot)
	Invalidate(index int)
}

// NewSlots creates numSlots slots, all invalid.
func NewSlots(numSlots int) Slots {
	if numSlots <= 0 {
		panic("a TLB must have at least one slot")
	}

	return &slotArray{slots: make([]Slot, numSlots)}
}

type slotArray struct {
	slots []Slot
}

func (a *slotArray) Len() int {
	return len(a.slots)
}

func (a *slotArray) Read(index int) Slot {
	a.indexMustBeInRange(index)
	return a.slots[index]
}

func (a *slotArray) Write(index int, slot Slot) {
	a.indexMustBeInRange(index)
	a.slots[index] = slot
}

func (a *slotArray) Invalidate(index int) {
	a.indexMustBeInRange(index)
	a.slots[index].Entry.Valid = false
}

func (a *slotArray) indexMustBeInRange(index int) {
	if index < 0 || index >= len(a.slots) {
		log.Panicf("TLB slot %d out of range [0, %d)", index, len(a.slots))
	}
}
