// Package coremap keeps the per-frame record of which page occupies each
// physical frame, together with the inverted page table that maps pages back
// to frames.
package coremap

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/sarchlab/vmsim/mem/vm"
)

// A FrameRecord describes the occupant of one physical frame.
type FrameRecord struct {
	Owner   vm.PageID
	Entry   vm.TranslationEntry
	Content vm.FrameContent
}

// Occupied tells if the record holds a page.
func (r FrameRecord) Occupied() bool {
	return r.Entry.Valid
}

// A CoreMap holds one record per physical frame and the inverted page table.
// Both views are only changed together, under the same lock, so no reader
// can see one updated without the other.
type CoreMap struct {
	sync.RWMutex
	frames   []FrameRecord
	inverted map[vm.PageID]int
}

// New creates a CoreMap for numFrames physical frames, all empty.
func New(numFrames int) *CoreMap {
	if numFrames <= 0 {
		panic("core map must have at least one frame")
	}

	return &CoreMap{
		frames:   make([]FrameRecord, numFrames),
		inverted: make(map[vm.PageID]int),
	}
}

// NumFrames returns the number of physical frames tracked.
func (m *CoreMap) NumFrames() int {
	return len(m.frames)
}

// Lookup returns the frame that holds the page. A frame is only returned if
// the record there is valid and owned by id.
func (m *CoreMap) Lookup(id vm.PageID) (frame int, found bool) {
	m.RLock()
	defer m.RUnlock()

	frame, found = m.inverted[id]
	if !found {
		return 0, false
	}

	record := m.frames[frame]
	if !record.Entry.Valid || record.Owner != id {
		return 0, false
	}

	return frame, true
}

// Entry returns the translation entry of a resident page.
func (m *CoreMap) Entry(id vm.PageID) (vm.TranslationEntry, bool) {
	m.RLock()
	defer m.RUnlock()

	frame, found := m.inverted[id]
	if !found {
		return vm.TranslationEntry{}, false
	}

	return m.frames[frame].Entry, true
}

// Record returns a copy of the record of a frame.
func (m *CoreMap) Record(frame int) FrameRecord {
	m.RLock()
	defer m.RUnlock()

	m.frameMustBeInRange(frame)

	return m.frames[frame]
}

// Records returns a copy of all the frame records, indexed by frame number.
func (m *CoreMap) Records() []FrameRecord {
	m.RLock()
	defer m.RUnlock()

	records := make([]FrameRecord, len(m.frames))
	copy(records, m.frames)

	return records
}

// Bind installs a page into an empty frame. The entry is stored valid, with
// its frame number set to frame.
func (m *CoreMap) Bind(
	id vm.PageID,
	frame int,
	entry vm.TranslationEntry,
	content vm.FrameContent,
) {
	m.Lock()
	defer m.Unlock()

	m.frameMustBeInRange(frame)

	if m.frames[frame].Entry.Valid {
		log.Panicf("frame %d is already bound to page %s",
			frame, m.frames[frame].Owner)
	}

	if other, found := m.inverted[id]; found {
		log.Panicf("page %s is already bound to frame %d", id, other)
	}

	entry.VPN = id.VPN
	entry.Frame = frame
	entry.Valid = true

	m.frames[frame] = FrameRecord{
		Owner:   id,
		Entry:   entry,
		Content: content,
	}
	m.inverted[id] = frame
}

// Unbind clears the occupancy of a frame and removes the page from the
// inverted page table. The returned record carries the last state of the
// page, marked invalid. Unbinding an empty frame is a programming error.
func (m *CoreMap) Unbind(frame int) FrameRecord {
	m.Lock()
	defer m.Unlock()

	m.frameMustBeInRange(frame)

	record := m.frames[frame]
	if !record.Entry.Valid {
		log.Panicf("frame %d is not bound", frame)
	}

	delete(m.inverted, record.Owner)
	m.frames[frame] = FrameRecord{}

	record.Entry.Valid = false

	return record
}

// Referenced tells if the page in the frame has its used bit set.
func (m *CoreMap) Referenced(frame int) bool {
	m.RLock()
	defer m.RUnlock()

	m.frameMustBeInRange(frame)

	return m.frames[frame].Entry.Used
}

// ClearReferenced clears the used bit of the page in the frame.
func (m *CoreMap) ClearReferenced(frame int) {
	m.Lock()
	defer m.Unlock()

	m.frameMustBeInRange(frame)

	m.frames[frame].Entry.Used = false
}

// WriteBack merges used and dirty bits gathered elsewhere (the TLB) into the
// record of the page. Bits for a page that no longer owns the frame are
// dropped.
func (m *CoreMap) WriteBack(id vm.PageID, frame int, used, dirty bool) {
	m.Lock()
	defer m.Unlock()

	if frame < 0 || frame >= len(m.frames) {
		return
	}

	record := &m.frames[frame]
	if !record.Entry.Valid || record.Owner != id {
		return
	}

	record.Entry.Used = record.Entry.Used || used
	record.Entry.Dirty = record.Entry.Dirty || dirty
}

// MarkAccess sets the used bit of a resident page, and the dirty bit if the
// access is a write.
func (m *CoreMap) MarkAccess(frame int, write bool) {
	m.Lock()
	defer m.Unlock()

	m.frameMustBeInRange(frame)

	record := &m.frames[frame]
	if !record.Entry.Valid {
		log.Panicf("access to unbound frame %d", frame)
	}

	record.Entry.Used = true
	if write {
		record.Entry.Dirty = true
	}
}

// PagesOf returns the resident pages of a process, ordered by VPN.
func (m *CoreMap) PagesOf(pid vm.PID) []vm.PageID {
	m.RLock()
	defer m.RUnlock()

	var pages []vm.PageID
	for id := range m.inverted {
		if id.PID == pid {
			pages = append(pages, id)
		}
	}

	sort.Slice(pages, func(i, j int) bool {
		return pages[i].VPN < pages[j].VPN
	})

	return pages
}

// NumResident returns the number of occupied frames.
func (m *CoreMap) NumResident() int {
	m.RLock()
	defer m.RUnlock()

	return len(m.inverted)
}

// CheckInvariants verifies that the frame records and the inverted page
// table describe the same mapping.
func (m *CoreMap) CheckInvariants() error {
	m.RLock()
	defer m.RUnlock()

	numValid := 0
	for frame, record := range m.frames {
		if !record.Entry.Valid {
			continue
		}

		numValid++

		if record.Entry.Frame != frame {
			return fmt.Errorf("frame %d holds an entry for frame %d",
				frame, record.Entry.Frame)
		}

		if record.Entry.VPN != record.Owner.VPN {
			return fmt.Errorf("frame %d holds vpn %d for owner %s",
				frame, record.Entry.VPN, record.Owner)
		}

		inverted, found := m.inverted[record.Owner]
		if !found || inverted != frame {
			return fmt.Errorf("page %s in frame %d is not in the "+
				"inverted page table", record.Owner, frame)
		}
	}

	if numValid != len(m.inverted) {
		return fmt.Errorf("%d valid frames but %d inverted entries",
			numValid, len(m.inverted))
	}

	return nil
}

func (m *CoreMap) frameMustBeInRange(frame int) {
	if frame < 0 || frame >= len(m.frames) {
		log.Panicf("frame %d out of range [0, %d)", frame, len(m.frames))
	}
}
