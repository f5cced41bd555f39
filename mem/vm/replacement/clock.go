// Package replacement hands out physical frames, evicting resident pages with
// the second-chance (clock) policy when no frame is free.
package replacement

import (
	"container/list"
	"fmt"
	"log"
	"sort"

	"github.com/sarchlab/vmsim/mem/vm"
)

// A FrameTable exposes the reference bits of the resident frames.
type FrameTable interface {
	Referenced(frame int) bool
	ClearReferenced(frame int)
}

// An Evictor removes the current page from a frame selected as victim. When
// Evict returns, the frame must be empty.
type Evictor interface {
	Evict(frame int)
}

// EvictorFunc turns a function into an Evictor.
type EvictorFunc func(frame int)

// Evict calls f.
func (f EvictorFunc) Evict(frame int) {
	f(frame)
}

// A Clock keeps every frame either in the free list or in the resident
// queue. A frame handed out by Acquire is in neither until the caller Admits
// or Releases it.
type Clock struct {
	table     FrameTable
	numFrames int

	free         *list.List
	freeElems    map[int]*list.Element
	resident     *list.List
	residentElem map[int]*list.Element
}

// NewClock creates a Clock over numFrames frames, all free.
func NewClock(numFrames int, table FrameTable) *Clock {
	if numFrames <= 0 {
		panic("clock must manage at least one frame")
	}

	c := &Clock{
		table:        table,
		numFrames:    numFrames,
		free:         list.New(),
		freeElems:    make(map[int]*list.Element),
		resident:     list.New(),
		residentElem: make(map[int]*list.Element),
	}

	for i := 0; i < numFrames; i++ {
		c.freeElems[i] = c.free.PushBack(i)
	}

	return c
}

// Acquire returns a frame for a new mapping. A free frame is used first.
// Otherwise the resident queue is swept from the front: a frame whose page
// was referenced loses its used bit and goes to the back; the first frame
// found unreferenced is the victim and is evicted before being returned.
func (c *Clock) Acquire(evictor Evictor) (int, error) {
	if c.free.Len() > 0 {
		elem := c.free.Front()
		frame := c.free.Remove(elem).(int)
		delete(c.freeElems, frame)

		return frame, nil
	}

	if c.resident.Len() == 0 {
		return 0, vm.ErrNoFrame
	}

	victim := c.findVictim()
	evictor.Evict(victim)

	return victim, nil
}

func (c *Clock) findVictim() int {
	for {
		elem := c.resident.Front()
		frame := c.resident.Remove(elem).(int)

		if !c.table.Referenced(frame) {
			delete(c.residentElem, frame)
			return frame
		}

		c.table.ClearReferenced(frame)
		c.residentElem[frame] = c.resident.PushBack(frame)
	}
}

// Admit puts a frame that now holds a page at the back of the resident
// queue.
func (c *Clock) Admit(frame int) {
	c.frameMustBeInFlight(frame)

	c.residentElem[frame] = c.resident.PushBack(frame)
}

// Release returns a frame to the free list without any write-back. The frame
// may be resident or in flight. Releasing a free frame is a programming
// error.
func (c *Clock) Release(frame int) {
	c.frameMustBeInRange(frame)

	if _, isFree := c.freeElems[frame]; isFree {
		log.Panicf("frame %d released twice", frame)
	}

	if elem, isResident := c.residentElem[frame]; isResident {
		c.resident.Remove(elem)
		delete(c.residentElem, frame)
	}

	c.freeElems[frame] = c.free.PushBack(frame)
}

// NumFree returns the number of free frames.
func (c *Clock) NumFree() int {
	return c.free.Len()
}

// NumResident returns the number of resident frames.
func (c *Clock) NumResident() int {
	return c.resident.Len()
}

// FreeFrames returns the free frames, in the order they will be handed out.
func (c *Clock) FreeFrames() []int {
	return listToSlice(c.free)
}

// ResidentFrames returns the resident frames, in clock order.
func (c *Clock) ResidentFrames() []int {
	return listToSlice(c.resident)
}

// CheckPartition verifies that every frame is either free or resident, and
// never both.
func (c *Clock) CheckPartition() error {
	frames := append(c.FreeFrames(), c.ResidentFrames()...)
	if len(frames) != c.numFrames {
		return fmt.Errorf("%d free + %d resident frames, want %d",
			c.free.Len(), c.resident.Len(), c.numFrames)
	}

	sort.Ints(frames)
	for i, frame := range frames {
		if frame != i {
			return fmt.Errorf("frame %d is missing or duplicated", i)
		}
	}

	return nil
}

func (c *Clock) frameMustBeInFlight(frame int) {
	c.frameMustBeInRange(frame)

	if _, isFree := c.freeElems[frame]; isFree {
		log.Panicf("frame %d is free", frame)
	}

	if _, isResident := c.residentElem[frame]; isResident {
		log.Panicf("frame %d is already resident", frame)
	}
}

func (c *Clock) frameMustBeInRange(frame int) {
	if frame < 0 || frame >= c.numFrames {
		log.Panicf("frame %d out of range [0, %d)", frame, c.numFrames)
	}
}

func listToSlice(l *list.List) []int {
	frames := make([]int, 0, l.Len())
	for e := l.Front(); e != nil; e = e.Next() {
		frames = append(frames, e.Value.(int))
	}

	return frames
}
