package tlb

import (
	"math/rand"
)

// A SlotChooser decides which slot to overwrite when every slot holds a
// valid translation.
type SlotChooser interface {
	ChooseSlot(numSlots int) int
}

// RandomSlotChooser picks a slot uniformly at random.
type RandomSlotChooser struct {
	rng *rand.Rand
}

// NewRandomSlotChooser returns a RandomSlotChooser seeded with seed.
func NewRandomSlotChooser(seed int64) *RandomSlotChooser {
	return &RandomSlotChooser{rng: rand.New(rand.NewSource(seed))}
}

// ChooseSlot returns a random slot index. It is called with the TLB lock
// held, so the generator is never shared.
func (c *RandomSlotChooser) ChooseSlot(numSlots int) int {
	return c.rng.Intn(numSlots)
}

// FirstSlotChooser always overwrites slot 0.
type FirstSlotChooser struct{}

// ChooseSlot returns 0.
func (FirstSlotChooser) ChooseSlot(int) int {
	return 0
}

// RoundRobinSlotChooser walks the slots in order.
type RoundRobinSlotChooser struct {
	next int
}

// ChooseSlot returns the slot after the one returned last time.
func (c *RoundRobinSlotChooser) ChooseSlot(numSlots int) int {
	slot := c.next % numSlots
	c.next = slot + 1

	return slot
}
