package tlb

import (
	"github.com/sarchlab/vmsim/mem/vm/tlb/internal"
	"github.com/sarchlab/vmsim/sim"
)

// A Builder can build TLBs
type Builder struct {
	numSlots int
	sink     WriteBackSink
	chooser  SlotChooser
	seed     int64
}

// MakeBuilder returns a Builder
func MakeBuilder() Builder {
	return Builder{
		numSlots: 4,
		seed:     1,
	}
}

// WithNumSlots sets the number of hardware slots in the TLB.
func (b Builder) WithNumSlots(n int) Builder {
	b.numSlots = n
	return b
}

// WithWriteBackSink sets where the used and dirty bits of replaced and
// invalidated translations go. It is normally the core map.
func (b Builder) WithWriteBackSink(sink WriteBackSink) Builder {
	b.sink = sink
	return b
}

// WithSlotChooser sets the policy that picks the slot to overwrite when the
// TLB is full. The default is a RandomSlotChooser.
func (b Builder) WithSlotChooser(chooser SlotChooser) Builder {
	b.chooser = chooser
	return b
}

// WithSeed sets the seed of the default random slot chooser.
func (b Builder) WithSeed(seed int64) Builder {
	b.seed = seed
	return b
}

// Build creates a new TLB
func (b Builder) Build(name string) *Comp {
	c := &Comp{
		HookableBase: sim.NewHookableBase(),
		name:         name,
		slots:        internal.NewSlots(b.numSlots),
		sink:         b.sink,
		chooser:      b.chooser,
	}

	if c.chooser == nil {
		c.chooser = NewRandomSlotChooser(b.seed)
	}

	return c
}
