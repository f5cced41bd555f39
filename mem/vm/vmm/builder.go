package vmm

import (
	"github.com/sarchlab/vmsim/mem/vm"
	"github.com/sarchlab/vmsim/mem/vm/coremap"
	"github.com/sarchlab/vmsim/mem/vm/loader"
	"github.com/sarchlab/vmsim/mem/vm/replacement"
	"github.com/sarchlab/vmsim/mem/vm/swap"
	"github.com/sarchlab/vmsim/mem/vm/tlb"
	"github.com/sarchlab/vmsim/memory"
	"github.com/sarchlab/vmsim/sim"
)

// A TerminationHandler is notified when the manager has to terminate a
// process, after the address space of the process has been released.
type TerminationHandler func(pid vm.PID, err error)

// A Builder can build virtual memory managers.
type Builder struct {
	numFrames     int
	log2PageSize  uint64
	tlbSize       int
	seed          int64
	store         swap.Store
	chooser       tlb.SlotChooser
	onTermination TerminationHandler
}

// MakeBuilder returns a Builder with 16 frames of 1 KiB, a 4-slot TLB, and
// an in-memory swap store.
func MakeBuilder() Builder {
	return Builder{
		numFrames:    16,
		log2PageSize: 10,
		tlbSize:      4,
		seed:         1,
	}
}

// WithNumFrames sets the number of physical frames.
func (b Builder) WithNumFrames(n int) Builder {
	b.numFrames = n
	return b
}

// WithLog2PageSize sets the page size, as a power of 2.
func (b Builder) WithLog2PageSize(n uint64) Builder {
	b.log2PageSize = n
	return b
}

// WithTLBSize sets the number of hardware TLB slots.
func (b Builder) WithTLBSize(n int) Builder {
	b.tlbSize = n
	return b
}

// WithSeed sets the seed of the random TLB slot chooser. It has no effect if
// a slot chooser is given.
func (b Builder) WithSeed(seed int64) Builder {
	b.seed = seed
	return b
}

// WithSwap sets the backing store of evicted pages.
func (b Builder) WithSwap(store swap.Store) Builder {
	b.store = store
	return b
}

// WithSlotChooser sets how the TLB picks a slot to overwrite when full.
func (b Builder) WithSlotChooser(chooser tlb.SlotChooser) Builder {
	b.chooser = chooser
	return b
}

// WithTerminationHandler sets the function called when a process has to be
// terminated by the manager.
func (b Builder) WithTerminationHandler(h TerminationHandler) Builder {
	b.onTermination = h
	return b
}

// Build creates a new manager.
func (b Builder) Build(name string) *Comp {
	if b.numFrames <= 0 {
		panic("number of frames must be positive")
	}

	if b.tlbSize <= 0 {
		panic("tlb size must be positive")
	}

	c := &Comp{
		HookableBase:  sim.NewHookableBase(),
		name:          name,
		log2PageSize:  b.log2PageSize,
		memory:        memory.NewFrameStorage(b.numFrames, b.log2PageSize),
		coreMap:       coremap.New(b.numFrames),
		store:         b.store,
		spaces:        make(map[vm.PID]*addressSpace),
		onTermination: b.onTermination,
	}

	if c.store == nil {
		c.store = swap.NewMemoryStore()
	}

	c.clock = replacement.NewClock(b.numFrames, c.coreMap)
	c.tlb = tlb.MakeBuilder().
		WithNumSlots(b.tlbSize).
		WithWriteBackSink(c.coreMap).
		WithSlotChooser(b.chooser).
		WithSeed(b.seed).
		Build(name + ".TLB")
	c.loader = loader.New(c.store, c.memory)

	return c
}
