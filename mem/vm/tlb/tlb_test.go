package tlb

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/vmsim/mem/vm"
	"github.com/sarchlab/vmsim/sim"
)

func validEntry(vpn uint64, frame int) vm.TranslationEntry {
	return vm.TranslationEntry{VPN: vpn, Frame: frame, Valid: true}
}

var _ = Describe("TLB", func() {
	var (
		mockCtrl *gomock.Controller
		sink     *MockWriteBackSink
		chooser  *MockSlotChooser
		tlb      *Comp
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		sink = NewMockWriteBackSink(mockCtrl)
		chooser = NewMockSlotChooser(mockCtrl)

		tlb = MakeBuilder().
			WithNumSlots(2).
			WithWriteBackSink(sink).
			WithSlotChooser(chooser).
			Build("TLB")
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should miss when empty", func() {
		_, hit, err := tlb.Lookup(1, 0, false)

		Expect(err).NotTo(HaveOccurred())
		Expect(hit).To(BeFalse())
	})

	Context("hit", func() {
		BeforeEach(func() {
			tlb.Install(1, validEntry(5, 3))
		})

		It("should set the used bit on read", func() {
			entry, hit, err := tlb.Lookup(1, 5, false)

			Expect(err).NotTo(HaveOccurred())
			Expect(hit).To(BeTrue())
			Expect(entry.Frame).To(Equal(3))
			Expect(entry.Used).To(BeTrue())
			Expect(entry.Dirty).To(BeFalse())
		})

		It("should set the dirty bit on write", func() {
			entry, _, _ := tlb.Lookup(1, 5, true)
			Expect(entry.Dirty).To(BeTrue())

			entry, _, _ = tlb.Lookup(1, 5, false)
			Expect(entry.Dirty).To(BeTrue())
			Expect(tlb.Entries()[0].Entry.Dirty).To(BeTrue())
		})

		It("should not match another process", func() {
			_, hit, _ := tlb.Lookup(2, 5, false)
			Expect(hit).To(BeFalse())
		})
	})

	It("should report a protection fault on read-only write", func() {
		entry := validEntry(5, 3)
		entry.ReadOnly = true
		tlb.Install(1, entry)

		got, hit, err := tlb.Lookup(1, 5, true)

		Expect(err).To(MatchError(vm.ErrProtectionViolation))
		Expect(hit).To(BeTrue())
		Expect(got.Dirty).To(BeFalse())
		Expect(tlb.Entries()[0].Entry.Used).To(BeFalse())
	})

	It("should reuse the slot of the same page", func() {
		tlb.Install(1, validEntry(5, 3))
		tlb.Lookup(1, 5, true)

		sink.EXPECT().WriteBack(vm.PageID{PID: 1, VPN: 5}, 3, true, true)
		tlb.Install(1, validEntry(5, 3))

		Expect(tlb.Entries()).To(HaveLen(1))
	})

	It("should use the chooser and write back when full", func() {
		tlb.Install(1, validEntry(0, 0))
		tlb.Install(1, validEntry(1, 1))
		tlb.Lookup(1, 1, true)

		chooser.EXPECT().ChooseSlot(2).Return(1)
		sink.EXPECT().WriteBack(vm.PageID{PID: 1, VPN: 1}, 1, true, true)

		tlb.Install(2, validEntry(7, 2))

		entries := tlb.Entries()
		Expect(entries).To(HaveLen(2))
		Expect(entries[0].PageID()).To(Equal(vm.PageID{PID: 1, VPN: 0}))
		Expect(entries[1].PageID()).To(Equal(vm.PageID{PID: 2, VPN: 7}))
	})

	It("should prefer an invalid slot over eviction", func() {
		tlb.Install(1, validEntry(0, 0))
		tlb.Install(1, validEntry(1, 1))

		sink.EXPECT().WriteBack(vm.PageID{PID: 1, VPN: 0}, 0, false, false)
		Expect(tlb.Invalidate(1, 0)).To(BeTrue())

		tlb.Install(1, validEntry(2, 2))

		Expect(tlb.Entries()).To(HaveLen(2))
	})

	It("should panic when installing an invalid entry", func() {
		Expect(func() {
			tlb.Install(1, vm.TranslationEntry{VPN: 1})
		}).To(Panic())
	})

	It("should report invalidating a missing page", func() {
		Expect(tlb.Invalidate(1, 9)).To(BeFalse())
	})

	It("should invalidate one process only", func() {
		tlb.Install(1, validEntry(0, 0))
		tlb.Install(2, validEntry(0, 1))

		sink.EXPECT().WriteBack(vm.PageID{PID: 1, VPN: 0}, 0, false, false)
		Expect(tlb.InvalidateProcess(1)).To(Equal(1))

		entries := tlb.Entries()
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].PID).To(Equal(vm.PID(2)))
	})

	It("should invalidate everything", func() {
		tlb.Install(1, validEntry(0, 0))
		tlb.Install(2, validEntry(0, 1))

		sink.EXPECT().WriteBack(gomock.Any(), gomock.Any(), false, false).Times(2)
		Expect(tlb.InvalidateAll()).To(Equal(2))
		Expect(tlb.Entries()).To(BeEmpty())
	})

	It("should move used bits to the sink", func() {
		tlb.Install(1, validEntry(4, 2))
		tlb.Lookup(1, 4, false)

		sink.EXPECT().WriteBack(vm.PageID{PID: 1, VPN: 4}, 2, true, false)
		tlb.WriteBackAll()

		Expect(tlb.Entries()[0].Entry.Used).To(BeFalse())
	})

	It("should invoke hooks", func() {
		var positions []string
		tlb.AcceptHook(sim.HookFunc(func(ctx sim.HookCtx) {
			positions = append(positions, ctx.Pos.Name)
		}))

		tlb.Lookup(1, 4, false)
		tlb.Install(1, validEntry(4, 2))
		tlb.Lookup(1, 4, false)

		Expect(positions).To(Equal([]string{"TLBMiss", "TLBInstall", "TLBHit"}))
	})
})

var _ = Describe("Slot choosers", func() {
	It("should stay in range when random", func() {
		chooser := NewRandomSlotChooser(42)
		for i := 0; i < 100; i++ {
			slot := chooser.ChooseSlot(4)
			Expect(slot).To(BeNumerically(">=", 0))
			Expect(slot).To(BeNumerically("<", 4))
		}
	})

	It("should repeat with the same seed", func() {
		a := NewRandomSlotChooser(7)
		b := NewRandomSlotChooser(7)
		for i := 0; i < 10; i++ {
			Expect(a.ChooseSlot(16)).To(Equal(b.ChooseSlot(16)))
		}
	})

	It("should walk slots round robin", func() {
		chooser := &RoundRobinSlotChooser{}

		Expect(chooser.ChooseSlot(3)).To(Equal(0))
		Expect(chooser.ChooseSlot(3)).To(Equal(1))
		Expect(chooser.ChooseSlot(3)).To(Equal(2))
		Expect(chooser.ChooseSlot(3)).To(Equal(0))
	})

	It("should always pick the first slot", func() {
		Expect(FirstSlotChooser{}.ChooseSlot(8)).To(Equal(0))
	})
})
