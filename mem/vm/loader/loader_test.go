package loader

import (
	"bytes"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/vmsim/mem/vm"
	"github.com/sarchlab/vmsim/memory"
)

var _ = Describe("Loader", func() {
	var (
		mockCtrl *gomock.Controller
		store    *MockStore
		sections *MockSectionSource
		storage  *memory.Storage
		loader   *Loader
		id       vm.PageID
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		store = NewMockStore(mockCtrl)
		sections = NewMockSectionSource(mockCtrl)
		storage = memory.NewFrameStorage(2, 4)
		loader = New(store, storage)
		id = vm.PageID{PID: 1, VPN: 3}

		Expect(storage.WriteFrame(1, bytes.Repeat([]byte{0xff}, 16))).
			To(Succeed())
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should restore a swapped page and release its slot", func() {
		data := bytes.Repeat([]byte{7}, 16)
		store.EXPECT().Fetch(id).Return(data, true, nil)
		sections.EXPECT().SectionFor(uint64(3)).
			Return(SectionPage{ReadOnly: true}, true, nil)
		store.EXPECT().Release(id)

		entry, content, err := loader.Load(id, 1, sections)

		Expect(err).NotTo(HaveOccurred())
		Expect(entry).To(Equal(vm.TranslationEntry{
			VPN: 3, Frame: 1, Valid: true, ReadOnly: true,
		}))
		Expect(content).To(Equal(vm.Swapped{ReadOnly: true}))
		frame, _ := storage.ReadFrame(1)
		Expect(frame).To(Equal(data))
	})

	It("should keep a swapped stack page writable", func() {
		store.EXPECT().Fetch(id).Return(make([]byte, 16), true, nil)
		sections.EXPECT().SectionFor(uint64(3)).
			Return(SectionPage{}, false, nil)
		store.EXPECT().Release(id)

		entry, content, err := loader.Load(id, 1, sections)

		Expect(err).NotTo(HaveOccurred())
		Expect(entry.ReadOnly).To(BeFalse())
		Expect(content).To(Equal(vm.Swapped{}))
	})

	It("should restore the protection recorded when the page was persisted", func() {
		data := bytes.Repeat([]byte{3}, 16)
		store.EXPECT().Persist(id, data).Return(nil)
		Expect(loader.Persist(id, data, true)).To(Succeed())

		store.EXPECT().Fetch(id).Return(data, true, nil)
		store.EXPECT().Release(id)

		entry, content, err := loader.Load(id, 1, sections)

		Expect(err).NotTo(HaveOccurred())
		Expect(entry.ReadOnly).To(BeTrue())
		Expect(content).To(Equal(vm.Swapped{ReadOnly: true}))
		frame, _ := storage.ReadFrame(1)
		Expect(frame).To(Equal(data))
	})

	It("should forget the recorded protection once the slot is released", func() {
		store.EXPECT().Persist(id, gomock.Any()).Return(nil)
		Expect(loader.Persist(id, make([]byte, 16), true)).To(Succeed())
		store.EXPECT().Release(id)
		loader.Release(id)

		store.EXPECT().Fetch(id).Return(make([]byte, 16), true, nil)
		sections.EXPECT().SectionFor(uint64(3)).
			Return(SectionPage{}, false, nil)
		store.EXPECT().Release(id)

		entry, _, err := loader.Load(id, 1, sections)

		Expect(err).NotTo(HaveOccurred())
		Expect(entry.ReadOnly).To(BeFalse())
	})

	It("should keep the slot when the protection cannot be looked up", func() {
		store.EXPECT().Fetch(id).Return(make([]byte, 16), true, nil)
		sections.EXPECT().SectionFor(uint64(3)).
			Return(SectionPage{}, false, errors.New("truncated executable"))

		_, _, err := loader.Load(id, 1, sections)

		Expect(err).To(MatchError(vm.ErrContentUnavailable))
	})

	It("should fail without releasing when the slot is corrupt", func() {
		store.EXPECT().Fetch(id).Return(nil, true, errors.New("bad slot"))

		_, _, err := loader.Load(id, 1, sections)

		Expect(err).To(MatchError(vm.ErrContentUnavailable))
	})

	It("should load a section page", func() {
		data := bytes.Repeat([]byte{5}, 16)
		store.EXPECT().Fetch(id).Return(nil, false, nil)
		sections.EXPECT().SectionFor(uint64(3)).
			Return(SectionPage{Section: 2, Data: data, ReadOnly: true}, true, nil)

		entry, content, err := loader.Load(id, 1, sections)

		Expect(err).NotTo(HaveOccurred())
		Expect(entry.ReadOnly).To(BeTrue())
		Expect(entry.Dirty).To(BeFalse())
		Expect(entry.Used).To(BeFalse())
		Expect(content).To(Equal(vm.CodeData{Section: 2, ReadOnly: true}))
		frame, _ := storage.ReadFrame(1)
		Expect(frame).To(Equal(data))
	})

	It("should fail when the section cannot supply bytes", func() {
		store.EXPECT().Fetch(id).Return(nil, false, nil)
		sections.EXPECT().SectionFor(uint64(3)).
			Return(SectionPage{}, false, errors.New("truncated executable"))

		_, _, err := loader.Load(id, 1, sections)

		Expect(err).To(MatchError(vm.ErrContentUnavailable))
	})

	It("should zero fill pages outside every section", func() {
		store.EXPECT().Fetch(id).Return(nil, false, nil)
		sections.EXPECT().SectionFor(uint64(3)).
			Return(SectionPage{}, false, nil)

		entry, content, err := loader.Load(id, 1, sections)

		Expect(err).NotTo(HaveOccurred())
		Expect(entry.ReadOnly).To(BeFalse())
		Expect(content).To(Equal(vm.Stack{}))
		frame, _ := storage.ReadFrame(1)
		Expect(frame).To(Equal(make([]byte, 16)))
	})

	It("should zero fill when the process has no sections", func() {
		store.EXPECT().Fetch(id).Return(nil, false, nil)

		_, content, err := loader.Load(id, 0, nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(content).To(Equal(vm.Stack{}))
	})
})

var _ = Describe("SectionTable", func() {
	It("should split sections into pages", func() {
		table, err := NewSectionTable(4,
			Section{Name: "text", FirstVPN: 0, ReadOnly: true,
				Data: []byte{1, 2, 3, 4, 5, 6}},
			Section{Name: "data", FirstVPN: 4, NumPages: 2,
				Data: []byte{9}},
		)
		Expect(err).NotTo(HaveOccurred())
		Expect(table.NumPages()).To(Equal(uint64(4)))

		page, found, err := table.SectionFor(1)
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(page).To(Equal(SectionPage{
			Section: 0, Data: []byte{5, 6, 0, 0}, ReadOnly: true,
		}))

		page, found, _ = table.SectionFor(5)
		Expect(found).To(BeTrue())
		Expect(page.Section).To(Equal(1))
		Expect(page.ReadOnly).To(BeFalse())
		Expect(page.Data).To(Equal([]byte{0, 0, 0, 0}))

		for _, vpn := range []uint64{2, 3, 6, 100} {
			_, found, _ = table.SectionFor(vpn)
			Expect(found).To(BeFalse())
		}
	})

	It("should reject overlapping sections", func() {
		_, err := NewSectionTable(4,
			Section{Name: "a", FirstVPN: 0, NumPages: 2},
			Section{Name: "b", FirstVPN: 1, NumPages: 1},
		)

		Expect(err).To(HaveOccurred())
	})

	It("should reject sections too small for their data", func() {
		_, err := NewSectionTable(4,
			Section{Name: "a", NumPages: 1, Data: make([]byte, 5)})

		Expect(err).To(HaveOccurred())
	})
})
