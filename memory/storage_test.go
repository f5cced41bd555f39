package memory_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/vmsim/memory"
)

var _ = Describe("Storage", func() {
	It("should read and write in single unit", func() {
		storage := memory.NewStorage(4096)
		Expect(storage.Write(0, []byte{1, 2, 3, 4})).To(Succeed())

		res, _ := storage.Read(0, 2)
		Expect(res).To(Equal([]byte{1, 2}))

		res, _ = storage.Read(1, 2)
		Expect(res).To(Equal([]byte{2, 3}))
	})

	It("should read and write across units", func() {
		storage := memory.NewStorage(8192)
		Expect(storage.Write(4094, []byte{1, 2, 3, 4})).To(Succeed())

		res, _ := storage.Read(4094, 4)
		Expect(res).To(Equal([]byte{1, 2, 3, 4}))
	})

	It("should return error if accessing over the capacity", func() {
		storage := memory.NewStorage(4096)
		err := storage.Write(4097, []byte{1})
		Expect(err).To(MatchError(memory.ErrOutOfRange))

		_, err = storage.Read(4096, 1)
		Expect(err).To(MatchError(memory.ErrOutOfRange))
	})

	Context("frames", func() {
		var storage *memory.Storage

		BeforeEach(func() {
			storage = memory.NewFrameStorage(4, 4)
		})

		It("should report geometry", func() {
			Expect(storage.NumFrames()).To(Equal(4))
			Expect(storage.FrameSize()).To(Equal(uint64(16)))
			Expect(storage.FrameAddress(2)).To(Equal(uint64(32)))
			Expect(storage.Capacity()).To(Equal(uint64(64)))
		})

		It("should read untouched frames as zero", func() {
			data, err := storage.ReadFrame(3)

			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal(make([]byte, 16)))
		})

		It("should pad short frame writes", func() {
			Expect(storage.WriteFrame(1, []byte{9, 9})).To(Succeed())

			data, _ := storage.ReadFrame(1)
			expected := make([]byte, 16)
			expected[0], expected[1] = 9, 9
			Expect(data).To(Equal(expected))
		})

		It("should zero a frame", func() {
			Expect(storage.WriteFrame(0, []byte{1, 2, 3})).To(Succeed())
			Expect(storage.ZeroFrame(0)).To(Succeed())

			data, _ := storage.ReadFrame(0)
			Expect(data).To(Equal(make([]byte, 16)))
		})

		It("should reject oversized writes and bad frames", func() {
			Expect(storage.WriteFrame(0, make([]byte, 17))).NotTo(Succeed())
			_, err := storage.ReadFrame(4)
			Expect(err).To(MatchError(memory.ErrOutOfRange))
		})
	})
})
