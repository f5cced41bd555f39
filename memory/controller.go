package memory

// A Controller defines the interface to the physical memory of the machine.
// Besides byte-addressed reads and writes, it offers frame-granular access
// for the paging components. A frame is a unit of FrameSize bytes.
type Controller interface {
	Read(address uint64, len uint64) ([]byte, error)
	Write(address uint64, data []byte) error

	FrameSize() uint64
	NumFrames() int
	FrameAddress(frame int) uint64
	ReadFrame(frame int) ([]byte, error)
	WriteFrame(frame int, data []byte) error
	ZeroFrame(frame int) error
}
