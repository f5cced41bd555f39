package memory

import (
	"errors"
	"fmt"
	"sync"
)

// ErrOutOfRange is returned when accessing beyond the storage capacity.
var ErrOutOfRange = errors.New(
	"accessing physical address beyond the storage capacity")

// A Storage keeps the data of the simulated physical memory.
//
// The storage manages the data in units, one unit per frame. For the units
// that are not touched by Read and Write functions, no memory will be
// allocated, and they read as zero.
type Storage struct {
	sync.RWMutex
	unitSize uint64
	capacity uint64
	data     map[uint64][]byte
}

// NewStorage creates a storage object with the specified capacity and 4 KiB
// units.
func NewStorage(capacity uint64) *Storage {
	return NewFrameStorage(int(capacity/4096), 12)
}

// NewFrameStorage creates a storage that holds numFrames frames of
// 1<<log2FrameSize bytes each.
func NewFrameStorage(numFrames int, log2FrameSize uint64) *Storage {
	if numFrames <= 0 {
		panic("storage must have at least one frame")
	}

	storage := new(Storage)

	storage.unitSize = 1 << log2FrameSize
	storage.capacity = uint64(numFrames) * storage.unitSize
	storage.data = make(map[uint64][]byte)

	return storage
}

// FrameSize returns the number of bytes in a frame.
func (s *Storage) FrameSize() uint64 {
	return s.unitSize
}

// NumFrames returns the number of frames in the storage.
func (s *Storage) NumFrames() int {
	return int(s.capacity / s.unitSize)
}

// Capacity returns the number of bytes in the storage.
func (s *Storage) Capacity() uint64 {
	return s.capacity
}

// FrameAddress returns the physical address of the first byte of a frame.
func (s *Storage) FrameAddress(frame int) uint64 {
	return uint64(frame) * s.unitSize
}

// createOrGetStorageUnit retrieves a storage unit if the unit has been created
// before. Otherwise it initilizes a storage unit in the storage object
func (s *Storage) createOrGetStorageUnit(address uint64) ([]byte, error) {
	if address >= s.capacity {
		return nil, ErrOutOfRange
	}

	baseAddr, _ := s.parseAddress(address)
	unit, ok := s.data[baseAddr]
	if !ok {
		unit = make([]byte, s.unitSize)
		s.data[baseAddr] = unit
	}
	return unit, nil
}

func (s *Storage) parseAddress(addr uint64) (baseAddr, inUnitAddr uint64) {
	inUnitAddr = addr % s.unitSize
	baseAddr = addr - inUnitAddr
	return
}

// Read copies len bytes starting at address.
func (s *Storage) Read(address uint64, len uint64) ([]byte, error) {
	s.Lock()
	defer s.Unlock()

	if address+len > s.capacity {
		return nil, ErrOutOfRange
	}

	currAddr := address
	lenLeft := len
	dataOffset := uint64(0)
	res := make([]byte, len)

	for currAddr < address+len {
		unit, err := s.createOrGetStorageUnit(currAddr)
		if err != nil {
			return nil, err
		}

		baseAddr, inUnitAddr := s.parseAddress(currAddr)
		lenLeftInUnit := baseAddr + s.unitSize - currAddr
		lenToRead := min(lenLeft, lenLeftInUnit)

		copy(res[dataOffset:dataOffset+lenToRead],
			unit[inUnitAddr:inUnitAddr+lenToRead])
		lenLeft -= lenToRead
		dataOffset += lenToRead
		currAddr += lenToRead
	}

	return res, nil
}

// Write copies data into the storage starting at address.
func (s *Storage) Write(address uint64, data []byte) error {
	s.Lock()
	defer s.Unlock()

	if address+uint64(len(data)) > s.capacity {
		return ErrOutOfRange
	}

	currAddr := address
	dataOffset := uint64(0)

	for dataOffset < uint64(len(data)) {
		unit, err := s.createOrGetStorageUnit(currAddr)
		if err != nil {
			return err
		}

		_, inUnitAddr := s.parseAddress(currAddr)
		lenLeftInData := uint64(len(data)) - dataOffset
		lenLeftInUnit := s.unitSize - inUnitAddr
		lenToWrite := min(lenLeftInData, lenLeftInUnit)

		copy(unit[inUnitAddr:inUnitAddr+lenToWrite],
			data[dataOffset:dataOffset+lenToWrite])
		dataOffset += lenToWrite
		currAddr += lenToWrite
	}

	return nil
}

// ReadFrame returns a copy of the content of a frame.
func (s *Storage) ReadFrame(frame int) ([]byte, error) {
	if err := s.checkFrame(frame); err != nil {
		return nil, err
	}

	return s.Read(s.FrameAddress(frame), s.unitSize)
}

// WriteFrame overwrites a frame. Data shorter than a frame is padded with
// zeros.
func (s *Storage) WriteFrame(frame int, data []byte) error {
	if err := s.checkFrame(frame); err != nil {
		return err
	}

	if uint64(len(data)) > s.unitSize {
		return fmt.Errorf("frame data of %d bytes exceeds frame size %d",
			len(data), s.unitSize)
	}

	buf := make([]byte, s.unitSize)
	copy(buf, data)

	return s.Write(s.FrameAddress(frame), buf)
}

// ZeroFrame fills a frame with zeros.
func (s *Storage) ZeroFrame(frame int) error {
	return s.WriteFrame(frame, nil)
}

func (s *Storage) checkFrame(frame int) error {
	if frame < 0 || frame >= s.NumFrames() {
		return fmt.Errorf("frame %d: %w", frame, ErrOutOfRange)
	}

	return nil
}
