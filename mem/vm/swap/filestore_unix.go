//go:build unix

package swap

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/sarchlab/vmsim/mem/vm"
)

const initialFileSlots = 16

// FileStore keeps swapped pages in a memory-mapped swap file, one
// fixed-size slot per page. Freed slots are reused before the file grows.
type FileStore struct {
	lock      sync.Mutex
	file      *os.File
	data      []byte
	pageSize  int
	numSlots  int
	slotOf    map[vm.PageID]int
	freeSlots []int
}

// NewFileStore creates or truncates the swap file at path.
func NewFileStore(path string, pageSize int) (*FileStore, error) {
	if pageSize <= 0 {
		return nil, errors.New("page size must be positive")
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}

	s := &FileStore{
		file:     f,
		pageSize: pageSize,
		slotOf:   make(map[vm.PageID]int),
	}

	if err := s.grow(initialFileSlots); err != nil {
		f.Close()
		return nil, err
	}

	return s, nil
}

func (s *FileStore) grow(numSlots int) error {
	if s.data != nil {
		if err := unix.Msync(s.data, unix.MS_SYNC); err != nil {
			return err
		}

		if err := unix.Munmap(s.data); err != nil {
			return err
		}

		s.data = nil
	}

	size := int64(numSlots) * int64(s.pageSize)
	if err := s.file.Truncate(size); err != nil {
		return err
	}

	data, err := unix.Mmap(int(s.file.Fd()), 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return err
	}

	for slot := numSlots - 1; slot >= s.numSlots; slot-- {
		s.freeSlots = append(s.freeSlots, slot)
	}

	s.data = data
	s.numSlots = numSlots

	return nil
}

// Fetch copies the slot of the page out of the swap file.
func (s *FileStore) Fetch(id vm.PageID) ([]byte, bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	slot, found := s.slotOf[id]
	if !found {
		return nil, false, nil
	}

	offset := slot * s.pageSize
	if offset+s.pageSize > len(s.data) {
		return nil, true, fmt.Errorf("page %s in slot %d: %w",
			id, slot, ErrCorruptSlot)
	}

	page := make([]byte, s.pageSize)
	copy(page, s.data[offset:offset+s.pageSize])

	return page, true, nil
}

// Persist writes the page into its slot.
func (s *FileStore) Persist(id vm.PageID, data []byte) error {
	if len(data) > s.pageSize {
		return fmt.Errorf("page %s of %d bytes exceeds slot size %d",
			id, len(data), s.pageSize)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	slot, found := s.slotOf[id]
	if !found {
		if len(s.freeSlots) == 0 {
			if err := s.grow(s.numSlots * 2); err != nil {
				return fmt.Errorf("growing swap file: %w", err)
			}
		}

		slot = s.freeSlots[len(s.freeSlots)-1]
		s.freeSlots = s.freeSlots[:len(s.freeSlots)-1]
		s.slotOf[id] = slot
	}

	offset := slot * s.pageSize
	n := copy(s.data[offset:offset+s.pageSize], data)
	clear(s.data[offset+n : offset+s.pageSize])

	return nil
}

// Release returns the slot of the page to the free slots.
func (s *FileStore) Release(id vm.PageID) {
	s.lock.Lock()
	defer s.lock.Unlock()

	slot, found := s.slotOf[id]
	if !found {
		return
	}

	delete(s.slotOf, id)
	s.freeSlots = append(s.freeSlots, slot)
}

// NumSlots returns the number of slots in use.
func (s *FileStore) NumSlots() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	return len(s.slotOf)
}

// Close flushes and unmaps the swap file.
func (s *FileStore) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.data != nil {
		if err := unix.Msync(s.data, unix.MS_SYNC); err != nil {
			return err
		}

		if err := unix.Munmap(s.data); err != nil {
			return err
		}

		s.data = nil
	}

	return s.file.Close()
}
