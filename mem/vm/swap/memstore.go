package swap

import (
	"sync"

	"github.com/sarchlab/vmsim/mem/vm"
)

// MemoryStore keeps swapped pages in a map.
type MemoryStore struct {
	lock  sync.Mutex
	slots map[vm.PageID][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: make(map[vm.PageID][]byte)}
}

// Fetch returns a copy of the persisted page.
func (s *MemoryStore) Fetch(id vm.PageID) ([]byte, bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	data, found := s.slots[id]
	if !found {
		return nil, false, nil
	}

	return append([]byte(nil), data...), true, nil
}

// Persist stores a copy of data.
func (s *MemoryStore) Persist(id vm.PageID, data []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.slots[id] = append([]byte(nil), data...)

	return nil
}

// Release drops the slot of the page.
func (s *MemoryStore) Release(id vm.PageID) {
	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.slots, id)
}

// NumSlots returns the number of pages stored.
func (s *MemoryStore) NumSlots() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	return len(s.slots)
}

// Close does nothing.
func (s *MemoryStore) Close() error {
	return nil
}
