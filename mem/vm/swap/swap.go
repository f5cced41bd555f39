// Package swap provides the backing stores that keep evicted pages.
//
// A store owns its slot layout. Fetching a page that has no slot is not an
// error: it reports that no persisted copy exists.
package swap

import (
	"errors"

	"github.com/sarchlab/vmsim/mem/vm"
)

// ErrCorruptSlot is returned when a slot exists but cannot be read back.
var ErrCorruptSlot = errors.New("corrupt swap slot")

// A Store persists page contents keyed by PageID. Implementations must be
// safe for concurrent use.
type Store interface {
	// Fetch returns the persisted copy of the page. found is false if the
	// page has no slot.
	Fetch(id vm.PageID) (data []byte, found bool, err error)

	// Persist writes the page into its slot, allocating one if needed.
	Persist(id vm.PageID, data []byte) error

	// Release frees the slot of the page. Releasing a page without slot is
	// a no-op.
	Release(id vm.PageID)

	// NumSlots returns the number of slots in use.
	NumSlots() int

	// Close releases the resources held by the store.
	Close() error
}
