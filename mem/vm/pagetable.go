// Package vm provides the models shared by the demand-paging components.
package vm

import "fmt"

// PID stands for Process ID.
type PID uint32

// A PageID names one virtual page of one process. It is used as a map key
// across the core map, the swap stores, and the TLB.
type PageID struct {
	PID PID
	VPN uint64
}

func (id PageID) String() string {
	return fmt.Sprintf("%d:%d", id.PID, id.VPN)
}

// A TranslationEntry maintains the information about how to translate a
// virtual page to a physical frame.
//
// Valid turns false once the frame association is revoked, even if stale
// copies are still around. Used is the reference hint that the TLB sets and
// the replacement policy clears. Dirty means the frame differs from the last
// persisted copy.
type TranslationEntry struct {
	VPN      uint64
	Frame    int
	Valid    bool
	ReadOnly bool
	Dirty    bool
	Used     bool
}

// FrameContent records where the content of a resident page came from. It
// is decided once by the loader and kept with the frame record.
type FrameContent interface {
	contentKind() string
}

// CodeData is a page copied from a section of the executable.
type CodeData struct {
	Section  int
	ReadOnly bool
}

// Stack is a zero-filled page outside of every section.
type Stack struct{}

// Swapped is a page restored from the backing store. Its slot is released on
// load, so memory holds the only copy until it is persisted again.
type Swapped struct {
	ReadOnly bool
}

func (CodeData) contentKind() string { return "code" }
func (Stack) contentKind() string    { return "stack" }
func (Swapped) contentKind() string  { return "swap" }

// ContentKind returns a short name of the content source, "none" for nil.
func ContentKind(c FrameContent) string {
	if c == nil {
		return "none"
	}

	return c.contentKind()
}

// NeedsWriteBack tells if evicting a page with the given state must persist
// it. Dirty pages always do. A restored page does too, since its slot is
// gone. Clean section and stack pages can be rebuilt from their source.
func NeedsWriteBack(entry TranslationEntry, content FrameContent) bool {
	if entry.Dirty {
		return true
	}

	_, swapped := content.(Swapped)

	return swapped
}
