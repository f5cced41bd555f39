// Package loader produces the initial content of a page that is not
// resident.
package loader

import (
	"fmt"
	"sync"

	"github.com/sarchlab/vmsim/mem/vm"
	"github.com/sarchlab/vmsim/mem/vm/swap"
	"github.com/sarchlab/vmsim/memory"
)

// A Loader fills frames with page contents, trying the backing store first,
// then the sections of the executable, then zero filling.
//
// Pages persisted through the Loader keep their protection bit with them, so
// restoring them does not depend on the section source.
type Loader struct {
	store  swap.Store
	memory memory.Controller

	lock     sync.Mutex
	readOnly map[vm.PageID]bool
}

// New creates a Loader.
func New(store swap.Store, mem memory.Controller) *Loader {
	return &Loader{
		store:    store,
		memory:   mem,
		readOnly: make(map[vm.PageID]bool),
	}
}

// Persist writes the page into the backing store and records whether it was
// mapped read-only.
func (l *Loader) Persist(id vm.PageID, data []byte, readOnly bool) error {
	if err := l.store.Persist(id, data); err != nil {
		return err
	}

	l.lock.Lock()
	l.readOnly[id] = readOnly
	l.lock.Unlock()

	return nil
}

// Release frees the slot of the page.
func (l *Loader) Release(id vm.PageID) {
	l.store.Release(id)

	l.lock.Lock()
	delete(l.readOnly, id)
	l.lock.Unlock()
}

func (l *Loader) persistedReadOnly(id vm.PageID) (readOnly, known bool) {
	l.lock.Lock()
	defer l.lock.Unlock()

	readOnly, known = l.readOnly[id]

	return readOnly, known
}

// Load fills frame with the content of the page and returns its translation
// attributes and where the content came from. Any error wraps
// vm.ErrContentUnavailable; the frame content is then undefined.
func (l *Loader) Load(
	id vm.PageID,
	frame int,
	sections SectionSource,
) (vm.TranslationEntry, vm.FrameContent, error) {
	entry := vm.TranslationEntry{
		VPN:   id.VPN,
		Frame: frame,
		Valid: true,
	}

	data, found, err := l.store.Fetch(id)
	if err != nil {
		return entry, nil, unavailable(id, "swap", err)
	}

	if found {
		return l.loadSwapped(id, frame, entry, data, sections)
	}

	page, found, err := l.section(id, sections)
	if err != nil {
		return entry, nil, err
	}

	if found {
		if err := l.memory.WriteFrame(frame, page.Data); err != nil {
			return entry, nil, unavailable(id, "section", err)
		}

		entry.ReadOnly = page.ReadOnly

		return entry, vm.CodeData{
			Section:  page.Section,
			ReadOnly: page.ReadOnly,
		}, nil
	}

	if err := l.memory.ZeroFrame(frame); err != nil {
		return entry, nil, unavailable(id, "zero fill", err)
	}

	return entry, vm.Stack{}, nil
}

func (l *Loader) loadSwapped(
	id vm.PageID,
	frame int,
	entry vm.TranslationEntry,
	data []byte,
	sections SectionSource,
) (vm.TranslationEntry, vm.FrameContent, error) {
	if err := l.memory.WriteFrame(frame, data); err != nil {
		return entry, nil, unavailable(id, "swap", err)
	}

	readOnly, known := l.persistedReadOnly(id)
	if !known {
		page, inSection, err := l.section(id, sections)
		if err != nil {
			return entry, nil, err
		}

		readOnly = inSection && page.ReadOnly
	}

	l.Release(id)

	entry.ReadOnly = readOnly

	return entry, vm.Swapped{ReadOnly: entry.ReadOnly}, nil
}

func (l *Loader) section(
	id vm.PageID,
	sections SectionSource,
) (SectionPage, bool, error) {
	if sections == nil {
		return SectionPage{}, false, nil
	}

	page, found, err := sections.SectionFor(id.VPN)
	if err != nil {
		return page, false, unavailable(id, "section", err)
	}

	return page, found, nil
}

func unavailable(id vm.PageID, source string, err error) error {
	return fmt.Errorf("%w: page %s from %s: %v",
		vm.ErrContentUnavailable, id, source, err)
}
