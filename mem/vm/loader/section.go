package loader

import (
	"fmt"
	"sort"
)

// A SectionPage is the stored content of one page of a code or data
// section.
type SectionPage struct {
	Section  int
	Data     []byte
	ReadOnly bool
}

// A SectionSource supplies the pages of the executable of a process. Pages
// that belong to no section are stack or heap pages.
type SectionSource interface {
	SectionFor(vpn uint64) (page SectionPage, found bool, err error)
}

// A Section is a run of consecutive pages of the executable starting at
// FirstVPN. Data shorter than the run is zero padded.
type Section struct {
	Name     string
	FirstVPN uint64
	NumPages uint64
	ReadOnly bool
	Data     []byte
}

// SectionTable is a SectionSource built from a list of sections.
type SectionTable struct {
	pageSize int
	sections []Section
}

// NewSectionTable creates a SectionTable. A section with NumPages zero spans
// as many pages as its data needs. Sections must not overlap.
func NewSectionTable(pageSize int, sections ...Section) (*SectionTable, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("invalid page size %d", pageSize)
	}

	t := &SectionTable{pageSize: pageSize}
	for _, s := range sections {
		needed := uint64((len(s.Data) + pageSize - 1) / pageSize)
		if s.NumPages == 0 {
			s.NumPages = needed
		}

		if s.NumPages < needed {
			return nil, fmt.Errorf("section %q holds %d bytes in %d pages",
				s.Name, len(s.Data), s.NumPages)
		}

		t.sections = append(t.sections, s)
	}

	sort.Slice(t.sections, func(i, j int) bool {
		return t.sections[i].FirstVPN < t.sections[j].FirstVPN
	})

	for i := 1; i < len(t.sections); i++ {
		prev, curr := t.sections[i-1], t.sections[i]
		if prev.FirstVPN+prev.NumPages > curr.FirstVPN {
			return nil, fmt.Errorf("section %q overlaps section %q",
				prev.Name, curr.Name)
		}
	}

	return t, nil
}

// NumPages returns the number of pages covered by sections.
func (t *SectionTable) NumPages() uint64 {
	var n uint64
	for _, s := range t.sections {
		n += s.NumPages
	}

	return n
}

// SectionFor returns the content of the page if it belongs to a section.
func (t *SectionTable) SectionFor(vpn uint64) (SectionPage, bool, error) {
	i := sort.Search(len(t.sections), func(i int) bool {
		s := t.sections[i]
		return s.FirstVPN+s.NumPages > vpn
	})

	if i == len(t.sections) || t.sections[i].FirstVPN > vpn {
		return SectionPage{}, false, nil
	}

	s := t.sections[i]
	page := make([]byte, t.pageSize)

	start := int(vpn-s.FirstVPN) * t.pageSize
	if start < len(s.Data) {
		copy(page, s.Data[start:])
	}

	return SectionPage{Section: i, Data: page, ReadOnly: s.ReadOnly}, true, nil
}
