package trace

import (
	"context"
	"sort"

	"github.com/sarchlab/vmsim/datarecording"
)

// A Report summarizes a recording made by the database tracer.
type Report struct {
	Faults         int
	ResidentFaults int
	EvictingFaults int
	Outcomes       map[string]int

	Evictions      int
	DirtyEvictions int
	Persisted      int
	EvictedContent map[string]int

	Teardowns     int
	FramesFreed   int
	FaultsPerProc map[uint32]int
}

// PIDs returns the processes that faulted, in order.
func (r Report) PIDs() []uint32 {
	pids := make([]uint32, 0, len(r.FaultsPerProc))
	for pid := range r.FaultsPerProc {
		pids = append(pids, pid)
	}

	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })

	return pids
}

// ReadReport reads the tables written by NewDBTracer. Only rows of the named
// manager are counted; an empty name counts every manager.
func ReadReport(
	ctx context.Context,
	reader *datarecording.Reader,
	manager string,
) (Report, error) {
	r := Report{
		Outcomes:       make(map[string]int),
		EvictedContent: make(map[string]int),
		FaultsPerProc:  make(map[uint32]int),
	}

	filter := datarecording.Filter{OrderBy: "Seq"}
	if manager != "" {
		filter.Where = "Manager = ?"
		filter.Args = []any{manager}
	}

	faults, err := datarecording.Query[faultEntry](ctx, reader, faultTable,
		filter)
	if err != nil {
		return r, err
	}

	for _, f := range faults {
		r.Faults++
		r.Outcomes[f.Outcome]++
		r.FaultsPerProc[f.PID]++

		if f.Resident {
			r.ResidentFaults++
		}

		if f.Evicted {
			r.EvictingFaults++
		}
	}

	evictions, err := datarecording.Query[evictionEntry](ctx, reader,
		evictionTable, filter)
	if err != nil {
		return r, err
	}

	for _, e := range evictions {
		r.Evictions++
		r.EvictedContent[e.Content]++

		if e.Dirty {
			r.DirtyEvictions++
		}

		if e.Persisted {
			r.Persisted++
		}
	}

	teardowns, err := datarecording.Query[teardownEntry](ctx, reader,
		teardownTable, filter)
	if err != nil {
		return r, err
	}

	for _, t := range teardowns {
		r.Teardowns++
		r.FramesFreed += t.Frames
	}

	return r, nil
}
