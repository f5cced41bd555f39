// Package workload drives a virtual memory manager with processes that read
// and write their address spaces concurrently, checking every byte they read
// against what they wrote.
package workload

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/sarchlab/vmsim/mem/vm"
	"github.com/sarchlab/vmsim/mem/vm/loader"
)

// A Manager is the part of the virtual memory manager that processes use.
type Manager interface {
	PageSize() uint64
	RegisterProcess(pid vm.PID, sections loader.SectionSource) error
	ReadVirtualMemory(pid vm.PID, vaddr uint64, buf []byte) (int, error)
	WriteVirtualMemory(pid vm.PID, vaddr uint64, data []byte) (int, error)
	ReleaseAddressSpace(pid vm.PID)
}

// Config describes the processes of a workload.
type Config struct {
	NumProcesses int

	// Pages is the size of each address space. The first TextPages pages
	// are a read-only text section, followed by DataPages pages of
	// initialized data. The rest is zero-filled on first use.
	Pages     uint64
	TextPages uint64
	DataPages uint64

	AccessesPerProcess int
	WriteRatio         float64

	// ProtectionProbes is the number of processes that end by writing to
	// their text section, which terminates them.
	ProtectionProbes int

	Seed int64
}

// DefaultConfig returns a small workload that overcommits a 16-frame
// machine.
func DefaultConfig() Config {
	return Config{
		NumProcesses:       4,
		Pages:              32,
		TextPages:          4,
		DataPages:          2,
		AccessesPerProcess: 1000,
		WriteRatio:         0.3,
		Seed:               1,
	}
}

// Validate checks that the configuration describes a runnable workload.
func (c Config) Validate() error {
	if c.NumProcesses <= 0 {
		return errors.New("at least one process is required")
	}

	if c.TextPages+c.DataPages > c.Pages {
		return fmt.Errorf("%d text and %d data pages do not fit in %d pages",
			c.TextPages, c.DataPages, c.Pages)
	}

	if c.TextPages+c.DataPages == c.Pages {
		return errors.New("no writable zero-filled page")
	}

	if c.WriteRatio < 0 || c.WriteRatio > 1 {
		return fmt.Errorf("write ratio %f is not in [0, 1]", c.WriteRatio)
	}

	if c.ProtectionProbes > c.NumProcesses {
		return errors.New("more protection probes than processes")
	}

	return nil
}

// Result summarizes a workload run.
type Result struct {
	Accesses   uint64
	Bytes      uint64
	Mismatches uint64
	Terminated map[vm.PID]error
}

// TerminatedPIDs returns the terminated processes in order.
func (r Result) TerminatedPIDs() []vm.PID {
	pids := make([]vm.PID, 0, len(r.Terminated))
	for pid := range r.Terminated {
		pids = append(pids, pid)
	}

	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })

	return pids
}

// Run starts one goroutine per process and waits for all of them. Processes
// stop early when ctx is cancelled. Progress, if not nil, is called after
// every access. The address spaces are released before Run returns.
func Run(
	ctx context.Context,
	m Manager,
	cfg Config,
	progress func(),
) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}

	var (
		wg     sync.WaitGroup
		lock   sync.Mutex
		result = Result{Terminated: make(map[vm.PID]error)}
		errs   []error
	)

	procs := make([]*process, 0, cfg.NumProcesses)
	for i := 0; i < cfg.NumProcesses; i++ {
		p, err := newProcess(vm.PID(i+1), m, cfg, i < cfg.ProtectionProbes)
		if err != nil {
			for _, p := range procs {
				m.ReleaseAddressSpace(p.pid)
			}

			return result, err
		}

		procs = append(procs, p)
	}

	for _, p := range procs {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()

			stats, err := p.run(ctx, progress)

			lock.Lock()
			defer lock.Unlock()

			result.Accesses += stats.accesses
			result.Bytes += stats.bytes
			result.Mismatches += stats.mismatches

			switch {
			case err == nil:
			case isTermination(err):
				result.Terminated[p.pid] = err
			default:
				errs = append(errs, err)
			}
		}()
	}

	wg.Wait()

	return result, errors.Join(errs...)
}

func isTermination(err error) bool {
	return vm.IsFatal(err) || errors.Is(err, vm.ErrProcessTerminated)
}

type processStats struct {
	accesses   uint64
	bytes      uint64
	mismatches uint64
}

type process struct {
	pid      vm.PID
	manager  Manager
	cfg      Config
	pageSize uint64
	probe    bool
	rand     *rand.Rand

	// shadow holds the expected content of every page touched so far.
	shadow map[uint64][]byte
	text   []byte
	data   []byte
}

func newProcess(pid vm.PID, m Manager, cfg Config, probe bool) (*process, error) {
	pageSize := m.PageSize()

	p := &process{
		pid:      pid,
		manager:  m,
		cfg:      cfg,
		pageSize: pageSize,
		probe:    probe,
		rand:     rand.New(rand.NewSource(cfg.Seed + int64(pid))),
		shadow:   make(map[uint64][]byte),
		text:     fill(pid, 't', cfg.TextPages*pageSize),
		data:     fill(pid, 'd', cfg.DataPages*pageSize),
	}

	sections, err := loader.NewSectionTable(int(pageSize),
		loader.Section{
			Name:     "text",
			FirstVPN: 0,
			NumPages: cfg.TextPages,
			ReadOnly: true,
			Data:     p.text,
		},
		loader.Section{
			Name:     "data",
			FirstVPN: cfg.TextPages,
			NumPages: cfg.DataPages,
			Data:     p.data,
		},
	)
	if err != nil {
		return nil, err
	}

	if err := m.RegisterProcess(pid, sections); err != nil {
		return nil, err
	}

	return p, nil
}

func fill(pid vm.PID, tag byte, n uint64) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = tag ^ byte(pid) ^ byte(i)
	}

	return buf
}

func (p *process) run(ctx context.Context, progress func()) (processStats, error) {
	var stats processStats

	defer p.manager.ReleaseAddressSpace(p.pid)

	for i := 0; i < p.cfg.AccessesPerProcess; i++ {
		if ctx.Err() != nil {
			return stats, nil
		}

		n, mismatch, err := p.access()
		stats.accesses++
		stats.bytes += uint64(n)
		if mismatch {
			stats.mismatches++
		}

		if progress != nil {
			progress()
		}

		if err != nil {
			return stats, err
		}
	}

	if p.probe {
		_, err := p.manager.WriteVirtualMemory(p.pid, 0, []byte{0})
		return stats, err
	}

	return stats, nil
}

func (p *process) access() (n int, mismatch bool, err error) {
	vaddr, length := p.pick()
	write := p.rand.Float64() < p.cfg.WriteRatio

	if write {
		vpn := vaddr / p.pageSize
		if vpn < p.cfg.TextPages {
			vaddr += (p.cfg.TextPages - vpn) * p.pageSize
		}

		end := p.cfg.Pages * p.pageSize
		if vaddr+length > end {
			length = end - vaddr
		}

		data := make([]byte, length)
		p.rand.Read(data)

		n, err = p.manager.WriteVirtualMemory(p.pid, vaddr, data)
		p.updateShadow(vaddr, data[:n])

		return n, false, err
	}

	buf := make([]byte, length)

	n, err = p.manager.ReadVirtualMemory(p.pid, vaddr, buf)
	mismatch = !p.matchesShadow(vaddr, buf[:n])

	return n, mismatch, err
}

// pick returns a random range of up to two pages inside the address space.
func (p *process) pick() (vaddr, length uint64) {
	end := p.cfg.Pages * p.pageSize
	vaddr = uint64(p.rand.Int63n(int64(end)))
	length = 1 + uint64(p.rand.Int63n(int64(2*p.pageSize)))

	if vaddr+length > end {
		length = end - vaddr
	}

	return vaddr, length
}

func (p *process) page(vpn uint64) []byte {
	page, found := p.shadow[vpn]
	if found {
		return page
	}

	page = make([]byte, p.pageSize)

	switch {
	case vpn < p.cfg.TextPages:
		copy(page, p.text[vpn*p.pageSize:])
	case vpn < p.cfg.TextPages+p.cfg.DataPages:
		copy(page, p.data[(vpn-p.cfg.TextPages)*p.pageSize:])
	}

	p.shadow[vpn] = page

	return page
}

func (p *process) updateShadow(vaddr uint64, data []byte) {
	for len(data) > 0 {
		vpn, offset := vaddr/p.pageSize, vaddr%p.pageSize
		n := copy(p.page(vpn)[offset:], data)

		data = data[n:]
		vaddr += uint64(n)
	}
}

func (p *process) matchesShadow(vaddr uint64, data []byte) bool {
	for len(data) > 0 {
		vpn, offset := vaddr/p.pageSize, vaddr%p.pageSize
		expected := p.page(vpn)[offset:]

		n := min(len(expected), len(data))
		for i := 0; i < n; i++ {
			if expected[i] != data[i] {
				return false
			}
		}

		data = data[n:]
		vaddr += uint64(n)
	}

	return true
}
