package vmm

import "github.com/sarchlab/vmsim/mem/vm"

// ReleaseAddressSpace tears down the address space of a process. Its TLB
// entries are invalidated, its frames go back to the free list without
// write-back, and its swap slots are released. Releasing an unknown or
// already released process does nothing.
func (c *Comp) ReleaseAddressSpace(pid vm.PID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.teardownLocked(pid)
}

func (c *Comp) teardownLocked(pid vm.PID) {
	space, found := c.spaces[pid]
	if !found {
		return
	}

	c.tlb.InvalidateProcess(pid)

	pages := c.coreMap.PagesOf(pid)
	for _, id := range pages {
		frame, _ := c.coreMap.Lookup(id)
		c.coreMap.Unbind(frame)
		c.clock.Release(frame)
	}

	for vpn := range space.swapped {
		c.loader.Release(vm.PageID{PID: pid, VPN: vpn})
	}

	delete(c.spaces, pid)
	c.invoke(HookPosTeardown, pid, len(pages))
}
