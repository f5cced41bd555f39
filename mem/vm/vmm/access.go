package vmm

import (
	"github.com/sarchlab/vmsim/mem/vm"
)

// ReadVirtualMemory copies bytes from the address space of a process into
// buf, starting at vaddr. Pages are faulted in as needed. It returns the
// number of bytes copied, which is short of len(buf) only with an error.
func (c *Comp) ReadVirtualMemory(
	pid vm.PID,
	vaddr uint64,
	buf []byte,
) (int, error) {
	return c.copyVirtualMemory(pid, vaddr, buf, false)
}

// WriteVirtualMemory copies data into the address space of a process,
// starting at vaddr. Writing a read-only page stops the copy with a
// protection fault. It returns the number of bytes written.
func (c *Comp) WriteVirtualMemory(
	pid vm.PID,
	vaddr uint64,
	data []byte,
) (int, error) {
	return c.copyVirtualMemory(pid, vaddr, data, true)
}

func (c *Comp) copyVirtualMemory(
	pid vm.PID,
	vaddr uint64,
	buf []byte,
	write bool,
) (n int, err error) {
	var terminated []termination

	c.mu.Lock()
	defer func() {
		c.mu.Unlock()
		c.notify(terminated)
	}()

	for n < len(buf) {
		vpn, offset := c.split(vaddr + uint64(n))

		entry, t, err := c.translateLocked(pid, vpn, write)
		terminated = append(terminated, t...)
		if err != nil {
			return n, err
		}

		paddr := c.memory.FrameAddress(entry.Frame) + offset
		chunk := min(uint64(len(buf)-n), c.PageSize()-offset)

		if write {
			err = c.memory.Write(paddr, buf[n:n+int(chunk)])
		} else {
			var data []byte
			data, err = c.memory.Read(paddr, chunk)
			copy(buf[n:], data)
		}

		if err != nil {
			return n, err
		}

		n += int(chunk)
	}

	return n, nil
}
