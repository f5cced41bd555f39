package vm

import (
	"fmt"
	"io"
	"sync"

	"github.com/sarchlab/vmsim/sim"
)

// A TLBTracer write logs for what happened in a TLB. Each line carries a
// sequence number, the TLB name, the event, and the page involved.
type TLBTracer struct {
	lock   sync.Mutex
	seq    uint64
	writer io.Writer
}

// NewTLBTracer produce a new TLBTracer, injecting the dependency of a writer.
func NewTLBTracer(w io.Writer) *TLBTracer {
	t := new(TLBTracer)
	t.writer = w

	return t
}

// Func prints the tlb trace information.
func (t *TLBTracer) Func(ctx sim.HookCtx) {
	id, ok := ctx.Item.(PageID)
	if !ok {
		return
	}

	t.lock.Lock()
	defer t.lock.Unlock()

	t.seq++

	_, err := fmt.Fprintf(t.writer,
		"%d,%s,%s,%d,%d\n",
		t.seq,
		ctx.Domain.Name(),
		ctx.Pos.Name,
		id.PID,
		id.VPN)
	if err != nil {
		panic(err)
	}
}
