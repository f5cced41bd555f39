// Command vmsim runs a multi-process workload on a demand-paged virtual
// memory manager.
package main

import (
	"github.com/tebeka/atexit"

	"github.com/sarchlab/vmsim/vmsim/cmd"
)

func main() {
	cmd.Execute()

	atexit.Exit(0)
}
