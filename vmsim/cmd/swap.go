package cmd

import (
	"fmt"

	"github.com/sarchlab/vmsim/mem/vm/swap"
)

func openSwap(kind, path string, pageSize int) (swap.Store, error) {
	switch kind {
	case "memory":
		return swap.NewMemoryStore(), nil
	case "sqlite":
		return swap.NewSQLiteStore(path, pageSize)
	case "file":
		if path == "" {
			path = "vmsim.swap"
		}

		return openFileStore(path, pageSize)
	default:
		return nil, fmt.Errorf("unknown swap store %q", kind)
	}
}
