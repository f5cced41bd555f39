//go:build unix

package cmd

import "github.com/sarchlab/vmsim/mem/vm/swap"

func openFileStore(path string, pageSize int) (swap.Store, error) {
	return swap.NewFileStore(path, pageSize)
}
