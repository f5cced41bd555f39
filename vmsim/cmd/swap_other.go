//go:build !unix

package cmd

import (
	"errors"

	"github.com/sarchlab/vmsim/mem/vm/swap"
)

func openFileStore(string, int) (swap.Store, error) {
	return nil, errors.New("the file swap store requires a unix system")
}
