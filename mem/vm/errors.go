package vm

import (
	"errors"
	"fmt"
)

var (
	// ErrProtectionViolation is reported when a process writes a read-only
	// page.
	ErrProtectionViolation = errors.New("write to read-only page")

	// ErrContentUnavailable is reported when neither the backing store nor
	// the section source can supply the bytes of a page.
	ErrContentUnavailable = errors.New("page content unavailable")

	// ErrNoFrame means no frame is free and none is resident. It can only
	// happen when the frame bookkeeping is broken.
	ErrNoFrame = errors.New("no physical frame obtainable")

	// ErrProcessTerminated is reported to a process whose address space was
	// torn down while its fault was being served.
	ErrProcessTerminated = errors.New("process terminated")

	// ErrUnknownProcess is reported for a process that has no address space.
	ErrUnknownProcess = errors.New("unknown process")
)

// A FaultError is a fatal fault. The owning process must be terminated.
type FaultError struct {
	PID PID
	VPN uint64
	Err error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("fatal fault pid %d vpn %d: %v", e.PID, e.VPN, e.Err)
}

func (e *FaultError) Unwrap() error {
	return e.Err
}

// IsFatal tells if err must terminate the faulting process.
func IsFatal(err error) bool {
	var faultErr *FaultError
	return errors.As(err, &faultErr)
}
