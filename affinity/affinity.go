// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity of the calling OS thread.
// Implementations live in affinity_linux.go and affinity_stub.go.

package affinity

import (
	"fmt"
	"runtime"

	"github.com/momentics/hioload-relay/api"
)

// maxCPUs matches CPU_SETSIZE.
const maxCPUs = 1024

// Pin locks the calling goroutine to its OS thread and restricts that thread
// to the given logical CPU. The lock is kept, so the restricted thread is
// discarded when the goroutine exits instead of returning to the scheduler.
func Pin(cpuID int) error {
	if cpuID < 0 || cpuID >= maxCPUs {
		return fmt.Errorf("affinity: cpu %d out of range: %w", cpuID, api.ErrInvalidArgument)
	}
	runtime.LockOSThread()
	if err := setAffinityPlatform(cpuID); err != nil {
		runtime.UnlockOSThread()
		return err
	}
	return nil
}

// Current returns the CPUs the calling thread may run on.
func Current() ([]int, error) {
	return currentPlatform()
}
