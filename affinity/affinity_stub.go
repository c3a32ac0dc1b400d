//go:build !linux

// File: affinity/affinity_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub for platforms without thread affinity support.

package affinity

import (
	"fmt"

	"github.com/momentics/hioload-relay/api"
)

func setAffinityPlatform(int) error {
	return fmt.Errorf("affinity: %w", api.ErrNotSupported)
}

func currentPlatform() ([]int, error) {
	return nil, fmt.Errorf("affinity: %w", api.ErrNotSupported)
}
