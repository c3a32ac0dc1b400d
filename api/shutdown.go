// File: api/shutdown.go
// Package api defines the start/stop contract of background components.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "context"

// GracefulShutdown is implemented by components that tear down their own
// resources on request.
type GracefulShutdown interface {
	// Shutdown stops the component and releases its resources.
	Shutdown() error
}

// Service is a background task with an explicit start and a joining stop.
type Service interface {
	GracefulShutdown

	// Start launches the task. Cancelling ctx has the same effect as Shutdown.
	Start(ctx context.Context) error

	// Ready is closed once the task has entered its running state.
	Ready() <-chan struct{}

	// Done is closed once the task has returned.
	Done() <-chan struct{}
}
