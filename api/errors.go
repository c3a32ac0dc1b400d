// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types shared by the relay server, reactor and transport layers.

package api

import "errors"

// Startup errors. Construction wraps one of these with the failing step.
var (
	ErrResolve  = errors.New("resolve host")
	ErrSocket   = errors.New("socket create")
	ErrBind     = errors.New("bind")
	ErrListen   = errors.New("listen")
	ErrReactor  = errors.New("reactor create")
	ErrRegister = errors.New("reactor register")
)

// Lifecycle and argument errors.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrAlreadyStarted  = errors.New("server already started")
	ErrClosed          = errors.New("resource is closed")
	ErrNotSupported    = errors.New("operation not supported")
)
