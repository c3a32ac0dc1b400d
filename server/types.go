// File: server/types.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server configuration and lifecycle state.

package server

import (
	"fmt"
	"time"

	"github.com/momentics/hioload-relay/api"
)

// Default network parameters.
const (
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 9090
	DefaultMaxEvents       = 32
	DefaultPollTimeout     = 500 * time.Millisecond
	DefaultReadBufferSize  = 1024
	DefaultMaxPendingBytes = 64 * 1024
)

// Config holds all server-side configuration parameters.
type Config struct {
	Host            string        // bind host: literal, hostname, or 0.0.0.0 / INADDR_ANY
	Port            uint16        // bind port, 0 picks an ephemeral port
	Backlog         int           // listen backlog, 0 = SOMAXCONN
	MaxEvents       int           // readiness events handled per wait
	PollTimeout     time.Duration // upper bound of one wait, and of stop latency
	ReadBufferSize  int           // bytes read per readiness event
	MaxPendingBytes int           // per-peer outbox limit before disconnect, 0 = unbounded
	MaxConnections  int           // 0 = unlimited
	LoopCPU         int           // pin the loop thread to this CPU, -1 = no pinning
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:            DefaultHost,
		Port:            DefaultPort,
		MaxEvents:       DefaultMaxEvents,
		PollTimeout:     DefaultPollTimeout,
		ReadBufferSize:  DefaultReadBufferSize,
		MaxPendingBytes: DefaultMaxPendingBytes,
		LoopCPU:         -1,
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.MaxEvents <= 0:
		return fmt.Errorf("max events %d: %w", c.MaxEvents, api.ErrInvalidArgument)
	case c.PollTimeout <= 0:
		return fmt.Errorf("poll timeout %s: %w", c.PollTimeout, api.ErrInvalidArgument)
	case c.ReadBufferSize <= 0:
		return fmt.Errorf("read buffer size %d: %w", c.ReadBufferSize, api.ErrInvalidArgument)
	case c.LoopCPU < -1:
		return fmt.Errorf("loop cpu %d: %w", c.LoopCPU, api.ErrInvalidArgument)
	case c.Backlog < 0, c.MaxPendingBytes < 0, c.MaxConnections < 0:
		return fmt.Errorf("negative limit: %w", api.ErrInvalidArgument)
	}
	return nil
}

// State is the event loop lifecycle state.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}
