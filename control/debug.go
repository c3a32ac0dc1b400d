// control/debug.go
// Author: momentics <momentics@gmail.com>
//
// Named debug probes over the relay's live state, served by /debug/probes.

package control

import (
	"fmt"
	"sort"
	"sync"

	"github.com/momentics/hioload-relay/api"
)

var _ api.Debug = (*DebugProbes)(nil)

// DebugProbes maps probe names to functions evaluated on demand. Probes run
// on the caller's goroutine, so they must only read state that is safe to
// share with the event loop (registry length, atomics).
type DebugProbes struct {
	mu     sync.RWMutex
	probes map[string]func() any
}

func NewDebugProbes() *DebugProbes {
	return &DebugProbes{probes: make(map[string]func() any)}
}

// RegisterProbe inserts a named probe, replacing one with the same name.
// A nil fn removes the probe.
func (dp *DebugProbes) RegisterProbe(name string, fn func() any) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if fn == nil {
		delete(dp.probes, name)
		return
	}
	dp.probes[name] = fn
}

// Names returns the registered probe names in sorted order.
func (dp *DebugProbes) Names() []string {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	names := make([]string, 0, len(dp.probes))
	for name := range dp.probes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Probe evaluates a single probe.
func (dp *DebugProbes) Probe(name string) (any, bool) {
	dp.mu.RLock()
	fn, ok := dp.probes[name]
	dp.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return evaluate(name, fn), true
}

// DumpState evaluates every probe. A probe that panics reports the panic as
// its value instead of taking the admin handler down.
func (dp *DebugProbes) DumpState() map[string]any {
	dp.mu.RLock()
	fns := make(map[string]func() any, len(dp.probes))
	for k, fn := range dp.probes {
		fns[k] = fn
	}
	dp.mu.RUnlock()

	out := make(map[string]any, len(fns))
	for k, fn := range fns {
		out[k] = evaluate(k, fn)
	}
	return out
}

func evaluate(name string, fn func() any) (v any) {
	defer func() {
		if r := recover(); r != nil {
			v = fmt.Sprintf("probe %s panicked: %v", name, r)
		}
	}()
	return fn()
}
