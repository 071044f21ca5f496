package common

import (
	"sync"
	"sync/atomic"

	"github.com/jetrmm/sysprobe/shared"
)

// Initializer sets up and tears down the process-wide COM state WMI needs.
type Initializer interface {
	Initialize() error
	Uninitialize()
}

var runtimeLive atomic.Bool

// Runtime proves COM has been initialized. Create one with InitRuntime before
// any WMIClient and Close it after every client is released.
type Runtime struct {
	mu      sync.Mutex
	init    Initializer
	clients int
	closed  bool
}

// InitRuntime initializes COM once per process. A second call while a
// Runtime is live returns shared.ErrAlreadyInitialized.
func InitRuntime(i Initializer) (*Runtime, error) {
	if !runtimeLive.CompareAndSwap(false, true) {
		return nil, shared.ErrAlreadyInitialized
	}
	if err := i.Initialize(); err != nil {
		runtimeLive.Store(false)
		return nil, shared.Tag(shared.ErrNotInitialized, err, "initialize com")
	}
	return &Runtime{init: i}, nil
}

func (r *Runtime) acquire() error {
	if r == nil {
		return shared.ErrNotInitialized
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return shared.ErrNotInitialized
	}
	r.clients++
	return nil
}

func (r *Runtime) release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.clients > 0 {
		r.clients--
	}
}

// Close tears COM down. It fails with shared.ErrClientsOpen while clients
// are connected; closing twice is a no-op.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	if r.clients > 0 {
		return shared.ErrClientsOpen
	}
	r.init.Uninitialize()
	r.closed = true
	runtimeLive.Store(false)
	return nil
}
