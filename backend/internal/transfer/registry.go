package transfer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"rsynctui/backend/internal/types"
)

// KillFunc forcefully terminates the process group led by pid.
type KillFunc func(pid int) error

// Handle is one live rsync invocation.
type Handle struct {
	ID      string
	Request types.TransferRequest
	Pid     int
	Started time.Time

	mu              sync.Mutex
	requestedCancel atomic.Bool
	exited          bool
	kill            KillFunc
}

// Cancel signals the process group at most once over the handle's lifetime. It reports whether
// this call sent the signal; later calls, and calls after the process was reaped, do nothing.
func (h *Handle) Cancel() (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exited || !h.requestedCancel.CompareAndSwap(false, true) {
		return false, nil
	}
	return true, h.kill(h.Pid)
}

// markExited is called once Wait has returned; the pid may be reused from then on.
func (h *Handle) markExited() {
	h.mu.Lock()
	h.exited = true
	h.mu.Unlock()
}

func (h *Handle) CancelRequested() bool { return h.requestedCancel.Load() }

// Registry tracks every running rsync process by transfer id.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]*Handle
	kill    KillFunc
	logger  zerolog.Logger
}

// NewRegistry uses KillProcessGroup when kill is nil.
func NewRegistry(kill KillFunc, logger zerolog.Logger) *Registry {
	if kill == nil {
		kill = KillProcessGroup
	}
	return &Registry{
		handles: make(map[string]*Handle),
		kill:    kill,
		logger:  logger,
	}
}

// Add registers a running process under id.
func (r *Registry) Add(id string, req types.TransferRequest, pid int) *Handle {
	h := &Handle{
		ID:      id,
		Request: req,
		Pid:     pid,
		Started: time.Now(),
		kill:    r.kill,
	}
	r.mu.Lock()
	r.handles[id] = h
	r.mu.Unlock()
	return h
}

// Remove forgets id. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.handles, id)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Snapshot returns the live handles at the time of the call.
func (r *Registry) Snapshot() []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handles := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	return handles
}

// CancelAll signals every live handle that has not been signalled yet and returns how many
// signals were sent. Errors from processes that already exited are swallowed.
func (r *Registry) CancelAll() int {
	// Signal outside the lock; the owning Pull removes its handle concurrently.
	sent := 0
	for _, h := range r.Snapshot() {
		ok, err := h.Cancel()
		if !ok {
			continue
		}
		sent++
		if err != nil {
			r.logger.Debug().Err(err).Str("transfer", h.ID).Int("pid", h.Pid).Msg("kill failed, process probably gone")
			continue
		}
		r.logger.Info().Str("transfer", h.ID).Int("pid", h.Pid).Msg("transfer killed")
	}
	return sent
}
