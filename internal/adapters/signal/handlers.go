package signal

import (
	"sync"

	"github.com/dkeye/Mesh/internal/domain"
)

// handlers is the per-channel subscription table.
type handlers struct {
	mu     sync.RWMutex
	byType map[domain.EventType][]func(domain.Event)
}

func (h *handlers) On(t domain.EventType, fn func(domain.Event)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.byType == nil {
		h.byType = make(map[domain.EventType][]func(domain.Event))
	}
	h.byType[t] = append(h.byType[t], fn)
}

func (h *handlers) dispatch(e domain.Event) {
	h.mu.RLock()
	fns := h.byType[e.Type]
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(e)
	}
}
