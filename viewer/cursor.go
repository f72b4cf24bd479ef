package viewer

import (
	"sort"
	"sync"

	"github.com/etudelab/scoresync"
)

type (
	// HighlightRegistry holds the set of visual elements currently marked as
	// playing. It is safe for concurrent use.
	HighlightRegistry struct {
		mu     sync.Mutex
		active map[scoresync.ElementID]struct{}
	}

	// CursorRouter turns playback position callbacks into highlight changes
	// and scroll requests. It keeps no state of its own besides the registry,
	// and every event replaces the previous markers, so repeated or late
	// events are harmless.
	CursorRouter struct {
		highlights *HighlightRegistry
		broker     *Broker
	}
)

func NewHighlightRegistry() *HighlightRegistry {
	return &HighlightRegistry{active: map[scoresync.ElementID]struct{}{}}
}

// Replace clears all markers and marks the given elements active, atomically.
func (h *HighlightRegistry) Replace(ids []scoresync.ElementID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clear(h.active)
	for _, id := range ids {
		h.active[id] = struct{}{}
	}
}

// Clear removes all markers. Calling Clear on a nil registry does nothing.
func (h *HighlightRegistry) Clear() {
	if h == nil {
		return
	}
	h.mu.Lock()
	clear(h.active)
	h.mu.Unlock()
}

func (h *HighlightRegistry) IsActive(id scoresync.ElementID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.active[id]
	return ok
}

// Active returns the active elements in sorted order.
func (h *HighlightRegistry) Active() []scoresync.ElementID {
	h.mu.Lock()
	ret := make([]scoresync.ElementID, 0, len(h.active))
	for id := range h.active {
		ret = append(ret, id)
	}
	h.mu.Unlock()
	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })
	return ret
}

func (h *HighlightRegistry) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.active)
}

func NewCursorRouter(highlights *HighlightRegistry, broker *Broker) *CursorRouter {
	return &CursorRouter{highlights: highlights, broker: broker}
}

func (r *CursorRouter) OnStart() {
	r.highlights.Clear()
}

func (r *CursorRouter) OnEvent(ev scoresync.CursorEvent) {
	var ids []scoresync.ElementID
	for _, set := range ev.Elements {
		ids = append(ids, set...)
	}
	r.highlights.Replace(ids)
	if ev.MeasureStart && len(ev.Elements) > 0 && len(ev.Elements[0]) > 0 && r.broker != nil {
		TrySend(r.broker.ToUI, any(ScrollRequest{Element: ev.Elements[0][0]}))
	}
}

func (r *CursorRouter) OnFinished() {
	r.highlights.Clear()
}
