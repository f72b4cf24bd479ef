package viewer_test

import (
	"testing"
	"time"

	"github.com/etudelab/scoresync"
	"github.com/etudelab/scoresync/viewer"
)

func ids(s ...string) []scoresync.ElementID {
	ret := make([]scoresync.ElementID, len(s))
	for i, v := range s {
		ret[i] = scoresync.ElementID(v)
	}
	return ret
}

func TestCursorRouterReplacesHighlights(t *testing.T) {
	h := viewer.NewHighlightRegistry()
	r := viewer.NewCursorRouter(h, nil)
	r.OnStart()
	r.OnEvent(scoresync.CursorEvent{Elements: [][]scoresync.ElementID{ids("note-1", "note-2"), ids("note-3")}})
	if got := h.Active(); len(got) != 3 || got[0] != "note-1" || got[2] != "note-3" {
		t.Fatalf("active: got %v", got)
	}
	r.OnEvent(scoresync.CursorEvent{Elements: [][]scoresync.ElementID{ids("note-4")}})
	if h.IsActive("note-1") {
		t.Error("note-1 still active after the next event")
	}
	if !h.IsActive("note-4") {
		t.Error("note-4 not active")
	}
	// repeated events are idempotent
	r.OnEvent(scoresync.CursorEvent{Elements: [][]scoresync.ElementID{ids("note-4")}})
	if got := h.Len(); got != 1 {
		t.Errorf("len after repeated event: got %d, want 1", got)
	}
	r.OnFinished()
	if got := h.Len(); got != 0 {
		t.Errorf("len after finish: got %d, want 0", got)
	}
}

func TestCursorRouterEmptyEventClears(t *testing.T) {
	h := viewer.NewHighlightRegistry()
	r := viewer.NewCursorRouter(h, nil)
	r.OnEvent(scoresync.CursorEvent{Elements: [][]scoresync.ElementID{ids("note-1")}})
	r.OnEvent(scoresync.CursorEvent{})
	if got := h.Len(); got != 0 {
		t.Errorf("len: got %d, want 0", got)
	}
}

func TestCursorRouterScrollsAtMeasureStart(t *testing.T) {
	b := viewer.NewBroker()
	r := viewer.NewCursorRouter(viewer.NewHighlightRegistry(), b)
	r.OnEvent(scoresync.CursorEvent{Elements: [][]scoresync.ElementID{ids("note-7")}})
	r.OnEvent(scoresync.CursorEvent{Elements: [][]scoresync.ElementID{ids("note-8", "note-9")}, MeasureStart: true})
	msg, ok := viewer.TimeoutReceive(b.ToUI, time.Millisecond)
	if !ok {
		t.Fatal("no scroll request")
	}
	req, ok := msg.(viewer.ScrollRequest)
	if !ok || req.Element != "note-8" {
		t.Fatalf("got %#v, want a scroll request to note-8", msg)
	}
	if _, ok := viewer.TimeoutReceive(b.ToUI, time.Millisecond); ok {
		t.Error("unexpected second message")
	}
}

func TestHighlightRegistryNilClear(t *testing.T) {
	var h *viewer.HighlightRegistry
	h.Clear()
}

func TestTrySendDoesNotBlock(t *testing.T) {
	c := make(chan int, 1)
	if !viewer.TrySend(c, 1) {
		t.Fatal("first send failed")
	}
	if viewer.TrySend(c, 2) {
		t.Fatal("send to a full channel succeeded")
	}
}
