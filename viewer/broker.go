package viewer

import (
	"time"

	"github.com/etudelab/scoresync"
)

type (
	// Broker carries notifications from the Controller and the engine
	// callbacks to the presentation layer. Everything is sent with TrySend, so
	// an engine goroutine can never block on a slow or absent reader; if the
	// channel is full, the message is dropped.
	//
	// ToUI receives StateMsg, ScrollRequest and Alert values.
	Broker struct {
		ToUI chan any
	}

	// StateMsg is sent whenever the PlaybackState of a Controller changes.
	StateMsg struct {
		State      PlaybackState
		Generation uint64
	}

	// ScrollRequest asks the presentation layer to bring an element into
	// view. It is sent at the start of each measure during playback.
	ScrollRequest struct {
		Element scoresync.ElementID
	}
)

const uiChannelSize = 1024

func NewBroker() *Broker {
	return &Broker{
		ToUI: make(chan any, uiChannelSize),
	}
}

// TrySend is a helper function to send a value to a channel if it is not full.
// It is guaranteed to be non-blocking. Return true if the value was sent, false
// otherwise.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}

// TimeoutReceive blocks until a value is received from a channel, or times
// out after t. ok will be false if the timeout occurred or if the channel is
// closed.
func TimeoutReceive[T any](c <-chan T, t time.Duration) (v T, ok bool) {
	select {
	case v, ok = <-c:
		return v, ok
	case <-time.After(t):
		return v, false
	}
}
