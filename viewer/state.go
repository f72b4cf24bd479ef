package viewer

// PlaybackState is the state of the audio pipeline of a Controller.
type PlaybackState int

const (
	Idle PlaybackState = iota
	Priming
	Ready
	Playing
	Stopped
	Failed
)

func (s PlaybackState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Priming:
		return "priming"
	case Ready:
		return "ready"
	case Playing:
		return "playing"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// CanPlay reports whether a pipeline in this state can be started without
// building it first.
func (s PlaybackState) CanPlay() bool {
	return s == Ready || s == Stopped
}
