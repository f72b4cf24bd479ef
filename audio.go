package scoresync

import "context"

type (
	// AudioContext is the audio device a pipeline plays through. A context
	// starts either Running or Suspended; a Suspended context must be resumed
	// before use and a Closed context can never be used again.
	AudioContext interface {
		State() ContextState
		Resume(ctx context.Context) error
		Close() error
	}

	// ContextFactory creates new audio contexts. Contexts are only created
	// when a pipeline is being built, never eagerly.
	ContextFactory interface {
		NewContext(ctx context.Context) (AudioContext, error)
	}

	ContextState int
)

const (
	ContextSuspended ContextState = iota
	ContextRunning
	ContextClosed
)

func (s ContextState) String() string {
	switch s {
	case ContextSuspended:
		return "suspended"
	case ContextRunning:
		return "running"
	case ContextClosed:
		return "closed"
	}
	return "unknown"
}

// PCMOutput is implemented by audio contexts that can play raw sound next to
// the synth, such as the metronome click. Samples are interleaved stereo in
// [-1, 1] at SampleRate.
type PCMOutput interface {
	SampleRate() int
	PlayPCM(samples []float32) error
}
