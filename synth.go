package scoresync

import "context"

type (
	// SynthEngine creates the audio side of a pipeline: a Synth that renders
	// the score and a PlaybackController that drives playback and reports the
	// playback position through CursorControl callbacks.
	SynthEngine interface {
		CreateSynth() Synth
		CreateController() PlaybackController
	}

	// Synth renders a VisualScore to audio. Init binds the synth to an audio
	// context and a score; Prime prepares everything needed so that Start can
	// begin sounding immediately.
	Synth interface {
		Init(ctx context.Context, audio AudioContext, score VisualScore, msPerMeasure float64, opts SynthOptions) error
		Prime(ctx context.Context) error
		Start(ctx context.Context) error
		Stop() error
	}

	// MIDIFileSynth is implemented by synths that keep the Standard MIDI File
	// they were primed with.
	MIDIFileSynth interface {
		Synth
		SMF() []byte
	}

	// PlaybackController owns the transport of a pipeline. Load registers the
	// cursor callbacks, SetTune binds the score to be played.
	PlaybackController interface {
		Load(cursor CursorControl, opts DisplayOptions) error
		SetTune(ctx context.Context, score VisualScore, userControlled bool, opts TuneOptions) error
		Play(ctx context.Context) error
		Stop() error
	}

	// CursorControl receives the playback position from a
	// PlaybackController. The callbacks are called from the engine's
	// goroutine.
	CursorControl interface {
		OnStart()
		OnEvent(ev CursorEvent)
		OnFinished()
	}

	// CursorEvent is sent for each group of simultaneous notes. Elements
	// lists the visual elements sounding at this position, one slice per
	// voice.
	CursorEvent struct {
		Milliseconds float64
		Elements     [][]ElementID
		MeasureStart bool
	}

	SynthOptions struct {
		Program       int
		MIDITranspose int
		QPM           int
	}

	TuneOptions struct {
		QPM           int
		MIDITranspose int
		Program       int
		Audio         AudioContext
	}

	// DisplayOptions tells the controller which transport widgets to show.
	DisplayOptions struct {
		Loop     bool
		Restart  bool
		Play     bool
		Progress bool
		Warp     bool
	}
)

// DefaultDisplayOptions shows every transport widget.
var DefaultDisplayOptions = DisplayOptions{Loop: true, Restart: true, Play: true, Progress: true, Warp: true}
