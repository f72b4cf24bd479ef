package midisynth

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/etudelab/scoresync"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// Engine implements scoresync.SynthEngine. All synths of an engine share one
// MIDI output.
type Engine struct {
	// Metronome plays a click at the start of each measure through the
	// audio context, if the context can play sound.
	Metronome bool

	mu     sync.Mutex
	send   func(msg midi.Message) error
	logger *slog.Logger
}

// NewEngine opens out, unless it is already open, and returns an Engine
// sending to it. A nil out gives an Engine that discards all messages.
func NewEngine(out drivers.Out, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{logger: logger}
	if out != nil {
		send, err := midi.SendTo(out)
		if err != nil {
			return nil, fmt.Errorf("opening MIDI output %v failed: %w", out, err)
		}
		e.send = send
	}
	return e, nil
}

func (e *Engine) CreateSynth() scoresync.Synth {
	return e.newSynth()
}

func (e *Engine) CreateController() scoresync.PlaybackController {
	return &Controller{engine: e}
}

func (e *Engine) newSynth() *Synth {
	return &Synth{engine: e}
}

func (e *Engine) sendMessage(msg midi.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.send == nil {
		return
	}
	if err := e.send(msg); err != nil {
		e.logger.Warn("sending MIDI message failed", "msg", msg.String(), "err", err)
	}
}
