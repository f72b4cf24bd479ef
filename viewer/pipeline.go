package viewer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/etudelab/scoresync"
)

type (
	// PipelineHandle owns one audio pipeline: the audio context, the synth
	// and the playback controller. A handle is built once and released once
	// with Reap; it is never reused after that.
	PipelineHandle struct {
		Generation uint64

		mu         sync.Mutex
		audio      scoresync.AudioContext
		synth      scoresync.Synth
		controller scoresync.PlaybackController
		playing    bool
		highlights *HighlightRegistry
		logger     *slog.Logger
	}

	// PipelineError is returned when building a pipeline fails. Step names
	// the construction step that failed.
	PipelineError struct {
		Step string
		Err  error
	}

	// pipelineParams is everything needed to build a pipeline, captured from the
	// Controller at the time the rebuild was requested.
	pipelineParams struct {
		generation   uint64
		score        scoresync.VisualScore
		settings     scoresync.ScoreSettings
		program      int
		display      scoresync.DisplayOptions
		cursor       scoresync.CursorControl
		contexts     scoresync.ContextFactory
		engine       scoresync.SynthEngine
		highlights   *HighlightRegistry
		logger       *slog.Logger
		msPerMeasure float64
		transpose    int
	}
)

var errContextClosed = errors.New("audio context is closed")

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline %s: %v", e.Step, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// buildPipeline constructs and primes a new pipeline. On error, everything
// acquired so far has already been reaped and the returned handle is nil.
func buildPipeline(ctx context.Context, s pipelineParams) (*PipelineHandle, error) {
	p := &PipelineHandle{Generation: s.generation, highlights: s.highlights, logger: s.logger}
	fail := func(step string, err error) (*PipelineHandle, error) {
		p.Reap()
		return nil, &PipelineError{Step: step, Err: err}
	}
	audio, err := s.contexts.NewContext(ctx)
	if err != nil {
		return fail("context", err)
	}
	p.audio = audio
	switch audio.State() {
	case scoresync.ContextClosed:
		return fail("context", errContextClosed)
	case scoresync.ContextSuspended:
		if err := audio.Resume(ctx); err != nil {
			return fail("resume", err)
		}
	}
	p.synth = s.engine.CreateSynth()
	synthOpts := scoresync.SynthOptions{Program: s.program, MIDITranspose: s.transpose, QPM: s.settings.Tempo}
	if err := p.synth.Init(ctx, audio, s.score, s.msPerMeasure, synthOpts); err != nil {
		return fail("init", err)
	}
	if err := p.synth.Prime(ctx); err != nil {
		return fail("prime", err)
	}
	p.controller = s.engine.CreateController()
	if err := p.controller.Load(s.cursor, s.display); err != nil {
		return fail("load", err)
	}
	tuneOpts := scoresync.TuneOptions{QPM: s.settings.Tempo, MIDITranspose: s.transpose, Program: s.program, Audio: audio}
	if err := p.controller.SetTune(ctx, s.score, false, tuneOpts); err != nil {
		return fail("tune", err)
	}
	return p, nil
}

// Reap releases the pipeline: it stops any playback, drops the controller,
// closes the audio context unless it is already closed, clears the
// highlights and drops the synth. Errors from the engine are logged and
// swallowed. Reaping a nil or an already reaped handle does nothing.
func (p *PipelineHandle) Reap() {
	if p == nil {
		return
	}
	// detach everything first: engine calls below may call back into cursor
	// callbacks, so no lock is held while talking to the engine
	p.mu.Lock()
	audio, synth, controller, playing := p.audio, p.synth, p.controller, p.playing
	p.audio, p.synth, p.controller, p.playing = nil, nil, nil, false
	p.mu.Unlock()
	if audio == nil && synth == nil && controller == nil {
		return
	}
	if playing && controller != nil {
		if err := controller.Stop(); err != nil {
			p.log().Warn("stopping playback controller failed", "generation", p.Generation, "err", err)
		}
	}
	if synth != nil {
		if err := synth.Stop(); err != nil {
			p.log().Warn("stopping synth failed", "generation", p.Generation, "err", err)
		}
	}
	if audio != nil && audio.State() != scoresync.ContextClosed {
		if err := audio.Close(); err != nil {
			p.log().Warn("closing audio context failed", "generation", p.Generation, "err", err)
		}
	}
	p.highlights.Clear()
	p.log().Debug("pipeline reaped", "generation", p.Generation)
}

// Live reports whether the pipeline still holds any resources.
func (p *PipelineHandle) Live() bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.audio != nil || p.synth != nil || p.controller != nil
}

// play starts the controller and returns it, so that a caller finding the
// start stale can stop exactly the controller it started. The returned
// controller is nil if the pipeline has already been reaped.
func (p *PipelineHandle) play(ctx context.Context) (scoresync.PlaybackController, error) {
	p.mu.Lock()
	c := p.controller
	if c != nil {
		p.playing = true
	}
	p.mu.Unlock()
	if c == nil {
		return nil, nil
	}
	return c, c.Play(ctx)
}

func (p *PipelineHandle) stop() error {
	p.mu.Lock()
	c := p.controller
	p.playing = false
	p.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.Stop()
}

// smf returns the MIDI file of the primed synth, or nil if the synth keeps
// none.
func (p *PipelineHandle) smf() []byte {
	p.mu.Lock()
	synth := p.synth
	p.mu.Unlock()
	if s, ok := synth.(scoresync.MIDIFileSynth); ok {
		return s.SMF()
	}
	return nil
}

func (p *PipelineHandle) setPlaying(playing bool) {
	p.mu.Lock()
	p.playing = playing
	p.mu.Unlock()
}

func (p *PipelineHandle) log() *slog.Logger {
	if p.logger == nil {
		return slog.Default()
	}
	return p.logger
}
