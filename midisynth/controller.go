package midisynth

import (
	"context"
	"errors"
	"sync"

	"github.com/etudelab/scoresync"
)

// Controller implements scoresync.PlaybackController. It plays the tune on a
// synth of its own, primed by SetTune, and reports the position to the
// loaded CursorControl.
type Controller struct {
	engine *Engine

	mu      sync.Mutex
	cursor  scoresync.CursorControl
	display scoresync.DisplayOptions
	synth   *Synth
}

var ErrNoTune = errors.New("no tune has been set")

func (c *Controller) Load(cursor scoresync.CursorControl, opts scoresync.DisplayOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursor, c.display = cursor, opts
	return nil
}

// SetTune primes a new synth for the score, replacing and stopping the
// previous one. The measure length follows from opts.QPM and the meter of
// the tune.
func (c *Controller) SetTune(ctx context.Context, score scoresync.VisualScore, userControlled bool, opts scoresync.TuneOptions) error {
	if score == nil {
		return errors.New("no score")
	}
	s := c.engine.newSynth()
	meter := score.Tune().Meter
	if meter.Numerator <= 0 || meter.Denominator <= 0 {
		meter = scoresync.DefaultTimeSignature
	}
	msPerMeasure := scoresync.MillisecondsPerMeasure(opts.QPM, meter)
	synthOpts := scoresync.SynthOptions{Program: opts.Program, MIDITranspose: opts.MIDITranspose, QPM: opts.QPM}
	if err := s.Init(ctx, opts.Audio, score, msPerMeasure, synthOpts); err != nil {
		return err
	}
	if err := s.Prime(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	old := c.synth
	c.synth = s
	c.mu.Unlock()
	if old != nil {
		return old.Stop()
	}
	return nil
}

// Play starts the tune from the beginning. Playing a tune that is already
// playing does nothing.
func (c *Controller) Play(ctx context.Context) error {
	c.mu.Lock()
	s, cursor := c.synth, c.cursor
	c.mu.Unlock()
	if s == nil {
		return ErrNoTune
	}
	return s.start(ctx, cursor)
}

func (c *Controller) Stop() error {
	c.mu.Lock()
	s := c.synth
	c.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Stop()
}

func (c *Controller) Playing() bool {
	c.mu.Lock()
	s := c.synth
	c.mu.Unlock()
	return s != nil && s.Playing()
}

func (c *Controller) DisplayOptions() scoresync.DisplayOptions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.display
}
