package midisynth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/etudelab/scoresync"
)

// Synth implements scoresync.Synth. Start and Stop must not be called from
// the cursor callbacks.
type Synth struct {
	engine *Engine

	mu           sync.Mutex
	audio        scoresync.AudioContext
	tune         scoresync.Tune
	msPerMeasure float64
	opts         scoresync.SynthOptions
	initialized  bool
	sched        *schedule
	smf          []byte
	cancel       context.CancelFunc
	done         chan struct{}
	sounding     map[[2]uint8]struct{}
}

var (
	ErrNotInitialized  = errors.New("synth has not been initialized")
	ErrNotPrimed       = errors.New("synth has not been primed")
	ErrContextNotReady = errors.New("audio context is not running")
)

func (s *Synth) Init(ctx context.Context, audio scoresync.AudioContext, score scoresync.VisualScore, msPerMeasure float64, opts scoresync.SynthOptions) error {
	if audio == nil {
		return errors.New("no audio context")
	}
	if score == nil {
		return errors.New("no score")
	}
	if msPerMeasure <= 0 {
		return fmt.Errorf("invalid measure length %vms", msPerMeasure)
	}
	if st := audio.State(); st != scoresync.ContextRunning {
		return fmt.Errorf("%w: %v", ErrContextNotReady, st)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio, s.tune, s.msPerMeasure, s.opts = audio, score.Tune(), msPerMeasure, opts
	s.initialized = true
	s.sched, s.smf = nil, nil
	return nil
}

// Prime converts the tune to a playing schedule and a MIDI file.
func (s *Synth) Prime(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := WriteSMF(&buf, s.tune, s.msPerMeasure, s.opts); err != nil {
		return err
	}
	s.sched = buildSchedule(s.tune, s.msPerMeasure, s.opts)
	s.smf = buf.Bytes()
	return nil
}

// Start plays the primed schedule from the beginning. Starting a synth that
// is already playing does nothing.
func (s *Synth) Start(ctx context.Context) error {
	return s.start(ctx, nil)
}

func (s *Synth) start(ctx context.Context, cursor scoresync.CursorControl) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sched == nil {
		return ErrNotPrimed
	}
	if s.done != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if st := s.audio.State(); st != scoresync.ContextRunning {
		return fmt.Errorf("%w: %v", ErrContextNotReady, st)
	}
	var click []float32
	if s.engine.Metronome {
		if out, ok := s.audio.(scoresync.PCMOutput); ok {
			click = clickSamples(out.SampleRate())
		}
	}
	// playback outlives the call that started it; only Stop ends it
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	go s.run(runCtx, s.sched, cursor, click, done)
	return nil
}

func (s *Synth) run(ctx context.Context, sched *schedule, cursor scoresync.CursorControl, click []float32, done chan struct{}) {
	defer close(done)
	if cursor != nil {
		cursor.OnStart()
	}
	start := time.Now()
	for _, c := range sched.cues {
		if wait := time.Until(start.Add(c.at)); wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		} else if ctx.Err() != nil {
			return
		}
		s.fire(c, cursor, click)
	}
	s.mu.Lock()
	if s.done == done {
		s.cancel()
		s.cancel, s.done = nil, nil
	}
	s.mu.Unlock()
	if cursor != nil {
		cursor.OnFinished()
	}
}

func (s *Synth) fire(c cue, cursor scoresync.CursorControl, click []float32) {
	switch c.kind {
	case cueCursor:
		if click != nil && c.event.MeasureStart {
			if err := s.audio.(scoresync.PCMOutput).PlayPCM(click); err != nil {
				s.engine.logger.Debug("metronome click failed", "err", err)
			}
		}
		if cursor != nil {
			cursor.OnEvent(c.event)
		}
		return
	case cueNoteOn:
		s.mu.Lock()
		if s.sounding == nil {
			s.sounding = map[[2]uint8]struct{}{}
		}
		s.sounding[[2]uint8{c.channel, c.key}] = struct{}{}
		s.mu.Unlock()
	case cueNoteOff:
		s.mu.Lock()
		delete(s.sounding, [2]uint8{c.channel, c.key})
		s.mu.Unlock()
	}
	s.engine.sendMessage(c.message())
}

// Stop ends playback and silences the notes that are still sounding.
// Stopping a synth that is not playing does nothing.
func (s *Synth) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	s.mu.Lock()
	sounding := s.sounding
	s.sounding = nil
	s.mu.Unlock()
	for n := range sounding {
		s.engine.sendMessage(cue{kind: cueNoteOff, channel: n[0], key: n[1]}.message())
	}
	return nil
}

// Playing reports whether the schedule is being played.
func (s *Synth) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done != nil
}

// SMF returns the MIDI file made by Prime, or nil if the synth has not been
// primed.
func (s *Synth) SMF() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Clone(s.smf)
}

// Length is the duration of the primed schedule.
func (s *Synth) Length() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sched == nil {
		return 0
	}
	return s.sched.length
}

const (
	clickLength    = 30 * time.Millisecond
	clickFrequency = 1760
	clickGain      = 0.5
)

// clickSamples is a short decaying sine, interleaved stereo.
func clickSamples(sampleRate int) []float32 {
	if sampleRate <= 0 {
		return nil
	}
	n := int(int64(sampleRate) * int64(clickLength) / int64(time.Second))
	ret := make([]float32, 0, n*2)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(sampleRate)
		decay := 1 - float64(i)/float64(n)
		v := float32(clickGain * decay * math.Sin(2*math.Pi*clickFrequency*t))
		ret = append(ret, v, v)
	}
	return ret
}
