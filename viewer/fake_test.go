package viewer_test

import (
	"context"
	"errors"
	"sync"

	"github.com/etudelab/scoresync"
)

// The fakes below record everything the controller does to its engines, so
// that the tests can check the resource invariants.

type fakeScore struct {
	doc scoresync.Document
}

func (s *fakeScore) Tune() scoresync.Tune { return scoresync.Tune{TicksPerQuarter: 480} }
func (s *fakeScore) Image() []byte        { return []byte(s.doc.Text) }

type fakeRenderer struct {
	mu      sync.Mutex
	renders int
	fail    bool
}

func (r *fakeRenderer) Render(ctx context.Context, doc scoresync.Document, opts scoresync.RenderOptions) ([]scoresync.VisualScore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return nil, errors.New("syntax error")
	}
	r.renders++
	return []scoresync.VisualScore{&fakeScore{doc: doc}}, nil
}

func (r *fakeRenderer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.renders
}

func (r *fakeRenderer) setFail(fail bool) {
	r.mu.Lock()
	r.fail = fail
	r.mu.Unlock()
}

type fakeContexts struct {
	mu        sync.Mutex
	created   int
	closed    int
	live      int
	maxLive   int
	suspended bool
	resumed   int
	contexts  []*fakeAudio
}

type fakeAudio struct {
	owner  *fakeContexts
	state  scoresync.ContextState
	closes int
}

func (f *fakeContexts) NewContext(ctx context.Context) (scoresync.AudioContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := scoresync.ContextRunning
	if f.suspended {
		state = scoresync.ContextSuspended
	}
	a := &fakeAudio{owner: f, state: state}
	f.created++
	f.live++
	if f.live > f.maxLive {
		f.maxLive = f.live
	}
	f.contexts = append(f.contexts, a)
	return a, nil
}

func (f *fakeContexts) counts() (live, maxLive, created int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live, f.maxLive, f.created
}

func (a *fakeAudio) State() scoresync.ContextState {
	a.owner.mu.Lock()
	defer a.owner.mu.Unlock()
	return a.state
}

func (a *fakeAudio) Resume(ctx context.Context) error {
	a.owner.mu.Lock()
	defer a.owner.mu.Unlock()
	if a.state == scoresync.ContextClosed {
		return errors.New("resume of closed context")
	}
	a.state = scoresync.ContextRunning
	a.owner.resumed++
	return nil
}

func (a *fakeAudio) Close() error {
	a.owner.mu.Lock()
	defer a.owner.mu.Unlock()
	a.closes++
	if a.state == scoresync.ContextClosed {
		return errors.New("double close")
	}
	a.state = scoresync.ContextClosed
	a.owner.closed++
	a.owner.live--
	return nil
}

type fakeEngine struct {
	mu          sync.Mutex
	failInit    bool
	failPrime   bool
	failPlay    bool
	primeGate   chan struct{} // if set, Prime blocks until it is closed
	playGate    chan struct{} // if set, Play blocks until it is closed
	playEntered chan struct{}
	priming     int
	maxPriming  int
	synths      []*fakeSynth
	controllers []*fakeController
}

type fakeSynth struct {
	engine       *fakeEngine
	audio        scoresync.AudioContext
	score        scoresync.VisualScore
	msPerMeasure float64
	opts         scoresync.SynthOptions
	primed       bool
	stops        int
}

type fakeController struct {
	engine  *fakeEngine
	cursor  scoresync.CursorControl
	score   scoresync.VisualScore
	opts    scoresync.TuneOptions
	playing bool
	plays   int
	stops   int
}

func (e *fakeEngine) CreateSynth() scoresync.Synth {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := &fakeSynth{engine: e}
	e.synths = append(e.synths, s)
	return s
}

func (e *fakeEngine) CreateController() scoresync.PlaybackController {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := &fakeController{engine: e}
	e.controllers = append(e.controllers, c)
	return c
}

func (e *fakeEngine) set(f func(e *fakeEngine)) {
	e.mu.Lock()
	f(e)
	e.mu.Unlock()
}

func (e *fakeEngine) lastSynth() *fakeSynth {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.synths) == 0 {
		return nil
	}
	return e.synths[len(e.synths)-1]
}

func (e *fakeEngine) lastController() *fakeController {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.controllers) == 0 {
		return nil
	}
	return e.controllers[len(e.controllers)-1]
}

func (s *fakeSynth) Init(ctx context.Context, audio scoresync.AudioContext, score scoresync.VisualScore, msPerMeasure float64, opts scoresync.SynthOptions) error {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	if s.engine.failInit {
		return errors.New("init failed")
	}
	if audio.State() != scoresync.ContextRunning {
		return errors.New("context not running")
	}
	s.audio, s.score, s.msPerMeasure, s.opts = audio, score, msPerMeasure, opts
	return nil
}

func (s *fakeSynth) Prime(ctx context.Context) error {
	e := s.engine
	e.mu.Lock()
	e.priming++
	if e.priming > e.maxPriming {
		e.maxPriming = e.priming
	}
	gate, fail := e.primeGate, e.failPrime
	e.mu.Unlock()
	if gate != nil {
		<-gate
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.priming--
	if fail {
		return errors.New("prime failed")
	}
	s.primed = true
	return nil
}

func (s *fakeSynth) Start(ctx context.Context) error { return nil }

func (s *fakeSynth) Stop() error {
	s.engine.mu.Lock()
	s.stops++
	s.engine.mu.Unlock()
	return nil
}

func (c *fakeController) Load(cursor scoresync.CursorControl, opts scoresync.DisplayOptions) error {
	c.engine.mu.Lock()
	defer c.engine.mu.Unlock()
	c.cursor = cursor
	return nil
}

func (c *fakeController) SetTune(ctx context.Context, score scoresync.VisualScore, userControlled bool, opts scoresync.TuneOptions) error {
	c.engine.mu.Lock()
	defer c.engine.mu.Unlock()
	c.score, c.opts = score, opts
	return nil
}

func (c *fakeController) Play(ctx context.Context) error {
	e := c.engine
	e.mu.Lock()
	gate, entered, fail := e.playGate, e.playEntered, e.failPlay
	c.plays++
	e.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if fail {
		return errors.New("output device lost")
	}
	e.mu.Lock()
	c.playing = true
	cursor := c.cursor
	e.mu.Unlock()
	cursor.OnStart()
	return nil
}

func (c *fakeController) Stop() error {
	c.engine.mu.Lock()
	c.stops++
	c.playing = false
	c.engine.mu.Unlock()
	return nil
}

func (c *fakeController) stopCount() int {
	c.engine.mu.Lock()
	defer c.engine.mu.Unlock()
	return c.stops
}
