package viewer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/etudelab/scoresync"
)

type (
	// Config holds the collaborators and initial values of a Controller.
	// Renderer, Engine and Contexts are required.
	Config struct {
		Renderer scoresync.Renderer
		Engine   scoresync.SynthEngine
		Contexts scoresync.ContextFactory

		Broker *Broker      // defaults to NewBroker()
		Logger *slog.Logger // defaults to slog.Default()

		Settings       scoresync.ScoreSettings // zero fields get defaults
		Body           string
		RenderOptions  scoresync.RenderOptions  // zero value means scoresync.DefaultRenderOptions
		DisplayOptions scoresync.DisplayOptions // zero value means scoresync.DefaultDisplayOptions
		Program        int                      // General MIDI program of the synth
	}

	// Controller keeps the rendered score and the audio pipeline in sync with
	// the score settings and the note body.
	//
	// Rebuilds are serialized: a rebuild requested while another is priming
	// waits for it to finish. Each pipeline carries a generation number and
	// any asynchronous result (a finished build, a started playback, a cursor
	// callback) belonging to an older generation is discarded. Engine calls
	// are never made while holding mu.
	Controller struct {
		renderer   scoresync.Renderer
		engine     scoresync.SynthEngine
		contexts   scoresync.ContextFactory
		broker     *Broker
		logger     *slog.Logger
		renderOpts scoresync.RenderOptions
		display    scoresync.DisplayOptions
		program    int
		highlights *HighlightRegistry
		router     *CursorRouter

		rebuilding chan struct{} // single slot semaphore held during render + rebuild

		mu         sync.Mutex
		settings   scoresync.ScoreSettings
		body       string
		doc        scoresync.Document // the last successfully rendered document
		visual     scoresync.VisualScore
		pipeline   *PipelineHandle
		generation uint64
		state      PlaybackState
		changes    uint64 // bumped on every state change
		rebuilds   int
		closed     bool
	}

	// generationCursor forwards cursor callbacks to the router only while its
	// pipeline is the current one.
	generationCursor struct {
		c          *Controller
		generation uint64
	}
)

var (
	ErrClosed   = errors.New("viewer is closed")
	ErrNotReady = errors.New("no score has been rendered")

	errNoScore = errors.New("renderer returned no score")
)

func NewController(cfg Config) (*Controller, error) {
	if cfg.Renderer == nil || cfg.Engine == nil || cfg.Contexts == nil {
		return nil, errors.New("viewer: Renderer, Engine and Contexts are required")
	}
	settings := cfg.Settings.WithDefaults()
	settings.Tempo = scoresync.ClampTempo(settings.Tempo)
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("viewer: invalid initial settings: %w", err)
	}
	c := &Controller{
		renderer:   cfg.Renderer,
		engine:     cfg.Engine,
		contexts:   cfg.Contexts,
		broker:     cfg.Broker,
		logger:     cfg.Logger,
		renderOpts: cfg.RenderOptions,
		display:    cfg.DisplayOptions,
		program:    cfg.Program,
		highlights: NewHighlightRegistry(),
		rebuilding: make(chan struct{}, 1),
		settings:   settings,
		body:       cfg.Body,
	}
	if c.broker == nil {
		c.broker = NewBroker()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.renderOpts == (scoresync.RenderOptions{}) {
		c.renderOpts = scoresync.DefaultRenderOptions
	}
	if c.display == (scoresync.DisplayOptions{}) {
		c.display = scoresync.DefaultDisplayOptions
	}
	c.router = NewCursorRouter(c.highlights, c.broker)
	return c, nil
}

// Settings mutation

// Refresh renders the current document if it has not been rendered yet.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.edit(ctx, func(*scoresync.ScoreSettings, *string) error { return nil })
}

func (c *Controller) SetTitle(ctx context.Context, title string) error {
	return c.edit(ctx, func(s *scoresync.ScoreSettings, _ *string) error {
		s.Title = title
		return nil
	})
}

// SetTempo sets the tempo, clamped to [scoresync.MinTempo, scoresync.MaxTempo].
func (c *Controller) SetTempo(ctx context.Context, bpm int) error {
	return c.edit(ctx, func(s *scoresync.ScoreSettings, _ *string) error {
		s.Tempo = scoresync.ClampTempo(bpm)
		return nil
	})
}

func (c *Controller) SetTimeSignature(ctx context.Context, sig scoresync.TimeSignature) error {
	if _, ok := scoresync.FindTimeSignature(sig.String()); !ok {
		return fmt.Errorf("%w: %v", scoresync.ErrUnknownTimeSignature, sig)
	}
	return c.edit(ctx, func(s *scoresync.ScoreSettings, _ *string) error {
		s.TimeSignature = sig
		return nil
	})
}

func (c *Controller) SetNotatedKey(ctx context.Context, key string) error {
	if _, ok := scoresync.FindNotatedKey(key); !ok {
		return fmt.Errorf("%w: notated key %q", scoresync.ErrUnknownKey, key)
	}
	return c.edit(ctx, func(s *scoresync.ScoreSettings, _ *string) error {
		s.NotatedKey = key
		return nil
	})
}

// SetPlaybackKey changes the key the audio sounds in. The document does not
// change, so the score is not rendered again; only the pipeline is rebuilt
// with the new transposition.
func (c *Controller) SetPlaybackKey(ctx context.Context, key string) error {
	if _, ok := scoresync.FindPlaybackKey(key); !ok {
		return fmt.Errorf("%w: playback key %q", scoresync.ErrUnknownKey, key)
	}
	return c.edit(ctx, func(s *scoresync.ScoreSettings, _ *string) error {
		s.PlaybackKey = key
		return nil
	})
}

func (c *Controller) SetBody(ctx context.Context, body string) error {
	return c.edit(ctx, func(_ *scoresync.ScoreSettings, b *string) error {
		*b = body
		return nil
	})
}

// Update replaces all settings and the body at once.
func (c *Controller) Update(ctx context.Context, settings scoresync.ScoreSettings, body string) error {
	settings = settings.WithDefaults()
	settings.Tempo = scoresync.ClampTempo(settings.Tempo)
	if err := settings.Validate(); err != nil {
		return err
	}
	return c.edit(ctx, func(s *scoresync.ScoreSettings, b *string) error {
		*s, *b = settings, body
		return nil
	})
}

// edit applies f to a copy of the settings and body and then brings the score
// and the pipeline up to date. Edits wait for any rebuild in flight.
func (c *Controller) edit(ctx context.Context, f func(s *scoresync.ScoreSettings, body *string) error) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	s, body := c.settings, c.body
	if err := f(&s, &body); err != nil {
		c.mu.Unlock()
		return err
	}
	keyChanged := s.PlaybackKey != c.settings.PlaybackKey
	c.settings, c.body = s, body
	c.mu.Unlock()
	return c.refresh(ctx, keyChanged)
}

// refresh must be called while holding the rebuild semaphore.
func (c *Controller) refresh(ctx context.Context, keyChanged bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	doc := scoresync.Assemble(c.settings, c.body)
	prev := c.doc
	hasVisual := c.visual != nil
	opts := c.renderOpts
	c.mu.Unlock()
	if hasVisual && doc.Text == prev.Text {
		if !keyChanged {
			return nil
		}
		c.logger.Debug("playback key changed, rebuilding synth", "token", doc.Token)
		return c.rebuild(ctx)
	}
	scores, err := c.renderer.Render(ctx, doc, opts)
	if err == nil && len(scores) == 0 {
		err = errNoScore
	}
	if err != nil {
		c.logger.Warn("rendering score failed", "token", doc.Token, "err", err)
		c.alert("RenderFailure", Warning, fmt.Sprintf("Could not render the score: %v", err))
		if hasVisual && keyChanged {
			// the previous score is still shown, so it should sound in the new key
			return c.rebuild(ctx)
		}
		return nil
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.visual = scores[0]
	c.doc = doc
	c.mu.Unlock()
	reason := "header changed"
	if doc.Token != prev.Token {
		reason = "new piece"
	}
	c.logger.Debug("score rendered, rebuilding synth", "reason", reason, "token", doc.Token)
	return c.rebuild(ctx)
}

// rebuild tears down the current pipeline and builds a new one for the
// current visual. It must be called while holding the rebuild semaphore.
func (c *Controller) rebuild(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.generation++
	gen := c.generation
	old := c.pipeline
	c.pipeline = nil
	params := c.paramsLocked(gen)
	c.rebuilds++
	c.setStateLocked(Priming)
	c.mu.Unlock()

	old.Reap()
	p, err := buildPipeline(ctx, params)

	c.mu.Lock()
	if c.closed || gen != c.generation {
		closed := c.closed
		c.mu.Unlock()
		p.Reap()
		c.logger.Debug("discarding stale pipeline", "generation", gen)
		if closed {
			return ErrClosed
		}
		return nil
	}
	if err != nil {
		c.setStateLocked(Failed)
		c.mu.Unlock()
		c.logger.Error("building synth pipeline failed", "generation", gen, "err", err)
		c.alert("PipelineFailure", Error, fmt.Sprintf("Could not prepare audio: %v", err))
		return err
	}
	c.pipeline = p
	c.setStateLocked(Ready)
	c.mu.Unlock()
	c.logger.Info("synth pipeline ready", "generation", gen, "transpose", params.transpose, "msPerMeasure", params.msPerMeasure)
	return nil
}

func (c *Controller) paramsLocked(gen uint64) pipelineParams {
	return pipelineParams{
		generation:   gen,
		score:        c.visual,
		settings:     c.settings,
		program:      c.program,
		display:      c.display,
		cursor:       &generationCursor{c: c, generation: gen},
		contexts:     c.contexts,
		engine:       c.engine,
		highlights:   c.highlights,
		logger:       c.logger,
		msPerMeasure: scoresync.MillisecondsPerMeasure(c.settings.Tempo, c.settings.TimeSignature),
		transpose:    scoresync.Transposition(c.settings.NotatedKey, c.settings.PlaybackKey),
	}
}

// Playback

// Play starts playback. If the pipeline is missing or has failed, a fresh one
// is built first. Playing an already playing score does nothing.
func (c *Controller) Play(ctx context.Context) error {
	p, changes, err := c.playablePipeline(ctx)
	if err != nil || p == nil {
		return err
	}
	started, err := p.play(ctx)
	c.mu.Lock()
	stale := c.closed || c.generation != p.Generation
	stopped := !stale && c.changes != changes
	c.mu.Unlock()
	if stopped {
		// Stop was called while the controller was starting
		if started != nil {
			if err := started.Stop(); err != nil {
				c.logger.Debug("stopping playback failed", "generation", p.Generation, "err", err)
			}
		}
		p.setPlaying(false)
		c.highlights.Clear()
		return nil
	}
	if stale {
		// a rebuild or teardown won the race; the pipeline has been reaped
		if started != nil {
			if err := started.Stop(); err != nil {
				c.logger.Debug("stopping stale playback failed", "generation", p.Generation, "err", err)
			}
		}
		c.logger.Debug("ignoring stale playback start", "generation", p.Generation)
		return nil
	}
	if err != nil {
		return c.playbackFailed(p.Generation, err)
	}
	return nil
}

// playablePipeline returns the pipeline to start, after switching the state
// to Playing, together with the state change count at that moment. It
// returns nil if the score is already playing.
func (c *Controller) playablePipeline(ctx context.Context) (*PipelineHandle, uint64, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, 0, ErrClosed
	}
	if c.state == Playing {
		c.mu.Unlock()
		return nil, 0, nil
	}
	if c.state.CanPlay() && c.pipeline != nil {
		p := c.pipeline
		c.setStateLocked(Playing)
		changes := c.changes
		c.mu.Unlock()
		return p, changes, nil
	}
	c.mu.Unlock()
	// the pipeline is priming, missing or failed: wait for the rebuild in
	// flight and build a new one from scratch if still needed
	if err := c.acquire(ctx); err != nil {
		return nil, 0, err
	}
	defer c.release()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, 0, ErrClosed
	}
	if c.state == Playing {
		c.mu.Unlock()
		return nil, 0, nil
	}
	if !c.state.CanPlay() || c.pipeline == nil {
		if c.visual == nil {
			c.mu.Unlock()
			return nil, 0, ErrNotReady
		}
		c.mu.Unlock()
		if err := c.rebuild(ctx); err != nil {
			return nil, 0, err
		}
		c.mu.Lock()
		if c.closed || c.pipeline == nil {
			c.mu.Unlock()
			return nil, 0, ErrNotReady
		}
	}
	p := c.pipeline
	c.setStateLocked(Playing)
	changes := c.changes
	c.mu.Unlock()
	return p, changes, nil
}

// Stop stops playback. Stopping when not playing does nothing.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != Playing || c.pipeline == nil {
		c.mu.Unlock()
		return nil
	}
	p := c.pipeline
	c.setStateLocked(Stopped)
	c.mu.Unlock()
	if err := p.stop(); err != nil {
		return c.playbackFailed(p.Generation, err)
	}
	c.highlights.Clear()
	return nil
}

// Toggle stops a playing score and starts any other.
func (c *Controller) Toggle(ctx context.Context) error {
	if c.State() == Playing {
		return c.Stop()
	}
	return c.Play(ctx)
}

// playbackFailed reaps the pipeline of generation gen after a failed start or
// stop, so that the next Play primes a new pipeline from scratch.
func (c *Controller) playbackFailed(gen uint64, err error) error {
	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		c.logger.Debug("ignoring stale playback failure", "generation", gen, "err", err)
		return nil
	}
	c.generation++
	p := c.pipeline
	c.pipeline = nil
	c.setStateLocked(Failed)
	c.mu.Unlock()
	p.Reap()
	c.logger.Error("playback failed", "generation", gen, "err", err)
	c.alert("PlaybackFailure", Error, fmt.Sprintf("Playback failed: %v", err))
	return fmt.Errorf("playback: %w", err)
}

// Close tears down the pipeline and drops the visual. The Controller cannot
// be used after Close. A rebuild in flight discards its result.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.generation++
	p := c.pipeline
	c.pipeline = nil
	c.visual = nil
	c.setStateLocked(Idle)
	c.mu.Unlock()
	p.Reap()
	c.highlights.Clear()
	c.logger.Debug("viewer closed")
	return nil
}

// Read access

func (c *Controller) State() PlaybackState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Settings() scoresync.ScoreSettings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

func (c *Controller) Body() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.body
}

// Document assembles the document of the current settings and body, whether
// or not it has been rendered.
func (c *Controller) Document() scoresync.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return scoresync.Assemble(c.settings, c.body)
}

// Download writes the current document as plain text.
func (c *Controller) Download(w io.Writer) error {
	_, err := c.Document().WriteTo(w)
	return err
}

// DownloadName is the file name the current document should be saved as.
func (c *Controller) DownloadName() string {
	return scoresync.DownloadName(c.Settings().Title)
}

// Transposition is the semitone offset the pipeline is built with.
func (c *Controller) Transposition() int {
	s := c.Settings()
	return scoresync.Transposition(s.NotatedKey, s.PlaybackKey)
}

// Visual returns the current rendered score, or nil.
func (c *Controller) Visual() scoresync.VisualScore {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visual
}

// Rebuilds counts how many times a pipeline has been (re)built.
func (c *Controller) Rebuilds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rebuilds
}

func (c *Controller) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// SMF returns the Standard MIDI File the current pipeline was primed with.
// It returns ErrNotReady while no primed pipeline exists or if the synth
// engine does not make MIDI files.
func (c *Controller) SMF() ([]byte, error) {
	c.mu.Lock()
	p := c.pipeline
	c.mu.Unlock()
	if p == nil {
		return nil, ErrNotReady
	}
	data := p.smf()
	if data == nil {
		return nil, ErrNotReady
	}
	return data, nil
}

func (c *Controller) Highlights() *HighlightRegistry { return c.highlights }

func (c *Controller) Broker() *Broker { return c.broker }

// helpers

func (c *Controller) acquire(ctx context.Context) error {
	select {
	case c.rebuilding <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) release() {
	<-c.rebuilding
}

func (c *Controller) setStateLocked(s PlaybackState) {
	if c.state == s {
		return
	}
	c.state = s
	c.changes++
	TrySend(c.broker.ToUI, any(StateMsg{State: s, Generation: c.generation}))
}

func (c *Controller) alert(name string, priority AlertPriority, message string) {
	TrySend(c.broker.ToUI, any(Alert{Name: name, Priority: priority, Message: message, Duration: defaultAlertDuration}))
}

// generationCursor methods

func (g *generationCursor) current() bool {
	g.c.mu.Lock()
	defer g.c.mu.Unlock()
	return !g.c.closed && g.c.generation == g.generation
}

func (g *generationCursor) OnStart() {
	if g.current() {
		g.c.router.OnStart()
	}
}

func (g *generationCursor) OnEvent(ev scoresync.CursorEvent) {
	if g.current() {
		g.c.router.OnEvent(ev)
	}
}

// OnFinished clears the highlights and, on a natural end of the piece, moves
// the state from Playing to Stopped.
func (g *generationCursor) OnFinished() {
	c := g.c
	c.mu.Lock()
	if c.closed || c.generation != g.generation {
		c.mu.Unlock()
		return
	}
	p := c.pipeline
	if c.state == Playing {
		c.setStateLocked(Stopped)
	}
	c.mu.Unlock()
	if p != nil {
		p.setPlaying(false)
	}
	c.router.OnFinished()
}
