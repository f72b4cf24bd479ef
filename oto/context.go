package oto

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/etudelab/scoresync"
)

type (
	// Device is the process-wide audio output. oto allows only one context
	// per process, so the device is opened lazily by the first NewContext and
	// then shared by all Contexts. When the last open Context is closed, the
	// device is suspended until a Context is resumed again.
	Device struct {
		sampleRate int
		bufferSize time.Duration
		open       func(sampleRate int, bufferSize time.Duration) (backend, chan struct{}, error)

		once    sync.Once
		backend backend
		ready   chan struct{}
		err     error

		mu        sync.Mutex
		contexts  int
		suspended bool
	}

	// Context is the AudioContext of one pipeline. It implements
	// scoresync.AudioContext and scoresync.PCMOutput.
	Context struct {
		device *Device

		mu      sync.Mutex
		state   scoresync.ContextState
		players []player
	}

	backend interface {
		Suspend() error
		Resume() error
		NewPlayer(r io.Reader) player
	}

	player interface {
		Play()
		IsPlaying() bool
		Close() error
	}

	otoBackend struct {
		*oto.Context
	}
)

const (
	DefaultSampleRate = 44100

	channelCount      = 2
	defaultBufferSize = 50 * time.Millisecond
)

var ErrClosed = errors.New("audio context is closed")

// NewDevice returns a Device playing at sampleRate; 0 means
// DefaultSampleRate. Nothing is opened until the first NewContext.
func NewDevice(sampleRate int) *Device {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Device{sampleRate: sampleRate, bufferSize: defaultBufferSize, open: openOto}
}

func openOto(sampleRate int, bufferSize time.Duration) (backend, chan struct{}, error) {
	c, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channelCount,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   bufferSize,
	})
	if err != nil {
		return nil, nil, err
	}
	return otoBackend{c}, ready, nil
}

func (b otoBackend) NewPlayer(r io.Reader) player {
	return b.Context.NewPlayer(r)
}

// NewContext implements scoresync.ContextFactory. The returned context is
// Suspended if the device is suspended, Running otherwise.
func (d *Device) NewContext(ctx context.Context) (scoresync.AudioContext, error) {
	d.once.Do(func() {
		d.backend, d.ready, d.err = d.open(d.sampleRate, d.bufferSize)
	})
	if d.err != nil {
		return nil, fmt.Errorf("cannot open audio device: %w", d.err)
	}
	select {
	case <-d.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.contexts++
	state := scoresync.ContextRunning
	if d.suspended {
		state = scoresync.ContextSuspended
	}
	return &Context{device: d, state: state}, nil
}

// SampleRate is the sample rate of the device.
func (d *Device) SampleRate() int {
	return d.sampleRate
}

// OpenContexts is the number of contexts that have not been closed yet.
func (d *Device) OpenContexts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.contexts
}

func (d *Device) resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.suspended {
		return nil
	}
	if err := d.backend.Resume(); err != nil {
		return fmt.Errorf("cannot resume audio device: %w", err)
	}
	d.suspended = false
	return nil
}

func (d *Device) release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.contexts--
	if d.contexts > 0 || d.suspended {
		return nil
	}
	if err := d.backend.Suspend(); err != nil {
		return fmt.Errorf("cannot suspend audio device: %w", err)
	}
	d.suspended = true
	return nil
}

func (c *Context) State() scoresync.ContextState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Context) Resume(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case scoresync.ContextClosed:
		return ErrClosed
	case scoresync.ContextRunning:
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.device.resume(); err != nil {
		return err
	}
	c.state = scoresync.ContextRunning
	return nil
}

// Close stops the sounds of this context and releases it. Closing a closed
// context does nothing.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.state == scoresync.ContextClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = scoresync.ContextClosed
	players := c.players
	c.players = nil
	c.mu.Unlock()
	var errs []error
	for _, p := range players {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cannot close oto player: %w", err))
		}
	}
	if err := c.device.release(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Context) SampleRate() int {
	return c.device.sampleRate
}

// PlayPCM starts playing the interleaved stereo samples and returns
// immediately. Sounds started earlier keep playing. An error closing a
// finished player is returned, but the new samples are played anyway.
func (c *Context) PlayPCM(samples []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != scoresync.ContextRunning {
		return fmt.Errorf("cannot play on a %v audio context", c.state)
	}
	// drop the players that have finished
	var errs []error
	live := c.players[:0]
	for _, p := range c.players {
		if p.IsPlaying() {
			live = append(live, p)
			continue
		}
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cannot close oto player: %w", err))
		}
	}
	c.players = live
	buf := FloatBufferTo16BitLE(samples, make([]byte, 0, len(samples)*2))
	p := c.device.backend.NewPlayer(bytes.NewReader(buf))
	p.Play()
	c.players = append(c.players, p)
	return errors.Join(errs...)
}
