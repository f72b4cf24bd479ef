package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/etudelab/scoresync"
	"github.com/etudelab/scoresync/library"
	"github.com/etudelab/scoresync/midisynth"
	"github.com/etudelab/scoresync/viewer"
)

type scaleScore struct{}

func (scaleScore) Tune() scoresync.Tune {
	tune := scoresync.Tune{TicksPerQuarter: 96, Meter: scoresync.DefaultTimeSignature}
	for i, note := range []byte{60, 62, 64, 65} {
		tune.Events = append(tune.Events, scoresync.NoteEvent{Tick: i * 96, Duration: 96, Note: note})
	}
	return tune
}

func (scaleScore) Image() []byte { return []byte("<svg/>") }

type scaleRenderer struct{}

func (scaleRenderer) Render(ctx context.Context, doc scoresync.Document, opts scoresync.RenderOptions) ([]scoresync.VisualScore, error) {
	return []scoresync.VisualScore{scaleScore{}}, nil
}

type runningAudio struct{ state scoresync.ContextState }

func (a *runningAudio) State() scoresync.ContextState { return a.state }
func (a *runningAudio) Resume(context.Context) error  { return nil }

func (a *runningAudio) Close() error {
	a.state = scoresync.ContextClosed
	return nil
}

type audioFactory struct{}

func (audioFactory) NewContext(context.Context) (scoresync.AudioContext, error) {
	return &runningAudio{state: scoresync.ContextRunning}, nil
}

func newTestShell(t *testing.T) (*Shell, *bytes.Buffer) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := midisynth.NewEngine(nil, logger)
	if err != nil {
		t.Fatal(err)
	}
	c, err := viewer.NewController(viewer.Config{
		Renderer: scaleRenderer{},
		Engine:   engine,
		Contexts: audioFactory{},
		Logger:   logger,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	lib, err := library.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { lib.Close() })
	var out bytes.Buffer
	return NewShell(c, lib, &out, logger), &out
}

func TestShellSettings(t *testing.T) {
	s, out := newTestShell(t)
	ctx := context.Background()
	for _, line := range []string{"title Hello World", "tempo 300", "meter 3/4", "key Bb", "playkey C"} {
		if !s.Execute(ctx, line) {
			t.Fatalf("%q ended the shell", line)
		}
	}
	got := s.c.Settings()
	want := scoresync.ScoreSettings{
		Title:         "Hello World",
		Tempo:         scoresync.MaxTempo,
		TimeSignature: scoresync.TimeSignature{Numerator: 3, Denominator: 4},
		NotatedKey:    "Bb",
		PlaybackKey:   "C",
	}
	if got != want {
		t.Errorf("settings: got %+v, want %+v", got, want)
	}
	if !strings.Contains(out.String(), "Tempo limited to 208") {
		t.Errorf("no tempo warning in %q", out.String())
	}
	if !strings.Contains(out.String(), "Transposing +2 semitones") {
		t.Errorf("no transposition in %q", out.String())
	}
	if s.c.State() != viewer.Ready {
		t.Errorf("state: got %v, want ready", s.c.State())
	}
}

func TestShellErrors(t *testing.T) {
	s, out := newTestShell(t)
	ctx := context.Background()
	s.Execute(ctx, "tempo fast")
	s.Execute(ctx, "playkey H")
	s.Execute(ctx, "frobnicate")
	for _, want := range []string{"Usage: tempo <bpm>", "unknown key", `Unknown command "frobnicate"`} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output %q does not contain %q", out.String(), want)
		}
	}
	if s.Execute(ctx, "exit") {
		t.Error("exit did not end the shell")
	}
}

func TestShellExport(t *testing.T) {
	s, _ := newTestShell(t)
	ctx := context.Background()
	s.Execute(ctx, `body C D E F |\nG A B c |]`)
	dir := t.TempDir()
	abcPath := filepath.Join(dir, "score.abc")
	midPath := filepath.Join(dir, "score.mid")
	s.Execute(ctx, "export "+abcPath)
	s.Execute(ctx, "export "+midPath)
	abc, err := os.ReadFile(abcPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(string(abc), "K:C\nC D E F |\nG A B c |]") {
		t.Errorf("exported document: got %q", abc)
	}
	mid, err := os.ReadFile(midPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(mid, []byte("MThd")) {
		t.Errorf("exported MIDI file has no header")
	}
}

func TestShellLibrary(t *testing.T) {
	s, out := newTestShell(t)
	ctx := context.Background()
	s.Execute(ctx, "title Saved Piece")
	s.Execute(ctx, "body CDEF |]")
	s.Execute(ctx, "save")
	entries, err := s.lib.List(ctx)
	if err != nil || len(entries) != 1 {
		t.Fatalf("entries: got %v, %v", entries, err)
	}
	s.Execute(ctx, "title Other")
	s.Execute(ctx, "body z4 |]")
	s.Execute(ctx, "library")
	if !strings.Contains(out.String(), entries[0].ID[:8]) {
		t.Errorf("library listing %q does not show the entry", out.String())
	}
	s.Execute(ctx, "open "+entries[0].ID[:8])
	if got := s.c.Settings().Title; got != "Saved Piece" {
		t.Errorf("title after open: got %q", got)
	}
	if got := s.c.Body(); got != "CDEF |]" {
		t.Errorf("body after open: got %q", got)
	}
	s.Execute(ctx, "forget "+entries[0].ID[:8])
	if entries, err := s.lib.List(ctx); err != nil || len(entries) != 0 {
		t.Errorf("library after forget: got %d entries, err %v", len(entries), err)
	}
}

func TestShellPlayStop(t *testing.T) {
	s, _ := newTestShell(t)
	ctx := context.Background()
	s.Execute(ctx, "body CDEF |]")
	s.Execute(ctx, "play")
	if got := s.c.State(); got != viewer.Playing && got != viewer.Stopped {
		t.Fatalf("state after play: got %v", got)
	}
	s.Execute(ctx, "stop")
	if got := s.c.State(); got != viewer.Stopped {
		t.Errorf("state after stop: got %v", got)
	}
}

func TestShellHelpListsCommands(t *testing.T) {
	s, out := newTestShell(t)
	s.Execute(context.Background(), "help")
	for name := range s.commands {
		if !strings.Contains(out.String(), "  "+name) {
			t.Errorf("help does not list %s", name)
		}
	}
}

func TestShellStatus(t *testing.T) {
	s, out := newTestShell(t)
	ctx := context.Background()
	s.Execute(ctx, "body CDEF |]")
	s.Execute(ctx, "playkey D")
	s.Execute(ctx, "status")
	for _, want := range []string{
		"Title:     New Score",
		"C Major, sounding in D (+2)",
		fmt.Sprintf("generation %d", s.c.Generation()),
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("status %q does not contain %q", out.String(), want)
		}
	}
}
