package abcexec_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/etudelab/scoresync"
	"github.com/etudelab/scoresync/abcexec"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// testMIDI is a 3/4 tune at 96 ticks per quarter: a C major chord, then D,
// then E at the start of the second measure.
func testMIDI(t *testing.T) []byte {
	t.Helper()
	var tr smf.Track
	tr.Add(0, smf.MetaMeter(3, 4))
	tr.Add(0, midi.NoteOn(0, 60, 100), midi.NoteOn(0, 64, 100), midi.NoteOn(0, 67, 100))
	tr.Add(96, midi.NoteOff(0, 60), midi.NoteOff(0, 64), midi.NoteOff(0, 67))
	tr.Add(0, midi.NoteOn(0, 62, 90))
	tr.Add(192, midi.NoteOn(0, 62, 0))
	tr.Add(0, midi.NoteOn(0, 64, 80))
	tr.Close(288)
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(96)
	if err := s.Add(tr); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestReadTune(t *testing.T) {
	tune, err := abcexec.ReadTune(bytes.NewReader(testMIDI(t)))
	if err != nil {
		t.Fatal(err)
	}
	if tune.TicksPerQuarter != 96 {
		t.Errorf("ticks per quarter: got %d, want 96", tune.TicksPerQuarter)
	}
	if tune.Meter != (scoresync.TimeSignature{Numerator: 3, Denominator: 4}) {
		t.Errorf("meter: got %v, want 3/4", tune.Meter)
	}
	if len(tune.Events) != 5 {
		t.Fatalf("events: got %d, want 5", len(tune.Events))
	}
	wantElements := []scoresync.ElementID{"note-0", "note-0", "note-0", "note-1", "note-2"}
	for i, e := range tune.Events {
		if e.Element != wantElements[i] {
			t.Errorf("event %d element: got %q, want %q", i, e.Element, wantElements[i])
		}
	}
	if d := tune.Events[3]; d.Tick != 96 || d.Duration != 192 || d.Note != 62 {
		t.Errorf("D: got %+v", d)
	}
	if e := tune.Events[4]; e.Duration != 288 {
		t.Errorf("unterminated note should last until the end of the track, got %+v", e)
	}
	if len(tune.Elements) != 3 || tune.Elements[2].Measure != 1 {
		t.Errorf("elements: got %+v", tune.Elements)
	}
	positions := tune.Positions()
	if len(positions) != 3 || len(positions[0].Elements) != 1 {
		t.Errorf("positions: got %+v", positions)
	}
}

func TestReadTuneRejectsGarbage(t *testing.T) {
	if _, err := abcexec.ReadTune(strings.NewReader("X:1\nK:C\n")); err == nil {
		t.Error("expected an error")
	}
}

// fakeTool writes a shell script standing in for abc2midi. It counts its
// runs in a file next to it and copies mid to the -o argument.
func fakeTool(t *testing.T, mid []byte, fail bool) (tool, runs string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tools are shell scripts")
	}
	dir := t.TempDir()
	midPath := filepath.Join(dir, "fixture.mid")
	if err := os.WriteFile(midPath, mid, 0o644); err != nil {
		t.Fatal(err)
	}
	runs = filepath.Join(dir, "runs")
	script := "#!/bin/sh\necho run >> " + runs + "\n"
	if fail {
		script += "echo 'Error in line 7 : Bad character' >&2\nexit 1\n"
	} else {
		script += "cp " + midPath + " \"$3\"\n"
	}
	tool = filepath.Join(dir, "abc2midi")
	if err := os.WriteFile(tool, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return tool, runs
}

func countRuns(t *testing.T, runs string) int {
	t.Helper()
	b, err := os.ReadFile(runs)
	if err != nil {
		return 0
	}
	return strings.Count(string(b), "run")
}

func TestRenderUsesCache(t *testing.T) {
	tool, runs := fakeTool(t, testMIDI(t), false)
	r, err := abcexec.NewRenderer(abcexec.Config{Abc2Midi: tool, CacheSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	doc := scoresync.Assemble(scoresync.DefaultSettings(), "C D E |]")
	scores, err := r.Render(ctx, doc, scoresync.DefaultRenderOptions)
	if err != nil {
		t.Fatal(err)
	}
	if len(scores) != 1 || len(scores[0].Tune().Events) != 5 {
		t.Fatalf("scores: got %+v", scores)
	}
	if scores[0].Image() != nil {
		t.Error("image rendered although images are off")
	}
	if got := scores[0].(*abcexec.Score).Document(); got != doc {
		t.Errorf("score document: got %+v, want %+v", got, doc)
	}
	again, err := r.Render(ctx, doc, scoresync.DefaultRenderOptions)
	if err != nil {
		t.Fatal(err)
	}
	if again[0] != scores[0] {
		t.Error("second render did not come from the cache")
	}
	if got := countRuns(t, runs); got != 1 {
		t.Errorf("tool runs: got %d, want 1", got)
	}
	other := scoresync.Assemble(scoresync.DefaultSettings(), "E D C |]")
	if _, err := r.Render(ctx, other, scoresync.DefaultRenderOptions); err != nil {
		t.Fatal(err)
	}
	if got := countRuns(t, runs); got != 2 {
		t.Errorf("tool runs: got %d, want 2", got)
	}
	if got := r.CacheLen(); got != 2 {
		t.Errorf("cache length: got %d, want 2", got)
	}
}

func TestRenderToolFailure(t *testing.T) {
	tool, _ := fakeTool(t, nil, true)
	r, err := abcexec.NewRenderer(abcexec.Config{Abc2Midi: tool})
	if err != nil {
		t.Fatal(err)
	}
	doc := scoresync.Assemble(scoresync.DefaultSettings(), "C D E |] ~~~")
	_, err = r.Render(context.Background(), doc, scoresync.DefaultRenderOptions)
	var terr *abcexec.ToolError
	if !errors.As(err, &terr) {
		t.Fatalf("got %v, want a ToolError", err)
	}
	if !strings.Contains(terr.Output, "Bad character") {
		t.Errorf("output: got %q", terr.Output)
	}
	if r.CacheLen() != 0 {
		t.Error("failed render was cached")
	}
}

func TestRenderMissingTool(t *testing.T) {
	r, err := abcexec.NewRenderer(abcexec.Config{Abc2Midi: filepath.Join(t.TempDir(), "does-not-exist")})
	if err != nil {
		t.Fatal(err)
	}
	doc := scoresync.Assemble(scoresync.DefaultSettings(), "")
	if _, err := r.Render(context.Background(), doc, scoresync.DefaultRenderOptions); err == nil {
		t.Error("expected an error")
	}
}
