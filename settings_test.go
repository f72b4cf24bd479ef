package scoresync_test

import (
	"errors"
	"testing"

	"github.com/etudelab/scoresync"
)

func TestMillisecondsPerMeasure(t *testing.T) {
	cases := []struct {
		tempo int
		sig   scoresync.TimeSignature
		want  float64
	}{
		{120, scoresync.TimeSignature{Numerator: 4, Denominator: 4}, 2000},
		{60, scoresync.TimeSignature{Numerator: 3, Denominator: 4}, 3000},
		{120, scoresync.TimeSignature{Numerator: 6, Denominator: 8}, 3000},
		{0, scoresync.TimeSignature{Numerator: 2, Denominator: 4}, 1000},
	}
	for _, c := range cases {
		if got := scoresync.MillisecondsPerMeasure(c.tempo, c.sig); got != c.want {
			t.Errorf("MillisecondsPerMeasure(%d, %v): got %v want %v", c.tempo, c.sig, got, c.want)
		}
	}
}

func TestValidate(t *testing.T) {
	s := scoresync.DefaultSettings()
	if err := s.Validate(); err != nil {
		t.Fatalf("default settings should validate: %v", err)
	}
	bad := s
	bad.TimeSignature = scoresync.TimeSignature{Numerator: 5, Denominator: 4}
	if err := bad.Validate(); !errors.Is(err, scoresync.ErrUnknownTimeSignature) {
		t.Errorf("got %v want ErrUnknownTimeSignature", err)
	}
	bad = s
	bad.NotatedKey = "C#" // only a playback key
	if err := bad.Validate(); !errors.Is(err, scoresync.ErrUnknownKey) {
		t.Errorf("got %v want ErrUnknownKey", err)
	}
	bad = s
	bad.PlaybackKey = "Bb" // only a notated key
	if err := bad.Validate(); !errors.Is(err, scoresync.ErrUnknownKey) {
		t.Errorf("got %v want ErrUnknownKey", err)
	}
}

func TestClampTempo(t *testing.T) {
	cases := map[int]int{10: 40, 40: 40, 120: 120, 208: 208, 300: 208}
	for in, want := range cases {
		if got := scoresync.ClampTempo(in); got != want {
			t.Errorf("ClampTempo(%d): got %d want %d", in, got, want)
		}
	}
}

func TestTunePositions(t *testing.T) {
	tune := scoresync.Tune{
		TicksPerQuarter: 480,
		Meter:           scoresync.TimeSignature{Numerator: 3, Denominator: 4},
		Events: []scoresync.NoteEvent{
			{Tick: 480, Duration: 480, Note: 62, Element: "n1"},
			{Tick: 0, Duration: 480, Note: 60, Element: "n0"},
			{Tick: 1440, Duration: 480, Note: 64, Element: "n2"},
			{Tick: 1440, Duration: 480, Note: 67, Element: "n3"},
		},
	}
	got := tune.Positions()
	if len(got) != 3 {
		t.Fatalf("got %d positions want 3", len(got))
	}
	if got[0].Tick != 0 || !got[0].MeasureStart || got[0].Elements[0] != "n0" {
		t.Errorf("unexpected first position %+v", got[0])
	}
	if got[1].MeasureStart {
		t.Errorf("tick 480 is not a measure start in 3/4")
	}
	if !got[2].MeasureStart || len(got[2].Elements) != 2 {
		t.Errorf("unexpected chord position %+v", got[2])
	}
	if l := tune.LengthInTicks(); l != 1920 {
		t.Errorf("LengthInTicks: got %d want 1920", l)
	}
}
