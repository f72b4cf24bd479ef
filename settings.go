package scoresync

import (
	"errors"
	"fmt"
)

type (
	// ScoreSettings are the user editable header fields of a score. The
	// NotatedKey is the key the score is displayed in, while the PlaybackKey
	// is the key the audio should sound in; the difference between the two is
	// the transposition applied to the synth.
	ScoreSettings struct {
		Title         string
		Tempo         int // quarter notes per minute
		TimeSignature TimeSignature
		NotatedKey    string
		PlaybackKey   string
	}

	// TimeSignature is the meter of the score, e.g. 6/8. Only the values in
	// TimeSignatures are accepted by the viewer.
	TimeSignature struct {
		Numerator   int
		Denominator int
	}

	// Key maps a key name, as written in the K: header field or the playback
	// key selector, to a pitch class in semitones above C.
	Key struct {
		Name      string
		Display   string
		Semitones int
	}
)

const (
	DefaultTitle = "New Score"
	DefaultTempo = 120
	MinTempo     = 40
	MaxTempo     = 208
	DefaultKey   = "C"
)

var DefaultTimeSignature = TimeSignature{Numerator: 4, Denominator: 4}

var (
	ErrUnknownKey           = errors.New("unknown key")
	ErrUnknownTimeSignature = errors.New("unknown time signature")
)

// TimeSignatures lists the meters the viewer offers, in display order.
var TimeSignatures = []TimeSignature{
	{4, 4}, {3, 4}, {2, 4}, {6, 8}, {9, 8}, {12, 8},
}

// NotatedKeys is the table of key signatures a score can be notated in.
// Minor keys share the pitch class of their tonic.
var NotatedKeys = []Key{
	{"C", "C Major", 0},
	{"G", "G Major", 7},
	{"D", "D Major", 2},
	{"A", "A Major", 9},
	{"E", "E Major", 4},
	{"F", "F Major", 5},
	{"Bb", "Bb Major", 10},
	{"Eb", "Eb Major", 3},
	{"Am", "A Minor", 9},
	{"Em", "E Minor", 4},
	{"Bm", "B Minor", 11},
	{"Dm", "D Minor", 2},
	{"Gm", "G Minor", 10},
}

// PlaybackKeys is the chromatic table of keys the audio can be played in.
var PlaybackKeys = []Key{
	{"C", "C", 0},
	{"C#", "C#/Db", 1},
	{"D", "D", 2},
	{"D#", "D#/Eb", 3},
	{"E", "E", 4},
	{"F", "F", 5},
	{"F#", "F#/Gb", 6},
	{"G", "G", 7},
	{"G#", "G#/Ab", 8},
	{"A", "A", 9},
	{"A#", "A#/Bb", 10},
	{"B", "B", 11},
}

// DefaultSettings returns the settings a new viewer starts with.
func DefaultSettings() ScoreSettings {
	return ScoreSettings{
		Title:         DefaultTitle,
		Tempo:         DefaultTempo,
		TimeSignature: DefaultTimeSignature,
		NotatedKey:    DefaultKey,
		PlaybackKey:   DefaultKey,
	}
}

// WithDefaults returns a copy of s where every zero valued field has been
// replaced with its default.
func (s ScoreSettings) WithDefaults() ScoreSettings {
	if s.Title == "" {
		s.Title = DefaultTitle
	}
	if s.Tempo <= 0 {
		s.Tempo = DefaultTempo
	}
	if s.TimeSignature.Numerator <= 0 || s.TimeSignature.Denominator <= 0 {
		s.TimeSignature = DefaultTimeSignature
	}
	if s.NotatedKey == "" {
		s.NotatedKey = DefaultKey
	}
	if s.PlaybackKey == "" {
		s.PlaybackKey = DefaultKey
	}
	return s
}

// Validate checks that the time signature and the keys come from the
// enumerated tables. Tempo is not validated, use ClampTempo.
func (s ScoreSettings) Validate() error {
	if _, ok := FindTimeSignature(s.TimeSignature.String()); !ok {
		return fmt.Errorf("%w: %v", ErrUnknownTimeSignature, s.TimeSignature)
	}
	if _, ok := findKey(NotatedKeys, s.NotatedKey); !ok {
		return fmt.Errorf("%w: notated key %q", ErrUnknownKey, s.NotatedKey)
	}
	if _, ok := findKey(PlaybackKeys, s.PlaybackKey); !ok {
		return fmt.Errorf("%w: playback key %q", ErrUnknownKey, s.PlaybackKey)
	}
	return nil
}

// ClampTempo limits the tempo to the range [MinTempo, MaxTempo].
func ClampTempo(bpm int) int {
	return clamp(bpm, MinTempo, MaxTempo)
}

// MillisecondsPerMeasure is the duration of one measure at the given tempo,
// counting one beat per numerator unit.
func MillisecondsPerMeasure(tempo int, sig TimeSignature) float64 {
	if tempo <= 0 {
		tempo = DefaultTempo
	}
	return (60000 / float64(tempo)) * float64(sig.Numerator)
}

func (t TimeSignature) String() string {
	return fmt.Sprintf("%d/%d", t.Numerator, t.Denominator)
}

// FindTimeSignature parses a meter such as "6/8" and returns it if it is one
// of the TimeSignatures.
func FindTimeSignature(s string) (TimeSignature, bool) {
	for _, t := range TimeSignatures {
		if t.String() == s {
			return t, true
		}
	}
	return TimeSignature{}, false
}

func FindNotatedKey(name string) (Key, bool) {
	return findKey(NotatedKeys, name)
}

func FindPlaybackKey(name string) (Key, bool) {
	return findKey(PlaybackKeys, name)
}

// KeyNames returns the names of the keys in the table, in table order.
func KeyNames(keys []Key) []string {
	ret := make([]string, len(keys))
	for i, k := range keys {
		ret[i] = k.Name
	}
	return ret
}

func findKey(keys []Key, name string) (Key, bool) {
	for _, k := range keys {
		if k.Name == name {
			return k, true
		}
	}
	return Key{}, false
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
