package midisynth

import (
	"math"
	"sort"
	"time"

	"github.com/etudelab/scoresync"
	"gitlab.com/gomidi/midi/v2"
)

type (
	// schedule is a tune converted to wall clock time, transposed and ready
	// to be played.
	schedule struct {
		cues   []cue
		length time.Duration
	}

	cue struct {
		at      time.Duration
		kind    cueKind
		channel uint8
		key     uint8
		value   uint8
		event   scoresync.CursorEvent
	}

	// cues at the same time are played in the order of their kind
	cueKind int
)

const (
	cueProgram cueKind = iota
	cueNoteOff
	cueCursor
	cueNoteOn
)

const defaultVelocity = 80

// buildSchedule converts the tune to a schedule. Notes that would fall
// outside the MIDI key range after transposing are dropped.
func buildSchedule(tune scoresync.Tune, msPerMeasure float64, opts scoresync.SynthOptions) *schedule {
	msPerTick := 0.0
	if ticks := tune.TicksPerMeasure(); ticks > 0 {
		msPerTick = msPerMeasure / float64(ticks)
	}
	at := func(tick int) time.Duration {
		return time.Duration(math.Round(float64(tick) * msPerTick * float64(time.Millisecond)))
	}
	s := &schedule{}
	channels := map[uint8]bool{}
	for _, e := range tune.Events {
		key := int(e.Note) + opts.MIDITranspose
		if key < 0 || key > 127 {
			continue
		}
		ch := e.Channel & 0x0f
		channels[ch] = true
		vel := e.Velocity
		if vel == 0 {
			vel = defaultVelocity
		}
		s.cues = append(s.cues,
			cue{at: at(e.Tick), kind: cueNoteOn, channel: ch, key: uint8(key), value: vel & 0x7f},
			cue{at: at(e.Tick + e.Duration), kind: cueNoteOff, channel: ch, key: uint8(key)},
		)
	}
	program := uint8(clampProgram(opts.Program))
	for ch := range channels {
		s.cues = append(s.cues, cue{kind: cueProgram, channel: ch, value: program})
	}
	for _, p := range tune.Positions() {
		s.cues = append(s.cues, cue{
			at:   at(p.Tick),
			kind: cueCursor,
			event: scoresync.CursorEvent{
				Milliseconds: float64(p.Tick) * msPerTick,
				Elements:     [][]scoresync.ElementID{p.Elements},
				MeasureStart: p.MeasureStart,
			},
		})
	}
	sort.SliceStable(s.cues, func(i, j int) bool {
		a, b := s.cues[i], s.cues[j]
		if a.at != b.at {
			return a.at < b.at
		}
		if a.kind != b.kind {
			return a.kind < b.kind
		}
		return a.channel < b.channel
	})
	s.length = at(tune.LengthInTicks())
	return s
}

func (c cue) message() midi.Message {
	switch c.kind {
	case cueProgram:
		return midi.ProgramChange(c.channel, c.value)
	case cueNoteOff:
		return midi.NoteOff(c.channel, c.key)
	case cueNoteOn:
		return midi.NoteOn(c.channel, c.key, c.value)
	}
	return nil
}

func clampProgram(p int) int {
	return max(0, min(127, p))
}

// effectiveQPM is the tempo, in quarter notes per minute, at which the tune's
// ticks last as long as in the schedule.
func effectiveQPM(tune scoresync.Tune, msPerMeasure float64) float64 {
	ticks := tune.TicksPerMeasure()
	if ticks <= 0 || msPerMeasure <= 0 || tune.TicksPerQuarter <= 0 {
		return scoresync.DefaultTempo
	}
	quarters := float64(ticks) / float64(tune.TicksPerQuarter)
	return 60000 * quarters / msPerMeasure
}
