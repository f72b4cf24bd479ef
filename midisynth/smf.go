package midisynth

import (
	"fmt"
	"io"
	"sort"

	"github.com/etudelab/scoresync"
	"gitlab.com/gomidi/midi/v2/smf"
)

type smfEvent struct {
	tick int
	c    cue
}

// WriteSMF writes the tune as a single track standard MIDI file, transposed
// and with a tempo such that it plays in msPerMeasure per measure.
func WriteSMF(w io.Writer, tune scoresync.Tune, msPerMeasure float64, opts scoresync.SynthOptions) error {
	tpq := tune.TicksPerQuarter
	if tpq <= 0 || tpq > 0x7fff {
		return fmt.Errorf("cannot write MIDI file with %d ticks per quarter", tpq)
	}
	meter := tune.Meter
	if meter.Numerator <= 0 || meter.Denominator <= 0 {
		meter = scoresync.DefaultTimeSignature
	}
	var events []smfEvent
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
		events = append(events,
			smfEvent{tick: e.Tick, c: cue{kind: cueNoteOn, channel: ch, key: uint8(key), value: vel & 0x7f}},
			smfEvent{tick: e.Tick + e.Duration, c: cue{kind: cueNoteOff, channel: ch, key: uint8(key)}},
		)
	}
	for ch := range channels {
		events = append(events, smfEvent{c: cue{kind: cueProgram, channel: ch, value: uint8(clampProgram(opts.Program))}})
	}
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.tick != b.tick {
			return a.tick < b.tick
		}
		if a.c.kind != b.c.kind {
			return a.c.kind < b.c.kind
		}
		return a.c.channel < b.c.channel
	})
	var tr smf.Track
	tr.Add(0, smf.MetaMeter(uint8(meter.Numerator), uint8(meter.Denominator)))
	tr.Add(0, smf.MetaTempo(effectiveQPM(tune, msPerMeasure)))
	last := 0
	for _, e := range events {
		tr.Add(uint32(e.tick-last), e.c.message())
		last = e.tick
	}
	tr.Close(0)
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(uint16(tpq))
	if err := s.Add(tr); err != nil {
		return fmt.Errorf("cannot add track to MIDI file: %w", err)
	}
	if _, err := s.WriteTo(w); err != nil {
		return fmt.Errorf("cannot write MIDI file: %w", err)
	}
	return nil
}
