package abcexec

import (
	"fmt"
	"io"
	"sort"

	"github.com/etudelab/scoresync"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// ReadTune reads a standard MIDI file into a Tune. Every note gets an
// element "note-<n>", numbered in the order the notes start; notes starting
// together on the same channel are a chord and share the element of the
// first of them.
func ReadTune(r io.Reader) (scoresync.Tune, error) {
	s, err := smf.ReadFrom(r)
	if err != nil {
		return scoresync.Tune{}, fmt.Errorf("cannot read MIDI file: %w", err)
	}
	ticks, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok {
		return scoresync.Tune{}, fmt.Errorf("unsupported MIDI time format %v", s.TimeFormat)
	}
	tune := scoresync.Tune{TicksPerQuarter: int(ticks.Ticks4th()), Meter: scoresync.DefaultTimeSignature}
	type key struct{ channel, note uint8 }
	var events []scoresync.NoteEvent
	meterSet := false
	for _, tr := range s.Tracks {
		tick := 0
		open := map[key]int{} // index into events
		for _, ev := range tr {
			tick += int(ev.Delta)
			var num, den uint8
			if !meterSet && ev.Message.GetMetaMeter(&num, &den) && num > 0 && den > 0 {
				tune.Meter = scoresync.TimeSignature{Numerator: int(num), Denominator: int(den)}
				meterSet = true
				continue
			}
			msg := midi.Message(ev.Message)
			var ch, note, vel uint8
			switch {
			case msg.GetNoteStart(&ch, &note, &vel):
				k := key{ch, note}
				if i, ok := open[k]; ok {
					events[i].Duration = tick - events[i].Tick
				}
				open[k] = len(events)
				events = append(events, scoresync.NoteEvent{Tick: tick, Channel: ch, Note: note, Velocity: vel})
			case msg.GetNoteEnd(&ch, &note):
				k := key{ch, note}
				if i, ok := open[k]; ok {
					events[i].Duration = tick - events[i].Tick
					delete(open, k)
				}
			}
		}
		for _, i := range open {
			events[i].Duration = tick - events[i].Tick
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Tick != events[j].Tick {
			return events[i].Tick < events[j].Tick
		}
		return events[i].Channel < events[j].Channel
	})
	perMeasure := tune.TicksPerMeasure()
	for i := range events {
		e := &events[i]
		if i > 0 && events[i-1].Tick == e.Tick && events[i-1].Channel == e.Channel {
			e.Element = events[i-1].Element
			continue
		}
		e.Element = scoresync.ElementID(fmt.Sprintf("note-%d", len(tune.Elements)))
		measure := 0
		if perMeasure > 0 {
			measure = e.Tick / perMeasure
		}
		tune.Elements = append(tune.Elements, scoresync.Element{ID: e.Element, Measure: measure})
	}
	tune.Events = events
	return tune, nil
}
