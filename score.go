package scoresync

import (
	"context"
	"slices"
	"sort"
)

type (
	// Renderer is the notation rendering engine. It turns a Document into one
	// VisualScore per tune found in the document.
	Renderer interface {
		Render(ctx context.Context, doc Document, opts RenderOptions) ([]VisualScore, error)
	}

	// VisualScore is the handle of a rendered score. The viewer treats it as
	// opaque and only passes it on to the synth engine; engines read the Tune
	// to know what to play and which elements to highlight.
	VisualScore interface {
		Tune() Tune
		Image() []byte
	}

	RenderOptions struct {
		StaffWidth               int
		Scale                    float64
		PreferredMeasuresPerLine int
		MeasureNumbers           bool
	}

	// Tune is the engine neutral timing skeleton of a rendered score. Ticks
	// are counted from the beginning of the tune.
	Tune struct {
		TicksPerQuarter int
		Meter           TimeSignature
		Elements        []Element
		Events          []NoteEvent
	}

	// ElementID identifies one visual element (a note head, a rest) of a
	// rendered score.
	ElementID string

	Element struct {
		ID      ElementID
		Measure int
	}

	NoteEvent struct {
		Tick     int
		Duration int
		Channel  byte
		Note     byte
		Velocity byte
		Element  ElementID
	}

	// Position is a point in time where at least one note starts.
	Position struct {
		Tick         int
		Elements     []ElementID
		MeasureStart bool
	}
)

var DefaultRenderOptions = RenderOptions{
	StaffWidth:               600,
	Scale:                    0.8,
	PreferredMeasuresPerLine: 16,
	MeasureNumbers:           true,
}

// TicksPerMeasure returns the length of one measure of the tune's meter, in
// ticks.
func (t *Tune) TicksPerMeasure() int {
	meter := t.Meter
	if meter.Numerator <= 0 || meter.Denominator <= 0 {
		meter = DefaultTimeSignature
	}
	return t.TicksPerQuarter * 4 * meter.Numerator / meter.Denominator
}

// Positions groups the note events by their starting tick. Each position
// lists the elements starting there once, in event order.
func (t *Tune) Positions() []Position {
	events := make([]NoteEvent, len(t.Events))
	copy(events, t.Events)
	sort.SliceStable(events, func(i, j int) bool { return events[i].Tick < events[j].Tick })
	perMeasure := t.TicksPerMeasure()
	var ret []Position
	for _, e := range events {
		if len(ret) == 0 || ret[len(ret)-1].Tick != e.Tick {
			ret = append(ret, Position{
				Tick:         e.Tick,
				MeasureStart: perMeasure > 0 && e.Tick%perMeasure == 0,
			})
		}
		p := &ret[len(ret)-1]
		if e.Element != "" && !slices.Contains(p.Elements, e.Element) {
			p.Elements = append(p.Elements, e.Element)
		}
	}
	return ret
}

// LengthInTicks returns the tick where the last note of the tune ends.
func (t *Tune) LengthInTicks() int {
	length := 0
	for _, e := range t.Events {
		if end := e.Tick + e.Duration; end > length {
			length = end
		}
	}
	return length
}
