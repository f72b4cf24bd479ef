//go:build !cgo

package cmd

import (
	"errors"

	"gitlab.com/gomidi/midi/v2/drivers"
)

// without cgo there is no MIDI driver, so only the "no output" case works
var errNoMIDI = errors.New("MIDI output needs a build with cgo enabled")

func OpenMIDIOut(prefix string) (drivers.Out, func(), error) {
	if prefix == "" {
		return nil, func() {}, nil
	}
	return nil, nil, errNoMIDI
}

func MIDIOutputs() ([]string, error) {
	return nil, errNoMIDI
}
