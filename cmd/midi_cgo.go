//go:build cgo

package cmd

import (
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// OpenMIDIOut finds the first MIDI output whose name starts with prefix. An
// empty prefix means no output: the returned port is nil and notes are only
// timed, not sent anywhere. The returned function closes the driver.
func OpenMIDIOut(prefix string) (drivers.Out, func(), error) {
	if prefix == "" {
		return nil, func() {}, nil
	}
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open MIDI driver: %w", err)
	}
	outs, err := drv.Outs()
	if err != nil {
		drv.Close()
		return nil, nil, fmt.Errorf("cannot list MIDI outputs: %w", err)
	}
	for _, out := range outs {
		if strings.HasPrefix(out.String(), prefix) {
			return out, func() { drv.Close() }, nil
		}
	}
	drv.Close()
	return nil, nil, fmt.Errorf("no MIDI output found with prefix %q", prefix)
}

// MIDIOutputs lists the names of the MIDI outputs of the system.
func MIDIOutputs() ([]string, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("cannot open MIDI driver: %w", err)
	}
	defer drv.Close()
	outs, err := drv.Outs()
	if err != nil {
		return nil, fmt.Errorf("cannot list MIDI outputs: %w", err)
	}
	names := make([]string, len(outs))
	for i, out := range outs {
		names[i] = out.String()
	}
	return names, nil
}
