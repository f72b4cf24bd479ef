// Package midisynth is a synth engine that plays scores on a MIDI output
// port. The actual sound is produced by whatever synthesizer listens on the
// port; without a port the messages are discarded and only the timing, the
// cursor callbacks and the metronome run.
package midisynth
