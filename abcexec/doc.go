// Package abcexec renders ABC documents with the abcMIDI and abcm2ps command
// line tools. abc2midi provides the timing of the notes, abcm2ps the optional
// SVG image.
package abcexec
