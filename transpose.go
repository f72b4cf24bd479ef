package scoresync

// Transposition returns how many semitones the audio should be shifted so
// that a score notated in notatedKey sounds in playbackKey. The result is
// normalized into [-6, 6], so that the shift is never more than a tritone in
// either direction. Unknown key names count as C.
func Transposition(notatedKey, playbackKey string) int {
	return NormalizeSemitones(PlaybackKeySemitones(playbackKey) - NotatedKeySemitones(notatedKey))
}

// NormalizeSemitones folds an interval into [-6, 6] by whole octaves.
func NormalizeSemitones(semitones int) int {
	for semitones > 6 {
		semitones -= 12
	}
	for semitones < -6 {
		semitones += 12
	}
	return semitones
}

// NotatedKeySemitones returns the pitch class of a notated key, or 0 if the
// key is not in NotatedKeys.
func NotatedKeySemitones(name string) int {
	k, _ := findKey(NotatedKeys, name)
	return k.Semitones
}

// PlaybackKeySemitones returns the pitch class of a playback key, or 0 if the
// key is not in PlaybackKeys.
func PlaybackKeySemitones(name string) int {
	k, _ := findKey(PlaybackKeys, name)
	return k.Semitones
}
