package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/etudelab/scoresync"
	"gopkg.in/yaml.v3"
)

// Config is read from config.yml in the user's config directory. Every
// field can also be given as a command line flag, which wins over the file.
type Config struct {
	Title       string `yaml:"title,omitempty"`
	Tempo       int    `yaml:"tempo,omitempty"`
	Meter       string `yaml:"meter,omitempty"`
	Key         string `yaml:"key,omitempty"`
	PlaybackKey string `yaml:"playbackkey,omitempty"`

	Abc2Midi  string `yaml:"abc2midi,omitempty"`
	Abcm2ps   string `yaml:"abcm2ps,omitempty"`
	Images    bool   `yaml:"images,omitempty"`
	CacheSize int    `yaml:"cachesize,omitempty"`

	MIDIOut    string `yaml:"midiout,omitempty"`
	Program    int    `yaml:"program,omitempty"`
	Metronome  bool   `yaml:"metronome,omitempty"`
	SampleRate int    `yaml:"samplerate,omitempty"`

	Library string `yaml:"library,omitempty"`
}

func configDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "scoresync")
	}
	return "."
}

// LoadConfig reads the config file at path. A missing file gives an empty
// Config and no error.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("could not read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("could not parse config %v: %w", path, err)
	}
	return cfg, nil
}

// Settings returns the initial score settings of the config; empty fields
// get their defaults.
func (c Config) Settings() (scoresync.ScoreSettings, error) {
	s := scoresync.ScoreSettings{Title: c.Title, NotatedKey: c.Key, PlaybackKey: c.PlaybackKey}
	if c.Tempo != 0 {
		s.Tempo = scoresync.ClampTempo(c.Tempo)
	}
	if c.Meter != "" {
		sig, ok := scoresync.FindTimeSignature(c.Meter)
		if !ok {
			return s, fmt.Errorf("%w: %q", scoresync.ErrUnknownTimeSignature, c.Meter)
		}
		s.TimeSignature = sig
	}
	s = s.WithDefaults()
	return s, s.Validate()
}

// LibraryPath is where the score library is kept.
func (c Config) LibraryPath() string {
	if c.Library != "" {
		return c.Library
	}
	return filepath.Join(configDir(), "library.db")
}
