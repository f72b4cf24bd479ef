package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/etudelab/scoresync"
	"github.com/etudelab/scoresync/abcexec"
	"github.com/etudelab/scoresync/cmd"
	"github.com/etudelab/scoresync/library"
	"github.com/etudelab/scoresync/midisynth"
	"github.com/etudelab/scoresync/oto"
	"github.com/etudelab/scoresync/version"
	"github.com/etudelab/scoresync/viewer"
)

var logger = slog.Default()

// initLogger installs a text handler on stderr as the default logger.
func initLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level, AddSource: debug})
	logger = slog.New(h)
	slog.SetDefault(logger)
}

func main() {
	configPath := flag.String("config", filepath.Join(configDir(), "config.yml"), "Read settings from `file`.")
	debug := flag.Bool("debug", false, "Log debug messages.")
	versionFlag := flag.Bool("v", false, "Print version.")
	listMIDI := flag.Bool("list-midi", false, "List the MIDI outputs and exit.")
	midiOut := flag.String("midi-out", "", "Send the notes to the MIDI output whose name starts with `prefix`.")
	program := flag.Int("program", 0, "General MIDI program of the synth.")
	metronome := flag.Bool("metronome", false, "Click at the start of each measure.")
	images := flag.Bool("images", false, "Typeset the score to SVG with abcm2ps.")
	libraryPath := flag.String("library", "", "Keep saved scores in `file`.")
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.String())
		os.Exit(0)
	}
	initLogger(*debug)
	if *listMIDI {
		names, err := cmd.MIDIOutputs()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		for _, name := range names {
			fmt.Println(name)
		}
		os.Exit(0)
	}
	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if isFlagPassed("midi-out") {
		cfg.MIDIOut = *midiOut
	}
	if isFlagPassed("program") {
		cfg.Program = *program
	}
	if isFlagPassed("metronome") {
		cfg.Metronome = *metronome
	}
	if isFlagPassed("images") {
		cfg.Images = *images
	}
	if isFlagPassed("library") {
		cfg.Library = *libraryPath
	}
	if err := run(cfg, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg Config, args []string) error {
	settings, err := cfg.Settings()
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	body := ""
	if len(args) > 0 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		body = scoresync.FirstTuneBody(string(data))
	}
	renderer, err := abcexec.NewRenderer(abcexec.Config{
		Abc2Midi:  cfg.Abc2Midi,
		Abcm2ps:   cfg.Abcm2ps,
		Images:    cfg.Images,
		CacheSize: cfg.CacheSize,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	out, closeMIDI, err := cmd.OpenMIDIOut(cfg.MIDIOut)
	if err != nil {
		return err
	}
	defer closeMIDI()
	engine, err := midisynth.NewEngine(out, logger)
	if err != nil {
		return err
	}
	engine.Metronome = cfg.Metronome
	lib, err := library.Open(cfg.LibraryPath())
	if err != nil {
		logger.Warn("score library is not available", "path", cfg.LibraryPath(), "err", err)
		lib = nil
	} else {
		defer lib.Close()
	}
	c, err := viewer.NewController(viewer.Config{
		Renderer: renderer,
		Engine:   engine,
		Contexts: oto.NewDevice(cfg.SampleRate),
		Logger:   logger,
		Settings: settings,
		Body:     body,
		Program:  cfg.Program,
	})
	if err != nil {
		return err
	}
	defer c.Close()
	logger.Info("scoresync starting", "version", version.Short, "midi", cfg.MIDIOut, "library", cfg.LibraryPath())
	ctx := context.Background()
	if err := c.Refresh(ctx); err != nil {
		logger.Error("preparing the score failed", "err", err)
	}
	history := ""
	if err := os.MkdirAll(configDir(), 0o755); err == nil {
		history = filepath.Join(configDir(), "history")
	}
	shell := NewShell(c, lib, os.Stdout, logger)
	return shell.Run(ctx, history)
}

func isFlagPassed(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
