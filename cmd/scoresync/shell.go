package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/dustin/go-humanize"
	"github.com/etudelab/scoresync"
	"github.com/etudelab/scoresync/library"
	"github.com/etudelab/scoresync/viewer"
)

type (
	// Shell is the interactive front end of a viewer.Controller.
	Shell struct {
		c      *viewer.Controller
		lib    *library.Library // nil if the library could not be opened
		out    io.Writer
		logger *slog.Logger

		commands map[string]command
	}

	command struct {
		args string
		help string
		run  func(ctx context.Context, args string) error
	}
)

var errUsage = errors.New("usage")

func NewShell(c *viewer.Controller, lib *library.Library, out io.Writer, logger *slog.Logger) *Shell {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Shell{c: c, lib: lib, out: out, logger: logger}
	s.commands = map[string]command{
		"title":   {"<text>", "Set the title", s.title},
		"tempo":   {"<bpm>", fmt.Sprintf("Set the tempo (%d-%d)", scoresync.MinTempo, scoresync.MaxTempo), s.tempo},
		"meter":   {"<n/d>", "Set the time signature", s.meter},
		"key":     {"<key>", "Set the key the score is notated in", s.key},
		"playkey": {"<key>", "Set the key the score sounds in", s.playKey},
		"body":    {"<abc>", `Set the notes; "\n" starts a new line`, s.body},
		"load":    {"<file.abc>", "Load the notes of the first tune in a file", s.load},
		"play":    {"", "Start playback", s.play},
		"stop":    {"", "Stop playback", s.stop},
		"toggle":  {"", "Start or stop playback", s.toggle},
		"save":    {"", "Save the score to the library", s.save},
		"export":  {"[file.abc|file.mid|file.svg]", "Write the score to a file", s.export},
		"status":  {"", "Show the score settings and the playback state", s.status},
		"keys":    {"", "List the available keys and meters", s.keys},
		"library": {"", "List the saved scores", s.library},
		"open":    {"<id>", "Open a saved score", s.open},
		"forget":  {"<id>", "Remove a saved score from the library", s.forget},
		"help":    {"", "Show this help", s.help},
	}
	return s
}

// Execute runs one command line and reports whether the shell should keep
// running.
func (s *Shell) Execute(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return true
	}
	name, args, _ := strings.Cut(line, " ")
	args = strings.TrimSpace(args)
	switch name {
	case "exit", "quit":
		return false
	}
	cmd, ok := s.commands[name]
	if !ok {
		fmt.Fprintf(s.out, "Unknown command %q, try help\n", name)
		return true
	}
	if err := cmd.run(ctx, args); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(s.out, "Usage: %s %s\n", name, cmd.args)
		} else {
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
	}
	return true
}

// Run reads commands until exit or end of input. Notifications from the
// controller are printed while waiting for input.
func (s *Shell) Run(ctx context.Context, historyFile string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "scoresync> ",
		HistoryFile:     historyFile,
		AutoComplete:    s.Completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("could not initialize readline: %w", err)
	}
	defer rl.Close()
	s.out = rl.Stdout()
	done := make(chan struct{})
	defer close(done)
	go s.notifications(done)
	fmt.Fprintln(s.out, "Type help for a list of commands.")
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("could not read input: %w", err)
		}
		if !s.Execute(ctx, line) {
			return nil
		}
	}
}

func (s *Shell) notifications(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg := <-s.c.Broker().ToUI:
			s.Notify(msg)
		}
	}
}

// Notify prints a message from the controller's broker.
func (s *Shell) Notify(msg any) {
	switch m := msg.(type) {
	case viewer.Alert:
		fmt.Fprintln(s.out, m)
	case viewer.StateMsg:
		switch m.State {
		case viewer.Playing, viewer.Stopped, viewer.Failed:
			fmt.Fprintf(s.out, "[%v]\n", m.State)
		default:
			s.logger.Debug("state changed", "state", m.State, "generation", m.Generation)
		}
	case viewer.ScrollRequest:
		s.logger.Debug("measure started", "element", m.Element)
	}
}

func (s *Shell) Completer() readline.AutoCompleter {
	keyItems := func(keys []scoresync.Key) []readline.PrefixCompleterInterface {
		var ret []readline.PrefixCompleterInterface
		for _, k := range keys {
			ret = append(ret, readline.PcItem(k.Name))
		}
		return ret
	}
	var meters []readline.PrefixCompleterInterface
	for _, sig := range scoresync.TimeSignatures {
		meters = append(meters, readline.PcItem(sig.String()))
	}
	var items []readline.PrefixCompleterInterface
	for _, name := range s.commandNames() {
		switch name {
		case "key":
			items = append(items, readline.PcItem(name, keyItems(scoresync.NotatedKeys)...))
		case "playkey":
			items = append(items, readline.PcItem(name, keyItems(scoresync.PlaybackKeys)...))
		case "meter":
			items = append(items, readline.PcItem(name, meters...))
		default:
			items = append(items, readline.PcItem(name))
		}
	}
	items = append(items, readline.PcItem("exit"))
	return readline.NewPrefixCompleter(items...)
}

func (s *Shell) commandNames() []string {
	names := make([]string, 0, len(s.commands))
	for name := range s.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// commands

func (s *Shell) title(ctx context.Context, args string) error {
	return s.c.SetTitle(ctx, args)
}

func (s *Shell) tempo(ctx context.Context, args string) error {
	bpm, err := strconv.Atoi(args)
	if err != nil {
		return errUsage
	}
	if err := s.c.SetTempo(ctx, bpm); err != nil {
		return err
	}
	if got := s.c.Settings().Tempo; got != bpm {
		fmt.Fprintf(s.out, "Tempo limited to %d\n", got)
	}
	return nil
}

func (s *Shell) meter(ctx context.Context, args string) error {
	sig, ok := scoresync.FindTimeSignature(args)
	if !ok {
		return fmt.Errorf("%w: %q", scoresync.ErrUnknownTimeSignature, args)
	}
	return s.c.SetTimeSignature(ctx, sig)
}

func (s *Shell) key(ctx context.Context, args string) error {
	if args == "" {
		return errUsage
	}
	return s.c.SetNotatedKey(ctx, args)
}

func (s *Shell) playKey(ctx context.Context, args string) error {
	if args == "" {
		return errUsage
	}
	if err := s.c.SetPlaybackKey(ctx, args); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Transposing %+d semitones\n", s.c.Transposition())
	return nil
}

func (s *Shell) body(ctx context.Context, args string) error {
	return s.c.SetBody(ctx, strings.ReplaceAll(args, `\n`, "\n"))
}

func (s *Shell) load(ctx context.Context, args string) error {
	if args == "" {
		return errUsage
	}
	data, err := os.ReadFile(args)
	if err != nil {
		return err
	}
	return s.c.SetBody(ctx, scoresync.FirstTuneBody(string(data)))
}

func (s *Shell) play(ctx context.Context, _ string) error {
	return s.c.Play(ctx)
}

func (s *Shell) stop(context.Context, string) error {
	return s.c.Stop()
}

func (s *Shell) toggle(ctx context.Context, _ string) error {
	return s.c.Toggle(ctx)
}

func (s *Shell) save(ctx context.Context, _ string) error {
	if s.lib == nil {
		return errors.New("the library is not available")
	}
	e, err := s.lib.Save(ctx, s.c.Settings(), s.c.Body())
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Saved %q as %s\n", e.Settings.Title, e.ID[:8])
	return nil
}

func (s *Shell) export(ctx context.Context, args string) error {
	name := args
	if name == "" {
		name = s.c.DownloadName()
	}
	var buf bytes.Buffer
	switch strings.ToLower(filepath.Ext(name)) {
	case ".abc":
		if err := s.c.Download(&buf); err != nil {
			return err
		}
	case ".mid", ".midi":
		data, err := s.c.SMF()
		if err != nil {
			return err
		}
		buf.Write(data)
	case ".svg":
		visual := s.c.Visual()
		if visual == nil || visual.Image() == nil {
			return errors.New("no image has been rendered; enable images in the config")
		}
		buf.Write(visual.Image())
	default:
		return errUsage
	}
	if err := os.WriteFile(name, buf.Bytes(), 0o644); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Wrote %s (%s)\n", name, humanize.Bytes(uint64(buf.Len())))
	return nil
}

func (s *Shell) status(context.Context, string) error {
	st := s.c.Settings()
	notated, _ := scoresync.FindNotatedKey(st.NotatedKey)
	playback, _ := scoresync.FindPlaybackKey(st.PlaybackKey)
	doc := s.c.Document()
	fmt.Fprintf(s.out, "Title:     %s\n", st.Title)
	fmt.Fprintf(s.out, "Tempo:     %d bpm, %v\n", st.Tempo, st.TimeSignature)
	fmt.Fprintf(s.out, "Key:       %s, sounding in %s (%+d)\n", notated.Display, playback.Display, s.c.Transposition())
	fmt.Fprintf(s.out, "Piece:     %s, %s\n", doc.Token, humanize.Bytes(uint64(len(doc.Text))))
	fmt.Fprintf(s.out, "State:     %v, %s built, generation %d\n", s.c.State(), humanize.Comma(int64(s.c.Rebuilds())), s.c.Generation())
	if active := s.c.Highlights().Active(); len(active) > 0 {
		fmt.Fprintf(s.out, "Sounding:  %v\n", active)
	}
	return nil
}

func (s *Shell) keys(context.Context, string) error {
	fmt.Fprintln(s.out, "Notated keys:")
	for _, k := range scoresync.NotatedKeys {
		fmt.Fprintf(s.out, "  %-4s %s\n", k.Name, k.Display)
	}
	fmt.Fprintln(s.out, "Playback keys:")
	for _, k := range scoresync.PlaybackKeys {
		fmt.Fprintf(s.out, "  %-4s %s\n", k.Name, k.Display)
	}
	var meters []string
	for _, sig := range scoresync.TimeSignatures {
		meters = append(meters, sig.String())
	}
	fmt.Fprintf(s.out, "Meters: %s\n", strings.Join(meters, " "))
	return nil
}

func (s *Shell) library(ctx context.Context, _ string) error {
	if s.lib == nil {
		return errors.New("the library is not available")
	}
	entries, err := s.lib.List(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(s.out, "The library is empty.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(s.out, "  %s  %-24s %3d bpm %-5v %-3s  %s\n", e.ID[:8], e.Settings.Title, e.Settings.Tempo, e.Settings.TimeSignature, e.Settings.NotatedKey, humanize.Time(e.Saved))
	}
	return nil
}

func (s *Shell) open(ctx context.Context, args string) error {
	if s.lib == nil {
		return errors.New("the library is not available")
	}
	if args == "" {
		return errUsage
	}
	e, err := s.lib.Load(ctx, args)
	if err != nil {
		return err
	}
	if err := s.c.Update(ctx, e.Settings, e.Body); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Opened %q\n", e.Settings.Title)
	return nil
}

func (s *Shell) forget(ctx context.Context, args string) error {
	if s.lib == nil {
		return errors.New("the library is not available")
	}
	if args == "" {
		return errUsage
	}
	e, err := s.lib.Load(ctx, args)
	if err != nil {
		return err
	}
	if err := s.lib.Delete(ctx, e.ID); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Removed %q\n", e.Settings.Title)
	return nil
}

func (s *Shell) help(context.Context, string) error {
	fmt.Fprintln(s.out, "Commands:")
	for _, name := range s.commandNames() {
		cmd := s.commands[name]
		fmt.Fprintf(s.out, "  %-30s %s\n", strings.TrimSpace(name+" "+cmd.args), cmd.help)
	}
	fmt.Fprintf(s.out, "  %-30s %s\n", "exit", "Leave the shell")
	return nil
}
