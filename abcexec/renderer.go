package abcexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/etudelab/scoresync"
	lru "github.com/hashicorp/golang-lru/v2"
)

type (
	// Config tells the Renderer where to find the tools. Empty binaries are
	// looked up in PATH by their usual names.
	Config struct {
		Abc2Midi  string
		Abcm2ps   string
		Images    bool // also typeset the score to SVG with abcm2ps
		CacheSize int  // number of rendered documents to remember; 0 means defaultCacheSize
		Logger    *slog.Logger
	}

	// Renderer implements scoresync.Renderer by running the abcMIDI tools
	// on a temporary copy of the document.
	Renderer struct {
		abc2midi string
		abcm2ps  string
		images   bool
		cache    *lru.Cache[string, []scoresync.VisualScore]
		logger   *slog.Logger
	}

	// Score is the VisualScore made by the Renderer.
	Score struct {
		doc   scoresync.Document
		tune  scoresync.Tune
		image []byte
	}

	// ToolError is returned when one of the tools fails. Output holds what
	// the tool printed.
	ToolError struct {
		Tool   string
		Output string
		Err    error
	}
)

const (
	defaultAbc2Midi  = "abc2midi"
	defaultAbcm2ps   = "abcm2ps"
	defaultCacheSize = 32
)

func NewRenderer(cfg Config) (*Renderer, error) {
	r := &Renderer{
		abc2midi: cfg.Abc2Midi,
		abcm2ps:  cfg.Abcm2ps,
		images:   cfg.Images,
		logger:   cfg.Logger,
	}
	if r.abc2midi == "" {
		r.abc2midi = defaultAbc2Midi
	}
	if r.abcm2ps == "" {
		r.abcm2ps = defaultAbcm2ps
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, []scoresync.VisualScore](size)
	if err != nil {
		return nil, fmt.Errorf("cannot create render cache: %w", err)
	}
	r.cache = cache
	return r, nil
}

// Render renders the first tune of the document. Documents rendered before
// with the same options are served from the cache.
func (r *Renderer) Render(ctx context.Context, doc scoresync.Document, opts scoresync.RenderOptions) ([]scoresync.VisualScore, error) {
	key := fmt.Sprintf("%+v\x00%s", opts, doc.Text)
	if scores, ok := r.cache.Get(key); ok {
		r.logger.Debug("render cache hit", "token", doc.Token)
		return scores, nil
	}
	dir, err := os.MkdirTemp("", "scoresync-*")
	if err != nil {
		return nil, fmt.Errorf("cannot create work directory: %w", err)
	}
	defer os.RemoveAll(dir)
	abcPath := filepath.Join(dir, "score.abc")
	if err := os.WriteFile(abcPath, []byte(doc.Text), 0o644); err != nil {
		return nil, fmt.Errorf("cannot write score: %w", err)
	}
	midPath := filepath.Join(dir, "score.mid")
	if err := r.run(ctx, r.abc2midi, abcPath, "-o", midPath); err != nil {
		return nil, err
	}
	f, err := os.Open(midPath)
	if err != nil {
		return nil, &ToolError{Tool: filepath.Base(r.abc2midi), Err: fmt.Errorf("no MIDI file was written: %w", err)}
	}
	tune, err := ReadTune(f)
	f.Close()
	if err != nil {
		return nil, err
	}
	score := &Score{doc: doc, tune: tune}
	if r.images {
		if score.image, err = r.typeset(ctx, dir, abcPath, opts); err != nil {
			return nil, err
		}
	}
	scores := []scoresync.VisualScore{score}
	r.cache.Add(key, scores)
	r.logger.Debug("score rendered", "token", doc.Token, "elements", len(tune.Elements))
	return scores, nil
}

// typeset runs abcm2ps and returns the first page of the SVG output.
func (r *Renderer) typeset(ctx context.Context, dir, abcPath string, opts scoresync.RenderOptions) ([]byte, error) {
	args := []string{"-g", "-O", filepath.Join(dir, "page")}
	if opts.Scale > 0 {
		args = append(args, "-s", strconv.FormatFloat(opts.Scale, 'f', -1, 64))
	}
	if opts.StaffWidth > 0 {
		args = append(args, "-w", strconv.Itoa(opts.StaffWidth)+"pt")
	}
	if opts.PreferredMeasuresPerLine > 0 {
		args = append(args, "-B", strconv.Itoa(opts.PreferredMeasuresPerLine))
	}
	if opts.MeasureNumbers {
		args = append(args, "-j", "1")
	}
	args = append(args, abcPath)
	if err := r.run(ctx, r.abcm2ps, args...); err != nil {
		return nil, err
	}
	pages, err := filepath.Glob(filepath.Join(dir, "page*.svg"))
	if err != nil || len(pages) == 0 {
		return nil, &ToolError{Tool: filepath.Base(r.abcm2ps), Err: errors.New("no SVG file was written")}
	}
	sort.Strings(pages)
	return os.ReadFile(pages[0])
}

func (r *Renderer) run(ctx context.Context, tool string, args ...string) error {
	cmd := exec.CommandContext(ctx, tool, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return &ToolError{Tool: filepath.Base(tool), Output: strings.TrimSpace(out.String()), Err: err}
	}
	r.logger.Debug("tool finished", "tool", tool, "output", strings.TrimSpace(out.String()))
	return nil
}

// CacheLen is the number of documents in the render cache.
func (r *Renderer) CacheLen() int {
	return r.cache.Len()
}

func (e *ToolError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Tool, e.Err, e.Output)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

func (s *Score) Tune() scoresync.Tune {
	return s.tune
}

// Image is the SVG of the first page, or nil if images are not rendered.
func (s *Score) Image() []byte {
	return s.image
}

func (s *Score) Document() scoresync.Document {
	return s.doc
}
