package intro

import (
	"context"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"

	"github.com/backmassage/vidrelay/internal/config"
	"github.com/backmassage/vidrelay/internal/ffmpeg"
	"github.com/backmassage/vidrelay/internal/logging"
	"github.com/backmassage/vidrelay/internal/planner"
)

// RenderError reports a failed card or clip. It is never fatal to the
// pipeline: the asset proceeds without an intro.
type RenderError struct {
	Stage  string // "card" or "clip"
	Stderr string
	Err    error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("intro %s: %v", e.Stage, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Renderer draws title cards and encodes them into clips.
type Renderer struct {
	runner       ffmpeg.Runner
	fontPath     string
	fontSize     float64
	charsPerLine int
	duration     time.Duration
	timeout      time.Duration
	workDir      string
	log          *logging.Logger
	verbose      bool
}

// NewRenderer returns a Renderer that writes temporary files under workDir.
func NewRenderer(cfg *config.Config, runner ffmpeg.Runner, workDir string, log *logging.Logger) *Renderer {
	return &Renderer{
		runner:       runner,
		fontPath:     cfg.FontPath,
		fontSize:     cfg.FontSize,
		charsPerLine: cfg.IntroCharsPerLine,
		duration:     cfg.IntroDuration,
		timeout:      cfg.SegmentTimeout,
		workDir:      workDir,
		log:          log,
		verbose:      cfg.Verbose,
	}
}

// Render produces an intro clip for title at res and returns its path. The
// caller owns the file and removes it when done.
func (r *Renderer) Render(ctx context.Context, title string, res planner.Resolution) (string, error) {
	if err := os.MkdirAll(r.workDir, 0o755); err != nil {
		return "", &RenderError{Stage: "card", Err: err}
	}
	f, err := os.CreateTemp(r.workDir, "intro-*.png")
	if err != nil {
		return "", &RenderError{Stage: "card", Err: err}
	}
	png := f.Name()
	f.Close()
	defer os.Remove(png)

	if err := r.DrawCard(title, res, png); err != nil {
		return "", err
	}

	clip := strings.TrimSuffix(png, filepath.Ext(png)) + ".mp4"
	args := ffmpeg.IntroClipArgs(png, clip, res, r.duration.Seconds())
	out := ffmpeg.Execute(ctx, r.runner, r.timeout, args)
	if out.Err != nil {
		os.Remove(clip)
		return "", &RenderError{Stage: "clip", Stderr: out.Stderr, Err: out.Err}
	}
	if fi, err := os.Stat(clip); err != nil || fi.Size() == 0 {
		os.Remove(clip)
		return "", &RenderError{Stage: "clip", Err: fmt.Errorf("no output at %s", clip)}
	}
	return clip, nil
}

// DrawCard writes the title card PNG for title at res to path: white text,
// wrapped and centered, on black.
func (r *Renderer) DrawCard(title string, res planner.Resolution, path string) error {
	dc := gg.NewContext(res.Width, res.Height)
	dc.SetColor(color.Black)
	dc.Clear()
	dc.SetColor(color.White)

	size := r.fontSize * float64(res.Height) / 1080
	if err := dc.LoadFontFace(r.fontPath, size); err != nil {
		r.log.Debug(r.verbose, "Font %s unavailable, using built-in face: %v", r.fontPath, err)
		dc.SetFontFace(basicfont.Face7x13)
	}

	lines := Wrap(title, r.charsPerLine)
	lineHeight := dc.FontHeight() * 1.5
	top := (float64(res.Height) - lineHeight*float64(len(lines))) / 2
	cx := float64(res.Width) / 2
	for i, line := range lines {
		y := top + lineHeight*(float64(i)+0.5)
		dc.DrawStringAnchored(line, cx, y, 0.5, 0.5)
	}

	if err := dc.SavePNG(path); err != nil {
		return &RenderError{Stage: "card", Err: err}
	}
	return nil
}
