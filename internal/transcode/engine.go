package transcode

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/backmassage/vidrelay/internal/config"
	"github.com/backmassage/vidrelay/internal/delivery"
	"github.com/backmassage/vidrelay/internal/display"
	"github.com/backmassage/vidrelay/internal/ffmpeg"
	"github.com/backmassage/vidrelay/internal/logging"
	"github.com/backmassage/vidrelay/internal/naming"
	"github.com/backmassage/vidrelay/internal/planner"
)

const partSuffix = ".part.mp4"

// Failure is a terminal transcode error for one artifact. Partial output has
// already been removed when it is returned.
type Failure struct {
	Path   string
	Stderr string
	Err    error
}

func (f *Failure) Error() string {
	msg := fmt.Sprintf("transcode %s: %v", filepath.Base(f.Path), f.Err)
	if d := ffmpeg.Diagnose(f.Stderr); d != ffmpeg.DiagnosisUnknown {
		msg += " (" + string(d) + ")"
	}
	return msg
}

func (f *Failure) Unwrap() error { return f.Err }

// IntroRenderer produces an intro clip for a title at a resolution.
type IntroRenderer interface {
	Render(ctx context.Context, title string, res planner.Resolution) (string, error)
}

// Job describes one asset's artifacts.
type Job struct {
	Source   string
	Title    string
	Stem     string // Collision-resolved artifact stem.
	Plan     *planner.Plan
	HasAudio bool
}

// Artifact is one file ready for upload.
type Artifact struct {
	Path      string
	Index     int // 0-based.
	Count     int
	SizeBytes int64
	Segment   planner.Segment
	Reused    bool
}

// Engine produces artifacts with ffmpeg.
type Engine struct {
	runner    ffmpeg.Runner
	intro     IntroRenderer
	outputDir string
	minBytes  int64
	cfg       *config.Config
	log       *logging.Logger
}

// NewEngine returns an Engine writing into cfg.OutputDir. intro may be nil,
// in which case every artifact is encoded without a title card.
func NewEngine(cfg *config.Config, runner ffmpeg.Runner, intro IntroRenderer, log *logging.Logger) *Engine {
	return &Engine{
		runner:    runner,
		intro:     intro,
		outputDir: cfg.OutputDir,
		minBytes:  cfg.MinOutputBytes,
		cfg:       cfg,
		log:       log,
	}
}

// Paths returns the artifact paths job would produce, in segment order.
func (e *Engine) Paths(job Job) []string {
	n := len(job.Plan.Segments)
	paths := make([]string, n)
	for i := range paths {
		paths[i] = naming.ArtifactPath(e.outputDir, job.Stem, string(job.Plan.Kind), i, n)
	}
	return paths
}

// Ensure makes sure every artifact of job exists, producing the missing ones.
// The intro is rendered at most once and only when an artifact that carries
// it has to be produced. The first failure stops the job.
func (e *Engine) Ensure(ctx context.Context, job Job) ([]Artifact, error) {
	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create output directory")
	}

	paths := e.Paths(job)
	artifacts := make([]Artifact, 0, len(paths))

	var introPath string
	introTried := false
	defer func() {
		if introPath != "" {
			os.Remove(introPath)
		}
	}()

	for i, seg := range job.Plan.Segments {
		a := Artifact{Path: paths[i], Index: i, Count: len(paths), Segment: seg}

		if size, ok := e.existing(a.Path); ok {
			a.SizeBytes = size
			a.Reused = true
			e.log.Info("  Reusing %s (%s)", filepath.Base(a.Path), display.FormatMB(size))
			artifacts = append(artifacts, a)
			continue
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if seg.IncludeIntro && !introTried {
			introTried = true
			introPath = e.renderIntro(ctx, job)
		}

		useIntro := seg.IncludeIntro && introPath != ""
		size, err := e.produce(ctx, job, i, a.Path, introPath, useIntro)
		if err != nil {
			return nil, err
		}
		a.SizeBytes = size
		artifacts = append(artifacts, a)
	}
	return artifacts, nil
}

// existing reports whether path already holds a usable artifact.
func (e *Engine) existing(path string) (int64, bool) {
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() || fi.Size() < e.minBytes {
		return 0, false
	}
	return fi.Size(), true
}

func (e *Engine) renderIntro(ctx context.Context, job Job) string {
	if e.intro == nil {
		return ""
	}
	path, err := e.intro.Render(ctx, job.Title, job.Plan.Target)
	if err != nil {
		e.log.Warn("  Intro unavailable, continuing without it: %v", err)
		return ""
	}
	return path
}

func (e *Engine) produce(
	ctx context.Context,
	job Job,
	index int,
	path, introPath string,
	useIntro bool,
) (int64, error) {
	seg := job.Plan.Segments[index]
	count := len(job.Plan.Segments)
	tmp := strings.TrimSuffix(path, ".mp4") + partSuffix
	w := ffmpeg.WindowFor(seg)
	res := job.Plan.Target

	var args []string
	if useIntro {
		args = ffmpeg.ConcatArgs(introPath, job.Source, tmp, res, w, job.HasAudio)
	} else {
		args = ffmpeg.EncodeArgs(job.Source, tmp, res, w, job.HasAudio)
	}

	label := "Encoding"
	if count > 1 {
		label = fmt.Sprintf("Encoding part %d/%d (%s-%s)", index+1, count,
			display.FormatDuration(seg.Start), display.FormatDuration(seg.End()))
	}
	e.log.Info("  %s -> %s", label, filepath.Base(path))
	e.log.Debug(e.cfg.Verbose, "  ffmpeg %s", strings.Join(args, " "))

	start := time.Now()
	out := ffmpeg.Execute(ctx, e.runner, e.timeout(job.Plan.Kind, count), args)
	if out.Err != nil {
		os.Remove(tmp)
		return 0, &Failure{Path: path, Stderr: out.Stderr, Err: out.Err}
	}

	fi, err := os.Stat(tmp)
	if err != nil {
		return 0, &Failure{Path: path, Stderr: out.Stderr, Err: errors.New("ffmpeg produced no output")}
	}
	if fi.Size() < e.minBytes {
		os.Remove(tmp)
		return 0, &Failure{Path: path, Stderr: out.Stderr,
			Err: errors.Errorf("output is %d bytes, below the %d byte minimum", fi.Size(), e.minBytes)}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return 0, &Failure{Path: path, Err: errors.Wrap(err, "rename partial output")}
	}

	e.log.Success("  Encoded %s in %ds (%s)", filepath.Base(path),
		int(time.Since(start).Seconds()), display.FormatMB(fi.Size()))
	return fi.Size(), nil
}

// timeout returns the wall-clock limit for one encode.
func (e *Engine) timeout(kind delivery.Kind, count int) time.Duration {
	switch {
	case kind == delivery.User:
		return e.cfg.UserEncodeTimeout
	case count > 1:
		return e.cfg.SegmentTimeout
	default:
		return e.cfg.BotEncodeTimeout
	}
}
