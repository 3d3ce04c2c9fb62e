package pipeline

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
	"github.com/backmassage/vidrelay/internal/probe"
	"github.com/backmassage/vidrelay/internal/state"
	"github.com/backmassage/vidrelay/internal/transcode"
)

// ErrPlanningViolation means a segment of a split plan came out larger than
// the bot cap. The planner's margin is supposed to make that impossible, so
// the asset fails instead of being silently re-routed.
var ErrPlanningViolation = errors.New("segment exceeds the bot payload cap")

// Outcome is the result of processing one asset.
type Outcome string

const (
	OutcomeUploaded Outcome = "uploaded"
	OutcomeSkipped  Outcome = "skipped" // Already uploaded.
	OutcomeFailed   Outcome = "failed"
	OutcomePlanned  Outcome = "planned" // Dry run.
)

// AssetResult describes how one asset ended.
type AssetResult struct {
	Outcome Outcome
	Channel delivery.Kind // Channel of the last delivered part.
	Parts   int
	Bytes   int64 // Bytes delivered in this run.
	Err     error
}

// Prober returns metadata for a media file, or nil when it cannot be read.
type Prober interface {
	Inspect(ctx context.Context, path string) *probe.Metadata
}

// Transcoder produces or reuses the artifacts of a job.
type Transcoder interface {
	Ensure(ctx context.Context, job transcode.Job) ([]transcode.Artifact, error)
}

// Deps are the collaborators a Runner drives.
type Deps struct {
	Prober     Prober
	Transcoder Transcoder
	Router     *delivery.Router
	Store      *state.Store
	Sleep      delivery.SleepFunc // Defaults to delivery.Sleep.
}

// Runner processes assets sequentially and records their state.
type Runner struct {
	cfg      *config.Config
	log      *logging.Logger
	prober   Prober
	engine   Transcoder
	router   *delivery.Router
	store    *state.Store
	sleep    delivery.SleepFunc
	resolver *naming.CollisionResolver

	runID        string
	pendingPause time.Duration // Owed before the next delivery.
}

// NewRunner returns a Runner. Artifact stems claimed in earlier runs are
// loaded from the store so replays keep their original file names.
func NewRunner(cfg *config.Config, log *logging.Logger, deps Deps) (*Runner, error) {
	r := &Runner{
		cfg:      cfg,
		log:      log,
		prober:   deps.Prober,
		engine:   deps.Transcoder,
		router:   deps.Router,
		store:    deps.Store,
		sleep:    deps.Sleep,
		resolver: naming.NewCollisionResolver(),
	}
	if r.sleep == nil {
		r.sleep = delivery.Sleep
	}
	stems, err := r.store.Stems()
	if err != nil {
		return nil, err
	}
	for stem, owner := range stems {
		r.resolver.Claim(owner, stem)
	}
	return r, nil
}

// Targets returns the assets an upload run should process: the previous
// run's failures with RetryFailed, otherwise everything under InputDir.
func (r *Runner) Targets() ([]string, error) {
	if r.cfg.RetryFailed {
		list, err := state.ReadFailedList(r.cfg.ResolvedFailedListPath())
		if err != nil {
			return nil, err
		}
		return list.Paths, nil
	}
	return Discover(r.cfg.InputDir)
}

// Run processes paths in order and returns aggregate stats. It records a run
// in the store and, outside dry runs, rewrites the failed list.
func (r *Runner) Run(ctx context.Context, command string, paths []string) RunStats {
	stats := RunStats{Total: len(paths)}

	prev, err := r.store.LastRun()
	if err != nil {
		r.log.Debug(r.cfg.Verbose, "No previous run: %v", err)
	}
	run, err := r.store.StartRun(command)
	if err != nil {
		r.log.Error("Cannot record run: %v", err)
		run = &state.RunRecord{Command: command}
	}
	r.runID = run.ID

	r.logBatchHeader(&stats, prev)

	for i, path := range paths {
		stats.Current = i + 1

		if ctx.Err() != nil {
			r.log.Warn("Interrupted")
			break
		}

		r.log.Info("[%d/%d] %s", stats.Current, stats.Total, filepath.Base(path))
		res := r.ProcessAsset(ctx, path)
		stats.Record(path, res)
		fmt.Println()
	}

	r.logSummary(&stats)

	if !r.cfg.DryRun {
		list := state.FailedList{RunID: run.ID, GeneratedAt: time.Now(), Paths: stats.FailedPaths}
		if err := state.WriteFailedList(r.cfg.ResolvedFailedListPath(), list); err != nil {
			r.log.Error("Cannot write failed list: %v", err)
		}
	}

	if run.ID != "" {
		run.Total = stats.Total
		run.Succeeded = stats.Uploaded
		run.Skipped = stats.Skipped
		run.Failed = stats.Failed
		if err := r.store.FinishRun(run); err != nil {
			r.log.Error("Cannot record run: %v", err)
		}
	}
	return stats
}

// ProcessAsset takes one source from whatever state it is in to uploaded:
// validate, probe, title, route, plan, produce or reuse artifacts, then
// deliver every part not yet delivered.
func (r *Runner) ProcessAsset(ctx context.Context, path string) AssetResult {
	// --- Validate ---
	fi, err := os.Stat(path)
	if err != nil {
		return r.fail(path, errors.Wrap(err, "source not found"))
	}
	if fi.Size() < r.cfg.MinOutputBytes {
		return r.fail(path, errors.Errorf("source is %d bytes (possibly corrupt)", fi.Size()))
	}

	status, err := r.store.Status(path)
	if err != nil {
		return r.fail(path, err)
	}
	if status == state.StatusUploaded {
		if !r.cfg.Force {
			r.log.Warn("Skip (already uploaded)")
			return AssetResult{Outcome: OutcomeSkipped}
		}
		if !r.cfg.DryRun {
			if err := r.store.ResetPending([]string{path}); err != nil {
				return r.fail(path, err)
			}
		}
	}

	// --- Probe and title ---
	md := r.prober.Inspect(ctx, path)
	if md == nil {
		r.log.Warn("  Metadata unavailable, using filename and channel defaults")
	}
	title := naming.ResolveTitle(md.Title(), filepath.Base(path))
	key := naming.Normalize(title)
	stem := r.resolver.Resolve(path, naming.SafeStem(title))
	r.log.Info("  Title: %s", title)
	r.log.Debug(r.cfg.Verbose, "  Key: %q, stem: %s, source: %s", key, stem, md.Resolution())
	if md.Title() == "" {
		r.log.Debug(r.cfg.Verbose, "  Title rule: %s", naming.MatchRule(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))))
	} else if md.BitRate > 0 {
		r.log.Debug(r.cfg.Verbose, "  Embedded title, %s", display.FormatBitrateLabel(md.BitRate/1000))
	}

	// --- Route and plan ---
	sizeMB := delivery.SizeMB(fi.Size())
	kind, err := r.route(sizeMB)
	if err != nil {
		return r.fail(path, err)
	}
	plan, err := planner.Build(sizeMB, md.DurationOrZero(), kind, r.cfg)
	if err != nil {
		return r.fail(path, errors.Wrap(err, "plan"))
	}
	r.log.Info("  Route: %s (%s), %s", kind, display.FormatMB(fi.Size()), plan.Note)

	if r.cfg.DryRun {
		for i, seg := range plan.Segments {
			r.log.Info("  [DRY] part %d/%d: %s-%s intro=%v", i+1, len(plan.Segments),
				display.FormatDuration(seg.Start), display.FormatDuration(seg.End()), seg.IncludeIntro)
		}
		if plan.Split() {
			r.log.Info("  [DRY] %d parts cover %s", len(plan.Segments), display.FormatDuration(plan.TotalDuration()))
		}
		r.log.Success("[DRY] Would transcode and upload via %s", kind)
		return AssetResult{Outcome: OutcomePlanned, Channel: kind, Parts: len(plan.Segments)}
	}

	// --- Produce ---
	if err := r.store.Begin(path, title, key, stem, r.runID); err != nil {
		return r.fail(path, err)
	}
	artifacts, err := r.engine.Ensure(ctx, transcode.Job{
		Source:   path,
		Title:    title,
		Stem:     stem,
		Plan:     plan,
		HasAudio: md.AudioPresent(),
	})
	if err != nil {
		var f *transcode.Failure
		if errors.As(err, &f) {
			logStderr(r.log, f.Stderr)
		}
		return r.fail(path, err)
	}
	if err := r.store.MarkProcessed(path, string(kind), len(artifacts)); err != nil {
		return r.fail(path, err)
	}
	for _, a := range artifacts {
		rec := &state.ArtifactRecord{
			SourcePath: path,
			PartIndex:  a.Index,
			Path:       a.Path,
			SizeBytes:  a.SizeBytes,
			Channel:    string(kind),
		}
		if err := r.store.SaveArtifact(rec); err != nil {
			return r.fail(path, err)
		}
	}

	// --- Deliver ---
	res := AssetResult{Outcome: OutcomeUploaded, Parts: len(artifacts)}
	for i, a := range artifacts {
		done, err := r.store.Delivered(path, a.Index, a.Path)
		if err != nil {
			return r.fail(path, err)
		}
		if done {
			r.log.Info("  Part %d/%d already delivered", a.Index+1, a.Count)
			continue
		}

		task, err := r.deliver(ctx, title, plan, a)
		if err != nil {
			return r.fail(path, err)
		}
		if err := r.store.MarkDelivered(path, a.Index, task.MessageID); err != nil {
			return r.fail(path, err)
		}
		res.Channel = task.Channel
		res.Bytes += task.SizeBytes

		if i < len(artifacts)-1 {
			if err := r.sleep(ctx, r.cfg.PartPause); err != nil {
				return r.fail(path, err)
			}
		}
	}

	if res.Channel != "" {
		r.pendingPause = r.assetPause(res.Channel)
	}
	if err := r.store.MarkUploaded(path); err != nil {
		return r.fail(path, err)
	}
	r.log.Success("Uploaded %s (%d part(s))", title, len(artifacts))
	return res
}

// route picks the channel for a source of sizeMB. When the user channel is
// needed but unavailable, the asset is split for the bot instead.
func (r *Runner) route(sizeMB float64) (delivery.Kind, error) {
	kind, err := r.router.Propose(sizeMB)
	if err == nil {
		return kind, nil
	}
	if kind == delivery.User && r.router.Available(delivery.Bot) {
		r.log.Warn("  User channel unavailable, splitting for the bot instead")
		return delivery.Bot, nil
	}
	if r.cfg.DryRun {
		r.log.Warn("  %v", err)
		return delivery.RouteWith(sizeMB, r.cfg.BotMaxMB), nil
	}
	return kind, err
}

// deliver uploads one artifact through the client its actual size selects.
func (r *Runner) deliver(ctx context.Context, title string, plan *planner.Plan, a transcode.Artifact) (*delivery.Task, error) {
	sizeMB := delivery.SizeMB(a.SizeBytes)
	if plan.Split() && sizeMB > r.cfg.BotMaxMB {
		return nil, errors.Wrapf(ErrPlanningViolation, "%s is %.2fMB", filepath.Base(a.Path), sizeMB)
	}
	client, err := r.router.Select(sizeMB)
	if err != nil {
		return nil, err
	}

	caption := title
	if a.Count > 1 {
		caption = naming.PartCaption(title, a.Index+1, a.Count)
	}

	if r.pendingPause > 0 {
		r.log.Info("  Waiting %s before the next upload", r.pendingPause)
		if err := r.sleep(ctx, r.pendingPause); err != nil {
			return nil, err
		}
		r.pendingPause = 0
	}

	task := delivery.NewTask(a.Path, caption, r.media(ctx, plan, a))
	r.log.Info("  Uploading %s via %s (%s)", filepath.Base(a.Path), client.Channel().Kind, display.FormatMB(a.SizeBytes))
	if err := client.Deliver(ctx, task); err != nil {
		return nil, err
	}
	r.log.Success("  Delivered %s (message %d, %d attempt(s))", filepath.Base(a.Path), task.MessageID, task.Attempts)
	return task, nil
}

// media describes an artifact for the upload, falling back to the plan when
// the artifact cannot be probed.
func (r *Runner) media(ctx context.Context, plan *planner.Plan, a transcode.Artifact) delivery.Media {
	m := delivery.Media{
		Duration: a.Segment.Duration,
		Width:    plan.Target.Width,
		Height:   plan.Target.Height,
	}
	md := r.prober.Inspect(ctx, a.Path)
	if md == nil {
		return m
	}
	if md.Duration > 0 {
		m.Duration = md.Duration
	}
	if md.Width > 0 && md.Height > 0 {
		m.Width, m.Height = md.Width, md.Height
	}
	return m
}

func (r *Runner) assetPause(kind delivery.Kind) time.Duration {
	if kind == delivery.User {
		return r.cfg.UserPause
	}
	return r.cfg.BotPause
}

func (r *Runner) fail(path string, err error) AssetResult {
	r.log.Error("Failed: %v", err)
	if !r.cfg.DryRun {
		if serr := r.store.MarkFailed(path, err); serr != nil {
			r.log.Error("Cannot record failure: %v", serr)
		}
	}
	return AssetResult{Outcome: OutcomeFailed, Err: err}
}

func logStderr(log *logging.Logger, stderr string) {
	lines := ffmpeg.StderrTail(stderr, 20)
	if len(lines) == 0 {
		return
	}
	log.Error("Last ffmpeg output:")
	for _, l := range lines {
		log.Error("  %s", l)
	}
}

// --- Logging helpers ---

func (r *Runner) logBatchHeader(stats *RunStats, prev *state.RunRecord) {
	cfg := r.cfg
	log := r.log
	log.Info("Found %d files", stats.Total)
	log.Info("Routing: <= %.0fMB via bot, larger via user (cap %.0fMB)", cfg.BotMaxMB, cfg.UserMaxMB)
	log.Info("Segments: %.0fMB target with %.0f%% margin", cfg.SegmentTargetMB, cfg.SegmentMargin*100)
	log.Info("Bot: %s", r.channelLabel(delivery.Bot))
	log.Info("User: %s", r.channelLabel(delivery.User))
	log.Info("Pauses: %s after bot, %s after user, %s between parts", cfg.BotPause, cfg.UserPause, cfg.PartPause)
	if prev != nil {
		log.Info("Previous run: %s on %s, %d uploaded, %d failed",
			prev.Command, prev.StartedAt.Format("2006-01-02 15:04"), prev.Succeeded, prev.Failed)
	}
	if cfg.RetryFailed {
		log.Info("Mode: retrying the previous run's failures")
	}
	if cfg.Force {
		log.Info("Mode: forcing re-upload of finished assets")
	}
	if cfg.DryRun {
		log.Info("Mode: dry run (no transcoding or uploads)")
	}
	fmt.Println()
}

func (r *Runner) channelLabel(kind delivery.Kind) string {
	c := r.router.Client(kind)
	if c == nil || !c.Available() {
		return "unavailable"
	}
	p := c.Channel().Retry
	if p.MaxAttempts > 1 {
		return fmt.Sprintf("ready (%d attempts, %s backoff step)", p.MaxAttempts, p.Step)
	}
	return "ready (single attempt)"
}

func (r *Runner) logSummary(stats *RunStats) {
	log := r.log
	log.Info("==============================")
	if r.cfg.DryRun {
		log.Info("Done: %d planned, %d failed", stats.Planned, stats.Failed)
		return
	}
	log.Info("Done: %d uploaded, %d skipped, %d failed", stats.Uploaded, stats.Skipped, stats.Failed)
	log.Info("Summary report:")
	log.Info("  Total files processed: %d/%d", stats.Current, stats.Total)
	log.Info("  Uploaded: %s", display.FormatBytes(stats.UploadedBytes))

	rate := stats.SuccessRate()
	if stats.Failed == 0 {
		log.Success("  Success rate: %.1f%%", rate)
	} else {
		log.Warn("  Success rate: %.1f%% (%d failed, see %s)", rate, stats.Failed, r.cfg.ResolvedFailedListPath())
	}
	if counts, err := r.store.CountByStatus(); err == nil {
		log.Info("  Store: %d uploaded, %d failed, %d in progress",
			counts[state.StatusUploaded], counts[state.StatusFailed],
			counts[state.StatusPending]+counts[state.StatusProcessed])
	}
}
