package pipeline

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/vidrelay/internal/config"
	"github.com/backmassage/vidrelay/internal/delivery"
	"github.com/backmassage/vidrelay/internal/logging"
	"github.com/backmassage/vidrelay/internal/naming"
	"github.com/backmassage/vidrelay/internal/probe"
	"github.com/backmassage/vidrelay/internal/state"
	"github.com/backmassage/vidrelay/internal/transcode"
)

const mb = 1024 * 1024

// --- Fakes ---

type fakeProber struct {
	meta map[string]*probe.Metadata
}

func (f *fakeProber) Inspect(_ context.Context, path string) *probe.Metadata {
	return f.meta[path]
}

// fakeTranscoder writes sparse artifacts whose sizes come from size.
type fakeTranscoder struct {
	outDir string
	size   func(job transcode.Job, index int) int64
	err    error
	jobs   []transcode.Job
}

func (f *fakeTranscoder) Ensure(_ context.Context, job transcode.Job) ([]transcode.Artifact, error) {
	f.jobs = append(f.jobs, job)
	if f.err != nil {
		return nil, f.err
	}
	n := len(job.Plan.Segments)
	out := make([]transcode.Artifact, n)
	for i, seg := range job.Plan.Segments {
		path := naming.ArtifactPath(f.outDir, job.Stem, string(job.Plan.Kind), i, n)
		size := f.size(job, i)
		if fi, err := os.Stat(path); err == nil {
			out[i] = transcode.Artifact{Path: path, Index: i, Count: n, SizeBytes: fi.Size(), Segment: seg, Reused: true}
			continue
		}
		if err := sparse(path, size); err != nil {
			return nil, err
		}
		out[i] = transcode.Artifact{Path: path, Index: i, Count: n, SizeBytes: size, Segment: seg}
	}
	return out, nil
}

type fakeBot struct {
	fail     func(call int) error
	captions []string
	videos   []delivery.BotVideo
}

func (f *fakeBot) SendVideo(_ context.Context, v delivery.BotVideo) (int, error) {
	f.videos = append(f.videos, v)
	call := len(f.videos)
	if f.fail != nil {
		if err := f.fail(call); err != nil {
			return 0, err
		}
	}
	f.captions = append(f.captions, v.Caption)
	return 100 + call, nil
}

type fakeUser struct {
	videos []delivery.UserVideo
}

func (f *fakeUser) SendVideo(_ context.Context, v delivery.UserVideo, progress delivery.ProgressFunc) (int, error) {
	f.videos = append(f.videos, v)
	progress(100, 100)
	return 900 + len(f.videos), nil
}

type sleepRecorder struct {
	waits []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

// --- Harness ---

type harness struct {
	cfg    *config.Config
	prober *fakeProber
	engine *fakeTranscoder
	bot    *fakeBot
	user   *fakeUser
	sleeps *sleepRecorder
	store  *state.Store
	runner *Runner
}

type harnessOpts struct {
	noBot  bool
	noUser bool
}

func newHarness(t *testing.T, opts harnessOpts) *harness {
	t.Helper()
	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.InputDir = filepath.Join(root, "downloads")
	cfg.OutputDir = filepath.Join(root, "processed")
	require.NoError(t, os.MkdirAll(cfg.InputDir, 0o755))
	require.NoError(t, os.MkdirAll(cfg.OutputDir, 0o755))

	store, err := state.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := &harness{
		cfg:    &cfg,
		prober: &fakeProber{meta: map[string]*probe.Metadata{}},
		engine: &fakeTranscoder{outDir: cfg.OutputDir, size: func(transcode.Job, int) int64 { return 5 * mb }},
		bot:    &fakeBot{},
		user:   &fakeUser{},
		sleeps: &sleepRecorder{},
		store:  store,
	}
	h.build(t, opts)
	return h
}

// build (re)creates the runner and clients, as a new invocation would.
func (h *harness) build(t *testing.T, opts harnessOpts) {
	t.Helper()
	log := logging.NewWithWriter(io.Discard, false)

	var botSender delivery.BotSender
	if !opts.noBot {
		botSender = h.bot
	}
	var userSender delivery.UserSender
	if !opts.noUser {
		userSender = h.user
	}
	router := delivery.NewRouter(h.cfg.BotMaxMB,
		delivery.NewBotClient(botSender, h.cfg, log, h.sleeps.sleep),
		delivery.NewUserClient(userSender, h.cfg, log, h.sleeps.sleep),
	)

	r, err := NewRunner(h.cfg, log, Deps{
		Prober:     h.prober,
		Transcoder: h.engine,
		Router:     router,
		Store:      h.store,
		Sleep:      h.sleeps.sleep,
	})
	require.NoError(t, err)
	h.runner = r
}

// source creates a sparse input file with probe metadata.
func (h *harness) source(t *testing.T, name string, size int64, duration float64) string {
	t.Helper()
	path := filepath.Join(h.cfg.InputDir, name)
	require.NoError(t, sparse(path, size))
	h.prober.meta[path] = &probe.Metadata{Duration: duration, SizeBytes: size, Width: 1920, Height: 1080, HasVideo: true, HasAudio: true}
	return path
}

func (h *harness) status(t *testing.T, path string) state.Status {
	t.Helper()
	st, err := h.store.Status(path)
	require.NoError(t, err)
	return st
}

func sparse(path string, size int64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// --- ProcessAsset ---

func TestProcessAsset_SmallAssetViaBot(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	src := h.source(t, "004 - Intro to X.mp4", 10*mb, 100)

	res := h.runner.ProcessAsset(context.Background(), src)
	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeUploaded, res.Outcome)
	assert.Equal(t, delivery.Bot, res.Channel)

	require.Len(t, h.bot.videos, 1)
	v := h.bot.videos[0]
	assert.Equal(t, "Intro to X", v.Caption)
	assert.Equal(t, filepath.Join(h.cfg.OutputDir, "Intro to X_bot.mp4"), v.Path)
	assert.Equal(t, 100, v.Duration)
	assert.Equal(t, 1280, v.Width)
	assert.True(t, v.SupportsStreaming)

	assert.Equal(t, state.StatusUploaded, h.status(t, src))
	arts, err := h.store.Artifacts(src)
	require.NoError(t, err)
	require.Len(t, arts, 1)
	assert.True(t, arts[0].Delivered)
	assert.Equal(t, 101, arts[0].MessageID)
}

func TestProcessAsset_SkipsUploaded(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	src := h.source(t, "a.mp4", 10*mb, 100)

	require.Equal(t, OutcomeUploaded, h.runner.ProcessAsset(context.Background(), src).Outcome)
	res := h.runner.ProcessAsset(context.Background(), src)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Len(t, h.engine.jobs, 1)
	assert.Len(t, h.bot.videos, 1)
}

func TestProcessAsset_ForceReuploads(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	src := h.source(t, "a.mp4", 10*mb, 100)

	require.Equal(t, OutcomeUploaded, h.runner.ProcessAsset(context.Background(), src).Outcome)
	h.cfg.Force = true
	res := h.runner.ProcessAsset(context.Background(), src)
	assert.Equal(t, OutcomeUploaded, res.Outcome)
	assert.Len(t, h.bot.videos, 2)
}

func TestProcessAsset_SplitsSixtyMegabyteAsset(t *testing.T) {
	h := newHarness(t, harnessOpts{noUser: true})
	h.engine.size = func(transcode.Job, int) int64 { return 30 * mb }
	src := h.source(t, "001_Big_Lesson.mp4", 60*mb, 100)

	res := h.runner.ProcessAsset(context.Background(), src)
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Parts)

	require.Len(t, h.engine.jobs, 1)
	segs := h.engine.jobs[0].Plan.Segments
	require.Len(t, segs, 2)
	assert.InDelta(t, 50, segs[0].Duration, 0.001)
	assert.True(t, segs[0].IncludeIntro)
	assert.False(t, segs[1].IncludeIntro)

	assert.Equal(t, []string{"Big Lesson - Part 1/2", "Big Lesson - Part 2/2"}, h.bot.captions)
	assert.Equal(t, []time.Duration{h.cfg.PartPause}, h.sleeps.waits)
}

func TestProcessAsset_OversizedSegmentIsPlanningViolation(t *testing.T) {
	h := newHarness(t, harnessOpts{noUser: true})
	h.engine.size = func(transcode.Job, int) int64 { return 50 * mb }
	src := h.source(t, "a.mp4", 60*mb, 100)

	res := h.runner.ProcessAsset(context.Background(), src)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.True(t, errors.Is(res.Err, ErrPlanningViolation))
	assert.Empty(t, h.bot.videos)
	assert.Equal(t, state.StatusFailed, h.status(t, src))
}

func TestProcessAsset_LargeAssetViaUser(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.engine.size = func(transcode.Job, int) int64 { return 80 * mb }
	src := h.source(t, "a.mp4", 100*mb, 600)
	art := filepath.Join(h.cfg.OutputDir, "a_user.mp4")
	h.prober.meta[art] = &probe.Metadata{Duration: 602.5, Width: 1920, Height: 1080}

	res := h.runner.ProcessAsset(context.Background(), src)
	require.NoError(t, res.Err)
	assert.Equal(t, delivery.User, res.Channel)

	require.Len(t, h.user.videos, 1)
	v := h.user.videos[0]
	assert.Equal(t, art, v.Path)
	assert.Equal(t, 602.5, v.Duration)
	assert.Equal(t, 1920, v.Width)
	assert.Empty(t, h.bot.videos)
}

func TestProcessAsset_NoUserFallsBackToBotSplit(t *testing.T) {
	h := newHarness(t, harnessOpts{noUser: true})
	h.engine.size = func(transcode.Job, int) int64 { return 30 * mb }
	src := h.source(t, "a.mp4", 100*mb, 300)

	res := h.runner.ProcessAsset(context.Background(), src)
	require.NoError(t, res.Err)
	assert.Equal(t, delivery.Bot, h.engine.jobs[0].Plan.Kind)
	assert.Equal(t, 3, res.Parts)
	assert.Len(t, h.bot.videos, 3)
}

func TestProcessAsset_NoChannelFails(t *testing.T) {
	h := newHarness(t, harnessOpts{noBot: true, noUser: true})
	src := h.source(t, "a.mp4", 10*mb, 100)

	res := h.runner.ProcessAsset(context.Background(), src)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.True(t, errors.Is(res.Err, delivery.ErrNoChannel))
	assert.Empty(t, h.engine.jobs)
}

func TestProcessAsset_BotRetriesThenFails(t *testing.T) {
	h := newHarness(t, harnessOpts{noUser: true})
	h.bot.fail = func(int) error { return delivery.Transient(errors.New("connection reset")) }
	src := h.source(t, "a.mp4", 10*mb, 100)

	res := h.runner.ProcessAsset(context.Background(), src)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Len(t, h.bot.videos, 3)
	assert.Equal(t, []time.Duration{15 * time.Second, 30 * time.Second}, h.sleeps.waits)

	rec, err := h.store.Asset(src)
	require.NoError(t, err)
	assert.Equal(t, state.StatusFailed, rec.Status)
	assert.Contains(t, rec.LastError, "connection reset")
}

func TestProcessAsset_ResumesUndeliveredParts(t *testing.T) {
	h := newHarness(t, harnessOpts{noUser: true})
	h.cfg.BotAttempts = 1
	h.build(t, harnessOpts{noUser: true})
	h.engine.size = func(transcode.Job, int) int64 { return 30 * mb }
	h.bot.fail = func(call int) error {
		if call == 2 {
			return delivery.Transient(errors.New("timeout"))
		}
		return nil
	}
	src := h.source(t, "Lesson.mp4", 60*mb, 100)

	first := h.runner.ProcessAsset(context.Background(), src)
	require.Equal(t, OutcomeFailed, first.Outcome)
	assert.Equal(t, []string{"Lesson - Part 1/2"}, h.bot.captions)

	second := h.runner.ProcessAsset(context.Background(), src)
	require.NoError(t, second.Err)
	assert.Equal(t, []string{"Lesson - Part 1/2", "Lesson - Part 2/2"}, h.bot.captions)
	assert.Equal(t, state.StatusUploaded, h.status(t, src))
}

func TestProcessAsset_TooSmallSource(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	src := h.source(t, "tiny.mp4", 10, 1)

	res := h.runner.ProcessAsset(context.Background(), src)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Empty(t, h.engine.jobs)
	assert.Equal(t, state.StatusFailed, h.status(t, src))
}

func TestProcessAsset_TranscodeFailure(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.engine.err = &transcode.Failure{Path: "x_bot.mp4", Stderr: "Unknown encoder 'libx264'", Err: errors.New("exit status 1")}
	src := h.source(t, "a.mp4", 10*mb, 100)

	res := h.runner.ProcessAsset(context.Background(), src)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	var f *transcode.Failure
	assert.True(t, errors.As(res.Err, &f))
	assert.Empty(t, h.bot.videos)
}

func TestProcessAsset_MetadataUnavailable(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	src := h.source(t, "007 - Closing Words.mp4", 10*mb, 0)
	delete(h.prober.meta, src)

	res := h.runner.ProcessAsset(context.Background(), src)
	require.NoError(t, res.Err)
	require.Len(t, h.bot.videos, 1)
	assert.Equal(t, "Closing Words", h.bot.videos[0].Caption)
	assert.Equal(t, 1280, h.bot.videos[0].Width)
}

func TestProcessAsset_CollidingTitlesKeepSeparateStems(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	a := h.source(t, "001 - Intro.mp4", 10*mb, 100)
	b := h.source(t, "002 - Intro.mp4", 10*mb, 100)

	require.NoError(t, h.runner.ProcessAsset(context.Background(), a).Err)
	require.NoError(t, h.runner.ProcessAsset(context.Background(), b).Err)
	require.Len(t, h.engine.jobs, 2)
	assert.Equal(t, "Intro", h.engine.jobs[0].Stem)
	assert.Equal(t, "Intro_dup1", h.engine.jobs[1].Stem)

	// A later invocation replaying only b keeps its stem.
	require.NoError(t, h.store.ResetPending([]string{b}))
	h.build(t, harnessOpts{})
	require.NoError(t, h.runner.ProcessAsset(context.Background(), b).Err)
	assert.Equal(t, "Intro_dup1", h.engine.jobs[2].Stem)
}

// --- Run ---

func TestRun_PausesBetweenAssetsAndWritesFailedList(t *testing.T) {
	h := newHarness(t, harnessOpts{noUser: true})
	h.bot.fail = func(call int) error {
		if call == 2 {
			return delivery.Fatalf("chat not found")
		}
		return nil
	}
	a := h.source(t, "a.mp4", 10*mb, 100)
	b := h.source(t, "b.mp4", 10*mb, 100)
	c := h.source(t, "c.mp4", 10*mb, 100)

	stats := h.runner.Run(context.Background(), "upload", []string{a, b, c})
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Uploaded)
	assert.Equal(t, 2, stats.Failed) // The fatal error disables the bot for c too.
	assert.Equal(t, []string{b, c}, stats.FailedPaths)
	assert.InDelta(t, 33.3, stats.SuccessRate(), 0.1)
	assert.Equal(t, []time.Duration{h.cfg.BotPause}, h.sleeps.waits)

	list, err := state.ReadFailedList(h.cfg.ResolvedFailedListPath())
	require.NoError(t, err)
	assert.Equal(t, []string{b, c}, list.Paths)
	assert.NotEmpty(t, list.RunID)

	run, err := h.store.LastRun()
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "upload", run.Command)
	assert.Equal(t, 1, run.Succeeded)
	assert.Equal(t, 2, run.Failed)
	assert.NotNil(t, run.FinishedAt)
}

func TestRun_UserPauseAfterUserAsset(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.engine.size = func(job transcode.Job, _ int) int64 {
		if job.Plan.Kind == delivery.User {
			return 80 * mb
		}
		return 5 * mb
	}
	big := h.source(t, "a.mp4", 100*mb, 600)
	small := h.source(t, "b.mp4", 10*mb, 100)

	stats := h.runner.Run(context.Background(), "upload", []string{big, small})
	assert.Equal(t, 2, stats.Uploaded)
	assert.Equal(t, []time.Duration{h.cfg.UserPause}, h.sleeps.waits)
}

func TestRun_DryRunTouchesNothing(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.cfg.DryRun = true
	a := h.source(t, "a.mp4", 10*mb, 100)
	b := h.source(t, "b.mp4", 60*mb, 100)

	stats := h.runner.Run(context.Background(), "upload", []string{a, b})
	assert.Equal(t, 2, stats.Planned)
	assert.Empty(t, h.engine.jobs)
	assert.Empty(t, h.bot.videos)
	_, err := os.Stat(h.cfg.ResolvedFailedListPath())
	assert.True(t, os.IsNotExist(err))
}

func TestRun_InterruptedStopsBatch(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	a := h.source(t, "a.mp4", 10*mb, 100)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats := h.runner.Run(ctx, "upload", []string{a})
	assert.Equal(t, 0, stats.Uploaded+stats.Failed)
	assert.Empty(t, h.engine.jobs)
}

func TestTargets_RetryFailed(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.source(t, "a.mp4", 10*mb, 100)
	b := h.source(t, "b.mp4", 10*mb, 100)
	require.NoError(t, state.WriteFailedList(h.cfg.ResolvedFailedListPath(), state.FailedList{Paths: []string{b}}))

	all, err := h.runner.Targets()
	require.NoError(t, err)
	assert.Len(t, all, 2)

	h.cfg.RetryFailed = true
	retry, err := h.runner.Targets()
	require.NoError(t, err)
	assert.Equal(t, []string{b}, retry)
}

func TestRunStats_SuccessRate(t *testing.T) {
	var s RunStats
	s.Total = 4
	s.Record("a", AssetResult{Outcome: OutcomeUploaded, Bytes: 10})
	s.Record("b", AssetResult{Outcome: OutcomeSkipped})
	s.Record("c", AssetResult{Outcome: OutcomeFailed})
	s.Record("d", AssetResult{Outcome: OutcomeFailed})

	assert.Equal(t, 50.0, s.SuccessRate())
	assert.Equal(t, int64(10), s.UploadedBytes)
	assert.Equal(t, []string{"c", "d"}, s.FailedPaths)
	assert.Equal(t, 0.0, (&RunStats{}).SuccessRate())
}

// --- Discover ---

func TestDiscover_FiltersExtensions(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "lesson.mkv")
	touch(t, dir, "lesson2.mp4")
	touch(t, dir, "music.mp3")
	touch(t, dir, "readme.txt")
	touch(t, dir, "clip.MOV")
	touch(t, dir, "Intro_bot.part.mp4")
	touch(t, dir, ".hidden.mp4")

	files, err := Discover(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"clip.MOV", "lesson.mkv", "lesson2.mp4"}, basenames(files))
}

func TestDiscover_PrunesExtrasAndHiddenDirs(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "main.mp4")
	touch(t, filepath.Join(dir, "Extras"), "bonus.mp4")
	touch(t, filepath.Join(dir, ".cache"), "thumb.mp4")

	files, err := Discover(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"main.mp4"}, basenames(files))
}

func TestDiscover_RecursiveAndSorted(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "Course", "02"), "a.mp4")
	touch(t, filepath.Join(dir, "Course", "01"), "b.mp4")
	touch(t, filepath.Join(dir, "Course", "01"), "a.mp4")

	files, err := Discover(dir)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.True(t, sort.StringsAreSorted(files))
}

func TestDiscover_EmptyDir(t *testing.T) {
	files, err := Discover(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDiscover_MissingDir(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

// --- Helpers ---

func touch(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
}

func basenames(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	return out
}
