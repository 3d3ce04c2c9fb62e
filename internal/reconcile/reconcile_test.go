package reconcile

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/vidrelay/internal/config"
	"github.com/backmassage/vidrelay/internal/logging"
	"github.com/backmassage/vidrelay/internal/pipeline"
	"github.com/backmassage/vidrelay/internal/probe"
	"github.com/backmassage/vidrelay/internal/state"
)

type message struct {
	id      int
	caption string
}

type fakeHistory struct {
	messages []message // Newest first.
	err      error
	limits   []int
}

func (f *fakeHistory) ForEachVideo(ctx context.Context, limit int, fn func(int, string) error) error {
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return f.err
	}
	for _, m := range f.messages {
		if err := fn(m.id, m.caption); err != nil {
			return err
		}
	}
	return nil
}

type fakeProber struct {
	meta  map[string]*probe.Metadata
	calls int
}

func (f *fakeProber) Inspect(_ context.Context, path string) *probe.Metadata {
	f.calls++
	return f.meta[path]
}

type fakeReplayer struct {
	runs [][]string
}

func (f *fakeReplayer) Run(_ context.Context, command string, paths []string) pipeline.RunStats {
	f.runs = append(f.runs, paths)
	return pipeline.RunStats{Total: len(paths), Uploaded: len(paths)}
}

type harness struct {
	cfg     *config.Config
	history *fakeHistory
	prober  *fakeProber
	replay  *fakeReplayer
	store   *state.Store
	engine  *Engine
}

func newHarness(t *testing.T, files ...string) *harness {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.InputDir = t.TempDir()
	for _, f := range files {
		require.NoError(t, os.WriteFile(filepath.Join(cfg.InputDir, f), []byte("video"), 0o644))
	}

	store, err := state.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := &harness{
		cfg:     &cfg,
		history: &fakeHistory{},
		prober:  &fakeProber{meta: map[string]*probe.Metadata{}},
		replay:  &fakeReplayer{},
		store:   store,
	}
	h.engine = NewEngine(h.cfg, logging.NewWithWriter(io.Discard, false), Deps{
		History: h.history,
		Prober:  h.prober,
		Store:   store,
		Replay:  h.replay,
	})
	return h
}

func (h *harness) path(name string) string { return filepath.Join(h.cfg.InputDir, name) }

func keys(assets []Asset) []string {
	out := make([]string, len(assets))
	for i, a := range assets {
		out[i] = a.Key
	}
	return out
}

func TestMissing_SetDifference(t *testing.T) {
	local := []Asset{{Path: "/c", Key: "c"}, {Path: "/a", Key: "a"}, {Path: "/b", Key: "b"}}
	remote := []DeliveryRecord{{NormalizedTitle: "a"}, {NormalizedTitle: "c"}}

	assert.Equal(t, []string{"b"}, keys(Missing(local, remote)))

	remote = append(remote, DeliveryRecord{NormalizedTitle: "b"})
	assert.Empty(t, Missing(local, remote))
}

func TestMissing_SortedByPath(t *testing.T) {
	local := []Asset{{Path: "/z", Key: "z"}, {Path: "/m", Key: "m"}, {Path: "/a", Key: "a"}}
	got := Missing(local, nil)
	assert.Equal(t, []string{"a", "m", "z"}, keys(got))
}

func TestRemote_CollapsesPartsAndKeepsNewest(t *testing.T) {
	h := newHarness(t)
	h.history.messages = []message{
		{id: 30, caption: "Intro to X - Part 2/2"},
		{id: 29, caption: "Intro to X - Part 1/2"},
		{id: 12, caption: "\u200fTutorial Closing Words"},
		{id: 5, caption: "Old Lesson - قسمت 1/3"},
		{id: 4, caption: "   "},
	}

	got, err := h.engine.Remote(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []DeliveryRecord{
		{NormalizedTitle: "closing words", RemoteMessageID: 12, Caption: "\u200fTutorial Closing Words"},
		{NormalizedTitle: "intro to x", RemoteMessageID: 30, Caption: "Intro to X - Part 2/2"},
		{NormalizedTitle: "old lesson", RemoteMessageID: 5, Caption: "Old Lesson - قسمت 1/3"},
	}, got)
	assert.Equal(t, []int{1000}, h.history.limits)
}

func TestRun_ReplaysMissingThenConverges(t *testing.T) {
	h := newHarness(t, "001 - A.mp4", "002 - B.mp4", "003 - C.mp4")
	h.history.messages = []message{
		{id: 3, caption: "C - Part 1/2"},
		{id: 1, caption: "A"},
	}
	b := h.path("002 - B.mp4")

	// B was uploaded once but is gone from the channel.
	require.NoError(t, h.store.Begin(b, "B", "b", "B", "r0"))
	require.NoError(t, h.store.MarkProcessed(b, "bot", 1))
	require.NoError(t, h.store.MarkUploaded(b))

	rep, err := h.engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Remote)
	assert.Equal(t, 3, rep.Local)
	assert.Equal(t, []string{"b"}, keys(rep.Missing))
	require.Len(t, h.replay.runs, 1)
	assert.Equal(t, []string{b}, h.replay.runs[0])
	require.NotNil(t, rep.Replayed)
	assert.Equal(t, 1, rep.Replayed.Uploaded)

	st, err := h.store.Status(b)
	require.NoError(t, err)
	assert.Equal(t, state.StatusPending, st)

	caps, err := h.store.RemoteCaptions()
	require.NoError(t, err)
	require.Len(t, caps, 2)
	assert.Equal(t, "a", caps[0].Key)

	// B is delivered and the history re-listed.
	h.history.messages = append([]message{{id: 9, caption: "B"}}, h.history.messages...)
	rep, err = h.engine.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rep.Missing)
	assert.Nil(t, rep.Replayed)
	assert.Len(t, h.replay.runs, 1)
}

func TestRun_ListOnly(t *testing.T) {
	h := newHarness(t, "A.mp4", "B.mp4")
	h.cfg.ListOnly = true
	h.history.messages = []message{{id: 1, caption: "A"}}

	rep, err := h.engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, keys(rep.Missing))
	assert.Empty(t, h.replay.runs)
}

func TestLocal_UsesEmbeddedTitleAndStoredKeys(t *testing.T) {
	h := newHarness(t, "001 - a.mp4", "002 - b.mp4")
	a, b := h.path("001 - a.mp4"), h.path("002 - b.mp4")
	h.prober.meta[a] = &probe.Metadata{EmbeddedTitle: "Video Real Title"}
	require.NoError(t, h.store.Begin(b, "Stored", "stored", "Stored", "r0"))

	got, err := h.engine.Local(context.Background(), []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, []string{"real title", "stored"}, keys(got))
	assert.Equal(t, 1, h.prober.calls)
}

func TestRun_HistoryError(t *testing.T) {
	h := newHarness(t, "A.mp4")
	h.history.err = errors.New("FLOOD_WAIT")

	_, err := h.engine.Run(context.Background())
	assert.Error(t, err)
	assert.Empty(t, h.replay.runs)
}
