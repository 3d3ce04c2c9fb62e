// Package reconcile compares the channel's delivered captions with the local
// corpus and replays the assets the channel is missing.
//
// The channel history is the source of truth for what was delivered; the
// local store is only used to avoid re-probing assets it already knows and
// to reset the missing ones before they are replayed through the pipeline.
package reconcile

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/backmassage/vidrelay/internal/config"
	"github.com/backmassage/vidrelay/internal/logging"
	"github.com/backmassage/vidrelay/internal/naming"
	"github.com/backmassage/vidrelay/internal/pipeline"
	"github.com/backmassage/vidrelay/internal/state"
)

// HistorySource pages through the channel's video messages, newest first.
type HistorySource interface {
	ForEachVideo(ctx context.Context, limit int, fn func(id int, caption string) error) error
}

// Replayer processes a list of assets. *pipeline.Runner implements it.
type Replayer interface {
	Run(ctx context.Context, command string, paths []string) pipeline.RunStats
}

// DeliveryRecord is one delivered title as seen in the channel.
type DeliveryRecord struct {
	NormalizedTitle string
	RemoteMessageID int
	Caption         string
}

// Asset is one local source and its reconciliation key.
type Asset struct {
	Path  string
	Title string
	Key   string
}

// Report summarizes a reconciliation.
type Report struct {
	Remote   int     // Distinct titles in the channel.
	Local    int     // Local assets considered.
	Missing  []Asset // Local assets with no delivered title, by path.
	Replayed *pipeline.RunStats
}

// Deps are the collaborators an Engine drives.
type Deps struct {
	History HistorySource
	Prober  pipeline.Prober
	Store   *state.Store
	Replay  Replayer
}

// Engine runs reconciliation.
type Engine struct {
	cfg     *config.Config
	log     *logging.Logger
	history HistorySource
	prober  pipeline.Prober
	store   *state.Store
	replay  Replayer
}

// NewEngine returns an Engine.
func NewEngine(cfg *config.Config, log *logging.Logger, deps Deps) *Engine {
	return &Engine{
		cfg:     cfg,
		log:     log,
		history: deps.History,
		prober:  deps.Prober,
		store:   deps.Store,
		replay:  deps.Replay,
	}
}

// Run lists the channel, refreshes the remote caption ledger, computes the
// missing assets, and unless ListOnly is set resets and replays them.
func (e *Engine) Run(ctx context.Context) (Report, error) {
	var rep Report

	e.log.Info("Reading channel history (up to %d messages)...", e.cfg.HistoryLimit)
	remote, err := e.Remote(ctx)
	if err != nil {
		return rep, err
	}
	rep.Remote = len(remote)
	if err := e.refreshLedger(remote); err != nil {
		return rep, err
	}

	files, err := pipeline.Discover(e.cfg.InputDir)
	if err != nil {
		return rep, errors.Wrap(err, "discover local assets")
	}
	local, err := e.Local(ctx, files)
	if err != nil {
		return rep, err
	}
	rep.Local = len(local)

	rep.Missing = Missing(local, remote)
	e.logMissing(rep)

	if e.cfg.ListOnly || len(rep.Missing) == 0 {
		return rep, nil
	}

	paths := make([]string, len(rep.Missing))
	for i, a := range rep.Missing {
		paths[i] = a.Path
	}
	if err := e.store.ResetPending(paths); err != nil {
		return rep, err
	}
	stats := e.replay.Run(ctx, string(config.CommandReconcile), paths)
	rep.Replayed = &stats
	return rep, ctx.Err()
}

// Remote pages the channel history into one record per distinct key. Part
// captions collapse onto their base title; the newest message wins.
func (e *Engine) Remote(ctx context.Context) ([]DeliveryRecord, error) {
	seen := make(map[string]bool)
	var out []DeliveryRecord
	err := e.history.ForEachVideo(ctx, e.cfg.HistoryLimit, func(id int, caption string) error {
		key := naming.CaptionKey(caption)
		if key == "" || seen[key] {
			return nil
		}
		seen[key] = true
		out = append(out, DeliveryRecord{NormalizedTitle: key, RemoteMessageID: id, Caption: caption})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NormalizedTitle < out[j].NormalizedTitle })
	return out, nil
}

// Local resolves the key of each path the same way the pipeline does. Keys
// recorded by an earlier run are reused instead of probing again.
func (e *Engine) Local(ctx context.Context, paths []string) ([]Asset, error) {
	out := make([]Asset, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := e.store.Asset(p)
		if err != nil {
			return nil, err
		}
		if rec != nil && rec.Key != "" {
			out = append(out, Asset{Path: p, Title: rec.Title, Key: rec.Key})
			continue
		}
		md := e.prober.Inspect(ctx, p)
		title := naming.ResolveTitle(md.Title(), filepath.Base(p))
		out = append(out, Asset{Path: p, Title: title, Key: naming.Normalize(title)})
	}
	return out, nil
}

// Missing returns the local assets whose key is not among the remote
// records, sorted by path.
func Missing(local []Asset, remote []DeliveryRecord) []Asset {
	have := make(map[string]bool, len(remote))
	for _, r := range remote {
		have[r.NormalizedTitle] = true
	}
	out := []Asset{}
	for _, a := range local {
		if !have[a.Key] {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (e *Engine) refreshLedger(remote []DeliveryRecord) error {
	now := time.Now()
	caps := make([]state.RemoteCaption, len(remote))
	for i, r := range remote {
		caps[i] = state.RemoteCaption{Key: r.NormalizedTitle, Caption: r.Caption, MessageID: r.RemoteMessageID, SeenAt: now}
	}
	return e.store.ReplaceRemoteCaptions(caps)
}

func (e *Engine) logMissing(rep Report) {
	e.log.Info("Channel has %d titles, %d local assets", rep.Remote, rep.Local)
	if len(rep.Missing) == 0 {
		e.log.Success("Nothing missing")
		return
	}
	e.log.Warn("%d asset(s) missing from the channel:", len(rep.Missing))
	for i, a := range rep.Missing {
		e.log.Info("  [%d/%d] %s (%s)", i+1, len(rep.Missing), a.Title, filepath.Base(a.Path))
	}
}
