// Command vidrelay is the CLI entrypoint for the vidrelay video relay.
//
// It loads configuration, validates paths, and runs one of the commands:
// upload (the default), reconcile, plan, or check.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/backmassage/vidrelay/internal/check"
	"github.com/backmassage/vidrelay/internal/config"
	"github.com/backmassage/vidrelay/internal/delivery"
	"github.com/backmassage/vidrelay/internal/display"
	"github.com/backmassage/vidrelay/internal/ffmpeg"
	"github.com/backmassage/vidrelay/internal/intro"
	"github.com/backmassage/vidrelay/internal/logging"
	"github.com/backmassage/vidrelay/internal/pipeline"
	"github.com/backmassage/vidrelay/internal/probe"
	"github.com/backmassage/vidrelay/internal/reconcile"
	"github.com/backmassage/vidrelay/internal/state"
	"github.com/backmassage/vidrelay/internal/telegram/botapi"
	"github.com/backmassage/vidrelay/internal/telegram/mtproto"
	"github.com/backmassage/vidrelay/internal/transcode"
)

// version and commit are injected at build time via -ldflags.
var (
	version = "1.0.0"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Phase 1: Bootstrap. The logger doesn't exist yet, so errors go
	// directly to stderr via fmt.
	cfg, err := config.Load(os.Args[1:], version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vidrelay: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "vidrelay: %v\n", err)
		return 1
	}

	log, err := logging.NewLogger(&cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vidrelay: %v\n", err)
		return 1
	}
	defer log.Close()

	// Phase 2: Logger available.
	display.PrintBanner()

	if cfg.Command == config.CommandCheck {
		check.RunCheck(&cfg, log)
		return 0
	}

	// Resolve and validate paths: input must exist, output is created if
	// needed, and output must not be inside input.
	inputAbs, err := absPath(cfg.InputDir)
	if err != nil {
		log.Error("Input not found: %s", cfg.InputDir)
		return 1
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		log.Error("Cannot create output directory: %s", cfg.OutputDir)
		return 1
	}
	outputAbs, err := absPath(cfg.OutputDir)
	if err != nil {
		log.Error("Cannot resolve output path: %s", cfg.OutputDir)
		return 1
	}
	if err := cfg.ValidatePaths(inputAbs, outputAbs); err != nil {
		log.Error("%v", err)
		log.Error("Choose an output path outside: %s", cfg.InputDir)
		return 1
	}

	log.Info("=== vidrelay v%s (%s): %s ===", version, commit, cfg.Command)
	log.Info("In:  %s", cfg.InputDir)
	log.Info("Out: %s", cfg.OutputDir)
	if cfg.DryRun {
		log.Warn("DRY RUN: nothing will be transcoded or uploaded")
	}
	log.Info("")

	// Fail fast if ffmpeg, the encoders, disk space, or credentials are missing.
	if cfg.Command != config.CommandPlan && !cfg.DryRun {
		if err := check.CheckDeps(&cfg); err != nil {
			log.Error("%v", err)
			return 1
		}
	}

	// Phase 3: Signal handling. Cancelling stops the batch between assets
	// and aborts in-flight encodes and uploads.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		log.Warn("Received interrupt, stopping after cleanup…")
	}()

	store, err := state.Open(cfg.ResolvedStatePath(), log.Named("state").HCLog())
	if err != nil {
		log.Error("%v", err)
		return 1
	}
	defer store.Close()

	workDir, err := os.MkdirTemp("", "vidrelay-")
	if err != nil {
		log.Error("Cannot create work directory: %v", err)
		return 1
	}
	defer os.RemoveAll(workDir)

	a := &app{cfg: &cfg, log: log, store: store, workDir: workDir}
	a.runner = ffmpeg.ExecRunner{}
	if cfg.Verbose {
		a.runner = ffmpeg.ExecRunner{Tee: os.Stderr}
	}
	a.prober = probe.NewProber(a.runner, cfg.ProbeTimeout, log.Named("probe"), cfg.Verbose)

	// Phase 4: Dispatch.
	if cfg.Command == config.CommandPlan {
		return a.plan(ctx)
	}

	a.connectBot()

	if !cfg.UserEnabled() {
		return a.execute(ctx, nil)
	}

	code := 1
	err = mtproto.Run(ctx, cfg.User, log.Named("mtproto"), func(ctx context.Context, s *mtproto.Session) error {
		code = a.execute(ctx, s)
		return nil
	})
	switch {
	case err == nil:
		return code
	case errors.Is(err, mtproto.ErrNotStarted) && cfg.Command == config.CommandUpload:
		log.Warn("User channel unavailable: %v", err)
		return a.execute(ctx, nil)
	default:
		log.Error("%v", err)
		return 1
	}
}

// app holds what every command shares.
type app struct {
	cfg     *config.Config
	log     *logging.Logger
	store   *state.Store
	workDir string
	runner  ffmpeg.Runner
	prober  *probe.Prober
	bot     delivery.BotSender
}

// connectBot probes the bot with getMe. A failure leaves the bot
// unavailable and the router downgrades to the user channel.
func (a *app) connectBot() {
	if !a.cfg.BotEnabled() {
		a.log.Info("Bot channel not configured")
		return
	}
	s, err := botapi.New(a.cfg.Bot)
	if err != nil {
		a.log.Warn("Bot channel unavailable: %v", err)
		return
	}
	a.log.Success("Bot channel ready (@%s)", s.Username())
	a.bot = s
}

// pipelineRunner wires the transcode engine and the delivery clients.
// session may be nil when the user channel is not available.
func (a *app) pipelineRunner(session *mtproto.Session) (*pipeline.Runner, error) {
	var user delivery.UserSender
	if session != nil {
		user = session
	}
	router := delivery.NewRouter(a.cfg.BotMaxMB,
		delivery.NewBotClient(a.bot, a.cfg, a.log.Named("bot"), delivery.Sleep),
		delivery.NewUserClient(user, a.cfg, a.log.Named("user"), delivery.Sleep),
	)
	renderer := intro.NewRenderer(a.cfg, a.runner, a.workDir, a.log.Named("intro"))
	engine := transcode.NewEngine(a.cfg, a.runner, renderer, a.log)

	return pipeline.NewRunner(a.cfg, a.log, pipeline.Deps{
		Prober:     a.prober,
		Transcoder: engine,
		Router:     router,
		Store:      a.store,
		Sleep:      delivery.Sleep,
	})
}

// execute runs upload or reconcile and returns the exit code.
func (a *app) execute(ctx context.Context, session *mtproto.Session) int {
	runner, err := a.pipelineRunner(session)
	if err != nil {
		a.log.Error("%v", err)
		return 1
	}

	if a.cfg.Command == config.CommandReconcile {
		if session == nil {
			a.log.Error("Reconcile needs the user channel to read history")
			return 1
		}
		eng := reconcile.NewEngine(a.cfg, a.log.Named("reconcile"), reconcile.Deps{
			History: session,
			Prober:  a.prober,
			Store:   a.store,
			Replay:  runner,
		})
		rep, err := eng.Run(ctx)
		if err != nil {
			a.log.Error("Reconcile failed: %v", err)
			return 1
		}
		if rep.Replayed != nil && rep.Replayed.Failed > 0 {
			return 1
		}
		return 0
	}

	targets, err := runner.Targets()
	if err != nil {
		a.log.Error("File discovery failed: %v", err)
		return 1
	}
	stats := runner.Run(ctx, string(a.cfg.Command), targets)
	if stats.Failed > 0 || ctx.Err() != nil {
		return 1
	}
	return 0
}

// plan prints the route and segment preview. No channel is contacted.
func (a *app) plan(ctx context.Context) int {
	runner, err := a.pipelineRunner(nil)
	if err != nil {
		a.log.Error("%v", err)
		return 1
	}
	targets, err := runner.Targets()
	if err != nil {
		a.log.Error("File discovery failed: %v", err)
		return 1
	}
	runner.Preview(ctx, targets)
	return 0
}

// absPath returns the absolute, symlink-resolved path for safe comparison
// of input vs output directory hierarchies.
func absPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
