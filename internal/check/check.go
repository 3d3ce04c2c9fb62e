// Package check provides system diagnostics (check mode) and pre-pipeline
// dependency validation (CheckDeps) for ffmpeg, ffprobe, the H.264/AAC
// encoders, the intro font, free disk space, and channel credentials.
package check

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/backmassage/vidrelay/internal/config"
	"github.com/backmassage/vidrelay/internal/display"
)

// Sentinel errors returned by CheckDeps when a required tool, encoder, or
// resource is missing.
var (
	ErrFfmpegNotFound   = errors.New("ffmpeg not found on PATH")
	ErrFfprobeNotFound  = errors.New("ffprobe not found on PATH")
	ErrEncodeFailed     = errors.New("libx264/aac test encode failed")
	ErrLowDiskSpace     = errors.New("not enough free space in the output directory")
	ErrNoCredentials    = errors.New("no bot or user credentials configured")
	ErrFontUnreadable   = errors.New("intro font is not readable")
	ErrOutputUnwritable = errors.New("output directory is not writable")
)

// MinFreeBytes is the free space CheckDeps requires on the output volume.
const MinFreeBytes = 1 << 30

// diskUsage is swapped in tests.
var diskUsage = disk.Usage

// Logger is the minimal logging interface needed by RunCheck.
// Defined here (rather than importing the logging package) so that check
// remains dependency-light and testable with a mock logger.
type Logger interface {
	Info(string, ...interface{})
	Success(string, ...interface{})
	Warn(string, ...interface{})
	Error(string, ...interface{})
	Debug(bool, string, ...interface{})
}

// RunCheck runs the interactive check flow: prints availability of ffmpeg,
// ffprobe, the encoders, the intro font, free disk space, and credentials.
// This is informational only; it does not stop on failure.
func RunCheck(cfg *config.Config, log Logger) {
	log.Info("=== System Check ===")

	checkTool(log, "ffmpeg")
	checkTool(log, "ffprobe")
	checkEncode(log, "H.264 encoder (libx264)", x264TestArgs())
	checkEncode(log, "AAC encoder", aacTestArgs())
	checkEncode(log, "Silent track source (anullsrc)", anullsrcTestArgs())
	checkFont(cfg, log)
	checkDisk(cfg, log)
	checkCredentials(cfg, log)
}

// checkTool verifies name is on PATH and logs its version string.
func checkTool(log Logger, name string) {
	if _, err := exec.LookPath(name); err != nil {
		log.Error("%s not found", name)
		return
	}
	out, err := exec.Command(name, "-version").Output()
	if err != nil {
		log.Warn("%s found but -version failed: %v", name, err)
		return
	}
	firstLine := strings.TrimSpace(string(out))
	if idx := strings.Index(firstLine, "\n"); idx > 0 {
		firstLine = firstLine[:idx]
	}
	log.Success("%s: %s", name, firstLine)
}

// checkEncode runs a minimal ffmpeg job and reports whether it succeeded.
func checkEncode(log Logger, label string, args []string) {
	log.Info("Testing %s...", label)
	if runSilent("ffmpeg", args...) {
		log.Success("%s works", label)
	} else {
		log.Error("%s test failed", label)
	}
}

func checkFont(cfg *config.Config, log Logger) {
	if err := fontReadable(cfg.FontPath); err != nil {
		log.Warn("Intro font %s unreadable, cards will use the built-in face: %v", cfg.FontPath, err)
		return
	}
	log.Success("Intro font: %s", cfg.FontPath)
}

func checkDisk(cfg *config.Config, log Logger) {
	free, total, err := freeSpace(cfg.OutputDir)
	if err != nil {
		log.Warn("Could not read free space for %s: %v", cfg.OutputDir, err)
		return
	}
	msg := fmt.Sprintf("Free space in %s: %s of %s", cfg.OutputDir, display.FormatBytes(free), display.FormatBytes(total))
	if free < MinFreeBytes {
		log.Error("%s (need at least %s)", msg, display.FormatBytes(MinFreeBytes))
		return
	}
	log.Success("%s", msg)
}

func checkCredentials(cfg *config.Config, log Logger) {
	switch {
	case cfg.Bot.Disabled:
		log.Info("Bot channel: disabled")
	case cfg.BotEnabled():
		log.Success("Bot channel: token and chat configured (%s)", cfg.Bot.ChatID)
	default:
		log.Warn("Bot channel: TELEGRAM_TOKEN or CHANNEL_ID missing")
	}

	switch {
	case cfg.User.Disabled:
		log.Info("User channel: disabled")
	case cfg.UserEnabled():
		log.Success("User channel: app %d, channel %s, session %s", cfg.User.APIID, cfg.User.Channel, cfg.User.SessionFile)
	default:
		log.Warn("User channel: API_ID, API_HASH or CHANNEL_USERNAME missing")
	}
}

// CheckDeps is the pre-pipeline validation: it verifies that ffmpeg and
// ffprobe are on PATH, that a short libx264/aac encode works, that the output
// volume has room, and that at least one channel has credentials. Returns a
// sentinel error on failure. The font is not required: cards fall back to a
// built-in face.
func CheckDeps(cfg *config.Config) error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return ErrFfmpegNotFound
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return ErrFfprobeNotFound
	}
	if !runSilent("ffmpeg", x264TestArgs()...) || !runSilent("ffmpeg", aacTestArgs()...) {
		return ErrEncodeFailed
	}
	return checkResources(cfg)
}

// checkResources holds the CheckDeps steps that do not run external tools.
func checkResources(cfg *config.Config) error {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrOutputUnwritable, err)
	}
	free, _, err := freeSpace(cfg.OutputDir)
	if err == nil && free < MinFreeBytes {
		return fmt.Errorf("%w: %s free", ErrLowDiskSpace, display.FormatBytes(free))
	}
	if cfg.Command != config.CommandPlan && !cfg.DryRun && !cfg.BotEnabled() && !cfg.UserEnabled() {
		return ErrNoCredentials
	}
	return nil
}

// --- internal helpers ---

// freeSpace reports free and total bytes on the volume holding dir. A
// directory that does not exist yet is measured at its nearest existing
// parent.
func freeSpace(dir string) (free, total int64, err error) {
	u, err := diskUsage(existingParent(dir))
	if err != nil {
		return 0, 0, err
	}
	return int64(u.Free), int64(u.Total), nil
}

func existingParent(dir string) string {
	p, err := filepath.Abs(dir)
	if err != nil {
		return dir
	}
	for {
		if fi, err := os.Stat(p); err == nil && fi.IsDir() {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p
		}
		p = parent
	}
}

func fontReadable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFontUnreadable, err)
	}
	defer f.Close()
	head := make([]byte, 4)
	if _, err := f.Read(head); err != nil {
		return fmt.Errorf("%w: %v", ErrFontUnreadable, err)
	}
	return nil
}

// x264TestArgs returns the ffmpeg arguments for a minimal libx264 encode at
// the pipeline's pixel format.
func x264TestArgs() []string {
	return []string{
		"-hide_banner", "-nostdin", "-loglevel", "error",
		"-f", "lavfi", "-i", "color=black:s=256x256:d=0.1",
		"-c:v", "libx264", "-pix_fmt", "yuv420p",
		"-f", "null", "-",
	}
}

func aacTestArgs() []string {
	return []string{
		"-hide_banner", "-nostdin", "-loglevel", "error",
		"-f", "lavfi", "-i", "sine=frequency=1000:duration=0.1",
		"-c:a", "aac", "-f", "null", "-",
	}
}

func anullsrcTestArgs() []string {
	return []string{
		"-hide_banner", "-nostdin", "-loglevel", "error",
		"-f", "lavfi", "-t", "0.1", "-i", "anullsrc=r=44100:cl=stereo",
		"-c:a", "aac", "-f", "null", "-",
	}
}

// runSilent runs a command and returns true if it exits with status 0.
// Both stdout and stderr are discarded.
func runSilent(name string, args ...string) bool {
	cmd := exec.Command(name, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Run() == nil
}
