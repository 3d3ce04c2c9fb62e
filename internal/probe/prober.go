package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/backmassage/vidrelay/internal/ffmpeg"
	"github.com/backmassage/vidrelay/internal/logging"
)

// Prober inspects media files with ffprobe under a bounded wait.
type Prober struct {
	runner  ffmpeg.Runner
	timeout time.Duration
	log     *logging.Logger
	verbose bool
}

// NewProber returns a Prober using runner for the ffprobe process.
func NewProber(runner ffmpeg.Runner, timeout time.Duration, log *logging.Logger, verbose bool) *Prober {
	return &Prober{runner: runner, timeout: timeout, log: log, verbose: verbose}
}

// Inspect returns metadata for path, or nil when ffprobe fails, times out,
// or prints something unparseable. It never returns an error: missing
// metadata is an expected outcome.
func (p *Prober) Inspect(ctx context.Context, path string) *Metadata {
	md, err := Probe(ctx, p.runner, p.timeout, path)
	if err != nil {
		p.log.Debug(p.verbose, "Metadata unavailable for %s: %v", path, err)
		return nil
	}
	return md
}

// Probe runs a single ffprobe JSON call against path and returns the
// parsed result.
func Probe(ctx context.Context, r ffmpeg.Runner, timeout time.Duration, path string) (*Metadata, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res := r.Run(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	)
	if res.Err != nil {
		return nil, fmt.Errorf("ffprobe %q: %w", path, res.Err)
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("ffprobe %q: %w", path, ctx.Err())
	}

	return ParseJSON(res.Stdout)
}

// ParseJSON converts raw ffprobe JSON output into Metadata.
// Exported for testing without a real ffprobe binary.
func ParseJSON(data []byte) (*Metadata, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe JSON: %w", err)
	}
	return buildMetadata(&raw), nil
}

// --- ffprobe JSON wire types ---

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string            `json:"duration"`
	Size     string            `json:"size"`
	BitRate  string            `json:"bit_rate"`
	Tags     map[string]string `json:"tags"`
}

type ffprobeStream struct {
	CodecName   string `json:"codec_name"`
	CodecType   string `json:"codec_type"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	RFrameRate  string `json:"r_frame_rate"`
	Disposition struct {
		AttachedPic int `json:"attached_pic"`
	} `json:"disposition"`
}

// --- Conversion from wire types to domain types ---

func buildMetadata(raw *ffprobeOutput) *Metadata {
	md := &Metadata{
		Duration:      parseFloat(raw.Format.Duration),
		SizeBytes:     parseInt64(raw.Format.Size),
		BitRate:       parseInt64(raw.Format.BitRate),
		EmbeddedTitle: embeddedTitle(raw.Format.Tags),
	}

	for i := range raw.Streams {
		s := &raw.Streams[i]
		switch s.CodecType {
		case "video":
			if md.HasVideo || s.Disposition.AttachedPic == 1 {
				continue
			}
			md.HasVideo = true
			md.Width = s.Width
			md.Height = s.Height
			md.Codec = s.CodecName
			md.FrameRate = parseRate(s.RFrameRate)
		case "audio":
			md.HasAudio = true
		}
	}
	return md
}

// embeddedTitle reads the container title tag. Muxers disagree on case.
func embeddedTitle(tags map[string]string) string {
	for _, k := range []string{"title", "TITLE", "Title"} {
		if v := strings.TrimSpace(tags[k]); v != "" {
			return v
		}
	}
	return ""
}

// --- Numeric parsing helpers (ffprobe returns numbers as strings) ---

func parseInt64(s string) int64 {
	s = strings.TrimSpace(s)
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func parseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// parseRate evaluates an ffprobe rational such as "30000/1001".
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return parseFloat(num)
	}
	d := parseFloat(den)
	if d == 0 {
		return 0
	}
	return parseFloat(num) / d
}
