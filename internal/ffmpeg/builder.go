package ffmpeg

import (
	"fmt"
	"strconv"

	ffmpeggo "github.com/u2takey/ffmpeg-go"

	"github.com/backmassage/vidrelay/internal/planner"
)

// Fixed encoding parameters. Every artifact is produced with the same
// settings so re-runs are deterministic.
const (
	VideoCodec  = "libx264"
	Preset      = "medium"
	CRF         = 23
	AudioCodec  = "aac"
	PixelFormat = "yuv420p"
	MovFlags    = "+faststart"

	SampleRate    = 44100
	ChannelLayout = "stereo"
)

// Window limits the source to a time range. A zero Duration reads to the end.
type Window struct {
	Start    float64
	Duration float64
}

// WindowFor converts a planned segment into a Window.
func WindowFor(s planner.Segment) Window {
	return Window{Start: s.Start, Duration: s.Duration}
}

func (w Window) inputArgs() []string {
	var args []string
	if w.Start > 0 {
		args = append(args, "-ss", formatSeconds(w.Start))
	}
	if w.Duration > 0 {
		args = append(args, "-t", formatSeconds(w.Duration))
	}
	return args
}

// ConcatArgs builds the concat-with-intro command. Both inputs are scaled and
// letterboxed to res independently, then concatenated and re-encoded. When
// the source has no audio a silent track of the window's length stands in
// for it so the concat graph keeps one audio stream per segment.
func ConcatArgs(intro, src, out string, res planner.Resolution, w Window, srcHasAudio bool) []string {
	args := preamble()
	args = append(args, "-i", intro)
	args = append(args, w.inputArgs()...)
	args = append(args, "-i", src)

	silent := !srcHasAudio && w.Duration > 0
	if silent {
		args = append(args,
			"-f", "lavfi",
			"-t", formatSeconds(w.Duration),
			"-i", anullsrc(),
		)
	}

	withAudio := srcHasAudio || silent
	args = append(args, "-filter_complex", concatGraph(res, withAudio, silent))
	args = append(args, "-map", "[v]")
	if withAudio {
		args = append(args, "-map", "[a]")
	}
	args = append(args, encodeFlags(withAudio)...)
	return append(args, out)
}

// EncodeArgs builds the intro-less encode used when the intro could not be
// rendered. The source is scaled, letterboxed, and re-encoded with the same
// fixed parameters as ConcatArgs.
func EncodeArgs(src, out string, res planner.Resolution, w Window, srcHasAudio bool) []string {
	args := preamble()
	args = append(args, w.inputArgs()...)
	args = append(args, "-i", src)
	args = append(args, "-vf", scalePad(res))
	args = append(args, "-map", "0:v:0")
	if srcHasAudio {
		args = append(args, "-map", "0:a:0?")
	}
	args = append(args, encodeFlags(srcHasAudio)...)
	return append(args, out)
}

// IntroClipArgs builds the command that turns a rendered title card into a
// clip of the given length with a silent stereo track.
func IntroClipArgs(png, out string, res planner.Resolution, seconds float64) []string {
	d := formatSeconds(seconds)
	card := ffmpeggo.Input(png, ffmpeggo.KwArgs{"loop": 1, "t": d})
	silence := ffmpeggo.Input(anullsrc(), ffmpeggo.KwArgs{"f": "lavfi", "t": d})

	stream := ffmpeggo.Output([]*ffmpeggo.Stream{card, silence}, out, ffmpeggo.KwArgs{
		"vf":       scalePad(res),
		"c:v":      VideoCodec,
		"tune":     "stillimage",
		"pix_fmt":  PixelFormat,
		"r":        30,
		"c:a":      AudioCodec,
		"ar":       SampleRate,
		"ac":       2,
		"movflags": MovFlags,
	}).OverWriteOutput()

	return append([]string{"-hide_banner", "-nostdin", "-loglevel", "error"}, stream.GetArgs()...)
}

func preamble() []string {
	return []string{"-hide_banner", "-nostdin", "-y", "-loglevel", "error"}
}

func encodeFlags(withAudio bool) []string {
	args := []string{
		"-c:v", VideoCodec,
		"-preset", Preset,
		"-crf", strconv.Itoa(CRF),
		"-pix_fmt", PixelFormat,
	}
	if withAudio {
		args = append(args,
			"-c:a", AudioCodec,
			"-ar", strconv.Itoa(SampleRate),
			"-ac", "2",
		)
	} else {
		args = append(args, "-an")
	}
	return append(args, "-movflags", MovFlags)
}

// scalePad fits the input inside res and centers it on a black canvas.
func scalePad(res planner.Resolution) string {
	w, h := res.Width, res.Height
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1",
		w, h, w, h)
}

func audioNorm() string {
	return fmt.Sprintf("aformat=sample_rates=%d:channel_layouts=%s", SampleRate, ChannelLayout)
}

func concatGraph(res planner.Resolution, withAudio, silent bool) string {
	sp := scalePad(res)
	if !withAudio {
		return fmt.Sprintf("[0:v]%s[v0];[1:v]%s[v1];[v0][v1]concat=n=2:v=1:a=0[v]", sp, sp)
	}
	srcAudio := "1:a"
	if silent {
		srcAudio = "2:a"
	}
	an := audioNorm()
	return fmt.Sprintf(
		"[0:v]%s[v0];[1:v]%s[v1];[0:a]%s[a0];[%s]%s[a1];[v0][a0][v1][a1]concat=n=2:v=1:a=1[v][a]",
		sp, sp, an, srcAudio, an)
}

func anullsrc() string {
	return fmt.Sprintf("anullsrc=channel_layout=%s:sample_rate=%d", ChannelLayout, SampleRate)
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
