package probe

import "strconv"

// Metadata is the subset of ffprobe output the pipeline consumes. A nil
// *Metadata means the file could not be inspected; every consumer must
// tolerate that.
type Metadata struct {
	Duration      float64 // Seconds; 0 when unknown.
	BitRate       int64   // Container bitrate in bits/sec.
	SizeBytes     int64
	Width         int
	Height        int
	Codec         string
	FrameRate     float64 // Evaluated r_frame_rate; 0 when unknown.
	EmbeddedTitle string
	HasVideo      bool
	HasAudio      bool
}

// Resolution returns "WxH" for the video stream, or "unknown".
func (m *Metadata) Resolution() string {
	if m == nil || m.Width <= 0 || m.Height <= 0 {
		return "unknown"
	}
	return strconv.Itoa(m.Width) + "x" + strconv.Itoa(m.Height)
}

// DurationOrZero returns the duration, or 0 for nil metadata.
func (m *Metadata) DurationOrZero() float64 {
	if m == nil {
		return 0
	}
	return m.Duration
}

// Title returns the embedded title, or "" for nil metadata.
func (m *Metadata) Title() string {
	if m == nil {
		return ""
	}
	return m.EmbeddedTitle
}

// AudioPresent reports whether the source has audio. Unknown (nil) is
// assumed to have audio, matching what most downloaded sources carry.
func (m *Metadata) AudioPresent() bool {
	if m == nil {
		return true
	}
	return m.HasAudio
}
