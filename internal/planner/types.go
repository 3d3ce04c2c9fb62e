package planner

import (
	"strconv"

	"github.com/backmassage/vidrelay/internal/delivery"
)

// Resolution is an output canvas size in pixels.
type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) String() string {
	return strconv.Itoa(r.Width) + "x" + strconv.Itoa(r.Height)
}

// Segment is one time slice of a source. Start and Duration are seconds.
// Duration 0 on a single-segment plan means "to the end of the source".
type Segment struct {
	Start        float64
	Duration     float64
	IncludeIntro bool
}

// End returns Start+Duration.
func (s Segment) End() float64 { return s.Start + s.Duration }

// Plan holds the decisions for producing one asset's artifacts. It is
// recomputed every run and never persisted; only the resulting files are.
type Plan struct {
	Kind     delivery.Kind
	Segments []Segment
	Target   Resolution

	// Note explains the decision for the plan preview and verbose logs.
	Note string
}

// Split reports whether the plan produces more than one artifact.
func (p *Plan) Split() bool { return len(p.Segments) > 1 }

// TotalDuration returns the sum of segment durations.
func (p *Plan) TotalDuration() float64 {
	var sum float64
	for _, s := range p.Segments {
		sum += s.Duration
	}
	return sum
}
