package planner

import (
	"errors"
	"fmt"
	"math"

	"github.com/backmassage/vidrelay/internal/config"
	"github.com/backmassage/vidrelay/internal/delivery"
)

// ErrUnknownDuration is returned when a source must be split but its
// duration could not be probed.
var ErrUnknownDuration = errors.New("source must be split but its duration is unknown")

// Canvas sizes per channel.
var (
	BotResolution  = Resolution{Width: 1280, Height: 720}
	UserResolution = Resolution{Width: 1920, Height: 1080}
)

// SegmentMargin is the default headroom reserved for re-encode overhead.
const SegmentMargin = 0.9

// ResolutionFor returns the output canvas for a channel.
func ResolutionFor(kind delivery.Kind) Resolution {
	if kind == delivery.User {
		return UserResolution
	}
	return BotResolution
}

// SegmentCount returns how many slices a source of sizeMB needs so each fits
// under targetMB with the default margin.
func SegmentCount(sizeMB, targetMB float64) int {
	return segmentCount(sizeMB, targetMB, SegmentMargin)
}

func segmentCount(sizeMB, targetMB, margin float64) int {
	if sizeMB <= targetMB || targetMB <= 0 {
		return 1
	}
	if margin <= 0 || margin > 1 {
		margin = SegmentMargin
	}
	return int(math.Ceil(sizeMB / (targetMB * margin)))
}

// Build produces the plan for a source of sizeMB and duration seconds bound
// for kind. User plans are always a single segment. Bot plans are divided
// into equal time slices; the last slice absorbs rounding so the durations
// sum to the source duration. Only slice 0 carries the intro.
func Build(sizeMB, duration float64, kind delivery.Kind, cfg *config.Config) (*Plan, error) {
	plan := &Plan{Kind: kind, Target: ResolutionFor(kind)}

	count := 1
	if kind == delivery.Bot {
		count = segmentCount(sizeMB, cfg.SegmentTargetMB, cfg.SegmentMargin)
	}

	if count == 1 {
		plan.Segments = []Segment{{Start: 0, Duration: duration, IncludeIntro: true}}
		plan.Note = fmt.Sprintf("single %s artifact at %s", kind, plan.Target)
		return plan, nil
	}

	if duration <= 0 {
		return nil, ErrUnknownDuration
	}

	slice := math.Floor(duration/float64(count)*1000) / 1000
	plan.Segments = make([]Segment, count)
	for i := range plan.Segments {
		start := slice * float64(i)
		d := slice
		if i == count-1 {
			d = duration - start
		}
		plan.Segments[i] = Segment{Start: start, Duration: d, IncludeIntro: i == 0}
	}
	plan.Note = fmt.Sprintf("%.1fMB split into %d x %.1fs at %s", sizeMB, count, slice, plan.Target)
	return plan, nil
}
