package pipeline

import "github.com/backmassage/vidrelay/internal/display"

// RunStats tracks aggregate counters across a batch run.
type RunStats struct {
	Total         int
	Current       int
	Uploaded      int
	Skipped       int // Already uploaded in an earlier run.
	Failed        int
	Planned       int // Dry run only.
	UploadedBytes int64
	FailedPaths   []string
}

// Record folds one asset result into the counters.
func (s *RunStats) Record(path string, res AssetResult) {
	switch res.Outcome {
	case OutcomeUploaded:
		s.Uploaded++
		s.UploadedBytes += res.Bytes
	case OutcomeSkipped:
		s.Skipped++
	case OutcomePlanned:
		s.Planned++
	default:
		s.Failed++
		s.FailedPaths = append(s.FailedPaths, path)
	}
}

// SuccessRate is the share of assets that are on the channel after the run,
// counting ones skipped as already uploaded.
func (s *RunStats) SuccessRate() float64 {
	return display.Percent(s.Uploaded+s.Skipped, s.Total)
}
