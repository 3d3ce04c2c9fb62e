package ffmpeg

import "regexp"

// Pre-compiled regexes for classifying ffmpeg stderr output. Checked in
// order by [Diagnose]; the first match wins.
var (
	reMissingEncoder = regexp.MustCompile(
		`(?i)Unknown encoder|Encoder .* not found|` +
			`No such filter: 'anullsrc'|Unknown input format: 'lavfi'`)

	reNoSpace = regexp.MustCompile(
		`(?i)No space left on device`)

	reBadInput = regexp.MustCompile(
		`(?i)Invalid data found when processing input|` +
			`moov atom not found|` +
			`could not find codec parameters|` +
			`Error opening input`)

	reFilterGraph = regexp.MustCompile(
		`(?i)Error (initializing|configuring) (complex )?filters?|` +
			`Failed to configure output pad|` +
			`Stream specifier .* matches no streams`)
)

// Diagnosis is a short human-readable cause derived from stderr.
type Diagnosis string

const (
	DiagnosisUnknown        Diagnosis = ""
	DiagnosisMissingEncoder Diagnosis = "ffmpeg build lacks libx264, aac, or lavfi"
	DiagnosisNoSpace        Diagnosis = "output disk is full"
	DiagnosisBadInput       Diagnosis = "source is corrupt or truncated"
	DiagnosisFilterGraph    Diagnosis = "filter graph rejected the input streams"
)

// Diagnose classifies ffmpeg stderr.
func Diagnose(stderr string) Diagnosis {
	switch {
	case reMissingEncoder.MatchString(stderr):
		return DiagnosisMissingEncoder
	case reNoSpace.MatchString(stderr):
		return DiagnosisNoSpace
	case reBadInput.MatchString(stderr):
		return DiagnosisBadInput
	case reFilterGraph.MatchString(stderr):
		return DiagnosisFilterGraph
	}
	return DiagnosisUnknown
}
