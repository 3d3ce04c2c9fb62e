// Package probe provides ffprobe-based media inspection. A single JSON call
// per file yields the duration, bitrate, first video stream geometry and
// codec, frame rate, embedded title, and audio presence.
//
// [Prober.Inspect] is the pipeline entry point and never fails: a nil
// result stands for "metadata unavailable". [Probe] and [ParseJSON] return
// errors for callers that need them (diagnostics, tests).
package probe
