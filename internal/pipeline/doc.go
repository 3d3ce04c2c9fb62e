// Package pipeline orchestrates asset discovery, per-asset processing
// (probe, title, route, plan, transcode, deliver), and batch reporting.
//
// [Runner.ProcessAsset] is the single path every asset takes, whether it is
// new, half-processed, or replayed by reconciliation: artifacts that already
// exist are reused and parts that were already delivered are skipped, so
// re-running an interrupted batch converges instead of repeating work.
package pipeline
