// Package ffmpeg builds and executes ffmpeg commands with fixed encoding
// parameters.
//
// Types:
//   - Runner / ExecRunner: process execution with stderr capture and tee.
//   - Window: input-side -ss/-t range for segment extraction.
//   - Diagnosis: stderr classification for failure logs.
//
// Functions:
//   - ConcatArgs: scale+letterbox both inputs, concat intro then source.
//   - EncodeArgs: scale+letterbox re-encode with no intro.
//   - IntroClipArgs: still image plus silent track, via ffmpeg-go.
//   - Execute: run ffmpeg under a wall-clock timeout.
package ffmpeg
