// Package transcode turns a plan into artifact files on disk. Artifacts
// that already exist at a plausible size are reused; new ones are written
// under a .part.mp4 name and renamed into place only after ffmpeg exits
// cleanly, so a file under its final name is always complete.
package transcode
