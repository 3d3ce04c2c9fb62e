// Package planner decides how a source is cut for its delivery channel and
// at which resolution it is encoded. It produces a Plan that the transcode
// package consumes.
//
//   - Resolution, Segment, Plan (types.go)
//   - SegmentCount, Build, ResolutionFor (planner.go)
package planner
