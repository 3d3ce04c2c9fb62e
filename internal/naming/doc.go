// Package naming derives human-readable titles for assets, normalizes titles
// and captions into deduplication keys, formats part captions, and builds
// artifact paths.
//
// Title resolution is an ordered regex table ([Rules]); first match wins
// and the cleaned filename stem is the fallback, so a title is never empty.
// [Normalize] is pure and idempotent: it is the set key shared by the
// upload pipeline and reconciliation.
package naming
