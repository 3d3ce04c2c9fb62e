// Package intro renders the title card prepended to the first artifact of
// every asset: a PNG drawn with gg, encoded into a short clip with a silent
// audio track so it concatenates cleanly with the source.
package intro
