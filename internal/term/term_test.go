package term

import (
	"testing"

	"github.com/backmassage/vidrelay/internal/config"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestWantColor(t *testing.T) {
	cases := []struct {
		name string
		mode config.ColorMode
		vars map[string]string
		want bool
	}{
		{"always", config.ColorAlways, map[string]string{"NO_COLOR": "1"}, true},
		{"never", config.ColorNever, map[string]string{"FORCE_COLOR": "1"}, false},
		{"auto no_color", config.ColorAuto, map[string]string{"NO_COLOR": "1", "FORCE_COLOR": "1"}, false},
		{"auto force", config.ColorAuto, map[string]string{"FORCE_COLOR": "1", "TERM": "dumb"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := wantColor(tc.mode, env(tc.vars)); got != tc.want {
				t.Errorf("wantColor(%q) = %v, want %v", tc.mode, got, tc.want)
			}
		})
	}
}

func TestConfigureAndPaint(t *testing.T) {
	t.Cleanup(func() { Configure(config.ColorNever) })

	if !Configure(config.ColorAlways) || !Enabled() {
		t.Fatal("ColorAlways did not enable the palette")
	}
	if got, want := Paint(Red, "x"), ansiRed+"x"+ansiReset; got != want {
		t.Errorf("Paint(Red) = %q, want %q", got, want)
	}

	if Configure(config.ColorNever) || Enabled() {
		t.Fatal("ColorNever left the palette enabled")
	}
	if got := Paint(Red, "x"); got != "x" {
		t.Errorf("Paint with colors off = %q, want %q", got, "x")
	}
}

func TestIsTerminal_Nil(t *testing.T) {
	if IsTerminal(nil) {
		t.Error("IsTerminal(nil) = true")
	}
}
