package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/backmassage/vidrelay/internal/config"
)

func TestNewLogger_NoFile(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LogFile = ""
	cfg.ColorMode = config.ColorNever
	l, err := NewLogger(&cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	l.Info("test message")
}

func TestNewLogger_WithFile(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.ColorMode = config.ColorNever
	cfg.LogFile = filepath.Join(dir, "logs", "vidrelay.log")
	l, err := NewLogger(&cfg)
	if err != nil {
		t.Fatal(err)
	}
	l.Info("to file")
	l.Named("probe").Warn("child %d", 7)
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	b, _ := os.ReadFile(cfg.LogFile)
	if !bytes.Contains(b, []byte("INFO")) || !bytes.Contains(b, []byte("to file")) {
		t.Errorf("log file content: %s", string(b))
	}
	if !bytes.Contains(b, []byte("child 7")) {
		t.Errorf("named child did not reach file sink: %s", string(b))
	}
}

func TestDebug_GatedByVerbose(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, true)
	l.Debug(false, "hidden")
	l.Debug(true, "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Debug(false) wrote output: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("Debug(true) missing from output: %s", out)
	}
}

func TestSuccess_Marked(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, false)
	l.Success("uploaded %s", "a.mp4")
	if !strings.Contains(buf.String(), "uploaded a.mp4") || !strings.Contains(buf.String(), "result=ok") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}
