package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"", LevelSilent, false},
		{"silent", LevelSilent, false},
		{"loud", LevelSilent, true},
	}
	for _, tc := range tests {
		got, err := ParseLevel(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseLevel(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNewFiltersByLevel(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	log := New(&buf, LevelInfo)
	log.Debug("hidden")
	log.Info("added project", "path", "src/A/A.csproj")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record leaked at info level: %s", out)
	}
	if !strings.Contains(out, "added project") || !strings.Contains(out, "src/A/A.csproj") {
		t.Errorf("info record missing: %s", out)
	}
	if !strings.Contains(out, "INF") {
		t.Errorf("level text not rewritten: %s", out)
	}
}

func TestSilentAndDiscard(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, LevelSilent).Error("nothing")
	NewJSON(&buf, LevelSilent).Error("nothing")
	OrDiscard(nil).Error("nothing")
	if buf.Len() != 0 {
		t.Errorf("silent logger wrote %q", buf.String())
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	NewJSON(&buf, LevelDebug).Debug("evaluated", "project", "A")
	if !strings.Contains(buf.String(), `"msg":"evaluated"`) {
		t.Errorf("unexpected json output: %s", buf.String())
	}
}
