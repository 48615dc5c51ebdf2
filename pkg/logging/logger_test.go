package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestComponentLoggerIncludesContextIDs(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LogConfig{Level: LevelDebug, Format: "json"})

	ctx := WithPOIID(WithRunID(context.Background(), 7), 42)
	l.WithComponent("classification").Error(ctx, "classify failed", errors.New("boom"), String("step", "lock"))

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v (%q)", err, buf.String())
	}
	if got["component"] != "classification" {
		t.Fatalf("component = %v", got["component"])
	}
	if got["poi_id"] != float64(42) || got["run_id"] != float64(7) {
		t.Fatalf("ids missing: %v", got)
	}
	if got["error"] != "boom" || got["step"] != "lock" {
		t.Fatalf("fields missing: %v", got)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LogConfig{Level: LevelWarn, Format: "text"})
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered, got %q", buf.String())
	}
	l.Warn("shown")
	if buf.Len() == 0 {
		t.Fatal("warn should be written")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   LevelDebug,
		"WARN":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"bogus":   LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestAsyncLoggerFlushesOnClose(t *testing.T) {
	l, err := NewLogger(LogConfig{Level: LevelInfo, Format: "json", Output: t.TempDir() + "/app.log", EnableAsync: true, BufferSize: 4})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for i := 0; i < 10; i++ {
		l.Info("line", Int("i", i))
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
