package observability

import (
	"errors"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"info":    LevelInfo,
		"warn":    LevelWarn,
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

func TestFieldConstructors(t *testing.T) {
	if f := String("page", "1"); f.Key != "page" || f.Value != "1" {
		t.Fatalf("unexpected field: %+v", f)
	}
	err := errors.New("boom")
	if f := Error(err); f.Key != "error" || f.Value != err {
		t.Fatalf("unexpected error field: %+v", f)
	}
}

func TestNopLoggerIsSafe(t *testing.T) {
	var l Logger = NopLogger{}
	l = l.With(Int("n", 1))
	l.Debug("a")
	l.Info("b", String("k", "v"))
	l.Warn("c")
	l.Error("d", Error(errors.New("x")))
}
