package execx

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestParseLines(t *testing.T) {
	output := []byte("first\n\n  second  \nthird\n")
	lines := ParseLines(output)

	if len(lines) != 3 {
		t.Fatalf("ParseLines() returned %d lines, want 3", len(lines))
	}
	if lines[1] != "second" {
		t.Errorf("lines[1] = %q, want %q", lines[1], "second")
	}
}

func TestParseLinesEmpty(t *testing.T) {
	if got := ParseLines(nil); got != nil {
		t.Errorf("ParseLines(nil) = %v, want nil", got)
	}
}

func TestFirstWord(t *testing.T) {
	if got := FirstWord([]byte("  abc123 def\n")); got != "abc123" {
		t.Errorf("FirstWord() = %q, want abc123", got)
	}
	if got := FirstWord([]byte("  \n")); got != "" {
		t.Errorf("FirstWord() on blank = %q, want empty", got)
	}
}

func TestRunContextCapturesStderr(t *testing.T) {
	_, err := RunContext(context.Background(), 5*time.Second, "", "sh", "-c", "echo oops >&2; exit 3")
	if err == nil {
		t.Fatal("RunContext() succeeded, want failure")
	}
	if got := ExitCode(err); got != 3 {
		t.Errorf("ExitCode() = %d, want 3", got)
	}
	if !IsExitError(err) {
		t.Error("IsExitError() = false, want true")
	}
}

func TestRunContextTimeout(t *testing.T) {
	start := time.Now()
	_, err := RunContext(context.Background(), 100*time.Millisecond, "", "sleep", "5")
	if err == nil {
		t.Fatal("RunContext() succeeded, want timeout")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took %v, want ~100ms", elapsed)
	}
}

func TestLookPathMissing(t *testing.T) {
	_, err := LookPath("definitely-not-a-real-binary-xyz")
	if !errors.Is(err, ErrToolNotFound) {
		t.Errorf("LookPath() error = %v, want ErrToolNotFound", err)
	}
}

func TestRunLines(t *testing.T) {
	lines, err := RunLines(context.Background(), 5*time.Second, "", "sh", "-c", "printf 'a\\nb\\n\\n'")
	if err != nil {
		t.Fatalf("RunLines() failed: %v", err)
	}
	if len(lines) != 2 || lines[0] != "a" || lines[1] != "b" {
		t.Errorf("RunLines() = %v, want [a b]", lines)
	}
}
