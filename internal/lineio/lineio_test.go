package lineio

import (
	"errors"
	"strings"
	"testing"
)

func collect(t *testing.T, input string, max int) ([]string, []int) {
	t.Helper()
	var lines []string
	var skipped []int
	err := Each(strings.NewReader(input), max, func(line string) bool {
		lines = append(lines, line)
		return true
	}, func(size int) {
		skipped = append(skipped, size)
	})
	if err != nil {
		t.Fatalf("each: %v", err)
	}
	return lines, skipped
}

func TestEachSplitsLines(t *testing.T) {
	lines, skipped := collect(t, "a:1\n\nb:2\r\nc:3", 16)
	want := []string{"a:1", "", "b:2\r", "c:3"}
	if len(lines) != len(want) || len(skipped) != 0 {
		t.Fatalf("unexpected lines %q skipped %v", lines, skipped)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestEachSkipsLongLineAndContinues(t *testing.T) {
	long := strings.Repeat("x", 3*readBufSize+7)
	lines, skipped := collect(t, "a:1\n"+long+"\nb:2\nc:3\n", readBufSize)
	if len(lines) != 3 || lines[0] != "a:1" || lines[1] != "b:2" || lines[2] != "c:3" {
		t.Fatalf("unexpected lines %q", lines)
	}
	if len(skipped) != 1 || skipped[0] != len(long) {
		t.Fatalf("expected one skipped line of %d bytes, got %v", len(long), skipped)
	}
}

func TestEachLongFinalLineWithoutNewline(t *testing.T) {
	lines, skipped := collect(t, "a:1\n"+strings.Repeat("y", 40), 32)
	if len(lines) != 1 || len(skipped) != 1 || skipped[0] != 40 {
		t.Fatalf("unexpected lines %q skipped %v", lines, skipped)
	}
}

func TestEachLineAtLimitIsKept(t *testing.T) {
	line := strings.Repeat("z", 32)
	lines, skipped := collect(t, line+"\n", 32)
	if len(lines) != 1 || lines[0] != line || len(skipped) != 0 {
		t.Fatalf("unexpected lines %q skipped %v", lines, skipped)
	}
}

func TestEachStopsEarly(t *testing.T) {
	n := 0
	err := Each(strings.NewReader("a\nb\nc\n"), 8, func(string) bool {
		n++
		return n < 2
	}, nil)
	if err != nil || n != 2 {
		t.Fatalf("expected stop after 2 lines, got %d %v", n, err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestEachReturnsReadError(t *testing.T) {
	err := Each(failingReader{}, 8, func(string) bool { return true }, nil)
	if err == nil || !strings.Contains(err.Error(), "disk gone") {
		t.Fatalf("expected read error, got %v", err)
	}
}
