package main

import (
	"strings"
	"testing"
)

func TestReadLinesSkipsBlanks(t *testing.T) {
	got, err := readLines(strings.NewReader("a:1\n\n  b:2  \r\n\n"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 || got[0] != "a:1" || got[1] != "b:2" {
		t.Fatalf("unexpected lines %q", got)
	}
}
