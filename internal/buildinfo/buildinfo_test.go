package buildinfo

import (
	"bytes"
	"testing"
)

func TestPrintBuildData(t *testing.T) {
	var buf bytes.Buffer
	PrintBuildData(&buf)

	want := "Build version: N/A\nBuild date: N/A\nBuild commit: N/A\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}
