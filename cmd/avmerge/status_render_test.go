package main

import (
	"fmt"
	"strings"
	"testing"

	"avmerge/internal/api"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Daemon:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestDependencyLines(t *testing.T) {
	deps := []api.DependencyStatus{
		{Name: "FFmpeg", Available: false},
		{Name: "FFprobe", Available: false, Optional: true, Detail: "not found in PATH"},
		{Name: "Other", Available: true, Version: "other 1.0"},
		{Name: "Bare", Available: true, Command: "bare"},
	}
	lines := dependencyLines(deps, false)
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "[ERROR] not available") {
		t.Fatalf("expected error detail, got %q", lines[0])
	}
	if !strings.Contains(lines[1], "[WARN] not found in PATH") {
		t.Fatalf("expected optional warning, got %q", lines[1])
	}
	if !strings.Contains(lines[2], "[OK] other 1.0") {
		t.Fatalf("expected version, got %q", lines[2])
	}
	if !strings.Contains(lines[3], "[OK] Ready (command: bare)") {
		t.Fatalf("expected command detail, got %q", lines[3])
	}
}

func TestStateKind(t *testing.T) {
	cases := map[string]statusKind{
		"completed": statusOK,
		"failed":    statusError,
		"stopped":   statusWarn,
		"running":   statusInfo,
		"idle":      statusInfo,
	}
	for state, want := range cases {
		if got := stateKind(state); got != want {
			t.Errorf("stateKind(%q) = %v, want %v", state, got, want)
		}
	}
}

func TestPrintMergeStatus(t *testing.T) {
	var b strings.Builder
	printMergeStatus(&b, api.MergeStatus{
		JobID:        "job-1",
		State:        "running",
		Running:      true,
		Percent:      50,
		CurrentIndex: 1,
		TotalPairs:   2,
		CurrentPair:  "b.mkv",
		PairPercent:  25,
		Failures:     []api.PairFailure{{Index: 0, Error: "boom"}},
	}, false)
	out := b.String()
	requireContains(t, out, "50% (pair 2 of 2)")
	requireContains(t, out, "b.mkv (25%)")
	requireContains(t, out, "Pair 1:")
	requireContains(t, out, "[ERROR] boom")
}

func TestRenderTableFooter(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"1"}}, []columnAlignment{alignLeft, alignRight}, []string{"total", "1"})
	requireContains(t, out, "│ A ")
	requireContains(t, out, "total")
}
