package main

import (
	"encoding/json"
	"testing"

	"avmerge/internal/api"
)

func TestMatchCommandTable(t *testing.T) {
	cfg, configPath := newCLIConfig(t)
	writePair(t, cfg, "intro.mp3", "intro.mkv")
	writePair(t, cfg, "outro.mp3", "outro.mkv")
	writePair(t, cfg, "extra.mp3", "unrelated.mkv")

	out, _, err := runCLI(t, []string{"match"}, "", configPath)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	requireContains(t, out, "intro.mkv")
	requireContains(t, out, "outro.mp3")
	requireContains(t, out, "2 pair(s) by name")
	requireContains(t, out, "Excess audio: extra.mp3")
	requireContains(t, out, "Excess video: unrelated.mkv")
}

func TestMatchCommandJSON(t *testing.T) {
	cfg, configPath := newCLIConfig(t)
	writePair(t, cfg, "clip.mp3", "clip.mkv")

	out, _, err := runCLI(t, []string{"match", "--json"}, "", configPath)
	if err != nil {
		t.Fatalf("match --json: %v", err)
	}
	var resp api.MatchResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(resp.Matches) != 1 || resp.Matches[0].Mp3 != "clip.mp3" || resp.Method != "name" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestMatchCommandEmpty(t *testing.T) {
	_, configPath := newCLIConfig(t)
	out, _, err := runCLI(t, []string{"match"}, "", configPath)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	requireContains(t, out, "No pairs matched")
}
