package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSetsListsBuiltinPacks(t *testing.T) {
	out, err := runCLI(t, "sets", "--packs", "../../packs", "--data-dir", t.TempDir(), "--format", "json")
	if err != nil {
		t.Fatalf("sets: %v\n%s", err, out)
	}
	var rows []struct {
		SetID      string `json:"set_id"`
		Challenges int    `json:"challenges"`
	}
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode sets output: %v\n%s", err, out)
	}
	found := map[string]int{}
	for _, r := range rows {
		found[r.SetID] = r.Challenges
	}
	if found["builtin-core"] != 8 || found["endless-arcade"] < 30 {
		t.Fatalf("unexpected sets: %+v", rows)
	}
}

func TestStatsOnEmptyStore(t *testing.T) {
	out, err := runCLI(t, "stats", "--packs", "../../packs", "--data-dir", t.TempDir())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !strings.Contains(out, "runs 0") {
		t.Fatalf("unexpected stats output: %q", out)
	}
}

func TestWarmReportsProgress(t *testing.T) {
	out, err := runCLI(t, "warm", "--packs", "../../packs", "--data-dir", t.TempDir(), "--set", "builtin-core", "--wave-delay-ms", "0")
	if err != nil {
		t.Fatalf("warm: %v\n%s", err, out)
	}
	if !strings.Contains(out, "warmed builtin-core") {
		t.Fatalf("expected warm summary, got %q", out)
	}
}

func TestInvalidFormatRejected(t *testing.T) {
	if _, err := runCLI(t, "sets", "--format", "yaml", "--packs", "../../packs", "--data-dir", t.TempDir()); err == nil {
		t.Fatalf("expected invalid format error")
	}
}

func TestInvalidNetworkRejected(t *testing.T) {
	if _, err := runCLI(t, "sets", "--network", "dialup-ish", "--packs", "../../packs", "--data-dir", t.TempDir()); err == nil {
		t.Fatalf("expected invalid network error")
	}
}
