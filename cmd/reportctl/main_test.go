package main

import (
	"bytes"
	"strings"
	"testing"

	apiclient "github.com/alanta/DevOpsReleaseReport/pkg/api/client"
)

func TestPrintReleaseNestsTasks(t *testing.T) {
	parent := 201
	release := apiclient.Release{
		Name:    "api",
		Version: "20240105.2",
		URL:     "https://dev.azure.com/org/proj/_build/results?buildId=2",
		WorkItems: []apiclient.WorkItem{{
			ID: 201, Type: "PBI", Description: "Checkout", Status: "Done",
			Tasks: []apiclient.WorkItem{{ID: 101, ParentID: &parent, Type: "Task", Description: "Wire payment", Status: "Closed"}},
		}},
	}
	var buf bytes.Buffer
	printRelease(&buf, release)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "api\t20240105.2\t") {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "  PBI   201\t") {
		t.Fatalf("unexpected parent line %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "    Task  101\t") {
		t.Fatalf("unexpected task line %q", lines[2])
	}
}

func TestPrintReleaseWithoutWorkItems(t *testing.T) {
	var buf bytes.Buffer
	printRelease(&buf, apiclient.Release{Name: "web", Version: "7"})
	if !strings.Contains(buf.String(), "(no work items)") {
		t.Fatalf("expected empty marker, got %q", buf.String())
	}
}

func TestConfigRoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("load default config: %v", err)
	}
	if cfg.APIBaseURL != defaultAPIBaseURL {
		t.Fatalf("expected default base url, got %q", cfg.APIBaseURL)
	}

	cfg.FunctionKey = "key-1"
	if err := saveConfig(cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
	loaded, err := loadConfig()
	if err != nil {
		t.Fatalf("reload config: %v", err)
	}
	if loaded.FunctionKey != "key-1" || loaded.APIBaseURL != defaultAPIBaseURL {
		t.Fatalf("unexpected config %+v", loaded)
	}
}
