package config

import (
	"testing"
	"time"
)

func TestLoadReportConfigDefaults(t *testing.T) {
	t.Setenv("AZDO_ORGANIZATION_URL", "https://dev.azure.com/contoso/")
	t.Setenv("REPORT_SOURCE", "")

	cfg := LoadReportConfig()
	if cfg.OrganizationURL != "https://dev.azure.com/contoso" {
		t.Fatalf("unexpected organisation url %q", cfg.OrganizationURL)
	}
	if cfg.ReleaseURL != "https://vsrm.dev.azure.com/contoso" {
		t.Fatalf("unexpected release url %q", cfg.ReleaseURL)
	}
	if cfg.Source != SourcePipeline {
		t.Fatalf("expected pipeline source, got %q", cfg.Source)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Fatalf("expected 5 minute cache ttl, got %s", cfg.CacheTTL)
	}
	if cfg.BuildsPerQuery != 10 {
		t.Fatalf("expected 10 builds per query, got %d", cfg.BuildsPerQuery)
	}
}

func TestLoadReportConfigOverrides(t *testing.T) {
	t.Setenv("REPORT_SOURCE", " Classic ")
	t.Setenv("CACHE_TTL_SECONDS", "60")
	t.Setenv("FUNCTION_KEY_HASHES", "hash-a, ,hash-b")
	t.Setenv("REPORT_CONCURRENCY", "not-a-number")

	cfg := LoadReportConfig()
	if cfg.Source != SourceClassic {
		t.Fatalf("expected classic source, got %q", cfg.Source)
	}
	if cfg.CacheTTL != time.Minute {
		t.Fatalf("expected 1 minute ttl, got %s", cfg.CacheTTL)
	}
	if len(cfg.FunctionKeyHashes) != 2 || cfg.FunctionKeyHashes[1] != "hash-b" {
		t.Fatalf("unexpected function key hashes %v", cfg.FunctionKeyHashes)
	}
	if cfg.Concurrency != 4 {
		t.Fatalf("expected fallback concurrency 4, got %d", cfg.Concurrency)
	}
}

func TestReleaseURLFor(t *testing.T) {
	cases := map[string]string{
		"https://dev.azure.com/org":        "https://vsrm.dev.azure.com/org",
		"https://org.visualstudio.com":     "https://org.vsrm.visualstudio.com",
		"https://tfs.example.test/tfs/dc1": "https://tfs.example.test/tfs/dc1",
	}
	for in, want := range cases {
		if got := ReleaseURLFor(in); got != want {
			t.Fatalf("ReleaseURLFor(%q) = %q, want %q", in, got, want)
		}
	}
}
