package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Engine.ConsensusThreshold != 75 {
		t.Fatalf("consensus threshold = %v, want 75", cfg.Engine.ConsensusThreshold)
	}
	if got := cfg.CategoryWeight("pandemic"); got != 1.3 {
		t.Fatalf("pandemic weight = %v, want 1.3", got)
	}
	if got := cfg.CategoryWeight("unknown_type"); got != 1.0 {
		t.Fatalf("fallback weight = %v, want 1.0", got)
	}
	iw := cfg.Engine.ImpactWeights
	if iw.Economic != 0.4 || iw.Social != 0.3 || iw.Environmental != 0.3 {
		t.Fatalf("impact weights = %+v", iw)
	}
}

func TestFromYAMLOverridesDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("engine:\n  consensus_threshold: 60\n"))
	if err != nil {
		t.Fatalf("FromYAML: %v", err)
	}
	if cfg.Engine.ConsensusThreshold != 60 {
		t.Fatalf("threshold = %v, want 60", cfg.Engine.ConsensusThreshold)
	}
	// untouched sections keep defaults
	if got := cfg.CategoryWeight("natural_disaster"); got != 1.2 {
		t.Fatalf("natural_disaster weight = %v, want 1.2", got)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		yaml    string
		wantErr string
	}{
		{"engine:\n  consensus_threshold: 0\n", "consensus_threshold"},
		{"engine:\n  consensus_threshold: 101\n", "consensus_threshold"},
		{"engine:\n  category_weights:\n    pandemic: -1\n", "category_weights"},
		{"engine:\n  impact_weights:\n    economic: 0\n", "impact_weights"},
		{"webhooks:\n  - events: [\"*\"]\n", "url"},
	}
	for _, tc := range cases {
		if _, err := FromYAML([]byte(tc.yaml)); err == nil {
			t.Fatalf("FromYAML(%q): expected error", tc.yaml)
		} else if !strings.Contains(err.Error(), tc.wantErr) {
			t.Fatalf("FromYAML(%q): error %q does not mention %q", tc.yaml, err, tc.wantErr)
		}
	}
}

func TestLoadMissingFileFallsBackToDefault(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.ConsensusThreshold != 75 {
		t.Fatalf("threshold = %v, want default 75", cfg.Engine.ConsensusThreshold)
	}
}

func TestLoadReadsWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	data := "engine:\n  consensus_threshold: 80\nwebhooks:\n  - url: http://127.0.0.1:9/hook\n    events: [\"scenario.created\"]\n"
	if err := os.WriteFile(filepath.Join(dir, "crisisline.yml"), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.ConsensusThreshold != 80 {
		t.Fatalf("threshold = %v, want 80", cfg.Engine.ConsensusThreshold)
	}
	if len(cfg.Webhooks) != 1 || cfg.Webhooks[0].URL != "http://127.0.0.1:9/hook" {
		t.Fatalf("webhooks = %+v", cfg.Webhooks)
	}
}
