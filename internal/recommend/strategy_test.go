// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package recommend

import (
	"testing"
	"time"

	"github.com/tomtom215/recoplane/internal/config"
)

func TestResolveStrategy(t *testing.T) {
	cfg := config.Default().Strategy

	tests := []struct {
		name      string
		requested RecommendationType
		objective Objective
		llm       bool
		want      RecommendationType
	}{
		{"empty uses default", "", "", true, TypeHybrid},
		{"explicit ai", TypeAI, "", true, TypeAI},
		{"explicit fsrs", TypeFSRS, "", true, TypeFSRS},
		{"ai degrades to fsrs without llm", TypeAI, "", false, TypeFSRS},
		{"hybrid degrades to fsrs without llm", TypeHybrid, "", false, TypeFSRS},
		{"auto prefers ai on tie", TypeAuto, "", true, TypeAI},
		{"auto without llm", TypeAuto, "", false, TypeFSRS},
		{"fsrs cannot serve topic coverage", TypeFSRS, ObjectiveTopicCoverage, true, TypeAI},
		{"fsrs serves weakness focus", TypeFSRS, ObjectiveWeaknessFocus, true, TypeFSRS},
		{"unsupported objective without llm", TypeFSRS, ObjectiveExamPrep, false, TypeFSRS},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveStrategy(&cfg, tt.requested, tt.objective, tt.llm); got != tt.want {
				t.Errorf("ResolveStrategy() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestResolveStrategyDefaults(t *testing.T) {
	cfg := config.Default().Strategy
	cfg.Default = "FSRS"
	if got := ResolveStrategy(&cfg, "", "", true); got != TypeFSRS {
		t.Errorf("configured default = %s, want FSRS", got)
	}

	cfg.Default = "nonsense"
	if got := ResolveStrategy(&cfg, "", "", true); got != TypeHybrid {
		t.Errorf("invalid default = %s, want HYBRID", got)
	}
}

func TestAutoFavorsFastStrategies(t *testing.T) {
	cfg := config.Default().Strategy
	cfg.AIEstimatedTime = 400 * time.Millisecond
	if got := ResolveStrategy(&cfg, TypeAuto, "", true); got != TypeAI {
		t.Errorf("fast AI = %s", got)
	}

	cfg = config.Default().Strategy
	cfg.FSRSPriority = 95
	if got := ResolveStrategy(&cfg, TypeAuto, "", true); got != TypeFSRS {
		t.Errorf("high priority FSRS = %s", got)
	}
}

func TestStrategyOptionSupports(t *testing.T) {
	fsrs := StrategyOption{Type: TypeFSRS}
	for _, o := range []Objective{"", ObjectiveWeaknessFocus, ObjectiveRefreshMastered} {
		if !fsrs.Supports(o) {
			t.Errorf("FSRS should support %q", o)
		}
	}
	for _, o := range []Objective{ObjectiveProgressiveDifficulty, ObjectiveTopicCoverage, ObjectiveExamPrep} {
		if fsrs.Supports(o) {
			t.Errorf("FSRS should not support %q", o)
		}
	}
	if !(StrategyOption{Type: TypeAI}).Supports(ObjectiveExamPrep) {
		t.Error("AI supports every objective")
	}
}
