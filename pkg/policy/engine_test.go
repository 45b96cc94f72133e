package policy

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfroyo/daylight/pkg/engine"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

func intPtr(v int) *int { return &v }

func baseInput() *Input {
	return &Input{
		Project:     "office",
		Recipe:      "grid-based",
		Sky:         SkyInput{Kind: "certain-illuminance", Name: "CertainIlluminance_10000", Hours: 1},
		Quality:     intPtr(2),
		Parameters:  map[string]string{"ab": "2", "ad": "512"},
		Grids:       []GridInput{{Name: "floor", Points: 120}},
		TotalPoints: 120,
	}
}

func TestNewEngine(t *testing.T) {
	eng := newTestEngine(t)

	policies := eng.ListPolicies()
	want := []string{"ambient-bounces", "draft-quality", "grid-size", "sky-density"}
	if len(policies) != len(want) {
		t.Fatalf("expected %d built-in policies, got %d", len(want), len(policies))
	}
	for i, name := range want {
		if policies[i].Name != name {
			t.Errorf("policy %d: expected %s, got %s", i, name, policies[i].Name)
		}
		if !policies[i].Enabled {
			t.Errorf("policy %s should be enabled", name)
		}
	}
}

func TestEvaluate_Builtins(t *testing.T) {
	eng := newTestEngine(t)

	tests := []struct {
		name           string
		modify         func(*Input)
		wantAllowed    bool
		wantViolations []string
		wantWarnings   []string
		wantMessage    string
	}{
		{
			name:        "clean recipe",
			modify:      func(*Input) {},
			wantAllowed: true,
		},
		{
			name: "large grid warns",
			modify: func(in *Input) {
				in.TotalPoints = 200000
			},
			wantAllowed:  true,
			wantWarnings: []string{"grid-size"},
			wantMessage:  "200000 sensor points",
		},
		{
			name: "huge grid denies",
			modify: func(in *Input) {
				in.TotalPoints = 2000000
			},
			wantAllowed:    false,
			wantViolations: []string{"grid-size"},
			wantMessage:    "exceed the limit of 1000000",
		},
		{
			name: "empty grid denies",
			modify: func(in *Input) {
				in.Grids = append(in.Grids, GridInput{Name: "void", Points: 0})
			},
			wantAllowed:    false,
			wantViolations: []string{"grid-size"},
			wantMessage:    "grid has no points",
		},
		{
			name: "zero ambient bounces",
			modify: func(in *Input) {
				in.Parameters["ab"] = "0"
			},
			wantAllowed:  true,
			wantWarnings: []string{"ambient-bounces"},
		},
		{
			name: "zero ambient bounces on direct sun",
			modify: func(in *Input) {
				in.Recipe = "direct-sun"
				in.Parameters["ab"] = "0"
			},
			wantAllowed: true,
		},
		{
			name: "dense sky matrix",
			modify: func(in *Input) {
				in.Recipe = "daylight-coefficient"
				in.Sky = SkyInput{Kind: "sky-matrix", Name: "skymtx_r6", ClimateBased: true, Density: 6, Hours: 8760}
			},
			wantAllowed:  true,
			wantWarnings: []string{"sky-density"},
			wantMessage:  "5185 patches",
		},
		{
			name: "draft quality",
			modify: func(in *Input) {
				in.Quality = intPtr(0)
			},
			wantAllowed:  true,
			wantWarnings: []string{"draft-quality"},
		},
		{
			name: "no quality tier",
			modify: func(in *Input) {
				in.Quality = nil
			},
			wantAllowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseInput()
			tt.modify(in)

			result, err := eng.Evaluate(context.Background(), in)
			if err != nil {
				t.Fatalf("Evaluation failed: %v", err)
			}
			if result.Allowed != tt.wantAllowed {
				t.Errorf("expected allowed=%v, got %v (%+v)", tt.wantAllowed, result.Allowed, result.Violations)
			}
			if len(result.Failures) > 0 {
				t.Errorf("unexpected evaluation failures: %v", result.Failures)
			}
			if len(result.EvaluatedPolicies) != 4 {
				t.Errorf("expected 4 evaluated policies, got %d", len(result.EvaluatedPolicies))
			}

			assertPolicies(t, "violations", result.Violations, tt.wantViolations)
			assertPolicies(t, "warnings", result.Warnings, tt.wantWarnings)

			if tt.wantMessage != "" {
				found := false
				for _, v := range append(result.Violations, result.Warnings...) {
					if strings.Contains(v.Message, tt.wantMessage) {
						found = true
					}
				}
				if !found {
					t.Errorf("no violation mentions %q: %+v %+v", tt.wantMessage, result.Violations, result.Warnings)
				}
			}
		})
	}
}

func assertPolicies(t *testing.T, kind string, got []Violation, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d %s, got %d: %+v", len(want), kind, len(got), got)
	}
	for i, name := range want {
		if got[i].Policy != name {
			t.Errorf("%s[%d]: expected policy %s, got %s", kind, i, name, got[i].Policy)
		}
	}
}

func TestEvaluate_SeverityFromEntry(t *testing.T) {
	eng := newTestEngine(t)

	in := baseInput()
	in.Grids = append(in.Grids, GridInput{Name: "void"})
	in.Quality = intPtr(0)

	result, err := eng.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if len(result.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %+v", result.Violations)
	}
	v := result.Violations[0]
	if v.Severity != SeverityError || v.Resource != "void" {
		t.Errorf("unexpected violation: %+v", v)
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Severity != SeverityInfo {
		t.Errorf("expected one info warning, got %+v", result.Warnings)
	}
}

func TestResultErr(t *testing.T) {
	allowed := &Result{Allowed: true, Warnings: []Violation{{Policy: "draft-quality", Severity: SeverityInfo}}}
	if err := allowed.Err(); err != nil {
		t.Errorf("expected nil error for allowed result, got %v", err)
	}

	var nilResult *Result
	if err := nilResult.Err(); err != nil {
		t.Errorf("expected nil error for nil result, got %v", err)
	}

	denied := &Result{
		Allowed: false,
		Violations: []Violation{
			{Policy: "grid-size", Resource: "void", Message: "grid has no points", Severity: SeverityError},
		},
	}
	err := denied.Err()
	if err == nil {
		t.Fatal("expected error for denied result")
	}
	if !engine.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
	if code := engine.ErrorCode(err); code != engine.ErrCodePolicyDenied {
		t.Errorf("expected code %s, got %s", engine.ErrCodePolicyDenied, code)
	}
	if !strings.Contains(err.Error(), "[error] grid-size: grid has no points (void)") {
		t.Errorf("error does not list the violation: %v", err)
	}
}

func TestEnableDisablePolicy(t *testing.T) {
	eng := newTestEngine(t)

	if err := eng.DisablePolicy("grid-size"); err != nil {
		t.Fatalf("DisablePolicy failed: %v", err)
	}

	in := baseInput()
	in.TotalPoints = 2000000
	result, err := eng.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("disabled policy should not deny: %+v", result.Violations)
	}
	for _, name := range result.EvaluatedPolicies {
		if name == "grid-size" {
			t.Error("disabled policy was evaluated")
		}
	}

	if err := eng.EnablePolicy("grid-size"); err != nil {
		t.Fatalf("EnablePolicy failed: %v", err)
	}
	result, err = eng.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if result.Allowed {
		t.Error("re-enabled policy should deny")
	}

	err = eng.DisablePolicy("missing")
	if engine.ErrorCode(err) != engine.ErrCodeNotFound {
		t.Errorf("expected not found error, got %v", err)
	}
	if _, err := eng.GetPolicy("missing"); !engine.IsConfiguration(err) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestEvaluate_Cancelled(t *testing.T) {
	eng := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := eng.Evaluate(ctx, baseInput()); err == nil {
		t.Error("expected error from cancelled context")
	}
}
