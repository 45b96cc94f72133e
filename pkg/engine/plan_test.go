package engine

import (
	"bytes"
	"strings"
	"testing"
)

func newTestPlan() *Plan {
	plan := NewPlan("office", "daylight-coefficient", "/tmp/office")
	plan.AddArtifact("office.pts")
	plan.AddArtifact("skies/rfluxSky.rad")
	for _, step := range dcSteps() {
		if step.Stage == StageMatrix {
			step.Inputs = []string{"office.pts", "skies/rfluxSky.rad"}
		}
		plan.AddStep(step)
	}
	plan.ResultFiles = []string{"results/illuminance.ill"}
	return plan
}

func TestPlan_Validate(t *testing.T) {
	if err := newTestPlan().Validate(); err != nil {
		t.Fatalf("Expected valid plan, got: %v", err)
	}
}

func TestPlan_Validate_AbsolutePath(t *testing.T) {
	plan := newTestPlan()
	plan.Steps[3].Output = "/abs/results/illuminance.ill"

	err := plan.Validate()
	if !IsConfiguration(err) || ErrorCode(err) != ErrCodeInvalidPath {
		t.Fatalf("Expected invalid path error, got: %v", err)
	}
}

func TestPlan_Validate_EscapingPath(t *testing.T) {
	plan := newTestPlan()
	plan.Artifacts = append(plan.Artifacts, "../other/points.pts")

	if err := plan.Validate(); !IsConfiguration(err) {
		t.Fatalf("Expected configuration error, got: %v", err)
	}
}

func TestPlan_Validate_InputBeforeProducer(t *testing.T) {
	plan := NewPlan("office", "test", "/tmp/office")
	plan.AddStep(CommandStep{Stage: StageCombine, Program: "dctimestep",
		Inputs: []string{"results/matrix/a.dc"}, Output: ".tmp/a.tmp", Stdout: true})
	plan.AddStep(CommandStep{Stage: StageConvert, Program: "rmtxop",
		Inputs: []string{".tmp/a.tmp"}, Output: "results/a.ill", Stdout: true})

	err := plan.Validate()
	if !IsState(err) {
		t.Fatalf("Expected state error for unproduced input, got: %v", err)
	}
}

func TestPlan_Validate_StageOrder(t *testing.T) {
	plan := NewPlan("office", "test", "/tmp/office")
	plan.AddStep(CommandStep{Stage: StageConvert, Program: "rmtxop", Output: "a"})
	plan.AddStep(CommandStep{Stage: StageSky, Program: "gendaymtx", Output: "b"})

	if err := plan.Validate(); !IsValidation(err) {
		t.Fatalf("Expected validation error for out-of-order stages, got: %v", err)
	}
}

func TestPlan_AddReused(t *testing.T) {
	plan := NewPlan("office", "test", "/tmp/office")
	plan.AddReused("results/matrix/office_1_4.dc")
	plan.AddReused("results/matrix/office_1_4.dc")

	if len(plan.Reused) != 1 || len(plan.Artifacts) != 1 {
		t.Fatalf("Expected a single reused artifact, got reused=%v artifacts=%v", plan.Reused, plan.Artifacts)
	}
}

func TestPlan_WriteScript(t *testing.T) {
	plan := newTestPlan()
	plan.Steps[3].Args = []string{"-fa", "-c", "47.4", "119.9", "11.6", ".tmp/illuminance.tmp"}
	plan.Steps[3].Stdout = true
	plan.Steps[3].Description = "convert RGB values to illuminance"

	var buf bytes.Buffer
	if err := plan.WriteScript(&buf); err != nil {
		t.Fatalf("Failed to write script: %v", err)
	}
	script := buf.String()

	if !strings.HasPrefix(script, "#!/bin/sh\n") {
		t.Errorf("Expected shebang, got %q", script[:20])
	}
	want := "# convert: convert RGB values to illuminance\nrmtxop -fa -c 47.4 119.9 11.6 .tmp/illuminance.tmp > results/illuminance.ill\n"
	if !strings.Contains(script, want) {
		t.Errorf("Expected script to contain %q, got:\n%s", want, script)
	}
	if strings.Contains(script, "/tmp/office") {
		t.Error("Script must not contain the absolute work dir")
	}
}

func TestCommandStep_CommandLine_Quoting(t *testing.T) {
	step := CommandStep{
		Program: "rcalc",
		Args:    []string{"-e", "$1=(0.265*$1+0.67*$2+0.065*$3)*179"},
		Stdin:   "results/office.res",
		Output:  "results/office.ill",
		Stdout:  true,
	}

	want := "rcalc -e '$1=(0.265*$1+0.67*$2+0.065*$3)*179' < results/office.res > results/office.ill"
	if got := step.CommandLine(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestCommandStep_CommandLine_Manifest(t *testing.T) {
	step := CommandStep{
		Program:      "gendaymtx",
		Args:         []string{"-m", "1", "skies/sky.wea"},
		Output:       "skies/sky.smx",
		Stdout:       true,
		Manifest:     "skies/sky.smx.manifest",
		ManifestLine: "v1:10,11,12",
	}

	want := `gendaymtx -m 1 skies/sky.wea > skies/sky.smx && printf '%s\n' v1:10,11,12 > skies/sky.smx.manifest`
	if got := step.CommandLine(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}
