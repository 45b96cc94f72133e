package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/openfroyo/daylight/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for errors that should block operations.
	SeverityError Severity = "error"

	// SeverityCritical is for critical violations that must be addressed immediately.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether violations of this severity deny a run.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy is a Rego module whose deny set lists violations.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Source is the file the policy was loaded from. Empty for built-ins.
	Source string `json:"source,omitempty"`
}

// Violation is a single deny entry.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Resource names the grid, sky or parameter at fault, if any.
	Resource string `json:"resource,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

func (v Violation) String() string {
	if v.Resource != "" {
		return fmt.Sprintf("[%s] %s: %s (%s)", v.Severity, v.Policy, v.Message, v.Resource)
	}
	return fmt.Sprintf("[%s] %s: %s", v.Severity, v.Policy, v.Message)
}

// Result is the outcome of evaluating every enabled policy.
type Result struct {
	// Allowed is false when any blocking violation was found.
	Allowed bool `json:"allowed"`

	// Violations are the blocking violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings are the non-blocking violations.
	Warnings []Violation `json:"warnings,omitempty"`

	// Failures lists policies that could not be evaluated.
	Failures []string `json:"failures,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Err returns a validation error listing the blocking violations, or nil
// when the recipe is allowed.
func (r *Result) Err() error {
	if r == nil || r.Allowed {
		return nil
	}
	msgs := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		msgs[i] = v.String()
	}
	return engine.NewValidationError("recipe denied by policy: "+strings.Join(msgs, "; "), nil).
		WithCode(engine.ErrCodePolicyDenied).
		WithDetail("violations", len(r.Violations))
}

// Input is the document policies see as input.
type Input struct {
	Project     string            `json:"project"`
	Recipe      string            `json:"recipe"`
	Type        int               `json:"type"`
	Sky         SkyInput          `json:"sky"`
	Quality     *int              `json:"quality,omitempty"`
	Parameters  map[string]string `json:"parameters"`
	Grids       []GridInput       `json:"grids"`
	TotalPoints int               `json:"total_points"`
	Reuse       bool              `json:"reuse"`
	Remote      bool              `json:"remote"`
	Plan        *PlanInput        `json:"plan,omitempty"`
}

// SkyInput describes the recipe sky.
type SkyInput struct {
	Kind         string `json:"kind"`
	Name         string `json:"name"`
	ClimateBased bool   `json:"climate_based"`
	Density      int    `json:"density,omitempty"`
	Hours        int    `json:"hours"`
}

// GridInput describes one analysis grid.
type GridInput struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
}

// PlanInput summarizes a written plan.
type PlanInput struct {
	Steps  int            `json:"steps"`
	Reused int            `json:"reused"`
	Stages map[string]int `json:"stages"`
}
