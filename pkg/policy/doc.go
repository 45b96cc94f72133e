// Package policy evaluates recipe guardrails written in Rego with the Open
// Policy Agent.
//
// Before a recipe is written or run, the CLI describes it as an Input: the
// recipe kind, sky, resolved Radiance parameters, sensor grids and, once
// written, a summary of the command plan. Every enabled policy sees that
// document as input and contributes entries to its deny set.
//
// # Policies
//
// A policy is a Rego module using the v1 syntax:
//
//	package daylight.custom
//
//	import rego.v1
//
//	deny contains "too many points" if {
//		input.total_points > 20000
//	}
//
// Deny entries may be plain strings or objects with message, severity and
// resource fields. An entry without a severity takes the policy's default.
// Error and critical entries block the run; info and warning entries are
// reported as warnings.
//
// # Built-in Policies
//
//   - grid-size: sensor point limits
//   - ambient-bounces: grid-based recipes that trace no ambient bounces
//   - sky-density: dense Reinhart subdivisions
//   - draft-quality: quality tier 0
//
// # Loading
//
// Project policies are loaded from .rego or .json files, or from
// directories of them. For .rego files the file name is the policy name,
// leading comments are the description and a "# severity: error" comment
// sets the default severity.
//
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//	if err := eng.LoadPolicies(ctx, []string{"policies"}); err != nil {
//	    return err
//	}
//	result, err := eng.Evaluate(ctx, policy.NewInput(built, plan, false))
//	if err != nil {
//	    return err
//	}
//	return result.Err()
package policy
