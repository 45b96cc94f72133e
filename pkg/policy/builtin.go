package policy

// BuiltinPolicies returns the guardrails every engine starts with.
func BuiltinPolicies() []Policy {
	return []Policy{
		gridSizePolicy(),
		ambientBouncesPolicy(),
		skyDensityPolicy(),
		draftQualityPolicy(),
	}
}

// gridSizePolicy bounds the total number of sensor points.
func gridSizePolicy() Policy {
	return Policy{
		Name:        "grid-size",
		Description: "Warns above 100000 sensor points and denies above 1000000",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package daylight.grid_size

import rego.v1

max_points := 1000000

warn_points := 100000

deny contains violation if {
	input.total_points > max_points
	violation := {
		"message": sprintf("%d sensor points exceed the limit of %d", [input.total_points, max_points]),
		"severity": "error",
	}
}

deny contains violation if {
	input.total_points > warn_points
	input.total_points <= max_points
	violation := {
		"message": sprintf("%d sensor points will make matrices large", [input.total_points]),
		"severity": "warning",
	}
}

deny contains violation if {
	some grid in input.grids
	grid.points == 0
	violation := {
		"message": "grid has no points",
		"severity": "error",
		"resource": grid.name,
	}
}
`,
	}
}

// ambientBouncesPolicy flags recipes that ignore interreflected light.
func ambientBouncesPolicy() Policy {
	return Policy{
		Name:        "ambient-bounces",
		Description: "Warns when a grid-based or daylight coefficient recipe traces no ambient bounces",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package daylight.ambient_bounces

import rego.v1

deny contains violation if {
	input.recipe in {"grid-based", "daylight-coefficient"}
	to_number(input.parameters.ab) == 0
	violation := {
		"message": "ambient bounces is 0, interreflected light is ignored",
		"resource": "ab",
	}
}
`,
	}
}

// skyDensityPolicy flags dense sky subdivisions.
func skyDensityPolicy() Policy {
	return Policy{
		Name:        "sky-density",
		Description: "Warns when a sky matrix uses a Reinhart subdivision above 4",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package daylight.sky_density

import rego.v1

deny contains violation if {
	input.sky.kind == "sky-matrix"
	input.sky.density > 4
	patches := (144 * input.sky.density) * input.sky.density + 1
	violation := {
		"message": sprintf("sky density %d gives %d patches per hour", [input.sky.density, patches]),
		"resource": input.sky.name,
	}
}
`,
	}
}

// draftQualityPolicy notes draft quality results.
func draftQualityPolicy() Policy {
	return Policy{
		Name:        "draft-quality",
		Description: "Notes recipes running at the draft quality tier",
		Severity:    SeverityInfo,
		Enabled:     true,
		Rego: `package daylight.draft_quality

import rego.v1

deny contains "quality tier 0 is meant for drafts" if {
	input.quality == 0
}
`,
	}
}
