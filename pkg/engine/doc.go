// Package engine provides the core types for planning and driving recipe pipelines.
//
// # Overview
//
// A recipe turns a sky, analysis points and simulation parameters into a Plan:
// an ordered list of CommandSteps, each one external tool invocation with
// declared input and output artifacts. Every path in a plan is relative to the
// plan's work dir so the generated script is portable.
//
// Stages always appear in strict dependency order:
//
//  1. points   - concatenated analysis-points file
//  2. sky      - sky file, sky matrix or sun matrix
//  3. octree   - scene compilation
//  4. matrix   - expensive intermediate matrix (daylight or sun coefficients)
//  5. raytrace - direct point tracing
//  6. combine  - intermediate matrix times sky matrix
//  7. convert  - tri-component samples to one photometric scalar
//
// # Execution
//
// The DAGBuilder links each step to the steps producing its inputs. The Runner
// walks the graph level by level and runs one step at a time, blocking on each
// external process. A failed step fails the run; nothing is retried.
//
// # Error Classification
//
// Errors are classified by what went wrong:
//
//   - Configuration: malformed or type-mismatched recipe inputs
//   - Validation: a value outside its declared legal range
//   - State: an operation invoked before its prerequisite stage completed
//   - Artifact: an expected output absent or malformed after a stage
//
// Use the helper functions to inspect errors:
//
//	if engine.IsState(err) {
//	    // run the plan before collecting results
//	}
package engine
