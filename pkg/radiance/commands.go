// Package radiance builds the command steps for the external Radiance
// programs used by the recipes. Paths are relative to the plan work dir.
package radiance

import (
	"fmt"
	"math"
	"strconv"

	"github.com/openfroyo/daylight/pkg/engine"
	"github.com/openfroyo/daylight/pkg/params"
)

// Photometric weights of the red, green and blue channels.
const (
	WeightRed   = 0.265
	WeightGreen = 0.67
	WeightBlue  = 0.065
)

// LuminousEfficacy converts radiance to luminance, in lm/W.
const LuminousEfficacy = 179

// Oconv compiles scene files into an octree.
func Oconv(output string, inputs ...string) engine.CommandStep {
	return engine.CommandStep{
		Stage:       engine.StageOctree,
		Description: "compile octree " + output,
		Program:     "oconv",
		Args:        append([]string(nil), inputs...),
		Inputs:      append([]string(nil), inputs...),
		Output:      output,
		Stdout:      true,
	}
}

// Rtrace traces points against an octree and prints one header-less
// radiance triplet per point.
func Rtrace(p *params.Set, octree, points, output string) engine.CommandStep {
	args := append(p.Args(), "-h", octree)
	return engine.CommandStep{
		Stage:       engine.StageRaytrace,
		Description: "trace " + points,
		Program:     "rtrace",
		Args:        args,
		Stdin:       points,
		Inputs:      []string{octree, points},
		Output:      output,
		Stdout:      true,
		Parameters:  p.String(),
	}
}

// Rcalc converts radiance triplets to one weighted value per line.
func Rcalc(factor float64, input, output string) engine.CommandStep {
	return engine.CommandStep{
		Stage:       engine.StageConvert,
		Description: "convert " + input,
		Program:     "rcalc",
		Args:        []string{"-e", ConversionExpr(factor), input},
		Inputs:      []string{input},
		Output:      output,
		Stdout:      true,
	}
}

// ConversionExpr is the rcalc expression for factor.
func ConversionExpr(factor float64) string {
	return fmt.Sprintf("$1=(%s*$1+%s*$2+%s*$3)*%s",
		ftoa(WeightRed), ftoa(WeightGreen), ftoa(WeightBlue), ftoa(factor))
}

// Gendaymtx generates a sky matrix from a weather file.
func Gendaymtx(args []string, wea, output string) engine.CommandStep {
	return engine.CommandStep{
		Stage:       engine.StageSky,
		Description: "generate sky matrix " + output,
		Program:     "gendaymtx",
		Args:        append([]string(nil), args...),
		Inputs:      []string{wea},
		Output:      output,
		Stdout:      true,
	}
}

// Rfluxmtx computes daylight coefficients from points read on stdin to the
// sky receiver.
func Rfluxmtx(p *params.Set, points int, pointsFile, receiver string, scene []string, output string) engine.CommandStep {
	args := append(p.Args(), "-y", strconv.Itoa(points), "-", receiver)
	args = append(args, scene...)
	inputs := append([]string{pointsFile, receiver}, scene...)
	return engine.CommandStep{
		Stage:       engine.StageMatrix,
		Description: "compute daylight coefficients " + output,
		Program:     "rfluxmtx",
		Args:        args,
		Stdin:       pointsFile,
		Inputs:      inputs,
		Output:      output,
		Stdout:      true,
		Parameters:  p.String(),
	}
}

// Rcontrib computes per-modifier contributions for points read on stdin.
func Rcontrib(p *params.Set, points int, pointsFile, modifiers, octree, output string) engine.CommandStep {
	args := append(p.Args(), "-y", strconv.Itoa(points), "-M", modifiers, octree)
	return engine.CommandStep{
		Stage:       engine.StageMatrix,
		Description: "compute sun coefficients " + output,
		Program:     "rcontrib",
		Args:        args,
		Stdin:       pointsFile,
		Inputs:      []string{pointsFile, modifiers, octree},
		Output:      output,
		Stdout:      true,
		Parameters:  p.String(),
	}
}

// Dctimestep multiplies a coefficient matrix with a sky matrix.
func Dctimestep(dc, sky, output string) engine.CommandStep {
	return engine.CommandStep{
		Stage:       engine.StageCombine,
		Description: "multiply " + dc + " by " + sky,
		Program:     "dctimestep",
		Args:        []string{dc, sky},
		Inputs:      []string{dc, sky},
		Output:      output,
		Stdout:      true,
	}
}

// Rmtxop reduces a three-component matrix to one weighted ascii component.
func Rmtxop(factor float64, input, output string) engine.CommandStep {
	return engine.CommandStep{
		Stage:       engine.StageConvert,
		Description: "convert " + input,
		Program:     "rmtxop",
		Args: []string{
			"-fa", "-c",
			ftoa(coefficient(WeightRed, factor)),
			ftoa(coefficient(WeightGreen, factor)),
			ftoa(coefficient(WeightBlue, factor)),
			input,
		},
		Inputs: []string{input},
		Output: output,
		Stdout: true,
	}
}

func coefficient(weight, factor float64) float64 {
	return math.Round(weight*factor*1e4) / 1e4
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
