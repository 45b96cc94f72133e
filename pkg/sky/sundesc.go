package sky

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/openfroyo/daylight/pkg/engine"
)

// SunFormatVersion identifies the layout of generated sun descriptions
// understood by ParseSunDescription.
const SunFormatVersion = 1

// LightMaterial is the light primitive describing the sun's radiance.
type LightMaterial struct {
	Modifier string
	Name     string
	Red      float64
	Green    float64
	Blue     float64
}

// SunSource is the source primitive describing the sun's direction.
type SunSource struct {
	Modifier string
	Name     string
	X        float64
	Y        float64
	Z        float64
	Angle    float64
}

// SunDescription is one parsed sun: a light material and the source using it.
type SunDescription struct {
	Version int
	Light   LightMaterial
	Source  SunSource
}

// Radiance returns the light's three radiance components.
func (d *SunDescription) Radiance() [3]float64 {
	return [3]float64{d.Light.Red, d.Light.Green, d.Light.Blue}
}

// HasRadiance reports whether the largest component is non-zero.
func (d *SunDescription) HasRadiance() bool {
	r := d.Radiance()
	m := r[0]
	for _, v := range r[1:] {
		if v > m {
			m = v
		}
	}
	return m != 0
}

// Renamed returns a copy whose light material, and the source's modifier,
// carry id.
func (d *SunDescription) Renamed(id string) *SunDescription {
	c := *d
	c.Light.Name = id
	c.Source.Modifier = id
	return &c
}

// String renders the description on one line.
func (d *SunDescription) String() string {
	return fmt.Sprintf("%s light %s 0 0 3 %s %s %s %s source %s 0 0 4 %s %s %s %s",
		d.Light.Modifier, d.Light.Name, gtoa(d.Light.Red), gtoa(d.Light.Green), gtoa(d.Light.Blue),
		d.Source.Modifier, d.Source.Name, gtoa(d.Source.X), gtoa(d.Source.Y), gtoa(d.Source.Z), gtoa(d.Source.Angle))
}

// primitive is one scene description object.
type primitive struct {
	modifier string
	kind     string
	name     string
	strings  []string
	ints     []string
	reals    []float64
}

// ParseSunDescription parses the text produced by the per-hour sun
// generator. Comment lines are skipped and the remaining tokens are parsed
// as scene primitives. The result is nil when the output describes no sun.
// Truncated or non-numeric primitives, or a light without its source,
// produce a malformed-artifact error.
func ParseSunDescription(lines []string) (*SunDescription, error) {
	var tokens []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		tokens = append(tokens, strings.Fields(trimmed)...)
	}

	prims, err := parsePrimitives(tokens)
	if err != nil {
		return nil, err
	}

	var light *primitive
	for i := range prims {
		if prims[i].kind == "light" {
			light = &prims[i]
			break
		}
	}
	if light == nil {
		return nil, nil
	}
	if len(light.reals) != 3 {
		return nil, malformed(fmt.Sprintf("light %s has %d real arguments, want 3", light.name, len(light.reals)))
	}

	for i := range prims {
		src := &prims[i]
		if src.kind != "source" || src.modifier != light.name {
			continue
		}
		if len(src.reals) != 4 {
			return nil, malformed(fmt.Sprintf("source %s has %d real arguments, want 4", src.name, len(src.reals)))
		}
		return &SunDescription{
			Version: SunFormatVersion,
			Light: LightMaterial{
				Modifier: light.modifier,
				Name:     light.name,
				Red:      light.reals[0],
				Green:    light.reals[1],
				Blue:     light.reals[2],
			},
			Source: SunSource{
				Modifier: src.modifier,
				Name:     src.name,
				X:        src.reals[0],
				Y:        src.reals[1],
				Z:        src.reals[2],
				Angle:    src.reals[3],
			},
		}, nil
	}
	return nil, malformed(fmt.Sprintf("light %s has no source", light.name))
}

func parsePrimitives(tokens []string) ([]primitive, error) {
	var prims []primitive
	pos := 0
	next := func() (string, bool) {
		if pos >= len(tokens) {
			return "", false
		}
		pos++
		return tokens[pos-1], true
	}
	count := func(what string) (int, error) {
		tok, ok := next()
		if !ok {
			return 0, malformed("truncated primitive: missing " + what + " count")
		}
		n, err := strconv.Atoi(tok)
		if err != nil || n < 0 {
			return 0, malformed(fmt.Sprintf("invalid %s count %q", what, tok))
		}
		if pos+n > len(tokens) {
			return 0, malformed(fmt.Sprintf("truncated primitive: %d %s arguments declared", n, what))
		}
		return n, nil
	}

	for pos < len(tokens) {
		var p primitive
		if len(tokens)-pos < 3 {
			return nil, malformed("truncated primitive header")
		}
		p.modifier, _ = next()
		p.kind, _ = next()
		p.name, _ = next()

		n, err := count("string")
		if err != nil {
			return nil, err
		}
		p.strings = tokens[pos : pos+n]
		pos += n

		if n, err = count("integer"); err != nil {
			return nil, err
		}
		p.ints = tokens[pos : pos+n]
		pos += n

		if n, err = count("real"); err != nil {
			return nil, err
		}
		for _, tok := range tokens[pos : pos+n] {
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return nil, malformed(fmt.Sprintf("%s %s: invalid real %q", p.kind, p.name, tok))
			}
			p.reals = append(p.reals, v)
		}
		pos += n
		prims = append(prims, p)
	}
	return prims, nil
}

func malformed(msg string) error {
	return engine.NewArtifactError(msg, nil).
		WithCode(engine.ErrCodeMalformedArtifact).
		WithOperation("parse sun description").
		WithDetail("format_version", SunFormatVersion)
}

func gtoa(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
