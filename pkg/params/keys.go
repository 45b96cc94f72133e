// Package params provides typed simulation parameter sets for the raytracing toolchain.
//
// Every tunable is a Key from a closed registry. Each key declares its flag,
// value kind and legal range. A Builder collects registered keys and values,
// applies quality tiers, and produces an immutable Set that serializes to a
// flag string in registration order.
package params

import (
	"sort"
)

// Key identifies a simulation parameter by its command-line flag.
type Key string

// Ambient calculation.
const (
	AmbientBounces      Key = "ab"
	AmbientDivisions    Key = "ad"
	AmbientSupersamples Key = "as"
	AmbientResolution   Key = "ar"
	AmbientAccuracy     Key = "aa"
	AmbientValue        Key = "av"
	AmbientValueWeight  Key = "aw"
)

// Direct calculation.
const (
	DirectJitter          Key = "dj"
	DirectSampling        Key = "ds"
	DirectThreshold       Key = "dt"
	DirectCertainty       Key = "dc"
	DirectSecRelays       Key = "dr"
	DirectPresampDensity  Key = "dp"
	DirectVisibility      Key = "dv"
	SpecularThreshold     Key = "st"
	SpecularSampling      Key = "ss"
	BackFaceVisibility    Key = "bv"
	UncorrelatedSampling  Key = "u"
	IrradianceCalculation Key = "I"
)

// Limits.
const (
	LimitRecursion Key = "lr"
	LimitWeight    Key = "lw"
)

// Image sampling and resolution.
const (
	PixelSampling  Key = "ps"
	PixelTolerance Key = "pt"
	PixelJitter    Key = "pj"
	XResolution    Key = "x"
	YResolution    Key = "y"
)

// Sampling count per receiver patch for coefficient calculations.
const SamplingRaysCount Key = "c"

// Kind is the declared value type of a parameter.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindBool
	KindTuple
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindTuple:
		return "tuple"
	default:
		return "unknown"
	}
}

// Definition describes a registered parameter.
type Definition struct {
	Key         Key
	Description string
	Kind        Kind
	// TupleSize is the fixed element count of tuple parameters.
	TupleSize int
	// Rule is a validator tag applied to numeric values (each element for tuples).
	Rule string
}

var registry = map[Key]Definition{
	AmbientBounces:        {AmbientBounces, "ambient bounces", KindInt, 0, "min=0"},
	AmbientDivisions:      {AmbientDivisions, "ambient divisions", KindInt, 0, "min=0"},
	AmbientSupersamples:   {AmbientSupersamples, "ambient super-samples", KindInt, 0, "min=0"},
	AmbientResolution:     {AmbientResolution, "ambient resolution", KindInt, 0, "min=0"},
	AmbientAccuracy:       {AmbientAccuracy, "ambient accuracy", KindFloat, 0, "min=0"},
	AmbientValue:          {AmbientValue, "ambient value", KindTuple, 3, "min=0"},
	AmbientValueWeight:    {AmbientValueWeight, "ambient value weight", KindInt, 0, "min=0"},
	DirectJitter:          {DirectJitter, "direct jitter", KindFloat, 0, "min=0,max=1"},
	DirectSampling:        {DirectSampling, "direct sampling", KindFloat, 0, "min=0"},
	DirectThreshold:       {DirectThreshold, "direct threshold", KindFloat, 0, "min=0"},
	DirectCertainty:       {DirectCertainty, "direct certainty", KindFloat, 0, "min=0,max=1"},
	DirectSecRelays:       {DirectSecRelays, "direct secondary relays", KindInt, 0, "min=0"},
	DirectPresampDensity:  {DirectPresampDensity, "direct pretest density", KindInt, 0, "min=0"},
	DirectVisibility:      {DirectVisibility, "light source visibility", KindBool, 0, ""},
	SpecularThreshold:     {SpecularThreshold, "specular threshold", KindFloat, 0, "min=0"},
	SpecularSampling:      {SpecularSampling, "specular sampling", KindFloat, 0, "min=0"},
	BackFaceVisibility:    {BackFaceVisibility, "back face visibility", KindBool, 0, ""},
	UncorrelatedSampling:  {UncorrelatedSampling, "uncorrelated random sampling", KindBool, 0, ""},
	IrradianceCalculation: {IrradianceCalculation, "irradiance calculation at sensor points", KindBool, 0, ""},
	LimitRecursion:        {LimitRecursion, "limit reflection", KindInt, 0, ""},
	LimitWeight:           {LimitWeight, "limit weight", KindFloat, 0, "min=0"},
	PixelSampling:         {PixelSampling, "pixel sampling", KindInt, 0, "min=1"},
	PixelTolerance:        {PixelTolerance, "pixel tolerance", KindFloat, 0, "min=0"},
	PixelJitter:           {PixelJitter, "pixel jitter", KindFloat, 0, "min=0,max=1"},
	XResolution:           {XResolution, "x resolution", KindInt, 0, "min=1"},
	YResolution:           {YResolution, "y resolution", KindInt, 0, "min=1"},
	SamplingRaysCount:     {SamplingRaysCount, "sampling rays count", KindInt, 0, "min=1"},
}

// Lookup returns the definition of a key.
func Lookup(k Key) (Definition, bool) {
	d, ok := registry[k]
	return d, ok
}

// Valid reports whether k is part of the closed registry.
func (k Key) Valid() bool {
	_, ok := registry[k]
	return ok
}

// AllKeys returns every registry key in flag order.
func AllKeys() []Key {
	keys := make([]Key, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
