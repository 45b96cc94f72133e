package params

// Quality tiers.
const (
	QualityLow    = 0
	QualityMedium = 1
	QualityHigh   = 2
)

// tiers holds the canonical low/medium/high value of every tier-controlled key.
var tiers = map[Key][3]Value{
	AmbientBounces:       {Int(2), Int(3), Int(6)},
	AmbientDivisions:     {Int(512), Int(2048), Int(4096)},
	AmbientSupersamples:  {Int(128), Int(2048), Int(4096)},
	AmbientResolution:    {Int(16), Int(64), Int(128)},
	AmbientAccuracy:      {Float(0.25), Float(0.2), Float(0.1)},
	DirectJitter:         {Float(0), Float(0.5), Float(1)},
	DirectSampling:       {Float(0.5), Float(0.25), Float(0.05)},
	DirectThreshold:      {Float(0.5), Float(0.25), Float(0.15)},
	DirectCertainty:      {Float(0.25), Float(0.5), Float(0.75)},
	DirectSecRelays:      {Int(0), Int(1), Int(3)},
	DirectPresampDensity: {Int(64), Int(256), Int(512)},
	SpecularThreshold:    {Float(0.85), Float(0.5), Float(0.15)},
	LimitRecursion:       {Int(4), Int(6), Int(8)},
	LimitWeight:          {Float(0.05), Float(0.01), Float(0.005)},
	SpecularSampling:     {Float(0), Float(0.7), Float(1)},
	PixelSampling:        {Int(8), Int(4), Int(2)},
	PixelTolerance:       {Float(0.15), Float(0.10), Float(0.05)},
	PixelJitter:          {Float(0.6), Float(0.9), Float(0.9)},
}

// TierValue returns the canonical value of k for tier, if k is tier-controlled.
func TierValue(k Key, tier int) (Value, bool) {
	presets, ok := tiers[k]
	if !ok || tier < QualityLow || tier > QualityHigh {
		return Value{}, false
	}
	return presets[tier], true
}

// TierControlled reports whether k is assigned by SetQuality.
func TierControlled(k Key) bool {
	_, ok := tiers[k]
	return ok
}

var gridBasedKeys = []Key{
	AmbientBounces, AmbientDivisions, AmbientSupersamples, AmbientResolution, AmbientAccuracy,
	DirectJitter, DirectSampling, DirectThreshold, DirectCertainty, DirectSecRelays, DirectPresampDensity,
	SpecularThreshold, LimitRecursion, LimitWeight, SpecularSampling,
	AmbientValue, AmbientValueWeight, DirectVisibility, BackFaceVisibility, UncorrelatedSampling,
	IrradianceCalculation,
}

var imageBasedKeys = []Key{
	AmbientBounces, AmbientDivisions, AmbientSupersamples, AmbientResolution, AmbientAccuracy,
	DirectJitter, DirectSampling, DirectThreshold, DirectCertainty, DirectSecRelays, DirectPresampDensity,
	SpecularThreshold, LimitRecursion, LimitWeight, SpecularSampling,
	PixelSampling, PixelTolerance, PixelJitter,
	AmbientValue, AmbientValueWeight, DirectVisibility, BackFaceVisibility, UncorrelatedSampling,
	XResolution, YResolution,
}

var coefficientKeys = []Key{
	AmbientBounces, AmbientDivisions, AmbientSupersamples, AmbientResolution, AmbientAccuracy,
	DirectJitter, DirectSampling, DirectThreshold, DirectCertainty, LimitWeight, SamplingRaysCount,
	IrradianceCalculation,
}

// GridBasedBuilder returns a builder for point tracing (rtrace) with the tier applied.
func GridBasedBuilder(tier int) (*Builder, error) {
	return presetBuilder("rtrace", gridBasedKeys, tier)
}

// GridBased returns the point tracing (rtrace) parameter set for a tier.
func GridBased(tier int) (*Set, error) {
	b, err := GridBasedBuilder(tier)
	if err != nil {
		return nil, err
	}
	return b.Build()
}

// ImageBasedBuilder returns a builder for image rendering (rpict) with the tier applied.
func ImageBasedBuilder(tier int) (*Builder, error) {
	return presetBuilder("rpict", imageBasedKeys, tier)
}

// ImageBased returns the image rendering (rpict) parameter set for a tier.
func ImageBased(tier int) (*Set, error) {
	b, err := ImageBasedBuilder(tier)
	if err != nil {
		return nil, err
	}
	return b.Build()
}

// RfluxmtxBuilder returns a builder for daylight coefficient calculation
// seeded with -I+ -ab 6 -ad 4096 -aa 0.1 -lw 0.001.
func RfluxmtxBuilder() *Builder {
	b := NewBuilder("rfluxmtx")
	_ = b.Register(coefficientKeys...)
	_ = b.Set(IrradianceCalculation, Bool(true))
	_ = b.Set(AmbientAccuracy, Float(0.1))
	_ = b.Set(AmbientDivisions, Int(4096))
	_ = b.Set(AmbientBounces, Int(6))
	_ = b.Set(LimitWeight, Float(0.001))
	return b
}

// Rfluxmtx returns the default daylight coefficient parameter set.
func Rfluxmtx() *Set {
	return RfluxmtxBuilder().MustBuild()
}

// RcontribBuilder returns a builder for direct sun coefficients: no ambient
// bounces and fully certain direct sampling.
func RcontribBuilder() *Builder {
	b := NewBuilder("rcontrib")
	_ = b.Register(coefficientKeys...)
	_ = b.Set(IrradianceCalculation, Bool(true))
	_ = b.Set(AmbientBounces, Int(0))
	_ = b.Set(DirectCertainty, Float(1))
	_ = b.Set(DirectThreshold, Float(0))
	_ = b.Set(DirectJitter, Float(0))
	_ = b.Set(LimitWeight, Float(0.0001))
	return b
}

// Rcontrib returns the default direct sun coefficient parameter set.
func Rcontrib() *Set {
	return RcontribBuilder().MustBuild()
}

// ForFamily returns the builder of a named family with the tier applied
// where the family is tier-driven.
func ForFamily(family string, tier int) (*Builder, error) {
	switch family {
	case "rtrace", "":
		return GridBasedBuilder(tier)
	case "rpict":
		return ImageBasedBuilder(tier)
	case "rfluxmtx":
		return RfluxmtxBuilder(), nil
	case "rcontrib":
		return RcontribBuilder(), nil
	default:
		return nil, unknownFamily(family)
	}
}

func presetBuilder(family string, keys []Key, tier int) (*Builder, error) {
	b := NewBuilder(family)
	if err := b.Register(keys...); err != nil {
		return nil, err
	}
	if err := b.SetQuality(tier); err != nil {
		return nil, err
	}
	return b, nil
}
