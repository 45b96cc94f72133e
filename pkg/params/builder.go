package params

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/openfroyo/daylight/pkg/engine"
)

var validate = validator.New()

// Builder collects parameters before producing an immutable Set.
// Keys may only be registered until the first Build; values may be changed
// at any time and each Build snapshots them.
type Builder struct {
	family  string
	order   []Key
	values  map[Key]Value
	quality int
	frozen  bool
}

// NewBuilder creates an empty builder for a parameter family (e.g. "rtrace").
func NewBuilder(family string) *Builder {
	return &Builder{
		family:  family,
		values:  make(map[Key]Value),
		quality: -1,
	}
}

// Register adds keys in order. Registering a key twice is a no-op.
func (b *Builder) Register(keys ...Key) error {
	for _, k := range keys {
		if !k.Valid() {
			return unknownKey(k)
		}
		if _, ok := b.values[k]; ok {
			continue
		}
		if b.frozen {
			return engine.NewConfigurationError(
				fmt.Sprintf("cannot register %q after the parameter set was built", k), nil,
			).WithCode(engine.ErrCodeFrozen).WithResource(string(k))
		}
		b.order = append(b.order, k)
		b.values[k] = Value{}
	}
	return nil
}

// Set assigns a value to a registered key.
func (b *Builder) Set(k Key, v Value) error {
	if _, ok := b.values[k]; !ok {
		if !k.Valid() {
			return unknownKey(k)
		}
		return engine.NewConfigurationError(
			fmt.Sprintf("parameter %q is not registered for %s", k, b.family), nil,
		).WithCode(engine.ErrCodeUnknownParameter).WithResource(string(k))
	}
	if !v.IsSet() {
		b.values[k] = Value{}
		return nil
	}
	if err := check(k, v); err != nil {
		return err
	}
	b.values[k] = v
	return nil
}

// Unset clears the value of a registered key so it is omitted from serialization.
func (b *Builder) Unset(k Key) error {
	return b.Set(k, Value{})
}

// SetQuality assigns the tier's canonical value to every registered
// tier-controlled key. Other keys keep their current value.
func (b *Builder) SetQuality(tier int) error {
	if err := validate.Var(tier, "min=0,max=2"); err != nil {
		return engine.NewValidationError(
			fmt.Sprintf("quality tier must be 0, 1 or 2, got %d", tier), err,
		).WithCode(engine.ErrCodeOutOfRange)
	}
	for _, k := range b.order {
		if presets, ok := tiers[k]; ok {
			b.values[k] = presets[tier]
		}
	}
	b.quality = tier
	return nil
}

// Build freezes the key set and returns an immutable snapshot.
func (b *Builder) Build() (*Set, error) {
	b.frozen = true
	s := &Set{
		family:  b.family,
		order:   make([]Key, len(b.order)),
		values:  make(map[Key]Value, len(b.values)),
		quality: b.quality,
	}
	copy(s.order, b.order)
	for k, v := range b.values {
		s.values[k] = v
	}
	return s, nil
}

// MustBuild is Build for preset construction where no error is possible.
func (b *Builder) MustBuild() *Set {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}

// Set is an immutable parameter set.
type Set struct {
	family  string
	order   []Key
	values  map[Key]Value
	quality int
}

// Family returns the parameter family name.
func (s *Set) Family() string { return s.family }

// Quality returns the last applied tier, or false if none was applied.
func (s *Set) Quality() (int, bool) { return s.quality, s.quality >= 0 }

// Keys returns registered keys in registration order.
func (s *Set) Keys() []Key {
	keys := make([]Key, len(s.order))
	copy(keys, s.order)
	return keys
}

// Registered reports whether k belongs to the set.
func (s *Set) Registered(k Key) bool {
	_, ok := s.values[k]
	return ok
}

// Get returns the value of k. The value may be unset.
func (s *Set) Get(k Key) (Value, error) {
	v, ok := s.values[k]
	if !ok {
		return Value{}, engine.NewConfigurationError(
			fmt.Sprintf("parameter %q is not registered for %s", k, s.family), nil,
		).WithCode(engine.ErrCodeUnknownParameter).WithResource(string(k))
	}
	return v, nil
}

// Builder returns a builder seeded from the set for overrides.
// The key set of the returned builder is frozen.
func (s *Set) Builder() *Builder {
	b := &Builder{
		family:  s.family,
		order:   make([]Key, len(s.order)),
		values:  make(map[Key]Value, len(s.values)),
		quality: s.quality,
		frozen:  true,
	}
	copy(b.order, s.order)
	for k, v := range s.values {
		b.values[k] = v
	}
	return b
}

// With returns a copy of the set with k changed to v.
func (s *Set) With(k Key, v Value) (*Set, error) {
	b := s.Builder()
	if err := b.Set(k, v); err != nil {
		return nil, err
	}
	return b.Build()
}

// Args returns the flag/value arguments in registration order, omitting unset values.
func (s *Set) Args() []string {
	args := make([]string, 0, len(s.order)*2)
	for _, k := range s.order {
		v := s.values[k]
		if !v.IsSet() {
			continue
		}
		switch v.Kind() {
		case KindBool:
			args = append(args, "-"+string(k)+v.String())
		case KindTuple:
			t, _ := v.AsTuple()
			args = append(args, "-"+string(k))
			for _, f := range t {
				args = append(args, formatFloat(f))
			}
		default:
			args = append(args, "-"+string(k), v.String())
		}
	}
	return args
}

// String serializes the set as a flag-value string.
func (s *Set) String() string {
	return strings.Join(s.Args(), " ")
}

// check validates kind, tuple size and range of v for k.
func check(k Key, v Value) error {
	def, ok := Lookup(k)
	if !ok {
		return unknownKey(k)
	}
	if v.Kind() != def.Kind {
		return typeMismatch(k, def.Kind, v.Kind().String())
	}
	if def.Kind == KindTuple {
		t, _ := v.AsTuple()
		if len(t) != def.TupleSize {
			return engine.NewConfigurationError(
				fmt.Sprintf("parameter %q expects %d values, got %d", k, def.TupleSize, len(t)), nil,
			).WithCode(engine.ErrCodeTypeMismatch).WithResource(string(k))
		}
	}
	if def.Rule == "" {
		return nil
	}

	var err error
	switch def.Kind {
	case KindInt:
		n, _ := v.AsInt()
		err = validate.Var(n, def.Rule)
	case KindFloat:
		f, _ := v.AsFloat()
		err = validate.Var(f, def.Rule)
	case KindTuple:
		t, _ := v.AsTuple()
		for _, f := range t {
			if err = validate.Var(f, def.Rule); err != nil {
				break
			}
		}
	}
	if err != nil {
		return engine.NewValidationError(
			fmt.Sprintf("parameter %q value %s violates %s", k, v.String(), def.Rule), err,
		).WithCode(engine.ErrCodeOutOfRange).WithResource(string(k))
	}
	return nil
}

func unknownKey(k Key) error {
	return engine.NewConfigurationError(fmt.Sprintf("unknown parameter %q", k), nil).
		WithCode(engine.ErrCodeUnknownParameter).WithResource(string(k))
}

func typeMismatch(k Key, want Kind, got string) error {
	return engine.NewConfigurationError(
		fmt.Sprintf("parameter %q expects %s, got %s", k, want, got), nil,
	).WithCode(engine.ErrCodeTypeMismatch).WithResource(string(k))
}

func unknownFamily(family string) error {
	return engine.NewConfigurationError(fmt.Sprintf("unknown parameter family %q", family), nil).
		WithCode(engine.ErrCodeUnknownParameter).WithResource(family)
}
