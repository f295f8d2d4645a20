package goSession

// Override transforms a function table. The input is a by-value copy, so an
// override can replace individual funcs and capture the originals without
// mutating the defaults.
type Override[T any] func(T) T

// OverrideBuilder composes overrides in registration order: the first
// override added is applied to the base first, the last one sees the result
// of everything before it.
type OverrideBuilder[T any] struct {
	overrides []Override[T]
}

// NewOverrideBuilder returns an empty builder; Apply on it is the identity.
func NewOverrideBuilder[T any]() *OverrideBuilder[T] {
	return &OverrideBuilder[T]{}
}

// Add appends an override. Nil overrides are ignored.
func (b *OverrideBuilder[T]) Add(override Override[T]) *OverrideBuilder[T] {
	if override != nil {
		b.overrides = append(b.overrides, override)
	}
	return b
}

// Apply runs the composed chain over base and returns the final table.
func (b *OverrideBuilder[T]) Apply(base T) T {
	if b == nil {
		return base
	}
	out := base
	for _, override := range b.overrides {
		out = override(out)
	}
	return out
}
