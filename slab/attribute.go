package slab

import "fmt"

// Attribute describes one kind of per-object state stored in its own slab.
type Attribute struct {
	// Name identifies the attribute inside a schema.
	Name string
	// Components is the number of float32 values per slot.
	Components int
	// Dummy is the inert record written into padding slots and into freshly
	// created slots. len(Dummy) must equal Components.
	Dummy []float32
}

// Validate checks the attribute definition.
func (a Attribute) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidAttribute)
	}
	if a.Components <= 0 {
		return fmt.Errorf("%w: %q has %d components", ErrInvalidAttribute, a.Name, a.Components)
	}
	if len(a.Dummy) != a.Components {
		return fmt.Errorf("%w: %q dummy record has %d values, want %d", ErrInvalidAttribute, a.Name, len(a.Dummy), a.Components)
	}
	return nil
}

// Common attributes of scene objects.
var (
	Position       = Attribute{Name: "position", Components: 3, Dummy: []float32{0, 0, 0}}
	Orientation    = Attribute{Name: "orientation", Components: 4, Dummy: []float32{0, 0, 0, 1}}
	Scale          = Attribute{Name: "scale", Components: 3, Dummy: []float32{1, 1, 1}}
	Radius         = Attribute{Name: "radius", Components: 1, Dummy: []float32{0}}
	VisibilityMask = Attribute{Name: "visibility", Components: 1, Dummy: []float32{0}}
)

// Transform is the default schema: position, orientation and scale.
func Transform() Schema {
	return Schema{Position, Orientation, Scale}
}

// Schema is the ordered list of attributes a pool stores per slot.
type Schema []Attribute

// Validate checks every attribute and rejects duplicate names.
func (s Schema) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("%w: empty schema", ErrInvalidAttribute)
	}
	seen := make(map[string]struct{}, len(s))
	for _, a := range s {
		if err := a.Validate(); err != nil {
			return err
		}
		if _, ok := seen[a.Name]; ok {
			return fmt.Errorf("%w: duplicate attribute %q", ErrInvalidAttribute, a.Name)
		}
		seen[a.Name] = struct{}{}
	}
	return nil
}

// IndexOf returns the position of the named attribute, or -1.
func (s Schema) IndexOf(name string) int {
	for i, a := range s {
		if a.Name == name {
			return i
		}
	}
	return -1
}

// Equal reports whether two schemas describe the same slot layout.
func (s Schema) Equal(o Schema) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i].Name != o[i].Name || s[i].Components != o[i].Components {
			return false
		}
	}
	return true
}

// SlotFloats returns the number of float32 values one slot occupies across
// all attributes.
func (s Schema) SlotFloats() int {
	n := 0
	for _, a := range s {
		n += a.Components
	}
	return n
}
