// Package attr implements the Attribute tagged union and the per-project
// attribute store. An Attribute holds exactly one of a bool, string,
// number, or an array of Attribute; the store is a linear, name-indexed
// list owned by the project it is attached to.
package attr

import "fmt"

// Kind identifies which variant of Attribute is populated.
type Kind int

const (
	KindBool Kind = iota
	KindString
	KindNumber
	KindArray
)

// Attribute is a tagged union over {bool, string, number, array<Attribute>}.
type Attribute struct {
	Name string
	Kind Kind

	boolValue   bool
	stringValue string
	numberValue float64
	arrayValue  []Attribute
}

// NewBool constructs a boolean Attribute.
func NewBool(name string, v bool) Attribute {
	return Attribute{Name: name, Kind: KindBool, boolValue: v}
}

// NewString constructs a string Attribute.
func NewString(name string, v string) Attribute {
	return Attribute{Name: name, Kind: KindString, stringValue: v}
}

// NewNumber constructs a numeric Attribute.
func NewNumber(name string, v float64) Attribute {
	return Attribute{Name: name, Kind: KindNumber, numberValue: v}
}

// NewArray constructs an array Attribute.
func NewArray(name string, v []Attribute) Attribute {
	return Attribute{Name: name, Kind: KindArray, arrayValue: v}
}

// Bool returns the boolean value, or false if this isn't a bool Attribute.
func (a Attribute) Bool() bool { return a.boolValue }

// String returns the string value; bool and number Attributes are rendered
// with %t and %g, and an array Attribute yields "".
func (a Attribute) String() string {
	switch a.Kind {
	case KindString:
		return a.stringValue
	case KindBool:
		return fmt.Sprintf("%t", a.boolValue)
	case KindNumber:
		return fmt.Sprintf("%g", a.numberValue)
	default:
		return ""
	}
}

// Number returns the numeric value, or 0 if this isn't a number Attribute.
func (a Attribute) Number() float64 { return a.numberValue }

// Array returns the array elements, or nil if this isn't an array Attribute.
func (a Attribute) Array() []Attribute { return a.arrayValue }

// Interface lowers the Attribute to the plain Go value JSON encoding
// expects, recursively for arrays. Backs the driver API's raw-JSON
// attribute accessor.
func (a Attribute) Interface() interface{} {
	switch a.Kind {
	case KindBool:
		return a.boolValue
	case KindString:
		return a.stringValue
	case KindNumber:
		return a.numberValue
	default:
		out := make([]interface{}, len(a.arrayValue))
		for i, elem := range a.arrayValue {
			out[i] = elem.Interface()
		}

		return out
	}
}

// StringSlice renders an array Attribute of strings as a []string,
// coercing non-string elements with their String() form. Used by driver
// accessors like cflags/include/libpath.
func (a Attribute) StringSlice() []string {
	out := make([]string, 0, len(a.arrayValue))
	for _, elem := range a.arrayValue {
		out = append(out, elem.String())
	}

	return out
}

// Store is the linear, name-indexed attribute list attached to a project.
// Lookup is intentionally linear: attribute lists are small (tens of
// entries at most) and built once per project during init/generate.
type Store struct {
	attrs []Attribute
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Get returns the Attribute named name, if present.
func (s *Store) Get(name string) (Attribute, bool) {
	for _, a := range s.attrs {
		if a.Name == name {
			return a, true
		}
	}

	return Attribute{}, false
}

// Set overwrites any existing Attribute with the same name, or appends a new
// one; it never produces duplicates.
func (s *Store) Set(a Attribute) {
	for i, existing := range s.attrs {
		if existing.Name == a.Name {
			s.attrs[i] = a
			return
		}
	}

	s.attrs = append(s.attrs, a)
}

// SetBool is a convenience wrapper around Set(NewBool(...)).
func (s *Store) SetBool(name string, v bool) { s.Set(NewBool(name, v)) }

// SetString is a convenience wrapper around Set(NewString(...)).
func (s *Store) SetString(name string, v string) { s.Set(NewString(name, v)) }

// SetNumber is a convenience wrapper around Set(NewNumber(...)).
func (s *Store) SetNumber(name string, v float64) { s.Set(NewNumber(name, v)) }

// SetArray is a convenience wrapper around Set(NewArray(...)).
func (s *Store) SetArray(name string, v []Attribute) { s.Set(NewArray(name, v)) }

// Bool returns the boolean value of name, or def if absent.
func (s *Store) Bool(name string, def bool) bool {
	if a, ok := s.Get(name); ok {
		return a.Bool()
	}

	return def
}

// StringSlice returns the string-array value of name, or nil if absent.
func (s *Store) StringSlice(name string) []string {
	if a, ok := s.Get(name); ok {
		return a.StringSlice()
	}

	return nil
}

// All returns a copy of every attribute in the store, for diagnostics.
func (s *Store) All() []Attribute {
	out := make([]Attribute, len(s.attrs))
	copy(out, s.attrs)

	return out
}
