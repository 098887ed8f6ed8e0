// Package filter holds the property filter state and compiles it into the
// declarative match expression understood by the map layer.
package filter

import (
	"maps"
	"slices"

	"github.com/joeblew999/cagp/internal/property"
)

// Range is a numeric bound pair. Bounds are kept as the raw input strings;
// interpretation happens in Compile.
type Range struct {
	Min string `json:"min,omitempty"`
	Max string `json:"max,omitempty"`
}

// Selection is the filter for one attribute: either a discrete value list or
// a numeric range, never both.
type Selection struct {
	Kind       property.Kind `json:"kind"`
	Values     []string      `json:"values,omitempty"`
	Range      *Range        `json:"range,omitempty"`
	UseIndexOf bool          `json:"useIndexOf,omitempty"`
}

// Empty reports whether a discrete selection accepts nothing.
func (s Selection) Empty() bool {
	return s.Kind == property.KindValues && len(s.Values) == 0
}

// State maps attribute names to their selection. A missing key leaves the
// attribute unconstrained.
type State map[string]Selection

// Clone returns a deep copy.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, sel := range s {
		c := sel
		if sel.Values != nil {
			c.Values = slices.Clone(sel.Values)
		}
		if sel.Range != nil {
			r := *sel.Range
			c.Range = &r
		}
		out[k] = c
	}
	return out
}

// Attributes returns the constrained attribute names in sorted order.
func (s State) Attributes() []string {
	return slices.Sorted(maps.Keys(s))
}

// Action is a filter state mutation.
type Action interface {
	isAction()
}

// RangeUpdate carries the bounds to change. A nil bound keeps the previous
// value of a range selection on the same attribute.
type RangeUpdate struct {
	Min *string `json:"min,omitempty"`
	Max *string `json:"max,omitempty"`
}

// SetDimensions replaces the selection for one attribute. Exactly one of
// Values or Range is used; Range wins when both are set.
type SetDimensions struct {
	Attribute  string
	Values     []string
	Range      *RangeUpdate
	UseIndexOf bool
}

// ClearDimensions removes every selection.
type ClearDimensions struct{}

func (SetDimensions) isAction()   {}
func (ClearDimensions) isAction() {}

// Reduce applies an action to a state and returns the new state. The input
// state is never modified.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case SetDimensions:
		next := s.Clone()
		sel := a.selection(s[a.Attribute])
		if sel.unbounded() {
			delete(next, a.Attribute)
		} else {
			next[a.Attribute] = sel
		}
		return next
	case ClearDimensions:
		return State{}
	}
	return s
}

// unbounded reports a range with neither bound, which constrains nothing.
func (s Selection) unbounded() bool {
	return s.Kind == property.KindRange && s.Range != nil && s.Range.Min == "" && s.Range.Max == ""
}

func (a SetDimensions) selection(prev Selection) Selection {
	if a.Range != nil {
		r := Range{}
		if prev.Kind == property.KindRange && prev.Range != nil {
			r = *prev.Range
		}
		if a.Range.Min != nil {
			r.Min = *a.Range.Min
		}
		if a.Range.Max != nil {
			r.Max = *a.Range.Max
		}
		return Selection{Kind: property.KindRange, Range: &r, UseIndexOf: a.UseIndexOf}
	}
	values := slices.Clone(a.Values)
	if values == nil {
		values = []string{}
	}
	return Selection{Kind: property.KindValues, Values: values, UseIndexOf: a.UseIndexOf}
}
