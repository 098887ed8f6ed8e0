package filter

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/joeblew999/cagp/internal/property"
)

// Expression operators. The names and argument shapes follow the MapLibre
// style-spec expression language so an Expr can be handed to the map
// widget's setFilter unchanged.
const (
	OpAll      = "all"
	OpAny      = "any"
	OpEq       = "=="
	OpIn       = "in"
	OpGet      = "get"
	OpLiteral  = "literal"
	OpToString = "to-string"
	OpToNumber = "to-number"
	OpGTE      = ">="
	OpLTE      = "<="
)

// Expr is one node of a match expression. Args hold nested Exprs, strings,
// float64s or, for literals, a []string.
type Expr struct {
	Op   string
	Args []any
}

// MatchAll is the expression for an empty filter state.
var MatchAll = Expr{Op: OpAll}

// MatchNone never matches. It is emitted when a discrete selection has been
// cleared to zero values.
var MatchNone = Expr{Op: OpEq, Args: []any{float64(1), float64(0)}}

func get(attr string) Expr { return Expr{Op: OpGet, Args: []any{attr}} }

func literal(values []string) Expr {
	return Expr{Op: OpLiteral, Args: []any{slices.Clone(values)}}
}

// Compile turns a filter state into a match expression: AND across
// attributes, OR within an attribute's accepted values. Attributes are
// visited in sorted order so equal states compile to identical trees.
func Compile(s State) Expr {
	for _, sel := range s {
		if sel.Empty() {
			return MatchNone
		}
	}

	var clauses []any
	for _, attr := range s.Attributes() {
		sel := s[attr]
		switch sel.Kind {
		case property.KindRange:
			clauses = append(clauses, rangeClauses(attr, sel.Range)...)
		default:
			clauses = append(clauses, valuesClause(attr, sel))
		}
	}
	return Expr{Op: OpAll, Args: clauses}
}

func valuesClause(attr string, sel Selection) Expr {
	field := Expr{Op: OpToString, Args: []any{get(attr)}}
	if !sel.UseIndexOf {
		return Expr{Op: OpIn, Args: []any{field, literal(sel.Values)}}
	}
	anyOf := make([]any, 0, len(sel.Values))
	for _, token := range sel.Values {
		anyOf = append(anyOf, Expr{Op: OpIn, Args: []any{token, field}})
	}
	return Expr{Op: OpAny, Args: anyOf}
}

// rangeClauses drops bounds that do not parse, and the whole range when
// min > max, so bad input widens the result instead of blanking the map.
func rangeClauses(attr string, r *Range) []any {
	if r == nil {
		return nil
	}
	minV, minOK := parseBound(r.Min)
	maxV, maxOK := parseBound(r.Max)
	if minOK && maxOK && minV > maxV {
		return nil
	}
	field := Expr{Op: OpToNumber, Args: []any{get(attr)}}
	var out []any
	if minOK {
		out = append(out, Expr{Op: OpGTE, Args: []any{field, minV}})
	}
	if maxOK {
		out = append(out, Expr{Op: OpLTE, Args: []any{field, maxV}})
	}
	return out
}

func parseBound(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	s = strings.TrimPrefix(s, "$")
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// MarshalJSON renders the expression in array form, e.g.
// ["in", ["to-string", ["get", "parcel_type"]], ["literal", ["Land"]]].
func (e Expr) MarshalJSON() ([]byte, error) {
	arr := make([]any, 0, len(e.Args)+1)
	arr = append(arr, e.Op)
	arr = append(arr, e.Args...)
	return json.Marshal(arr)
}

// UnmarshalJSON parses the array form produced by MarshalJSON.
func (e *Expr) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return fmt.Errorf("empty expression")
	}
	if err := json.Unmarshal(raw[0], &e.Op); err != nil {
		return fmt.Errorf("expression operator: %w", err)
	}
	e.Args = nil
	for _, r := range raw[1:] {
		arg, err := decodeArg(e.Op, r)
		if err != nil {
			return err
		}
		e.Args = append(e.Args, arg)
	}
	return nil
}

func decodeArg(op string, r json.RawMessage) (any, error) {
	trimmed := strings.TrimSpace(string(r))
	switch {
	case strings.HasPrefix(trimmed, "["):
		if op == OpLiteral {
			var values []string
			if err := json.Unmarshal(r, &values); err != nil {
				return nil, fmt.Errorf("literal: %w", err)
			}
			return values, nil
		}
		var sub Expr
		if err := sub.UnmarshalJSON(r); err != nil {
			return nil, err
		}
		return sub, nil
	case strings.HasPrefix(trimmed, `"`):
		var s string
		err := json.Unmarshal(r, &s)
		return s, err
	default:
		var f float64
		if err := json.Unmarshal(r, &f); err != nil {
			return nil, fmt.Errorf("unsupported expression argument %s", trimmed)
		}
		return f, nil
	}
}

// Match evaluates the expression against a feature's attributes with the
// map engine's semantics: "in" tests list membership for literal lists and
// substring containment for strings; to-number of a non-number fails the
// comparison.
func (e Expr) Match(attrs property.Attributes) bool {
	return truthy(e.eval(attrs))
}

func truthy(v any) bool {
	b, _ := v.(bool)
	return b
}

func (e Expr) eval(attrs property.Attributes) any {
	switch e.Op {
	case OpAll:
		for _, a := range e.Args {
			if !truthy(evalArg(a, attrs)) {
				return false
			}
		}
		return true
	case OpAny:
		for _, a := range e.Args {
			if truthy(evalArg(a, attrs)) {
				return true
			}
		}
		return false
	case OpGet:
		if len(e.Args) != 1 {
			return nil
		}
		name, _ := e.Args[0].(string)
		return attrs[name]
	case OpLiteral:
		if len(e.Args) != 1 {
			return nil
		}
		return e.Args[0]
	case OpToString:
		if len(e.Args) != 1 {
			return ""
		}
		return property.Stringify(evalArg(e.Args[0], attrs))
	case OpToNumber:
		if len(e.Args) != 1 {
			return math.NaN()
		}
		return toNumber(evalArg(e.Args[0], attrs))
	case OpEq:
		if len(e.Args) != 2 {
			return false
		}
		return equal(evalArg(e.Args[0], attrs), evalArg(e.Args[1], attrs))
	case OpIn:
		if len(e.Args) != 2 {
			return false
		}
		return contains(evalArg(e.Args[1], attrs), evalArg(e.Args[0], attrs))
	case OpGTE, OpLTE:
		if len(e.Args) != 2 {
			return false
		}
		l := toNumber(evalArg(e.Args[0], attrs))
		r := toNumber(evalArg(e.Args[1], attrs))
		if math.IsNaN(l) || math.IsNaN(r) {
			return false
		}
		if e.Op == OpGTE {
			return l >= r
		}
		return l <= r
	}
	return false
}

func evalArg(a any, attrs property.Attributes) any {
	if x, ok := a.(Expr); ok {
		return x.eval(attrs)
	}
	return a
}

func contains(haystack, needle any) bool {
	n := property.Stringify(needle)
	switch h := haystack.(type) {
	case []string:
		return slices.Contains(h, n)
	case string:
		return strings.Contains(h, n)
	}
	return false
}

func equal(a, b any) bool {
	af, aNum := a.(float64)
	bf, bNum := b.(float64)
	if aNum && bNum {
		return af == bf
	}
	return property.Stringify(a) == property.Stringify(b) && aNum == bNum
}

func toNumber(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err == nil {
			return f
		}
	}
	return math.NaN()
}
