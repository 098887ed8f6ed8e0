package metadata

import (
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/tidwall/gjson"
)

var errMalformed = errors.New("malformed location")

// ParseLocation reads a serialized location value. The value is valid JSON
// or a Python dict literal ({'lat': 39.95, 'lng': -75.16}); quoting is
// tokenized, not substituted, so apostrophes inside strings are kept.
// Accepted shapes are {lat,lng}, {latitude,longitude} and
// {coordinates:[lon,lat]}.
func ParseLocation(raw string) (orb.Point, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return orb.Point{}, errMalformed
	}
	doc := raw
	if !gjson.Valid(doc) {
		converted, err := pythonToJSON(raw)
		if err != nil {
			return orb.Point{}, err
		}
		doc = converted
	}
	return pointFrom(gjson.Parse(doc))
}

func pointFrom(r gjson.Result) (orb.Point, error) {
	if !r.IsObject() {
		return orb.Point{}, fmt.Errorf("%w: not an object", errMalformed)
	}
	pairs := [][2]string{{"lat", "lng"}, {"lat", "lon"}, {"latitude", "longitude"}}
	for _, p := range pairs {
		lat, lng := r.Get(p[0]), r.Get(p[1])
		if lat.Exists() && lng.Exists() {
			return point(lng, lat)
		}
	}
	if c := r.Get("coordinates").Array(); len(c) == 2 {
		return point(c[0], c[1])
	}
	return orb.Point{}, fmt.Errorf("%w: no coordinates", errMalformed)
}

func point(lng, lat gjson.Result) (orb.Point, error) {
	x, ok := number(lng)
	if !ok {
		return orb.Point{}, fmt.Errorf("%w: longitude %q", errMalformed, lng.Raw)
	}
	y, ok := number(lat)
	if !ok {
		return orb.Point{}, fmt.Errorf("%w: latitude %q", errMalformed, lat.Raw)
	}
	if x < -180 || x > 180 || y < -90 || y > 90 {
		return orb.Point{}, fmt.Errorf("%w: out of range", errMalformed)
	}
	return orb.Point{x, y}, nil
}

func number(r gjson.Result) (float64, bool) {
	switch r.Type {
	case gjson.Number:
		return r.Num, true
	case gjson.String:
		f := gjson.Parse(strings.TrimSpace(r.Str))
		if f.Type == gjson.Number {
			return f.Num, true
		}
	}
	return 0, false
}

// pythonToJSON rewrites a Python literal (dicts, lists, quoted strings,
// numbers, True/False/None) into JSON.
func pythonToJSON(s string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '\'' || c == '"':
			str, n, err := readString(s[i:])
			if err != nil {
				return "", err
			}
			writeJSONString(&b, str)
			i += n
		case strings.ContainsRune("{}[]:,", rune(c)):
			b.WriteByte(c)
			i++
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
			j := i + 1
			for j < len(s) && strings.ContainsRune("0123456789.eE+-", rune(s[j])) {
				j++
			}
			num := strings.TrimPrefix(s[i:j], "+")
			if !gjson.Valid(num) {
				return "", fmt.Errorf("%w: number %q", errMalformed, s[i:j])
			}
			b.WriteString(num)
			i = j
		default:
			j := i
			for j < len(s) && (s[j] >= 'A' && s[j] <= 'Z' || s[j] >= 'a' && s[j] <= 'z') {
				j++
			}
			switch s[i:j] {
			case "True":
				b.WriteString("true")
			case "False":
				b.WriteString("false")
			case "None":
				b.WriteString("null")
			default:
				return "", fmt.Errorf("%w: unexpected %q at %d", errMalformed, s[i:max(j, i+1)], i)
			}
			i = j
		}
	}
	out := b.String()
	if !gjson.Valid(out) {
		return "", fmt.Errorf("%w: not a literal", errMalformed)
	}
	return out, nil
}

// readString reads a quoted Python string starting at s[0] and returns its
// value and the number of bytes consumed.
func readString(s string) (string, int, error) {
	quote := s[0]
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch c {
		case quote:
			return b.String(), i + 1, nil
		case '\\':
			if i+1 >= len(s) {
				return "", 0, fmt.Errorf("%w: dangling escape", errMalformed)
			}
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte(s[i])
			}
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, fmt.Errorf("%w: unterminated string", errMalformed)
}

func writeJSONString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			if r < 0x20 {
				fmt.Fprintf(b, `\u%04x`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
}
