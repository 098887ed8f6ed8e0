// Package property defines the vacant-property records served by the finder
// and the attribute schema the filter panel works against.
package property

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Attribute names as they appear in the tile source.
const (
	AttrOPAID            = "opa_id"
	AttrAddress          = "address"
	AttrOwner1           = "owner_1"
	AttrOwner2           = "owner_2"
	AttrParcelType       = "parcel_type"
	AttrMarketValue      = "market_value"
	AttrTotalDue         = "total_due"
	AttrOpenViolations   = "open_violations_past_year"
	AttrTreeCanopyGap    = "tree_canopy_gap"
	AttrGunCrimeDensity  = "gun_crimes_density_label"
	AttrPriorityLevel    = "priority_level"
	AttrAccessProcess    = "access_process"
	AttrNeighborhood     = "neighborhood"
	AttrCouncilDistrict  = "council_district"
	AttrZoning           = "zoning_base_district"
	AttrRCOInfo          = "rco_info"
	AttrRCONames         = "rco_names"
	AttrSideYard         = "side_yard_eligible"
	AttrConservatorship  = "conservatorship_eligible"
	AttrTacticalUrbanism = "tactical_urbanism"
)

// Attributes is the read-only attribute bag of a feature.
type Attributes map[string]any

// String returns the attribute rendered as a string, or "" when absent.
func (a Attributes) String(key string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return ""
	}
	return Stringify(v)
}

// Number returns the attribute as a float64. ok is false when the attribute
// is absent or not numeric.
func (a Attributes) Number(key string) (float64, bool) {
	v, ok := a[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// Bool reports whether the attribute is truthy ("Y", "Yes", "true", true, 1).
func (a Attributes) Bool(key string) bool {
	switch v := a[key].(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case int:
		return v != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "y", "yes", "true", "1":
			return true
		}
	}
	return false
}

// Stringify renders an attribute value the way the map engine's to-string
// coercion does: integral floats lose their fractional part.
func Stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

// Feature is a single vacant property as delivered by the tile source.
type Feature struct {
	ID         string       `json:"id"`
	Geometry   orb.Geometry `json:"-"`
	Attributes Attributes   `json:"properties"`
}

// Centroid returns a representative point for the feature's geometry.
func (f Feature) Centroid() orb.Point {
	if f.Geometry == nil {
		return orb.Point{}
	}
	if p, ok := f.Geometry.(orb.Point); ok {
		return p
	}
	return f.Geometry.Bound().Center()
}

// Address returns the street address attribute.
func (f Feature) Address() string { return f.Attributes.String(AttrAddress) }

// Priority returns the computed priority level.
func (f Feature) Priority() string { return f.Attributes.String(AttrPriorityLevel) }

// FromGeoJSON converts a GeoJSON feature. The OPA id is taken from the
// opa_id property, falling back to the feature id.
func FromGeoJSON(gf *geojson.Feature) (Feature, error) {
	if gf == nil || gf.Geometry == nil {
		return Feature{}, fmt.Errorf("feature has no geometry")
	}
	attrs := Attributes(gf.Properties.Clone())
	id := attrs.String(AttrOPAID)
	if id == "" && gf.ID != nil {
		id = Stringify(gf.ID)
		attrs[AttrOPAID] = id
	}
	if id == "" {
		return Feature{}, fmt.Errorf("feature has no %s", AttrOPAID)
	}
	return Feature{ID: id, Geometry: gf.Geometry, Attributes: attrs}, nil
}

// GeoJSON converts the feature back to a GeoJSON feature.
func (f Feature) GeoJSON() *geojson.Feature {
	gf := geojson.NewFeature(f.Geometry)
	gf.ID = f.ID
	for k, v := range f.Attributes {
		gf.Properties[k] = v
	}
	return gf
}
