package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/cagp/internal/property"
	"github.com/joeblew999/cagp/internal/utils"
)

// ReadGeoJSON decodes a FeatureCollection. Features without geometry or an
// OPA id are skipped and counted.
func ReadGeoJSON(r io.Reader) ([]property.Feature, int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, 0, fmt.Errorf("decode feature collection: %w", err)
	}

	var (
		out     []property.Feature
		skipped int
	)
	for _, gf := range fc.Features {
		f, err := property.FromGeoJSON(gf)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, f)
	}
	return out, skipped, nil
}

// shapefileFields maps dBase column names, truncated to ten characters, back
// to attribute names.
var shapefileFields = func() map[string]string {
	attrs := []string{
		property.AttrOPAID, property.AttrAddress, property.AttrOwner1, property.AttrOwner2,
		property.AttrParcelType, property.AttrMarketValue, property.AttrTotalDue,
		property.AttrOpenViolations, property.AttrTreeCanopyGap, property.AttrGunCrimeDensity,
		property.AttrPriorityLevel, property.AttrAccessProcess, property.AttrNeighborhood,
		property.AttrCouncilDistrict, property.AttrZoning, property.AttrRCOInfo,
		property.AttrRCONames, property.AttrSideYard, property.AttrConservatorship,
		property.AttrTacticalUrbanism,
	}
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		m[a[:min(10, len(a))]] = a
	}
	return m
}()

func shapefileField(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if full, ok := shapefileFields[name]; ok {
		return full
	}
	return name
}

// ReadShapefile reads point and polygon parcels from an ESRI shapefile.
// Coordinates must already be WGS84 longitude/latitude.
func ReadShapefile(path string) ([]property.Feature, int, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open shapefile: %w", err)
	}
	defer r.Close()

	fields := r.Fields()
	var (
		out     []property.Feature
		skipped int
	)
	for r.Next() {
		idx, shape := r.Shape()
		geom := shapeGeometry(shape)
		if geom == nil {
			skipped++
			continue
		}

		attrs := make(property.Attributes, len(fields))
		for i, f := range fields {
			v := strings.TrimSpace(r.ReadAttribute(idx, i))
			if v == "" {
				continue
			}
			attrs[shapefileField(f.String())] = v
		}
		id := attrs.String(property.AttrOPAID)
		if id == "" {
			skipped++
			continue
		}
		out = append(out, property.Feature{ID: id, Geometry: geom, Attributes: attrs})
	}
	return out, skipped, nil
}

func shapeGeometry(shape shp.Shape) orb.Geometry {
	switch s := shape.(type) {
	case *shp.Point:
		return orb.Point{s.X, s.Y}
	case *shp.Polygon:
		return polygon(s.Parts, s.Points)
	}
	return nil
}

// polygon splits the flat point list into rings. Shapefile outer rings are
// clockwise and holes counter-clockwise; every clockwise ring starts a new
// polygon.
func polygon(parts []int32, points []shp.Point) orb.Geometry {
	var mp orb.MultiPolygon
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		ring := make(orb.Ring, 0, end-start)
		for _, p := range points[start:end] {
			ring = append(ring, orb.Point{p.X, p.Y})
		}
		if len(ring) < 4 {
			continue
		}
		if ring.Orientation() == orb.CW || len(mp) == 0 {
			mp = append(mp, orb.Polygon{ring})
		} else {
			mp[len(mp)-1] = append(mp[len(mp)-1], ring)
		}
	}
	switch len(mp) {
	case 0:
		return nil
	case 1:
		return mp[0]
	}
	return mp
}

// Import reads path (GeoJSON or shapefile, by extension) into s.
func Import(ctx context.Context, s Store, path string) (int, error) {
	var (
		features []property.Feature
		skipped  int
		err      error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		features, skipped, err = ReadShapefile(path)
	case ".geojson", ".json":
		var f *os.File
		f, err = os.Open(path)
		if err != nil {
			return 0, err
		}
		defer f.Close()
		features, skipped, err = ReadGeoJSON(f)
	default:
		return 0, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return 0, err
	}
	if skipped > 0 {
		utils.Log.WithField("file", path).Warnf("skipped %d features without geometry or %s", skipped, property.AttrOPAID)
	}
	if err := s.Put(ctx, features...); err != nil {
		return 0, err
	}
	return len(features), nil
}
