// Package tiler builds the property vector-tile archive: a PMTiles file
// with a point layer (one centroid per property) and a polygon layer
// (parcel outlines) that share the same attribute schema.
package tiler

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"

	"github.com/joeblew999/cagp/internal/pmtiles"
	"github.com/joeblew999/cagp/internal/property"
)

// Layer names inside every tile.
const (
	PointsLayer   = "property_points"
	PolygonsLayer = "property_polygons"
)

// Config controls the zoom range and archive name.
type Config struct {
	Name    string
	MinZoom int
	MaxZoom int
}

// DefaultConfig covers city-wide to parcel-level zooms.
var DefaultConfig = Config{Name: "vacant_properties", MinZoom: 10, MaxZoom: 14}

func (c Config) normalized() Config {
	if c.Name == "" {
		c.Name = DefaultConfig.Name
	}
	if c.MinZoom < 0 {
		c.MinZoom = 0
	}
	if c.MaxZoom <= 0 || c.MaxZoom > 14 {
		c.MaxZoom = 14
	}
	if c.MinZoom > c.MaxZoom {
		c.MinZoom = c.MaxZoom
	}
	return c
}

// Stats describes a built archive.
type Stats struct {
	Tiles    int
	Features int
	Bound    orb.Bound
}

// BuildFile writes the archive for features to path.
func BuildFile(features []property.Feature, path string, cfg Config) (Stats, error) {
	f, err := os.Create(path)
	if err != nil {
		return Stats{}, err
	}
	stats, err := Build(features, f, cfg)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return stats, err
}

// Build encodes features into a PMTiles archive written to w.
func Build(features []property.Feature, w io.Writer, cfg Config) (Stats, error) {
	cfg = cfg.normalized()

	points := geojson.NewFeatureCollection()
	polygons := geojson.NewFeatureCollection()
	var (
		bound orb.Bound
		seen  bool
	)
	for _, f := range features {
		if f.Geometry == nil {
			continue
		}
		if b := f.Geometry.Bound(); seen {
			bound = bound.Union(b)
		} else {
			bound, seen = b, true
		}
		points.Append(tileFeature(f, f.Centroid()))
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
			polygons.Append(tileFeature(f, f.Geometry))
		}
	}

	if !seen {
		return Stats{}, fmt.Errorf("no features to tile")
	}

	tiles := make(map[maptile.Tile][]byte)
	for z := cfg.MinZoom; z <= cfg.MaxZoom; z++ {
		for tile, data := range generateZoomLevel(points, polygons, maptile.Zoom(z)) {
			tiles[tile] = data
		}
	}

	if err := writePMTiles(w, tiles, bound, cfg); err != nil {
		return Stats{}, err
	}
	return Stats{Tiles: len(tiles), Features: len(points.Features), Bound: bound}, nil
}

func tileFeature(f property.Feature, g orb.Geometry) *geojson.Feature {
	gf := geojson.NewFeature(g)
	if id, err := strconv.ParseUint(f.ID, 10, 64); err == nil {
		gf.ID = id
	}
	for k, v := range f.Attributes {
		gf.Properties[k] = v
	}
	return gf
}

// generateZoomLevel creates MVT tiles for a specific zoom level.
func generateZoomLevel(points, polygons *geojson.FeatureCollection, zoom maptile.Zoom) map[maptile.Tile][]byte {
	byTile := make(map[maptile.Tile][2][]*geojson.Feature)
	for li, fc := range []*geojson.FeatureCollection{points, polygons} {
		for _, f := range fc.Features {
			for _, tile := range tilesInBounds(f.Geometry.Bound(), zoom) {
				layers := byTile[tile]
				layers[li] = append(layers[li], f)
				byTile[tile] = layers
			}
		}
	}

	result := make(map[maptile.Tile][]byte)
	for tile, layers := range byTile {
		if data := createMVT(tile, layers); len(data) > 0 {
			result[tile] = data
		}
	}
	return result
}

// createMVT encodes both layers of one tile.
func createMVT(tile maptile.Tile, features [2][]*geojson.Feature) []byte {
	tileBound := tile.Bound()
	var layers mvt.Layers
	for i, name := range []string{PointsLayer, PolygonsLayer} {
		fc := geojson.NewFeatureCollection()
		for _, f := range features[i] {
			if !geometryIntersectsTile(f.Geometry, tileBound) {
				continue
			}
			// Clip and ProjectToTile mutate geometry in place.
			g := cloneGeometry(f.Geometry)
			if g == nil {
				continue
			}
			clone := geojson.NewFeature(g)
			clone.ID = f.ID
			for k, v := range f.Properties {
				clone.Properties[k] = v
			}
			fc.Append(clone)
		}
		if len(fc.Features) == 0 {
			continue
		}

		layer := mvt.NewLayer(name, fc)
		if epsilon := simplifyEpsilon(tile.Z); epsilon > 0 && name == PolygonsLayer {
			layer.Simplify(simplify.DouglasPeucker(epsilon))
		}
		layer.Clip(tileBound)
		layer.ProjectToTile(tile)
		layer.RemoveEmpty(0.5, 0.5)
		if len(layer.Features) > 0 {
			layers = append(layers, layer)
		}
	}
	if len(layers) == 0 {
		return nil
	}

	data, err := mvt.MarshalGzipped(layers)
	if err != nil {
		return nil
	}
	return data
}

// geometryIntersectsTile checks if a geometry truly intersects a tile.
func geometryIntersectsTile(geom orb.Geometry, tileBound orb.Bound) bool {
	if !geom.Bound().Intersects(tileBound) {
		return false
	}

	switch g := geom.(type) {
	case orb.Point:
		return tileBound.Contains(g)
	case orb.Polygon:
		for _, ring := range g {
			for _, p := range ring {
				if tileBound.Contains(p) {
					return true
				}
			}
		}
		corners := []orb.Point{
			tileBound.Min,
			{tileBound.Max[0], tileBound.Min[1]},
			tileBound.Max,
			{tileBound.Min[0], tileBound.Max[1]},
			tileBound.Center(),
		}
		for _, p := range corners {
			if planar.PolygonContains(g, p) {
				return true
			}
		}
		return false
	case orb.MultiPolygon:
		for _, poly := range g {
			if geometryIntersectsTile(poly, tileBound) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// tilesInBounds lists the tiles at zoom covering bounds. Tile Y grows
// southward, so the corners are taken from the max latitude first.
func tilesInBounds(bounds orb.Bound, zoom maptile.Zoom) []maptile.Tile {
	nw := maptile.At(orb.Point{bounds.Min[0], bounds.Max[1]}, zoom)
	se := maptile.At(orb.Point{bounds.Max[0], bounds.Min[1]}, zoom)

	tiles := make([]maptile.Tile, 0, int(se.X-nw.X+1)*int(se.Y-nw.Y+1))
	for x := nw.X; x <= se.X; x++ {
		for y := nw.Y; y <= se.Y; y++ {
			tiles = append(tiles, maptile.New(x, y, zoom))
		}
	}
	return tiles
}

// simplifyEpsilon returns the simplification tolerance for a zoom level.
// Parcels are a few meters across (~0.0001 degrees), so tolerances stay
// well below that at parcel-level zooms.
func simplifyEpsilon(zoom maptile.Zoom) float64 {
	switch {
	case zoom >= 14:
		return 0
	case zoom >= 12:
		return 0.000005
	default:
		return 0.00002
	}
}

// cloneGeometry creates a deep copy of point and polygon geometry.
func cloneGeometry(g orb.Geometry) orb.Geometry {
	switch geom := g.(type) {
	case orb.Point:
		return orb.Point{geom[0], geom[1]}
	case orb.Polygon:
		return clonePolygon(geom)
	case orb.MultiPolygon:
		clone := make(orb.MultiPolygon, len(geom))
		for i, poly := range geom {
			clone[i] = clonePolygon(poly)
		}
		return clone
	}
	return nil
}

func clonePolygon(p orb.Polygon) orb.Polygon {
	clone := make(orb.Polygon, len(p))
	for i, ring := range p {
		clone[i] = append(orb.Ring(nil), ring...)
	}
	return clone
}

// writePMTiles writes tiles as a clustered PMTiles v3 archive with a single
// root directory.
func writePMTiles(w io.Writer, tiles map[maptile.Tile][]byte, bound orb.Bound, cfg Config) error {
	if len(tiles) == 0 {
		return fmt.Errorf("no tiles to write")
	}

	ids := make(map[uint64]maptile.Tile, len(tiles))
	for t := range tiles {
		ids[pmtiles.ZxyToID(uint8(t.Z), t.X, t.Y)] = t
	}
	order := slices.Sorted(maps.Keys(ids))

	entries := make([]pmtiles.EntryV3, 0, len(order))
	var tileData bytes.Buffer
	for _, id := range order {
		data := tiles[ids[id]]
		entries = append(entries, pmtiles.EntryV3{TileID: id, Offset: uint64(tileData.Len()), Length: uint32(len(data)), RunLength: 1})
		tileData.Write(data)
	}

	fields := map[string]string{}
	for _, attr := range []string{
		property.AttrOPAID, property.AttrAddress, property.AttrPriorityLevel,
		property.AttrParcelType, property.AttrMarketValue, property.AttrTotalDue,
		property.AttrAccessProcess, property.AttrNeighborhood, property.AttrCouncilDistrict,
		property.AttrRCONames,
	} {
		fields[attr] = "String"
	}
	layerMeta := func(id string) map[string]any {
		return map[string]any{"id": id, "fields": fields, "minzoom": cfg.MinZoom, "maxzoom": cfg.MaxZoom}
	}
	metadata := map[string]any{
		"name":          cfg.Name,
		"format":        "pbf",
		"compression":   "gzip",
		"minzoom":       cfg.MinZoom,
		"maxzoom":       cfg.MaxZoom,
		"vector_layers": []any{layerMeta(PointsLayer), layerMeta(PolygonsLayer)},
	}
	metadataBytes, err := pmtiles.SerializeMetadata(metadata, pmtiles.Gzip)
	if err != nil {
		return fmt.Errorf("serializing metadata: %w", err)
	}
	rootDirBytes, err := pmtiles.SerializeEntries(entries, pmtiles.Gzip)
	if err != nil {
		return fmt.Errorf("serializing directory: %w", err)
	}

	rootDirOffset := uint64(pmtiles.HeaderV3LenBytes)
	metadataOffset := rootDirOffset + uint64(len(rootDirBytes))
	tileDataOffset := metadataOffset + uint64(len(metadataBytes))

	center := bound.Center()
	header := pmtiles.HeaderV3{
		SpecVersion:         3,
		RootOffset:          rootDirOffset,
		RootLength:          uint64(len(rootDirBytes)),
		MetadataOffset:      metadataOffset,
		MetadataLength:      uint64(len(metadataBytes)),
		TileDataOffset:      tileDataOffset,
		TileDataLength:      uint64(tileData.Len()),
		AddressedTilesCount: uint64(len(entries)),
		TileEntriesCount:    uint64(len(entries)),
		TileContentsCount:   uint64(len(entries)),
		Clustered:           true,
		InternalCompression: pmtiles.Gzip,
		TileCompression:     pmtiles.Gzip,
		TileType:            pmtiles.Mvt,
		MinZoom:             uint8(cfg.MinZoom),
		MaxZoom:             uint8(cfg.MaxZoom),
		MinLonE7:            pmtiles.E7(bound.Min[0]),
		MinLatE7:            pmtiles.E7(bound.Min[1]),
		MaxLonE7:            pmtiles.E7(bound.Max[0]),
		MaxLatE7:            pmtiles.E7(bound.Max[1]),
		CenterZoom:          uint8(cfg.MinZoom + (cfg.MaxZoom-cfg.MinZoom)/2),
		CenterLonE7:         pmtiles.E7(center[0]),
		CenterLatE7:         pmtiles.E7(center[1]),
	}

	for _, part := range [][]byte{pmtiles.SerializeHeader(header), rootDirBytes, metadataBytes, tileData.Bytes()} {
		if _, err := w.Write(part); err != nil {
			return err
		}
	}
	return nil
}
