package tiler

import (
	"bytes"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/maptile"

	"github.com/joeblew999/cagp/internal/pmtiles"
	"github.com/joeblew999/cagp/internal/property"
)

func parcel(id string, x, y float64) property.Feature {
	d := 0.0002
	return property.Feature{
		ID: id,
		Geometry: orb.Polygon{orb.Ring{
			{x, y}, {x + d, y}, {x + d, y + d}, {x, y + d}, {x, y},
		}},
		Attributes: property.Attributes{property.AttrOPAID: id, property.AttrPriorityLevel: "High"},
	}
}

func TestBuild(t *testing.T) {
	features := []property.Feature{
		parcel("100000001", -75.1652, 39.9526),
		parcel("100000002", -75.1600, 39.9600),
		{ID: "100000003", Geometry: orb.Point{-75.1700, 39.9500}, Attributes: property.Attributes{property.AttrOPAID: "100000003"}},
	}

	var buf bytes.Buffer
	stats, err := Build(features, &buf, Config{MinZoom: 12, MaxZoom: 14})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if stats.Features != 3 || stats.Tiles == 0 {
		t.Fatalf("stats=%+v", stats)
	}

	a, err := pmtiles.NewArchive(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("NewArchive: %v", err)
	}
	if a.Header.MinZoom != 12 || a.Header.MaxZoom != 14 {
		t.Errorf("zooms=%d..%d", a.Header.MinZoom, a.Header.MaxZoom)
	}
	if b := a.Header.Bound(); !b.Contains(orb.Point{-75.1652, 39.9526}) {
		t.Errorf("bound=%v", b)
	}
	if names := a.LayerNames(); len(names) != 2 || names[0] != PointsLayer || names[1] != PolygonsLayer {
		t.Errorf("layers=%v", names)
	}

	tile := maptile.At(orb.Point{-75.1651, 39.9527}, 14)
	data, ok, err := a.Tile(14, tile.X, tile.Y)
	if err != nil || !ok {
		t.Fatalf("Tile ok=%v err=%v", ok, err)
	}
	layers, err := mvt.UnmarshalGzipped(data)
	if err != nil {
		t.Fatalf("decode tile: %v", err)
	}
	got := map[string]int{}
	for _, l := range layers {
		got[l.Name] = len(l.Features)
	}
	if got[PointsLayer] == 0 || got[PolygonsLayer] == 0 {
		t.Errorf("layer features=%v", got)
	}
}

func TestBuildEmpty(t *testing.T) {
	if _, err := Build(nil, &bytes.Buffer{}, DefaultConfig); err == nil {
		t.Error("expected error")
	}
}

func TestConfigNormalized(t *testing.T) {
	c := Config{MinZoom: 16, MaxZoom: 20}.normalized()
	if c.MaxZoom != 14 || c.MinZoom != 14 || c.Name != DefaultConfig.Name {
		t.Errorf("normalized=%+v", c)
	}
}
