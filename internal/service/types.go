// Package service contains the map-facing business logic: layer styles,
// source files, the tile archive and tile generation.
package service

// LayerConfig is the style of one map layer drawn from the property tile
// archive. Huma reads the tags for OpenAPI and validation.
type LayerConfig struct {
	ID             string       `json:"id" yaml:"id" doc:"Unique layer identifier" example:"vacant_properties"`
	Name           string       `json:"name" yaml:"name" required:"true" minLength:"1" maxLength:"100" doc:"Display name" example:"Vacant properties"`
	SourceLayer    string       `json:"sourceLayer" yaml:"sourceLayer" required:"true" enum:"property_points,property_polygons" doc:"Layer name within the tile archive"`
	GeomType       string       `json:"geomType" yaml:"geomType" required:"true" enum:"polygon,point" doc:"Geometry type" default:"polygon"`
	MinZoom        int          `json:"minZoom,omitempty" yaml:"minZoom" minimum:"0" maximum:"22" doc:"Zoom at which the layer appears"`
	MaxZoom        int          `json:"maxZoom,omitempty" yaml:"maxZoom" minimum:"0" maximum:"22" doc:"Zoom after which the layer hides"`
	DefaultVisible bool         `json:"defaultVisible" yaml:"defaultVisible" default:"true" doc:"Whether layer is visible by default"`
	Fill           string       `json:"fill,omitempty" yaml:"fill" doc:"Fallback fill color (CSS)" example:"#3388ff"`
	Stroke         string       `json:"stroke,omitempty" yaml:"stroke" doc:"Stroke color (CSS)" example:"#2266cc"`
	Opacity        float64      `json:"opacity,omitempty" yaml:"opacity" minimum:"0" maximum:"1" doc:"Layer opacity (0-1)" example:"0.7"`
	RenderRules    []RenderRule `json:"renderRules,omitempty" yaml:"renderRules" doc:"Conditional styling rules"`
	Legend         []LegendItem `json:"legend,omitempty" yaml:"legend" doc:"Legend entries for this layer"`
}

// RenderRule colors features whose FilterProp equals FilterValue.
type RenderRule struct {
	FilterProp  string  `json:"filterProp" yaml:"filterProp" doc:"Property name to match"`
	FilterValue string  `json:"filterValue" yaml:"filterValue" doc:"Value to match"`
	Fill        string  `json:"fill" yaml:"fill" doc:"Fill color (CSS)"`
	Stroke      string  `json:"stroke,omitempty" yaml:"stroke" doc:"Stroke color (CSS)"`
	Opacity     float64 `json:"opacity,omitempty" yaml:"opacity" doc:"Opacity (0-1)"`
	Radius      float64 `json:"radius,omitempty" yaml:"radius" doc:"Point radius"`
}

// LegendItem defines a legend entry.
type LegendItem struct {
	Label string `json:"label" yaml:"label" doc:"Legend label"`
	Color string `json:"color" yaml:"color" doc:"Legend color (CSS)"`
}

// SourceFile is an importable parcel data file.
type SourceFile struct {
	Name     string `json:"name" doc:"File name" example:"vacant_properties.geojson"`
	Size     string `json:"size" doc:"Human-readable file size" example:"1.2 MB"`
	FileType string `json:"fileType" doc:"File type: GeoJSON or Shapefile" example:"GeoJSON"`
}

// TileFile represents a PMTiles file.
type TileFile struct {
	Name string `json:"name" doc:"PMTiles file name" example:"vacant_properties.pmtiles"`
	Size string `json:"size" doc:"Human-readable file size" example:"5.4 MB"`
}
