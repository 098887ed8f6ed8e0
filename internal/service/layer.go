package service

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/joeblew999/cagp/internal/property"
)

// Priority colors shared by both property layers.
var priorityColors = []struct{ Level, Color string }{
	{"High", "#dc2626"},
	{"Medium", "#f97316"},
	{"Low", "#facc15"},
}

func priorityRules(radius float64) ([]RenderRule, []LegendItem) {
	var rules []RenderRule
	var legend []LegendItem
	for _, p := range priorityColors {
		rules = append(rules, RenderRule{
			FilterProp: property.AttrPriorityLevel, FilterValue: p.Level, Fill: p.Color, Radius: radius,
		})
		legend = append(legend, LegendItem{Label: p.Level + " priority", Color: p.Color})
	}
	return rules, legend
}

// DefaultLayers are the point layer shown when zoomed out and the parcel
// polygon layer shown when zoomed in.
func DefaultLayers() []LayerConfig {
	pointRules, legend := priorityRules(4)
	polyRules, _ := priorityRules(0)
	return []LayerConfig{
		{
			ID: "vacant_properties_points", Name: "Vacant properties", SourceLayer: "property_points",
			GeomType: "point", MaxZoom: 13, DefaultVisible: true, Fill: "#3388ff", Stroke: "#ffffff",
			Opacity: 0.9, RenderRules: pointRules, Legend: legend,
		},
		{
			ID: "vacant_properties_polygons", Name: "Vacant parcels", SourceLayer: "property_polygons",
			GeomType: "polygon", MinZoom: 13, DefaultVisible: true, Fill: "#3388ff", Stroke: "#1f2937",
			Opacity: 0.7, RenderRules: polyRules, Legend: legend,
		},
	}
}

// LayerService manages map layer styles, persisted as layers.yaml.
type LayerService struct {
	dataDir string
	layers  map[string]LayerConfig
	mu      sync.RWMutex
}

// NewLayerService loads layers.yaml from dataDir, falling back to
// DefaultLayers.
func NewLayerService(dataDir string) *LayerService {
	s := &LayerService{
		dataDir: dataDir,
		layers:  make(map[string]LayerConfig),
	}
	if !s.loadFromDisk() {
		for _, l := range DefaultLayers() {
			s.layers[l.ID] = l
		}
	}
	return s
}

// List returns all layers ordered by ID.
func (s *LayerService) List() []LayerConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]LayerConfig, 0, len(s.layers))
	for _, v := range s.layers {
		result = append(result, v)
	}
	slices.SortFunc(result, func(a, b LayerConfig) int { return strings.Compare(a.ID, b.ID) })
	return result
}

// Get returns a layer by ID.
func (s *LayerService) Get(id string) (LayerConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	layer, ok := s.layers[id]
	return layer, ok
}

// Update replaces a layer configuration by ID.
func (s *LayerService) Update(id string, layer LayerConfig) (LayerConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.layers[id]; !exists {
		return LayerConfig{}, fmt.Errorf("layer %q not found", id)
	}

	layer.ID = id
	s.layers[id] = layer
	if err := s.saveToDisk(); err != nil {
		return LayerConfig{}, err
	}
	return layer, nil
}

// Reset restores DefaultLayers.
func (s *LayerService) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.layers = make(map[string]LayerConfig)
	for _, l := range DefaultLayers() {
		s.layers[l.ID] = l
	}
	return s.saveToDisk()
}

func (s *LayerService) configFile() string {
	return filepath.Join(s.dataDir, "layers.yaml")
}

func (s *LayerService) loadFromDisk() bool {
	data, err := os.ReadFile(s.configFile())
	if err != nil {
		return false
	}

	var layers []LayerConfig
	if err := yaml.Unmarshal(data, &layers); err != nil || len(layers) == 0 {
		return false
	}
	for _, l := range layers {
		s.layers[l.ID] = l
	}
	return true
}

func (s *LayerService) saveToDisk() error {
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return err
	}

	layers := make([]LayerConfig, 0, len(s.layers))
	for _, l := range s.layers {
		layers = append(layers, l)
	}
	slices.SortFunc(layers, func(a, b LayerConfig) int { return strings.Compare(a.ID, b.ID) })

	data, err := yaml.Marshal(layers)
	if err != nil {
		return err
	}
	return os.WriteFile(s.configFile(), data, 0644)
}
