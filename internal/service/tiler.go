package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeblew999/cagp/internal/store"
	"github.com/joeblew999/cagp/internal/tiler"
)

// TilerService builds the property tile archive from the feature store.
type TilerService struct {
	tilesDir string
}

// NewTilerService creates a new tiler service.
func NewTilerService(dataDir string) *TilerService {
	return &TilerService{
		tilesDir: filepath.Join(dataDir, "tiles"),
	}
}

// TileGenerateOptions contains options for tile generation.
type TileGenerateOptions struct {
	OutputName string `json:"outputName" required:"true" doc:"Output PMTiles name" example:"vacant_properties"`
	MinZoom    int    `json:"minZoom" minimum:"0" maximum:"14" doc:"Minimum zoom level" default:"10"`
	MaxZoom    int    `json:"maxZoom" minimum:"0" maximum:"14" doc:"Maximum zoom level" default:"14"`
}

// ProgressFunc is called with progress updates during tile generation.
type ProgressFunc func(progress int, status string)

// Generate writes <tiles-dir>/<OutputName>.pmtiles from every feature in
// src. The archive is written to a temporary file and renamed into place.
func (s *TilerService) Generate(ctx context.Context, src store.Store, opts TileGenerateOptions, onProgress ProgressFunc) (tiler.Stats, error) {
	if onProgress == nil {
		onProgress = func(int, string) {}
	}
	if strings.ContainsAny(opts.OutputName, `/\`) || strings.Contains(opts.OutputName, "..") || opts.OutputName == "" {
		return tiler.Stats{}, fmt.Errorf("invalid output name %q", opts.OutputName)
	}
	if !strings.HasSuffix(opts.OutputName, ".pmtiles") {
		opts.OutputName += ".pmtiles"
	}
	if opts.MinZoom == 0 && opts.MaxZoom == 0 {
		opts.MinZoom, opts.MaxZoom = tiler.DefaultConfig.MinZoom, tiler.DefaultConfig.MaxZoom
	}

	if err := os.MkdirAll(s.tilesDir, 0755); err != nil {
		return tiler.Stats{}, fmt.Errorf("failed to create tiles directory: %w", err)
	}

	onProgress(10, "Loading properties...")
	features, err := src.All(ctx)
	if err != nil {
		return tiler.Stats{}, fmt.Errorf("load properties: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return tiler.Stats{}, err
	}

	onProgress(30, fmt.Sprintf("Tiling %d properties...", len(features)))
	out := filepath.Join(s.tilesDir, opts.OutputName)
	tmp := out + ".tmp"
	stats, err := tiler.BuildFile(features, tmp, tiler.Config{
		Name:    strings.TrimSuffix(opts.OutputName, ".pmtiles"),
		MinZoom: opts.MinZoom,
		MaxZoom: opts.MaxZoom,
	})
	if err != nil {
		os.Remove(tmp)
		return tiler.Stats{}, fmt.Errorf("tile generation failed: %w", err)
	}
	if err := os.Rename(tmp, out); err != nil {
		return tiler.Stats{}, err
	}

	onProgress(100, fmt.Sprintf("Wrote %d tiles", stats.Tiles))
	return stats, nil
}

// TilesDir returns the tiles directory path.
func (s *TilerService) TilesDir() string {
	return s.tilesDir
}
