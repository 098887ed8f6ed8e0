package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeblew999/cagp/internal/store"
)

var sourceTypes = map[string]string{
	".geojson": "GeoJSON",
	".json":    "GeoJSON",
	".shp":     "Shapefile",
}

// SourceService manages importable parcel files under <data-dir>/sources.
type SourceService struct {
	sourcesDir string
}

// NewSourceService creates a new source service.
func NewSourceService(dataDir string) *SourceService {
	return &SourceService{
		sourcesDir: filepath.Join(dataDir, "sources"),
	}
}

// List returns all importable source files.
func (s *SourceService) List() ([]SourceFile, error) {
	entries, err := os.ReadDir(s.sourcesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []SourceFile{}, nil
		}
		return nil, err
	}

	files := []SourceFile{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fileType, ok := sourceTypes[strings.ToLower(filepath.Ext(entry.Name()))]
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, SourceFile{
			Name:     entry.Name(),
			Size:     formatSize(info.Size()),
			FileType: fileType,
		})
	}
	return files, nil
}

// SourcesDir returns the path to the sources directory.
func (s *SourceService) SourcesDir() string {
	return s.sourcesDir
}

// Validate checks that filename is a plain, supported, existing source file.
func (s *SourceService) Validate(filename string) error {
	if strings.ContainsAny(filename, `/\`) || strings.Contains(filename, "..") {
		return fmt.Errorf("invalid filename")
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := sourceTypes[ext]; !ok {
		return fmt.Errorf("unsupported file type: %s", ext)
	}
	if _, err := os.Stat(filepath.Join(s.sourcesDir, filename)); os.IsNotExist(err) {
		return fmt.Errorf("file not found: %s", filename)
	}
	return nil
}

// Import loads one source file into st and returns the feature count.
func (s *SourceService) Import(ctx context.Context, st store.Store, filename string) (int, error) {
	if err := s.Validate(filename); err != nil {
		return 0, err
	}
	return store.Import(ctx, st, filepath.Join(s.sourcesDir, filename))
}
