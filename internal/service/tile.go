package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/joeblew999/cagp/internal/pmtiles"
	"github.com/joeblew999/cagp/internal/viewport"
)

// TileService manages PMTiles files and opens the active archive.
type TileService struct {
	tilesDir string
	active   string

	mu      sync.Mutex
	archive *pmtiles.Archive
	modTime int64
}

var _ viewport.StyleLoader = (*TileService)(nil)

// NewTileService creates a tile service whose map style reads active, a
// file name inside <dataDir>/tiles.
func NewTileService(dataDir, active string) *TileService {
	return &TileService{
		tilesDir: filepath.Join(dataDir, "tiles"),
		active:   active,
	}
}

// List returns all available PMTiles files.
func (s *TileService) List() ([]TileFile, error) {
	entries, err := os.ReadDir(s.tilesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []TileFile{}, nil
		}
		return nil, err
	}

	files := []TileFile{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".pmtiles" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, TileFile{
			Name: entry.Name(),
			Size: formatSize(info.Size()),
		})
	}
	return files, nil
}

// TilesDir returns the path to the tiles directory.
func (s *TileService) TilesDir() string {
	return s.tilesDir
}

// Active returns the file name of the archive backing the map.
func (s *TileService) Active() string {
	return s.active
}

// open returns the active archive, reopening it when the file changed.
func (s *TileService) open() (*pmtiles.Archive, error) {
	path := filepath.Join(s.tilesDir, s.active)
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("tile archive: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.archive != nil && s.modTime == info.ModTime().UnixNano() {
		return s.archive, nil
	}
	a, err := pmtiles.Open(path)
	if err != nil {
		return nil, err
	}
	if s.archive != nil {
		s.archive.Close()
	}
	s.archive, s.modTime = a, info.ModTime().UnixNano()
	return a, nil
}

// LoadStyle reads the active archive's header.
func (s *TileService) LoadStyle(ctx context.Context) (viewport.StyleInfo, error) {
	if err := ctx.Err(); err != nil {
		return viewport.StyleInfo{}, err
	}
	a, err := s.open()
	if err != nil {
		return viewport.StyleInfo{}, err
	}
	h := a.Header
	return viewport.StyleInfo{
		Bound:   h.Bound(),
		Center:  h.Center(),
		Zoom:    float64(h.CenterZoom),
		MinZoom: int(h.MinZoom),
		MaxZoom: int(h.MaxZoom),
		Layers:  a.LayerNames(),
	}, nil
}

// Tile returns the gzipped MVT tile at z/x/y from the active archive.
func (s *TileService) Tile(z uint8, x, y uint32) ([]byte, bool, error) {
	a, err := s.open()
	if err != nil {
		return nil, false, err
	}
	return a.Tile(z, x, y)
}

// Close releases the open archive.
func (s *TileService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.archive == nil {
		return nil
	}
	err := s.archive.Close()
	s.archive = nil
	return err
}

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
