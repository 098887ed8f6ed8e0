package pmtiles

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/paulmach/orb"
)

// DeserializeEntries parses a (possibly compressed) directory.
func DeserializeEntries(data []byte, compression Compression) ([]EntryV3, error) {
	raw, err := decompress(data, compression)
	if err != nil {
		return nil, err
	}
	r := bytes.NewReader(raw)

	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("directory length: %w", err)
	}
	if n > uint64(len(raw)) {
		return nil, errors.New("directory length exceeds data")
	}
	entries := make([]EntryV3, n)

	lastID := uint64(0)
	for i := range entries {
		delta, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, err
		}
		entries[i].TileID = lastID + delta
		lastID = entries[i].TileID
	}
	for i := range entries {
		v, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, err
		}
		entries[i].RunLength = uint32(v)
	}
	for i := range entries {
		v, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, err
		}
		entries[i].Length = uint32(v)
	}
	for i := range entries {
		v, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, err
		}
		if v == 0 && i > 0 {
			entries[i].Offset = entries[i-1].Offset + uint64(entries[i-1].Length)
		} else {
			entries[i].Offset = v - 1
		}
	}
	return entries, nil
}

// FindTile returns the entry covering tileID. Entries with RunLength 0
// point at leaf directories.
func FindTile(entries []EntryV3, tileID uint64) (EntryV3, bool) {
	m, n := 0, len(entries)-1
	for m <= n {
		k := (n + m) >> 1
		switch {
		case tileID > entries[k].TileID:
			m = k + 1
		case tileID < entries[k].TileID:
			n = k - 1
		default:
			return entries[k], true
		}
	}
	if n >= 0 {
		if entries[n].RunLength == 0 {
			return entries[n], true
		}
		if tileID-entries[n].TileID < uint64(entries[n].RunLength) {
			return entries[n], true
		}
	}
	return EntryV3{}, false
}

func decompress(data []byte, compression Compression) ([]byte, error) {
	switch compression {
	case NoCompression, UnknownCompression:
		return data, nil
	case Gzip:
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	}
	return nil, fmt.Errorf("compression %d not supported", compression)
}

// Archive is a read-only PMTiles v3 archive.
type Archive struct {
	Header   HeaderV3
	Metadata map[string]any

	r      io.ReaderAt
	closer io.Closer
}

// Open opens the archive at path.
func Open(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	a, err := NewArchive(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	a.closer = f
	return a, nil
}

// NewArchive reads the header and metadata from r.
func NewArchive(r io.ReaderAt) (*Archive, error) {
	buf := make([]byte, HeaderV3LenBytes)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	h, err := DeserializeHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.SpecVersion != 3 {
		return nil, fmt.Errorf("unsupported spec version %d", h.SpecVersion)
	}

	a := &Archive{Header: h, r: r, Metadata: map[string]any{}}
	if h.MetadataLength > 0 {
		raw, err := a.read(h.MetadataOffset, h.MetadataLength)
		if err != nil {
			return nil, fmt.Errorf("read metadata: %w", err)
		}
		raw, err = decompress(raw, h.InternalCompression)
		if err != nil {
			return nil, fmt.Errorf("decompress metadata: %w", err)
		}
		if err := json.Unmarshal(raw, &a.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return a, nil
}

func (a *Archive) read(offset, length uint64) ([]byte, error) {
	b := make([]byte, length)
	if _, err := a.r.ReadAt(b, int64(offset)); err != nil {
		return nil, err
	}
	return b, nil
}

// Close closes the underlying file, if Open created it.
func (a *Archive) Close() error {
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

// Tile returns the (still compressed) tile data at z/x/y. ok is false when
// the archive has no such tile.
func (a *Archive) Tile(z uint8, x, y uint32) (data []byte, ok bool, err error) {
	id := ZxyToID(z, x, y)
	offset, length := a.Header.RootOffset, a.Header.RootLength
	for depth := 0; depth < 4; depth++ {
		raw, err := a.read(offset, length)
		if err != nil {
			return nil, false, fmt.Errorf("read directory: %w", err)
		}
		entries, err := DeserializeEntries(raw, a.Header.InternalCompression)
		if err != nil {
			return nil, false, fmt.Errorf("decode directory: %w", err)
		}
		e, found := FindTile(entries, id)
		if !found {
			return nil, false, nil
		}
		if e.RunLength > 0 {
			data, err := a.read(a.Header.TileDataOffset+e.Offset, uint64(e.Length))
			if err != nil {
				return nil, false, fmt.Errorf("read tile: %w", err)
			}
			return data, true, nil
		}
		offset, length = a.Header.LeafDirectoryOffset+e.Offset, uint64(e.Length)
	}
	return nil, false, errors.New("directory nesting too deep")
}

// Bound returns the archive's geographic bounds.
func (h HeaderV3) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{float64(h.MinLonE7) / 1e7, float64(h.MinLatE7) / 1e7},
		Max: orb.Point{float64(h.MaxLonE7) / 1e7, float64(h.MaxLatE7) / 1e7},
	}
}

// Center returns the archive's default map center.
func (h HeaderV3) Center() orb.Point {
	return orb.Point{float64(h.CenterLonE7) / 1e7, float64(h.CenterLatE7) / 1e7}
}

// E7 converts degrees to the header's fixed-point representation.
func E7(deg float64) int32 {
	return int32(deg * 1e7)
}

// LayerNames returns the ids listed in the metadata's vector_layers.
func (a *Archive) LayerNames() []string {
	layers, _ := a.Metadata["vector_layers"].([]any)
	var names []string
	for _, l := range layers {
		m, _ := l.(map[string]any)
		if id, ok := m["id"].(string); ok {
			names = append(names, id)
		}
	}
	return names
}
