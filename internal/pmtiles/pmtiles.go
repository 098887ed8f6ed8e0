// Package pmtiles reads and writes the single-file PMTiles v3 archives the
// map tiles are served from. Only gzip and uncompressed directories and MVT
// tiles are handled.
//
// Format: https://github.com/protomaps/PMTiles/blob/main/spec/v3/spec.md
package pmtiles

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

// Compression is the compression applied to directories, metadata or tiles.
type Compression uint8

const (
	UnknownCompression Compression = 0
	NoCompression      Compression = 1
	Gzip               Compression = 2
)

// TileType is the format of individual tile contents.
type TileType uint8

const (
	UnknownTileType TileType = 0
	Mvt             TileType = 1
)

// HeaderV3LenBytes is the fixed-size binary header.
const HeaderV3LenBytes = 127

const magic = "PMTiles"

// HeaderV3 is the archive header.
type HeaderV3 struct {
	SpecVersion         uint8
	RootOffset          uint64
	RootLength          uint64
	MetadataOffset      uint64
	MetadataLength      uint64
	LeafDirectoryOffset uint64
	LeafDirectoryLength uint64
	TileDataOffset      uint64
	TileDataLength      uint64
	AddressedTilesCount uint64
	TileEntriesCount    uint64
	TileContentsCount   uint64
	Clustered           bool
	InternalCompression Compression
	TileCompression     Compression
	TileType            TileType
	MinZoom             uint8
	MaxZoom             uint8
	MinLonE7            int32
	MinLatE7            int32
	MaxLonE7            int32
	MaxLatE7            int32
	CenterZoom          uint8
	CenterLonE7         int32
	CenterLatE7         int32
}

// sections are the eleven uint64 fields stored from byte 8, in file order.
func (h *HeaderV3) sections() []*uint64 {
	return []*uint64{
		&h.RootOffset, &h.RootLength,
		&h.MetadataOffset, &h.MetadataLength,
		&h.LeafDirectoryOffset, &h.LeafDirectoryLength,
		&h.TileDataOffset, &h.TileDataLength,
		&h.AddressedTilesCount, &h.TileEntriesCount, &h.TileContentsCount,
	}
}

// bounds are the four int32 fields stored from byte 102.
func (h *HeaderV3) bounds() []*int32 {
	return []*int32{&h.MinLonE7, &h.MinLatE7, &h.MaxLonE7, &h.MaxLatE7}
}

// EntryV3 is one directory entry. RunLength 0 marks a leaf directory.
type EntryV3 struct {
	TileID    uint64
	Offset    uint64
	Length    uint32
	RunLength uint32
}

// ZxyToID converts z/x/y tile coordinates to a Hilbert-ordered tile id.
func ZxyToID(z uint8, x uint32, y uint32) uint64 {
	id := (uint64(1)<<(2*uint(z)) - 1) / 3
	for s := uint32(1) << z >> 1; s > 0; s >>= 1 {
		rx := s & x
		ry := s & y
		id += uint64(s) * uint64(s) * uint64((3*boolBit(rx > 0))^boolBit(ry > 0))
		if ry == 0 {
			if rx != 0 {
				x = s - 1 - x
				y = s - 1 - y
			}
			x, y = y, x
		}
	}
	return id
}

func boolBit(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// SerializeHeader encodes h into its 127-byte form. The version byte is
// always 3.
func SerializeHeader(h HeaderV3) []byte {
	le := binary.LittleEndian
	b := make([]byte, 0, HeaderV3LenBytes)
	b = append(b, magic...)
	b = append(b, 3)
	for _, p := range h.sections() {
		b = le.AppendUint64(b, *p)
	}
	b = append(b, byte(boolBit(h.Clustered)), byte(h.InternalCompression), byte(h.TileCompression),
		byte(h.TileType), h.MinZoom, h.MaxZoom)
	for _, p := range h.bounds() {
		b = le.AppendUint32(b, uint32(*p))
	}
	b = append(b, h.CenterZoom)
	b = le.AppendUint32(b, uint32(h.CenterLonE7))
	b = le.AppendUint32(b, uint32(h.CenterLatE7))
	return b
}

// DeserializeHeader decodes the first 127 bytes of an archive.
func DeserializeHeader(d []byte) (HeaderV3, error) {
	var h HeaderV3
	if len(d) < HeaderV3LenBytes {
		return h, errors.New("buffer too small for header")
	}
	if string(d[:len(magic)]) != magic {
		return h, errors.New("magic number not detected")
	}

	le := binary.LittleEndian
	h.SpecVersion = d[7]
	for i, p := range h.sections() {
		*p = le.Uint64(d[8+8*i:])
	}
	h.Clustered = d[96] == 1
	h.InternalCompression = Compression(d[97])
	h.TileCompression = Compression(d[98])
	h.TileType = TileType(d[99])
	h.MinZoom, h.MaxZoom = d[100], d[101]
	for i, p := range h.bounds() {
		*p = int32(le.Uint32(d[102+4*i:]))
	}
	h.CenterZoom = d[118]
	h.CenterLonE7 = int32(le.Uint32(d[119:]))
	h.CenterLatE7 = int32(le.Uint32(d[123:]))
	return h, nil
}

// SerializeMetadata encodes the archive's JSON metadata.
func SerializeMetadata(metadata map[string]any, compression Compression) ([]byte, error) {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}
	return compress(raw, compression)
}

// SerializeEntries encodes a directory: the entry count, then tile id
// deltas, run lengths, lengths and offsets as separate uvarint columns. An
// offset contiguous with the previous entry is written as 0, any other as
// offset+1.
func SerializeEntries(entries []EntryV3, compression Compression) ([]byte, error) {
	raw := binary.AppendUvarint(nil, uint64(len(entries)))

	var last uint64
	for _, e := range entries {
		raw = binary.AppendUvarint(raw, e.TileID-last)
		last = e.TileID
	}
	for _, e := range entries {
		raw = binary.AppendUvarint(raw, uint64(e.RunLength))
	}
	for _, e := range entries {
		raw = binary.AppendUvarint(raw, uint64(e.Length))
	}
	for i, e := range entries {
		if i > 0 && e.Offset == entries[i-1].Offset+uint64(entries[i-1].Length) {
			raw = binary.AppendUvarint(raw, 0)
			continue
		}
		raw = binary.AppendUvarint(raw, e.Offset+1)
	}
	return compress(raw, compression)
}

func compress(data []byte, compression Compression) ([]byte, error) {
	switch compression {
	case NoCompression:
		return data, nil
	case Gzip:
		var b bytes.Buffer
		zw, err := gzip.NewWriterLevel(&b, gzip.BestCompression)
		if err != nil {
			return nil, err
		}
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return b.Bytes(), nil
	}
	return nil, fmt.Errorf("compression %d not supported", compression)
}
