package index

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/nkosler/opsdesk/internal/docs"
)

// On-disk cache layout, all integers little-endian:
//
//	magic   [4]byte  "ODIX"
//	version uint16
//	flags   uint8    bit 0 = degraded
//	dim     uint32
//	count   uint32
//	vectors count*dim float32 rows
//	metaLen uint32
//	meta    JSON-encoded chunk table
//
// The blob is all-or-nothing: any decode error means the caller rebuilds from
// source documents, never partial recovery.

var cacheMagic = [4]byte{'O', 'D', 'I', 'X'}

const cacheVersion uint16 = 1

// CachePath returns the cache artifact location for a domain.
func CachePath(cacheDir string, domain Domain) string {
	return filepath.Join(cacheDir, fmt.Sprintf("%s_index.bin", domain))
}

// SaveSnapshot writes the snapshot to the domain's cache file atomically
// (temp file + rename).
func SaveSnapshot(cacheDir string, domain Domain, snap *Snapshot) error {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	path := CachePath(cacheDir, domain)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("committing cache file: %w", err)
	}
	return nil
}

// LoadSnapshot reads a domain's cache file. Returns os.ErrNotExist when no
// cache artifact is present.
func LoadSnapshot(cacheDir string, domain Domain) (*Snapshot, error) {
	data, err := os.ReadFile(CachePath(cacheDir, domain))
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(data)
}

// RemoveCache deletes a domain's cache artifact. Missing files are not an
// error.
func RemoveCache(cacheDir string, domain Domain) error {
	err := os.Remove(CachePath(cacheDir, domain))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing cache file: %w", err)
	}
	return nil
}

func encodeSnapshot(snap *Snapshot) ([]byte, error) {
	dim := 0
	if len(snap.Vectors) > 0 {
		dim = len(snap.Vectors[0])
	}

	meta, err := json.Marshal(snap.Chunks)
	if err != nil {
		return nil, fmt.Errorf("encoding chunk table: %w", err)
	}

	size := 4 + 2 + 1 + 4 + 4 + len(snap.Vectors)*dim*4 + 4 + len(meta)
	buf := make([]byte, 0, size)

	buf = append(buf, cacheMagic[:]...)
	buf = binary.LittleEndian.AppendUint16(buf, cacheVersion)
	var flags uint8
	if snap.Degraded {
		flags |= 1
	}
	buf = append(buf, flags)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(dim))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(snap.Vectors)))

	for i, row := range snap.Vectors {
		if len(row) != dim {
			return nil, fmt.Errorf("vector %d has dimension %d, expected %d", i, len(row), dim)
		}
		for _, f := range row {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
		}
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(meta)))
	buf = append(buf, meta...)
	return buf, nil
}

func decodeSnapshot(data []byte) (*Snapshot, error) {
	const header = 4 + 2 + 1 + 4 + 4
	if len(data) < header {
		return nil, fmt.Errorf("cache blob too short: %d bytes", len(data))
	}
	if [4]byte(data[:4]) != cacheMagic {
		return nil, fmt.Errorf("bad cache magic %q", data[:4])
	}
	if v := binary.LittleEndian.Uint16(data[4:6]); v != cacheVersion {
		return nil, fmt.Errorf("unsupported cache version %d", v)
	}
	degraded := data[6]&1 != 0
	dim := int(binary.LittleEndian.Uint32(data[7:11]))
	count := int(binary.LittleEndian.Uint32(data[11:15]))

	if len(data) < header+4 {
		return nil, fmt.Errorf("cache blob too short: %d bytes", len(data))
	}
	// count and dim come from the (possibly corrupt) header; bound each against
	// the actual payload before multiplying so the size math cannot overflow
	// and a damaged header cannot drive an unbounded allocation.
	avail := uint64(len(data) - header - 4)
	if uint64(dim) > avail/4 || uint64(count) > avail/4 {
		return nil, fmt.Errorf("cache blob truncated: header claims %d vectors of dimension %d in %d bytes", count, dim, len(data))
	}
	need := uint64(count) * uint64(dim) * 4
	if need > avail {
		return nil, fmt.Errorf("cache blob truncated: have %d bytes, need %d", len(data), uint64(header)+need+4)
	}

	vectors := make([][]float32, count)
	off := header
	for i := range vectors {
		row := make([]float32, dim)
		for j := range row {
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
			off += 4
		}
		vectors[i] = row
	}

	metaLen := int(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	if len(data) < off+metaLen {
		return nil, fmt.Errorf("cache blob truncated in chunk table")
	}

	var chunks []docs.Chunk
	if err := json.Unmarshal(data[off:off+metaLen], &chunks); err != nil {
		return nil, fmt.Errorf("decoding chunk table: %w", err)
	}
	if len(chunks) != count {
		return nil, fmt.Errorf("chunk table has %d entries, header says %d", len(chunks), count)
	}

	return &Snapshot{Vectors: vectors, Chunks: chunks, Degraded: degraded}, nil
}
