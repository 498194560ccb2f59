// Package snapshot persists the contents of a definition cache.
//
// A consumer that restarts with an empty cache drops every point until producers
// resend their definitions, which can take up to an hour. Saving the cache on shutdown
// and loading it on start closes that gap.
//
// A snapshot is a 32-byte Header followed by a compressed payload. The payload is a
// MessagePack array of definition records in the MDM definition layout without the
// Value and Time fields. Keys are not stored; they are recomputed from the definitions
// on load.
package snapshot

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"

	"github.com/tinylib/msgp/msgp"

	"github.com/arloliu/mdm/cache"
	"github.com/arloliu/mdm/compress"
	"github.com/arloliu/mdm/encoding"
	"github.com/arloliu/mdm/errs"
	"github.com/arloliu/mdm/format"
	"github.com/arloliu/mdm/internal/hash"
	"github.com/arloliu/mdm/internal/pool"
	"github.com/arloliu/mdm/schema"
)

// DefaultCompression is used when Options.Compression is zero.
const DefaultCompression = format.CompressionZstd

// definitionSizeHint is the typical encoded size of a definition with a handful of tags.
const definitionSizeHint = 160

// Options controls how a snapshot is written.
type Options struct {
	Compression format.CompressionType
}

// Write writes defs as one snapshot.
//
// Parameters:
//   - w: Destination
//   - defs: Definitions to store; each must pass MetricDefinition.Validate
//   - opts: Write options
//
// Returns:
//   - compress.CompressionStats: Payload sizes before and after compression
//   - error: An encoding error wrapped with the definition index, a compression
//     error or a write error
func Write(w io.Writer, defs []schema.MetricDefinition, opts Options) (compress.CompressionStats, error) {
	ct := opts.Compression
	if ct == 0 {
		ct = DefaultCompression
	}
	codec, err := compress.CreateCodec(ct, "snapshot")
	if err != nil {
		return compress.CompressionStats{}, err
	}
	if uint64(len(defs)) > math.MaxUint32 {
		return compress.CompressionStats{}, fmt.Errorf("snapshot: %d definitions exceed limit", len(defs))
	}

	buf := pool.GetSnapshotBuffer()
	defer pool.PutSnapshotBuffer(buf)

	buf.Grow(msgp.ArrayHeaderSize + len(defs)*definitionSizeHint)
	buf.B = msgp.AppendArrayHeader(buf.B, uint32(len(defs))) //nolint:gosec // checked above
	for i := range defs {
		buf.B, err = encoding.AppendDefinitionOnly(buf.B, defs[i])
		if err != nil {
			return compress.CompressionStats{}, fmt.Errorf("snapshot: definition %d: %w", i, err)
		}
	}

	payload, err := codec.Compress(buf.B)
	if err != nil {
		return compress.CompressionStats{}, fmt.Errorf("snapshot: compress: %w", err)
	}
	if len(buf.B) > MaxPayloadSize || len(payload) > MaxPayloadSize {
		return compress.CompressionStats{}, fmt.Errorf("snapshot: payload of %d bytes exceeds limit", len(buf.B))
	}

	h := Header{
		Version:     Version,
		Compression: ct,
		Count:       uint32(len(defs)),    //nolint:gosec // checked above
		PayloadSize: uint32(len(payload)), //nolint:gosec // checked above
		RawSize:     uint32(buf.Len()),    //nolint:gosec // checked above
		Checksum:    hash.Checksum(payload),
	}
	if _, err := w.Write(h.Bytes()); err != nil {
		return compress.CompressionStats{}, err
	}
	if _, err := w.Write(payload); err != nil {
		return compress.CompressionStats{}, err
	}

	return compress.CompressionStats{
		Algorithm:      ct,
		OriginalSize:   int64(buf.Len()),
		CompressedSize: int64(len(payload)),
	}, nil
}

// Read reads one snapshot written by Write.
//
// Returns:
//   - []schema.MetricDefinition: Definitions in stored order
//   - error: ErrInvalidSnapshotHeader for a bad header, ErrSnapshotChecksum for a
//     corrupted payload, ErrFormat for a payload that does not decode, or a read error
func Read(r io.Reader) ([]schema.MetricDefinition, error) {
	hb := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, hb); err != nil {
		return nil, fmt.Errorf("snapshot: read header: %w", err)
	}
	h, err := ParseHeader(hb)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, h.PayloadSize)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("snapshot: read payload: %w", err)
	}
	if sum := hash.Checksum(payload); sum != h.Checksum {
		return nil, fmt.Errorf("%w: got %016x, header says %016x", errs.ErrSnapshotChecksum, sum, h.Checksum)
	}

	codec, err := compress.GetCodec(h.Compression)
	if err != nil {
		return nil, err
	}
	raw, err := codec.Decompress(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: decompress: %w", errs.ErrFormat, err)
	}
	if len(raw) != int(h.RawSize) {
		return nil, fmt.Errorf("%w: payload is %d bytes, header says %d", errs.ErrFormat, len(raw), h.RawSize)
	}

	return decodePayload(raw, h.Count)
}

func decodePayload(raw []byte, count uint32) ([]schema.MetricDefinition, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: payload is not an array: %w", errs.ErrFormat, err)
	}
	if n != count {
		return nil, fmt.Errorf("%w: payload holds %d definitions, header says %d", errs.ErrFormat, n, count)
	}
	if int(n) > len(b) {
		return nil, fmt.Errorf("%w: %d definitions in %d bytes", errs.ErrFormat, n, len(b))
	}

	defs := make([]schema.MetricDefinition, 0, n)
	for i := range n {
		var def schema.MetricDefinition
		def, b, err = encoding.ReadDefinitionOnly(b)
		if err != nil {
			return nil, fmt.Errorf("snapshot: definition %d: %w", i, err)
		}
		defs = append(defs, def)
	}
	if len(b) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after payload", errs.ErrFormat, len(b))
	}

	return defs, nil
}

// Save writes the unexpired entries of c as a snapshot, ordered by key so that equal
// caches produce equal snapshots.
//
// Returns:
//   - int: Number of definitions written
//   - error: Any Write error
func Save(w io.Writer, c *cache.DefinitionCache, compression format.CompressionType) (int, error) {
	type entry struct {
		key schema.MetricKey
		def schema.MetricDefinition
	}
	entries := make([]entry, 0, c.Len())
	c.Range(func(key schema.MetricKey, def schema.MetricDefinition) bool {
		entries = append(entries, entry{key: key, def: def})
		return true
	})
	slices.SortFunc(entries, func(a, b entry) int {
		if byOrg := cmp.Compare(a.key.OrgID, b.key.OrgID); byOrg != 0 {
			return byOrg
		}

		return bytes.Compare(a.key.ID[:], b.key.ID[:])
	})

	defs := make([]schema.MetricDefinition, len(entries))
	for i := range entries {
		defs[i] = entries[i].def
	}
	if _, err := Write(w, defs, Options{Compression: compression}); err != nil {
		return 0, err
	}

	return len(defs), nil
}

// Cache receives loaded definitions. *cache.DefinitionCache satisfies it.
type Cache interface {
	Set(key schema.MetricKey, def schema.MetricDefinition)
}

// Load reads a snapshot and stores every definition in c under its recomputed key.
// Nothing is stored if the snapshot is invalid.
//
// Returns:
//   - int: Number of definitions stored
//   - error: Any Read error, or ErrFormat for a definition whose key cannot be computed
func Load(r io.Reader, c Cache) (int, error) {
	if c == nil {
		return 0, errors.New("snapshot: nil cache")
	}

	defs, err := Read(r)
	if err != nil {
		return 0, err
	}

	keys := make([]schema.MetricKey, len(defs))
	for i := range defs {
		keys[i], err = defs[i].Key()
		if err != nil {
			return 0, fmt.Errorf("snapshot: definition %d: %w", i, err)
		}
	}
	for i := range defs {
		c.Set(keys[i], defs[i])
	}

	return len(defs), nil
}
