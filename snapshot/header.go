package snapshot

import (
	"encoding/binary"
	"fmt"

	"github.com/arloliu/mdm/errs"
	"github.com/arloliu/mdm/format"
)

const (
	// HeaderSize is the size of the fixed snapshot header in bytes.
	HeaderSize = 32
	// Magic identifies a snapshot file.
	Magic = "MDMS"
	// Version is the snapshot layout version written by this package.
	Version uint8 = 1
	// MaxPayloadSize bounds the compressed and raw payload sizes accepted by Read.
	MaxPayloadSize = 1 << 30
)

// Header byte offsets. Multi-byte fields are little-endian.
const (
	magicOffset       = 0  // 4 bytes
	versionOffset     = 4  // 1 byte
	compressionOffset = 5  // 1 byte, 6-7 reserved
	countOffset       = 8  // 4 bytes
	payloadSizeOffset = 12 // 4 bytes
	rawSizeOffset     = 16 // 4 bytes, 20-23 reserved
	checksumOffset    = 24 // 8 bytes
)

// Header is the fixed-size header at the start of a snapshot.
type Header struct {
	Version     uint8
	Compression format.CompressionType
	// Count is the number of definitions in the payload.
	Count uint32
	// PayloadSize is the size of the compressed payload that follows the header.
	PayloadSize uint32
	// RawSize is the size of the payload after decompression.
	RawSize uint32
	// Checksum is the xxHash64 of the compressed payload.
	Checksum uint64
}

// Parse parses the header from a byte slice.
//
// Parameters:
//   - data: Byte slice containing header (must be exactly HeaderSize bytes)
//
// Returns:
//   - error: ErrInvalidSnapshotHeader for a wrong size, magic, version, compression or
//     an oversized payload
func (h *Header) Parse(data []byte) error {
	if len(data) != HeaderSize {
		return fmt.Errorf("%w: header is %d bytes, want %d", errs.ErrInvalidSnapshotHeader, len(data), HeaderSize)
	}
	if string(data[magicOffset:magicOffset+len(Magic)]) != Magic {
		return fmt.Errorf("%w: bad magic %q", errs.ErrInvalidSnapshotHeader, data[magicOffset:magicOffset+len(Magic)])
	}

	h.Version = data[versionOffset]
	h.Compression = format.CompressionType(data[compressionOffset])
	h.Count = binary.LittleEndian.Uint32(data[countOffset:])
	h.PayloadSize = binary.LittleEndian.Uint32(data[payloadSizeOffset:])
	h.RawSize = binary.LittleEndian.Uint32(data[rawSizeOffset:])
	h.Checksum = binary.LittleEndian.Uint64(data[checksumOffset:])

	return h.Validate()
}

// Validate checks the header fields.
func (h *Header) Validate() error {
	if h.Version != Version {
		return fmt.Errorf("%w: unsupported version %d", errs.ErrInvalidSnapshotHeader, h.Version)
	}
	switch h.Compression {
	case format.CompressionNone, format.CompressionZstd, format.CompressionS2, format.CompressionLZ4:
	default:
		return fmt.Errorf("%w: unknown compression %d", errs.ErrInvalidSnapshotHeader, uint8(h.Compression))
	}
	if h.PayloadSize > MaxPayloadSize || h.RawSize > MaxPayloadSize {
		return fmt.Errorf("%w: payload of %d/%d bytes exceeds limit", errs.ErrInvalidSnapshotHeader, h.PayloadSize, h.RawSize)
	}

	return nil
}

// Bytes serializes the Header into a byte slice.
func (h *Header) Bytes() []byte {
	b := make([]byte, HeaderSize)

	copy(b[magicOffset:], Magic)
	b[versionOffset] = h.Version
	b[compressionOffset] = uint8(h.Compression)
	binary.LittleEndian.PutUint32(b[countOffset:], h.Count)
	binary.LittleEndian.PutUint32(b[payloadSizeOffset:], h.PayloadSize)
	binary.LittleEndian.PutUint32(b[rawSizeOffset:], h.RawSize)
	binary.LittleEndian.PutUint64(b[checksumOffset:], h.Checksum)

	return b
}

// ParseHeader parses a Header from the front of data.
//
// Returns:
//   - Header: Parsed header struct
//   - error: ErrInvalidSnapshotHeader
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes, want at least %d", errs.ErrInvalidSnapshotHeader, len(data), HeaderSize)
	}

	h := Header{}
	if err := h.Parse(data[:HeaderSize]); err != nil {
		return Header{}, err
	}

	return h, nil
}
