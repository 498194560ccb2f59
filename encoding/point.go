package encoding

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/arloliu/mdm/errs"
	"github.com/arloliu/mdm/format"
	"github.com/arloliu/mdm/schema"
)

// PointSize is the size of an encoded point record, excluding the format byte.
const PointSize = 32

// Point record layout, little-endian.
const (
	pointIDOffset    = 0  // 16 bytes identity digest
	pointValueOffset = 16 // 8 bytes float64
	pointTimeOffset  = 24 // 4 bytes uint32 seconds
	pointOrgOffset   = 28 // 4 bytes int32 org
)

var le = binary.LittleEndian

// DecodePoint decodes a point record.
//
// Parameters:
//   - data: Record bytes without the format byte (must be exactly 32 bytes)
//
// Returns:
//   - schema.MetricPoint: Decoded point; time is read as an unsigned 32-bit value
//   - error: ErrFormat if data is not 32 bytes
func DecodePoint(data []byte) (schema.MetricPoint, error) {
	if len(data) != PointSize {
		return schema.MetricPoint{}, fmt.Errorf("%w: point record must be %d bytes, got %d",
			errs.ErrFormat, PointSize, len(data))
	}

	var p schema.MetricPoint
	copy(p.Key.ID[:], data[pointIDOffset:pointValueOffset])
	p.Value = math.Float64frombits(le.Uint64(data[pointValueOffset:pointTimeOffset]))
	p.Time = le.Uint32(data[pointTimeOffset:pointOrgOffset])
	p.Key.OrgID = int32(le.Uint32(data[pointOrgOffset:PointSize])) //nolint:gosec // bit-for-bit reinterpretation

	return p, nil
}

// EncodePoint writes a point record into dst.
//
// Only the first 32 bytes of dst are written. Org and identity are written as given.
//
// Returns:
//   - error: ErrFormat if dst holds fewer than 32 bytes
func EncodePoint(dst []byte, p schema.MetricPoint) error {
	if len(dst) < PointSize {
		return fmt.Errorf("%w: insufficient capacity for a point record: need %d bytes, have %d",
			errs.ErrFormat, PointSize, len(dst))
	}

	copy(dst[pointIDOffset:pointValueOffset], p.Key.ID[:])
	le.PutUint64(dst[pointValueOffset:pointTimeOffset], math.Float64bits(p.Value))
	le.PutUint32(dst[pointTimeOffset:pointOrgOffset], p.Time)
	le.PutUint32(dst[pointOrgOffset:PointSize], uint32(p.Key.OrgID)) //nolint:gosec // bit-for-bit reinterpretation

	return nil
}

// AppendPoint appends the 32-byte point record to b.
func AppendPoint(b []byte, p schema.MetricPoint) []byte {
	b = append(b, p.Key.ID[:]...)
	b = le.AppendUint64(b, math.Float64bits(p.Value))
	b = le.AppendUint32(b, p.Time)

	return le.AppendUint32(b, uint32(p.Key.OrgID)) //nolint:gosec // bit-for-bit reinterpretation
}

// MarshalPoint returns a complete MDM message: the MetricPoint format byte followed by
// the 32-byte record.
func MarshalPoint(p schema.MetricPoint) []byte {
	b := make([]byte, 0, 1+PointSize)
	b = append(b, byte(format.FormatMetricPoint))

	return AppendPoint(b, p)
}
