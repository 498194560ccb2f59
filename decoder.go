package mdm

import (
	"fmt"

	"github.com/arloliu/mdm/encoding"
	"github.com/arloliu/mdm/errs"
	"github.com/arloliu/mdm/format"
	"github.com/arloliu/mdm/schema"
)

// Kind identifies which member of a Record is populated.
type Kind uint8

const (
	// KindPoint marks a compact 32-byte point record.
	KindPoint Kind = iota + 1
	// KindDefinition marks a self-describing definition record.
	KindDefinition
)

func (k Kind) String() string {
	switch k {
	case KindPoint:
		return "Point"
	case KindDefinition:
		return "Definition"
	default:
		return "Unknown"
	}
}

// Record is a decoded MDM message. Exactly one of Point or Data is meaningful,
// selected by Kind.
type Record struct {
	Kind  Kind
	Point schema.MetricPoint
	Data  schema.MetricData
}

// Key returns the series key of the record: the point's key, or the key computed from
// the definition.
//
// Returns:
//   - schema.MetricKey: The series key
//   - error: ErrFormat if a definition tag is invalid or the kind is unknown
func (r Record) Key() (schema.MetricKey, error) {
	switch r.Kind {
	case KindPoint:
		return r.Point.Key, nil
	case KindDefinition:
		return r.Data.Definition.Key()
	default:
		return schema.MetricKey{}, fmt.Errorf("%w: record kind %s", errs.ErrFormat, r.Kind)
	}
}

// Decode inspects the first byte of data and routes the message to the matching codec.
//
// Format byte 2 is followed by a 32-byte point. Format bytes 0, 1 and 3 are reserved
// for formats this package does not read and are rejected. Any other leading byte is
// not a format marker at all: it is the first byte of a msgpack definition map, so the
// whole buffer, including that byte, is handed to the definition codec. The definition
// must span the whole buffer; bytes left over after the map are errs.ErrFormat.
//
// Parameters:
//   - data: One complete MDM message
//
// Returns:
//   - Record: The decoded point or definition
//   - error: errs.ErrFormat for empty or malformed input, errs.ErrUnsupportedFormat for
//     reserved format bytes, or any error of the selected codec
func Decode(data []byte) (Record, error) {
	if len(data) == 0 {
		return Record{}, fmt.Errorf("%w: empty message", errs.ErrFormat)
	}

	f := format.Of(data[0])
	if !f.Supported() {
		return Record{}, fmt.Errorf("%w: %s", errs.ErrUnsupportedFormat, f)
	}

	if f == format.FormatMetricPoint {
		p, err := encoding.DecodePoint(data[1:])
		if err != nil {
			return Record{}, err
		}

		return Record{Kind: KindPoint, Point: p}, nil
	}

	d, err := encoding.DecodeDefinition(data)
	if err != nil {
		return Record{}, err
	}

	return Record{Kind: KindDefinition, Data: d}, nil
}
