package encoding

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/tinylib/msgp/msgp"

	"github.com/arloliu/mdm/errs"
	"github.com/arloliu/mdm/internal/pool"
	"github.com/arloliu/mdm/metric"
	"github.com/arloliu/mdm/schema"
)

// Definition record map keys, in encode order.
const (
	FieldID       = "Id"
	FieldOrgID    = "OrgId"
	FieldName     = "Name"
	FieldInterval = "Interval"
	FieldValue    = "Value"
	FieldUnit     = "Unit"
	FieldTime     = "Time"
	FieldMtype    = "Mtype"
	FieldTags     = "Tags"
)

// DefinitionFieldCount is the number of map entries in an encoded definition record.
const DefinitionFieldCount = 9

// definitionOnlyFieldCount drops Value and Time; used for cache snapshots.
const definitionOnlyFieldCount = 7

// msgpack int32 prefix. msgp.AppendInt32 picks the narrowest encoding, but Time must
// always be written as a 5-byte int32.
const msgpInt32 = 0xd2

type fieldSet uint16

const (
	seenOrgID fieldSet = 1 << iota
	seenName
	seenInterval
	seenValue
	seenUnit
	seenTime
	seenMtype
)

var requiredFields = []struct {
	bit  fieldSet
	name string
}{
	{seenOrgID, FieldOrgID},
	{seenName, FieldName},
	{seenInterval, FieldInterval},
	{seenValue, FieldValue},
	{seenUnit, FieldUnit},
	{seenTime, FieldTime},
	{seenMtype, FieldMtype},
}

// EncodeDefinition encodes a definition record.
//
// Parameters:
//   - data: Sample with its full definition
//
// Returns:
//   - []byte: MessagePack map with the 9 definition fields
//   - error: ErrMissingField, ErrFormat for invalid tags or a time outside int32
func EncodeDefinition(data schema.MetricData) ([]byte, error) {
	return AppendDefinition(nil, data)
}

// AppendDefinition appends a definition record to b.
//
// Fields are written in the order Id, OrgId, Name, Interval, Value, Unit, Time, Mtype,
// Tags. Id is derived from the other fields; decoders never read it back.
//
// Returns:
//   - []byte: b with the record appended, or b unchanged on error
//   - error: See EncodeDefinition
func AppendDefinition(b []byte, data schema.MetricData) ([]byte, error) {
	if data.Time < math.MinInt32 || data.Time > math.MaxInt32 {
		return b, fmt.Errorf("%w: time %d does not fit a signed 32-bit integer", errs.ErrFormat, data.Time)
	}

	return appendRecord(b, data.Definition, &data)
}

// EncodeGenericData converts a protocol-neutral sample and encodes it.
//
// Parameters:
//   - data: Generic sample
//   - defaults: Protocol fields used when the definition does not carry them
//
// Returns:
//   - []byte: Encoded definition record
//   - error: ErrUnsupportedFeature for meta or value-only tags, plus EncodeDefinition errors
func EncodeGenericData(data metric.Data, defaults schema.Defaults) ([]byte, error) {
	d, err := schema.DataFromGeneric(data, defaults)
	if err != nil {
		return nil, err
	}

	return EncodeDefinition(d)
}

// AppendDefinitionOnly appends a definition without the Value and Time fields.
func AppendDefinitionOnly(b []byte, def schema.MetricDefinition) ([]byte, error) {
	return appendRecord(b, def, nil)
}

func appendRecord(b []byte, def schema.MetricDefinition, sample *schema.MetricData) ([]byte, error) {
	if err := def.Validate(); err != nil {
		return b, err
	}
	tags, err := def.FormattedTags()
	if err != nil {
		return b, err
	}

	n := uint32(definitionOnlyFieldCount)
	if sample != nil {
		n = DefinitionFieldCount
	}

	out := msgp.AppendMapHeader(b, n)
	out = msgp.AppendString(out, FieldID)
	out = msgp.AppendString(out, def.KeyFromTags(tags).String())
	out = msgp.AppendString(out, FieldOrgID)
	out = msgp.AppendInt32(out, def.OrgID)
	out = msgp.AppendString(out, FieldName)
	out = msgp.AppendString(out, def.Name)
	out = msgp.AppendString(out, FieldInterval)
	out = msgp.AppendInt32(out, def.Interval)
	if sample != nil {
		out = msgp.AppendString(out, FieldValue)
		out = msgp.AppendFloat64(out, sample.Value)
	}
	out = msgp.AppendString(out, FieldUnit)
	out = msgp.AppendString(out, def.Unit)
	if sample != nil {
		out = msgp.AppendString(out, FieldTime)
		out = appendFixedInt32(out, int32(sample.Time))
	}
	out = msgp.AppendString(out, FieldMtype)
	out = msgp.AppendString(out, def.Mtype)
	out = msgp.AppendString(out, FieldTags)
	out = msgp.AppendArrayHeader(out, uint32(len(tags))) //nolint:gosec // tag count is bounded by the map size
	for _, tag := range tags {
		out = msgp.AppendString(out, tag)
	}

	return out, nil
}

func appendFixedInt32(b []byte, v int32) []byte {
	b = append(b, msgpInt32)
	return binary.BigEndian.AppendUint32(b, uint32(v)) //nolint:gosec // bit-for-bit reinterpretation
}

// DecodeDefinition decodes a definition record that spans all of data.
//
// Keys may appear in any order and unknown keys are skipped. The Id field is ignored.
//
// Returns:
//   - schema.MetricData: Decoded sample
//   - error: ErrFormat for malformed MessagePack, a tag without '=', a repeated tag key
//     or trailing bytes; ErrMissingField when a required field is absent
func DecodeDefinition(data []byte) (schema.MetricData, error) {
	md, rest, err := ReadDefinition(data)
	if err != nil {
		return schema.MetricData{}, err
	}
	if len(rest) != 0 {
		return schema.MetricData{}, fmt.Errorf("%w: %d trailing bytes after definition record", errs.ErrFormat, len(rest))
	}

	return md, nil
}

// ReadDefinition decodes one definition record from the front of data and returns the
// remaining bytes.
func ReadDefinition(data []byte) (schema.MetricData, []byte, error) {
	return readRecord(data, true)
}

// ReadDefinitionOnly decodes a record written by AppendDefinitionOnly. Value and Time
// are not required; if present they are read and discarded.
func ReadDefinitionOnly(data []byte) (schema.MetricDefinition, []byte, error) {
	md, rest, err := readRecord(data, false)
	return md.Definition, rest, err
}

func readRecord(b []byte, withSample bool) (schema.MetricData, []byte, error) {
	var (
		md      schema.MetricData
		seen    fieldSet
		rawTags []string
	)
	release := noRelease
	defer func() { release() }()

	sz, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return schema.MetricData{}, nil, fmt.Errorf("%w: definition record is not a map: %w", errs.ErrFormat, err)
	}

	def := &md.Definition
	for range sz {
		var key []byte
		key, b, err = msgp.ReadMapKeyZC(b)
		if err != nil {
			return schema.MetricData{}, nil, fmt.Errorf("%w: read key: %w", errs.ErrFormat, err)
		}

		field := string(key)
		switch field {
		case FieldOrgID:
			def.OrgID, b, err = msgp.ReadInt32Bytes(b)
			seen |= seenOrgID
		case FieldName:
			def.Name, b, err = msgp.ReadStringBytes(b)
			seen |= seenName
		case FieldInterval:
			def.Interval, b, err = msgp.ReadInt32Bytes(b)
			seen |= seenInterval
		case FieldValue:
			md.Value, b, err = msgp.ReadFloat64Bytes(b)
			seen |= seenValue
		case FieldUnit:
			def.Unit, b, err = msgp.ReadStringBytes(b)
			seen |= seenUnit
		case FieldTime:
			md.Time, b, err = msgp.ReadInt64Bytes(b)
			seen |= seenTime
		case FieldMtype:
			def.Mtype, b, err = msgp.ReadStringBytes(b)
			seen |= seenMtype
		case FieldTags:
			release()
			rawTags, release, b, err = readTags(b)
		default:
			// Id and unknown keys
			b, err = msgp.Skip(b)
		}
		if err != nil {
			return schema.MetricData{}, nil, fmt.Errorf("%w: field %s: %w", errs.ErrFormat, field, err)
		}
	}

	for _, f := range requiredFields {
		if !withSample && (f.bit == seenValue || f.bit == seenTime) {
			continue
		}
		if seen&f.bit == 0 {
			return schema.MetricData{}, nil, fmt.Errorf("%w: %s", errs.ErrMissingField, f.name)
		}
	}
	if err := def.Validate(); err != nil {
		return schema.MetricData{}, nil, err
	}

	def.Tags = make(map[string]string, len(rawTags))
	for _, tag := range rawTags {
		k, v, err := schema.ParseTag(tag)
		if err != nil {
			return schema.MetricData{}, nil, err
		}
		if _, dup := def.Tags[k]; dup {
			return schema.MetricData{}, nil, fmt.Errorf("%w: duplicate tag key %q", errs.ErrFormat, k)
		}
		def.Tags[k] = v
	}

	return md, b, nil
}

func readTags(b []byte) ([]string, func(), []byte, error) {
	if msgp.IsNil(b) {
		b, err := msgp.ReadNilBytes(b)
		return nil, noRelease, b, err
	}

	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, noRelease, b, err
	}
	// every string needs at least one byte, so a larger count is malformed
	if int(n) > len(b) {
		return nil, noRelease, b, msgp.ErrShortBytes
	}

	tags, release := pool.GetStringSlice(int(n))
	for i := range tags {
		tags[i], b, err = msgp.ReadStringBytes(b)
		if err != nil {
			release()
			return nil, noRelease, b, err
		}
	}

	return tags, release, b, nil
}

func noRelease() {}
