// Package encoding implements the MDM wire records.
//
// # Point Records
//
// A point record is the format byte 2 followed by 32 little-endian bytes:
//
//	offset  size  field
//	0       16    MD5 identity digest
//	16      8     value (float64 bits)
//	24      4     time (uint32 seconds)
//	28      4     org id (int32)
//
// DecodePoint, EncodePoint, AppendPoint and MarshalPoint work on the 32-byte body.
//
// # Definition Records
//
// A definition record is a MessagePack map with nine entries: Id, OrgId, Name,
// Interval, Unit, Mtype, Tags, Value and Time. It has no format byte of its own; a map
// header (0x80 to 0x8f, 0xde or 0xdf) is never a valid format byte, so a dispatcher can
// tell it apart from a point record by its first byte.
//
//	data, err := encoding.EncodeDefinition(sample)
//	...
//	sample, err = encoding.DecodeDefinition(data)
//
// Decoding rejects missing fields with errs.ErrMissingField and any other malformed
// input, including trailing bytes, with errs.ErrFormat.
//
// AppendDefinitionOnly and ReadDefinitionOnly handle the seven-field variant without
// Value and Time that definition snapshots use. EncodeDefinitionList and
// DecodeDefinitionList frame a batch of full records as one MessagePack array.
package encoding
