// Package mdm decodes and encodes MDM, the wire format metric producers use to stream
// samples to a metrics store.
//
// MDM sends a series' full description rarely and its samples often. A definition
// record is a self-describing MessagePack map carrying the name, org, interval, unit,
// mtype and tags of a series together with one sample. A point record is 33 bytes: a
// format byte followed by the 16-byte identity digest of the definition, the value,
// the time and the org. The digest is the MD5 of the canonical definition fields, so a
// consumer that has seen the definition can join later points back to it.
//
// # Core Features
//
//   - Canonical tag formatting and MD5 identity keys compatible with other MDM peers
//   - 32-byte little-endian point codec
//   - 9-field MessagePack definition codec tolerant of key order and unknown keys
//   - Format-byte dispatch that falls back to the definition codec
//   - Expire-after-access definition cache and a Reconciler that joins points
//   - Compressed, checksummed cache snapshots for warm restarts
//
// # Basic Usage
//
// Producing messages:
//
//	data := schema.MetricData{
//	    Definition: schema.MetricDefinition{
//	        Name: "cpu.load", OrgID: 1, Interval: 10, Unit: "ms", Mtype: "gauge",
//	        Tags: map[string]string{"host": "a"},
//	    },
//	    Value: 3.5,
//	    Time:  1000,
//	}
//	defMsg, _ := mdm.EncodeDefinition(data)
//	point, _ := data.Point()
//	pointMsg := mdm.EncodePoint(point)
//
// Consuming messages:
//
//	r, _ := mdm.NewReconciler()
//	defer r.Close()
//
//	for _, msg := range [][]byte{defMsg, pointMsg} {
//	    sample, ok, err := r.Reconcile(msg)
//	    if err != nil || !ok {
//	        continue
//	    }
//	    fmt.Println(sample.Definition.Name, sample.Value)
//	}
//
// # Package Structure
//
// This package provides convenient top-level wrappers around the schema, encoding and
// cache packages. For advanced usage, such as append-style encoding or definition
// lists, use those packages directly.
package mdm

import (
	"github.com/arloliu/mdm/encoding"
	"github.com/arloliu/mdm/schema"
)

// EncodeDefinition encodes data as a definition message.
//
// Returns:
//   - []byte: The message; it starts with the MessagePack map header, not a format byte
//   - error: errs.ErrMissingField or errs.ErrFormat for an invalid definition
func EncodeDefinition(data schema.MetricData) ([]byte, error) {
	return encoding.EncodeDefinition(data)
}

// EncodePoint encodes p as a point message, including the leading format byte.
func EncodePoint(p schema.MetricPoint) []byte {
	return encoding.MarshalPoint(p)
}

// MetricKey computes the key points of def are sent under.
func MetricKey(def schema.MetricDefinition) (schema.MetricKey, error) {
	return def.Key()
}
