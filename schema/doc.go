// Package schema defines the MDM record model: metric keys, point records, metric
// definitions and reconstructed metric data, together with the canonical tag form and
// the identity digest that joins point records to definitions.
//
// # Identity
//
// A MetricKey is the pair (org, 16-byte digest). The digest is a pure function of the
// definition's name, unit, mtype, interval and canonical tags:
//
//	def := schema.MetricDefinition{
//	    Name: "cpu.load", OrgID: 1, Interval: 15, Unit: "pct", Mtype: "gauge",
//	    Tags: map[string]string{"env": "prod"},
//	}
//	key, err := def.Key()
//	fmt.Println(key) // 1.<32 hex digits>
//
// Two definitions that differ only in tag insertion order always produce the same key,
// because tags are validated, formatted as "key=value" and sorted before hashing.
//
// # Generic conversion
//
// Definitions coming from the protocol-neutral metric package carry org, interval,
// unit and mtype as ordinary tags (or not at all). FromGeneric promotes them to fields
// and fills the gaps from a Defaults value supplied by the caller.
package schema
