package schema

import (
	"fmt"
	stdhash "hash"
	"maps"
	"strconv"

	"github.com/arloliu/mdm/errs"
	"github.com/arloliu/mdm/internal/hash"
	"github.com/arloliu/mdm/metric"
)

// Digester computes identity digests with a pluggable 128-bit hash. The zero value is
// not usable; create one with NewDigester.
type Digester = hash.Digester

// NewDigester returns a Digester using newHash, or MD5 when newHash is nil. Only MD5
// produces keys compatible with other MDM producers and consumers.
func NewDigester(newHash func() stdhash.Hash) *Digester {
	return hash.NewDigester(newHash)
}

// MetricDefinition is the full description of a metric series as carried by a
// definition record.
//
// The reserved keys (org_id, name, interval, unit, mtype) live in the dedicated fields
// and are stripped from Tags by FromGeneric. Tags received on the wire are kept
// verbatim so that the identity digest matches the producer's. A MetricDefinition is
// treated as immutable once built:
// codecs and caches share the Tags map without copying it.
type MetricDefinition struct {
	Name     string
	OrgID    int32
	Interval int32
	Unit     string
	Mtype    string
	Tags     map[string]string
}

// Validate checks the fields required by the wire format.
//
// Returns:
//   - error: ErrMissingField for an empty name or mtype, or a zero org or interval
func (d MetricDefinition) Validate() error {
	switch {
	case d.OrgID == 0:
		return fmt.Errorf("%w: OrgId", errs.ErrMissingField)
	case d.Name == "":
		return fmt.Errorf("%w: Name", errs.ErrMissingField)
	case d.Interval == 0:
		return fmt.Errorf("%w: Interval", errs.ErrMissingField)
	case d.Mtype == "":
		return fmt.Errorf("%w: Mtype", errs.ErrMissingField)
	}

	return nil
}

// FormattedTags returns the canonical, sorted tag list.
func (d MetricDefinition) FormattedTags() ([]string, error) {
	return FormatTags(d.Tags)
}

// Key computes the definition's MetricKey with the MD5 digester.
//
// Returns:
//   - MetricKey: Org and identity digest
//   - error: ErrFormat if a tag is invalid
func (d MetricDefinition) Key() (MetricKey, error) {
	tags, err := d.FormattedTags()
	if err != nil {
		return MetricKey{}, err
	}

	return d.KeyFromTags(tags), nil
}

// KeyFromTags computes the MetricKey from already formatted tags.
func (d MetricDefinition) KeyFromTags(tags []string) MetricKey {
	return MetricKey{OrgID: d.OrgID, ID: ID(d.Name, d.Unit, d.Mtype, d.Interval, tags)}
}

// KeyWith computes the MetricKey using a custom digester.
func (d MetricDefinition) KeyWith(dg *Digester) (MetricKey, error) {
	tags, err := d.FormattedTags()
	if err != nil {
		return MetricKey{}, err
	}

	return MetricKey{OrgID: d.OrgID, ID: dg.Sum(d.Name, d.Unit, d.Mtype, d.Interval, tags)}, nil
}

// Equal reports whether two definitions have the same fields and tags. A nil and an
// empty tag map are equal.
func (d MetricDefinition) Equal(o MetricDefinition) bool {
	return d.Name == o.Name &&
		d.OrgID == o.OrgID &&
		d.Interval == o.Interval &&
		d.Unit == o.Unit &&
		d.Mtype == o.Mtype &&
		maps.Equal(d.Tags, o.Tags)
}

// AllTags returns the promoted fields re-expressed as tags merged with Tags. The
// promoted fields win over any same-named entry in Tags.
func (d MetricDefinition) AllTags() map[string]string {
	out := make(map[string]string, len(d.Tags)+5)
	maps.Copy(out, d.Tags)
	out[TagOrgID] = strconv.FormatInt(int64(d.OrgID), 10)
	out[TagName] = d.Name
	out[TagInterval] = strconv.FormatInt(int64(d.Interval), 10)
	out[TagUnit] = d.Unit
	out[TagMtype] = d.Mtype

	return out
}

// ToGeneric converts the definition to the protocol-neutral model. The name becomes
// the key; unit and mtype stay intrinsic tags alongside the remaining Tags, while org
// and interval are kept as tags too so that FromGeneric can restore them.
func (d MetricDefinition) ToGeneric() metric.Definition {
	kv := d.AllTags()
	delete(kv, TagName)

	return metric.Definition{Key: d.Name, Tags: metric.TagCollection{KV: kv}}
}

// Defaults supplies the protocol fields for generic definitions that do not carry them.
type Defaults struct {
	OrgID    int32
	Interval int32
	Unit     string
	Mtype    string
}

// DefaultDefaults returns the defaults used by the MDM ingestion path for generic
// metrics: org 1, a 15 second interval, unit "unknown" and mtype "gauge".
func DefaultDefaults() Defaults {
	return Defaults{OrgID: 1, Interval: 15, Unit: "unknown", Mtype: "gauge"}
}

// FromGeneric builds a MetricDefinition from a protocol-neutral definition.
//
// The name is taken from the key, or from a "name" tag when the key is empty. The
// org_id, interval, unit and mtype tags are promoted to fields when present; missing
// ones are taken from defaults. The remaining key/value tags become Tags.
//
// Parameters:
//   - def: Generic definition
//   - defaults: Values for protocol fields the definition does not carry
//
// Returns:
//   - MetricDefinition: Converted definition
//   - error: ErrUnsupportedFeature for meta tags or value-only tags, ErrMissingField
//     if a required field is neither tagged nor defaulted, ErrFormat for a non-numeric
//     org or interval
func FromGeneric(def metric.Definition, defaults Defaults) (MetricDefinition, error) {
	if !def.Meta.IsEmpty() {
		return MetricDefinition{}, fmt.Errorf("%w: meta tags", errs.ErrUnsupportedFeature)
	}
	if len(def.Tags.V) > 0 {
		return MetricDefinition{}, fmt.Errorf("%w: value tags", errs.ErrUnsupportedFeature)
	}

	tags := maps.Clone(def.Tags.KV)
	if tags == nil {
		tags = map[string]string{}
	}

	out := MetricDefinition{
		Name:     def.Key,
		OrgID:    defaults.OrgID,
		Interval: defaults.Interval,
		Unit:     defaults.Unit,
		Mtype:    defaults.Mtype,
	}

	if v, ok := tags[TagName]; ok {
		if out.Name == "" {
			out.Name = v
		}
		delete(tags, TagName)
	}
	if v, ok := tags[TagOrgID]; ok {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return MetricDefinition{}, fmt.Errorf("%w: org_id %q is not an int32", errs.ErrFormat, v)
		}
		out.OrgID = int32(n)
		delete(tags, TagOrgID)
	}
	if v, ok := tags[TagInterval]; ok {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return MetricDefinition{}, fmt.Errorf("%w: interval %q is not an int32", errs.ErrFormat, v)
		}
		out.Interval = int32(n)
		delete(tags, TagInterval)
	}
	if v, ok := tags[TagUnit]; ok {
		out.Unit = v
		delete(tags, TagUnit)
	} else if defaults.Unit == "" {
		return MetricDefinition{}, fmt.Errorf("%w: Unit", errs.ErrMissingField)
	}
	if v, ok := tags[TagMtype]; ok {
		out.Mtype = v
		delete(tags, TagMtype)
	}

	out.Tags = tags
	if err := out.Validate(); err != nil {
		return MetricDefinition{}, err
	}

	return out, nil
}
