// Package metric holds the protocol-neutral metric model that the MDM codec converts
// from and to.
//
// A Definition is a key plus two tag collections: intrinsic Tags that identify the
// series, and Meta tags that describe it without changing its identity. Each
// collection has key/value pairs (KV) and bare value-only tags (V). Every definition
// carries the "unit" and "mtype" intrinsic tags.
package metric

import (
	"fmt"
	"maps"
	"slices"
)

// Required intrinsic tag keys.
const (
	TagUnit  = "unit"
	TagMtype = "mtype"
)

// TagCollection is a set of key/value tags plus value-only tags.
type TagCollection struct {
	KV map[string]string
	V  []string
}

// IsEmpty reports whether the collection has no tags at all.
func (c TagCollection) IsEmpty() bool {
	return len(c.KV) == 0 && len(c.V) == 0
}

// Equal compares two collections. Value-only tags compare as sets.
func (c TagCollection) Equal(o TagCollection) bool {
	if !maps.Equal(c.KV, o.KV) || len(c.V) != len(o.V) {
		return false
	}
	a, b := slices.Clone(c.V), slices.Clone(o.V)
	slices.Sort(a)
	slices.Sort(b)

	return slices.Equal(a, b)
}

// Definition identifies a metric series.
type Definition struct {
	Key  string
	Tags TagCollection
	Meta TagCollection
}

// NewDefinition creates a Definition and checks that the required intrinsic tags exist.
// The tag maps are copied.
func NewDefinition(key string, tags, meta TagCollection) (Definition, error) {
	for _, tag := range []string{TagUnit, TagMtype} {
		if _, ok := tags.KV[tag]; !ok {
			return Definition{}, fmt.Errorf("missing required tag: %s", tag)
		}
	}

	return Definition{
		Key:  key,
		Tags: TagCollection{KV: maps.Clone(tags.KV), V: slices.Clone(tags.V)},
		Meta: TagCollection{KV: maps.Clone(meta.KV), V: slices.Clone(meta.V)},
	}, nil
}

// Equal compares identity: key and intrinsic tags. Meta tags are ignored.
func (d Definition) Equal(o Definition) bool {
	return d.Key == o.Key && d.Tags.Equal(o.Tags)
}

// Data is one sample of a metric.
type Data struct {
	Definition Definition
	Value      float64
	Timestamp  int64
}

// Equal compares definition, value and timestamp.
func (d Data) Equal(o Data) bool {
	return d.Definition.Equal(o.Definition) && d.Value == o.Value && d.Timestamp == o.Timestamp
}
