package schema

import (
	"fmt"
	"slices"
	"strings"

	"github.com/arloliu/mdm/errs"
)

// Tag keys promoted to dedicated MetricDefinition fields.
const (
	TagOrgID    = "org_id"
	TagName     = "name"
	TagInterval = "interval"
	TagUnit     = "unit"
	TagMtype    = "mtype"
)

// IsReservedTag reports whether key names a field that MetricDefinition carries
// directly instead of in its Tags map.
func IsReservedTag(key string) bool {
	switch key {
	case TagOrgID, TagName, TagInterval, TagUnit, TagMtype:
		return true
	default:
		return false
	}
}

// ValidateTag checks a single key/value pair.
//
// The key must be non-empty and must not contain '=', ';' or '!'. The value must be
// non-empty and must not contain ';', except that the "unit" tag may be empty.
//
// Returns:
//   - error: ErrFormat naming the offending key or value
func ValidateTag(key, value string) error {
	if key == "" || strings.ContainsAny(key, "=;!") {
		return fmt.Errorf("%w: unsupported tag key %q", errs.ErrFormat, key)
	}
	if value == "" && key == TagUnit {
		return nil
	}
	if value == "" || strings.Contains(value, ";") {
		return fmt.Errorf("%w: unsupported tag value %q for key %q", errs.ErrFormat, value, key)
	}

	return nil
}

// FormatTags validates tags and returns them as sorted "key=value" strings.
//
// Parameters:
//   - tags: Tag map, reserved keys must already be removed by the caller
//
// Returns:
//   - []string: Canonical tag list, empty (non-nil) for an empty map
//   - error: ErrFormat if any pair fails ValidateTag
func FormatTags(tags map[string]string) ([]string, error) {
	out := make([]string, 0, len(tags))
	for k, v := range tags {
		if err := ValidateTag(k, v); err != nil {
			return nil, err
		}
		out = append(out, k+"="+v)
	}
	slices.Sort(out)

	return out, nil
}

// ParseTag splits a formatted tag on its first '='.
//
// Returns:
//   - key, value: The two halves, value may itself contain '='
//   - error: ErrFormat if the tag has no '='
func ParseTag(tag string) (string, string, error) {
	key, value, ok := strings.Cut(tag, "=")
	if !ok {
		return "", "", fmt.Errorf("%w: tag %q has no '='", errs.ErrFormat, tag)
	}

	return key, value, nil
}
