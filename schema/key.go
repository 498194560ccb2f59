package schema

import (
	"encoding/hex"
	"strconv"

	"github.com/arloliu/mdm/internal/hash"
)

// IDSize is the size of a MetricKey digest in bytes.
const IDSize = hash.DigestSize

// MetricKey identifies a metric series within an org. It is comparable and is used
// directly as a map or cache key.
type MetricKey struct {
	OrgID int32
	ID    [IDSize]byte
}

// String returns "<org>.<hex digest>", the form producers write into the Id field.
func (k MetricKey) String() string {
	return IDString(k.OrgID, k.ID)
}

// IDString renders an org and digest as "<org>.<hex digest>".
func IDString(orgID int32, id [IDSize]byte) string {
	b := make([]byte, 0, 12+IDSize*2)
	b = strconv.AppendInt(b, int64(orgID), 10)
	b = append(b, '.')
	b = hex.AppendEncode(b, id[:])

	return string(b)
}

// ID computes the identity digest of a definition's canonical fields. tags must be
// the output of FormatTags.
func ID(name, unit, mtype string, interval int32, tags []string) [IDSize]byte {
	return hash.Identity(name, unit, mtype, interval, tags)
}
