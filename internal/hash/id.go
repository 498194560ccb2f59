package hash

import (
	"crypto/md5"
	stdhash "hash"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// DigestSize is the size of a metric identity digest in bytes.
const DigestSize = 16

// Digester computes 128-bit metric identity digests.
//
// The digest input is name, unit, mtype and the decimal interval separated by single
// zero bytes, followed by a zero byte and the bytes of every formatted tag. Producers
// and consumers of the MDM wire format rely on this exact sequence.
type Digester struct {
	newHash func() stdhash.Hash
}

// NewDigester creates a Digester backed by the given hash constructor.
//
// Parameters:
//   - newHash: Hash constructor, must produce 16-byte sums (nil selects MD5)
//
// Returns:
//   - *Digester: The digester
//
// Panics if newHash produces a hash whose size is not DigestSize.
func NewDigester(newHash func() stdhash.Hash) *Digester {
	if newHash == nil {
		newHash = md5.New
	}
	if size := newHash().Size(); size != DigestSize {
		panic("hash: identity digest must be 16 bytes, got " + strconv.Itoa(size))
	}

	return &Digester{newHash: newHash}
}

var zero = []byte{0}

// Sum computes the identity digest. tags must already be formatted and sorted.
func (d *Digester) Sum(name, unit, mtype string, interval int32, tags []string) [DigestSize]byte {
	h := d.newHash()
	h.Write([]byte(name))
	h.Write(zero)
	h.Write([]byte(unit))
	h.Write(zero)
	h.Write([]byte(mtype))
	h.Write(zero)
	h.Write(strconv.AppendInt(nil, int64(interval), 10))
	for _, tag := range tags {
		h.Write(zero)
		h.Write([]byte(tag))
	}

	var out [DigestSize]byte
	h.Sum(out[:0])

	return out
}

var defaultDigester = NewDigester(md5.New)

// Identity computes the MD5 identity digest using the default digester.
func Identity(name, unit, mtype string, interval int32, tags []string) [DigestSize]byte {
	return defaultDigester.Sum(name, unit, mtype, interval, tags)
}

// Checksum computes the xxHash64 of the given bytes.
func Checksum(data []byte) uint64 {
	return xxhash.Sum64(data)
}
