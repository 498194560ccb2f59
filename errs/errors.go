// Package errs defines the sentinel errors returned by the mdm codecs, cache and snapshot
// packages.
//
// Errors are always wrapped with context using fmt.Errorf("%w: ..."), so callers should
// classify them with errors.Is:
//
//	rec, err := mdm.Decode(buf)
//	if errors.Is(err, errs.ErrUnsupportedFormat) {
//	    // legacy producer, drop the message
//	}
//
// Every codec error is terminal for the record being processed. Nothing in this module
// retries.
package errs

import "errors"

var (
	// ErrFormat reports malformed bytes: wrong record length, bad MessagePack, a tag
	// without '=', a disallowed tag character or an unexpected payload shape.
	ErrFormat = errors.New("mdm: invalid format")

	// ErrMissingField reports that a required definition field is absent or empty.
	ErrMissingField = errors.New("mdm: missing required field")

	// ErrUnsupportedFeature reports metric features the MDM protocol cannot represent,
	// such as meta tags or value-only tags.
	ErrUnsupportedFeature = errors.New("mdm: unsupported feature")

	// ErrUnsupportedFormat reports a legacy format byte that is recognized but rejected.
	ErrUnsupportedFormat = errors.New("mdm: unsupported format")
)

// Snapshot errors.
var (
	ErrInvalidSnapshotHeader = errors.New("mdm: invalid snapshot header")
	ErrSnapshotChecksum      = errors.New("mdm: snapshot checksum mismatch")
)
