package encoding

import (
	"fmt"

	"github.com/tinylib/msgp/msgp"

	"github.com/arloliu/mdm/errs"
	"github.com/arloliu/mdm/schema"
)

// EncodeDefinitionList encodes samples as a MessagePack array of definition records.
//
// The list form is a standalone payload for tools and tests. It carries no format
// byte, and the MDM decoder rejects the legacy array format byte.
//
// Returns:
//   - []byte: Encoded array
//   - error: The first EncodeDefinition error, wrapped with the element index
func EncodeDefinitionList(list []schema.MetricData) ([]byte, error) {
	b := msgp.AppendArrayHeader(nil, uint32(len(list))) //nolint:gosec // slice length fits uint32
	for i := range list {
		var err error
		b, err = AppendDefinition(b, list[i])
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
	}

	return b, nil
}

// DecodeDefinitionList decodes an array written by EncodeDefinitionList.
//
// Returns:
//   - []schema.MetricData: Decoded samples in array order
//   - error: ErrFormat for a malformed array or trailing bytes, or the first element
//     error wrapped with its index
func DecodeDefinitionList(data []byte) ([]schema.MetricData, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: definition list is not an array: %w", errs.ErrFormat, err)
	}
	if int(n) > len(b) {
		return nil, fmt.Errorf("%w: definition list claims %d elements in %d bytes", errs.ErrFormat, n, len(b))
	}

	out := make([]schema.MetricData, 0, n)
	for i := range n {
		var md schema.MetricData
		md, b, err = ReadDefinition(b)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, md)
	}
	if len(b) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after definition list", errs.ErrFormat, len(b))
	}

	return out, nil
}
