package format

type (
	// Format is the leading tag byte of an MDM message.
	Format          uint8
	CompressionType uint8
)

const (
	FormatMetricDataArrayJSON    Format = 0x0 // FormatMetricDataArrayJSON is the legacy JSON array format.
	FormatMetricDataArrayMsgp    Format = 0x1 // FormatMetricDataArrayMsgp is the legacy MessagePack array format.
	FormatMetricPoint            Format = 0x2 // FormatMetricPoint is the 32-byte point record.
	FormatMetricPointWithoutOrg  Format = 0x3 // FormatMetricPointWithoutOrg is the legacy point record without org.
	FormatMetricDataMsgpFallback Format = 0xff

	CompressionNone CompressionType = 0x1 // CompressionNone represents no compression.
	CompressionZstd CompressionType = 0x2 // CompressionZstd represents Zstandard compression.
	CompressionS2   CompressionType = 0x3 // CompressionS2 represents S2 compression.
	CompressionLZ4  CompressionType = 0x4 // CompressionLZ4 represents LZ4 compression.
)

// Of classifies a leading byte. Bytes outside the reserved range 0-3 are not format
// tags; they are the first byte of a MessagePack definition record and map to
// FormatMetricDataMsgpFallback.
func Of(b byte) Format {
	if f := Format(b); f <= FormatMetricPointWithoutOrg {
		return f
	}

	return FormatMetricDataMsgpFallback
}

// Supported reports whether the decoder accepts messages of this format.
func (f Format) Supported() bool {
	return f == FormatMetricPoint || f == FormatMetricDataMsgpFallback
}

func (f Format) String() string {
	switch f {
	case FormatMetricDataArrayJSON:
		return "MetricDataArrayJson"
	case FormatMetricDataArrayMsgp:
		return "MetricDataArrayMsgp"
	case FormatMetricPoint:
		return "MetricPoint"
	case FormatMetricPointWithoutOrg:
		return "MetricPointWithoutOrg"
	case FormatMetricDataMsgpFallback:
		return "MetricData"
	default:
		return "Unknown"
	}
}

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionZstd:
		return "Zstd"
	case CompressionS2:
		return "S2"
	case CompressionLZ4:
		return "LZ4"
	default:
		return "Unknown"
	}
}

// ParseCompression maps a case-sensitive lower-case name ("none", "zstd", "s2", "lz4")
// to a CompressionType. The second result is false for unknown names.
func ParseCompression(name string) (CompressionType, bool) {
	switch name {
	case "", "none":
		return CompressionNone, true
	case "zstd":
		return CompressionZstd, true
	case "s2":
		return CompressionS2, true
	case "lz4":
		return CompressionLZ4, true
	default:
		return 0, false
	}
}
