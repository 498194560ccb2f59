package mdm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/mdm/encoding"
	"github.com/arloliu/mdm/errs"
	"github.com/arloliu/mdm/schema"
)

func cpuLoad() schema.MetricData {
	return schema.MetricData{
		Definition: schema.MetricDefinition{
			Name:     "cpu.load",
			OrgID:    1,
			Interval: 15,
			Unit:     "pct",
			Mtype:    "gauge",
			Tags:     map[string]string{"env": "prod"},
		},
		Value: 0.42,
		Time:  1000,
	}
}

func TestDecode_Point(t *testing.T) {
	p, err := cpuLoad().Point()
	require.NoError(t, err)

	rec, err := Decode(EncodePoint(p))
	require.NoError(t, err)
	require.Equal(t, KindPoint, rec.Kind)
	require.Equal(t, p, rec.Point)
}

func TestDecode_Definition(t *testing.T) {
	data := cpuLoad()
	msg, err := EncodeDefinition(data)
	require.NoError(t, err)

	rec, err := Decode(msg)
	require.NoError(t, err)
	require.Equal(t, KindDefinition, rec.Kind)
	require.True(t, data.Equal(rec.Data))
}

func TestDecode_RejectedFormats(t *testing.T) {
	payload := make([]byte, encoding.PointSize)
	for _, b := range []byte{0, 1, 3} {
		_, err := Decode(append([]byte{b}, payload...))
		require.ErrorIs(t, err, errs.ErrUnsupportedFormat, "format byte %d", b)

		_, err = Decode([]byte{b})
		require.ErrorIs(t, err, errs.ErrUnsupportedFormat, "format byte %d", b)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, errs.ErrFormat},
		{"point too short", append([]byte{2}, make([]byte, 31)...), errs.ErrFormat},
		{"point too long", append([]byte{2}, make([]byte, 33)...), errs.ErrFormat},
		{"point without payload", []byte{2}, errs.ErrFormat},
		{"unknown byte, not msgpack", []byte{0xc1}, errs.ErrFormat},
		{"msgpack string, not a map", []byte{0xa1, 'x'}, errs.ErrFormat},
		{"empty map", []byte{0x80}, errs.ErrMissingField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecode_DefinitionStartsWithFixmap(t *testing.T) {
	msg, err := EncodeDefinition(cpuLoad())
	require.NoError(t, err)
	// The leading byte is part of the map header, so nothing may be consumed before the
	// definition codec sees it.
	require.Equal(t, byte(0x89), msg[0])
}

func TestDecode_DefinitionTrailingBytes(t *testing.T) {
	msg, err := EncodeDefinition(cpuLoad())
	require.NoError(t, err)

	_, err = Decode(append(msg, 0xc0))
	require.ErrorIs(t, err, errs.ErrFormat)
	require.ErrorContains(t, err, "1 trailing bytes")
}

func TestRecord_Key(t *testing.T) {
	data := cpuLoad()
	want, err := MetricKey(data.Definition)
	require.NoError(t, err)

	defMsg, err := EncodeDefinition(data)
	require.NoError(t, err)
	p, err := data.Point()
	require.NoError(t, err)

	for _, msg := range [][]byte{defMsg, EncodePoint(p)} {
		rec, err := Decode(msg)
		require.NoError(t, err)
		got, err := rec.Key()
		require.NoError(t, err)
		require.Equal(t, want, got, "kind %s", rec.Kind)
	}

	_, err = Record{}.Key()
	require.ErrorIs(t, err, errs.ErrFormat)
}

func TestKind_String(t *testing.T) {
	require.Equal(t, "Point", KindPoint.String())
	require.Equal(t, "Definition", KindDefinition.String())
	require.Equal(t, "Unknown", Kind(0).String())
}

func TestMetricKey_TagOrderInvariant(t *testing.T) {
	a := cpuLoad().Definition
	a.Tags = map[string]string{"env": "prod", "az": "a"}
	b := cpuLoad().Definition
	b.Tags = map[string]string{}
	b.Tags["az"] = "a"
	b.Tags["env"] = "prod"

	ka, err := MetricKey(a)
	require.NoError(t, err)
	kb, err := MetricKey(b)
	require.NoError(t, err)
	require.Equal(t, ka, kb)

	kc, err := MetricKey(cpuLoad().Definition)
	require.NoError(t, err)
	require.NotEqual(t, ka, kc)
}

func BenchmarkDecode(b *testing.B) {
	msg, err := EncodeDefinition(cpuLoad())
	require.NoError(b, err)
	p, err := cpuLoad().Point()
	require.NoError(b, err)
	pointMsg := EncodePoint(p)

	b.Run("Definition", func(b *testing.B) {
		b.ReportAllocs()
		for b.Loop() {
			_, _ = Decode(msg)
		}
	})
	b.Run("Point", func(b *testing.B) {
		b.ReportAllocs()
		for b.Loop() {
			_, _ = Decode(pointMsg)
		}
	})
}
