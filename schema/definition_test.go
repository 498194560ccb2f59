package schema

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/arloliu/mdm/errs"
	"github.com/arloliu/mdm/metric"
	"github.com/stretchr/testify/require"
)

func cpuLoad(tags map[string]string) MetricDefinition {
	return MetricDefinition{
		Name:     "cpu.load",
		OrgID:    1,
		Interval: 15,
		Unit:     "pct",
		Mtype:    "gauge",
		Tags:     tags,
	}
}

func TestMetricDefinition_Key(t *testing.T) {
	key, err := cpuLoad(map[string]string{"env": "prod"}).Key()
	require.NoError(t, err)

	want := md5.Sum([]byte("cpu.load\x00pct\x00gauge\x0015\x00env=prod"))
	require.Equal(t, int32(1), key.OrgID)
	require.Equal(t, want, key.ID)
	require.Equal(t, "1."+hex.EncodeToString(want[:]), key.String())
}

func TestMetricDefinition_KeyIgnoresInsertionOrder(t *testing.T) {
	a := map[string]string{}
	a["env"] = "prod"
	a["az"] = "a"
	a["host"] = "h1"

	b := map[string]string{}
	b["host"] = "h1"
	b["az"] = "a"
	b["env"] = "prod"

	ka, err := cpuLoad(a).Key()
	require.NoError(t, err)
	kb, err := cpuLoad(b).Key()
	require.NoError(t, err)
	require.Equal(t, ka, kb)

	kc, err := cpuLoad(map[string]string{"env": "prod"}).Key()
	require.NoError(t, err)
	require.NotEqual(t, ka, kc)
}

func TestMetricDefinition_KeyDependsOnOrgOnlyThroughKey(t *testing.T) {
	d1 := cpuLoad(nil)
	d2 := cpuLoad(nil)
	d2.OrgID = 2

	k1, err := d1.Key()
	require.NoError(t, err)
	k2, err := d2.Key()
	require.NoError(t, err)

	require.Equal(t, k1.ID, k2.ID)
	require.NotEqual(t, k1, k2)
}

func TestMetricDefinition_KeyInvalidTag(t *testing.T) {
	_, err := cpuLoad(map[string]string{"bad;key": "v"}).Key()
	require.ErrorIs(t, err, errs.ErrFormat)
}

func TestMetricDefinition_KeyWith(t *testing.T) {
	d := cpuLoad(map[string]string{"env": "prod"})
	want, err := d.Key()
	require.NoError(t, err)

	got, err := d.KeyWith(NewDigester(md5.New))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestMetricDefinition_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*MetricDefinition)
		field  string
	}{
		{"org", func(d *MetricDefinition) { d.OrgID = 0 }, "OrgId"},
		{"name", func(d *MetricDefinition) { d.Name = "" }, "Name"},
		{"interval", func(d *MetricDefinition) { d.Interval = 0 }, "Interval"},
		{"mtype", func(d *MetricDefinition) { d.Mtype = "" }, "Mtype"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := cpuLoad(nil)
			tt.mutate(&d)
			err := d.Validate()
			require.ErrorIs(t, err, errs.ErrMissingField)
			require.True(t, strings.Contains(err.Error(), tt.field))
		})
	}

	d := cpuLoad(nil)
	d.Unit = ""
	require.NoError(t, d.Validate())
}

func TestMetricDefinition_Equal(t *testing.T) {
	require.True(t, cpuLoad(nil).Equal(cpuLoad(map[string]string{})))
	require.False(t, cpuLoad(nil).Equal(cpuLoad(map[string]string{"env": "prod"})))
}

func TestMetricDefinition_AllTags(t *testing.T) {
	all := cpuLoad(map[string]string{"env": "prod", "unit": "ignored"}).AllTags()
	require.Equal(t, map[string]string{
		"org_id":   "1",
		"name":     "cpu.load",
		"interval": "15",
		"unit":     "pct",
		"mtype":    "gauge",
		"env":      "prod",
	}, all)
}

func TestFromGeneric(t *testing.T) {
	def, err := metric.NewDefinition("cpu.load", metric.TagCollection{KV: map[string]string{
		"unit":     "pct",
		"mtype":    "counter",
		"interval": "60",
		"org_id":   "7",
		"env":      "prod",
	}}, metric.TagCollection{})
	require.NoError(t, err)

	got, err := FromGeneric(def, DefaultDefaults())
	require.NoError(t, err)
	require.Equal(t, MetricDefinition{
		Name:     "cpu.load",
		OrgID:    7,
		Interval: 60,
		Unit:     "pct",
		Mtype:    "counter",
		Tags:     map[string]string{"env": "prod"},
	}, got)

	// the source map is not modified
	require.Len(t, def.Tags.KV, 5)
}

func TestFromGeneric_Defaults(t *testing.T) {
	got, err := FromGeneric(metric.Definition{Key: "m"}, DefaultDefaults())
	require.NoError(t, err)
	require.Equal(t, int32(1), got.OrgID)
	require.Equal(t, int32(15), got.Interval)
	require.Equal(t, "unknown", got.Unit)
	require.Equal(t, "gauge", got.Mtype)
	require.Empty(t, got.Tags)
}

func TestFromGeneric_NameFromTag(t *testing.T) {
	got, err := FromGeneric(metric.Definition{Tags: metric.TagCollection{KV: map[string]string{"name": "m"}}}, DefaultDefaults())
	require.NoError(t, err)
	require.Equal(t, "m", got.Name)
	require.NotContains(t, got.Tags, "name")
}

func TestFromGeneric_Errors(t *testing.T) {
	tests := []struct {
		name string
		def  metric.Definition
		want error
	}{
		{"meta tags", metric.Definition{Key: "m", Meta: metric.TagCollection{KV: map[string]string{"a": "b"}}}, errs.ErrUnsupportedFeature},
		{"meta value tags", metric.Definition{Key: "m", Meta: metric.TagCollection{V: []string{"x"}}}, errs.ErrUnsupportedFeature},
		{"value tags", metric.Definition{Key: "m", Tags: metric.TagCollection{V: []string{"x"}}}, errs.ErrUnsupportedFeature},
		{"no name", metric.Definition{}, errs.ErrMissingField},
		{"bad org", metric.Definition{Key: "m", Tags: metric.TagCollection{KV: map[string]string{"org_id": "x"}}}, errs.ErrFormat},
		{"bad interval", metric.Definition{Key: "m", Tags: metric.TagCollection{KV: map[string]string{"interval": "1.5"}}}, errs.ErrFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromGeneric(tt.def, DefaultDefaults())
			require.ErrorIs(t, err, tt.want)
		})
	}

	_, err := FromGeneric(metric.Definition{Key: "m"}, Defaults{OrgID: 1, Interval: 1})
	require.ErrorIs(t, err, errs.ErrMissingField)
}

func TestToGeneric_RoundTrip(t *testing.T) {
	d := cpuLoad(map[string]string{"env": "prod"})
	g := d.ToGeneric()
	require.Equal(t, "cpu.load", g.Key)
	require.Equal(t, "pct", g.Tags.KV["unit"])

	back, err := FromGeneric(g, Defaults{})
	require.NoError(t, err)
	require.True(t, d.Equal(back))
}

func TestMetricData_PointAndJoin(t *testing.T) {
	data := MetricData{Definition: cpuLoad(map[string]string{"env": "prod"}), Value: 0.42, Time: 1000}
	p, err := data.Point()
	require.NoError(t, err)
	require.Equal(t, uint32(1000), p.Time)
	require.Equal(t, 0.42, p.Value)

	joined := Join(data.Definition, p)
	require.True(t, data.Equal(joined))
}

func TestDataFromGeneric(t *testing.T) {
	g := metric.Data{Definition: metric.Definition{Key: "m"}, Value: 1.5, Timestamp: 99}
	d, err := DataFromGeneric(g, DefaultDefaults())
	require.NoError(t, err)
	require.Equal(t, 1.5, d.Value)
	require.Equal(t, int64(99), d.Time)
	require.True(t, d.ToGeneric().Equal(metric.Data{
		Definition: metric.Definition{Key: "m", Tags: metric.TagCollection{KV: map[string]string{
			"org_id": "1", "interval": "15", "unit": "unknown", "mtype": "gauge",
		}}},
		Value:     1.5,
		Timestamp: 99,
	}))
}
