package schema

import (
	"strconv"

	"github.com/arloliu/mdm/metric"
)

// MetricPoint is a decoded point record: a value at a time for a key. It carries no
// definition fields and is only meaningful once joined with a MetricDefinition.
type MetricPoint struct {
	Key   MetricKey
	Value float64
	// Time is seconds since the Unix epoch.
	Time uint32
}

func (p MetricPoint) String() string {
	return "MetricPoint{key=" + p.Key.String() +
		", value=" + strconv.FormatFloat(p.Value, 'g', -1, 64) +
		", time=" + strconv.FormatUint(uint64(p.Time), 10) + "}"
}

// MetricData is a fully reconstructed metric sample.
type MetricData struct {
	Definition MetricDefinition
	Value      float64
	// Time is seconds since the Unix epoch.
	Time int64
}

// Join combines a point with the definition cached for its key.
func Join(def MetricDefinition, p MetricPoint) MetricData {
	return MetricData{Definition: def, Value: p.Value, Time: int64(p.Time)}
}

// Equal compares definition, value and time.
func (d MetricData) Equal(o MetricData) bool {
	return d.Definition.Equal(o.Definition) && d.Value == o.Value && d.Time == o.Time
}

// Point returns the point record equivalent of the sample.
//
// Returns:
//   - MetricPoint: Point keyed by the definition's MetricKey; the time is truncated to
//     32 bits as on the wire
//   - error: ErrFormat if a tag is invalid
func (d MetricData) Point() (MetricPoint, error) {
	key, err := d.Definition.Key()
	if err != nil {
		return MetricPoint{}, err
	}

	return MetricPoint{Key: key, Value: d.Value, Time: uint32(d.Time)}, nil
}

// ToGeneric converts the sample to the protocol-neutral model.
func (d MetricData) ToGeneric() metric.Data {
	return metric.Data{Definition: d.Definition.ToGeneric(), Value: d.Value, Timestamp: d.Time}
}

// DataFromGeneric converts a protocol-neutral sample, see FromGeneric.
func DataFromGeneric(d metric.Data, defaults Defaults) (MetricData, error) {
	def, err := FromGeneric(d.Definition, defaults)
	if err != nil {
		return MetricData{}, err
	}

	return MetricData{Definition: def, Value: d.Value, Time: d.Timestamp}, nil
}
