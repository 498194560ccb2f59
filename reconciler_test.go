package mdm

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/mdm/cache"
	"github.com/arloliu/mdm/errs"
	"github.com/arloliu/mdm/schema"
)

type mapCache struct {
	mu   sync.Mutex
	defs map[schema.MetricKey]schema.MetricDefinition
}

func newMapCache() *mapCache {
	return &mapCache{defs: map[schema.MetricKey]schema.MetricDefinition{}}
}

func (c *mapCache) Get(key schema.MetricKey) (schema.MetricDefinition, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	def, ok := c.defs[key]

	return def, ok
}

func (c *mapCache) Set(key schema.MetricKey, def schema.MetricDefinition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defs[key] = def
}

func encodeMessages(t testing.TB, data schema.MetricData) ([]byte, []byte) {
	t.Helper()
	defMsg, err := EncodeDefinition(data)
	require.NoError(t, err)
	p, err := data.Point()
	require.NoError(t, err)

	return defMsg, EncodePoint(p)
}

func TestReconcile_DefinitionThenPoint(t *testing.T) {
	r, err := NewReconciler()
	require.NoError(t, err)
	defer r.Close()

	data := cpuLoad()
	defMsg, _ := encodeMessages(t, data)

	got, ok, err := r.Reconcile(defMsg)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, data.Equal(got))

	later := data
	later.Value = 0.99
	later.Time = 1010
	_, pointMsg := encodeMessages(t, later)

	got, ok, err = r.Reconcile(pointMsg)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, data.Definition.Equal(got.Definition))
	require.Equal(t, 0.99, got.Value)
	require.Equal(t, int64(1010), got.Time)
}

func TestReconcile_PointBeforeDefinition(t *testing.T) {
	r, err := NewReconciler()
	require.NoError(t, err)
	defer r.Close()

	_, pointMsg := encodeMessages(t, cpuLoad())

	got, ok, err := r.Reconcile(pointMsg)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, schema.MetricData{}, got)
}

func TestReconcile_OtherOrgMisses(t *testing.T) {
	r, err := NewReconciler()
	require.NoError(t, err)
	defer r.Close()

	data := cpuLoad()
	defMsg, _ := encodeMessages(t, data)
	_, _, err = r.Reconcile(defMsg)
	require.NoError(t, err)

	other := data
	other.Definition.OrgID = 2
	_, pointMsg := encodeMessages(t, other)

	_, ok, err := r.Reconcile(pointMsg)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReconcile_ErrorsPropagate(t *testing.T) {
	r, err := NewReconciler()
	require.NoError(t, err)
	defer r.Close()

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, errs.ErrFormat},
		{"legacy json", []byte{0, '['}, errs.ErrUnsupportedFormat},
		{"legacy msgp", []byte{1, 0x90}, errs.ErrUnsupportedFormat},
		{"point without org", append([]byte{3}, make([]byte, 28)...), errs.ErrUnsupportedFormat},
		{"short point", []byte{2, 0, 0}, errs.ErrFormat},
		{"missing fields", []byte{0x80}, errs.ErrMissingField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := r.Reconcile(tt.data)
			require.ErrorIs(t, err, tt.want)
			require.False(t, ok)
			require.Equal(t, schema.MetricData{}, got)
		})
	}
}

func TestReconcile_RedefinitionReplaces(t *testing.T) {
	c := newMapCache()
	r, err := NewReconciler(WithCache(c))
	require.NoError(t, err)
	defer r.Close()
	require.Same(t, c, r.Cache())

	data := cpuLoad()
	defMsg, pointMsg := encodeMessages(t, data)
	_, _, err = r.Reconcile(defMsg)
	require.NoError(t, err)

	// Same key, different Value and Time: the cached definition is refreshed and the
	// join uses the point's own sample.
	data.Value = 7
	data.Time = 2000
	defMsg, _ = encodeMessages(t, data)
	_, _, err = r.Reconcile(defMsg)
	require.NoError(t, err)
	require.Len(t, c.defs, 1)

	got, ok, err := r.Reconcile(pointMsg)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 0.42, got.Value)
	require.Equal(t, int64(1000), got.Time)
}

func TestReconciler_DecodeThenApply(t *testing.T) {
	r, err := NewReconciler()
	require.NoError(t, err)
	defer r.Close()

	data := cpuLoad()
	defMsg, pointMsg := encodeMessages(t, data)

	point, err := r.Decode(pointMsg)
	require.NoError(t, err)
	def, err := r.Decode(defMsg)
	require.NoError(t, err)

	// Decoding alone does not touch the cache.
	_, ok, err := r.Reconcile(pointMsg)
	require.NoError(t, err)
	require.False(t, ok)

	got, ok, err := r.Apply(def)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, data.Equal(got))

	got, ok, err = r.Apply(point)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, data.Equal(got))

	_, err = r.Decode([]byte{0})
	require.ErrorIs(t, err, errs.ErrUnsupportedFormat)

	_, ok, err = r.Apply(Record{})
	require.ErrorIs(t, err, errs.ErrFormat)
	require.False(t, ok)
}

func TestReconcile_CacheExpiry(t *testing.T) {
	r, err := NewReconciler(WithCacheTTL(20 * time.Millisecond))
	require.NoError(t, err)
	defer r.Close()

	defMsg, pointMsg := encodeMessages(t, cpuLoad())
	_, _, err = r.Reconcile(defMsg)
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	_, ok, err := r.Reconcile(pointMsg)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReconcile_CustomDigester(t *testing.T) {
	r, err := NewReconciler(WithDigester(schema.NewDigester(nil)))
	require.NoError(t, err)
	defer r.Close()

	defMsg, pointMsg := encodeMessages(t, cpuLoad())
	_, _, err = r.Reconcile(defMsg)
	require.NoError(t, err)

	_, ok, err := r.Reconcile(pointMsg)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestNewReconciler_InvalidOptions(t *testing.T) {
	_, err := NewReconciler(WithCache(nil))
	require.Error(t, err)

	_, err = NewReconciler(WithDigester(nil))
	require.Error(t, err)

	_, err = NewReconciler(WithCacheTTL(0))
	require.Error(t, err)
}

func TestNewReconciler_OwnsCache(t *testing.T) {
	r, err := NewReconciler(WithCacheCapacity(1))
	require.NoError(t, err)
	defer r.Close()

	dc, ok := r.Cache().(*cache.DefinitionCache)
	require.True(t, ok)
	require.Equal(t, cache.DefaultTTL, dc.TTL())

	for i := range 3 {
		data := cpuLoad()
		data.Definition.Name = fmt.Sprintf("m%d", i)
		defMsg, _ := encodeMessages(t, data)
		_, _, err := r.Reconcile(defMsg)
		require.NoError(t, err)
	}
	require.Equal(t, 1, dc.Len())
}

func TestReconciler_Run(t *testing.T) {
	for _, opts := range [][]ReconcilerOption{nil, {WithCache(newMapCache())}} {
		r, err := NewReconciler(opts...)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			r.Run(ctx)
		}()
		cancel()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Run did not return after cancel")
		}
		r.Close()
	}
}

func TestReconcile_Concurrent(t *testing.T) {
	r, err := NewReconciler()
	require.NoError(t, err)
	defer r.Close()

	const series = 32
	defs := make([][]byte, series)
	points := make([][]byte, series)
	for i := range series {
		data := cpuLoad()
		data.Definition.Tags = map[string]string{"host": fmt.Sprintf("h%d", i)}
		data.Value = float64(i)
		defs[i], points[i] = encodeMessages(t, data)
	}

	var wg sync.WaitGroup
	errCh := make(chan error, series*2)
	for i := range series {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if _, _, err := r.Reconcile(defs[i]); err != nil {
				errCh <- err
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			// Points may race ahead of their definition: a miss is fine, a wrong join is not.
			got, ok, err := r.Reconcile(points[i])
			if err != nil {
				errCh <- err
				return
			}
			if ok && got.Definition.Tags["host"] != fmt.Sprintf("h%d", i) {
				errCh <- fmt.Errorf("point %d joined with %v", i, got.Definition.Tags)
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	for i := range series {
		got, ok, err := r.Reconcile(points[i])
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, float64(i), got.Value)
	}
}

func BenchmarkReconcilePoint(b *testing.B) {
	r, err := NewReconciler()
	require.NoError(b, err)
	defer r.Close()

	defMsg, pointMsg := encodeMessages(b, cpuLoad())
	_, _, err = r.Reconcile(defMsg)
	require.NoError(b, err)

	b.ReportAllocs()
	for b.Loop() {
		_, _, _ = r.Reconcile(pointMsg)
	}
}
