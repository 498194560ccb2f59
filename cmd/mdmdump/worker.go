package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/arloliu/mdm"
	"github.com/arloliu/mdm/internal/pool"
	"github.com/arloliu/mdm/schema"
)

// maxLineSize bounds one encoded input line.
const maxLineSize = 1024 * 1024

type job struct {
	num int
	rec mdm.Record
}

type lineDecoder func(dst, src []byte) ([]byte, error)

func decoderFor(encoding string) (lineDecoder, error) {
	switch encoding {
	case inputHex:
		return hex.AppendDecode, nil
	case inputBase64:
		return base64.StdEncoding.AppendDecode, nil
	default:
		return nil, fmt.Errorf("unknown input encoding %q", encoding)
	}
}

// dumper reconciles encoded MDM messages read line by line and logs every sample.
type dumper struct {
	reconciler *mdm.Reconciler
	decode     lineDecoder
	workers    int
	logger     zerolog.Logger
}

// run reads in until EOF or ctx is done. Blank lines and lines starting with '#' are
// skipped. Bad lines are logged and skipped; only read errors stop the run.
//
// Lines are decoded in input order and routed to workers by series key, so every
// point is applied after the definitions that precede it for the same series.
func (d *dumper) run(ctx context.Context, in io.Reader) error {
	g, gctx := errgroup.WithContext(ctx)
	shards := make([]chan job, d.workers)
	for i := range shards {
		shards[i] = make(chan job, 64)
	}

	g.Go(func() error {
		defer func() {
			for _, ch := range shards {
				close(ch)
			}
		}()

		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		num := 0
		for scanner.Scan() {
			num++
			text := bytes.TrimSpace(scanner.Bytes())
			if len(text) == 0 || text[0] == '#' {
				continue
			}
			rec, ok := d.decodeLine(num, text)
			if !ok {
				continue
			}
			select {
			case shards[shardOf(rec, len(shards))] <- job{num: num, rec: rec}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}

		return scanner.Err()
	})

	for _, ch := range shards {
		g.Go(func() error {
			for j := range ch {
				d.apply(j)
			}

			return nil
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

// shardOf maps a record to a worker by series key. Records whose key cannot be
// computed go to the first worker, where Apply reports the error.
func shardOf(rec mdm.Record, n int) int {
	key, err := rec.Key()
	if err != nil {
		return 0
	}

	return int(binary.LittleEndian.Uint64(key.ID[:8]) % uint64(n)) //nolint:gosec // n is a positive worker count
}

func (d *dumper) decodeLine(num int, text []byte) (mdm.Record, bool) {
	buf := pool.GetRecordBuffer()
	defer pool.PutRecordBuffer(buf)

	buf.Grow(len(text))
	var err error
	buf.B, err = d.decode(buf.B, text)
	if err != nil {
		d.logger.Warn().Err(err).Int("line", num).Msg("undecodable input line")
		return mdm.Record{}, false
	}

	rec, err := d.reconciler.Decode(buf.B)
	if err != nil {
		d.logger.Warn().Err(err).Int("line", num).Str("kind", mdm.ErrorKind(err)).Msg("invalid message")
		return mdm.Record{}, false
	}

	return rec, true
}

func (d *dumper) apply(j job) {
	sample, ok, err := d.reconciler.Apply(j.rec)
	switch {
	case err != nil:
		d.logger.Warn().Err(err).Int("line", j.num).Str("kind", mdm.ErrorKind(err)).Msg("invalid message")
	case !ok:
		d.logger.Debug().Int("line", j.num).Msg("point without cached definition")
	default:
		logSample(d.logger, j.num, sample)
	}
}

func logSample(logger zerolog.Logger, num int, s schema.MetricData) {
	tags := zerolog.Dict()
	for _, k := range slices.Sorted(maps.Keys(s.Definition.Tags)) {
		tags.Str(k, s.Definition.Tags[k])
	}

	logger.Info().
		Int("line", num).
		Str("name", s.Definition.Name).
		Int32("org", s.Definition.OrgID).
		Int32("interval", s.Definition.Interval).
		Str("unit", s.Definition.Unit).
		Str("mtype", s.Definition.Mtype).
		Dict("tags", tags).
		Float64("value", s.Value).
		Int64("time", s.Time).
		Msg("metric")
}
