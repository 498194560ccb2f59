// Command mdmdump reads MDM messages, one hex or base64 encoded message per line, and
// logs every metric sample it can reconstruct.
//
// Definitions seen during a run are kept in a TTL cache. When snapshot_path is set the
// cache is loaded from that file on start and written back on exit, so points read in
// the next run can still be joined.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/arloliu/mdm"
	"github.com/arloliu/mdm/cache"
	"github.com/arloliu/mdm/snapshot"
)

const appName = "mdmdump"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a TOML config file")
	inputPath := flag.String("input", "", "input file (default stdin)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	logger := newLogger(os.Stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	in := io.Reader(os.Stdin)
	if *inputPath != "" {
		f, err := os.Open(*inputPath)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	return dump(ctx, cfg, in, logger)
}

func newLogger(out io.Writer, level zerolog.Level) zerolog.Logger {
	writer := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}

	return zerolog.New(writer).Level(level).With().Timestamp().Str("app", appName).Logger()
}

// dump wires the cache, reconciler and metrics, processes in and persists the cache.
func dump(ctx context.Context, cfg Config, in io.Reader, logger zerolog.Logger) error {
	decode, err := decoderFor(cfg.InputEncoding)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	metrics, err := mdm.NewMetrics(reg)
	if err != nil {
		return err
	}

	cacheOpts := []cache.Option{cache.WithTTL(cfg.CacheTTL), cache.WithLogger(logger)}
	if cfg.CacheCapacity > 0 {
		cacheOpts = append(cacheOpts, cache.WithCapacity(cfg.CacheCapacity))
	}
	defs, err := cache.New(cacheOpts...)
	if err != nil {
		return err
	}
	defer defs.Close()

	if cfg.SnapshotPath != "" {
		if err := loadSnapshot(cfg.SnapshotPath, defs, logger); err != nil {
			return err
		}
	}

	reconciler, err := mdm.NewReconciler(
		mdm.WithCache(defs),
		mdm.WithLogger(logger),
		mdm.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}
	defer reconciler.Close()

	sweepCtx, cancelSweep := context.WithCancel(ctx)
	defer cancelSweep()
	swept := make(chan struct{})
	go func() {
		defer close(swept)
		defs.Run(sweepCtx)
	}()

	d := &dumper{reconciler: reconciler, decode: decode, workers: cfg.Workers, logger: logger}
	runErr := d.run(ctx, in)
	cancelSweep()
	<-swept

	if cfg.SnapshotPath != "" {
		if err := saveSnapshot(cfg.SnapshotPath, defs, cfg, logger); err != nil {
			return errors.Join(runErr, err)
		}
	}

	logSummary(logger, reg)

	return runErr
}

func loadSnapshot(path string, defs *cache.DefinitionCache, logger zerolog.Logger) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info().Str("path", path).Msg("no snapshot to load")
		return nil
	}
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	n, err := snapshot.Load(f, defs)
	if err != nil {
		return fmt.Errorf("load snapshot %s: %w", path, err)
	}
	logger.Info().Str("path", path).Int("definitions", n).Msg("snapshot loaded")

	return nil
}

// saveSnapshot writes to a temporary file and renames it over path.
func saveSnapshot(path string, defs *cache.DefinitionCache, cfg Config, logger zerolog.Logger) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}

	n, err := snapshot.Save(f, defs, cfg.SnapshotCompression)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("save snapshot %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("save snapshot %s: %w", path, err)
	}
	logger.Info().
		Str("path", path).
		Int("definitions", n).
		Stringer("compression", cfg.SnapshotCompression).
		Msg("snapshot saved")

	return nil
}

func logSummary(logger zerolog.Logger, reg prometheus.Gatherer) {
	families, err := reg.Gather()
	if err != nil {
		logger.Warn().Err(err).Msg("gather metrics")
		return
	}

	ev := logger.Info()
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			name := mf.GetName()
			for _, lp := range m.GetLabel() {
				name += "." + lp.GetValue()
			}
			switch {
			case m.GetCounter() != nil:
				ev = ev.Float64(name, m.GetCounter().GetValue())
			case m.GetGauge() != nil:
				ev = ev.Float64(name, m.GetGauge().GetValue())
			}
		}
	}
	ev.Msg("summary")
}
