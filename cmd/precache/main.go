// Command precache warms the page cache for a list of files. Every file is
// resolved through the overlay mapper, mapped to its physical extents, and
// the combined extent list is read back in disk order.
//
// Usage: precache <file> [file...]
//
// When stdin is not a terminal, each input line names an additional file.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/term"

	"github.com/onkernel/precache/lib/config"
	"github.com/onkernel/precache/lib/encfs"
	"github.com/onkernel/precache/lib/extents"
	"github.com/onkernel/precache/lib/logger"
	"github.com/onkernel/precache/lib/otel"
	"github.com/onkernel/precache/lib/paths"
	"github.com/onkernel/precache/lib/procscan"
	"github.com/onkernel/precache/lib/progress"
)

const oneMiB = 1 << 20

var errUsage = errors.New("usage: precache <file> [file...]")

func main() {
	if err := run(); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		slog.Error("precache terminated", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	files := os.Args[1:]
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if line := scanner.Text(); line != "" {
				files = append(files, line)
			}
		}
	}
	if len(files) == 0 {
		return errUsage
	}

	otelProvider, otelShutdown, err := otel.Init(context.Background(), otel.Config{
		Enabled:           cfg.OtelEnabled,
		Endpoint:          cfg.OtelEndpoint,
		ServiceName:       cfg.OtelServiceName,
		ServiceInstanceID: cfg.OtelServiceInstanceID,
		Insecure:          cfg.OtelInsecure,
	})
	if err != nil {
		slog.Warn("failed to initialize OpenTelemetry, continuing without telemetry", "error", err)
	}
	if otelShutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			otelShutdown(shutdownCtx)
		}()
	}

	logCfg := logger.NewConfig()
	var logHandler slog.Handler
	var meter metric.Meter
	if otelProvider != nil {
		logHandler = otelProvider.LogHandler
		meter = otelProvider.Meter
	}

	scanner := procscan.NewScanner(paths.New(cfg.ProcRoot), logger.NewSubsystemLogger(logger.SubsystemProcscan, logCfg, logHandler))
	resolver := encfs.NewResolver(scanner, logger.NewSubsystemLogger(logger.SubsystemResolver, logCfg, logHandler), meter)
	if err := resolver.ForceRefreshMounts(); err != nil {
		slog.Warn("initial mount scan failed", "error", err)
	}

	extentsLog := logger.NewSubsystemLogger(logger.SubsystemExtents, logCfg, logHandler)
	enum := extents.NewEnumerator(resolver, extentsLog, meter)
	reader := extents.NewReader(extentsLog, meter)
	bar := progress.New()

	var segments []extents.Segment
	for k, file := range files {
		bar.Throttled("mapping", uint64(k), uint64(len(files)))
		segs, err := enum.Enumerate(file)
		if err != nil {
			// Unreadable inputs are skipped, matching read behavior.
			extentsLog.Debug("skipping file", "path", file, "error", err)
			continue
		}
		segments = append(segments, segs...)
	}
	bar.Finish("mapping", uint64(len(files)))

	extents.SortSegments(segments)

	var totalBytes uint64
	for i, seg := range segments {
		bar.Throttled("reading", uint64(i+1), uint64(len(segments)))
		n, err := reader.ReadSegment(seg)
		if err != nil {
			continue
		}
		totalBytes += n
	}
	bar.Finish("reading", uint64(len(segments)))

	fmt.Printf("total data read: %d MiB (%d B)\n", (totalBytes+oneMiB-1)/oneMiB, totalBytes)
	return nil
}
