// Command precache-dir warms the page cache for a whole directory tree by
// reading its extents straight from the raw block device. The tree is
// walked breadth-first; at every level the segments of the whole frontier
// are sorted globally before a single sequential sweep over the device.
//
// Usage: precache-dir <root-dir> [raw-device]
//
// Without a raw-device argument the device is guessed from the mount table.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sys/unix"

	"github.com/onkernel/precache/lib/config"
	"github.com/onkernel/precache/lib/dirent"
	"github.com/onkernel/precache/lib/extents"
	"github.com/onkernel/precache/lib/logger"
	"github.com/onkernel/precache/lib/otel"
	"github.com/onkernel/precache/lib/paths"
	"github.com/onkernel/precache/lib/procscan"
	"github.com/onkernel/precache/lib/progress"
)

const oneMiB = 1 << 20

var errUsage = errors.New("Usage: precache-dir <root-dir> [raw-device]")

func main() {
	if err := run(); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Println(errUsage)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	args := os.Args[1:]
	if len(args) < 1 {
		return errUsage
	}
	rootDir := args[0]

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

	rawDevice := ""
	if len(args) >= 2 {
		rawDevice = args[1]
	} else {
		scanner := procscan.NewScanner(paths.New(cfg.ProcRoot), logger.NewSubsystemLogger(logger.SubsystemProcscan, logCfg, logHandler))
		rawDevice, err = scanner.GuessDevice(rootDir)
		if err != nil {
			return fmt.Errorf("guess raw device for %s: %w", rootDir, err)
		}
		fmt.Printf("Raw device guessed by examining /proc/mounts: %s\n", rawDevice)
	}

	devFd, err := unix.Open(rawDevice, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("can't open raw device file %s: %w", rawDevice, err)
	}
	defer unix.Close(devFd)

	var st unix.Stat_t
	if err := unix.Lstat(rootDir, &st); err != nil {
		return fmt.Errorf("can't stat %s: %w", rootDir, err)
	}
	rootDev := st.Dev

	extentsLog := logger.NewSubsystemLogger(logger.SubsystemExtents, logCfg, logHandler)
	enum := extents.NewEnumerator(nil, extentsLog, meter)
	reader := extents.NewReader(extentsLog, meter)
	bar := progress.New()

	var totalBytes uint64
	frontier := []string{rootDir}
	for len(frontier) > 0 {
		// Map the directory files themselves; their extents hold the entry
		// blocks that a later walk would otherwise seek for one by one.
		var segments []extents.Segment
		for i, dir := range frontier {
			segs, err := enum.Enumerate(dir)
			if err != nil {
				extentsLog.Debug("skipping directory", "path", dir, "error", err)
			}
			segments = append(segments, segs...)
			bar.Throttled("mapping directories", uint64(i+1), uint64(len(frontier)))
		}
		bar.Finish("mapping directories", uint64(len(frontier)))

		extents.SortSegments(segments)
		for i, seg := range segments {
			totalBytes += reader.ReadSegmentRaw(devFd, seg)
			bar.Throttled("reading raw device", uint64(i+1), uint64(len(segments)))
		}
		bar.Finish("reading raw device", uint64(len(segments)))

		var next []string
		for i, dir := range frontier {
			next = append(next, subdirsOnDevice(dir, rootDev)...)
			bar.Throttled("deriving new tasks", uint64(i+1), uint64(len(frontier)))
		}
		bar.Finish("deriving new tasks", uint64(len(frontier)))

		frontier = next
	}

	fmt.Printf("total data read: %d MiB (%d B)\n", (totalBytes+oneMiB-1)/oneMiB, totalBytes)
	return nil
}

// subdirsOnDevice lists the subdirectories of dir that live on the given
// device. Symlinks are not followed, so a link onto another filesystem
// never drags the walk across a mount point.
func subdirsOnDevice(dir string, dev uint64) []string {
	var subdirs []string
	err := dirent.Walk(dir, func(e dirent.Entry) bool {
		if e.Type != unix.DT_DIR || e.IsDot() {
			return true
		}
		path := joinDir(dir, e.Name)
		var st unix.Stat_t
		if err := unix.Lstat(path, &st); err != nil || st.Dev != dev {
			return true
		}
		subdirs = append(subdirs, path)
		return true
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nError: can't open directory %q\n", dir)
	}
	return subdirs
}

func joinDir(dir, name string) string {
	if len(dir) > 0 && dir[len(dir)-1] == '/' {
		return dir + name
	}
	return dir + "/" + name
}
