package readdirtrack

import (
	"sync"

	"github.com/onkernel/precache/lib/config"
	"github.com/onkernel/precache/lib/encfs"
	"github.com/onkernel/precache/lib/extents"
	"github.com/onkernel/precache/lib/logger"
	"github.com/onkernel/precache/lib/paths"
	"github.com/onkernel/precache/lib/procscan"
)

var (
	defaultTrackerOnce sync.Once
	defaultTracker     *Tracker
)

// Default returns the process-wide Tracker, assembling it on first use:
// syscall-backed hooks, process-table mount discovery, and the disk extent
// engine, all configured from the environment. An interposition shim routes
// every intercepted call through this instance and calls Shutdown from its
// unload hook.
func Default() *Tracker {
	defaultTrackerOnce.Do(func() {
		cfg := config.Load()
		logCfg := logger.NewConfig()

		scanner := procscan.NewScanner(paths.New(cfg.ProcRoot),
			logger.NewSubsystemLogger(logger.SubsystemProcscan, logCfg, nil))
		resolver := encfs.NewResolver(scanner,
			logger.NewSubsystemLogger(logger.SubsystemResolver, logCfg, nil), nil)

		extentsLog := logger.NewSubsystemLogger(logger.SubsystemExtents, logCfg, nil)
		engine := DiskEngine{
			Enumerator: extents.NewEnumerator(resolver, extentsLog, nil),
			Reader:     extents.NewReader(extentsLog, nil),
		}

		defaultTracker = New(DefaultHooks(), resolver, engine,
			Config{Sync: cfg.Sync, CacheLimit: cfg.CacheLimit},
			logger.NewSubsystemLogger(logger.SubsystemTracker, logCfg, nil), nil)
	})
	return defaultTracker
}
