package zipline

import (
	"runtime"
	"sync/atomic"
)

// Config holds process-wide tunables. Initialised with defaults at package
// load; mutated only through Configure, which performs a shallow merge.
// Readers and writers snapshot the config at construction time rather than
// reading it implicitly through the call stack.
type Config struct {
	ChunkSize         int
	MaxWorkers        int
	UseWorkers        bool
	WorkerScriptsPath string
	WorkerScripts     []string
}

const (
	// DefaultChunkSize is the read/write window size; the effective
	// minimum enforced at use is 64 bytes regardless of this value.
	DefaultChunkSize = 512 << 10
	minChunkSize     = 64
)

func defaultConfig() Config {
	workers := runtime.GOMAXPROCS(0)
	if workers < 2 {
		workers = 2
	}
	return Config{
		ChunkSize:  DefaultChunkSize,
		MaxWorkers: workers,
		UseWorkers: true,
	}
}

var globalConfig atomic.Pointer[Config]

func init() {
	cfg := defaultConfig()
	globalConfig.Store(&cfg)
}

// Snapshot returns a copy of the current process-wide configuration.
func Snapshot() Config {
	return *globalConfig.Load()
}

// ConfigPatch describes a partial update applied by Configure. Nil/zero
// fields are left untouched except where explicitly distinguished via
// pointer fields below.
type ConfigPatch struct {
	ChunkSize         *int
	MaxWorkers        *int
	UseWorkers        *bool
	WorkerScriptsPath *string
	WorkerScripts     []string
}

// Configure applies a shallow merge of patch onto the process-wide
// configuration and returns the resulting snapshot. WorkerScriptsPath and
// WorkerScripts are mutually exclusive; setting both in the same patch (or
// leaving an existing one set while setting the other) fails with
// configuration-error.
func Configure(patch ConfigPatch) (Config, error) {
	cur := Snapshot()

	next := cur
	if patch.ChunkSize != nil {
		next.ChunkSize = *patch.ChunkSize
	}
	if next.ChunkSize < minChunkSize {
		next.ChunkSize = minChunkSize
	}
	if patch.MaxWorkers != nil {
		next.MaxWorkers = *patch.MaxWorkers
	}
	if patch.UseWorkers != nil {
		next.UseWorkers = *patch.UseWorkers
	}
	if patch.WorkerScriptsPath != nil {
		next.WorkerScriptsPath = *patch.WorkerScriptsPath
	}
	if patch.WorkerScripts != nil {
		next.WorkerScripts = patch.WorkerScripts
	}
	if next.WorkerScriptsPath != "" && len(next.WorkerScripts) > 0 {
		return cur, newError(KindConfigurationError, "Configure", nil)
	}

	globalConfig.Store(&next)
	return next, nil
}

// effectiveChunkSize applies the "effective minimum 64 bytes" rule on top
// of whatever chunk size a config carries.
func effectiveChunkSize(cfg Config) int {
	if cfg.ChunkSize < minChunkSize {
		return minChunkSize
	}
	return cfg.ChunkSize
}
