package zipline

import (
	"io"
	"strings"
	"sync"
	"time"

	"github.com/zipline/zipline/internal/worker"
)

const (
	zip64Threshold      = 0xFFFFFFFF
	zip64EntryThreshold = 0xFFFF
)

// pendingEntry is the writer-side mutable record described in §3
// Lifecycle: created on Add, mutated in place while the local
// header/payload/descriptor are emitted, then held until Close.
type pendingEntry struct {
	name        string
	nameRaw     []byte
	comment     string
	directory   bool
	compressed  bool
	encrypted   bool
	password    string
	zip64       bool
	level       int
	modTime     time.Time
	crc32       uint32
	compSize    uint64
	uncompSize  uint64
	localOffset uint64
	extraRaw    []byte

	// hasDescriptor records whether emitEntry actually wrote a trailing
	// data descriptor for this entry (bit 3 of the local header's flags
	// mirrors it exactly). A store-method entry with a known source size
	// skips both: crc/sizes are known before the local header is written,
	// so there is nothing left for a descriptor to carry.
	hasDescriptor bool
}

// Writer streams a fresh ZIP archive to a sink in ordered add() calls. A
// Writer owns its sink for the duration of the session.
type Writer struct {
	sink       io.Writer
	cfg        Config
	dispatcher *worker.Dispatcher
	digestTee  *digestTee

	mu      sync.Mutex // guards names/pending/offset/zip64
	names   map[string]bool
	pending []*pendingEntry
	offset  uint64
	zip64   bool // sticky flag

	tickets ticketSerializer
	sinkMu  sync.Mutex // not locked by any method; tickets order writes to sink

	closed bool
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithWriterConfig overrides the process-wide configuration snapshot a
// Writer would otherwise capture at construction.
func WithWriterConfig(cfg Config) WriterOption {
	return func(w *Writer) { w.cfg = cfg }
}

// NewWriter constructs a Writer that streams entries to sink.
func NewWriter(sink io.Writer, opts ...WriterOption) *Writer {
	tee := newDigestTee()
	w := &Writer{
		sink:      digestingWriter{w: sink, tee: tee},
		cfg:       Snapshot(),
		names:     make(map[string]bool),
		digestTee: tee,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.dispatcher = worker.New(w.cfg.MaxWorkers)
	return w
}

// AddOptions controls how a single entry is written.
type AddOptions struct {
	Directory     bool
	Level         int // 0 = store; >0 = deflate level
	Password      string
	Zip64         bool
	SourceSize    int64 // hint for the zip64-promotion rule; -1 if unknown
	ModTime       time.Time
	Comment       string
	ExtraRaw      []byte
	BufferedWrite bool
}

// normalizedName trims trailing whitespace and appends "/" for directory
// entries that don't already carry it, per §4.6 step 2.
func normalizedName(name string, directory bool) string {
	name = strings.TrimRight(name, " \t\r\n")
	if directory && !strings.HasSuffix(name, "/") {
		name += "/"
	}
	return name
}
