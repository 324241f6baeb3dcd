package codec

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/capnp-layout/layout"
	"github.com/wippyai/capnp-layout/schema"
)

const (
	// DefaultMaxDepth bounds pointer nesting in both directions.
	DefaultMaxDepth = 64
	// DefaultTraversalLimitWords bounds the words a decode may visit.
	DefaultTraversalLimitWords = 8 << 20
)

// Options configures an Encoder or Decoder. Zero fields take defaults.
type Options struct {
	Logger              *zap.Logger
	MaxDepth            int
	TraversalLimitWords uint64
}

func (o Options) withDefaults() Options {
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.TraversalLimitWords == 0 {
		o.TraversalLimitWords = DefaultTraversalLimitWords
	}
	if o.Logger == nil {
		o.Logger = Logger()
	}
	return o
}

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the codec package's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger configures the codec package's logger.
func SetLogger(l *zap.Logger) {
	logger = l
}

// NewPlanner returns a layout planner that encodes pointer defaults with
// this package, so every planned field carries its DefaultBytes.
func NewPlanner(file *schema.File, opts layout.Options) *layout.Planner {
	opts.Defaults = defaultEncoder{}
	return layout.NewPlanner(file, opts)
}
