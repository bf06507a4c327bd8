package dbusvalue

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	logger    atomic.Pointer[zap.Logger]
	nopLogger = zap.NewNop()
)

// Logger returns the package's logger. It is a no-op logger unless
// SetLogger was called.
func Logger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return nopLogger
}

// SetLogger configures the package's logger. The logger only receives
// debug events about the construction of per-type encoders and
// decoders. A nil logger restores the no-op default.
//
// SetLogger is safe to call concurrently with encoding and decoding.
func SetLogger(l *zap.Logger) {
	logger.Store(l)
}
