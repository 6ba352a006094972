package bridge

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var logger atomic.Pointer[zap.Logger]

// Logger returns the bridge's diagnostic logger.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// SetLogger installs the diagnostic logger used for swallowed dispatch
// errors. Pass nil to restore the no-op default.
func SetLogger(l *zap.Logger) {
	logger.Store(l)
}

// reportUnraisable records a dispatch failure that has no caller to return
// to. The error is cleared after reporting; it never reaches the engine.
func reportUnraisable(pv, method string, err error) {
	Logger().Error("unraisable dispatch error",
		zap.String("pv", pv),
		zap.String("method", method),
		zap.Error(err),
	)
}
