package otel

import (
	"fmt"
	"os"
	"sync/atomic"
)

// traceEnabled is set once at package init. Atomic because tests flip it
// while the UI goroutine reads it.
var traceEnabled atomic.Bool

func init() {
	traceEnabled.Store(os.Getenv("SIGNAGE_TRACE") != "")
}

// TraceEnabled reports whether SIGNAGE_TRACE is set.
func TraceEnabled() bool {
	return traceEnabled.Load()
}

// setTraceEnabled overrides the traceEnabled flag for testing.
func setTraceEnabled(v bool) {
	traceEnabled.Store(v)
}

// Trace records the type of a message handled by comp. No-op unless tracing
// is enabled, so it is safe on hot paths such as the UI update loop.
func (l *Logger) Trace(comp string, msg any) {
	if l == nil || !TraceEnabled() {
		return
	}
	l.Emit(Event{Level: LevelDebug, Kind: KindMsgReceived, Comp: comp, Msg: fmt.Sprintf("%T", msg)})
}
