// Package monitoring reports unexpected errors, such as a panicking pool task
// or a failed MQTT publish, to the configured error tracker.
package monitoring

import (
	"sync/atomic"
	"time"
)

// Monitor is an error tracker. infra/monitoring provides the Sentry one.
// Recover must be deferred directly by the goroutine it guards.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	Recover()
	Flush(timeout time.Duration)
}

// NopMonitor discards everything.
type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) Recover()                                  {}
func (NopMonitor) Flush(time.Duration)                       {}

type holder struct{ m Monitor }

var current atomic.Pointer[holder]

func init() { current.Store(&holder{m: NopMonitor{}}) }

// Init installs m as the process wide monitor. Nil is ignored.
func Init(m Monitor) {
	if m != nil {
		current.Store(&holder{m: m})
	}
}

func get() Monitor { return current.Load().m }

// CaptureException reports err with tags such as the pool or topic involved.
func CaptureException(err error, tags map[string]string) {
	if err != nil {
		get().CaptureException(err, tags)
	}
}

// Flush waits up to d for buffered reports, typically on shutdown.
func Flush(d time.Duration) { get().Flush(d) }
