package track

import (
	"sync"
	"time"
)

// watchdog runs a fixed-interval liveness check while a job is in flight.
// It is deliberately independent of the push channel's connection state:
// transport flakiness must not fail a job, only observed silence may.
type watchdog struct {
	stop     chan struct{}
	stopOnce sync.Once
}

func startWatchdog(interval time.Duration, tick func()) *watchdog {
	w := &watchdog{stop: make(chan struct{})}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				tick()
			case <-w.stop:
				return
			}
		}
	}()
	return w
}

func (w *watchdog) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}
