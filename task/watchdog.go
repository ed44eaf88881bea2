package task

import (
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultGrace is how long a graceful shutdown may take after cancellation
// before the watchdog terminates the process
const DefaultGrace = 30 * time.Second

// Watchdog force-exits the process when graceful shutdown stalls.  It is
// armed once, when cancellation is observed, and touches nothing but its
// own timer and the exit function
type Watchdog struct {
	// Grace is the shutdown allowance, DefaultGrace when zero
	Grace time.Duration
	// Exit is called when the grace period expires, os.Exit when nil
	Exit func(code int)

	arm   sync.Once
	timer *time.Timer
}

// Arm starts the grace timer.  Subsequent calls are no-ops
func (w *Watchdog) Arm() {

	w.arm.Do(func() {

		grace := w.Grace

		if grace <= 0 {
			grace = DefaultGrace
		}

		exit := w.Exit

		if exit == nil {
			exit = os.Exit
		}

		w.timer = time.AfterFunc(grace, func() {
			logrus.WithField("grace", grace).
				Warn("graceful shutdown overran, forcing exit")
			exit(1)
		})
	})
}

// Disarm stops the grace timer after a completed graceful shutdown
func (w *Watchdog) Disarm() {

	if w.timer != nil {
		w.timer.Stop()
	}
}
