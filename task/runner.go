package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/edgecv/go-detpipe"
	"github.com/edgecv/go-detpipe/input"
	"github.com/edgecv/go-detpipe/output"
	"github.com/edgecv/go-detpipe/postprocess/result"
	"github.com/sirupsen/logrus"
)

// State is the terminal condition of a run
type State int

const (
	// StateIdle means the runner has not been started
	StateIdle State = iota
	// StateRunning means the loop is still executing
	StateRunning
	// StateCompleted means the run ended normally, by source exhaustion,
	// frame budget or fixed iteration count
	StateCompleted
	// StateCancelled means the run was stopped by an external
	// cancellation signal
	StateCancelled
	// StateFailed means an inference or sink error aborted the run
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DefaultRepeatCount is the benchmark iteration count used by RunRepeat
// when none is given
const DefaultRepeatCount = 1000

// Report summarizes a finished run
type Report struct {
	// State is the terminal state of the run
	State State
	// Frames is the number of frames processed
	Frames uint64
	// Detections is the total number of objects detected across all
	// processed frames
	Detections int
	// AvgInference is the mean inference latency, only recorded by
	// RunRepeat
	AvgInference time.Duration
}

// Runner drives the pull, infer, render loop on a single worker goroutine.
// Each Run method consumes the source and sink and closes them on every
// exit path
type Runner struct {
	Source input.Source
	Model  detpipe.Model
	Sink   output.Sink

	// MaxFrames bounds RunContinuous, zero means unlimited
	MaxFrames uint64

	// Watchdog guards graceful shutdown after cancellation.  Left nil a
	// default watchdog is used
	Watchdog *Watchdog

	closeOnce sync.Once
	closeErr  error
}

// closeAll releases the source and sink once, keeping the first error.
// Later calls return the same result, so whichever exit path closes first
// the error still reaches finish
func (r *Runner) closeAll() error {

	r.closeOnce.Do(func() {

		r.closeErr = r.Sink.Close()

		if cerr := r.Source.Close(); cerr != nil && r.closeErr == nil {
			r.closeErr = cerr
		}
	})

	return r.closeErr
}

// finish closes everything and folds a close failure into the run outcome.
// A run that cannot finalize its sink has not succeeded, an unwritten video
// trailer is lost data
func (r *Runner) finish(report *Report, runErr error) error {

	cerr := r.closeAll()

	if runErr != nil {
		return runErr
	}

	if cerr != nil {
		if report.State == StateCompleted {
			report.State = StateFailed
		}
		return fmt.Errorf("close error: %w", cerr)
	}

	return nil
}

// process runs one frame through the model and the sink
func (r *Runner) process(frame *detpipe.Frame) (result.DetectResult, time.Duration, error) {

	start := time.Now()

	detections, err := r.Model.Infer(frame)

	if err != nil {
		return result.DetectResult{}, 0, fmt.Errorf("inference error: %w", err)
	}

	elapsed := time.Since(start)

	if err := r.Sink.Write(frame, detections); err != nil {
		return result.DetectResult{}, 0, fmt.Errorf("sink error: %w", err)
	}

	return detections, elapsed, nil
}

// RunOnce pulls exactly one frame, runs inference and rendering on it and
// terminates.  A source with no frames is an error
func (r *Runner) RunOnce() (report Report, err error) {

	report = Report{State: StateRunning}

	defer func() { err = r.finish(&report, err) }()

	frame, err := r.Source.Read()

	if err != nil {
		report.State = StateFailed
		if errors.Is(err, input.ErrEndOfStream) {
			return report, fmt.Errorf("source produced no frames")
		}
		return report, err
	}

	detections, elapsed, err := r.process(frame)

	if err != nil {
		report.State = StateFailed
		return report, err
	}

	report.State = StateCompleted
	report.Frames = 1
	report.Detections = detections.Count()
	report.AvgInference = elapsed

	logrus.WithFields(logrus.Fields{
		"objects":   detections.Count(),
		"inference": elapsed,
	}).Info("one-shot run complete")

	return report, nil
}

// RunRepeat pulls one frame and re-runs inference and rendering on it the
// given number of times, recording per iteration latency.  Iterations of
// zero or below run the default benchmark count.  A slow iteration never
// aborts the loop, only a real inference or sink error does
func (r *Runner) RunRepeat(iterations int) (report Report, err error) {

	if iterations <= 0 {
		iterations = DefaultRepeatCount
	}

	report = Report{State: StateRunning}

	defer func() { err = r.finish(&report, err) }()

	frame, err := r.Source.Read()

	if err != nil {
		report.State = StateFailed
		if errors.Is(err, input.ErrEndOfStream) {
			return report, fmt.Errorf("source produced no frames")
		}
		return report, err
	}

	samples := make([]time.Duration, 0, iterations)

	for i := 0; i < iterations; i++ {

		detections, elapsed, err := r.process(frame)

		if err != nil {
			report.State = StateFailed
			return report, err
		}

		logrus.WithFields(logrus.Fields{
			"iteration": i,
			"inference": elapsed,
		}).Debug("benchmark iteration complete")

		samples = append(samples, elapsed)
		report.Frames++
		report.Detections += detections.Count()
	}

	report.State = StateCompleted
	report.AvgInference = meanLatency(samples)

	logrus.WithFields(logrus.Fields{
		"iterations":    iterations,
		"avg_inference": report.AvgInference,
	}).Info("benchmark run complete")

	return report, nil
}

// RunContinuous loops pull, infer, render until the source is exhausted,
// the frame budget is reached or the context is cancelled.  Cancellation
// is polled without blocking once per frame, before the pull.  On
// cancellation the watchdog is armed so a stalled shutdown cannot hang the
// process, and the run ends with StateCancelled and no error
func (r *Runner) RunContinuous(ctx context.Context) (report Report, err error) {

	report = Report{State: StateRunning}

	watchdog := r.Watchdog

	if watchdog == nil {
		watchdog = &Watchdog{}
	}

	defer func() { err = r.finish(&report, err) }()

	for {

		select {
		case <-ctx.Done():
			logrus.Warn("cancellation received, stopping run")
			report.State = StateCancelled

			// the close work itself runs under the watchdog: if a sink
			// flush stalls past the grace period the process is killed
			watchdog.Arm()
			cerr := r.closeAll()
			watchdog.Disarm()

			if cerr != nil {
				err = fmt.Errorf("close error: %w", cerr)
			}

			return report, err
		default:
		}

		frame, err := r.Source.Read()

		if errors.Is(err, input.ErrEndOfStream) {
			report.State = StateCompleted
			logrus.Info("source exhausted, stopping run")
			return report, nil
		}

		if err != nil {
			report.State = StateFailed
			return report, fmt.Errorf("source error: %w", err)
		}

		detections, elapsed, err := r.process(frame)

		if err != nil {
			report.State = StateFailed
			return report, err
		}

		// the counter wraps on extremely long runs rather than stopping
		report.Frames++
		report.Detections += detections.Count()

		logrus.WithFields(logrus.Fields{
			"frame":     report.Frames,
			"objects":   detections.Count(),
			"inference": elapsed,
		}).Debug("frame processed")

		if r.MaxFrames > 0 && report.Frames >= r.MaxFrames {
			report.State = StateCompleted
			logrus.WithField("frames", report.Frames).
				Info("frame budget reached, stopping run")
			return report, nil
		}
	}
}
