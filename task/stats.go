package task

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// warmupSamples is the number of leading benchmark iterations excluded
// from the reported mean, they carry one time allocation and cache
// warming costs
const warmupSamples = 2

// meanLatency averages the given samples, discarding the warm-up
// iterations when enough samples exist
func meanLatency(samples []time.Duration) time.Duration {

	if len(samples) == 0 {
		return 0
	}

	use := samples

	if len(use) > warmupSamples {
		use = use[warmupSamples:]
	}

	secs := make([]float64, len(use))

	for i, d := range use {
		secs[i] = d.Seconds()
	}

	return time.Duration(stat.Mean(secs, nil) * float64(time.Second))
}
