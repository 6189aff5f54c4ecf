package generate

import (
	"fmt"
	"math"
	"time"

	"github.com/fpang/rodin-studio/internal/rodin"
)

// Status phrases shown while a session runs.
const (
	phraseInitializing = "Initializing generation..."
	phraseFinalizing   = "Finalizing your 3D model..."
	phrasePreparing    = "Preparing generation..."
)

// estimates is the base duration table keyed by use_hyper and quality.
var estimates = map[bool]map[rodin.Quality]time.Duration{
	false: {
		rodin.QualityLow:    90 * time.Second,
		rodin.QualityMedium: 120 * time.Second,
		rodin.QualityHigh:   180 * time.Second,
	},
	true: {
		rodin.QualityLow:    120 * time.Second,
		rodin.QualityMedium: 160 * time.Second,
		rodin.QualityHigh:   240 * time.Second,
	},
}

// Estimate returns the configured base duration for the given options.
// Unrecognized quality values use the medium estimate.
func Estimate(opts rodin.Options) time.Duration {
	table := estimates[opts.UseHyper]
	if d, ok := table[opts.Quality]; ok {
		return d
	}
	return table[rodin.QualityMedium]
}

// Progress is one snapshot of the human-readable session progress,
// recomputed by the caller on a one-second cadence.
type Progress struct {
	Elapsed   time.Duration
	Remaining time.Duration

	// Total counts the sub-jobs plus one unit for the accepted submission;
	// zero while no sub-job has been observed (indeterminate phase).
	Total     int
	Completed int
	Fraction  float64

	Phrase string
}

// Describe derives the progress snapshot from the current job set, the
// session start time, and the configured estimate.
//
// The projected total duration is floored at the estimate and capped from
// below by elapsed/max(progress, 0.1), so a near-zero progress fraction
// never blows the projection up.
func Describe(jobs []rodin.JobStatus, startedAt time.Time, estimate time.Duration, now time.Time) Progress {
	elapsed := now.Sub(startedAt)
	if elapsed < 0 {
		elapsed = 0
	}

	if len(jobs) == 0 {
		remaining := estimate - elapsed
		if remaining < 0 {
			remaining = 0
		}
		return Progress{
			Elapsed:   elapsed,
			Remaining: remaining,
			Phrase:    phraseInitializing,
		}
	}

	done := 0
	processing := false
	for _, job := range jobs {
		switch job.Status {
		case rodin.StatusDone:
			done++
		case rodin.StatusProcessing:
			processing = true
		}
	}

	// The accepted submission counts as one completed unit on top of the
	// sub-jobs.
	total := len(jobs) + 1
	completed := done + 1
	fraction := float64(completed) / float64(total)

	projected := float64(estimate)
	floor := float64(elapsed) / math.Max(fraction, 0.1)
	if floor > projected {
		projected = floor
	}

	remainingSeconds := math.Ceil((projected - float64(elapsed)) / float64(time.Second))
	if remainingSeconds < 0 {
		remainingSeconds = 0
	}

	var phrase string
	switch {
	case done == len(jobs):
		phrase = phraseFinalizing
	case processing:
		phrase = fmt.Sprintf("Processing model (%d/%d)", completed, total)
	default:
		phrase = phrasePreparing
	}

	return Progress{
		Elapsed:   elapsed,
		Remaining: time.Duration(remainingSeconds) * time.Second,
		Total:     total,
		Completed: completed,
		Fraction:  fraction,
		Phrase:    phrase,
	}
}
