// Package generate drives one generation session end to end: submit the
// multipart request, poll the aggregate sub-job status, and resolve the
// downloadable model once everything is done.
package generate

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/rodin-studio/internal/imaging"
	"github.com/fpang/rodin-studio/internal/rodin"
)

// State is the session's single current phase. Exactly one holds at a time.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StatePolling    State = "polling"
	StateResolving  State = "resolving"
	StateDone       State = "done"
	StateFailed     State = "failed"
	StateStalled    State = "stalled"
)

// Terminal errors with user-facing messages. The exact strings are part of
// the UI contract.
var (
	ErrMissingJobData = errors.New("Missing required data for status checking")
	ErrTaskFailed     = errors.New("Generation task failed")
	ErrNoGLB          = errors.New("No GLB file found in the results")
	ErrNoFiles        = errors.New("No files available for download")
	ErrStalled        = errors.New("Generation stalled: no terminal status before the polling ceiling")
)

const (
	// DefaultPollInterval is the fixed delay between status polls.
	DefaultPollInterval = 3 * time.Second

	// DefaultMaxPolls caps the polling loop; exceeding it ends the session
	// in the stalled state instead of polling forever.
	DefaultMaxPolls = 200

	// DefaultProxyPath is the local same-origin route the viewer URL is
	// rewritten through, carrying the remote URL as a query parameter.
	DefaultProxyPath = "/api/proxy"
)

// Input is everything one submission needs.
type Input struct {
	Prompt   string
	Images   []rodin.UploadImage
	Analyses []imaging.Analysis
	Options  rodin.Options
}

// Result is the terminal artifact of a successful session.
type Result struct {
	TaskUUID string
	// ModelURL is the proxy-wrapped URL handed to the viewer.
	ModelURL string
	// DownloadURL is the original remote URL for user-initiated download.
	DownloadURL string
	// Assets is the full listing, which also feeds the archive route.
	Assets []rodin.Asset
}

// Observer receives every state change and status snapshot. Snapshots
// replace the previous job set wholesale.
type Observer func(state State, jobs []rodin.JobStatus)

// Orchestrator runs generation sessions against one API client.
type Orchestrator struct {
	client       *rodin.Client
	pollInterval time.Duration
	maxPolls     int
	proxyPath    string
}

// New creates an orchestrator. Zero values select the defaults.
func New(client *rodin.Client, pollInterval time.Duration, maxPolls int, proxyPath string) *Orchestrator {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if maxPolls <= 0 {
		maxPolls = DefaultMaxPolls
	}
	if proxyPath == "" {
		proxyPath = DefaultProxyPath
	}
	return &Orchestrator{
		client:       client,
		pollInterval: pollInterval,
		maxPolls:     maxPolls,
		proxyPath:    proxyPath,
	}
}

// Run executes one full session. The context is the session's cancellation
// token: callers abandoning the result view cancel it, which stops the
// polling loop immediately. The observer may be nil.
func (o *Orchestrator) Run(ctx context.Context, in Input, observe Observer) (*Result, error) {
	notify := func(state State, jobs []rodin.JobStatus) {
		if observe != nil {
			observe(state, jobs)
		}
	}

	notify(StateSubmitting, nil)

	derived := DeriveFields(in.Analyses)
	submitted, err := o.client.Submit(ctx, in.Images, in.Prompt, in.Options, derived)
	if err != nil {
		notify(StateFailed, nil)
		return nil, err
	}
	if submitted.Jobs.SubscriptionKey == "" || submitted.UUID == "" {
		notify(StateFailed, nil)
		return nil, ErrMissingJobData
	}

	jobs, err := o.poll(ctx, submitted.Jobs.SubscriptionKey, notify)
	if err != nil {
		if errors.Is(err, ErrStalled) {
			notify(StateStalled, jobs)
		} else {
			notify(StateFailed, jobs)
		}
		return nil, err
	}

	notify(StateResolving, jobs)
	result, err := o.resolve(ctx, submitted.UUID)
	if err != nil {
		notify(StateFailed, jobs)
		return nil, err
	}

	notify(StateDone, jobs)
	return result, nil
}

// poll re-checks the subscription on a fixed cadence until every sub-job is
// Done. Each tick is a discrete unit: the next poll is scheduled only after
// the previous round trip completes.
func (o *Orchestrator) poll(ctx context.Context, subscriptionKey string, notify Observer) ([]rodin.JobStatus, error) {
	var jobs []rodin.JobStatus

	for attempt := 1; ; attempt++ {
		if attempt > o.maxPolls {
			log.Warn().Int("attempts", o.maxPolls).Msg("Polling ceiling reached, stalling session")
			return jobs, ErrStalled
		}

		select {
		case <-ctx.Done():
			return jobs, ctx.Err()
		case <-time.After(o.pollInterval):
		}

		status, err := o.client.Status(ctx, subscriptionKey)
		if err != nil {
			return jobs, err
		}
		if len(status.Jobs) == 0 {
			return jobs, fmt.Errorf("status response contained no jobs")
		}

		jobs = status.Jobs
		notify(StatePolling, jobs)

		done := 0
		for _, job := range jobs {
			switch job.Status {
			case rodin.StatusFailed:
				log.Error().Str("jobUuid", job.UUID).Msg("Sub-job failed")
				return jobs, ErrTaskFailed
			case rodin.StatusDone:
				done++
			}
		}

		log.Debug().
			Int("attempt", attempt).
			Int("done", done).
			Int("total", len(jobs)).
			Msg("Poll tick")

		if done == len(jobs) {
			return jobs, nil
		}
	}
}

// resolve fetches the download listing and selects the display asset: the
// first filename ending in .glb, case-insensitive.
func (o *Orchestrator) resolve(ctx context.Context, taskUUID string) (*Result, error) {
	listing, err := o.client.Download(ctx, taskUUID)
	if err != nil {
		return nil, err
	}
	if listing.Error != "OK" {
		return nil, fmt.Errorf("download listing error: %s", listing.Error)
	}
	if len(listing.List) == 0 {
		return nil, ErrNoFiles
	}

	for _, asset := range listing.List {
		if strings.HasSuffix(strings.ToLower(asset.Name), ".glb") {
			log.Info().Str("asset", asset.Name).Str("taskUuid", taskUUID).Msg("Display asset resolved")
			return &Result{
				TaskUUID:    taskUUID,
				ModelURL:    o.proxyPath + "?url=" + url.QueryEscape(asset.URL),
				DownloadURL: asset.URL,
				Assets:      listing.List,
			}, nil
		}
	}

	return nil, ErrNoGLB
}

// Thresholds for the derived submission fields.
const (
	edgeEnhancementContrast = 0.5
	highDetailBrightness    = 0.7
)

// DeriveFields computes the optional payload fields from the reference
// image analyses. With no images every field stays unset.
func DeriveFields(analyses []imaging.Analysis) rodin.DerivedFields {
	if len(analyses) == 0 {
		return rodin.DerivedFields{}
	}

	var contrastSum, brightnessSum float64
	anyTransparent := false
	for _, a := range analyses {
		contrastSum += a.Contrast
		brightnessSum += a.Brightness
		if a.HasTransparency {
			anyTransparent = true
		}
	}
	n := float64(len(analyses))

	derived := rodin.DerivedFields{
		EdgeEnhancement:      contrastSum/n > edgeEnhancementContrast,
		PreserveTransparency: anyTransparent,
		DetailLevel:          "medium",
	}
	if brightnessSum/n > highDetailBrightness {
		derived.DetailLevel = "high"
	}
	return derived
}
