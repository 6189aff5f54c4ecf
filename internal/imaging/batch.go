package imaging

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// MaxBatchImages is the hard cap on reference images per submission.
// Images beyond the cap are dropped, keeping the earliest added.
const MaxBatchImages = 5

// Item is one successfully processed reference image.
type Item struct {
	Source     *SourceImage
	Analysis   Analysis
	Normalized []byte
}

// ItemError records one image whose pipeline failed. Sibling images are
// unaffected.
type ItemError struct {
	Name string
	Err  error
}

// BatchResult is the outcome of processing one submission's image set.
type BatchResult struct {
	// Items are the accepted images, in the order they were added.
	Items []Item

	// Dropped are the names of images beyond the MaxBatchImages cap.
	Dropped []string

	// Failed are per-image pipeline failures (decode or encode).
	Failed []ItemError
}

// Notice returns the user-visible message for dropped images, or "" when
// nothing was dropped.
func (r BatchResult) Notice() string {
	if len(r.Dropped) == 0 {
		return ""
	}
	return "A maximum of 5 images can be submitted per generation; extra images were not included."
}

// Analyses returns the accepted images' statistics in order.
func (r BatchResult) Analyses() []Analysis {
	out := make([]Analysis, len(r.Items))
	for i, item := range r.Items {
		out[i] = item.Analysis
	}
	return out
}

// NormalizedImages returns the accepted images' upload bytes in order.
func (r BatchResult) NormalizedImages() [][]byte {
	out := make([][]byte, len(r.Items))
	for i, item := range r.Items {
		out[i] = item.Normalized
	}
	return out
}

// ProcessSources analyzes and normalizes a set of decoded images in
// parallel. Each image is independent: one failure excludes only that image,
// and there is no shared mutable state between the per-image pipelines.
func ProcessSources(ctx context.Context, sources []*SourceImage, target int) BatchResult {
	var result BatchResult

	if len(sources) > MaxBatchImages {
		for _, src := range sources[MaxBatchImages:] {
			result.Dropped = append(result.Dropped, src.Name)
		}
		log.Warn().
			Int("submitted", len(sources)).
			Int("accepted", MaxBatchImages).
			Msg("Image cap exceeded, dropping extra images")
		sources = sources[:MaxBatchImages]
	}

	type slot struct {
		item Item
		err  error
	}
	slots := make([]slot, len(sources))

	g, ctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				slots[i].err = err
				return nil
			}
			normalized, err := Normalize(src.Image, target)
			if err != nil {
				slots[i].err = err
				return nil
			}
			slots[i].item = Item{
				Source:     src,
				Analysis:   Analyze(src.Image),
				Normalized: normalized,
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, s := range slots {
		if s.err != nil {
			log.Warn().Err(s.err).Str("image", sources[i].Name).Msg("Image pipeline failed, excluding from upload set")
			result.Failed = append(result.Failed, ItemError{Name: sources[i].Name, Err: s.err})
			continue
		}
		result.Items = append(result.Items, s.item)
	}

	return result
}

// LoadBatch decodes the given paths and runs the batch pipeline. The image
// cap applies to the submitted set before decoding, so a decode failure
// never promotes a capped image back in. Decode failures are reported per
// image without aborting the batch.
func LoadBatch(ctx context.Context, paths []string, target int) BatchResult {
	var dropped []string
	if len(paths) > MaxBatchImages {
		dropped = append(dropped, paths[MaxBatchImages:]...)
		log.Warn().
			Int("submitted", len(paths)).
			Int("accepted", MaxBatchImages).
			Msg("Image cap exceeded, dropping extra images")
		paths = paths[:MaxBatchImages]
	}

	var sources []*SourceImage
	var failed []ItemError

	for _, path := range paths {
		src, err := Load(path)
		if err != nil {
			log.Warn().Err(err).Str("image", path).Msg("Skipping undecodable image")
			failed = append(failed, ItemError{Name: path, Err: err})
			continue
		}
		sources = append(sources, src)
	}

	result := ProcessSources(ctx, sources, target)
	result.Dropped = append(dropped, result.Dropped...)
	result.Failed = append(failed, result.Failed...)
	return result
}
