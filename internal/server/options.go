package server

import (
	"net/http"
	"strconv"

	"github.com/fpang/rodin-studio/internal/rodin"
)

// optionsFromForm reads the generation options out of the submission form,
// falling back to the defaults for absent or unrecognized values.
func optionsFromForm(r *http.Request) rodin.Options {
	opts := rodin.DefaultOptions()

	switch rodin.ConditionMode(r.FormValue("condition_mode")) {
	case rodin.ConditionFuse:
		opts.ConditionMode = rodin.ConditionFuse
	case rodin.ConditionConcat:
		opts.ConditionMode = rodin.ConditionConcat
	}

	switch rodin.Quality(r.FormValue("quality")) {
	case rodin.QualityLow:
		opts.Quality = rodin.QualityLow
	case rodin.QualityHigh:
		opts.Quality = rodin.QualityHigh
	case rodin.QualityMedium:
		opts.Quality = rodin.QualityMedium
	}

	if format := r.FormValue("geometry_file_format"); format != "" {
		opts.GeometryFormat = format
	}

	if v, err := strconv.ParseBool(r.FormValue("use_hyper")); err == nil {
		opts.UseHyper = v
	}
	if v, err := strconv.ParseBool(r.FormValue("TAPose")); err == nil {
		opts.TAPose = v
	}

	switch rodin.Tier(r.FormValue("tier")) {
	case rodin.TierSketch:
		opts.Tier = rodin.TierSketch
	case rodin.TierRegular:
		opts.Tier = rodin.TierRegular
	}

	switch rodin.Material(r.FormValue("material")) {
	case rodin.MaterialShaded:
		opts.Material = rodin.MaterialShaded
	case rodin.MaterialPBR:
		opts.Material = rodin.MaterialPBR
	}

	return opts
}
