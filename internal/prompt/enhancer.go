// Package prompt turns the user's raw text, the reference image analyses,
// and the generation options into the annotated prompt sent to the API.
//
// Enhancement is a pure function: identical inputs always produce
// byte-identical output, and it never re-runs pixel analysis. Callers
// re-invoke it on every prompt, image, or option change.
package prompt

import (
	"strings"

	"github.com/fpang/rodin-studio/internal/imaging"
	"github.com/fpang/rodin-studio/internal/rodin"
)

// DefaultBasePrompt substitutes for an empty user prompt.
const DefaultBasePrompt = "3D model"

// Enhanced is the enhancer's output: the assembled prompt plus the
// structured pieces the UI can surface separately.
type Enhanced struct {
	BasePrompt       string
	EnhancedPrompt   string
	TechnicalSpecs   []string
	QualityModifiers []string
}

// Enhance builds the annotated prompt. Clause order is fixed: base text,
// image-derived context, quality modifiers, precision modifiers, geometry
// instructions. Clauses are joined with ". ".
func Enhance(base string, analyses []imaging.Analysis, opts rodin.Options) Enhanced {
	base = strings.TrimSpace(base)
	if base == "" {
		base = DefaultBasePrompt
	}

	clauses := []string{base}

	// Image context clauses: every rule against every analysis, duplicates
	// collapsed keeping first-insertion order so output stays deterministic.
	seen := map[string]bool{}
	for _, a := range analyses {
		for _, rule := range contextRules {
			if phrase, ok := rule(a); ok && !seen[phrase] {
				seen[phrase] = true
				clauses = append(clauses, phrase)
			}
		}
	}

	quality := qualityModifiers(opts.Quality)
	clauses = append(clauses, quality...)

	precision := precisionModifiers(opts)
	clauses = append(clauses, precision...)

	specs := technicalSpecs(analyses, opts)
	clauses = append(clauses, specs...)

	return Enhanced{
		BasePrompt:       base,
		EnhancedPrompt:   strings.Join(clauses, ". "),
		TechnicalSpecs:   specs,
		QualityModifiers: quality,
	}
}

// qualityModifiers returns the top entries of the tier's fixed table;
// medium is the fallback for unrecognized tiers.
func qualityModifiers(quality rodin.Quality) []string {
	table, ok := qualityModifierTables[quality]
	if !ok {
		table = qualityModifierTables[rodin.QualityMedium]
	}
	if len(table) > topQualityModifiers {
		table = table[:topQualityModifiers]
	}
	out := make([]string, len(table))
	copy(out, table)
	return out
}

// precisionModifiers assembles the option-driven phrase sets. These are
// concatenated as-is, not deduplicated.
func precisionModifiers(opts rodin.Options) []string {
	var out []string

	if opts.UseHyper {
		out = append(out, hyperPhrases...)
	}

	if opts.Tier == rodin.TierRegular {
		out = append(out, tierRegularPhrases...)
	} else {
		out = append(out, tierSketchPhrases...)
	}

	if opts.ConditionMode == rodin.ConditionFuse {
		out = append(out, fusePhrases...)
	} else {
		out = append(out, concatPhrases...)
	}

	return out
}

// detailCaptureThreshold is the per-image sharpness above which the
// detail-capture instruction is added.
const detailCaptureThreshold = 0.4

// technicalSpecs builds the geometry instruction list: mesh density by
// quality, PBR handling, and the analysis-conditional clauses.
func technicalSpecs(analyses []imaging.Analysis, opts rodin.Options) []string {
	specs := []string{geometryInstruction(opts.Quality)}

	if opts.Material == rodin.MaterialPBR {
		specs = append(specs, pbrInstruction)
	}

	anySharp := false
	anyTransparent := false
	for _, a := range analyses {
		if a.Sharpness > detailCaptureThreshold {
			anySharp = true
		}
		if a.HasTransparency {
			anyTransparent = true
		}
	}
	if anySharp {
		specs = append(specs, detailInstruction)
	}
	if anyTransparent {
		specs = append(specs, transparencyInstruction)
	}

	return specs
}
