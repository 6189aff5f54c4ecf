package prompt

import "github.com/fpang/rodin-studio/internal/rodin"

// qualityModifierTables maps each quality tier to its fixed, ordered
// modifier list. The top three entries of the matching tier are appended to
// the enhanced prompt; unrecognized tiers fall back to medium.
var qualityModifierTables = map[rodin.Quality][]string{
	rodin.QualityHigh: {
		"highly detailed",
		"professional quality",
		"intricate surface detail",
		"photorealistic materials",
		"8k texture fidelity",
	},
	rodin.QualityMedium: {
		"detailed",
		"good quality",
		"clean surface finish",
		"balanced level of detail",
	},
	rodin.QualityLow: {
		"simple shapes",
		"basic detail",
		"optimized geometry",
	},
}

// topQualityModifiers is how many tier modifiers make it into the prompt.
const topQualityModifiers = 3

// hyperPhrases are appended when use_hyper is enabled.
var hyperPhrases = []string{
	"ultra-precise geometry",
	"fine structural accuracy",
	"enhanced surface fidelity",
}

// Tier phrase sets: Regular vs everything else.
var (
	tierRegularPhrases = []string{
		"production-ready topology",
		"balanced proportions",
	}
	tierSketchPhrases = []string{
		"loose sketch-like forms",
		"rapid concept styling",
	}
)

// Condition-mode phrase sets: fuse vs concat.
var (
	fusePhrases = []string{
		"unified single-object composition",
		"seamlessly blended reference features",
	}
	concatPhrases = []string{
		"multi-view consistent reconstruction",
		"each reference treated as a distinct view",
	}
)

// Geometry instructions keyed by quality tier, plus the conditional clauses.
const (
	geometryHigh = "dense mesh with 50k+ vertices for maximum detail"
	geometryMed  = "balanced mesh density of around 18k vertices"
	geometryLow  = "low-poly mesh optimized for real-time use"

	pbrInstruction          = "clean UV unwrap and accurate normals for PBR texturing"
	detailInstruction       = "capture fine surface details from the reference images"
	transparencyInstruction = "preserve transparent regions with appropriate alpha materials"
)

func geometryInstruction(quality rodin.Quality) string {
	switch quality {
	case rodin.QualityHigh:
		return geometryHigh
	case rodin.QualityLow:
		return geometryLow
	default:
		return geometryMed
	}
}
