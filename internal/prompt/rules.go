package prompt

import (
	"strings"

	"github.com/fpang/rodin-studio/internal/imaging"
)

// Rule derives one optional descriptive phrase from a single image analysis.
// Rules are independent and evaluated in a fixed order; each returns its
// phrase and whether it fired. Keeping them as standalone funcs makes each
// threshold individually testable and the set extensible without touching
// the enhancer.
type Rule func(a imaging.Analysis) (string, bool)

// contextRules is the ordered rule list applied to every image analysis.
var contextRules = []Rule{
	lightingRule,
	contrastRule,
	sharpnessRule,
	aspectRule,
	colorSchemeRule,
	positionRule,
}

// Heuristic thresholds. These mirror observed behavior against the remote
// model; they are descriptive hints, not load-bearing transformations.
const (
	brightLightingThreshold = 0.7
	darkLightingThreshold   = 0.3
	highContrastThreshold   = 0.5
	sharpDetailThreshold    = 0.3
	wideAspectThreshold     = 1.5
	tallAspectThreshold     = 0.7
)

func lightingRule(a imaging.Analysis) (string, bool) {
	switch {
	case a.Brightness > brightLightingThreshold:
		return "bright lighting", true
	case a.Brightness < darkLightingThreshold:
		return "dramatic shadows", true
	}
	return "", false
}

func contrastRule(a imaging.Analysis) (string, bool) {
	if a.Contrast > highContrastThreshold {
		return "high contrast details", true
	}
	return "", false
}

func sharpnessRule(a imaging.Analysis) (string, bool) {
	if a.Sharpness > sharpDetailThreshold {
		return "sharp detailed features", true
	}
	return "", false
}

func aspectRule(a imaging.Analysis) (string, bool) {
	switch {
	case a.AspectRatio > wideAspectThreshold:
		return "elongated proportions", true
	case a.AspectRatio < tallAspectThreshold:
		return "tall proportions", true
	}
	return "", false
}

// colorSchemeRule classifies up to two dominant colors and reports a
// combined color-scheme phrase.
func colorSchemeRule(a imaging.Analysis) (string, bool) {
	if len(a.DominantColors) == 0 {
		return "", false
	}

	colors := a.DominantColors
	if len(colors) > 2 {
		colors = colors[:2]
	}

	var labels []string
	seen := map[string]bool{}
	for _, c := range colors {
		label := classifyColor(c)
		if !seen[label] {
			seen[label] = true
			labels = append(labels, label)
		}
	}

	return strings.Join(labels, " and ") + " color scheme", true
}

// classifyColor maps a swatch to a tone label: near-white and near-black
// first, then dominant-channel warmth.
func classifyColor(c imaging.Color) string {
	switch {
	case c.R > 200 && c.G > 200 && c.B > 200:
		return "bright"
	case c.R < 60 && c.G < 60 && c.B < 60:
		return "dark"
	case c.R >= c.G && c.R >= c.B:
		return "warm"
	case c.B >= c.R && c.B >= c.G:
		return "cool"
	default:
		return "natural green"
	}
}

// positionRule hints at the subject's vertical placement from the object
// bounds, when present.
func positionRule(a imaging.Analysis) (string, bool) {
	if a.ObjectBounds == nil || a.Height == 0 {
		return "", false
	}

	centerY := (a.ObjectBounds.Min.Y + a.ObjectBounds.Max.Y) / 2
	switch {
	case centerY < a.Height/3:
		return "subject positioned in the upper frame", true
	case centerY > a.Height*2/3:
		return "grounded subject placement", true
	}
	return "", false
}
