// Package rodin is a client for the Rodin 3D model generation API:
// multipart submission, aggregate status polling, and result download
// listing.
package rodin

// ConditionMode controls how multiple reference images condition the
// generation.
type ConditionMode string

const (
	// ConditionConcat treats each reference image as a distinct view.
	ConditionConcat ConditionMode = "concat"
	// ConditionFuse blends all references into a single object.
	ConditionFuse ConditionMode = "fuse"
)

// Quality selects the generation quality tier.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// Tier selects the generation pipeline.
type Tier string

const (
	TierRegular Tier = "Regular"
	TierSketch  Tier = "Sketch"
)

// Material selects the output material mode.
type Material string

const (
	MaterialPBR    Material = "PBR"
	MaterialShaded Material = "Shaded"
)

// Options are the user-facing generation settings. They feed both the
// prompt enhancer and the submission payload.
type Options struct {
	ConditionMode  ConditionMode
	Quality        Quality
	GeometryFormat string
	UseHyper       bool
	Tier           Tier
	TAPose         bool
	Material       Material
}

// DefaultOptions returns the settings a fresh session starts with.
func DefaultOptions() Options {
	return Options{
		ConditionMode:  ConditionConcat,
		Quality:        QualityMedium,
		GeometryFormat: "glb",
		UseHyper:       false,
		Tier:           TierRegular,
		TAPose:         false,
		Material:       MaterialPBR,
	}
}

// TextureResolution maps the quality tier to the texture_resolution payload
// field. Unrecognized tiers fall back to the medium resolution.
func (o Options) TextureResolution() string {
	switch o.Quality {
	case QualityLow:
		return "512"
	case QualityHigh:
		return "2048"
	default:
		return "1024"
	}
}

// DerivedFields are the optional payload fields computed from the reference
// image analyses. Zero values mean the field is omitted from the payload.
type DerivedFields struct {
	EdgeEnhancement      bool
	PreserveTransparency bool
	DetailLevel          string
}
