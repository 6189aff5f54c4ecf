package imaging

import (
	"image"
	"image/draw"
	"math"
	"sort"

	"github.com/rs/zerolog/log"
)

const (
	// maxDominantColors is how many quantized color buckets are reported,
	// most frequent first.
	maxDominantColors = 5

	// colorBucketStep quantizes each channel into 8 buckets of 32 values.
	colorBucketStep = 32

	// boundsAlphaThreshold is the minimum alpha for a pixel to count as
	// foreground when computing object bounds.
	boundsAlphaThreshold = 50
)

// Color is an 8-bit RGB swatch representing one quantized color bucket.
type Color struct {
	R, G, B uint8
}

// Analysis holds the pixel statistics derived from one reference image.
// It is computed once after decode and never mutated.
type Analysis struct {
	// DominantColors are the most frequent quantized colors, up to five,
	// ordered by pixel count descending with scan-order tie breaking.
	DominantColors []Color

	// Brightness is the mean of per-pixel mean(R,G,B), in [0,1].
	Brightness float64

	// Contrast is the population standard deviation of luminance, /255.
	Contrast float64

	// Sharpness is the normalized Sobel gradient energy over interior
	// pixels. Zero for images narrower or shorter than 3 pixels.
	Sharpness float64

	// AspectRatio is width/height.
	AspectRatio float64

	// HasTransparency is true when any pixel has alpha below 255.
	HasTransparency bool

	// ObjectBounds is the bounding box of pixels with alpha above 50, in
	// source pixel coordinates. Nil when no pixel qualifies.
	ObjectBounds *image.Rectangle

	Width  int
	Height int
}

// Analyze computes the full statistics set for one decoded image.
// It never fails on a valid raster.
func Analyze(img image.Image) Analysis {
	nrgba := toNRGBA(img)
	bounds := nrgba.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	a := Analysis{
		Width:       w,
		Height:      h,
		AspectRatio: float64(w) / float64(h),
	}

	// Main pass: brightness, transparency, object bounds, color buckets,
	// and the luminance plane reused by the contrast and sharpness passes.
	lum := make([]float64, w*h)
	type bucketCount struct {
		color Color
		count int
	}
	counts := make(map[Color]int)
	var order []Color

	minX, minY := w, h
	maxX, maxY := -1, -1
	var brightnessSum float64

	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		for x := 0; x < w; x++ {
			r := row[x*4]
			g := row[x*4+1]
			b := row[x*4+2]
			alpha := row[x*4+3]

			l := (float64(r) + float64(g) + float64(b)) / 3
			lum[y*w+x] = l
			brightnessSum += l

			if alpha < 255 {
				a.HasTransparency = true
			}
			if alpha > boundsAlphaThreshold {
				if x < minX {
					minX = x
				}
				if x > maxX {
					maxX = x
				}
				if y < minY {
					minY = y
				}
				if y > maxY {
					maxY = y
				}
			}

			bucket := Color{
				R: r / colorBucketStep * colorBucketStep,
				G: g / colorBucketStep * colorBucketStep,
				B: b / colorBucketStep * colorBucketStep,
			}
			if _, seen := counts[bucket]; !seen {
				order = append(order, bucket)
			}
			counts[bucket]++
		}
	}

	total := float64(w * h)
	a.Brightness = brightnessSum / total / 255

	if maxX >= 0 {
		r := image.Rect(minX, minY, maxX, maxY)
		a.ObjectBounds = &r
	}

	// Top buckets by count, scan order breaking ties.
	ranked := make([]bucketCount, 0, len(order))
	for _, c := range order {
		ranked = append(ranked, bucketCount{color: c, count: counts[c]})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].count > ranked[j].count
	})
	top := len(ranked)
	if top > maxDominantColors {
		top = maxDominantColors
	}
	for _, bc := range ranked[:top] {
		a.DominantColors = append(a.DominantColors, bc.color)
	}

	a.Contrast = contrast(lum, a.Brightness*255)
	a.Sharpness = sharpness(lum, w, h)

	log.Debug().
		Int("width", w).
		Int("height", h).
		Float64("brightness", a.Brightness).
		Float64("contrast", a.Contrast).
		Float64("sharpness", a.Sharpness).
		Bool("transparency", a.HasTransparency).
		Int("dominantColors", len(a.DominantColors)).
		Msg("Image analysis complete")

	return a
}

// contrast is the population standard deviation of the luminance plane,
// normalized to 8-bit range.
func contrast(lum []float64, mean float64) float64 {
	if len(lum) == 0 {
		return 0
	}
	var sumSq float64
	for _, l := range lum {
		d := l - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq/float64(len(lum))) / 255
}

// sharpness sums the Euclidean norm of the 3x3 Sobel gradient over interior
// pixels and normalizes by the interior area times 255. The one-pixel border
// is excluded from both the sum and the normalizing area.
func sharpness(lum []float64, w, h int) float64 {
	if w < 3 || h < 3 {
		return 0
	}

	var sum float64
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			tl := lum[(y-1)*w+x-1]
			tc := lum[(y-1)*w+x]
			tr := lum[(y-1)*w+x+1]
			ml := lum[y*w+x-1]
			mr := lum[y*w+x+1]
			bl := lum[(y+1)*w+x-1]
			bc := lum[(y+1)*w+x]
			br := lum[(y+1)*w+x+1]

			gx := -tl + tr - 2*ml + 2*mr - bl + br
			gy := -tl - 2*tc - tr + bl + 2*bc + br
			sum += math.Sqrt(gx*gx + gy*gy)
		}
	}

	return sum / (float64((w-2)*(h-2)) * 255)
}

// toNRGBA converts any decoded image to non-premultiplied RGBA with the
// origin at (0,0), so pixel loops can index the buffer directly.
func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Bounds().Min == image.Pt(0, 0) {
		return n
	}
	bounds := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
	return dst
}
