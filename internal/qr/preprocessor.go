package qr

import (
	"image"

	"github.com/disintegration/imaging"
)

// Transform identifiers, in catalog order.
const (
	TransformOriginal         = "original"
	TransformGray             = "gray"
	TransformUpscale          = "upscale"
	TransformOtsu             = "otsu"
	TransformAdaptiveGaussian = "adaptive-gaussian"
	TransformAdaptiveMean     = "adaptive-mean"
	TransformCLAHE            = "clahe"
	TransformEqualized        = "equalized"
	TransformSharpened        = "sharpened"
	TransformDenoised         = "denoised"
	TransformMorphClose       = "morph-close"

	TransformRot90  = "rot90"
	TransformRot180 = "rot180"
	TransformRot270 = "rot270"
)

const (
	adaptiveBlock = 11
	adaptiveC     = 2
	// gaussian sigma matching an 11×11 kernel
	adaptiveSigma = 2.0
	claheClip     = 2.0
	claheGrid     = 8
)

var sharpenKernel = [9]float64{
	-1, -1, -1,
	-1, 9, -1,
	-1, -1, -1,
}

// Transform is one entry of the enhancement catalog. Apply returns false
// when the transform does not apply to the given image (conditional upscale).
type Transform struct {
	ID    string
	apply func(image.Image) (image.Image, bool)
}

// Apply runs the transform on img, producing a new image
func (t Transform) Apply(img image.Image) (image.Image, bool) {
	return t.apply(img)
}

// Preprocessor builds the ordered enhancement catalog used by the detector
type Preprocessor struct {
	upscaleTarget int
}

// NewPreprocessor creates a catalog that upscales images whose longest
// side is below upscaleTarget pixels
func NewPreprocessor(upscaleTarget int) *Preprocessor {
	if upscaleTarget <= 0 {
		upscaleTarget = 1000
	}
	return &Preprocessor{
		upscaleTarget: upscaleTarget,
	}
}

// Identity returns the untouched original
func (p *Preprocessor) Identity() Transform {
	return Transform{ID: TransformOriginal, apply: func(img image.Image) (image.Image, bool) {
		return img, true
	}}
}

// Grayscale returns the plain grayscale conversion
func (p *Preprocessor) Grayscale() Transform {
	return Transform{ID: TransformGray, apply: func(img image.Image) (image.Image, bool) {
		return toGray(img), true
	}}
}

// Catalog returns the enhancement variants in the order they are tried.
// Every variant after the upscale works on the (possibly upscaled) grayscale.
func (p *Preprocessor) Catalog() []Transform {
	derived := func(id string, fn func(*image.Gray) *image.Gray) Transform {
		return Transform{ID: id, apply: func(img image.Image) (image.Image, bool) {
			return fn(p.base(img)), true
		}}
	}

	return []Transform{
		p.Grayscale(),
		{ID: TransformUpscale, apply: func(img image.Image) (image.Image, bool) {
			up, ok := p.upscale(toGray(img))
			return up, ok
		}},
		derived(TransformOtsu, otsu),
		derived(TransformAdaptiveGaussian, func(g *image.Gray) *image.Gray {
			return adaptiveGaussian(g, adaptiveSigma, adaptiveC)
		}),
		derived(TransformAdaptiveMean, func(g *image.Gray) *image.Gray {
			return adaptiveMean(g, adaptiveBlock, adaptiveC)
		}),
		derived(TransformCLAHE, func(g *image.Gray) *image.Gray {
			return clahe(g, claheClip, claheGrid)
		}),
		derived(TransformEqualized, equalize),
		derived(TransformSharpened, func(g *image.Gray) *image.Gray {
			return toGray(imaging.Convolve3x3(g, sharpenKernel, nil))
		}),
		derived(TransformDenoised, median3),
		derived(TransformMorphClose, func(g *image.Gray) *image.Gray {
			return morphClose(otsu(g))
		}),
	}
}

// Rotations returns the rotated originals: 90° clockwise, 180°, 90° counter-clockwise
func (p *Preprocessor) Rotations() []Transform {
	rotate := func(id string, fn func(image.Image) *image.NRGBA) Transform {
		return Transform{ID: id, apply: func(img image.Image) (image.Image, bool) {
			return fn(img), true
		}}
	}
	// imaging rotates counter-clockwise
	return []Transform{
		rotate(TransformRot90, imaging.Rotate270),
		rotate(TransformRot180, imaging.Rotate180),
		rotate(TransformRot270, imaging.Rotate90),
	}
}

// base is the grayscale, upscaled when the image is small.
func (p *Preprocessor) base(img image.Image) *image.Gray {
	g := toGray(img)
	if up, ok := p.upscale(g); ok {
		return up
	}
	return g
}

// upscale enlarges g by upscaleTarget/max(w,h) when its longest side is
// below the target.
func (p *Preprocessor) upscale(g *image.Gray) (*image.Gray, bool) {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	longest := max(w, h)
	if longest == 0 || longest >= p.upscaleTarget {
		return nil, false
	}
	scale := float64(p.upscaleTarget) / float64(longest)
	nw := int(float64(w)*scale + 0.5)
	nh := int(float64(h)*scale + 0.5)
	return toGray(imaging.Resize(g, max(nw, 1), max(nh, 1), imaging.CatmullRom)), true
}
