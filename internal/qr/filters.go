package qr

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// The filters below work on zero-origin *image.Gray buffers produced by toGray.
// imaging covers grayscale/resize/blur/convolution; thresholding, histogram
// equalization and morphology are done here.

// toGray converts any image to a zero-origin 8-bit gray buffer.
func toGray(img image.Image) *image.Gray {
	nrgba := imaging.Grayscale(img)
	b := nrgba.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+b.Dx()*4]
		dst := out.Pix[y*out.Stride : y*out.Stride+b.Dx()]
		for x := range dst {
			dst[x] = src[x*4]
		}
	}
	return out
}

func histogram(g *image.Gray) (hist [256]int, total int) {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	for y := 0; y < h; y++ {
		for _, v := range g.Pix[y*g.Stride : y*g.Stride+w] {
			hist[v]++
		}
	}
	return hist, w * h
}

func mapGray(g *image.Gray, fn func(x, y int, v uint8) uint8) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Pix[y*out.Stride+x] = fn(x, y, g.Pix[y*g.Stride+x])
		}
	}
	return out
}

// otsuLevel returns the threshold maximizing between-class variance.
func otsuLevel(g *image.Gray) uint8 {
	hist, total := histogram(g)
	if total == 0 {
		return 127
	}
	var sum float64
	for i, c := range hist {
		sum += float64(i * c)
	}
	var sumB, best float64
	var wB int
	level := 0
	for t := 0; t < 256; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * hist[t])
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			level = t
		}
	}
	return uint8(level)
}

func otsu(g *image.Gray) *image.Gray {
	level := otsuLevel(g)
	return mapGray(g, func(_, _ int, v uint8) uint8 {
		if v > level {
			return 255
		}
		return 0
	})
}

// adaptiveMean thresholds each pixel against the mean of its block×block
// neighbourhood minus c, using an integral image.
func adaptiveMean(g *image.Gray, block, c int) *image.Gray {
	if block < 3 {
		block = 3
	}
	if block%2 == 0 {
		block++
	}
	w, h := g.Rect.Dx(), g.Rect.Dy()
	ints := make([]int, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		rowSum := 0
		for x := 0; x < w; x++ {
			rowSum += int(g.Pix[y*g.Stride+x])
			ints[(y+1)*(w+1)+x+1] = ints[y*(w+1)+x+1] + rowSum
		}
	}
	half := block / 2
	return mapGray(g, func(x, y int, v uint8) uint8 {
		x0, y0 := max(x-half, 0), max(y-half, 0)
		x1, y1 := min(x+half, w-1)+1, min(y+half, h-1)+1
		sum := ints[y1*(w+1)+x1] - ints[y0*(w+1)+x1] - ints[y1*(w+1)+x0] + ints[y0*(w+1)+x0]
		mean := sum / ((x1 - x0) * (y1 - y0))
		if int(v) > mean-c {
			return 255
		}
		return 0
	})
}

// adaptiveGaussian thresholds against a gaussian-weighted local mean.
func adaptiveGaussian(g *image.Gray, sigma float64, c int) *image.Gray {
	local := toGray(imaging.Blur(g, sigma))
	return mapGray(g, func(x, y int, v uint8) uint8 {
		if int(v) > int(local.Pix[y*local.Stride+x])-c {
			return 255
		}
		return 0
	})
}

// equalize spreads the global histogram over the full 0..255 range.
func equalize(g *image.Gray) *image.Gray {
	hist, total := histogram(g)
	var lut [256]uint8
	cdf, cdfMin := 0, -1
	for i, c := range hist {
		cdf += c
		if cdfMin < 0 && cdf > 0 {
			cdfMin = cdf
		}
		if total == cdfMin {
			lut[i] = uint8(i)
			continue
		}
		if cdf > 0 {
			lut[i] = uint8(math.Round(float64(cdf-cdfMin) * 255 / float64(total-cdfMin)))
		}
	}
	return mapGray(g, func(_, _ int, v uint8) uint8 { return lut[v] })
}

// clahe is contrast-limited adaptive histogram equalization over a grid×grid
// tiling with bilinear interpolation between tile lookup tables.
func clahe(g *image.Gray, clip float64, grid int) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	if w == 0 || h == 0 {
		return mapGray(g, func(_, _ int, v uint8) uint8 { return v })
	}
	tw, th := (w+grid-1)/grid, (h+grid-1)/grid
	gx, gy := (w+tw-1)/tw, (h+th-1)/th

	luts := make([][256]uint8, gx*gy)
	for ty := 0; ty < gy; ty++ {
		for tx := 0; tx < gx; tx++ {
			var hist [256]int
			x0, y0 := tx*tw, ty*th
			x1, y1 := min(x0+tw, w), min(y0+th, h)
			n := (x1 - x0) * (y1 - y0)
			for y := y0; y < y1; y++ {
				for _, v := range g.Pix[y*g.Stride+x0 : y*g.Stride+x1] {
					hist[v]++
				}
			}

			limit := max(int(clip*float64(n)/256), 1)
			excess := 0
			for i := range hist {
				if hist[i] > limit {
					excess += hist[i] - limit
					hist[i] = limit
				}
			}
			incr, rem := excess/256, excess%256
			for i := range hist {
				hist[i] += incr
				if i < rem {
					hist[i]++
				}
			}

			lut := &luts[ty*gx+tx]
			cum := 0
			for i, c := range hist {
				cum += c
				lut[i] = uint8(min(cum*255/n, 255))
			}
		}
	}

	cell := func(f float64, size int) (int, int, float64) {
		i0 := int(math.Floor(f))
		a := f - float64(i0)
		i1 := i0 + 1
		i0 = min(max(i0, 0), size-1)
		i1 = min(max(i1, 0), size-1)
		return i0, i1, a
	}
	return mapGray(g, func(x, y int, v uint8) uint8 {
		tx0, tx1, ax := cell((float64(x)+0.5)/float64(tw)-0.5, gx)
		ty0, ty1, ay := cell((float64(y)+0.5)/float64(th)-0.5, gy)
		top := (1-ax)*float64(luts[ty0*gx+tx0][v]) + ax*float64(luts[ty0*gx+tx1][v])
		bottom := (1-ax)*float64(luts[ty1*gx+tx0][v]) + ax*float64(luts[ty1*gx+tx1][v])
		return uint8(math.Round((1-ay)*top + ay*bottom))
	})
}

// median3 replaces each pixel with the median of its 3×3 neighbourhood.
func median3(g *image.Gray) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	return mapGray(g, func(x, y int, _ uint8) uint8 {
		var win [9]uint8
		k := 0
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				xx := min(max(x+dx, 0), w-1)
				yy := min(max(y+dy, 0), h-1)
				v := g.Pix[yy*g.Stride+xx]
				j := k
				for j > 0 && win[j-1] > v {
					win[j] = win[j-1]
					j--
				}
				win[j] = v
				k++
			}
		}
		return win[4]
	})
}

// morph3 applies a 3×3 min (erode) or max (dilate) filter.
func morph3(g *image.Gray, dilate bool) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	return mapGray(g, func(x, y int, v uint8) uint8 {
		acc := v
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				xx, yy := x+dx, y+dy
				if xx < 0 || yy < 0 || xx >= w || yy >= h {
					continue
				}
				n := g.Pix[yy*g.Stride+xx]
				if (dilate && n > acc) || (!dilate && n < acc) {
					acc = n
				}
			}
		}
		return acc
	})
}

// morphClose is dilation followed by erosion.
func morphClose(g *image.Gray) *image.Gray {
	return morph3(morph3(g, true), false)
}
