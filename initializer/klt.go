package initializer

import (
	"math"

	"github.com/golang/geo/r2"

	"github.com/dreamwaterfound/ssvo-go/internal/mathutil"
)

// kltConfig holds the pyramidal Lucas-Kanade parameters: a 21x21 window, 3
// pyramid levels, terminating at 30 iterations or a displacement increment
// of 0.001 pixels.
type kltConfig struct {
	WindowRadius int
	Levels       int
	MaxIters     int
	Eps          float64
}

func defaultKLTConfig() kltConfig {
	return kltConfig{WindowRadius: 10, Levels: 3, MaxIters: 30, Eps: 0.001}
}

// kltTrack runs pyramidal Lucas-Kanade optical flow from refPyr to curPyr,
// warm-started from ptsCur as the initial-flow guess for each point. It
// returns, index-aligned with ptsRef, the refined current-frame positions
// and a per-correspondence success flag.
//
// This is a from-scratch numerical implementation -- a spatial image
// gradient and bilinear re-sampling -- rather than a binding onto an
// existing optical-flow library.
func kltTrack(refPyr, curPyr Pyramid, ptsRef, ptsCur []r2.Point, cfg kltConfig) (tracked []r2.Point, status []bool) {
	n := len(ptsRef)
	tracked = make([]r2.Point, n)
	status = make([]bool, n)

	levels := cfg.Levels
	if levels > len(refPyr) || levels > len(curPyr) {
		levels = mathutil.MinInt(len(refPyr), len(curPyr))
	}

	for i := 0; i < n; i++ {
		ok := true
		// Seed the coarsest level with the scaled reference and current
		// guess positions.
		refAtLevel := scalePoint(ptsRef[i], levels-1)
		curAtLevel := scalePoint(ptsCur[i], levels-1)

		for level := levels - 1; level >= 0; level-- {
			refImg := refPyr[level]
			curImg := curPyr[level]

			levelOK := lucasKanadeRefine(refImg, curImg, refAtLevel, &curAtLevel, cfg)
			if !levelOK {
				ok = false
			}

			if level > 0 {
				refAtLevel = r2.Point{X: refAtLevel.X * 2, Y: refAtLevel.Y * 2}
				curAtLevel = r2.Point{X: curAtLevel.X * 2, Y: curAtLevel.Y * 2}
			}
		}

		tracked[i] = curAtLevel
		status[i] = ok && inBounds(refPyr[0], ptsRef[i]) && inBounds(curPyr[0], curAtLevel)
	}
	return tracked, status
}

func scalePoint(p r2.Point, level int) r2.Point {
	scale := 1.0 / math.Pow(2, float64(level))
	return r2.Point{X: p.X * scale, Y: p.Y * scale}
}

func inBounds(img GrayImage, p r2.Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < float64(img.Width()) && p.Y < float64(img.Height())
}

// lucasKanadeRefine performs the classic forward-additive Lucas-Kanade
// iteration at a single pyramid level: build the window Hessian from the
// reference image's spatial gradient, then iteratively solve for the
// displacement that minimizes the brightness residual against the current
// image, re-sampled bilinearly at each iteration.
func lucasKanadeRefine(refImg, curImg GrayImage, refPt r2.Point, curPt *r2.Point, cfg kltConfig) bool {
	r := cfg.WindowRadius
	if !windowInBounds(refImg, refPt, r) {
		return false
	}

	// Template intensities and spatial gradient, computed once per level
	// (central differences), the standard Bouguet-LK optimization.
	type sample struct {
		dx, dy, t float64
		wx, wy    int
	}
	window := make([]sample, 0, (2*r+1)*(2*r+1))

	var gxx, gxy, gyy float64
	for wy := -r; wy <= r; wy++ {
		for wx := -r; wx <= r; wx++ {
			x := int(math.Round(refPt.X)) + wx
			y := int(math.Round(refPt.Y)) + wy
			if x < 1 || y < 1 || x >= refImg.Width()-1 || y >= refImg.Height()-1 {
				continue
			}
			ix := (refImg.At(x+1, y) - refImg.At(x-1, y)) / 2
			iy := (refImg.At(x, y+1) - refImg.At(x, y-1)) / 2
			t := refImg.At(x, y)
			window = append(window, sample{ix, iy, t, wx, wy})
			gxx += ix * ix
			gxy += ix * iy
			gyy += iy * iy
		}
	}
	if len(window) == 0 {
		return false
	}

	det := gxx*gyy - gxy*gxy
	if math.Abs(det) < 1e-9 {
		return false
	}

	for iter := 0; iter < cfg.MaxIters; iter++ {
		var bx, by float64
		for _, s := range window {
			cx := curPt.X + float64(s.wx)
			cy := curPt.Y + float64(s.wy)
			if !inBoundsXY(curImg, cx, cy) {
				continue
			}
			residual := s.t - bilinear(curImg, cx, cy)
			bx += s.dx * residual
			by += s.dy * residual
		}

		dx := (gyy*bx - gxy*by) / det
		dy := (gxx*by - gxy*bx) / det

		curPt.X += dx
		curPt.Y += dy

		if dx*dx+dy*dy < cfg.Eps*cfg.Eps {
			break
		}
	}
	return inBoundsXY(curImg, curPt.X, curPt.Y)
}

func windowInBounds(img GrayImage, p r2.Point, r int) bool {
	x, y := int(math.Round(p.X)), int(math.Round(p.Y))
	return x-r >= 1 && y-r >= 1 && x+r < img.Width()-1 && y+r < img.Height()-1
}

func inBoundsXY(img GrayImage, x, y float64) bool {
	return x >= 0 && y >= 0 && x < float64(img.Width()-1) && y < float64(img.Height()-1)
}

// bilinear samples img at fractional coordinates (x, y).
func bilinear(img GrayImage, x, y float64) float64 {
	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	x1, y1 := x0+1, y0+1
	fx, fy := x-float64(x0), y-float64(y0)

	v00 := img.At(x0, y0)
	v10 := img.At(x1, y0)
	v01 := img.At(x0, y1)
	v11 := img.At(x1, y1)

	top := v00*(1-fx) + v10*fx
	bot := v01*(1-fx) + v11*fx
	return top*(1-fy) + bot*fy
}
