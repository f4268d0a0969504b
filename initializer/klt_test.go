package initializer

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

// funcImage is a GrayImage backed by a continuous scalar field, giving every
// pixel a well-defined gradient -- unlike blankImage, it is usable as
// kltTrack's own test fixture rather than only the geometric pipeline's.
type funcImage struct {
	w, h int
	f    func(x, y float64) float64
}

func (fi funcImage) Width() int          { return fi.w }
func (fi funcImage) Height() int         { return fi.h }
func (fi funcImage) At(x, y int) float64 { return fi.f(float64(x), float64(y)) }

// texturedField is a smooth, non-degenerate intensity pattern: its gradient
// is nonzero almost everywhere, so the per-window Hessian is well-conditioned.
func texturedField(x, y float64) float64 {
	return 128 + 40*math.Sin(x*0.15) + 40*math.Cos(y*0.12)
}

func TestLucasKanadeRefineRecoversKnownShift(t *testing.T) {
	const dx, dy = 3.0, -2.0

	refImg := funcImage{w: 200, h: 200, f: texturedField}
	curImg := funcImage{w: 200, h: 200, f: func(x, y float64) float64 {
		return texturedField(x-dx, y-dy)
	}}

	refPt := r2.Point{X: 100, Y: 100}
	curPt := refPt // zero-flow initial guess

	ok := lucasKanadeRefine(refImg, curImg, refPt, &curPt, defaultKLTConfig())
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, curPt.X, test.ShouldAlmostEqual, refPt.X+dx, 1e-2)
	test.That(t, curPt.Y, test.ShouldAlmostEqual, refPt.Y+dy, 1e-2)
}

func TestKLTTrackMultiLevelRecoversKnownShift(t *testing.T) {
	const dx, dy = 4.0, 3.0

	refPyr := Pyramid{
		funcImage{w: 200, h: 200, f: texturedField},
		funcImage{w: 100, h: 100, f: func(x, y float64) float64 { return texturedField(2*x, 2*y) }},
	}
	curPyr := Pyramid{
		funcImage{w: 200, h: 200, f: func(x, y float64) float64 { return texturedField(x-dx, y-dy) }},
		funcImage{w: 100, h: 100, f: func(x, y float64) float64 { return texturedField(2*x-dx, 2*y-dy) }},
	}

	ptsRef := []r2.Point{{X: 100, Y: 100}}
	ptsCur := []r2.Point{{X: 100, Y: 100}}

	tracked, status := kltTrack(refPyr, curPyr, ptsRef, ptsCur, defaultKLTConfig())
	test.That(t, status[0], test.ShouldBeTrue)
	test.That(t, tracked[0].X, test.ShouldAlmostEqual, ptsRef[0].X+dx, 0.5)
	test.That(t, tracked[0].Y, test.ShouldAlmostEqual, ptsRef[0].Y+dy, 0.5)
}

func TestLucasKanadeRefineRejectsOutOfBoundsWindow(t *testing.T) {
	refImg := funcImage{w: 50, h: 50, f: texturedField}
	curImg := funcImage{w: 50, h: 50, f: texturedField}

	refPt := r2.Point{X: 2, Y: 2}
	curPt := refPt

	ok := lucasKanadeRefine(refImg, curImg, refPt, &curPt, defaultKLTConfig())
	test.That(t, ok, test.ShouldBeFalse)
}
