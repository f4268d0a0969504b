package initializer

import (
	"math"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/dreamwaterfound/ssvo-go/camera"
)

// blankImage is a GrayImage with constant intensity, sufficient for tests
// that exercise the geometric pipeline downstream of tracking (the
// correspondences are supplied directly rather than recovered by KLT).
type blankImage struct {
	w, h int
}

func (b blankImage) Width() int             { return b.w }
func (b blankImage) Height() int            { return b.h }
func (b blankImage) At(x, y int) float64    { return 128 }

func blankPyramid(w, h, levels int) Pyramid {
	pyr := make(Pyramid, levels)
	for l := 0; l < levels; l++ {
		scale := 1 << uint(l)
		pyr[l] = blankImage{w: w / scale, h: h / scale}
	}
	return pyr
}

// fakeFrame is a minimal Frame implementation for synthetic two-view tests.
type fakeFrame struct {
	id    uint64
	kps   []r2.Point
	pyr   Pyramid
	k     *camera.Intrinsics
	pose  *camera.Pose
	stamp time.Time
}

func (f *fakeFrame) ID() uint64                     { return f.id }
func (f *fakeFrame) Timestamp() time.Time           { return f.stamp }
func (f *fakeFrame) KeyPoints() []r2.Point          { return f.kps }
func (f *fakeFrame) Pyramid() Pyramid               { return f.pyr }
func (f *fakeFrame) Intrinsics() *camera.Intrinsics { return f.k }
func (f *fakeFrame) Pose() *camera.Pose             { return f.pose }

// project applies the pinhole model x = K(RX+t) to a 3-D point, returning
// the pixel coordinates and the depth in the camera frame.
func project(k *mat.Dense, r, tr *mat.Dense, x r3.Vector) (r2.Point, float64) {
	cx := r.At(0, 0)*x.X + r.At(0, 1)*x.Y + r.At(0, 2)*x.Z + tr.At(0, 0)
	cy := r.At(1, 0)*x.X + r.At(1, 1)*x.Y + r.At(1, 2)*x.Z + tr.At(1, 0)
	cz := r.At(2, 0)*x.X + r.At(2, 1)*x.Y + r.At(2, 2)*x.Z + tr.At(2, 0)

	px := k.At(0, 0)*cx + k.At(0, 2)*cz
	py := k.At(1, 1)*cy + k.At(1, 2)*cz
	return r2.Point{X: px / cz, Y: py / cz}, cz
}

// syntheticTwoView takes the n 3-D points seed(0)..seed(n-1) and returns
// their pixel projections under the identity reference pose and the given
// relative pose, for intrinsics k, together with each point's depth in both
// cameras. No point is skipped, including points with non-positive depth.
func syntheticTwoView(n int, k *mat.Dense, r, tr *mat.Dense, seed func(i int) r3.Vector) (ptsRef, ptsCur []r2.Point, depthsRef, depthsCur []float64) {
	ident := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	zero := mat.NewDense(3, 1, nil)

	ptsRef = make([]r2.Point, 0, n)
	ptsCur = make([]r2.Point, 0, n)
	depthsRef = make([]float64, 0, n)
	depthsCur = make([]float64, 0, n)

	for i := 0; i < n; i++ {
		x := seed(i)
		pRef, zRef := project(k, ident, zero, x)
		pCur, zCur := project(k, r, tr, x)

		ptsRef = append(ptsRef, pRef)
		ptsCur = append(ptsCur, pCur)
		depthsRef = append(depthsRef, zRef)
		depthsCur = append(depthsCur, zCur)
	}
	return ptsRef, ptsCur, depthsRef, depthsCur
}

// rotationZ builds a rotation matrix about the z-axis by angle radians.
func rotationZ(angle float64) *mat.Dense {
	c, s := math.Cos(angle), math.Sin(angle)
	return mat.NewDense(3, 3, []float64{
		c, -s, 0,
		s, c, 0,
		0, 0, 1,
	})
}

// boxPoints deterministically scatters n points in [-1,1]x[-1,1]x[2,5]
// using a low-discrepancy-ish stride rather than math/rand (Date/rand
// sources are avoided in this harness; determinism matters more than true
// randomness here).
func boxPoints(n int) func(i int) r3.Vector {
	return func(i int) r3.Vector {
		fi := float64(i)
		x := math.Mod(fi*0.61803398875, 2.0) - 1.0
		y := math.Mod(fi*0.41803398875, 2.0) - 1.0
		z := 2.0 + math.Mod(fi*0.91803398875, 3.0)
		return r3.Vector{X: x, Y: y, Z: z}
	}
}
