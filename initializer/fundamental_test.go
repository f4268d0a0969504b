package initializer

import (
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func testIntrinsicsMatrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{500, 0, 320, 0, 500, 240, 0, 0, 1})
}

// TestRun8PointBoundaryEightCorrespondences exercises the boundary case:
// exactly 8 correspondences must yield a valid F. The points are every 11th
// boxPoints sample: the first 8 consecutive samples include 4 collinear
// scene points, which leaves the 8x9 design matrix at rank 7 and F
// undetermined.
func TestRun8PointBoundaryEightCorrespondences(t *testing.T) {
	k := testIntrinsicsMatrix()
	r := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	tr := mat.NewDense(3, 1, []float64{0.3, 0, 0})

	spread := boxPoints(88)
	ptsRef, ptsCur, _, _ := syntheticTwoView(8, k, r, tr, func(i int) r3.Vector { return spread(11 * i) })

	f, err := run8Point(ptsRef, ptsCur)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, f, test.ShouldNotBeNil)

	for i := range ptsRef {
		d1, d2 := epipolarSquaredDistances(f, ptsRef[i], ptsCur[i])
		test.That(t, d1, test.ShouldBeLessThan, 1e-6)
		test.That(t, d2, test.ShouldBeLessThan, 1e-6)
	}
}

func TestRun8PointRejectsTooFewPoints(t *testing.T) {
	k := testIntrinsicsMatrix()
	r := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	tr := mat.NewDense(3, 1, []float64{0.3, 0, 0})
	ptsRef, ptsCur, _, _ := syntheticTwoView(5, k, r, tr, boxPoints(5))

	_, err := run8Point(ptsRef, ptsCur)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFindFundamentalRANSACRecoversInliers(t *testing.T) {
	k := testIntrinsicsMatrix()
	r := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	tr := mat.NewDense(3, 1, []float64{0.3, 0, 0})

	ptsRef, ptsCur, _, _ := syntheticTwoView(80, k, r, tr, boxPoints(80))

	rng := rand.New(rand.NewSource(7))
	result, err := findFundamentalRANSAC(ptsRef, ptsCur, 1.0, 200, rng)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, result.Count, test.ShouldBeGreaterThanOrEqualTo, 70)

	count := 0
	threshold := chiSquare95OneDOF * 1.0 * 1.0
	for i := range ptsRef {
		d1, d2 := epipolarSquaredDistances(result.F, ptsRef[i], ptsCur[i])
		if maxFloat(d1, d2) < threshold {
			count++
		}
	}
	test.That(t, count, test.ShouldEqual, result.Count)
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
