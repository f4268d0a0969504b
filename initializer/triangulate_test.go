package initializer

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestFindBestRTRecoversTranslation(t *testing.T) {
	k := testIntrinsicsMatrix()
	r := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	tr := mat.NewDense(3, 1, []float64{0.3, 0, 0})

	ptsRef, ptsCur, _, _ := syntheticTwoView(100, k, r, tr, boxPoints(100))

	f, err := run8Point(ptsRef, ptsCur)
	test.That(t, err, test.ShouldBeNil)
	e, err := essentialFromFundamental(k, k, f)
	test.That(t, err, test.ShouldBeNil)

	best, err := findBestRT(k, k, e, ptsRef, ptsCur)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, best.GoodCount, test.ShouldBeGreaterThanOrEqualTo, 90)

	frobNorm := 0.0
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			d := best.Pose.Rotation.At(i, j) - want
			frobNorm += d * d
		}
	}
	frobNorm = math.Sqrt(frobNorm)
	test.That(t, frobNorm, test.ShouldBeLessThan, 1e-2)

	tv := best.Pose.TranslationVector()
	tNorm := math.Sqrt(tv.X*tv.X + tv.Y*tv.Y + tv.Z*tv.Z)
	cosAngle := math.Abs(tv.X) / tNorm
	angleDeg := math.Acos(math.Min(1, cosAngle)) * 180 / math.Pi
	test.That(t, angleDeg, test.ShouldBeLessThan, 1.0)
}

// TestCheiralityAcceptedPointsAreInFrontOfBothCameras checks the
// quantified invariant: every accepted 3-D point has 0 < z < 50 in both
// camera frames.
func TestCheiralityAcceptedPointsAreInFrontOfBothCameras(t *testing.T) {
	k := testIntrinsicsMatrix()
	r := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	tr := mat.NewDense(3, 1, []float64{0.3, 0, 0})

	ptsRef, ptsCur, _, _ := syntheticTwoView(100, k, r, tr, boxPoints(100))
	f, err := run8Point(ptsRef, ptsCur)
	test.That(t, err, test.ShouldBeNil)
	e, err := essentialFromFundamental(k, k, f)
	test.That(t, err, test.ShouldBeNil)

	best, err := findBestRT(k, k, e, ptsRef, ptsCur)
	test.That(t, err, test.ShouldBeNil)

	refPoseRot, refPoseTr := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}), mat.NewDense(3, 1, nil)
	for i, good := range best.Good {
		if !good {
			continue
		}
		zRef := depthInCamera(refPoseRot, refPoseTr, best.Points[i])
		zCur := depthInCamera(best.Pose.Rotation, best.Pose.Translation, best.Points[i])
		test.That(t, zRef, test.ShouldBeGreaterThan, 0.0)
		test.That(t, zRef, test.ShouldBeLessThan, maxTriangulatedDepth)
		test.That(t, zCur, test.ShouldBeGreaterThan, 0.0)
		test.That(t, zCur, test.ShouldBeLessThan, maxTriangulatedDepth)
	}
}

// TestFindBestRTAmbiguousCheiralityFails puts half the scene points behind
// the cameras, so no single pose hypothesis accounts for a dominant
// majority and the 90%-of-n0 acceptance margin cannot be met.
func TestFindBestRTAmbiguousCheiralityFails(t *testing.T) {
	k := testIntrinsicsMatrix()
	r := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	tr := mat.NewDense(3, 1, []float64{0.3, 0, 0})

	front := boxPoints(100)
	mixed := func(i int) r3.Vector {
		p := front(i)
		if i%2 == 1 {
			p.Z = -p.Z
		}
		return p
	}

	ptsRef, ptsCur, _, _ := syntheticTwoView(100, k, r, tr, mixed)

	f, err := run8Point(ptsRef, ptsCur)
	test.That(t, err, test.ShouldBeNil)
	e, err := essentialFromFundamental(k, k, f)
	test.That(t, err, test.ShouldBeNil)

	_, err = findBestRT(k, k, e, ptsRef, ptsCur)
	test.That(t, err, test.ShouldNotBeNil)
}

// TestFindBestRTWinnerBelowTrueN0Fails pins down n0's definition: the
// pre-check correspondence count fed into cheirality evaluation
// (len(ptsRef)), not the winning hypothesis's own good-point count. With
// 40% of the scene behind the cameras, the winning hypothesis clears 90% of
// its own ~60-point good count (54) but not 90% of the true n0=100 (90), so
// findBestRT must still FAIL.
func TestFindBestRTWinnerBelowTrueN0Fails(t *testing.T) {
	k := testIntrinsicsMatrix()
	r := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	tr := mat.NewDense(3, 1, []float64{0.3, 0, 0})

	front := boxPoints(100)
	mixed := func(i int) r3.Vector {
		p := front(i)
		if i%5 == 0 || i%5 == 1 {
			p.Z = -p.Z
		}
		return p
	}

	ptsRef, ptsCur, _, _ := syntheticTwoView(100, k, r, tr, mixed)

	f, err := run8Point(ptsRef, ptsCur)
	test.That(t, err, test.ShouldBeNil)
	e, err := essentialFromFundamental(k, k, f)
	test.That(t, err, test.ShouldBeNil)

	_, err = findBestRT(k, k, e, ptsRef, ptsCur)
	test.That(t, err, test.ShouldNotBeNil)
}
