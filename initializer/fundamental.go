package initializer

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/dreamwaterfound/ssvo-go/geometry"
	"github.com/dreamwaterfound/ssvo-go/internal/mathutil"
)

// degenerateEpsilon is the |F33| threshold below which the final rescale by
// F33 is skipped rather than dividing by (near) zero -- a degenerate
// configuration is absorbed silently rather than surfaced as an error.
const degenerateEpsilon = 1e-9

// chiSquare95OneDOF is the 95% critical value of the chi-squared
// distribution with one degree of freedom: tau = 3.841 * sigma^2.
const chiSquare95OneDOF = 3.841

// run8Point fits a fundamental matrix to exactly the given correspondences
// using the normalized linear 8-point algorithm. It is used both for the
// minimal 8-point RANSAC sample and for the final refit over the full
// inlier set.
func run8Point(ptsRef, ptsCur []r2.Point) (*mat.Dense, error) {
	n := len(ptsRef)
	if n != len(ptsCur) {
		panic("initializer: run8Point point sets must be the same length")
	}
	if n < 8 {
		return nil, errors.New("initializer: run8Point needs at least 8 correspondences")
	}

	normRef, tRef := geometry.NormalizePoints(ptsRef)
	normCur, tCur := geometry.NormalizePoints(ptsCur)

	a := mat.NewDense(n, 9, nil)
	for i := 0; i < n; i++ {
		u1, v1 := normRef[i].X, normRef[i].Y
		u2, v2 := normCur[i].X, normCur[i].Y
		a.SetRow(i, []float64{u2 * u1, u2 * v1, u2, v2 * u1, v2 * v1, v2, u1, v1, 1})
	}

	vec, err := geometry.RightNullVector(a)
	if err != nil {
		return nil, err
	}
	fTilde := mat.NewDense(3, 3, vec)

	fNorm, err := geometry.EnforceRank2(fTilde)
	if err != nil {
		return nil, err
	}

	// Denormalize: F = T2^T * F_norm * T1.
	var tmp, f mat.Dense
	tmp.Mul(geometry.Transpose(tCur), fNorm)
	f.Mul(&tmp, tRef)

	if f33 := f.At(2, 2); math.Abs(f33) > degenerateEpsilon {
		f.Scale(1/f33, &f)
	}
	return &f, nil
}

// epipolarSquaredDistances computes the symmetric epipolar squared
// distances d2_L1 and d2_L2 for a single correspondence:
// d2_L2 = |x2^T F x1|^2 / (a2^2+b2^2) with (a2,b2,c2) = F x1, and
// symmetrically for L1 with F^T x2.
func epipolarSquaredDistances(f *mat.Dense, x1, x2 r2.Point) (d2L1, d2L2 float64) {
	u1, v1 := x1.X, x1.Y
	u2, v2 := x2.X, x2.Y

	a2 := f.At(0, 0)*u1 + f.At(0, 1)*v1 + f.At(0, 2)
	b2 := f.At(1, 0)*u1 + f.At(1, 1)*v1 + f.At(1, 2)
	c2 := f.At(2, 0)*u1 + f.At(2, 1)*v1 + f.At(2, 2)

	a1 := f.At(0, 0)*u2 + f.At(1, 0)*v2 + f.At(2, 0)
	b1 := f.At(0, 1)*u2 + f.At(1, 1)*v2 + f.At(2, 1)
	c1 := f.At(0, 2)*u2 + f.At(1, 2)*v2 + f.At(2, 2)

	num2 := a2*u2 + b2*v2 + c2
	d2L2 = num2 * num2 / (a2*a2 + b2*b2)

	num1 := a1*u1 + b1*v1 + c1
	d2L1 = num1 * num1 / (a1*a1 + b1*b1)
	return d2L1, d2L2
}

// ransacResult is the outcome of findFundamentalRANSAC.
type ransacResult struct {
	F       *mat.Dense
	Inliers []bool
	Count   int
}

// findFundamentalRANSAC estimates a robust fundamental matrix by RANSAC
// over the normalized 8-point algorithm: iteration budget clamped to
// [1, 1000], threshold tau = 3.841*sigma^2, 8-distinct-index sampling via
// swap-with-tail, adaptive iteration-count update on improvement, and a
// final refit on the full best-inlier set.
func findFundamentalRANSAC(ptsRef, ptsCur []r2.Point, sigma float64, maxIters int, rng *rand.Rand) (*ransacResult, error) {
	n := len(ptsRef)
	if n != len(ptsCur) {
		panic("initializer: findFundamentalRANSAC point sets must be the same length")
	}
	if n < 8 {
		return nil, errors.New("initializer: findFundamentalRANSAC needs at least 8 correspondences")
	}

	threshold := chiSquare95OneDOF * sigma * sigma
	maxItersClamped := mathutil.ClampInt(maxIters, 1, 1000)

	bestInliers := make([]bool, n)
	bestCount := 0

	niters := maxItersClamped
	for iter := 0; iter < niters; iter++ {
		sampleRef, sampleCur := sampleEight(ptsRef, ptsCur, rng)

		fCandidate, err := run8Point(sampleRef, sampleCur)
		if err != nil {
			continue
		}

		inliers := make([]bool, n)
		count := 0
		for i := 0; i < n; i++ {
			d2L1, d2L2 := epipolarSquaredDistances(fCandidate, ptsRef[i], ptsCur[i])
			if math.Max(d2L1, d2L2) < threshold {
				inliers[i] = true
				count++
			}
		}

		if count > bestCount {
			bestCount = count
			bestInliers = inliers

			if count < n {
				omega := float64(count) / float64(n)
				numerator := math.Log(1 - 0.99)
				denominator := math.Log(1 - math.Pow(omega, 8))
				if denominator >= 0 || -numerator >= float64(maxItersClamped)*(-denominator) {
					niters = maxItersClamped
				} else {
					niters = mathutil.ClampInt(int(math.Ceil(numerator/denominator)), 1, maxItersClamped)
				}
			} else {
				break
			}
		}
	}

	if bestCount < 8 {
		return nil, errors.New("initializer: RANSAC failed to find a valid fundamental matrix sample")
	}

	inlierRef := make([]r2.Point, 0, bestCount)
	inlierCur := make([]r2.Point, 0, bestCount)
	for i := 0; i < n; i++ {
		if bestInliers[i] {
			inlierRef = append(inlierRef, ptsRef[i])
			inlierCur = append(inlierCur, ptsCur[i])
		}
	}

	f, err := run8Point(inlierRef, inlierCur)
	if err != nil {
		return nil, err
	}

	return &ransacResult{F: f, Inliers: bestInliers, Count: bestCount}, nil
}

// sampleEight draws 8 distinct correspondences without replacement via
// swap-with-tail on a working index list.
func sampleEight(ptsRef, ptsCur []r2.Point, rng *rand.Rand) ([]r2.Point, []r2.Point) {
	working := make([]int, len(ptsRef))
	for i := range working {
		working[i] = i
	}

	sampleRef := make([]r2.Point, 8)
	sampleCur := make([]r2.Point, 8)
	for i := 0; i < 8; i++ {
		idx := mathutil.RandRange(0, len(working)-1, rng)
		chosen := working[idx]
		sampleRef[i] = ptsRef[chosen]
		sampleCur[i] = ptsCur[chosen]

		working[idx] = working[len(working)-1]
		working = working[:len(working)-1]
	}
	return sampleRef, sampleCur
}
