package initializer

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/dreamwaterfound/ssvo-go/camera"
	"github.com/dreamwaterfound/ssvo-go/geometry"
)

// maxTriangulatedDepth is the cheirality check's far-plane cutoff: a
// triangulated point is accepted only while 0 < z < 50 in both cameras.
const maxTriangulatedDepth = 50.0

// cheiralityAcceptanceFraction is the fraction of n0, the pre-check
// correspondence count fed into cheirality evaluation, that the winning
// hypothesis's good-point count must meet or exceed for the winner to
// stand unambiguously.
const cheiralityAcceptanceFraction = 0.9

// triangulatePoint recovers a single 3D point from two projection matrices
// and a correspondence by the direct linear transform: stack the two
// cross-product constraint rows per camera and take the right null vector
// of the combined 4x4 system.
func triangulatePoint(p0, p1 *mat.Dense, x0, x1 r2.Point) (r3.Vector, error) {
	a := mat.NewDense(4, 4, nil)
	for col := 0; col < 4; col++ {
		a.Set(0, col, x0.X*p0.At(2, col)-p0.At(0, col))
		a.Set(1, col, x0.Y*p0.At(2, col)-p0.At(1, col))
		a.Set(2, col, x1.X*p1.At(2, col)-p1.At(0, col))
		a.Set(3, col, x1.Y*p1.At(2, col)-p1.At(1, col))
	}

	vec, err := geometry.RightNullVector(a)
	if err != nil {
		return r3.Vector{}, err
	}
	if vec[3] == 0 {
		return r3.Vector{}, errors.New("initializer: triangulated point at infinity")
	}
	return r3.Vector{X: vec[0] / vec[3], Y: vec[1] / vec[3], Z: vec[2] / vec[3]}, nil
}

// depthInCamera returns the z-coordinate of a world point expressed in the
// frame of the camera whose world-to-camera pose is (rotation, translation).
func depthInCamera(rotation, translation *mat.Dense, p r3.Vector) float64 {
	return rotation.At(2, 0)*p.X + rotation.At(2, 1)*p.Y + rotation.At(2, 2)*p.Z + translation.At(2, 0)
}

// hypothesisResult holds one cheirality-checked candidate pose.
type hypothesisResult struct {
	Pose      *camera.Pose
	Points    []r3.Vector
	Good      []bool
	GoodCount int
}

// evaluateHypothesis triangulates every correspondence under the identity
// pose for the reference frame and the candidate pose for the current
// frame, then counts how many points land in front of both cameras and
// within maxTriangulatedDepth. kRef and kCur are each frame's own intrinsics.
func evaluateHypothesis(kRef, kCur *mat.Dense, h poseHypothesis, ptsRef, ptsCur []r2.Point) *hypothesisResult {
	refPose := camera.Identity()
	curPose := camera.NewPose(h.Rotation, h.Translation)

	p0 := refPose.ProjectionMatrix(kRef)
	p1 := curPose.ProjectionMatrix(kCur)

	n := len(ptsRef)
	points := make([]r3.Vector, n)
	good := make([]bool, n)
	count := 0

	for i := 0; i < n; i++ {
		pt, err := triangulatePoint(p0, p1, ptsRef[i], ptsCur[i])
		if err != nil {
			continue
		}
		points[i] = pt

		zRef := depthInCamera(refPose.Rotation, refPose.Translation, pt)
		zCur := depthInCamera(curPose.Rotation, curPose.Translation, pt)

		if zRef > 0 && zRef < maxTriangulatedDepth && zCur > 0 && zCur < maxTriangulatedDepth {
			good[i] = true
			count++
		}
	}

	return &hypothesisResult{Pose: curPose, Points: points, Good: good, GoodCount: count}
}

// findBestRT evaluates all four pose hypotheses recovered from an essential
// matrix and returns the unambiguous winner, or an error if the winner
// doesn't clear 90% of n0, the pre-check correspondence count fed into
// cheirality evaluation (len(ptsRef)) -- not the winner's own good-point
// count. Ties for the winning slot are broken by evaluation order ((R1,t)
// before (R2,t) before (R1,-t) before (R2,-t)). kRef and kCur are each
// frame's own intrinsics, used for the reference and current projection
// matrices respectively.
func findBestRT(kRef, kCur *mat.Dense, e *mat.Dense, ptsRef, ptsCur []r2.Point) (*hypothesisResult, error) {
	hyps, err := poseHypotheses(e)
	if err != nil {
		return nil, err
	}

	results := make([]*hypothesisResult, 4)
	for i, h := range hyps {
		results[i] = evaluateHypothesis(kRef, kCur, h, ptsRef, ptsCur)
	}

	bestIdx := 0
	for i := 1; i < 4; i++ {
		if results[i].GoodCount > results[bestIdx].GoodCount {
			bestIdx = i
		}
	}

	n0 := len(ptsRef)
	if n0 == 0 || float64(results[bestIdx].GoodCount) < cheiralityAcceptanceFraction*float64(n0) {
		return nil, errors.New("initializer: cheirality check ambiguous between pose hypotheses")
	}

	return results[bestIdx], nil
}
