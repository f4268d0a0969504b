package initializer

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/dreamwaterfound/ssvo-go/camera"
	"github.com/dreamwaterfound/ssvo-go/geometry"
)

// Result is the three-way outcome of a pipeline step.
type Result int

const (
	// ResultReset means the caller must re-seed with a fresh first frame.
	ResultReset Result = iota
	// ResultFailure means the caller may retry with a later current frame
	// without reseeding.
	ResultFailure
	// ResultSuccess means the inlier point cloud and relative pose are
	// ready to read.
	ResultSuccess
)

func (r Result) String() string {
	switch r {
	case ResultReset:
		return "RESET"
	case ResultFailure:
		return "FAILURE"
	case ResultSuccess:
		return "SUCCESS"
	default:
		return "UNKNOWN"
	}
}

// Error kinds surfaced by the pipeline. A degenerate fundamental matrix is
// not surfaced as its own kind: |F33|<=eps is absorbed by run8Point itself,
// which simply skips the final rescale.
var (
	ErrInsufficientInput    = errors.New("initializer: insufficient input")
	ErrInsufficientParallax = errors.New("initializer: insufficient parallax")
	ErrGeometryFailed       = errors.New("initializer: geometry failed")
)

// Initializer is the stateful two-view bootstrap pipeline: optical-flow
// tracking, disparity gating, robust fundamental estimation, essential
// decomposition, and cheirality disambiguation. It is not safe for
// concurrent use by multiple goroutines; it is single-threaded at the
// component level.
type Initializer struct {
	cfg *Config

	ptsRef      []r2.Point
	ptsCur      []r2.Point
	disparities []float64
	inliers     []bool
	p3ds        []r3.Vector

	refPyramid Pyramid
	refK       *camera.Intrinsics

	pose *camera.Pose

	// trackFn performs the optical-flow stage; it is a seam for tests to
	// substitute a perfect tracker and exercise the geometric pipeline
	// (disparity gate onward) independently of the pyramidal LK numerics,
	// which klt_test.go and the every-point-fails boundary case in
	// initializer_test.go cover directly. Production callers always get
	// kltTrack via New.
	trackFn func(refPyr, curPyr Pyramid, ptsRef, ptsCur []r2.Point, cfg kltConfig) ([]r2.Point, []bool)
}

// New builds an Initializer from the given configuration. If cfg is nil,
// DefaultConfig is used.
func New(cfg *Config) (*Initializer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Initializer{cfg: cfg, trackFn: kltTrack}, nil
}

// AddFirstFrame resets all internal sequences and seeds pts_ref/pts_cur from
// the reference frame's key-points.
func (ini *Initializer) AddFirstFrame(frame Frame) (Result, error) {
	kps := frame.KeyPoints()
	if len(kps) < ini.cfg.MinCorners {
		ini.reset()
		return ResultReset, errors.Wrapf(ErrInsufficientInput, "got %d key-points, need %d", len(kps), ini.cfg.MinCorners)
	}

	ini.ptsRef = make([]r2.Point, len(kps))
	copy(ini.ptsRef, kps)
	ini.ptsCur = make([]r2.Point, len(kps))
	copy(ini.ptsCur, kps)
	ini.disparities = nil
	ini.inliers = nil
	ini.p3ds = nil

	ini.refPyramid = frame.Pyramid()
	ini.refK = frame.Intrinsics()
	ini.pose = nil

	return ResultSuccess, nil
}

// AddSecondFrame runs the full pipeline against a candidate current frame:
// KLT tracking, disparity gate, RANSAC fundamental estimation, essential
// decomposition, and cheirality disambiguation.
func (ini *Initializer) AddSecondFrame(frame Frame) (Result, error) {
	if ini.refPyramid == nil {
		return ResultReset, errors.Wrap(ErrInsufficientInput, "add_first_frame was never called")
	}

	tracked, status := ini.trackFn(ini.refPyramid, frame.Pyramid(), ini.ptsRef, ini.ptsCur, defaultKLTConfig())
	refs, curs, disparities := compactTracking(ini.ptsRef, tracked, status)

	if len(disparities) == 0 {
		ini.reset()
		ini.cfg.Logger.Warnw("initializer: every KLT correspondence failed to track, resetting")
		return ResultReset, errors.Wrap(ErrInsufficientInput, "every KLT correspondence failed to track")
	}
	if len(refs) < ini.cfg.MinTracked {
		ini.reset()
		ini.cfg.Logger.Warnw("initializer: not enough tracked correspondences, resetting", "tracked", len(refs), "need", ini.cfg.MinTracked)
		return ResultReset, errors.Wrapf(ErrInsufficientInput, "tracked %d points, need %d", len(refs), ini.cfg.MinTracked)
	}

	// pts_ref/pts_cur track this call's survivors from here on, narrowing
	// further as RANSAC and cheirality progress, regardless of how the call
	// eventually returns.
	ini.ptsRef = refs
	ini.ptsCur = curs
	ini.disparities = disparities

	meanDisparity := floats.Sum(disparities) / float64(len(disparities))
	if meanDisparity < ini.cfg.MinDisparity {
		ini.cfg.Logger.Debugw("initializer: mean disparity below threshold", "mean_disparity", meanDisparity, "threshold", ini.cfg.MinDisparity)
		return ResultFailure, errors.Wrapf(ErrInsufficientParallax, "mean disparity %.3f below threshold %.3f", meanDisparity, ini.cfg.MinDisparity)
	}

	ransac, err := findFundamentalRANSAC(refs, curs, ini.cfg.Sigma, ini.cfg.MaxRANSACIters, ini.cfg.rng())
	if err != nil || ransac.Count < ini.cfg.MinInliers {
		ini.cfg.Logger.Warnw("initializer: fundamental-matrix RANSAC did not reach the required inlier count", "error", err)
		return ResultFailure, errors.Wrap(ErrGeometryFailed, "fundamental-matrix RANSAC did not reach the required inlier count")
	}

	inlierRef, inlierCur := filterByMask(refs, curs, ransac.Inliers)
	ini.ptsRef = inlierRef
	ini.ptsCur = inlierCur

	k := ini.refK.K()
	curK := frame.Intrinsics().K()
	essential, err := essentialFromFundamental(k, curK, ransac.F)
	if err != nil {
		ini.cfg.Logger.Warnw("initializer: essential-matrix recovery failed", "error", err)
		return ResultFailure, errors.Wrap(ErrGeometryFailed, "essential-matrix recovery failed")
	}

	best, err := findBestRT(k, curK, essential, inlierRef, inlierCur)
	if err != nil {
		ini.cfg.Logger.Warnw("initializer: cheirality disambiguation failed", "error", err)
		return ResultFailure, errors.Wrap(ErrGeometryFailed, err.Error())
	}

	finalRef, finalCur := filterByMask(inlierRef, inlierCur, best.Good)
	finalP3ds := make([]r3.Vector, 0, len(finalRef))
	for i, good := range best.Good {
		if good {
			finalP3ds = append(finalP3ds, best.Points[i])
		}
	}

	ini.ptsRef = finalRef
	ini.ptsCur = finalCur
	ini.p3ds = finalP3ds
	ini.inliers = nil
	ini.pose = best.Pose

	ini.cfg.Logger.Infow("initializer: bootstrap succeeded", "points", len(finalP3ds))
	return ResultSuccess, nil
}

// GetTrackedPoints returns the current inlier-masked, index-aligned
// correspondences.
func (ini *Initializer) GetTrackedPoints() (ptsRef, ptsCur []r2.Point) {
	return ini.ptsRef, ini.ptsCur
}

// Points3D returns the triangulated 3-D points produced by the most recent
// successful AddSecondFrame call, in the reference camera frame.
func (ini *Initializer) Points3D() []r3.Vector {
	return ini.p3ds
}

// Pose returns the relative pose [R|t] recovered by the most recent
// successful AddSecondFrame call.
func (ini *Initializer) Pose() *camera.Pose {
	return ini.pose
}

func (ini *Initializer) reset() {
	ini.ptsRef = nil
	ini.ptsCur = nil
	ini.disparities = nil
	ini.inliers = nil
	ini.p3ds = nil
	ini.refPyramid = nil
	ini.refK = nil
	ini.pose = nil
}

// compactTracking removes failed KLT correspondences by swap-with-tail and
// computes the per-survivor disparity in the same pass. The order within
// the surviving set is not preserved.
func compactTracking(ptsRef, ptsCur []r2.Point, status []bool) (refs, curs []r2.Point, disparities []float64) {
	n := len(ptsRef)
	refs = make([]r2.Point, n)
	copy(refs, ptsRef)
	curs = make([]r2.Point, n)
	copy(curs, ptsCur)
	st := make([]bool, n)
	copy(st, status)

	disparities = make([]float64, 0, n)
	size := n
	i := 0
	for i < size {
		if st[i] {
			disparities = append(disparities, geometry.Disparity(refs[i], curs[i]))
			i++
			continue
		}
		size--
		refs[i] = refs[size]
		curs[i] = curs[size]
		st[i] = st[size]
	}
	return refs[:size], curs[:size], disparities
}

// filterByMask returns the subsequence of refs/curs where mask is true, in
// original order -- used for the RANSAC-inlier and cheirality-inlier
// compactions, which (unlike KLT cleanup) are not performance-sensitive
// per-iteration removals and so need no swap-with-tail.
func filterByMask(refs, curs []r2.Point, mask []bool) (outRef, outCur []r2.Point) {
	outRef = make([]r2.Point, 0, len(refs))
	outCur = make([]r2.Point, 0, len(curs))
	for i, keep := range mask {
		if keep {
			outRef = append(outRef, refs[i])
			outCur = append(outCur, curs[i])
		}
	}
	return outRef, outCur
}
