package initializer

import (
	"gonum.org/v1/gonum/mat"

	"github.com/dreamwaterfound/ssvo-go/geometry"
)

// essentialFromFundamental recovers E = K2^T F K1 and re-enforces its two
// equal singular values.
func essentialFromFundamental(k1, k2, f *mat.Dense) (*mat.Dense, error) {
	var tmp, e mat.Dense
	tmp.Mul(geometry.Transpose(k2), f)
	e.Mul(&tmp, k1)

	svd, err := geometry.Factorize(&e)
	if err != nil {
		return nil, err
	}
	s := geometry.Eye(3)
	s.Set(2, 2, 0)

	var out mat.Dense
	out.Mul(svd.U, s)
	out.Mul(&out, svd.VT)
	return &out, nil
}

// wMatrix is the fixed permutation matrix used by the essential-matrix
// decomposition (Hartley & Zisserman section 9.6.2).
func wMatrix() *mat.Dense {
	w := mat.NewDense(3, 3, nil)
	w.Set(0, 1, 1)
	w.Set(1, 0, -1)
	w.Set(2, 2, 1)
	return w
}

// decomposeEssential splits an essential matrix into its two candidate
// rotations and (up to sign) translation direction: SVD, correct the sign
// of U and V so both are proper rotations, then R1 = U W V^T,
// R2 = U W^T V^T, t = U's third column.
func decomposeEssential(e *mat.Dense) (r1, r2, t *mat.Dense, err error) {
	svd, err := geometry.Factorize(e)
	if err != nil {
		return nil, nil, nil, err
	}

	u := mat.DenseCopyOf(svd.U)
	vt := mat.DenseCopyOf(svd.VT)
	if geometry.Det(u) < 0 {
		u.Scale(-1, u)
	}
	if geometry.Det(vt) < 0 {
		vt.Scale(-1, vt)
	}

	w := wMatrix()

	var R1 mat.Dense
	R1.Mul(u, w)
	R1.Mul(&R1, vt)

	var R2 mat.Dense
	R2.Mul(u, geometry.Transpose(w))
	R2.Mul(&R2, vt)

	u3 := u.ColView(2)
	tVec := mat.NewDense(3, 1, []float64{u3.AtVec(0), u3.AtVec(1), u3.AtVec(2)})

	return &R1, &R2, tVec, nil
}

// poseHypothesis is one candidate rotation/translation. Its index in the
// array poseHypotheses returns gives findBestRT's tie-break order:
// (R1,t), (R2,t), (R1,-t), (R2,-t).
type poseHypothesis struct {
	Rotation    *mat.Dense
	Translation *mat.Dense
}

// poseHypotheses builds the four candidate poses from an essential matrix's
// decomposition, in the fixed order the cheirality check iterates: (R1,t),
// (R2,t), (R1,-t), (R2,-t).
func poseHypotheses(e *mat.Dense) ([4]poseHypothesis, error) {
	r1, r2, t, err := decomposeEssential(e)
	if err != nil {
		return [4]poseHypothesis{}, err
	}

	var tNeg mat.Dense
	tNeg.Scale(-1, t)

	return [4]poseHypothesis{
		{Rotation: r1, Translation: t},
		{Rotation: r2, Translation: t},
		{Rotation: r1, Translation: &tNeg},
		{Rotation: r2, Translation: &tNeg},
	}, nil
}
