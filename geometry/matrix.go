// Package geometry provides the dense linear-algebra primitives shared by
// the fundamental/essential matrix estimators and the triangulation code:
// SVD, determinant, and small matrix products over gonum's mat.Dense.
package geometry

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// SVD holds the U, S (diagonal), V and V^T factors of a singular value
// decomposition, exported so callers outside this package can reuse a
// single factorization for rank reduction and null-vector extraction.
type SVD struct {
	U  *mat.Dense
	S  *mat.Dense
	V  *mat.Dense
	VT *mat.Dense

	// Values holds the singular values in descending order, as returned by
	// gonum's mat.SVD.Values.
	Values []float64
}

// Factorize performs a full SVD on m and returns the factors, or an error if
// gonum fails to converge.
func Factorize(m *mat.Dense) (*SVD, error) {
	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDFull) {
		return nil, errors.New("geometry: SVD failed to factorize matrix")
	}

	u, v := &mat.Dense{}, &mat.Dense{}
	svd.UTo(u)
	svd.VTo(v)

	values := svd.Values(nil)
	s := mat.NewDense(len(values), len(values), nil)
	for i, v := range values {
		s.Set(i, i, v)
	}

	return &SVD{
		U:      u,
		S:      s,
		V:      v,
		VT:     Transpose(v),
		Values: values,
	}, nil
}

// Transpose returns a new matrix holding the transpose of m.
func Transpose(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(c, r, nil)
	out.Copy(m.T())
	return out
}

// Eye returns the n x n identity matrix.
func Eye(n int) *mat.Dense {
	out := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		out.Set(i, i, 1)
	}
	return out
}

// Det returns the determinant of a square matrix.
func Det(m *mat.Dense) float64 {
	return mat.Det(m)
}

// EnforceRank2 zeroes the smallest singular value of a 3x3 matrix's SVD and
// recomposes it, the rank-2 enforcement both the fundamental and essential
// matrix estimators need.
func EnforceRank2(m *mat.Dense) (*mat.Dense, error) {
	svd, err := Factorize(m)
	if err != nil {
		return nil, err
	}
	svd.S.Set(2, 2, 0)

	var tmp, out mat.Dense
	tmp.Mul(svd.U, svd.S)
	out.Mul(&tmp, svd.VT)
	return &out, nil
}

// RightNullVector returns the right singular vector of m associated with its
// smallest singular value, i.e. the last column of V in m's SVD. This is the
// homogeneous least-squares solution used by the 8-point algorithm and DLT
// triangulation.
func RightNullVector(m *mat.Dense) ([]float64, error) {
	svd, err := Factorize(m)
	if err != nil {
		return nil, err
	}
	_, cols := svd.V.Dims()
	col := svd.V.ColView(cols - 1)
	out := make([]float64, col.Len())
	for i := range out {
		out[i] = col.AtVec(i)
	}
	return out, nil
}
