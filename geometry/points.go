package geometry

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// NormalizePoints translates pts so their centroid is the origin and scales
// x and y independently so the mean absolute deviation along each axis is
// 1, returning the normalized points and the 3x3 transform matrix T such
// that NormalizePoints-then-denormalize round-trips (Hartley's isotropic
// normalization, generalized here to scale each axis independently).
func NormalizePoints(pts []r2.Point) ([]r2.Point, *mat.Dense) {
	n := len(pts)
	if n == 0 {
		return nil, Eye(3)
	}

	var mu r2.Point
	for _, p := range pts {
		mu.X += p.X
		mu.Y += p.Y
	}
	mu = mu.Mul(1 / float64(n))

	var madX, madY float64
	for _, p := range pts {
		madX += math.Abs(p.X - mu.X)
		madY += math.Abs(p.Y - mu.Y)
	}
	madX /= float64(n)
	madY /= float64(n)

	scaleX := 1.0
	if madX > 0 {
		scaleX = 1.0 / madX
	}
	scaleY := 1.0
	if madY > 0 {
		scaleY = 1.0 / madY
	}

	out := make([]r2.Point, n)
	for i, p := range pts {
		out[i] = r2.Point{X: scaleX * (p.X - mu.X), Y: scaleY * (p.Y - mu.Y)}
	}

	t := mat.NewDense(3, 3, []float64{
		scaleX, 0, -scaleX * mu.X,
		0, scaleY, -scaleY * mu.Y,
		0, 0, 1,
	})
	return out, t
}

// DenormalizePoint applies the inverse of the transform T produced by
// NormalizePoints to a single homogeneous point.
func DenormalizePoint(t *mat.Dense, p r2.Point) r2.Point {
	var inv mat.Dense
	if err := inv.Inverse(t); err != nil {
		return p
	}
	h := mat.NewVecDense(3, []float64{p.X, p.Y, 1})
	var out mat.VecDense
	out.MulVec(&inv, h)
	return r2.Point{X: out.AtVec(0) / out.AtVec(2), Y: out.AtVec(1) / out.AtVec(2)}
}

// ToHomogeneous converts a slice of 2-D pixel points into homogeneous 3-D
// vectors (x, y, 1).
func ToHomogeneous(pts []r2.Point) []r3.Vector {
	out := make([]r3.Vector, len(pts))
	for i, p := range pts {
		out[i] = r3.Vector{X: p.X, Y: p.Y, Z: 1}
	}
	return out
}

// Disparity returns the Euclidean pixel displacement between two points.
func Disparity(a, b r2.Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}
