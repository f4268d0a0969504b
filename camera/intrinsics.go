// Package camera holds the pinhole-intrinsics and relative-pose types
// consumed and produced by the initializer.
package camera

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrNoIntrinsics is returned when a camera's intrinsic parameters have not
// been set.
var ErrNoIntrinsics = errors.New("camera: intrinsic parameters are not available")

// Intrinsics holds the pinhole camera intrinsic parameters: focal lengths
// (Fx, Fy) and principal point (Ppx, Ppy) in pixels, the upper-triangular
// entries of a 3x3 K matrix.
type Intrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// CheckValid reports whether the intrinsics are usable: focal lengths must
// be positive and the principal point non-negative.
func (in *Intrinsics) CheckValid() error {
	if in == nil {
		return ErrNoIntrinsics
	}
	if in.Fx <= 0 || in.Fy <= 0 {
		return errors.Errorf("camera: invalid focal length (fx=%v, fy=%v)", in.Fx, in.Fy)
	}
	if in.Ppx < 0 || in.Ppy < 0 {
		return errors.Errorf("camera: invalid principal point (ppx=%v, ppy=%v)", in.Ppx, in.Ppy)
	}
	return nil
}

// K returns the 3x3 camera intrinsic matrix:
//
//	[[fx  0  ppx]
//	 [ 0 fy  ppy]
//	 [ 0  0   1 ]]
func (in *Intrinsics) K() *mat.Dense {
	if in == nil {
		return nil
	}
	k := mat.NewDense(3, 3, nil)
	k.Set(0, 0, in.Fx)
	k.Set(1, 1, in.Fy)
	k.Set(0, 2, in.Ppx)
	k.Set(1, 2, in.Ppy)
	k.Set(2, 2, 1)
	return k
}
