package camera

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/dreamwaterfound/ssvo-go/geometry"
)

// Pose is a 6-DoF relative camera pose: rotation R (3x3) and translation t
// (3x1). The combined 3x4 [R|t] form is reconstructed on demand by
// Matrix3x4 instead of being stored redundantly.
type Pose struct {
	Rotation    *mat.Dense
	Translation *mat.Dense
}

// NewPose builds a Pose from a rotation and translation matrix.
func NewPose(rotation, translation *mat.Dense) *Pose {
	return &Pose{Rotation: rotation, Translation: translation}
}

// Identity returns the zero-motion pose (R = I, t = 0).
func Identity() *Pose {
	return &Pose{Rotation: geometry.Eye(3), Translation: mat.NewDense(3, 1, nil)}
}

// Matrix3x4 returns the augmented [R|t] matrix.
func (p *Pose) Matrix3x4() *mat.Dense {
	out := mat.NewDense(3, 4, nil)
	out.Augment(p.Rotation, p.Translation)
	return out
}

// TranslationVector returns the translation as an r3.Vector.
func (p *Pose) TranslationVector() r3.Vector {
	return r3.Vector{X: p.Translation.At(0, 0), Y: p.Translation.At(1, 0), Z: p.Translation.At(2, 0)}
}

// ProjectionMatrix returns P = K * [R|t], the camera projection matrix used
// by DLT triangulation.
func (p *Pose) ProjectionMatrix(k *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Mul(k, p.Matrix3x4())
	return &out
}
