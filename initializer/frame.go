package initializer

import (
	"time"

	"github.com/golang/geo/r2"

	"github.com/dreamwaterfound/ssvo-go/camera"
)

// GrayImage is a single grayscale image level, intensities in [0, 255].
// The initializer consumes pre-built pyramid levels; it does not build
// them from raw sensor data.
type GrayImage interface {
	Width() int
	Height() int
	// At returns the intensity at pixel (x, y). Behavior for out-of-bounds
	// coordinates is undefined; callers must bounds-check first.
	At(x, y int) float64
}

// Pyramid is an image pyramid ordered from level 0 (full resolution) upward.
type Pyramid []GrayImage

// Frame is the external collaborator the initializer consumes: a source
// frame carrying an image pyramid, pixel key-points, intrinsics, timestamp
// and pose. Feature detection, pyramid construction, and calibration are
// assumed already done upstream.
type Frame interface {
	ID() uint64
	Timestamp() time.Time
	KeyPoints() []r2.Point
	Pyramid() Pyramid
	Intrinsics() *camera.Intrinsics
	Pose() *camera.Pose
}
