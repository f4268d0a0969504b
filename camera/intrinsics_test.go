package camera

import (
	"testing"

	"go.viam.com/test"
)

func TestIntrinsicsCheckValid(t *testing.T) {
	valid := &Intrinsics{Width: 640, Height: 480, Fx: 500, Fy: 500, Ppx: 320, Ppy: 240}
	test.That(t, valid.CheckValid(), test.ShouldBeNil)

	noFocal := &Intrinsics{Width: 640, Height: 480}
	test.That(t, noFocal.CheckValid(), test.ShouldNotBeNil)

	negativePrincipalPoint := &Intrinsics{Width: 640, Height: 480, Fx: 500, Fy: 500, Ppx: -1, Ppy: 240}
	test.That(t, negativePrincipalPoint.CheckValid(), test.ShouldNotBeNil)

	test.That(t, (*Intrinsics)(nil).CheckValid(), test.ShouldEqual, ErrNoIntrinsics)
}

func TestIntrinsicsK(t *testing.T) {
	in := &Intrinsics{Width: 640, Height: 480, Fx: 500, Fy: 510, Ppx: 320, Ppy: 240}
	k := in.K()

	test.That(t, k.At(0, 0), test.ShouldEqual, 500.0)
	test.That(t, k.At(1, 1), test.ShouldEqual, 510.0)
	test.That(t, k.At(0, 2), test.ShouldEqual, 320.0)
	test.That(t, k.At(1, 2), test.ShouldEqual, 240.0)
	test.That(t, k.At(2, 2), test.ShouldEqual, 1.0)
	test.That(t, k.At(1, 0), test.ShouldEqual, 0.0)
	test.That(t, k.At(2, 0), test.ShouldEqual, 0.0)
	test.That(t, k.At(2, 1), test.ShouldEqual, 0.0)
}
