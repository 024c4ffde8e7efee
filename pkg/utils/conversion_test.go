package utils

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestVectors(t *testing.T) {
	Convey("Given a few vectors", t, func() {
		Convey("Conversion keeps values", func() {
			So(ConvertToFloat32([]float64{0.5, -1}), ShouldResemble, []float32{0.5, -1})
		})

		Convey("Cosine ranks direction, not length", func() {
			So(Cosine([]float32{1, 0}, []float32{3, 0}), ShouldAlmostEqual, 1.0)
			So(Cosine([]float32{1, 0}, []float32{0, 1}), ShouldAlmostEqual, 0.0)
			So(Cosine([]float32{1, 0}, []float32{1}), ShouldEqual, 0)
			So(Cosine([]float32{0, 0}, []float32{1, 1}), ShouldEqual, 0)
		})

		Convey("Normalize yields unit length", func() {
			v := []float32{3, 4}
			So(Normalize(v), ShouldBeTrue)
			So(v[0], ShouldAlmostEqual, 0.6, 1e-6)
			So(v[1], ShouldAlmostEqual, 0.8, 1e-6)
			So(Normalize([]float32{0, 0}), ShouldBeFalse)
		})
	})
}
