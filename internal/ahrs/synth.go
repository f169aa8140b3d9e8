package ahrs

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

const standardGravity = 9.80665

// GeoField is the local geomagnetic field split into its horizontal
// (northward) and vertical (downward) components, in µT.
type GeoField struct {
	HorizontalUT float64
	VerticalUT   float64
}

// DefaultGeoField is a typical mid-latitude field.
var DefaultGeoField = GeoField{HorizontalUT: 20, VerticalUT: 40}

// Synthesize returns the accelerometer and magnetometer readings a
// stationary device would report in the given pose. It is the inverse of
// Compute for pitch strictly between -90 and 90 degrees; at ±90 the
// azimuth and roll are not observable.
func Synthesize(a Angles, field GeoField) (accel, mag Vector3) {
	p := a.PitchDeg / RadToDeg
	r := a.RollDeg / RadToDeg
	az := a.AzimuthDeg / RadToDeg

	up := r3.Vec{
		X: -math.Sin(r) * math.Cos(p),
		Y: math.Cos(r) * math.Cos(p),
		Z: math.Sin(p),
	}

	// Any horizontal basis (e0, n0) with e0 x n0 = up, then rotate it about
	// up until the azimuth matches.
	helper := r3.Vec{X: 1}
	if math.Abs(up.X) > 0.9 {
		helper = r3.Vec{Y: 1}
	}
	e0 := r3.Unit(r3.Cross(helper, up))
	n0 := r3.Cross(up, e0)

	phi := az + math.Pi - math.Atan2(e0.Z, n0.Z)
	c, s := math.Cos(phi), math.Sin(phi)
	north := r3.Add(r3.Scale(-s, e0), r3.Scale(c, n0))

	accel = r3.Scale(standardGravity, up)
	mag = r3.Sub(r3.Scale(field.HorizontalUT, north), r3.Scale(field.VerticalUT, up))
	return accel, mag
}
