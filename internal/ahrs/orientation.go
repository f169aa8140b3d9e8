package ahrs

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Vector3 is one tri-axis sample.
// Accelerometer readings are in m/s², magnetometer readings in µT.
type Vector3 = r3.Vec

// RadToDeg is the radians-to-degrees factor applied to every output angle.
const RadToDeg = 57.2957795

const (
	gravityEarth = 9.81

	// Below this squared norm the accelerometer is treated as free falling.
	freeFallGravitySquared = 0.01 * gravityEarth * gravityEarth

	// Minimum norm of mag x accel. Smaller values mean the two vectors are
	// (nearly) parallel and east cannot be resolved.
	minHorizontalNorm = 0.1
)

var (
	ErrDegenerateInput = errors.New("ahrs: degenerate orientation input")
	ErrInvalidAxes     = errors.New("ahrs: invalid remap axes")
	ErrUnknownSensor   = errors.New("ahrs: unknown sensor kind")
)

// Matrix is a row-major 3x3 rotation matrix.
type Matrix [3][3]float64

// Angles are orientation angles in degrees.
type Angles struct {
	AzimuthDeg float64 `json:"azimuth_deg"`
	PitchDeg   float64 `json:"pitch_deg"`
	RollDeg    float64 `json:"roll_deg"`
}

func (a Angles) String() string {
	return fmt.Sprintf("azimuth=%.1f pitch=%.1f roll=%.1f", a.AzimuthDeg, a.PitchDeg, a.RollDeg)
}

// RotationMatrix builds the device-to-world rotation from one accelerometer
// and one magnetometer sample. Rows are east, north and up expressed in
// device coordinates.
func RotationMatrix(accel, mag Vector3) (Matrix, error) {
	if !finite3(accel) || !finite3(mag) {
		return Matrix{}, fmt.Errorf("%w: non-finite sample", ErrDegenerateInput)
	}
	if r3.Norm2(accel) < freeFallGravitySquared {
		return Matrix{}, fmt.Errorf("%w: accelerometer below free-fall threshold", ErrDegenerateInput)
	}

	h := r3.Cross(mag, accel)
	normH := r3.Norm(h)
	if normH < minHorizontalNorm {
		return Matrix{}, fmt.Errorf("%w: accelerometer and magnetometer nearly parallel", ErrDegenerateInput)
	}

	east := r3.Scale(1/normH, h)
	up := r3.Unit(accel)
	north := r3.Cross(up, east)

	return Matrix{
		{east.X, east.Y, east.Z},
		{north.X, north.Y, north.Z},
		{up.X, up.Y, up.Z},
	}, nil
}

// Axis selects a device axis for Remap. The Minus variants flip its sign.
type Axis int

const (
	AxisX      Axis = 1
	AxisY      Axis = 2
	AxisZ      Axis = 3
	AxisMinusX Axis = AxisX | 0x80
	AxisMinusY Axis = AxisY | 0x80
	AxisMinusZ Axis = AxisZ | 0x80
)

// Remap rotates the coordinate system of m so that device axis x becomes
// the new X axis and device axis y becomes the new Y axis. The new Z axis
// completes a right-handed frame.
//
// Remap(m, AxisX, AxisZ) keeps X, moves the old Y into the new Z and the
// negated old Z into the new Y, which is the frame of a screen viewed
// face-on.
func Remap(m Matrix, x, y Axis) (Matrix, error) {
	if x&^0x83 != 0 || y&^0x83 != 0 {
		return Matrix{}, ErrInvalidAxes
	}
	if x&0x3 == 0 || y&0x3 == 0 {
		return Matrix{}, ErrInvalidAxes
	}
	if x&0x3 == y&0x3 {
		return Matrix{}, ErrInvalidAxes
	}

	z := x ^ y
	xi := int(x&0x3) - 1
	yi := int(y&0x3) - 1
	zi := int(z&0x3) - 1

	// The implied Z flips sign when (x, y) is not a cyclic pair.
	if xi != (zi+1)%3 || yi != (zi+2)%3 {
		z ^= 0x80
	}

	sx := axisSign(x)
	sy := axisSign(y)
	sz := axisSign(z)

	var out Matrix
	for j := 0; j < 3; j++ {
		out[j][xi] = sx * m[j][0]
		out[j][yi] = sy * m[j][1]
		out[j][zi] = sz * m[j][2]
	}
	return out, nil
}

func axisSign(a Axis) float64 {
	if a >= 0x80 {
		return -1
	}
	return 1
}

// Orientation extracts azimuth, pitch and roll in radians from a rotation
// matrix, using the mobile-platform convention.
func Orientation(m Matrix) (azimuth, pitch, roll float64) {
	azimuth = math.Atan2(m[0][1], m[1][1])
	// Clamp rounding excursions so a unit component never yields NaN.
	pitch = math.Asin(clamp(-m[2][1], -1, 1))
	roll = math.Atan2(-m[2][0], m[2][2])
	return azimuth, pitch, roll
}

// Compute fuses one accelerometer and one magnetometer sample into
// orientation angles in the face-on screen frame.
//
// It returns an error wrapping ErrDegenerateInput when no rotation can be
// built from the pair; callers keep their previous angles in that case.
func Compute(accel, mag Vector3) (Angles, error) {
	r, err := RotationMatrix(accel, mag)
	if err != nil {
		return Angles{}, err
	}
	remapped, err := Remap(r, AxisX, AxisZ)
	if err != nil {
		return Angles{}, err
	}
	az, pitch, roll := Orientation(remapped)
	return Angles{
		AzimuthDeg: az * RadToDeg,
		PitchDeg:   pitch * RadToDeg,
		RollDeg:    roll * RadToDeg,
	}, nil
}

func finite3(v Vector3) bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
