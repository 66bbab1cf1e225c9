package imu

import (
	"math"
	"time"
)

// Sensitivities for the ranges the sensor firmware is fixed to.
const (
	// AccelLSBPerG is the accelerometer sensitivity at ±2g.
	AccelLSBPerG = 16384.0

	// GyroLSBPerDegS is the gyroscope sensitivity at ±250°/s.
	GyroLSBPerDegS = 131.0

	// MagFullScale and MagLSBRange map magnetometer counts to native units.
	MagFullScale = 1200.0
	MagLSBRange  = 4096.0

	// StandardGravity in m/s².
	StandardGravity = 9.80665
)

// Vector3 is a three-axis quantity.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Reading is one accelerometer+gyroscope sample in SI units.
type Reading struct {
	Stamp              time.Time `json:"stamp"`
	LinearAcceleration Vector3   `json:"linear_acceleration"` // m/s²
	AngularVelocity    Vector3   `json:"angular_velocity"`    // rad/s
}

// MagneticReading is one magnetometer sample in the sensor's native units.
type MagneticReading struct {
	MagneticField Vector3 `json:"magnetic_field"`
}

func accel(v int16) float64 {
	return float64(v) / AccelLSBPerG * StandardGravity
}

func gyro(v int16) float64 {
	return float64(v) / GyroLSBPerDegS * (math.Pi / 180.0)
}

func mag(v int16) float64 {
	return float64(v) * MagFullScale / MagLSBRange
}

// Convert scales a raw sample into physical units.
func Convert(raw IMURaw, stamp time.Time) (Reading, MagneticReading) {
	r := Reading{
		Stamp:              stamp,
		LinearAcceleration: Vector3{X: accel(raw.Ax), Y: accel(raw.Ay), Z: accel(raw.Az)},
		AngularVelocity:    Vector3{X: gyro(raw.Gx), Y: gyro(raw.Gy), Z: gyro(raw.Gz)},
	}
	m := MagneticReading{
		MagneticField: Vector3{X: mag(raw.Mx), Y: mag(raw.My), Z: mag(raw.Mz)},
	}
	return r, m
}

// Decode parses and converts a response frame. It has no side effects;
// the same frame and stamp always give the same readings.
func Decode(frame []byte, stamp time.Time) (Reading, MagneticReading, error) {
	raw, err := ParseFrame(frame)
	if err != nil {
		return Reading{}, MagneticReading{}, err
	}
	r, m := Convert(raw, stamp)
	return r, m, nil
}
