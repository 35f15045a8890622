package orientation

import (
	"math"
)

// Tilt is the static orientation of the sensor estimated from gravity.
// With a single accelerometer only roll and pitch are observable.
type Tilt struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
}

// FromAccel computes roll and pitch in degrees from an acceleration
// vector (any unit, only the ratios matter):
//
//	roll  = atan2(ay, az)
//	pitch = atan2(-ax, sqrt(ay² + az²))
//
// Meaningful only while the sensor is quasi-static; at high vibration
// levels this is a diagnostic, not an attitude estimate.
func FromAccel(ax, ay, az float64) Tilt {
	rollRad := math.Atan2(ay, az)
	pitchRad := math.Atan2(-ax, math.Sqrt(ay*ay+az*az))

	return Tilt{
		Roll:  rollRad * 180.0 / math.Pi,
		Pitch: pitchRad * 180.0 / math.Pi,
	}
}
