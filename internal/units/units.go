// Package units converts OTDR time-domain quantities into distance and
// attenuation-rate quantities.
package units

const (
	// SpeedOfLight in vacuum, m/s.
	SpeedOfLight = 299792458.0
	// NominalSecondsToMeters converts the instrument's nominal time base
	// (pulse width, point spacing, range) to meters.
	NominalSecondsToMeters = 100000000.0
)

// ToDistanceKm converts a round-trip time in seconds to a one-way distance in km.
// groupIndex must be > 0.
func ToDistanceKm(timeSeconds, groupIndex float64) float64 {
	return timeSeconds * SpeedOfLight / (2000 * groupIndex)
}

// ToAttenuationRateDbPerKm converts a loss rate in dB/s of round-trip time to dB/km.
func ToAttenuationRateDbPerKm(lossPerSecond, groupIndex float64) float64 {
	return lossPerSecond * 2000 * groupIndex / SpeedOfLight
}

// ToFutureLocation re-zeroes rawLocation against referenceLocation (the fiber
// start) and converts the result to km.
func ToFutureLocation(rawLocation, referenceLocation, groupIndex float64) float64 {
	return ToDistanceKm(rawLocation-referenceLocation, groupIndex)
}

// NominalToMeters converts a nominal-seconds quantity to meters.
func NominalToMeters(s float64) float64 {
	return s * NominalSecondsToMeters
}

// NominalToKm converts a nominal-seconds quantity to km.
func NominalToKm(s float64) float64 {
	return s * NominalSecondsToMeters / 1000
}
