// Package geo owns the tracker's positioning state: the WiFi fingerprint,
// the current/previous fixes, and the movement and locator math derived
// from them.
package geo

import (
	"fmt"
	"math"
)

// MaxObservations caps the fingerprint size sent to a geolocation
// backend.
const MaxObservations = 32

// earthRadiusM is the sphere radius used by the great-circle math.
const earthRadiusM = 6372795

// msToKnots converts m/s to knots.
const msToKnots = 1.94384449

// Observation is one access point seen during a scan.
type Observation struct {
	BSSID [6]byte
	RSSI  int // dBm, negative
}

func (o Observation) MAC() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X",
		o.BSSID[0], o.BSSID[1], o.BSSID[2], o.BSSID[3], o.BSSID[4], o.BSSID[5])
}

// Fingerprint is the ordered set of observations from one scan cycle. It
// is rebuilt every cycle and discarded after resolution.
type Fingerprint []Observation

// Fix is one resolved position. Time is monotonic milliseconds.
type Fix struct {
	Latitude  float64
	Longitude float64
	Accuracy  int
	UptimeMs  int64
	Valid     bool
}

// Movement is the sample derived from the current and previous fixes.
// Bearing is -1 (undefined) whenever Knots is zero.
type Movement struct {
	DistanceM  float64
	SpeedMS    float64
	Knots      int
	BearingDeg int
}

// Distance returns the great-circle distance in meters between two
// points, on a sphere of radius 6372795 m.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	delta := radians(lng1 - lng2)
	sdlong := math.Sin(delta)
	cdlong := math.Cos(delta)
	rlat1 := radians(lat1)
	rlat2 := radians(lat2)
	slat1 := math.Sin(rlat1)
	clat1 := math.Cos(rlat1)
	slat2 := math.Sin(rlat2)
	clat2 := math.Cos(rlat2)

	d := clat1*slat2 - slat1*clat2*cdlong
	d = d * d
	d += (clat2 * sdlong) * (clat2 * sdlong)
	d = math.Sqrt(d)
	denom := slat1*slat2 + clat1*clat2*cdlong
	return math.Atan2(d, denom) * earthRadiusM
}

// Bearing returns the initial forward azimuth from point 1 to point 2,
// in whole degrees normalized to [0,360).
func Bearing(lat1, lng1, lat2, lng2 float64) int {
	dlon := radians(lng2 - lng1)
	rlat1 := radians(lat1)
	rlat2 := radians(lat2)

	a1 := math.Sin(dlon) * math.Cos(rlat2)
	a2 := math.Cos(rlat1)*math.Sin(rlat2) - math.Sin(rlat1)*math.Cos(rlat2)*math.Cos(dlon)
	return (int(degrees(math.Atan2(a1, a2))) + 360) % 360
}

var cardinals = [16]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// Cardinal maps a bearing to its 16-point compass abbreviation. Sectors
// are 22.5 degrees wide, centered on the compass points.
func Cardinal(bearing int) string {
	return cardinals[int((float64(bearing)+11.25)/22.5)%16]
}

// Locator encodes a position as a 6-character Maidenhead grid square:
// 20°/10° fields (A-Z), 2°/1° squares (0-9), 5'/2.5' subsquares (a-x).
func Locator(lat, lng float64) string {
	rem := lng + 180.0
	o1 := int(rem / 20.0)
	rem -= float64(o1) * 20.0
	o2 := int(rem / 2.0)
	rem -= float64(o2) * 2.0
	o3 := int(12.0 * rem)

	rem = lat + 90.0
	a1 := int(rem / 10.0)
	rem -= float64(a1) * 10.0
	a2 := int(rem)
	rem -= float64(a2)
	a3 := int(24.0 * rem)

	return string([]byte{
		byte(o1) + 'A',
		byte(a1) + 'A',
		byte(o2) + '0',
		byte(a2) + '0',
		byte(o3) + 'a',
		byte(a3) + 'a',
	})
}

func radians(d float64) float64 { return d * math.Pi / 180.0 }
func degrees(r float64) float64 { return r * 180.0 / math.Pi }
