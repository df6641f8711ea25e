// Package nmea generates NMEA-0183 sentences from the tracker's fix state.
//
// Only the generating side lives here; the sentences are handed as opaque
// buffers to the fan-out transports. Field layouts follow what typical GPS
// consumers (OpenCPN, gpsd, APRS clients) accept: GGA, RMC, GLL, VTG, ZDA,
// each "$...*CS\r\n" with the standard XOR checksum.
package nmea

import (
	"fmt"
	"math"
)

// y2kEpoch is 2000-01-01T00:00:00Z in Unix seconds. NMEA dates are
// two-digit years counted from 2000.
const y2kEpoch = 946684800

var daysInMonth = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// Encoder builds NMEA sentences. It caches the last time and coordinate
// decompositions so a burst of sentences for the same fix does the
// arithmetic once. Not safe for concurrent use; the control loop is the
// single owner.
type Encoder struct {
	lastUTM                int64
	hh, mi, ss, dd, mo, yy int

	lastLat, lastLng    float64
	latDD, latMM, latFF int
	lngDD, lngMM, lngFF int
	latHemi, lngHemi    byte
}

func NewEncoder() *Encoder {
	e := &Encoder{lastUTM: -1}
	e.coords(0, 0)
	return e
}

// Checksum XORs every byte strictly between the leading '$' and the
// trailing '*'. The input here is the payload without either delimiter.
func Checksum(payload string) byte {
	var c byte
	for i := 0; i < len(payload); i++ {
		c ^= payload[i]
	}
	return c
}

// finish appends "*CS\r\n" to a sentence that starts with '$'.
func finish(sentence string) string {
	return fmt.Sprintf("%s*%02X\r\n", sentence, Checksum(sentence[1:]))
}

// time decomposes a Unix timestamp into hh/mm/ss and dd/mm/yy against the
// year-2000 epoch. Leap years are y%4==0 with no century correction; that
// matches the firmware this replaces and only diverges from the calendar
// in 2100.
func (e *Encoder) time(utm int64) {
	if utm == e.lastUTM {
		return
	}
	e.lastUTM = utm

	t := utm - y2kEpoch
	if t < 0 {
		t = 0
	}
	e.ss = int(t % 60)
	t /= 60
	e.mi = int(t % 60)
	t /= 60
	e.hh = int(t % 24)
	days := int(t / 24)

	leap := 0
	for e.yy = 0; ; e.yy++ {
		leap = 0
		if e.yy%4 == 0 {
			leap = 1
		}
		if days < 365+leap {
			break
		}
		days -= 365 + leap
	}
	for e.mo = 1; ; e.mo++ {
		dpm := daysInMonth[e.mo-1]
		if leap == 1 && e.mo == 2 {
			dpm++
		}
		if days < dpm {
			break
		}
		days -= dpm
	}
	e.dd = days + 1
}

// coords decomposes decimal degrees into whole degrees, whole minutes and
// 4-digit fractional minutes, the DDMM.ffff layout all five sentences use.
func (e *Encoder) coords(lat, lng float64) {
	e.latDD, e.latMM, e.latFF = splitCoord(lat)
	e.lngDD, e.lngMM, e.lngFF = splitCoord(lng)
	e.latHemi, e.lngHemi = 'N', 'E'
	if lat < 0 {
		e.latHemi = 'S'
	}
	if lng < 0 {
		e.lngHemi = 'W'
	}
	e.lastLat, e.lastLng = lat, lng
}

func (e *Encoder) coordsCached(lat, lng float64) {
	if lat == e.lastLat && lng == e.lastLng {
		return
	}
	e.coords(lat, lng)
}

func splitCoord(v float64) (deg, min, frac int) {
	a := math.Abs(v)
	deg = int(a)
	m := int(math.Round((a - float64(deg)) * 600000))
	return deg, m / 10000, m % 10000
}

// GGA: $GPGGA,hhmmss.0,DDMM.ffff,N,DDDMM.ffff,E,fix,sat,1,0,M,0,M,,*CS
func (e *Encoder) GGA(utm int64, lat, lng float64, fix, sat int) string {
	e.coordsCached(lat, lng)
	e.time(utm)
	s := fmt.Sprintf("$GPGGA,%02d%02d%02d.0,%02d%02d.%04d,%c,%03d%02d.%04d,%c,%d,%d,1,0,M,0,M,,",
		e.hh, e.mi, e.ss,
		e.latDD, e.latMM, e.latFF, e.latHemi,
		e.lngDD, e.lngMM, e.lngFF, e.lngHemi,
		fix, sat)
	return finish(s)
}

// RMC: $GPRMC,hhmmss.0,A,DDMM.ffff,N,DDDMM.ffff,E,spd.0,crs.0,ddmmyy,,,E*CS
//
// spd is knots, crs degrees; a negative course (no movement) renders as 0.
func (e *Encoder) RMC(utm int64, lat, lng float64, spd, crs int) string {
	e.coordsCached(lat, lng)
	e.time(utm)
	if crs < 0 {
		crs = 0
	}
	s := fmt.Sprintf("$GPRMC,%02d%02d%02d.0,A,%02d%02d.%04d,%c,%03d%02d.%04d,%c,%03d.0,%03d.0,%02d%02d%02d,,,E",
		e.hh, e.mi, e.ss,
		e.latDD, e.latMM, e.latFF, e.latHemi,
		e.lngDD, e.lngMM, e.lngFF, e.lngHemi,
		spd, crs,
		e.dd, e.mo, e.yy)
	return finish(s)
}

// GLL: $GPGLL,DDMM.ffff,N,DDDMM.ffff,E,hhmmss.0,A,E*CS
func (e *Encoder) GLL(utm int64, lat, lng float64) string {
	e.coordsCached(lat, lng)
	e.time(utm)
	s := fmt.Sprintf("$GPGLL,%02d%02d.%04d,%c,%03d%02d.%04d,%c,%02d%02d%02d.0,A,E",
		e.latDD, e.latMM, e.latFF, e.latHemi,
		e.lngDD, e.lngMM, e.lngFF, e.lngHemi,
		e.hh, e.mi, e.ss)
	return finish(s)
}

// VTG: $GPVTG,crs.0,T,,M,knots.0,N,kmh.0,K,E*CS
func (e *Encoder) VTG(crs, knots, kmh int) string {
	if crs < 0 {
		crs = 0
	}
	s := fmt.Sprintf("$GPVTG,%03d.0,T,,M,%03d.0,N,%03d.0,K,E", crs, knots, kmh)
	return finish(s)
}

// ZDA: $GPZDA,hhmmss.0,dd,mm,yyyy,,*CS
func (e *Encoder) ZDA(utm int64) string {
	e.time(utm)
	s := fmt.Sprintf("$GPZDA,%02d%02d%02d.0,%02d,%02d,%04d,,",
		e.hh, e.mi, e.ss, e.dd, e.mo, e.yy+2000)
	return finish(s)
}

// Welcome builds the proprietary $PVERS identification sentence sent to
// new TCP clients.
func Welcome(name, version string) string {
	return finish(fmt.Sprintf("$PVERS,%s,%s", name, version))
}
