package nmea

import (
	"strings"
	"testing"

	gonmea "github.com/adrianmo/go-nmea"
)

// reChecksum recomputes the checksum from the emitted sentence itself and
// compares it with the appended hex digits.
func reChecksum(t *testing.T, sentence string) {
	t.Helper()
	if !strings.HasPrefix(sentence, "$") || !strings.HasSuffix(sentence, "\r\n") {
		t.Fatalf("bad framing: %q", sentence)
	}
	star := strings.LastIndexByte(sentence, '*')
	if star == -1 {
		t.Fatalf("missing '*': %q", sentence)
	}
	var c byte
	for i := 1; i < star; i++ {
		c ^= sentence[i]
	}
	want := strings.TrimSpace(sentence[star+1:])
	if got := strings.ToUpper(want); got != want {
		t.Fatalf("checksum not uppercase: %q", sentence)
	}
	if gotC := byte(hexVal(want[0])<<4 | hexVal(want[1])); gotC != c {
		t.Fatalf("checksum mismatch: computed %02X appended %s (%q)", c, want, sentence)
	}
}

func hexVal(b byte) byte {
	switch {
	case b >= '0' && b <= '9':
		return b - '0'
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10
	}
	return 0xFF
}

// parseIndependent runs the sentence through the go-nmea parser, which
// validates the checksum with a separate implementation.
func parseIndependent(t *testing.T, sentence string) gonmea.Sentence {
	t.Helper()
	s, err := gonmea.Parse(strings.TrimSpace(sentence))
	if err != nil {
		t.Fatalf("go-nmea rejected %q: %v", sentence, err)
	}
	return s
}

const (
	// 2021-01-01 12:34:56 UTC
	utmNoon2021 = 1609504496
	// 2023-11-14 22:13:20 UTC
	utm2023 = 1700000000
	// 2020-02-29 00:00:00 UTC (leap day)
	utmLeapDay = 1582934400
)

func TestGGA_FieldLayout(t *testing.T) {
	e := NewEncoder()
	got := e.GGA(utmNoon2021, 44.4268, 26.1025, 1, 3)

	wantPrefix := "$GPGGA,123456.0,4425.6080,N,02606.1500,E,1,3,1,0,M,0,M,,*"
	if !strings.HasPrefix(got, wantPrefix) {
		t.Fatalf("GGA layout:\n got %q\nwant prefix %q", got, wantPrefix)
	}
	reChecksum(t, got)

	sent := parseIndependent(t, got)
	gga, ok := sent.(gonmea.GGA)
	if !ok {
		t.Fatalf("parsed as %T, want GGA", sent)
	}
	if gga.NumSatellites != 3 {
		t.Fatalf("satellites: got %d want 3", gga.NumSatellites)
	}
	if d := gga.Latitude - 44.4268; d > 1e-4 || d < -1e-4 {
		t.Fatalf("latitude round-trip: got %v", gga.Latitude)
	}
	if d := gga.Longitude - 26.1025; d > 1e-4 || d < -1e-4 {
		t.Fatalf("longitude round-trip: got %v", gga.Longitude)
	}
}

func TestRMC_FieldLayout(t *testing.T) {
	e := NewEncoder()
	got := e.RMC(utmLeapDay, -33.8568, 151.2153, 12, 87)

	wantPrefix := "$GPRMC,000000.0,A,3351.4080,S,15112.9180,E,012.0,087.0,290220,,,E*"
	if !strings.HasPrefix(got, wantPrefix) {
		t.Fatalf("RMC layout:\n got %q\nwant prefix %q", got, wantPrefix)
	}
	reChecksum(t, got)
	parseIndependent(t, got)
}

func TestRMC_NegativeCourseRendersZero(t *testing.T) {
	e := NewEncoder()
	got := e.RMC(utmNoon2021, 44.4268, 26.1025, 0, -1)
	if !strings.Contains(got, ",000.0,000.0,") {
		t.Fatalf("course sentinel not clamped: %q", got)
	}
	reChecksum(t, got)
}

func TestGLL_FieldLayout(t *testing.T) {
	e := NewEncoder()
	got := e.GLL(utm2023, 44.4268, 26.1025)
	wantPrefix := "$GPGLL,4425.6080,N,02606.1500,E,221320.0,A,E*"
	if !strings.HasPrefix(got, wantPrefix) {
		t.Fatalf("GLL layout:\n got %q\nwant prefix %q", got, wantPrefix)
	}
	reChecksum(t, got)
	parseIndependent(t, got)
}

func TestVTG_FieldLayout(t *testing.T) {
	e := NewEncoder()
	got := e.VTG(123, 10, 19)
	wantPrefix := "$GPVTG,123.0,T,,M,010.0,N,019.0,K,E*"
	if !strings.HasPrefix(got, wantPrefix) {
		t.Fatalf("VTG layout:\n got %q\nwant prefix %q", got, wantPrefix)
	}
	reChecksum(t, got)
}

func TestZDA_FieldLayout(t *testing.T) {
	e := NewEncoder()
	got := e.ZDA(utm2023)
	wantPrefix := "$GPZDA,221320.0,14,11,2023,,*"
	if !strings.HasPrefix(got, wantPrefix) {
		t.Fatalf("ZDA layout:\n got %q\nwant prefix %q", got, wantPrefix)
	}
	reChecksum(t, got)
	parseIndependent(t, got)
}

func TestTimeDecomposition_CachedAcrossSentences(t *testing.T) {
	e := NewEncoder()
	zda1 := e.ZDA(utmNoon2021)
	gll := e.GLL(utmNoon2021, 1, 1)
	zda2 := e.ZDA(utmNoon2021)
	if zda1 != zda2 {
		t.Fatalf("same timestamp produced different ZDA: %q vs %q", zda1, zda2)
	}
	if !strings.Contains(gll, ",123456.0,") {
		t.Fatalf("GLL time: %q", gll)
	}
}

func TestWelcome(t *testing.T) {
	got := Welcome("WiFiTrk-NG", "0.3.0")
	if !strings.HasPrefix(got, "$PVERS,WiFiTrk-NG,0.3.0*") {
		t.Fatalf("welcome: %q", got)
	}
	reChecksum(t, got)
}
