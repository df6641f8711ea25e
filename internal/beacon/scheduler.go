// Package beacon implements the SmartBeaconing report scheduler: a
// fixed-cadence geolocation loop plus an adaptive report interval that
// tightens while the tracker moves and backs off while it sits still.
package beacon

import (
	"context"
	"log"
	"runtime"
	"sync"
	"time"

	"wifitrk-ng/internal/geo"
	"wifitrk-ng/internal/nmea"
)

// State labels what the scheduler is doing right now. Transitions are
// purely time- and accuracy-driven.
type State int

const (
	Idle State = iota
	Scanning
	Resolving
	Reporting
)

func (s State) String() string {
	switch s {
	case Scanning:
		return "scanning"
	case Resolving:
		return "resolving"
	case Reporting:
		return "reporting"
	default:
		return "idle"
	}
}

// Telemetry status bits. Positions match the BITS labels left to right:
// the high bit is the first named label.
const (
	bitFix  byte = 1 << 7 // current fix valid
	bitFast byte = 1 << 6 // moving at or above the fast tier
	bitSlow byte = 1 << 5 // stationary
	bitErr  byte = 1 << 4 // sticky transport error seen
	bitTime byte = 1 << 3 // wall clock is NTP-synced
)

// fastTierKnots splits "moving" into slow and fast reporting tiers.
const fastTierKnots = 10

// Reporter is the APRS side of a report. Satisfied by aprs.Client.
type Reporter interface {
	Connect(ctx context.Context) error
	Authenticate() bool
	Close()
	Err() bool
	ClearErr()
	SendPosition(utm int64, lat, lng float64, cse, spd int, alt float64, comment string) bool
	SendTelemetry(p1, p2, p3, p4, p5 int, bits byte) bool
}

// Sink receives finished NMEA sentences, best-effort.
type Sink interface {
	Send(p []byte)
}

// TimeSource supplies wall-clock unix seconds. With sync set the source
// may block briefly to resynchronize.
type TimeSource interface {
	Seconds(sync bool) int64
	Valid() bool
}

type Config struct {
	GeoInterval time.Duration // scan/resolve cadence
	MinInterval time.Duration // report interval floor
	MaxInterval time.Duration // report interval ceiling
	Step        time.Duration // stationary interval growth per report

	SortByRSSI bool
	// AltitudeM is a fixed altitude for position reports; negative
	// omits the altitude field.
	AltitudeM float64
	Comment   string
}

func (c *Config) setDefaults() {
	if c.GeoInterval <= 0 {
		c.GeoInterval = 20 * time.Second
	}
	if c.MinInterval <= 0 {
		c.MinInterval = time.Minute
	}
	if c.MaxInterval < c.MinInterval {
		c.MaxInterval = 10 * time.Minute
	}
	if c.Step <= 0 {
		c.Step = 30 * time.Second
	}
}

// Snapshot is a point-in-time copy of the scheduler state, safe to read
// from other goroutines.
type Snapshot struct {
	State            string  `json:"state"`
	Fix              geo.Fix `json:"fix"`
	Locator          string  `json:"locator"`
	Networks         int     `json:"networks"`
	Moving           bool    `json:"moving"`
	SpeedKnots       int     `json:"speed_knots"`
	BearingDeg       int     `json:"bearing_deg"`
	Cardinal         string  `json:"cardinal"`
	SmoothedAccuracy int     `json:"smoothed_accuracy_m"`
	ReportInterval   int     `json:"report_interval_s"`
	Reports          int64   `json:"reports"`
	LastError        string  `json:"last_error,omitempty"`
}

// Scheduler drives the whole firmware cycle. All fields except the
// published snapshot are single-owner, touched only from Run.
type Scheduler struct {
	cfg      Config
	engine   *geo.Engine
	reporter Reporter // nil disables APRS
	enc      *nmea.Encoder
	sinks    []Sink
	clock    TimeSource

	// nowMs is the monotonic uptime clock, injectable for tests.
	nowMs func() int64

	state        State
	smoothedAcc  int
	smoothedCrs  int
	intervalSec  int
	nextGeoMs    int64
	nextReportMs int64
	reports      int64
	lastErr      string

	mu   sync.Mutex
	snap Snapshot
}

func New(cfg Config, engine *geo.Engine, reporter Reporter, clock TimeSource, sinks ...Sink) *Scheduler {
	cfg.setDefaults()
	start := time.Now()
	s := &Scheduler{
		cfg:         cfg,
		engine:      engine,
		reporter:    reporter,
		enc:         nmea.NewEncoder(),
		sinks:       sinks,
		clock:       clock,
		nowMs:       func() int64 { return time.Since(start).Milliseconds() },
		smoothedCrs: -1,
		intervalSec: int(cfg.MinInterval / time.Second),
	}
	s.publish()
	return s
}

// Run ticks until the context is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scheduler step if the geolocation cadence is due.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.nowMs()
	if now < s.nextGeoMs {
		return
	}
	s.nextGeoMs = now + s.cfg.GeoInterval.Milliseconds()
	s.cycle(ctx, now)
	s.state = Idle
	s.publish()
}

func (s *Scheduler) cycle(ctx context.Context, now int64) {
	s.state = Scanning
	nets, err := s.engine.Scan(ctx, s.cfg.SortByRSSI)
	if err != nil {
		// Includes the empty-scan case: retry next cycle, no backoff.
		s.lastErr = err.Error()
		log.Printf("beacon: scan: %v", err)
		return
	}

	s.state = Resolving
	acc, err := s.engine.Resolve(ctx, now)
	if err != nil {
		s.lastErr = err.Error()
		log.Printf("beacon: resolve: %v", err)
	} else {
		s.lastErr = ""
	}

	m := s.engine.Movement()
	if acc >= 0 {
		s.smoothedAcc = smooth(s.smoothedAcc, acc)
	}
	moving := m.DistanceM > 0 && m.DistanceM >= float64(s.smoothedAcc)/4
	if moving && m.BearingDeg >= 0 {
		if s.smoothedCrs < 0 {
			s.smoothedCrs = m.BearingDeg
		} else {
			s.smoothedCrs = smooth(s.smoothedCrs, m.BearingDeg)
		}
	}

	if (moving || now >= s.nextReportMs) && err == nil && acc >= 0 {
		s.state = Reporting
		s.report(ctx, now, acc, nets, m, moving)
	}
}

// smooth is an IIR filter weighted 3/4 previous + 1/4 new, with a seed
// on the first sample.
func smooth(prev, sample int) int {
	if prev == 0 {
		return sample
	}
	return (prev*4 - prev + sample + 2) >> 2
}

func (s *Scheduler) report(ctx context.Context, now int64, acc, nets int, m geo.Movement, moving bool) {
	fix := s.engine.Current()
	utm := s.clock.Seconds(true)

	crs := -1
	if moving {
		crs = s.smoothedCrs
	}
	s.sendNMEA(utm, fix, nets, m.Knots, crs)

	if s.reporter != nil {
		s.sendAPRS(ctx, utm, fix, acc, nets, m, moving, crs)

		// Adapt the report interval. A transport failure during the
		// attempt forces the floor so the next cycle retries promptly.
		switch {
		case s.reporter.Err():
			s.intervalSec = int(s.cfg.MinInterval / time.Second)
			s.reporter.ClearErr()
		case moving:
			s.intervalSec = int(s.cfg.MinInterval / time.Second)
		default:
			s.intervalSec += int(s.cfg.Step / time.Second)
			if ceil := int(s.cfg.MaxInterval / time.Second); s.intervalSec > ceil {
				s.intervalSec = ceil
			}
		}
	}

	// Recomputed after every attempt, successful or not.
	s.nextReportMs = now + int64(s.intervalSec)*1000
	s.reports++
}

func (s *Scheduler) sendNMEA(utm int64, fix geo.Fix, nets, knots, crs int) {
	course := crs
	if course < 0 {
		course = 0
	}
	kmh := int(float64(knots)*1.852 + 0.5)
	sentences := []string{
		s.enc.GGA(utm, fix.Latitude, fix.Longitude, 1, nets),
		s.enc.RMC(utm, fix.Latitude, fix.Longitude, knots, crs),
		s.enc.GLL(utm, fix.Latitude, fix.Longitude),
		s.enc.VTG(course, knots, kmh),
		s.enc.ZDA(utm),
	}
	for _, line := range sentences {
		for _, sink := range s.sinks {
			sink.Send([]byte(line))
		}
	}
}

func (s *Scheduler) sendAPRS(ctx context.Context, utm int64, fix geo.Fix, acc, nets int, m geo.Movement, moving bool, crs int) {
	if err := s.reporter.Connect(ctx); err != nil {
		s.lastErr = err.Error()
		log.Printf("beacon: aprs connect: %v", err)
		return
	}
	defer s.reporter.Close()
	if !s.reporter.Authenticate() {
		s.lastErr = "aprs authentication failed"
		log.Printf("beacon: aprs authentication failed")
		return
	}

	s.reporter.SendPosition(utm, fix.Latitude, fix.Longitude, crs, m.Knots, s.cfg.AltitudeM, s.cfg.Comment)
	s.reporter.SendTelemetry(telemetryChannels(s.engine, acc, m.Knots, nets, s.statusBits(fix, m, moving)))
}

func (s *Scheduler) statusBits(fix geo.Fix, m geo.Movement, moving bool) byte {
	var bits byte
	if fix.Valid {
		bits |= bitFix
	}
	switch {
	case moving && m.Knots >= fastTierKnots:
		bits |= bitFast
	case !moving:
		bits |= bitSlow
	}
	if s.reporter != nil && s.reporter.Err() {
		bits |= bitErr
	}
	if s.clock.Valid() {
		bits |= bitTime
	}
	return bits
}

// telemetryChannels maps the cycle onto the five analog channels:
// strongest RSSI (negated), heap in 64 KiB units, accuracy, speed and
// network count, each clamped to the 0..255 telemetry range.
func telemetryChannels(engine *geo.Engine, acc, knots, nets int, bits byte) (int, int, int, int, int, byte) {
	rssi := 0
	if fp := engine.Fingerprint(); len(fp) > 0 {
		best := fp[0].RSSI
		for _, o := range fp[1:] {
			if o.RSSI > best {
				best = o.RSSI
			}
		}
		rssi = -best
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	heap := int(ms.HeapAlloc >> 16)

	return clamp8(rssi), clamp8(heap), clamp8(acc), clamp8(knots), clamp8(nets), bits
}

func clamp8(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

func (s *Scheduler) publish() {
	fix := s.engine.Current()
	m := s.engine.Movement()
	snap := Snapshot{
		State:            s.state.String(),
		Fix:              fix,
		Locator:          s.engine.Locator(),
		Networks:         s.engine.Networks(),
		Moving:           m.DistanceM > 0 && m.DistanceM >= float64(s.smoothedAcc)/4,
		SpeedKnots:       m.Knots,
		BearingDeg:       m.BearingDeg,
		SmoothedAccuracy: s.smoothedAcc,
		ReportInterval:   s.intervalSec,
		Reports:          s.reports,
		LastError:        s.lastErr,
	}
	if m.BearingDeg >= 0 {
		snap.Cardinal = geo.Cardinal(m.BearingDeg)
	}
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

// Snapshot returns the last published state, safe from any goroutine.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}
