package geo

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// staleFixMs force-invalidates the previous fix once it is an hour old,
// so movement is never derived across a long resolution gap.
const staleFixMs = 3600000

// ErrScanEmpty means a scan cycle saw no access points at all. The caller
// retries on the next tick with no backoff.
var ErrScanEmpty = errors.New("geo: scan found no networks")

// LowAccuracyError reports a resolution whose accuracy fell outside the
// configured bound. The fix is discarded but the previous one is kept.
type LowAccuracyError struct {
	Accuracy int
	Max      int
}

func (e *LowAccuracyError) Error() string {
	return fmt.Sprintf("geo: accuracy %dm outside [0,%d]", e.Accuracy, e.Max)
}

// ProviderError reports a backend transport or lookup failure. Code is
// the backend-specific negative accuracy code.
type ProviderError struct {
	Code int
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("geo: provider failed (code %d): %v", e.Code, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Result is what a geolocation backend returns. A failed lookup carries
// sentinels (lat=lng=0, accuracy<0) instead of an exception; the engine
// decides validity purely from the accuracy.
type Result struct {
	Valid     bool
	Latitude  float64
	Longitude float64
	Accuracy  int
}

// Scanner captures WiFi observations, excluding the associated AP and
// capped at MaxObservations.
type Scanner interface {
	Scan(ctx context.Context) (Fingerprint, error)
}

// Resolver turns a fingerprint into a position. Implemented by the
// geoloc backends.
type Resolver interface {
	Resolve(ctx context.Context, fp Fingerprint) (Result, error)
}

// Engine drives scan/resolve cycles and keeps the current and previous
// fixes. Single-owner: only the scheduler goroutine calls into it.
type Engine struct {
	scanner  Scanner
	resolver Resolver
	maxAcc   int

	nets     Fingerprint
	prevNets Fingerprint

	current  Fix
	previous Fix
	locator  string
}

func NewEngine(scanner Scanner, resolver Resolver, maxAccuracy int) *Engine {
	return &Engine{scanner: scanner, resolver: resolver, maxAcc: maxAccuracy}
}

// Scan rebuilds the fingerprint for this cycle. With sortByRSSI set the
// observations are ordered strongest-first (tie order unspecified).
func (e *Engine) Scan(ctx context.Context, sortByRSSI bool) (int, error) {
	fp, err := e.scanner.Scan(ctx)
	if err != nil {
		e.nets = nil
		return 0, fmt.Errorf("geo: scan: %w", err)
	}
	if len(fp) == 0 {
		e.nets = nil
		return 0, ErrScanEmpty
	}
	if len(fp) > MaxObservations {
		fp = fp[:MaxObservations]
	}
	if sortByRSSI {
		sort.Slice(fp, func(i, j int) bool { return fp[i].RSSI > fp[j].RSSI })
	}
	e.nets = fp
	return len(fp), nil
}

// NetworksChanged compares the scan against the one that produced the
// last resolution. A changed count, a 10 dBm swing on any shared AP, or
// an AP appearing/disappearing all count as a significant change.
func NetworksChanged(cur, prev Fingerprint) bool {
	if len(cur) != len(prev) {
		return true
	}
	for _, n := range cur {
		found := false
		for _, p := range prev {
			if n.BSSID == p.BSSID {
				found = true
				d := n.RSSI - p.RSSI
				if d < 0 {
					d = -d
				}
				if d > 10 {
					return true
				}
				break
			}
		}
		if !found {
			return true
		}
	}
	return false
}

// Resolve turns the current fingerprint into a fix.
//
// When the fingerprint has not changed significantly since the last
// resolution and the current fix is still valid, the provider round-trip
// is skipped: the fix timestamp is refreshed and accuracy 1 is reported.
//
// On a valid resolution the current fix is promoted to previous and
// replaced. On failure or out-of-range accuracy the current fix is
// invalidated and previous kept. Independently, a previous fix older
// than an hour is dropped.
func (e *Engine) Resolve(ctx context.Context, nowMs int64) (int, error) {
	if !NetworksChanged(e.nets, e.prevNets) && e.current.Valid {
		e.current.UptimeMs = nowMs
		e.locator = Locator(e.current.Latitude, e.current.Longitude)
		return 1, nil
	}

	e.prevNets = append(Fingerprint(nil), e.nets...)

	res, err := e.resolver.Resolve(ctx, e.nets)

	if nowMs-e.previous.UptimeMs > staleFixMs {
		e.previous.Valid = false
	}

	if err != nil {
		e.current.Valid = false
		code := res.Accuracy
		if code >= 0 {
			code = -1
		}
		return code, &ProviderError{Code: code, Err: err}
	}

	acc := res.Accuracy
	if acc >= 0 && acc <= e.maxAcc {
		if e.current.Valid {
			e.previous = e.current
		}
		e.current = Fix{
			Latitude:  res.Latitude,
			Longitude: res.Longitude,
			Accuracy:  acc,
			UptimeMs:  nowMs,
			Valid:     true,
		}
		e.locator = Locator(res.Latitude, res.Longitude)
		return acc, nil
	}

	e.current.Valid = false
	if acc < 0 {
		return acc, &ProviderError{Code: acc, Err: errors.New("backend error code")}
	}
	return acc, &LowAccuracyError{Accuracy: acc, Max: e.maxAcc}
}

// Movement derives distance, speed and bearing from the two fixes. With
// either fix missing, or no measurable speed, bearing is the -1 sentinel.
func (e *Engine) Movement() Movement {
	if !e.current.Valid || !e.previous.Valid {
		return Movement{BearingDeg: -1}
	}
	dt := e.current.UptimeMs - e.previous.UptimeMs
	if dt <= 0 {
		return Movement{BearingDeg: -1}
	}

	m := Movement{BearingDeg: -1}
	m.DistanceM = Distance(e.previous.Latitude, e.previous.Longitude, e.current.Latitude, e.current.Longitude)
	m.SpeedMS = 1000.0 * m.DistanceM / float64(dt)
	m.Knots = int(m.SpeedMS*msToKnots + 0.5)
	if m.Knots > 0 {
		m.BearingDeg = Bearing(e.previous.Latitude, e.previous.Longitude, e.current.Latitude, e.current.Longitude)
	}
	return m
}

func (e *Engine) Current() Fix { return e.current }

func (e *Engine) Previous() Fix { return e.previous }

func (e *Engine) Locator() string { return e.locator }

func (e *Engine) Networks() int { return len(e.nets) }

func (e *Engine) Fingerprint() Fingerprint { return e.nets }
