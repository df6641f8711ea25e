// Package web serves a small status API for debugging and dashboards.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"wifitrk-ng/internal/beacon"
)

// StatusSource is anything with a publishable snapshot.
type StatusSource interface {
	Snapshot() beacon.Snapshot
}

// TimeInfo describes the NTP side of the status page.
type TimeInfo interface {
	Seconds(sync bool) int64
	Valid() bool
	Uptime() string
}

// ClientCounter reports NMEA TCP subscribers; nil when the TCP server
// is disabled.
type ClientCounter interface {
	Clients() int
}

type Server struct {
	name     string
	version  string
	source   StatusSource
	clock    TimeInfo
	counter  ClientCounter
	listen   string
	sequence func() int
}

func NewServer(listen, name, version string, source StatusSource, clock TimeInfo, counter ClientCounter, sequence func() int) *Server {
	return &Server{
		name:     name,
		version:  version,
		source:   source,
		clock:    clock,
		counter:  counter,
		listen:   listen,
		sequence: sequence,
	}
}

type statusPayload struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Uptime      string          `json:"uptime"`
	UnixTime    int64           `json:"unix_time"`
	TimeValid   bool            `json:"time_valid"`
	NMEAClients int             `json:"nmea_clients"`
	APRSSeq     int             `json:"aprs_sequence,omitempty"`
	Beacon      beacon.Snapshot `json:"beacon"`
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		p := statusPayload{
			Name:      s.name,
			Version:   s.version,
			Uptime:    s.clock.Uptime(),
			UnixTime:  s.clock.Seconds(false),
			TimeValid: s.clock.Valid(),
			Beacon:    s.source.Snapshot(),
		}
		if s.counter != nil {
			p.NMEAClients = s.counter.Clients()
		}
		if s.sequence != nil {
			p.APRSSeq = s.sequence()
		}
		b, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			http.Error(w, "marshal failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b)
		_, _ = w.Write([]byte("\n"))
	})
	return mux
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
		return ctx.Err()
	case err := <-errc:
		return err
	}
}
