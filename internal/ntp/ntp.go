// Package ntp keeps wall-clock time with an SNTP client. The tracker
// has no RTC: it carries a delta between the monotonic uptime clock and
// network time, resynchronized every 8 hours, or after a minute when a
// sync fails.
package ntp

import (
	"encoding/binary"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

const (
	// Seconds between the NTP epoch (1900) and the Unix epoch (1970).
	ntpEpochOffset = 2208988800

	resyncAfterOK   = 8 * time.Hour
	resyncAfterFail = time.Minute
	queryTimeout    = 3 * time.Second
)

type Client struct {
	server string

	// injectable for tests
	query func(server string) (int64, error)
	now   func() time.Time

	start time.Time

	mu       sync.Mutex
	delta    int64
	nextSync time.Time
	valid    bool
}

func New(server string) *Client {
	c := &Client{
		server: server,
		query:  queryNTP,
		now:    time.Now,
	}
	c.start = c.now()
	return c
}

func (c *Client) uptimeSeconds() int64 {
	return int64(c.now().Sub(c.start) / time.Second)
}

// Seconds returns the current Unix time. With sync set and a resync
// due, it first queries the server; a failed query leaves the previous
// delta in place. Before the first successful sync this is just the
// uptime.
func (c *Client) Seconds(sync bool) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sync && !c.now().Before(c.nextSync) {
		utm, err := c.query(c.server)
		if err != nil {
			c.nextSync = c.now().Add(resyncAfterFail)
			c.valid = false
			log.Printf("ntp: sync with %s failed: %v", c.server, err)
		} else {
			c.delta = utm - c.uptimeSeconds()
			c.nextSync = c.now().Add(resyncAfterOK)
			c.valid = true
			log.Printf("ntp: synced, unix time %d", utm)
		}
	}
	return c.uptimeSeconds() + c.delta
}

// Valid reports whether the last sync attempt succeeded.
func (c *Client) Valid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.valid
}

// Uptime renders the monotonic uptime as "N days, hh:mm:ss".
func (c *Client) Uptime() string {
	upt := c.uptimeSeconds()
	ss := upt % 60
	mm := (upt % 3600) / 60
	hh := (upt % 86400) / 3600
	dd := upt / 86400
	if dd == 1 {
		return fmt.Sprintf("%d day, %02d:%02d:%02d", dd, hh, mm, ss)
	}
	return fmt.Sprintf("%d days, %02d:%02d:%02d", dd, hh, mm, ss)
}

// queryNTP sends one SNTP request and returns the server's transmit
// time as Unix seconds.
func queryNTP(server string) (int64, error) {
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "123")
	}
	conn, err := net.DialTimeout("udp", server, queryTimeout)
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(queryTimeout))

	// LI=3 (unsynchronized), VN=4, mode=3 (client); the rest zero.
	req := make([]byte, 48)
	req[0] = 0xE3
	if _, err := conn.Write(req); err != nil {
		return 0, err
	}

	resp := make([]byte, 48)
	if _, err := conn.Read(resp); err != nil {
		return 0, err
	}
	return parseTransmitTime(resp)
}

// parseTransmitTime extracts the transmit timestamp (offset 40),
// rounding to the nearest second from the first fraction byte with a
// small allowance for network delay.
func parseTransmitTime(resp []byte) (int64, error) {
	if len(resp) < 48 {
		return 0, fmt.Errorf("short ntp response (%d bytes)", len(resp))
	}
	secs := int64(binary.BigEndian.Uint32(resp[40:44]))
	if secs == 0 {
		return 0, fmt.Errorf("ntp response carries no transmit time")
	}
	if resp[44] > 115 {
		secs++
	}
	return secs - ntpEpochOffset, nil
}
