// Package aprs builds and sends APRS-IS packets: login, position reports
// (fixed station or named object), status, messages and telemetry.
//
// The client formats packets itself and writes them to an injected stream
// transport. In production that transport is a TCP connection to an
// APRS-IS server, dialed once per report attempt; retry timing belongs to
// the beacon scheduler, not this package.
package aprs

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// aprsPath is the digipeating path appended to the source callsign on
// every packet.
const aprsPath = ">WIDE1-1,TCPIP*:"

// Telemetry setup lines. Five analog channels (AP RSSI, heap, fix
// accuracy, speed, network count) and five status bits.
const (
	tlmPARM = "PARM.RSSI,Heap,Acc,Spd,Nets,FIX,FST,SLW,ERR,TM"
	tlmEQNS = "EQNS.0,-1,0,0,65536,0,0,1,0,0,1,0,0,1,0"
	tlmUNIT = "UNIT.dBm,Bytes,m,kt,AP,on,fst,slw,err,tm"
	tlmBITS = "BITS.11111111, "
)

const (
	dialTimeout = 5 * time.Second
	authTimeout = 10 * time.Second
)

type Config struct {
	Server   string
	Port     int
	Callsign string
	// Passcode is the APRS-IS login code. When empty it is derived from
	// the callsign with Passcode().
	Passcode string
	// Object, when set, makes position reports named-object reports
	// (";NAME*") instead of fixed-station ones ("!").
	Object  string
	Comment string

	// Name/Version identify the software on the login line and in the
	// default comment.
	Name    string
	Version string
}

// Client formats APRS packets and writes them to a stream transport.
// Single-owner: only the scheduler goroutine touches it.
type Client struct {
	cfg      Config
	passcode string

	conn   io.ReadWriter
	closer io.Closer

	table  byte
	symbol byte

	seq int
	err bool
}

func NewClient(cfg Config) *Client {
	pass := strings.TrimSpace(cfg.Passcode)
	if pass == "" {
		pass = strconv.Itoa(Passcode(cfg.Callsign))
	}
	return &Client{
		cfg:      cfg,
		passcode: pass,
		table:    '/',
		symbol:   '>',
		// Start at the wrap point so the first telemetry packet is
		// preceded by a fresh setup broadcast.
		seq: 999,
	}
}

// SetTransport injects a transport directly, bypassing Connect. Used by
// tests and by callers that manage the socket themselves.
func (c *Client) SetTransport(rw io.ReadWriter) {
	c.conn = rw
	c.closer = nil
}

func (c *Client) Connected() bool { return c.conn != nil }

// Err reports the sticky transport error flag. The scheduler reads it
// after each report attempt and resets its interval on failure.
func (c *Client) Err() bool { return c.err }

func (c *Client) ClearErr() { c.err = false }

// Connect dials the APRS-IS server. A single attempt, no retries.
func (c *Client) Connect(ctx context.Context) error {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(c.cfg.Server, strconv.Itoa(c.cfg.Port)))
	if err != nil {
		c.err = true
		return fmt.Errorf("aprs connect %s:%d: %w", c.cfg.Server, c.cfg.Port, err)
	}
	c.conn = conn
	c.closer = conn
	return nil
}

func (c *Client) Close() {
	if c.closer != nil {
		_ = c.closer.Close()
	}
	c.conn = nil
	c.closer = nil
}

// Authenticate sends the login line and scans the response for the
// "verified" marker. Anything else (unverified, timeout, closed socket)
// is a failure.
func (c *Client) Authenticate() bool {
	if c.conn == nil {
		c.err = true
		return false
	}
	login := fmt.Sprintf("user %s pass %s vers %s %s\r\n",
		c.cfg.Callsign, c.passcode, c.cfg.Name, c.cfg.Version)
	if !c.send(login) {
		return false
	}

	if nc, ok := c.conn.(net.Conn); ok {
		_ = nc.SetReadDeadline(time.Now().Add(authTimeout))
	}
	scanner := bufio.NewScanner(c.conn)
	for scanner.Scan() {
		line := scanner.Text()
		// The server banner ("# aprsc ...") precedes the logresp line.
		if strings.HasPrefix(line, "# aprsc") || strings.HasPrefix(line, "# javAPRSSrvr") {
			continue
		}
		if strings.Contains(line, "verified") && !strings.Contains(line, "unverified") {
			return true
		}
		if strings.Contains(line, "unverified") || strings.HasPrefix(line, "# logresp") {
			break
		}
	}
	c.err = true
	return false
}

// send writes one packet and flags a short write or dead transport.
func (c *Client) send(pkt string) bool {
	if c.conn == nil {
		c.err = true
		return false
	}
	n, err := io.WriteString(c.conn, pkt)
	if err != nil || n != len(pkt) {
		c.err = true
		return false
	}
	return true
}

// zuluTime renders utm as the APRS HHMMSSh timestamp.
func zuluTime(utm int64) string {
	hh := (utm % 86400) / 3600
	mm := (utm % 3600) / 60
	ss := utm % 60
	return fmt.Sprintf("%02d%02d%02dh", hh, mm, ss)
}

// coordinates renders lat/lng as DDMM.mmN/DDDMM.mmE with the symbol
// table and code wrapped around the hemisphere letters.
func (c *Client) coordinates(lat, lng float64) string {
	latDD := int(abs(lat))
	latMM := int((abs(lat) - float64(latDD)) * 6000)
	lngDD := int(abs(lng))
	lngMM := int((abs(lng) - float64(lngDD)) * 6000)
	latHemi, lngHemi := byte('N'), byte('E')
	if lat < 0 {
		latHemi = 'S'
	}
	if lng < 0 {
		lngHemi = 'W'
	}
	return fmt.Sprintf("%02d%02d.%02d%c%c%03d%02d.%02d%c%c",
		latDD, latMM/100, latMM%100, latHemi, c.table,
		lngDD, lngMM/100, lngMM%100, lngHemi, c.symbol)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func (c *Client) SetSymbol(table, symbol byte) {
	c.table = table
	c.symbol = symbol
}

func (c *Client) header() string {
	return c.cfg.Callsign + aprsPath
}

// padCall pads a name with spaces to the 9 characters APRS requires for
// message addressees and telemetry setup targets.
func padCall(name string) string {
	if len(name) > 9 {
		name = name[:9]
	}
	return name + strings.Repeat(" ", 9-len(name))
}

// SendPosition reports the station position. With an object name
// configured the report is a named object carrying a zulu timestamp;
// otherwise it is a plain "!" fixed-station report. Course/speed are
// appended only when both are non-negative, altitude (meters) only when
// non-negative.
func (c *Client) SendPosition(utm int64, lat, lng float64, cse, spd int, alt float64, comment string) bool {
	var b strings.Builder
	b.WriteString(c.header())
	if obj := strings.TrimSpace(c.cfg.Object); obj != "" {
		b.WriteString(";")
		b.WriteString(padCall(obj))
		b.WriteString("*")
		b.WriteString(zuluTime(utm))
	} else {
		b.WriteString("!")
	}
	b.WriteString(c.coordinates(lat, lng))
	if spd >= 0 && cse >= 0 {
		fmt.Fprintf(&b, "%03d/%03d", cse, spd)
	}
	if alt >= 0 {
		fmt.Fprintf(&b, "/A=%06d", int64(alt*3.28084))
	}
	if comment == "" {
		comment = c.cfg.Name + "/" + c.cfg.Version
	}
	if len(comment) > 43 {
		comment = comment[:43]
	}
	b.WriteString(comment)
	b.WriteString("\r\n")
	return c.send(b.String())
}

// SendStatus sends a ">" status packet. Empty messages are skipped.
func (c *Client) SendStatus(message string) bool {
	if message == "" {
		return true
	}
	return c.send(c.header() + ">" + message + "\r\n")
}

// SendMessage sends an APRS message to dest (own callsign when empty).
// The title is capped at 8 characters and the body at 40.
func (c *Client) SendMessage(dest, title, message string) bool {
	if dest == "" {
		dest = c.cfg.Callsign
	}
	if len(title) > 8 {
		title = title[:8]
	}
	if len(message) > 40 {
		message = message[:40]
	}
	return c.send(c.header() + ":" + padCall(dest) + ":" + title + message + "\r\n")
}

// SendTelemetry emits the next T# packet. The sequence wraps 999 -> 0 and
// the wrap re-broadcasts the parameter/equation/unit/bit-sense setup.
func (c *Client) SendTelemetry(p1, p2, p3, p4, p5 int, bits byte) bool {
	c.seq++
	if c.seq > 999 {
		c.seq = 0
	}
	if c.seq == 0 {
		if !c.SendTelemetrySetup() {
			return false
		}
	}
	pkt := fmt.Sprintf("%sT#%03d,%03d,%03d,%03d,%03d,%03d,%s\r\n",
		c.header(), c.seq, p1, p2, p3, p4, p5, strconv.FormatInt(int64(bits), 2))
	return c.send(pkt)
}

// SendTelemetrySetup emits the four one-time telemetry definition packets
// (names, equations, units, bit sense + project title) over one shared
// header addressed to the station itself.
func (c *Client) SendTelemetrySetup() bool {
	header := c.header() + ":" + padCall(c.cfg.Callsign) + ":"
	lines := []string{
		tlmPARM,
		tlmEQNS,
		tlmUNIT,
		tlmBITS + c.cfg.Name + "/" + c.cfg.Version,
	}
	for _, l := range lines {
		if !c.send(header + l + "\r\n") {
			return false
		}
	}
	return true
}

// Sequence reports the current telemetry sequence number.
func (c *Client) Sequence() int { return c.seq }
