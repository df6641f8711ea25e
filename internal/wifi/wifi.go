// Package wifi captures WiFi fingerprints through NetworkManager. The
// nmcli terse output is the only interface to the hardware, so the
// scanner works on anything NetworkManager manages.
package wifi

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"wifitrk-ng/internal/geo"
)

// Scanner lists nearby access points and converts them into a
// geolocation fingerprint. The AP we are associated with is excluded:
// it would bias the lookup toward our own uplink.
type Scanner struct {
	iface string

	// scan is swapped out in tests.
	scan func(ctx context.Context, iface string) ([]byte, error)
}

func NewScanner(iface string) *Scanner {
	return &Scanner{iface: iface, scan: runNMCLIScan}
}

// Scan rescans and returns up to geo.MaxObservations observations,
// strongest first as nmcli reports them.
func (s *Scanner) Scan(ctx context.Context) (geo.Fingerprint, error) {
	out, err := s.scan(ctx, s.iface)
	if err != nil {
		return nil, err
	}
	return parseFingerprint(out)
}

func splitNMCLITerseLine(line string) []string {
	// nmcli -t output uses ':' separators and escapes ':' and '\\' with a backslash.
	// Example: "AA\\:BB\\:CC\\:DD\\:EE\\:FF:70:yes" is BSSID, signal, active.
	fields := make([]string, 0, 4)
	var b strings.Builder
	b.Grow(len(line))
	escaped := false
	for i := 0; i < len(line); i++ {
		c := line[i]
		if escaped {
			b.WriteByte(c)
			escaped = false
			continue
		}
		if c == '\\' {
			escaped = true
			continue
		}
		if c == ':' {
			fields = append(fields, b.String())
			b.Reset()
			continue
		}
		b.WriteByte(c)
	}
	if escaped {
		// Trailing backslash; keep it.
		b.WriteByte('\\')
	}
	fields = append(fields, b.String())
	return fields
}

// signalToDBm maps nmcli's 0-100 signal percentage back onto the dBm
// scale NetworkManager derived it from.
func signalToDBm(percent int) int {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return percent/2 - 100
}

func parseFingerprint(out []byte) (geo.Fingerprint, error) {
	var fp geo.Fingerprint
	s := bufio.NewScanner(strings.NewReader(string(out)))
	for s.Scan() {
		line := strings.TrimRight(s.Text(), "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := splitNMCLITerseLine(line)
		if len(parts) < 3 {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(parts[2]), "yes") {
			// The associated AP.
			continue
		}
		hw, err := net.ParseMAC(strings.TrimSpace(parts[0]))
		if err != nil || len(hw) != 6 {
			continue
		}
		percent, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			continue
		}

		var obs geo.Observation
		copy(obs.BSSID[:], hw)
		obs.RSSI = signalToDBm(percent)
		fp = append(fp, obs)
		if len(fp) == geo.MaxObservations {
			break
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("nmcli parse failed: %v", err)
	}
	return fp, nil
}

// BroadcastDest rewrites a "ip/CIDR:port" UDP destination to the subnet
// broadcast address, so the NMEA fan-out reaches every host on the WiFi
// segment. Plain host:port destinations pass through untouched.
func BroadcastDest(dest string) (string, error) {
	host, port, err := net.SplitHostPort(dest)
	if err != nil || !strings.Contains(host, "/") {
		return dest, nil
	}
	broadcast, err := CalculateBroadcastAddress(host)
	if err != nil {
		return "", fmt.Errorf("udp destination %q: %v", dest, err)
	}
	return net.JoinHostPort(broadcast, port), nil
}

// CalculateBroadcastAddress returns the broadcast address for a given IP/CIDR.
// If no CIDR is provided, /24 is assumed.
func CalculateBroadcastAddress(ipStr string) (string, error) {
	if !strings.Contains(ipStr, "/") {
		ipStr = ipStr + "/24"
	}
	ip, ipNet, err := net.ParseCIDR(ipStr)
	if err != nil {
		return "", err
	}

	// Broadcast = IP | ^Mask
	ip4 := ip.To4()
	if ip4 == nil {
		return "", fmt.Errorf("only IPv4 supported")
	}
	mask := ipNet.Mask
	broadcast := make(net.IP, len(ip4))
	for i := 0; i < len(ip4); i++ {
		broadcast[i] = ip4[i] | ^mask[i]
	}

	return broadcast.String(), nil
}
