package aprs

import "strings"

// Passcode derives the APRS-IS login code from a callsign. The algorithm
// is the published APRS-IS one: strip any -SSID suffix, uppercase, seed
// 0x73E2, then XOR the callsign bytes pairwise into the high and low
// halves of the running hash, masking to 15 bits. On odd-length
// callsigns the final unpaired byte only touches the high half.
func Passcode(callsign string) int {
	call := callsign
	if i := strings.IndexByte(call, '-'); i >= 0 {
		call = call[:i]
	}
	call = strings.ToUpper(call)

	hash := 0x73E2
	for i := 0; i < len(call); i += 2 {
		hash ^= int(call[i]) << 8
		if i+1 < len(call) {
			hash ^= int(call[i+1])
		}
	}
	return hash & 0x7FFF
}
