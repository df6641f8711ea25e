//go:build linux

package wifi

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

func runNMCLIScan(ctx context.Context, iface string) ([]byte, error) {
	// Scanning can take a while on some chipsets/drivers; keep this bounded but
	// long enough to avoid spurious cancellations.
	cmdCtx, cancel := context.WithTimeout(ctx, 12*time.Second)
	defer cancel()

	args := []string{"-t", "-f", "BSSID,SIGNAL,ACTIVE", "dev", "wifi", "list", "--rescan", "yes"}
	if iface != "" {
		args = append(args, "ifname", iface)
	}

	cmd := exec.CommandContext(cmdCtx, "nmcli", args...)
	out, err := cmd.Output()
	if err != nil {
		if cmdCtx.Err() != nil {
			// When the context is canceled, exec.CommandContext may report "signal: killed".
			return nil, fmt.Errorf("nmcli scan timed out")
		}
		if ee, ok := err.(*exec.ExitError); ok {
			stderr := strings.TrimSpace(string(ee.Stderr))
			if stderr != "" {
				return nil, fmt.Errorf("nmcli failed: %s", stderr)
			}
		}
		return nil, fmt.Errorf("nmcli failed: %v", err)
	}
	return out, nil
}
