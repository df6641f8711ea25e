//go:build !linux

package wifi

import (
	"context"
	"fmt"
)

func runNMCLIScan(ctx context.Context, iface string) ([]byte, error) {
	return nil, fmt.Errorf("wifi scanning requires NetworkManager (linux only)")
}
