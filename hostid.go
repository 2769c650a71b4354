package adbpair

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// HostID returns a best-effort stable identifier of this machine, recorded with
// every pairing session. On macOS it uses the hardware UUID; on Linux it prefers
// /etc/machine-id then /sys/class/dmi/id/product_uuid. The hostname is the last resort.
func HostID() string {
	if id, err := hardwareUUID(); err == nil && id != "" {
		return id
	}
	name, _ := os.Hostname()
	return strings.TrimSpace(name)
}

func hardwareUUID() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		cmd := exec.CommandContext(ctx, "bash", "-c", "system_profiler SPHardwareDataType | awk '/Hardware UUID/ {print $3}'")
		out, err := cmd.Output()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(out)), nil
	case "linux":
		for _, path := range []string{"/etc/machine-id", "/sys/class/dmi/id/product_uuid"} {
			if id, err := readSystemFile(path); err == nil && id != "" {
				return id, nil
			}
		}
		return "", nil
	default:
		return "", nil
	}
}

func readSystemFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
