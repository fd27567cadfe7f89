// Package common holds board housekeeping shared by the daemon and tools.
package common

import (
	"context"
	"os"
	"os/user"
	"strconv"
	"strings"
	"time"
)

const (
	InvalidCpuTemp = float32(-99.0)
	thermalZone    = "/sys/class/thermal/thermal_zone0/temp"
)

type CpuTempUpdateFunc func(cpuTemp float32)

// ParseCpuTemp converts the thermal zone reading to °C. Most kernels report
// millidegrees, some report whole degrees.
func ParseCpuTemp(raw string) float32 {
	tInt, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return InvalidCpuTemp
	}
	if tInt > 1000 {
		return float32(tInt) / 1000
	}
	return float32(tInt)
}

func readCpuTemp(path string) float32 {
	b, err := os.ReadFile(path)
	if err != nil {
		return InvalidCpuTemp
	}
	return ParseCpuTemp(string(b))
}

// CpuTempMonitor reads the board temperature every interval and calls
// updater with each valid reading until ctx is done. It runs in its own
// goroutine because reads of the thermal zone can hang for a long time.
func CpuTempMonitor(ctx context.Context, interval time.Duration, updater CpuTempUpdateFunc) {
	cpuTempMonitor(ctx, thermalZone, interval, updater)
}

func cpuTempMonitor(ctx context.Context, path string, interval time.Duration, updater CpuTempUpdateFunc) {
	timer := time.NewTicker(interval)
	defer timer.Stop()
	for {
		if t := readCpuTemp(path); IsCPUTempValid(t) {
			updater(t)
		}
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}

// Check if CPU temperature is valid. Assume <= 0 is invalid.
func IsCPUTempValid(cpuTemp float32) bool {
	return cpuTemp > 0
}

// IsRunningAsRoot reports whether the process may open the I2C bus and GPIO.
func IsRunningAsRoot() bool {
	usr, err := user.Current()
	return err == nil && usr.Username == "root"
}
