package common

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseCpuTemp(t *testing.T) {
	tests := []struct {
		raw  string
		want float32
	}{
		{"48312\n", 48.312},
		{"52", 52},
		{"", InvalidCpuTemp},
		{"hot", InvalidCpuTemp},
	}
	for _, tt := range tests {
		if got := ParseCpuTemp(tt.raw); got != tt.want {
			t.Errorf("ParseCpuTemp(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestCpuTempMonitor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "temp")
	if err := os.WriteFile(path, []byte("61000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan float32, 1)
	done := make(chan struct{})
	go func() {
		cpuTempMonitor(ctx, path, time.Hour, func(v float32) {
			select {
			case got <- v:
			default:
			}
		})
		close(done)
	}()
	if v := <-got; v != 61 {
		t.Errorf("temperature = %v", v)
	}
	cancel()
	<-done
}

func TestMonitorSkipsInvalid(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	cpuTempMonitor(ctx, filepath.Join(t.TempDir(), "missing"), time.Hour, func(float32) { called = true })
	if called {
		t.Error("updater called without a reading")
	}
}
