/*
	Copyright (c) 2026 The rocketfc Authors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	rocketfc.go: Flight computer daemon. Wires sensors, the flight pipeline,
	servos and every record sink, then runs until signalled.
*/

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/all"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/takama/daemon"

	"github.com/rocketfc/rocketfc/clock"
	"github.com/rocketfc/rocketfc/common"
	"github.com/rocketfc/rocketfc/computer"
	"github.com/rocketfc/rocketfc/config"
	"github.com/rocketfc/rocketfc/datalog"
	"github.com/rocketfc/rocketfc/deploy"
	"github.com/rocketfc/rocketfc/flightlog"
	"github.com/rocketfc/rocketfc/log"
	"github.com/rocketfc/rocketfc/record"
	"github.com/rocketfc/rocketfc/recovery"
	"github.com/rocketfc/rocketfc/sensors"
	"github.com/rocketfc/rocketfc/telemetry"
)

const (
	// name of the service
	name        = "rocketfc"
	description = "model rocket flight computer"
)

// Service has embedded daemon
type Service struct {
	daemon.Daemon
}

// Manage by daemon commands or run the daemon
func (service *Service) Manage() (string, error) {
	configPath := flag.String("config", config.DefaultPath, "configuration file")
	replay := flag.String("replay", "", "fly a recorded CSV sensor log or RLG1 flight log instead of the hardware")
	realtime := flag.Bool("realtime", false, "pace a replay at the configured loop rate")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	usage := "Usage: " + name + " install | remove | start | stop | status"
	// if received any kind of command, do it
	if flag.NArg() > 0 {
		switch flag.Arg(0) {
		case "install":
			return service.Install("-config", *configPath)
		case "remove":
			return service.Remove()
		case "start":
			return service.Start()
		case "stop":
			return service.Stop()
		case "status":
			return service.Status()
		default:
			return usage, nil
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return "Bad configuration", err
	}
	if err := log.Init(*debug || cfg.Log.Debug, cfg.Log.Dir); err != nil {
		return "Logging unavailable", err
	}
	defer log.Sync()

	f := &flightComputer{cfg: cfg, configPath: *configPath}
	if *replay != "" {
		return f.runReplay(*replay, *realtime)
	}
	return f.runHardware()
}

// flightComputer holds everything one run of the daemon opens.
type flightComputer struct {
	cfg        config.Config
	configPath string
	closers    []func() error
}

func (f *flightComputer) closeAll() {
	for i := len(f.closers) - 1; i >= 0; i-- {
		if err := f.closers[i](); err != nil {
			log.Warnf("Shutdown Error: %s", err)
		}
	}
}

func (f *flightComputer) runHardware() (string, error) {
	if !common.IsRunningAsRoot() {
		log.Warnf("Hardware Info: not running as root, I2C and GPIO may be unavailable")
	}
	clk := clock.NewMonotonic()
	hw, err := sensors.OpenHardware(f.cfg.Hardware, clk)
	if err != nil {
		return "No IMU", err
	}
	f.closers = append(f.closers, func() error { hw.Close(); return nil })

	servo, err := sensors.NewServoDriver(embd.NewI2CBus(f.cfg.Hardware.I2CBus), f.cfg.Hardware.ServoAddr)
	if err != nil {
		f.closeAll()
		return "No servo driver", err
	}
	f.closers = append(f.closers, servo.Close)

	period := time.Second / time.Duration(f.cfg.LoopHz)
	return f.fly(hw, servo, clk, period)
}

func (f *flightComputer) runReplay(path string, realtime bool) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "Can't open replay", err
	}
	f.closers = append(f.closers, file.Close)

	clk := &clock.Manual{}
	var src computer.Source
	if strings.EqualFold(filepath.Ext(path), ".rlg") {
		src, err = sensors.NewLogReplay(file, clk)
	} else {
		src, err = sensors.NewReplay(file, clk)
	}
	if err != nil {
		f.closeAll()
		return "Bad replay", err
	}
	var period time.Duration
	if realtime {
		period = time.Second / time.Duration(f.cfg.LoopHz)
	}
	return f.fly(src, &replayServo{}, clk, period)
}

// replayServo stands in for the PCA9685 when flying recorded data.
type replayServo struct {
	last map[uint8]float64
}

func (s *replayServo) SetPosition(channel uint8, deg float64) error {
	if s.last == nil {
		s.last = make(map[uint8]float64)
	}
	if prev, ok := s.last[channel]; !ok || prev != deg {
		log.Debugf("Servo Info: channel %d -> %.1f", channel, deg)
	}
	s.last[channel] = deg
	return nil
}

// sinks opens every configured record sink. The flight id names the RLG1
// log and matches the datalog row when the datalog is enabled.
func (f *flightComputer) sinks(latest *latestRecord, locator *recovery.Locator,
	bc *telemetry.Broadcaster) (record.MultiSink, string, error) {
	out := record.MultiSink{latest, locator, bc}
	flightID := uuid.NewString()

	if f.cfg.Datalog.Path != "" {
		dl, err := datalog.Open(f.cfg.Datalog)
		if err != nil {
			return nil, "", err
		}
		f.closers = append(f.closers, dl.Close)
		flightID = dl.FlightID()
		out = append(out, dl)
	}

	if dir := f.cfg.FlightLogDir; dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, "", err
		}
		file, err := os.Create(filepath.Join(dir, "flight-"+flightID+".rlg"))
		if err != nil {
			return nil, "", err
		}
		w, err := flightlog.NewWriter(file)
		if err != nil {
			file.Close()
			return nil, "", err
		}
		f.closers = append(f.closers, w.Close)
		out = append(out, w)
	}

	if f.cfg.Telemetry.Radio.Device != "" {
		radio, err := telemetry.OpenSerial(f.cfg.Telemetry.Radio)
		if err != nil {
			// Fly without the radio rather than not at all.
			log.Errorf("Telemetry Error: %s", err)
		} else {
			f.closers = append(f.closers, radio.Close)
			out = append(out, radio)
		}
	}

	if path := f.cfg.Telemetry.AnalysisLog; path != "" {
		a, err := telemetry.NewAnalysisLog(path)
		if err != nil {
			return nil, "", err
		}
		f.closers = append(f.closers, func() error { a.Close(); return nil })
		out = append(out, a)
	}
	return out, flightID, nil
}

func (f *flightComputer) fly(src computer.Source, act deploy.Actuator, clk clock.Clock, period time.Duration) (string, error) {
	defer f.closeAll()

	registry := prometheus.NewRegistry()
	metrics := computer.NewMetrics(registry)
	temp := newCPUTemp(registry)
	latest := &latestRecord{}
	locator := recovery.NewLocator()
	bc := telemetry.NewBroadcaster(256, f.cfg.Telemetry.WebsocketEvery)
	f.closers = append(f.closers, func() error { bc.Close(); return nil })

	sinks, flightID, err := f.sinks(latest, locator, bc)
	if err != nil {
		return "Can't open logs", err
	}

	comp, err := computer.New(f.cfg.Computer, act, sinks, metrics)
	if err != nil {
		return "Bad configuration", err
	}
	if err := comp.Start(); err != nil {
		return "Servo failure", err
	}

	var srv *http.Server
	if f.cfg.HTTP.Addr != "" {
		status := &statusServer{
			clk:         clk,
			flightID:    flightID,
			latest:      latest,
			locator:     locator,
			broadcaster: bc,
			datalogPath: f.cfg.Datalog.Path,
			registry:    registry,
			cpuTemp:     temp,
		}
		srv = &http.Server{Addr: f.cfg.HTTP.Addr, Handler: status.router()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("HTTP Error: %s", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go common.CpuTempMonitor(ctx, time.Second, temp.update)
	done := make(chan error, 1)
	go func() { done <- comp.Run(ctx, src, period) }()
	log.Infof("Flight Info: flight %s running at %d Hz", flightID, f.cfg.LoopHz)

	// Set up channel on which to send signal notifications.
	// We must use a buffered channel or risk missing the signal
	// if we're not ready to receive when the signal is sent.
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)
	defer signal.Stop(interrupt)

	status, runErr := f.wait(done, interrupt, cancel, comp)
	if srv != nil {
		shutdown, stop := context.WithTimeout(context.Background(), 2*time.Second)
		srv.Shutdown(shutdown)
		stop()
	}
	return status, runErr
}

func (f *flightComputer) wait(done <-chan error, interrupt <-chan os.Signal, cancel context.CancelFunc,
	comp *computer.Computer) (string, error) {
	for {
		select {
		case err := <-done:
			if err != nil {
				return "Flight loop stopped", err
			}
			return "Replay finished", nil
		case sig := <-interrupt:
			log.Infof("Got signal: %s", sig)
			if sig == syscall.SIGUSR1 {
				gains, err := config.Gains(f.configPath)
				if err != nil {
					log.Errorf("Config Error: gains not reloaded: %s", err)
					continue
				}
				comp.SetGains(gains.Kp, gains.Ki, gains.Kd)
				continue
			}
			cancel()
			if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
				return "Flight loop stopped", err
			}
			if sig == syscall.SIGINT {
				return "Daemon was interrupted by system signal", nil
			}
			return "Daemon was killed", nil
		}
	}
}

func main() {
	srv, err := daemon.New(name, description, daemon.SystemDaemon)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: ", err)
		os.Exit(1)
	}
	service := &Service{srv}
	status, err := service.Manage()
	if err != nil {
		fmt.Fprintln(os.Stderr, status, "\nError: ", err)
		os.Exit(1)
	}
	fmt.Println(status)
}
