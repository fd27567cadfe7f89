/*
	Copyright (c) 2026 The rocketfc Authors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	httpd.go: Status, flight history, recovery and metrics over HTTP, plus the
	live telemetry websocket.
*/

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rocketfc/rocketfc/clock"
	"github.com/rocketfc/rocketfc/datalog"
	"github.com/rocketfc/rocketfc/log"
	"github.com/rocketfc/rocketfc/record"
	"github.com/rocketfc/rocketfc/recovery"
	"github.com/rocketfc/rocketfc/telemetry"
)

// latestRecord keeps the most recent record for the status endpoint.
type latestRecord struct {
	mu  sync.Mutex
	rec record.FlightRecord
	ok  bool
}

func (l *latestRecord) Send(rec record.FlightRecord) {
	l.mu.Lock()
	l.rec, l.ok = rec, true
	l.mu.Unlock()
}

func (l *latestRecord) get() (record.FlightRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rec, l.ok
}

// cpuTemp keeps the latest board temperature for /status and /metrics.
type cpuTemp struct {
	bits  atomic.Uint32
	gauge prometheus.Gauge
}

func newCPUTemp(reg prometheus.Registerer) *cpuTemp {
	c := &cpuTemp{gauge: prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rocketfc_cpu_temp_celsius",
		Help: "Flight computer board temperature.",
	})}
	reg.MustRegister(c.gauge)
	return c
}

func (c *cpuTemp) update(t float32) {
	c.bits.Store(math.Float32bits(t))
	c.gauge.Set(float64(t))
}

func (c *cpuTemp) get() float32 {
	return math.Float32frombits(c.bits.Load())
}

type statusReport struct {
	FlightID   string               `json:"flightId"`
	Uptime     string               `json:"uptime"`
	LastRecord string               `json:"lastRecord,omitempty"`
	Flight     *telemetry.Telemetry `json:"flight,omitempty"`
	Recovery   recovery.Status      `json:"recovery"`
	Clients    int                  `json:"dashboardClients"`
	Dropped    uint64               `json:"telemetryDropped"`
	CPUTemp    float32              `json:"cpuTemp,omitempty"`
}

type statusServer struct {
	clk         clock.Clock
	flightID    string
	latest      *latestRecord
	locator     *recovery.Locator
	broadcaster *telemetry.Broadcaster
	datalogPath string
	registry    *prometheus.Registry
	cpuTemp     *cpuTemp
}

func (s *statusServer) router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/recovery", s.handleRecovery).Methods(http.MethodGet)
	router.HandleFunc("/flights", s.handleFlights).Methods(http.MethodGet)
	router.HandleFunc("/flights/{id}", s.handleFlightRecords).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	router.Handle("/telemetry", s.broadcaster.Handler())
	return router
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("HTTP Error: encode response: %s", err)
	}
}

func (s *statusServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	report := statusReport{
		FlightID: s.flightID,
		Uptime:   s.clk.Now().Truncate(time.Second).String(),
		Recovery: s.locator.Status(),
		Clients:  s.broadcaster.Clients(),
		Dropped:  s.broadcaster.Dropped(),
	}
	if s.cpuTemp != nil {
		report.CPUTemp = s.cpuTemp.get()
	}
	if rec, ok := s.latest.get(); ok {
		t := telemetry.FromRecord(rec)
		report.Flight = &t
		report.LastRecord = clock.HumanizeTime(s.clk, time.Duration(rec.TimeMs)*time.Millisecond)
	}
	writeJSON(w, report)
}

func (s *statusServer) handleRecovery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("lat") == "" {
		writeJSON(w, s.locator.Status())
		return
	}
	lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
	lon, err2 := strconv.ParseFloat(q.Get("lon"), 64)
	if err1 != nil || err2 != nil {
		http.Error(w, "error: lat and lon must be numbers", http.StatusBadRequest)
		return
	}
	dist, bearing, ok := s.locator.From(lat, lon)
	if !ok {
		http.Error(w, "error: no GPS fix yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]float64{"distanceM": dist, "bearingDeg": bearing})
}

func (s *statusServer) handleFlights(w http.ResponseWriter, r *http.Request) {
	if s.datalogPath == "" {
		http.Error(w, "error: datalog disabled", http.StatusNotFound)
		return
	}
	flights, err := datalog.Flights(s.datalogPath)
	if err != nil {
		log.Errorf("HTTP Error: list flights: %s", err)
		http.Error(w, fmt.Sprintf("error: %s", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, flights)
}

func (s *statusServer) handleFlightRecords(w http.ResponseWriter, r *http.Request) {
	if s.datalogPath == "" {
		http.Error(w, "error: datalog disabled", http.StatusNotFound)
		return
	}
	id := mux.Vars(r)["id"]
	rows, err := datalog.Records(s.datalogPath, id)
	if err != nil {
		log.Errorf("HTTP Error: flight %s: %s", id, err)
		http.Error(w, fmt.Sprintf("error: %s", err), http.StatusInternalServerError)
		return
	}
	if len(rows) == 0 {
		http.Error(w, "error: unknown flight", http.StatusNotFound)
		return
	}
	writeJSON(w, rows)
}
