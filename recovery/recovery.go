// Package recovery tracks where the rocket left from and where it is now,
// so the ground crew can walk to it after landing.
package recovery

import (
	"sync"

	"github.com/gansidui/geohash"
	geo "github.com/kellydunn/golang-geo"

	"github.com/rocketfc/rocketfc/flight"
	"github.com/rocketfc/rocketfc/record"
)

// GeohashPrecision gives cells of roughly 38 m by 19 m.
const GeohashPrecision = 8

// Status is a snapshot of the recovery picture.
type Status struct {
	HasLaunchSite bool    `json:"hasLaunchSite"`
	LaunchLat     float64 `json:"launchLat"`
	LaunchLon     float64 `json:"launchLon"`

	HasFix    bool    `json:"hasFix"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Altitude  float32 `json:"gpsAltitude"`
	Geohash   string  `json:"geohash"`
	LastFixMs uint32  `json:"lastFixMs"`

	DistanceM   float64 `json:"distanceM"`   // from the launch site
	BearingDeg  float64 `json:"bearingDeg"`  // from the launch site, true north
	MaxDistance float64 `json:"maxDistanceM"`
	Landed      bool    `json:"landed"`
}

// Locator is a record.Sink following the GPS fixes of a flight. The launch
// site is the last fix seen before liftoff.
type Locator struct {
	mu     sync.Mutex
	status Status
	launch *geo.Point
}

func NewLocator() *Locator {
	return &Locator{}
}

// Send takes the fix carried by rec, if any.
func (l *Locator) Send(rec record.FlightRecord) {
	g := rec.Gps
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec.State == flight.Landed {
		l.status.Landed = true
	}
	if g == nil || !g.Fix {
		return
	}
	lat, lon := g.Lat(), g.Lon()
	p := geo.NewPoint(lat, lon)
	if rec.State < flight.Launched || l.launch == nil {
		l.launch = p
		l.status.HasLaunchSite = true
		l.status.LaunchLat, l.status.LaunchLon = lat, lon
	}

	s := &l.status
	s.HasFix = true
	s.Lat, s.Lon, s.Altitude = lat, lon, g.Altitude
	s.LastFixMs = rec.TimeMs
	s.Geohash, _ = geohash.Encode(lat, lon, GeohashPrecision)
	s.DistanceM = l.launch.GreatCircleDistance(p) * 1000
	s.BearingDeg = 0
	if s.DistanceM > 0 {
		s.BearingDeg = normalizeBearing(l.launch.BearingTo(p))
	}
	if s.DistanceM > s.MaxDistance {
		s.MaxDistance = s.DistanceM
	}
}

// Status returns the current recovery picture.
func (l *Locator) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// From returns the distance in meters and the true bearing in degrees from
// (lat, lon) to the rocket's last fix. ok is false before the first fix.
func (l *Locator) From(lat, lon float64) (dist, bearing float64, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.status.HasFix {
		return 0, 0, false
	}
	here := geo.NewPoint(lat, lon)
	rocket := geo.NewPoint(l.status.Lat, l.status.Lon)
	dist = here.GreatCircleDistance(rocket) * 1000
	if dist > 0 {
		bearing = normalizeBearing(here.BearingTo(rocket))
	}
	return dist, bearing, true
}

func normalizeBearing(b float64) float64 {
	for b < 0 {
		b += 360
	}
	for b >= 360 {
		b -= 360
	}
	return b
}
