package computer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rocketfc/rocketfc/record"
)

// Metrics exports the flight loop state to Prometheus.
type Metrics struct {
	ticks       prometheus.Counter
	stalls      prometheus.Counter
	faults      *prometheus.CounterVec
	flightState prometheus.Gauge
	deployState prometheus.Gauge
	attitude    *prometheus.GaugeVec
	gyroWeight  prometheus.Gauge
	servo       prometheus.Gauge
	altitude    prometheus.Gauge
	climbRate   prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rocketfc_ticks_total",
			Help: "Flight loop ticks processed.",
		}),
		stalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rocketfc_stalled_ticks_total",
			Help: "Ticks whose dt was out of range.",
		}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rocketfc_sensor_faults_total",
			Help: "Sensor readings disqualified as implausible.",
		}, []string{"sensor"}),
		flightState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rocketfc_flight_state",
			Help: "Flight phase (0=STANDBY .. 6=LANDED).",
		}),
		deployState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rocketfc_deploy_state",
			Help: "Deployment state (0=IDLE .. 3=DONE).",
		}),
		attitude: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rocketfc_attitude_degrees",
			Help: "Estimated attitude.",
		}, []string{"axis"}),
		gyroWeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rocketfc_gyro_weight",
			Help: "Adaptive gyro weight of the complementary filter.",
		}),
		servo: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rocketfc_servo_degrees",
			Help: "Commanded stabilizer servo angle.",
		}),
		altitude: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rocketfc_altitude_meters",
			Help: "Barometric altitude above the pad.",
		}),
		climbRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rocketfc_climb_rate_mps",
			Help: "Barometric climb rate.",
		}),
	}
	reg.MustRegister(m.ticks, m.stalls, m.faults, m.flightState, m.deployState,
		m.attitude, m.gyroWeight, m.servo, m.altitude, m.climbRate)
	return m
}

// Observe updates every collector from one record.
func (m *Metrics) Observe(r record.FlightRecord) {
	m.ticks.Inc()
	if r.Stalled {
		m.stalls.Inc()
	}
	if r.Faults.IMU {
		m.faults.With(prometheus.Labels{"sensor": "imu"}).Inc()
	}
	if r.Faults.Baro {
		m.faults.With(prometheus.Labels{"sensor": "baro"}).Inc()
	}
	m.flightState.Set(float64(r.State))
	m.deployState.Set(float64(r.Deploy))
	m.attitude.With(prometheus.Labels{"axis": "roll"}).Set(r.Attitude.Roll)
	m.attitude.With(prometheus.Labels{"axis": "pitch"}).Set(r.Attitude.Pitch)
	m.attitude.With(prometheus.Labels{"axis": "yaw"}).Set(r.Attitude.Yaw)
	m.gyroWeight.Set(r.Attitude.GyroWeight)
	m.servo.Set(r.ServoDeg)
	if r.Baro != nil {
		m.altitude.Set(r.Baro.Altitude)
		m.climbRate.Set(r.Baro.ClimbRate)
	}
}
