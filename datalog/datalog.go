// Package datalog records every flight into a SQLite database: one row in
// flights per power-up and one row in records per tick.
package datalog

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/ricochet2200/go-disk-usage/du"

	"github.com/rocketfc/rocketfc/flight"
	"github.com/rocketfc/rocketfc/log"
	"github.com/rocketfc/rocketfc/record"
)

// ErrClosed is returned by operations on a closed Logger.
var ErrClosed = errors.New("datalog: closed")

// Config controls the datalog.
type Config struct {
	Path      string  `yaml:"path"`
	Queue     int     `yaml:"queue"`      // records buffered between the loop and the writer
	BatchSize int     `yaml:"batch_size"` // records per transaction
	MaxUsage  float64 `yaml:"max_usage"`  // stop logging above this disk usage fraction
	Site      string  `yaml:"site"`       // launch site name stored with the flight
}

// DefaultConfig logs next to the executable's working directory.
func DefaultConfig() Config {
	return Config{
		Path:      "/var/log/rocketfc/flights.db",
		Queue:     10240,
		BatchSize: 100,
		MaxUsage:  0.95,
	}
}

// Flight summarises one logged flight.
type Flight struct {
	ID          string
	Started     time.Time
	Site        string
	Records     int
	DurationMs  uint32
	MaxAltitude float64
	MaxClimb    float64
	FinalState  string
	Deployed    bool
	DeployMs    uint32
	LandingLat  float64
	LandingLon  float64
}

var (
	rowColumns    = columnsOf(reflect.TypeOf(record.Row{}))
	createRecords = createTableSQL("records", rowColumns, "flight_id TEXT NOT NULL")
	insertRecord  = insertSQL("records", rowColumns, "flight_id")
)

const createFlights = `CREATE TABLE IF NOT EXISTS flights (
	id TEXT NOT NULL PRIMARY KEY,
	started TEXT NOT NULL,
	site TEXT,
	records INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	max_altitude REAL NOT NULL DEFAULT 0,
	max_climb REAL NOT NULL DEFAULT 0,
	final_state TEXT,
	deployed INTEGER NOT NULL DEFAULT 0,
	deploy_ms INTEGER NOT NULL DEFAULT 0,
	landing_lat REAL,
	landing_lon REAL
)`

// Logger is a record.Sink writing to SQLite from its own goroutine. Send
// never blocks the flight loop; a full queue drops the record.
type Logger struct {
	db  *sql.DB
	cfg Config
	id  string

	rows chan record.Row
	wg   sync.WaitGroup

	mu      sync.Mutex
	summary Flight
	closed  bool

	dropped atomic.Uint64
	full    atomic.Bool
}

// Open creates the database if needed and starts a new flight.
func Open(cfg Config) (*Logger, error) {
	if cfg.Queue < 1 {
		cfg.Queue = DefaultConfig().Queue
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("datalog: %w", err)
	}
	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("datalog: open %s: %w", cfg.Path, err)
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{createFlights, createRecords,
		"CREATE INDEX IF NOT EXISTS records_flight ON records (flight_id, Seq)"} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("datalog: schema: %w", err)
		}
	}

	l := &Logger{
		db:   db,
		cfg:  cfg,
		id:   uuid.NewString(),
		rows: make(chan record.Row, cfg.Queue),
	}
	l.summary = Flight{ID: l.id, Started: time.Now().UTC(), Site: cfg.Site, FinalState: flight.Standby.String()}
	if _, err := db.Exec("INSERT INTO flights (id, started, site) VALUES(?, ?, ?)",
		l.id, l.summary.Started.Format(time.RFC3339), cfg.Site); err != nil {
		db.Close()
		return nil, fmt.Errorf("datalog: new flight: %w", err)
	}
	log.Infof("Datalog Info: logging flight %s to %s", l.id, cfg.Path)

	l.wg.Add(1)
	go l.writer()
	return l, nil
}

// FlightID identifies the flight being logged.
func (l *Logger) FlightID() string { return l.id }

// Dropped returns how many records were not logged.
func (l *Logger) Dropped() uint64 { return l.dropped.Load() }

// Send queues rec.
func (l *Logger) Send(rec record.FlightRecord) {
	if l.full.Load() {
		l.dropped.Add(1)
		return
	}
	select {
	case l.rows <- rec.Flatten():
	default:
		l.dropped.Add(1)
	}
}

// Summary returns the running summary of the current flight.
func (l *Logger) Summary() Flight {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.summary
}

func (l *Logger) writer() {
	defer l.wg.Done()
	batch := make([]record.Row, 0, l.cfg.BatchSize)
	flush := time.NewTicker(time.Second)
	defer flush.Stop()
	written := 0

	commit := func() {
		if len(batch) == 0 {
			return
		}
		if err := l.insert(batch); err != nil {
			log.Errorf("Datalog Error: insert %d records: %s", len(batch), err)
		}
		written += len(batch)
		batch = batch[:0]
		if written >= 1000 {
			written = 0
			l.checkDisk()
		}
	}

	for {
		select {
		case row, ok := <-l.rows:
			if !ok {
				commit()
				return
			}
			l.observe(row)
			batch = append(batch, row)
			if len(batch) >= l.cfg.BatchSize {
				commit()
			}
		case <-flush.C:
			commit()
		}
	}
}

func (l *Logger) insert(rows []record.Row) error {
	tx, err := l.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(insertRecord)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.Exec(values(reflect.ValueOf(r), rowColumns, l.id)...); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (l *Logger) observe(r record.Row) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := &l.summary
	s.Records++
	s.DurationMs = r.TimeMs
	s.FinalState = r.State
	if r.HasBaro {
		s.MaxAltitude = math.Max(s.MaxAltitude, r.Altitude)
		s.MaxClimb = math.Max(s.MaxClimb, r.ClimbRate)
	}
	if r.Deployed && !s.Deployed {
		s.Deployed, s.DeployMs = true, r.TimeMs
	}
	if r.HasGps && r.GpsFix {
		s.LandingLat, s.LandingLon = r.Lat, r.Lon
	}
}

func (l *Logger) checkDisk() {
	if l.cfg.MaxUsage <= 0 {
		return
	}
	usage := du.NewDiskUsage(filepath.Dir(l.cfg.Path)).Usage()
	if float64(usage) > l.cfg.MaxUsage {
		if !l.full.Swap(true) {
			log.Errorf("Datalog Error: disk %.0f%% full, logging stopped", usage*100)
		}
	}
}

// Close drains the queue, stores the flight summary and closes the database.
func (l *Logger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.closed = true
	l.mu.Unlock()

	close(l.rows)
	l.wg.Wait()

	s := l.Summary()
	_, err := l.db.Exec(`UPDATE flights SET records=?, duration_ms=?, max_altitude=?, max_climb=?,
		final_state=?, deployed=?, deploy_ms=?, landing_lat=?, landing_lon=? WHERE id=?`,
		s.Records, s.DurationMs, s.MaxAltitude, s.MaxClimb, s.FinalState, s.Deployed, s.DeployMs,
		s.LandingLat, s.LandingLon, l.id)
	if cerr := l.db.Close(); err == nil {
		err = cerr
	}
	if dropped := l.Dropped(); dropped > 0 {
		log.Warnf("Datalog Info: flight %s closed, %d records dropped", l.id, dropped)
	}
	return err
}

// Flights lists the flights stored at path, newest first.
func Flights(path string) ([]Flight, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	rows, err := db.Query(`SELECT id, started, COALESCE(site, ''), records, duration_ms, max_altitude,
		max_climb, COALESCE(final_state, ''), deployed, deploy_ms, COALESCE(landing_lat, 0), COALESCE(landing_lon, 0)
		FROM flights ORDER BY started DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Flight
	for rows.Next() {
		var (
			f       Flight
			started string
		)
		if err := rows.Scan(&f.ID, &started, &f.Site, &f.Records, &f.DurationMs, &f.MaxAltitude,
			&f.MaxClimb, &f.FinalState, &f.Deployed, &f.DeployMs, &f.LandingLat, &f.LandingLon); err != nil {
			return nil, err
		}
		f.Started, _ = time.Parse(time.RFC3339, started)
		out = append(out, f)
	}
	return out, rows.Err()
}

// Records returns the logged rows of one flight in tick order.
func Records(path, flightID string) ([]record.Row, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	names := make([]string, len(rowColumns))
	for i, c := range rowColumns {
		names[i] = c.name
	}
	rows, err := db.Query("SELECT "+joinComma(names)+" FROM records WHERE flight_id=? ORDER BY Seq", flightID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []record.Row
	for rows.Next() {
		var r record.Row
		v := reflect.ValueOf(&r).Elem()
		dest := make([]interface{}, len(rowColumns))
		for i, c := range rowColumns {
			dest[i] = v.Field(c.index).Addr().Interface()
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
