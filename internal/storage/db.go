package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cptspacemanspiff/sysfs-telemetry/internal/collector"
)

const schema = `
CREATE TABLE IF NOT EXISTS cpu_accounting_samples (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	user INTEGER NOT NULL,
	nice INTEGER NOT NULL,
	system INTEGER NOT NULL,
	idle INTEGER NOT NULL,
	iowait INTEGER NOT NULL,
	irq INTEGER NOT NULL,
	softirq INTEGER NOT NULL,
	steal INTEGER NOT NULL,
	guest INTEGER NOT NULL,
	guest_nice INTEGER NOT NULL,
	ctxt INTEGER NOT NULL,
	intr INTEGER NOT NULL,
	softirqs INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cpu_accounting_ts ON cpu_accounting_samples(timestamp);

CREATE TABLE IF NOT EXISTS cpu_freq_samples (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	cpu_id INTEGER NOT NULL,
	freq_khz INTEGER NOT NULL,
	min_khz INTEGER NOT NULL DEFAULT 0,
	max_khz INTEGER NOT NULL DEFAULT 0,
	governor TEXT NOT NULL DEFAULT '',
	driver TEXT NOT NULL DEFAULT '',
	is_p_core INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cpufreq_ts ON cpu_freq_samples(timestamp);

CREATE TABLE IF NOT EXISTS thermal_samples (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	zone INTEGER NOT NULL,
	type TEXT NOT NULL DEFAULT '',
	temp_mc INTEGER NOT NULL,
	critical_mc INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_thermal_ts ON thermal_samples(timestamp);

CREATE TABLE IF NOT EXISTS thermal_summaries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	zone INTEGER NOT NULL,
	type TEXT NOT NULL DEFAULT '',
	temp_mc INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_thermal_summary_ts ON thermal_summaries(timestamp);
`

// DB wraps a SQLite database of telemetry samples.
type DB struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// InsertSnapshot stores every sample of a snapshot in a single transaction.
func (d *DB) InsertSnapshot(s *collector.Snapshot) error {
	return d.inTx(1, func(tx *sql.Tx) error {
		if err := insertAccounting(tx, s.Accounting); err != nil {
			return err
		}
		if err := insertCPUFreqs(tx, s.Freqs); err != nil {
			return err
		}
		if err := insertThermal(tx, s.Thermal); err != nil {
			return err
		}
		if s.Hottest == nil {
			return nil
		}
		return insertSummary(tx, *s.Hottest)
	})
}

func (d *DB) inTx(n int, fn func(*sql.Tx) error) error {
	if n == 0 {
		return nil
	}
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func insertAccounting(tx *sql.Tx, s collector.CPUAccountingSample) error {
	c := s.Counters
	_, err := tx.Exec(
		`INSERT INTO cpu_accounting_samples
		 (timestamp, user, nice, system, idle, iowait, irq, softirq, steal, guest, guest_nice, ctxt, intr, softirqs)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Timestamp, c.User, c.Nice, c.System, c.Idle, c.IOWait, c.IRQ, c.SoftIRQ, c.Steal, c.Guest, c.GuestNice,
		c.ContextSwitches, c.Interrupts, c.SoftInterrupts,
	)
	if err != nil {
		return fmt.Errorf("insert cpu accounting sample: %w", err)
	}
	return nil
}

func insertCPUFreqs(tx *sql.Tx, samples []collector.CPUFreqSample) error {
	if len(samples) == 0 {
		return nil
	}
	stmt, err := tx.Prepare("INSERT INTO cpu_freq_samples (timestamp, cpu_id, freq_khz, min_khz, max_khz, governor, driver, is_p_core) VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, s := range samples {
		isPCore := 0
		if s.IsPCore {
			isPCore = 1
		}
		if _, err := stmt.Exec(s.Timestamp, s.CPUID, s.FreqKHz, s.MinKHz, s.MaxKHz, s.Governor, s.Driver, isPCore); err != nil {
			return fmt.Errorf("insert cpu freq sample: %w", err)
		}
	}
	return nil
}

func insertThermal(tx *sql.Tx, samples []collector.ThermalSample) error {
	if len(samples) == 0 {
		return nil
	}
	stmt, err := tx.Prepare("INSERT INTO thermal_samples (timestamp, zone, type, temp_mc, critical_mc) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, s := range samples {
		if _, err := stmt.Exec(s.Timestamp, s.Zone, s.Type, s.TempMilliC, s.CriticalMilliC); err != nil {
			return fmt.Errorf("insert thermal sample: %w", err)
		}
	}
	return nil
}

func insertSummary(tx *sql.Tx, s collector.ThermalSummary) error {
	_, err := tx.Exec(
		"INSERT INTO thermal_summaries (timestamp, zone, type, temp_mc) VALUES (?, ?, ?, ?)",
		s.Timestamp, s.Zone, s.Type, s.TempMilliC,
	)
	if err != nil {
		return fmt.Errorf("insert thermal summary: %w", err)
	}
	return nil
}

const accountingColumns = "timestamp, user, nice, system, idle, iowait, irq, softirq, steal, guest, guest_nice, ctxt, intr, softirqs"

type scanner interface {
	Scan(dest ...any) error
}

func scanAccounting(row scanner) (collector.CPUAccountingSample, error) {
	var s collector.CPUAccountingSample
	c := &s.Counters
	err := row.Scan(&s.Timestamp, &c.User, &c.Nice, &c.System, &c.Idle, &c.IOWait, &c.IRQ, &c.SoftIRQ,
		&c.Steal, &c.Guest, &c.GuestNice, &c.ContextSwitches, &c.Interrupts, &c.SoftInterrupts)
	return s, err
}

// LatestCPUAccountingSample returns the most recent accounting sample.
func (d *DB) LatestCPUAccountingSample() (*collector.CPUAccountingSample, error) {
	row := d.db.QueryRow("SELECT " + accountingColumns + " FROM cpu_accounting_samples ORDER BY timestamp DESC, id DESC LIMIT 1")
	s, err := scanAccounting(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// LatestThermalSummary returns the most recent hottest-zone summary.
func (d *DB) LatestThermalSummary() (*collector.ThermalSummary, error) {
	row := d.db.QueryRow("SELECT timestamp, zone, type, temp_mc FROM thermal_summaries ORDER BY timestamp DESC, id DESC LIMIT 1")
	var s collector.ThermalSummary
	err := row.Scan(&s.Timestamp, &s.Zone, &s.Type, &s.TempMilliC)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// LatestCPUFreqSamples returns the CPU frequency samples of the most recent
// collection, ordered by CPU.
func (d *DB) LatestCPUFreqSamples() ([]collector.CPUFreqSample, error) {
	return d.queryCPUFreqs(
		"SELECT timestamp, cpu_id, freq_khz, min_khz, max_khz, governor, driver, is_p_core FROM cpu_freq_samples WHERE timestamp = (SELECT MAX(timestamp) FROM cpu_freq_samples) ORDER BY cpu_id",
	)
}

// LatestThermalSamples returns the thermal samples of the most recent
// collection, ordered by zone.
func (d *DB) LatestThermalSamples() ([]collector.ThermalSample, error) {
	return d.queryThermal(
		"SELECT timestamp, zone, type, temp_mc, critical_mc FROM thermal_samples WHERE timestamp = (SELECT MAX(timestamp) FROM thermal_samples) ORDER BY zone",
	)
}

// CPUAccountingSamplesInRange returns accounting samples within the given time range.
func (d *DB) CPUAccountingSamplesInRange(from, to int64) ([]collector.CPUAccountingSample, error) {
	rows, err := d.db.Query(
		"SELECT "+accountingColumns+" FROM cpu_accounting_samples WHERE timestamp >= ? AND timestamp <= ? ORDER BY timestamp",
		from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var samples []collector.CPUAccountingSample
	for rows.Next() {
		s, err := scanAccounting(rows)
		if err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// CPUFreqSamplesInRange returns CPU frequency samples within the given time range.
func (d *DB) CPUFreqSamplesInRange(from, to int64) ([]collector.CPUFreqSample, error) {
	return d.queryCPUFreqs(
		"SELECT timestamp, cpu_id, freq_khz, min_khz, max_khz, governor, driver, is_p_core FROM cpu_freq_samples WHERE timestamp >= ? AND timestamp <= ? ORDER BY timestamp, cpu_id",
		from, to,
	)
}

// ThermalSamplesInRange returns thermal zone samples within the given time range.
func (d *DB) ThermalSamplesInRange(from, to int64) ([]collector.ThermalSample, error) {
	return d.queryThermal(
		"SELECT timestamp, zone, type, temp_mc, critical_mc FROM thermal_samples WHERE timestamp >= ? AND timestamp <= ? ORDER BY timestamp, zone",
		from, to,
	)
}

// ThermalSummariesInRange returns hottest-zone summaries within the given time range.
func (d *DB) ThermalSummariesInRange(from, to int64) ([]collector.ThermalSummary, error) {
	rows, err := d.db.Query(
		"SELECT timestamp, zone, type, temp_mc FROM thermal_summaries WHERE timestamp >= ? AND timestamp <= ? ORDER BY timestamp",
		from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var summaries []collector.ThermalSummary
	for rows.Next() {
		var s collector.ThermalSummary
		if err := rows.Scan(&s.Timestamp, &s.Zone, &s.Type, &s.TempMilliC); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

func (d *DB) queryCPUFreqs(query string, args ...any) ([]collector.CPUFreqSample, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var samples []collector.CPUFreqSample
	for rows.Next() {
		var s collector.CPUFreqSample
		var isPCore int
		if err := rows.Scan(&s.Timestamp, &s.CPUID, &s.FreqKHz, &s.MinKHz, &s.MaxKHz, &s.Governor, &s.Driver, &isPCore); err != nil {
			return nil, err
		}
		s.IsPCore = isPCore != 0
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

func (d *DB) queryThermal(query string, args ...any) ([]collector.ThermalSample, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var samples []collector.ThermalSample
	for rows.Next() {
		var s collector.ThermalSample
		if err := rows.Scan(&s.Timestamp, &s.Zone, &s.Type, &s.TempMilliC, &s.CriticalMilliC); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}
