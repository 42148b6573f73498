package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/bingo-data/beamscope/internal/engine"
	"github.com/bingo-data/beamscope/internal/pattern"
)

// ErrNotFound reports a lookup for a run id that does not exist.
var ErrNotFound = errors.New("not found")

// Run status values. A run starts as running and ends in exactly one of
// the terminal states.
const (
	RunStatusRunning    = "running"
	RunStatusCompleted  = "completed"
	RunStatusFailed     = "failed"
	RunStatusSuperseded = "superseded"
)

// PatternRun is the persisted audit record of one dispatched
// computation task.
type PatternRun struct {
	ID            string     `json:"id"`
	TaskID        uint64     `json:"task_id"`
	Surface       string     `json:"surface"`
	Status        string     `json:"status"`
	Antennas      int        `json:"antennas"`
	Samples       int        `json:"samples"`
	WaveNumber    float64    `json:"wave_number"`
	SteerThetaDeg float64    `json:"steer_theta_deg"`
	SteerPhiDeg   float64    `json:"steer_phi_deg"`
	CutPhiDeg     float64    `json:"cut_phi_deg"`
	Scale         *string    `json:"scale"`
	Convention    *string    `json:"convention"`
	Error         *string    `json:"error"`
	ElapsedMs     *float64   `json:"elapsed_ms"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
}

// RunMetrics is the persisted beam summary of a completed run. Cut runs
// fill the beamwidth/sidelobe columns, point-spread runs fill the
// encircled half-angles; the rest stay NULL.
type RunMetrics struct {
	RunID            string    `json:"run_id"`
	PeakThetaDeg     *float64  `json:"peak_theta_deg"`
	PeakDB           *float64  `json:"peak_db"`
	BeamwidthDeg     *float64  `json:"beamwidth_deg"`
	FirstSidelobeDB  *float64  `json:"first_sidelobe_db"`
	SidelobeThetaDeg *float64  `json:"sidelobe_theta_deg"`
	Encircled50Deg   *float64  `json:"encircled_50_deg"`
	Encircled80Deg   *float64  `json:"encircled_80_deg"`
	CreatedAt        time.Time `json:"created_at"`
}

// RecordRun inserts a new running run and returns its id.
func (db *DB) RecordRun(run engine.RunStart) (string, error) {
	id := uuid.New().String()

	scale := string(run.Scale)
	var scalePtr *string
	if scale != "" {
		scalePtr = &scale
	}
	convention := run.Convention.String()

	_, err := db.Exec(`
		INSERT INTO pattern_runs (
			id, task_id, surface, status, antennas, samples, wave_number,
			steer_theta_deg, steer_phi_deg, cut_phi_deg, scale, convention
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		run.TaskID,
		string(run.Surface),
		RunStatusRunning,
		run.Antennas,
		run.Samples,
		run.WaveNumber,
		run.Steering.ThetaDeg,
		run.Steering.PhiDeg,
		run.CutPhiDeg,
		scalePtr,
		convention,
	)
	if err != nil {
		return "", fmt.Errorf("failed to record run: %w", err)
	}

	return id, nil
}

// CompleteRun marks a run completed and stores the compute duration.
func (db *DB) CompleteRun(runID string, elapsed time.Duration) error {
	elapsedMs := float64(elapsed) / float64(time.Millisecond)
	return db.finishRun(runID, RunStatusCompleted, nil, &elapsedMs)
}

// FailRun marks a run failed with a human-readable reason.
func (db *DB) FailRun(runID string, reason string) error {
	return db.finishRun(runID, RunStatusFailed, &reason, nil)
}

// SupersedeRun marks a run superseded by a newer dispatch.
func (db *DB) SupersedeRun(runID string) error {
	return db.finishRun(runID, RunStatusSuperseded, nil, nil)
}

func (db *DB) finishRun(runID, status string, reason *string, elapsedMs *float64) error {
	result, err := db.Exec(`
		UPDATE pattern_runs
		SET status = ?, error = ?, elapsed_ms = ?, finished_at = strftime('%s','now')
		WHERE id = ?`,
		status, reason, elapsedMs, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark run %s: %w", status, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run %w", ErrNotFound)
	}

	return nil
}

// RecordCutMetrics stores the summary metrics of a completed cut run.
// Re-recording for the same run replaces the previous row.
func (db *DB) RecordCutMetrics(runID string, m pattern.CutMetrics) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO run_metrics (
			run_id, peak_theta_deg, peak_db, beamwidth_deg,
			first_sidelobe_db, sidelobe_theta_deg
		) VALUES (?, ?, ?, ?, ?, ?)`,
		runID,
		m.PeakThetaDeg,
		m.PeakDB,
		m.BeamwidthDeg,
		m.FirstSidelobeDB,
		m.SidelobeThetaDeg,
	)
	if err != nil {
		return fmt.Errorf("failed to record run metrics: %w", err)
	}
	return nil
}

// RecordPSFMetrics stores the encircled-energy half-angles of a
// completed point-spread run.
func (db *DB) RecordPSFMetrics(runID string, halfAngle50, halfAngle80 float64) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO run_metrics (
			run_id, encircled_50_deg, encircled_80_deg
		) VALUES (?, ?, ?)`,
		runID, halfAngle50, halfAngle80,
	)
	if err != nil {
		return fmt.Errorf("failed to record psf metrics: %w", err)
	}
	return nil
}

const runColumns = `
	id, task_id, surface, status, antennas, samples, wave_number,
	steer_theta_deg, steer_phi_deg, cut_phi_deg, scale, convention,
	error, elapsed_ms, started_at, finished_at
`

func scanRun(row interface{ Scan(...any) error }) (*PatternRun, error) {
	var run PatternRun
	var startedAtUnix int64
	var finishedAtUnix *int64

	err := row.Scan(
		&run.ID,
		&run.TaskID,
		&run.Surface,
		&run.Status,
		&run.Antennas,
		&run.Samples,
		&run.WaveNumber,
		&run.SteerThetaDeg,
		&run.SteerPhiDeg,
		&run.CutPhiDeg,
		&run.Scale,
		&run.Convention,
		&run.Error,
		&run.ElapsedMs,
		&startedAtUnix,
		&finishedAtUnix,
	)
	if err != nil {
		return nil, err
	}

	run.StartedAt = time.Unix(startedAtUnix, 0)
	if finishedAtUnix != nil {
		finishedAt := time.Unix(*finishedAtUnix, 0)
		run.FinishedAt = &finishedAt
	}

	return &run, nil
}

// GetRun retrieves a run by id.
func (db *DB) GetRun(id string) (*PatternRun, error) {
	row := db.QueryRow(`SELECT `+runColumns+` FROM pattern_runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// ListRuns returns the most recent runs, newest first. A non-positive
// limit falls back to 100.
func (db *DB) ListRuns(limit int) ([]PatternRun, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.Query(`
		SELECT `+runColumns+`
		FROM pattern_runs
		ORDER BY started_at DESC, task_id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []PatternRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

// GetRunMetrics retrieves the metrics row of a run.
func (db *DB) GetRunMetrics(runID string) (*RunMetrics, error) {
	var m RunMetrics
	var createdAtUnix int64

	err := db.QueryRow(`
		SELECT run_id, peak_theta_deg, peak_db, beamwidth_deg,
			first_sidelobe_db, sidelobe_theta_deg,
			encircled_50_deg, encircled_80_deg, created_at
		FROM run_metrics
		WHERE run_id = ?`, runID).Scan(
		&m.RunID,
		&m.PeakThetaDeg,
		&m.PeakDB,
		&m.BeamwidthDeg,
		&m.FirstSidelobeDB,
		&m.SidelobeThetaDeg,
		&m.Encircled50Deg,
		&m.Encircled80Deg,
		&createdAtUnix,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run metrics %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run metrics: %w", err)
	}

	m.CreatedAt = time.Unix(createdAtUnix, 0)
	return &m, nil
}

// ElapsedSummary describes the compute-time distribution of completed
// runs on one surface.
type ElapsedSummary struct {
	Count    int     `json:"count"`
	MeanMs   float64 `json:"mean_ms"`
	StddevMs float64 `json:"stddev_ms"`
}

// ElapsedStatsBySurface summarizes elapsed milliseconds of completed
// runs, grouped by surface.
func (db *DB) ElapsedStatsBySurface() (map[string]ElapsedSummary, error) {
	rows, err := db.Query(`
		SELECT surface, elapsed_ms
		FROM pattern_runs
		WHERE status = ? AND elapsed_ms IS NOT NULL`, RunStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to query elapsed times: %w", err)
	}
	defer rows.Close()

	bySurface := make(map[string][]float64)
	for rows.Next() {
		var surface string
		var elapsedMs float64
		if err := rows.Scan(&surface, &elapsedMs); err != nil {
			return nil, err
		}
		bySurface[surface] = append(bySurface[surface], elapsedMs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stats := make(map[string]ElapsedSummary, len(bySurface))
	for surface, elapsed := range bySurface {
		summary := ElapsedSummary{
			Count:  len(elapsed),
			MeanMs: stat.Mean(elapsed, nil),
		}
		// Sample stddev needs at least two runs.
		if len(elapsed) > 1 {
			summary.StddevMs = stat.StdDev(elapsed, nil)
		}
		stats[surface] = summary
	}

	return stats, nil
}

// CountRunsByStatus returns how many runs sit in each status.
func (db *DB) CountRunsByStatus() (map[string]int, error) {
	rows, err := db.Query(`SELECT status, COUNT(*) FROM pattern_runs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return counts, nil
}
