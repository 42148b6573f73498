package engine

import (
	"time"

	"github.com/bingo-data/beamscope/internal/pattern"
	"github.com/bingo-data/beamscope/internal/units"
)

// RunStart is the dispatch-time snapshot of a task recorded for audit.
type RunStart struct {
	TaskID     uint64
	Surface    Surface
	Antennas   int
	Samples    int
	WaveNumber float64
	Steering   units.Angle
	CutPhiDeg  float64
	Scale      ScaleMode
	Convention pattern.EmptyArrayConvention
}

// RunRecorder persists task lifecycle transitions. Implementations must
// be safe for concurrent use. Recorder failures are logged, never
// raised against the task; a nil recorder disables recording entirely.
type RunRecorder interface {
	// RecordRun stores a dispatched task and returns its run id.
	RecordRun(run RunStart) (runID string, err error)
	// CompleteRun marks a run completed with its compute duration.
	CompleteRun(runID string, elapsed time.Duration) error
	// FailRun marks a run failed with a human-readable reason.
	FailRun(runID string, reason string) error
	// SupersedeRun marks a run superseded by a newer dispatch.
	SupersedeRun(runID string) error
	// RecordCutMetrics stores the summary metrics of a completed cut.
	RecordCutMetrics(runID string, m pattern.CutMetrics) error
	// RecordPSFMetrics stores the half-angles enclosing 50% and 80% of
	// the total power of a completed point-spread curve.
	RecordPSFMetrics(runID string, halfAngle50, halfAngle80 float64) error
}
