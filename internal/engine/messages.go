// Package engine schedules far-field pattern computations. A
// long-lived worker per chart surface runs the pattern kernel to
// completion; the orchestrator owns the monotonic task ids, the
// single-flight guard per surface, the debounce window for rapid input
// changes, and the stale-response filter that implements cancellation
// by discard.
package engine

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/bingo-data/beamscope/internal/efield"
	"github.com/bingo-data/beamscope/internal/layout"
	"github.com/bingo-data/beamscope/internal/monitoring"
	"github.com/bingo-data/beamscope/internal/pattern"
	"github.com/bingo-data/beamscope/internal/units"
)

var logf = monitoring.Component("engine")

var (
	// ErrTaskInFlight means the surface already has an unfinished task.
	// The caller may retry after the terminal event or use the
	// debounced path, which supersedes instead of refusing.
	ErrTaskInFlight = errors.New("computation already in flight for surface")
	// ErrWorkerUnavailable means the worker queue refused the request.
	// The single-flight guard is released before this is returned.
	ErrWorkerUnavailable = errors.New("compute worker unavailable")
	// ErrSuperseded is the terminal error a worker reports when it
	// stops early because its task's cancellation flag was set.
	ErrSuperseded = errors.New("task superseded")
)

// Surface identifies one logical chart surface. Each surface has its
// own worker and its own single-flight guard.
type Surface string

const (
	SurfaceCut  Surface = "cut"
	SurfaceGrid Surface = "grid"
	SurfacePSF  Surface = "psf"
)

// Surfaces lists every surface in dispatch order.
func Surfaces() []Surface {
	return []Surface{SurfaceCut, SurfaceGrid, SurfacePSF}
}

// IsValid reports whether s names a known surface.
func (s Surface) IsValid() bool {
	switch s {
	case SurfaceCut, SurfaceGrid, SurfacePSF:
		return true
	}
	return false
}

// ScaleMode is a call-time presentation preference. It never changes
// the computation; it is stored with the task and echoed on its events
// so the presentation layer renders the view the request asked for.
type ScaleMode string

const (
	ScaleDB     ScaleMode = "db"
	ScaleLinear ScaleMode = "linear"
)

// SubmitRequest is a caller's computation request. Coordinate and
// sample slices are snapshotted at dispatch, so the caller may keep
// mutating its own copies.
type SubmitRequest struct {
	Surface    Surface
	Coords     []layout.Coordinate
	Samples    []efield.Sample
	WaveNumber float64
	Steering   units.Angle
	// Convention is the empty-array convention spelling ("unity",
	// "zero"); empty selects the surface default: unity for cuts,
	// zero for grids and PSF curves.
	Convention string
	// CutPhiDeg labels the constant-phi plane of a cut request.
	CutPhiDeg float64
	Scale     ScaleMode
}

// Request is the message dispatched to a worker. Cancel is the
// cooperative cancellation flag the worker samples between angle-loop
// iterations; the orchestrator sets it when the task is superseded.
type Request struct {
	TaskID     uint64
	Surface    Surface
	Coords     []layout.Coordinate
	Samples    []efield.Sample
	WaveNumber float64
	Steering   units.Angle
	Convention pattern.EmptyArrayConvention
	CutPhiDeg  float64
	Cancel     *atomic.Bool
}

// Response is the closed set of messages a worker sends back:
// Progress, Result or Failure. The unexported method keeps the set
// closed so stale-id filtering stays an exhaustive switch.
type Response interface {
	responseTaskID() uint64
}

// Progress reports partial completion of a running task.
type Progress struct {
	TaskID  uint64  `json:"task_id"`
	Surface Surface `json:"surface"`
	Percent float64 `json:"percent"`
	Message string  `json:"message,omitempty"`
}

func (p Progress) responseTaskID() uint64 { return p.TaskID }

// Result is the terminal success message. Exactly one of Cut, Grid or
// PSF is set, matching the surface.
type Result struct {
	TaskID  uint64              `json:"task_id"`
	Surface Surface             `json:"surface"`
	Cut     *pattern.BeamCut1D  `json:"cut,omitempty"`
	Grid    *pattern.BeamGrid2D `json:"grid,omitempty"`
	PSF     *pattern.PSFCurve   `json:"psf,omitempty"`
	Elapsed time.Duration       `json:"elapsed_ns"`
}

func (r Result) responseTaskID() uint64 { return r.TaskID }

// Failure is the terminal error message.
type Failure struct {
	TaskID  uint64
	Surface Surface
	Err     error
}

func (f Failure) responseTaskID() uint64 { return f.TaskID }

// EventKind tags the subscriber-facing event stream.
type EventKind string

const (
	EventProgress EventKind = "progress"
	EventResult   EventKind = "result"
	EventError    EventKind = "error"
)

// Event is what subscribers (websocket hub, tests) receive. Only
// messages belonging to the currently active task id of their surface
// become events; stale responses are dropped before this point.
type Event struct {
	Kind    EventKind `json:"kind"`
	TaskID  uint64    `json:"task_id,omitempty"`
	Surface Surface   `json:"surface"`
	Scale   ScaleMode `json:"scale,omitempty"`
	Percent float64   `json:"percent,omitempty"`
	Message string    `json:"message,omitempty"`
	Result  *Result   `json:"result,omitempty"`
	Error   string    `json:"error,omitempty"`
}
