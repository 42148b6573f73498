package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bingo-data/beamscope/internal/pattern"
)

const (
	defaultQueueSize = 4
	// progressSteps is how many progress notifications a task emits
	// across its angle loop, roughly one per 5%.
	progressSteps = 20
)

// Worker owns one surface's compute loop. Requests arrive on a bounded
// queue; responses flow to the orchestrator's shared response channel.
// Each accepted request produces zero or more Progress messages and
// exactly one terminal Result or Failure.
type Worker struct {
	surface         Surface
	requests        chan Request
	out             chan<- Response
	droppedProgress atomic.Uint64
}

// NewWorker creates a worker for one surface writing responses to out.
func NewWorker(surface Surface, out chan<- Response, queueSize int) *Worker {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Worker{
		surface:  surface,
		requests: make(chan Request, queueSize),
		out:      out,
	}
}

// TrySend enqueues a request without blocking. It reports false when
// the queue is full; the caller decides whether that is fatal.
func (w *Worker) TrySend(req Request) bool {
	select {
	case w.requests <- req:
		return true
	default:
		return false
	}
}

// DroppedProgress returns how many progress messages were discarded
// because the response channel was full. Terminal messages are never
// dropped.
func (w *Worker) DroppedProgress() uint64 {
	return w.droppedProgress.Load()
}

// Run consumes requests until the context ends. Terminal messages are
// delivered with a blocking send so they cannot be lost.
func (w *Worker) Run(ctx context.Context) {
	logf("%s worker started (queue %d)", w.surface, cap(w.requests))
	for {
		select {
		case <-ctx.Done():
			logf("%s worker stopped", w.surface)
			return
		case req := <-w.requests:
			resp := w.compute(req)
			select {
			case w.out <- resp:
			case <-ctx.Done():
				logf("%s worker stopped before delivering task %d", w.surface, req.TaskID)
				return
			}
		}
	}
}

// compute runs one task to its terminal message. The cancellation flag
// is sampled between angle-loop iterations only; the antenna inner loop
// runs without checks.
func (w *Worker) compute(req Request) Response {
	start := time.Now()
	n := len(req.Samples)
	kernel := pattern.NewKernel(req.Coords, req.WaveNumber, req.Steering, req.Convention)

	step := n / progressSteps
	if step < 1 {
		step = 1
	}
	af := make([]complex128, n)
	for i, smp := range req.Samples {
		if req.Cancel != nil && req.Cancel.Load() {
			return Failure{TaskID: req.TaskID, Surface: req.Surface, Err: ErrSuperseded}
		}
		af[i] = kernel.At(smp.Angle())
		if (i+1)%step == 0 || i == n-1 {
			w.progress(req.TaskID, float64(i+1)/float64(n)*100)
		}
	}

	mags, err := pattern.CombineFields(req.Samples, af)
	if err != nil {
		return Failure{TaskID: req.TaskID, Surface: req.Surface, Err: err}
	}

	res := Result{TaskID: req.TaskID, Surface: req.Surface}
	switch req.Surface {
	case SurfaceCut:
		thetas := make([]float64, n)
		for i, smp := range req.Samples {
			thetas[i] = smp.ThetaDeg
		}
		cut, err := pattern.NewBeamCut(req.CutPhiDeg, thetas, mags)
		if err != nil {
			return Failure{TaskID: req.TaskID, Surface: req.Surface, Err: err}
		}
		res.Cut = cut
	case SurfaceGrid:
		grid, err := pattern.NewBeamGrid(req.Samples, mags)
		if err != nil {
			return Failure{TaskID: req.TaskID, Surface: req.Surface, Err: err}
		}
		res.Grid = grid
	case SurfacePSF:
		grid, err := pattern.NewBeamGrid(req.Samples, mags)
		if err != nil {
			return Failure{TaskID: req.TaskID, Surface: req.Surface, Err: err}
		}
		res.PSF = pattern.NewPSFCurve(grid)
	default:
		return Failure{TaskID: req.TaskID, Surface: req.Surface, Err: fmt.Errorf("unknown surface %q", req.Surface)}
	}
	res.Elapsed = time.Since(start)
	return res
}

// progress sends a notification without blocking; a full response
// channel drops it. Progress is advisory, losing one is harmless.
func (w *Worker) progress(taskID uint64, percent float64) {
	select {
	case w.out <- Progress{TaskID: taskID, Surface: w.surface, Percent: percent}:
	default:
		w.droppedProgress.Add(1)
	}
}
