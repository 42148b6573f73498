package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bingo-data/beamscope/internal/efield"
	"github.com/bingo-data/beamscope/internal/layout"
	"github.com/bingo-data/beamscope/internal/pattern"
	"github.com/bingo-data/beamscope/internal/timeutil"
)

const (
	defaultDebounce    = 250 * time.Millisecond
	defaultEventBuffer = 16
	responseBuffer     = 64
)

// Stats counts orchestrator activity since start.
type Stats struct {
	Dispatched        uint64 `json:"dispatched"`
	Completed         uint64 `json:"completed"`
	Failed            uint64 `json:"failed"`
	Superseded        uint64 `json:"superseded"`
	StaleDropped      uint64 `json:"stale_dropped"`
	DebounceCoalesced uint64 `json:"debounce_coalesced"`
	EventsDropped     uint64 `json:"events_dropped"`
	ProgressDropped   uint64 `json:"progress_dropped"`
}

// taskMeta is the call-time record kept per dispatched task id.
type taskMeta struct {
	surface   Surface
	cutPhiDeg float64
	scale     ScaleMode
	runID     string
	cancel    *atomic.Bool
	startedAt time.Time
}

type surfaceState struct {
	activeID  uint64
	inFlight  bool
	latest    *Result
	pending   *SubmitRequest
	pendingAt time.Time
	timer     timeutil.Timer
}

// Orchestrator coordinates the per-surface workers. Task ids come from
// one strictly increasing counter shared by all surfaces and are never
// reused; a response is accepted only while its id is the surface's
// active id, which is the whole cancellation mechanism. All mutable
// state sits behind one mutex, and recorder IO runs outside it.
type Orchestrator struct {
	clock     timeutil.Clock
	debounce  time.Duration
	queueSize int
	recorder  RunRecorder

	responses chan Response
	workers   map[Surface]*Worker
	done      chan struct{}
	stopOnce  sync.Once

	mu       sync.Mutex
	nextID   uint64
	tasks    map[uint64]*taskMeta
	surfaces map[Surface]*surfaceState
	subs     map[int]chan Event
	nextSub  int
	stats    Stats
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock substitutes the time source so tests can drive the
// debounce window deterministically.
func WithClock(c timeutil.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithDebounce sets the trailing-edge debounce window used by
// SubmitDebounced. Non-positive values keep the default.
func WithDebounce(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// WithQueueSize sets each worker's request queue length.
func WithQueueSize(n int) Option {
	return func(o *Orchestrator) { o.queueSize = n }
}

// WithRecorder attaches a run recorder for task lifecycle persistence.
func WithRecorder(r RunRecorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// NewOrchestrator builds an orchestrator with one worker per surface.
// Call Run to start the workers and the response loop.
func NewOrchestrator(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		clock:     timeutil.RealClock{},
		debounce:  defaultDebounce,
		queueSize: defaultQueueSize,
		responses: make(chan Response, responseBuffer),
		workers:   make(map[Surface]*Worker, 3),
		done:      make(chan struct{}),
		tasks:     make(map[uint64]*taskMeta),
		surfaces:  make(map[Surface]*surfaceState),
		subs:      make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(o)
	}
	for _, s := range Surfaces() {
		o.workers[s] = NewWorker(s, o.responses, o.queueSize)
		o.surfaces[s] = &surfaceState{}
	}
	return o
}

// Run starts the workers and consumes their responses until the
// context ends.
func (o *Orchestrator) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range o.workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Run(ctx)
		}(w)
	}
	logf("orchestrator running (%d workers, debounce %v)", len(o.workers), o.debounce)
	for {
		select {
		case <-ctx.Done():
			o.stopOnce.Do(func() { close(o.done) })
			wg.Wait()
			logf("orchestrator stopped")
			return
		case resp := <-o.responses:
			o.handleResponse(resp)
		}
	}
}

// Submit dispatches one computation. It refuses with ErrTaskInFlight
// while the surface already has an unfinished task; callers that want
// newest-wins semantics use SubmitDebounced instead. The returned id
// identifies the task on the event stream.
func (o *Orchestrator) Submit(req SubmitRequest) (uint64, error) {
	return o.dispatch(req, false)
}

// SubmitDebounced stores the request and (re)arms the surface's
// debounce timer. Only the newest request within the window survives;
// when the timer fires the dispatch supersedes any in-flight task on
// the surface instead of being refused.
func (o *Orchestrator) SubmitDebounced(req SubmitRequest) {
	o.mu.Lock()
	st := o.surfaceLocked(req.Surface)
	if st.pending != nil {
		o.stats.DebounceCoalesced++
	}
	st.pending = &req
	st.pendingAt = o.clock.Now()
	if st.timer == nil {
		st.timer = o.clock.NewTimer(o.debounce)
		go o.debounceLoop(req.Surface, st.timer)
	} else {
		st.timer.Reset(o.debounce)
	}
	o.mu.Unlock()
}

func (o *Orchestrator) debounceLoop(s Surface, t timeutil.Timer) {
	for {
		select {
		case <-o.done:
			return
		case <-t.C():
			o.fireDebounced(s)
		}
	}
}

// fireDebounced dispatches the pending request once the quiet window
// has truly elapsed, re-arming for the remainder when a newer submit
// raced the timer.
func (o *Orchestrator) fireDebounced(s Surface) {
	o.mu.Lock()
	st := o.surfaceLocked(s)
	if st.pending == nil {
		o.mu.Unlock()
		return
	}
	if wait := o.debounce - o.clock.Since(st.pendingAt); wait > 0 {
		st.timer.Reset(wait)
		o.mu.Unlock()
		return
	}
	req := *st.pending
	st.pending = nil
	o.mu.Unlock()

	if _, err := o.dispatch(req, true); err != nil {
		logf("debounced %s dispatch rejected: %v", s, err)
		o.mu.Lock()
		o.broadcastLocked(Event{Kind: EventError, Surface: s, Error: err.Error()})
		o.mu.Unlock()
	}
}

// validate applies the pre-dispatch checks: known surface, non-empty
// antenna and sample lists, finite geometry, and a parseable
// convention. Empty convention falls back to the surface default
// (unity for cuts, zero otherwise).
func (o *Orchestrator) validate(req SubmitRequest) (pattern.EmptyArrayConvention, error) {
	if !req.Surface.IsValid() {
		return 0, fmt.Errorf("unknown surface %q", req.Surface)
	}
	if len(req.Coords) == 0 {
		return 0, fmt.Errorf("%w: no antennas", pattern.ErrInputEmpty)
	}
	if len(req.Samples) == 0 {
		return 0, fmt.Errorf("%w: no element-field samples", pattern.ErrInputEmpty)
	}
	if err := pattern.ValidateGeometry(req.Coords, req.WaveNumber, req.Steering); err != nil {
		return 0, err
	}
	conv := req.Convention
	if conv == "" && req.Surface != SurfaceCut {
		conv = "zero"
	}
	return pattern.ParseConvention(conv)
}

func (o *Orchestrator) dispatch(req SubmitRequest, supersede bool) (uint64, error) {
	conv, err := o.validate(req)
	if err != nil {
		return 0, err
	}
	// Snapshot the inputs so later caller mutations never reach a
	// running task.
	coords := append([]layout.Coordinate(nil), req.Coords...)
	samples := append([]efield.Sample(nil), req.Samples...)

	var supersededRunID string
	o.mu.Lock()
	st := o.surfaceLocked(req.Surface)
	if st.inFlight {
		if !supersede {
			o.mu.Unlock()
			return 0, fmt.Errorf("%w: %s task %d", ErrTaskInFlight, req.Surface, st.activeID)
		}
		if old, ok := o.tasks[st.activeID]; ok {
			old.cancel.Store(true)
			supersededRunID = old.runID
		}
		o.stats.Superseded++
	}
	o.nextID++
	id := o.nextID
	meta := &taskMeta{
		surface:   req.Surface,
		cutPhiDeg: req.CutPhiDeg,
		scale:     req.Scale,
		cancel:    new(atomic.Bool),
		startedAt: o.clock.Now(),
	}
	o.tasks[id] = meta
	st.activeID = id
	st.inFlight = true
	o.mu.Unlock()

	if supersededRunID != "" {
		o.recordSuperseded(supersededRunID)
	}

	runID := o.recordStart(RunStart{
		TaskID:     id,
		Surface:    req.Surface,
		Antennas:   len(coords),
		Samples:    len(samples),
		WaveNumber: req.WaveNumber,
		Steering:   req.Steering,
		CutPhiDeg:  req.CutPhiDeg,
		Scale:      req.Scale,
		Convention: conv,
	})

	o.mu.Lock()
	meta.runID = runID
	supersededWhileRecording := st.activeID != id
	sent := o.workers[req.Surface].TrySend(Request{
		TaskID:     id,
		Surface:    req.Surface,
		Coords:     coords,
		Samples:    samples,
		WaveNumber: req.WaveNumber,
		Steering:   req.Steering,
		Convention: conv,
		CutPhiDeg:  req.CutPhiDeg,
		Cancel:     meta.cancel,
	})
	if sent {
		o.stats.Dispatched++
	} else {
		// Release the guard so the caller can retry.
		if st.activeID == id {
			st.inFlight = false
		}
		delete(o.tasks, id)
		o.stats.Failed++
	}
	o.mu.Unlock()

	if !sent {
		o.recordFailed(runID, ErrWorkerUnavailable.Error())
		return 0, fmt.Errorf("%w: %s queue full", ErrWorkerUnavailable, req.Surface)
	}
	if supersededWhileRecording {
		o.recordSuperseded(runID)
	}
	return id, nil
}

// handleResponse applies the id filter and forwards accepted messages
// as events. Terminal messages for the active id release the
// single-flight guard; anything stale is counted and dropped.
func (o *Orchestrator) handleResponse(resp Response) {
	id := resp.responseTaskID()

	o.mu.Lock()
	meta, ok := o.tasks[id]
	if !ok {
		o.stats.StaleDropped++
		o.mu.Unlock()
		return
	}
	st := o.surfaceLocked(meta.surface)
	if st.activeID != id {
		o.stats.StaleDropped++
		switch resp.(type) {
		case Result, Failure:
			delete(o.tasks, id)
		}
		o.mu.Unlock()
		return
	}

	var after func()
	switch m := resp.(type) {
	case Progress:
		o.broadcastLocked(Event{
			Kind:    EventProgress,
			TaskID:  id,
			Surface: meta.surface,
			Scale:   meta.scale,
			Percent: m.Percent,
			Message: m.Message,
		})
	case Result:
		st.inFlight = false
		st.latest = &m
		delete(o.tasks, id)
		o.stats.Completed++
		o.broadcastLocked(Event{
			Kind:    EventResult,
			TaskID:  id,
			Surface: meta.surface,
			Scale:   meta.scale,
			Percent: 100,
			Result:  &m,
		})
		runID := meta.runID
		after = func() { o.recordCompleted(runID, m) }
	case Failure:
		st.inFlight = false
		delete(o.tasks, id)
		o.stats.Failed++
		reason := m.Err.Error()
		o.broadcastLocked(Event{
			Kind:    EventError,
			TaskID:  id,
			Surface: meta.surface,
			Scale:   meta.scale,
			Error:   reason,
		})
		runID := meta.runID
		after = func() { o.recordFailed(runID, reason) }
	}
	o.mu.Unlock()

	if after != nil {
		after()
	}
}

// Subscribe registers an event channel. Sends never block: a slow
// subscriber loses events and the drop is counted. The returned cancel
// unregisters and closes the channel.
func (o *Orchestrator) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	ch := make(chan Event, buffer)
	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	o.mu.Unlock()
	cancel := func() {
		o.mu.Lock()
		if sub, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(sub)
		}
		o.mu.Unlock()
	}
	return ch, cancel
}

func (o *Orchestrator) broadcastLocked(ev Event) {
	for _, ch := range o.subs {
		select {
		case ch <- ev:
		default:
			o.stats.EventsDropped++
		}
	}
}

// Stats returns a snapshot of the activity counters.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	s := o.stats
	o.mu.Unlock()
	for _, w := range o.workers {
		s.ProgressDropped += w.DroppedProgress()
	}
	return s
}

// Latest returns the last accepted result for a surface. The result is
// shared; callers must treat it as read-only.
func (o *Orchestrator) Latest(s Surface) (*Result, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.surfaces[s]
	if !ok || st.latest == nil {
		return nil, false
	}
	return st.latest, true
}

// ActiveTask describes one surface's scheduling state.
type ActiveTask struct {
	Surface   Surface   `json:"surface"`
	TaskID    uint64    `json:"task_id"`
	InFlight  bool      `json:"in_flight"`
	Debounced bool      `json:"debounce_pending"`
	StartedAt time.Time `json:"started_at"`
}

// Active reports every surface's current task id, in-flight flag and
// pending-debounce flag.
func (o *Orchestrator) Active() []ActiveTask {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]ActiveTask, 0, len(o.surfaces))
	for _, s := range Surfaces() {
		st := o.surfaceLocked(s)
		task := ActiveTask{
			Surface:   s,
			TaskID:    st.activeID,
			InFlight:  st.inFlight,
			Debounced: st.pending != nil,
		}
		if meta, ok := o.tasks[st.activeID]; ok {
			task.StartedAt = meta.startedAt
		}
		out = append(out, task)
	}
	return out
}

// Debounce returns the configured debounce window.
func (o *Orchestrator) Debounce() time.Duration { return o.debounce }

func (o *Orchestrator) surfaceLocked(s Surface) *surfaceState {
	st, ok := o.surfaces[s]
	if !ok {
		st = &surfaceState{}
		o.surfaces[s] = st
	}
	return st
}

func (o *Orchestrator) recordStart(run RunStart) string {
	if o.recorder == nil {
		return ""
	}
	runID, err := o.recorder.RecordRun(run)
	if err != nil {
		logf("record run for task %d failed: %v", run.TaskID, err)
		return ""
	}
	return runID
}

func (o *Orchestrator) recordCompleted(runID string, res Result) {
	if o.recorder == nil || runID == "" {
		return
	}
	if err := o.recorder.CompleteRun(runID, res.Elapsed); err != nil {
		logf("complete run %s failed: %v", runID, err)
	}
	if res.Cut != nil {
		if err := o.recorder.RecordCutMetrics(runID, pattern.AnalyzeCut(res.Cut)); err != nil {
			logf("record metrics for run %s failed: %v", runID, err)
		}
	}
	if res.PSF != nil {
		h50, ok50 := res.PSF.HalfAngleAt(0.5)
		h80, ok80 := res.PSF.HalfAngleAt(0.8)
		if ok50 && ok80 {
			if err := o.recorder.RecordPSFMetrics(runID, h50, h80); err != nil {
				logf("record psf metrics for run %s failed: %v", runID, err)
			}
		}
	}
}

func (o *Orchestrator) recordFailed(runID, reason string) {
	if o.recorder == nil || runID == "" {
		return
	}
	if err := o.recorder.FailRun(runID, reason); err != nil {
		logf("fail run %s failed: %v", runID, err)
	}
}

func (o *Orchestrator) recordSuperseded(runID string) {
	if o.recorder == nil || runID == "" {
		return
	}
	if err := o.recorder.SupersedeRun(runID); err != nil {
		logf("supersede run %s failed: %v", runID, err)
	}
}
