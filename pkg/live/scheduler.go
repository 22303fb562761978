package live

import (
	"fmt"
	"sync"

	"github.com/MrWong99/roboface/pkg/audio"
	"github.com/MrWong99/roboface/pkg/audio/graph"
)

// Playback is a handle to one scheduled chunk.
type Playback interface {
	// Stop silences the chunk immediately. It must be idempotent.
	Stop()
}

// Timeline is the playback clock a [Scheduler] appends to.
type Timeline interface {
	// CurrentTime returns the clock in seconds.
	CurrentTime() float64

	// Start schedules buf at time at. onEnded runs exactly once, when the
	// chunk finishes or is stopped, and never from within Start itself.
	Start(buf *audio.Buffer, at float64, onEnded func()) (Playback, error)
}

// OutputTimeline adapts a [graph.OutputContext] to [Timeline].
func OutputTimeline(out *graph.OutputContext) Timeline {
	return outputTimeline{out: out}
}

type outputTimeline struct {
	out *graph.OutputContext
}

func (t outputTimeline) CurrentTime() float64 { return t.out.CurrentTime() }

func (t outputTimeline) Start(buf *audio.Buffer, at float64, onEnded func()) (Playback, error) {
	src, err := t.out.Start(buf, at, onEnded)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// Scheduler appends chunks back to back on a [Timeline] and tracks the ones
// still playing.
//
// The cursor never lags the clock at scheduling time, and each chunk starts
// exactly where the previous one ends, so arbitrarily timed arrivals play
// gaplessly as long as production keeps ahead of real time. All methods are
// safe for concurrent use.
type Scheduler struct {
	tl Timeline

	mu     sync.Mutex
	next   float64
	seq    uint64
	active map[uint64]Playback
}

// NewScheduler returns a Scheduler with its cursor at 0.
func NewScheduler(tl Timeline) *Scheduler {
	return &Scheduler{tl: tl, active: make(map[uint64]Playback)}
}

// Schedule starts buf at max(cursor, now), advances the cursor by the chunk
// duration and returns the start time.
func (s *Scheduler) Schedule(buf *audio.Buffer) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := max(s.next, s.tl.CurrentTime())
	id := s.seq
	s.seq++
	// onEnded may run on the render goroutine; it blocks on s.mu until the
	// handle below is registered.
	p, err := s.tl.Start(buf, start, func() { s.remove(id) })
	if err != nil {
		return 0, fmt.Errorf("live: schedule chunk: %w", err)
	}
	s.active[id] = p
	s.next = start + buf.Duration()
	return start, nil
}

// Interrupt stops every active chunk, empties the active set and resets the
// cursor to 0. It returns the number of chunks stopped.
func (s *Scheduler) Interrupt() int {
	s.mu.Lock()
	handles := make([]Playback, 0, len(s.active))
	for _, p := range s.active {
		handles = append(handles, p)
	}
	clear(s.active)
	s.next = 0
	s.mu.Unlock()

	// Stop outside the lock: onEnded re-enters remove.
	for _, p := range handles {
		p.Stop()
	}
	return len(handles)
}

// Reset is Interrupt for teardown.
func (s *Scheduler) Reset() { s.Interrupt() }

// NextStartTime returns the cursor in seconds.
func (s *Scheduler) NextStartTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Active returns the number of chunks scheduled and not yet finished.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// remove drops a finished handle. Handles already cleared by Interrupt are
// ignored.
func (s *Scheduler) remove(id uint64) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}
