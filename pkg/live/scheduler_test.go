package live

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/MrWong99/roboface/pkg/audio"
	"github.com/MrWong99/roboface/pkg/audio/graph"
	"github.com/MrWong99/roboface/pkg/audio/mock"
)

// fakeTimeline is a manually advanced clock that records every start.
type fakeTimeline struct {
	mu       sync.Mutex
	now      float64
	starts   []float64
	handles  []*fakePlayback
	startErr error
}

type fakePlayback struct {
	mu      sync.Mutex
	stopped bool
	onEnded func()
}

func (p *fakePlayback) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	fn := p.onEnded
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (p *fakePlayback) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

func (tl *fakeTimeline) CurrentTime() float64 {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.now
}

func (tl *fakeTimeline) Start(_ *audio.Buffer, at float64, onEnded func()) (Playback, error) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.startErr != nil {
		return nil, tl.startErr
	}
	p := &fakePlayback{onEnded: onEnded}
	tl.starts = append(tl.starts, at)
	tl.handles = append(tl.handles, p)
	return p, nil
}

func (tl *fakeTimeline) advance(d float64) {
	tl.mu.Lock()
	tl.now += d
	tl.mu.Unlock()
}

func chunk(rate, frames int) *audio.Buffer {
	return audio.NewBuffer(rate, 1, frames)
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestScheduler_GaplessStartTimes(t *testing.T) {
	t.Parallel()

	tl := &fakeTimeline{}
	s := NewScheduler(tl)

	durations := []int{2400, 4800, 1200} // 0.1s, 0.2s, 0.05s at 24 kHz
	want := []float64{0, 0.1, 0.3}
	for i, frames := range durations {
		start, err := s.Schedule(chunk(24000, frames))
		if err != nil {
			t.Fatalf("Schedule %d: %v", i, err)
		}
		if !approx(start, want[i]) {
			t.Errorf("chunk %d start: got %v, want %v", i, start, want[i])
		}
	}
	if got := s.NextStartTime(); !approx(got, 0.35) {
		t.Errorf("NextStartTime: got %v, want 0.35", got)
	}
	if got := s.Active(); got != 3 {
		t.Errorf("Active: got %d, want 3", got)
	}
}

func TestScheduler_LateArrivalStartsNow(t *testing.T) {
	t.Parallel()

	tl := &fakeTimeline{}
	s := NewScheduler(tl)

	if _, err := s.Schedule(chunk(24000, 2400)); err != nil {
		t.Fatal(err)
	}
	// The clock ran past the end of the first chunk.
	tl.advance(0.5)
	start, err := s.Schedule(chunk(24000, 2400))
	if err != nil {
		t.Fatal(err)
	}
	if !approx(start, 0.5) {
		t.Errorf("start after underrun: got %v, want 0.5", start)
	}
	if got := s.NextStartTime(); !approx(got, 0.6) {
		t.Errorf("NextStartTime: got %v, want 0.6", got)
	}
}

func TestScheduler_InterruptStopsEverything(t *testing.T) {
	t.Parallel()

	tl := &fakeTimeline{}
	s := NewScheduler(tl)
	for range 3 {
		if _, err := s.Schedule(chunk(24000, 2400)); err != nil {
			t.Fatal(err)
		}
	}

	if n := s.Interrupt(); n != 3 {
		t.Errorf("Interrupt: got %d stopped, want 3", n)
	}
	if got := s.Active(); got != 0 {
		t.Errorf("Active after interrupt: got %d, want 0", got)
	}
	if got := s.NextStartTime(); got != 0 {
		t.Errorf("NextStartTime after interrupt: got %v, want 0", got)
	}
	for i, h := range tl.handles {
		if !h.isStopped() {
			t.Errorf("handle %d not stopped", i)
		}
	}
}

func TestScheduler_ScheduleAfterInterruptStartsAtNow(t *testing.T) {
	t.Parallel()

	tl := &fakeTimeline{}
	s := NewScheduler(tl)
	for range 4 {
		if _, err := s.Schedule(chunk(24000, 24000)); err != nil {
			t.Fatal(err)
		}
	}
	tl.advance(1.25)
	s.Interrupt()

	start, err := s.Schedule(chunk(24000, 2400))
	if err != nil {
		t.Fatal(err)
	}
	if !approx(start, 1.25) {
		t.Errorf("start after interrupt: got %v, want 1.25 (now)", start)
	}
}

func TestScheduler_EndedChunksLeaveActiveSet(t *testing.T) {
	t.Parallel()

	tl := &fakeTimeline{}
	s := NewScheduler(tl)
	for range 2 {
		if _, err := s.Schedule(chunk(24000, 2400)); err != nil {
			t.Fatal(err)
		}
	}
	tl.handles[0].Stop()
	if got := s.Active(); got != 1 {
		t.Errorf("Active: got %d, want 1", got)
	}
	// Ending again is a no-op.
	tl.handles[0].Stop()
	if got := s.Active(); got != 1 {
		t.Errorf("Active after repeated end: got %d, want 1", got)
	}
}

func TestScheduler_InterruptEmptyIsNoop(t *testing.T) {
	t.Parallel()

	s := NewScheduler(&fakeTimeline{})
	if n := s.Interrupt(); n != 0 {
		t.Errorf("Interrupt on empty scheduler: got %d, want 0", n)
	}
	s.Reset()
	if got := s.NextStartTime(); got != 0 {
		t.Errorf("NextStartTime: got %v, want 0", got)
	}
}

func TestScheduler_StartErrorLeavesCursor(t *testing.T) {
	t.Parallel()

	startErr := errors.New("closed")
	tl := &fakeTimeline{startErr: startErr}
	s := NewScheduler(tl)

	if _, err := s.Schedule(chunk(24000, 2400)); !errors.Is(err, startErr) {
		t.Fatalf("Schedule: got %v, want %v", err, startErr)
	}
	if got := s.NextStartTime(); got != 0 {
		t.Errorf("NextStartTime: got %v, want 0", got)
	}
	if got := s.Active(); got != 0 {
		t.Errorf("Active: got %d, want 0", got)
	}
}

func TestScheduler_OutputTimelinePlaysBackToBack(t *testing.T) {
	t.Parallel()

	sink := &mock.Sink{}
	out := graph.NewOutputContext(1000, sink)
	if err := out.Resume(context.Background()); err != nil {
		t.Fatal(err)
	}
	s := NewScheduler(OutputTimeline(out))

	a := chunk(1000, 100)
	b := chunk(1000, 100)
	for i := range a.Channels[0] {
		a.Channels[0][i] = 0.25
		b.Channels[0][i] = -0.5
	}
	if _, err := s.Schedule(a); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Schedule(b); err != nil {
		t.Fatal(err)
	}

	got := sink.Pull(250)
	for i, v := range got {
		var want float32
		switch {
		case i < 100:
			want = 0.25
		case i < 200:
			want = -0.5
		}
		if v != want {
			t.Fatalf("sample %d: got %v, want %v", i, v, want)
		}
	}
	if n := s.Active(); n != 0 {
		t.Errorf("Active after both chunks played: got %d, want 0", n)
	}
}
