package adapter

import (
	"sync"
	"testing"
	"time"

	"github.com/acolita/termgate/internal/testing/fakes/fakeclock"
)

type fakeSource struct {
	mu    sync.Mutex
	frame string
}

func (s *fakeSource) Frame() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

func (s *fakeSource) Set(frame string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = frame
}

type fakeTarget struct {
	mu            sync.Mutex
	updates       []string
	reposts       []string
	block         chan struct{} // when set, Repost blocks until it closes
	blockUpdate   chan struct{} // when set, Update blocks until it closes
	updateEntered chan struct{} // when set, signaled as Update begins
}

func (t *fakeTarget) Update(frame string) error {
	t.mu.Lock()
	entered := t.updateEntered
	block := t.blockUpdate
	t.mu.Unlock()
	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if block != nil {
		<-block
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.updates = append(t.updates, frame)
	return nil
}

func (t *fakeTarget) Repost(frame string) error {
	t.mu.Lock()
	block := t.block
	t.mu.Unlock()
	if block != nil {
		<-block
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reposts = append(t.reposts, frame)
	return nil
}

func (t *fakeTarget) Updates() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.updates))
	copy(out, t.updates)
	return out
}

func (t *fakeTarget) Reposts() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.reposts))
	copy(out, t.reposts)
	return out
}

const testCadence = 500 * time.Millisecond

func newTestSnapshot(source *fakeSource, target *fakeTarget, clk *fakeclock.Clock) *Snapshot {
	return NewSnapshot(source, target, SnapshotOptions{
		Cadence: testCadence,
		Clock:   clk,
	})
}

// tickUntil fires cadence ticks until cond holds or real time runs
// out.
func tickUntil(t *testing.T, clk *fakeclock.Clock, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		clk.Advance(testCadence)
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

// settle fires several ticks and gives the loop time to process them.
func settle(clk *fakeclock.Clock) {
	for i := 0; i < 5; i++ {
		clk.Advance(testCadence)
		time.Sleep(2 * time.Millisecond)
	}
}

func TestSnapshotPushesOncePerChange(t *testing.T) {
	source := &fakeSource{frame: "screen v1"}
	target := &fakeTarget{}
	clk := fakeclock.New(time.Now())
	snap := newTestSnapshot(source, target, clk)

	snap.NotifyChanged()
	tickUntil(t, clk, func() bool { return len(target.Updates()) == 1 }, "first frame never pushed")

	// Idle ticks push nothing.
	settle(clk)
	if got := len(target.Updates()); got != 1 {
		t.Fatalf("updates after idle ticks = %d, want 1", got)
	}

	// A change that renders to the identical frame is skipped.
	snap.NotifyChanged()
	settle(clk)
	if got := len(target.Updates()); got != 1 {
		t.Fatalf("updates after no-op change = %d, want 1", got)
	}

	// A real change is pushed exactly once.
	source.Set("screen v2")
	snap.NotifyChanged()
	tickUntil(t, clk, func() bool { return len(target.Updates()) == 2 }, "second frame never pushed")
	settle(clk)

	updates := target.Updates()
	if len(updates) != 2 {
		t.Fatalf("updates = %d, want 2", len(updates))
	}
	if updates[0] != "screen v1" || updates[1] != "screen v2" {
		t.Errorf("updates = %q", updates)
	}
	snap.Shutdown()
}

func TestSnapshotRelocate(t *testing.T) {
	source := &fakeSource{frame: "screen"}
	target := &fakeTarget{}
	clk := fakeclock.New(time.Now())
	snap := newTestSnapshot(source, target, clk)

	snap.Relocate()

	reposts := target.Reposts()
	if len(reposts) != 1 || reposts[0] != "screen" {
		t.Fatalf("reposts = %q, want one %q", reposts, "screen")
	}

	// The reposted frame counts as pushed; a change to the same
	// content is not re-sent.
	snap.NotifyChanged()
	settle(clk)
	if got := len(target.Updates()); got != 0 {
		t.Errorf("updates after relocate = %d, want 0", got)
	}
	snap.Shutdown()
}

func TestSnapshotRelocateSuppressesUpdates(t *testing.T) {
	source := &fakeSource{frame: "screen"}
	target := &fakeTarget{block: make(chan struct{})}
	clk := fakeclock.New(time.Now())
	snap := newTestSnapshot(source, target, clk)

	started := make(chan struct{})
	go func() {
		close(started)
		snap.Relocate()
	}()
	<-started
	// Give the relocation time to take the busy flag.
	time.Sleep(10 * time.Millisecond)

	// While the repost is in flight, ticks must not push updates and
	// a second relocate collapses into the first.
	source.Set("newer screen")
	snap.NotifyChanged()
	settle(clk)
	if got := len(target.Updates()); got != 0 {
		t.Errorf("updates during relocate = %d, want 0", got)
	}
	snap.Relocate()
	if got := len(target.Reposts()); got != 0 {
		t.Errorf("reposts before release = %d, want 0", got)
	}

	close(target.block)
	tickUntil(t, clk, func() bool { return len(target.Reposts()) == 1 }, "repost never finished")
	snap.Shutdown()
}

func TestSnapshotRelocateWaitsForInFlightUpdate(t *testing.T) {
	source := &fakeSource{frame: "screen"}
	target := &fakeTarget{
		blockUpdate:   make(chan struct{}),
		updateEntered: make(chan struct{}, 1),
	}
	clk := fakeclock.New(time.Now())
	snap := newTestSnapshot(source, target, clk)

	snap.NotifyChanged()
	tickUntil(t, clk, func() bool {
		select {
		case <-target.updateEntered:
			return true
		default:
			return false
		}
	}, "update never started")

	// A relocate arriving mid-update must wait the update out, not run
	// the repost alongside it.
	relocated := make(chan struct{})
	go func() {
		snap.Relocate()
		close(relocated)
	}()
	time.Sleep(10 * time.Millisecond)
	if got := len(target.Reposts()); got != 0 {
		t.Fatalf("reposts while update in flight = %d, want 0", got)
	}

	close(target.blockUpdate)
	select {
	case <-relocated:
	case <-time.After(2 * time.Second):
		t.Fatal("relocate never finished after update was released")
	}
	if got := len(target.Updates()); got != 1 {
		t.Errorf("updates = %d, want 1", got)
	}
	if got := len(target.Reposts()); got != 1 {
		t.Errorf("reposts = %d, want 1", got)
	}
	snap.Shutdown()
}
