package proc

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestQueue_TakeOrder(t *testing.T) {
	q := NewQueue()
	for _, title := range []string{"a", "b", "c"} {
		if err := q.Put(testTrack(title)); err != nil {
			t.Fatalf("Put(%s) error = %v", title, err)
		}
	}

	for _, want := range []string{"a", "b", "c"} {
		got, err := q.Take(context.Background())
		if err != nil {
			t.Fatalf("Take() error = %v", err)
		}
		if got.Title != want {
			t.Errorf("Take() = %s, want %s", got.Title, want)
		}
		if q.Current() != got {
			t.Error("Take() should make the track current")
		}
		q.Finish()
	}
	if q.Current() != nil || q.Playing() {
		t.Error("queue should be idle after the last Finish")
	}
}

func TestQueue_TakeHonorsContext(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := q.Take(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Take() error = %v, want deadline exceeded", err)
	}
}

func TestQueue_TakeWakesOnPut(t *testing.T) {
	q := NewQueue()
	got := make(chan *Track, 1)
	go func() {
		tr, _ := q.Take(context.Background())
		got <- tr
	}()

	time.Sleep(10 * time.Millisecond)
	_ = q.Put(testTrack("late"))

	select {
	case tr := <-got:
		if tr.Title != "late" {
			t.Errorf("Take() = %s, want late", tr.Title)
		}
	case <-time.After(time.Second):
		t.Fatal("Take() did not wake up after Put")
	}
}

func TestQueue_Sentinel(t *testing.T) {
	q := NewQueue()
	fp := q.Fingerprint()

	if err := q.Put(nil); err != nil {
		t.Fatalf("Put(nil) on an idle queue error = %v", err)
	}
	if q.Fingerprint() != fp {
		t.Error("the sentinel must not change the fingerprint")
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d, the sentinel is not a track", q.Len())
	}
	if q.Empty() {
		t.Error("Empty() should see the pending sentinel")
	}

	tr, err := q.Take(context.Background())
	if err != nil || tr != nil {
		t.Fatalf("Take() = %v, %v; want the nil sentinel", tr, err)
	}
	if err := q.Put(nil); !errors.Is(err, ErrQueueNotIdle) {
		t.Errorf("Put(nil) while taken error = %v, want ErrQueueNotIdle", err)
	}
	q.Finish()

	_ = q.Put(testTrack("a"))
	if err := q.Put(nil); !errors.Is(err, ErrQueueNotIdle) {
		t.Errorf("Put(nil) with pending tracks error = %v, want ErrQueueNotIdle", err)
	}
}

func TestQueue_Fingerprint(t *testing.T) {
	q := NewQueue()
	seen := map[string]string{q.Fingerprint(): "empty"}
	record := func(step string) {
		t.Helper()
		fp := q.Fingerprint()
		if len(fp) != 16 {
			t.Fatalf("fingerprint %q should be 16 hex chars", fp)
		}
		if prev, ok := seen[fp]; ok {
			t.Errorf("fingerprint after %s equals the one after %s", step, prev)
		}
		seen[fp] = step
	}

	_ = q.Put(testTrack("a"))
	record("put a")
	_ = q.Put(testTrack("b"))
	record("put b")
	_, _ = q.Take(context.Background())
	record("take a")
	q.ToggleLoop()
	record("loop on")
}

func TestQueue_FingerprintIsContentBased(t *testing.T) {
	q1, q2 := NewQueue(), NewQueue()
	for _, q := range []*Queue{q1, q2} {
		_ = q.Put(testTrack("a"))
		_ = q.Put(testTrack("b"))
	}
	if q1.Fingerprint() != q2.Fingerprint() {
		t.Error("equal queues should share a fingerprint")
	}

	other := testTrack("b")
	other.Requester = testUser + 1
	q3 := NewQueue()
	_ = q3.Put(testTrack("a"))
	_ = q3.Put(other)
	if q3.Fingerprint() == q1.Fingerprint() {
		t.Error("the requester is part of a track's identity")
	}
}

func TestQueue_StaleOperations(t *testing.T) {
	q := NewQueue()
	_ = q.Put(testTrack("a"))
	stale := q.Fingerprint()
	_ = q.Put(testTrack("b"))

	if err := q.Check(stale); !errors.Is(err, ErrQueueChanged) {
		t.Errorf("Check() error = %v, want ErrQueueChanged", err)
	}
	if _, err := q.RemoveAt(stale, 0); !errors.Is(err, ErrQueueChanged) {
		t.Errorf("RemoveAt() error = %v, want ErrQueueChanged", err)
	}
	if _, err := q.ToggleLoopAt(stale); !errors.Is(err, ErrQueueChanged) {
		t.Errorf("ToggleLoopAt() error = %v, want ErrQueueChanged", err)
	}
	if q.Loop() {
		t.Error("a stale toggle must not change the loop flag")
	}
	if q.Len() != 2 {
		t.Errorf("Len() = %d, want 2", q.Len())
	}
}

func TestQueue_RemoveAt(t *testing.T) {
	q := NewQueue()
	_ = q.Put(testTrack("a"))
	_ = q.Put(testTrack("b"))
	_ = q.Put(testTrack("c"))

	removed, err := q.RemoveAt(q.Fingerprint(), 1)
	if err != nil {
		t.Fatalf("RemoveAt() error = %v", err)
	}
	if removed.Title != "b" {
		t.Errorf("RemoveAt() = %s, want b", removed.Title)
	}

	snap := q.Snapshot()
	if len(snap.Pending) != 2 || snap.Pending[0].Title != "a" || snap.Pending[1].Title != "c" {
		t.Errorf("pending after remove = %v", snap.Pending)
	}
	if _, err := q.RemoveAt(q.Fingerprint(), 5); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("RemoveAt(5) error = %v, want ErrIndexOutOfRange", err)
	}
}

func TestQueue_FinishGeneration(t *testing.T) {
	q := NewQueue()
	_ = q.Put(testTrack("a"))
	_ = q.Put(testTrack("b"))

	_, _ = q.Take(context.Background())
	oldGen := q.Generation()
	q.Finish()
	_, _ = q.Take(context.Background())

	if q.FinishGeneration(oldGen) {
		t.Error("a late callback must not finish the next track")
	}
	if q.Current() == nil || q.Current().Title != "b" {
		t.Fatal("track b should still be current")
	}
	if !q.FinishGeneration(q.Generation()) {
		t.Error("FinishGeneration(current) should succeed")
	}
	if q.FinishGeneration(q.Generation()) {
		t.Error("finishing twice should report false")
	}
}

func TestQueue_WaitAndClear(t *testing.T) {
	q := NewQueue()
	if err := q.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() on an idle queue error = %v", err)
	}

	_ = q.Put(testTrack("a"))
	_ = q.Put(testTrack("b"))
	_, _ = q.Take(context.Background())

	done := make(chan error, 1)
	go func() { done <- q.Wait(context.Background()) }()

	select {
	case <-done:
		t.Fatal("Wait() returned while the track was still playing")
	case <-time.After(20 * time.Millisecond):
	}

	q.Clear()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Wait() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Clear() did not release Wait()")
	}
	if q.Len() != 0 || q.Current() != nil {
		t.Error("Clear() should drop everything")
	}
}

func TestQueue_Autoplay(t *testing.T) {
	q := NewQueue()
	if _, ok := q.Autoplay(); ok {
		t.Error("autoplay should start disabled")
	}
	fp := q.Fingerprint()

	q.EnableAutoplay("city pop")
	if kw, ok := q.Autoplay(); !ok || kw != "city pop" {
		t.Errorf("Autoplay() = %q, %v", kw, ok)
	}
	if q.Fingerprint() != fp {
		t.Error("autoplay settings are not part of the fingerprint")
	}

	q.DisableAutoplay()
	if kw, ok := q.Autoplay(); ok || kw != "" {
		t.Errorf("Autoplay() after disable = %q, %v", kw, ok)
	}
}
