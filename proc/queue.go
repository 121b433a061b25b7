package proc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// Queue holds the pending tracks of one session plus its now-playing slot.
// Take, Finish and Wait belong to the streaming loop; everything else may be
// called from any goroutine.
type Queue struct {
	mu sync.Mutex

	// A nil entry is the idle-timer sentinel.
	pending     []*Track
	current     *Track
	playing     bool
	generation  uint64
	loop        bool
	autoplay    string
	autoplayOn  bool
	fingerprint string

	ready    chan struct{}
	finished chan struct{}
	closed   bool
}

func NewQueue() *Queue {
	q := &Queue{
		ready:    make(chan struct{}, 1),
		finished: make(chan struct{}),
		closed:   true,
	}
	close(q.finished)
	q.fingerprint = q.computeFingerprint()
	return q
}

// Snapshot is an immutable copy of the queue used for rendering views.
type Snapshot struct {
	Fingerprint     string
	Current         *Track
	Pending         []*Track
	Loop            bool
	Autoplay        string
	AutoplayEnabled bool
}

// Put appends t. A nil t resets the streaming loop's idle timer and is only
// accepted while nothing is pending or playing.
func (q *Queue) Put(t *Track) error {
	q.mu.Lock()
	if t == nil && (len(q.pending) > 0 || q.playing) {
		q.mu.Unlock()
		return ErrQueueNotIdle
	}
	q.pending = append(q.pending, t)
	if t != nil {
		q.fingerprint = q.computeFingerprint()
	}
	q.mu.Unlock()
	q.wake()
	return nil
}

func (q *Queue) wake() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Take blocks until an entry is available and makes it the current one.
// The returned track is nil for the sentinel.
func (q *Queue) Take(ctx context.Context) (*Track, error) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			t := q.pending[0]
			q.pending[0] = nil
			q.pending = q.pending[1:]
			q.current = t
			q.playing = true
			q.generation++
			q.finished = make(chan struct{})
			q.closed = false
			q.fingerprint = q.computeFingerprint()
			more := len(q.pending) > 0
			q.mu.Unlock()
			if more {
				q.wake()
			}
			return t, nil
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Generation identifies the current take. Completion callbacks capture it so a
// late callback cannot finish a newer track.
func (q *Queue) Generation() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.generation
}

func (q *Queue) Finish() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.finishLocked()
}

// FinishGeneration finishes the current take only if it is still gen.
func (q *Queue) FinishGeneration(gen uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if gen != q.generation || q.closed {
		return false
	}
	q.finishLocked()
	return true
}

func (q *Queue) finishLocked() {
	q.current = nil
	q.playing = false
	if !q.closed {
		close(q.finished)
		q.closed = true
	}
	q.fingerprint = q.computeFingerprint()
}

// Wait blocks until the current take is finished.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	ch := q.finished
	q.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Clear drops every pending entry and finishes the current one.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	clear(q.pending)
	q.pending = nil
	q.finishLocked()
}

func (q *Queue) ToggleLoop() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.loop = !q.loop
	q.fingerprint = q.computeFingerprint()
	return q.loop
}

func (q *Queue) EnableAutoplay(keyword string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.autoplay = keyword
	q.autoplayOn = true
}

func (q *Queue) DisableAutoplay() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.autoplay = ""
	q.autoplayOn = false
}

func (q *Queue) Autoplay() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.autoplay, q.autoplayOn
}

func (q *Queue) Current() *Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

func (q *Queue) Playing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing
}

func (q *Queue) Loop() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loop
}

// Empty reports whether nothing, not even a sentinel, is pending.
func (q *Queue) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) == 0
}

// Len counts pending tracks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, t := range q.pending {
		if t != nil {
			n++
		}
	}
	return n
}

func (q *Queue) Fingerprint() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.fingerprint
}

func (q *Queue) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := Snapshot{
		Fingerprint:     q.fingerprint,
		Current:         q.current,
		Loop:            q.loop,
		Autoplay:        q.autoplay,
		AutoplayEnabled: q.autoplayOn,
	}
	for _, t := range q.pending {
		if t != nil {
			s.Pending = append(s.Pending, t)
		}
	}
	return s
}

// Check fails with ErrQueueChanged unless fp is the current fingerprint.
func (q *Queue) Check(fp string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if fp != q.fingerprint {
		return ErrQueueChanged
	}
	return nil
}

// RemoveAt removes the index-th pending track if the queue still matches fp.
func (q *Queue) RemoveAt(fp string, index int) (*Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if fp != q.fingerprint {
		return nil, ErrQueueChanged
	}
	n := 0
	for i, t := range q.pending {
		if t == nil {
			continue
		}
		if n == index {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			q.fingerprint = q.computeFingerprint()
			return t, nil
		}
		n++
	}
	return nil, ErrIndexOutOfRange
}

func (q *Queue) ToggleLoopAt(fp string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if fp != q.fingerprint {
		return q.loop, ErrQueueChanged
	}
	q.loop = !q.loop
	q.fingerprint = q.computeFingerprint()
	return q.loop, nil
}

// currentAt returns the current take if the queue still matches fp.
func (q *Queue) currentAt(fp string) (*Track, uint64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if fp != q.fingerprint {
		return nil, 0, ErrQueueChanged
	}
	return q.current, q.generation, nil
}

func (q *Queue) currentGeneration() (*Track, uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current, q.generation
}

func (q *Queue) computeFingerprint() string {
	h := sha256.New()
	if q.loop {
		h.Write([]byte("loop:1\n"))
	} else {
		h.Write([]byte("loop:0\n"))
	}
	h.Write([]byte("current:"))
	if q.current != nil {
		h.Write([]byte(q.current.Key().String()))
	}
	h.Write([]byte("\n"))
	for _, t := range q.pending {
		if t == nil {
			continue
		}
		h.Write([]byte(t.Key().String()))
		h.Write([]byte("\n"))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
