package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingProcessor struct {
	mu         sync.Mutex
	inFlight   map[string]int
	violations int32
	delay      time.Duration
}

func newCountingProcessor(delay time.Duration) *countingProcessor {
	return &countingProcessor{inFlight: make(map[string]int), delay: delay}
}

func (p *countingProcessor) Process(ctx context.Context, userID, message string) (string, error) {
	p.mu.Lock()
	p.inFlight[userID]++
	if p.inFlight[userID] > 1 {
		atomic.AddInt32(&p.violations, 1)
	}
	p.mu.Unlock()

	time.Sleep(p.delay)

	p.mu.Lock()
	p.inFlight[userID]--
	p.mu.Unlock()
	return "re: " + message, nil
}

func TestSubmitReturnsResponse(t *testing.T) {
	d := NewDispatcher(newCountingProcessor(0), 2)
	defer d.Stop()

	got, err := d.Submit(context.Background(), "u1", "hello")
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if got != "re: hello" {
		t.Fatalf("unexpected response: %q", got)
	}
}

func TestPerUserTurnsNeverOverlap(t *testing.T) {
	proc := newCountingProcessor(10 * time.Millisecond)
	d := NewDispatcher(proc, 8)
	defer d.Stop()

	var wg sync.WaitGroup
	for user := 0; user < 3; user++ {
		for turn := 0; turn < 5; turn++ {
			wg.Add(1)
			go func(user, turn int) {
				defer wg.Done()
				userID := fmt.Sprintf("u%d", user)
				if _, err := d.Submit(context.Background(), userID, fmt.Sprintf("m%d", turn)); err != nil {
					t.Errorf("Submit error: %v", err)
				}
			}(user, turn)
		}
	}
	wg.Wait()

	if v := atomic.LoadInt32(&proc.violations); v != 0 {
		t.Fatalf("observed %d overlapping turns for a single user", v)
	}
}

type barrierProcessor struct {
	entered chan string
	release chan struct{}
}

func (p *barrierProcessor) Process(ctx context.Context, userID, message string) (string, error) {
	p.entered <- userID
	<-p.release
	return "done", nil
}

func TestDifferentUsersRunInParallel(t *testing.T) {
	proc := &barrierProcessor{entered: make(chan string, 2), release: make(chan struct{})}
	d := NewDispatcher(proc, 4)
	defer d.Stop()

	for _, user := range []string{"a", "b"} {
		go d.Submit(context.Background(), user, "hi")
	}

	// Both turns must be in flight at the same time before either is released.
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case user := <-proc.entered:
			seen[user] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("turns did not run in parallel; saw %v", seen)
		}
	}
	close(proc.release)
}

func TestSubmitAfterStop(t *testing.T) {
	d := NewDispatcher(newCountingProcessor(0), 2)
	d.Stop()

	if _, err := d.Submit(context.Background(), "u1", "hi"); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	// Stop is idempotent.
	d.Stop()
}

func TestStopRepliesToQueuedTurns(t *testing.T) {
	proc := &barrierProcessor{entered: make(chan string, 1), release: make(chan struct{})}
	d := NewDispatcher(proc, 1)

	go d.Submit(context.Background(), "u1", "first")
	<-proc.entered

	// Second turn for the same user queues behind the in-flight one.
	queued := make(chan error, 1)
	go func() {
		_, err := d.Submit(context.Background(), "u1", "second")
		queued <- err
	}()
	time.Sleep(50 * time.Millisecond)

	d.Stop()
	select {
	case err := <-queued:
		if !errors.Is(err, ErrStopped) {
			t.Fatalf("expected ErrStopped for queued turn, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("queued turn never received a reply after Stop")
	}
	close(proc.release)
}

func TestSubmitHonorsContext(t *testing.T) {
	proc := &barrierProcessor{entered: make(chan string, 1), release: make(chan struct{})}
	d := NewDispatcher(proc, 1)
	defer d.Stop()

	go d.Submit(context.Background(), "blocker", "hold the worker")
	<-proc.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := d.Submit(ctx, "waiter", "never runs"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	close(proc.release)
}
