package worker

import (
	"container/list"
	"context"
	"errors"
	"sync"
)

// ErrStopped is returned for turns submitted after Stop.
var ErrStopped = errors.New("worker: dispatcher stopped")

// Processor runs one conversational turn.
type Processor interface {
	Process(ctx context.Context, userID, message string) (string, error)
}

type result struct {
	response string
	err      error
}

type job struct {
	ctx     context.Context
	userID  string
	message string
	reply   chan result
}

// Dispatcher serializes turns per user_id while letting different users
// proceed in parallel under a bounded worker count. The pipeline itself has no
// cross-turn ordering guarantee; routing turns through the dispatcher gives a
// user's turns strict submission order. Ready users rotate through a ring so
// one chatty user cannot starve the rest.
type Dispatcher struct {
	proc Processor

	mu        sync.Mutex
	queues    map[string][]job
	busy      map[string]bool
	ready     *list.List // user IDs with runnable jobs
	positions map[string]*list.Element
	stopped   bool

	sem  chan struct{}
	wake chan struct{}
	quit chan struct{}
	done sync.WaitGroup
}

func NewDispatcher(proc Processor, maxWorkers int) *Dispatcher {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	d := &Dispatcher{
		proc:      proc,
		queues:    make(map[string][]job),
		busy:      make(map[string]bool),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
		sem:       make(chan struct{}, maxWorkers),
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
	}
	d.done.Add(1)
	go d.run()
	return d
}

// Submit enqueues one turn and blocks until it completes or ctx is done.
func (d *Dispatcher) Submit(ctx context.Context, userID, message string) (string, error) {
	j := job{ctx: ctx, userID: userID, message: message, reply: make(chan result, 1)}

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return "", ErrStopped
	}
	d.queues[userID] = append(d.queues[userID], j)
	if !d.busy[userID] && d.positions[userID] == nil {
		d.positions[userID] = d.ready.PushBack(userID)
	}
	d.mu.Unlock()
	d.signal()

	select {
	case res := <-j.reply:
		return res.response, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Stop prevents new submissions, waits for the dispatch loop to exit and
// fails every still-queued turn with ErrStopped so no Submit caller is left
// waiting. In-flight turns finish on their own workers.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	var pending []job
	for userID, queue := range d.queues {
		pending = append(pending, queue...)
		delete(d.queues, userID)
	}
	d.ready.Init()
	d.positions = make(map[string]*list.Element)
	d.mu.Unlock()

	close(d.quit)
	d.done.Wait()
	for _, j := range pending {
		j.reply <- result{err: ErrStopped}
	}
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) run() {
	defer d.done.Done()
	for {
		select {
		case <-d.quit:
			return
		case <-d.wake:
		}
		for d.dispatchOne() {
		}
	}
}

// dispatchOne pops the front ready user's oldest job and hands it to a worker.
// Blocking on the semaphore is deliberate backpressure: no further users are
// dispatched while all workers are occupied.
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		return false
	}
	userID := elem.Value.(string)
	d.ready.Remove(elem)
	delete(d.positions, userID)

	queue := d.queues[userID]
	j := queue[0]
	if len(queue) == 1 {
		delete(d.queues, userID)
	} else {
		d.queues[userID] = queue[1:]
	}
	d.busy[userID] = true
	d.mu.Unlock()

	select {
	case d.sem <- struct{}{}:
	case <-d.quit:
		j.reply <- result{err: ErrStopped}
		return false
	}

	go func() {
		defer func() { <-d.sem }()
		response, err := d.proc.Process(j.ctx, j.userID, j.message)
		j.reply <- result{response: response, err: err}
		d.finish(j.userID)
	}()
	return true
}

// finish marks the user idle and re-enqueues them if more turns are waiting.
func (d *Dispatcher) finish(userID string) {
	d.mu.Lock()
	delete(d.busy, userID)
	if _, ok := d.queues[userID]; ok && d.positions[userID] == nil {
		d.positions[userID] = d.ready.PushBack(userID)
	}
	d.mu.Unlock()
	d.signal()
}
