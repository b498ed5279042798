package outbox

import (
	"sync"
	"time"

	"github.com/theus-run/theus/pkg/metrics"
)

// Message is one entry dispatched after a transaction commits.
type Message struct {
	Topic     string
	Payload   any
	Timestamp time.Time
}

// Relay buffers committed outbox messages and delivers them, in order, to
// at most one attached worker. Modeled on a single-subscriber event broker:
// Enqueue never blocks the committing execution, and delivery happens
// either synchronously via Drain or asynchronously once Start is called.
type Relay struct {
	mu     sync.Mutex
	worker func(Message)

	queue  chan Message
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRelay returns a Relay with the given queue capacity.
func NewRelay(capacity int) *Relay {
	if capacity <= 0 {
		capacity = 256
	}
	return &Relay{queue: make(chan Message, capacity), stopCh: make(chan struct{})}
}

// AttachWorker registers the function messages are delivered to. Replaces
// any previously attached worker.
func (r *Relay) AttachWorker(fn func(Message)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.worker = fn
}

// Enqueue appends msgs, in order, to the relay's queue. Messages beyond the
// queue's capacity are dropped rather than blocking the caller — a full
// outbox queue means the worker has fallen behind, not that the commit
// should stall.
func (r *Relay) Enqueue(msgs []Message) {
	for _, m := range msgs {
		if m.Timestamp.IsZero() {
			m.Timestamp = time.Now()
		}
		select {
		case r.queue <- m:
		default:
		}
	}
	metrics.OutboxQueueDepth.Set(float64(len(r.queue)))
}

// Drain synchronously delivers every message currently queued to the
// attached worker and returns how many were delivered. A nil worker drains
// (and discards) the queue without error — this is what engine.ProcessOutbox
// calls.
func (r *Relay) Drain() int {
	r.mu.Lock()
	worker := r.worker
	r.mu.Unlock()

	n := 0
	for {
		select {
		case m := <-r.queue:
			if worker != nil {
				worker(m)
			}
			n++
			metrics.OutboxDeliveredTotal.Inc()
		default:
			metrics.OutboxQueueDepth.Set(float64(len(r.queue)))
			return n
		}
	}
}

// Start launches a background goroutine that delivers messages as they
// arrive, for hosts that want asynchronous relay instead of calling Drain
// after each commit. Stop must be called to release it.
func (r *Relay) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case m := <-r.queue:
				r.mu.Lock()
				worker := r.worker
				r.mu.Unlock()
				if worker != nil {
					worker(m)
				}
				metrics.OutboxDeliveredTotal.Inc()
				metrics.OutboxQueueDepth.Set(float64(len(r.queue)))
			case <-r.stopCh:
				return
			}
		}
	}()
}

// Stop signals the background goroutine to exit and waits for it.
func (r *Relay) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

// Len reports how many messages are currently queued.
func (r *Relay) Len() int {
	return len(r.queue)
}
