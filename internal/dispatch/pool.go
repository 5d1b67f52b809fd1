package dispatch

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/keshon/warden/internal/domain"
)

// Handler processes one message.
type Handler func(ctx context.Context, msg domain.Message)

// Pool runs a Handler on a fixed set of workers. Messages with the same stream
// key always land on the same worker, so one stream is handled in order while
// different streams run concurrently.
type Pool struct {
	handle Handler
	queues []chan domain.Message
	done   chan struct{}
	once   sync.Once
}

func NewPool(workers, queueSize int, handle Handler) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	queues := make([]chan domain.Message, workers)
	for i := range queues {
		queues[i] = make(chan domain.Message, queueSize)
	}
	return &Pool{handle: handle, queues: queues, done: make(chan struct{})}
}

// Run starts the workers and blocks until ctx is done and every worker has
// finished its current message.
func (p *Pool) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i, q := range p.queues {
		wg.Add(1)
		go func(id int, q <-chan domain.Message) {
			defer wg.Done()
			p.work(ctx, id, q)
		}(i, q)
	}

	<-ctx.Done()
	p.once.Do(func() { close(p.done) })
	wg.Wait()
	return nil
}

func (p *Pool) work(ctx context.Context, id int, q <-chan domain.Message) {
	for {
		select {
		case <-ctx.Done():
			if n := len(q); n > 0 {
				droppedMessages.Add(float64(n))
				log.Warn().Int("worker", id).Int("dropped", n).Msg("dispatcher stopped with queued messages")
			}
			return
		case msg := <-q:
			p.handle(context.WithoutCancel(ctx), msg)
		}
	}
}

// Submit queues msg on the worker owning its stream. It blocks while that
// worker's queue is full and gives up when ctx is done or the pool stopped.
func (p *Pool) Submit(ctx context.Context, msg domain.Message) bool {
	select {
	case <-p.done:
		droppedMessages.Inc()
		return false
	default:
	}

	q := p.queues[p.slot(msg.StreamKey())]
	select {
	case q <- msg:
		return true
	case <-p.done:
	case <-ctx.Done():
	}
	droppedMessages.Inc()
	return false
}

// TrySubmit queues msg without waiting. It reports false, and counts the
// message as dropped, when the worker's queue is full or the pool stopped.
func (p *Pool) TrySubmit(msg domain.Message) bool {
	select {
	case <-p.done:
		droppedMessages.Inc()
		return false
	default:
	}
	select {
	case p.queues[p.slot(msg.StreamKey())] <- msg:
		return true
	default:
		droppedMessages.Inc()
		return false
	}
}

func (p *Pool) slot(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(p.queues)))
}
