package geocode

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrQueueClosed is returned for tasks submitted after Close.
var ErrQueueClosed = errors.New("geocode: queue closed")

// DefaultInterval 两次外呼之间的最小间隔
const DefaultInterval = 1000 * time.Millisecond

type task struct {
	ctx    context.Context
	fn     func(context.Context) error
	result chan error
}

// Queue 单 worker 的 FIFO 队列：任务按提交顺序串行执行，相邻任务开始时间至少相隔 interval。
// 调用方并发提交也不会突破该间隔。
type Queue struct {
	limiter *rate.Limiter
	tasks   chan task
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

func NewQueue(interval time.Duration) *Queue {
	if interval <= 0 {
		interval = DefaultInterval
	}
	q := &Queue{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		tasks:   make(chan task),
		done:    make(chan struct{}),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

func (q *Queue) run() {
	defer q.wg.Done()
	for {
		select {
		case <-q.done:
			return
		case t := <-q.tasks:
			if err := t.ctx.Err(); err != nil {
				t.result <- err
				continue
			}
			if err := q.limiter.Wait(t.ctx); err != nil {
				t.result <- err
				continue
			}
			t.result <- t.fn(t.ctx)
		}
	}
}

// Do enqueues fn and blocks until it ran or ctx was cancelled. A cancelled
// wait returns ctx.Err() immediately.
func (q *Queue) Do(ctx context.Context, fn func(context.Context) error) error {
	t := task{ctx: ctx, fn: fn, result: make(chan error, 1)}

	select {
	case q.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrQueueClosed
	}

	select {
	case err := <-t.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the worker once the running task returns.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.done) })
	q.wg.Wait()
}
