package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/spigell/cv-matcher/internal/logger"
)

const defaultMaxConcurrent = 8

var ErrRouterClosed = errors.New("router is closed")

// Router serializes events per chat and runs different chats in parallel,
// at most maxConcurrent handlers at a time.
type Router struct {
	ctx     context.Context
	handler Handler
	out     Replier
	sem     *semaphore.Weighted
	logger  *zap.Logger

	mu      sync.Mutex
	queues  map[int64][]Event
	closed  bool
	workers sync.WaitGroup
}

// NewRouter creates a router. Handlers run with ctx.
func NewRouter(ctx context.Context, handler Handler, out Replier, maxConcurrent int64, logger *zap.Logger) *Router {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Router{
		ctx:     ctx,
		handler: handler,
		out:     out,
		sem:     semaphore.NewWeighted(maxConcurrent),
		logger:  logger,
		queues:  make(map[int64][]Event),
	}
}

// Dispatch queues ev behind earlier events of the same chat.
func (r *Router) Dispatch(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRouterClosed
	}

	pending, running := r.queues[ev.ChatID]
	r.queues[ev.ChatID] = append(pending, ev)
	if running {
		return nil
	}

	r.workers.Add(1)
	go r.drain(ev.ChatID)
	return nil
}

// drain handles the events of one chat until its queue is empty.
func (r *Router) drain(chatID int64) {
	defer r.workers.Done()

	for {
		r.mu.Lock()
		pending := r.queues[chatID]
		if len(pending) == 0 {
			delete(r.queues, chatID)
			r.mu.Unlock()
			return
		}
		ev := pending[0]
		r.queues[chatID] = pending[1:]
		r.mu.Unlock()

		r.handle(ev)
	}
}

func (r *Router) handle(ev Event) {
	log := logger.WithSession(r.logger, ev.ChatID, "")

	if err := r.sem.Acquire(r.ctx, 1); err != nil {
		log.Debug("dropping event", zap.Stringer("kind", ev.Kind), zap.Error(err))
		return
	}
	defer r.sem.Release(1)

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("event handler panicked", zap.Stringer("kind", ev.Kind), zap.Error(fmt.Errorf("%v", rec)))
		}
	}()

	r.handler.Handle(r.ctx, ev, r.out)
}

// Shutdown stops accepting events and waits for queued ones to be handled
// or for ctx to expire.
func (r *Router) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
