package chat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

type recordingHandler struct {
	mu      sync.Mutex
	seen    map[int64][]string
	active  atomic.Int32
	peak    atomic.Int32
	perChat map[int64]*atomic.Int32
	delay   time.Duration
	overlap atomic.Bool
}

func newRecordingHandler(delay time.Duration) *recordingHandler {
	return &recordingHandler{
		seen:    make(map[int64][]string),
		perChat: make(map[int64]*atomic.Int32),
		delay:   delay,
	}
}

func (h *recordingHandler) Handle(_ context.Context, ev Event, _ Replier) {
	h.mu.Lock()
	counter, ok := h.perChat[ev.ChatID]
	if !ok {
		counter = &atomic.Int32{}
		h.perChat[ev.ChatID] = counter
	}
	h.mu.Unlock()

	if counter.Add(1) > 1 {
		h.overlap.Store(true)
	}
	defer counter.Add(-1)

	current := h.active.Add(1)
	defer h.active.Add(-1)
	for {
		peak := h.peak.Load()
		if current <= peak || h.peak.CompareAndSwap(peak, current) {
			break
		}
	}

	time.Sleep(h.delay)

	h.mu.Lock()
	h.seen[ev.ChatID] = append(h.seen[ev.ChatID], ev.Text)
	h.mu.Unlock()
}

type nopReplier struct{}

func (nopReplier) Reply(context.Context, int64, Reply) error { return nil }

func TestRouterKeepsOrderPerChat(t *testing.T) {
	handler := newRecordingHandler(2 * time.Millisecond)
	router := NewRouter(context.Background(), handler, nopReplier{}, 4, zap.NewNop())

	texts := []string{"1", "2", "3", "4", "5"}
	for _, text := range texts {
		for _, chatID := range []int64{10, 20, 30} {
			if err := router.Dispatch(Event{ChatID: chatID, Kind: KindText, Text: text}); err != nil {
				t.Fatalf("dispatch: %v", err)
			}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := router.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	for _, chatID := range []int64{10, 20, 30} {
		got := handler.seen[chatID]
		if len(got) != len(texts) {
			t.Fatalf("chat %d: expected %d events, got %v", chatID, len(texts), got)
		}
		for i := range texts {
			if got[i] != texts[i] {
				t.Fatalf("chat %d: events out of order: %v", chatID, got)
			}
		}
	}

	if handler.overlap.Load() {
		t.Fatalf("events of one chat were handled concurrently")
	}
}

func TestRouterBoundsConcurrency(t *testing.T) {
	handler := newRecordingHandler(5 * time.Millisecond)
	router := NewRouter(context.Background(), handler, nopReplier{}, 2, nil)

	for chatID := int64(1); chatID <= 10; chatID++ {
		if err := router.Dispatch(Event{ChatID: chatID, Kind: KindText, Text: "hi"}); err != nil {
			t.Fatalf("dispatch: %v", err)
		}
	}

	if err := router.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if peak := handler.peak.Load(); peak > 2 {
		t.Fatalf("expected at most 2 concurrent handlers, saw %d", peak)
	}
	if len(handler.seen) != 10 {
		t.Fatalf("expected all chats to be handled, got %d", len(handler.seen))
	}
}

func TestRouterRejectsAfterShutdown(t *testing.T) {
	router := NewRouter(context.Background(), newRecordingHandler(0), nopReplier{}, 1, nil)
	if err := router.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if err := router.Dispatch(Event{ChatID: 1}); !errors.Is(err, ErrRouterClosed) {
		t.Fatalf("expected closed router, got %v", err)
	}
}

type panickingHandler struct{}

func (panickingHandler) Handle(context.Context, Event, Replier) { panic("boom") }

func TestRouterSurvivesPanickingHandler(t *testing.T) {
	router := NewRouter(context.Background(), panickingHandler{}, nopReplier{}, 1, nil)
	if err := router.Dispatch(Event{ChatID: 1}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if err := router.Dispatch(Event{ChatID: 1}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if err := router.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestEscapeMarkdown(t *testing.T) {
	if got := EscapeMarkdown("C++ *senior* dev_ops [remote]"); got != `C++ \*senior\* dev\_ops \[remote]` {
		t.Fatalf("unexpected escape: %q", got)
	}
}
