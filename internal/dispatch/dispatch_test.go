package dispatch

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/cv-matcher/internal/ai"
	"github.com/spigell/cv-matcher/internal/jobboard"
)

type recordingNotifier struct {
	err  error
	sent []Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	r.sent = append(r.sent, n)
	return r.err
}

type recordingApplier struct {
	err   error
	links []string
}

func (r *recordingApplier) Apply(_ context.Context, link string) error {
	r.links = append(r.links, link)
	return r.err
}

func match(score int) ai.MatchScore {
	return ai.MatchScore{
		Listing: &jobboard.Listing{Title: "Go Engineer", Company: "Acme", Link: "https://jobs.example/1"},
		Score:   score,
	}
}

func TestDispatchThreshold(t *testing.T) {
	tests := []struct {
		name      string
		score     int
		threshold int
		fired     bool
	}{
		{name: "equal to threshold", score: 75, threshold: 75, fired: true},
		{name: "one below threshold", score: 74, threshold: 75, fired: false},
		{name: "above threshold", score: 100, threshold: 75, fired: true},
		{name: "zero threshold", score: 0, threshold: 0, fired: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := &recordingNotifier{}
			applier := &recordingApplier{}
			d := New(notifier, applier, Options{}, zap.NewNop())

			out := d.Dispatch(context.Background(), 42, match(tt.score), tt.threshold)

			if out.Fired != tt.fired {
				t.Fatalf("expected fired=%v, got %+v", tt.fired, out)
			}

			expected := 0
			if tt.fired {
				expected = 1
			}
			if len(notifier.sent) != expected || len(applier.links) != expected {
				t.Fatalf("expected %d notification(s) and application(s), got %d and %d", expected, len(notifier.sent), len(applier.links))
			}
			if tt.fired && (!out.Notified || !out.Applied) {
				t.Fatalf("expected both actions to succeed: %+v", out)
			}
			if tt.fired && notifier.sent[0].ChatID != 42 {
				t.Fatalf("unexpected chat id %d", notifier.sent[0].ChatID)
			}
		})
	}
}

func TestDispatchFailuresAreIndependent(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	notifier := &recordingNotifier{err: errors.New("chat not found")}
	applier := &recordingApplier{}
	d := New(notifier, applier, Options{}, zap.New(core))

	out := d.Dispatch(context.Background(), 1, match(90), 75)
	if !errors.Is(out.NotifyErr, ErrNotificationFailed) || out.Notified {
		t.Fatalf("expected notification failure, got %+v", out)
	}
	if !out.Applied || len(applier.links) != 1 {
		t.Fatalf("application must still be attempted: %+v", out)
	}
	if logs.FilterMessage("sending job notification failed").Len() != 1 {
		t.Fatalf("expected notification failure to be logged")
	}

	notifier = &recordingNotifier{}
	applier = &recordingApplier{err: errors.New("captcha")}
	d = New(notifier, applier, Options{}, zap.New(core))

	out = d.Dispatch(context.Background(), 1, match(90), 75)
	if !out.Notified || !errors.Is(out.ApplyErr, ErrApplicationFailed) {
		t.Fatalf("expected application failure only, got %+v", out)
	}
	if logs.FilterMessage("automated application failed").Len() != 1 {
		t.Fatalf("expected application failure to be logged")
	}
}

func TestDispatchApplyUnavailable(t *testing.T) {
	applier := &recordingApplier{err: jobboard.ErrApplyUnavailable}
	d := New(&recordingNotifier{}, applier, Options{}, nil)

	out := d.Dispatch(context.Background(), 1, match(80), 75)
	if !errors.Is(out.ApplyErr, jobboard.ErrApplyUnavailable) || !errors.Is(out.ApplyErr, ErrApplicationFailed) {
		t.Fatalf("expected apply unavailable, got %v", out.ApplyErr)
	}
	if !out.Notified {
		t.Fatalf("expected notification to be sent")
	}
}

func TestDispatchWithoutApplier(t *testing.T) {
	notifier := &recordingNotifier{}
	d := New(notifier, nil, Options{}, nil)

	out := d.Dispatch(context.Background(), 1, match(80), 75)
	if !out.Notified || !errors.Is(out.ApplyErr, ErrApplicationFailed) {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}
