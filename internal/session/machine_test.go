package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/ai"
	"github.com/spigell/cv-matcher/internal/chat"
	"github.com/spigell/cv-matcher/internal/config"
	"github.com/spigell/cv-matcher/internal/dispatch"
	"github.com/spigell/cv-matcher/internal/jobboard"
	"github.com/spigell/cv-matcher/internal/pipeline"
	"github.com/spigell/cv-matcher/internal/resume"
)

type sentReply struct {
	chatID int64
	reply  chat.Reply
}

type recordingReplier struct {
	mu      sync.Mutex
	replies []sentReply
}

func (r *recordingReplier) Reply(_ context.Context, chatID int64, reply chat.Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, sentReply{chatID: chatID, reply: reply})
	return nil
}

func (r *recordingReplier) last() chat.Reply {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.replies) == 0 {
		return chat.Reply{}
	}
	return r.replies[len(r.replies)-1].reply
}

func (r *recordingReplier) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	texts := make([]string, 0, len(r.replies))
	for _, sent := range r.replies {
		texts = append(texts, sent.reply.Text)
	}
	return texts
}

type stubExtractor struct {
	text  string
	err   error
	calls int
}

func (s *stubExtractor) Extract(_ context.Context, r io.Reader, _ string) (string, error) {
	s.calls++
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	return s.text, s.err
}

type stubAnalyzer struct {
	analysis *resume.Analysis
	err      error
	model    ai.Model
}

func (s *stubAnalyzer) Analyze(_ context.Context, _ string, model ai.Model) (*resume.Analysis, error) {
	s.model = model
	return s.analysis, s.err
}

type stubRunner struct {
	result *pipeline.Result
	err    error
	notify []dispatch.Notification
	req    pipeline.Request
	calls  int
}

func (s *stubRunner) Run(ctx context.Context, req pipeline.Request, notifier dispatch.Notifier) (*pipeline.Result, error) {
	s.calls++
	s.req = req
	for _, n := range s.notify {
		if err := notifier.Notify(ctx, n); err != nil {
			return nil, err
		}
	}
	return s.result, s.err
}

type fixture struct {
	registry  *config.Registry
	store     *Store
	extractor *stubExtractor
	analyzer  *stubAnalyzer
	runner    *stubRunner
	replier   *recordingReplier
	machine   *Machine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	registry := config.NewRegistry(config.Builtin(), zap.NewNop(), config.WithModelValidator(ai.ValidateModel))
	f := &fixture{
		registry:  registry,
		store:     NewStore(registry, 0, zap.NewNop()),
		extractor: &stubExtractor{text: "Go engineer, 7 years, Kubernetes"},
		analyzer: &stubAnalyzer{analysis: (&resume.Analysis{
			TechnicalSkills: map[string][]string{
				resume.CategoryLanguages: {"Go", "Python"},
				resume.CategoryTools:     {"Kubernetes"},
			},
			Experience: resume.Experience{Years: "7", Roles: []string{"SRE"}},
		}).Normalize()},
		runner:  &stubRunner{result: &pipeline.Result{}},
		replier: &recordingReplier{},
	}
	f.machine = NewMachine(f.store, f.extractor, f.analyzer, f.runner, registry, Options{
		Admins: []int64{1},
		Models: []ai.Model{ai.ModelGPT4, ai.ModelClaude},
	}, zap.NewNop())
	return f
}

func (f *fixture) send(ev chat.Event) *Session {
	if ev.ChatID == 0 {
		ev.ChatID = 42
	}
	f.machine.Handle(context.Background(), ev, f.replier)
	sess, _ := f.store.Get(ev.ChatID)
	return sess
}

func pdf() chat.Event {
	return chat.Event{Kind: chat.KindDocument, Document: &chat.Document{
		Name:     "cv.pdf",
		MimeType: resume.MimePDF,
		Open: func(context.Context) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("%PDF-1.4")), nil
		},
	}}
}

func text(s string) chat.Event {
	return chat.Event{Kind: chat.KindText, Text: s}
}

func pick(model string) chat.Event {
	return chat.Event{Kind: chat.KindCallback, Data: "model_" + model}
}

// toLocations drives a new chat up to AWAITING_LOCATIONS.
func (f *fixture) toLocations(t *testing.T) *Session {
	t.Helper()
	f.send(pick("claude"))
	sess := f.send(pdf())
	if sess.State != StateAwaitingLocations {
		t.Fatalf("expected %s, got %s", StateAwaitingLocations, sess.State)
	}
	return sess
}

func TestHappyPath(t *testing.T) {
	f := newFixture(t)

	sess := f.send(chat.Event{Kind: chat.KindCommand, Command: "start"})
	if sess.State != StateAwaitingModel {
		t.Fatalf("expected %s, got %s", StateAwaitingModel, sess.State)
	}
	buttons := f.replier.last().Buttons
	if len(buttons) != 1 || len(buttons[0]) != 2 || buttons[0][0].Data != "model_gpt4" || buttons[0][1].Text != "Claude" {
		t.Fatalf("unexpected keyboard: %+v", buttons)
	}

	sess = f.send(pick("claude"))
	if sess.State != StateAwaitingDocument || sess.Model != ai.ModelClaude {
		t.Fatalf("unexpected session after model choice: %+v", sess)
	}
	if !strings.Contains(f.replier.last().Text, "Selected CLAUDE") {
		t.Fatalf("unexpected reply: %q", f.replier.last().Text)
	}

	sess = f.send(pdf())
	if sess.State != StateAwaitingLocations {
		t.Fatalf("expected %s, got %s", StateAwaitingLocations, sess.State)
	}
	if f.analyzer.model != ai.ModelClaude {
		t.Fatalf("analysis must use the session model, got %q", f.analyzer.model)
	}
	if sess.ResumeText == "" || sess.Analysis == nil {
		t.Fatalf("expected resume text and analysis to be stored")
	}
	summary := f.replier.last().Text
	for _, want := range []string{"CV Analysis Results", "*Programming Languages:*", "Go, Python", "preferred locations"} {
		if !strings.Contains(summary, want) {
			t.Fatalf("expected %q in summary:\n%s", want, summary)
		}
	}

	listing := &jobboard.Listing{Title: "Go SRE", Company: "Acme", Location: "Remote", Salary: jobboard.NotSpecified, Link: "https://jobs.example/1"}
	f.runner.notify = []dispatch.Notification{{ChatID: 42, Listing: listing, Score: 88}}
	weak := &jobboard.Listing{Title: "PHP Dev", Company: "Globex", Location: "Berlin", Salary: jobboard.NotSpecified, Link: "https://jobs.example/2"}
	f.runner.result = &pipeline.Result{
		Listings: []ai.MatchScore{{Listing: listing, Score: 88}, {Listing: weak, Score: 20}},
		Matches:  []ai.MatchScore{{Listing: listing, Score: 88}},
		Report:   jobboard.Report{Found: 3},
	}

	sess = f.send(text(" Remote, Berlin ,"))
	if sess.State != StateResults {
		t.Fatalf("expected %s, got %s", StateResults, sess.State)
	}
	if len(sess.Jobs) != 2 || sess.Jobs[0].Score != 88 || sess.Jobs[1].Listing != weak {
		t.Fatalf("jobs must hold every scored listing of the batch: %+v", sess.Jobs)
	}

	req := f.runner.req
	if strings.Join(req.Locations, "|") != "Remote|Berlin" {
		t.Fatalf("unexpected locations: %q", req.Locations)
	}
	if req.Threshold != config.DefaultThreshold || req.Model != ai.ModelClaude || req.ChatID != 42 {
		t.Fatalf("unexpected request: %+v", req)
	}
	if strings.Join(req.Terms, "|") != "Go|Python|Kubernetes|SRE" {
		t.Fatalf("unexpected terms: %q", req.Terms)
	}
	// Configured skills first, then the analysis skills not already present.
	if strings.Join(req.Skills, "|") != "Python|Machine Learning|Django|REST APIs|Go|Kubernetes" {
		t.Fatalf("unexpected skills: %q", req.Skills)
	}

	texts := f.replier.texts()
	notification := texts[len(texts)-2]
	if !strings.Contains(notification, "88% match: Go SRE") || !strings.Contains(notification, "(https://jobs.example/1)") {
		t.Fatalf("unexpected notification: %q", notification)
	}
	if !strings.Contains(f.replier.last().Text, "Matching Jobs") {
		t.Fatalf("unexpected results message: %q", f.replier.last().Text)
	}
}

func TestDocumentWithoutModelAsksForModel(t *testing.T) {
	f := newFixture(t)

	sess := f.send(pdf())
	if sess.State != StateAwaitingModel {
		t.Fatalf("expected %s, got %s", StateAwaitingModel, sess.State)
	}
	if f.extractor.calls != 0 {
		t.Fatalf("document must not be processed without a model")
	}
	if len(f.replier.last().Buttons) == 0 {
		t.Fatalf("expected model keyboard")
	}
}

func TestDocumentResetsAfterAnalysis(t *testing.T) {
	for _, state := range []State{StateAwaitingLocations, StateResults} {
		t.Run(string(state), func(t *testing.T) {
			f := newFixture(t)
			sess := f.toLocations(t)
			if state == StateResults {
				f.runner.result = &pipeline.Result{Matches: []ai.MatchScore{{Listing: &jobboard.Listing{Title: "x"}, Score: 90}}}
				sess = f.send(text("Remote"))
			}
			if sess.State != state {
				t.Fatalf("expected %s, got %s", state, sess.State)
			}
			calls := f.extractor.calls

			sess = f.send(pdf())

			if sess.State != StateAwaitingDocument {
				t.Fatalf("expected %s, got %s", StateAwaitingDocument, sess.State)
			}
			if sess.Model != ai.ModelClaude {
				t.Fatalf("model must be kept, got %q", sess.Model)
			}
			if sess.Analysis != nil || sess.ResumeText != "" || sess.Jobs != nil || sess.Locations != nil {
				t.Fatalf("expected cleared session, got %+v", sess)
			}
			if f.extractor.calls != calls {
				t.Fatalf("reset document must not be processed")
			}

			// The next document is analyzed again.
			if sess = f.send(pdf()); sess.State != StateAwaitingLocations {
				t.Fatalf("expected %s after new upload, got %s", StateAwaitingLocations, sess.State)
			}
		})
	}
}

func TestDocumentFailuresKeepAwaitingDocument(t *testing.T) {
	tests := []struct {
		name   string
		event  chat.Event
		setup  func(f *fixture)
		expect string
	}{
		{
			name:   "unsupported type",
			event:  chat.Event{Kind: chat.KindDocument, Document: &chat.Document{Name: "cv.txt", MimeType: "text/plain"}},
			expect: msgWrongType,
		},
		{
			name:   "extraction failure",
			event:  pdf(),
			setup:  func(f *fixture) { f.extractor.err = resume.ErrExtractionFailed },
			expect: msgUnreadable,
		},
		{
			name: "download failure",
			event: chat.Event{Kind: chat.KindDocument, Document: &chat.Document{
				MimeType: resume.MimeDOCX,
				Open: func(context.Context) (io.ReadCloser, error) {
					return nil, errors.New("file is too big")
				},
			}},
			expect: msgUnreadable,
		},
		{
			name:   "analysis failure",
			event:  pdf(),
			setup:  func(f *fixture) { f.analyzer.err = fmt.Errorf("%w: 503", ai.ErrAnalysisFailed) },
			expect: msgAnalysisFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}
			f.send(pick("gpt4"))

			sess := f.send(tt.event)
			if sess.State != StateAwaitingDocument {
				t.Fatalf("expected %s, got %s", StateAwaitingDocument, sess.State)
			}
			if sess.Analysis != nil || sess.ResumeText != "" {
				t.Fatalf("expected no resume data, got %+v", sess)
			}
			if f.replier.last().Text != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, f.replier.last().Text)
			}
		})
	}
}

func TestLocations(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		f := newFixture(t)
		f.toLocations(t)

		sess := f.send(text(" , ,"))
		if sess.State != StateAwaitingLocations || f.runner.calls != 0 {
			t.Fatalf("expected to stay in %s without a search, got %s", StateAwaitingLocations, sess.State)
		}
		if !strings.HasPrefix(f.replier.last().Text, msgInvalidLocations) {
			t.Fatalf("unexpected reply: %q", f.replier.last().Text)
		}
	})

	t.Run("board unavailable", func(t *testing.T) {
		f := newFixture(t)
		f.toLocations(t)
		f.runner.err = fmt.Errorf("%w: all 1 location pages failed", jobboard.ErrScrapeUnavailable)

		sess := f.send(text("Remote"))
		if sess.State != StateResults || sess.Jobs != nil {
			t.Fatalf("expected %s with no jobs, got %+v", StateResults, sess)
		}
		if f.replier.last().Text != msgBoardUnavailable {
			t.Fatalf("unexpected reply: %q", f.replier.last().Text)
		}
	})

	t.Run("search failure", func(t *testing.T) {
		f := newFixture(t)
		f.toLocations(t)
		f.runner.err = errors.New("filtering listings: boom")

		sess := f.send(text("Remote"))
		if sess.State != StateAwaitingLocations {
			t.Fatalf("expected %s, got %s", StateAwaitingLocations, sess.State)
		}

		f.runner.err = nil
		if sess = f.send(text("Remote")); sess.State != StateResults {
			t.Fatalf("expected retry to succeed, got %s", sess.State)
		}
		if !strings.HasPrefix(f.replier.last().Text, msgNoJobs) {
			t.Fatalf("expected no jobs message, got %q", f.replier.last().Text)
		}
	})
}

func TestUnexpectedEventsKeepState(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T, f *fixture)
		event  chat.Event
		state  State
		expect string
	}{
		{name: "text while idle", event: text("hello"), state: StateIdle, expect: msgStart},
		{
			name:   "text while awaiting document",
			setup:  func(_ *testing.T, f *fixture) { f.send(pick("gpt4")) },
			event:  text("Berlin"),
			state:  StateAwaitingDocument,
			expect: msgUploadFirst,
		},
		{
			name: "model choice after analysis",
			setup: func(t *testing.T, f *fixture) {
				f.toLocations(t)
			},
			event: pick("gpt4"),
			state: StateAwaitingLocations,
		},
		{
			name: "text in results",
			setup: func(t *testing.T, f *fixture) {
				f.toLocations(t)
				f.send(text("Remote"))
			},
			event:  text("Berlin"),
			state:  StateResults,
			expect: msgResultsDone,
		},
		{
			name:  "unknown callback",
			event: chat.Event{Kind: chat.KindCallback, Data: "page_2"},
			state: StateIdle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(t, f)
			}
			sess := f.send(tt.event)
			if sess.State != tt.state {
				t.Fatalf("expected %s, got %s", tt.state, sess.State)
			}
			if tt.expect != "" && f.replier.last().Text != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, f.replier.last().Text)
			}
		})
	}
}

func TestUnavailableModelShowsKeyboard(t *testing.T) {
	f := newFixture(t)

	sess := f.send(pick("gemini"))
	if sess.State != StateAwaitingModel || sess.Model != "" {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if len(f.replier.last().Buttons) == 0 {
		t.Fatalf("expected keyboard")
	}
}

func TestSetCommand(t *testing.T) {
	f := newFixture(t)

	before := f.store.GetOrCreate(42)

	f.send(chat.Event{ChatID: 7, Kind: chat.KindCommand, Command: "set", Args: "locations Berlin"})
	if f.replier.last().Text != msgAdminOnly {
		t.Fatalf("expected admin only reply, got %q", f.replier.last().Text)
	}

	f.send(chat.Event{ChatID: 1, Kind: chat.KindCommand, Command: "set", Args: "locations Berlin, Remote"})
	if got := f.replier.last().Text; got != "locations updated to Berlin, Remote" {
		t.Fatalf("unexpected confirmation: %q", got)
	}

	f.send(chat.Event{ChatID: 1, Kind: chat.KindCommand, Command: "set", Args: "timezone UTC"})
	if got := f.replier.last().Text; got != config.InvalidParameter {
		t.Fatalf("unexpected rejection: %q", got)
	}

	// Sessions keep the defaults they were created with.
	if got := before.Config.Locations(); strings.Join(got, ",") != "Remote,New York,San Francisco" {
		t.Fatalf("captured snapshot changed: %q", got)
	}

	fresh := f.send(chat.Event{ChatID: 99, Kind: chat.KindText, Text: "hi"})
	if got := fresh.Config.Locations(); strings.Join(got, ",") != "Berlin,Remote" {
		t.Fatalf("new session must see the update, got %q", got)
	}
}

func TestDefaultModelUpdateReachesNewSessions(t *testing.T) {
	f := newFixture(t)

	old := f.send(chat.Event{ChatID: 5, Kind: chat.KindCommand, Command: "start"})
	if got := f.replier.last().Buttons[0][0]; got.Data != "model_gpt4" || got.Text != "GPT-4 (default)" {
		t.Fatalf("unexpected first button before the update: %+v", got)
	}

	if _, err := f.registry.Update("model", "claude"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sess := f.send(chat.Event{Kind: chat.KindCommand, Command: "start"})
	if sess.State != StateAwaitingModel || sess.Model != "" {
		t.Fatalf("a model must still be chosen explicitly: %+v", sess)
	}
	buttons := f.replier.last().Buttons
	if len(buttons[0]) != 2 || buttons[0][0].Data != "model_claude" || buttons[0][0].Text != "Claude (default)" || buttons[0][1].Text != "GPT-4" {
		t.Fatalf("new session must offer the updated default first: %+v", buttons)
	}

	// The earlier session keeps the default it captured.
	f.send(chat.Event{ChatID: old.ChatID, Kind: chat.KindCommand, Command: "start"})
	if got := f.replier.last().Buttons[0][0].Data; got != "model_gpt4" {
		t.Fatalf("captured default changed: %q", got)
	}
}
