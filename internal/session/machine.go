package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/ai"
	"github.com/spigell/cv-matcher/internal/chat"
	"github.com/spigell/cv-matcher/internal/config"
	"github.com/spigell/cv-matcher/internal/dispatch"
	"github.com/spigell/cv-matcher/internal/jobboard"
	"github.com/spigell/cv-matcher/internal/logger"
	"github.com/spigell/cv-matcher/internal/pipeline"
	"github.com/spigell/cv-matcher/internal/resume"
	"github.com/spigell/cv-matcher/internal/utils"
)

type TextExtractor interface {
	Extract(ctx context.Context, r io.Reader, mime string) (string, error)
}

type ProfileAnalyzer interface {
	Analyze(ctx context.Context, text string, model ai.Model) (*resume.Analysis, error)
}

// BatchRunner runs one search batch.
type BatchRunner interface {
	Run(ctx context.Context, req pipeline.Request, notifier dispatch.Notifier) (*pipeline.Result, error)
}

// ConfigUpdater changes process-wide defaults.
type ConfigUpdater interface {
	Update(param, value string) (string, error)
}

type Options struct {
	// Admins may change defaults with /set.
	Admins []int64
	// Models offered to the user, in presentation order.
	Models []ai.Model
}

// Machine is the per-chat conversation state machine.
type Machine struct {
	store     *Store
	extractor TextExtractor
	analyzer  ProfileAnalyzer
	runner    BatchRunner
	updater   ConfigUpdater
	admins    []int64
	models    []ai.Model
	logger    *zap.Logger
}

func NewMachine(store *Store, extractor TextExtractor, analyzer ProfileAnalyzer, runner BatchRunner, updater ConfigUpdater, opts Options, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}

	models := opts.Models
	if len(models) == 0 {
		models = []ai.Model{ai.ModelGPT4, ai.ModelClaude, ai.ModelGemini}
	}

	return &Machine{
		store:     store,
		extractor: extractor,
		analyzer:  analyzer,
		runner:    runner,
		updater:   updater,
		admins:    opts.Admins,
		models:    models,
		logger:    logger,
	}
}

// Handle processes one event of a chat.
func (m *Machine) Handle(ctx context.Context, ev chat.Event, out chat.Replier) {
	sess := m.store.GetOrCreate(ev.ChatID)
	c := &conversation{
		Machine: m,
		ctx:     ctx,
		sess:    sess,
		out:     out,
		log:     logger.WithSession(m.logger, ev.ChatID, sess.State.String()),
	}

	c.log.Debug("event received", zap.Stringer("kind", ev.Kind))

	switch ev.Kind {
	case chat.KindCommand:
		c.onCommand(ev)
	case chat.KindCallback:
		c.onCallback(ev)
	case chat.KindDocument:
		c.onDocument(ev)
	case chat.KindText:
		c.onText(ev)
	default:
		c.reply(guidance(c.sess, m.models))
	}
}

// conversation is the handling of one event.
type conversation struct {
	*Machine
	ctx  context.Context
	sess *Session
	out  chat.Replier
	log  *zap.Logger
}

func (c *conversation) reply(r chat.Reply) {
	if err := c.out.Reply(c.ctx, c.sess.ChatID, r); err != nil {
		c.log.Warn("sending reply failed", zap.Error(err))
	}
}

func (c *conversation) say(text string) {
	c.reply(chat.Reply{Text: text, Markdown: true})
}

func (c *conversation) moveTo(to State) {
	from := c.sess.State
	if err := c.sess.Transition(to); err != nil {
		// Every call site is a graph edge; reaching this is a bug.
		c.log.Error("invalid session transition", zap.Error(err))
		return
	}
	c.log = logger.WithSession(c.Machine.logger, c.sess.ChatID, to.String())
	c.log.Debug("session state changed", zap.Stringer("from", from))
}

func (c *conversation) chooseModel() {
	if c.sess.State == StateIdle {
		c.moveTo(StateAwaitingModel)
	}
	c.reply(chat.Reply{Text: msgChooseModel, Markdown: true, Buttons: modelKeyboard(c.models, defaultModel(c.sess))})
}

func (c *conversation) onCommand(ev chat.Event) {
	switch strings.ToLower(ev.Command) {
	case "start":
		if c.sess.State == StateIdle || c.sess.State == StateAwaitingModel {
			c.chooseModel()
			return
		}
		c.reply(guidance(c.sess, c.models))
	case "set":
		c.onSet(ev.Args)
	default:
		c.reply(guidance(c.sess, c.models))
	}
}

func (c *conversation) onSet(args string) {
	if !slices.Contains(c.admins, c.sess.ChatID) {
		c.reply(chat.Reply{Text: msgAdminOnly})
		return
	}

	param, value, _ := strings.Cut(strings.TrimSpace(args), " ")
	if param == "" {
		c.reply(chat.Reply{Text: msgSetUsage})
		return
	}

	text, err := c.updater.Update(param, value)
	if err != nil {
		c.log.Info("defaults update rejected", zap.String("parameter", param), zap.Error(err))
	}
	c.reply(chat.Reply{Text: text})
}

func (c *conversation) onCallback(ev chat.Event) {
	choice, ok := strings.CutPrefix(ev.Data, callbackModelPrefix)
	if !ok {
		c.reply(guidance(c.sess, c.models))
		return
	}

	switch c.sess.State {
	case StateIdle, StateAwaitingModel, StateAwaitingDocument:
	default:
		c.reply(guidance(c.sess, c.models))
		return
	}

	model, err := ai.ParseModel(choice)
	if err != nil || !slices.Contains(c.models, model) {
		c.log.Info("unavailable model selected", zap.String("choice", choice))
		c.chooseModel()
		return
	}

	// A model choice starts a fresh session with the current defaults.
	c.sess = c.store.Renew(c.sess.ChatID)
	c.sess.Model = model
	c.moveTo(StateAwaitingDocument)

	c.log.Info("model selected", zap.String(logger.FieldProvider, string(model)))
	c.say(selectedModel(model))
}

func (c *conversation) onDocument(ev chat.Event) {
	if ResetsOnDocument(c.sess.State) {
		c.sess.Reset()
		c.moveTo(StateAwaitingDocument)
		c.log.Info("session reset by new document")
		c.say(msgResetDone)
		return
	}

	if c.sess.Model == "" {
		c.chooseModel()
		return
	}

	doc := ev.Document
	if doc == nil || !resume.IsSupported(doc.MimeType) {
		c.say(msgWrongType)
		return
	}

	c.say(msgAnalyzing)

	text, err := c.extract(doc)
	if err != nil {
		c.log.Warn("document extraction failed", zap.String("mime", doc.MimeType), zap.Error(err))
		c.say(msgUnreadable)
		return
	}

	c.sess.ResumeText = text
	c.moveTo(StateAnalyzing)

	analysis, err := c.analyzer.Analyze(c.ctx, text, c.sess.Model)
	if err != nil {
		c.log.Warn("resume analysis failed", zap.Error(err))
		c.sess.Reset()
		c.moveTo(StateAwaitingDocument)
		c.say(msgAnalysisFailed)
		return
	}

	c.sess.Analysis = analysis
	c.moveTo(StateAwaitingLocations)
	c.say(FormatAnalysis(analysis, c.sess.Config.Locations()))
}

func (c *conversation) extract(doc *chat.Document) (string, error) {
	if doc.Open == nil {
		return "", fmt.Errorf("%w: document has no content", resume.ErrExtractionFailed)
	}

	body, err := doc.Open(c.ctx)
	if err != nil {
		return "", fmt.Errorf("%w: download: %w", resume.ErrExtractionFailed, err)
	}
	defer body.Close()

	return c.extractor.Extract(c.ctx, body, doc.MimeType)
}

func (c *conversation) onText(ev chat.Event) {
	if c.sess.State != StateAwaitingLocations {
		c.reply(guidance(c.sess, c.models))
		return
	}

	locations := utils.SplitList(ev.Text)
	if len(locations) == 0 {
		c.say(msgInvalidLocations + "\n" + locationsPrompt(c.sess.Config.Locations()))
		return
	}

	c.sess.Locations = locations
	c.moveTo(StateSearching)
	c.say(msgSearching)

	result, err := c.runner.Run(c.ctx, c.request(), &replyNotifier{out: c.out})
	switch {
	case err == nil:
		c.sess.Jobs = result.Listings
		c.moveTo(StateResults)
		c.say(FormatResults(result))
	case errors.Is(err, jobboard.ErrScrapeUnavailable):
		c.log.Warn("job board unavailable", zap.Error(err))
		c.sess.Jobs = nil
		c.moveTo(StateResults)
		c.say(msgBoardUnavailable)
	default:
		c.log.Error("search batch failed", zap.Error(err))
		c.sess.Locations = nil
		c.moveTo(StateAwaitingLocations)
		c.say(msgSearchFailed)
	}
}

// request builds the batch for the session. Terms come from the analysis,
// or from the configured keywords when the analysis yields none.
func (c *conversation) request() pipeline.Request {
	snapshot := c.sess.Config
	limits := snapshot.Terms()

	terms := resume.SearchTerms(c.sess.Analysis, limits)
	if len(terms) == 0 {
		terms = snapshot.Keywords()
		if limits.Max > 0 && len(terms) > limits.Max {
			terms = terms[:limits.Max]
		}
	}

	var skills []string
	skills = append(skills, snapshot.Skills()...)
	if c.sess.Analysis != nil {
		skills = append(skills, c.sess.Analysis.Skills()...)
	}

	return pipeline.Request{
		ChatID:     c.sess.ChatID,
		Model:      c.sess.Model,
		Profile:    c.sess.Analysis,
		ResumeText: c.sess.ResumeText,
		Terms:      terms,
		Locations:  slices.Clone(c.sess.Locations),
		Skills:     utils.Unique(skills),
		Threshold:  snapshot.Threshold(),
	}
}

// replyNotifier sends match notifications to the chat.
type replyNotifier struct {
	out chat.Replier
}

func (n *replyNotifier) Notify(ctx context.Context, note dispatch.Notification) error {
	return n.out.Reply(ctx, note.ChatID, chat.Reply{Text: FormatNotification(note), Markdown: true})
}

var _ ConfigUpdater = (*config.Registry)(nil)
