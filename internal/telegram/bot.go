package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/chat"
	"github.com/spigell/cv-matcher/internal/logger"
)

const (
	downloadTimeout = 60 * time.Second
	updatesTimeout  = 30
)

// EventSink accepts events converted from updates.
type EventSink interface {
	Dispatch(ev chat.Event) error
}

// Bot connects chats to the Telegram Bot API.
type Bot struct {
	api     *tgbotapi.BotAPI
	http    *http.Client
	fileURL func(fileID string) (string, error)
	logger  *zap.Logger
}

// New authenticates the bot. endpoint overrides the Bot API endpoint format
// when not empty.
func New(token, endpoint string, logger *zap.Logger) (*Bot, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("telegram token is required")
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := &http.Client{Timeout: downloadTimeout}
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}

	return &Bot{
		api:     api,
		http:    client,
		fileURL: api.GetFileDirectURL,
		logger:  logger.With(zap.String("bot", api.Self.UserName)),
	}, nil
}

// Run reads updates and hands them to sink until ctx is done.
func (b *Bot) Run(ctx context.Context, sink EventSink) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = updatesTimeout

	updates := b.api.GetUpdatesChan(cfg)
	defer b.api.StopReceivingUpdates()

	b.logger.Info("receiving telegram updates")

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return errors.New("telegram updates channel closed")
			}

			if update.CallbackQuery != nil {
				b.answer(update.CallbackQuery.ID)
			}

			ev, ok := b.toEvent(update)
			if !ok {
				continue
			}

			if err := sink.Dispatch(ev); err != nil {
				logger.WithSession(b.logger, ev.ChatID, "").Warn("dropping telegram update", zap.Error(err))
			}
		}
	}
}

// answer stops the loading indicator of a pressed button.
func (b *Bot) answer(callbackID string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, "")); err != nil {
		b.logger.Debug("answering callback query failed", zap.Error(err))
	}
}

func (b *Bot) toEvent(update tgbotapi.Update) (chat.Event, bool) {
	if q := update.CallbackQuery; q != nil {
		if q.Message == nil || q.Message.Chat == nil {
			return chat.Event{}, false
		}
		return chat.Event{ChatID: q.Message.Chat.ID, Kind: chat.KindCallback, Data: q.Data}, true
	}

	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return chat.Event{}, false
	}

	ev := chat.Event{ChatID: msg.Chat.ID}

	switch {
	case msg.Document != nil:
		ev.Kind = chat.KindDocument
		ev.Document = &chat.Document{
			Name:     msg.Document.FileName,
			MimeType: msg.Document.MimeType,
			Size:     int64(msg.Document.FileSize),
			Open:     b.opener(msg.Document.FileID),
		}
	case msg.IsCommand():
		ev.Kind = chat.KindCommand
		ev.Command = msg.Command()
		ev.Args = msg.CommandArguments()
	case msg.Text != "":
		ev.Kind = chat.KindText
		ev.Text = msg.Text
	default:
		return chat.Event{}, false
	}

	return ev, true
}

func (b *Bot) opener(fileID string) func(ctx context.Context) (io.ReadCloser, error) {
	return func(ctx context.Context) (io.ReadCloser, error) {
		link, err := b.fileURL(fileID)
		if err != nil {
			return nil, fmt.Errorf("get file link: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
		if err != nil {
			return nil, fmt.Errorf("create download request: %w", err)
		}

		resp, err := b.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("download file: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("download file: unexpected status %d", resp.StatusCode)
		}

		return resp.Body, nil
	}
}

// Reply sends r to chatID.
func (b *Bot) Reply(ctx context.Context, chatID int64, r chat.Reply) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, r.Text)
	if r.Markdown {
		msg.ParseMode = tgbotapi.ModeMarkdown
	}
	msg.DisableWebPagePreview = true
	if len(r.Buttons) > 0 {
		msg.ReplyMarkup = keyboard(r.Buttons)
	}

	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

func keyboard(buttons [][]chat.Button) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, row := range buttons {
		line := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, button := range row {
			line = append(line, tgbotapi.NewInlineKeyboardButtonData(button.Text, button.Data))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(line...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
