package chat

import (
	"context"
	"io"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Kind is the type of an incoming event.
type Kind int

const (
	KindText Kind = iota
	KindDocument
	KindCallback
	KindCommand
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindDocument:
		return "document"
	case KindCallback:
		return "callback"
	case KindCommand:
		return "command"
	default:
		return "unknown"
	}
}

// Document is an uploaded file. Open fetches its content.
type Document struct {
	Name     string
	MimeType string
	Size     int64
	Open     func(ctx context.Context) (io.ReadCloser, error)
}

// Event is a transport independent user action.
type Event struct {
	ChatID int64
	Kind   Kind

	// Text of a message.
	Text string
	// Data of a pressed inline button.
	Data string
	// Command without the leading slash, and its arguments.
	Command string
	Args    string

	Document *Document
}

type Button struct {
	Text string
	Data string
}

// Reply is an outgoing message. Markdown texts must escape user provided
// values with EscapeMarkdown.
type Reply struct {
	Text     string
	Markdown bool
	Buttons  [][]Button
}

// Replier delivers replies to a chat.
type Replier interface {
	Reply(ctx context.Context, chatID int64, r Reply) error
}

// Handler reacts to events. Handle is never called concurrently for the
// same chat.
type Handler interface {
	Handle(ctx context.Context, ev Event, out Replier)
}

// EscapeMarkdown escapes s for the legacy Telegram Markdown dialect.
func EscapeMarkdown(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}
