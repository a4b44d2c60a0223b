package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/chat"
	"github.com/spigell/cv-matcher/internal/resume"
)

// consoleChatID identifies the local operator. It is always an admin.
const consoleChatID int64 = 1

var documentTypes = map[string]string{
	".pdf":  resume.MimePDF,
	".docx": resume.MimeDOCX,
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Talk to the matcher from the terminal",
	Long: `Runs a single conversation locally. Type /start to choose a model,
a path to a PDF or DOCX file to upload a CV, and comma-separated
locations when asked.`,
	Run: func(_ *cobra.Command, _ []string) {
		console()
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

func console() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	logger := newLogger()

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	core, err := newApplication(ctx, config, []int64{consoleChatID}, logger)
	if err != nil {
		logger.Fatal("building the application", zap.Error(err))
	}
	defer core.close(context.Background())

	out := &consoleReplier{out: os.Stdout}

	for {
		ev, err := nextEvent(out)
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) || errors.Is(err, io.EOF) {
				logger.Info("exiting", zap.String("reason", "input closed"))
				return
			}
			logger.Fatal("reading input", zap.Error(err))
		}

		if ev == nil {
			continue
		}

		core.machine.Handle(ctx, *ev, out)
	}
}

// nextEvent offers the buttons of the last reply, if any, and reads a line
// otherwise. A nil event means there was nothing to handle.
func nextEvent(out *consoleReplier) (*chat.Event, error) {
	if buttons := out.takeButtons(); len(buttons) > 0 {
		var flat []chat.Button
		for _, row := range buttons {
			flat = append(flat, row...)
		}

		labels := make([]string, 0, len(flat))
		for _, b := range flat {
			labels = append(labels, b.Text)
		}

		selectPrompt := promptui.Select{
			Label: "Choose and press ENTER",
			Items: labels,
		}

		idx, _, err := selectPrompt.Run()
		if err != nil {
			return nil, err
		}

		return &chat.Event{ChatID: consoleChatID, Kind: chat.KindCallback, Data: flat[idx].Data}, nil
	}

	input := promptui.Prompt{Label: "you"}
	line, err := input.Run()
	if err != nil {
		return nil, err
	}

	ev, ok := parseInput(consoleChatID, line)
	if !ok {
		return nil, nil
	}
	return &ev, nil
}

// parseInput turns a console line into an event. Lines starting with a slash
// are commands, paths of existing PDF or DOCX files are documents.
func parseInput(chatID int64, line string) (chat.Event, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return chat.Event{}, false
	}

	if strings.HasPrefix(line, "/") {
		command, args, _ := strings.Cut(line[1:], " ")
		command, _, _ = strings.Cut(command, "@")
		return chat.Event{
			ChatID:  chatID,
			Kind:    chat.KindCommand,
			Command: command,
			Args:    strings.TrimSpace(args),
		}, true
	}

	if doc, ok := localDocument(line); ok {
		return chat.Event{ChatID: chatID, Kind: chat.KindDocument, Document: doc}, true
	}

	return chat.Event{ChatID: chatID, Kind: chat.KindText, Text: line}, true
}

func localDocument(path string) (*chat.Document, bool) {
	path = strings.Trim(path, `"'`)

	mime, ok := documentTypes[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, false
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, false
	}

	return &chat.Document{
		Name:     filepath.Base(path),
		MimeType: mime,
		Size:     info.Size(),
		Open: func(context.Context) (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, true
}

// consoleReplier prints replies and remembers the last offered buttons.
type consoleReplier struct {
	mu      sync.Mutex
	out     io.Writer
	buttons [][]chat.Button
}

func (c *consoleReplier) Reply(_ context.Context, _ int64, r chat.Reply) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintf(c.out, "\n%s\n\n", r.Text); err != nil {
		return err
	}
	if len(r.Buttons) > 0 {
		c.buttons = r.Buttons
	}
	return nil
}

func (c *consoleReplier) takeButtons() [][]chat.Button {
	c.mu.Lock()
	defer c.mu.Unlock()

	buttons := c.buttons
	c.buttons = nil
	return buttons
}
