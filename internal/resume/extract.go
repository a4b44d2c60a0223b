package resume

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"code.sajari.com/docconv"
	"go.uber.org/zap"
)

const (
	MimePDF  = "application/pdf"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

	defaultExtractTimeout = 30 * time.Second
	// Telegram does not serve bot downloads above 20 MB either.
	maxDocumentSize = 20 << 20
)

var (
	ErrExtractionFailed = errors.New("extraction failed")
	ErrUnsupportedType  = fmt.Errorf("%w: unsupported document type", ErrExtractionFailed)
)

var extensions = map[string]string{
	MimePDF:  ".pdf",
	MimeDOCX: ".docx",
}

// IsSupported reports whether documents of this MIME type can be read.
func IsSupported(mime string) bool {
	_, ok := extensions[strings.ToLower(strings.TrimSpace(mime))]
	return ok
}

// Extractor turns PDF and DOCX documents into plain text.
type Extractor struct {
	dir     string
	timeout time.Duration
	logger  *zap.Logger

	convert func(path string) (string, error)
}

// NewExtractor creates an extractor that stages documents in dir (the system
// temp dir when empty).
func NewExtractor(dir string, timeout time.Duration, logger *zap.Logger) *Extractor {
	if timeout <= 0 {
		timeout = defaultExtractTimeout
	}

	return &Extractor{
		dir:     dir,
		timeout: timeout,
		logger:  logger,
		convert: convertPath,
	}
}

// Extract reads the document and returns its text. Every failure, including
// an empty result or a timeout, wraps ErrExtractionFailed. The staged copy of
// the document is always removed.
func (e *Extractor) Extract(ctx context.Context, r io.Reader, mime string) (string, error) {
	ext, ok := extensions[strings.ToLower(strings.TrimSpace(mime))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, mime)
	}

	path, err := e.stage(r, ext)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}

	done := make(chan result, 1)
	go func() {
		defer os.Remove(path)
		text, err := e.convert(path)
		done <- result{text: text, err: err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrExtractionFailed, ctx.Err())
	case res = <-done:
	}

	if res.err != nil {
		return "", fmt.Errorf("%w: %w", ErrExtractionFailed, res.err)
	}

	text := strings.TrimSpace(res.text)
	if text == "" {
		return "", fmt.Errorf("%w: document contains no text", ErrExtractionFailed)
	}

	e.logger.Debug("document text extracted",
		zap.String("mime", mime),
		zap.Int("text_length", len([]rune(text))),
	)

	return text, nil
}

func (e *Extractor) stage(r io.Reader, ext string) (string, error) {
	file, err := os.CreateTemp(e.dir, "cv_*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	written, err := io.Copy(file, io.LimitReader(r, maxDocumentSize+1))
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err == nil && written > maxDocumentSize {
		err = fmt.Errorf("document exceeds %d bytes", maxDocumentSize)
	}
	if err != nil {
		os.Remove(file.Name())
		return "", err
	}

	return file.Name(), nil
}

func convertPath(path string) (string, error) {
	res, err := docconv.ConvertPath(path)
	if err != nil {
		return "", err
	}
	return res.Body, nil
}
