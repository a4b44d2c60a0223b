package logger

import (
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldProvider is the structured log field key for the language model provider.
	FieldProvider = "ai_provider"
	// FieldModel is the structured log field key for the model identifier.
	FieldModel = "ai_model"
	// FieldChatID is the structured log field key for the conversation identity.
	FieldChatID = "chat_id"
	// FieldState is the structured log field key for the session state.
	FieldState = "state"
	// FieldBatchID is the structured log field key for a search batch.
	FieldBatchID = "batch_id"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields safely attaches the provided fields to the logger.
// A nil logger is replaced with a no-op one.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// CommonFields returns fields that describe the language model provider and model.
// Empty values are ignored to keep log entries compact when information is missing.
func CommonFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

// WithCommonFields attaches the provider and model fields to the logger.
func WithCommonFields(logger *zap.Logger, provider, model string) *zap.Logger {
	return WithFields(logger, CommonFields(provider, model)...)
}

// SessionFields describes a conversation. A zero chat id is omitted.
func SessionFields(chatID int64, state string) []zap.Field {
	id := ""
	if chatID != 0 {
		id = strconv.FormatInt(chatID, 10)
	}

	return StringFields(
		StringField{Key: FieldChatID, Value: id},
		StringField{Key: FieldState, Value: state},
	)
}

// WithSession attaches the conversation fields to the logger.
func WithSession(logger *zap.Logger, chatID int64, state string) *zap.Logger {
	return WithFields(logger, SessionFields(chatID, state)...)
}
