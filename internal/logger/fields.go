package logger

import (
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldProvider is the structured log field key for the AI provider name.
	FieldProvider = "ai_provider"
	// FieldModel is the structured log field key for the AI model identifier.
	FieldModel = "ai_model"
	// FieldSession is the structured log field key for the public session identifier.
	FieldSession = "session_id"
	// FieldUser is the structured log field key for the owning user.
	FieldUser = "user_id"
	// FieldResume is the structured log field key for the source resume.
	FieldResume = "resume_id"
	// FieldQuestion is the structured log field key for a question within a session.
	FieldQuestion = "question_id"
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
// A nil logger becomes a no-op logger.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// CommonFields returns standard zap fields that describe the AI provider and model.
func CommonFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

// WithCommonFields attaches the common AI fields to the provided logger.
func WithCommonFields(logger *zap.Logger, provider, model string) *zap.Logger {
	return WithFields(logger, CommonFields(provider, model)...)
}

// SessionFields describes a session for log entries. Zero ids are omitted.
func SessionFields(sessionID string, userID int64) []zap.Field {
	fields := StringFields(StringField{Key: FieldSession, Value: sessionID})
	if userID != 0 {
		fields = append(fields, zap.String(FieldUser, strconv.FormatInt(userID, 10)))
	}
	return fields
}

// WithSession attaches session fields to the provided logger.
func WithSession(logger *zap.Logger, sessionID string, userID int64) *zap.Logger {
	return WithFields(logger, SessionFields(sessionID, userID)...)
}
