package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	FieldQuizID  = "quiz_id"
	FieldPartner = "partner"
	FieldRoute   = "route"
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

// WithFields attaches fields to the logger, defaulting to a no-op logger
// when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// QuizFields identifies a quiz session and optionally the partner acting on
// it. Answer values must never be logged, so there is no field for them.
func QuizFields(quizID, partner string) []zap.Field {
	return StringFields(
		StringField{Key: FieldQuizID, Value: quizID},
		StringField{Key: FieldPartner, Value: partner},
	)
}
