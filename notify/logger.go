package notify

import (
	"context"
	"log/slog"
)

// Logger forwards notifications to a slog.Logger. Questions are answered
// with a fixed answer and logged.
type Logger struct {
	logger *slog.Logger
	answer bool
}

// NewLogger creates a sink logging to logger that answers every question with answer.
func NewLogger(logger *slog.Logger, answer bool) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger, answer: answer}
}

func (l *Logger) OnMessage(msg string) {
	l.logger.Info(msg)
}

func (l *Logger) OnError(msg string) {
	l.logger.Warn(msg)
}

func (l *Logger) OnQuestion(ctx context.Context, question string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.logger.Info("question answered automatically", "question", question, "answer", l.answer)
	return l.answer, nil
}
