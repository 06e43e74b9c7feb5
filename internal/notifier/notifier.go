package notifier

import (
	"context"

	"github.com/farellandr/storefront/internal/services"
	"go.uber.org/zap"
)

// Log records confirmations instead of sending them. It stands in for a mail
// or push provider and never fails.
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger.Named("notifier")}
}

func (l *Log) SendConfirmation(ctx context.Context, template string, data map[string]any, recipients []string) bool {
	if ctx.Err() != nil {
		return false
	}
	l.logger.Info("confirmation sent",
		zap.String("template", template),
		zap.Strings("recipients", recipients),
		zap.Any("data", data),
	)
	return true
}

// Multi fans a confirmation out to every notifier and succeeds only if all of them did.
type Multi []services.Notifier

func (m Multi) SendConfirmation(ctx context.Context, template string, data map[string]any, recipients []string) bool {
	ok := true
	for _, n := range m {
		if !n.SendConfirmation(ctx, template, data, recipients) {
			ok = false
		}
	}
	return ok
}

var (
	_ services.Notifier = (*Log)(nil)
	_ services.Notifier = Multi(nil)
)
